package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/welldanyogia/newsroom-auth/internal/repository"
)

// Mock implementations for testing

// mockUserRepository implements repository.UserRepository for testing
type mockUserRepository struct {
	users map[uuid.UUID]*repository.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users: make(map[uuid.UUID]*repository.User),
	}
}

func (m *mockUserRepository) Create(ctx context.Context, user *repository.User) error {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrEmailAlreadyExists
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	if user.Role == "" {
		user.Role = "user"
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*repository.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	user, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}

func (m *mockUserRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	user, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	now := time.Now().UTC()
	user.LastLoginAt = &now
	return nil
}

func (m *mockUserRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	user, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.IsActive = active
	return nil
}

// mockSessionRepository implements repository.SessionRepository for testing
type mockSessionRepository struct {
	sessions map[uuid.UUID]*repository.Session
	touched  map[string]int
	getErr   error
}

func newMockSessionRepository() *mockSessionRepository {
	return &mockSessionRepository{
		sessions: make(map[uuid.UUID]*repository.Session),
		touched:  make(map[string]int),
	}
}

func (m *mockSessionRepository) Create(ctx context.Context, session *repository.Session) error {
	session.ID = uuid.New()
	now := time.Now().UTC()
	session.LoginAt = now
	session.LastActivityAt = now
	session.IsActive = true
	m.sessions[session.ID] = session
	return nil
}

func (m *mockSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*repository.Session, error) {
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, repository.ErrSessionNotFound
}

func (m *mockSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*repository.Session, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, s := range m.sessions {
		if s.TokenHash == tokenHash && s.IsActive {
			return s, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (m *mockSessionRepository) Touch(ctx context.Context, tokenHash string) error {
	m.touched[tokenHash]++
	for _, s := range m.sessions {
		if s.TokenHash == tokenHash && s.IsActive {
			s.LastActivityAt = time.Now().UTC()
		}
	}
	return nil
}

func (m *mockSessionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*repository.Session, error) {
	var out []*repository.Session
	for _, s := range m.sessions {
		if s.UserID == userID && s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSessionRepository) DeactivateExpired(ctx context.Context) (int64, error) {
	var n int64
	now := time.Now().UTC()
	for _, s := range m.sessions {
		if s.IsActive && now.After(s.ExpiresAt) {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *mockSessionRepository) CountSuspiciousUsers(ctx context.Context, maxSessions, maxIPs int) (int, error) {
	return 0, nil
}

func (m *mockSessionRepository) ListSuspiciousUsers(ctx context.Context, maxSessions, maxIPs int) ([]*repository.SuspiciousUser, error) {
	return nil, nil
}

// mockRevocationRepository implements repository.RevocationRepository for
// testing. Revoke mirrors the transactional production behavior: the blacklist
// entry is recorded and the session row deactivated together.
type mockRevocationRepository struct {
	sessionRepo *mockSessionRepository
	userRepo    *mockUserRepository
	revoked     map[string]*repository.RevokedSession
	checkErr    error
}

func newMockRevocationRepository(sessions *mockSessionRepository, users *mockUserRepository) *mockRevocationRepository {
	return &mockRevocationRepository{
		sessionRepo: sessions,
		userRepo:    users,
		revoked:     make(map[string]*repository.RevokedSession),
	}
}

func (m *mockRevocationRepository) Revoke(ctx context.Context, sessionID uuid.UUID, revokedBy *uuid.UUID, reason string) error {
	session, ok := m.sessionRepo.sessions[sessionID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	m.revoked[session.TokenHash] = &repository.RevokedSession{
		ID:        uuid.New(),
		SessionID: sessionID,
		TokenHash: session.TokenHash,
		UserID:    session.UserID,
		RevokedBy: revokedBy,
		Reason:    reason,
		RevokedAt: time.Now().UTC(),
	}
	session.IsActive = false
	return nil
}

func (m *mockRevocationRepository) RevokeAllAndBan(ctx context.Context, userID uuid.UUID, revokedBy *uuid.UUID, reason string) (int, error) {
	if _, ok := m.userRepo.users[userID]; !ok {
		return 0, repository.ErrUserNotFound
	}
	count := 0
	for id, s := range m.sessionRepo.sessions {
		if s.UserID == userID && s.IsActive {
			if err := m.Revoke(ctx, id, revokedBy, reason); err != nil {
				return count, err
			}
			count++
		}
	}
	m.userRepo.users[userID].IsActive = false
	return count, nil
}

func (m *mockRevocationRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*repository.RevokedSession, error) {
	if r, ok := m.revoked[tokenHash]; ok {
		return r, nil
	}
	return nil, repository.ErrSessionNotFound
}

func (m *mockRevocationRepository) IsTokenRevoked(ctx context.Context, tokenHash string) (bool, error) {
	if m.checkErr != nil {
		return false, m.checkErr
	}
	_, ok := m.revoked[tokenHash]
	return ok, nil
}

func (m *mockRevocationRepository) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	for hash, r := range m.revoked {
		if r.RevokedAt.Before(before) {
			delete(m.revoked, hash)
			n++
		}
	}
	return n, nil
}

// mockAttemptRepository implements repository.AttemptRepository for testing
type mockAttemptRepository struct {
	attempts []repository.LoginAttempt
	storeErr error
}

func newMockAttemptRepository() *mockAttemptRepository {
	return &mockAttemptRepository{}
}

func (m *mockAttemptRepository) Record(ctx context.Context, attempt *repository.LoginAttempt) error {
	if m.storeErr != nil {
		return m.storeErr
	}
	attempt.ID = uuid.New()
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now().UTC()
	}
	m.attempts = append(m.attempts, *attempt)
	return nil
}

func (m *mockAttemptRepository) CountFailedByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	if m.storeErr != nil {
		return 0, m.storeErr
	}
	count := 0
	for _, a := range m.attempts {
		if a.IPAddress == ip && !a.Success && a.AttemptedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (m *mockAttemptRepository) OldestFailedByIP(ctx context.Context, ip string, since time.Time) (*time.Time, error) {
	if m.storeErr != nil {
		return nil, m.storeErr
	}
	var oldest *time.Time
	for i := range m.attempts {
		a := m.attempts[i]
		if a.IPAddress == ip && !a.Success && a.AttemptedAt.After(since) {
			if oldest == nil || a.AttemptedAt.Before(*oldest) {
				t := a.AttemptedAt
				oldest = &t
			}
		}
	}
	return oldest, nil
}

func (m *mockAttemptRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	var kept []repository.LoginAttempt
	var n int64
	for _, a := range m.attempts {
		if a.AttemptedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	m.attempts = kept
	return n, nil
}

func (m *mockAttemptRepository) lastAttempt() *repository.LoginAttempt {
	if len(m.attempts) == 0 {
		return nil
	}
	return &m.attempts[len(m.attempts)-1]
}

// mockOTPChecker implements OTPChecker for testing
type mockOTPChecker struct {
	verifyErr error
	issueErr  error
	verified  []repository.OTPPurpose
	issued    []repository.OTPPurpose
}

func (m *mockOTPChecker) Verify(ctx context.Context, email, code string, purpose repository.OTPPurpose) error {
	if m.verifyErr != nil {
		return m.verifyErr
	}
	m.verified = append(m.verified, purpose)
	return nil
}

func (m *mockOTPChecker) Issue(ctx context.Context, email string, purpose repository.OTPPurpose) error {
	if m.issueErr != nil {
		return m.issueErr
	}
	m.issued = append(m.issued, purpose)
	return nil
}

// Bcrypt at cost 12 is deliberately slow; hash the fixture password once and
// share it across tests.
const testPassword = "Secur3!Passw0rd"

var (
	testHashOnce sync.Once
	testHash     string
)

func fixtureHash(t *testing.T) string {
	t.Helper()
	testHashOnce.Do(func() {
		hash, err := NewPasswordValidator().HashPassword(testPassword)
		if err != nil {
			t.Fatalf("failed to hash fixture password: %v", err)
		}
		testHash = hash
	})
	return testHash
}

type testEnv struct {
	service     *AuthService
	users       *mockUserRepository
	sessions    *mockSessionRepository
	revocations *mockRevocationRepository
	attempts    *mockAttemptRepository
	otp         *mockOTPChecker
	tokens      *TokenService
	user        *repository.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := newMockUserRepository()
	sessions := newMockSessionRepository()
	revocations := newMockRevocationRepository(sessions, users)
	attempts := newMockAttemptRepository()
	otpChecker := &mockOTPChecker{}

	validator := NewPasswordValidator()
	tokens := NewTokenService(TokenServiceConfig{
		Secret:        "test-secret-key-32-characters-ok",
		SessionExpiry: time.Hour,
		Issuer:        "test",
	})
	guard := NewLoginGuard(attempts, GuardConfig{
		MaxFailedAttempts: 5,
		LockoutWindow:     15 * time.Minute,
	}, nil)

	service := NewAuthService(
		users,
		sessions,
		revocations,
		NewCredentialVerifier(users, validator),
		guard,
		tokens,
		validator,
		otpChecker,
		nil,
	)

	user := &repository.User{
		Email:        "reader@example.com",
		PasswordHash: fixtureHash(t),
		Role:         "user",
		IsActive:     true,
	}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create fixture user: %v", err)
	}

	return &testEnv{
		service:     service,
		users:       users,
		sessions:    sessions,
		revocations: revocations,
		attempts:    attempts,
		otp:         otpChecker,
		tokens:      tokens,
		user:        user,
	}
}

func testClient() ClientInfo {
	return ClientInfo{
		IPAddress: "203.0.113.10",
		UserAgent: "test-agent/1.0",
	}
}

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.service.Login(context.Background(), LoginRequest{
		Email:    env.user.Email,
		Password: testPassword,
	}, testClient())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if resp.SessionToken == "" {
		t.Error("Expected a session token")
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("Expected token type Bearer, got %s", resp.TokenType)
	}
	if resp.User.Email != env.user.Email {
		t.Errorf("Expected user email %s, got %s", env.user.Email, resp.User.Email)
	}

	// The store holds the digest of the token, never the token itself
	hash := env.tokens.HashToken(resp.SessionToken)
	session, err := env.sessions.GetByTokenHash(context.Background(), hash)
	if err != nil {
		t.Fatalf("Expected session stored under token hash: %v", err)
	}
	if session.TokenHash == resp.SessionToken {
		t.Error("Session must not store the raw token")
	}

	last := env.attempts.lastAttempt()
	if last == nil || !last.Success {
		t.Error("Expected a successful attempt row")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Login(context.Background(), LoginRequest{
		Email:    env.user.Email,
		Password: "Wrong!Passw0rd",
	}, testClient())
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Expected ErrInvalidCredentials, got %v", err)
	}

	last := env.attempts.lastAttempt()
	if last == nil || last.Success {
		t.Fatal("Expected a failed attempt row")
	}
	if last.FailureReason == nil || *last.FailureReason != ReasonInvalidCredentials {
		t.Errorf("Expected failure reason %q, got %v", ReasonInvalidCredentials, last.FailureReason)
	}
}

func TestLoginUnknownEmailIndistinguishable(t *testing.T) {
	env := newTestEnv(t)

	_, errUnknown := env.service.Login(context.Background(), LoginRequest{
		Email:    "nobody@example.com",
		Password: testPassword,
	}, testClient())

	_, errWrongPw := env.service.Login(context.Background(), LoginRequest{
		Email:    env.user.Email,
		Password: "Wrong!Passw0rd",
	}, testClient())

	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrongPw, ErrInvalidCredentials) {
		t.Fatalf("Expected ErrInvalidCredentials from both paths, got %v and %v", errUnknown, errWrongPw)
	}
	if errUnknown.Error() != errWrongPw.Error() {
		t.Errorf("Unknown-email and wrong-password errors must be identical: %q vs %q",
			errUnknown.Error(), errWrongPw.Error())
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	env := newTestEnv(t)
	env.user.IsActive = false

	_, err := env.service.Login(context.Background(), LoginRequest{
		Email:    env.user.Email,
		Password: testPassword,
	}, testClient())
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("Expected ErrAccountInactive, got %v", err)
	}

	last := env.attempts.lastAttempt()
	if last.FailureReason == nil || *last.FailureReason != ReasonAccountInactive {
		t.Errorf("Expected account_inactive audit row, got %v", last.FailureReason)
	}
}

func TestLoginLockout(t *testing.T) {
	env := newTestEnv(t)
	client := testClient()
	reason := ReasonInvalidCredentials

	// Five failures from one IP inside the window trip the lockout
	for i := 0; i < 5; i++ {
		env.attempts.attempts = append(env.attempts.attempts, repository.LoginAttempt{
			ID:            uuid.New(),
			IPAddress:     client.IPAddress,
			Success:       false,
			FailureReason: &reason,
			AttemptedAt:   time.Now().UTC().Add(-time.Minute),
		})
	}

	_, err := env.service.Login(context.Background(), LoginRequest{
		Email:    env.user.Email,
		Password: testPassword,
	}, client)
	if !errors.Is(err, ErrLockedOut) {
		t.Fatalf("Expected ErrLockedOut, got %v", err)
	}

	last := env.attempts.lastAttempt()
	if last.FailureReason == nil || *last.FailureReason != ReasonLockedOut {
		t.Errorf("Expected a locked_out audit row, got %v", last.FailureReason)
	}

	// Another IP is unaffected
	other := client
	other.IPAddress = "198.51.100.7"
	if _, err := env.service.Login(context.Background(), LoginRequest{
		Email:    env.user.Email,
		Password: testPassword,
	}, other); err != nil {
		t.Fatalf("Expected login from a clean IP to succeed, got %v", err)
	}
}

func TestLoginStoreOutageFailsOpen(t *testing.T) {
	env := newTestEnv(t)
	env.attempts.storeErr = errors.New("connection refused")

	_, err := env.service.Login(context.Background(), LoginRequest{
		Email:    env.user.Email,
		Password: testPassword,
	}, testClient())
	if err != nil {
		t.Fatalf("Expected fail-open login to succeed, got %v", err)
	}
}

func TestLoginWithOTP(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.service.LoginWithOTP(context.Background(), OTPLoginRequest{
		Email: env.user.Email,
		Code:  "123456",
	}, testClient())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.SessionToken == "" {
		t.Error("Expected a session token")
	}
	if len(env.otp.verified) != 1 || env.otp.verified[0] != repository.PurposeLogin {
		t.Errorf("Expected one login-purpose verification, got %v", env.otp.verified)
	}
}

func TestLoginWithOTPInvalidCode(t *testing.T) {
	env := newTestEnv(t)
	wantErr := errors.New("invalid verification code")
	env.otp.verifyErr = wantErr

	_, err := env.service.LoginWithOTP(context.Background(), OTPLoginRequest{
		Email: env.user.Email,
		Code:  "000000",
	}, testClient())
	if !errors.Is(err, wantErr) {
		t.Fatalf("Expected the verification error to propagate, got %v", err)
	}

	last := env.attempts.lastAttempt()
	if last.FailureReason == nil || *last.FailureReason != ReasonInvalidOTP {
		t.Errorf("Expected invalid_otp audit row, got %v", last.FailureReason)
	}
}

func TestValidateSessionRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.service.Login(context.Background(), LoginRequest{
		Email:    env.user.Email,
		Password: testPassword,
	}, testClient())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	session, claims, err := env.service.ValidateSession(context.Background(), resp.SessionToken)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if session.UserID != env.user.ID {
		t.Errorf("Expected session for user %s, got %s", env.user.ID, session.UserID)
	}
	if claims.UserID() != env.user.ID.String() {
		t.Errorf("Expected claims subject %s, got %s", env.user.ID, claims.UserID())
	}
	if claims.Email != env.user.Email {
		t.Errorf("Expected claims email %s, got %s", env.user.Email, claims.Email)
	}

	hash := env.tokens.HashToken(resp.SessionToken)
	if env.sessions.touched[hash] != 1 {
		t.Errorf("Expected one activity touch, got %d", env.sessions.touched[hash])
	}
}

func TestValidateSessionTamperedToken(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.service.Login(context.Background(), LoginRequest{
		Email:    env.user.Email,
		Password: testPassword,
	}, testClient())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Flip one character of the claims segment; the signature no longer matches
	dot := strings.Index(resp.SessionToken, ".")
	raw := []byte(resp.SessionToken)
	pos := dot + 2
	if raw[pos] == 'A' {
		raw[pos] = 'B'
	} else {
		raw[pos] = 'A'
	}

	if _, _, err := env.service.ValidateSession(context.Background(), string(raw)); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("Expected ErrSessionInvalid for tampered token, got %v", err)
	}
}

func TestValidateSessionAfterLogout(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.service.Login(context.Background(), LoginRequest{
		Email:    env.user.Email,
		Password: testPassword,
	}, testClient())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := env.service.Logout(context.Background(), resp.SessionToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	// Revocation leaves both marks: blacklist entry and inactive session row
	hash := env.tokens.HashToken(resp.SessionToken)
	if _, ok := env.revocations.revoked[hash]; !ok {
		t.Error("Expected a blacklist entry for the token hash")
	}
	for _, s := range env.sessions.sessions {
		if s.TokenHash == hash && s.IsActive {
			t.Error("Expected the session row to be deactivated")
		}
	}

	if _, _, err := env.service.ValidateSession(context.Background(), resp.SessionToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("Expected ErrSessionInvalid after logout, got %v", err)
	}
}

func TestValidateSessionRevocationIsAuthoritative(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.service.Login(context.Background(), LoginRequest{
		Email:    env.user.Email,
		Password: testPassword,
	}, testClient())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Blacklist the hash but leave the session row active, as a lagging
	// replica might
	hash := env.tokens.HashToken(resp.SessionToken)
	env.revocations.revoked[hash] = &repository.RevokedSession{
		TokenHash: hash,
		RevokedAt: time.Now().UTC(),
	}

	if _, _, err := env.service.ValidateSession(context.Background(), resp.SessionToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("Expected the blacklist to win over the active row, got %v", err)
	}
}

func TestValidateSessionExpired(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.service.Login(context.Background(), LoginRequest{
		Email:    env.user.Email,
		Password: testPassword,
	}, testClient())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	hash := env.tokens.HashToken(resp.SessionToken)
	for _, s := range env.sessions.sessions {
		if s.TokenHash == hash {
			s.ExpiresAt = time.Now().UTC().Add(-time.Minute)
		}
	}

	if _, _, err := env.service.ValidateSession(context.Background(), resp.SessionToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("Expected ErrSessionInvalid for expired session, got %v", err)
	}
}

func TestValidateSessionStoreOutageRejects(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.service.Login(context.Background(), LoginRequest{
		Email:    env.user.Email,
		Password: testPassword,
	}, testClient())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Session validation always fails closed, unlike the login guard
	env.revocations.checkErr = errors.New("connection refused")
	if _, _, err := env.service.ValidateSession(context.Background(), resp.SessionToken); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Expected ErrStoreUnavailable when the revocation check fails, got %v", err)
	}

	env.revocations.checkErr = nil
	env.sessions.getErr = errors.New("connection refused")
	if _, _, err := env.service.ValidateSession(context.Background(), resp.SessionToken); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Expected ErrStoreUnavailable when the session lookup fails, got %v", err)
	}
}

func TestLogoutUnknownToken(t *testing.T) {
	env := newTestEnv(t)

	token, _, err := env.tokens.GenerateSessionToken(uuid.NewString(), "ghost@example.com", "user")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if err := env.service.Logout(context.Background(), token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestRegisterCreatesInactiveAccount(t *testing.T) {
	env := newTestEnv(t)

	resp, validationErrs, err := env.service.Register(context.Background(), RegisterRequest{
		Email:           "new.reader@example.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(validationErrs) > 0 {
		t.Fatalf("Unexpected validation errors: %v", validationErrs)
	}

	created, err := env.users.GetByEmail(context.Background(), "new.reader@example.com")
	if err != nil {
		t.Fatalf("Expected user to exist: %v", err)
	}
	if created.IsActive {
		t.Error("New accounts must start inactive until the code is confirmed")
	}
	if created.PasswordHash == testPassword {
		t.Error("Password must be stored hashed")
	}
	if resp.ID != created.ID.String() {
		t.Errorf("Expected response ID %s, got %s", created.ID, resp.ID)
	}
	if len(env.otp.issued) != 1 || env.otp.issued[0] != repository.PurposeRegister {
		t.Errorf("Expected one register-purpose code issued, got %v", env.otp.issued)
	}
}

func TestRegisterValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	_, validationErrs, err := env.service.Register(context.Background(), RegisterRequest{
		Email:           "not-an-email",
		Password:        "weak",
		ConfirmPassword: "different",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(validationErrs) == 0 {
		t.Fatal("Expected validation errors")
	}

	fields := make(map[string]bool)
	for _, ve := range validationErrs {
		fields[ve.Field] = true
	}
	for _, want := range []string{"email", "password", "confirm_password"} {
		if !fields[want] {
			t.Errorf("Expected a validation error for %s", want)
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.service.Register(context.Background(), RegisterRequest{
		Email:           env.user.Email,
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	if !errors.Is(err, ErrEmailExists) {
		t.Fatalf("Expected ErrEmailExists, got %v", err)
	}
}

func TestRegisterRetriesAfterMailFailure(t *testing.T) {
	env := newTestEnv(t)

	env.otp.issueErr = errors.New("smtp connect: connection refused")
	_, _, err := env.service.Register(context.Background(), RegisterRequest{
		Email:           "new.reader@example.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	if err == nil {
		t.Fatal("Expected an error when code dispatch fails")
	}

	created, err := env.users.GetByEmail(context.Background(), "new.reader@example.com")
	if err != nil {
		t.Fatalf("Expected the account row to survive the failed dispatch: %v", err)
	}
	if created.IsActive {
		t.Error("Unverified accounts must stay inactive")
	}

	env.otp.issueErr = nil
	const retryPassword = "An0ther!Passw0rd"
	resp, validationErrs, err := env.service.Register(context.Background(), RegisterRequest{
		Email:           "new.reader@example.com",
		Password:        retryPassword,
		ConfirmPassword: retryPassword,
	})
	if err != nil {
		t.Fatalf("Retrying registration must succeed once mail recovers, got %v", err)
	}
	if len(validationErrs) > 0 {
		t.Fatalf("Unexpected validation errors: %v", validationErrs)
	}
	if resp.ID != created.ID.String() {
		t.Errorf("Expected the retry to reuse account %s, got %s", created.ID, resp.ID)
	}
	if len(env.users.users) != 2 {
		t.Errorf("Expected no duplicate account rows, got %d users", len(env.users.users))
	}
	if len(env.otp.issued) != 1 || env.otp.issued[0] != repository.PurposeRegister {
		t.Errorf("Expected one register-purpose code issued on retry, got %v", env.otp.issued)
	}

	updated, err := env.users.GetByEmail(context.Background(), "new.reader@example.com")
	if err != nil {
		t.Fatalf("Expected user to exist: %v", err)
	}
	if err := NewPasswordValidator().VerifyPassword(retryPassword, updated.PasswordHash); err != nil {
		t.Error("Expected the retry to refresh the stored password hash")
	}
}

func TestVerifyRegistrationActivates(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.service.Register(context.Background(), RegisterRequest{
		Email:           "new.reader@example.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := env.service.VerifyRegistration(context.Background(), VerifyRegistrationRequest{
		Email: "new.reader@example.com",
		Code:  "123456",
	}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	user, err := env.users.GetByEmail(context.Background(), "new.reader@example.com")
	if err != nil {
		t.Fatalf("Expected user to exist: %v", err)
	}
	if !user.IsActive {
		t.Error("Expected the account to be active after verification")
	}
}
