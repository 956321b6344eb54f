package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/welldanyogia/newsroom-auth/internal/metrics"
	"github.com/welldanyogia/newsroom-auth/internal/repository"
	"github.com/welldanyogia/newsroom-auth/internal/sanitizer"
)

// Auth service errors
var (
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrEmailExists        = errors.New("email already exists")
	ErrPasswordMismatch   = errors.New("password and confirm_password do not match")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrLockedOut          = errors.New("too many failed login attempts")
	ErrSessionInvalid     = errors.New("invalid or expired session")
	ErrSessionNotFound    = errors.New("session not found")
	ErrStoreUnavailable   = errors.New("datastore unavailable")
)

// Error codes for API responses
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeEmailExists        = "EMAIL_EXISTS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountInactive    = "ACCOUNT_INACTIVE"
	CodeLockedOut          = "TOO_MANY_ATTEMPTS"
	CodeSessionInvalid     = "SESSION_INVALID"
	CodeAuthTokenMissing   = "AUTH_TOKEN_MISSING"
	CodeStoreUnavailable   = "SERVICE_UNAVAILABLE"
)

// Field length bounds applied to client-supplied session metadata
const (
	maxUserAgentLen  = 512
	maxDeviceInfoLen = 256
	maxLocationLen   = 256
)

// OTPChecker is the slice of the OTP manager the login flow needs
type OTPChecker interface {
	Verify(ctx context.Context, email, code string, purpose repository.OTPPurpose) error
	Issue(ctx context.Context, email string, purpose repository.OTPPurpose) error
}

// LoginRequest represents the password login payload
type LoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	DeviceInfo string `json:"device_info,omitempty" validate:"omitempty,max=256"`
	Location   string `json:"location,omitempty" validate:"omitempty,max=256"`
}

// OTPLoginRequest represents the passwordless login payload
type OTPLoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Code       string `json:"code" validate:"required,len=6,numeric"`
	DeviceInfo string `json:"device_info,omitempty" validate:"omitempty,max=256"`
	Location   string `json:"location,omitempty" validate:"omitempty,max=256"`
}

// RegisterRequest represents the registration payload
type RegisterRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

// VerifyRegistrationRequest confirms a new account with its register OTP
type VerifyRegistrationRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// UserResponse represents the user data in responses
type UserResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// AuthResponse represents a successful authentication
type AuthResponse struct {
	User         UserResponse `json:"user"`
	SessionToken string       `json:"session_token"`
	TokenType    string       `json:"token_type"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// ValidationError represents a validation error with field details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ClientInfo carries per-request client metadata into the login flow
type ClientInfo struct {
	IPAddress  string
	UserAgent  string
	DeviceInfo string
	Location   string
}

// AuthService composes the credential verifier, OTP manager, lockout guard,
// session store and revocation registry into the login flow and per-request
// session validation.
type AuthService struct {
	userRepo          repository.UserRepository
	sessionRepo       repository.SessionRepository
	revocationRepo    repository.RevocationRepository
	verifier          *CredentialVerifier
	guard             *LoginGuard
	tokenService      *TokenService
	passwordValidator *PasswordValidator
	otp               OTPChecker
	sanitizer         *sanitizer.InputSanitizer
	logger            *slog.Logger
}

// NewAuthService creates a new AuthService instance
func NewAuthService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	revocationRepo repository.RevocationRepository,
	verifier *CredentialVerifier,
	guard *LoginGuard,
	tokenService *TokenService,
	passwordValidator *PasswordValidator,
	otp OTPChecker,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		userRepo:          userRepo,
		sessionRepo:       sessionRepo,
		revocationRepo:    revocationRepo,
		verifier:          verifier,
		guard:             guard,
		tokenService:      tokenService,
		passwordValidator: passwordValidator,
		otp:               otp,
		sanitizer:         sanitizer.New(),
		logger:            logger,
	}
}

// Login authenticates a user with email and password and creates a session.
// Every exit path records one audit row.
func (s *AuthService) Login(ctx context.Context, req LoginRequest, client ClientInfo) (*AuthResponse, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))

	locked, err := s.guard.IsLockedOut(ctx, client.IPAddress)
	if err != nil {
		return nil, err
	}
	if locked {
		s.guard.LogAttempt(ctx, &email, client.IPAddress, client.UserAgent, false, ReasonLockedOut)
		metrics.LockoutsTotal.Inc()
		return nil, ErrLockedOut
	}

	identity, err := s.verifier.Verify(ctx, email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			s.guard.LogAttempt(ctx, &email, client.IPAddress, client.UserAgent, false, ReasonInvalidCredentials)
			metrics.LoginAttemptsTotal.WithLabelValues(ReasonInvalidCredentials).Inc()
			return nil, ErrInvalidCredentials
		case errors.Is(err, ErrAccountInactive):
			// Inactivity is not an account-existence secret: the account
			// legitimately exists, so the specific reason may surface.
			s.guard.LogAttempt(ctx, &email, client.IPAddress, client.UserAgent, false, ReasonAccountInactive)
			metrics.LoginAttemptsTotal.WithLabelValues(ReasonAccountInactive).Inc()
			return nil, ErrAccountInactive
		default:
			return nil, err
		}
	}

	s.guard.LogAttempt(ctx, &email, client.IPAddress, client.UserAgent, true, "")
	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()

	return s.establishSession(ctx, identity, client)
}

// LoginWithOTP authenticates a user with a previously issued login code
func (s *AuthService) LoginWithOTP(ctx context.Context, req OTPLoginRequest, client ClientInfo) (*AuthResponse, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))

	locked, err := s.guard.IsLockedOut(ctx, client.IPAddress)
	if err != nil {
		return nil, err
	}
	if locked {
		s.guard.LogAttempt(ctx, &email, client.IPAddress, client.UserAgent, false, ReasonLockedOut)
		metrics.LockoutsTotal.Inc()
		return nil, ErrLockedOut
	}

	if err := s.otp.Verify(ctx, email, req.Code, repository.PurposeLogin); err != nil {
		s.guard.LogAttempt(ctx, &email, client.IPAddress, client.UserAgent, false, ReasonInvalidOTP)
		metrics.LoginAttemptsTotal.WithLabelValues(ReasonInvalidOTP).Inc()
		return nil, err
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.guard.LogAttempt(ctx, &email, client.IPAddress, client.UserAgent, false, ReasonInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		s.guard.LogAttempt(ctx, &email, client.IPAddress, client.UserAgent, false, ReasonAccountInactive)
		return nil, ErrAccountInactive
	}

	s.guard.LogAttempt(ctx, &email, client.IPAddress, client.UserAgent, true, "")
	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()

	return s.establishSession(ctx, &Identity{UserID: user.ID, Email: user.Email, Role: user.Role}, client)
}

// establishSession generates a fresh token, persists its hash, and returns
// the raw token to the caller. The raw token is never stored.
func (s *AuthService) establishSession(ctx context.Context, identity *Identity, client ClientInfo) (*AuthResponse, error) {
	if err := s.userRepo.UpdateLastLogin(ctx, identity.UserID); err != nil {
		// Liveness bookkeeping only; a failure here must not abort the login
		s.logger.Warn("failed to update last login", "user_id", identity.UserID, "error", err)
	}

	rawToken, expiresAt, err := s.tokenService.GenerateSessionToken(identity.UserID.String(), identity.Email, identity.Role)
	if err != nil {
		return nil, err
	}

	session := &repository.Session{
		UserID:     identity.UserID,
		TokenHash:  s.tokenService.HashToken(rawToken),
		IPAddress:  s.sanitizer.CleanPtr(client.IPAddress, 45),
		UserAgent:  s.sanitizer.CleanPtr(client.UserAgent, maxUserAgentLen),
		DeviceInfo: s.sanitizer.CleanPtr(client.DeviceInfo, maxDeviceInfoLen),
		Location:   s.sanitizer.CleanPtr(client.Location, maxLocationLen),
		ExpiresAt:  expiresAt,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	metrics.SessionsCreatedTotal.Inc()

	user, err := s.userRepo.GetByID(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		User: UserResponse{
			ID:        user.ID.String(),
			Email:     user.Email,
			Role:      user.Role,
			CreatedAt: user.CreatedAt,
			LastLogin: user.LastLoginAt,
		},
		SessionToken: rawToken,
		TokenType:    "Bearer",
		ExpiresAt:    expiresAt,
	}, nil
}

// ValidateSession authorizes one request given a presented raw token.
// The revocation registry is consulted first and is authoritative: a
// blacklisted hash is rejected even if the session row still reads active
// (replica lag). Any store error rejects the request; "cannot confirm valid"
// defaults to deny.
func (s *AuthService) ValidateSession(ctx context.Context, rawToken string) (*repository.Session, *Claims, error) {
	claims, err := s.tokenService.ParseSessionToken(rawToken)
	if err != nil {
		return nil, nil, ErrSessionInvalid
	}

	tokenHash := s.tokenService.HashToken(rawToken)

	revoked, err := s.revocationRepo.IsTokenRevoked(ctx, tokenHash)
	if err != nil {
		s.logger.Error("revocation check failed, rejecting request", "error", err)
		return nil, nil, ErrStoreUnavailable
	}
	if revoked {
		return nil, nil, ErrSessionInvalid
	}

	session, err := s.sessionRepo.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, nil, ErrSessionInvalid
		}
		s.logger.Error("session lookup failed, rejecting request", "error", err)
		return nil, nil, ErrStoreUnavailable
	}

	if time.Now().UTC().After(session.ExpiresAt) {
		return nil, nil, ErrSessionInvalid
	}

	// Best-effort liveness tracking; racing touches are last-writer-wins
	if err := s.sessionRepo.Touch(ctx, tokenHash); err != nil {
		s.logger.Warn("failed to touch session", "session_id", session.ID, "error", err)
	}

	return session, claims, nil
}

// Logout revokes the presented session (system-initiated revocation)
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	if _, err := s.tokenService.ParseSessionToken(rawToken); err != nil {
		return ErrSessionInvalid
	}

	tokenHash := s.tokenService.HashToken(rawToken)
	session, err := s.sessionRepo.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return err
	}

	if err := s.revocationRepo.Revoke(ctx, session.ID, nil, "logout"); err != nil {
		return err
	}
	metrics.SessionsRevokedTotal.WithLabelValues("logout").Inc()
	return nil
}

// Register creates a new account, inactive until its register OTP is
// confirmed, and dispatches the code.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*UserResponse, []ValidationError, error) {
	var validationErrors []ValidationError

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if !isValidEmail(email) {
		validationErrors = append(validationErrors, ValidationError{
			Field:   "email",
			Message: "Invalid email format",
		})
	}

	for _, err := range s.passwordValidator.ValidatePassword(req.Password) {
		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field,
			Message: err.Message,
		})
	}

	if req.Password != req.ConfirmPassword {
		validationErrors = append(validationErrors, ValidationError{
			Field:   "confirm_password",
			Message: "Password and confirm_password do not match",
		})
	}

	if len(validationErrors) > 0 {
		return nil, validationErrors, nil
	}

	passwordHash, err := s.passwordValidator.HashPassword(req.Password)
	if err != nil {
		return nil, nil, err
	}

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, nil, err
	}
	if existing != nil {
		if existing.IsActive {
			return nil, nil, ErrEmailExists
		}
		// An earlier registration whose code was never confirmed, often
		// because the mail dispatch failed. Refresh the credentials and
		// re-issue the code rather than stranding the address behind
		// ErrEmailExists. The account cannot log in until verified, so
		// overwriting its password only affects whoever owns the inbox.
		if err := s.userRepo.UpdatePassword(ctx, existing.ID, passwordHash); err != nil {
			return nil, nil, err
		}
		if err := s.otp.Issue(ctx, email, repository.PurposeRegister); err != nil {
			return nil, nil, err
		}
		return &UserResponse{
			ID:        existing.ID.String(),
			Email:     existing.Email,
			Role:      existing.Role,
			CreatedAt: existing.CreatedAt,
		}, nil, nil
	}

	user := &repository.User{
		Email:        email,
		PasswordHash: passwordHash,
		Role:         "user",
		IsActive:     false,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailAlreadyExists) {
			return nil, nil, ErrEmailExists
		}
		return nil, nil, err
	}

	if err := s.otp.Issue(ctx, email, repository.PurposeRegister); err != nil {
		return nil, nil, err
	}

	return &UserResponse{
		ID:        user.ID.String(),
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}, nil, nil
}

// VerifyRegistration consumes the register OTP and activates the account
func (s *AuthService) VerifyRegistration(ctx context.Context, req VerifyRegistrationRequest) error {
	email := strings.TrimSpace(strings.ToLower(req.Email))

	if err := s.otp.Verify(ctx, email, req.Code, repository.PurposeRegister); err != nil {
		return err
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}

	return s.userRepo.SetActive(ctx, user.ID, true)
}

// isValidEmail checks if the email format is valid
func isValidEmail(email string) bool {
	if email == "" {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil
}
