package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/welldanyogia/newsroom-auth/internal/repository"
)

// Identity is the result of a successful credential check
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// CredentialVerifier checks an email/password pair against the stored hash.
// It has no side effects; the orchestrator records the attempt.
type CredentialVerifier struct {
	userRepo          repository.UserRepository
	passwordValidator *PasswordValidator
}

// NewCredentialVerifier creates a new CredentialVerifier instance
func NewCredentialVerifier(userRepo repository.UserRepository, passwordValidator *PasswordValidator) *CredentialVerifier {
	return &CredentialVerifier{
		userRepo:          userRepo,
		passwordValidator: passwordValidator,
	}
}

// Verify checks the credentials. Unknown email and wrong password both come
// back as ErrInvalidCredentials so callers cannot distinguish them; an
// inactive account returns ErrAccountInactive (the caller decides how much of
// that to expose). The plaintext password is never logged or stored.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := v.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Burn a bcrypt comparison anyway so the unknown-email path is
			// not observably faster than the wrong-password path.
			_ = v.passwordValidator.VerifyPassword(password, dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := v.passwordValidator.VerifyPassword(password, user.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	return &Identity{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}, nil
}

// dummyHash is a bcrypt hash of a throwaway value, compared against when the
// account does not exist to equalize response timing.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"
