package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims represents the session token claims structure
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the user ID from the Subject claim
func (c *Claims) UserID() string {
	return c.Subject
}

// TokenService issues and validates bearer session tokens. Tokens are signed
// JWTs with a random jti, but the session store never sees the raw token:
// storage and lookup always use the SHA-256 hex digest of the full string.
type TokenService struct {
	secret        string
	sessionExpiry time.Duration
	issuer        string
}

// TokenServiceConfig holds configuration for TokenService
type TokenServiceConfig struct {
	Secret        string
	SessionExpiry time.Duration
	Issuer        string
}

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg TokenServiceConfig) *TokenService {
	return &TokenService{
		secret:        cfg.Secret,
		sessionExpiry: cfg.SessionExpiry,
		issuer:        cfg.Issuer,
	}
}

// GenerateSessionToken generates a fresh session token for the given user.
// Returns the raw token and its expiry; only the hash of the raw token may be
// persisted.
func (s *TokenService) GenerateSessionToken(userID, email, role string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.sessionExpiry)

	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secret))
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// ParseSessionToken validates the token signature and shape and returns the
// claims. This is the cheap pre-check; the authoritative per-request decision
// comes from the session store and the revocation registry.
func (s *TokenService) ParseSessionToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.secret), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// HashToken returns the SHA-256 hex digest of the raw token. One flipped
// character in the presented token yields an unrelated digest, so a tampered
// token can never match a stored session.
func (s *TokenService) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// GetSessionExpiry returns the configured session lifetime
func (s *TokenService) GetSessionExpiry() time.Duration {
	return s.sessionExpiry
}
