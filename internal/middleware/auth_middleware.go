package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/welldanyogia/newsroom-auth/internal/auth"
	appctx "github.com/welldanyogia/newsroom-auth/internal/context"
	"github.com/welldanyogia/newsroom-auth/internal/repository"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SessionValidator validates a presented session token against the session
// store and revocation registry.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*repository.Session, *auth.Claims, error)
}

// AuthMiddleware authenticates requests against live sessions. A token is
// only accepted if its session is still active and not revoked, so a logout
// or admin revocation takes effect on the very next request.
type AuthMiddleware struct {
	validator SessionValidator
}

// NewAuthMiddleware creates a new AuthMiddleware instance
func NewAuthMiddleware(validator SessionValidator) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
	}
}

// Authenticate validates the bearer token from the Authorization header and
// injects the session identity into the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.writeError(w, http.StatusUnauthorized, "AUTH_TOKEN_MISSING", "Authorization header is required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			m.writeError(w, http.StatusUnauthorized, "AUTH_TOKEN_INVALID", "Invalid authorization header format")
			return
		}

		tokenString := parts[1]
		if tokenString == "" {
			m.writeError(w, http.StatusUnauthorized, "AUTH_TOKEN_INVALID", "Token is empty")
			return
		}

		session, claims, err := m.validator.ValidateSession(r.Context(), tokenString)
		if err != nil {
			if err == auth.ErrStoreUnavailable {
				m.writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Session validation is temporarily unavailable")
				return
			}
			m.writeError(w, http.StatusUnauthorized, "AUTH_TOKEN_INVALID", "Invalid or expired session")
			return
		}

		ctx := context.WithValue(r.Context(), appctx.UserIDKey, claims.UserID())
		ctx = context.WithValue(ctx, appctx.EmailKey, claims.Email)
		ctx = context.WithValue(ctx, appctx.RoleKey, claims.Role)
		ctx = context.WithValue(ctx, appctx.SessionIDKey, session.ID.String())

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects requests whose authenticated identity does not carry
// the given role. It must run after Authenticate.
func (m *AuthMiddleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := appctx.ExtractRole(r.Context())
			if !ok || got != role {
				m.writeError(w, http.StatusForbidden, "AUTH_FORBIDDEN", "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes a JSON error response
func (m *AuthMiddleware) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

// ExtractUserID extracts the user ID from the request context
func ExtractUserID(ctx context.Context) (string, bool) {
	return appctx.ExtractUserID(ctx)
}

// ExtractEmail extracts the email from the request context
func ExtractEmail(ctx context.Context) (string, bool) {
	return appctx.ExtractEmail(ctx)
}
