package auth

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/welldanyogia/newsroom-auth/internal/otp"
)

// Middleware is an interface for HTTP middleware
type Middleware func(http.Handler) http.Handler

// RegisterRoutes registers all authentication routes with the Chi router.
// Public routes: /register, /register/verify, /login, /login/otp
// Protected routes: /logout
func RegisterRoutes(r chi.Router, handler *AuthHandler, authMiddleware Middleware) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", handler.Register)
		r.Post("/register/verify", handler.VerifyRegistration)
		r.Post("/login", handler.Login)
		r.Post("/login/otp", handler.LoginOTP)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/logout", handler.Logout)
		})
	})
}

// isOTPError reports whether err comes from OTP verification
func isOTPError(err error) bool {
	return errors.Is(err, otp.ErrCodeInvalid) ||
		errors.Is(err, otp.ErrCodeAlreadyUsed) ||
		errors.Is(err, otp.ErrCodeExpired)
}
