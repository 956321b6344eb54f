package otp

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the OTP routes with the Chi router.
// Both routes are public; the HTTP rate limiter in front of them throttles
// abuse before it reaches the mail transport.
func RegisterRoutes(r chi.Router, handler *Handler) {
	r.Route("/otp", func(r chi.Router) {
		r.Post("/request", handler.RequestCode)
		r.Post("/verify", handler.VerifyCode)
	})
}
