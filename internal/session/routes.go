package session

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware is an interface for HTTP middleware
type Middleware func(http.Handler) http.Handler

// RegisterRoutes registers the session routes with the Chi router.
// /sessions/me is available to any authenticated user; the rest requires the
// admin role.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware, adminMiddleware Middleware) {
	r.Route("/sessions", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/me", handler.ListMine)

		r.Group(func(r chi.Router) {
			r.Use(adminMiddleware)
			r.Get("/suspicious", handler.Suspicious)
			r.Get("/user/{userID}", handler.ListByUser)
			r.Post("/user/{userID}/ban", handler.Ban)
			r.Delete("/{sessionID}", handler.Revoke)
		})
	})
}
