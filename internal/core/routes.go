package core

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lembra/internal/types"
)

// MountRoutes registers the global middleware chain and the worker's routes.
//
// Middleware order: Recoverer outermost to catch everything, then request
// IDs so logging and responses can correlate, then the request logger, then
// CORS (which also answers OPTIONS preflights before auth runs).
func (s *Server) MountRoutes(reminders http.Handler) {
	s.router.Use(Recoverer(s.Logger))
	s.router.Use(RequestID)
	s.router.Use(RequestLogger(s.Logger))
	s.router.Use(CORS(s.corsAllowedOrigins()))

	s.router.MethodNotAllowed(handleMethodNotAllowed)

	s.router.Get("/health", s.HandleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(s.Verifier.RequireWorkerToken)
		r.Post("/worker/reminders", reminders.ServeHTTP)
	})
}

// handleMethodNotAllowed rejects unsupported verbs with the flat error shape.
// OPTIONS never reaches here; the CORS middleware answers it first.
func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	Error(w, types.NewAppError(types.ErrCodeMethodNotAllowed,
		"method "+r.Method+" is not allowed", nil))
}

func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Security.CorsAllowedOrigins) > 0 {
		return s.Config.Security.CorsAllowedOrigins
	}
	return []string{"*"}
}
