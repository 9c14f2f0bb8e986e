package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lembra/internal/config"
)

// Pinger reports store liveness for the health endpoint. *pgxpool.Pool
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server bundles the worker's HTTP dependencies so tests can inject
// substitutes per field.
type Server struct {
	Config   *config.Config
	Logger   *slog.Logger
	Verifier *TokenVerifier
	Store    Pinger

	router *chi.Mux
}

// NewServer performs fail-fast checks and prepares the router. The caller
// mounts routes after construction so tests can customize registration.
func NewServer(cfg *config.Config, logger *slog.Logger, verifier *TokenVerifier, store Pinger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if verifier == nil {
		return nil, fmt.Errorf("token verifier must not be nil")
	}

	return &Server{
		Config:   cfg,
		Logger:   logger,
		Verifier: verifier,
		Store:    store,
		router:   chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// HandleHealth reports process and store liveness. It is unauthenticated.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Store != nil {
		if err := s.Store.Ping(r.Context()); err != nil {
			s.Logger.Error("health check store ping failed", "error", err)
			JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
