// Package core provides the API chassis for the cropyield service.
// It creates a chi router compatible with both standard HTTP (for local dev)
// and AWS Lambda (API Gateway HTTP API events), and enforces cross-cutting
// concerns before requests reach the prediction handlers.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cropyield/internal/config"
)

// MetricsCollector defines the interface for recording API telemetry.
type MetricsCollector interface {
	// RecordRequest records API request metrics including latency and count.
	// endpoint is the matched route pattern, not the raw path.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server holds the dependencies of the HTTP API. Fields are exported so
// main and tests can inject implementations after construction.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Metrics       MetricsCollector
	Authenticator Authenticator

	// HealthProbes are checked by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount domain handlers under /v1. main populates
	// them so core does not import the handler packages.
	V1RouteRegistrars []func(r chi.Router)

	// PublicPaths bypass authentication in addition to /health.
	PublicPaths []string

	// Closers are released by Shutdown in reverse order.
	Closers []func(ctx context.Context) error

	router *chi.Mux
}

// NewServer initializes the server and its router. Routes are mounted by
// MountRoutes after the caller has registered handlers.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases server resources (pools, cache clients). Every closer
// runs even if an earlier one fails.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var errs []error
	for i := len(s.Closers) - 1; i >= 0; i-- {
		if err := s.Closers[i](ctx); err != nil {
			s.Logger.Error("error releasing server resource", "error", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("releasing server resources: %w", err)
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
