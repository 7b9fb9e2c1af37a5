// Package core provides the API chassis for GradBoard. It creates the chi
// router and enforces cross-cutting concerns -- security, logging,
// observability, and error handling -- before requests reach domain-specific
// handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gradboard/internal/config"
	"gradboard/internal/types"
)

// MetricsCollector defines the interface for recording API telemetry.
// The production implementation records to a Prometheus registry.
type MetricsCollector interface {
	// RecordRequest records request latency and count for an endpoint.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Authenticator resolves a Bearer token into an authenticated Actor.
// The production implementation verifies identity-provider session tokens.
type Authenticator interface {
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// RouteRegistrar mounts a domain handler's routes onto a router group.
// The indirection avoids import cycles between core and handler packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates all dependencies for the GradBoard API, allowing for
// easy injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Metrics       MetricsCollector
	Authenticator Authenticator
	RateLimiter   *RateLimiter
	HealthProbes  []HealthProbe

	// V1RouteRegistrars are mounted under /v1 behind auth middleware.
	V1RouteRegistrars []RouteRegistrar
	// PublicRouteRegistrars are mounted at the root without auth
	// (webhook receivers, metrics).
	PublicRouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer initializes dependencies, sets up the router, and prepares the
// server for route mounting. The caller mounts routes via MountRoutes after
// registering handlers.
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

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
