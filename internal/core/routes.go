package core

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultRequestTimeout is the soft deadline applied to request contexts.
// Kept below typical load balancer idle timeouts so handlers observe
// cancellation before the client gives up.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in
// request logs to prevent accidental leakage of credentials or session
// tokens.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Stripe-Signature",
	"Svix-Signature",
}

// MountRoutes defines the top-level routing hierarchy.
// It registers the global middleware chain, the public routes (health,
// webhook receivers, metrics), and the authenticated /v1 API group.
func (s *Server) MountRoutes() {
	// Global middleware registration (strict order matters).
	s.registerGlobalMiddleware()

	// Public routes: webhook receivers authenticate via provider
	// signatures rather than Bearer tokens, and health/metrics must be
	// reachable by infrastructure probes.
	s.router.Get("/health", s.HandleHealth)
	for _, registrar := range s.PublicRouteRegistrars {
		registrar(s.router)
	}

	// Authenticated API group.
	s.router.Route("/v1", s.mountV1)
}

// registerGlobalMiddleware applies middleware in strict order.
//
// Ordering Rationale:
//  1. Recoverer       - Catches panics; outermost to catch all failures.
//  2. ContextTimeout  - Sets soft deadline on the request context.
//  3. RequestID       - Generates/propagates correlation ID for tracing.
//  4. SecurityHeaders - Ensures all responses include security headers.
//  5. RequestLogger   - Structured logging (redacted headers).
//  6. CORS            - Browser security headers and preflight handling.
//  7. Metrics         - Request latency and count recording.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
	s.router.Use(s.MetricsMiddleware)
}

// mountV1 registers all v1 endpoints behind authentication and per-client
// rate limiting. Domain handler routes are registered via V1RouteRegistrars,
// which are populated by the application entry point (main.go). This
// indirection avoids import cycles between core and handler packages.
func (s *Server) mountV1(r chi.Router) {
	r.Use(s.AuthMiddleware)
	if s.RateLimiter != nil {
		r.Use(s.RateLimiter.Middleware(s.Logger))
	}

	for _, registrar := range s.V1RouteRegistrars {
		registrar(r)
	}
}

// corsAllowedOrigins returns the CORS allowed origins from configuration.
func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Security.CorsAllowedOrigins) > 0 {
		return s.Config.Security.CorsAllowedOrigins
	}
	return []string{"*"}
}

// routePattern resolves the chi route pattern for the current request, used
// as the endpoint label in metrics so that path parameters do not explode
// label cardinality. Falls back to the raw path when no pattern matched.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
