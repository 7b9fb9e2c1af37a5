// Package main is the entry point for the GradBoard API server.
//
// It loads configuration, connects the Postgres pool and applies pending
// migrations, wires the Stripe client and webhook verifiers, builds the HTTP
// server with the core chassis (middleware, routing, health checks), and
// starts listening for requests.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"gradboard/internal/api/handlers"
	"gradboard/internal/auth"
	"gradboard/internal/billing"
	"gradboard/internal/config"
	"gradboard/internal/core"
	"gradboard/internal/db"
	"gradboard/internal/external"
	"gradboard/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("gradboard API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	// Database: migrate first, then open the long-lived pool.
	if err := db.RunMigrations(cfg.Database); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	pool, err := db.NewPool(ctx, cfg.Database)
	cancel()
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	profileRepo := db.NewProfileRepository(pool)
	positionRepo := db.NewPositionRepository(pool)
	savedRepo := db.NewSavedPositionRepository(pool)
	applicationRepo := db.NewApplicationRepository(pool)

	// External integrations.
	stripeClient := external.NewStripeClient(
		&http.Client{Timeout: 20 * time.Second},
		external.StripeClientConfig{
			SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
			Logger:    logger,
		},
	)
	stripeVerifier := &external.StripeVerifier{}
	identityVerifier := external.NewSvixVerifier()

	planResolver := billing.NewPlanResolver(cfg.Billing)
	collector := metrics.NewCollector(cfg.Service)

	// Build the server chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = collector
	srv.Authenticator = auth.NewTokenAuthenticator(cfg.Identity)
	srv.RateLimiter = core.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	defer srv.RateLimiter.Stop()
	srv.HealthProbes = []core.HealthProbe{db.PoolProbe{Pool: pool}}

	// Domain handlers behind auth.
	profileHandler := handlers.NewProfileHandler(profileRepo, logger)
	billingHandler := handlers.NewBillingHandler(stripeClient, profileRepo, planResolver, cfg, srv.Validator, logger)
	positionHandler := handlers.NewPositionHandler(positionRepo, logger)
	savedHandler := handlers.NewSavedPositionHandler(savedRepo, profileRepo, logger)
	applicationHandler := handlers.NewApplicationHandler(applicationRepo, profileRepo, srv.Validator, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		profileHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
		positionHandler.RegisterRoutes,
		savedHandler.RegisterRoutes,
		applicationHandler.RegisterRoutes,
	)

	// Public surface: webhook receivers and metrics scrape endpoint.
	stripeWebhook := handlers.NewStripeWebhookHandler(
		stripeVerifier,
		profileRepo,
		stripeClient,
		planResolver,
		collector,
		cfg.Billing.StripeWebhookSecret.Unmask(),
		logger,
	)
	identityWebhook := handlers.NewIdentityWebhookHandler(
		identityVerifier,
		profileRepo,
		collector,
		cfg.Identity.WebhookSecret.Unmask(),
		logger,
	)
	srv.PublicRouteRegistrars = append(srv.PublicRouteRegistrars,
		stripeWebhook.RegisterRoutes,
		identityWebhook.RegisterRoutes,
		func(r chi.Router) {
			r.Method(http.MethodGet, "/metrics", collector.Handler())
		},
	)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
