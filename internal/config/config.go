// Package config defines the global configuration structure for GradBoard.
// Configuration is loaded once at process initialization and is immutable
// thereafter. It follows 12-Factor App principles by strictly separating
// code from configuration.
//
// Values are resolved from the OS environment, with an optional .env file for
// local development. Any missing required value or invalid format causes the
// application to fail immediately on startup.
package config

import (
	"time"

	"gradboard/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for GradBoard.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"gradboard-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server    ServerConfig
	Database  DatabaseConfig
	Billing   BillingConfig
	Identity  IdentityConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URLs for checkout redirects (no trailing slash)
	APIExternalURL string `envconfig:"API_EXTERNAL_URL" validate:"required,url"` // e.g., https://api.gradboard.io
	DashboardURL   string `envconfig:"DASHBOARD_URL" validate:"required,url"`    // e.g., https://app.gradboard.io
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`

	// MigrationsDir overrides the embedded migrations when set (tests only).
	MigrationsDir string `envconfig:"DB_MIGRATIONS_DIR"`
}

// BillingConfig holds Stripe payment integration credentials and the
// price-id -> tier mapping.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`

	// Price IDs for the paid tiers. The webhook handler derives the tier
	// from these, not from hard-coded amounts.
	PriceIDPro     string `envconfig:"STRIPE_PRICE_ID_PRO" validate:"required"`
	PriceIDPremium string `envconfig:"STRIPE_PRICE_ID_PREMIUM" validate:"required"`
}

// IdentityConfig holds identity-provider integration secrets.
type IdentityConfig struct {
	// WebhookSecret verifies inbound identity lifecycle events
	// (svix-style signing secret, "whsec_..." prefix).
	WebhookSecret SecretString `envconfig:"IDENTITY_WEBHOOK_SECRET" validate:"required"`

	// SessionSecret verifies identity-provider session tokens presented
	// by clients as Bearer tokens.
	SessionSecret SecretString `envconfig:"IDENTITY_SESSION_SECRET" validate:"required,min=32"`

	// Issuer, when set, is enforced against the token "iss" claim.
	Issuer string `envconfig:"IDENTITY_ISSUER"`
}

// SecurityConfig holds CORS and related settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// RateLimitConfig tunes the per-client request rate limiter.
type RateLimitConfig struct {
	RequestsPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	Burst             int `envconfig:"RATE_LIMIT_BURST" default:"60"`
}
