// Package config defines the configuration for the Lembra reminder worker.
// Configuration is loaded once at process startup and is immutable
// thereafter, following 12-Factor principles: any missing required value or
// invalid format fails the process immediately.
package config

import (
	"time"

	"lembra/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used for credentials to prevent accidental logging.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the worker.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server    ServerConfig
	Database  DatabaseConfig
	Worker    WorkerConfig
	Provider  ProviderConfig
	Scheduler SchedulerConfig
	Security  SecurityConfig
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// DatabaseConfig holds the store connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"4"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
}

// WorkerConfig holds the trigger-endpoint credential. The secret may be
// rotated without redeploying the worker; the auth guard then falls back to
// probing the store with the presented token.
type WorkerConfig struct {
	Secret SecretString `envconfig:"WORKER_SECRET" validate:"required,min=16"`
}

// ProviderConfig holds outbound WhatsApp provider call settings.
//
// The source system set no timeout on the provider call; the bounded default
// here is a deliberate hardening deviation.
type ProviderConfig struct {
	Timeout   time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"15s"`
	UserAgent string        `envconfig:"PROVIDER_USER_AGENT" default:"Lembra-Worker/1.0"`
}

// SchedulerConfig holds the pipeline's time windows. The defaults reproduce
// the source system's constants; they are configurable for tests and tuning.
type SchedulerConfig struct {
	// ScanWindowDays bounds the appointment query to [today-N, today+N]
	// calendar days. Offsets producing send times outside this window are
	// never found.
	ScanWindowDays int `envconfig:"SCAN_WINDOW_DAYS" default:"7"`

	// MatchTolerance is the symmetric window around "now" within which a
	// computed send time counts as due for queuing.
	MatchTolerance time.Duration `envconfig:"MATCH_TOLERANCE" default:"5m"`

	// DedupWindow is the symmetric window within which two candidate sends
	// for the same (company, appointment, kind, channel) are the same
	// reminder.
	DedupWindow time.Duration `envconfig:"DEDUP_WINDOW" default:"5m"`

	// DispatchTolerance is the forward slack on the due query, absorbing
	// invocation jitter and stored-timestamp precision.
	DispatchTolerance time.Duration `envconfig:"DISPATCH_TOLERANCE" default:"2m"`
}

// SecurityConfig holds CORS settings for the trigger endpoint.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrParsing indicates a failure parsing environment variable values.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrValidation indicates the configuration failed struct validation.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
)
