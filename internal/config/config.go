// Package config defines the configuration for the cropyield API.
// Configuration is loaded once at process start and is immutable thereafter.
//
// Values are resolved in priority order:
//
//	OS Environment (Highest) -> Dotenv File -> struct tag defaults (Lowest)
//
// A missing required value or invalid format fails startup.
package config

import (
	"time"

	"cropyield/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"cropyield-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	// DebugErrors exposes persistence failure causes in error responses.
	DebugErrors bool `envconfig:"DEBUG_ERRORS" default:"false"`

	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Weather       WeatherConfig
	YieldModel    YieldModelConfig
	Outbound      OutboundConfig
	Auth          AuthConfig
	AWS           AWSConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// DatabaseConfig selects and tunes the prediction store.
type DatabaseConfig struct {
	Driver string       `envconfig:"DB_DRIVER" default:"postgres" validate:"oneof=postgres sqlite"`
	URL    SecretString `envconfig:"DATABASE_URL" validate:"required_if=Driver postgres"`
	// SQLitePath is used when Driver is sqlite (local development).
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"cropyield.db"`
	AutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// RedisConfig configures the optional weather cache. Empty Addr disables it.
type RedisConfig struct {
	Addr       string        `envconfig:"REDIS_ADDR"`
	Password   SecretString  `envconfig:"REDIS_PASSWORD"`
	DB         int           `envconfig:"REDIS_DB" default:"0"`
	WeatherTTL time.Duration `envconfig:"WEATHER_CACHE_TTL" default:"10m"`
}

// WeatherConfig configures the OpenWeather current-weather client.
// An empty APIKey is allowed: every lookup then resolves to the fallback observation.
type WeatherConfig struct {
	APIKey  SecretString  `envconfig:"WEATHER_API_KEY"`
	BaseURL string        `envconfig:"WEATHER_API_BASE_URL" default:"https://api.openweathermap.org" validate:"url"`
	Timeout time.Duration `envconfig:"WEATHER_TIMEOUT" default:"10s"`
}

// YieldModelConfig configures the external yield model endpoint.
// An empty URL means every prediction takes the fallback estimator.
type YieldModelConfig struct {
	URL     string        `envconfig:"ML_MODEL_API_URL" validate:"omitempty,url"`
	Timeout time.Duration `envconfig:"MODEL_TIMEOUT" default:"15s"`
}

// OutboundConfig tunes the breaker shared by the weather and model clients.
// A zero threshold never trips, so every call reaches the upstream.
type OutboundConfig struct {
	BreakerThreshold   uint32        `envconfig:"OUTBOUND_BREAKER_THRESHOLD" default:"0"`
	BreakerOpenTimeout time.Duration `envconfig:"OUTBOUND_BREAKER_OPEN_TIMEOUT" default:"30s"`
}

// AuthConfig holds the bearer token verification secret.
type AuthConfig struct {
	JWTSecret SecretString `envconfig:"JWT_SECRET" validate:"required,min=16"`
	JWTIssuer string       `envconfig:"JWT_ISSUER"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"ap-south-1"`
	// PredictionEventsQueueURL enables prediction.created events when set.
	PredictionEventsQueueURL string `envconfig:"PREDICTION_EVENTS_QUEUE_URL" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// SecurityConfig holds CORS settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"CropYield"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not set.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates an environment value could not be parsed into its
	// target type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
