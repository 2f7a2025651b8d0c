package config

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	pkgconfig "github.com/sushilparajuli/note-app-fullstack/pkg/config"
)

// Config holds all configuration for the auth service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"3001"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"noteapp"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"noteapp_secret"`
	PostgresDB   string `env:"AUTH_DB_NAME" envDefault:"auth_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINS" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINS" envDefault:"30"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Tokens. Both secrets are mandatory; the process refuses to start
	// without them so a missing secret can never be silently defaulted.
	AccessSecret  string        `env:"ACCESS_SECRET"`
	RefreshSecret string        `env:"REFRESH_SECRET"`
	AccessTTL     time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"REFRESH_TTL" envDefault:"168h"`

	// Password hashing
	HashCost int `env:"HASH_COST" envDefault:"10"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}

	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}

	if cfg.AccessSecret == "" {
		return nil, fmt.Errorf("ACCESS_SECRET must be set via environment variable")
	}
	if cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("REFRESH_SECRET must be set via environment variable")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("ACCESS_SECRET and REFRESH_SECRET must differ")
	}

	// In non-development environments, require strong secrets.
	if cfg.Environment != "development" {
		if len(cfg.AccessSecret) < 32 {
			return nil, fmt.Errorf("ACCESS_SECRET must be at least 32 characters long, got %d", len(cfg.AccessSecret))
		}
		if len(cfg.RefreshSecret) < 32 {
			return nil, fmt.Errorf("REFRESH_SECRET must be at least 32 characters long, got %d", len(cfg.RefreshSecret))
		}
	}

	if cfg.AccessTTL <= 0 {
		return nil, fmt.Errorf("ACCESS_TTL must be positive, got %s", cfg.AccessTTL)
	}
	if cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("REFRESH_TTL must be positive, got %s", cfg.RefreshTTL)
	}

	if cfg.HashCost < bcrypt.MinCost || cfg.HashCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("HASH_COST must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, cfg.HashCost)
	}

	return cfg, nil
}
