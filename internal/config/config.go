// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"2"`

	// Cache (Redis)
	RedisURL          string `env:"REDIS_URL,required"`
	RedisPoolSize     int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
	RedisMinIdleConns int    `env:"REDIS_MIN_IDLE_CONNS" envDefault:"4"`

	// Public base URL of the ingestion endpoint (e.g., https://pagedrop.io)
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting for the hit endpoint (per hashed IP)
	RateLimitHitEnabled bool `env:"RATE_LIMIT_HIT_ENABLED" envDefault:"true"`
	RateLimitHitRPS     int  `env:"RATE_LIMIT_HIT_RPS" envDefault:"20"`
	RateLimitHitBurst   int  `env:"RATE_LIMIT_HIT_BURST" envDefault:"40"`

	// CORS configuration for the read API.
	// Comma-separated list of allowed origins (e.g., "https://app.pagedrop.io,https://*.pagedrop.io")
	// The hit endpoint always answers with permissive CORS headers.
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 64KB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"65536"`

	// Analytics
	IPHashSalt             string        `env:"IP_HASH_SALT" envDefault:"pagedrop"`
	SessionWindow          time.Duration `env:"SESSION_WINDOW" envDefault:"30m"`
	SiteCacheTTL           time.Duration `env:"SITE_CACHE_TTL" envDefault:"5m"`
	AnalyticsWorkerEnabled bool          `env:"ANALYTICS_WORKER_ENABLED" envDefault:"true"`
	CounterFlushInterval   time.Duration `env:"COUNTER_FLUSH_INTERVAL" envDefault:"30s"`

	// Record worker tuning
	WorkerBatchSize    int           `env:"ANALYTICS_BATCH_SIZE" envDefault:"500"`
	WorkerBlockTimeout time.Duration `env:"ANALYTICS_BLOCK_TIMEOUT" envDefault:"5s"`
	WorkerMaxRetries   int           `env:"ANALYTICS_MAX_RETRIES" envDefault:"3"`
	WorkerClaimIdle    time.Duration `env:"ANALYTICS_CLAIM_IDLE" envDefault:"30s"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	if c.SessionWindow < time.Minute {
		return fmt.Errorf("SESSION_WINDOW must be at least 1m, got %s", c.SessionWindow)
	}
	if c.AnalyticsWorkerEnabled && c.WorkerBatchSize <= 0 {
		return fmt.Errorf("ANALYTICS_BATCH_SIZE must be positive, got %d", c.WorkerBatchSize)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be positive, got %d", c.MaxRequestBodySize)
	}
	if c.RateLimitHitEnabled && (c.RateLimitHitRPS <= 0 || c.RateLimitHitBurst <= 0) {
		return fmt.Errorf("RATE_LIMIT_HIT_RPS and RATE_LIMIT_HIT_BURST must be positive when rate limiting is enabled")
	}
	if c.IsProduction() && c.IPHashSalt == "pagedrop" {
		return fmt.Errorf("IP_HASH_SALT must be set in production")
	}
	return nil
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
