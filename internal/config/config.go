// Package config loads the engine's runtime configuration from the
// environment: one struct, one envconfig.Process call, one Validate pass.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds everything the engine's ambient stack needs to start.
type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"test-engine"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	HTTPPort int `envconfig:"HTTP_PORT" default:"8090"`

	MongoURI    string `envconfig:"MONGO_URI" required:"true"`
	MongoDBName string `envconfig:"MONGO_DB_NAME" required:"true"`

	SnowflakeDSN string `envconfig:"SNOWFLAKE_DSN" required:"true"`

	RedisURL string `envconfig:"REDIS_URL" default:"redis://localhost:6379"`

	AccountServiceURL string `envconfig:"ACCOUNT_SERVICE_URL" required:"true"`
	WebhookURL        string `envconfig:"WEBHOOK_URL"`

	CognitoRegion       string `envconfig:"COGNITO_REGION" required:"true"`
	CognitoUserPoolID   string `envconfig:"COGNITO_USER_POOL_ID" required:"true"`

	AlertBaseURL string `envconfig:"ALERT_BASE_URL" required:"true"`

	// WarmupMaxSamples and WarmupMaxDays implement the warm-up gate's two
	// thresholds; they default to 30 samples and 7 days but are
	// configurable so a staging environment can warm up faster.
	WarmupMaxSamples int           `envconfig:"WARMUP_MAX_SAMPLES" default:"30"`
	WarmupMaxDays    int           `envconfig:"WARMUP_MAX_DAYS" default:"7"`
	AlertSentGap     time.Duration `envconfig:"ALERT_SENT_GAP" default:"24h"`

	// HistoryCacheTTL controls how long the Redis-backed history cache
	// (internal/cache) keeps a test suite's quantitative history page; the
	// executor also drops the page as soon as a run records a new history
	// point.
	HistoryCacheTTL time.Duration `envconfig:"HISTORY_CACHE_TTL" default:"60s"`
}

// Load reads and validates configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad loads configuration and panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks invariants envconfig's struct tags cannot express.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.WarmupMaxSamples <= 0 {
		return fmt.Errorf("WARMUP_MAX_SAMPLES must be positive, got %d", c.WarmupMaxSamples)
	}
	if c.WarmupMaxDays <= 0 {
		return fmt.Errorf("WARMUP_MAX_DAYS must be positive, got %d", c.WarmupMaxDays)
	}
	return nil
}
