package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ErrMissingAPIKey is returned when no CFBD bearer token is configured.
var ErrMissingAPIKey = errors.New("CFB_API_KEY is required")

// Config holds all application configuration
type Config struct {
	// CollegeFootballData API
	CFBAPIKey  string        `envconfig:"CFB_API_KEY"`
	CFBBaseURL string        `envconfig:"CFB_BASE_URL" default:"https://apinext.collegefootballdata.com"`
	CFBTimeout time.Duration `envconfig:"CFB_TIMEOUT" default:"30s"`

	// Upstream resilience. One attempt and a disabled breaker means fail fast.
	RetryMaxAttempts     int           `envconfig:"CFB_RETRY_MAX_ATTEMPTS" default:"1"`
	RetryInitialInterval time.Duration `envconfig:"CFB_RETRY_INITIAL_INTERVAL" default:"500ms"`
	RetryMaxInterval     time.Duration `envconfig:"CFB_RETRY_MAX_INTERVAL" default:"10s"`
	BreakerFailures      int           `envconfig:"CFB_BREAKER_FAILURES" default:"0"`
	BreakerTimeout       time.Duration `envconfig:"CFB_BREAKER_TIMEOUT" default:"60s"`

	// API Rate Limiting
	APIRateLimit  int `envconfig:"API_RATE_LIMIT" default:"10"`
	APIBurstLimit int `envconfig:"API_BURST_LIMIT" default:"5"`

	// Database
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"cfb_playoff"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"cfb_user"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" required:"true"`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`

	// Redis
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Caching TTL (in seconds)
	CacheTTLStandings int `envconfig:"CACHE_TTL_STANDINGS" default:"300"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Ingestion Service
	IngestionPort int `envconfig:"INGESTION_PORT" default:"8080"`

	// Webhook
	WebhookEnabled bool   `envconfig:"WEBHOOK_ENABLED" default:"true"`
	WebhookSecret  string `envconfig:"WEBHOOK_SECRET" default:"change_me"`

	// Scheduler
	EnableScheduler    bool          `envconfig:"ENABLE_SCHEDULER" default:"true"`
	InitialSyncEnabled bool          `envconfig:"INITIAL_SYNC_ENABLED" default:"false"`
	NightlyRefreshCron string        `envconfig:"NIGHTLY_REFRESH_CRON" default:"0 2 * * *"`
	WeekPollInterval   time.Duration `envconfig:"WEEK_POLL_INTERVAL" default:"15m"`

	// Sync pipeline
	SyncUpsertWorkers int    `envconfig:"SYNC_UPSERT_WORKERS" default:"1"`
	LedgerMaxWeek     int    `envconfig:"LEDGER_MAX_WEEK" default:"15"`
	TiePolicy         string `envconfig:"TIE_POLICY" default:"no_decision"`

	// Monitoring
	EnableMetrics bool `envconfig:"ENABLE_METRICS" default:"true"`
	MetricsPort   int  `envconfig:"METRICS_PORT" default:"9090"`
}

// Load loads configuration from environment variables
// It first attempts to load from .env file if in development mode
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.CFBAPIKey == "" {
		return ErrMissingAPIKey
	}

	if c.DatabasePassword == "" {
		return fmt.Errorf("DATABASE_PASSWORD is required")
	}

	if c.WebhookEnabled && c.WebhookSecret == "change_me" && c.IsProduction() {
		return fmt.Errorf("WEBHOOK_SECRET must be changed in production")
	}

	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("CFB_RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.RetryMaxAttempts)
	}

	if c.SyncUpsertWorkers < 1 {
		return fmt.Errorf("SYNC_UPSERT_WORKERS must be at least 1, got %d", c.SyncUpsertWorkers)
	}

	if c.LedgerMaxWeek < 0 {
		return fmt.Errorf("LEDGER_MAX_WEEK must not be negative, got %d", c.LedgerMaxWeek)
	}

	switch c.TiePolicy {
	case "no_decision", "reject":
	default:
		return fmt.Errorf("TIE_POLICY must be no_decision or reject, got %q", c.TiePolicy)
	}

	return nil
}

// CacheTTL returns the standings cache lifetime
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLStandings) * time.Second
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MustLoad loads configuration or exits on error
// Use this in main() where we want to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// PredictorConfig is the configuration of the local prediction CLI, which
// never talks to the upstream API or the database.
type PredictorConfig struct {
	PredictionsPath string `envconfig:"PREDICTIONS_PATH" default:"predictions.db"`
	AppEnv          string `envconfig:"APP_ENV" default:"development"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadPredictor loads the prediction CLI configuration
func LoadPredictor() (*PredictorConfig, error) {
	_ = godotenv.Load()

	var cfg PredictorConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	return &cfg, nil
}
