package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application. Values are read
// once at startup; a malformed value is fatal there and never during
// steady-state scanning.
type AppConfig struct {
	TelegramToken string
	DatabaseURL   string
	LogLevel      string
	Environment   string

	MigrationsPath string
	HealthAddr     string

	// Scan cadences (standard 5-field cron specs, evaluated in UTC)
	CronSpecUpcomingScan   string
	CronSpecReconciliation string
	// UpcomingScanInterval mirrors CronSpecUpcomingScan as a duration; a
	// threshold evaluated more than one interval after its fire instant is
	// flagged late.
	UpcomingScanInterval time.Duration
	// LateGrace bounds how stale a missed threshold may be and still fire.
	LateGrace time.Duration
	// StalePendingAge is how long a PENDING reservation may sit before
	// reconciliation re-dispatches it.
	StalePendingAge time.Duration

	// Dispatch / rate limiting
	DispatchWorkers     int
	DispatchQueueSize   int
	DispatchRetryBudget int
	DispatchBackoffBase time.Duration
	RateLimitMaxCalls   int
	RateLimitWindow     time.Duration

	// Inbound per-user command throttling (spam protection)
	InboundRateMaxCalls int
	InboundRateWindow   time.Duration

	// Input validation caps for the CRUD surface
	MaxTitleLength       int
	MaxDescriptionLength int

	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables and .env file (if
// present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.LogLevel = strings.ToLower(envOr("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(envOr("ENVIRONMENT", "development"))
	cfg.MigrationsPath = envOr("MIGRATIONS_PATH", "migrations")
	cfg.HealthAddr = envOr("HEALTH_ADDR", ":8080")

	cfg.CronSpecUpcomingScan = envOr("CRON_SPEC_UPCOMING_SCAN", "* * * * *")
	cfg.CronSpecReconciliation = envOr("CRON_SPEC_RECONCILIATION", "*/30 * * * *")

	if cfg.UpcomingScanInterval, err = envDuration("UPCOMING_SCAN_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.LateGrace, err = envDuration("LATE_GRACE", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.StalePendingAge, err = envDuration("STALE_PENDING_AGE", 5*time.Minute); err != nil {
		return nil, err
	}

	if cfg.DispatchWorkers, err = envInt("DISPATCH_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.DispatchQueueSize, err = envInt("DISPATCH_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.DispatchRetryBudget, err = envInt("DISPATCH_RETRY_BUDGET", 3); err != nil {
		return nil, err
	}
	if cfg.DispatchBackoffBase, err = envDuration("DISPATCH_BACKOFF_BASE", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateLimitMaxCalls, err = envInt("RATE_LIMIT_MAX_CALLS", 10); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = envDuration("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if cfg.InboundRateMaxCalls, err = envInt("INBOUND_RATE_LIMIT_MAX_CALLS", 5); err != nil {
		return nil, err
	}
	if cfg.InboundRateWindow, err = envDuration("INBOUND_RATE_LIMIT_WINDOW", 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.MaxTitleLength, err = envInt("MAX_TITLE_LENGTH", 200); err != nil {
		return nil, err
	}
	if cfg.MaxDescriptionLength, err = envInt("MAX_DESCRIPTION_LENGTH", 1000); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = envDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.DispatchWorkers < 1 {
		return fmt.Errorf("DISPATCH_WORKERS must be at least 1")
	}
	if c.DispatchRetryBudget < 1 {
		return fmt.Errorf("DISPATCH_RETRY_BUDGET must be at least 1")
	}
	if c.RateLimitMaxCalls < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX_CALLS must be at least 1")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if c.InboundRateMaxCalls < 1 {
		return fmt.Errorf("INBOUND_RATE_LIMIT_MAX_CALLS must be at least 1")
	}
	if c.InboundRateWindow <= 0 {
		return fmt.Errorf("INBOUND_RATE_LIMIT_WINDOW must be positive")
	}
	if c.LateGrace < c.UpcomingScanInterval {
		return fmt.Errorf("LATE_GRACE must not be shorter than UPCOMING_SCAN_INTERVAL")
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
