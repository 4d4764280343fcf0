package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv    string
	LogLevel  string
	LogFormat string

	// HTTP
	HTTPAddr           string
	ServerURL          string
	AuthUserHeader     string
	CORSAllowedOrigins []string

	// Database. An empty DatabaseURL selects SQLite at SQLitePath.
	DatabaseURL string
	SQLitePath  string

	// Redis
	RedisURL string

	// RabbitMQ
	RabbitMQURL      string
	RabbitMQExchange string

	// Workflow engine
	WorkflowTriggerURL      string
	WorkflowToken           string
	WorkflowTimeout         time.Duration
	WorkflowInlineDispatch  bool
	WorkflowBreakerFailures int
	WorkflowBreakerTimeout  time.Duration
	ReminderRunTTL          time.Duration

	// Outbox
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxRetries       int
	OutboxRetentionDays    int
	OutboxCleanupSchedule  string
	OutboxStatsSchedule    string
	OutboxProcessorEnabled bool

	// Worker
	WorkerHealthAddr string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		HTTPAddr:           getEnv("HTTP_ADDR", "0.0.0.0:5500"),
		ServerURL:          getEnv("SERVER_URL", "http://localhost:5500"),
		AuthUserHeader:     getEnv("AUTH_USER_HEADER", "X-User-ID"),
		CORSAllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", defaultSQLitePath()),

		RedisURL: getEnv("REDIS_URL", ""),

		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange: getEnv("RABBITMQ_EXCHANGE", "subtrack.events"),

		WorkflowTriggerURL:      getEnv("WORKFLOW_TRIGGER_URL", ""),
		WorkflowToken:           getEnv("WORKFLOW_TOKEN", ""),
		WorkflowTimeout:         getDurationEnv("WORKFLOW_TIMEOUT", 10*time.Second),
		WorkflowInlineDispatch:  getBoolEnv("WORKFLOW_INLINE_DISPATCH", true),
		WorkflowBreakerFailures: getIntEnv("WORKFLOW_BREAKER_FAILURES", 5),
		WorkflowBreakerTimeout:  getDurationEnv("WORKFLOW_BREAKER_TIMEOUT", 30*time.Second),
		ReminderRunTTL:          getDurationEnv("REMINDER_RUN_TTL", 720*time.Hour),

		OutboxPollInterval:     getDurationEnv("OUTBOX_POLL_INTERVAL", time.Second),
		OutboxBatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:       getIntEnv("OUTBOX_MAX_RETRIES", 5),
		OutboxRetentionDays:    getIntEnv("OUTBOX_RETENTION_DAYS", 14),
		OutboxCleanupSchedule:  getEnv("OUTBOX_CLEANUP_SCHEDULE", "@daily"),
		OutboxStatsSchedule:    getEnv("OUTBOX_STATS_SCHEDULE", "@every 30s"),
		OutboxProcessorEnabled: getBoolEnv("OUTBOX_PROCESSOR_ENABLED", true),

		WorkerHealthAddr: getEnv("WORKER_HEALTH_ADDR", "0.0.0.0:8081"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	if c.AuthUserHeader == "" {
		errs = append(errs, errors.New("AUTH_USER_HEADER must not be empty"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", c.OutboxBatchSize))
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("OUTBOX_POLL_INTERVAL must be positive, got %s", c.OutboxPollInterval))
	}
	if c.WorkflowBreakerFailures <= 0 {
		errs = append(errs, fmt.Errorf("WORKFLOW_BREAKER_FAILURES must be positive, got %d", c.WorkflowBreakerFailures))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// UsesSQLite reports whether the local SQLite store is selected.
func (c *Config) UsesSQLite() bool {
	return c.DatabaseURL == "" || strings.HasPrefix(c.DatabaseURL, "sqlite")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".subtrack", "data.db")
	}
	return filepath.Join(home, ".subtrack", "data.db")
}
