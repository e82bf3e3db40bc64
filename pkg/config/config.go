package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the warehouse sync service.
// Values can come from config.yaml or environment variables; environment
// variables always win. Secrets (the webhook URL embeds its token, the
// database URL its password) must only come from the environment.
type Config struct {
	// Server configuration
	Host    string `yaml:"host" env:"HOST" env-default:"0.0.0.0"`
	Port    string `yaml:"port" env:"PORT" env-default:"8080"`
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// DatabaseURL is the warehouse DSN. postgres://... or mysql DSN.
	DatabaseURL string `yaml:"-" env:"DATABASE_URL"`

	// DBDialect selects the warehouse dialect: "postgresql" or "mysql".
	// If empty it is derived from DatabaseURL.
	DBDialect string `yaml:"db_dialect" env:"DB_DIALECT" env-default:""`

	// BitrixWebhookURL is the per-tenant inbound webhook base,
	// e.g. https://example.bitrix24.ru/rest/1/abc123/
	BitrixWebhookURL string `yaml:"-" env:"BITRIX_WEBHOOK_URL"`

	Sync SyncConfig `yaml:"sync"`

	// ShutdownGraceSeconds bounds how long in-flight webhook tasks are
	// awaited during shutdown.
	ShutdownGraceSeconds int `yaml:"shutdown_grace_seconds" env:"SHUTDOWN_GRACE_SECONDS" env-default:"15"`
}

// SyncConfig holds sync pipeline defaults.
type SyncConfig struct {
	// BatchSize is the page size requested from Bitrix list endpoints.
	BatchSize int `yaml:"batch_size" env:"SYNC_BATCH_SIZE" env-default:"50"`

	// DefaultIntervalMinutes seeds sync_config rows for newly discovered
	// entity types. Valid range is 5..1440.
	DefaultIntervalMinutes int `yaml:"default_interval_minutes" env:"SYNC_DEFAULT_INTERVAL_MINUTES" env-default:"30"`
}

// Load reads configuration from config.yaml (when present) with environment
// variable overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.BitrixWebhookURL == "" {
		return fmt.Errorf("BITRIX_WEBHOOK_URL is required")
	}
	if c.DBDialect == "" {
		c.DBDialect = deriveDialect(c.DatabaseURL)
	}
	switch c.DBDialect {
	case "postgresql", "mysql":
	default:
		return fmt.Errorf("unsupported DB_DIALECT %q (want postgresql or mysql)", c.DBDialect)
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("SYNC_BATCH_SIZE must be positive")
	}
	if c.Sync.DefaultIntervalMinutes < 5 || c.Sync.DefaultIntervalMinutes > 1440 {
		return fmt.Errorf("SYNC_DEFAULT_INTERVAL_MINUTES must be in 5..1440")
	}
	return nil
}

// deriveDialect guesses the dialect from the DSN scheme. MySQL DSNs have no
// scheme, so anything that is not postgres-shaped falls back to mysql.
func deriveDialect(dsn string) string {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=") {
		return "postgresql"
	}
	if strings.HasPrefix(lower, "mysql://") || strings.Contains(lower, "@tcp(") {
		return "mysql"
	}
	return "postgresql"
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}
