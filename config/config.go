package config

import (
	"errors"
	"strings"
	"time"

	apperrors "github.com/target/jobtracker/internal/errors"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - tracker.go: poll loop, ledger and job catalog
//   - reporting.go: monitoring backend (status files or events)
//   - sources.go: source hosts transport and record mapping
//   - database.go: PostgreSQL and Redis
//   - http.go: status API listener
//   - observability.go: logging, metrics and alert fan-out
type AppConfig struct {
	Tracker   TrackerConfig
	Ledger    LedgerConfig
	Reporting ReportingConfig
	Sources   SourceConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	HTTP HTTPConfig

	Logging       LoggingConfig
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Tracker.Sanitize()
	c.Ledger.Sanitize()
	c.Reporting.Sanitize()
	c.Sources.Sanitize()
	c.HTTP.Sanitize(c.Tracker.Interval)
	c.Logging.Sanitize()
	c.Observability.Sanitize()
}

// Validate reports every setting that prevents startup. Call it after Sanitize.
func (c *AppConfig) Validate() error {
	errs := []error{
		c.Tracker.Validate(),
		c.Ledger.Validate(),
		c.Reporting.Validate(),
		c.Sources.Validate(),
	}
	if c.Sources.Kind == SourceKindRedis && strings.TrimSpace(c.Redis.URI) == "" &&
		!c.Redis.UseSentinel && !c.Redis.UseCluster {
		errs = append(errs, apperrors.ValidationField("REDIS_URI", "required when SOURCE_KIND=redis"))
	}
	return errors.Join(errs...)
}

// UsesPostgres reports whether a database connection is needed.
func (c *AppConfig) UsesPostgres() bool {
	return c.Ledger.Backend == LedgerBackendPostgres
}

// UsesRedis reports whether a Redis connection is needed.
func (c *AppConfig) UsesRedis() bool {
	return c.Sources.Kind == SourceKindRedis || c.Observability.Notifications.DedupeBackend == DedupeBackendRedis
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	// File, when set, receives log lines instead of stdout.
	File string `env:"LOG_FILE"`
}

// Sanitize normalises the log level, falling back to info.
func (c *LoggingConfig) Sanitize() {
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	switch c.Level {
	case "debug", "info", "warn", "error":
	case "warning":
		c.Level = "warn"
	default:
		c.Level = "info"
	}
	c.File = strings.TrimSpace(c.File)
}

// clampDuration keeps d within [lo, hi], using def when d is unset.
func clampDuration(d, def, lo, hi time.Duration) time.Duration {
	switch {
	case d <= 0:
		return def
	case d < lo:
		return lo
	case hi > 0 && d > hi:
		return hi
	default:
		return d
	}
}
