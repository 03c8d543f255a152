package config

import (
	"errors"
	"strings"
	"time"

	"github.com/target/jobtracker/internal/domain/model"
	"github.com/target/jobtracker/internal/domain/rules"
	apperrors "github.com/target/jobtracker/internal/errors"
)

// TrackerConfig contains the poll loop and rule engine settings shared by every job.
type TrackerConfig struct {
	// JobsFile is the YAML catalog of tracked jobs and source hosts.
	JobsFile string `env:"JOBS_CONFIG" envDefault:"/etc/jobtracker/jobs.yaml"`

	// Interval is the sleep between two poll cycles.
	Interval time.Duration `env:"TRACKER_INTERVAL" envDefault:"60s"`

	// HistoryEntries is the ledger retention count per job.
	HistoryEntries int `env:"TRACKER_HISTORY_ENTRIES" envDefault:"100"`

	// SnoozeFrom and SnoozeUntil ("hh:mm") suppress DELAYED for cyclic jobs.
	// Leave both empty to disable.
	SnoozeFrom  string `env:"TRACKER_SNOOZE_FROM"`
	SnoozeUntil string `env:"TRACKER_SNOOZE_UNTIL"`

	// Timezone is an IANA zone name used for time-of-day rules and messages.
	Timezone string `env:"TRACKER_TIMEZONE" envDefault:"Local"`

	// Event kinds that open, fail and close an execution. Jobs may override them in the catalog.
	StartKeyword string `env:"TRACKER_START_KEYWORD" envDefault:"START"`
	ErrorKeyword string `env:"TRACKER_ERROR_KEYWORD" envDefault:"ERROR"`
	EndKeyword   string `env:"TRACKER_END_KEYWORD"   envDefault:"END"`
}

// Sanitize applies guardrails to tracker configuration values.
func (c *TrackerConfig) Sanitize() {
	c.JobsFile = strings.TrimSpace(c.JobsFile)
	c.Interval = clampDuration(c.Interval, 60*time.Second, time.Second, 0)
	if c.HistoryEntries < 1 {
		c.HistoryEntries = 1
	}
	c.Timezone = strings.TrimSpace(c.Timezone)
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	c.StartKeyword = strings.TrimSpace(c.StartKeyword)
	c.ErrorKeyword = strings.TrimSpace(c.ErrorKeyword)
	c.EndKeyword = strings.TrimSpace(c.EndKeyword)
}

// Validate checks values Sanitize cannot repair.
func (c *TrackerConfig) Validate() error {
	var errs []error
	if c.JobsFile == "" {
		errs = append(errs, apperrors.ValidationField("JOBS_CONFIG", "job catalog path is required"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, apperrors.ValidationField("TRACKER_TIMEZONE", err.Error()))
	}
	if _, err := c.Snooze(); err != nil {
		errs = append(errs, apperrors.ValidationField("TRACKER_SNOOZE_FROM", err.Error()))
	}
	if err := c.Keywords().Validate(); err != nil {
		errs = append(errs, apperrors.ValidationField("TRACKER_START_KEYWORD", err.Error()))
	}
	return errors.Join(errs...)
}

// Location resolves Timezone.
func (c *TrackerConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Snooze builds the cyclic delay suppression window.
func (c *TrackerConfig) Snooze() (rules.SnoozeWindow, error) {
	return rules.NewSnoozeWindow(c.SnoozeFrom, c.SnoozeUntil)
}

// Keywords returns the default event keywords.
func (c *TrackerConfig) Keywords() model.Keywords {
	return model.Keywords{Start: c.StartKeyword, Error: c.ErrorKeyword, End: c.EndKeyword}
}

// LedgerBackend selects where execution ledgers are persisted.
type LedgerBackend string

const (
	// LedgerBackendFile stores one JSON-lines file per job in RunDir.
	LedgerBackendFile LedgerBackend = "file"
	// LedgerBackendPostgres stores ledgers in the job_ledger table.
	LedgerBackendPostgres LedgerBackend = "postgres"
)

// LedgerConfig contains ledger persistence settings.
type LedgerConfig struct {
	Backend LedgerBackend `env:"LEDGER_BACKEND"  envDefault:"file"`
	RunDir  string        `env:"TRACKER_RUN_DIR" envDefault:"/var/run/jobtracker"`
}

// Sanitize normalises the backend name.
func (c *LedgerConfig) Sanitize() {
	c.Backend = LedgerBackend(strings.ToLower(strings.TrimSpace(string(c.Backend))))
	c.RunDir = strings.TrimSpace(c.RunDir)
}

// Validate checks the backend and its required settings.
func (c *LedgerConfig) Validate() error {
	switch c.Backend {
	case LedgerBackendFile:
		if c.RunDir == "" {
			return apperrors.ValidationField("TRACKER_RUN_DIR", "required when LEDGER_BACKEND=file")
		}
		return nil
	case LedgerBackendPostgres:
		return nil
	default:
		return apperrors.ValidationField("LEDGER_BACKEND", "invalid backend "+string(c.Backend)+" (valid options: file, postgres)")
	}
}
