package config

import (
	"strings"
	"time"

	apperrors "github.com/target/jobtracker/internal/errors"
)

// ReportingBackend selects how final states reach the monitoring system.
type ReportingBackend string

const (
	// ReportingBackendStatus writes one check_mk local check file per job.
	ReportingBackendStatus ReportingBackend = "status"
	// ReportingBackendEvent sends event console lines for unhealthy states.
	ReportingBackendEvent ReportingBackend = "event"
)

// ReportingConfig contains monitoring backend settings.
type ReportingConfig struct {
	Backend ReportingBackend `env:"TRACKER_BACKEND" envDefault:"status"`

	// ServicePrefix is prepended to every monitoring service name.
	ServicePrefix string `env:"TRACKER_SERVICE_PREFIX" envDefault:"JT_"`

	// StatusDir receives <name>__<env>.state files.
	StatusDir string `env:"TRACKER_STATUS_DIR" envDefault:"/var/lib/jobtracker/status"`

	// EventPipe, when set, is the event console pipe lines are appended to.
	// Otherwise EventCommand is run with EventCommandArgs followed by the line.
	EventPipe        string        `env:"TRACKER_EVENT_PIPE"`
	EventCommand     string        `env:"TRACKER_EVENT_COMMAND"      envDefault:"send-notification"`
	EventCommandArgs []string      `env:"TRACKER_EVENT_COMMAND_ARGS" envDefault:"event,-m"`
	EventTimeout     time.Duration `env:"TRACKER_EVENT_TIMEOUT"      envDefault:"10s"`

	// Hostname overrides the host reported in event lines and alerts.
	Hostname string `env:"TRACKER_HOSTNAME"`
}

// Sanitize applies guardrails to reporting configuration values.
func (c *ReportingConfig) Sanitize() {
	c.Backend = ReportingBackend(strings.ToLower(strings.TrimSpace(string(c.Backend))))
	c.ServicePrefix = strings.ReplaceAll(strings.TrimSpace(c.ServicePrefix), " ", "_")
	c.StatusDir = strings.TrimSpace(c.StatusDir)
	c.EventPipe = strings.TrimSpace(c.EventPipe)
	c.EventCommand = strings.TrimSpace(c.EventCommand)
	c.EventTimeout = clampDuration(c.EventTimeout, 10*time.Second, time.Second, 5*time.Minute)
	c.Hostname = strings.TrimSpace(c.Hostname)
}

// Validate checks the backend and its required settings.
func (c *ReportingConfig) Validate() error {
	switch c.Backend {
	case ReportingBackendStatus:
		if c.StatusDir == "" {
			return apperrors.ValidationField("TRACKER_STATUS_DIR", "required when TRACKER_BACKEND=status")
		}
	case ReportingBackendEvent:
		if c.EventPipe == "" && c.EventCommand == "" {
			return apperrors.ValidationField("TRACKER_EVENT_COMMAND", "an event pipe or command is required when TRACKER_BACKEND=event")
		}
	default:
		return apperrors.ValidationField("TRACKER_BACKEND", "invalid backend "+string(c.Backend)+" (valid options: status, event)")
	}
	return nil
}
