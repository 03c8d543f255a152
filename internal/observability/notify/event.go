// Package notify defines the alert payload shared by the paging and chat sinks.
package notify

import (
	"context"
	"time"

	"github.com/target/jobtracker/internal/domain/model"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// SeverityFor maps a job status to the alert severity. Unknown jobs only warn.
func SeverityFor(s model.Status) string {
	if s.Critical() {
		return SeverityCritical
	}
	return SeverityWarning
}

// JobAlertPayload captures the canonical data we emit for an unhealthy job.
type JobAlertPayload struct {
	Job        string
	Env        string
	Status     string
	Message    string
	Since      time.Time
	Severity   string
	Host       string
	CycleID    string
	OccurredAt time.Time
	Metadata   map[string]string
}

// JobKey returns the per-job identifier used for deduplication.
func (p JobAlertPayload) JobKey() string {
	return model.JobKey(p.Job, p.Env)
}

// Sink describes a destination capable of consuming job alerts.
type Sink interface {
	SendJobAlert(ctx context.Context, payload JobAlertPayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload JobAlertPayload) error

// SendJobAlert implements the Sink interface.
func (f SinkFunc) SendJobAlert(ctx context.Context, payload JobAlertPayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
