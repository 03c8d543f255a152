package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ScheduleKind describes how a tracked job is expected to run.
type ScheduleKind string

const (
	// ScheduleCyclic jobs recur without a fixed time-of-day and are checked by elapsed interval.
	ScheduleCyclic ScheduleKind = "cyclic"
	// ScheduleDaily jobs are expected once per day at a configured time-of-day.
	ScheduleDaily ScheduleKind = "daily"
)

// Valid reports whether k is a known schedule kind.
func (k ScheduleKind) Valid() bool {
	switch k {
	case ScheduleCyclic, ScheduleDaily:
		return true
	default:
		return false
	}
}

// Keywords are the event kinds that open, fail, and close an execution interval.
type Keywords struct {
	Start string
	Error string
	End   string
}

// Validate ensures all keywords are present.
func (k Keywords) Validate() error {
	if strings.TrimSpace(k.Start) == "" || strings.TrimSpace(k.Error) == "" || strings.TrimSpace(k.End) == "" {
		return errors.New("start, error and end keywords are required")
	}
	return nil
}

// JobSpec is the static description of a tracked job. It is immutable after load.
type JobSpec struct {
	Name     string
	Env      string
	Schedule ScheduleKind

	// Timeout is the maximum runtime of a single execution.
	Timeout time.Duration
	// CyclicInterval is the expected gap between two runs (cyclic jobs only).
	CyclicInterval time.Duration
	// DailyStart is the offset from local midnight at which a daily job starts.
	DailyStart time.Duration
	// DailyMaxDelay is how late a daily job may start before it is reported as delayed.
	DailyMaxDelay time.Duration
	// AlertThreshold is the number of missed cycles tolerated before alerting.
	AlertThreshold int

	Keywords Keywords
}

// JobKey joins a job name and environment into the identifier used for per-job files.
func JobKey(name, env string) string {
	return name + "__" + env
}

// Key returns the identifier used for per-job files and cache keys.
func (j JobSpec) Key() string {
	return JobKey(j.Name, j.Env)
}

// Matches reports whether an event belongs to this job.
func (j JobSpec) Matches(e Event) bool {
	return e.Job == j.Name && e.Env == j.Env
}

// Validate checks the invariants a job needs before the rule engine can use it.
func (j JobSpec) Validate() error {
	if strings.TrimSpace(j.Name) == "" {
		return errors.New("job name is required")
	}
	if strings.TrimSpace(j.Env) == "" {
		return fmt.Errorf("job %s: env is required", j.Name)
	}
	if !j.Schedule.Valid() {
		return fmt.Errorf("job %s: invalid schedule %q (valid options: cyclic, daily)", j.Name, j.Schedule)
	}
	if j.Timeout <= 0 {
		return fmt.Errorf("job %s: timeout must be positive", j.Name)
	}
	if j.Schedule == ScheduleCyclic && j.CyclicInterval <= 0 {
		return fmt.Errorf("job %s: cyclic interval must be positive", j.Name)
	}
	if j.Schedule == ScheduleDaily && (j.DailyStart < 0 || j.DailyMaxDelay < 0) {
		return fmt.Errorf("job %s: daily start and max delay must not be negative", j.Name)
	}
	if j.AlertThreshold < 1 {
		return fmt.Errorf("job %s: alert threshold must be at least 1", j.Name)
	}
	if err := j.Keywords.Validate(); err != nil {
		return fmt.Errorf("job %s: %w", j.Name, err)
	}
	return nil
}
