package model

import (
	"time"

	"github.com/google/uuid"
)

// Status is the health of a tracked job.
type Status int

const (
	StatusUnknown Status = iota
	StatusRunning
	StatusNotRunning
	StatusError
	StatusTimeout
	StatusDelayed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "RUNNING"
	case StatusNotRunning:
		return "NOT_RUNNING"
	case StatusError:
		return "ERROR"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusDelayed:
		return "DELAYED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status name in JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Healthy reports whether the status maps to an OK monitoring state.
func (s Status) Healthy() bool {
	return s == StatusRunning || s == StatusNotRunning
}

// Critical reports whether the status requires operator attention.
func (s Status) Critical() bool {
	return s == StatusError || s == StatusTimeout || s == StatusDelayed
}

// StatusStatement is the base status derived from a single ledger entry.
type StatusStatement struct {
	Status Status
	Since  time.Time
	Result string
}

// FinalState is the reported outcome of one rule engine evaluation.
type FinalState struct {
	Job         string    `json:"job"`
	Env         string    `json:"env"`
	Status      Status    `json:"status"`
	Since       time.Time `json:"since"`
	Message     string    `json:"message"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// CycleState carries per-cycle engine values into the rule engine.
type CycleState struct {
	ID        string
	StartedAt time.Time
	// LastDuration is the wall time of the previous full cycle. Timeout and delay tolerances
	// are widened by it so polling latency does not raise alarms on its own.
	LastDuration time.Duration
}

// NewCycleState starts a cycle with a fresh correlation id.
func NewCycleState(startedAt time.Time, lastDuration time.Duration) CycleState {
	return CycleState{
		ID:           uuid.NewString(),
		StartedAt:    startedAt,
		LastDuration: lastDuration,
	}
}
