// Package core defines the ports between the job state engine and its collaborators.
package core

import (
	"context"
	"time"

	"github.com/target/jobtracker/internal/domain/model"
)

// LedgerRepository persists the execution ledger of a single (job, env) pair.
// Write has full-rewrite semantics: the given entries replace everything stored.
type LedgerRepository interface {
	// Read returns stored entries, most recent first.
	Read(ctx context.Context) ([]model.ExecutionEntry, error)
	Write(ctx context.Context, entries []model.ExecutionEntry) error
}

// LedgerRepositoryFactory opens the ledger repository backing one job.
type LedgerRepositoryFactory func(job model.JobSpec) (LedgerRepository, error)

// EventSource yields the batch of new events from all configured hosts.
type EventSource interface {
	FetchAll(ctx context.Context) ([]model.Event, error)
}

// StatusReporter renders a final state to the monitoring backend.
type StatusReporter interface {
	Report(ctx context.Context, job model.JobSpec, state model.FinalState) error
}

// AlertNotifier fans unhealthy states out to paging and chat sinks.
type AlertNotifier interface {
	NotifyJobState(ctx context.Context, job model.JobSpec, state model.FinalState)
}

// CacheRepository is the subset of key/value operations used for alert deduplication.
type CacheRepository interface {
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
}

// StateRecorder keeps the most recent final state per job for status queries.
type StateRecorder interface {
	Record(state model.FinalState)
}
