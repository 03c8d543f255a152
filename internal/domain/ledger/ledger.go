// Package ledger keeps the bounded, time-ordered execution history of a tracked job.
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/target/jobtracker/internal/core"
	"github.com/target/jobtracker/internal/domain/model"
	obserrors "github.com/target/jobtracker/internal/observability/errors"
	"github.com/target/jobtracker/internal/observability/statsd"
)

// DefaultRetention is the number of entries kept when no retention is configured.
const DefaultRetention = 100

// idBytes yields 16 hex characters.
const idBytes = 8

// Clock provides the reference time for historical lookups.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options groups dependencies for a Ledger.
type Options struct {
	Repo      core.LedgerRepository // Required: persistence backend
	Key       string                // Optional: job key used in logs and metric tags
	Retention int                   // Optional: defaults to DefaultRetention
	Clock     Clock                 // Optional: defaults to system time
	Logger    *slog.Logger          // Optional: structured logger
	Metrics   statsd.Sink           // Optional: metrics sink
}

// Ledger is an append-only, bounded record of execution intervals ordered by interval end,
// most recent first. Entries are never mutated once written.
//
// Persistence is best effort: a failed write is logged and the appended entry stays visible
// in memory for the lifetime of the process.
type Ledger struct {
	repo      core.LedgerRepository
	key       string
	retention int
	clock     Clock
	logger    *slog.Logger
	metrics   statsd.Sink

	mu      sync.Mutex
	entries []model.ExecutionEntry
	loaded  bool
}

// New constructs a Ledger.
func New(opts Options) (*Ledger, error) {
	if opts.Repo == nil {
		return nil, errors.New("ledger repository is required")
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Ledger{
		repo:      opts.Repo,
		key:       opts.Key,
		retention: retention,
		clock:     clock,
		logger:    logger.With("component", "ledger", "job_key", opts.Key),
		metrics:   opts.Metrics,
	}, nil
}

// Append inserts entry, keeps the ledger ordered by interval end and bounded by the
// retention count, then persists the full ledger.
func (l *Ledger) Append(ctx context.Context, entry model.ExecutionEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, _ := l.loadLocked(ctx)
	next := make([]model.ExecutionEntry, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, entry)
	next = l.normalize(next)

	l.entries = next
	l.loaded = true

	if err := l.repo.Write(ctx, cloneEntries(next)); err != nil {
		l.logger.WarnContext(ctx, "unable to persist ledger", "error", err)
		l.count("ledger.write_error", obserrors.Classify(err))
	}
}

// Latest returns the most recent entry, or nil when the ledger is empty or unreadable.
func (l *Ledger) Latest(ctx context.Context) *model.ExecutionEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, _ := l.loadLocked(ctx)
	if len(entries) == 0 {
		return nil
	}
	latest := entries[0]
	return &latest
}

// AsOf returns the first entry whose interval ended strictly before now minus lookback.
// A negative lookback is equivalent to Latest.
func (l *Ledger) AsOf(ctx context.Context, lookback time.Duration) *model.ExecutionEntry {
	if lookback < 0 {
		return l.Latest(ctx)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, _ := l.loadLocked(ctx)
	target := l.clock.Now().Add(-lookback)
	for _, e := range entries {
		if e.End.Before(target) {
			found := e
			return &found
		}
	}
	return nil
}

// Entries returns a copy of the ledger, most recent first.
func (l *Ledger) Entries(ctx context.Context) ([]model.ExecutionEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	return cloneEntries(entries), nil
}

// NewID returns a random 16 character hex identifier.
func NewID() string {
	var buf [idBytes]byte
	_, _ = rand.Read(buf[:]) // never returns an error since Go 1.24
	return hex.EncodeToString(buf[:])
}

// loadLocked returns the in-memory entries, reading them from the repository on first use.
// A failed read is retried on the next call so a corrupt store reports as empty until it
// is rewritten.
func (l *Ledger) loadLocked(ctx context.Context) ([]model.ExecutionEntry, error) {
	if l.loaded {
		return l.entries, nil
	}
	entries, err := l.repo.Read(ctx)
	if err != nil {
		l.logger.WarnContext(ctx, "unable to read ledger", "error", err)
		l.count("ledger.read_error", obserrors.Classify(err))
		return nil, err
	}
	l.entries = l.normalize(entries)
	l.loaded = true
	return l.entries, nil
}

// normalize sorts by interval end, descending, and truncates to the retention count.
// The sort is stable so entries sharing an end time keep their insertion order.
func (l *Ledger) normalize(entries []model.ExecutionEntry) []model.ExecutionEntry {
	slices.SortStableFunc(entries, func(a, b model.ExecutionEntry) int {
		return b.End.Compare(a.End)
	})
	if len(entries) > l.retention {
		entries = entries[:l.retention]
	}
	return entries
}

func (l *Ledger) count(name, errorClass string) {
	if l.metrics == nil {
		return
	}
	tags := map[string]string{"job_key": l.key}
	if errorClass != "" {
		tags["error_class"] = errorClass
	}
	l.metrics.Count(name, 1, tags)
}

func cloneEntries(in []model.ExecutionEntry) []model.ExecutionEntry {
	if in == nil {
		return nil
	}
	out := make([]model.ExecutionEntry, len(in))
	copy(out, in)
	return out
}
