// Package history turns job events into ledger entries and ledger entries into base statuses.
package history

import (
	"context"
	"strings"
	"time"

	"github.com/target/jobtracker/internal/domain/model"
)

// UnknownMarker flags a ledger result that carries no usable status.
const UnknownMarker = "UNKNOWN"

// UnknownResult is the result text of every UNKNOWN statement.
const UnknownResult = UnknownMarker + " - job status unknown"

// LatestOnly as a lookback selects the most recent ledger entry.
const LatestOnly time.Duration = -1

// Ledger is the subset of the execution ledger used by this package.
type Ledger interface {
	Latest(ctx context.Context) *model.ExecutionEntry
	AsOf(ctx context.Context, lookback time.Duration) *model.ExecutionEntry
	Append(ctx context.Context, entry model.ExecutionEntry)
}

// Deriver maps ledger entries to base status statements.
type Deriver struct {
	startedAt time.Time
}

// NewDeriver returns a Deriver that reports startedAt as the since time of UNKNOWN statements.
func NewDeriver(startedAt time.Time) *Deriver {
	return &Deriver{startedAt: startedAt}
}

// Evaluate derives the base status of entry. A nil entry is absent.
func (d *Deriver) Evaluate(entry *model.ExecutionEntry) model.StatusStatement {
	switch {
	case entry == nil || strings.Contains(entry.Result, UnknownMarker):
		return model.StatusStatement{Status: model.StatusUnknown, Since: d.startedAt, Result: UnknownResult}
	case entry.Running():
		return model.StatusStatement{Status: model.StatusRunning, Since: entry.Start, Result: entry.Result}
	default:
		return model.StatusStatement{Status: model.StatusNotRunning, Since: entry.End, Result: entry.Result}
	}
}

// Derive evaluates the entry that was current lookback ago, or the latest entry for a
// negative lookback.
func (d *Deriver) Derive(ctx context.Context, l Ledger, lookback time.Duration) model.StatusStatement {
	if lookback < 0 {
		return d.Evaluate(l.Latest(ctx))
	}
	return d.Evaluate(l.AsOf(ctx, lookback))
}
