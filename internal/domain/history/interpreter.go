package history

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/target/jobtracker/internal/domain/ledger"
	"github.com/target/jobtracker/internal/domain/model"
	"github.com/target/jobtracker/internal/observability/statsd"
)

// InterpreterOptions groups dependencies for an Interpreter.
type InterpreterOptions struct {
	Job     model.JobSpec // Required
	Ledger  Ledger        // Required
	Deriver *Deriver      // Required
	Logger  *slog.Logger  // Optional
	Metrics statsd.Sink   // Optional
	// NewID generates ids for events that arrive without one. Defaults to ledger.NewID.
	NewID func() string
}

// Interpreter writes the events of one job into its ledger.
type Interpreter struct {
	job     model.JobSpec
	ledger  Ledger
	deriver *Deriver
	logger  *slog.Logger
	metrics statsd.Sink
	newID   func() string
}

// NewInterpreter constructs an Interpreter.
func NewInterpreter(opts InterpreterOptions) (*Interpreter, error) {
	if opts.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if opts.Deriver == nil {
		return nil, errors.New("deriver is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := opts.NewID
	if newID == nil {
		newID = ledger.NewID
	}
	return &Interpreter{
		job:     opts.Job,
		ledger:  opts.Ledger,
		deriver: opts.Deriver,
		logger:  logger.With("component", "interpreter", "job", opts.Job.Name, "env", opts.Job.Env),
		metrics: opts.Metrics,
		newID:   newID,
	}, nil
}

// OnEvents appends one ledger entry per event that belongs to the job, in timestamp order.
// It returns the number of entries appended.
func (i *Interpreter) OnEvents(ctx context.Context, events []model.Event) int {
	matching := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if i.job.Matches(ev) {
			matching = append(matching, ev)
		}
	}
	slices.SortStableFunc(matching, func(a, b model.Event) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	for _, ev := range matching {
		i.apply(ctx, ev)
	}
	return len(matching)
}

func (i *Interpreter) apply(ctx context.Context, ev model.Event) {
	id := ev.ID
	if id == "" {
		id = i.newID()
	}

	last := i.ledger.Latest(ctx)

	start := ev.Timestamp
	switch {
	case ev.Kind == i.job.Keywords.Start:
	case last == nil:
		start = model.UnknownStart
	default:
		// Heartbeats and error notices keep the interval opened by the last start.
		start = last.Start
	}

	entry := model.ExecutionEntry{
		ID:     id,
		Start:  start,
		End:    ev.Timestamp,
		Result: ev.Kind + " - " + ev.Message,
	}

	i.logger.DebugContext(ctx, "interpreting event",
		"execution_id", entry.ID,
		"start", entry.Start,
		"end", entry.End,
		"result", entry.Result,
	)

	if i.isDuplicate(entry, last) {
		i.logger.WarnContext(ctx, "duplicate ledger entry, event messages from source hosts may have been missed",
			"job_key", i.job.Key(),
			"execution_id", entry.ID,
		)
		if i.metrics != nil {
			i.metrics.Count("ledger.duplicate", 1, map[string]string{"job": i.job.Name, "env": i.job.Env})
		}
	}

	i.ledger.Append(ctx, entry)
}

// isDuplicate reports whether entry derives the same status and result as last.
// The result is diagnostic; the entry is appended either way.
func (i *Interpreter) isDuplicate(entry model.ExecutionEntry, last *model.ExecutionEntry) bool {
	next := i.deriver.Evaluate(&entry)
	prev := i.deriver.Evaluate(last)
	return next.Status == prev.Status && next.Result == prev.Result
}
