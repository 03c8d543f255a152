// Package tracker provides the poll loop that drives the job tracker service.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/jobtracker/internal/core"
	"github.com/target/jobtracker/internal/domain/model"
	"github.com/target/jobtracker/internal/observability/metrics"
	"github.com/target/jobtracker/internal/observability/statsd"
)

// DefaultInitialCycleDuration seeds the cycle duration compensation before the first cycle
// has been measured.
const DefaultInitialCycleDuration = 5 * time.Second

// CycleRunner evaluates one batch of events for every tracked job.
type CycleRunner interface {
	RunCycle(ctx context.Context, events []model.Event, cycle model.CycleState) []model.FinalState
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Service  CycleRunner
	Source   core.EventSource
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  statsd.Sink

	// Optional overrides, mainly for tests.
	InitialCycleDuration time.Duration
	Clock                Clock
}

// Runner drives the tracker through INIT, RUNNING and SHUTTING_DOWN.
//
// Cancelling the context passed to Run requests shutdown. It is observed only between
// cycles: a cycle that has started always completes.
type Runner struct {
	service  CycleRunner
	source   core.EventSource
	interval time.Duration
	logger   *slog.Logger
	metrics  statsd.Sink
	clock    Clock

	lastDuration time.Duration
}

// NewRunner creates a new tracker runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}
	return &Runner{
		service:      opts.Service,
		source:       opts.Source,
		interval:     opts.Interval,
		logger:       opts.Logger.With("component", "tracker_runner"),
		metrics:      opts.Metrics,
		clock:        opts.Clock,
		lastDuration: opts.InitialCycleDuration,
	}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Service == nil {
		return errors.New("tracker service is required")
	}
	if opts.Source == nil {
		return errors.New("event source is required")
	}
	if opts.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.InitialCycleDuration <= 0 {
		opts.InitialCycleDuration = DefaultInitialCycleDuration
	}
	return nil
}

// Run executes cycles until ctx is cancelled. It returns nil on graceful shutdown and an
// error when events cannot be fetched, which invalidates every status of the cycle.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting tracker runner", "interval", r.interval)

	for {
		if ctx.Err() != nil {
			r.logger.InfoContext(ctx, "tracker runner stopping", "reason", context.Cause(ctx))
			return nil
		}

		if err := r.RunOnce(ctx); err != nil {
			return err
		}

		if !r.sleep(ctx) {
			r.logger.InfoContext(ctx, "tracker runner stopping", "reason", context.Cause(ctx))
			return nil
		}
	}
}

// RunOnce performs a single fetch and evaluation cycle. The cycle is detached from ctx
// cancellation so a shutdown request never leaves a job partially evaluated.
func (r *Runner) RunOnce(ctx context.Context) error {
	cycleCtx := context.WithoutCancel(ctx)
	started := r.clock.Now()
	cycle := model.NewCycleState(started, r.lastDuration)
	logger := r.logger.With("cycle_id", cycle.ID)

	events, err := r.source.FetchAll(cycleCtx)
	if err != nil {
		logger.ErrorContext(cycleCtx, "failed to fetch events", "error", err)
		metrics.EmitCycle(r.metrics, metrics.CycleMetric{Result: metrics.ResultError, Err: err})
		return fmt.Errorf("fetch events: %w", err)
	}

	states := r.service.RunCycle(cycleCtx, events, cycle)

	elapsed := r.clock.Now().Sub(started)
	r.lastDuration = elapsed
	metrics.EmitCycle(r.metrics, metrics.CycleMetric{
		Result:   metrics.ResultSuccess,
		Jobs:     len(states),
		Duration: elapsed,
	})
	logger.DebugContext(cycleCtx, "cycle complete",
		"events", len(events),
		"jobs", len(states),
		"elapsed", elapsed,
		"previous_elapsed", cycle.LastDuration,
	)
	return nil
}

// LastCycleDuration returns the duration used to compensate the next cycle.
func (r *Runner) LastCycleDuration() time.Duration {
	return r.lastDuration
}

// sleep waits for the configured interval. It returns false when shutdown was requested.
func (r *Runner) sleep(ctx context.Context) bool {
	timer := time.NewTimer(r.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
