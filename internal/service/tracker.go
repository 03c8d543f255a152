package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/jobtracker/internal/core"
	"github.com/target/jobtracker/internal/domain/history"
	"github.com/target/jobtracker/internal/domain/ledger"
	"github.com/target/jobtracker/internal/domain/model"
	"github.com/target/jobtracker/internal/domain/rules"
	obserrors "github.com/target/jobtracker/internal/observability/errors"
	"github.com/target/jobtracker/internal/observability/metrics"
	"github.com/target/jobtracker/internal/observability/statsd"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// TrackerConfig holds engine-wide settings shared by every tracked job.
type TrackerConfig struct {
	Retention int                // Ledger retention count
	Snooze    rules.SnoozeWindow // Cyclic delay suppression window
	Location  *time.Location     // Zone for time-of-day rules and messages
}

// TrackerDeps holds the collaborators of TrackerService.
type TrackerDeps struct {
	Ledgers  core.LedgerRepositoryFactory // Required: opens one ledger store per job
	Reporter core.StatusReporter          // Required: monitoring backend
	Alerts   core.AlertNotifier           // Optional: paging/chat fan-out
	Board    core.StateRecorder           // Optional: status API snapshot
	Clock    Clock                        // Optional: defaults to system time
}

// TrackerServiceOptions groups dependencies for TrackerService.
type TrackerServiceOptions struct {
	Jobs    []model.JobSpec // Required: tracked jobs, in evaluation order
	Config  TrackerConfig
	Deps    TrackerDeps
	Logger  *slog.Logger // Optional: structured logger
	Metrics statsd.Sink  // Optional: metrics sink
}

// trackedJob bundles the per-job ledger and evaluators built at startup.
type trackedJob struct {
	spec        model.JobSpec
	ledger      *ledger.Ledger
	deriver     *history.Deriver
	interpreter *history.Interpreter
	engine      *rules.Engine
}

// TrackerService evaluates every tracked job once per cycle.
//
// Each job owns its ledger exclusively. A failure while evaluating or reporting one job
// is logged and never affects the remaining jobs of the cycle.
type TrackerService struct {
	jobs     []*trackedJob
	reporter core.StatusReporter
	alerts   core.AlertNotifier
	board    core.StateRecorder
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewTrackerService builds one ledger, interpreter and rule engine per job.
func NewTrackerService(opts TrackerServiceOptions) (*TrackerService, error) {
	if len(opts.Jobs) == 0 {
		return nil, errors.New("at least one job is required")
	}
	if opts.Deps.Ledgers == nil {
		return nil, errors.New("ledger repository factory is required")
	}
	if opts.Deps.Reporter == nil {
		return nil, errors.New("status reporter is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "tracker_service")

	clock := opts.Deps.Clock
	if clock == nil {
		clock = systemClock{}
	}
	startedAt := clock.Now()

	seen := make(map[string]struct{}, len(opts.Jobs))
	jobs := make([]*trackedJob, 0, len(opts.Jobs))
	for _, spec := range opts.Jobs {
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("job %q: %w", spec.Key(), err)
		}
		if _, dup := seen[spec.Key()]; dup {
			return nil, fmt.Errorf("job %q is configured more than once", spec.Key())
		}
		seen[spec.Key()] = struct{}{}

		tj, err := buildTrackedJob(spec, opts, clock, startedAt, logger)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, tj)
	}

	logger.Debug("tracker service initialized",
		"jobs", len(jobs),
		"retention", opts.Config.Retention,
		"snooze", opts.Config.Snooze.String(),
	)

	return &TrackerService{
		jobs:     jobs,
		reporter: opts.Deps.Reporter,
		alerts:   opts.Deps.Alerts,
		board:    opts.Deps.Board,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

func buildTrackedJob(
	spec model.JobSpec,
	opts TrackerServiceOptions,
	clock Clock,
	startedAt time.Time,
	logger *slog.Logger,
) (*trackedJob, error) {
	repo, err := opts.Deps.Ledgers(spec)
	if err != nil {
		return nil, fmt.Errorf("open ledger for %q: %w", spec.Key(), err)
	}
	l, err := ledger.New(ledger.Options{
		Repo:      repo,
		Key:       spec.Key(),
		Retention: opts.Config.Retention,
		Clock:     clock,
		Logger:    logger,
		Metrics:   opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger for %q: %w", spec.Key(), err)
	}
	deriver := history.NewDeriver(startedAt)
	interpreter, err := history.NewInterpreter(history.InterpreterOptions{
		Job:     spec,
		Ledger:  l,
		Deriver: deriver,
		Logger:  logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("interpreter for %q: %w", spec.Key(), err)
	}
	engine := rules.NewEngine(rules.Options{
		Job:      spec,
		Clock:    clock,
		Location: opts.Config.Location,
		Snooze:   opts.Config.Snooze,
	})
	return &trackedJob{spec: spec, ledger: l, deriver: deriver, interpreter: interpreter, engine: engine}, nil
}

// Jobs returns the tracked job specs in evaluation order.
func (s *TrackerService) Jobs() []model.JobSpec {
	out := make([]model.JobSpec, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = j.spec
	}
	return out
}

// RunCycle feeds one batch of events through every job and reports the resulting states,
// returned in job configuration order.
func (s *TrackerService) RunCycle(ctx context.Context, events []model.Event, cycle model.CycleState) []model.FinalState {
	partitions := partitionEvents(events)
	logger := s.logger.With("cycle_id", cycle.ID)

	states := make([]model.FinalState, 0, len(s.jobs))
	for _, j := range s.jobs {
		state := s.evaluate(ctx, logger, j, partitions[j.spec.Key()], cycle)
		states = append(states, state)
	}

	if s.metrics != nil {
		s.metrics.Count("cycle.events", int64(len(events)), nil)
	}
	return states
}

func (s *TrackerService) evaluate(
	ctx context.Context,
	logger *slog.Logger,
	j *trackedJob,
	events []model.Event,
	cycle model.CycleState,
) model.FinalState {
	jobLogger := logger.With("job", j.spec.Name, "env", j.spec.Env)

	if n := j.interpreter.OnEvents(ctx, events); n > 0 {
		jobLogger.DebugContext(ctx, "events interpreted", "count", n)
	}

	stmt := j.deriver.Derive(ctx, j.ledger, history.LatestOnly)
	state := j.engine.Compute(stmt, cycle)

	jobLogger.DebugContext(ctx, "job state computed",
		"base_status", stmt.Status.String(),
		"status", state.Status.String(),
		"message", state.Message,
	)

	if err := s.reporter.Report(ctx, j.spec, state); err != nil {
		jobLogger.ErrorContext(ctx, "failed to report job state", "error", err)
		if s.metrics != nil {
			s.metrics.Count("report.error", 1, map[string]string{
				"job":         j.spec.Name,
				"env":         j.spec.Env,
				"error_class": obserrors.Classify(err),
			})
		}
	}

	if s.alerts != nil {
		s.alerts.NotifyJobState(ctx, j.spec, state)
	}
	if s.board != nil {
		s.board.Record(state)
	}
	metrics.EmitJobState(s.metrics, metrics.JobStateMetric{Job: j.spec.Name, Env: j.spec.Env, Status: state.Status.String()})

	return state
}

// partitionEvents groups events by job key, preserving arrival order within each group.
func partitionEvents(events []model.Event) map[string][]model.Event {
	out := make(map[string][]model.Event)
	for _, ev := range events {
		key := model.JobKey(ev.Job, ev.Env)
		out[key] = append(out[key], ev)
	}
	return out
}
