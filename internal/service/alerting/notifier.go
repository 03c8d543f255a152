// Package alerting fans unhealthy job states out to paging and chat sinks, suppressing repeats
// of the same (job, env, status) within a TTL.
package alerting

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/target/jobtracker/internal/core"
	"github.com/target/jobtracker/internal/domain/model"
	obserrors "github.com/target/jobtracker/internal/observability/errors"
	"github.com/target/jobtracker/internal/observability/notify"
	"github.com/target/jobtracker/internal/observability/statsd"
)

// DefaultDedupeTTL suppresses repeats of an alert for this long.
const DefaultDedupeTTL = time.Hour

// DedupeKeyPrefix namespaces alert markers in the cache.
const DedupeKeyPrefix = "jobtracker:alert:"

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the alert service.
type Options struct {
	Sinks     []SinkRegistration
	Cache     core.CacheRepository // Optional: no deduplication when nil
	DedupeTTL time.Duration        // Optional: defaults to DefaultDedupeTTL
	Host      string               // Optional: reported in payloads
	Clock     func() time.Time     // Optional
	Logger    *slog.Logger         // Optional
	Metrics   statsd.Sink          // Optional
}

// Service dispatches job alerts to all registered sinks.
type Service struct {
	sinks   []SinkRegistration
	cache   core.CacheRepository
	ttl     time.Duration
	host    string
	now     func() time.Time
	logger  *slog.Logger
	metrics statsd.Sink

	mu sync.Mutex
	// clean holds jobs whose markers are known to be gone. It starts empty so the first
	// recovery after a restart clears markers left by a previous process.
	clean map[string]bool
}

// markedStatuses are the states that can hold a dedupe marker.
var markedStatuses = []model.Status{
	model.StatusUnknown,
	model.StatusError,
	model.StatusTimeout,
	model.StatusDelayed,
}

var _ core.AlertNotifier = (*Service)(nil)

// NewService constructs an alert service. Sinks without an implementation are skipped.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	ttl := opts.DedupeTTL
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	return &Service{
		sinks:   sinks,
		cache:   opts.Cache,
		ttl:     ttl,
		host:    opts.Host,
		now:     now,
		logger:  logger.With("component", "alerting"),
		metrics: opts.Metrics,
		clean:   make(map[string]bool),
	}
}

// Enabled reports whether the service has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}

// NotifyJobState alerts on unhealthy states. A healthy state clears every suppression marker
// of the job so the next failure alerts again.
func (s *Service) NotifyJobState(ctx context.Context, job model.JobSpec, state model.FinalState) {
	if !s.Enabled() {
		return
	}
	if state.Status.Healthy() {
		s.clear(ctx, job)
		return
	}

	tags := map[string]string{"job": job.Name, "env": job.Env, "state": state.Status.String()}
	if !s.claim(ctx, job, state.Status) {
		s.count("alert.suppressed", tags)
		return
	}

	payload := notify.JobAlertPayload{
		Job:        job.Name,
		Env:        job.Env,
		Status:     state.Status.String(),
		Message:    state.Message,
		Since:      state.Since,
		Severity:   notify.SeverityFor(state.Status),
		Host:       s.host,
		OccurredAt: s.now(),
		Metadata:   map[string]string{"schedule": string(job.Schedule)},
	}
	s.dispatch(ctx, payload, tags)
}

func (s *Service) dispatch(ctx context.Context, payload notify.JobAlertPayload, tags map[string]string) {
	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sinkTags := map[string]string{"sink": entry.Name, "job": tags["job"], "env": tags["env"], "state": tags["state"]}
			if err := entry.Sink.SendJobAlert(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "alert delivery failed",
					"sink", entry.Name,
					"job", payload.Job,
					"env", payload.Env,
					"status", payload.Status,
					"error", err,
				)
				sinkTags["error_class"] = obserrors.Classify(err)
				s.count("alert.error", sinkTags)
				return
			}
			s.count("alert.sent", sinkTags)
		}()
	}
	wg.Wait()
}

// claim reports whether an alert for status should be sent. Cache failures fail open.
func (s *Service) claim(ctx context.Context, job model.JobSpec, status model.Status) bool {
	s.mu.Lock()
	delete(s.clean, job.Key())
	s.mu.Unlock()

	if s.cache == nil {
		return true
	}
	ok, err := s.cache.SetIfNotExists(ctx, dedupeKey(job, status), []byte(s.now().UTC().Format(time.RFC3339)), s.ttl)
	if err != nil {
		s.logger.WarnContext(ctx, "alert dedupe unavailable, sending anyway", "job", job.Name, "env", job.Env, "error", err)
		return true
	}
	return ok
}

func (s *Service) clear(ctx context.Context, job model.JobSpec) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	done := s.clean[job.Key()]
	s.mu.Unlock()
	if done {
		return
	}

	failed := false
	for _, status := range markedStatuses {
		if _, err := s.cache.Delete(ctx, dedupeKey(job, status)); err != nil {
			s.logger.WarnContext(ctx, "failed to clear alert marker",
				"job", job.Name, "env", job.Env, "status", status.String(), "error", err)
			failed = true
		}
	}
	if failed {
		return
	}

	s.mu.Lock()
	s.clean[job.Key()] = true
	s.mu.Unlock()
}

func (s *Service) count(name string, tags map[string]string) {
	if s.metrics != nil {
		s.metrics.Count(name, 1, tags)
	}
}

func dedupeKey(job model.JobSpec, status model.Status) string {
	return DedupeKeyPrefix + job.Key() + ":" + status.String()
}
