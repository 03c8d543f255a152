// Package source fetches job events from the configured source hosts.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/jobtracker/internal/core"
	"github.com/target/jobtracker/internal/domain/model"
	obserrors "github.com/target/jobtracker/internal/observability/errors"
	"github.com/target/jobtracker/internal/observability/statsd"
)

// DefaultWorkers bounds concurrent host fetches when no limit is configured.
const DefaultWorkers = 4

// Host is one source host whose queue holds job event records.
type Host struct {
	Name         string // hostname or address
	User         string // remote login user
	KeyFile      string // optional identity file
	Queue        string // queue file or list key
	QueueHandler string // remote command that drains the queue
}

func (h Host) String() string {
	if h.User == "" {
		return h.Name
	}
	return h.User + "@" + h.Name
}

// HostFetcher drains the pending records of a single host.
type HostFetcher interface {
	Fetch(ctx context.Context, host Host) ([]json.RawMessage, error)
}

// MultiSourceOptions groups dependencies for MultiSource.
type MultiSourceOptions struct {
	Hosts   []Host       // Required
	Fetcher HostFetcher  // Required
	Decoder *Decoder     // Required
	Workers int          // Optional: defaults to DefaultWorkers
	Logger  *slog.Logger // Optional
	Metrics statsd.Sink  // Optional
}

// MultiSource fetches every host concurrently and merges the results in host order.
type MultiSource struct {
	hosts   []Host
	fetcher HostFetcher
	decoder *Decoder
	workers int
	logger  *slog.Logger
	metrics statsd.Sink
}

var _ core.EventSource = (*MultiSource)(nil)

// NewMultiSource constructs a MultiSource.
func NewMultiSource(opts MultiSourceOptions) (*MultiSource, error) {
	if len(opts.Hosts) == 0 {
		return nil, errors.New("at least one source host is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("host fetcher is required")
	}
	if opts.Decoder == nil {
		return nil, errors.New("record decoder is required")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiSource{
		hosts:   opts.Hosts,
		fetcher: opts.Fetcher,
		decoder: opts.Decoder,
		workers: workers,
		logger:  logger.With("component", "event_source"),
		metrics: opts.Metrics,
	}, nil
}

// FetchAll drains all hosts. A failure on any host fails the whole batch, since a partial
// batch would report stale status for the jobs of the failed host.
func (s *MultiSource) FetchAll(ctx context.Context) ([]model.Event, error) {
	results := make([][]model.Event, len(s.hosts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, host := range s.hosts {
		g.Go(func() error {
			events, err := s.fetchHost(gctx, host)
			if err != nil {
				return fmt.Errorf("host %s: %w", host, err)
			}
			results[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	out := make([]model.Event, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (s *MultiSource) fetchHost(ctx context.Context, host Host) ([]model.Event, error) {
	start := time.Now()
	tags := map[string]string{"host": host.Name}

	raw, err := s.fetcher.Fetch(ctx, host)
	if err == nil {
		var events []model.Event
		events, err = s.decoder.DecodeRecords(raw)
		if err == nil {
			s.logger.DebugContext(ctx, "fetched events", "host", host.Name, "count", len(events))
			if s.metrics != nil {
				s.metrics.Timing("source.fetch", time.Since(start), tags)
				s.metrics.Count("source.events", int64(len(events)), tags)
			}
			return events, nil
		}
	}

	if s.metrics != nil {
		tags["error_class"] = obserrors.Classify(err)
		s.metrics.Count("source.error", 1, tags)
	}
	return nil, err
}
