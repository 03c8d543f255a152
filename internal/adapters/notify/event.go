package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/target/jobtracker/internal/core"
	"github.com/target/jobtracker/internal/domain/model"
	obserrors "github.com/target/jobtracker/internal/observability/errors"
	"github.com/target/jobtracker/internal/observability/statsd"
	"github.com/target/jobtracker/internal/util"
)

// EventTimeLayout is the syslog-style timestamp that opens every event line.
const EventTimeLayout = "Jan 02 15:04:05"

// EventTransport delivers one rendered event line to the event console.
type EventTransport interface {
	Send(ctx context.Context, line string) error
}

// EventReporterOptions groups dependencies for EventReporter.
type EventReporterOptions struct {
	Transport EventTransport // Required
	Host      string         // Optional: defaults to os.Hostname
	Prefix    string         // Optional: service name prefix used as the event facility
	Clock     func() time.Time
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// EventReporter sends unhealthy states to an event console. Healthy states are not sent.
// Delivery failures are logged and counted but never returned, so a broken console never stops
// the tracking cycle.
type EventReporter struct {
	transport EventTransport
	host      string
	prefix    string
	now       func() time.Time
	logger    *slog.Logger
	metrics   statsd.Sink
}

var _ core.StatusReporter = (*EventReporter)(nil)

// NewEventReporter constructs an EventReporter.
func NewEventReporter(opts EventReporterOptions) (*EventReporter, error) {
	if opts.Transport == nil {
		return nil, errors.New("event transport is required")
	}
	host := opts.Host
	if host == "" {
		h, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("resolve hostname: %w", err)
		}
		host = h
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EventReporter{
		transport: opts.Transport,
		host:      host,
		prefix:    opts.Prefix,
		now:       now,
		logger:    logger.With("component", "event_reporter"),
		metrics:   opts.Metrics,
	}, nil
}

// EventLine renders the console line for state at the given time.
func (r *EventReporter) EventLine(job model.JobSpec, state model.FinalState, at time.Time) string {
	return fmt.Sprintf("%s %s %s%s: %s - %s %s",
		at.Format(EventTimeLayout), r.host, r.prefix, job.Name, state.Status, job.Name, sanitize(state.Message))
}

// Report sends state unless it is healthy.
func (r *EventReporter) Report(ctx context.Context, job model.JobSpec, state model.FinalState) error {
	if state.Status.Healthy() {
		return nil
	}
	line := r.EventLine(job, state, r.now())
	if err := r.transport.Send(ctx, line); err != nil {
		r.logger.ErrorContext(ctx, "event delivery failed",
			"job", job.Name, "env", job.Env, "status", state.Status.String(), "error", err)
		if r.metrics != nil {
			r.metrics.Count("event.error", 1, map[string]string{
				"job":         job.Name,
				"env":         job.Env,
				"error_class": obserrors.Classify(err),
			})
		}
		return nil
	}
	r.logger.DebugContext(ctx, "event sent", "job", job.Name, "env", job.Env, "line", line)
	return nil
}

// sanitize strips characters that break shell quoting on the console side.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '"', '\\', '\'', '*', '\n', '\r':
			return -1
		}
		return r
	}, s)
}

// PipeTransport appends event lines to a local named pipe or file, such as the event daemon's
// input pipe.
type PipeTransport struct {
	Path string
}

var _ EventTransport = PipeTransport{}

// Send writes line followed by a newline.
func (p PipeTransport) Send(ctx context.Context, line string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.OpenFile(p.Path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("open event pipe: %w", err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("write event pipe: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close event pipe: %w", err)
	}
	return nil
}

// CommandTransport runs Command with Args followed by the event line, for example
// "send-notification event -m <line>".
type CommandTransport struct {
	Command string
	Args    []string
	Timeout time.Duration
	Runner  util.CommandRunner
}

var _ EventTransport = CommandTransport{}

// Send runs the configured command.
func (c CommandTransport) Send(ctx context.Context, line string) error {
	if c.Command == "" {
		return errors.New("event command is not configured")
	}
	run := c.Runner
	if run == nil {
		run = util.RunCommand
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	args := append(append([]string{}, c.Args...), line)
	_, err := run(ctx, c.Command, args...)
	return err
}
