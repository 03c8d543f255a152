package notify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobtracker/internal/domain/model"
)

var etlJob = model.JobSpec{Name: "ETL_Load", Env: "P", Schedule: model.ScheduleCyclic}

func TestSeverityCode(t *testing.T) {
	tests := []struct {
		status model.Status
		want   int
	}{
		{model.StatusRunning, CodeOK},
		{model.StatusNotRunning, CodeOK},
		{model.StatusError, CodeCritical},
		{model.StatusTimeout, CodeCritical},
		{model.StatusDelayed, CodeCritical},
		{model.StatusUnknown, CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, SeverityCode(tt.status))
		})
	}
}

func TestStatusFileReporter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "status")
	r, err := NewStatusFileReporter(StatusFileReporterOptions{Dir: dir, Prefix: "JT_"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, r.Report(ctx, etlJob, model.FinalState{
		Status:  model.StatusTimeout,
		Message: "TIMEOUT - job running since 2024-01-01 10:00:00",
	}))

	path := filepath.Join(dir, "ETL_Load__P.state")
	assert.Equal(t, path, r.Path(etlJob))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2 JT_etl_load - ETL_Load TIMEOUT - job running since 2024-01-01 10:00:00\n", string(got))

	// The file holds only the latest state.
	require.NoError(t, r.Report(ctx, etlJob, model.FinalState{Status: model.StatusNotRunning, Message: "NOT_RUNNING - ok"}))
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0 JT_etl_load - ETL_Load NOT_RUNNING - ok\n", string(got))

	_, err = NewStatusFileReporter(StatusFileReporterOptions{})
	require.Error(t, err)
}

type recordingTransport struct {
	mu    sync.Mutex
	lines []string
	err   error
}

func (r *recordingTransport) Send(_ context.Context, line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	return r.err
}

type countSink struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (c *countSink) Count(name string, v int64, _ map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.counts[name] += v
}
func (c *countSink) Gauge(string, float64, map[string]string)        {}
func (c *countSink) Timing(string, time.Duration, map[string]string) {}

func TestEventReporter(t *testing.T) {
	at := time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)
	transport := &recordingTransport{}
	r, err := NewEventReporter(EventReporterOptions{
		Transport: transport,
		Host:      "tracker01.example.com",
		Prefix:    "JT_",
		Clock:     func() time.Time { return at },
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, r.Report(ctx, etlJob, model.FinalState{Status: model.StatusRunning, Message: "RUNNING"}))
	require.NoError(t, r.Report(ctx, etlJob, model.FinalState{Status: model.StatusNotRunning, Message: "NOT_RUNNING"}))
	assert.Empty(t, transport.lines, "healthy states are not sent")

	require.NoError(t, r.Report(ctx, etlJob, model.FinalState{
		Status:  model.StatusError,
		Message: `ERROR - "disk" *full*`,
	}))
	require.Len(t, transport.lines, 1)
	assert.Equal(t, "Mar 05 07:08:09 tracker01.example.com JT_ETL_Load: ERROR - ETL_Load ERROR - disk full", transport.lines[0])
}

func TestEventReporter_TransportFailureIsNotFatal(t *testing.T) {
	sink := &countSink{}
	r, err := NewEventReporter(EventReporterOptions{
		Transport: &recordingTransport{err: errors.New("pipe closed")},
		Host:      "h",
		Metrics:   sink,
	})
	require.NoError(t, err)

	err = r.Report(context.Background(), etlJob, model.FinalState{Status: model.StatusDelayed})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sink.counts["event.error"])

	_, err = NewEventReporter(EventReporterOptions{})
	require.Error(t, err)
}

func TestPipeTransport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	p := PipeTransport{Path: path}
	require.NoError(t, p.Send(context.Background(), "one"))
	require.NoError(t, p.Send(context.Background(), "two"))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(got))

	require.Error(t, PipeTransport{Path: filepath.Join(t.TempDir(), "missing", "pipe")}.Send(context.Background(), "x"))
}

func TestCommandTransport(t *testing.T) {
	var gotName string
	var gotArgs []string
	c := CommandTransport{
		Command: "send-notification",
		Args:    []string{"event", "-m"},
		Timeout: time.Second,
		Runner: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			gotName, gotArgs = name, args
			return nil, nil
		},
	}
	require.NoError(t, c.Send(context.Background(), "Mar 05 07:08:09 h JT_x: ERROR - x boom"))
	assert.Equal(t, "send-notification", gotName)
	assert.Equal(t, []string{"event", "-m", "Mar 05 07:08:09 h JT_x: ERROR - x boom"}, gotArgs)

	require.Error(t, CommandTransport{}.Send(context.Background(), "x"))
}
