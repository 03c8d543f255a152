package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobtracker/config"
	"github.com/target/jobtracker/internal/adapters/notify"
	"github.com/target/jobtracker/internal/data"
)

const testCatalog = `
hosts:
  - hostname: src1.example.com
    user: tracker
    message_queue: /var/spool/jobs.q
    message_queue_handler: /usr/local/bin/queue
  - hostname: src2.example.com
jobs:
  - name: etl_load
    env: P
    schedule: cyclic
    timeout: "01:00"
    cyclic_interval: "00:15"
  - name: nightly_export
    env: P
    schedule: daily
    timeout: "02:00"
    daily_start_time: "03:30"
    daily_start_max_delay: "00:30"
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// loadTestConfig parses defaults plus vars without touching the process environment.
func loadTestConfig(t *testing.T, vars map[string]string) *config.AppConfig {
	t.Helper()
	var cfg config.AppConfig
	require.NoError(t, env.ParseWithOptions(&cfg, env.Options{Environment: vars}))
	cfg.Sanitize()
	return &cfg
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitLoggerWritesToFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "tracker.log")
	logger, closer, err := InitLogger(config.LoggingConfig{Level: "warn", File: path})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "job", "etl_load")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(raw)
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"msg":"kept"`)
	assert.Contains(t, out, `"job":"etl_load"`)
}

func TestInitLoggerBadFile(t *testing.T) {
	_, _, err := InitLogger(config.LoggingConfig{File: filepath.Join(t.TempDir(), "missing", "x.log")})
	require.Error(t, err)
}

func TestBuildLedgerFactory(t *testing.T) {
	dir := t.TempDir()
	factory, err := BuildLedgerFactory(config.LedgerConfig{Backend: config.LedgerBackendFile, RunDir: dir}, nil)
	require.NoError(t, err)
	require.NotNil(t, factory)

	_, err = BuildLedgerFactory(config.LedgerConfig{Backend: config.LedgerBackendPostgres}, nil)
	require.Error(t, err, "postgres backend needs a database")

	_, err = BuildLedgerFactory(config.LedgerConfig{Backend: "sqlite"}, nil)
	require.Error(t, err)
}

func TestBuildReporter(t *testing.T) {
	t.Run("status files", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "status")
		r, err := BuildReporter(ReporterConfig{
			Reporting: config.ReportingConfig{Backend: config.ReportingBackendStatus, StatusDir: dir, ServicePrefix: "JT_"},
			Logger:    testLogger(),
		})
		require.NoError(t, err)
		assert.IsType(t, &notify.StatusFileReporter{}, r)
		assert.DirExists(t, dir)
	})

	t.Run("event console", func(t *testing.T) {
		r, err := BuildReporter(ReporterConfig{
			Reporting: config.ReportingConfig{Backend: config.ReportingBackendEvent, EventPipe: "/tmp/events", Hostname: "tracker01"},
			Logger:    testLogger(),
		})
		require.NoError(t, err)
		assert.IsType(t, &notify.EventReporter{}, r)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := BuildReporter(ReporterConfig{Reporting: config.ReportingConfig{Backend: "nagios"}})
		require.Error(t, err)
	})
}

func TestEventTransportPrefersPipe(t *testing.T) {
	pipe := eventTransport(config.ReportingConfig{EventPipe: "/run/ec.pipe", EventCommand: "send-notification"})
	assert.Equal(t, notify.PipeTransport{Path: "/run/ec.pipe"}, pipe)

	cmd := eventTransport(config.ReportingConfig{
		EventCommand:     "send-notification",
		EventCommandArgs: []string{"event", "-m"},
	})
	ct, ok := cmd.(notify.CommandTransport)
	require.True(t, ok)
	assert.Equal(t, "send-notification", ct.Command)
	assert.Equal(t, []string{"event", "-m"}, ct.Args)
}

func TestBuildEventSource(t *testing.T) {
	hosts := []config.HostConfig{{Hostname: "src1", User: "tracker", Key: "/k", Queue: "/q", QueueHandler: "/h"}}

	src, err := BuildEventSource(EventSourceConfig{
		Sources: config.SourceConfig{Kind: config.SourceKindExec, Workers: 2},
		Hosts:   hosts,
		Logger:  testLogger(),
	})
	require.NoError(t, err)
	require.NotNil(t, src)

	_, err = BuildEventSource(EventSourceConfig{
		Sources: config.SourceConfig{Kind: config.SourceKindRedis},
		Hosts:   hosts,
	})
	require.ErrorContains(t, err, "redis client")

	_, err = BuildEventSource(EventSourceConfig{
		Sources: config.SourceConfig{Kind: config.SourceKindExec, Fields: config.FieldMappingConfig{Job: "[["}},
		Hosts:   hosts,
	})
	require.ErrorContains(t, err, "field mapping")
}

func TestSourceHosts(t *testing.T) {
	got := SourceHosts([]config.HostConfig{{Hostname: "src1", User: "tracker", Key: "/k", Queue: "/q", QueueHandler: "/h"}})
	require.Len(t, got, 1)
	assert.Equal(t, "src1", got[0].Name)
	assert.Equal(t, "/k", got[0].KeyFile)
	assert.Equal(t, "/h", got[0].QueueHandler)
	assert.Equal(t, "tracker@src1", got[0].String())
}

func TestDedupeCacheFallsBackToMemory(t *testing.T) {
	cfg := config.ObservabilityNotificationsConfig{DedupeBackend: config.DedupeBackendRedis}
	assert.IsType(t, &data.MemoryCacheRepo{}, dedupeCache(cfg, nil))
}

func TestBuildAlerting(t *testing.T) {
	disabled := buildAlerting(testLogger(), config.ObservabilityNotificationsConfig{}, alertingDeps{})
	assert.False(t, disabled.Enabled())

	enabled := buildAlerting(testLogger(), config.ObservabilityNotificationsConfig{
		Enabled: true,
		Slack:   config.SlackNotificationConfig{Enabled: true, WebhookURL: "https://hooks.example.com/x"},
	}, alertingDeps{host: "tracker01"})
	assert.True(t, enabled.Enabled())
}

func TestResolveHostname(t *testing.T) {
	assert.Equal(t, "tracker01", ResolveHostname("tracker01"))
	assert.NotEmpty(t, ResolveHostname(""))
}

func TestBuildTracker(t *testing.T) {
	dir := t.TempDir()
	cfg := loadTestConfig(t, map[string]string{
		"TRACKER_RUN_DIR":    filepath.Join(dir, "run"),
		"TRACKER_STATUS_DIR": filepath.Join(dir, "status"),
		"TRACKER_TIMEZONE":   "UTC",
		"TRACKER_HOSTNAME":   "tracker01",
		"HTTP_ENABLED":       "true",
	})
	require.NoError(t, cfg.Validate())

	catalog, err := config.ParseCatalog([]byte(strings.TrimSpace(testCatalog)))
	require.NoError(t, err)

	tc, err := BuildTracker(TrackerBuildConfig{Config: cfg, Catalog: catalog, Logger: testLogger()})
	require.NoError(t, err)

	require.NotNil(t, tc.Runner)
	require.NotNil(t, tc.Board, "status API enabled")
	assert.Nil(t, tc.Observability.MetricsSink)
	assert.False(t, tc.Observability.Alerts.Enabled())
	require.Len(t, tc.Service.Jobs(), 2)
	assert.Equal(t, "etl_load__P", tc.Service.Jobs()[0].Key())
	require.NoError(t, tc.Observability.Close())
}

func TestBuildTrackerRejectsEmptyCatalog(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{"TRACKER_RUN_DIR": t.TempDir(), "TRACKER_STATUS_DIR": t.TempDir()})
	_, err := BuildTracker(TrackerBuildConfig{Config: cfg, Catalog: &config.Catalog{}, Logger: testLogger()})
	require.Error(t, err)

	_, err = BuildTracker(TrackerBuildConfig{})
	require.Error(t, err)
}

func TestRunServicesWithShutdownStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	cfg := loadTestConfig(t, map[string]string{
		"TRACKER_RUN_DIR":    filepath.Join(dir, "run"),
		"TRACKER_STATUS_DIR": filepath.Join(dir, "status"),
		"TRACKER_TIMEZONE":   "UTC",
	})
	catalog, err := config.ParseCatalog([]byte(strings.TrimSpace(testCatalog)))
	require.NoError(t, err)
	tc, err := BuildTracker(TrackerBuildConfig{Config: cfg, Catalog: catalog, Logger: testLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled context stops the runner before its first cycle.
	err = RunServicesWithShutdown(ctx, &ServiceOrchestrationConfig{Config: cfg, Tracker: tc, Logger: testLogger()})
	require.NoError(t, err)
}

func TestShutdownHTTPServerNil(t *testing.T) {
	if err := ShutdownHTTPServer(ShutdownConfig{}); err != nil {
		t.Fatalf("ShutdownHTTPServer(nil server) = %v, want nil", err)
	}
}
