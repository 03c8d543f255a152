package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/target/jobtracker/config"
	"github.com/target/jobtracker/internal/adapters/tracker"
	"github.com/target/jobtracker/internal/core"
	"github.com/target/jobtracker/internal/data"
	httpx "github.com/target/jobtracker/internal/http"
	"github.com/target/jobtracker/internal/observability/notify/pagerduty"
	"github.com/target/jobtracker/internal/observability/notify/slack"
	"github.com/target/jobtracker/internal/observability/statsd"
	"github.com/target/jobtracker/internal/service"
	"github.com/target/jobtracker/internal/service/alerting"
)

// Infrastructure holds the optional external connections of the tracker.
type Infrastructure struct {
	DB    *sql.DB               // nil unless LEDGER_BACKEND=postgres
	Redis redis.UniversalClient // nil unless a component needs Redis
}

// Close releases every open connection.
func (i *Infrastructure) Close() error {
	var errs []error
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ConnectInfrastructure opens only the connections the configuration needs and applies
// migrations when requested.
func ConnectInfrastructure(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Infrastructure, error) {
	infra := &Infrastructure{}
	dbCfg := DatabaseConfig{
		DBConfig:    cfg.Postgres,
		RedisConfig: cfg.Redis,
		RedisUses:   RedisUses(cfg),
		Logger:      logger,
	}

	if cfg.UsesPostgres() {
		db, err := ConnectDB(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		infra.DB = db
		if cfg.Postgres.RunMigrationsOnStart {
			if err := RunMigrations(ctx, db, logger); err != nil {
				return nil, errors.Join(err, infra.Close())
			}
		}
	}

	if cfg.UsesRedis() {
		client, err := ConnectRedis(ctx, dbCfg)
		if err != nil {
			return nil, errors.Join(err, infra.Close())
		}
		infra.Redis = client
	}

	return infra, nil
}

// ObservabilityContainer groups metrics and alerting collaborators.
type ObservabilityContainer struct {
	MetricsSink *statsd.Client
	Alerts      *alerting.Service
}

// Close flushes pending metrics.
func (o ObservabilityContainer) Close() error {
	return o.MetricsSink.Close()
}

func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig, cache core.CacheRepository, host string) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:       true,
			Address:       cfg.Metrics.StatsdAddress,
			Prefix:        cfg.Metrics.Prefix,
			FlushInterval: cfg.Metrics.FlushInterval,
			GlobalTags:    map[string]string{"host": host},
			Logger:        obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	var sink statsd.Sink
	if metricsSink != nil {
		sink = metricsSink
	}

	return ObservabilityContainer{
		MetricsSink: metricsSink,
		Alerts:      buildAlerting(obsLogger, cfg.Notifications, alertingDeps{cache: cache, host: host, metrics: sink}),
	}
}

type alertingDeps struct {
	cache   core.CacheRepository
	host    string
	metrics statsd.Sink
}

func buildAlerting(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig, deps alertingDeps) *alerting.Service {
	if !cfg.Enabled {
		return alerting.NewService(alerting.Options{Logger: logger})
	}

	sinks := make([]alerting.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, alerting.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Endpoint:   cfg.PagerDuty.Endpoint,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, alerting.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return alerting.NewService(alerting.Options{
		Sinks:     sinks,
		Cache:     deps.cache,
		DedupeTTL: cfg.DedupeTTL,
		Host:      deps.host,
		Logger:    logger,
		Metrics:   deps.metrics,
	})
}

// dedupeCache picks the alert marker store. Redis is only used when configured and connected.
//
//nolint:ireturn // the store is chosen from configuration.
func dedupeCache(cfg config.ObservabilityNotificationsConfig, client redis.UniversalClient) core.CacheRepository {
	if cfg.DedupeBackend == config.DedupeBackendRedis && client != nil {
		return data.NewRedisCacheRepo(client)
	}
	return data.NewMemoryCacheRepo(&data.RealTimeProvider{})
}

// ResolveHostname returns the configured host name, falling back to the OS host name.
func ResolveHostname(configured string) string {
	if configured != "" {
		return configured
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "localhost"
}

// TrackerContainer holds the assembled tracker.
type TrackerContainer struct {
	Service       *service.TrackerService
	Runner        *tracker.Runner
	Board         *httpx.StateBoard // nil when the status API is disabled
	Observability ObservabilityContainer
}

// TrackerBuildConfig contains everything needed to assemble the tracker.
type TrackerBuildConfig struct {
	Config  *config.AppConfig
	Catalog *config.Catalog
	Infra   *Infrastructure
	Logger  *slog.Logger
}

// BuildTracker wires the ledger store, source, reporter, alerting and poll loop.
func BuildTracker(cfg TrackerBuildConfig) (*TrackerContainer, error) {
	if cfg.Config == nil || cfg.Catalog == nil {
		return nil, errors.New("tracker build requires config and catalog")
	}
	appCfg := cfg.Config
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	infra := cfg.Infra
	if infra == nil {
		infra = &Infrastructure{}
	}

	jobs, err := cfg.Catalog.JobSpecs(appCfg.Tracker.Keywords())
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	hosts, err := cfg.Catalog.HostList()
	if err != nil {
		return nil, fmt.Errorf("load hosts: %w", err)
	}
	loc, err := appCfg.Tracker.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	snooze, err := appCfg.Tracker.Snooze()
	if err != nil {
		return nil, fmt.Errorf("snooze window: %w", err)
	}

	host := ResolveHostname(appCfg.Reporting.Hostname)
	obs := buildObservability(logger, appCfg.Observability,
		dedupeCache(appCfg.Observability.Notifications, infra.Redis), host)

	var metricsSink statsd.Sink
	if obs.MetricsSink != nil {
		metricsSink = obs.MetricsSink
	}

	ledgers, err := BuildLedgerFactory(appCfg.Ledger, infra.DB)
	if err != nil {
		return nil, fmt.Errorf("create ledger store: %w", err)
	}
	reporter, err := BuildReporter(ReporterConfig{
		Reporting: appCfg.Reporting,
		Logger:    logger,
		Metrics:   metricsSink,
	})
	if err != nil {
		return nil, err
	}
	src, err := BuildEventSource(EventSourceConfig{
		Sources:     appCfg.Sources,
		Hosts:       hosts,
		RedisClient: infra.Redis,
		Logger:      logger,
		Metrics:     metricsSink,
	})
	if err != nil {
		return nil, fmt.Errorf("create event source: %w", err)
	}

	deps := service.TrackerDeps{Ledgers: ledgers, Reporter: reporter}
	if obs.Alerts.Enabled() {
		deps.Alerts = obs.Alerts
	}
	var board *httpx.StateBoard
	if appCfg.HTTP.Enabled {
		board = httpx.NewStateBoard()
		deps.Board = board
	}

	svc, err := service.NewTrackerService(service.TrackerServiceOptions{
		Jobs: jobs,
		Config: service.TrackerConfig{
			Retention: appCfg.Tracker.HistoryEntries,
			Snooze:    snooze,
			Location:  loc,
		},
		Deps:    deps,
		Logger:  logger,
		Metrics: metricsSink,
	})
	if err != nil {
		return nil, fmt.Errorf("create tracker service: %w", err)
	}

	runner, err := tracker.NewRunner(tracker.RunnerOptions{
		Service:  svc,
		Source:   src,
		Interval: appCfg.Tracker.Interval,
		Logger:   logger,
		Metrics:  metricsSink,
	})
	if err != nil {
		return nil, fmt.Errorf("create tracker runner: %w", err)
	}

	return &TrackerContainer{
		Service:       svc,
		Runner:        runner,
		Board:         board,
		Observability: obs,
	}, nil
}

// ServiceOrchestrationConfig contains what RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config  *config.AppConfig
	Tracker *TrackerContainer
	Logger  *slog.Logger
}

// RunServicesWithShutdown runs the poll loop and the optional status API until SIGINT or
// SIGTERM, or until the poll loop fails.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil || cfg.Tracker == nil {
		return errors.New("service orchestration config is incomplete")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var server *http.Server
	if cfg.Config.HTTP.Enabled {
		server = StartHTTPServer(&HTTPServerConfig{
			Config: cfg.Config,
			Board:  cfg.Tracker.Board,
			Logger: logger,
		})
	}

	runErr := cfg.Tracker.Runner.Run(sigCtx)
	if runErr != nil {
		logger.Error("tracker runner failed", "error", runErr)
	} else {
		logger.Info("shutting down services...")
	}

	return errors.Join(runErr, gracefulStop(ctx, server, cfg, logger))
}

// gracefulStop stops the HTTP server and flushes metrics.
func gracefulStop(ctx context.Context, server *http.Server, cfg *ServiceOrchestrationConfig, logger *slog.Logger) error {
	var errs []error
	if server != nil {
		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: ctx,
			Server:  server,
			Timeout: cfg.Config.HTTP.ShutdownTimeout,
			Logger:  logger,
		}); err != nil {
			errs = append(errs, err)
		}
	}
	if err := cfg.Tracker.Observability.Close(); err != nil {
		errs = append(errs, fmt.Errorf("flush metrics: %w", err))
	}
	return errors.Join(errs...)
}
