package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/jobtracker/config"
	"github.com/target/jobtracker/internal/adapters/notify"
	"github.com/target/jobtracker/internal/adapters/source"
	"github.com/target/jobtracker/internal/core"
	"github.com/target/jobtracker/internal/data"
	"github.com/target/jobtracker/internal/observability/statsd"
)

// BuildLedgerFactory selects the ledger store. db is only used by the postgres backend.
func BuildLedgerFactory(cfg config.LedgerConfig, db *sql.DB) (core.LedgerRepositoryFactory, error) {
	switch cfg.Backend {
	case config.LedgerBackendPostgres:
		return data.NewPgLedgerFactory(db)
	case config.LedgerBackendFile, "":
		return data.NewFileLedgerFactory(cfg.RunDir)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}

// ReporterConfig contains configuration for the monitoring backend.
type ReporterConfig struct {
	Reporting config.ReportingConfig
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// BuildReporter creates the status reporter selected by TRACKER_BACKEND.
//
//nolint:ireturn // the backend is chosen at runtime.
func BuildReporter(cfg ReporterConfig) (core.StatusReporter, error) {
	rc := cfg.Reporting
	switch rc.Backend {
	case config.ReportingBackendStatus, "":
		r, err := notify.NewStatusFileReporter(notify.StatusFileReporterOptions{
			Dir:    rc.StatusDir,
			Prefix: rc.ServicePrefix,
			Logger: cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create status file reporter: %w", err)
		}
		return r, nil
	case config.ReportingBackendEvent:
		r, err := notify.NewEventReporter(notify.EventReporterOptions{
			Transport: eventTransport(rc),
			Host:      rc.Hostname,
			Prefix:    rc.ServicePrefix,
			Logger:    cfg.Logger,
			Metrics:   cfg.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("create event reporter: %w", err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown reporting backend %q", rc.Backend)
	}
}

// eventTransport prefers the event pipe over the notification command.
//
//nolint:ireturn // transport is chosen from configuration.
func eventTransport(rc config.ReportingConfig) notify.EventTransport {
	if rc.EventPipe != "" {
		return notify.PipeTransport{Path: rc.EventPipe}
	}
	return notify.CommandTransport{
		Command: rc.EventCommand,
		Args:    rc.EventCommandArgs,
		Timeout: rc.EventTimeout,
	}
}

// EventSourceConfig contains configuration for draining source hosts.
type EventSourceConfig struct {
	Sources     config.SourceConfig
	Hosts       []config.HostConfig
	RedisClient redis.UniversalClient // Required when Sources.Kind is redis
	Logger      *slog.Logger
	Metrics     statsd.Sink
}

// BuildEventSource creates the multi-host event source.
func BuildEventSource(cfg EventSourceConfig) (*source.MultiSource, error) {
	fetcher, err := hostFetcher(cfg)
	if err != nil {
		return nil, err
	}

	fields := cfg.Sources.Fields
	decoder, err := source.NewDecoder(source.FieldMapping{
		ID:        fields.ID,
		Timestamp: fields.Timestamp,
		Env:       fields.Env,
		Job:       fields.Job,
		Kind:      fields.Kind,
		Message:   fields.Message,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("record field mapping: %w", err)
	}

	return source.NewMultiSource(source.MultiSourceOptions{
		Hosts:   SourceHosts(cfg.Hosts),
		Fetcher: fetcher,
		Decoder: decoder,
		Workers: cfg.Sources.Workers,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
}

//nolint:ireturn // fetcher is chosen from configuration.
func hostFetcher(cfg EventSourceConfig) (source.HostFetcher, error) {
	sc := cfg.Sources
	switch sc.Kind {
	case config.SourceKindRedis:
		if cfg.RedisClient == nil {
			return nil, errors.New("redis event source requires a redis client")
		}
		f, err := source.NewRedisFetcher(source.RedisFetcherOptions{
			Client:    cfg.RedisClient,
			KeyPrefix: sc.RedisKeyPrefix,
			BatchSize: sc.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis fetcher: %w", err)
		}
		return f, nil
	case config.SourceKindExec, "":
		return source.NewExecFetcher(source.ExecFetcherOptions{
			Binary:         sc.SSHBinary,
			ConnectTimeout: sc.ConnectTimeout,
			BatchSize:      sc.BatchSize,
			StrictHostKeys: sc.SSHStrictHostKeys,
		}), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", sc.Kind)
	}
}

// SourceHosts converts catalog host entries.
func SourceHosts(hosts []config.HostConfig) []source.Host {
	out := make([]source.Host, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, source.Host{
			Name:         h.Hostname,
			User:         h.User,
			KeyFile:      h.Key,
			Queue:        h.Queue,
			QueueHandler: h.QueueHandler,
		})
	}
	return out
}
