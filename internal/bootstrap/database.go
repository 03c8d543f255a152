package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/redis/go-redis/v9"

	"github.com/target/jobtracker/config"
	"github.com/target/jobtracker/internal/migrate"
)

const (
	// Ledgers are read and written one job at a time, so the pool only needs headroom
	// for the admin CLI running next to the tracker.
	defaultLedgerConns = 2
	connectTimeout     = 5 * time.Second
)

// DatabaseConfig describes the backends a process connects to.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig

	// MaxLedgerConns caps the ledger pool. Optional: defaults to defaultLedgerConns.
	MaxLedgerConns int
	// RedisUses names what the Redis client serves, for the connect log line.
	RedisUses []string

	Logger *slog.Logger
}

// RedisUses lists the tracker features that need the Redis client.
func RedisUses(cfg *config.AppConfig) []string {
	var uses []string
	if cfg.Sources.Kind == config.SourceKindRedis {
		uses = append(uses, "event-source")
	}
	if cfg.Observability.Notifications.DedupeBackend == config.DedupeBackendRedis {
		uses = append(uses, "alert-dedupe")
	}
	return uses
}

// ConnectDB opens the postgres ledger store and verifies it answers.
func ConnectDB(ctx context.Context, cfg DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DBConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}

	conns := cfg.MaxLedgerConns
	if conns <= 0 {
		conns = defaultLedgerConns
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping ledger database: %w", err), db.Close())
	}

	connLogger(cfg).InfoContext(ctx, "ledger database connected",
		"host", cfg.DBConfig.Host,
		"database", cfg.DBConfig.Name,
		"max_conns", conns,
	)
	return db, nil
}

// ConnectRedis opens a direct, sentinel or cluster client according to cfg.
//
//nolint:ireturn // the concrete client type depends on the configured topology.
func ConnectRedis(ctx context.Context, cfg DatabaseConfig) (redis.UniversalClient, error) {
	client, target, err := newRedisClient(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("ping redis %s: %w", target, err), client.Close())
	}

	connLogger(cfg).InfoContext(ctx, "redis connected", "target", target, "uses", cfg.RedisUses)
	return client, nil
}

// newRedisClient returns the client and a credential-free description of its target.
//
//nolint:ireturn // see ConnectRedis.
func newRedisClient(rc config.RedisConfig) (redis.UniversalClient, string, error) {
	switch {
	case rc.UseCluster:
		seeds := nonEmpty(rc.ClusterNodes)
		if len(seeds) == 0 && !isRedisURL(rc.URI) {
			seeds = nonEmpty([]string{rc.URI})
		}
		if len(seeds) == 0 {
			return nil, "", errors.New("redis cluster mode needs REDIS_CLUSTER_NODES")
		}
		client := redis.NewClusterClient(&redis.ClusterOptions{Addrs: seeds, Password: rc.Password})
		return client, "cluster " + strings.Join(seeds, ","), nil

	case rc.UseSentinel:
		sentinels := nonEmpty(rc.SentinelNodes)
		if len(sentinels) == 0 {
			return nil, "", errors.New("redis sentinel mode needs REDIS_SENTINEL_NODES")
		}
		client := redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       rc.SentinelMasterName,
			SentinelAddrs:    sentinels,
			SentinelPassword: rc.SentinelPassword,
			Password:         rc.Password,
			DB:               rc.DB,
		})
		return client, "sentinel " + rc.SentinelMasterName, nil
	}

	uri := strings.TrimSpace(rc.URI)
	if uri == "" {
		return nil, "", errors.New("redis needs REDIS_URI")
	}
	if !isRedisURL(uri) {
		return redis.NewClient(&redis.Options{Addr: uri, Password: rc.Password, DB: rc.DB}), uri, nil
	}
	opt, err := redis.ParseURL(uri)
	if err != nil {
		return nil, "", fmt.Errorf("parse REDIS_URI: %w", err)
	}
	return redis.NewClient(opt), opt.Addr, nil
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func isRedisURL(value string) bool {
	value = strings.TrimSpace(value)
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}

func connLogger(cfg DatabaseConfig) *slog.Logger {
	if cfg.Logger == nil {
		return slog.Default()
	}
	return cfg.Logger
}

// RunMigrations applies the ledger schema.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := migrate.Run(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "ledger migrations applied")
	}
	return nil
}
