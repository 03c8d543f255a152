// Package testutil connects integration tests to the ledger database and Redis. Tests skip
// when a backend is unreachable unless TEST_REQUIRE_INFRA (or the per-backend variable) is set.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/redis/go-redis/v9"

	"github.com/target/jobtracker/config"
	"github.com/target/jobtracker/internal/migrate"
)

const probeTimeout = 2 * time.Second

// LedgerDBConfig reads the test database settings from TEST_DB_* variables, falling back to
// the tracker's own DB_* defaults.
func LedgerDBConfig() (config.DBConfig, error) {
	return ledgerDBConfigFrom(env.ToMap(os.Environ()))
}

func ledgerDBConfigFrom(environ map[string]string) (config.DBConfig, error) {
	var cfg config.DBConfig
	err := env.ParseWithOptions(&cfg, env.Options{Prefix: "TEST_DB_", Environment: environ})
	return cfg, err
}

// SetupLedgerDB returns a connection whose search_path points at a fresh schema holding the
// migrated ledger tables. The schema is dropped when the test ends.
func SetupLedgerDB(t testing.TB) *sql.DB {
	t.Helper()

	cfg, err := LedgerDBConfig()
	if err != nil {
		t.Fatalf("test db config: %v", err)
	}
	admin := openReachable(t, cfg.DSN())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	schema := "ledger_" + randomSuffix()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		_ = admin.Close()
		t.Fatalf("create schema %s: %v", schema, err)
	}

	db, err := sql.Open("pgx", withSearchPath(cfg.DSN(), schema))
	if err != nil {
		_ = admin.Close()
		t.Fatalf("open schema %s: %v", schema, err)
	}
	t.Cleanup(func() {
		_ = db.Close()
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dropCancel()
		if _, err := admin.ExecContext(dropCtx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		_ = admin.Close()
	})

	if err := migrate.Run(ctx, db); err != nil {
		t.Fatalf("migrate schema %s: %v", schema, err)
	}
	return db
}

func openReachable(t testing.TB, dsn string) *sql.DB {
	t.Helper()

	db, err := sql.Open("pgx", dsn)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		err = db.PingContext(ctx)
		cancel()
		if err != nil {
			_ = db.Close()
		}
	}
	if err != nil {
		unavailable(t, "TEST_REQUIRE_DB", "ledger database", err)
	}
	return db
}

func withSearchPath(dsn, schema string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String()
}

// SetupTestRedis returns a client on an empty Redis database reserved for this test.
// REDIS_ADDR selects the server, TEST_REDIS_DB pins the database index.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	dbIndex := reserveRedisDB(ctx, t, addr)
	client := redis.NewClient(&redis.Options{Addr: addr, DB: dbIndex})
	if err := client.FlushDB(ctx).Err(); err != nil {
		_ = client.Close()
		unavailable(t, "TEST_REQUIRE_REDIS", "redis at "+addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// reserveRedisDB claims one of databases 1..15 with a lock key in database 0 so test packages
// running in parallel never flush each other.
func reserveRedisDB(ctx context.Context, t testing.TB, addr string) int {
	t.Helper()

	if v := strings.TrimSpace(os.Getenv("TEST_REDIS_DB")); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
	}

	locks := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = locks.Close() }()
	if err := locks.Ping(ctx).Err(); err != nil {
		unavailable(t, "TEST_REQUIRE_REDIS", "redis at "+addr, err)
	}

	for i := 1; i <= 15; i++ {
		key := "jobtracker:testutil:db:" + strconv.Itoa(i)
		ok, err := locks.SetNX(ctx, key, t.Name(), 10*time.Minute).Result()
		if err != nil || !ok {
			continue
		}
		t.Cleanup(func() {
			c := redis.NewClient(&redis.Options{Addr: addr})
			defer func() { _ = c.Close() }()
			delCtx, delCancel := context.WithTimeout(context.Background(), probeTimeout)
			defer delCancel()
			_ = c.Del(delCtx, key).Err()
		})
		return i
	}
	t.Logf("all redis test databases are reserved, sharing db 1")
	return 1
}

func unavailable(t testing.TB, requireVar, what string, err error) {
	t.Helper()
	if envBool(requireVar) || envBool("TEST_REQUIRE_INFRA") {
		t.Fatalf("%s not available: %v", what, err)
	}
	t.Skipf("%s not available: %v", what, err)
}

func envBool(key string) bool {
	ok, _ := strconv.ParseBool(os.Getenv(key))
	return ok
}

func randomSuffix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b)
}
