package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces source queues.
const DefaultRedisKeyPrefix = "jobtracker:events:"

// RedisFetcherOptions configures a RedisFetcher.
type RedisFetcherOptions struct {
	Client    redis.UniversalClient // Required
	KeyPrefix string                // Optional: defaults to DefaultRedisKeyPrefix
	BatchSize int                   // Optional: defaults to DefaultBatchSize
}

// RedisFetcher drains per-host Redis lists. Producers RPUSH JSON records; each fetch
// atomically reads and removes up to BatchSize records from the head of the list.
type RedisFetcher struct {
	client    redis.UniversalClient
	keyPrefix string
	batchSize int
}

var _ HostFetcher = (*RedisFetcher)(nil)

// NewRedisFetcher constructs a RedisFetcher.
func NewRedisFetcher(opts RedisFetcherOptions) (*RedisFetcher, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &RedisFetcher{client: opts.Client, keyPrefix: prefix, batchSize: batch}, nil
}

// Key returns the list key drained for host. The host queue name wins over the host name.
func (f *RedisFetcher) Key(host Host) string {
	if host.Queue != "" {
		return f.keyPrefix + host.Queue
	}
	return f.keyPrefix + host.Name
}

// Fetch removes and returns pending records for host.
func (f *RedisFetcher) Fetch(ctx context.Context, host Host) ([]json.RawMessage, error) {
	key := f.Key(host)

	pipe := f.client.TxPipeline()
	rng := pipe.LRange(ctx, key, 0, int64(f.batchSize-1))
	pipe.LTrim(ctx, key, int64(f.batchSize), -1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("drain %s: %w", key, err)
	}

	vals := rng.Val()
	if len(vals) == 0 {
		return nil, nil
	}
	records := make([]json.RawMessage, 0, len(vals))
	for _, v := range vals {
		records = append(records, json.RawMessage(v))
	}
	return records, nil
}

// Push appends records to the queue of host. Used by tooling and tests to feed events.
func (f *RedisFetcher) Push(ctx context.Context, host Host, records ...[]byte) error {
	if len(records) == 0 {
		return nil
	}
	vals := make([]any, len(records))
	for i, r := range records {
		vals[i] = string(r)
	}
	if err := f.client.RPush(ctx, f.Key(host), vals...).Err(); err != nil {
		return fmt.Errorf("push to %s: %w", f.Key(host), err)
	}
	return nil
}
