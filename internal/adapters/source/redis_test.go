package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobtracker/internal/testutil"
)

func TestRedisFetcher_DrainsInBatches(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	ctx := context.Background()

	f, err := NewRedisFetcher(RedisFetcherOptions{Client: client, KeyPrefix: "test:events:", BatchSize: 2})
	require.NoError(t, err)

	host := Host{Name: "src1", Queue: "batch"}
	assert.Equal(t, "test:events:batch", f.Key(host))

	require.NoError(t, f.Push(ctx, host, record("a", 1), record("b", 2), record("c", 3)))

	first, err := f.Fetch(ctx, host)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.JSONEq(t, string(record("a", 1)), string(first[0]))
	assert.JSONEq(t, string(record("b", 2)), string(first[1]))

	second, err := f.Fetch(ctx, host)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.JSONEq(t, string(record("c", 3)), string(second[0]))

	empty, err := f.Fetch(ctx, host)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisFetcher_FeedsMultiSource(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	ctx := context.Background()

	f, err := NewRedisFetcher(RedisFetcherOptions{Client: client})
	require.NoError(t, err)
	hosts := []Host{{Name: "h1"}, {Name: "h2"}}
	require.NoError(t, f.Push(ctx, hosts[1], record("second", 2)))
	require.NoError(t, f.Push(ctx, hosts[0], record("first", 1)))

	dec, err := NewDecoder(DefaultFieldMapping(), fixedID)
	require.NoError(t, err)
	src, err := NewMultiSource(MultiSourceOptions{Hosts: hosts, Fetcher: f, Decoder: dec})
	require.NoError(t, err)

	events, err := src.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "first", events[0].Job)
	assert.Equal(t, "second", events[1].Job)
}

func TestNewRedisFetcher_RequiresClient(t *testing.T) {
	_, err := NewRedisFetcher(RedisFetcherOptions{})
	require.Error(t, err)
}
