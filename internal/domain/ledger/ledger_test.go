package ledger

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobtracker/internal/data"
	"github.com/target/jobtracker/internal/domain/model"
)

type memRepo struct {
	mu       sync.Mutex
	stored   []model.ExecutionEntry
	readErr  error
	writeErr error
	reads    int
	writes   int
}

func (m *memRepo) Read(context.Context) ([]model.ExecutionEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := make([]model.ExecutionEntry, len(m.stored))
	copy(out, m.stored)
	return out, nil
}

func (m *memRepo) Write(_ context.Context, entries []model.ExecutionEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.writeErr != nil {
		return m.writeErr
	}
	m.stored = entries
	return nil
}

type countingSink struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (s *countingSink) Count(name string, value int64, _ map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = map[string]int64{}
	}
	s.counts[name] += value
}
func (s *countingSink) Gauge(string, float64, map[string]string)        {}
func (s *countingSink) Timing(string, time.Duration, map[string]string) {}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func entryAt(id string, start, end time.Duration) model.ExecutionEntry {
	return model.ExecutionEntry{ID: id, Start: base.Add(start), End: base.Add(end), Result: "END - " + id}
}

func newLedger(t *testing.T, repo *memRepo, retention int) *Ledger {
	t.Helper()
	l, err := New(Options{
		Repo:      repo,
		Key:       "etl__P",
		Retention: retention,
		Clock:     data.NewFixedTimeProvider(base.Add(time.Hour)),
	})
	require.NoError(t, err)
	return l
}

func TestNewRequiresRepo(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestAppendKeepsOrderAndRetention(t *testing.T) {
	repo := &memRepo{}
	l := newLedger(t, repo, 3)
	ctx := context.Background()

	// Out of order arrival must still yield a descending ledger.
	l.Append(ctx, entryAt("a", 0, 10*time.Second))
	l.Append(ctx, entryAt("b", 0, 30*time.Second))
	l.Append(ctx, entryAt("c", 0, 20*time.Second))
	l.Append(ctx, entryAt("d", 0, 5*time.Second))
	l.Append(ctx, entryAt("e", 0, 40*time.Second))

	entries, err := l.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].End.After(entries[i-1].End), "entries must be sorted by end descending")
	}
	assert.Equal(t, []string{"e", "b", "c"}, ids(entries))
	assert.Equal(t, ids(entries), ids(repo.stored), "repository holds the full rewrite")
	assert.Equal(t, 5, repo.writes)
}

func TestAppendStableForEqualEnds(t *testing.T) {
	repo := &memRepo{}
	l := newLedger(t, repo, 10)
	ctx := context.Background()

	l.Append(ctx, entryAt("first", 0, 10*time.Second))
	l.Append(ctx, entryAt("second", 10*time.Second, 10*time.Second))

	entries, err := l.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, ids(entries))
}

func TestLatestAndAbsent(t *testing.T) {
	repo := &memRepo{}
	l := newLedger(t, repo, 10)
	ctx := context.Background()

	assert.Nil(t, l.Latest(ctx))

	l.Append(ctx, entryAt("a", 0, 10*time.Second))
	l.Append(ctx, entryAt("b", 20*time.Second, 20*time.Second))

	latest := l.Latest(ctx)
	require.NotNil(t, latest)
	assert.Equal(t, "b", latest.ID)
	assert.True(t, latest.Running())
}

func TestAsOf(t *testing.T) {
	repo := &memRepo{stored: []model.ExecutionEntry{
		entryAt("late", 0, 50*time.Minute),
		entryAt("mid", 0, 30*time.Minute),
		entryAt("early", 0, 10*time.Minute),
	}}
	l := newLedger(t, repo, 10)
	ctx := context.Background()

	tests := []struct {
		name     string
		lookback time.Duration
		want     string
	}{
		{name: "negative is latest", lookback: -1, want: "late"},
		{name: "zero lookback", lookback: 0, want: "late"},
		{name: "exact boundary is excluded", lookback: 10 * time.Minute, want: "mid"},
		{name: "older window", lookback: 40 * time.Minute, want: "early"},
		{name: "nothing old enough", lookback: 55 * time.Minute, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := l.AsOf(ctx, tt.lookback)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestWriteFailureKeepsInMemoryEntry(t *testing.T) {
	repo := &memRepo{writeErr: errors.New("disk full")}
	sink := &countingSink{}
	l, err := New(Options{Repo: repo, Key: "etl__P", Metrics: sink})
	require.NoError(t, err)
	ctx := context.Background()

	l.Append(ctx, entryAt("a", 0, 10*time.Second))

	latest := l.Latest(ctx)
	require.NotNil(t, latest)
	assert.Equal(t, "a", latest.ID)
	assert.Equal(t, int64(1), sink.counts["ledger.write_error"])
}

func TestUnreadableStoreIsAbsentAndRetried(t *testing.T) {
	repo := &memRepo{readErr: errors.New("corrupt record")}
	l := newLedger(t, repo, 10)
	ctx := context.Background()

	assert.Nil(t, l.Latest(ctx))
	assert.Nil(t, l.Latest(ctx))
	assert.Equal(t, 2, repo.reads, "failed reads are retried")

	_, err := l.Entries(ctx)
	require.Error(t, err)

	// A successful append replaces the corrupt store.
	l.Append(ctx, entryAt("fresh", 0, time.Second))
	latest := l.Latest(ctx)
	require.NotNil(t, latest)
	assert.Equal(t, "fresh", latest.ID)
	assert.Len(t, repo.stored, 1)
}

func TestLatestIsIdempotent(t *testing.T) {
	repo := &memRepo{stored: []model.ExecutionEntry{entryAt("a", 0, time.Minute)}}
	l := newLedger(t, repo, 10)
	ctx := context.Background()

	assert.Equal(t, l.Latest(ctx), l.Latest(ctx))
	assert.Equal(t, 1, repo.reads)
}

func TestNewID(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-f]{16}$`)
	seen := map[string]bool{}
	for range 50 {
		id := NewID()
		assert.Regexp(t, pattern, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func ids(entries []model.ExecutionEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
