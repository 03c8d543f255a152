package data

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/target/jobtracker/internal/core"
)

// MemoryCacheRepo is a process-local core.CacheRepository used when Redis is not configured.
type MemoryCacheRepo struct {
	mu      sync.Mutex
	clock   TimeProvider
	expires map[string]time.Time
}

var _ core.CacheRepository = (*MemoryCacheRepo)(nil)

// NewMemoryCacheRepo creates an empty cache. A nil clock uses the system time.
func NewMemoryCacheRepo(clock TimeProvider) *MemoryCacheRepo {
	if clock == nil {
		clock = &RealTimeProvider{}
	}
	return &MemoryCacheRepo{clock: clock, expires: make(map[string]time.Time)}
}

// SetIfNotExists stores key until ttl elapses unless a live entry already exists.
func (m *MemoryCacheRepo) SetIfNotExists(_ context.Context, key string, _ []byte, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}
	if ttl <= 0 {
		ttl = time.Second
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if exp, ok := m.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.expires[key] = now.Add(ttl)
	m.sweep(now)
	return true, nil
}

// Delete removes key.
func (m *MemoryCacheRepo) Delete(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.expires[key]
	delete(m.expires, key)
	return ok && m.clock.Now().Before(exp), nil
}

// sweep drops expired keys. Caller holds mu.
func (m *MemoryCacheRepo) sweep(now time.Time) {
	for k, exp := range m.expires {
		if !now.Before(exp) {
			delete(m.expires, k)
		}
	}
}
