package httpx

import (
	"sync"
	"time"

	"github.com/target/jobtracker/internal/core"
	"github.com/target/jobtracker/internal/domain/model"
)

// StateBoard keeps the most recent FinalState per job for the status API.
// It is safe for concurrent use by the poll loop and HTTP handlers.
type StateBoard struct {
	mu        sync.RWMutex
	order     []string
	states    map[string]model.FinalState
	updatedAt time.Time
}

var _ core.StateRecorder = (*StateBoard)(nil)

// NewStateBoard creates an empty board.
func NewStateBoard() *StateBoard {
	return &StateBoard{states: make(map[string]model.FinalState)}
}

// Record stores state, replacing the previous state of the same job.
// Jobs keep the position of their first appearance.
func (b *StateBoard) Record(state model.FinalState) {
	key := model.JobKey(state.Job, state.Env)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.states[key]; !ok {
		b.order = append(b.order, key)
	}
	b.states[key] = state
	if state.EvaluatedAt.After(b.updatedAt) {
		b.updatedAt = state.EvaluatedAt
	}
}

// Snapshot returns every recorded state in first-seen order.
func (b *StateBoard) Snapshot() []model.FinalState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.FinalState, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, b.states[key])
	}
	return out
}

// Get returns the state of one job.
func (b *StateBoard) Get(job, env string) (model.FinalState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.states[model.JobKey(job, env)]
	return st, ok
}

// UpdatedAt returns the newest evaluation time seen, zero before the first cycle.
func (b *StateBoard) UpdatedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updatedAt
}
