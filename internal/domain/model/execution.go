package model

import "time"

// UnknownStart marks an interval whose start event was never observed.
var UnknownStart = time.Unix(-1, 0).UTC()

// ExecutionEntry is a single ledger row. Start equal to End denotes an execution that is still
// in progress; Start before End denotes a completed interval.
type ExecutionEntry struct {
	ID     string    `json:"execution_id"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Result string    `json:"result"`
}

// Running reports whether the entry describes an execution still in progress.
func (e ExecutionEntry) Running() bool {
	return e.Start.Equal(e.End)
}

// StartKnown reports whether the interval start was observed.
func (e ExecutionEntry) StartKnown() bool {
	return !e.Start.Equal(UnknownStart)
}
