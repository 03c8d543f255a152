package model

import "time"

// Event is a normalized job event reported by a source host.
type Event struct {
	ID        string
	Timestamp time.Time
	Env       string
	Job       string
	Kind      string
	Message   string
}
