// Package rules computes the reported state of a job from its base status and schedule.
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/target/jobtracker/internal/domain/model"
)

// TimestampLayout is used for every absolute time rendered in a state message.
const TimestampLayout = "2006-01-02 15:04:05"

// delayedMarker identifies a result that already reported a delay.
const delayedMarker = "DELAYED"

const recentCompletion = 24 * time.Hour

// Clock provides the evaluation time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options configures an Engine.
type Options struct {
	Job      model.JobSpec  // Required
	Clock    Clock          // Optional: defaults to system time
	Location *time.Location // Optional: defaults to time.Local
	Snooze   SnoozeWindow   // Optional: disabled when zero
}

// Engine evaluates the ordered decision list for one job.
type Engine struct {
	job    model.JobSpec
	clock  Clock
	loc    *time.Location
	snooze SnoozeWindow
}

// NewEngine constructs an Engine.
func NewEngine(opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Engine{job: opts.Job, clock: clock, loc: loc, snooze: opts.Snooze}
}

// Compute maps a base status statement to the final reported state. The first matching
// rule wins: error keyword, timeout, running, delayed, not running, unknown.
func (e *Engine) Compute(stmt model.StatusStatement, cycle model.CycleState) model.FinalState {
	now := e.now()
	state := model.FinalState{
		Job:         e.job.Name,
		Env:         e.job.Env,
		Status:      stmt.Status,
		Since:       stmt.Since,
		Message:     stmt.Result,
		EvaluatedAt: now,
	}

	switch {
	case e.job.Keywords.Error != "" && strings.Contains(stmt.Result, e.job.Keywords.Error):
		state.Status = model.StatusError
		state.Message = fmt.Sprintf("job failed (%s since %s) %s", model.StatusError, e.format(stmt.Since), stmt.Result)

	case stmt.Status == model.StatusRunning && e.IsTimedOut(stmt, cycle):
		state.Status = model.StatusTimeout
		state.Message = fmt.Sprintf("job timeout (%d sec) reached (%s since %s)",
			int64(e.job.Timeout/time.Second), model.StatusTimeout, e.format(stmt.Since.Add(e.job.Timeout)))

	case stmt.Status == model.StatusRunning:
		state.Message = fmt.Sprintf("job ok (%s since %s)", model.StatusRunning, e.format(stmt.Since))

	case stmt.Status == model.StatusUnknown || stmt.Status == model.StatusNotRunning:
		probe := stmt
		if e.IsOnTime(&probe, cycle) {
			if stmt.Status == model.StatusNotRunning {
				state.Message = fmt.Sprintf("job ok (%s since %s)", model.StatusNotRunning, e.format(stmt.Since))
			}
			break
		}
		state.Status = model.StatusDelayed
		state.Since = probe.Since
		state.Message = e.delayedMessage(now)
	}

	return state
}

// IsTimedOut reports whether a running interval exceeded its allowed runtime.
// Cyclic jobs tolerate threshold times the timeout plus the last cycle duration.
func (e *Engine) IsTimedOut(stmt model.StatusStatement, cycle model.CycleState) bool {
	now := e.now()
	if e.job.Schedule == model.ScheduleCyclic {
		limit := time.Duration(e.job.AlertThreshold)*e.job.Timeout + cycle.LastDuration
		return stmt.Since.Before(now.Add(-limit))
	}
	return stmt.Since.Before(now.Add(-e.job.Timeout))
}

// IsOnTime reports whether the next run of a stopped or unknown job is not overdue.
//
// For cyclic jobs an on-time statement has its since advanced by the tolerance. For daily
// jobs past the deadline a delayed statement has its since set to the deadline.
func (e *Engine) IsOnTime(stmt *model.StatusStatement, cycle model.CycleState) bool {
	now := e.now()

	if e.job.Schedule == model.ScheduleCyclic {
		if e.snooze.Contains(now) {
			return true
		}
		tol := time.Duration(e.job.AlertThreshold)*e.job.CyclicInterval + cycle.LastDuration
		if stmt.Since.Before(now.Add(-tol)) {
			return false
		}
		stmt.Since = stmt.Since.Add(tol)
		return true
	}

	deadline := e.expectedStart(now).Add(e.job.DailyMaxDelay)
	switch {
	case now.Before(deadline):
		// Once flagged, stay delayed until the deadline passes.
		return !strings.Contains(stmt.Result, delayedMarker)
	case e.job.Keywords.End != "" && strings.Contains(stmt.Result, e.job.Keywords.End) &&
		stmt.Since.After(now.Add(-recentCompletion)):
		return true
	default:
		stmt.Since = deadline
		return false
	}
}

func (e *Engine) delayedMessage(now time.Time) string {
	if e.job.Schedule == model.ScheduleCyclic {
		return fmt.Sprintf("job not started (%s, expected interval: %s)", model.StatusDelayed, FormatClock(e.job.CyclicInterval))
	}
	expected := e.expectedStart(now)
	late := max(now.Sub(expected), 0)
	return fmt.Sprintf("job not started (%s since %s, expected starttime: %s)",
		model.StatusDelayed, FormatClock(late), e.format(expected))
}

// expectedStart is today's configured start time of a daily job.
func (e *Engine) expectedStart(now time.Time) time.Time {
	return wallClock(now, e.job.DailyStart)
}

func (e *Engine) now() time.Time {
	return e.clock.Now().In(e.loc)
}

func (e *Engine) format(t time.Time) string {
	return t.In(e.loc).Format(TimestampLayout)
}
