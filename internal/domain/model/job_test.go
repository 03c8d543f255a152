package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCyclicJob() JobSpec {
	return JobSpec{
		Name:           "etl_load",
		Env:            "P",
		Schedule:       ScheduleCyclic,
		Timeout:        10 * time.Minute,
		CyclicInterval: 5 * time.Minute,
		AlertThreshold: 1,
		Keywords:       Keywords{Start: "START", Error: "ERROR", End: "END"},
	}
}

func TestJobSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(j *JobSpec)
		wantErr string
	}{
		{name: "valid cyclic", mutate: func(*JobSpec) {}},
		{
			name: "valid daily",
			mutate: func(j *JobSpec) {
				j.Schedule = ScheduleDaily
				j.CyclicInterval = 0
				j.DailyStart = 8 * time.Hour
			},
		},
		{name: "missing name", mutate: func(j *JobSpec) { j.Name = " " }, wantErr: "job name is required"},
		{name: "missing env", mutate: func(j *JobSpec) { j.Env = "" }, wantErr: "env is required"},
		{name: "bad schedule", mutate: func(j *JobSpec) { j.Schedule = "hourly" }, wantErr: "invalid schedule"},
		{name: "zero timeout", mutate: func(j *JobSpec) { j.Timeout = 0 }, wantErr: "timeout must be positive"},
		{
			name:    "cyclic without interval",
			mutate:  func(j *JobSpec) { j.CyclicInterval = 0 },
			wantErr: "cyclic interval must be positive",
		},
		{name: "zero threshold", mutate: func(j *JobSpec) { j.AlertThreshold = 0 }, wantErr: "alert threshold"},
		{name: "missing keyword", mutate: func(j *JobSpec) { j.Keywords.End = "" }, wantErr: "keywords are required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := validCyclicJob()
			tt.mutate(&job)
			err := job.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJobSpecKeyAndMatches(t *testing.T) {
	job := validCyclicJob()
	assert.Equal(t, "etl_load__P", job.Key())
	assert.True(t, job.Matches(Event{Job: "etl_load", Env: "P"}))
	assert.False(t, job.Matches(Event{Job: "etl_load", Env: "I"}))
	assert.False(t, job.Matches(Event{Job: "other", Env: "P"}))
}

func TestExecutionEntryRunning(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	assert.True(t, ExecutionEntry{Start: ts, End: ts}.Running())
	assert.False(t, ExecutionEntry{Start: ts, End: ts.Add(time.Second)}.Running())
	assert.False(t, ExecutionEntry{Start: UnknownStart, End: ts}.StartKnown())
}

func TestStatusNames(t *testing.T) {
	assert.Equal(t, "NOT_RUNNING", StatusNotRunning.String())
	assert.Equal(t, "UNKNOWN", Status(42).String())
	assert.True(t, StatusRunning.Healthy())
	assert.True(t, StatusDelayed.Critical())
	assert.False(t, StatusUnknown.Critical())
	assert.False(t, StatusUnknown.Healthy())
}
