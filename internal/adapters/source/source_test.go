package source

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobtracker/internal/domain/model"
)

func fixedID() string { return "generated" }

func TestDecoder_DefaultMapping(t *testing.T) {
	d, err := NewDecoder(FieldMapping{}, fixedID)
	require.NoError(t, err)

	events, err := d.DecodeBatch([]byte(`[
		{"timestamp": 1700000000.25, "instance": "P", "job": "etl_load", "event": "START", "message": "begin", "_id": 42},
		{"timestamp": "1700000060", "instance": "P", "job": "etl_load", "event": "END", "message": "done"}
	]`))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, model.Event{
		ID:        "42",
		Timestamp: time.Unix(1700000000, 250_000_000).UTC(),
		Env:       "P",
		Job:       "etl_load",
		Kind:      "START",
		Message:   "begin",
	}, events[0])
	assert.Equal(t, "generated", events[1].ID)
	assert.Equal(t, time.Unix(1700000060, 0).UTC(), events[1].Timestamp)
}

func TestDecoder_CustomMapping(t *testing.T) {
	d, err := NewDecoder(FieldMapping{
		Timestamp: "meta.ts",
		Env:       "meta.env",
		Job:       "name",
		Kind:      "type",
		Message:   "join(' ', lines)",
	}, fixedID)
	require.NoError(t, err)

	ev, err := d.DecodeRecord(json.RawMessage(`{
		"meta": {"ts": "2024-03-01T12:00:00Z", "env": "I"},
		"name": "sync", "type": "ERROR", "lines": ["disk", "full"]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "I", ev.Env)
	assert.Equal(t, "sync", ev.Job)
	assert.Equal(t, "ERROR", ev.Kind)
	assert.Equal(t, "disk full", ev.Message)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), ev.Timestamp)
}

func TestDecoder_Errors(t *testing.T) {
	_, err := NewDecoder(FieldMapping{Job: "foo[["}, nil)
	require.Error(t, err)

	d, err := NewDecoder(FieldMapping{}, fixedID)
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
	}{
		{name: "not an array", input: `{"job": "x"}`},
		{name: "missing timestamp", input: `[{"instance": "P", "job": "x", "event": "START"}]`},
		{name: "bad timestamp", input: `[{"timestamp": "yesterday", "instance": "P", "job": "x", "event": "START"}]`},
		{name: "missing job", input: `[{"timestamp": 1, "instance": "P", "event": "START"}]`},
		{name: "garbage", input: `[{"timestamp": 1,`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.DecodeBatch([]byte(tt.input))
			assert.Error(t, err)
		})
	}

	events, err := d.DecodeBatch([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestExecFetcher_Args(t *testing.T) {
	f := NewExecFetcher(ExecFetcherOptions{ConnectTimeout: 7 * time.Second, BatchSize: 50})

	args := f.Args(Host{
		Name:         "src1.example.com",
		User:         "tracker",
		KeyFile:      "/etc/jobtracker/id_rsa",
		Queue:        "/var/spool/jobs.q",
		QueueHandler: "/usr/local/bin/queue",
	})
	assert.Equal(t, []string{
		"-i", "/etc/jobtracker/id_rsa",
		"-x",
		"-o", "ConnectTimeout=7",
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=accept-new",
		"tracker@src1.example.com",
		"/usr/local/bin/queue -f /var/spool/jobs.q remove -t EPOCHE -i 50",
	}, args)

	noKey := f.Args(Host{Name: "src2", User: "tracker", Queue: "q", QueueHandler: "h"})
	assert.Equal(t, "-x", noKey[0])

	strict := NewExecFetcher(ExecFetcherOptions{StrictHostKeys: "yes"})
	assert.Contains(t, strict.Args(Host{Name: "src3"}), "StrictHostKeyChecking=yes")
}

func TestExecFetcher_Fetch(t *testing.T) {
	var gotName string
	f := NewExecFetcher(ExecFetcherOptions{Runner: func(_ context.Context, name string, _ ...string) ([]byte, error) {
		gotName = name
		return []byte(`[{"a":1},{"b":2}]`), nil
	}})

	records, err := f.Fetch(context.Background(), Host{Name: "h"})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, DefaultSSHBinary, gotName)

	empty := NewExecFetcher(ExecFetcherOptions{Runner: func(context.Context, string, ...string) ([]byte, error) {
		return []byte("\n"), nil
	}})
	records, err = empty.Fetch(context.Background(), Host{Name: "h"})
	require.NoError(t, err)
	assert.Empty(t, records)

	failing := NewExecFetcher(ExecFetcherOptions{Runner: func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit 255")
	}})
	_, err = failing.Fetch(context.Background(), Host{Name: "h"})
	require.Error(t, err)

	_, err = f.Fetch(context.Background(), Host{})
	require.Error(t, err)
}

type fakeFetcher struct {
	records map[string][]json.RawMessage
	fail    map[string]error
	delay   map[string]time.Duration
	calls   atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, host Host) ([]json.RawMessage, error) {
	f.calls.Add(1)
	if d := f.delay[host.Name]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.fail[host.Name]; err != nil {
		return nil, err
	}
	return f.records[host.Name], nil
}

func record(job string, ts int) json.RawMessage {
	b, _ := json.Marshal(map[string]any{"timestamp": ts, "instance": "P", "job": job, "event": "START", "message": ""})
	return b
}

func TestMultiSource_FanInPreservesHostOrder(t *testing.T) {
	fetcher := &fakeFetcher{
		records: map[string][]json.RawMessage{
			"a": {record("a1", 1), record("a2", 2)},
			"b": {record("b1", 3)},
			"c": {record("c1", 4)},
		},
		// The first host finishes last.
		delay: map[string]time.Duration{"a": 30 * time.Millisecond},
	}
	dec, err := NewDecoder(FieldMapping{}, fixedID)
	require.NoError(t, err)

	src, err := NewMultiSource(MultiSourceOptions{
		Hosts:   []Host{{Name: "a"}, {Name: "b"}, {Name: "c"}},
		Fetcher: fetcher,
		Decoder: dec,
		Workers: 3,
	})
	require.NoError(t, err)

	events, err := src.FetchAll(context.Background())
	require.NoError(t, err)
	jobs := make([]string, len(events))
	for i, e := range events {
		jobs[i] = e.Job
	}
	assert.Equal(t, []string{"a1", "a2", "b1", "c1"}, jobs)
	assert.Equal(t, int32(3), fetcher.calls.Load())
}

func TestMultiSource_AnyHostFailureFailsBatch(t *testing.T) {
	fetcher := &fakeFetcher{
		records: map[string][]json.RawMessage{"a": {record("a1", 1)}},
		fail:    map[string]error{"b": errors.New("connection refused")},
	}
	dec, err := NewDecoder(FieldMapping{}, fixedID)
	require.NoError(t, err)

	src, err := NewMultiSource(MultiSourceOptions{
		Hosts:   []Host{{Name: "a"}, {Name: "b", User: "tracker"}},
		Fetcher: fetcher,
		Decoder: dec,
	})
	require.NoError(t, err)

	events, err := src.FetchAll(context.Background())
	require.Error(t, err)
	assert.Nil(t, events)
	assert.Contains(t, err.Error(), "tracker@b")
}

func TestMultiSource_DecodeFailureFailsBatch(t *testing.T) {
	fetcher := &fakeFetcher{records: map[string][]json.RawMessage{"a": {json.RawMessage(`{"job": "x"}`)}}}
	dec, err := NewDecoder(FieldMapping{}, fixedID)
	require.NoError(t, err)

	src, err := NewMultiSource(MultiSourceOptions{Hosts: []Host{{Name: "a"}}, Fetcher: fetcher, Decoder: dec})
	require.NoError(t, err)

	_, err = src.FetchAll(context.Background())
	require.Error(t, err)
}

func TestNewMultiSource_Validation(t *testing.T) {
	dec, err := NewDecoder(FieldMapping{}, fixedID)
	require.NoError(t, err)

	_, err = NewMultiSource(MultiSourceOptions{Fetcher: &fakeFetcher{}, Decoder: dec})
	require.Error(t, err)
	_, err = NewMultiSource(MultiSourceOptions{Hosts: []Host{{Name: "a"}}, Decoder: dec})
	require.Error(t, err)
	_, err = NewMultiSource(MultiSourceOptions{Hosts: []Host{{Name: "a"}}, Fetcher: &fakeFetcher{}})
	require.Error(t, err)
}
