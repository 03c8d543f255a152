package metrics

import (
	"time"

	obserrors "github.com/target/jobtracker/internal/observability/errors"
	"github.com/target/jobtracker/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// JobStateMetric captures the outcome of one job evaluation.
type JobStateMetric struct {
	Job    string
	Env    string
	Status string
}

// EmitJobState emits the standardised per-job state counter.
func EmitJobState(sink statsd.Sink, in JobStateMetric) {
	if sink == nil {
		return
	}
	sink.Count("job.state", 1, map[string]string{
		"job":   in.Job,
		"env":   in.Env,
		"state": in.Status,
	})
}

// CycleMetric captures details about one orchestration cycle.
type CycleMetric struct {
	Result   string
	Jobs     int
	Duration time.Duration
	Err      error
}

// EmitCycle emits standardised cycle metrics.
func EmitCycle(sink statsd.Sink, in CycleMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{"result": in.Result}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("cycle.completed", 1, tags)
	if in.Jobs > 0 {
		sink.Gauge("cycle.jobs", float64(in.Jobs), CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("cycle.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
