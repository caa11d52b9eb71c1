package metrics

import (
	"time"

	"github.com/fieldline/fieldline/internal/observability/statsd"
)

// Outcome constants for metric tagging.
const (
	OutcomeSuccess      = "success"
	OutcomeFailed       = "failed"
	OutcomeTimedOut     = "timed_out"
	OutcomeLaunchFailed = "launch_failed"
	OutcomeSkipped      = "skipped"
)

// RunMetric captures details about a schedule execution for metric emission.
type RunMetric struct {
	JobType       string
	Outcome       string
	RunIDSource   string
	RunIDResolved bool
	Duration      time.Duration
	Err           error
}

// EmitRunLifecycle emits standardised execution lifecycle metrics.
func EmitRunLifecycle(sink statsd.Sink, in RunMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"job_type": in.JobType,
		"outcome":  in.Outcome,
	}

	if in.Err != nil {
		if class := ErrorClass(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("run.completed", 1, tags)

	if in.Duration > 0 {
		sink.Timing("run.duration", in.Duration, CloneTags(tags))
	}

	idTags := map[string]string{
		"job_type": in.JobType,
		"resolved": boolTag(in.RunIDResolved),
	}
	if in.RunIDResolved && in.RunIDSource != "" {
		idTags["source"] = in.RunIDSource
	}
	sink.Count("run.id_resolution", 1, idTags)
}

// EmitSchedulerTick emits claim counters for one scheduler pass.
func EmitSchedulerTick(sink statsd.Sink, claimed, skipped int64) {
	if sink == nil {
		return
	}
	sink.Count("scheduler.claimed", claimed, nil)
	if skipped > 0 {
		sink.Count("scheduler.skipped", skipped, map[string]string{"outcome": OutcomeSkipped})
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
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

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
