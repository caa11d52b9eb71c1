package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestErrorClass(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"wrapped deadline", fmt.Errorf("tick: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"network", &net.OpError{Op: "dial", Err: timeoutErr{}}, "network"},
		{"innermost type", fmt.Errorf("find due: %w", &net.AddrError{Err: "x", Addr: "y"}), "network"},
		{"plain", errors.New("boom"), "errors_errorstring"},
		{"wrapped plain", fmt.Errorf("outer: %w", errors.New("boom")), "errors_errorstring"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ErrorClass(tc.err))
		})
	}
}

// captureSink records emissions for assertions.
type captureSink struct {
	counts  map[string]map[string]string
	timings map[string]time.Duration
}

func newCaptureSink() *captureSink {
	return &captureSink{
		counts:  map[string]map[string]string{},
		timings: map[string]time.Duration{},
	}
}

func (s *captureSink) Count(name string, _ int64, tags map[string]string) { s.counts[name] = tags }
func (s *captureSink) Gauge(string, float64, map[string]string)           {}
func (s *captureSink) Timing(name string, value time.Duration, _ map[string]string) {
	s.timings[name] = value
}

func TestEmitRunLifecycle(t *testing.T) {
	t.Parallel()

	sink := newCaptureSink()
	EmitRunLifecycle(sink, RunMetric{
		JobType:       "import",
		Outcome:       OutcomeFailed,
		RunIDSource:   "ledger",
		RunIDResolved: true,
		Duration:      2 * time.Second,
		Err:           fmt.Errorf("finalize: %w", context.DeadlineExceeded),
	})

	assert.Equal(t, map[string]string{
		"job_type":    "import",
		"outcome":     "failed",
		"error_class": "timeout",
	}, sink.counts["run.completed"])
	assert.Equal(t, 2*time.Second, sink.timings["run.duration"])
	assert.Equal(t, map[string]string{
		"job_type": "import",
		"resolved": "true",
		"source":   "ledger",
	}, sink.counts["run.id_resolution"])
}
