package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fieldline/fieldline/internal/observability/notify"
)

func TestServiceNotifyRunFailure(t *testing.T) {
	ctx := context.Background()

	var received []notify.RunFailurePayload
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{
				Name: "capture",
				Sink: notify.SinkFunc(func(ctx context.Context, payload notify.RunFailurePayload) error {
					received = append(received, payload)
					return nil
				}),
			},
		},
	})

	svc.NotifyRunFailure(ctx, notify.RunFailurePayload{
		SchedulerID: 123,
		JobType:     "ImportJob",
	})

	if len(received) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(received))
	}
	if received[0].Severity != notify.SeverityCritical {
		t.Fatalf("expected severity to default to critical, got %s", received[0].Severity)
	}
}

func TestServiceFansOutToAllSinks(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	seen := map[string]bool{}
	capture := func(name string) notify.Sink {
		return notify.SinkFunc(func(ctx context.Context, payload notify.RunFailurePayload) error {
			mu.Lock()
			seen[name] = true
			mu.Unlock()
			return nil
		})
	}

	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{Name: "first", Sink: capture("first")},
			{Name: "second", Sink: capture("second")},
		},
	})

	svc.NotifyRunFailure(ctx, notify.RunFailurePayload{SchedulerID: 7})

	if !seen["first"] || !seen["second"] {
		t.Fatalf("expected both sinks to receive the payload, got %v", seen)
	}
}

func TestServiceDisabled(t *testing.T) {
	svc := NewService(Options{})
	if svc.Enabled() {
		t.Fatal("expected Enabled() to be false when no sinks registered")
	}
}

func TestServiceSkipsNilSinks(t *testing.T) {
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{Name: "missing", Sink: nil},
		},
	})
	if svc.Enabled() {
		t.Fatal("expected Enabled() to be false when only nil sinks registered")
	}
}

func TestServiceLogsErrors(t *testing.T) {
	// Ensure we don't panic when sink returns an error.
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{
				Name: "fail",
				Sink: notify.SinkFunc(func(ctx context.Context, payload notify.RunFailurePayload) error {
					return errors.New("boom")
				}),
			},
		},
	})

	svc.NotifyRunFailure(context.Background(), notify.RunFailurePayload{SchedulerID: 123})
}
