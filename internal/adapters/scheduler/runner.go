// Package scheduler provides the adapter that runs the schedule claim loop.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/fieldline/fieldline/internal/core"
	"github.com/fieldline/fieldline/internal/data"
	"github.com/fieldline/fieldline/internal/observability/metrics"
	"github.com/fieldline/fieldline/internal/observability/statsd"
	"github.com/fieldline/fieldline/internal/service"
)

// Runner drives the scheduler service on a fixed tick interval until its
// context is cancelled.
type Runner struct {
	scheduler *service.SchedulerService
	interval  time.Duration
	logger    *slog.Logger
	metrics   statsd.Sink
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB       *sql.DB
	Executor *service.ExecutorService
	Config   core.SchedulerConfig

	Logger  *slog.Logger // Optional: structured logger
	Metrics statsd.Sink  // Optional: metrics sink

	// Optional dependency injection for testing/decoupling
	Schedules core.ScheduleRepository
}

// NewRunner creates a new scheduler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	schedules := opts.Schedules
	if schedules == nil {
		schedules = data.NewScheduleRepo(opts.DB)
	}

	scheduler, err := service.NewSchedulerService(service.SchedulerServiceOptions{
		Schedules: schedules,
		Executor:  opts.Executor,
		Config:    opts.Config,
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Runner{
		scheduler: scheduler,
		interval:  opts.Config.Interval,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && opts.Schedules == nil {
		return errors.New("database connection is required")
	}
	if opts.Executor == nil {
		return errors.New("executor service is required")
	}
	if opts.Config.Interval <= 0 {
		opts.Config.Interval = core.DefaultSchedulerConfig().Interval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run starts the scheduler loop and runs until the context is cancelled.
// It calls Tick() at the configured interval and logs the results.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting scheduler runner", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "scheduler runner stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case now := <-ticker.C:
			start := time.Now()
			started, err := r.scheduler.Tick(ctx, now)
			elapsed := time.Since(start)

			r.emitTickMetrics(started, elapsed, err)

			switch {
			case err != nil && data.IsTransient(err):
				// Continue running; the next tick retries naturally.
				r.logger.WarnContext(ctx, "scheduler tick failed transiently", "error", err)
			case err != nil:
				// Continue running despite errors.
				r.logger.ErrorContext(ctx, "scheduler tick failed", "error", err)
			case started > 0:
				r.logger.InfoContext(ctx, "scheduler tick complete",
					"executions_started", started, "elapsed", elapsed)
			}
		}
	}
}

func (r *Runner) emitTickMetrics(started int, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}

	tags := map[string]string{"result": "success"}
	if err != nil {
		tags["result"] = "error"
		if class := metrics.ErrorClass(err); class != "" {
			tags["error_class"] = class
		}
	} else if started == 0 {
		tags["result"] = "noop"
	}

	r.metrics.Count("scheduler.tick", 1, tags)
	if started > 0 {
		r.metrics.Count("scheduler.executions_started", int64(started), metrics.CloneTags(tags))
	}
	if elapsed > 0 {
		r.metrics.Timing("scheduler.tick_duration", elapsed, metrics.CloneTags(tags))
	}
	if err == nil {
		r.metrics.Gauge("scheduler.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}
