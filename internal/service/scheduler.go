// Package service provides business logic services for the fieldline execution system.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fieldline/fieldline/internal/core"
	"github.com/fieldline/fieldline/internal/data"
	"github.com/fieldline/fieldline/internal/domain/model"
)

// errEntryNotDue signals that the locked re-check found the entry no longer
// due. It never escapes SchedulerService.
var errEntryNotDue = errors.New("entry no longer due")

// SchedulerServiceOptions holds the dependencies for creating a SchedulerService.
type SchedulerServiceOptions struct {
	Schedules core.ScheduleRepository // Required: schedule entry repository
	Executor  *ExecutorService        // Required: runs claimed entries

	Config       core.SchedulerConfig
	TimeProvider data.TimeProvider // Optional: defaults to real time
	Logger       *slog.Logger      // Optional: structured logger
}

// SchedulerService claims due schedule entries and hands them to the executor.
// Safe under concurrent replicas: FindDue uses FOR UPDATE SKIP LOCKED, and a
// per-entry advisory lock guards the claim re-check, so no two replicas start
// the same entry.
type SchedulerService struct {
	schedules core.ScheduleRepository
	executor  *ExecutorService

	cfg          core.SchedulerConfig
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// NewSchedulerService constructs a new SchedulerService.
func NewSchedulerService(opts SchedulerServiceOptions) (*SchedulerService, error) {
	if opts.Schedules == nil {
		return nil, errors.New("ScheduleRepository is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("ExecutorService is required")
	}
	if opts.Config.BatchSize <= 0 {
		opts.Config.BatchSize = core.DefaultSchedulerConfig().BatchSize
	}
	if opts.Config.MaxConcurrent <= 0 {
		opts.Config.MaxConcurrent = core.DefaultSchedulerConfig().MaxConcurrent
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &SchedulerService{
		schedules:    opts.Schedules,
		executor:     opts.Executor,
		cfg:          opts.Config,
		timeProvider: opts.TimeProvider,
		logger:       opts.Logger.With("component", "scheduler"),
	}, nil
}

// Tick claims due entries and executes them, bounded by MaxConcurrent.
// Returns the number of executions started. Per-entry failures are logged and
// do not abort the tick; the executor's exit action already persisted their
// terminal status.
func (s *SchedulerService) Tick(ctx context.Context, now time.Time) (int, error) {
	due, err := s.schedules.FindDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("find due entries: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	var started atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrent)

	for _, entry := range due {
		g.Go(func() error {
			if s.claimAndExecute(gctx, entry, now) {
				started.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(started.Load()), nil
}

// claimAndExecute takes the per-entry advisory lock, re-checks dueness under
// it, and runs the entry. Returns true when an execution was started.
func (s *SchedulerService) claimAndExecute(ctx context.Context, entry *model.ScheduleEntry, now time.Time) bool {
	claimed, err := s.schedules.TryWithEntryLock(ctx, entry.SchedulerID,
		func(ctx context.Context, _ *sql.Tx) error {
			// Another replica may have run this entry between FindDue and
			// lock acquisition; the snapshot from FindDue is stale by now.
			current, checkErr := s.schedules.GetBySchedulerID(ctx, entry.SchedulerID)
			if checkErr != nil {
				return fmt.Errorf("re-check entry %d: %w", entry.SchedulerID, checkErr)
			}
			if !entryDue(current, now) {
				return errEntryNotDue
			}
			// Mark Running while still holding the lock. A later replica's
			// re-check then sees Running and skips; without this the window
			// between lock release and the executor's own mark would let two
			// replicas claim the same entry.
			marked, markErr := s.schedules.MarkRunning(ctx, entry.SchedulerID, s.timeProvider.Now())
			if markErr != nil {
				return fmt.Errorf("mark entry %d running: %w", entry.SchedulerID, markErr)
			}
			if !marked {
				return errEntryNotDue
			}
			return nil
		})
	if err != nil {
		if errors.Is(err, errEntryNotDue) {
			return false
		}
		s.logger.ErrorContext(ctx, "failed to claim schedule entry",
			"scheduler_id", entry.SchedulerID, "error", err)
		return false
	}
	if !claimed {
		// Another replica holds the lock.
		return false
	}

	_, execErr := s.executor.Execute(ctx, entry.SchedulerID, nil)
	switch {
	case execErr == nil:
		return true
	case errors.Is(execErr, ErrFinalizePersistence):
		// The job ran; only recording its outcome failed.
		s.logger.ErrorContext(ctx, "execution finished but outcome persistence failed",
			"scheduler_id", entry.SchedulerID, "error", execErr)
		return true
	default:
		s.logger.ErrorContext(ctx, "execution failed",
			"scheduler_id", entry.SchedulerID, "error", execErr)
		return false
	}
}

// entryDue reports whether the entry should run now.
func entryDue(e *model.ScheduleEntry, now time.Time) bool {
	if !e.Enabled || e.LastRunStatus == model.RunStatusRunning {
		return false
	}
	if e.LastRunAt == nil {
		return true
	}
	return !e.LastRunAt.Add(e.Interval).After(now)
}
