package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/fieldline/fieldline/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// ScheduleRepository defines the interface for schedule entry data operations.
type ScheduleRepository interface {
	// GetBySchedulerID retrieves a schedule entry by its primary key.
	GetBySchedulerID(ctx context.Context, schedulerID int64) (*model.ScheduleEntry, error)

	// List returns all schedule entries ordered by scheduler_id (console/CLI surface).
	List(ctx context.Context) ([]*model.ScheduleEntry, error)

	// FindDue finds enabled entries that are due for execution.
	// Uses FOR UPDATE SKIP LOCKED so concurrent scheduler replicas never claim
	// the same entry twice. An entry is due when last_run_at IS NULL OR
	// last_run_at + interval <= now, and it is not currently Running.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduleEntry, error)

	// MarkRunning transitions an entry to Running and stamps updated_at.
	// Return semantics:
	//   - (true, nil): entry found and updated
	//   - (false, nil): entry not found
	//   - (false, err): update failed
	MarkRunning(ctx context.Context, schedulerID int64, now time.Time) (bool, error)

	// FinalizeRun atomically persists the terminal status, run timestamp, and
	// run identifier for an entry. This is the executor's exit action; it must
	// be a single UPDATE so a crash cannot leave a half-finalized row.
	FinalizeRun(ctx context.Context, params model.FinalizeRunParams) (bool, error)

	// TryWithEntryLock attempts a per-entry advisory lock and runs fn inside
	// the locking transaction when acquired.
	// Return semantics:
	//   - (false, nil): lock not acquired; fn was not executed
	//   - (true, nil): lock acquired; fn executed and succeeded
	//   - (true, err): lock acquired; fn executed and failed with err
	TryWithEntryLock(
		ctx context.Context,
		schedulerID int64,
		fn func(context.Context, *sql.Tx) error,
	) (bool, error)
}

// RecoverRunIDParams groups parameters for RunRecordRepository.EarliestRunSince.
type RecoverRunIDParams struct {
	// StartedAfter is the execution's recorded start time; rows before it can
	// never belong to this run.
	StartedAfter time.Time
	// ProcessTypeHint restricts recovery to rows of one job kind when known.
	// Empty means no restriction.
	ProcessTypeHint string
}

// RunRecordRepository defines read-only access to job process log rows.
// Job processes write these rows themselves; this service only queries them
// to recover run identifiers.
type RunRecordRepository interface {
	// EarliestRunSince returns the run_uuid of the earliest (lowest-timestamp)
	// row at or after the cutoff, optionally restricted by process type.
	// Returns data.ErrRunRecordNotFound when no row matches.
	//
	// Earliest-after-cutoff, never most-recent: under concurrency the most
	// recent row may belong to a later, unrelated execution.
	EarliestRunSince(ctx context.Context, params RecoverRunIDParams) (string, error)
}

// StatusCache is a best-effort projection of last run state for cheap console
// polling. Failures are logged, never surfaced to the execution path.
type StatusCache interface {
	SetLastRun(ctx context.Context, entry *model.ScheduleEntry) error
	GetLastRun(ctx context.Context, schedulerID int64) (*model.ScheduleEntry, error)
}
