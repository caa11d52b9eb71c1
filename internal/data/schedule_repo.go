package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fieldline/fieldline/internal/data/pgxutil"
	"github.com/fieldline/fieldline/internal/domain/model"
)

// ScheduleRepo provides database operations for schedule entry management.
type ScheduleRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewScheduleRepo creates a new ScheduleRepo instance with the given database connection.
func NewScheduleRepo(db *sql.DB) *ScheduleRepo {
	return &ScheduleRepo{
		DB:           db,
		timeProvider: &RealTimeProvider{},
	}
}

// NewScheduleRepoWithTimeProvider creates a ScheduleRepo with a custom TimeProvider (useful for testing).
func NewScheduleRepoWithTimeProvider(db *sql.DB, timeProvider TimeProvider) *ScheduleRepo {
	return &ScheduleRepo{
		DB:           db,
		timeProvider: timeProvider,
	}
}

// entryLockKey computes the FNV-1a 64-bit advisory lock key for a schedule entry.
// The "schedule:" namespace keeps these keys disjoint from any other advisory
// lock users sharing the database.
func entryLockKey(schedulerID int64) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("schedule:" + strconv.FormatInt(schedulerID, 10)))
	// Advisory locks accept BIGINT; constrain the unsigned hash into int64 range before casting.
	u := h.Sum64()
	if u > uint64(math.MaxInt64) {
		u %= uint64(math.MaxInt64)
	}
	return int64(u) // #nosec G115 -- value is explicitly bounded to <= MaxInt64 before casting to int64.
}

const scheduleColumns = `
  scheduler_id,
  job_type,
  config_reference,
  EXTRACT(EPOCH FROM scheduled_interval)::bigint AS interval_seconds,
  enabled,
  last_run_at,
  last_run_status,
  last_run_uuid,
  created_at,
  updated_at
`

// GetBySchedulerID retrieves a schedule entry by its primary key.
func (r *ScheduleRepo) GetBySchedulerID(ctx context.Context, schedulerID int64) (*model.ScheduleEntry, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM schedule_entries
		WHERE scheduler_id = $1
	`

	var entry *model.ScheduleEntry
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, query, schedulerID)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		row, collectErr := pgx.CollectExactlyOneRow(rows, rowToScheduleEntry)
		if collectErr != nil {
			if errors.Is(collectErr, pgx.ErrNoRows) {
				return ErrScheduleEntryNotFound
			}
			return collectErr
		}
		entry = row
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrScheduleEntryNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("query schedule entry %d: %w", schedulerID, err)
	}

	return entry, nil
}

// List returns all schedule entries ordered by scheduler_id.
func (r *ScheduleRepo) List(ctx context.Context) ([]*model.ScheduleEntry, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM schedule_entries
		ORDER BY scheduler_id ASC
	`

	var entries []*model.ScheduleEntry
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, query)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		collected, collectErr := pgx.CollectRows(rows, rowToScheduleEntry)
		if collectErr != nil {
			return collectErr
		}
		entries = collected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list schedule entries: %w", err)
	}

	return entries, nil
}

// FindDue finds enabled schedule entries that are due for execution.
// Uses FOR UPDATE SKIP LOCKED to prevent concurrent schedulers from claiming the same entries.
// An entry is due when last_run_at IS NULL OR last_run_at + interval <= now, and
// it is not already Running.
func (r *ScheduleRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduleEntry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	query := `
		SELECT ` + scheduleColumns + `
		FROM schedule_entries
		WHERE enabled
		  AND last_run_status <> 'Running'
		  AND (last_run_at IS NULL OR last_run_at + scheduled_interval <= $1)
		ORDER BY
			CASE WHEN last_run_at IS NULL THEN 0 ELSE 1 END,
			last_run_at ASC,
			scheduler_id ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`

	var entries []*model.ScheduleEntry
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, query, now.UTC(), limit)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		collected, collectErr := pgx.CollectRows(rows, rowToScheduleEntry)
		if collectErr != nil {
			return collectErr
		}
		entries = collected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query due schedule entries: %w", err)
	}

	return entries, nil
}

// MarkRunning transitions an entry to Running. This is the executor's entry
// action; it happens strictly before the child process is spawned.
// Return semantics:
//   - (true, nil): entry found and updated
//   - (false, nil): entry not found
//   - (false, err): update failed due to error
func (r *ScheduleRepo) MarkRunning(ctx context.Context, schedulerID int64, now time.Time) (bool, error) {
	query := `
		UPDATE schedule_entries
		SET last_run_status = 'Running', updated_at = $2
		WHERE scheduler_id = $1
	`

	res, err := r.DB.ExecContext(ctx, query, schedulerID, now.UTC())
	if err != nil {
		return false, fmt.Errorf("mark schedule entry running: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// FinalizeRun atomically persists the terminal status, run timestamp, and run
// identifier onto a schedule entry in a single UPDATE.
// Return semantics follow MarkRunning.
func (r *ScheduleRepo) FinalizeRun(ctx context.Context, params model.FinalizeRunParams) (bool, error) {
	if err := params.Validate(); err != nil {
		return false, fmt.Errorf("validate finalize params: %w", err)
	}

	query := `
		UPDATE schedule_entries
		SET last_run_status = $2,
		    last_run_at = $3,
		    last_run_uuid = $4,
		    updated_at = $5
		WHERE scheduler_id = $1
	`

	res, err := r.DB.ExecContext(ctx, query,
		params.SchedulerID,
		string(params.Status),
		params.RanAt.UTC(),
		params.RunUUID,
		r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("finalize schedule entry run: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// TryWithEntryLock attempts to acquire an advisory lock for the given entry.
// If the lock is acquired, executes fn within the same transaction.
// Return semantics:
//   - (false, nil): lock not acquired; fn was not executed
//   - (true, nil): lock acquired; fn executed and succeeded
//   - (true, err): lock acquired; fn executed and failed with err
func (r *ScheduleRepo) TryWithEntryLock(
	ctx context.Context,
	schedulerID int64,
	fn func(context.Context, *sql.Tx) error,
) (bool, error) {
	lockKey := entryLockKey(schedulerID)

	var locked bool
	var fnErr error

	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1)", lockKey).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock for entry %d: %w", schedulerID, err)
			}

			if !locked {
				return nil // Lock not acquired, but no error
			}

			// Lock acquired; the function error is reported separately so the
			// transaction still commits whatever fn changed before failing.
			fnErr = fn(ctx, tx)
			return nil
		},
	})
	if err != nil {
		return false, err
	}

	return locked, fnErr
}

// scheduleEntryRow represents the database row structure for schedule entries.
// This struct matches the database schema exactly, allowing pgx.RowToStructByName to work.
type scheduleEntryRow struct {
	SchedulerID     int64          `db:"scheduler_id"`
	JobType         string         `db:"job_type"`
	ConfigReference sql.NullString `db:"config_reference"`
	IntervalSeconds sql.NullInt64  `db:"interval_seconds"`
	Enabled         bool           `db:"enabled"`
	LastRunAt       sql.NullTime   `db:"last_run_at"`
	LastRunStatus   string         `db:"last_run_status"`
	LastRunUUID     sql.NullString `db:"last_run_uuid"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

// toModelScheduleEntry converts a scheduleEntryRow to model.ScheduleEntry.
func (r *scheduleEntryRow) toModelScheduleEntry() *model.ScheduleEntry {
	entry := &model.ScheduleEntry{
		SchedulerID:   r.SchedulerID,
		JobType:       model.JobType(r.JobType),
		Enabled:       r.Enabled,
		LastRunStatus: model.RunStatus(r.LastRunStatus),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}

	if r.IntervalSeconds.Valid {
		entry.Interval = time.Duration(r.IntervalSeconds.Int64) * time.Second
	}
	if r.ConfigReference.Valid && r.ConfigReference.String != "" {
		ref := r.ConfigReference.String
		entry.ConfigReference = &ref
	}
	if r.LastRunAt.Valid {
		t := r.LastRunAt.Time
		entry.LastRunAt = &t
	}
	if r.LastRunUUID.Valid && r.LastRunUUID.String != "" {
		id := r.LastRunUUID.String
		entry.LastRunUUID = &id
	}

	return entry
}

// rowToScheduleEntry maps a pgx row to model.ScheduleEntry using pgx v5 generics.
func rowToScheduleEntry(row pgx.CollectableRow) (*model.ScheduleEntry, error) {
	dbRow, err := pgx.RowToStructByName[scheduleEntryRow](row)
	if err != nil {
		return nil, fmt.Errorf("scan schedule entry row: %w", err)
	}
	return dbRow.toModelScheduleEntry(), nil
}
