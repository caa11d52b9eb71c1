package testutil

import (
	"context"
	"database/sql"
	"time"

	"github.com/fieldline/fieldline/internal/domain/model"
)

// ScheduleEntryBuilder inserts schedule_entries rows for integration tests.
// Zero-value usage yields an enabled hourly import entry that has never run.
type ScheduleEntryBuilder struct {
	entry model.ScheduleEntry
}

// NewScheduleEntry starts a builder for the given scheduler ID.
func NewScheduleEntry(schedulerID int64) *ScheduleEntryBuilder {
	return &ScheduleEntryBuilder{
		entry: model.ScheduleEntry{
			SchedulerID:   schedulerID,
			JobType:       model.JobTypeImport,
			Interval:      time.Hour,
			Enabled:       true,
			LastRunStatus: model.RunStatusIdle,
		},
	}
}

// WithJobType sets the entry's job type.
func (b *ScheduleEntryBuilder) WithJobType(jt model.JobType) *ScheduleEntryBuilder {
	b.entry.JobType = jt
	return b
}

// WithConfigReference sets the entry's config reference.
func (b *ScheduleEntryBuilder) WithConfigReference(ref string) *ScheduleEntryBuilder {
	b.entry.ConfigReference = &ref
	return b
}

// WithInterval sets the scheduling interval.
func (b *ScheduleEntryBuilder) WithInterval(d time.Duration) *ScheduleEntryBuilder {
	b.entry.Interval = d
	return b
}

// Disabled marks the entry disabled.
func (b *ScheduleEntryBuilder) Disabled() *ScheduleEntryBuilder {
	b.entry.Enabled = false
	return b
}

// WithLastRun records a previous run on the entry.
func (b *ScheduleEntryBuilder) WithLastRun(status model.RunStatus, at time.Time) *ScheduleEntryBuilder {
	b.entry.LastRunStatus = status
	t := at.UTC()
	b.entry.LastRunAt = &t
	return b
}

// WithLastRunUUID records the run identifier of the previous run.
func (b *ScheduleEntryBuilder) WithLastRunUUID(uuid string) *ScheduleEntryBuilder {
	b.entry.LastRunUUID = &uuid
	return b
}

// Build returns the accumulated entry without touching the database.
func (b *ScheduleEntryBuilder) Build() model.ScheduleEntry {
	return b.entry
}

// Insert writes the entry and returns it.
func (b *ScheduleEntryBuilder) Insert(t TestingTB, db *sql.DB) model.ScheduleEntry {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const query = `
		INSERT INTO schedule_entries
			(scheduler_id, job_type, config_reference, scheduled_interval,
			 enabled, last_run_at, last_run_status, last_run_uuid)
		VALUES ($1, $2, $3, $4 * interval '1 second', $5, $6, $7, $8)
	`
	_, err := db.ExecContext(ctx, query,
		b.entry.SchedulerID,
		string(b.entry.JobType),
		b.entry.ConfigReference,
		int64(b.entry.Interval/time.Second),
		b.entry.Enabled,
		b.entry.LastRunAt,
		string(b.entry.LastRunStatus),
		b.entry.LastRunUUID,
	)
	if err != nil {
		t.Fatalf("insert schedule entry %d: %v", b.entry.SchedulerID, err)
	}
	return b.entry
}

// InsertRunRecord writes one run_records row, simulating the log output a job
// process emits, and returns the generated row ID.
func InsertRunRecord(t TestingTB, db *sql.DB, runUUID, processType string, ts time.Time, message string) int64 {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const query = `
		INSERT INTO run_records (run_uuid, process_type, ts, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var id int64
	if err := db.QueryRowContext(ctx, query, runUUID, processType, ts.UTC(), message).Scan(&id); err != nil {
		t.Fatalf("insert run record for %s: %v", runUUID, err)
	}
	return id
}
