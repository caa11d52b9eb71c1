package data_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/fieldline/fieldline/internal/data"
	"github.com/fieldline/fieldline/internal/domain/model"
	"github.com/fieldline/fieldline/internal/testutil"
)

func TestScheduleRepoGetBySchedulerID(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := data.NewScheduleRepo(db)

		ref := "monthly-feeds"
		testutil.NewScheduleEntry(101).
			WithJobType(model.JobTypeReport).
			WithConfigReference(ref).
			WithInterval(30 * time.Minute).
			Insert(t, db)

		entry, err := repo.GetBySchedulerID(ctx, 101)
		if err != nil {
			t.Fatalf("GetBySchedulerID: %v", err)
		}
		if entry.JobType != model.JobTypeReport {
			t.Errorf("job type = %q, want %q", entry.JobType, model.JobTypeReport)
		}
		if entry.Interval != 30*time.Minute {
			t.Errorf("interval = %s, want 30m", entry.Interval)
		}
		if entry.ConfigReference == nil || *entry.ConfigReference != ref {
			t.Errorf("config reference = %v, want %q", entry.ConfigReference, ref)
		}
		if entry.LastRunStatus != model.RunStatusIdle {
			t.Errorf("last run status = %q, want Idle", entry.LastRunStatus)
		}

		if _, err := repo.GetBySchedulerID(ctx, 9999); !errors.Is(err, data.ErrScheduleEntryNotFound) {
			t.Errorf("missing entry: err = %v, want ErrScheduleEntryNotFound", err)
		}
	})
}

func TestScheduleRepoList(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := data.NewScheduleRepo(db)

		testutil.NewScheduleEntry(3).Insert(t, db)
		testutil.NewScheduleEntry(1).Insert(t, db)
		testutil.NewScheduleEntry(2).Disabled().Insert(t, db)

		entries, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("got %d entries, want 3", len(entries))
		}
		for i, want := range []int64{1, 2, 3} {
			if entries[i].SchedulerID != want {
				t.Errorf("entries[%d].SchedulerID = %d, want %d", i, entries[i].SchedulerID, want)
			}
		}
	})
}

func TestScheduleRepoFindDue(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := data.NewScheduleRepo(db)
		now := time.Now().UTC()

		// Never run: due immediately.
		testutil.NewScheduleEntry(1).Insert(t, db)
		// Overdue: last run two hours ago with an hourly interval.
		testutil.NewScheduleEntry(2).
			WithLastRun(model.RunStatusSuccess, now.Add(-2*time.Hour)).
			Insert(t, db)
		// Fresh: ran five minutes ago, not due for another 55 minutes.
		testutil.NewScheduleEntry(3).
			WithLastRun(model.RunStatusSuccess, now.Add(-5*time.Minute)).
			Insert(t, db)
		// Disabled entries are never due.
		testutil.NewScheduleEntry(4).Disabled().Insert(t, db)
		// In-flight entries are never due.
		testutil.NewScheduleEntry(5).
			WithLastRun(model.RunStatusRunning, now.Add(-2*time.Hour)).
			Insert(t, db)

		due, err := repo.FindDue(ctx, now, 10)
		if err != nil {
			t.Fatalf("FindDue: %v", err)
		}
		if len(due) != 2 {
			t.Fatalf("got %d due entries, want 2", len(due))
		}
		// Never-run entries sort before previously-run ones.
		if due[0].SchedulerID != 1 {
			t.Errorf("due[0].SchedulerID = %d, want 1", due[0].SchedulerID)
		}
		if due[1].SchedulerID != 2 {
			t.Errorf("due[1].SchedulerID = %d, want 2", due[1].SchedulerID)
		}
	})
}

func TestScheduleRepoFindDueRespectsLimit(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := data.NewScheduleRepo(db)

		for id := int64(1); id <= 5; id++ {
			testutil.NewScheduleEntry(id).Insert(t, db)
		}

		due, err := repo.FindDue(ctx, time.Now().UTC(), 2)
		if err != nil {
			t.Fatalf("FindDue: %v", err)
		}
		if len(due) != 2 {
			t.Errorf("got %d due entries, want 2", len(due))
		}

		if _, err := repo.FindDue(ctx, time.Now().UTC(), 0); err == nil {
			t.Error("FindDue with zero limit: want error, got nil")
		}
	})
}

func TestScheduleRepoMarkRunning(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := data.NewScheduleRepo(db)
		now := time.Now().UTC()

		testutil.NewScheduleEntry(7).Insert(t, db)

		updated, err := repo.MarkRunning(ctx, 7, now)
		if err != nil {
			t.Fatalf("MarkRunning: %v", err)
		}
		if !updated {
			t.Fatal("MarkRunning returned false for an existing entry")
		}

		entry, err := repo.GetBySchedulerID(ctx, 7)
		if err != nil {
			t.Fatalf("GetBySchedulerID: %v", err)
		}
		if entry.LastRunStatus != model.RunStatusRunning {
			t.Errorf("last run status = %q, want Running", entry.LastRunStatus)
		}

		updated, err = repo.MarkRunning(ctx, 9999, now)
		if err != nil {
			t.Fatalf("MarkRunning missing entry: %v", err)
		}
		if updated {
			t.Error("MarkRunning returned true for a missing entry")
		}
	})
}

func TestScheduleRepoFinalizeRun(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := data.NewScheduleRepo(db)
		ranAt := time.Now().UTC().Truncate(time.Microsecond)

		testutil.NewScheduleEntry(11).
			WithLastRun(model.RunStatusRunning, ranAt.Add(-time.Minute)).
			Insert(t, db)

		runUUID := "4fbe2a1c-0000-4000-8000-000000000042"
		updated, err := repo.FinalizeRun(ctx, model.FinalizeRunParams{
			SchedulerID: 11,
			Status:      model.RunStatusSuccess,
			RanAt:       ranAt,
			RunUUID:     &runUUID,
		})
		if err != nil {
			t.Fatalf("FinalizeRun: %v", err)
		}
		if !updated {
			t.Fatal("FinalizeRun returned false for an existing entry")
		}

		entry, err := repo.GetBySchedulerID(ctx, 11)
		if err != nil {
			t.Fatalf("GetBySchedulerID: %v", err)
		}
		if entry.LastRunStatus != model.RunStatusSuccess {
			t.Errorf("last run status = %q, want Success", entry.LastRunStatus)
		}
		if entry.LastRunAt == nil || !entry.LastRunAt.Equal(ranAt) {
			t.Errorf("last run at = %v, want %v", entry.LastRunAt, ranAt)
		}
		if entry.LastRunUUID == nil || *entry.LastRunUUID != runUUID {
			t.Errorf("last run uuid = %v, want %q", entry.LastRunUUID, runUUID)
		}
	})
}

func TestScheduleRepoFinalizeRunWithoutUUID(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := data.NewScheduleRepo(db)
		ranAt := time.Now().UTC()

		testutil.NewScheduleEntry(12).
			WithLastRunUUID("previous-uuid").
			Insert(t, db)

		updated, err := repo.FinalizeRun(ctx, model.FinalizeRunParams{
			SchedulerID: 12,
			Status:      model.RunStatusFailed,
			RanAt:       ranAt,
			RunUUID:     nil,
		})
		if err != nil {
			t.Fatalf("FinalizeRun: %v", err)
		}
		if !updated {
			t.Fatal("FinalizeRun returned false for an existing entry")
		}

		entry, err := repo.GetBySchedulerID(ctx, 12)
		if err != nil {
			t.Fatalf("GetBySchedulerID: %v", err)
		}
		if entry.LastRunStatus != model.RunStatusFailed {
			t.Errorf("last run status = %q, want Failed", entry.LastRunStatus)
		}
		// A nil UUID clears any stale identifier from the prior run.
		if entry.LastRunUUID != nil {
			t.Errorf("last run uuid = %q, want cleared", *entry.LastRunUUID)
		}
	})
}

func TestScheduleRepoFinalizeRunRejectsInvalidParams(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := data.NewScheduleRepo(db)

		if _, err := repo.FinalizeRun(ctx, model.FinalizeRunParams{
			SchedulerID: 1,
			Status:      model.RunStatusRunning,
			RanAt:       time.Now(),
		}); err == nil {
			t.Error("FinalizeRun with non-terminal status: want error, got nil")
		}
	})
}

func TestScheduleRepoTryWithEntryLock(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := data.NewScheduleRepo(db)

		testutil.NewScheduleEntry(21).Insert(t, db)
		testutil.NewScheduleEntry(22).Insert(t, db)

		holding := make(chan struct{})
		release := make(chan struct{})
		holderDone := make(chan error, 1)

		go func() {
			_, err := repo.TryWithEntryLock(ctx, 21, func(context.Context, *sql.Tx) error {
				close(holding)
				<-release
				return nil
			})
			holderDone <- err
		}()

		<-holding

		// Same entry: the lock is held, so the attempt must not run fn.
		locked, err := repo.TryWithEntryLock(ctx, 21, func(context.Context, *sql.Tx) error {
			t.Error("fn executed while lock was held")
			return nil
		})
		if err != nil {
			t.Fatalf("TryWithEntryLock contended: %v", err)
		}
		if locked {
			t.Error("acquired lock for entry 21 while another holder was active")
		}

		// A different entry locks independently.
		locked, err = repo.TryWithEntryLock(ctx, 22, func(context.Context, *sql.Tx) error {
			return nil
		})
		if err != nil {
			t.Fatalf("TryWithEntryLock entry 22: %v", err)
		}
		if !locked {
			t.Error("failed to lock unrelated entry 22")
		}

		close(release)
		if err := <-holderDone; err != nil {
			t.Fatalf("lock holder: %v", err)
		}

		// After release the lock is available again.
		locked, err = repo.TryWithEntryLock(ctx, 21, func(context.Context, *sql.Tx) error {
			return nil
		})
		if err != nil {
			t.Fatalf("TryWithEntryLock after release: %v", err)
		}
		if !locked {
			t.Error("failed to reacquire released lock for entry 21")
		}
	})
}

func TestScheduleRepoTryWithEntryLockPropagatesFnError(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := data.NewScheduleRepo(db)

		testutil.NewScheduleEntry(31).Insert(t, db)

		sentinel := errors.New("fn failed")
		locked, err := repo.TryWithEntryLock(ctx, 31, func(context.Context, *sql.Tx) error {
			return sentinel
		})
		if !locked {
			t.Fatal("expected lock acquisition")
		}
		if !errors.Is(err, sentinel) {
			t.Errorf("err = %v, want the fn error", err)
		}
	})
}
