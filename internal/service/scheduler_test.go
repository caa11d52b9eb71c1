package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fieldline/fieldline/internal/core"
	"github.com/fieldline/fieldline/internal/data"
	"github.com/fieldline/fieldline/internal/domain/command"
	"github.com/fieldline/fieldline/internal/domain/model"
	"github.com/fieldline/fieldline/internal/mocks"
)

type schedulerHarness struct {
	schedules *mocks.MockScheduleRepository
	runner    *mocks.MockProcessRunner
	records   *mocks.MockRunRecordRepository
	svc       *SchedulerService
}

func newSchedulerHarness(t *testing.T) *schedulerHarness {
	t.Helper()
	ctrl := gomock.NewController(t)

	schedules := mocks.NewMockScheduleRepository(ctrl)
	runner := mocks.NewMockProcessRunner(ctrl)
	records := mocks.NewMockRunRecordRepository(ctrl)

	executor := MustNewExecutorService(ExecutorServiceOptions{
		Schedules: schedules,
		Runner:    runner,
		Ledger:    MustNewRunLedgerService(RunLedgerServiceOptions{Repo: records}),
		Config: ExecutorServiceConfig{
			Resolver: command.ResolverConfig{RunnerBinary: "pipeline-runner"},
		},
	})

	svc, err := NewSchedulerService(SchedulerServiceOptions{
		Schedules: schedules,
		Executor:  executor,
		Config:    core.SchedulerConfig{BatchSize: 5, MaxConcurrent: 1},
	})
	require.NoError(t, err)

	return &schedulerHarness{
		schedules: schedules,
		runner:    runner,
		records:   records,
		svc:       svc,
	}
}

// runLockedFn simulates an acquired advisory lock: the callback runs and its
// error is reported alongside ok=true, matching the repository contract.
func runLockedFn(_ context.Context, _ int64, fn func(context.Context, *sql.Tx) error) (bool, error) {
	return true, fn(context.Background(), nil)
}

func TestSchedulerService_Tick_NoDueEntries(t *testing.T) {
	h := newSchedulerHarness(t)
	h.schedules.EXPECT().FindDue(gomock.Any(), gomock.Any(), 5).Return(nil, nil)

	started, err := h.svc.Tick(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, started)
}

func TestSchedulerService_Tick_FindDueError(t *testing.T) {
	h := newSchedulerHarness(t)
	h.schedules.EXPECT().FindDue(gomock.Any(), gomock.Any(), 5).
		Return(nil, errors.New("connection refused"))

	_, err := h.svc.Tick(context.Background(), time.Now())
	require.Error(t, err)
}

func TestSchedulerService_Tick_ExecutesDueEntry(t *testing.T) {
	h := newSchedulerHarness(t)
	now := time.Now().UTC()
	entry := testEntry(model.JobTypeReport, nil)

	h.schedules.EXPECT().FindDue(gomock.Any(), now, 5).
		Return([]*model.ScheduleEntry{entry}, nil)
	h.schedules.EXPECT().TryWithEntryLock(gomock.Any(), int64(42), gomock.Any()).
		DoAndReturn(runLockedFn)
	// Once inside the lock, once by the executor.
	h.schedules.EXPECT().GetBySchedulerID(gomock.Any(), int64(42)).Return(entry, nil).Times(2)
	h.schedules.EXPECT().MarkRunning(gomock.Any(), int64(42), gomock.Any()).Return(true, nil).Times(2)

	h.runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(&core.ProcessResult{
		Status:    model.StatusSucceeded,
		StartedAt: now,
	}, nil)
	h.records.EXPECT().EarliestRunSince(gomock.Any(), gomock.Any()).
		Return("", data.ErrRunRecordNotFound)
	h.schedules.EXPECT().FinalizeRun(gomock.Any(), gomock.Any()).Return(true, nil)

	started, err := h.svc.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, started)
}

func TestSchedulerService_Tick_SkipsWhenLockHeld(t *testing.T) {
	h := newSchedulerHarness(t)
	now := time.Now().UTC()
	entry := testEntry(model.JobTypeReport, nil)

	h.schedules.EXPECT().FindDue(gomock.Any(), now, 5).
		Return([]*model.ScheduleEntry{entry}, nil)
	h.schedules.EXPECT().TryWithEntryLock(gomock.Any(), int64(42), gomock.Any()).
		Return(false, nil)

	started, err := h.svc.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, started)
}

func TestSchedulerService_Tick_SkipsWhenRecheckShowsRunning(t *testing.T) {
	h := newSchedulerHarness(t)
	now := time.Now().UTC()
	entry := testEntry(model.JobTypeReport, nil)

	running := *entry
	running.LastRunStatus = model.RunStatusRunning

	h.schedules.EXPECT().FindDue(gomock.Any(), now, 5).
		Return([]*model.ScheduleEntry{entry}, nil)
	h.schedules.EXPECT().TryWithEntryLock(gomock.Any(), int64(42), gomock.Any()).
		DoAndReturn(runLockedFn)
	h.schedules.EXPECT().GetBySchedulerID(gomock.Any(), int64(42)).Return(&running, nil)

	started, err := h.svc.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, started)
}

func TestSchedulerService_Tick_FailedExecutionStillCounts(t *testing.T) {
	h := newSchedulerHarness(t)
	now := time.Now().UTC()
	entry := testEntry(model.JobTypeReport, nil)

	h.schedules.EXPECT().FindDue(gomock.Any(), now, 5).
		Return([]*model.ScheduleEntry{entry}, nil)
	h.schedules.EXPECT().TryWithEntryLock(gomock.Any(), int64(42), gomock.Any()).
		DoAndReturn(runLockedFn)
	h.schedules.EXPECT().GetBySchedulerID(gomock.Any(), int64(42)).Return(entry, nil).Times(2)
	h.schedules.EXPECT().MarkRunning(gomock.Any(), int64(42), gomock.Any()).Return(true, nil).Times(2)

	h.runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(&core.ProcessResult{
		Status:    model.StatusFailed,
		StartedAt: now,
	}, nil)
	h.records.EXPECT().EarliestRunSince(gomock.Any(), gomock.Any()).
		Return("", data.ErrRunRecordNotFound)
	h.schedules.EXPECT().FinalizeRun(gomock.Any(), gomock.Any()).Return(true, nil)

	// A failed run is a completed execution; it finalized and counts as started.
	started, err := h.svc.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, started)
}

func TestSchedulerService_Tick_PersistenceFailureStillCounts(t *testing.T) {
	h := newSchedulerHarness(t)
	now := time.Now().UTC()
	entry := testEntry(model.JobTypeReport, nil)

	h.schedules.EXPECT().FindDue(gomock.Any(), now, 5).
		Return([]*model.ScheduleEntry{entry}, nil)
	h.schedules.EXPECT().TryWithEntryLock(gomock.Any(), int64(42), gomock.Any()).
		DoAndReturn(runLockedFn)
	h.schedules.EXPECT().GetBySchedulerID(gomock.Any(), int64(42)).Return(entry, nil).Times(2)
	h.schedules.EXPECT().MarkRunning(gomock.Any(), int64(42), gomock.Any()).Return(true, nil).Times(2)

	h.runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(&core.ProcessResult{
		Status:    model.StatusSucceeded,
		StartedAt: now,
	}, nil)
	h.records.EXPECT().EarliestRunSince(gomock.Any(), gomock.Any()).
		Return("", data.ErrRunRecordNotFound)
	h.schedules.EXPECT().FinalizeRun(gomock.Any(), gomock.Any()).
		Return(false, errors.New("connection reset by peer"))

	// The job ran to completion; only recording the outcome failed. That is
	// still a started execution, not a claim to retry immediately.
	started, err := h.svc.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, started)
}

func TestEntryDue(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	past := now.Add(-2 * time.Hour)
	recent := now.Add(-10 * time.Minute)

	tests := []struct {
		name  string
		entry model.ScheduleEntry
		want  bool
	}{
		{
			name:  "never ran",
			entry: model.ScheduleEntry{Enabled: true, Interval: time.Hour, LastRunStatus: model.RunStatusIdle},
			want:  true,
		},
		{
			name:  "interval elapsed",
			entry: model.ScheduleEntry{Enabled: true, Interval: time.Hour, LastRunAt: &past, LastRunStatus: model.RunStatusSuccess},
			want:  true,
		},
		{
			name:  "interval not elapsed",
			entry: model.ScheduleEntry{Enabled: true, Interval: time.Hour, LastRunAt: &recent, LastRunStatus: model.RunStatusSuccess},
			want:  false,
		},
		{
			name:  "disabled",
			entry: model.ScheduleEntry{Enabled: false, Interval: time.Hour, LastRunAt: &past},
			want:  false,
		},
		{
			name:  "already running",
			entry: model.ScheduleEntry{Enabled: true, Interval: time.Hour, LastRunAt: &past, LastRunStatus: model.RunStatusRunning},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, entryDue(&tt.entry, now))
		})
	}
}

func TestNewSchedulerService_Validation(t *testing.T) {
	_, err := NewSchedulerService(SchedulerServiceOptions{})
	require.Error(t, err)
}
