package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldline/fieldline/internal/domain/model"
	"github.com/fieldline/fieldline/internal/testutil"
)

func newTestCache(t *testing.T) *StatusCache {
	t.Helper()
	cache, err := NewStatusCache(StatusCacheOptions{
		Client: testutil.SetupTestRedis(t),
		Prefix: "test:run_status:",
		TTL:    time.Minute,
	})
	require.NoError(t, err)
	return cache
}

func TestStatusCache_RoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	ranAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	runUUID := "550e8400-e29b-41d4-a716-446655440000"
	entry := &model.ScheduleEntry{
		SchedulerID:   9001,
		JobType:       model.JobTypeImport,
		Interval:      time.Hour,
		Enabled:       true,
		LastRunAt:     &ranAt,
		LastRunStatus: model.RunStatusSuccess,
		LastRunUUID:   &runUUID,
	}
	t.Cleanup(func() { _ = cache.Invalidate(ctx, entry.SchedulerID) })

	require.NoError(t, cache.SetLastRun(ctx, entry))

	got, err := cache.GetLastRun(ctx, entry.SchedulerID)
	require.NoError(t, err)
	assert.Equal(t, entry.SchedulerID, got.SchedulerID)
	assert.Equal(t, model.RunStatusSuccess, got.LastRunStatus)
	require.NotNil(t, got.LastRunUUID)
	assert.Equal(t, runUUID, *got.LastRunUUID)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, got.LastRunAt.Equal(ranAt))
}

func TestStatusCache_Miss(t *testing.T) {
	cache := newTestCache(t)

	_, err := cache.GetLastRun(context.Background(), 987654321)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStatusCache_Invalidate(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	entry := &model.ScheduleEntry{
		SchedulerID:   9002,
		JobType:       model.JobTypeReport,
		LastRunStatus: model.RunStatusFailed,
	}
	require.NoError(t, cache.SetLastRun(ctx, entry))
	require.NoError(t, cache.Invalidate(ctx, entry.SchedulerID))

	_, err := cache.GetLastRun(ctx, entry.SchedulerID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStatusCache_Validation(t *testing.T) {
	_, err := NewStatusCache(StatusCacheOptions{})
	require.Error(t, err)

	cache := newTestCache(t)
	require.Error(t, cache.SetLastRun(context.Background(), nil))
	require.Error(t, cache.SetLastRun(context.Background(), &model.ScheduleEntry{}))
}
