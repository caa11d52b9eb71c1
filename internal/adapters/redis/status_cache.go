package redis

// Package redis provides Redis-based adapters for the fieldline system.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fieldline/fieldline/internal/domain/model"
)

// ErrNotFound is returned when no cached status exists for an entry.
type notFoundError struct{}

func (notFoundError) Error() string { return "cached run status not found" }

var ErrNotFound error = notFoundError{}

// StatusCache is a Redis-backed projection of each entry's last run state.
// Console pollers read it instead of hammering the schedule table; the
// database row stays authoritative and the cache is strictly best-effort.
type StatusCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// StatusCacheOptions configures a StatusCache.
type StatusCacheOptions struct {
	Client redis.UniversalClient
	// Prefix defaults to "run_status:".
	Prefix string
	// TTL defaults to 24h; a stale projection eventually expires rather than
	// outliving a deleted schedule entry.
	TTL time.Duration
}

// NewStatusCache creates a Redis-backed status cache.
func NewStatusCache(opts StatusCacheOptions) (*StatusCache, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Prefix == "" {
		opts.Prefix = "run_status:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &StatusCache{
		client: opts.Client,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
	}, nil
}

// SetLastRun stores the entry's last run projection.
func (c *StatusCache) SetLastRun(ctx context.Context, entry *model.ScheduleEntry) error {
	if entry == nil || entry.SchedulerID <= 0 {
		return errors.New("schedule entry with positive scheduler_id is required")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal schedule entry: %w", err)
	}

	return c.client.Set(ctx, c.key(entry.SchedulerID), data, c.ttl).Err()
}

// GetLastRun returns the cached projection, or ErrNotFound on a miss.
func (c *StatusCache) GetLastRun(ctx context.Context, schedulerID int64) (*model.ScheduleEntry, error) {
	if schedulerID <= 0 {
		return nil, ErrNotFound
	}

	data, err := c.client.Get(ctx, c.key(schedulerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry model.ScheduleEntry
	if unmarshalErr := json.Unmarshal([]byte(data), &entry); unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal schedule entry: %w", unmarshalErr)
	}

	return &entry, nil
}

// Invalidate drops the cached projection for an entry.
func (c *StatusCache) Invalidate(ctx context.Context, schedulerID int64) error {
	if schedulerID <= 0 {
		return nil
	}
	return c.client.Del(ctx, c.key(schedulerID)).Err()
}

func (c *StatusCache) key(schedulerID int64) string {
	return c.prefix + strconv.FormatInt(schedulerID, 10)
}
