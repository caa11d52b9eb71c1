package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldline/fieldline/internal/bootstrap"
	"github.com/redis/go-redis/v9"
)

// connectInfra wires up the database and, when the status cache is enabled,
// the Redis client. Redis connection failures are non-fatal for CLI commands.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel support flexible.
func connectInfra(ctx context.Context, cmdCtx *commandContext) (*sql.DB, redis.UniversalClient, error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}

	if !cmdCtx.Config.StatusCache.Enabled {
		return db, nil, nil
	}

	redisClient, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{
		RedisConfig: cmdCtx.Config.Redis,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		cmdCtx.Logger.WarnContext(ctx, "redis unavailable; continuing without status cache", "error", err)
		return db, nil, nil
	}

	return db, redisClient, nil
}
