package testutil

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisLockKeyFormat = "fieldline:testutil:db_lock:%d"
	redisLockTTL       = 5 * time.Minute

	// DB 0 holds the reservation locks; tests get DBs 1..15.
	redisFirstTestDB = 1
	redisLastTestDB  = 15
)

// GetTestRedisAddr resolves the Redis address for integration tests, returning
// "" when none is reachable. TEST_REDIS_ADDR wins; otherwise the common
// docker-compose addresses are probed.
func GetTestRedisAddr() string {
	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		return addr
	}
	for _, addr := range []string{"redis:6379", "localhost:6379", "localhost:56379"} {
		if testRedisConnection(addr) {
			return addr
		}
	}
	return ""
}

// SkipIfNoTestRedis skips the test when no Redis is reachable, failing instead
// when TEST_REQUIRE_REDIS or TEST_REQUIRE_INFRA is set. Returns the address.
func SkipIfNoTestRedis(t TestingTB) string {
	t.Helper()
	addr := GetTestRedisAddr()
	if addr != "" {
		return addr
	}
	if requireRedis() {
		t.Fatalf("no test Redis reachable but TEST_REQUIRE_REDIS/TEST_REQUIRE_INFRA demands one")
	}
	t.Skipf("skipping: no test Redis reachable (set TEST_REDIS_ADDR)")
	return ""
}

// SetupTestRedis reserves a Redis logical DB for this test, flushes it, and
// returns a client bound to it. The reservation uses SetNX locks in DB 0 so
// parallel test processes never share a DB. The lock and client are released
// via t.Cleanup.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()
	addr := SkipIfNoTestRedis(t)

	db := selectTestRedisDB(t, addr)

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		_ = client.Close()
		t.Fatalf("flush test redis db %d: %v", db, err)
	}

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cleanupCancel()
		if err := client.FlushDB(cleanupCtx).Err(); err != nil {
			t.Logf("flush test redis db %d on cleanup: %v", db, err)
		}
		if err := client.Close(); err != nil {
			t.Logf("close test redis client: %v", err)
		}
	})

	return client
}

func testRedisConnection(addr string) bool {
	client := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: time.Second})
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return client.Ping(ctx).Err() == nil
}

// selectTestRedisDB claims the first free logical DB via a SetNX lock in DB 0.
func selectTestRedisDB(t TestingTB, addr string) int {
	t.Helper()

	locker := redis.NewClient(&redis.Options{Addr: addr, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for db := redisFirstTestDB; db <= redisLastTestDB; db++ {
		key := fmt.Sprintf(redisLockKeyFormat, db)
		ok, err := locker.SetNX(ctx, key, os.Getpid(), redisLockTTL).Result()
		if err != nil {
			_ = locker.Close()
			t.Fatalf("reserve test redis db: %v", err)
		}
		if ok {
			registerRedisCleanup(t, locker, key)
			return db
		}
	}

	_ = locker.Close()
	t.Fatalf("no free test redis db in range %d..%d", redisFirstTestDB, redisLastTestDB)
	return 0
}

func registerRedisCleanup(t TestingTB, locker *redis.Client, key string) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := locker.Del(ctx, key).Err(); err != nil {
			t.Logf("release test redis db lock %s: %v", key, err)
		}
		if err := locker.Close(); err != nil {
			t.Logf("close test redis lock client: %v", err)
		}
	})
}
