// Package testutil provides database and Redis helpers for integration tests.
//
// Tests that need real infrastructure call SkipIfNoTestDB (or the WithTestDB /
// WithAutoDB wrappers) and are skipped unless TEST_DB_HOST is set. Setting
// TEST_REQUIRE_DB=true (or TEST_REQUIRE_INFRA=true) escalates the skip to a
// hard failure, which CI uses to guarantee the integration suite actually ran.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register the pgx database/sql driver

	"github.com/fieldline/fieldline/internal/migrate"
)

// TestingTB is the subset of testing.TB the helpers need. Accepting the
// interface keeps them usable from both tests and benchmarks.
type TestingTB interface {
	Helper()
	Skipf(format string, args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
	Cleanup(func())
}

// TestDBConfig holds connection parameters for the integration test database.
type TestDBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

// DefaultTestDBConfig reads TEST_DB_* environment variables, falling back to
// the docker-compose defaults.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:     getEnvIntOrDefault("TEST_DB_PORT", 55432),
		User:     getEnvOrDefault("TEST_DB_USER", "fieldline"),
		Password: getEnvOrDefault("TEST_DB_PASSWORD", "fieldline"),
		Name:     getEnvOrDefault("TEST_DB_NAME", "fieldline"),
	}
}

// DSN renders the config as a PostgreSQL connection URL.
func (c TestDBConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// SkipIfNoTestDB skips the test when no test database is configured.
// When TEST_REQUIRE_DB or TEST_REQUIRE_INFRA is set, the test fails instead,
// so a misconfigured CI job cannot silently skip the integration suite.
func SkipIfNoTestDB(t TestingTB) {
	t.Helper()
	if os.Getenv("TEST_DB_HOST") != "" {
		return
	}
	if requireDB() {
		t.Fatalf("TEST_DB_HOST is not set but TEST_REQUIRE_DB/TEST_REQUIRE_INFRA demands a database")
	}
	t.Skipf("skipping: TEST_DB_HOST not set")
}

// SetupTestDB connects to the configured test database, runs migrations, and
// clears domain tables so the test starts from a known-empty state.
func SetupTestDB(t TestingTB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	cfg := DefaultTestDBConfig()
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("ping test database %s:%d: %v", cfg.Host, cfg.Port, err)
	}

	if err := migrate.Run(ctx, db); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	CleanupTestDB(t, db)
	return db
}

// CleanupTestDB deletes all rows from the domain tables. Children first so the
// ordering stays valid if foreign keys are added later.
func CleanupTestDB(t TestingTB, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, table := range []string{"run_records", "schedule_entries"} {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("cleanup table %s: %v", table, err)
		}
	}
}

// TeardownTestDB closes the database connection, logging (not failing) on error.
func TeardownTestDB(t TestingTB, db *sql.DB) {
	t.Helper()
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		t.Logf("close test database: %v", err)
	}
}

// WithTestDB runs fn against a migrated, cleaned shared test database.
func WithTestDB(t TestingTB, fn func(db *sql.DB)) {
	t.Helper()
	db := SetupTestDB(t)
	defer TeardownTestDB(t, db)
	fn(db)
}

// SetupAutoDB returns a test database, using an ephemeral per-test schema when
// TEST_DB_EPHEMERAL is set and the shared database otherwise. Ephemeral
// schemas let the integration suite run with t.Parallel without tests
// clobbering each other's rows.
func SetupAutoDB(t TestingTB) *sql.DB {
	t.Helper()
	if envBool("TEST_DB_EPHEMERAL") {
		return SetupEphemeralSchemaDB(t)
	}
	return SetupTestDB(t)
}

// WithAutoDB runs fn against a database from SetupAutoDB.
func WithAutoDB(t TestingTB, fn func(db *sql.DB)) {
	t.Helper()
	db := SetupAutoDB(t)
	defer TeardownTestDB(t, db)
	fn(db)
}

// SetupEphemeralSchemaDB creates a randomly named schema, migrates it, and
// returns a connection whose search_path is pinned to that schema. The schema
// is dropped via t.Cleanup.
func SetupEphemeralSchemaDB(t TestingTB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	cfg := DefaultTestDBConfig()
	schema := generateSchemaName(t)

	admin := openAdminDB(t, cfg)
	createSchema(t, admin, schema)
	registerSchemaCleanup(t, cfg, schema)

	db := openDBWithSchema(t, cfg, schema)
	migrateSchema(t, db, admin, schema)
	return db
}

// WithEphemeralDB runs fn against an isolated per-test schema.
func WithEphemeralDB(t TestingTB, fn func(db *sql.DB)) {
	t.Helper()
	db := SetupEphemeralSchemaDB(t)
	defer TeardownTestDB(t, db)
	fn(db)
}

func generateSchemaName(t TestingTB) string {
	t.Helper()
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		t.Fatalf("generate schema name: %v", err)
	}
	return "t_" + hex.EncodeToString(buf)
}

func openAdminDB(t TestingTB, cfg TestDBConfig) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		t.Fatalf("open admin connection: %v", err)
	}
	t.Cleanup(func() {
		if cerr := db.Close(); cerr != nil {
			t.Logf("close admin connection: %v", cerr)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping test database %s:%d: %v", cfg.Host, cfg.Port, err)
	}
	return db
}

func createSchema(t TestingTB, admin *sql.DB, schema string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema %s: %v", schema, err)
	}
}

func openDBWithSchema(t TestingTB, cfg TestDBConfig, schema string) *sql.DB {
	t.Helper()
	dsn := cfg.DSN() + "&search_path=" + url.QueryEscape(schema)
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open schema connection: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("ping schema connection: %v", err)
	}
	return db
}

func migrateSchema(t TestingTB, db *sql.DB, admin *sql.DB, schema string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := migrate.Run(ctx, db); err != nil {
		_ = db.Close()
		dropSchema(ctx, admin, schema)
		t.Fatalf("migrate schema %s: %v", schema, err)
	}
}

func registerSchemaCleanup(t TestingTB, cfg TestDBConfig, schema string) {
	t.Helper()
	t.Cleanup(func() {
		db, err := sql.Open("pgx", cfg.DSN())
		if err != nil {
			t.Logf("open cleanup connection for schema %s: %v", schema, err)
			return
		}
		defer func() {
			if cerr := db.Close(); cerr != nil {
				t.Logf("close cleanup connection: %v", cerr)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		dropSchema(ctx, db, schema)
	})
}

func dropSchema(ctx context.Context, db *sql.DB, schema string) {
	// Best-effort drop; leaked t_* schemas are harmless and visible.
	_, _ = db.ExecContext(ctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE")
}

// RunMigrations applies the embedded migrations against db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate.Run(ctx, db)
}

func getEnvOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes"
}

func requireDB() bool {
	return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA")
}

func requireRedis() bool {
	return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA")
}

// TestTime is a fixed reference instant for deterministic tests.
var TestTime = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

// FixedTimeFunc returns a clock function frozen at t.
func FixedTimeFunc(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// TestTimeProvider is a controllable clock implementing the data.TimeProvider
// contract for repository tests.
type TestTimeProvider struct {
	mu  sync.Mutex
	now time.Time
}

// NewTestTimeProvider creates a provider starting at the given instant.
func NewTestTimeProvider(start time.Time) *TestTimeProvider {
	return &TestTimeProvider{now: start}
}

// Now returns the provider's current instant.
func (p *TestTimeProvider) Now() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now
}

// Advance moves the clock forward by d and returns the new instant.
func (p *TestTimeProvider) Advance(d time.Duration) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = p.now.Add(d)
	return p.now
}

// Set pins the clock to t.
func (p *TestTimeProvider) Set(t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = t
}

// ConcurrentTestRunner runs fn from n goroutines simultaneously and collects
// every returned error. A start gate ensures the goroutines actually contend.
func ConcurrentTestRunner(n int, fn func(worker int) error) []error {
	start := make(chan struct{})
	errCh := make(chan error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			<-start
			if err := fn(worker); err != nil {
				errCh <- err
			}
		}(i)
	}

	close(start)
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errs
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }

// IntPtr returns a pointer to i.
func IntPtr(i int) *int { return &i }

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time { return &t }
