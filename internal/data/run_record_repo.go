package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fieldline/fieldline/internal/core"
	"github.com/fieldline/fieldline/internal/data/pgxutil"
	"github.com/fieldline/fieldline/internal/domain/model"
)

// RunRecordRepo provides read access to the log rows job processes write.
// The execution subsystem never inserts here; jobs own their rows.
type RunRecordRepo struct {
	DB *sql.DB
}

// NewRunRecordRepo creates a new RunRecordRepo instance with the given database connection.
func NewRunRecordRepo(db *sql.DB) *RunRecordRepo {
	return &RunRecordRepo{DB: db}
}

// EarliestRunSince returns the run_uuid of the earliest row at or after the
// cutoff, optionally restricted to one process type.
//
// The ordering is deliberate: the earliest matching row, not the most recent
// one. Two executions started seconds apart must each recover their own
// identifier even when the later run's rows were written first. Recovery by
// "most recent row in the table" is the attribution bug this query exists to
// fix and must never be reintroduced.
func (r *RunRecordRepo) EarliestRunSince(ctx context.Context, params core.RecoverRunIDParams) (string, error) {
	if params.StartedAfter.IsZero() {
		return "", errors.New("started_after cutoff is required")
	}

	query := `
		SELECT run_uuid
		FROM run_records
		WHERE ts >= $1
	`
	args := []any{params.StartedAfter.UTC()}

	if params.ProcessTypeHint != "" {
		query += " AND process_type = $2"
		args = append(args, params.ProcessTypeHint)
	}
	query += `
		ORDER BY ts ASC, id ASC
		LIMIT 1
	`

	var runUUID string
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&runUUID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrRunRecordNotFound
		}
		return "", fmt.Errorf("query earliest run record: %w", err)
	}

	return runUUID, nil
}

// ListByRunUUID returns the log rows of one execution in emission order
// (console/CLI surface).
func (r *RunRecordRepo) ListByRunUUID(ctx context.Context, runUUID string, limit int) ([]*model.RunRecord, error) {
	if runUUID == "" {
		return nil, errors.New("run_uuid is required")
	}
	if limit <= 0 {
		limit = 500
	}

	query := `
		SELECT id, run_uuid, process_type, ts, message
		FROM run_records
		WHERE run_uuid = $1
		ORDER BY ts ASC, id ASC
		LIMIT $2
	`

	var records []*model.RunRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, query, runUUID, limit)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		collected, collectErr := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.RunRecord])
		if collectErr != nil {
			return collectErr
		}
		records = collected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list run records for %s: %w", runUUID, err)
	}

	return records, nil
}
