package data

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Shared sentinel errors for data-layer repositories.
var (
	// Schedule repository sentinels.
	ErrScheduleEntryNotFound = errors.New("schedule entry not found")

	// Run record repository sentinels.
	ErrRunRecordNotFound = errors.New("no run record after cutoff")
)

// IsTransient reports whether err is a Postgres failure that a later attempt
// can reasonably expect to succeed: serialization conflicts, deadlocks,
// lock timeouts, and connection-class failures. Callers use this to decide
// between retry-at-next-tick logging and genuine error escalation.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}

	switch pgErr.Code {
	case pgerrcode.SerializationFailure,
		pgerrcode.DeadlockDetected,
		pgerrcode.LockNotAvailable,
		pgerrcode.TooManyConnections,
		pgerrcode.CannotConnectNow,
		pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		return true
	}

	return pgerrcode.IsConnectionException(pgErr.Code) ||
		pgerrcode.IsOperatorIntervention(pgErr.Code)
}
