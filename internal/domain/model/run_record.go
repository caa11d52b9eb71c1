package model

import "time"

// RunRecord is one structured log row emitted by a job process during
// execution. Rows are written by the job process itself; this service only
// reads them to recover a run identifier when stdout capture fails.
//
// Invariants (owned by the job process contract):
//   - all rows of one execution share exactly one RunUUID;
//   - RunUUID values are globally unique across executions, including
//     concurrent ones;
//   - Timestamp increases monotonically within one process.
type RunRecord struct {
	ID          int64     `json:"id"           db:"id"`
	RunUUID     string    `json:"run_uuid"     db:"run_uuid"`
	ProcessType string    `json:"process_type" db:"process_type"`
	Timestamp   time.Time `json:"timestamp"    db:"ts"`
	Message     string    `json:"message"      db:"message"`
}
