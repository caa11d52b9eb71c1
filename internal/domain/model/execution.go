package model

import "time"

// ExecutionStatus is the terminal classification of one execution attempt.
type ExecutionStatus string

const (
	// StatusSucceeded indicates the child process exited zero.
	StatusSucceeded ExecutionStatus = "succeeded"
	// StatusFailed indicates the child process exited non-zero.
	StatusFailed ExecutionStatus = "failed"
	// StatusTimedOut indicates the child was forcibly terminated on timeout.
	// Persisted as Failed on the schedule entry, but kept distinct here for
	// diagnostics and metrics.
	StatusTimedOut ExecutionStatus = "timed_out"
	// StatusLaunchFailed indicates the child process could not be started.
	StatusLaunchFailed ExecutionStatus = "launch_failed"
)

// RunStatus maps the execution status to the status persisted on the
// schedule entry. Timeouts and launch failures persist as Failed.
func (s ExecutionStatus) RunStatus() RunStatus {
	if s == StatusSucceeded {
		return RunStatusSuccess
	}
	return RunStatusFailed
}

// RunIDSource tags where a resolved run identifier came from.
type RunIDSource string

const (
	// RunIDSourceOutput means the identifier was parsed from the streamed output.
	RunIDSourceOutput RunIDSource = "output"
	// RunIDSourceLedger means the identifier was recovered from run records.
	RunIDSourceLedger RunIDSource = "ledger"
)

// RunIDResolution is the tagged outcome of run-identifier resolution. Callers
// must not treat "not yet tried" and "tried and failed" alike, so the zero
// value is invalid; construct with ResolvedRunID or UnresolvedRunID.
type RunIDResolution struct {
	Resolved bool
	Source   RunIDSource
	ID       string
	Reason   string
}

// ResolvedRunID builds a successful resolution.
func ResolvedRunID(source RunIDSource, id string) RunIDResolution {
	return RunIDResolution{Resolved: true, Source: source, ID: id}
}

// UnresolvedRunID builds a failed resolution carrying the reason for diagnostics.
func UnresolvedRunID(reason string) RunIDResolution {
	return RunIDResolution{Resolved: false, Reason: reason}
}

// UUID returns the resolved identifier as a nullable for persistence.
func (r RunIDResolution) UUID() *string {
	if !r.Resolved || r.ID == "" {
		return nil
	}
	id := r.ID
	return &id
}

// ExecutionResult is the transient outcome of one execution attempt. It is
// produced once per attempt and consumed by the executor to finalize the
// schedule entry; it is never persisted itself.
type ExecutionResult struct {
	SchedulerID int64           `json:"scheduler_id"`
	Status      ExecutionStatus `json:"status"`
	// ExitCode is nil when the process never produced one (timeout, launch failure).
	ExitCode   *int            `json:"exit_code,omitempty"`
	RunID      RunIDResolution `json:"run_id"`
	LineCount  int             `json:"line_count"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Duration   time.Duration   `json:"duration"`
}
