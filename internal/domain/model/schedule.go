// Package model defines the core data types and structures used throughout the fieldline pipeline system.
package model

import (
	"fmt"
	"strings"
	"time"
)

// JobType represents the kind of pipeline job a schedule entry runs.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// RunStatus represents the last observed run status of a schedule entry.
type RunStatus string

const (
	// JobTypeImport represents a reference-data import job.
	JobTypeImport JobType = "import"
	// JobTypeInboxProcessor represents an inbox file processing job.
	JobTypeInboxProcessor JobType = "inbox_processor"
	// JobTypeReport represents a report generation job.
	JobTypeReport JobType = "report"
	// JobTypeCustom represents a custom script job referenced by path.
	JobTypeCustom JobType = "custom"

	// RunStatusIdle indicates the entry has never run or is between runs.
	RunStatusIdle RunStatus = "Idle"
	// RunStatusRunning indicates an execution is in flight.
	RunStatusRunning RunStatus = "Running"
	// RunStatusSuccess indicates the most recent execution exited zero.
	RunStatusSuccess RunStatus = "Success"
	// RunStatusFailed indicates the most recent execution failed or timed out.
	RunStatusFailed RunStatus = "Failed"
)

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// Valid returns true if the JobType is valid.
func (t JobType) Valid() bool {
	return t == JobTypeImport || t == JobTypeInboxProcessor || t == JobTypeReport || t == JobTypeCustom
}

// Valid returns true if the RunStatus is valid.
func (s RunStatus) Valid() bool {
	return s == RunStatusIdle || s == RunStatusRunning || s == RunStatusSuccess || s == RunStatusFailed
}

// ProcessType returns the process_type tag a job of this type writes into its
// run records. This is the external contract between the launched job process
// and run-identifier recovery: the job tags every log row with this value.
func (t JobType) ProcessType() string {
	switch t {
	case JobTypeImport:
		return "GenericImportJob"
	case JobTypeInboxProcessor:
		return "InboxProcessorJob"
	case JobTypeReport:
		return "ReportJob"
	case JobTypeCustom:
		return "CustomScriptJob"
	default:
		return ""
	}
}

// ScheduleEntry is a persisted pipeline job definition. Run-state fields
// (last_run_*) are mutated only by the schedule executor at run start and run
// end; entries are never deleted by the execution subsystem.
type ScheduleEntry struct {
	SchedulerID     int64         `json:"scheduler_id"               db:"scheduler_id"`
	JobType         JobType       `json:"job_type"                   db:"job_type"`
	ConfigReference *string       `json:"config_reference,omitempty" db:"config_reference"`
	Interval        time.Duration `json:"interval"                   db:"scheduled_interval"`
	Enabled         bool          `json:"enabled"                    db:"enabled"`
	LastRunAt       *time.Time    `json:"last_run_at,omitempty"      db:"last_run_at"`
	LastRunStatus   RunStatus     `json:"last_run_status"            db:"last_run_status"`
	LastRunUUID     *string       `json:"last_run_uuid,omitempty"    db:"last_run_uuid"`
	CreatedAt       time.Time     `json:"created_at"                 db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"                 db:"updated_at"`
}

// Validate validates the ScheduleEntry fields that execution depends on.
func (e *ScheduleEntry) Validate() error {
	if e.SchedulerID <= 0 {
		return fmt.Errorf("scheduler_id must be positive, got %d", e.SchedulerID)
	}
	if !e.JobType.Valid() {
		return fmt.Errorf("invalid job type %q", e.JobType)
	}
	if e.LastRunStatus != "" && !e.LastRunStatus.Valid() {
		return fmt.Errorf("invalid run status %q", e.LastRunStatus)
	}
	return nil
}

// FinalizeRunParams carries the terminal state the executor persists onto a
// schedule entry once an execution finishes. RunUUID stays nil when neither
// output scanning nor ledger recovery produced an identifier.
type FinalizeRunParams struct {
	SchedulerID int64
	Status      RunStatus
	RanAt       time.Time
	RunUUID     *string
}

// Validate checks that the finalize parameters describe a terminal state.
func (p *FinalizeRunParams) Validate() error {
	if p.SchedulerID <= 0 {
		return fmt.Errorf("scheduler_id must be positive, got %d", p.SchedulerID)
	}
	if p.Status != RunStatusSuccess && p.Status != RunStatusFailed {
		return fmt.Errorf("finalize status must be terminal, got %q", p.Status)
	}
	if p.RanAt.IsZero() {
		return fmt.Errorf("ran_at is required")
	}
	return nil
}
