// Package command maps schedule entries to the argument vectors that run them.
// Resolution is pure: no I/O, no process state.
package command

import (
	"fmt"

	"github.com/fieldline/fieldline/internal/domain/model"
)

// MissingParameterError is returned when a recognized job type cannot be
// resolved because a required parameter is absent. A missing parameter must
// never degrade into running the base command without its flag.
type MissingParameterError struct {
	SchedulerID int64
	JobType     model.JobType
	Parameter   string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("schedule %d (%s): missing required parameter %q",
		e.SchedulerID, e.JobType, e.Parameter)
}

// UnknownJobTypeError is returned for job types resolution does not recognize.
type UnknownJobTypeError struct {
	SchedulerID int64
	JobType     model.JobType
}

func (e *UnknownJobTypeError) Error() string {
	return fmt.Sprintf("schedule %d: unknown job type %q", e.SchedulerID, e.JobType)
}

// ResolverConfig holds the base invocation each built-in job type expands on.
type ResolverConfig struct {
	// RunnerBinary is the pipeline runner executable for non-custom job types.
	RunnerBinary string
	// RunnerArgs are arguments inserted before the per-type flags (e.g. a
	// subcommand or a shared config file flag).
	RunnerArgs []string
}

// Resolve maps a schedule entry to a concrete argument vector. Malformed but
// recognized input returns a typed error, never a degenerate command.
func Resolve(entry *model.ScheduleEntry, cfg ResolverConfig) ([]string, error) {
	switch entry.JobType {
	case model.JobTypeImport:
		// Imports always target a specific config; running without one would
		// silently import nothing.
		if !hasReference(entry) {
			return nil, &MissingParameterError{
				SchedulerID: entry.SchedulerID,
				JobType:     entry.JobType,
				Parameter:   "config_reference",
			}
		}
		return base(cfg, "import", "--config-id", *entry.ConfigReference), nil

	case model.JobTypeInboxProcessor:
		argv := base(cfg, "process-inbox")
		if hasReference(entry) {
			argv = append(argv, "--config-id", *entry.ConfigReference)
		}
		return argv, nil

	case model.JobTypeReport:
		argv := base(cfg, "report")
		if hasReference(entry) {
			argv = append(argv, "--report-id", *entry.ConfigReference)
		}
		return argv, nil

	case model.JobTypeCustom:
		if !hasReference(entry) {
			return nil, &MissingParameterError{
				SchedulerID: entry.SchedulerID,
				JobType:     entry.JobType,
				Parameter:   "config_reference (script path)",
			}
		}
		return []string{*entry.ConfigReference}, nil

	default:
		return nil, &UnknownJobTypeError{SchedulerID: entry.SchedulerID, JobType: entry.JobType}
	}
}

func hasReference(entry *model.ScheduleEntry) bool {
	return entry.ConfigReference != nil && *entry.ConfigReference != ""
}

func base(cfg ResolverConfig, subcommand string, extra ...string) []string {
	argv := make([]string, 0, 2+len(cfg.RunnerArgs)+len(extra))
	argv = append(argv, cfg.RunnerBinary)
	argv = append(argv, cfg.RunnerArgs...)
	argv = append(argv, subcommand)
	argv = append(argv, extra...)
	return argv
}
