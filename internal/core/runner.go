package core

import (
	"context"
	"time"

	"github.com/fieldline/fieldline/internal/domain/model"
)

// LineFunc receives one output line as it arrives from the child process.
// Delivery is at-least-once per line and lines are never reordered.
type LineFunc func(line string)

// RunProcessParams groups the inputs for one process execution.
type RunProcessParams struct {
	// Argv is the resolved command; Argv[0] is the executable.
	Argv []string
	// Env holds extra KEY=VALUE pairs appended to the inherited environment.
	// The runner adds its own unbuffering overrides on top.
	Env []string
	// Timeout is the wall-clock budget; zero means the runner's default.
	Timeout time.Duration
	// OnLine streams merged stdout+stderr lines to the caller. Optional.
	OnLine LineFunc
}

// ProcessResult is the runner-level outcome of one child process.
type ProcessResult struct {
	Status model.ExecutionStatus
	// ExitCode is nil on timeout and launch failure.
	ExitCode   *int
	LineCount  int
	StartedAt  time.Time
	FinishedAt time.Time
}

// ProcessRunner launches a resolved command, streams its merged output, and
// reports a terminal status. It owns the child process lifecycle (including
// reaping the whole process group on timeout) and touches no persisted state.
type ProcessRunner interface {
	Run(ctx context.Context, params RunProcessParams) (*ProcessResult, error)

	// Preflight verifies the execution environment can actually launch
	// commands (runner binary present, container reachable). Called once at
	// startup so a missing daemon fails loudly instead of no-op-ing runs.
	Preflight(ctx context.Context) error
}
