// Package launcher spawns resolved job commands and streams their output.
//
// The Launcher abstraction separates WHERE a command runs (directly on the
// host, or inside a long-lived worker container) from HOW the child process
// is supervised. The process runner owns supervision; launchers only rewrite
// the argument vector and verify the execution environment at startup.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Launcher rewrites a resolved argument vector for a concrete execution
// environment and verifies that environment is usable.
type Launcher interface {
	// Wrap returns the final argv to hand to the OS. Implementations must not
	// mutate the input slice.
	Wrap(argv []string) []string

	// Preflight verifies the environment can launch commands. Called once at
	// startup so a missing binary or unreachable container fails loudly
	// instead of silently no-op-ing every scheduled run.
	Preflight(ctx context.Context) error
}

// LocalLauncher runs commands directly on the host.
type LocalLauncher struct {
	// RunnerBinary is checked for existence during Preflight. Empty skips the
	// check (custom-script-only deployments).
	RunnerBinary string
}

var _ Launcher = (*LocalLauncher)(nil)

// Wrap returns the argv unchanged.
func (l *LocalLauncher) Wrap(argv []string) []string {
	return argv
}

// Preflight verifies the runner binary resolves on PATH.
func (l *LocalLauncher) Preflight(_ context.Context) error {
	if l.RunnerBinary == "" {
		return nil
	}
	if _, err := exec.LookPath(l.RunnerBinary); err != nil {
		return fmt.Errorf("runner binary %q not found: %w", l.RunnerBinary, err)
	}
	return nil
}

// ContainerLauncher runs commands inside an already-running worker container
// via the container engine's exec facility.
type ContainerLauncher struct {
	// Engine is the container CLI, e.g. "docker" or "podman".
	Engine string
	// Container is the name or ID of the worker container.
	Container string
	// ExtraArgs are engine flags inserted between "exec" and the container
	// name, e.g. "--workdir=/app".
	ExtraArgs []string
}

var _ Launcher = (*ContainerLauncher)(nil)

// Wrap prefixes the argv with "<engine> exec [extra args] <container>".
func (l *ContainerLauncher) Wrap(argv []string) []string {
	wrapped := make([]string, 0, 3+len(l.ExtraArgs)+len(argv))
	wrapped = append(wrapped, l.Engine, "exec")
	wrapped = append(wrapped, l.ExtraArgs...)
	wrapped = append(wrapped, l.Container)
	wrapped = append(wrapped, argv...)
	return wrapped
}

// Preflight verifies the engine binary exists and the container is running.
func (l *ContainerLauncher) Preflight(ctx context.Context) error {
	if l.Engine == "" {
		return errors.New("container engine is required")
	}
	if l.Container == "" {
		return errors.New("container name is required")
	}
	if _, err := exec.LookPath(l.Engine); err != nil {
		return fmt.Errorf("container engine %q not found: %w", l.Engine, err)
	}

	cmd := exec.CommandContext(ctx, l.Engine, "inspect", "--format", "{{.State.Running}}", l.Container)
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("inspect container %q: %w", l.Container, err)
	}
	if strings.TrimSpace(string(out)) != "true" {
		return fmt.Errorf("container %q is not running", l.Container)
	}
	return nil
}
