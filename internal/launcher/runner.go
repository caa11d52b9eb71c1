package launcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fieldline/fieldline/internal/core"
	"github.com/fieldline/fieldline/internal/domain/model"
)

// unbufferedEnv forces line-buffered output out of common job runtimes so
// streaming reflects progress in real time rather than arriving in one burst
// at exit. Appended last, so it wins over any caller-supplied value.
var unbufferedEnv = []string{
	"PYTHONUNBUFFERED=1",
	"PYTHONIOENCODING=utf-8",
}

// maxLineBytes bounds a single delivered output line. Longer lines are
// delivered in maxLineBytes-sized chunks; the stream keeps draining so a
// chatty child never blocks on a full pipe.
const maxLineBytes = 1024 * 1024

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Launcher       Launcher
	DefaultTimeout time.Duration
	Logger         *slog.Logger
}

// Runner supervises one child process per Run call: it launches the wrapped
// command, streams merged stdout+stderr line by line, and reaps the whole
// process group when the wall-clock budget expires.
type Runner struct {
	launcher       Launcher
	defaultTimeout time.Duration
	logger         *slog.Logger
}

var _ core.ProcessRunner = (*Runner)(nil)

// NewRunner creates a process runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Launcher == nil {
		return nil, errors.New("launcher is required")
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = core.DefaultExecutorConfig().DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		launcher:       opts.Launcher,
		defaultTimeout: opts.DefaultTimeout,
		logger:         opts.Logger,
	}, nil
}

// MustNewRunner creates a process runner or panics. For wiring at startup.
func MustNewRunner(opts RunnerOptions) *Runner {
	r, err := NewRunner(opts)
	if err != nil {
		panic(err)
	}
	return r
}

// Preflight delegates to the launcher's environment check.
func (r *Runner) Preflight(ctx context.Context) error {
	return r.launcher.Preflight(ctx)
}

// Run launches the command and blocks until it terminates. Output lines are
// delivered to params.OnLine in arrival order; stdout and stderr are merged
// into a single stream so interleaving matches what a terminal would show.
//
// A non-zero exit is not an error return: the result carries the status and
// exit code. The error return is reserved for supervision failures.
func (r *Runner) Run(ctx context.Context, params core.RunProcessParams) (*core.ProcessResult, error) {
	if len(params.Argv) == 0 {
		return nil, errors.New("argv is required")
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	argv := r.launcher.Wrap(params.Argv)

	// Deliberately not exec.CommandContext: on timeout we kill the process
	// group ourselves so grandchildren spawned by shell wrappers die too.
	cmd := exec.Command(argv[0], argv[1:]...) // #nosec G204 -- argv comes from command resolution, not user input
	cmd.Env = append(append(os.Environ(), params.Env...), unbufferedEnv...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	// Merge stderr into the stdout pipe.
	cmd.Stderr = cmd.Stdout

	startedAt := time.Now().UTC()

	if startErr := cmd.Start(); startErr != nil {
		r.logger.ErrorContext(ctx, "process launch failed",
			"command", argv[0], "error", startErr)
		return &core.ProcessResult{
			Status:     model.StatusLaunchFailed,
			StartedAt:  startedAt,
			FinishedAt: time.Now().UTC(),
		}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var timedOut atomic.Bool
	killDone := make(chan struct{})
	go func() {
		defer close(killDone)
		<-runCtx.Done()
		if !errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return
		}
		// Mark the run timed out only when the kill was actually delivered;
		// a process that exited right at the deadline is gone (ESRCH) and
		// keeps its real exit status.
		if r.killGroup(cmd.Process.Pid) {
			timedOut.Store(true)
		}
	}()

	lineCount := r.streamLines(stdout, params.OnLine)

	waitErr := cmd.Wait()
	cancel()
	<-killDone

	finishedAt := time.Now().UTC()
	result := &core.ProcessResult{
		LineCount:  lineCount,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}

	switch {
	case timedOut.Load() && waitErr != nil:
		result.Status = model.StatusTimedOut
		r.logger.WarnContext(ctx, "process timed out",
			"command", argv[0], "timeout", timeout, "lines", lineCount)
	case waitErr == nil:
		result.Status = model.StatusSucceeded
		code := 0
		result.ExitCode = &code
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code := exitErr.ExitCode()
			result.Status = model.StatusFailed
			result.ExitCode = &code
		} else {
			return nil, fmt.Errorf("wait for process: %w", waitErr)
		}
	}

	return result, nil
}

// streamLines reads the merged output and delivers each line. Lines longer
// than maxLineBytes are delivered in chunks and the reader keeps draining, so
// one oversized line can never stall the pipe and withhold later output. The
// count is every delivered line, for diagnostics.
func (r *Runner) streamLines(pipe io.Reader, onLine core.LineFunc) int {
	reader := bufio.NewReaderSize(pipe, 64*1024)

	count := 0
	deliver := func(line string) {
		count++
		if onLine != nil {
			onLine(line)
		}
	}

	var pending strings.Builder
	for {
		chunk, err := reader.ReadSlice('\n')

		complete := len(chunk) > 0 && chunk[len(chunk)-1] == '\n'
		if complete {
			chunk = chunk[:len(chunk)-1]
		}
		pending.Write(chunk)

		switch {
		case complete:
			deliver(strings.TrimSuffix(pending.String(), "\r"))
			pending.Reset()
		case pending.Len() >= maxLineBytes:
			// Flush the oversized prefix as its own line and keep reading.
			deliver(pending.String())
			pending.Reset()
		}

		if err != nil && !errors.Is(err, bufio.ErrBufferFull) {
			// EOF or the pipe closing on kill ends the stream; the exit
			// status from Wait is authoritative.
			if pending.Len() > 0 {
				deliver(pending.String())
			}
			return count
		}
	}
}

// killGroup sends SIGKILL to the child's process group and reports whether
// the signal was delivered. The negative pid addresses the group created by
// Setpgid, so shell wrappers cannot leave orphaned grandchildren behind.
func (r *Runner) killGroup(pid int) bool {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			r.logger.Warn("failed to kill process group", "pid", pid, "error", err)
		}
		return false
	}
	return true
}
