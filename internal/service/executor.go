package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldline/fieldline/internal/core"
	"github.com/fieldline/fieldline/internal/data"
	"github.com/fieldline/fieldline/internal/domain/command"
	"github.com/fieldline/fieldline/internal/domain/model"
	"github.com/fieldline/fieldline/internal/domain/runid"
	"github.com/fieldline/fieldline/internal/observability/metrics"
	"github.com/fieldline/fieldline/internal/observability/notify"
	"github.com/fieldline/fieldline/internal/observability/statsd"
	"github.com/fieldline/fieldline/internal/service/failurenotifier"
)

// ErrScheduleNotFound is returned when an execution targets an entry that no
// longer exists.
var ErrScheduleNotFound = errors.New("schedule entry not found")

// ErrFinalizePersistence wraps a failure to persist the terminal run status.
// It signals a degraded ability to report the outcome, not a job failure: the
// execution result is still returned so the caller can retry persistence.
var ErrFinalizePersistence = errors.New("persist terminal run status")

// ExecutorServiceConfig groups the execution tunables.
type ExecutorServiceConfig struct {
	Executor core.ExecutorConfig
	Resolver command.ResolverConfig
}

// ExecutorServiceOptions holds the dependencies for creating an ExecutorService.
type ExecutorServiceOptions struct {
	Schedules core.ScheduleRepository // Required: schedule entry repository
	Runner    core.ProcessRunner      // Required: process runner
	Ledger    *RunLedgerService       // Required: run id recovery

	Config          ExecutorServiceConfig
	Cache           core.StatusCache         // Optional: last-run projection for console polling
	Metrics         statsd.Sink              // Optional: metrics sink (StatsD-compatible)
	FailureNotifier *failurenotifier.Service // Optional: failure notification fan-out
	TimeProvider    data.TimeProvider        // Optional: defaults to real time
	Logger          *slog.Logger             // Optional: structured logger
}

// ExecutorService drives one schedule entry through a complete execution:
// resolve the command, mark the entry Running, supervise the child process,
// resolve the run identifier, and finalize the entry with a terminal status.
//
// State machine per entry: Idle -> Running -> {Success, Failed}. The Running
// mark happens strictly before the process is spawned, and finalization is
// guaranteed by a deferred exit action: once an entry is Running, every code
// path out of Execute persists a terminal status, so a resolution bug or a
// panic in output handling cannot strand an entry in Running.
type ExecutorService struct {
	schedules core.ScheduleRepository
	runner    core.ProcessRunner
	ledger    *RunLedgerService
	extractor *runid.Extractor

	cfg             ExecutorServiceConfig
	cache           core.StatusCache
	metrics         statsd.Sink
	failureNotifier *failurenotifier.Service
	timeProvider    data.TimeProvider
	logger          *slog.Logger
}

// NewExecutorService constructs a new ExecutorService.
func NewExecutorService(opts ExecutorServiceOptions) (*ExecutorService, error) {
	if opts.Schedules == nil {
		return nil, errors.New("ScheduleRepository is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("ProcessRunner is required")
	}
	if opts.Ledger == nil {
		return nil, errors.New("RunLedgerService is required")
	}
	if opts.Config.Executor.DefaultTimeout <= 0 {
		opts.Config.Executor.DefaultTimeout = core.DefaultExecutorConfig().DefaultTimeout
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	extractor, err := runid.NewExtractor(runid.ExtractorOptions{
		Marker:   opts.Config.Executor.RunIDMarker,
		JSONExpr: opts.Config.Executor.RunIDJSONExpr,
	})
	if err != nil {
		return nil, fmt.Errorf("build run id extractor: %w", err)
	}

	return &ExecutorService{
		schedules:       opts.Schedules,
		runner:          opts.Runner,
		ledger:          opts.Ledger,
		extractor:       extractor,
		cfg:             opts.Config,
		cache:           opts.Cache,
		metrics:         opts.Metrics,
		failureNotifier: opts.FailureNotifier,
		timeProvider:    opts.TimeProvider,
		logger:          opts.Logger.With("component", "executor"),
	}, nil
}

// MustNewExecutorService constructs an ExecutorService or panics. For wiring at startup.
func MustNewExecutorService(opts ExecutorServiceOptions) *ExecutorService {
	s, err := NewExecutorService(opts)
	if err != nil {
		panic(err)
	}
	return s
}

// Execute runs one schedule entry to completion and returns the execution
// outcome. onLine, when non-nil, receives every merged output line as it
// arrives (console streaming surface).
//
// A failed or timed-out child process is a normal outcome carried in the
// result; the error return is reserved for failures the caller must react to
// differently: a typed resolution error (fix the schedule entry), or an
// ErrFinalizePersistence (the outcome could not be recorded; the non-nil
// result allows a persistence retry).
func (s *ExecutorService) Execute(ctx context.Context, schedulerID int64, onLine core.LineFunc) (_ *model.ExecutionResult, retErr error) {
	entry, err := s.schedules.GetBySchedulerID(ctx, schedulerID)
	if err != nil {
		if errors.Is(err, data.ErrScheduleEntryNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrScheduleNotFound, schedulerID)
		}
		return nil, fmt.Errorf("load schedule entry %d: %w", schedulerID, err)
	}
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("schedule entry %d: %w", schedulerID, err)
	}

	startedAt := s.timeProvider.Now().UTC()

	marked, err := s.schedules.MarkRunning(ctx, schedulerID, startedAt)
	if err != nil {
		return nil, fmt.Errorf("mark schedule entry %d running: %w", schedulerID, err)
	}
	if !marked {
		return nil, fmt.Errorf("%w: %d", ErrScheduleNotFound, schedulerID)
	}

	// The entry is now Running. From this point a terminal status MUST be
	// persisted no matter how the attempt ends, so finalization is deferred
	// and the result starts pessimistic.
	result := &model.ExecutionResult{
		SchedulerID: schedulerID,
		Status:      model.StatusLaunchFailed,
		RunID:       model.UnresolvedRunID("execution did not complete"),
		StartedAt:   startedAt,
	}
	defer func() {
		if finalizeErr := s.finalize(ctx, entry, result); finalizeErr != nil && retErr == nil {
			retErr = finalizeErr
		}
	}()

	argv, err := command.Resolve(entry, s.cfg.Resolver)
	if err != nil {
		// Resolution failures finalize as Failed via the deferred exit
		// action; a half-resolved command is never launched. The typed
		// resolver error is returned so the caller can tell a broken entry
		// from a broken environment.
		s.logger.ErrorContext(ctx, "command resolution failed",
			"scheduler_id", schedulerID, "job_type", entry.JobType, "error", err)
		result.RunID = model.UnresolvedRunID(err.Error())
		s.stamp(result)
		return result, fmt.Errorf("resolve command for entry %d: %w", schedulerID, err)
	}

	s.logger.InfoContext(ctx, "starting execution",
		"scheduler_id", schedulerID,
		"job_type", entry.JobType,
		"command", argv[0],
		"timeout", s.cfg.Executor.DefaultTimeout)

	capture := newRunIDCapture(s.extractor, onLine)

	procResult, err := s.runner.Run(ctx, core.RunProcessParams{
		Argv:    argv,
		Timeout: s.cfg.Executor.DefaultTimeout,
		OnLine:  capture.onLine,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "process supervision failed",
			"scheduler_id", schedulerID, "error", err)
		result.RunID = model.UnresolvedRunID("process supervision failed")
		s.stamp(result)
		return result, nil
	}

	result.Status = procResult.Status
	result.ExitCode = procResult.ExitCode
	result.LineCount = procResult.LineCount
	result.RunID = s.resolveRunID(ctx, entry, capture, procResult)
	s.stamp(result)

	s.logger.InfoContext(ctx, "execution finished",
		"scheduler_id", schedulerID,
		"status", result.Status,
		"run_id_resolved", result.RunID.Resolved,
		"lines", result.LineCount,
		"duration", result.Duration)

	return result, nil
}

// resolveRunID prefers the identifier announced in the output stream and
// falls back to ledger recovery when none was seen.
func (s *ExecutorService) resolveRunID(
	ctx context.Context,
	entry *model.ScheduleEntry,
	capture *runIDCapture,
	procResult *core.ProcessResult,
) model.RunIDResolution {
	if id, ok := capture.get(); ok {
		return model.ResolvedRunID(model.RunIDSourceOutput, id)
	}

	recovered, err := s.ledger.Recover(ctx, core.RecoverRunIDParams{
		StartedAfter:    procResult.StartedAt,
		ProcessTypeHint: entry.JobType.ProcessType(),
	})
	if err != nil {
		// Recovery failure never blocks finalization; the run simply
		// finalizes without an identifier.
		s.logger.WarnContext(ctx, "run id recovery failed",
			"scheduler_id", entry.SchedulerID, "error", err)
	}
	return recovered
}

// stamp records the end of the attempt on the result.
func (s *ExecutorService) stamp(result *model.ExecutionResult) {
	result.FinishedAt = s.timeProvider.Now().UTC()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
}

// finalize is the guaranteed exit action: it persists the terminal status and
// whatever identifier resolution produced. It runs on a context detached from
// the caller's so a cancelled execution still finalizes. A persistence failure
// is returned wrapped in ErrFinalizePersistence; the best-effort steps (cache,
// metrics, notifications) still run.
func (s *ExecutorService) finalize(ctx context.Context, entry *model.ScheduleEntry, result *model.ExecutionResult) error {
	ctx = context.WithoutCancel(ctx)

	if result.FinishedAt.IsZero() {
		s.stamp(result)
	}

	// The persisted run timestamp is the finish time. The start time stays on
	// the result as the ledger recovery cutoff only.
	params := model.FinalizeRunParams{
		SchedulerID: result.SchedulerID,
		Status:      result.Status.RunStatus(),
		RanAt:       result.FinishedAt,
		RunUUID:     result.RunID.UUID(),
	}

	var persistErr error
	updated, err := s.schedules.FinalizeRun(ctx, params)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to finalize schedule entry",
			"scheduler_id", result.SchedulerID, "status", params.Status, "error", err)
		persistErr = fmt.Errorf("%w: schedule entry %d: %w", ErrFinalizePersistence, result.SchedulerID, err)
	} else if !updated {
		s.logger.WarnContext(ctx, "schedule entry vanished before finalization",
			"scheduler_id", result.SchedulerID)
	}

	s.projectStatus(ctx, entry, params)
	s.emitMetrics(entry, result)
	s.notifyFailure(ctx, entry, result)

	return persistErr
}

// notifyFailure fans a non-success outcome out to the configured sinks.
// Delivery is best-effort and never blocks or fails finalization.
func (s *ExecutorService) notifyFailure(ctx context.Context, entry *model.ScheduleEntry, result *model.ExecutionResult) {
	if s.failureNotifier == nil || !s.failureNotifier.Enabled() {
		return
	}
	if result.Status == model.StatusSucceeded {
		return
	}

	payload := notify.RunFailurePayload{
		SchedulerID: entry.SchedulerID,
		JobType:     string(entry.JobType),
		Outcome:     string(result.Status),
		ExitCode:    result.ExitCode,
		Severity:    notify.SeverityCritical,
		OccurredAt:  result.FinishedAt,
	}
	if uuid := result.RunID.UUID(); uuid != nil {
		payload.RunUUID = *uuid
	}
	payload.Error = describeFailure(result)

	s.failureNotifier.NotifyRunFailure(ctx, payload)
}

// describeFailure builds the human-readable error line for notifications.
func describeFailure(result *model.ExecutionResult) string {
	switch result.Status {
	case model.StatusTimedOut:
		return fmt.Sprintf("execution exceeded timeout after %s", result.Duration.Round(time.Second))
	case model.StatusLaunchFailed:
		if result.RunID.Reason != "" {
			return result.RunID.Reason
		}
		return "process could not be launched"
	default:
		if result.ExitCode != nil {
			return fmt.Sprintf("process exited with code %d", *result.ExitCode)
		}
		return "process failed"
	}
}

// projectStatus refreshes the best-effort last-run cache.
func (s *ExecutorService) projectStatus(ctx context.Context, entry *model.ScheduleEntry, params model.FinalizeRunParams) {
	if s.cache == nil {
		return
	}

	projected := *entry
	projected.LastRunStatus = params.Status
	ranAt := params.RanAt
	projected.LastRunAt = &ranAt
	projected.LastRunUUID = params.RunUUID

	if err := s.cache.SetLastRun(ctx, &projected); err != nil {
		s.logger.WarnContext(ctx, "failed to project run status to cache",
			"scheduler_id", entry.SchedulerID, "error", err)
	}
}

func (s *ExecutorService) emitMetrics(entry *model.ScheduleEntry, result *model.ExecutionResult) {
	if s.metrics == nil {
		return
	}

	metrics.EmitRunLifecycle(s.metrics, metrics.RunMetric{
		JobType:       string(entry.JobType),
		Outcome:       string(result.Status),
		RunIDSource:   string(result.RunID.Source),
		RunIDResolved: result.RunID.Resolved,
		Duration:      result.Duration,
	})
}

// runIDCapture tees output lines to the caller while watching for the first
// line that carries a run identifier. Lines are delivered by the runner from
// a single goroutine, so no locking is needed.
type runIDCapture struct {
	extractor *runid.Extractor
	forward   core.LineFunc
	id        string
	found     bool
}

func newRunIDCapture(extractor *runid.Extractor, forward core.LineFunc) *runIDCapture {
	return &runIDCapture{extractor: extractor, forward: forward}
}

func (c *runIDCapture) onLine(line string) {
	if !c.found {
		if id, ok := c.extractor.FromLine(line); ok {
			c.id = id
			c.found = true
		}
	}
	if c.forward != nil {
		c.forward(line)
	}
}

func (c *runIDCapture) get() (string, bool) {
	return c.id, c.found
}
