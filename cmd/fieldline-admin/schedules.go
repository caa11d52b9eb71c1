package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	adapterredis "github.com/fieldline/fieldline/internal/adapters/redis"
	"github.com/fieldline/fieldline/internal/bootstrap"
	"github.com/fieldline/fieldline/internal/data"
	"github.com/fieldline/fieldline/internal/domain/model"
	"github.com/fieldline/fieldline/internal/launcher"
)

type listSchedulesOptions struct {
	EnabledOnly bool
}

type runNowOptions struct {
	SchedulerID int64
	Quiet       bool
}

type runStatusOptions struct {
	SchedulerID int64
}

func parseListSchedulesFlags(args []string) (listSchedulesOptions, error) {
	fs := flag.NewFlagSet("schedules", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts listSchedulesOptions
	fs.BoolVar(&opts.EnabledOnly, "enabled-only", false, "Only show enabled entries")

	if err := fs.Parse(args); err != nil {
		return listSchedulesOptions{}, err
	}
	return opts, nil
}

func parseRunNowFlags(args []string) (runNowOptions, error) {
	fs := flag.NewFlagSet("run-now", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts runNowOptions
	fs.Int64Var(&opts.SchedulerID, "schedule-id", 0, "Schedule entry to execute (required)")
	fs.BoolVar(&opts.Quiet, "quiet", false, "Suppress streamed output lines")

	if err := fs.Parse(args); err != nil {
		return runNowOptions{}, err
	}
	if opts.SchedulerID <= 0 {
		return runNowOptions{}, errors.New("--schedule-id is required")
	}
	return opts, nil
}

func parseRunStatusFlags(args []string) (runStatusOptions, error) {
	fs := flag.NewFlagSet("run-status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts runStatusOptions
	fs.Int64Var(&opts.SchedulerID, "schedule-id", 0, "Schedule entry to inspect (required)")

	if err := fs.Parse(args); err != nil {
		return runStatusOptions{}, err
	}
	if opts.SchedulerID <= 0 {
		return runStatusOptions{}, errors.New("--schedule-id is required")
	}
	return opts, nil
}

func runListSchedules(cmdCtx *commandContext, args []string) error {
	opts, err := parseListSchedulesFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, 2*time.Minute, func(ctx context.Context, db *sql.DB) error {
		entries, listErr := data.NewScheduleRepo(db).List(ctx)
		if listErr != nil {
			return fmt.Errorf("list schedule entries: %w", listErr)
		}

		return printScheduleEntries(entries, opts.EnabledOnly)
	})
}

func printScheduleEntries(entries []*model.ScheduleEntry, enabledOnly bool) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "ID\tTYPE\tCONFIG\tINTERVAL\tENABLED\tLAST STATUS\tLAST RUN\tRUN UUID"); err != nil {
		return err
	}

	shown := 0
	for _, entry := range entries {
		if enabledOnly && !entry.Enabled {
			continue
		}
		shown++
		if err := writef(w, "%d\t%s\t%s\t%s\t%t\t%s\t%s\t%s\n",
			entry.SchedulerID,
			entry.JobType,
			renderOptional(entry.ConfigReference),
			entry.Interval,
			entry.Enabled,
			renderStatus(entry.LastRunStatus),
			renderTime(entry.LastRunAt),
			renderOptional(entry.LastRunUUID),
		); err != nil {
			return err
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush schedule table: %w", err)
	}
	if shown == 0 {
		return writeln(os.Stdout, "(no schedule entries)")
	}
	return nil
}

func runNow(cmdCtx *commandContext, args []string) error {
	opts, err := parseRunNowFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, redisClient, err := connectInfra(ctx, cmdCtx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()
	if redisClient != nil {
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				cmdCtx.Logger.Warn("redis close failed", "error", cerr)
			}
		}()
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      &cmdCtx.Config,
		DB:          db,
		RedisClient: redisClient,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	if preflightErr := services.Runner.Preflight(ctx); preflightErr != nil {
		return fmt.Errorf("runner preflight: %w", preflightErr)
	}

	onLine := func(line string) {
		if opts.Quiet {
			return
		}
		// Best-effort streaming; a broken pipe should not abort the run.
		_ = writeln(os.Stdout, line) //nolint:errcheck
	}

	result, execErr := services.Executor.Execute(ctx, opts.SchedulerID, onLine)
	if result == nil {
		return fmt.Errorf("execute schedule %d: %w", opts.SchedulerID, execErr)
	}
	// A non-nil result with an error still gets printed: the outcome is known
	// even when persisting or resolving it failed.
	if printErr := printExecutionResult(result); printErr != nil {
		return printErr
	}
	if execErr != nil {
		return fmt.Errorf("execute schedule %d: %w", opts.SchedulerID, execErr)
	}
	return nil
}

func printExecutionResult(result *model.ExecutionResult) error {
	if err := writef(os.Stdout, "\nExecution finished\n"); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writef(w, "Status\t%s\n", result.Status); err != nil {
		return err
	}
	if result.ExitCode != nil {
		if err := writef(w, "Exit code\t%d\n", *result.ExitCode); err != nil {
			return err
		}
	}
	if err := writef(w, "Output lines\t%d\n", result.LineCount); err != nil {
		return err
	}
	if err := writef(w, "Duration\t%s\n", result.Duration.Round(time.Millisecond)); err != nil {
		return err
	}
	if result.RunID.Resolved {
		if err := writef(w, "Run UUID\t%s (%s)\n", result.RunID.ID, result.RunID.Source); err != nil {
			return err
		}
	} else {
		if err := writef(w, "Run UUID\tunresolved (%s)\n", result.RunID.Reason); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush execution result: %w", err)
	}

	if result.Status != model.StatusSucceeded {
		return fmt.Errorf("execution ended with status %s", result.Status)
	}
	return nil
}

func runStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseRunStatusFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	db, redisClient, err := connectInfra(ctx, cmdCtx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()
	if redisClient != nil {
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				cmdCtx.Logger.Warn("redis close failed", "error", cerr)
			}
		}()
	}

	source := "database"
	var entry *model.ScheduleEntry

	cache := bootstrap.BuildStatusCache(cmdCtx.Config.StatusCache, redisClient, cmdCtx.Logger)
	if cache != nil {
		cached, cacheErr := cache.GetLastRun(ctx, opts.SchedulerID)
		switch {
		case cacheErr == nil:
			entry = cached
			source = "cache"
		case errors.Is(cacheErr, adapterredis.ErrNotFound):
			// fall through to the database
		default:
			cmdCtx.Logger.Warn("status cache lookup failed", "error", cacheErr)
		}
	}

	if entry == nil {
		entry, err = data.NewScheduleRepo(db).GetBySchedulerID(ctx, opts.SchedulerID)
		if err != nil {
			if errors.Is(err, data.ErrScheduleEntryNotFound) {
				return fmt.Errorf("schedule entry %d not found", opts.SchedulerID)
			}
			return fmt.Errorf("load schedule entry %d: %w", opts.SchedulerID, err)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writef(w, "Schedule\t%d\n", entry.SchedulerID); err != nil {
		return err
	}
	if err := writef(w, "Job type\t%s\n", entry.JobType); err != nil {
		return err
	}
	if err := writef(w, "Last status\t%s\n", renderStatus(entry.LastRunStatus)); err != nil {
		return err
	}
	if err := writef(w, "Last run\t%s\n", renderTime(entry.LastRunAt)); err != nil {
		return err
	}
	if err := writef(w, "Run UUID\t%s\n", renderOptional(entry.LastRunUUID)); err != nil {
		return err
	}
	if err := writef(w, "Source\t%s\n", source); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush status table: %w", err)
	}
	return nil
}

func runPreflight(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	runner, err := launcher.NewRunner(launcher.RunnerOptions{
		Launcher:       bootstrap.BuildLauncher(cmdCtx.Config.Executor),
		DefaultTimeout: cmdCtx.Config.Executor.Timeout,
		Logger:         cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("build process runner: %w", err)
	}

	if err := runner.Preflight(ctx); err != nil {
		return fmt.Errorf("preflight failed: %w", err)
	}

	return writef(os.Stdout, "Preflight OK (%s mode)\n", cmdCtx.Config.Executor.LauncherMode)
}

func renderOptional(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func renderStatus(s model.RunStatus) string {
	if s == "" {
		return string(model.RunStatusIdle)
	}
	return string(s)
}

func renderTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
