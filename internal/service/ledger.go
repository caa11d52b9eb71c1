package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fieldline/fieldline/internal/core"
	"github.com/fieldline/fieldline/internal/data"
	"github.com/fieldline/fieldline/internal/domain/model"
)

// RunLedgerServiceOptions groups dependencies for RunLedgerService.
type RunLedgerServiceOptions struct {
	Repo   core.RunRecordRepository // Required: run record repository
	Logger *slog.Logger             // Optional: structured logger
}

// RunLedgerService recovers run identifiers from the rows job processes write.
//
// Recovery is the fallback path: it runs only when output scanning produced no
// identifier, typically because the job crashed before announcing one or its
// output format drifted. The query policy is earliest-row-after-cutoff; under
// concurrent executions the most recent row may belong to somebody else's run.
type RunLedgerService struct {
	repo   core.RunRecordRepository
	logger *slog.Logger
}

// NewRunLedgerService constructs a new RunLedgerService.
func NewRunLedgerService(opts RunLedgerServiceOptions) (*RunLedgerService, error) {
	if opts.Repo == nil {
		return nil, errors.New("RunRecordRepository is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &RunLedgerService{
		repo:   opts.Repo,
		logger: opts.Logger.With("component", "run_ledger"),
	}, nil
}

// MustNewRunLedgerService constructs a RunLedgerService or panics. For wiring at startup.
func MustNewRunLedgerService(opts RunLedgerServiceOptions) *RunLedgerService {
	s, err := NewRunLedgerService(opts)
	if err != nil {
		panic(err)
	}
	return s
}

// Recover attempts to attribute a run identifier to an execution that never
// announced one. A miss is a normal outcome, not an error: the execution
// finalizes without an identifier and the resolution carries the reason.
func (s *RunLedgerService) Recover(ctx context.Context, params core.RecoverRunIDParams) (model.RunIDResolution, error) {
	if params.StartedAfter.IsZero() {
		return model.UnresolvedRunID("missing cutoff"), errors.New("started_after cutoff is required")
	}

	runUUID, err := s.repo.EarliestRunSince(ctx, params)
	if err != nil {
		if errors.Is(err, data.ErrRunRecordNotFound) {
			s.logger.InfoContext(ctx, "no run records to recover from",
				"started_after", params.StartedAfter,
				"process_type", params.ProcessTypeHint)
			return model.UnresolvedRunID("no run records after cutoff"), nil
		}
		return model.UnresolvedRunID("ledger query failed"), fmt.Errorf("recover run id: %w", err)
	}

	s.logger.InfoContext(ctx, "recovered run id from ledger",
		"run_uuid", runUUID,
		"process_type", params.ProcessTypeHint)
	return model.ResolvedRunID(model.RunIDSourceLedger, runUUID), nil
}
