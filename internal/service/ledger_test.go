package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fieldline/fieldline/internal/core"
	"github.com/fieldline/fieldline/internal/data"
	"github.com/fieldline/fieldline/internal/domain/model"
	"github.com/fieldline/fieldline/internal/mocks"
)

func TestRunLedgerService_Recover_Found(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRunRecordRepository(ctrl)

	cutoff := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo.EXPECT().EarliestRunSince(gomock.Any(), core.RecoverRunIDParams{
		StartedAfter:    cutoff,
		ProcessTypeHint: "GenericImportJob",
	}).Return("abc-123", nil)

	svc := MustNewRunLedgerService(RunLedgerServiceOptions{Repo: repo})

	res, err := svc.Recover(context.Background(), core.RecoverRunIDParams{
		StartedAfter:    cutoff,
		ProcessTypeHint: "GenericImportJob",
	})
	require.NoError(t, err)
	require.True(t, res.Resolved)
	assert.Equal(t, model.RunIDSourceLedger, res.Source)
	assert.Equal(t, "abc-123", res.ID)
}

func TestRunLedgerService_Recover_NoRecords(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRunRecordRepository(ctrl)
	repo.EXPECT().EarliestRunSince(gomock.Any(), gomock.Any()).
		Return("", data.ErrRunRecordNotFound)

	svc := MustNewRunLedgerService(RunLedgerServiceOptions{Repo: repo})

	res, err := svc.Recover(context.Background(), core.RecoverRunIDParams{
		StartedAfter: time.Now(),
	})
	require.NoError(t, err)
	assert.False(t, res.Resolved)
	assert.Equal(t, "no run records after cutoff", res.Reason)
}

func TestRunLedgerService_Recover_QueryError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRunRecordRepository(ctrl)
	repo.EXPECT().EarliestRunSince(gomock.Any(), gomock.Any()).
		Return("", errors.New("connection refused"))

	svc := MustNewRunLedgerService(RunLedgerServiceOptions{Repo: repo})

	res, err := svc.Recover(context.Background(), core.RecoverRunIDParams{
		StartedAfter: time.Now(),
	})
	require.Error(t, err)
	assert.False(t, res.Resolved)
}

func TestRunLedgerService_Recover_MissingCutoff(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := MustNewRunLedgerService(RunLedgerServiceOptions{
		Repo: mocks.NewMockRunRecordRepository(ctrl),
	})

	_, err := svc.Recover(context.Background(), core.RecoverRunIDParams{})
	require.Error(t, err)
}

func TestNewRunLedgerService_RequiresRepo(t *testing.T) {
	_, err := NewRunLedgerService(RunLedgerServiceOptions{})
	require.Error(t, err)
}
