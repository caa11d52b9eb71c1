// Package mocks provides mock implementations for testing the fieldline execution system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockScheduleRepository(ctrl)
//	mockRepo.EXPECT().GetBySchedulerID(gomock.Any(), int64(1)).Return(entry, nil)
package mocks

// Generate mock for ScheduleRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=schedule_repository_mock.go github.com/fieldline/fieldline/internal/core ScheduleRepository

// Generate mock for RunRecordRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=run_record_repository_mock.go github.com/fieldline/fieldline/internal/core RunRecordRepository

// Generate mock for ProcessRunner interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=process_runner_mock.go github.com/fieldline/fieldline/internal/core ProcessRunner
