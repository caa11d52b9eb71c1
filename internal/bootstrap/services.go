package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldline/fieldline/config"
	adapterredis "github.com/fieldline/fieldline/internal/adapters/redis"
	adapterscheduler "github.com/fieldline/fieldline/internal/adapters/scheduler"
	"github.com/fieldline/fieldline/internal/core"
	"github.com/fieldline/fieldline/internal/data"
	"github.com/fieldline/fieldline/internal/domain/command"
	"github.com/fieldline/fieldline/internal/launcher"
	"github.com/fieldline/fieldline/internal/observability/notify/pagerduty"
	"github.com/fieldline/fieldline/internal/observability/notify/slack"
	"github.com/fieldline/fieldline/internal/observability/statsd"
	"github.com/fieldline/fieldline/internal/service"
	"github.com/fieldline/fieldline/internal/service/failurenotifier"
	"github.com/redis/go-redis/v9"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Executor      *service.ExecutorService
	Ledger        *service.RunLedgerService
	Schedules     core.ScheduleRepository
	RunRecords    core.RunRecordRepository
	Runner        core.ProcessRunner
	StatusCache   core.StatusCache
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	failureNotifier := buildFailureNotifier(obsLogger, cfg.Notifications)

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: failureNotifier,
		NotifierConfig:  cfg.Notifications,
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger.With("component", "failure_notifier"),
		Sinks:  sinks,
	})
}

// BuildLauncher picks the process launcher implied by executor config.
//
//nolint:ireturn // the launcher mode is a runtime decision.
func BuildLauncher(cfg config.ExecutorConfig) launcher.Launcher {
	if cfg.LauncherMode == config.LauncherModeContainer {
		return &launcher.ContainerLauncher{
			Engine:    cfg.ContainerEngine,
			Container: cfg.ContainerName,
		}
	}
	return &launcher.LocalLauncher{RunnerBinary: cfg.RunnerBinary}
}

// BuildStatusCache constructs the Redis projection when enabled.
//
//nolint:ireturn // a nil StatusCache means the projection is switched off.
func BuildStatusCache(cfg config.StatusCacheConfig, client redis.UniversalClient, logger *slog.Logger) core.StatusCache {
	if !cfg.Enabled || client == nil {
		return nil
	}
	cache, err := adapterredis.NewStatusCache(adapterredis.StatusCacheOptions{
		Client: client,
		Prefix: cfg.Prefix,
		TTL:    cfg.TTL,
	})
	if err != nil {
		if logger != nil {
			logger.Error("failed to initialise status cache", "error", err)
		}
		return nil
	}
	return cache
}

// NewServices wires the execution stack from configuration and connections.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil {
		return ServiceContainer{}, errors.New("service deps are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := deps.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	observability := buildObservability(logger, appCfg.Observability)

	scheduleRepo := data.NewScheduleRepo(deps.DB)
	runRecordRepo := data.NewRunRecordRepo(deps.DB)

	runner, err := launcher.NewRunner(launcher.RunnerOptions{
		Launcher:       BuildLauncher(appCfg.Executor),
		DefaultTimeout: appCfg.Executor.Timeout,
		Logger:         logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build process runner: %w", err)
	}

	ledger, err := service.NewRunLedgerService(service.RunLedgerServiceOptions{
		Repo:   runRecordRepo,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build run ledger: %w", err)
	}

	statusCache := BuildStatusCache(appCfg.StatusCache, deps.RedisClient, logger)

	executor, err := service.NewExecutorService(service.ExecutorServiceOptions{
		Schedules:       scheduleRepo,
		Runner:          runner,
		Ledger:          ledger,
		Config:          BuildExecutorServiceConfig(appCfg.Executor),
		Cache:           statusCache,
		Metrics:         observability.MetricsSink,
		FailureNotifier: observability.FailureNotifier,
		Logger:          logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build executor: %w", err)
	}

	return ServiceContainer{
		Executor:      executor,
		Ledger:        ledger,
		Schedules:     scheduleRepo,
		RunRecords:    runRecordRepo,
		Runner:        runner,
		StatusCache:   statusCache,
		Observability: observability,
	}, nil
}

// BuildExecutorServiceConfig translates env config into the executor's view of it.
func BuildExecutorServiceConfig(cfg config.ExecutorConfig) service.ExecutorServiceConfig {
	return service.ExecutorServiceConfig{
		Executor: core.ExecutorConfig{
			DefaultTimeout: cfg.Timeout,
			RunIDMarker:    cfg.RunIDMarker,
			RunIDJSONExpr:  cfg.RunIDJSONExpr,
		},
		Resolver: command.ResolverConfig{
			RunnerBinary: cfg.RunnerBinary,
			RunnerArgs:   cfg.RunnerArgs,
		},
	}
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newSchedulerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeScheduler,
		name: "scheduler",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			schedulerCfg := config.SchedulerConfig{}
			if deps.cfg.Config != nil {
				schedulerCfg = deps.cfg.Config.Scheduler
			}

			// A missing runner binary or unreachable worker container should
			// kill startup, not silently no-op every run.
			if err := deps.cfg.Services.Runner.Preflight(ctx); err != nil {
				return fmt.Errorf("runner preflight: %w", err)
			}

			runner, err := adapterscheduler.NewRunner(adapterscheduler.RunnerOptions{
				DB:       deps.cfg.DB,
				Executor: deps.cfg.Services.Executor,
				Config: core.SchedulerConfig{
					Interval:      schedulerCfg.Interval,
					BatchSize:     schedulerCfg.BatchSize,
					MaxConcurrent: schedulerCfg.MaxConcurrent,
				},
				Logger:    deps.logger,
				Metrics:   deps.cfg.Services.Observability.MetricsSink,
				Schedules: deps.cfg.Services.Schedules,
			})
			if err != nil {
				return fmt.Errorf("build scheduler runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newSchedulerBackgroundService(deps),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, len(enabledServices)+1)

	deps := &serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	}
	handles := startBackgroundServices(deps, buildBackgroundServices(deps))

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		cancel:      cancel,
		errCh:       errCh,
		logger:      logger,
		backgrounds: handles,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel      context.CancelFunc
	errCh       <-chan error
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		gracefulStop(cfg)
		return nil
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		gracefulStop(cfg)
		return err
	}
}

// gracefulStop waits for background services to finish.
func gracefulStop(cfg shutdownConfig) {
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
