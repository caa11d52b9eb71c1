package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeScheduler runs the schedule claim loop.
	ServiceModeScheduler ServiceMode = "scheduler"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeScheduler}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeScheduler:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: scheduler)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// SchedulerConfig contains schedule claim loop configuration.
type SchedulerConfig struct {
	// Interval is the scheduler tick interval.
	Interval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"15s"`

	// BatchSize is the number of due entries to claim per tick.
	BatchSize int `env:"SCHEDULER_BATCH_SIZE" envDefault:"10"`

	// MaxConcurrent bounds how many executions run at once per replica.
	MaxConcurrent int `env:"SCHEDULER_MAX_CONCURRENT" envDefault:"2"`
}

// Sanitize applies guardrails to scheduler configuration values.
func (s *SchedulerConfig) Sanitize() {
	if s.Interval < time.Second {
		s.Interval = time.Second
	}
	if s.BatchSize < 1 {
		s.BatchSize = 1
	}
	if s.MaxConcurrent < 1 {
		s.MaxConcurrent = 1
	}
}

// LauncherMode selects how job commands are launched.
type LauncherMode string

const (
	// LauncherModeLocal launches commands directly on the host.
	LauncherModeLocal LauncherMode = "local"
	// LauncherModeContainer launches commands inside a worker container.
	LauncherModeContainer LauncherMode = "container"
)

// ExecutorConfig contains execution configuration.
type ExecutorConfig struct {
	// Timeout is the wall-clock budget per execution.
	Timeout time.Duration `env:"EXECUTOR_TIMEOUT" envDefault:"30m"`

	// RunnerBinary is the pipeline runner executable for built-in job types.
	RunnerBinary string `env:"EXECUTOR_RUNNER_BINARY" envDefault:"pipeline-runner"`

	// RunnerArgs are arguments inserted before the per-type subcommand.
	RunnerArgs []string `env:"EXECUTOR_RUNNER_ARGS" envSeparator:" "`

	// RunIDMarker is the plain-text output prefix announcing a run identifier.
	RunIDMarker string `env:"EXECUTOR_RUN_ID_MARKER" envDefault:"Run UUID:"`

	// RunIDJSONExpr is the JMESPath expression applied to JSON log lines.
	RunIDJSONExpr string `env:"EXECUTOR_RUN_ID_JSON_EXPR" envDefault:"run_uuid"`

	// LauncherMode selects local or container execution.
	LauncherMode LauncherMode `env:"EXECUTOR_LAUNCHER_MODE" envDefault:"local"`

	// ContainerEngine is the container CLI used in container mode.
	ContainerEngine string `env:"EXECUTOR_CONTAINER_ENGINE" envDefault:"docker"`

	// ContainerName is the worker container targeted in container mode.
	ContainerName string `env:"EXECUTOR_CONTAINER_NAME"`
}

// Sanitize applies guardrails to executor configuration values.
func (e *ExecutorConfig) Sanitize() {
	if e.Timeout < time.Minute {
		e.Timeout = time.Minute
	}
	e.RunnerBinary = strings.TrimSpace(e.RunnerBinary)
	e.RunIDMarker = strings.TrimSpace(e.RunIDMarker)
	e.RunIDJSONExpr = strings.TrimSpace(e.RunIDJSONExpr)

	if e.LauncherMode != LauncherModeLocal && e.LauncherMode != LauncherModeContainer {
		e.LauncherMode = LauncherModeLocal
	}
	if e.LauncherMode == LauncherModeContainer && strings.TrimSpace(e.ContainerName) == "" {
		// Container mode without a target cannot launch anything.
		e.LauncherMode = LauncherModeLocal
	}
}

// StatusCacheConfig contains run status cache configuration.
type StatusCacheConfig struct {
	// Enabled controls whether last-run state is projected into Redis.
	Enabled bool `env:"STATUS_CACHE_ENABLED" envDefault:"false"`

	// TTL is how long a projection survives without refresh.
	TTL time.Duration `env:"STATUS_CACHE_TTL" envDefault:"24h"`

	// Prefix namespaces cache keys.
	Prefix string `env:"STATUS_CACHE_PREFIX" envDefault:"run_status:"`
}

// Sanitize applies guardrails to status cache configuration values.
func (s *StatusCacheConfig) Sanitize() {
	if s.TTL <= 0 {
		s.TTL = 24 * time.Hour
	}
	if strings.TrimSpace(s.Prefix) == "" {
		s.Prefix = "run_status:"
	}
}
