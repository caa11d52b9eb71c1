package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    []ServiceMode
		wantErr bool
	}{
		{name: "scheduler", input: "scheduler", want: []ServiceMode{ServiceModeScheduler}},
		{name: "with whitespace", input: " scheduler , ", want: []ServiceMode{ServiceModeScheduler}},
		{name: "empty", input: "", wantErr: true},
		{name: "only commas", input: ",,", wantErr: true},
		{name: "unknown service", input: "scheduler,webserver", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseServices(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseServices(%q): want error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseServices(%q): %v", tt.input, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseServices(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for _, mode := range tt.want {
				if !got[mode] {
					t.Errorf("ParseServices(%q) missing %q", tt.input, mode)
				}
			}
		})
	}
}

func TestAppConfigDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("env.Parse: %v", err)
	}
	cfg.Sanitize()

	if cfg.Services != "scheduler" {
		t.Errorf("Services = %q, want scheduler", cfg.Services)
	}
	if cfg.Postgres.Port != 5432 {
		t.Errorf("Postgres.Port = %d, want 5432", cfg.Postgres.Port)
	}
	if !cfg.Postgres.RunMigrationsOnStart {
		t.Error("RunMigrationsOnStart default should be true")
	}
	if cfg.Scheduler.Interval != 15*time.Second {
		t.Errorf("Scheduler.Interval = %s, want 15s", cfg.Scheduler.Interval)
	}
	if cfg.Executor.Timeout != 30*time.Minute {
		t.Errorf("Executor.Timeout = %s, want 30m", cfg.Executor.Timeout)
	}
	if cfg.Executor.LauncherMode != LauncherModeLocal {
		t.Errorf("Executor.LauncherMode = %q, want local", cfg.Executor.LauncherMode)
	}
	if cfg.Executor.RunIDMarker != "Run UUID:" {
		t.Errorf("Executor.RunIDMarker = %q, want %q", cfg.Executor.RunIDMarker, "Run UUID:")
	}
	if cfg.StatusCache.Enabled {
		t.Error("StatusCache should default to disabled")
	}
	if cfg.Observability.Metrics.IsEnabled() {
		t.Error("metrics should default to disabled")
	}
}

func TestAppConfigFromEnvironment(t *testing.T) {
	t.Setenv("SERVICES", "scheduler")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("SCHEDULER_INTERVAL", "30s")
	t.Setenv("SCHEDULER_BATCH_SIZE", "25")
	t.Setenv("EXECUTOR_LAUNCHER_MODE", "container")
	t.Setenv("EXECUTOR_CONTAINER_NAME", "worker-1")
	t.Setenv("STATUS_CACHE_ENABLED", "true")
	t.Setenv("STATUS_CACHE_PREFIX", "fieldline:status:")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("env.Parse: %v", err)
	}
	cfg.Sanitize()

	if cfg.Postgres.Host != "db.internal" || cfg.Postgres.Port != 6543 {
		t.Errorf("Postgres = %s:%d, want db.internal:6543", cfg.Postgres.Host, cfg.Postgres.Port)
	}
	if cfg.Scheduler.Interval != 30*time.Second {
		t.Errorf("Scheduler.Interval = %s, want 30s", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.BatchSize != 25 {
		t.Errorf("Scheduler.BatchSize = %d, want 25", cfg.Scheduler.BatchSize)
	}
	if cfg.Executor.LauncherMode != LauncherModeContainer {
		t.Errorf("Executor.LauncherMode = %q, want container", cfg.Executor.LauncherMode)
	}
	if !cfg.StatusCache.Enabled {
		t.Error("StatusCache.Enabled should be true")
	}
	if cfg.StatusCache.Prefix != "fieldline:status:" {
		t.Errorf("StatusCache.Prefix = %q", cfg.StatusCache.Prefix)
	}
}

func TestSchedulerConfigSanitizeGuardrails(t *testing.T) {
	t.Parallel()

	cfg := SchedulerConfig{Interval: 10 * time.Millisecond, BatchSize: 0, MaxConcurrent: -3}
	cfg.Sanitize()

	if cfg.Interval != time.Second {
		t.Errorf("Interval = %s, want 1s floor", cfg.Interval)
	}
	if cfg.BatchSize != 1 {
		t.Errorf("BatchSize = %d, want 1 floor", cfg.BatchSize)
	}
	if cfg.MaxConcurrent != 1 {
		t.Errorf("MaxConcurrent = %d, want 1 floor", cfg.MaxConcurrent)
	}
}

func TestExecutorConfigSanitize(t *testing.T) {
	t.Parallel()

	t.Run("timeout floor", func(t *testing.T) {
		t.Parallel()
		cfg := ExecutorConfig{Timeout: time.Second, LauncherMode: LauncherModeLocal}
		cfg.Sanitize()
		if cfg.Timeout != time.Minute {
			t.Errorf("Timeout = %s, want 1m floor", cfg.Timeout)
		}
	})

	t.Run("unknown launcher mode falls back to local", func(t *testing.T) {
		t.Parallel()
		cfg := ExecutorConfig{Timeout: time.Hour, LauncherMode: "kubernetes"}
		cfg.Sanitize()
		if cfg.LauncherMode != LauncherModeLocal {
			t.Errorf("LauncherMode = %q, want local", cfg.LauncherMode)
		}
	})

	t.Run("container mode without container name falls back to local", func(t *testing.T) {
		t.Parallel()
		cfg := ExecutorConfig{Timeout: time.Hour, LauncherMode: LauncherModeContainer, ContainerName: "   "}
		cfg.Sanitize()
		if cfg.LauncherMode != LauncherModeLocal {
			t.Errorf("LauncherMode = %q, want local", cfg.LauncherMode)
		}
	})

	t.Run("container mode with name survives", func(t *testing.T) {
		t.Parallel()
		cfg := ExecutorConfig{Timeout: time.Hour, LauncherMode: LauncherModeContainer, ContainerName: "worker"}
		cfg.Sanitize()
		if cfg.LauncherMode != LauncherModeContainer {
			t.Errorf("LauncherMode = %q, want container", cfg.LauncherMode)
		}
	})
}

func TestStatusCacheConfigSanitize(t *testing.T) {
	t.Parallel()

	cfg := StatusCacheConfig{TTL: -time.Hour, Prefix: "  "}
	cfg.Sanitize()

	if cfg.TTL != 24*time.Hour {
		t.Errorf("TTL = %s, want 24h default", cfg.TTL)
	}
	if cfg.Prefix != "run_status:" {
		t.Errorf("Prefix = %q, want run_status:", cfg.Prefix)
	}
}

func TestObservabilityConfigSanitize(t *testing.T) {
	t.Parallel()

	t.Run("empty statsd address disables metrics", func(t *testing.T) {
		t.Parallel()
		cfg := ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "   "}
		cfg.Sanitize()
		if cfg.IsEnabled() {
			t.Error("metrics should be disabled without an address")
		}
	})

	t.Run("master switch off disables sinks", func(t *testing.T) {
		t.Parallel()
		cfg := ObservabilityNotificationsConfig{
			Enabled:   false,
			Slack:     SlackNotificationConfig{Enabled: true, WebhookURL: "https://hooks.slack.example/T000"},
			PagerDuty: PagerDutyNotificationConfig{Enabled: true, RoutingKey: "rk-1"},
		}
		cfg.Sanitize()
		if cfg.Slack.Enabled || cfg.PagerDuty.Enabled {
			t.Error("sinks must be disabled when notifications are off")
		}
	})

	t.Run("sinks without credentials are disabled", func(t *testing.T) {
		t.Parallel()
		cfg := ObservabilityNotificationsConfig{
			Enabled:   true,
			Slack:     SlackNotificationConfig{Enabled: true, WebhookURL: ""},
			PagerDuty: PagerDutyNotificationConfig{Enabled: true, RoutingKey: "  "},
		}
		cfg.Sanitize()
		if cfg.Slack.Enabled {
			t.Error("Slack sink without webhook URL should be disabled")
		}
		if cfg.PagerDuty.Enabled {
			t.Error("PagerDuty sink without routing key should be disabled")
		}
	})

	t.Run("defaults restored for blank identity fields", func(t *testing.T) {
		t.Parallel()
		cfg := ObservabilityNotificationsConfig{
			Enabled:   true,
			Timeout:   -1,
			Slack:     SlackNotificationConfig{Enabled: true, WebhookURL: " https://hooks.slack.example/T000 ", Username: " "},
			PagerDuty: PagerDutyNotificationConfig{Enabled: true, RoutingKey: "rk-1", Source: "", Component: " "},
		}
		cfg.Sanitize()
		if cfg.Timeout != 5*time.Second {
			t.Errorf("Timeout = %s, want 5s default", cfg.Timeout)
		}
		if cfg.Slack.Username != "fieldline" {
			t.Errorf("Slack.Username = %q, want fieldline", cfg.Slack.Username)
		}
		if cfg.PagerDuty.Source != "fieldline" || cfg.PagerDuty.Component != "fieldline" {
			t.Errorf("PagerDuty identity = %q/%q, want fieldline", cfg.PagerDuty.Source, cfg.PagerDuty.Component)
		}
		if !cfg.Slack.Enabled {
			t.Error("Slack sink with webhook URL should stay enabled")
		}
	})
}
