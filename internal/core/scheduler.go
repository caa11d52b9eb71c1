package core

import "time"

// SchedulerConfig holds configuration for the schedule claim loop.
type SchedulerConfig struct {
	// Interval is the tick cadence.
	Interval time.Duration `json:"interval"`
	// BatchSize bounds how many due entries one tick claims.
	BatchSize int `json:"batch_size"`
	// MaxConcurrent bounds how many executions run at once per replica.
	MaxConcurrent int `json:"max_concurrent"`
}

// DefaultSchedulerConfig returns a SchedulerConfig with sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:      15 * time.Second,
		BatchSize:     10,
		MaxConcurrent: 2,
	}
}
