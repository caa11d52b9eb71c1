package core

import "time"

// ExecutorConfig holds configuration for the schedule executor.
type ExecutorConfig struct {
	// DefaultTimeout bounds one execution's wall clock when the entry does
	// not carry its own budget.
	DefaultTimeout time.Duration `json:"default_timeout"`
	// RunIDMarker is the plain-text output prefix announcing a run identifier.
	RunIDMarker string `json:"run_id_marker"`
	// RunIDJSONExpr is the JMESPath expression applied to JSON log lines.
	RunIDJSONExpr string `json:"run_id_json_expr"`
}

// DefaultExecutorConfig returns an ExecutorConfig with sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultTimeout: 30 * time.Minute,
	}
}
