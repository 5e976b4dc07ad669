package config

// EngineConfig holds the orchestration bounds for a deal run.
//
// Infrastructure configuration (market data endpoints, search backends,
// document output paths) lives with the tool adapters, not here.
type EngineConfig struct {
	// Scheduling
	MaxParallel int `json:"max_parallel"` // Max stages executing concurrently (1 = fully deterministic)

	// Revision Control
	MaxRevisions int `json:"max_revisions"` // Max revise decisions per stage before the run fails

	// Timeouts (seconds)
	StageTimeoutSeconds      int `json:"stage_timeout_seconds"`      // Default per-stage execution timeout
	CheckpointTimeoutSeconds int `json:"checkpoint_timeout_seconds"` // How long a gate waits for a human decision
	ToolTimeoutSeconds       int `json:"tool_timeout_seconds"`       // Per tool-call attempt timeout

	// Tool Retry
	MaxToolRetries         int     `json:"max_tool_retries"` // Retries after the first attempt
	RetryInitialBackoffMs  int     `json:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs      int     `json:"retry_max_backoff_ms"`
	RetryBackoffMultiplier float64 `json:"retry_backoff_multiplier"`

	// Idempotency
	EnableIdempotency bool `json:"enable_idempotency"` // Dedup tool calls by idempotency key

	// Logging
	LogLevel string `json:"log_level"`
}

// DefaultEngineConfig returns an EngineConfig with default values.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		MaxParallel: 1,

		MaxRevisions: 2,

		StageTimeoutSeconds:      300,
		CheckpointTimeoutSeconds: 3600,
		ToolTimeoutSeconds:       30,

		MaxToolRetries:         3,
		RetryInitialBackoffMs:  200,
		RetryMaxBackoffMs:      5000,
		RetryBackoffMultiplier: 2.0,

		EnableIdempotency: true,

		LogLevel: "INFO",
	}
}

// EngineConfigFromMap creates an EngineConfig from a map.
// Unknown keys are ignored; numeric values tolerate JSON float64.
func EngineConfigFromMap(config map[string]any) *EngineConfig {
	c := DefaultEngineConfig()

	readInt := func(key string, dst *int) {
		if v, ok := config[key].(int); ok {
			*dst = v
		} else if v, ok := config[key].(float64); ok {
			*dst = int(v)
		}
	}

	readInt("max_parallel", &c.MaxParallel)
	readInt("max_revisions", &c.MaxRevisions)
	readInt("stage_timeout_seconds", &c.StageTimeoutSeconds)
	readInt("checkpoint_timeout_seconds", &c.CheckpointTimeoutSeconds)
	readInt("tool_timeout_seconds", &c.ToolTimeoutSeconds)
	readInt("max_tool_retries", &c.MaxToolRetries)
	readInt("retry_initial_backoff_ms", &c.RetryInitialBackoffMs)
	readInt("retry_max_backoff_ms", &c.RetryMaxBackoffMs)

	if v, ok := config["retry_backoff_multiplier"].(float64); ok {
		c.RetryBackoffMultiplier = v
	}
	if v, ok := config["enable_idempotency"].(bool); ok {
		c.EnableIdempotency = v
	}
	if v, ok := config["log_level"].(string); ok {
		c.LogLevel = v
	}

	return c
}

// ToMap converts the config to a map.
func (c *EngineConfig) ToMap() map[string]any {
	return map[string]any{
		"max_parallel":               c.MaxParallel,
		"max_revisions":              c.MaxRevisions,
		"stage_timeout_seconds":      c.StageTimeoutSeconds,
		"checkpoint_timeout_seconds": c.CheckpointTimeoutSeconds,
		"tool_timeout_seconds":       c.ToolTimeoutSeconds,
		"max_tool_retries":           c.MaxToolRetries,
		"retry_initial_backoff_ms":   c.RetryInitialBackoffMs,
		"retry_max_backoff_ms":       c.RetryMaxBackoffMs,
		"retry_backoff_multiplier":   c.RetryBackoffMultiplier,
		"enable_idempotency":         c.EnableIdempotency,
		"log_level":                  c.LogLevel,
	}
}
