// Package eventbus provides the in-process event bus for deal runs.
//
// The engine publishes lifecycle events here; subscribers (telemetry,
// persistence, console reporters) consume them without coupling to the
// engine. Events are fire-and-forget with fan-out semantics.
package eventbus

// Event is the protocol for all bus events.
type Event interface {
	// EventType returns the routing key for subscription.
	EventType() string
}

// =============================================================================
// RUN LIFECYCLE EVENTS
// =============================================================================

// RunStarted is emitted when a deal run begins.
type RunStarted struct {
	RunID     string   `json:"run_id"`
	DealID    string   `json:"deal_id"`
	GraphName string   `json:"graph_name"`
	Stages    []string `json:"stages"`
}

func (e *RunStarted) EventType() string { return "RunStarted" }

// RunCompleted is emitted when a deal run reaches a terminal state.
type RunCompleted struct {
	RunID      string  `json:"run_id"`
	DealID     string  `json:"deal_id"`
	State      string  `json:"state"` // "completed" or "failed"
	DurationMS int     `json:"duration_ms"`
	Error      *string `json:"error,omitempty"`
}

func (e *RunCompleted) EventType() string { return "RunCompleted" }

// =============================================================================
// STAGE LIFECYCLE EVENTS
// =============================================================================

// StageStarted is emitted when a stage worker begins executing.
type StageStarted struct {
	RunID    string `json:"run_id"`
	DealID   string `json:"deal_id"`
	Stage    string `json:"stage"`
	Revision int    `json:"revision"`
}

func (e *StageStarted) EventType() string { return "StageStarted" }

// StageCompleted is emitted when a stage artifact is committed.
type StageCompleted struct {
	RunID        string `json:"run_id"`
	DealID       string `json:"deal_id"`
	Stage        string `json:"stage"`
	ArtifactKind string `json:"artifact_kind"`
	ArtifactSeq  int    `json:"artifact_seq"`
	Revision     int    `json:"revision"`
	DurationMS   int    `json:"duration_ms"`
}

func (e *StageCompleted) EventType() string { return "StageCompleted" }

// StageFailed is emitted when a stage fails terminally.
type StageFailed struct {
	RunID      string `json:"run_id"`
	DealID     string `json:"deal_id"`
	Stage      string `json:"stage"`
	Error      string `json:"error"`
	ErrorKind  string `json:"error_kind"` // "worker", "tool", "checkpoint_timeout", "rejected", "revision_budget"
	DurationMS int    `json:"duration_ms"`
}

func (e *StageFailed) EventType() string { return "StageFailed" }

// =============================================================================
// TOOL EVENTS
// =============================================================================

// ToolCallCompleted is emitted after a tool invocation finishes, whether
// it succeeded or exhausted its retries.
type ToolCallCompleted struct {
	RunID      string  `json:"run_id,omitempty"`
	Tool       string  `json:"tool"`
	Stage      string  `json:"stage,omitempty"`
	Status     string  `json:"status"` // "success", "error", "deduplicated"
	Attempts   int     `json:"attempts"`
	DurationMS int     `json:"duration_ms"`
	Error      *string `json:"error,omitempty"`
}

func (e *ToolCallCompleted) EventType() string { return "ToolCallCompleted" }

// =============================================================================
// CHECKPOINT EVENTS
// =============================================================================

// CheckpointRequested is emitted when a gated stage suspends awaiting a
// human decision.
type CheckpointRequested struct {
	RunID        string `json:"run_id"`
	DealID       string `json:"deal_id"`
	CheckpointID string `json:"checkpoint_id"`
	Stage        string `json:"stage"`
	Summary      string `json:"summary"`
}

func (e *CheckpointRequested) EventType() string { return "CheckpointRequested" }

// CheckpointResolved is emitted when a checkpoint receives its decision.
type CheckpointResolved struct {
	RunID        string `json:"run_id"`
	DealID       string `json:"deal_id"`
	CheckpointID string `json:"checkpoint_id"`
	Stage        string `json:"stage"`
	Decision     string `json:"decision"` // "approve", "reject", "revise"
	Notes        string `json:"notes,omitempty"`
	WaitedMS     int    `json:"waited_ms"`
}

func (e *CheckpointResolved) EventType() string { return "CheckpointResolved" }
