// Package deal provides the shared data model for acquisition pipeline runs:
// stage identifiers, artifacts, the evolving deal context, and run state.
package deal

import (
	"fmt"
	"strings"
)

// StageID identifies one phase of the acquisition lifecycle.
type StageID string

const (
	// StageStrategy drafts the acquisition strategy document.
	StageStrategy StageID = "strategy"
	// StageSourcing discovers candidate targets via web search.
	StageSourcing StageID = "sourcing"
	// StageDataCollection gathers financial statements for targets.
	StageDataCollection StageID = "data_collection"
	// StageValuation produces the valuation report.
	StageValuation StageID = "valuation"
	// StageDueDiligence assembles the due diligence assessment.
	StageDueDiligence StageID = "due_diligence"
	// StageNegotiation drafts the negotiation term sheet.
	StageNegotiation StageID = "negotiation"
	// StageLegal performs the legal compliance review.
	StageLegal StageID = "legal"
)

// AllStages returns the lifecycle stages in declaration order.
// Declaration order is the tiebreaker for scheduling priority.
func AllStages() []StageID {
	return []StageID{
		StageStrategy,
		StageSourcing,
		StageDataCollection,
		StageValuation,
		StageDueDiligence,
		StageNegotiation,
		StageLegal,
	}
}

// StageIDFromString parses a stage id string.
func StageIDFromString(value string) (StageID, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, s := range AllStages() {
		if normalized == string(s) {
			return s, nil
		}
	}
	return "", fmt.Errorf("invalid stage id '%s'. Must be one of: strategy, sourcing, data_collection, valuation, due_diligence, negotiation, legal", value)
}

// RunState represents overall pipeline execution status - exactly one per run.
type RunState string

const (
	// RunStateInitializing indicates the run has been created but not started.
	RunStateInitializing RunState = "initializing"
	// RunStateRunning indicates stages are executing.
	RunStateRunning RunState = "running"
	// RunStateSuspendedAtCheckpoint indicates the run is blocked on human review.
	RunStateSuspendedAtCheckpoint RunState = "suspended_at_checkpoint"
	// RunStateCompleted indicates all stages committed successfully.
	RunStateCompleted RunState = "completed"
	// RunStateFailed indicates the run halted on an error or rejection.
	RunStateFailed RunState = "failed"
)

// IsTerminal checks if this state ends the run.
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateFailed
}

// RunStateFromString parses a run state string.
func RunStateFromString(value string) (RunState, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch RunState(normalized) {
	case RunStateInitializing, RunStateRunning, RunStateSuspendedAtCheckpoint, RunStateCompleted, RunStateFailed:
		return RunState(normalized), nil
	default:
		return "", fmt.Errorf("invalid run state '%s'. Must be one of: initializing, running, suspended_at_checkpoint, completed, failed", value)
	}
}
