package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/mna-automation/dealcore/dealengine/checkpoint"
	"github.com/mna-automation/dealcore/dealengine/deal"
	"github.com/mna-automation/dealcore/dealengine/gateway"
)

// StageResult records how one stage fared over the whole run, across all
// of its revision cycles.
type StageResult struct {
	Stage       deal.StageID          `json:"stage"`
	Status      string                `json:"status"` // "committed", "failed", "not_run"
	Revisions   int                   `json:"revisions"`
	ArtifactSeq int                   `json:"artifact_seq,omitempty"`
	Decisions   []checkpoint.Decision `json:"decisions,omitempty"`
	DurationMS  int                   `json:"duration_ms"`
}

// RunReport is the outcome of one Engine.Run call.
type RunReport struct {
	RunID      string                        `json:"run_id"`
	DealID     string                        `json:"deal_id"`
	GraphName  string                        `json:"graph_name"`
	State      deal.RunState                 `json:"state"`
	StartedAt  time.Time                     `json:"started_at"`
	FinishedAt time.Time                     `json:"finished_at"`
	Stages     map[deal.StageID]*StageResult `json:"stages"`

	// FailedStage, ErrorKind, and Err are set only when State is failed.
	FailedStage deal.StageID `json:"failed_stage,omitempty"`
	ErrorKind   string       `json:"error_kind,omitempty"`
	Err         error        `json:"-"`
}

// Duration returns the wall-clock run time.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether every stage committed.
func (r *RunReport) Succeeded() bool {
	return r.State == deal.RunStateCompleted
}

// errorKind maps a stage failure onto the audit taxonomy carried by
// StageFailed events and the run report.
func errorKind(err error) string {
	var rejected *checkpoint.RejectedError
	if errors.As(err, &rejected) {
		return "rejected"
	}
	var timeout *checkpoint.TimeoutError
	if errors.As(err, &timeout) {
		return "checkpoint_timeout"
	}
	var budget *RevisionBudgetExhaustedError
	if errors.As(err, &budget) {
		return "revision_budget"
	}
	var tool *gateway.PermanentToolError
	if errors.As(err, &tool) {
		return "tool"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "worker"
}
