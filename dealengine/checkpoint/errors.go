package checkpoint

import (
	"fmt"
	"time"

	"github.com/mna-automation/dealcore/dealengine/deal"
)

// TimeoutError is returned by Submit when no decision arrives within the
// gate's timeout. The run fails; the pending artifact is never committed.
type TimeoutError struct {
	CheckpointID string
	Stage        deal.StageID
	Timeout      time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("checkpoint '%s' for stage '%s' timed out after %s", e.CheckpointID, e.Stage, e.Timeout)
}

// RejectedError is the terminal error for a run whose reviewer rejected a
// gated stage.
type RejectedError struct {
	CheckpointID string
	Stage        deal.StageID
	Notes        string
}

func (e *RejectedError) Error() string {
	if e.Notes != "" {
		return fmt.Sprintf("stage '%s' rejected at checkpoint: %s", e.Stage, e.Notes)
	}
	return fmt.Sprintf("stage '%s' rejected at checkpoint", e.Stage)
}

// UnknownCheckpointError is returned by Resolve for an unknown or already
// settled checkpoint ID.
type UnknownCheckpointError struct {
	CheckpointID string
}

func (e *UnknownCheckpointError) Error() string {
	return fmt.Sprintf("no pending checkpoint with id '%s'", e.CheckpointID)
}
