package runtime

import (
	"fmt"

	"github.com/mna-automation/dealcore/dealengine/deal"
)

// WorkerExecutionError wraps a stage worker failure.
type WorkerExecutionError struct {
	Stage deal.StageID
	Cause error
}

func (e *WorkerExecutionError) Error() string {
	return fmt.Sprintf("stage '%s' worker failed: %v", e.Stage, e.Cause)
}

func (e *WorkerExecutionError) Unwrap() error { return e.Cause }

// RevisionBudgetExhaustedError is returned when a checkpoint keeps sending
// a stage back for revision past the configured budget.
type RevisionBudgetExhaustedError struct {
	Stage  deal.StageID
	Budget int
}

func (e *RevisionBudgetExhaustedError) Error() string {
	return fmt.Sprintf("stage '%s' exceeded its revision budget of %d", e.Stage, e.Budget)
}

// MissingWorkerError is returned at engine construction when a graph stage
// has no registered worker.
type MissingWorkerError struct {
	Stage deal.StageID
}

func (e *MissingWorkerError) Error() string {
	return fmt.Sprintf("no worker registered for stage '%s'", e.Stage)
}
