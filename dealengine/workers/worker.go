// Package workers contains the stage workers of the acquisition pipeline.
//
// A worker is pure domain logic: it reads a context view, calls tools
// through the gateway, and returns one artifact. Workers never touch the
// shared context, never see other workers, and never commit anything -
// the engine owns all of that.
package workers

import (
	"context"
	"fmt"
	"sort"

	"github.com/mna-automation/dealcore/dealengine/deal"
)

// Worker executes one pipeline stage.
type Worker interface {
	// Stage returns the stage this worker serves.
	Stage() deal.StageID

	// Execute produces the stage artifact from a read snapshot of the
	// deal context. notes carries reviewer feedback from earlier revise
	// decisions, oldest first; a fresh execution gets an empty slice.
	// Implementations must be deterministic in (view, notes) apart from
	// tool outputs.
	Execute(ctx context.Context, view *deal.ContextView, notes []string) (*deal.Artifact, error)
}

// Registry holds the closed set of workers for a run. Workers are
// registered at engine construction; the set never changes mid-run.
type Registry struct {
	workers map[deal.StageID]Worker
}

// NewRegistry creates an empty worker registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[deal.StageID]Worker)}
}

// Register adds a worker for its stage.
func (r *Registry) Register(w Worker) error {
	if w == nil {
		return fmt.Errorf("cannot register nil worker")
	}
	stage := w.Stage()
	if stage == "" {
		return fmt.Errorf("worker has no stage")
	}
	if _, exists := r.workers[stage]; exists {
		return fmt.Errorf("worker already registered for stage '%s'", stage)
	}
	r.workers[stage] = w
	return nil
}

// Get returns the worker for a stage, or nil.
func (r *Registry) Get(stage deal.StageID) Worker {
	return r.workers[stage]
}

// Has checks if a stage has a worker.
func (r *Registry) Has(stage deal.StageID) bool {
	_, exists := r.workers[stage]
	return exists
}

// Stages returns the covered stages, sorted by name.
func (r *Registry) Stages() []deal.StageID {
	stages := make([]deal.StageID, 0, len(r.workers))
	for stage := range r.workers {
		stages = append(stages, stage)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i] < stages[j] })
	return stages
}
