// Package config provides the deal graph and engine bounds configuration.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mna-automation/dealcore/dealengine/deal"
)

// CycleError is returned by Validate when the stage graph is not acyclic.
// It names the stages left with unsatisfied dependencies.
type CycleError struct {
	Stages []deal.StageID
}

func (e *CycleError) Error() string {
	names := make([]string, len(e.Stages))
	for i, s := range e.Stages {
		names[i] = string(s)
	}
	sort.Strings(names)
	return fmt.Sprintf("dependency cycle detected involving stages: %s", strings.Join(names, ", "))
}

// StageSpec is the declarative configuration of one pipeline stage.
type StageSpec struct {
	// Identity
	ID deal.StageID `json:"id"`

	// Requires: hard dependencies - these stages MUST commit their
	// artifact before this stage becomes ready.
	Requires []deal.StageID `json:"requires,omitempty"`

	// RequiresCheckpoint gates the stage's artifact behind a human
	// decision before it is committed to the deal context.
	RequiresCheckpoint bool `json:"requires_checkpoint,omitempty"`

	// CheckpointSummary names what the reviewer is being asked to
	// approve (e.g. "valuation range and deal structure").
	CheckpointSummary string `json:"checkpoint_summary,omitempty"`

	// Bounds
	TimeoutSeconds int `json:"timeout_seconds,omitempty"` // Stage-specific timeout override
}

// Validate validates a single stage spec.
func (s *StageSpec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("StageSpec.ID is required")
	}
	if _, err := deal.StageIDFromString(string(s.ID)); err != nil {
		return err
	}
	return nil
}

// GraphConfig defines the stage dependency graph for a deal run.
type GraphConfig struct {
	Name   string       `json:"name"`   // Graph name for logging/metrics
	Stages []*StageSpec `json:"stages"` // Stage specs in declaration order

	// Computed at validation time (internal)
	topologicalOrder []deal.StageID
	adjacencyList    map[deal.StageID][]deal.StageID
	depth            map[deal.StageID]int
	declIndex        map[deal.StageID]int
}

// NewGraphConfig creates an empty graph config.
func NewGraphConfig(name string) *GraphConfig {
	return &GraphConfig{
		Name:   name,
		Stages: make([]*StageSpec, 0),
	}
}

// AddStage appends a stage spec to the graph.
func (g *GraphConfig) AddStage(spec *StageSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	g.Stages = append(g.Stages, spec)
	return nil
}

// Validate checks the graph: unique stage IDs, dependencies referencing
// known stages, and acyclicity (Kahn's algorithm). It also computes the
// topological order and per-stage dependency depth used for deterministic
// scheduling. Must be called before the graph is handed to the engine.
func (g *GraphConfig) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("GraphConfig.Name is required")
	}
	if len(g.Stages) == 0 {
		return fmt.Errorf("graph '%s' has no stages", g.Name)
	}

	// Validate unique IDs and build the name set
	known := make(map[deal.StageID]bool, len(g.Stages))
	g.declIndex = make(map[deal.StageID]int, len(g.Stages))
	for i, spec := range g.Stages {
		if err := spec.Validate(); err != nil {
			return err
		}
		if known[spec.ID] {
			return fmt.Errorf("duplicate stage id: %s", spec.ID)
		}
		known[spec.ID] = true
		g.declIndex[spec.ID] = i
	}

	// Validate dependency references
	for _, spec := range g.Stages {
		for _, dep := range spec.Requires {
			if !known[dep] {
				return fmt.Errorf("stage '%s' requires unknown stage '%s'", spec.ID, dep)
			}
			if dep == spec.ID {
				return fmt.Errorf("stage '%s' cannot require itself", spec.ID)
			}
		}
	}

	// Build adjacency list: stage -> stages that depend on it
	g.adjacencyList = make(map[deal.StageID][]deal.StageID, len(g.Stages))
	inDegree := make(map[deal.StageID]int, len(g.Stages))
	for _, spec := range g.Stages {
		g.adjacencyList[spec.ID] = []deal.StageID{}
		inDegree[spec.ID] = 0
	}
	for _, spec := range g.Stages {
		for _, dep := range spec.Requires {
			g.adjacencyList[dep] = append(g.adjacencyList[dep], spec.ID)
			inDegree[spec.ID]++
		}
	}

	// Kahn's algorithm for topological sort + cycle detection.
	// The queue is kept in declaration order so the computed order is
	// stable across runs.
	queue := make([]deal.StageID, 0)
	for _, spec := range g.Stages {
		if inDegree[spec.ID] == 0 {
			queue = append(queue, spec.ID)
		}
	}

	g.topologicalOrder = make([]deal.StageID, 0, len(g.Stages))
	g.depth = make(map[deal.StageID]int, len(g.Stages))

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		g.topologicalOrder = append(g.topologicalOrder, current)

		for _, dependent := range g.adjacencyList[current] {
			if d := g.depth[current] + 1; d > g.depth[dependent] {
				g.depth[dependent] = d
			}
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(g.topologicalOrder) != len(g.Stages) {
		cycle := &CycleError{}
		for id, degree := range inDegree {
			if degree > 0 {
				cycle.Stages = append(cycle.Stages, id)
			}
		}
		return cycle
	}

	return nil
}

// TopologicalOrder returns the computed stage order.
// Returns nil before Validate has run.
func (g *GraphConfig) TopologicalOrder() []deal.StageID {
	return g.topologicalOrder
}

// ReadyStages returns the stages whose dependencies are all committed and
// which are not themselves committed or in-flight. The result is ordered
// by dependency depth, then by declaration order, so scheduling decisions
// are deterministic for a given graph.
func (g *GraphConfig) ReadyStages(committed, inFlight map[deal.StageID]bool) []deal.StageID {
	ready := make([]deal.StageID, 0)
	for _, spec := range g.Stages {
		if committed[spec.ID] || inFlight[spec.ID] {
			continue
		}
		satisfied := true
		for _, dep := range spec.Requires {
			if !committed[dep] {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, spec.ID)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		if g.depth[ready[i]] != g.depth[ready[j]] {
			return g.depth[ready[i]] < g.depth[ready[j]]
		}
		return g.declIndex[ready[i]] < g.declIndex[ready[j]]
	})
	return ready
}

// Dependents returns the stages that require the given stage.
func (g *GraphConfig) Dependents(id deal.StageID) []deal.StageID {
	if g.adjacencyList == nil {
		return nil
	}
	return g.adjacencyList[id]
}

// Spec returns the stage spec by ID, or nil.
func (g *GraphConfig) Spec(id deal.StageID) *StageSpec {
	for _, spec := range g.Stages {
		if spec.ID == id {
			return spec
		}
	}
	return nil
}

// StageOrder returns stage IDs in declaration order.
func (g *GraphConfig) StageOrder() []deal.StageID {
	order := make([]deal.StageID, len(g.Stages))
	for i, spec := range g.Stages {
		order[i] = spec.ID
	}
	return order
}

// DefaultAcquisitionGraph returns the standard seven-stage acquisition
// pipeline. Due diligence and negotiation are gated behind human
// checkpoints; everything else flows on its dependencies alone.
func DefaultAcquisitionGraph() *GraphConfig {
	g := NewGraphConfig("acquisition")
	g.Stages = []*StageSpec{
		{ID: deal.StageStrategy},
		{ID: deal.StageSourcing, Requires: []deal.StageID{deal.StageStrategy}},
		{ID: deal.StageDataCollection, Requires: []deal.StageID{deal.StageSourcing}},
		{ID: deal.StageValuation, Requires: []deal.StageID{deal.StageDataCollection}},
		{
			ID:                 deal.StageDueDiligence,
			Requires:           []deal.StageID{deal.StageValuation},
			RequiresCheckpoint: true,
			CheckpointSummary:  "due diligence findings and risk flags",
		},
		{
			ID:                 deal.StageNegotiation,
			Requires:           []deal.StageID{deal.StageDueDiligence},
			RequiresCheckpoint: true,
			CheckpointSummary:  "term sheet and deal structure",
		},
		{ID: deal.StageLegal, Requires: []deal.StageID{deal.StageNegotiation}},
	}
	return g
}
