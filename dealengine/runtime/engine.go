// Package runtime provides the orchestrator: it walks the stage graph,
// runs independent stages concurrently, gates flagged stages behind human
// checkpoints, and commits approved artifacts to the deal context.
//
// Stage workers execute and wait on checkpoints without any lock held; the
// deal context's own mutex covers commits. The coordinator loop owns all
// scheduling decisions, so a stage never starts before every dependency's
// artifact is committed.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/mna-automation/dealcore/dealengine/checkpoint"
	"github.com/mna-automation/dealcore/dealengine/config"
	"github.com/mna-automation/dealcore/dealengine/deal"
	"github.com/mna-automation/dealcore/dealengine/workers"
	"github.com/mna-automation/dealcore/eventbus"
)

// PersistenceAdapter receives deal context snapshots: one after every
// commit and one when the run reaches a terminal state. Implementations
// must tolerate concurrent runs.
type PersistenceAdapter interface {
	SaveState(ctx context.Context, runID string, state map[string]any) error
}

// Engine executes deal runs over a validated stage graph.
type Engine struct {
	graph       *config.GraphConfig
	registry    *workers.Registry
	gate        *checkpoint.Gate
	cfg         *config.EngineConfig
	log         deal.Logger
	bus         eventbus.Bus
	persistence PersistenceAdapter
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEventBus sets the bus run lifecycle events are published to.
func WithEventBus(bus eventbus.Bus) EngineOption {
	return func(e *Engine) { e.bus = bus }
}

// WithPersistence sets the snapshot sink.
func WithPersistence(p PersistenceAdapter) EngineOption {
	return func(e *Engine) { e.persistence = p }
}

// NewEngine validates the graph and worker coverage and returns an Engine.
func NewEngine(
	graph *config.GraphConfig,
	registry *workers.Registry,
	gate *checkpoint.Gate,
	cfg *config.EngineConfig,
	log deal.Logger,
	opts ...EngineOption,
) (*Engine, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph config is required")
	}
	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph '%s': %w", graph.Name, err)
	}
	if registry == nil {
		return nil, fmt.Errorf("worker registry is required")
	}
	for _, stage := range graph.StageOrder() {
		if !registry.Has(stage) {
			return nil, &MissingWorkerError{Stage: stage}
		}
	}
	if gate == nil {
		return nil, fmt.Errorf("checkpoint gate is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg == nil {
		cfg = config.DefaultEngineConfig()
	}
	// A gate built without its own deadline inherits the configured
	// checkpoint timeout.
	if gate.Timeout() <= 0 && cfg.CheckpointTimeoutSeconds > 0 {
		gate.SetTimeout(time.Duration(cfg.CheckpointTimeoutSeconds) * time.Second)
	}

	e := &Engine{
		graph:    graph,
		registry: registry,
		gate:     gate,
		cfg:      cfg,
		log:      log,
		bus:      eventbus.NopBus{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Gate returns the checkpoint gate reviewers resolve decisions through.
func (e *Engine) Gate() *checkpoint.Gate { return e.gate }

// Graph returns the stage graph the engine executes.
func (e *Engine) Graph() *config.GraphConfig { return e.graph }

// Run executes the full graph against dc and blocks until the run reaches
// a terminal state or ctx is cancelled. A nil dc starts a fresh deal.
//
// The returned report is non-nil even on failure; the error mirrors the
// report's Err for callers that only check the error path.
func (e *Engine) Run(ctx context.Context, dc *deal.DealContext) (*RunReport, error) {
	if dc == nil {
		dc = deal.NewDealContext()
	}
	r := newRun(e, dc)
	return r.execute(ctx)
}
