package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/mna-automation/dealcore/dealengine/deal"
	"github.com/mna-automation/dealcore/dealengine/observability"
	"github.com/mna-automation/dealcore/eventbus"
)

// Gate manages checkpoint lifecycle. Submit blocks the calling stage
// goroutine; Resolve is called from outside (API handler, CLI, test
// reviewer) and settles a request exactly once.
//
// Usage:
//
//	gate := checkpoint.NewGate(logger, bus, time.Hour)
//
//	// Stage goroutine:
//	res, err := gate.Submit(ctx, req)
//
//	// Reviewer side:
//	gate.Resolve(req.ID, &checkpoint.Resolution{Decision: checkpoint.DecisionApprove})
type Gate struct {
	log     deal.Logger
	bus     eventbus.Bus
	timeout time.Duration

	mu    sync.Mutex
	store map[string]*Request
}

// NewGate creates a Gate. timeout bounds how long Submit waits for a
// decision; zero or negative means no gate-level deadline. The engine
// applies its configured checkpoint timeout to a gate built without one.
func NewGate(log deal.Logger, bus eventbus.Bus, timeout time.Duration) *Gate {
	if bus == nil {
		bus = eventbus.NopBus{}
	}
	return &Gate{
		log:     log,
		bus:     bus,
		timeout: timeout,
		store:   make(map[string]*Request),
	}
}

// Submit registers the request and blocks until it is resolved, the gate
// timeout elapses, or ctx is done. The request's decision, when one
// arrives, is returned to exactly this caller.
func (g *Gate) Submit(ctx context.Context, req *Request) (*Resolution, error) {
	g.mu.Lock()
	g.store[req.ID] = req
	timeout := g.timeout
	g.mu.Unlock()

	g.log.Info("checkpoint pending",
		"checkpoint_id", req.ID, "stage", string(req.Stage), "summary", req.Summary)
	_ = g.bus.Publish(ctx, &eventbus.CheckpointRequested{
		RunID:        req.RunID,
		DealID:       req.DealID,
		CheckpointID: req.ID,
		Stage:        string(req.Stage),
		Summary:      req.Summary,
	})

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case resolution := <-req.resolution:
		waited := time.Since(req.CreatedAt)
		observability.RecordCheckpointDecision(string(req.Stage), string(resolution.Decision), int(waited.Milliseconds()))
		_ = g.bus.Publish(ctx, &eventbus.CheckpointResolved{
			RunID:        req.RunID,
			DealID:       req.DealID,
			CheckpointID: req.ID,
			Stage:        string(req.Stage),
			Decision:     string(resolution.Decision),
			Notes:        resolution.Notes,
			WaitedMS:     int(waited.Milliseconds()),
		})
		return resolution, nil

	case <-timeoutCh:
		if !g.settle(req, StatusExpired) {
			// A resolution won the race against the timer; honor it.
			return g.consumeResolution(ctx, req), nil
		}
		waited := time.Since(req.CreatedAt)
		observability.RecordCheckpointDecision(string(req.Stage), "timeout", int(waited.Milliseconds()))
		g.log.Warn("checkpoint timed out",
			"checkpoint_id", req.ID, "stage", string(req.Stage), "timeout", timeout.String())
		return nil, &TimeoutError{CheckpointID: req.ID, Stage: req.Stage, Timeout: timeout}

	case <-ctx.Done():
		if !g.settle(req, StatusCanceled) {
			return g.consumeResolution(ctx, req), nil
		}
		return nil, ctx.Err()
	}
}

// consumeResolution drains the decision a racing Resolve already
// delivered. The channel is buffered, so this never blocks.
func (g *Gate) consumeResolution(ctx context.Context, req *Request) *Resolution {
	resolution := <-req.resolution
	waited := time.Since(req.CreatedAt)
	observability.RecordCheckpointDecision(string(req.Stage), string(resolution.Decision), int(waited.Milliseconds()))
	_ = g.bus.Publish(ctx, &eventbus.CheckpointResolved{
		RunID:        req.RunID,
		DealID:       req.DealID,
		CheckpointID: req.ID,
		Stage:        string(req.Stage),
		Decision:     string(resolution.Decision),
		Notes:        resolution.Notes,
		WaitedMS:     int(waited.Milliseconds()),
	})
	return resolution
}

// Resolve settles a pending checkpoint with a decision. Exactly-once: a
// second Resolve for the same ID, or a Resolve after timeout, returns
// UnknownCheckpointError and has no effect.
func (g *Gate) Resolve(checkpointID string, resolution *Resolution) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, exists := g.store[checkpointID]
	if !exists || req.status != StatusPending {
		return &UnknownCheckpointError{CheckpointID: checkpointID}
	}

	if resolution.ResolvedAt.IsZero() {
		resolution.ResolvedAt = time.Now().UTC()
	}
	req.status = StatusResolved
	req.resolution <- resolution
	delete(g.store, checkpointID)

	g.log.Info("checkpoint resolved",
		"checkpoint_id", checkpointID, "stage", string(req.Stage), "decision", string(resolution.Decision))
	return nil
}

// Pending returns all requests still awaiting a decision.
func (g *Gate) Pending() []*Request {
	g.mu.Lock()
	defer g.mu.Unlock()

	var pending []*Request
	for _, req := range g.store {
		if req.status == StatusPending {
			pending = append(pending, req)
		}
	}
	return pending
}

// Get returns a still-pending request by ID, or nil. Settled requests are
// evicted from the gate.
func (g *Gate) Get(checkpointID string) *Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store[checkpointID]
}

// Timeout reports how long Submit waits for a decision.
func (g *Gate) Timeout() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.timeout
}

// SetTimeout replaces the Submit wait bound. The engine calls this at
// construction to push the configured checkpoint timeout onto a gate
// built without one.
func (g *Gate) SetTimeout(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timeout = d
}

// settle marks a request terminal if still pending and evicts it. Returns
// false when a resolution already settled it.
func (g *Gate) settle(req *Request, status Status) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if req.status != StatusPending {
		return false
	}
	req.status = status
	delete(g.store, req.ID)
	return true
}
