package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna-automation/dealcore/dealengine/deal"
	"github.com/mna-automation/dealcore/dealengine/testutil"
	"github.com/mna-automation/dealcore/eventbus"
)

// TestDecisionFromString verifies decision parsing.
func TestDecisionFromString(t *testing.T) {
	d, err := DecisionFromString("approve")
	require.NoError(t, err)
	assert.Equal(t, DecisionApprove, d)

	_, err = DecisionFromString("maybe")
	assert.Error(t, err)
}

// TestSubmitApproved verifies Submit returns the reviewer's decision.
func TestSubmitApproved(t *testing.T) {
	gate := NewGate(testutil.NewMockLogger(), nil, time.Minute)
	artifact := deal.NewArtifact(deal.StageDueDiligence, "diligence_report", map[string]any{
		"risk_flags": []any{"customer concentration"},
	})
	req := NewRequest("run_1", "deal_1", deal.StageDueDiligence,
		WithSummary("due diligence findings and risk flags"),
		WithArtifact(artifact),
	)

	done := make(chan struct{})
	var resolution *Resolution
	var submitErr error
	go func() {
		defer close(done)
		resolution, submitErr = gate.Submit(context.Background(), req)
	}()

	// Wait until the request is visible to reviewers, then decide.
	require.Eventually(t, func() bool {
		return len(gate.Pending()) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, gate.Resolve(req.ID, &Resolution{
		Decision:   DecisionApprove,
		ResolvedBy: "analyst",
	}))

	<-done
	require.NoError(t, submitErr)
	assert.Equal(t, DecisionApprove, resolution.Decision)
	assert.Equal(t, "analyst", resolution.ResolvedBy)
	assert.Equal(t, StatusResolved, req.Status())
}

// TestSubmitTimeout verifies Submit fails with TimeoutError when nobody
// decides in time, and that late resolutions are rejected.
func TestSubmitTimeout(t *testing.T) {
	gate := NewGate(testutil.NewMockLogger(), nil, 20*time.Millisecond)
	req := NewRequest("run_1", "deal_1", deal.StageNegotiation)

	_, err := gate.Submit(context.Background(), req)
	require.Error(t, err)

	var timeout *TimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, deal.StageNegotiation, timeout.Stage)
	assert.Equal(t, StatusExpired, req.Status())

	// The decision window is closed.
	err = gate.Resolve(req.ID, &Resolution{Decision: DecisionApprove})
	var unknown *UnknownCheckpointError
	assert.True(t, errors.As(err, &unknown))
}

// TestSubmitContextCanceled verifies cancellation unblocks Submit.
func TestSubmitContextCanceled(t *testing.T) {
	gate := NewGate(testutil.NewMockLogger(), nil, time.Minute)
	req := NewRequest("run_1", "deal_1", deal.StageDueDiligence)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := gate.Submit(ctx, req)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return len(gate.Pending()) == 1
	}, time.Second, time.Millisecond)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusCanceled, req.Status())
}

// TestResolveExactlyOnce verifies a checkpoint accepts only one decision.
func TestResolveExactlyOnce(t *testing.T) {
	gate := NewGate(testutil.NewMockLogger(), nil, time.Minute)
	req := NewRequest("run_1", "deal_1", deal.StageNegotiation)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = gate.Submit(context.Background(), req)
	}()
	require.Eventually(t, func() bool {
		return len(gate.Pending()) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, gate.Resolve(req.ID, &Resolution{Decision: DecisionReject, Notes: "terms unacceptable"}))
	<-done

	err := gate.Resolve(req.ID, &Resolution{Decision: DecisionApprove})
	var unknown *UnknownCheckpointError
	assert.True(t, errors.As(err, &unknown))
}

// TestResolveUnknownID verifies resolving a nonexistent checkpoint fails.
func TestResolveUnknownID(t *testing.T) {
	gate := NewGate(testutil.NewMockLogger(), nil, time.Minute)

	err := gate.Resolve("chk_missing", &Resolution{Decision: DecisionApprove})
	assert.Error(t, err)
}

// TestSubmitPublishesEvents verifies request and resolution events reach
// the bus.
func TestSubmitPublishesEvents(t *testing.T) {
	bus := eventbus.NewInMemoryBus()
	requested := make(chan *eventbus.CheckpointRequested, 1)
	resolved := make(chan *eventbus.CheckpointResolved, 1)
	bus.Subscribe("CheckpointRequested", func(ctx context.Context, e eventbus.Event) error {
		requested <- e.(*eventbus.CheckpointRequested)
		return nil
	})
	bus.Subscribe("CheckpointResolved", func(ctx context.Context, e eventbus.Event) error {
		resolved <- e.(*eventbus.CheckpointResolved)
		return nil
	})

	gate := NewGate(testutil.NewMockLogger(), bus, time.Minute)
	req := NewRequest("run_1", "deal_1", deal.StageDueDiligence, WithSummary("findings"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = gate.Submit(context.Background(), req)
	}()

	evt := <-requested
	assert.Equal(t, req.ID, evt.CheckpointID)
	assert.Equal(t, "findings", evt.Summary)

	require.NoError(t, gate.Resolve(req.ID, &Resolution{Decision: DecisionRevise, Notes: "expand checklist"}))
	<-done

	res := <-resolved
	assert.Equal(t, "revise", res.Decision)
	assert.Equal(t, "expand checklist", res.Notes)
}

// TestSettledRequestsEvicted verifies the gate does not accumulate
// resolved or expired requests.
func TestSettledRequestsEvicted(t *testing.T) {
	gate := NewGate(testutil.NewMockLogger(), nil, 20*time.Millisecond)

	approved := NewRequest("run_1", "deal_1", deal.StageDueDiligence)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = gate.Submit(context.Background(), approved)
	}()
	require.Eventually(t, func() bool {
		return len(gate.Pending()) == 1
	}, time.Second, time.Millisecond)
	require.NoError(t, gate.Resolve(approved.ID, &Resolution{Decision: DecisionApprove}))
	<-done
	assert.Nil(t, gate.Get(approved.ID))

	expired := NewRequest("run_1", "deal_1", deal.StageNegotiation)
	_, err := gate.Submit(context.Background(), expired)
	require.Error(t, err)
	assert.Nil(t, gate.Get(expired.ID))
	assert.Empty(t, gate.Pending())
}

// TestRequestArtifactIsolation verifies the reviewed artifact is a copy.
func TestRequestArtifactIsolation(t *testing.T) {
	artifact := deal.NewArtifact(deal.StageValuation, "valuation_model", map[string]any{"ev_ebitda": 12.5})
	req := NewRequest("run_1", "deal_1", deal.StageValuation, WithArtifact(artifact))

	artifact.Payload["ev_ebitda"] = 99.0
	assert.Equal(t, 12.5, req.Artifact.Payload["ev_ebitda"])
}
