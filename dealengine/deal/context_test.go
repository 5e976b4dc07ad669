package deal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewDealContext verifies construction defaults.
func TestNewDealContext(t *testing.T) {
	ctx := NewDealContext()

	assert.Contains(t, ctx.DealID, "deal_")
	assert.Equal(t, 0, ctx.Version())
	assert.False(t, ctx.CreatedAt.IsZero())
	assert.Empty(t, ctx.CommittedStages())
}

// TestCommitAssignsSequence verifies commits get monotonic sequence numbers.
func TestCommitAssignsSequence(t *testing.T) {
	ctx := NewDealContext()

	first, err := ctx.Commit(NewArtifact(StageStrategy, "acquisition_strategy", map[string]any{
		"primary_goal": "market expansion",
	}))
	require.NoError(t, err)

	second, err := ctx.Commit(NewArtifact(StageSourcing, "target_list", map[string]any{
		"candidates": []any{"ACME Corp"},
	}))
	require.NoError(t, err)

	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, 2, second.Seq)
	assert.Equal(t, 2, ctx.Version())

	log := ctx.CommitLog()
	require.Len(t, log, 2)
	assert.Equal(t, StageStrategy, log[0].Stage)
	assert.Equal(t, StageSourcing, log[1].Stage)
}

// TestCommitWriteOnce verifies a stage slot cannot be committed twice.
func TestCommitWriteOnce(t *testing.T) {
	ctx := NewDealContext()

	_, err := ctx.Commit(NewArtifact(StageStrategy, "acquisition_strategy", nil))
	require.NoError(t, err)

	_, err = ctx.Commit(NewArtifact(StageStrategy, "acquisition_strategy", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already committed")
}

// TestCommitNilArtifact verifies nil commits are rejected.
func TestCommitNilArtifact(t *testing.T) {
	ctx := NewDealContext()

	_, err := ctx.Commit(nil)
	assert.Error(t, err)
}

// TestCommitIsolatesCaller verifies mutating the caller's artifact after
// commit does not affect the stored copy.
func TestCommitIsolatesCaller(t *testing.T) {
	ctx := NewDealContext()

	payload := map[string]any{"primary_goal": "market expansion"}
	a := NewArtifact(StageStrategy, "acquisition_strategy", payload)
	_, err := ctx.Commit(a)
	require.NoError(t, err)

	payload["primary_goal"] = "mutated"

	stored := ctx.Artifact(StageStrategy)
	require.NotNil(t, stored)
	assert.Equal(t, "market expansion", stored.Payload["primary_goal"])
}

// TestFacts verifies fact reads and writes with deep-copy isolation.
func TestFacts(t *testing.T) {
	ctx := NewDealContext()

	profile := map[string]any{"symbol": "ACME", "sector": "Technology"}
	ctx.SetFact("target_profile", profile)
	profile["symbol"] = "mutated"

	got, ok := ctx.Fact("target_profile").(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ACME", got["symbol"])
	assert.Nil(t, ctx.Fact("missing"))
	assert.Equal(t, 1, ctx.Version())
}

// TestRevisionNotes verifies note accumulation per stage.
func TestRevisionNotes(t *testing.T) {
	ctx := NewDealContext()

	ctx.AddRevisionNotes(StageValuation, "re-run with updated comparables")
	ctx.AddRevisionNotes(StageValuation, "include debt adjustments")
	ctx.AddRevisionNotes(StageValuation, "")

	notes := ctx.RevisionNotes(StageValuation)
	require.Len(t, notes, 2)
	assert.Equal(t, "re-run with updated comparables", notes[0])
	assert.Empty(t, ctx.RevisionNotes(StageStrategy))
}

// TestViewSnapshot verifies the view is a stable snapshot: commits after
// the view was taken stay invisible to it.
func TestViewSnapshot(t *testing.T) {
	ctx := NewDealContext()
	_, err := ctx.Commit(NewArtifact(StageStrategy, "acquisition_strategy", map[string]any{
		"buyer_type": "strategic",
	}))
	require.NoError(t, err)

	view := ctx.View()

	_, err = ctx.Commit(NewArtifact(StageSourcing, "target_list", nil))
	require.NoError(t, err)
	ctx.SetFact("target_profile", map[string]any{"symbol": "ACME"})

	assert.Equal(t, ctx.DealID, view.DealID())
	assert.Equal(t, 1, view.Version())
	assert.True(t, view.HasArtifact(StageStrategy))
	assert.False(t, view.HasArtifact(StageSourcing))
	assert.Nil(t, view.Fact("target_profile"))
}

// TestViewIsolation verifies worker-side mutation of a view's payload does
// not reach the shared context.
func TestViewIsolation(t *testing.T) {
	ctx := NewDealContext()
	_, err := ctx.Commit(NewArtifact(StageStrategy, "acquisition_strategy", map[string]any{
		"buyer_type": "strategic",
	}))
	require.NoError(t, err)

	view := ctx.View()
	view.Artifact(StageStrategy).Payload["buyer_type"] = "mutated"

	assert.Equal(t, "strategic", ctx.Artifact(StageStrategy).Payload["buyer_type"])
}

// TestClone verifies deep-copy cloning of the full context.
func TestClone(t *testing.T) {
	ctx := NewDealContext()
	_, err := ctx.Commit(NewArtifact(StageStrategy, "acquisition_strategy", map[string]any{
		"primary_goal": "market expansion",
	}))
	require.NoError(t, err)
	ctx.SetFact("target_profile", map[string]any{"symbol": "ACME"})
	ctx.AddRevisionNotes(StageStrategy, "tighten criteria")

	clone := ctx.Clone()
	clone.SetFact("target_profile", map[string]any{"symbol": "OTHER"})
	clone.AddRevisionNotes(StageStrategy, "extra note")

	original, ok := ctx.Fact("target_profile").(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ACME", original["symbol"])
	assert.Len(t, ctx.RevisionNotes(StageStrategy), 1)
	assert.Equal(t, ctx.DealID, clone.DealID)
	assert.Len(t, clone.CommitLog(), 1)
}

// TestStateDictRoundTrip verifies ToStateDict/FromStateDict preserve the
// full context state.
func TestStateDictRoundTrip(t *testing.T) {
	ctx := NewDealContext()
	_, err := ctx.Commit(NewArtifact(StageStrategy, "acquisition_strategy", map[string]any{
		"primary_goal":    "market expansion",
		"success_metrics": []any{"revenue synergy", "market share"},
	}))
	require.NoError(t, err)
	ctx.SetFact("target_profile", map[string]any{"symbol": "ACME"})
	ctx.AddRevisionNotes(StageValuation, "update comparables")

	restored, err := FromStateDict(ctx.ToStateDict())
	require.NoError(t, err)

	assert.Equal(t, ctx.DealID, restored.DealID)
	assert.Equal(t, ctx.Version(), restored.Version())
	assert.WithinDuration(t, ctx.CreatedAt, restored.CreatedAt, time.Millisecond)

	a := restored.Artifact(StageStrategy)
	require.NotNil(t, a)
	assert.Equal(t, "acquisition_strategy", a.Kind)
	assert.Equal(t, "market expansion", a.Payload["primary_goal"])
	assert.Equal(t, 1, a.Seq)

	profile, ok := restored.Fact("target_profile").(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ACME", profile["symbol"])
	assert.Equal(t, []string{"update comparables"}, restored.RevisionNotes(StageValuation))
	assert.Len(t, restored.CommitLog(), 1)
}

// TestFromStateDictMissingDealID verifies restore fails without a deal id.
func TestFromStateDictMissingDealID(t *testing.T) {
	_, err := FromStateDict(map[string]any{})
	assert.Error(t, err)
}
