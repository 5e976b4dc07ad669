package workers

import (
	"context"
	"fmt"

	"github.com/mna-automation/dealcore/dealengine/deal"
	"github.com/mna-automation/dealcore/dealengine/gateway"
	"github.com/mna-automation/dealcore/dealengine/typeutil"
)

// SourcingWorker screens the market for candidates matching the strategy's
// target criteria. It queries the company database through the web_search
// tool and produces the target list the rest of the pipeline works from.
type SourcingWorker struct {
	toolCaller

	// MaxTargets bounds the candidate list. Defaults to 5.
	MaxTargets int
}

// NewSourcingWorker creates a SourcingWorker.
func NewSourcingWorker(gw *gateway.Gateway, log deal.Logger) *SourcingWorker {
	return &SourcingWorker{toolCaller: toolCaller{gw: gw, log: log}, MaxTargets: 5}
}

func (w *SourcingWorker) Stage() deal.StageID { return deal.StageSourcing }

func (w *SourcingWorker) Execute(ctx context.Context, view *deal.ContextView, notes []string) (*deal.Artifact, error) {
	strategy := view.Artifact(deal.StageStrategy)
	if strategy == nil {
		return nil, fmt.Errorf("sourcing requires a committed strategy artifact")
	}
	revision := len(notes)

	criteria := typeutil.SafeMapStringAnyDefault(strategy.Field("target_criteria"), map[string]any{})
	params := map[string]any{
		"industry": typeutil.SafeStringDefault(criteria["industry"], ""),
		"limit":    w.maxTargets(),
	}
	if geo, ok := typeutil.SafeStringSlice(criteria["geography"]); ok && len(geo) > 0 {
		params["country"] = geo[0]
	}
	if marketCap, ok := typeutil.SafeString(criteria["market_cap"]); ok {
		params["market_cap"] = marketCap
	}
	if keywords, ok := typeutil.SafeStringSlice(criteria["key_requirements"]); ok && len(keywords) > 0 {
		params["summary_keywords"] = keywords
	}

	output, err := w.invoke(ctx, view, deal.StageSourcing, ToolWebSearch, "target_search", revision, params)
	if err != nil {
		return nil, err
	}

	candidates := typeutil.SafeSliceDefault(output["companies"], []any{})
	if len(candidates) > w.maxTargets() {
		candidates = candidates[:w.maxTargets()]
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidate targets matched criteria (industry '%v')", params["industry"])
	}

	payload := map[string]any{
		"acquirer":   typeutil.SafeMapStringAnyDefault(view.Fact(FactAcquirer), map[string]any{}),
		"criteria":   criteria,
		"candidates": candidates,
	}

	a := deal.NewArtifact(deal.StageSourcing, KindTargetList, payload)
	a.Revision = revision
	a.Summary = fmt.Sprintf("%d candidate targets in %v", len(candidates), params["industry"])
	return a, nil
}

func (w *SourcingWorker) maxTargets() int {
	if w.MaxTargets > 0 {
		return w.MaxTargets
	}
	return 5
}
