package workers

import (
	"context"
	"fmt"
	"math"

	"github.com/mna-automation/dealcore/dealengine/deal"
	"github.com/mna-automation/dealcore/dealengine/gateway"
	"github.com/mna-automation/dealcore/dealengine/typeutil"
)

// NegotiationWorker drafts the term sheet for the recommended target. The
// opening offer is the modeled enterprise value plus a control premium;
// each revision requested at the checkpoint steps the premium down, so a
// reviewer who sends the terms back gets a sharper offer on the next pass.
type NegotiationWorker struct {
	toolCaller

	// BasePremium is the control premium applied on the first pass.
	// Defaults to 0.20 (20%).
	BasePremium float64

	// PremiumStep is how much each revision reduces the premium.
	// Defaults to 0.05.
	PremiumStep float64
}

// NewNegotiationWorker creates a NegotiationWorker.
func NewNegotiationWorker(gw *gateway.Gateway, log deal.Logger) *NegotiationWorker {
	return &NegotiationWorker{
		toolCaller:  toolCaller{gw: gw, log: log},
		BasePremium: 0.20,
		PremiumStep: 0.05,
	}
}

func (w *NegotiationWorker) Stage() deal.StageID { return deal.StageNegotiation }

func (w *NegotiationWorker) Execute(ctx context.Context, view *deal.ContextView, notes []string) (*deal.Artifact, error) {
	valuation := view.Artifact(deal.StageValuation)
	diligence := view.Artifact(deal.StageDueDiligence)
	if valuation == nil || diligence == nil {
		return nil, fmt.Errorf("negotiation requires committed valuation and diligence artifacts")
	}
	revision := len(notes)

	target := typeutil.SafeStringDefault(valuation.Field("recommended_target"), "")
	model := typeutil.SafeMapStringAnyDefault(
		typeutil.SafeMapStringAnyDefault(valuation.Field("models"), map[string]any{})[target],
		map[string]any{})
	enterpriseValue := nestedFloat(model, "purchase_price.enterprise_value")
	if enterpriseValue <= 0 {
		return nil, fmt.Errorf("valuation model for %s carries no enterprise value", target)
	}

	premium := w.premiumForRevision(revision)
	offer := enterpriseValue * (1 + premium)
	flagCount := typeutil.SafeFloat64Default(diligence.Field("flag_count"), 0)

	// Diligence flags push consideration toward earnouts: the more open
	// risk, the less paid up front.
	earnoutShare := math.Min(0.10*flagCount, 0.30)
	cashAtClose := offer * (1 - earnoutShare)
	earnout := offer - cashAtClose

	payload := map[string]any{
		"target": target,
		"offer": map[string]any{
			"total":         round2(offer),
			"premium":       round4(premium),
			"cash_at_close": round2(cashAtClose),
			"earnout":       round2(earnout),
			"earnout_share": round4(earnoutShare),
		},
		"terms": map[string]any{
			"structure":        "stock purchase",
			"exclusivity_days": 45,
			"escrow_percent":   10,
			"conditions": []any{
				"completion of confirmatory due diligence",
				"regulatory approval",
				"no material adverse change",
			},
		},
	}
	if revision > 0 {
		payload["revision_addenda"] = copyNotes(notes)
	}

	a := deal.NewArtifact(deal.StageNegotiation, KindTermSheet, payload)
	a.Revision = revision
	a.Summary = fmt.Sprintf("offer for %s at %.0f (%.0f%% premium, %.0f%% earnout)",
		target, offer, premium*100, earnoutShare*100)
	return a, nil
}

func (w *NegotiationWorker) premiumForRevision(revision int) float64 {
	base := w.BasePremium
	if base <= 0 {
		base = 0.20
	}
	step := w.PremiumStep
	if step <= 0 {
		step = 0.05
	}
	return math.Max(base-step*float64(revision), 0)
}
