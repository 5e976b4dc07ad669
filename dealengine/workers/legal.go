package workers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mna-automation/dealcore/dealengine/deal"
	"github.com/mna-automation/dealcore/dealengine/gateway"
	"github.com/mna-automation/dealcore/dealengine/typeutil"
)

// LegalWorker assembles the closing package: the definitive-agreement
// workstream checklist plus the final deal summary document that pulls
// together strategy, valuation, diligence, and the agreed terms.
type LegalWorker struct {
	toolCaller

	// Analyst optionally adds narrative commentary to the summary.
	Analyst Analyst
}

// NewLegalWorker creates a LegalWorker.
func NewLegalWorker(gw *gateway.Gateway, log deal.Logger) *LegalWorker {
	return &LegalWorker{toolCaller: toolCaller{gw: gw, log: log}}
}

func (w *LegalWorker) Stage() deal.StageID { return deal.StageLegal }

func (w *LegalWorker) Execute(ctx context.Context, view *deal.ContextView, notes []string) (*deal.Artifact, error) {
	strategy := view.Artifact(deal.StageStrategy)
	valuation := view.Artifact(deal.StageValuation)
	diligence := view.Artifact(deal.StageDueDiligence)
	terms := view.Artifact(deal.StageNegotiation)
	if strategy == nil || valuation == nil || diligence == nil || terms == nil {
		return nil, fmt.Errorf("legal close requires all upstream artifacts committed")
	}
	revision := len(notes)

	target := typeutil.SafeStringDefault(terms.Field("target"), "")
	offer := typeutil.SafeMapStringAnyDefault(terms.Field("offer"), map[string]any{})
	flagCount := int(typeutil.SafeFloat64Default(diligence.Field("flag_count"), 0))

	workstreams := []any{
		map[string]any{"item": "definitive purchase agreement drafted", "owner": "outside counsel"},
		map[string]any{"item": "disclosure schedules compiled", "owner": "target counsel"},
		map[string]any{"item": "regulatory filings prepared", "owner": "outside counsel"},
		map[string]any{"item": "escrow agreement executed", "owner": "escrow agent"},
		map[string]any{"item": "board and shareholder approvals obtained", "owner": "corporate secretary"},
	}
	if flagCount > 0 {
		workstreams = append(workstreams, map[string]any{
			"item":  fmt.Sprintf("special indemnities covering %d diligence flags", flagCount),
			"owner": "outside counsel",
		})
	}

	content, err := narrate(ctx, w.Analyst, deal.StageLegal,
		map[string]any{"target": target, "offer": offer},
		w.renderSummary(target, strategy, valuation, diligence, offer))
	if err != nil {
		return nil, err
	}
	rendered, err := w.invoke(ctx, view, deal.StageLegal, ToolDocumentRender, "closing_summary", revision, map[string]any{
		"name":    "summary",
		"title":   "Deal Summary",
		"content": content,
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"target":        target,
		"offer":         offer,
		"workstreams":   workstreams,
		"document_path": typeutil.SafeStringDefault(rendered["path"], ""),
	}
	if revision > 0 {
		payload["revision_addenda"] = copyNotes(notes)
	}

	a := deal.NewArtifact(deal.StageLegal, KindClosing, payload)
	a.Revision = revision
	a.Summary = fmt.Sprintf("closing package for %s with %d workstreams", target, len(workstreams))
	return a, nil
}

func (w *LegalWorker) renderSummary(target string, strategy, valuation, diligence *deal.Artifact, offer map[string]any) string {
	var b strings.Builder
	b.WriteString("# Deal Summary\n\n")
	fmt.Fprintf(&b, "Target: **%s**\n\n", target)
	b.WriteString("## Strategy\n")
	fmt.Fprintf(&b, "- Primary Goal: %v\n", strategy.Field("primary_goal"))
	fmt.Fprintf(&b, "- Buyer Type: %v\n\n", strategy.Field("buyer_type"))
	b.WriteString("## Valuation\n")
	model := typeutil.SafeMapStringAnyDefault(
		typeutil.SafeMapStringAnyDefault(valuation.Field("models"), map[string]any{})[target],
		map[string]any{})
	fmt.Fprintf(&b, "- Enterprise Value: %.0f\n", nestedFloat(model, "purchase_price.enterprise_value"))
	fmt.Fprintf(&b, "- Projected MOIC: %.2fx\n\n", nestedFloat(model, "returns.moic"))
	b.WriteString("## Due Diligence\n")
	fmt.Fprintf(&b, "- Risk Flags: %v\n\n", diligence.Field("flag_count"))
	b.WriteString("## Agreed Terms\n")
	fmt.Fprintf(&b, "- Total Consideration: %v\n", offer["total"])
	fmt.Fprintf(&b, "- Cash at Close: %v\n", offer["cash_at_close"])
	fmt.Fprintf(&b, "- Earnout: %v\n", offer["earnout"])
	return b.String()
}
