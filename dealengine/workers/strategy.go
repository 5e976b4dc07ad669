package workers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mna-automation/dealcore/dealengine/deal"
	"github.com/mna-automation/dealcore/dealengine/gateway"
	"github.com/mna-automation/dealcore/dealengine/typeutil"
)

// StrategyWorker formalizes the acquisition strategy from the inputs the
// run was seeded with. Its artifact is the root of the whole pipeline:
// every later stage reads target criteria and goals from it.
type StrategyWorker struct {
	toolCaller

	// Analyst optionally adds narrative commentary to the document.
	Analyst Analyst
}

// NewStrategyWorker creates a StrategyWorker.
func NewStrategyWorker(gw *gateway.Gateway, log deal.Logger) *StrategyWorker {
	return &StrategyWorker{toolCaller: toolCaller{gw: gw, log: log}}
}

func (w *StrategyWorker) Stage() deal.StageID { return deal.StageStrategy }

func (w *StrategyWorker) Execute(ctx context.Context, view *deal.ContextView, notes []string) (*deal.Artifact, error) {
	inputs := typeutil.SafeMapStringAnyDefault(view.Fact(FactStrategyInputs), map[string]any{})
	revision := len(notes)

	criteria := typeutil.SafeMapStringAnyDefault(inputs["target_criteria"], map[string]any{
		"industry":  "Technology",
		"geography": []any{"United States"},
		"revenue_range": map[string]any{
			"min": 10_000_000.0,
			"max": 500_000_000.0,
		},
	})

	payload := map[string]any{
		"primary_goal":     typeutil.SafeStringDefault(inputs["primary_goal"], "market expansion"),
		"secondary_goals":  typeutil.SafeSliceDefault(inputs["secondary_goals"], []any{}),
		"buyer_type":       typeutil.SafeStringDefault(inputs["buyer_type"], "strategic"),
		"acquisition_type": typeutil.SafeStringDefault(inputs["acquisition_type"], "horizontal"),
		"target_criteria":  criteria,
		"success_metrics": typeutil.SafeMapStringAnyDefault(inputs["success_metrics"], map[string]any{
			"primary":  []any{"revenue synergy within 18 months", "customer retention above 90%"},
			"timeline": map[string]any{"integration": "12 months"},
		}),
		"risk_considerations": typeutil.SafeSliceDefault(inputs["risk_considerations"], []any{
			"integration complexity",
			"key personnel retention",
		}),
	}
	if revision > 0 {
		payload["revision_addenda"] = copyNotes(notes)
	}

	content, err := narrate(ctx, w.Analyst, deal.StageStrategy, payload, w.renderMarkdown(payload))
	if err != nil {
		return nil, err
	}
	rendered, err := w.invoke(ctx, view, deal.StageStrategy, ToolDocumentRender, "strategy_doc", revision, map[string]any{
		"name":    "strategy",
		"title":   "M&A Strategy Report",
		"content": content,
	})
	if err != nil {
		return nil, err
	}
	payload["document_path"] = typeutil.SafeStringDefault(rendered["path"], "")

	a := deal.NewArtifact(deal.StageStrategy, KindStrategy, payload)
	a.Revision = revision
	a.Summary = fmt.Sprintf("%s %s acquisition targeting %s",
		payload["buyer_type"], payload["acquisition_type"],
		typeutil.SafeStringDefault(criteria["industry"], "unspecified industry"))
	return a, nil
}

func (w *StrategyWorker) renderMarkdown(payload map[string]any) string {
	var b strings.Builder
	b.WriteString("# M&A Strategy Report\n\n")
	b.WriteString("## Executive Summary\n")
	fmt.Fprintf(&b, "Primary Goal: %v\n\n", payload["primary_goal"])
	b.WriteString("## Acquisition Overview\n")
	fmt.Fprintf(&b, "- Type: %v acquisition\n", payload["acquisition_type"])
	fmt.Fprintf(&b, "- Buyer Classification: %v buyer\n\n", payload["buyer_type"])
	b.WriteString("## Target Criteria\n")
	if criteria, ok := typeutil.SafeMapStringAny(payload["target_criteria"]); ok {
		fmt.Fprintf(&b, "- Industry: %v\n", criteria["industry"])
		if geo, ok := typeutil.SafeStringSlice(criteria["geography"]); ok {
			fmt.Fprintf(&b, "- Geography: %s\n", strings.Join(geo, ", "))
		}
	}
	if addenda, ok := typeutil.SafeStringSlice(payload["revision_addenda"]); ok {
		b.WriteString("\n## Revision Addenda\n")
		for _, note := range addenda {
			fmt.Fprintf(&b, "- %s\n", note)
		}
	}
	return b.String()
}

func copyNotes(notes []string) []any {
	out := make([]any, len(notes))
	for i, n := range notes {
		out[i] = n
	}
	return out
}
