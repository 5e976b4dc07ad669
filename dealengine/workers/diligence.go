package workers

import (
	"context"
	"fmt"

	"github.com/mna-automation/dealcore/dealengine/deal"
	"github.com/mna-automation/dealcore/dealengine/gateway"
	"github.com/mna-automation/dealcore/dealengine/typeutil"
)

// DueDiligenceWorker screens the recommended target's financials against a
// fixed checklist and raises risk flags for anything that would change the
// deal's economics. Its artifact is gated behind a human checkpoint; the
// reviewer sees the flags before the pipeline moves to negotiation.
type DueDiligenceWorker struct {
	toolCaller

	// MaxLeverage is the debt/EBITDA ratio above which leverage is
	// flagged. Defaults to 4.0.
	MaxLeverage float64
}

// NewDueDiligenceWorker creates a DueDiligenceWorker.
func NewDueDiligenceWorker(gw *gateway.Gateway, log deal.Logger) *DueDiligenceWorker {
	return &DueDiligenceWorker{toolCaller: toolCaller{gw: gw, log: log}, MaxLeverage: 4.0}
}

func (w *DueDiligenceWorker) Stage() deal.StageID { return deal.StageDueDiligence }

func (w *DueDiligenceWorker) Execute(ctx context.Context, view *deal.ContextView, notes []string) (*deal.Artifact, error) {
	valuation := view.Artifact(deal.StageValuation)
	data := view.Artifact(deal.StageDataCollection)
	if valuation == nil || data == nil {
		return nil, fmt.Errorf("due diligence requires committed valuation and financial data")
	}
	revision := len(notes)

	target := typeutil.SafeStringDefault(valuation.Field("recommended_target"), "")
	if target == "" {
		return nil, fmt.Errorf("valuation artifact names no recommended target")
	}
	financials := typeutil.SafeMapStringAnyDefault(data.Field("financials"), map[string]any{})
	statements := typeutil.SafeMapStringAnyDefault(financials[target], map[string]any{})
	if len(statements) == 0 {
		return nil, fmt.Errorf("no financial statements collected for recommended target %s", target)
	}
	model := typeutil.SafeMapStringAnyDefault(
		typeutil.SafeMapStringAnyDefault(valuation.Field("models"), map[string]any{})[target],
		map[string]any{})

	checklist, flags := w.screen(statements, model)

	payload := map[string]any{
		"target":     target,
		"checklist":  checklist,
		"risk_flags": flags,
		"flag_count": len(flags),
	}
	if revision > 0 {
		payload["revision_addenda"] = copyNotes(notes)
	}

	a := deal.NewArtifact(deal.StageDueDiligence, KindDiligence, payload)
	a.Revision = revision
	a.Summary = fmt.Sprintf("%s: %d of %d checks passed, %d risk flags",
		target, passCount(checklist), len(checklist), len(flags))
	return a, nil
}

// screen runs the financial checks. Each checklist item carries its name,
// whether it passed, and the observed value; failed checks also contribute
// a risk flag with a human-readable rationale.
func (w *DueDiligenceWorker) screen(statements, model map[string]any) ([]any, []any) {
	ebitda := nestedFloat(statements, "income_statement.ebitda")
	totalDebt := nestedFloat(statements, "balance_sheet.total_debt")
	currentAssets := nestedFloat(statements, "balance_sheet.current_assets")
	currentLiabilities := nestedFloat(statements, "balance_sheet.current_liabilities")
	freeCashFlow := nestedFloat(statements, "cash_flow.free_cash_flow")
	netIncome := nestedFloat(statements, "income_statement.net_income")
	moic := nestedFloat(model, "returns.moic")

	maxLeverage := w.MaxLeverage
	if maxLeverage <= 0 {
		maxLeverage = 4.0
	}

	var checklist []any
	var flags []any
	check := func(name string, passed bool, observed any, flag string) {
		checklist = append(checklist, map[string]any{
			"check":    name,
			"passed":   passed,
			"observed": observed,
		})
		if !passed {
			flags = append(flags, map[string]any{"check": name, "detail": flag})
		}
	}

	leverage := 0.0
	if ebitda > 0 {
		leverage = totalDebt / ebitda
	}
	check("leverage", ebitda > 0 && leverage <= maxLeverage, round2(leverage),
		fmt.Sprintf("debt/EBITDA of %.1fx exceeds the %.1fx ceiling", leverage, maxLeverage))

	currentRatio := 0.0
	if currentLiabilities > 0 {
		currentRatio = currentAssets / currentLiabilities
	}
	check("liquidity", currentRatio >= 1.0, round2(currentRatio),
		fmt.Sprintf("current ratio of %.2f signals a working capital shortfall", currentRatio))

	check("cash_generation", freeCashFlow > 0, round2(freeCashFlow),
		"negative free cash flow; the model's debt paydown assumptions do not hold")

	check("profitability", netIncome > 0, round2(netIncome),
		"target is loss-making at the net income line")

	check("return_threshold", moic >= 2.0, round4(moic),
		fmt.Sprintf("projected MOIC of %.2fx is below the 2.0x underwriting floor", moic))

	return checklist, flags
}

func passCount(checklist []any) int {
	n := 0
	for _, item := range checklist {
		if m, ok := typeutil.SafeMapStringAny(item); ok {
			if passed, ok := m["passed"].(bool); ok && passed {
				n++
			}
		}
	}
	return n
}
