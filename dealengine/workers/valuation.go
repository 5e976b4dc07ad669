package workers

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mna-automation/dealcore/dealengine/deal"
	"github.com/mna-automation/dealcore/dealengine/gateway"
	"github.com/mna-automation/dealcore/dealengine/typeutil"
)

// ValuationWorker builds a leveraged-buyout model for every candidate with
// collected financials and recommends the target with the strongest
// risk-adjusted returns. The model is deterministic: the same financial
// inputs always produce the same purchase price, projections, and returns.
type ValuationWorker struct {
	toolCaller

	// Analyst optionally adds narrative commentary to the report.
	Analyst Analyst

	// Model assumptions. Zero values fall back to the defaults below.
	EntryMultiple float64 // EV / EBITDA at entry, default 8.0
	ExitMultiple  float64 // EV / EBITDA at exit, default 10.0
	DebtRatio     float64 // debt share of purchase price, default 0.7
	HoldingYears  int     // projection horizon, default 5
	GrowthRate    float64 // annual FCF growth, default 0.05
}

// NewValuationWorker creates a ValuationWorker with standard assumptions.
func NewValuationWorker(gw *gateway.Gateway, log deal.Logger) *ValuationWorker {
	return &ValuationWorker{
		toolCaller:    toolCaller{gw: gw, log: log},
		EntryMultiple: 8.0,
		ExitMultiple:  10.0,
		DebtRatio:     0.7,
		HoldingYears:  5,
		GrowthRate:    0.05,
	}
}

func (w *ValuationWorker) Stage() deal.StageID { return deal.StageValuation }

func (w *ValuationWorker) Execute(ctx context.Context, view *deal.ContextView, notes []string) (*deal.Artifact, error) {
	data := view.Artifact(deal.StageDataCollection)
	if data == nil {
		return nil, fmt.Errorf("valuation requires committed financial data")
	}
	revision := len(notes)

	financials := typeutil.SafeMapStringAnyDefault(data.Field("financials"), map[string]any{})
	if len(financials) == 0 {
		return nil, fmt.Errorf("financial data artifact carries no candidates")
	}

	symbols := make([]string, 0, len(financials))
	for symbol := range financials {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	models := make(map[string]any, len(symbols))
	bestSymbol := ""
	bestMOIC := math.Inf(-1)
	for _, symbol := range symbols {
		statements := typeutil.SafeMapStringAnyDefault(financials[symbol], map[string]any{})
		model, ok := w.buildLBO(statements)
		if !ok {
			w.log.Warn("candidate skipped, insufficient financials for model", "symbol", symbol)
			continue
		}
		models[symbol] = model
		moic := nestedFloat(model, "returns.moic")
		if moic > bestMOIC {
			bestMOIC = moic
			bestSymbol = symbol
		}
	}
	if bestSymbol == "" {
		return nil, fmt.Errorf("no candidate had sufficient financials to model")
	}

	payload := map[string]any{
		"models":             models,
		"recommended_target": bestSymbol,
		"assumptions": map[string]any{
			"entry_multiple": w.entryMultiple(),
			"exit_multiple":  w.exitMultiple(),
			"debt_ratio":     w.debtRatio(),
			"holding_years":  w.holdingYears(),
			"growth_rate":    w.growthRate(),
		},
	}
	if revision > 0 {
		payload["revision_addenda"] = copyNotes(notes)
	}

	content, err := narrate(ctx, w.Analyst, deal.StageValuation, payload, w.renderMarkdown(symbols, models, bestSymbol))
	if err != nil {
		return nil, err
	}
	rendered, err := w.invoke(ctx, view, deal.StageValuation, ToolDocumentRender, "valuation_doc", revision, map[string]any{
		"name":    "valuation",
		"title":   "Valuation Report",
		"content": content,
	})
	if err != nil {
		return nil, err
	}
	payload["document_path"] = typeutil.SafeStringDefault(rendered["path"], "")

	a := deal.NewArtifact(deal.StageValuation, KindValuation, payload)
	a.Revision = revision
	a.Summary = fmt.Sprintf("recommended %s at %.1fx projected MOIC", bestSymbol, bestMOIC)
	return a, nil
}

// buildLBO derives the purchase structure, five-year cash flow projection,
// and exit returns from a candidate's statements. Returns false when the
// statements lack a positive EBITDA to anchor the entry valuation.
func (w *ValuationWorker) buildLBO(statements map[string]any) (map[string]any, bool) {
	ebitda := nestedFloat(statements, "income_statement.ebitda")
	if ebitda <= 0 {
		return nil, false
	}
	fcf := nestedFloat(statements, "cash_flow.free_cash_flow")
	if fcf <= 0 {
		// Fall back to a conservative conversion of EBITDA.
		fcf = ebitda * 0.5
	}

	enterpriseValue := ebitda * w.entryMultiple()
	debt := enterpriseValue * w.debtRatio()
	equity := enterpriseValue - debt

	years := w.holdingYears()
	projections := make([]any, 0, years)
	cumulativeFCF := 0.0
	projected := fcf
	for year := 1; year <= years; year++ {
		projected *= 1 + w.growthRate()
		cumulativeFCF += projected
		projections = append(projections, map[string]any{
			"year":           year,
			"free_cash_flow": round2(projected),
		})
	}

	exitEBITDA := ebitda * math.Pow(1+w.growthRate(), float64(years))
	exitValue := exitEBITDA * w.exitMultiple()
	remainingDebt := math.Max(debt-cumulativeFCF, 0)
	exitEquity := exitValue - remainingDebt

	moic := 0.0
	irr := 0.0
	if equity > 0 && exitEquity > 0 {
		moic = exitEquity / equity
		irr = math.Pow(moic, 1/float64(years)) - 1
	}

	return map[string]any{
		"purchase_price": map[string]any{
			"enterprise_value": round2(enterpriseValue),
			"debt":             round2(debt),
			"equity":           round2(equity),
		},
		"projections": projections,
		"returns": map[string]any{
			"exit_value":     round2(exitValue),
			"remaining_debt": round2(remainingDebt),
			"exit_equity":    round2(exitEquity),
			"moic":           round4(moic),
			"irr":            round4(irr),
		},
	}, true
}

func (w *ValuationWorker) renderMarkdown(symbols []string, models map[string]any, recommended string) string {
	var b strings.Builder
	b.WriteString("# Valuation Report\n\n")
	fmt.Fprintf(&b, "Recommended Target: **%s**\n\n", recommended)
	b.WriteString("| Company | Enterprise Value | Equity | MOIC | IRR |\n")
	b.WriteString("|---------|-----------------:|-------:|-----:|----:|\n")
	for _, symbol := range symbols {
		model, ok := typeutil.SafeMapStringAny(models[symbol])
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "| %s | %.0f | %.0f | %.2fx | %.1f%% |\n",
			symbol,
			nestedFloat(model, "purchase_price.enterprise_value"),
			nestedFloat(model, "purchase_price.equity"),
			nestedFloat(model, "returns.moic"),
			nestedFloat(model, "returns.irr")*100)
	}
	return b.String()
}

func (w *ValuationWorker) entryMultiple() float64 {
	if w.EntryMultiple > 0 {
		return w.EntryMultiple
	}
	return 8.0
}

func (w *ValuationWorker) exitMultiple() float64 {
	if w.ExitMultiple > 0 {
		return w.ExitMultiple
	}
	return 10.0
}

func (w *ValuationWorker) debtRatio() float64 {
	if w.DebtRatio > 0 {
		return w.DebtRatio
	}
	return 0.7
}

func (w *ValuationWorker) holdingYears() int {
	if w.HoldingYears > 0 {
		return w.HoldingYears
	}
	return 5
}

func (w *ValuationWorker) growthRate() float64 {
	if w.GrowthRate > 0 {
		return w.GrowthRate
	}
	return 0.05
}

func nestedFloat(data map[string]any, path string) float64 {
	v, ok := typeutil.GetNestedFloat64(data, path)
	if !ok {
		return 0
	}
	return v
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
