package workers

import (
	"context"
	"fmt"

	"github.com/mna-automation/dealcore/dealengine/deal"
	"github.com/mna-automation/dealcore/dealengine/gateway"
	"github.com/mna-automation/dealcore/dealengine/typeutil"
)

// DataCollectionWorker pulls financial statements for every candidate on
// the target list through the market_data tool. Candidates whose data
// cannot be fetched are recorded under "unavailable" rather than failing
// the stage; the stage fails only if no candidate yields data at all.
type DataCollectionWorker struct {
	toolCaller
}

// NewDataCollectionWorker creates a DataCollectionWorker.
func NewDataCollectionWorker(gw *gateway.Gateway, log deal.Logger) *DataCollectionWorker {
	return &DataCollectionWorker{toolCaller{gw: gw, log: log}}
}

func (w *DataCollectionWorker) Stage() deal.StageID { return deal.StageDataCollection }

func (w *DataCollectionWorker) Execute(ctx context.Context, view *deal.ContextView, notes []string) (*deal.Artifact, error) {
	targets := view.Artifact(deal.StageSourcing)
	if targets == nil {
		return nil, fmt.Errorf("data collection requires a committed target list")
	}
	revision := len(notes)

	candidates := typeutil.SafeSliceDefault(targets.Field("candidates"), []any{})
	financials := make(map[string]any, len(candidates))
	var unavailable []any

	for _, c := range candidates {
		candidate, ok := typeutil.SafeMapStringAny(c)
		if !ok {
			continue
		}
		symbol := typeutil.SafeStringDefault(candidate["symbol"], "")
		if symbol == "" {
			continue
		}

		output, err := w.invoke(ctx, view, deal.StageDataCollection, ToolMarketData,
			"financials_"+symbol, revision, map[string]any{
				"symbol":     symbol,
				"statements": []any{"income_statement", "balance_sheet", "cash_flow"},
			})
		if err != nil {
			w.log.Warn("financial data unavailable for candidate",
				"symbol", symbol, "error", err.Error())
			unavailable = append(unavailable, symbol)
			continue
		}

		financials[symbol] = map[string]any{
			"company_name":     typeutil.SafeStringDefault(candidate["name"], symbol),
			"income_statement": typeutil.SafeMapStringAnyDefault(output["income_statement"], map[string]any{}),
			"balance_sheet":    typeutil.SafeMapStringAnyDefault(output["balance_sheet"], map[string]any{}),
			"cash_flow":        typeutil.SafeMapStringAnyDefault(output["cash_flow"], map[string]any{}),
		}
	}

	if len(financials) == 0 {
		return nil, fmt.Errorf("no financial data collected for %d candidates", len(candidates))
	}

	payload := map[string]any{
		"financials":  financials,
		"unavailable": unavailable,
	}

	a := deal.NewArtifact(deal.StageDataCollection, KindFinancialData, payload)
	a.Revision = revision
	a.Summary = fmt.Sprintf("financial statements for %d of %d candidates", len(financials), len(candidates))
	return a, nil
}
