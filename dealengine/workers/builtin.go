package workers

import (
	"context"
	"fmt"

	"github.com/mna-automation/dealcore/dealengine/deal"
	"github.com/mna-automation/dealcore/dealengine/gateway"
	"github.com/mna-automation/dealcore/dealengine/tools"
)

// Artifact kinds produced by the built-in workers.
const (
	KindStrategy      = "acquisition_strategy"
	KindTargetList    = "target_list"
	KindFinancialData = "financial_data"
	KindValuation     = "valuation_model"
	KindDiligence     = "diligence_report"
	KindTermSheet     = "term_sheet"
	KindClosing       = "closing_package"
)

// Tool names the built-in workers call through the gateway. The canonical
// definitions live with the adapters in dealengine/tools.
const (
	ToolWebSearch      = tools.ToolWebSearch
	ToolMarketData     = tools.ToolMarketData
	ToolDocumentRender = tools.ToolDocumentRender
)

// Shared fact keys on the deal context.
const (
	FactStrategyInputs = "strategy_inputs"
	FactAcquirer       = "acquirer"
)

// toolCaller is the embedded base of the built-in workers. It routes all
// external calls through the gateway with stage attribution and stable
// idempotency keys, so a revised execution never repeats a completed
// write-style call.
type toolCaller struct {
	gw  *gateway.Gateway
	log deal.Logger
}

func (t *toolCaller) invoke(
	ctx context.Context,
	view *deal.ContextView,
	stage deal.StageID,
	tool string,
	purpose string,
	revision int,
	params map[string]any,
) (map[string]any, error) {
	result, err := t.gw.Invoke(ctx, &gateway.ToolCall{
		Tool:           tool,
		Stage:          stage,
		Params:         params,
		IdempotencyKey: fmt.Sprintf("%s:%s:rev%d", purpose, view.DealID(), revision),
	})
	if err != nil {
		return nil, err
	}
	return result.Output, nil
}

// RegisterBuiltins registers the full seven-stage worker set.
func RegisterBuiltins(registry *Registry, gw *gateway.Gateway, log deal.Logger) error {
	all := []Worker{
		NewStrategyWorker(gw, log),
		NewSourcingWorker(gw, log),
		NewDataCollectionWorker(gw, log),
		NewValuationWorker(gw, log),
		NewDueDiligenceWorker(gw, log),
		NewNegotiationWorker(gw, log),
		NewLegalWorker(gw, log),
	}
	for _, w := range all {
		if err := registry.Register(w); err != nil {
			return err
		}
	}
	return nil
}
