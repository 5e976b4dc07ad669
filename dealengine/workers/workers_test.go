package workers

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna-automation/dealcore/dealengine/config"
	"github.com/mna-automation/dealcore/dealengine/deal"
	"github.com/mna-automation/dealcore/dealengine/gateway"
	"github.com/mna-automation/dealcore/dealengine/testutil"
	"github.com/mna-automation/dealcore/dealengine/typeutil"
)

// countingTool wraps a fixed response and counts invocations, so tests can
// observe gateway-level deduplication.
type countingTool struct {
	calls  int
	result map[string]any
	err    error
}

func (c *countingTool) handler(ctx context.Context, params map[string]any) (map[string]any, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if c.result != nil {
		return c.result, nil
	}
	name, _ := typeutil.SafeString(params["name"])
	return map[string]any{"path": "/deals/docs/" + name + ".md"}, nil
}

func healthyStatements(name string) map[string]any {
	return map[string]any{
		"company_name": name,
		"income_statement": map[string]any{
			"revenue":          1000.0,
			"ebitda":           250.0,
			"operating_income": 200.0,
			"net_income":       120.0,
		},
		"balance_sheet": map[string]any{
			"total_debt":          500.0,
			"cash":                150.0,
			"current_assets":      400.0,
			"current_liabilities": 200.0,
			"working_capital":     200.0,
		},
		"cash_flow": map[string]any{
			"operating_cash_flow": 180.0,
			"capex":               60.0,
			"free_cash_flow":      120.0,
		},
	}
}

func stressedStatements(name string) map[string]any {
	return map[string]any{
		"company_name": name,
		"income_statement": map[string]any{
			"revenue":    400.0,
			"ebitda":     100.0,
			"net_income": -10.0,
		},
		"balance_sheet": map[string]any{
			"total_debt":          500.0,
			"current_assets":      100.0,
			"current_liabilities": 200.0,
		},
		"cash_flow": map[string]any{
			"free_cash_flow": -20.0,
		},
	}
}

// newWorkerGateway builds a gateway whose tools answer deterministically:
// web_search returns two candidates, market_data serves the statements map
// by symbol, and document_render echoes a path derived from the name.
func newWorkerGateway(t *testing.T, statements map[string]map[string]any) (*gateway.Gateway, *countingTool) {
	t.Helper()
	cfg := config.DefaultEngineConfig()
	cfg.MaxToolRetries = 1
	cfg.RetryInitialBackoffMs = 1
	cfg.RetryMaxBackoffMs = 2

	registry := gateway.NewRegistry()
	render := &countingTool{}
	require.NoError(t, registry.Register(&gateway.ToolDefinition{
		Name:       ToolDocumentRender,
		WriteStyle: true,
		Handler:    render.handler,
	}))
	require.NoError(t, registry.Register(&gateway.ToolDefinition{
		Name: ToolWebSearch,
		Handler: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return map[string]any{"companies": []any{
				map[string]any{"name": "Acme Robotics", "symbol": "ACME", "description": "warehouse robotics"},
				map[string]any{"name": "Borealis Data", "symbol": "BRLS", "description": "data infrastructure"},
			}}, nil
		},
	}))
	require.NoError(t, registry.Register(&gateway.ToolDefinition{
		Name: ToolMarketData,
		Handler: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			symbol, _ := typeutil.SafeString(params["symbol"])
			s, ok := statements[symbol]
			if !ok {
				return nil, fmt.Errorf("symbol %s not covered", symbol)
			}
			return s, nil
		},
	}))
	return gateway.NewGateway(registry, cfg, testutil.NewMockLogger(), nil), render
}

func commitArtifact(t *testing.T, dc *deal.DealContext, stage deal.StageID, kind string, payload map[string]any) {
	t.Helper()
	_, err := dc.Commit(deal.NewArtifact(stage, kind, payload))
	require.NoError(t, err)
}

// TestRegistryClosedSet verifies the worker registry rejects nil workers,
// empty stages, and duplicate registrations.
func TestRegistryClosedSet(t *testing.T) {
	registry := NewRegistry()
	gw, _ := newWorkerGateway(t, nil)
	log := testutil.NewMockLogger()

	require.Error(t, registry.Register(nil))
	require.NoError(t, registry.Register(NewStrategyWorker(gw, log)))
	require.Error(t, registry.Register(NewStrategyWorker(gw, log)))

	assert.True(t, registry.Has(deal.StageStrategy))
	assert.False(t, registry.Has(deal.StageLegal))
}

// TestRegisterBuiltins verifies the full seven-stage worker set registers
// and covers every stage of the default graph.
func TestRegisterBuiltins(t *testing.T) {
	registry := NewRegistry()
	gw, _ := newWorkerGateway(t, nil)

	require.NoError(t, RegisterBuiltins(registry, gw, testutil.NewMockLogger()))

	for _, stage := range deal.AllStages() {
		assert.True(t, registry.Has(stage), "missing worker for stage %s", stage)
	}
	assert.Len(t, registry.Stages(), 7)
}

// TestStrategyWorkerDefaults verifies the strategy worker fills sensible
// defaults when the run was seeded with no inputs.
func TestStrategyWorkerDefaults(t *testing.T) {
	gw, render := newWorkerGateway(t, nil)
	w := NewStrategyWorker(gw, testutil.NewMockLogger())
	dc := deal.NewDealContext()

	a, err := w.Execute(context.Background(), dc.View(), nil)
	require.NoError(t, err)

	assert.Equal(t, KindStrategy, a.Kind)
	assert.Equal(t, 0, a.Revision)
	assert.Equal(t, "strategic", a.Payload["buyer_type"])
	assert.Equal(t, "horizontal", a.Payload["acquisition_type"])
	assert.Equal(t, "/deals/docs/strategy.md", a.Payload["document_path"])
	assert.Equal(t, 1, render.calls)
	assert.NotContains(t, a.Payload, "revision_addenda")
}

// TestStrategyWorkerRevision verifies revision notes surface in the
// artifact and bump its revision number.
func TestStrategyWorkerRevision(t *testing.T) {
	gw, _ := newWorkerGateway(t, nil)
	w := NewStrategyWorker(gw, testutil.NewMockLogger())
	dc := deal.NewDealContext()

	a, err := w.Execute(context.Background(), dc.View(), []string{"narrow the industry focus"})
	require.NoError(t, err)

	assert.Equal(t, 1, a.Revision)
	addenda, ok := typeutil.SafeStringSlice(a.Payload["revision_addenda"])
	require.True(t, ok)
	assert.Equal(t, []string{"narrow the industry focus"}, addenda)
}

// TestStrategyWorkerIdempotentRender verifies re-executing at the same
// revision does not repeat the document write: the gateway deduplicates on
// the purpose:deal:revision key and both artifacts carry the same payload.
func TestStrategyWorkerIdempotentRender(t *testing.T) {
	gw, render := newWorkerGateway(t, nil)
	w := NewStrategyWorker(gw, testutil.NewMockLogger())
	dc := deal.NewDealContext()

	first, err := w.Execute(context.Background(), dc.View(), nil)
	require.NoError(t, err)
	second, err := w.Execute(context.Background(), dc.View(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, render.calls)
	assert.True(t, first.Equivalent(second))
}

type scriptedAnalyst struct {
	commentary string
	err        error
}

func (a *scriptedAnalyst) Narrate(ctx context.Context, stage deal.StageID, payload map[string]any) (string, error) {
	return a.commentary, a.err
}

// TestStrategyWorkerAnalystCommentary verifies a plugged analyst enriches
// the rendered document without changing the artifact payload shape.
func TestStrategyWorkerAnalystCommentary(t *testing.T) {
	var content string
	cfg := config.DefaultEngineConfig()
	registry := gateway.NewRegistry()
	require.NoError(t, registry.Register(&gateway.ToolDefinition{
		Name:       ToolDocumentRender,
		WriteStyle: true,
		Handler: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			content, _ = typeutil.SafeString(params["content"])
			return map[string]any{"path": "/deals/docs/strategy.md"}, nil
		},
	}))
	gw := gateway.NewGateway(registry, cfg, testutil.NewMockLogger(), nil)

	w := NewStrategyWorker(gw, testutil.NewMockLogger())
	w.Analyst = &scriptedAnalyst{commentary: "thesis rests on cross-sell synergies"}

	a, err := w.Execute(context.Background(), deal.NewDealContext().View(), nil)
	require.NoError(t, err)

	assert.Contains(t, content, "Analyst Commentary")
	assert.Contains(t, content, "cross-sell synergies")
	assert.Equal(t, KindStrategy, a.Kind)
}

// TestSourcingWorker verifies the target list is built from the strategy's
// criteria and capped at MaxTargets.
func TestSourcingWorker(t *testing.T) {
	gw, _ := newWorkerGateway(t, nil)
	w := NewSourcingWorker(gw, testutil.NewMockLogger())
	w.MaxTargets = 1
	dc := deal.NewDealContext()
	dc.SetFact(FactAcquirer, map[string]any{"name": "Vector Industries", "symbol": "VCTR"})
	commitArtifact(t, dc, deal.StageStrategy, KindStrategy, map[string]any{
		"target_criteria": map[string]any{
			"industry":  "Robotics",
			"geography": []any{"United States"},
		},
	})

	a, err := w.Execute(context.Background(), dc.View(), nil)
	require.NoError(t, err)

	assert.Equal(t, KindTargetList, a.Kind)
	candidates := typeutil.SafeSliceDefault(a.Payload["candidates"], nil)
	assert.Len(t, candidates, 1)
	acquirer := typeutil.SafeMapStringAnyDefault(a.Payload["acquirer"], nil)
	assert.Equal(t, "Vector Industries", acquirer["name"])
}

// TestSourcingWorkerRequiresStrategy verifies the dependency check.
func TestSourcingWorkerRequiresStrategy(t *testing.T) {
	gw, _ := newWorkerGateway(t, nil)
	w := NewSourcingWorker(gw, testutil.NewMockLogger())

	_, err := w.Execute(context.Background(), deal.NewDealContext().View(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strategy")
}

// TestDataCollectionWorker verifies statements are fetched per symbol and
// uncovered symbols land in the unavailable list instead of failing.
func TestDataCollectionWorker(t *testing.T) {
	gw, _ := newWorkerGateway(t, map[string]map[string]any{
		"ACME": healthyStatements("Acme Robotics"),
	})
	w := NewDataCollectionWorker(gw, testutil.NewMockLogger())
	dc := deal.NewDealContext()
	commitArtifact(t, dc, deal.StageSourcing, KindTargetList, map[string]any{
		"candidates": []any{
			map[string]any{"name": "Acme Robotics", "symbol": "ACME"},
			map[string]any{"name": "Borealis Data", "symbol": "BRLS"},
		},
	})

	a, err := w.Execute(context.Background(), dc.View(), nil)
	require.NoError(t, err)

	financials := typeutil.SafeMapStringAnyDefault(a.Payload["financials"], nil)
	require.Contains(t, financials, "ACME")
	assert.NotContains(t, financials, "BRLS")
	acme := typeutil.SafeMapStringAnyDefault(financials["ACME"], nil)
	assert.InDelta(t, 250.0, nestedFloat(acme, "income_statement.ebitda"), 0.001)

	unavailable := typeutil.SafeSliceDefault(a.Payload["unavailable"], nil)
	assert.Equal(t, []any{"BRLS"}, unavailable)
}

// TestDataCollectionWorkerAllUnavailable verifies the stage fails when no
// candidate yields data.
func TestDataCollectionWorkerAllUnavailable(t *testing.T) {
	gw, _ := newWorkerGateway(t, nil)
	w := NewDataCollectionWorker(gw, testutil.NewMockLogger())
	dc := deal.NewDealContext()
	commitArtifact(t, dc, deal.StageSourcing, KindTargetList, map[string]any{
		"candidates": []any{map[string]any{"name": "Borealis Data", "symbol": "BRLS"}},
	})

	_, err := w.Execute(context.Background(), dc.View(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no financial data")
}

// TestValuationWorker verifies the LBO structure is derived from the
// statements and the higher-cash-conversion candidate is recommended.
func TestValuationWorker(t *testing.T) {
	gw, _ := newWorkerGateway(t, nil)
	w := NewValuationWorker(gw, testutil.NewMockLogger())
	dc := deal.NewDealContext()

	strongCash := healthyStatements("Acme Robotics") // FCF 120 on EBITDA 250
	weakCash := healthyStatements("Borealis Data")
	weakCash["cash_flow"] = map[string]any{"free_cash_flow": 20.0}
	commitArtifact(t, dc, deal.StageDataCollection, KindFinancialData, map[string]any{
		"financials": map[string]any{"ACME": strongCash, "BRLS": weakCash},
	})

	a, err := w.Execute(context.Background(), dc.View(), nil)
	require.NoError(t, err)

	assert.Equal(t, KindValuation, a.Kind)
	assert.Equal(t, "ACME", a.Payload["recommended_target"])

	models := typeutil.SafeMapStringAnyDefault(a.Payload["models"], nil)
	acme := typeutil.SafeMapStringAnyDefault(models["ACME"], nil)
	// EBITDA 250 at an 8.0x entry: EV 2000, debt 1400 at 0.7, equity 600.
	assert.InDelta(t, 2000.0, nestedFloat(acme, "purchase_price.enterprise_value"), 0.001)
	assert.InDelta(t, 1400.0, nestedFloat(acme, "purchase_price.debt"), 0.001)
	assert.InDelta(t, 600.0, nestedFloat(acme, "purchase_price.equity"), 0.001)
	assert.Greater(t, nestedFloat(acme, "returns.moic"), 1.0)
	projections := typeutil.SafeSliceDefault(acme["projections"], nil)
	assert.Len(t, projections, 5)

	brls := typeutil.SafeMapStringAnyDefault(models["BRLS"], nil)
	assert.Greater(t, nestedFloat(acme, "returns.moic"), nestedFloat(brls, "returns.moic"))
}

// TestValuationWorkerSkipsUnmodelable verifies candidates without positive
// EBITDA are skipped, and the stage fails when none can be modeled.
func TestValuationWorkerSkipsUnmodelable(t *testing.T) {
	gw, _ := newWorkerGateway(t, nil)
	w := NewValuationWorker(gw, testutil.NewMockLogger())
	dc := deal.NewDealContext()
	commitArtifact(t, dc, deal.StageDataCollection, KindFinancialData, map[string]any{
		"financials": map[string]any{
			"ZERO": map[string]any{"income_statement": map[string]any{"ebitda": 0.0}},
		},
	})

	_, err := w.Execute(context.Background(), dc.View(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidate")
}

// TestDueDiligenceWorkerClean verifies a healthy target passes the full
// checklist with no risk flags.
func TestDueDiligenceWorkerClean(t *testing.T) {
	gw, _ := newWorkerGateway(t, nil)
	w := NewDueDiligenceWorker(gw, testutil.NewMockLogger())
	dc := deal.NewDealContext()
	commitArtifact(t, dc, deal.StageDataCollection, KindFinancialData, map[string]any{
		"financials": map[string]any{"ACME": healthyStatements("Acme Robotics")},
	})
	commitArtifact(t, dc, deal.StageValuation, KindValuation, map[string]any{
		"recommended_target": "ACME",
		"models": map[string]any{
			"ACME": map[string]any{"returns": map[string]any{"moic": 4.1}},
		},
	})

	a, err := w.Execute(context.Background(), dc.View(), nil)
	require.NoError(t, err)

	assert.Equal(t, KindDiligence, a.Kind)
	assert.Equal(t, "ACME", a.Payload["target"])
	assert.Equal(t, 0, a.Payload["flag_count"])
	checklist := typeutil.SafeSliceDefault(a.Payload["checklist"], nil)
	assert.Len(t, checklist, 5)
}

// TestDueDiligenceWorkerFlagsRisk verifies a stressed target trips every
// checklist item.
func TestDueDiligenceWorkerFlagsRisk(t *testing.T) {
	gw, _ := newWorkerGateway(t, nil)
	w := NewDueDiligenceWorker(gw, testutil.NewMockLogger())
	dc := deal.NewDealContext()
	commitArtifact(t, dc, deal.StageDataCollection, KindFinancialData, map[string]any{
		"financials": map[string]any{"BRLS": stressedStatements("Borealis Data")},
	})
	commitArtifact(t, dc, deal.StageValuation, KindValuation, map[string]any{
		"recommended_target": "BRLS",
		"models":             map[string]any{},
	})

	a, err := w.Execute(context.Background(), dc.View(), nil)
	require.NoError(t, err)

	assert.Equal(t, 5, a.Payload["flag_count"])
	flags := typeutil.SafeSliceDefault(a.Payload["risk_flags"], nil)
	require.Len(t, flags, 5)
	first := typeutil.SafeMapStringAnyDefault(flags[0], nil)
	assert.Equal(t, "leverage", first["check"])
}

// TestNegotiationWorkerPremiumSteps verifies the control premium steps
// down with each revision and the earnout scales with diligence flags.
func TestNegotiationWorkerPremiumSteps(t *testing.T) {
	gw, _ := newWorkerGateway(t, nil)
	w := NewNegotiationWorker(gw, testutil.NewMockLogger())
	dc := deal.NewDealContext()
	commitArtifact(t, dc, deal.StageValuation, KindValuation, map[string]any{
		"recommended_target": "ACME",
		"models": map[string]any{
			"ACME": map[string]any{
				"purchase_price": map[string]any{"enterprise_value": 2000.0},
			},
		},
	})
	commitArtifact(t, dc, deal.StageDueDiligence, KindDiligence, map[string]any{
		"target": "ACME", "flag_count": 2,
	})

	first, err := w.Execute(context.Background(), dc.View(), nil)
	require.NoError(t, err)
	offer := typeutil.SafeMapStringAnyDefault(first.Payload["offer"], nil)
	assert.InDelta(t, 0.20, offer["premium"], 0.0001)
	assert.InDelta(t, 2400.0, offer["total"], 0.001)
	assert.InDelta(t, 0.20, offer["earnout_share"], 0.0001)
	assert.InDelta(t, 1920.0, offer["cash_at_close"], 0.001)

	revised, err := w.Execute(context.Background(), dc.View(), []string{"premium too rich"})
	require.NoError(t, err)
	offer = typeutil.SafeMapStringAnyDefault(revised.Payload["offer"], nil)
	assert.InDelta(t, 0.15, offer["premium"], 0.0001)
	assert.InDelta(t, 2300.0, offer["total"], 0.001)
	assert.Equal(t, 1, revised.Revision)
}

// TestLegalWorker verifies the closing package pulls from every upstream
// artifact and adds an indemnity workstream when diligence raised flags.
func TestLegalWorker(t *testing.T) {
	gw, render := newWorkerGateway(t, nil)
	w := NewLegalWorker(gw, testutil.NewMockLogger())
	dc := deal.NewDealContext()
	commitArtifact(t, dc, deal.StageStrategy, KindStrategy, map[string]any{
		"primary_goal": "market expansion", "buyer_type": "strategic",
	})
	commitArtifact(t, dc, deal.StageValuation, KindValuation, map[string]any{
		"recommended_target": "ACME",
		"models": map[string]any{
			"ACME": map[string]any{
				"purchase_price": map[string]any{"enterprise_value": 2000.0},
				"returns":        map[string]any{"moic": 4.1},
			},
		},
	})
	commitArtifact(t, dc, deal.StageDueDiligence, KindDiligence, map[string]any{
		"target": "ACME", "flag_count": 1,
	})
	commitArtifact(t, dc, deal.StageNegotiation, KindTermSheet, map[string]any{
		"target": "ACME",
		"offer":  map[string]any{"total": 2400.0, "cash_at_close": 2160.0, "earnout": 240.0},
	})

	a, err := w.Execute(context.Background(), dc.View(), nil)
	require.NoError(t, err)

	assert.Equal(t, KindClosing, a.Kind)
	workstreams := typeutil.SafeSliceDefault(a.Payload["workstreams"], nil)
	assert.Len(t, workstreams, 6)
	assert.Equal(t, "/deals/docs/summary.md", a.Payload["document_path"])
	assert.Equal(t, 1, render.calls)
}

// TestLegalWorkerRequiresUpstream verifies the dependency check when an
// upstream artifact is missing.
func TestLegalWorkerRequiresUpstream(t *testing.T) {
	gw, _ := newWorkerGateway(t, nil)
	w := NewLegalWorker(gw, testutil.NewMockLogger())

	_, err := w.Execute(context.Background(), deal.NewDealContext().View(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream")
}
