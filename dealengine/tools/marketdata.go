package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/mna-automation/dealcore/dealengine/gateway"
	"github.com/mna-automation/dealcore/dealengine/typeutil"
)

// MarketDataClient fetches financial statements from an FMP-compatible
// API and normalizes them into the statement shape the workers consume.
type MarketDataClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// MarketDataOption configures a MarketDataClient.
type MarketDataOption func(*MarketDataClient)

// WithMarketDataHTTPClient overrides the HTTP client, mainly for tests.
func WithMarketDataHTTPClient(c *http.Client) MarketDataOption {
	return func(m *MarketDataClient) { m.httpClient = c }
}

// NewMarketDataClient creates a client against an FMP-compatible base URL,
// e.g. "https://financialmodelingprep.com/api/v3".
func NewMarketDataClient(baseURL, apiKey string, opts ...MarketDataOption) *MarketDataClient {
	m := &MarketDataClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: defaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Definition exposes the client as the market_data tool.
func (m *MarketDataClient) Definition() *gateway.ToolDefinition {
	return &gateway.ToolDefinition{
		Name:        ToolMarketData,
		Description: "Fetches income statement, balance sheet, and cash flow for a symbol",
		Category:    "market_data",
		Classify:    classifyHTTP,
		Handler:     m.handle,
	}
}

func (m *MarketDataClient) handle(ctx context.Context, params map[string]any) (map[string]any, error) {
	symbol, ok := typeutil.SafeString(params["symbol"])
	if !ok || symbol == "" {
		return nil, fmt.Errorf("market_data requires a 'symbol' parameter")
	}

	income, err := m.fetchStatement(ctx, "income-statement", symbol)
	if err != nil {
		return nil, err
	}
	balance, err := m.fetchStatement(ctx, "balance-sheet-statement", symbol)
	if err != nil {
		return nil, err
	}
	cashFlow, err := m.fetchStatement(ctx, "cash-flow-statement", symbol)
	if err != nil {
		return nil, err
	}

	capex := pick(cashFlow, "capitalExpenditure")
	return map[string]any{
		"symbol": symbol,
		"income_statement": map[string]any{
			"revenue":          pick(income, "revenue"),
			"ebitda":           pick(income, "ebitda"),
			"operating_income": pick(income, "operatingIncome"),
			"net_income":       pick(income, "netIncome"),
		},
		"balance_sheet": map[string]any{
			"total_debt":          pick(balance, "totalDebt"),
			"cash":                pick(balance, "cashAndCashEquivalents"),
			"current_assets":      pick(balance, "totalCurrentAssets"),
			"current_liabilities": pick(balance, "totalCurrentLiabilities"),
			"working_capital":     pick(balance, "totalCurrentAssets") - pick(balance, "totalCurrentLiabilities"),
		},
		"cash_flow": map[string]any{
			"operating_cash_flow": pick(cashFlow, "operatingCashFlow"),
			"capex":               capex,
			"free_cash_flow":      pick(cashFlow, "freeCashFlow"),
		},
	}, nil
}

// fetchStatement pulls the most recent annual statement for a symbol.
func (m *MarketDataClient) fetchStatement(ctx context.Context, endpoint, symbol string) (map[string]any, error) {
	u := fmt.Sprintf("%s/%s/%s?limit=1&apikey=%s", m.baseURL, endpoint, url.PathEscape(symbol), url.QueryEscape(m.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{Status: resp.StatusCode, Body: string(body)}
	}

	var statements []map[string]any
	if err := json.Unmarshal(body, &statements); err != nil {
		return nil, fmt.Errorf("decoding %s response for %s: %w", endpoint, symbol, err)
	}
	if len(statements) == 0 {
		return nil, &HTTPStatusError{Status: http.StatusNotFound, Body: fmt.Sprintf("no %s data for %s", endpoint, symbol)}
	}
	return statements[0], nil
}

func pick(statement map[string]any, field string) float64 {
	return typeutil.SafeFloat64Default(statement[field], 0)
}
