// Package tools provides the concrete tool adapters the built-in workers
// call through the gateway: a financial data client, a company screener,
// and a markdown document renderer. Each adapter exposes a
// gateway.ToolDefinition carrying its handler and error classifier.
package tools

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mna-automation/dealcore/dealengine/gateway"
)

const (
	// ToolWebSearch screens the market for companies matching criteria.
	ToolWebSearch = "web_search"
	// ToolMarketData fetches financial statements for a symbol.
	ToolMarketData = "market_data"
	// ToolDocumentRender writes a markdown document to the deal folder.
	ToolDocumentRender = "document_render"
)

// HTTPStatusError is returned by the HTTP-backed adapters when the upstream
// API answers with a non-2xx status.
type HTTPStatusError struct {
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Body)
}

// classifyHTTP treats rate limits, server errors, and transport failures as
// transient; every other HTTP status (bad symbol, auth failure) is
// permanent and must not be retried.
func classifyHTTP(err error) gateway.ErrorClass {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if statusErr.Status == http.StatusTooManyRequests || statusErr.Status >= 500 {
			return gateway.ErrorClassTransient
		}
		return gateway.ErrorClassPermanent
	}
	return gateway.ErrorClassTransient
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

// RegisterAll registers the three standard adapters on a tool registry.
func RegisterAll(registry *gateway.Registry, market *MarketDataClient, screener *CompanyScreener, renderer *DocumentRenderer) error {
	for _, def := range []*gateway.ToolDefinition{
		market.Definition(),
		screener.Definition(),
		renderer.Definition(),
	} {
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}
