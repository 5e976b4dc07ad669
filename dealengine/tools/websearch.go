package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mna-automation/dealcore/dealengine/gateway"
	"github.com/mna-automation/dealcore/dealengine/typeutil"
)

// CompanyScreener screens an FMP-compatible stock screener for companies
// matching industry and geography criteria. It backs the web_search tool
// the sourcing stage uses to build its candidate list.
type CompanyScreener struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ScreenerOption configures a CompanyScreener.
type ScreenerOption func(*CompanyScreener)

// WithScreenerHTTPClient overrides the HTTP client, mainly for tests.
func WithScreenerHTTPClient(c *http.Client) ScreenerOption {
	return func(s *CompanyScreener) { s.httpClient = c }
}

// NewCompanyScreener creates a screener against an FMP-compatible base URL.
func NewCompanyScreener(baseURL, apiKey string, opts ...ScreenerOption) *CompanyScreener {
	s := &CompanyScreener{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: defaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Definition exposes the screener as the web_search tool.
func (s *CompanyScreener) Definition() *gateway.ToolDefinition {
	return &gateway.ToolDefinition{
		Name:        ToolWebSearch,
		Description: "Screens the market for companies matching target criteria",
		Category:    "search",
		Classify:    classifyHTTP,
		Handler:     s.handle,
	}
}

func (s *CompanyScreener) handle(ctx context.Context, params map[string]any) (map[string]any, error) {
	query := url.Values{}
	query.Set("apikey", s.apiKey)
	query.Set("isActivelyTrading", "true")
	if industry, ok := typeutil.SafeString(params["industry"]); ok && industry != "" {
		query.Set("industry", industry)
	}
	if sector, ok := typeutil.SafeString(params["sector"]); ok && sector != "" {
		query.Set("sector", sector)
	}
	if country, ok := typeutil.SafeString(params["country"]); ok && country != "" {
		query.Set("country", countryCode(country))
	}
	if marketCap, ok := typeutil.SafeFloat64(params["market_cap"]); ok && marketCap > 0 {
		query.Set("marketCapLowerThan", strconv.FormatFloat(marketCap, 'f', 0, 64))
	}
	limit := int(typeutil.SafeFloat64Default(params["limit"], 10))
	query.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/stock-screener?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{Status: resp.StatusCode, Body: string(body)}
	}

	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decoding screener response: %w", err)
	}

	keywords, _ := typeutil.SafeStringSlice(params["summary_keywords"])
	companies := make([]any, 0, len(rows))
	for _, row := range rows {
		name := typeutil.SafeStringDefault(row["companyName"], "")
		symbol := typeutil.SafeStringDefault(row["symbol"], "")
		if name == "" || symbol == "" {
			continue
		}
		description := fmt.Sprintf("%s (%s, %s)",
			typeutil.SafeStringDefault(row["industry"], "unknown industry"),
			typeutil.SafeStringDefault(row["exchangeShortName"], "unlisted"),
			typeutil.SafeStringDefault(row["country"], "unknown country"))
		if !matchesKeywords(name+" "+description, keywords) {
			continue
		}
		companies = append(companies, map[string]any{
			"name":        name,
			"symbol":      symbol,
			"description": description,
		})
	}

	return map[string]any{"companies": companies}, nil
}

// matchesKeywords reports whether the text contains any of the keywords.
// An empty keyword list matches everything.
func matchesKeywords(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// countryCode maps the common country names the strategy stage emits onto
// the ISO codes the screener expects. Unrecognized names pass through.
func countryCode(country string) string {
	switch strings.ToLower(strings.TrimSpace(country)) {
	case "united states", "usa", "us":
		return "US"
	case "united kingdom", "uk":
		return "GB"
	case "canada":
		return "CA"
	case "germany":
		return "DE"
	case "france":
		return "FR"
	case "japan":
		return "JP"
	default:
		return country
	}
}
