// Package catalog fetches the settlement currencies a payer may choose from
// and filters them against the widget's configured allow-list.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/requestnet/payflow/logger"
	"github.com/requestnet/payflow/metrics"
	"github.com/requestnet/payflow/types"
)

// referenceFiat is the fixed invoice currency every conversion route is
// quoted against.
const referenceFiat = "USD"

// Client issues read requests to the conversion-routes discovery endpoint.
// It never retries internally; the flow exposes a manual retry action.
type Client struct {
	baseURL  string
	clientID string
	http     *http.Client
	log      logger.Logger
	metrics  metrics.Recorder
}

func NewClient(baseURL, clientID string, httpClient *http.Client, log logger.Logger, rec metrics.Recorder) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: clientID,
		http:     httpClient,
		log:      log,
		metrics:  rec,
	}
}

type conversionRoutesResponse struct {
	CurrencyID       string                     `json:"currencyId"`
	Network          string                     `json:"network"`
	ConversionRoutes []types.ConversionCurrency `json:"conversionRoutes"`
}

// ListCurrencies fetches the conversion routes from USD for the given
// network. Any transport failure, non-success status or malformed body is
// reported as catalog_unavailable.
func (c *Client) ListCurrencies(ctx context.Context, network string) ([]types.ConversionCurrency, error) {
	endpoint := fmt.Sprintf("%s/v2/currencies/%s/conversion-routes?network=%s",
		c.baseURL, referenceFiat, url.QueryEscape(network))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.WrapError(types.ErrCatalogUnavailable, "failed to build catalog request", err)
	}
	req.Header.Set("x-client-id", c.clientID)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.ObserveLatency("catalog_fetch", time.Since(start), map[string]string{"network": network})
	if err != nil {
		c.metrics.IncCounter("catalog_error", map[string]string{"network": network})
		return nil, types.WrapError(types.ErrCatalogUnavailable, "conversion routes request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.IncCounter("catalog_error", map[string]string{"network": network})
		c.log.Warn("conversion routes request returned non-success status", map[string]any{
			"status":  resp.StatusCode,
			"network": network,
		})
		return nil, types.NewFlowError(types.ErrCatalogUnavailable,
			fmt.Sprintf("conversion routes request returned HTTP %d", resp.StatusCode))
	}

	var body conversionRoutesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.metrics.IncCounter("catalog_error", map[string]string{"network": network})
		return nil, types.WrapError(types.ErrCatalogUnavailable, "malformed conversion routes response", err)
	}

	c.log.Debug("fetched conversion routes", map[string]any{
		"network": network,
		"count":   len(body.ConversionRoutes),
	})
	return body.ConversionRoutes, nil
}

// Eligible intersects the catalog entries with an allow-list of ticker
// symbols, case-insensitively. An empty allow-list means every catalog
// entry is eligible.
func Eligible(routes []types.ConversionCurrency, allowList []string) []types.ConversionCurrency {
	if len(allowList) == 0 {
		return routes
	}

	allowed := make(map[string]struct{}, len(allowList))
	for _, symbol := range allowList {
		allowed[strings.ToLower(symbol)] = struct{}{}
	}

	eligible := make([]types.ConversionCurrency, 0, len(routes))
	for _, route := range routes {
		if _, ok := allowed[strings.ToLower(route.Symbol)]; ok {
			eligible = append(eligible, route)
		}
	}
	return eligible
}

// DisplaySymbol maps API ticker symbols to their display form.
func DisplaySymbol(symbol string) string {
	switch strings.ToLower(symbol) {
	case "eth-sepolia":
		return "ETH"
	default:
		return symbol
	}
}
