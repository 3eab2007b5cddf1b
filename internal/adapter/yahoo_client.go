package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"golang.org/x/time/rate"

	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/types"
)

const providerName = "yahoo"

// maxBodyBytes bounds how much of a chart response is read
const maxBodyBytes = 4 << 20

// rateLimitMarkers are body fragments the provider uses instead of a 429
var rateLimitMarkers = []string{"too many requests", "rate limit", "rate limited"}

// Meta paths inside a chart response
const (
	pathResult       = "$.chart.result[0]"
	pathErrorDesc    = "$.chart.error.description"
	pathTimestamps   = "$.chart.result[0].timestamp"
	pathQuote        = "$.chart.result[0].indicators.quote[0]"
	pathMarketPrice  = "$.chart.result[0].meta.regularMarketPrice"
	pathCurrentPrice = "$.chart.result[0].meta.currentPrice"
	pathPrevClose    = "$.chart.result[0].meta.previousClose"
	pathChartPrev    = "$.chart.result[0].meta.chartPreviousClose"
	pathDayHigh      = "$.chart.result[0].meta.regularMarketDayHigh"
	pathDayLow       = "$.chart.result[0].meta.regularMarketDayLow"
	pathMarketVolume = "$.chart.result[0].meta.regularMarketVolume"
	pathMarketCap    = "$.chart.result[0].meta.marketCap"
	pathCurrency     = "$.chart.result[0].meta.currency"
)

// YahooClient fetches chart data from the Yahoo Finance v8 chart API
type YahooClient struct {
	pool      *EndpointPool
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// YahooConfig configures a YahooClient
type YahooConfig struct {
	Pool              *EndpointPool
	Timeout           time.Duration
	RequestsPerSecond float64 // zero or negative disables pacing
	UserAgent         string
	HTTPClient        *http.Client
}

// NewYahooClient creates a chart API client over the given endpoint pool
func NewYahooClient(cfg YahooConfig) (*YahooClient, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("endpoint pool is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &YahooClient{
		pool:      cfg.Pool,
		client:    client,
		limiter:   limiter,
		userAgent: cfg.UserAgent,
	}, nil
}

// Pool returns the endpoint pool, for health reporting
func (c *YahooClient) Pool() *EndpointPool {
	return c.pool
}

// FetchQuote fetches price history and metadata for one symbol
func (c *YahooClient) FetchQuote(ctx context.Context, symbol string, granularity types.Granularity) (*types.RawQuote, error) {
	var quote *types.RawQuote
	err := c.pool.Do(ctx, func(ctx context.Context, baseURL string) error {
		q, err := c.fetchFrom(ctx, baseURL, symbol, granularity)
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	if err != nil {
		if apperrors.ClassifyFetch(err) == apperrors.OutcomeInvalid && !isCategorized(err) {
			err = apperrors.NewInvalidResponseError(symbol, err)
		}
		return nil, NewAdapterError(providerName, "FetchQuote", symbol, err, map[string]interface{}{
			"granularity": granularity,
		})
	}
	return quote, nil
}

func (c *YahooClient) fetchFrom(ctx context.Context, baseURL, symbol string, granularity types.Granularity) (*types.RawQuote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewInvalidResponseError(symbol, err)
	}

	body, status, err := c.doRequest(ctx, chartURL(baseURL, symbol, granularity))
	if err != nil {
		return nil, apperrors.NewInvalidResponseError(symbol, err)
	}

	if status == http.StatusTooManyRequests || isRateLimitBody(body) {
		return nil, apperrors.NewRateLimitedError(symbol, fmt.Errorf("HTTP %d", status))
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		if status != http.StatusOK {
			return nil, apperrors.NewInvalidResponseError(symbol, fmt.Errorf("HTTP error: %d", status))
		}
		return nil, apperrors.NewInvalidResponseError(symbol, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}

	if desc, ok := stringAt(doc, pathErrorDesc); ok {
		// Unknown and delisted symbols come back as a chart error, usually with a 404
		return nil, apperrors.NewNoDataError(symbol, desc)
	}
	if status == http.StatusNotFound {
		return nil, apperrors.NewNoDataError(symbol, "symbol not found")
	}
	if status != http.StatusOK {
		return nil, apperrors.NewInvalidResponseError(symbol, fmt.Errorf("HTTP error: %d", status))
	}
	if _, err := jsonpath.Get(pathResult, doc); err != nil {
		return nil, apperrors.NewNoDataError(symbol, "empty chart result")
	}

	history := parseHistory(doc)
	quote := &types.RawQuote{
		Symbol:      symbol,
		Granularity: granularity,
		Meta:        parseMeta(doc, granularity, history),
		History:     history,
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"symbol":      symbol,
		"granularity": granularity,
		"points":      len(quote.History),
		"livePrice":   quote.Meta.LivePrice(),
	}).Debug("Fetched chart")

	return quote, nil
}

func (c *YahooClient) doRequest(ctx context.Context, target string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func chartURL(baseURL, symbol string, granularity types.Granularity) string {
	q := url.Values{}
	q.Set("range", granularity.Range())
	q.Set("interval", granularity.Interval())
	return fmt.Sprintf("%s/v8/finance/chart/%s?%s", baseURL, url.PathEscape(symbol), q.Encode())
}

func isRateLimitBody(body []byte) bool {
	// Only short plain-text bodies; a JSON chart may legitimately contain anything
	if len(body) == 0 || len(body) > 512 {
		return false
	}
	text := strings.ToLower(string(body))
	for _, marker := range rateLimitMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func isCategorized(err error) bool {
	var catErr *apperrors.CategorizedError
	return errors.As(err, &catErr)
}

// parseMeta reads the quote metadata. chartPreviousClose is the close before
// the chart range, so it stands in for a missing previousClose only on the
// one-day range; daily bars use the session before the last one.
func parseMeta(doc interface{}, granularity types.Granularity, history []types.PricePoint) types.QuoteMeta {
	meta := types.QuoteMeta{}
	meta.RegularMarketPrice, _ = floatAt(doc, pathMarketPrice)
	meta.CurrentPrice, _ = floatAt(doc, pathCurrentPrice)
	if prev, ok := floatAt(doc, pathPrevClose); ok && prev > 0 {
		meta.PreviousClose = prev
	} else if granularity == types.GranularityIntraday {
		meta.PreviousClose, _ = floatAt(doc, pathChartPrev)
	} else {
		meta.PreviousClose = priorSessionClose(history)
	}
	meta.DayHigh, _ = floatAt(doc, pathDayHigh)
	meta.DayLow, _ = floatAt(doc, pathDayLow)
	if v, ok := floatAt(doc, pathMarketVolume); ok {
		meta.Volume = int64(v)
	}
	meta.MarketCap, _ = floatAt(doc, pathMarketCap)
	meta.Currency, _ = stringAt(doc, pathCurrency)
	return meta
}

// priorSessionClose is the close of the second to last bar, or 0 when the
// history holds fewer than two bars
func priorSessionClose(history []types.PricePoint) float64 {
	if len(history) < 2 {
		return 0
	}
	return history[len(history)-2].Close
}

// parseHistory zips timestamps with the quote indicator arrays. Bars with a
// null close are dropped.
func parseHistory(doc interface{}) []types.PricePoint {
	stamps, ok := listAt(doc, pathTimestamps)
	if !ok {
		return nil
	}
	closes, _ := listAt(doc, pathQuote+".close")
	opens, _ := listAt(doc, pathQuote+".open")
	highs, _ := listAt(doc, pathQuote+".high")
	lows, _ := listAt(doc, pathQuote+".low")
	volumes, _ := listAt(doc, pathQuote+".volume")

	points := make([]types.PricePoint, 0, len(stamps))
	for i, ts := range stamps {
		sec, ok := ts.(float64)
		if !ok {
			continue
		}
		closeVal, ok := floatIndex(closes, i)
		if !ok || closeVal <= 0 {
			continue
		}
		p := types.PricePoint{
			Time:  time.Unix(int64(sec), 0).UTC(),
			Close: closeVal,
		}
		p.Open, _ = floatIndex(opens, i)
		p.High, _ = floatIndex(highs, i)
		p.Low, _ = floatIndex(lows, i)
		if v, ok := floatIndex(volumes, i); ok {
			p.Volume = int64(v)
		}
		points = append(points, p)
	}
	return points
}

// first keeps the single answer when jsonpath wraps it in a list
func first(v interface{}) interface{} {
	if list, ok := v.([]interface{}); ok && len(list) == 1 {
		if _, nested := list[0].([]interface{}); nested {
			return list[0]
		}
	}
	return v
}

func floatAt(doc interface{}, path string) (float64, bool) {
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return 0, false
	}
	if list, ok := v.([]interface{}); ok && len(list) > 0 {
		v = list[0]
	}
	f, ok := v.(float64)
	return f, ok
}

func stringAt(doc interface{}, path string) (string, bool) {
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return "", false
	}
	if list, ok := v.([]interface{}); ok && len(list) > 0 {
		v = list[0]
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func listAt(doc interface{}, path string) ([]interface{}, bool) {
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil, false
	}
	list, ok := first(v).([]interface{})
	return list, ok
}

func floatIndex(list []interface{}, i int) (float64, bool) {
	if i >= len(list) {
		return 0, false
	}
	f, ok := list[i].(float64)
	return f, ok
}
