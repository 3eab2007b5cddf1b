// Package adapter provides market-data provider adapters for the tracker.
package adapter

import (
	"context"
	"fmt"

	"github.com/portfolio-tracker/internal/types"
)

// QuoteFetcher retrieves price history and metadata for one symbol.
//
// Errors must be classifiable by errors.ClassifyFetch: rate limiting wraps
// errors.ErrRateLimited, an empty answer wraps errors.ErrNoData, and
// anything else is treated as an invalid response.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, symbol string, granularity types.Granularity) (*types.RawQuote, error)
}

// FetcherFunc adapts a function to QuoteFetcher
type FetcherFunc func(ctx context.Context, symbol string, granularity types.Granularity) (*types.RawQuote, error)

// FetchQuote calls f
func (f FetcherFunc) FetchQuote(ctx context.Context, symbol string, granularity types.Granularity) (*types.RawQuote, error) {
	return f(ctx, symbol, granularity)
}

var (
	// ErrProviderUnavailable indicates no provider endpoint could be reached
	ErrProviderUnavailable = fmt.Errorf("data provider unavailable")

	// ErrMalformedResponse indicates the provider body could not be parsed
	ErrMalformedResponse = fmt.Errorf("malformed provider response")
)

// AdapterError wraps errors with additional context
type AdapterError struct {
	Provider string
	Op       string // Operation that failed (e.g., "FetchQuote")
	Symbol   string
	Err      error
	Details  map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("provider error [%s:%s %s]: %v (details: %+v)", e.Provider, e.Op, e.Symbol, e.Err, e.Details)
	}
	return fmt.Sprintf("provider error [%s:%s %s]: %v", e.Provider, e.Op, e.Symbol, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(provider, op, symbol string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Provider: provider,
		Op:       op,
		Symbol:   symbol,
		Err:      err,
		Details:  details,
	}
}
