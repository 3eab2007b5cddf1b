// Package types provides common type definitions for the portfolio tracker.
package types

import "time"

// Granularity selects the bar size requested from the market-data provider
type Granularity string

const (
	// GranularityIntraday requests 5-minute bars for the current session
	GranularityIntraday Granularity = "intraday"
	// GranularityDaily requests daily bars over the last few sessions
	GranularityDaily Granularity = "daily"
)

// Range returns the provider's range selector for this granularity
func (g Granularity) Range() string {
	if g == GranularityDaily {
		return "5d"
	}
	return "1d"
}

// Interval returns the provider's interval selector for this granularity
func (g Granularity) Interval() string {
	if g == GranularityDaily {
		return "1d"
	}
	return "5m"
}

// CycleStatus summarizes how a refresh cycle went
type CycleStatus string

const (
	// CycleStatusOK means every configured position was refreshed from live data
	CycleStatusOK CycleStatus = "ok"
	// CycleStatusPartial means some records are stale, synthetic, or missing
	CycleStatusPartial CycleStatus = "partial"
	// CycleStatusFailed means the cycle produced no usable records at all
	CycleStatusFailed CycleStatus = "failed"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// PricePoint is one OHLCV bar from the provider
type PricePoint struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open,omitempty"`
	High   float64   `json:"high,omitempty"`
	Low    float64   `json:"low,omitempty"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume,omitempty"`
}

// QuoteMeta is the provider's metadata summary. Zero means absent.
type QuoteMeta struct {
	RegularMarketPrice float64 `json:"regularMarketPrice,omitempty"`
	CurrentPrice       float64 `json:"currentPrice,omitempty"`
	PreviousClose      float64 `json:"previousClose,omitempty"`
	DayHigh            float64 `json:"dayHigh,omitempty"`
	DayLow             float64 `json:"dayLow,omitempty"`
	Volume             int64   `json:"volume,omitempty"`
	MarketCap          float64 `json:"marketCap,omitempty"`
	Currency           string  `json:"currency,omitempty"`
}

// LivePrice returns the regular market price, else the current price, else 0
func (m QuoteMeta) LivePrice() float64 {
	if m.RegularMarketPrice > 0 {
		return m.RegularMarketPrice
	}
	if m.CurrentPrice > 0 {
		return m.CurrentPrice
	}
	return 0
}

// RawQuote is the provider response for one symbol attempt
type RawQuote struct {
	Symbol      string       `json:"symbol"`
	Granularity Granularity  `json:"granularity"`
	History     []PricePoint `json:"history"`
	Meta        QuoteMeta    `json:"meta"`
}

// LastClose returns the most recent positive close in the history, or 0
func (q *RawQuote) LastClose() float64 {
	if q == nil {
		return 0
	}
	for i := len(q.History) - 1; i >= 0; i-- {
		if q.History[i].Close > 0 {
			return q.History[i].Close
		}
	}
	return 0
}

// Closes returns the positive close prices in chronological order
func (q *RawQuote) Closes() []float64 {
	if q == nil {
		return nil
	}
	closes := make([]float64, 0, len(q.History))
	for _, p := range q.History {
		if p.Close > 0 {
			closes = append(closes, p.Close)
		}
	}
	return closes
}

// Resolution is what the resolver produced for one configured position
type Resolution struct {
	Symbol         string    `json:"symbol"`
	ResolvedSymbol string    `json:"resolvedSymbol"`
	Quote          *RawQuote `json:"quote,omitempty"`
	Synthetic      bool      `json:"synthetic"`
	Exhausted      bool      `json:"exhausted"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"lastError,omitempty"`
	ResolvedAt     time.Time `json:"resolvedAt"`
}

// HasData reports whether the resolution carries a usable quote
func (r *Resolution) HasData() bool {
	return r != nil && r.Quote != nil
}
