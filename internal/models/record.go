package models

import (
	"time"
)

// NormalizedRecord is the uniform per-position record produced each cycle.
// Change and ChangePct are always derived from CurrentPrice and PrevClose.
type NormalizedRecord struct {
	Symbol         string    `json:"symbol"`
	Name           string    `json:"name"`
	ResolvedSymbol string    `json:"resolvedSymbol"`
	CurrentPrice   float64   `json:"currentPrice"`
	PrevClose      float64   `json:"prevClose"`
	Change         float64   `json:"change"`
	ChangePct      float64   `json:"changePct"`
	Quantity       int       `json:"quantity"`
	Value          float64   `json:"value"`
	Volume         int64     `json:"volume"`
	DayHigh        float64   `json:"dayHigh"`
	DayLow         float64   `json:"dayLow"`
	MarketCap      float64   `json:"marketCap,omitempty"`
	History        []float64 `json:"history,omitempty"`
	IsStale        bool      `json:"isStale"`
	IsSynthetic    bool      `json:"isSynthetic"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ChangeFor returns change and change percent for a price pair
func ChangeFor(current, prev float64) (float64, float64) {
	change := current - prev
	if prev <= 0 {
		return change, 0
	}
	return change, change / prev * 100
}

// Invested is what the position was worth at the previous close
func (r NormalizedRecord) Invested() float64 {
	return r.PrevClose * float64(r.Quantity)
}

// AsStale returns a copy of the record flagged stale, with its own history slice
func (r NormalizedRecord) AsStale() NormalizedRecord {
	out := r
	out.IsStale = true
	if r.History != nil {
		out.History = append([]float64(nil), r.History...)
	}
	return out
}
