package service

import (
	"fmt"
	"time"

	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/storage"
	"github.com/portfolio-tracker/internal/types"
)

// Normalize turns this cycle's resolutions into one record per configured
// position, in configuration order. Positions without data reuse the record
// from previous flagged stale, or are left out with a warning when there is
// none. The returned store holds previous overwritten by this cycle's fresh
// records; previous itself is not modified.
func Normalize(
	positions []models.PositionConfig,
	resolutions map[string]*types.Resolution,
	previous storage.RecordStore,
	now time.Time,
) ([]models.NormalizedRecord, storage.RecordStore, []string) {
	records := make([]models.NormalizedRecord, 0, len(positions))
	fresh := make([]models.NormalizedRecord, 0, len(positions))
	var warnings []string

	for _, position := range positions {
		res := resolutions[position.Symbol]
		if record, ok := normalizeOne(position, res, now); ok {
			records = append(records, record)
			if record.IsSynthetic {
				warnings = append(warnings, fmt.Sprintf("%s: live data unavailable, showing synthetic prices", position.Symbol))
			}
			// synthetic prices never replace a real last known record
			if prev, ok := previous.Get(position.Symbol); !record.IsSynthetic || !ok || prev.IsSynthetic {
				fresh = append(fresh, record)
			}
			continue
		}

		if prev, ok := previous.Get(position.Symbol); ok {
			records = append(records, prev.AsStale())
			warnings = append(warnings, fmt.Sprintf("%s: no data received, showing last known values", position.Symbol))
			continue
		}
		warnings = append(warnings, fmt.Sprintf("%s: no data received", position.Symbol))
	}

	return records, previous.With(fresh...), warnings
}

// normalizeOne builds the record for a position, or reports false when the
// resolution carries nothing priceable
func normalizeOne(position models.PositionConfig, res *types.Resolution, now time.Time) (models.NormalizedRecord, bool) {
	if !res.HasData() {
		return models.NormalizedRecord{}, false
	}
	quote := res.Quote
	meta := quote.Meta

	current := meta.LivePrice()
	if current <= 0 {
		current = quote.LastClose()
	}
	if current <= 0 {
		return models.NormalizedRecord{}, false
	}

	// a missing previous close deliberately yields zero change
	prev := meta.PreviousClose
	if prev <= 0 {
		prev = current
	}
	change, changePct := models.ChangeFor(current, prev)

	high, low := dayRange(quote)
	resolved := res.ResolvedSymbol
	if resolved == "" {
		resolved = position.Symbol
	}

	return models.NormalizedRecord{
		Symbol:         position.Symbol,
		Name:           position.Name,
		ResolvedSymbol: resolved,
		CurrentPrice:   current,
		PrevClose:      prev,
		Change:         change,
		ChangePct:      changePct,
		Quantity:       position.Quantity,
		Value:          current * float64(position.Quantity),
		Volume:         volume(quote),
		DayHigh:        high,
		DayLow:         low,
		MarketCap:      meta.MarketCap,
		History:        quote.Closes(),
		IsSynthetic:    res.Synthetic,
		UpdatedAt:      now,
	}, true
}

// dayRange prefers the provider's day high/low and otherwise scans the bars
func dayRange(quote *types.RawQuote) (float64, float64) {
	if quote.Meta.DayHigh > 0 && quote.Meta.DayLow > 0 {
		return quote.Meta.DayHigh, quote.Meta.DayLow
	}
	var high, low float64
	for _, p := range quote.History {
		h, l := p.High, p.Low
		if h <= 0 {
			h = p.Close
		}
		if l <= 0 {
			l = p.Close
		}
		if h > 0 && h > high {
			high = h
		}
		if l > 0 && (low == 0 || l < low) {
			low = l
		}
	}
	return high, low
}

func volume(quote *types.RawQuote) int64 {
	if quote.Meta.Volume > 0 {
		return quote.Meta.Volume
	}
	for i := len(quote.History) - 1; i >= 0; i-- {
		if quote.History[i].Volume > 0 {
			return quote.History[i].Volume
		}
	}
	return 0
}
