package service

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/storage"
	"github.com/portfolio-tracker/internal/types"
)

func TestAggregate_ThreeOfFour(t *testing.T) {
	positions := []models.PositionConfig{
		position("A.NS", 1), position("B.NS", 1), position("C.NS", 1), position("D.NS", 1),
	}
	resolutions := map[string]*types.Resolution{
		"A.NS": resolved("A.NS", liveQuote("A.NS", 100, 90)),
		"B.NS": resolved("B.NS", liveQuote("B.NS", 200, 190)),
		"C.NS": resolved("C.NS", liveQuote("C.NS", 300, 290)),
		"D.NS": {Symbol: "D.NS", ResolvedSymbol: "D.NS", Exhausted: true},
	}

	records, _, warnings := Normalize(positions, resolutions, storage.NewRecordStore(), testNow)
	snap := Aggregate(records, len(positions))

	assert.Len(t, warnings, 1)
	assert.Equal(t, 3, snap.FetchSuccess)
	assert.Equal(t, 4, snap.FetchTotal)
	assert.Equal(t, 600.0, snap.TotalValue)
	assert.Equal(t, 570.0, snap.TotalInvested)
	assert.Equal(t, 30.0, snap.TotalChange)
	assert.InDelta(t, 5.26, snap.TotalChangePct, 0.01)
	assert.Equal(t, 3, snap.Gainers)
	assert.Equal(t, 0, snap.Losers)
	assert.Equal(t, types.CycleStatusPartial, StatusFor(snap))
}

func TestAggregate_Empty(t *testing.T) {
	snap := Aggregate(nil, 4)

	assert.Zero(t, snap.TotalValue)
	assert.Zero(t, snap.TotalChangePct)
	assert.Zero(t, snap.AvgChangePct)
	assert.Equal(t, types.CycleStatusFailed, StatusFor(snap))
}

func TestAggregate_CountsByKind(t *testing.T) {
	records := []models.NormalizedRecord{
		{Symbol: "A", CurrentPrice: 110, PrevClose: 100, Change: 10, ChangePct: 10, Quantity: 1, Value: 110},
		{Symbol: "B", CurrentPrice: 90, PrevClose: 100, Change: -10, ChangePct: -10, Quantity: 1, Value: 90, IsStale: true},
		{Symbol: "C", CurrentPrice: 100, PrevClose: 100, Quantity: 2, Value: 200, IsSynthetic: true},
	}

	snap := Aggregate(records, 3)

	assert.Equal(t, 1, snap.Gainers)
	assert.Equal(t, 1, snap.Losers)
	assert.Equal(t, 1, snap.Unchanged)
	assert.Equal(t, 1, snap.FetchSuccess)
	assert.Equal(t, 1, snap.StaleCount)
	assert.Equal(t, 1, snap.SyntheticCount)
	assert.Equal(t, 0.0, snap.AvgChangePct)
	assert.Equal(t, 400.0, snap.TotalInvested)
	assert.Equal(t, types.CycleStatusPartial, StatusFor(snap))
}

func TestSummarize(t *testing.T) {
	healthy := &models.CycleResult{Snapshot: models.PortfolioSnapshot{
		RecordCount: 3, FetchSuccess: 3, FetchTotal: 3, TotalValue: 600, TotalInvested: 570, TotalChange: 30, TotalChangePct: 5.263,
	}}
	Summarize(healthy)
	assert.Equal(t, types.CycleStatusOK, healthy.Status)
	assert.Equal(t, "3 of 3 positions refreshed; value ₹600.00 (+₹30.00, +5.26%)", healthy.Summary)
	assert.Empty(t, healthy.Guidance)

	failed := &models.CycleResult{Snapshot: models.PortfolioSnapshot{FetchTotal: 4}}
	Summarize(failed)
	assert.Equal(t, types.CycleStatusFailed, failed.Status)
	assert.Contains(t, failed.Summary, "any of 4 positions")
	require.Len(t, failed.Guidance, 3)
}

func TestAggregate_Totals_Property(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("totals are exact sums", prop.ForAll(
		func(prices []float64) bool {
			records := make([]models.NormalizedRecord, 0, len(prices))
			for i, p := range prices {
				prev := p * 0.97
				change, pct := models.ChangeFor(p, prev)
				qty := i%5 + 1
				records = append(records, models.NormalizedRecord{
					CurrentPrice: p, PrevClose: prev, Change: change, ChangePct: pct,
					Quantity: qty, Value: p * float64(qty),
				})
			}

			snap := Aggregate(records, len(records))

			var sum float64
			for _, r := range records {
				sum += r.Value
			}
			return snap.TotalValue == sum &&
				snap.TotalChange == snap.TotalValue-snap.TotalInvested &&
				snap.Gainers+snap.Losers+snap.Unchanged == len(records)
		},
		gen.SliceOf(gen.Float64Range(0.01, 10000)),
	))

	properties.TestingRun(t)
}
