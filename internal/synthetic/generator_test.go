package synthetic

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedRand returns the same draws every time, for edge-of-range checks
type fixedRand struct {
	f float64
	n int64
}

func (r fixedRand) Float64() float64     { return r.f }
func (r fixedRand) Int64N(n int64) int64 { return min(r.n, n-1) }

func within(value, base, bound float64) bool {
	const eps = 1e-9
	return value >= base*(1-bound)-eps && value <= base*(1+bound)+eps
}

func TestGenerator_BasePrice(t *testing.T) {
	g := NewSeeded(1, map[string]float64{"CDSL.NS": 1500, "BAD.NS": -3}, 0)

	assert.Equal(t, 1500.0, g.BasePrice("CDSL.NS"))
	assert.Equal(t, DefaultBase, g.BasePrice("UNLISTED.NS"))
	assert.Equal(t, DefaultBase, g.BasePrice("BAD.NS"), "non-positive table entries are ignored")

	g = NewSeeded(1, nil, 250)
	assert.Equal(t, 250.0, g.BasePrice("UNLISTED.NS"))
}

func TestGenerator_Generate_Shape(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 17, 30, 0, time.UTC)
	g := NewSeeded(42, map[string]float64{"CDSL.NS": 1500}, 0)

	q := g.Generate("CDSL.NS", now)
	require.Len(t, q.History, DefaultPoints)
	assert.Equal(t, "CDSL.NS", q.Symbol)
	assert.Equal(t, "INR", q.Meta.Currency)

	last := q.History[len(q.History)-1]
	assert.Equal(t, time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC), last.Time)
	assert.Equal(t, DefaultSpacing, last.Time.Sub(q.History[len(q.History)-2].Time))
	assert.Equal(t, last.Close, q.Meta.RegularMarketPrice)
	assert.Equal(t, 1500.0, q.History[0].Open)
	assert.Greater(t, q.Meta.PreviousClose, 0.0)
}

func TestGenerator_Generate_ExtremeDraws(t *testing.T) {
	now := time.Unix(1700000000, 0)

	high := New(fixedRand{f: 0.999999, n: MaxVolume}, map[string]float64{"GRSE.NS": 2000}, 0).Generate("GRSE.NS", now)
	assert.True(t, within(high.Meta.RegularMarketPrice, 2000, SeriesJitter))
	assert.True(t, within(high.Meta.PreviousClose, 2000, PrevCloseJitter))
	assert.Equal(t, int64(MaxVolume-1), high.Meta.Volume)

	low := New(fixedRand{f: 0, n: 0}, map[string]float64{"GRSE.NS": 2000}, 0).Generate("GRSE.NS", now)
	assert.InDelta(t, 2000*(1-SeriesJitter), low.Meta.RegularMarketPrice, 1e-9)
	assert.InDelta(t, 2000*(1-PrevCloseJitter), low.Meta.PreviousClose, 1e-9)
	assert.Equal(t, int64(MinVolume), low.Meta.Volume)
}

func TestGenerator_SameSeedSameSeries(t *testing.T) {
	now := time.Unix(1700000000, 0)
	a := NewSeeded(7, nil, 0).Generate("COCHINSHIP.NS", now)
	b := NewSeeded(7, nil, 0).Generate("COCHINSHIP.NS", now)
	assert.Equal(t, a, b)
}

func TestGenerator_Options(t *testing.T) {
	q := NewSeeded(3, nil, 0, WithPoints(5), WithSpacing(time.Minute)).Generate("X", time.Unix(1700000000, 0))
	require.Len(t, q.History, 5)
	assert.Equal(t, time.Minute, q.History[1].Time.Sub(q.History[0].Time))
}

func TestGenerator_Bounds_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("series, previous close and volume stay in range", prop.ForAll(
		func(seed int64, base float64) bool {
			g := NewSeeded(seed, map[string]float64{"SYM.NS": base}, 0)
			q := g.Generate("SYM.NS", time.Unix(1700000000, 0))

			for _, p := range q.History {
				if !within(p.Close, base, SeriesJitter) || !within(p.High, base, SeriesJitter) || !within(p.Low, base, SeriesJitter) {
					return false
				}
				if p.Volume < MinVolume || p.Volume >= MaxVolume {
					return false
				}
				if p.Low > p.High {
					return false
				}
			}
			if !within(q.Meta.PreviousClose, base, PrevCloseJitter) {
				return false
			}
			if q.Meta.DayLow > q.Meta.RegularMarketPrice || q.Meta.DayHigh < q.Meta.RegularMarketPrice {
				return false
			}
			return q.Meta.Volume >= MinVolume && q.Meta.Volume < MaxVolume
		},
		gen.Int64Range(1, 1<<40),
		gen.Float64Range(1, 100000),
	))

	properties.TestingRun(t)
}
