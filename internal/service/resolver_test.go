package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/storage"
	"github.com/portfolio-tracker/internal/synthetic"
	"github.com/portfolio-tracker/internal/types"
)

func TestResolver_FirstAttemptSucceeds(t *testing.T) {
	fetcher := newScriptedFetcher().on("GRSE.NS", success(liveQuote("GRSE.NS", 1710, 1700)))
	sleeper := &sleepRecorder{}
	r := newTestResolver(fetcher, sleeper, true)

	res := r.Resolve(context.Background(), position("GRSE.NS", 1))

	require.True(t, res.HasData())
	assert.Equal(t, "GRSE.NS", res.ResolvedSymbol)
	assert.False(t, res.Synthetic)
	assert.False(t, res.Exhausted)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, sleeper.recorded())
	assert.Equal(t, testNow, res.ResolvedAt)
}

func TestResolver_RateLimitThenSuccessOnAlternate(t *testing.T) {
	fetcher := newScriptedFetcher().
		on("MAZDOCK.NS", noData("MAZDOCK.NS")).
		on("MDL.NS", rateLimited("MDL.NS"), success(liveQuote("MDL.NS", 2850, 2800)))
	sleeper := &sleepRecorder{}
	r := newTestResolver(fetcher, sleeper, true)

	res := r.Resolve(context.Background(), position("MAZDOCK.NS", 1, "MDL.NS"))

	require.True(t, res.HasData())
	assert.Equal(t, "MDL.NS", res.ResolvedSymbol)
	assert.Equal(t, "MAZDOCK.NS", res.Symbol)
	assert.Equal(t, 2850.0, res.Quote.Meta.RegularMarketPrice)
	assert.False(t, res.Synthetic)
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeper.recorded(), "exactly one backoff interval")

	mdl := fetcher.callsFor("MDL.NS")
	require.Len(t, mdl, 2)
	assert.Equal(t, types.GranularityIntraday, mdl[1].granularity, "rate limit retries the same request")

	// primary: intraday, then daily for each of the three attempts
	assert.Len(t, fetcher.callsFor("MAZDOCK.NS"), 4)
	assert.Equal(t, 6, res.Attempts)

	stats := r.Stats()
	assert.Equal(t, 1, stats.SuccessfulOps)
	assert.Equal(t, 1, stats.RateLimited)
}

func TestResolver_SyntheticFallbackForCDSL(t *testing.T) {
	fetcher := newScriptedFetcher().on("CDSL.NS", noData("CDSL.NS"))
	r := newTestResolver(fetcher, &sleepRecorder{}, true)
	cdsl := position("CDSL.NS", 4000)

	res := r.Resolve(context.Background(), cdsl)

	require.True(t, res.HasData())
	assert.True(t, res.Synthetic)
	assert.True(t, res.Exhausted)
	assert.Equal(t, "CDSL.NS", res.ResolvedSymbol)
	assert.NotEmpty(t, res.LastError)

	base := config.DefaultFallbackPrices()["CDSL.NS"]
	records, _, _ := Normalize([]models.PositionConfig{cdsl},
		map[string]*types.Resolution{"CDSL.NS": res}, storage.NewRecordStore(), testNow)
	require.Len(t, records, 1)
	assert.InDelta(t, base, records[0].CurrentPrice, base*synthetic.SeriesJitter)
	assert.Equal(t, "CDSL.NS", records[0].ResolvedSymbol)
	assert.True(t, records[0].IsSynthetic)
	assert.Equal(t, records[0].CurrentPrice*4000, records[0].Value)
}

func TestResolver_IntradayWithoutLivePriceFallsBackToDaily(t *testing.T) {
	noLive := liveQuote("COCHINSHIP.NS", 0, 1600)
	noLive.Meta.RegularMarketPrice = 0
	daily := liveQuote("COCHINSHIP.NS", 0, 1600)
	daily.Meta.RegularMarketPrice = 0
	daily.Granularity = types.GranularityDaily

	fetcher := newScriptedFetcher().on("COCHINSHIP.NS", success(noLive), success(daily))
	sleeper := &sleepRecorder{}
	r := newTestResolver(fetcher, sleeper, true)

	res := r.Resolve(context.Background(), position("COCHINSHIP.NS", 1))

	require.True(t, res.HasData())
	assert.False(t, res.Synthetic)
	assert.Equal(t, 2, res.Attempts)
	calls := fetcher.callsFor("COCHINSHIP.NS")
	require.Len(t, calls, 2)
	assert.Equal(t, types.GranularityIntraday, calls[0].granularity)
	assert.Equal(t, types.GranularityDaily, calls[1].granularity)
	assert.Empty(t, sleeper.recorded())
}

func TestResolver_DailyFallbackHappensOnce(t *testing.T) {
	fetcher := newScriptedFetcher().on("GRSE.NS", invalid("GRSE.NS"))
	r := newTestResolver(fetcher, &sleepRecorder{}, true)

	r.Resolve(context.Background(), position("GRSE.NS", 1))

	calls := fetcher.callsFor("GRSE.NS")
	require.Len(t, calls, 4)
	assert.Equal(t, types.GranularityIntraday, calls[0].granularity)
	for _, c := range calls[1:] {
		assert.Equal(t, types.GranularityDaily, c.granularity)
	}
}

func TestResolver_RateLimitBacksOffLinearly(t *testing.T) {
	fetcher := newScriptedFetcher().on("GRSE.NS", rateLimited("GRSE.NS"))
	sleeper := &sleepRecorder{}
	r := newTestResolver(fetcher, sleeper, true)

	res := r.Resolve(context.Background(), position("GRSE.NS", 1))

	assert.True(t, res.Synthetic)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.recorded())
	assert.Equal(t, 3, r.Stats().RateLimited)
}

func TestResolver_SyntheticDisabled(t *testing.T) {
	fetcher := newScriptedFetcher()
	r := newTestResolver(fetcher, &sleepRecorder{}, false)

	res := r.Resolve(context.Background(), position("CDSL.NS", 1, "CDSL.BO"))

	require.NotNil(t, res)
	assert.False(t, res.HasData())
	assert.True(t, res.Exhausted)
	assert.False(t, res.Synthetic)
	assert.Equal(t, 8, res.Attempts, "4 calls per candidate")
	assert.Equal(t, 1, r.Stats().FailedOps)
}

func TestResolver_QuoteWithoutHistoryIsRejected(t *testing.T) {
	empty := liveQuote("GRSE.NS", 1700, 1690)
	empty.History = nil
	fetcher := newScriptedFetcher().on("GRSE.NS", success(empty), success(liveQuote("GRSE.NS", 1700, 1690)))
	r := newTestResolver(fetcher, &sleepRecorder{}, true)

	res := r.Resolve(context.Background(), position("GRSE.NS", 1))

	assert.False(t, res.Synthetic)
	assert.Equal(t, 2, res.Attempts)
}

func TestResolver_CancelledContextStillReturnsData(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetcher := newScriptedFetcher()
	r := newTestResolver(fetcher, &sleepRecorder{}, true)

	res := r.Resolve(ctx, position("GRSE.NS", 1))

	assert.True(t, res.HasData())
	assert.True(t, res.Synthetic)
	assert.Equal(t, 0, fetcher.callCount())
}

func TestValidateQuote(t *testing.T) {
	daily := liveQuote("X", 0, 100)
	daily.Meta.RegularMarketPrice = 0

	assert.NoError(t, validateQuote("X", types.GranularityIntraday, liveQuote("X", 100, 99)))
	assert.NoError(t, validateQuote("X", types.GranularityDaily, daily))
	assert.Error(t, validateQuote("X", types.GranularityIntraday, daily))
	assert.Error(t, validateQuote("X", types.GranularityDaily, nil))

	dead := liveQuote("X", 0, 0)
	dead.Meta.RegularMarketPrice = 0
	assert.Error(t, validateQuote("X", types.GranularityDaily, dead))
}

func TestResolver_Totality_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	outcome := gen.IntRange(0, 3)

	properties.Property("resolve always yields data with synthetic fallback on", prop.ForAll(
		func(outcomes []int, alternates int) bool {
			pos := position("SYM.NS", 1)
			for i := 0; i < alternates; i++ {
				pos.Alternates = append(pos.Alternates, fmt.Sprintf("ALT%d.NS", i))
			}

			fetcher := newScriptedFetcher()
			for _, sym := range pos.Candidates() {
				var steps []fetchStep
				for _, o := range outcomes {
					switch o {
					case 0:
						steps = append(steps, noData(sym))
					case 1:
						steps = append(steps, rateLimited(sym))
					case 2:
						steps = append(steps, invalid(sym))
					default:
						steps = append(steps, success(liveQuote(sym, 100, 99)))
					}
				}
				if len(steps) > 0 {
					fetcher.on(sym, steps...)
				}
			}

			r := newTestResolver(fetcher, &sleepRecorder{}, true)
			res := r.Resolve(context.Background(), pos)

			maxCalls := len(pos.Candidates()) * (3 + 1)
			return res != nil && res.HasData() && res.Attempts <= maxCalls && res.ResolvedSymbol != ""
		},
		gen.SliceOfN(6, outcome),
		gen.IntRange(0, 2),
	))

	properties.TestingRun(t)
}
