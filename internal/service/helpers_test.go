package service

import (
	"context"
	"sync"
	"time"

	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/synthetic"
	"github.com/portfolio-tracker/internal/types"
)

type fetchCall struct {
	symbol      string
	granularity types.Granularity
}

type fetchStep struct {
	quote *types.RawQuote
	err   error
}

// scriptedFetcher replays per-symbol responses in order. Once a script runs
// out its last step repeats; symbols without a script get NoData.
type scriptedFetcher struct {
	mu     sync.Mutex
	script map[string][]fetchStep
	calls  []fetchCall
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{script: make(map[string][]fetchStep)}
}

func (f *scriptedFetcher) on(symbol string, steps ...fetchStep) *scriptedFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script[symbol] = append(f.script[symbol], steps...)
	return f
}

func (f *scriptedFetcher) FetchQuote(ctx context.Context, symbol string, granularity types.Granularity) (*types.RawQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{symbol: symbol, granularity: granularity})

	steps := f.script[symbol]
	if len(steps) == 0 {
		return nil, errors.NewNoDataError(symbol, "no script")
	}
	step := steps[0]
	if len(steps) > 1 {
		f.script[symbol] = steps[1:]
	}
	return step.quote, step.err
}

func (f *scriptedFetcher) callsFor(symbol string) []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fetchCall
	for _, c := range f.calls {
		if c.symbol == symbol {
			out = append(out, c)
		}
	}
	return out
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// sleepRecorder records requested sleeps without waiting
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func success(quote *types.RawQuote) fetchStep { return fetchStep{quote: quote} }

func noData(symbol string) fetchStep {
	return fetchStep{err: errors.NewNoDataError(symbol, "empty result")}
}

func rateLimited(symbol string) fetchStep {
	return fetchStep{err: errors.NewRateLimitedError(symbol, nil)}
}

func invalid(symbol string) fetchStep {
	return fetchStep{err: errors.NewInvalidResponseError(symbol, nil)}
}

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// liveQuote is a well-formed intraday quote
func liveQuote(symbol string, price, prevClose float64) *types.RawQuote {
	return &types.RawQuote{
		Symbol:      symbol,
		Granularity: types.GranularityIntraday,
		History: []types.PricePoint{
			{Time: testNow.Add(-5 * time.Minute), Open: price, High: price, Low: price, Close: price, Volume: 1000},
			{Time: testNow, Open: price, High: price, Low: price, Close: price, Volume: 2000},
		},
		Meta: types.QuoteMeta{
			RegularMarketPrice: price,
			PreviousClose:      prevClose,
			Volume:             50000,
			Currency:           "INR",
		},
	}
}

func resolverConfig(synthetic bool) *config.ResolverConfig {
	return &config.ResolverConfig{
		MaxRetries:        3,
		RetryDelay:        2 * time.Second,
		InterSymbolDelay:  time.Second,
		SyntheticFallback: synthetic,
		FallbackPrices:    config.DefaultFallbackPrices(),
	}
}

func newTestResolver(fetcher *scriptedFetcher, sleeper *sleepRecorder, withSynthetic bool) *Resolver {
	cfg := resolverConfig(withSynthetic)
	gen := synthetic.NewSeeded(99, cfg.FallbackPrices, config.DefaultFallbackPrice)
	return NewResolver(fetcher, gen, cfg,
		WithSleeper(sleeper.Sleep),
		WithClock(func() time.Time { return testNow }))
}

func position(symbol string, quantity int, alternates ...string) models.PositionConfig {
	return models.PositionConfig{Symbol: symbol, Name: symbol + " Ltd", Quantity: quantity, Alternates: alternates}
}
