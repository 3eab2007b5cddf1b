// Package synthetic produces placeholder quotes for symbols that no provider
// could resolve. Output is bounded around a per-symbol reference price so the
// dashboard stays renderable; it is flagged synthetic everywhere downstream.
package synthetic

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/portfolio-tracker/internal/types"
)

// Bounds of generated data
const (
	SeriesJitter    = 0.02 // series closes stay within ±2% of the base price
	PrevCloseJitter = 0.01 // previous close stays within ±1% of the base price
	MinVolume       = 100_000
	MaxVolume       = 1_000_000 // exclusive
	DefaultPoints   = 20
	DefaultSpacing  = 5 * time.Minute
	DefaultBase     = 1000.0
)

// Rand is the randomness the generator needs. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Int64N(n int64) int64
}

// Generator builds synthetic quotes. Safe for concurrent use.
type Generator struct {
	mu          sync.Mutex
	rng         Rand
	prices      map[string]float64
	defaultBase float64
	points      int
	spacing     time.Duration
}

// Option customizes a Generator
type Option func(*Generator)

// WithPoints sets the number of bars in the series
func WithPoints(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.points = n
		}
	}
}

// WithSpacing sets the time between bars
func WithSpacing(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.spacing = d
		}
	}
}

// New creates a generator over rng. prices maps symbol to reference price;
// symbols not listed use defaultBase, or 1000 when defaultBase is not positive.
func New(rng Rand, prices map[string]float64, defaultBase float64, opts ...Option) *Generator {
	if defaultBase <= 0 {
		defaultBase = DefaultBase
	}
	table := make(map[string]float64, len(prices))
	for sym, p := range prices {
		if p > 0 {
			table[sym] = p
		}
	}
	g := &Generator{
		rng:         rng,
		prices:      table,
		defaultBase: defaultBase,
		points:      DefaultPoints,
		spacing:     DefaultSpacing,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewSeeded creates a generator with a PCG source. A zero seed draws one
// from the clock.
func NewSeeded(seed int64, prices map[string]float64, defaultBase float64, opts ...Option) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
	return New(rng, prices, defaultBase, opts...)
}

// BasePrice returns the reference price for a symbol
func (g *Generator) BasePrice(symbol string) float64 {
	if p, ok := g.prices[symbol]; ok {
		return p
	}
	return g.defaultBase
}

// Generate builds a quote for symbol ending at now. Closes are within
// ±SeriesJitter of the base price, the previous close within
// ±PrevCloseJitter, and volumes in [MinVolume, MaxVolume).
func (g *Generator) Generate(symbol string, now time.Time) *types.RawQuote {
	g.mu.Lock()
	defer g.mu.Unlock()

	base := g.BasePrice(symbol)
	end := now.Truncate(g.spacing)

	history := make([]types.PricePoint, g.points)
	open := base
	high, low := 0.0, 0.0
	for i := range history {
		closePrice := base * (1 + g.jitter(SeriesJitter))
		bar := types.PricePoint{
			Time:   end.Add(-time.Duration(g.points-1-i) * g.spacing),
			Open:   open,
			High:   max(open, closePrice),
			Low:    min(open, closePrice),
			Close:  closePrice,
			Volume: g.volume(),
		}
		history[i] = bar
		if i == 0 || bar.High > high {
			high = bar.High
		}
		if i == 0 || bar.Low < low {
			low = bar.Low
		}
		open = closePrice
	}

	last := history[len(history)-1].Close
	return &types.RawQuote{
		Symbol:      symbol,
		Granularity: types.GranularityIntraday,
		History:     history,
		Meta: types.QuoteMeta{
			RegularMarketPrice: last,
			PreviousClose:      base * (1 + g.jitter(PrevCloseJitter)),
			DayHigh:            high,
			DayLow:             low,
			Volume:             g.volume(),
			Currency:           "INR",
		},
	}
}

// jitter returns a value in [-bound, bound)
func (g *Generator) jitter(bound float64) float64 {
	return (2*g.rng.Float64() - 1) * bound
}

func (g *Generator) volume() int64 {
	return MinVolume + g.rng.Int64N(MaxVolume-MinVolume)
}
