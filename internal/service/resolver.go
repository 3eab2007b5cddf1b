package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/portfolio-tracker/internal/adapter"
	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/retry"
	"github.com/portfolio-tracker/internal/synthetic"
	"github.com/portfolio-tracker/internal/types"
)

var (
	errNonPositiveLivePrice = stderrors.New("intraday quote has no positive live price")
	errNoPositivePrice      = stderrors.New("quote has neither a live price nor a previous close")
)

// resolveState is where the per-position state machine currently is
type resolveState int

const (
	stateTrying resolveState = iota
	stateSucceeded
	stateExhausted
)

// resolution tracks one pass over a position's candidates
type resolution struct {
	state       resolveState
	candidates  []string
	index       int
	attempt     int // 1-based, per candidate
	granularity types.Granularity
	downgraded  bool
	quote       *types.RawQuote
	lastErr     error
	calls       int
	rateLimited int
}

func (r *resolution) candidate() string {
	return r.candidates[r.index]
}

// advance moves to the next candidate, or to exhausted when none remain
func (r *resolution) advance() {
	r.index++
	r.attempt = 1
	r.granularity = types.GranularityIntraday
	r.downgraded = false
	if r.index >= len(r.candidates) {
		r.state = stateExhausted
	}
}

// consume uses up one attempt on the current candidate
func (r *resolution) consume(maxAttempts int) {
	if r.attempt >= maxAttempts {
		r.advance()
		return
	}
	r.attempt++
}

// Resolver turns a position into exactly one usable quote. It walks the
// candidate symbols with bounded retries and falls back to synthetic data.
type Resolver struct {
	fetcher   adapter.QuoteFetcher
	generator *synthetic.Generator
	policy    *retry.RetryConfig
	sleep     retry.Sleeper
	now       func() time.Time
	synthetic bool
	stats     *retry.RetryStatsTracker
}

// ResolverOption customizes a Resolver
type ResolverOption func(*Resolver)

// WithSleeper replaces the backoff sleep
func WithSleeper(sleep retry.Sleeper) ResolverOption {
	return func(r *Resolver) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithClock replaces the clock used to stamp resolutions
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRetryStats records every resolution into tracker
func WithRetryStats(tracker *retry.RetryStatsTracker) ResolverOption {
	return func(r *Resolver) {
		if tracker != nil {
			r.stats = tracker
		}
	}
}

// NewResolver creates a resolver. A nil generator disables synthetic
// fallback regardless of cfg.
func NewResolver(fetcher adapter.QuoteFetcher, generator *synthetic.Generator, cfg *config.ResolverConfig, opts ...ResolverOption) *Resolver {
	policy := retry.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		policy.MaxAttempts = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		policy.InitialDelay = cfg.RetryDelay
	}

	r := &Resolver{
		fetcher:   fetcher,
		generator: generator,
		policy:    policy,
		sleep:     retry.SleepContext,
		now:       time.Now,
		synthetic: cfg.SyntheticFallback && generator != nil,
		stats:     retry.NewRetryStatsTracker(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats returns the retry statistics collected so far
func (r *Resolver) Stats() retry.RetryStats {
	return r.stats.GetStats()
}

// Resolve runs the state machine for one position. It never fails: the
// result carries a real quote, a synthetic one, or no quote with Exhausted set
// when synthetic fallback is off.
func (r *Resolver) Resolve(ctx context.Context, position models.PositionConfig) *types.Resolution {
	logger := logging.FromContext(ctx).WithSymbol(position.Symbol)

	st := &resolution{
		state:       stateTrying,
		candidates:  position.Candidates(),
		attempt:     1,
		granularity: types.GranularityIntraday,
	}
	for st.state == stateTrying {
		r.step(ctx, logger, st)
	}

	out := &types.Resolution{
		Symbol:     position.Symbol,
		Attempts:   st.calls,
		ResolvedAt: r.now(),
	}
	if st.lastErr != nil {
		out.LastError = st.lastErr.Error()
	}

	if st.state == stateSucceeded {
		out.ResolvedSymbol = st.candidate()
		out.Quote = st.quote
		r.stats.Record(st.calls, true, st.rateLimited)
		if out.ResolvedSymbol != position.Symbol {
			logger.WithField("resolved_symbol", out.ResolvedSymbol).Info("Resolved via alternate symbol")
		}
		return out
	}

	r.stats.Record(st.calls, false, st.rateLimited)
	out.Exhausted = true
	out.ResolvedSymbol = position.Symbol
	exhausted := errors.NewAllSourcesExhaustedError(position.Symbol, st.candidates, st.lastErr)

	if !r.synthetic {
		logger.WithError(exhausted).Warn("No data available and synthetic fallback disabled")
		return out
	}

	out.Quote = r.generator.Generate(position.Symbol, out.ResolvedAt)
	out.Synthetic = true
	logger.WithError(exhausted).WithField("base_price", r.generator.BasePrice(position.Symbol)).
		Warn("Using synthetic data")
	return out
}

// step performs one fetch and applies the resulting transition
func (r *Resolver) step(ctx context.Context, logger *logging.Logger, st *resolution) {
	if err := ctx.Err(); err != nil {
		st.lastErr = err
		st.state = stateExhausted
		return
	}

	symbol := st.candidate()
	quote, err := r.fetcher.FetchQuote(ctx, symbol, st.granularity)
	st.calls++
	if err == nil {
		err = validateQuote(symbol, st.granularity, quote)
	}

	outcome := errors.ClassifyFetch(err)
	log := logger.WithFields(map[string]interface{}{
		"candidate":   symbol,
		"attempt":     st.attempt,
		"granularity": string(st.granularity),
		"outcome":     outcome.String(),
	})

	switch outcome {
	case errors.OutcomeSuccess:
		st.quote = quote
		st.state = stateSucceeded
		log.Debug("Fetch accepted")

	case errors.OutcomeRateLimited:
		st.lastErr = err
		st.rateLimited++
		if st.attempt >= r.policy.MaxAttempts {
			log.Warn("Rate limited on final attempt, moving to next candidate")
			st.advance()
			return
		}
		delay := r.policy.Delay(st.attempt)
		log.WithField("delay", delay.String()).Warn("Rate limited, backing off")
		if err := r.sleep(ctx, delay); err != nil {
			st.lastErr = err
			st.state = stateExhausted
			return
		}
		st.attempt++

	default:
		st.lastErr = err
		if st.granularity == types.GranularityIntraday && !st.downgraded {
			log.WithError(err).Debug("Intraday fetch unusable, retrying with daily bars")
			st.granularity = types.GranularityDaily
			st.downgraded = true
			return
		}
		log.WithError(err).Warn("Fetch failed")
		st.consume(r.policy.MaxAttempts)
	}
}

// validateQuote accepts a quote only with a non-empty history and a positive
// live or previous price. Intraday quotes also need a positive live price.
func validateQuote(symbol string, granularity types.Granularity, quote *types.RawQuote) error {
	if quote == nil || len(quote.History) == 0 {
		return errors.NewNoDataError(symbol, "empty price history")
	}
	live := quote.Meta.LivePrice()
	if granularity == types.GranularityIntraday && live <= 0 {
		return errors.NewInvalidResponseError(symbol, errNonPositiveLivePrice)
	}
	if live <= 0 && quote.Meta.PreviousClose <= 0 {
		return errors.NewInvalidResponseError(symbol, errNoPositivePrice)
	}
	return nil
}
