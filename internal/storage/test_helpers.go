package storage

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// setupMiniRedis starts an in-process Redis and returns a connected cache
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	cache := NewRedisCacheFromClient(client)
	t.Cleanup(func() { _ = cache.Close() })
	return mr, cache
}

// countingResolver returns a ResolveFunc that counts calls and tags each
// resolution with the call number in Attempts
func countingResolver(calls *atomic.Int32) ResolveFunc {
	return func(ctx context.Context, position models.PositionConfig) *types.Resolution {
		n := calls.Add(1)
		return &types.Resolution{
			Symbol:         position.Symbol,
			ResolvedSymbol: position.Symbol,
			Attempts:       int(n),
			Quote: &types.RawQuote{
				Symbol:      position.Symbol,
				Granularity: types.GranularityIntraday,
				History:     []types.PricePoint{{Time: time.Unix(1700000000, 0).UTC(), Close: 100}},
				Meta:        types.QuoteMeta{RegularMarketPrice: 101, PreviousClose: 99},
			},
		}
	}
}

// cancellingResolver cancels the caller's context while resolving, like a
// shutdown landing mid-cycle
func cancellingResolver(cancel context.CancelFunc, calls *atomic.Int32) ResolveFunc {
	next := countingResolver(calls)
	return func(ctx context.Context, position models.PositionConfig) *types.Resolution {
		cancel()
		return next(ctx, position)
	}
}
