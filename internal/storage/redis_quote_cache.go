package storage

import (
	"context"
	"time"

	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

// RedisQuoteCache shares resolutions across processes. Keys are
// quote:<symbol>:<bucket> and expire with the TTL window, so old buckets
// need no explicit eviction.
//
// Redis failures never surface to the caller: the resolver is called
// directly and the error is counted.
type RedisQuoteCache struct {
	store    *ResolutionStore
	resolve  ResolveFunc
	flight   *inflight
	counters cacheCounters
}

// NewRedisQuoteCache creates a Redis-backed quote cache
func NewRedisQuoteCache(redis *RedisCache, ttl time.Duration, resolve ResolveFunc) *RedisQuoteCache {
	return &RedisQuoteCache{
		store:   NewResolutionStore(redis, ttl),
		resolve: resolve,
		flight:  newInflight(),
	}
}

// Get returns the cached resolution for the bucket, resolving on a miss
func (c *RedisQuoteCache) Get(ctx context.Context, position models.PositionConfig, bucket int64) *types.Resolution {
	logger := logging.FromContext(ctx).WithSymbol(position.Symbol)

	cached, err := c.store.Load(ctx, position.Symbol, bucket)
	if err != nil {
		c.counters.errors.Add(1)
		logger.WithError(err).Warn("Quote cache read failed, resolving directly")
	}
	if cached != nil {
		c.counters.hits.Add(1)
		return cached
	}
	c.counters.misses.Add(1)

	res, shared := c.flight.do(c.store.Key(position.Symbol, bucket), func() *types.Resolution {
		return c.resolve(ctx, position)
	})
	if shared {
		c.counters.shared.Add(1)
		return res
	}
	if ctx.Err() != nil {
		return res
	}

	if err := c.store.Save(ctx, position.Symbol, bucket, res); err != nil {
		c.counters.errors.Add(1)
		logger.WithError(err).Warn("Quote cache write failed")
	}
	return res
}

// Clear removes every quote key
func (c *RedisQuoteCache) Clear(ctx context.Context) error {
	n, err := c.store.Purge(ctx)
	if err != nil {
		c.counters.errors.Add(1)
		return err
	}
	c.counters.clears.Add(1)
	logging.FromContext(ctx).WithField("keys", n).Debug("Quote cache cleared")
	return nil
}

// Stats returns cache counters
func (c *RedisQuoteCache) Stats() CacheStats {
	return c.counters.snapshot("redis", 0)
}
