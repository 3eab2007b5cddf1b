package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

// ResolveFunc produces a resolution for a position on a cache miss.
// It never fails; degraded outcomes are encoded in the Resolution.
type ResolveFunc func(ctx context.Context, position models.PositionConfig) *types.Resolution

// QuoteCache memoizes resolutions per symbol for one TTL window.
// Within a bucket, Get returns the same resolution without calling the resolver.
type QuoteCache interface {
	Get(ctx context.Context, position models.PositionConfig, bucket int64) *types.Resolution
	Clear(ctx context.Context) error
	Stats() CacheStats
}

// Bucket maps a time to its TTL window: floor(unix seconds / ttl seconds)
func Bucket(now time.Time, ttl time.Duration) int64 {
	secs := int64(ttl / time.Second)
	if secs <= 0 {
		secs = 1
	}
	return now.Unix() / secs
}

// CacheStats is a snapshot of cache counters
type CacheStats struct {
	Backend string  `json:"backend"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Errors  int64   `json:"errors"`
	HitRate float64 `json:"hitRate"`
	Shared  int64   `json:"shared"`
	Clears  int64   `json:"clears"`
	Entries int     `json:"entries"`
}

type cacheCounters struct {
	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
	shared atomic.Int64
	clears atomic.Int64
}

func (c *cacheCounters) snapshot(backend string, entries int) CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return CacheStats{
		Backend: backend,
		Hits:    hits,
		Misses:  misses,
		Errors:  c.errors.Load(),
		HitRate: hitRate,
		Shared:  c.shared.Load(),
		Clears:  c.clears.Load(),
		Entries: entries,
	}
}

// inflight collapses concurrent misses for the same key into one resolve
type inflight struct {
	group singleflight.Group
}

func newInflight() *inflight {
	return &inflight{}
}

// do runs fn once per key at a time. Callers that arrive while a resolve is
// running wait for its result. shared reports whether the result came from
// another caller's resolve.
func (f *inflight) do(key string, fn func() *types.Resolution) (*types.Resolution, bool) {
	ran := false
	v, _, _ := f.group.Do(key, func() (interface{}, error) {
		ran = true
		return fn(), nil
	})
	res, _ := v.(*types.Resolution)
	return res, !ran
}

type memoryEntry struct {
	bucket int64
	result *types.Resolution
}

// MemoryQuoteCache keeps one entry per symbol, overwritten when the bucket moves
type MemoryQuoteCache struct {
	resolve  ResolveFunc
	flight   *inflight
	counters cacheCounters

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryQuoteCache creates an in-process quote cache
func NewMemoryQuoteCache(resolve ResolveFunc) *MemoryQuoteCache {
	return &MemoryQuoteCache{
		resolve: resolve,
		flight:  newInflight(),
		entries: make(map[string]memoryEntry),
	}
}

// Get returns the cached resolution for the bucket, resolving on a miss
func (c *MemoryQuoteCache) Get(ctx context.Context, position models.PositionConfig, bucket int64) *types.Resolution {
	c.mu.RLock()
	entry, ok := c.entries[position.Symbol]
	c.mu.RUnlock()
	if ok && entry.bucket == bucket {
		c.counters.hits.Add(1)
		return entry.result
	}
	c.counters.misses.Add(1)

	res, shared := c.flight.do(flightKey(position.Symbol, bucket), func() *types.Resolution {
		r := c.resolve(ctx, position)
		if ctx.Err() != nil {
			// an aborted resolution must not pin fallback data for the window
			return r
		}
		c.mu.Lock()
		c.entries[position.Symbol] = memoryEntry{bucket: bucket, result: r}
		c.mu.Unlock()
		return r
	})
	if shared {
		c.counters.shared.Add(1)
	}
	return res
}

// Clear drops every entry
func (c *MemoryQuoteCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	c.counters.clears.Add(1)
	return nil
}

// Stats returns cache counters
func (c *MemoryQuoteCache) Stats() CacheStats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return c.counters.snapshot("memory", n)
}

func flightKey(symbol string, bucket int64) string {
	return fmt.Sprintf("%s:%d", symbol, bucket)
}
