package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/types"
)

// quoteKeyPrefix namespaces resolution keys so a shared Redis can be purged
// without touching anything else.
const quoteKeyPrefix = "quote"

// ResolutionStore keeps resolutions in Redis as JSON, one key per symbol and
// TTL bucket. Keys expire with the window.
type ResolutionStore struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewResolutionStore creates a store whose entries live for ttl
func NewResolutionStore(redis *RedisCache, ttl time.Duration) *ResolutionStore {
	return &ResolutionStore{redis: redis, ttl: ttl}
}

// Key returns quote:<symbol>:<bucket>, symbol lower-cased
func (s *ResolutionStore) Key(symbol string, bucket int64) string {
	return fmt.Sprintf("%s:%s:%d", quoteKeyPrefix, strings.ToLower(symbol), bucket)
}

// Load returns the stored resolution, or nil when the key is absent
func (s *ResolutionStore) Load(ctx context.Context, symbol string, bucket int64) (*types.Resolution, error) {
	data, err := s.redis.Get(ctx, s.Key(symbol, bucket))
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewCacheError("load", err)
	}

	var res types.Resolution
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, errors.NewCacheError("decode", err)
	}
	return &res, nil
}

// Save stores res until the end of the TTL window
func (s *ResolutionStore) Save(ctx context.Context, symbol string, bucket int64, res *types.Resolution) error {
	data, err := json.Marshal(res)
	if err != nil {
		return errors.NewCacheError("encode", err)
	}
	if err := s.redis.Set(ctx, s.Key(symbol, bucket), data, s.ttl); err != nil {
		return errors.NewCacheError("save", err)
	}
	return nil
}

// Purge deletes every stored resolution and reports how many keys went
func (s *ResolutionStore) Purge(ctx context.Context) (int, error) {
	keys, err := s.redis.Keys(ctx, quoteKeyPrefix+":*")
	if err != nil {
		return 0, errors.NewCacheError("purge", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.redis.Del(ctx, keys...); err != nil {
		return 0, errors.NewCacheError("purge", err)
	}
	return len(keys), nil
}
