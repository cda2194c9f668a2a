package priorartsearch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/joelkehle/inventavault/internal/logging"
)

var ErrCacheMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// CachedSource serves repeated queries from Cache. Cache failures are logged
// and bypassed; only successful lookups are stored.
type CachedSource struct {
	inner  SourceLookup
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedSource(inner SourceLookup, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedSource {
	return &CachedSource{inner: inner, cache: cache, ttl: ttl, logger: logging.OrNop(logger).Named("cache")}
}

func (s *CachedSource) Name() string { return s.inner.Name() }

func (s *CachedSource) Lookup(ctx context.Context, query string) ([]RawCandidate, error) {
	key := cacheKey(s.inner.Name(), query)
	data, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var cands []RawCandidate
		jerr := json.Unmarshal(data, &cands)
		if jerr == nil {
			return cands, nil
		}
		s.logger.Warn("cache_decode_failed", zap.String("key", key), zap.Error(jerr))
	case !errors.Is(err, ErrCacheMiss):
		s.logger.Warn("cache_get_failed", zap.String("key", key), zap.Error(err))
	}

	cands, err := s.inner.Lookup(ctx, query)
	if err != nil {
		return nil, err
	}
	if blob, jerr := json.Marshal(cands); jerr == nil {
		if serr := s.cache.Set(ctx, key, blob, s.ttl); serr != nil {
			s.logger.Warn("cache_set_failed", zap.String("key", key), zap.Error(serr))
		}
	}
	return cands, nil
}

func cacheKey(source, query string) string {
	sum := sha256.Sum256([]byte(query))
	return "priorart:" + source + ":" + hex.EncodeToString(sum[:])
}
