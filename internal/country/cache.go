// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package country

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/terraatlas/terra/pkg/errutil"
)

// DefaultCacheTTL is how long a resolved country stays cached.
const DefaultCacheTTL = 24 * time.Hour

const cacheKeyPrefix = "terra:country:"

// Cache stores resolved countries. Get reports a miss with ok=false.
type Cache interface {
	Get(ctx context.Context, code string) (c Country, ok bool, err error)
	Set(ctx context.Context, c Country) error
}

// RedisCache is a Cache backed by Redis string keys holding JSON.
type RedisCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisCache creates a RedisCache. A non-positive ttl uses DefaultCacheTTL.
func NewRedisCache(rdb redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

// Get reads code from Redis.
func (r *RedisCache) Get(ctx context.Context, code string) (Country, bool, error) {
	data, err := r.rdb.Get(ctx, cacheKeyPrefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return Country{}, false, nil
	}
	if err != nil {
		return Country{}, false, oops.Code("COUNTRY_CACHE_GET_FAILED").With("code", code).Wrap(err)
	}
	var c Country
	if err := json.Unmarshal(data, &c); err != nil {
		return Country{}, false, oops.Code("COUNTRY_CACHE_CORRUPT").With("code", code).Wrap(err)
	}
	return c, true, nil
}

// Set writes c with the cache TTL.
func (r *RedisCache) Set(ctx context.Context, c Country) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return oops.Code("COUNTRY_CACHE_SET_FAILED").With("code", c.Code).Wrap(err)
	}
	if err := r.rdb.Set(ctx, cacheKeyPrefix+c.Code, payload, r.ttl).Err(); err != nil {
		return oops.Code("COUNTRY_CACHE_SET_FAILED").With("code", c.Code).Wrap(err)
	}
	return nil
}

// CachedLookup serves hits from a Cache and fills it from the wrapped Lookup.
// Only successful lookups are cached. Cache faults fall through to the
// wrapped Lookup.
type CachedLookup struct {
	next   Lookup
	cache  Cache
	logger *slog.Logger
}

// Cached composes next with cache. A nil logger uses slog.Default.
func Cached(next Lookup, cache Cache, logger *slog.Logger) *CachedLookup {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedLookup{next: next, cache: cache, logger: logger}
}

// Lookup implements Lookup.
func (c *CachedLookup) Lookup(ctx context.Context, code string) (Country, error) {
	code = NormalizeCode(code)
	hit, ok, err := c.cache.Get(ctx, code)
	switch {
	case err != nil:
		errutil.LogError(c.logger, "country cache read failed", err)
	case ok:
		return hit, nil
	}

	resolved, err := c.next.Lookup(ctx, code)
	if err != nil {
		return Country{}, err
	}
	if err := c.cache.Set(ctx, resolved); err != nil {
		errutil.LogError(c.logger, "country cache write failed", err)
	}
	return resolved, nil
}

var (
	_ Lookup = (*Client)(nil)
	_ Lookup = (*CachedLookup)(nil)
	_ Cache  = (*RedisCache)(nil)
)
