// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package country_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terraatlas/terra/internal/country"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func countingLookup(c country.Country, err error) (country.Lookup, *atomic.Int64) {
	var calls atomic.Int64
	return country.LookupFunc(func(context.Context, string) (country.Country, error) {
		calls.Add(1)
		return c, err
	}), &calls
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	cache := country.NewRedisCache(rdb, time.Hour)

	_, ok, err := cache.Get(ctx, "US")
	require.NoError(t, err)
	assert.False(t, ok)

	us := country.Country{Code: "US", Name: "United States", FlagURL: "https://flagcdn.com/us.svg"}
	require.NoError(t, cache.Set(ctx, us))

	got, ok, err := cache.Get(ctx, "US")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, us, got)

	mr.FastForward(2 * time.Hour)
	_, ok, err = cache.Get(ctx, "US")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_CorruptEntry(t *testing.T) {
	mr, rdb := newRedis(t)
	require.NoError(t, mr.Set("terra:country:US", "{not json"))

	_, ok, err := country.NewRedisCache(rdb, 0).Get(context.Background(), "US")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestCachedLookup(t *testing.T) {
	ctx := context.Background()
	us := country.Country{Code: "US", Name: "United States", FlagURL: "https://flagcdn.com/us.svg"}

	t.Run("second lookup is served from cache", func(t *testing.T) {
		_, rdb := newRedis(t)
		next, calls := countingLookup(us, nil)
		lookup := country.Cached(next, country.NewRedisCache(rdb, time.Hour), nil)

		for range 3 {
			got, err := lookup.Lookup(ctx, "us")
			require.NoError(t, err)
			assert.Equal(t, us, got)
		}
		assert.Equal(t, int64(1), calls.Load())
	})

	t.Run("failures are not cached", func(t *testing.T) {
		_, rdb := newRedis(t)
		next, calls := countingLookup(country.Country{}, country.ErrNotFound)
		lookup := country.Cached(next, country.NewRedisCache(rdb, time.Hour), nil)

		_, err := lookup.Lookup(ctx, "ZZ")
		assert.ErrorIs(t, err, country.ErrNotFound)
		_, err = lookup.Lookup(ctx, "ZZ")
		assert.ErrorIs(t, err, country.ErrNotFound)
		assert.Equal(t, int64(2), calls.Load())
	})

	t.Run("redis outage degrades to direct lookup", func(t *testing.T) {
		mr, rdb := newRedis(t)
		mr.Close()
		next, calls := countingLookup(us, nil)
		lookup := country.Cached(next, country.NewRedisCache(rdb, time.Hour), nil)

		got, err := lookup.Lookup(ctx, "US")
		require.NoError(t, err)
		assert.Equal(t, us, got)
		assert.Equal(t, int64(1), calls.Load())
	})

	t.Run("lookup errors pass through unchanged", func(t *testing.T) {
		_, rdb := newRedis(t)
		boom := errors.New("boom")
		next, _ := countingLookup(country.Country{}, boom)

		_, err := country.Cached(next, country.NewRedisCache(rdb, time.Hour), nil).Lookup(ctx, "US")
		assert.ErrorIs(t, err, boom)
	})
}
