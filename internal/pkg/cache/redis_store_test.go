package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/VitalPredict/internal/pkg/env"
)

const isolatedQueryCacheTestRedisDB = 13

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379"))
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       isolatedQueryCacheTestRedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		t.Skipf("Skipping Redis-dependent test: no reachable Redis endpoint at %s (%v)", addr, err)
	}

	require.NoError(t, c.FlushDB(context.Background()).Err())
	t.Cleanup(func() {
		_ = c.FlushDB(context.Background()).Err()
		_ = c.Close()
	})
	return c
}

func TestRedisStoreCachedAndClear(t *testing.T) {
	client := newTestRedisClient(t)
	qc := NewQueryCache(NewRedisStore(client), time.Minute)
	ctx := context.Background()
	calls := 0

	_, err := Cached(ctx, qc, "stats:overview", countingProducer(&calls, 1))
	require.NoError(t, err)
	_, err = Cached(ctx, qc, "subscribers:count", countingProducer(&calls, 2))
	require.NoError(t, err)

	v, err := Cached(ctx, qc, "stats:overview", countingProducer(&calls, 99))
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, calls)

	// unrelated keys survive a full clear
	require.NoError(t, client.Set(ctx, "limiter:abc", "1", time.Minute).Err())

	n, err := qc.Clear(ctx, "stats:")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = qc.Clear(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	exists, err := client.Exists(ctx, "limiter:abc").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}
