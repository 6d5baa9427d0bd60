package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/VitalPredict/internal/pkg/env"
)

const DefaultQueryTTL = 5 * time.Minute

// QueryCache memoizes expensive reads for a fixed TTL.
//
// Producers run outside any lock: concurrent misses on the same key each
// invoke the producer and the last successful result wins.
type QueryCache struct {
	store Store
	ttl   time.Duration
}

func NewQueryCache(store Store, ttl time.Duration) *QueryCache {
	if ttl <= 0 {
		ttl = DefaultQueryTTL
	}
	return &QueryCache{store: store, ttl: ttl}
}

// NewQueryCacheFromEnv selects the backend via QUERY_CACHE_DRIVER
// (memory|redis) and the TTL via QUERY_CACHE_TTL.
func NewQueryCacheFromEnv() *QueryCache {
	ttl := env.GetEnvDuration("QUERY_CACHE_TTL", DefaultQueryTTL)
	switch strings.ToLower(env.GetEnv("QUERY_CACHE_DRIVER", "memory")) {
	case "redis":
		log.Infof("[QueryCache] using redis store (ttl %s)", ttl)
		return NewQueryCache(NewRedisStore(GetClient()), ttl)
	default:
		log.Infof("[QueryCache] using memory store (ttl %s)", ttl)
		return NewQueryCache(NewMemoryStore(), ttl)
	}
}

func (qc *QueryCache) TTL() time.Duration {
	return qc.ttl
}

// Clear drops all entries (empty pattern) or those whose key contains pattern.
func (qc *QueryCache) Clear(ctx context.Context, pattern string) (int, error) {
	if qc == nil {
		return 0, nil
	}
	return qc.store.Clear(ctx, pattern)
}

// Cached returns the value stored under key if it is younger than the TTL.
// Otherwise it runs producer and stores the value only when producer
// succeeds, so a failure is retried on the next call.
func Cached[T any](ctx context.Context, qc *QueryCache, key string, producer func(context.Context) (T, error)) (T, error) {
	if qc == nil {
		return producer(ctx)
	}

	if raw, ok, err := qc.store.Get(ctx, key); err != nil {
		log.Warnf("[QueryCache] read %q failed: %v", key, err)
	} else if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		log.Warnf("[QueryCache] dropping undecodable entry %q", key)
	}

	v, err := producer(ctx)
	if err != nil {
		return v, err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		log.Warnf("[QueryCache] encode %q failed: %v", key, err)
		return v, nil
	}
	if err := qc.store.Set(ctx, key, raw, qc.ttl); err != nil {
		log.Warnf("[QueryCache] write %q failed: %v", key, err)
	}
	return v, nil
}
