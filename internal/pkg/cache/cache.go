package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/VitalPredict/internal/pkg/env"
)

var (
	client   *redis.Client
	clientMu sync.Mutex
	ctx      = context.Background()
)

// SetupCache initializes the connection to the Redis/Dragonfly cache server
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	c := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       0,
	})

	clientMu.Lock()
	client = c
	clientMu.Unlock()

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	pong, err := c.Ping(pingCtx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to cache server: %v", err)
	} else {
		log.Infof("[Cache] Successfully connected to cache server: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	clientMu.Lock()
	c := client
	clientMu.Unlock()
	if c == nil {
		SetupCache()
		clientMu.Lock()
		c = client
		clientMu.Unlock()
	}
	return c
}

// Ping reports whether the cache server answers within the context deadline.
func Ping(c context.Context) error {
	return GetClient().Ping(c).Err()
}
