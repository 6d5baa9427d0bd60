package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// HandleHealthWith reports database and cache reachability. Only a database
// outage makes the service unhealthy since the cache is optional.
func HandleHealthWith(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		status := fiber.StatusOK
		dbState, cacheState := "ok", "ok"

		if deps.PingDB != nil {
			if err := deps.PingDB(); err != nil {
				log.Warnf("[Health] database ping failed: %v", err)
				dbState = "down"
				status = fiber.StatusServiceUnavailable
			}
		}

		if deps.PingCache != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := deps.PingCache(ctx); err != nil {
				cacheState = "down"
			}
		} else {
			cacheState = "disabled"
		}

		overall := "ok"
		if status != fiber.StatusOK {
			overall = "degraded"
		}
		return c.Status(status).JSON(fiber.Map{
			"status":   overall,
			"database": dbState,
			"cache":    cacheState,
			"time":     time.Now().UTC().Format(time.RFC3339),
		})
	}
}
