package router

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/VitalPredict/app/controllers"
	"github.com/ManuelReschke/VitalPredict/app/repository"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/cache"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/env"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/middleware"
)

const stripeWebhookPath = "/api/webhooks/stripe"

type ApiRouter struct {
	// AdminAuth guards /api/admin.
	AdminAuth middleware.AdminAuthConfig
	// LimiterStorage backs the rate limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
	RateLimit      int
	RateWindow     time.Duration
	AllowOrigins   string
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	limit := h.RateLimit
	if limit <= 0 {
		limit = 60
	}
	window := h.RateWindow
	if window <= 0 {
		window = time.Minute
	}

	api := app.Group("/api", cors.New(cors.Config{AllowOrigins: h.AllowOrigins}), limiter.New(limiter.Config{
		Max:        limit,
		Expiration: window,
		Storage:    h.LimiterStorage,
		// provider retries must never be throttled away
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == stripeWebhookPath
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests, please slow down",
			})
		},
	}))

	api.Get("/health", controllers.HandleHealth)

	api.Post("/subscribe", controllers.HandleSubscribe)
	api.Delete("/subscribe", controllers.HandleUnsubscribe)
	api.Get("/subscribers/count", controllers.HandleSubscriberCount)

	api.Post("/checkout", controllers.HandleCreateCheckout)
	api.Get("/checkout/sessions/:id", controllers.HandleCheckoutSession)
	api.Post("/webhooks/stripe", controllers.HandleStripeWebhook)

	api.Post("/analytics/events", controllers.HandleTrackEvent)

	admin := api.Group("/admin", middleware.RequireAdmin(h.AdminAuth))
	admin.Get("/users", controllers.HandleAdminUsers)
	admin.Post("/users/:id/roles", controllers.HandleAdminAssignRole)
	admin.Delete("/users/:id/roles/:role", controllers.HandleAdminRemoveRole)
	admin.Get("/roles", controllers.HandleAdminRoles)
	admin.Get("/subscribers", controllers.HandleAdminSubscribers)
	admin.Get("/stats", controllers.HandleAdminStats)
	admin.Post("/backup", controllers.HandleAdminBackup)
	admin.Get("/backups", controllers.HandleAdminBackups)
	admin.Post("/maintenance", controllers.HandleAdminMaintenance)
}

// NewApiRouter builds the API router from the environment and the global
// repositories.
func NewApiRouter() *ApiRouter {
	repos := repository.GetGlobalRepositories()
	return &ApiRouter{
		AdminAuth: middleware.AdminAuthConfig{
			StaticKey: env.GetEnv("ADMIN_API_KEY", ""),
			Users:     repos.User,
			Roles:     repos.Role,
		},
		LimiterStorage: newLimiterStorage(),
		RateLimit:      env.GetEnvInt("API_RATE_LIMIT", 60),
		RateWindow:     env.GetEnvDuration("API_RATE_WINDOW", time.Minute),
		AllowOrigins:   env.GetEnv("PUBLIC_DOMAIN", "*"),
	}
}

// newLimiterStorage shares rate limit counters through the cache server
// when it is reachable, using database 2 (cache uses DB 0).
func newLimiterStorage() fiber.Storage {
	client := cache.GetClient()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnf("[Router] cache unreachable, rate limiting per instance: %v", err)
		return nil
	}

	host, port := "localhost", 6379
	if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: client.Options().Password,
		Database: 2,
		Reset:    false,
	})
}
