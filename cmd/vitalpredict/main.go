package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/favicon"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"
	"github.com/google/uuid"

	"github.com/ManuelReschke/VitalPredict/app/controllers"
	"github.com/ManuelReschke/VitalPredict/app/repository"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/analytics"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/backup"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/billing"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/cache"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/database"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/env"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/hcaptcha"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/mail"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/metrics"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/router"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/subscription"
)

func main() {
	app := NewApplication()

	go func() {
		if err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))); err != nil {
			log.Fatal(err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c
	log.Println("exiting...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("shutdown: %v", err)
	}
	analytics.Close()
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/vitalpredict to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "views"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	controllers.InitializeControllers(newDependencies())

	// init fiber app
	app := fiber.New(fiber.Config{
		Views:     html.New(basePath+"views", ".html"),
		BodyLimit: 1 * 1024 * 1024,
		// proxy headers are only honored from TRUSTED_PROXIES
		ProxyHeader:             env.GetEnv("PROXY_HEADER", fiber.HeaderXForwardedFor),
		EnableTrustedProxyCheck: true,
		EnableIPValidation:      true,
		TrustedProxies:          trustedProxies(),
	})

	// ignore and cache favicon
	app.Use(favicon.New(favicon.Config{
		File:         basePath + "public/assets/icons/favicon.ico",
		URL:          "/favicon.ico",
		CacheControl: "public, max-age=604800",
	}))

	// recovery and logging
	app.Use(recover.New(), logger.New(), metrics.Middleware())

	// prometheus metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), metrics.Handler())

	// static files
	app.Static("/", basePath+"public/assets", fiber.Static{
		CacheDuration: 15 * time.Second,
		Compress:      true,
	})

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	return app
}

// trustedProxies reads the comma separated TRUSTED_PROXIES list of IPs or CIDRs.
func trustedProxies() []string {
	var out []string
	for _, p := range strings.Split(env.GetEnv("TRUSTED_PROXIES", ""), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// unsubscribeSecret returns UNSUBSCRIBE_SECRET, or a random per-process
// secret whose links stop working after a restart.
func unsubscribeSecret() string {
	if secret := env.GetEnv("UNSUBSCRIBE_SECRET", ""); secret != "" {
		return secret
	}
	log.Println("UNSUBSCRIBE_SECRET not set, unsubscribe links expire on restart")
	return uuid.NewString() + uuid.NewString()
}

// newDependencies builds the services shared by all handlers. Optional
// integrations degrade to disabled when their configuration is missing.
func newDependencies() *controllers.Dependencies {
	db := database.GetDB()
	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()
	qc := cache.NewQueryCacheFromEnv()
	tracker := analytics.GetTracker()

	subOpts := []subscription.Option{subscription.WithUnsubscribeSecret(unsubscribeSecret())}
	if mailer := mail.NewFromEnv(); mailer != nil {
		subOpts = append(subOpts, subscription.WithMailer(mailer, env.GetEnv("PRESALE_PRODUCT_NAME", "VitalPredict AI"), env.GetEnv("PUBLIC_DOMAIN", "")))
	}
	subs := subscription.NewService(repos.Subscriber, qc, subOpts...)

	billingCfg, err := billing.LoadConfig()
	if err != nil {
		log.Fatalf("invalid billing configuration: %v", err)
	}
	var provider billing.CheckoutProvider
	if billingCfg.CheckoutEnabled() {
		provider = billing.NewStripeProvider(billingCfg.SecretKey)
	} else {
		log.Println("STRIPE_SECRET_KEY not set, checkout is disabled")
	}
	bill := billing.NewService(billingCfg, billing.Deps{
		Provider:    provider,
		Payments:    repos.Payment,
		Events:      repos.WebhookEvent,
		Subscribers: subs,
		Cache:       qc,
		Tracker:     tracker,
	})

	backupCfg, err := backup.LoadConfig()
	if err != nil {
		log.Fatalf("invalid backup configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	uploader, err := backup.NewUploader(ctx, backupCfg)
	if err != nil {
		log.Fatalf("failed to initialize backup storage: %v", err)
	}

	return &controllers.Dependencies{
		Repos:         repos,
		Cache:         qc,
		Subscriptions: subs,
		Billing:       bill,
		Tracker:       tracker,
		Backup:        backup.NewService(db, repos, uploader, qc, backupCfg),
		Captcha:       hcaptcha.NewFromEnv(),
		PingDB:        database.Ping,
		PingCache:     cache.Ping,
	}
}
