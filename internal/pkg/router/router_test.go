package router

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/VitalPredict/app/controllers"
	"github.com/ManuelReschke/VitalPredict/app/repository"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/analytics"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/backup"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/billing"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/cache"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/middleware"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/security"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/subscription"
)

const (
	testAdminKey          = "test-admin-key"
	testUnsubscribeSecret = "test-unsubscribe-secret"
)

type nopProvider struct{}

func (nopProvider) CreateSession(_ context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	return &billing.CheckoutSession{ID: "cs_router", URL: "https://checkout.stripe.com/c/pay/cs_router"}, nil
}

func (nopProvider) GetSession(_ context.Context, id string) (*billing.CheckoutSession, error) {
	return &billing.CheckoutSession{ID: id, Status: "complete", PaymentStatus: "paid", Email: "buyer@example.com"}, nil
}

func newTestApp(t *testing.T, rateLimit int) *fiber.App {
	t.Helper()
	db := dbtest.New(t)
	repos := repository.NewRepositories(db)
	qc := cache.NewQueryCache(cache.NewMemoryStore(), time.Minute)
	subs := subscription.NewService(repos.Subscriber, qc, subscription.WithUnsubscribeSecret(testUnsubscribeSecret))
	backupCfg := &backup.Config{LocalDir: t.TempDir(), WebhookRetentionDays: 90}

	controllers.InitializeControllers(&controllers.Dependencies{
		Repos:         repos,
		Cache:         qc,
		Subscriptions: subs,
		Billing: billing.NewService(&billing.Config{
			SecretKey:     "sk_test",
			WebhookSecret: "whsec_router",
			PriceCents:    4900,
			Currency:      "usd",
			ProductName:   "VitalPredict AI Pre-Sale",
			PublicDomain:  "https://vitalpredict.test",
		}, billing.Deps{
			Provider:    nopProvider{},
			Payments:    repos.Payment,
			Events:      repos.WebhookEvent,
			Subscribers: subs,
			Cache:       qc,
		}),
		Tracker: analytics.Noop(),
		Backup:  backup.NewService(db, repos, &backup.LocalUploader{Dir: backupCfg.LocalDir}, qc, backupCfg),
		PingDB:  func() error { return nil },
	})

	app := fiber.New(fiber.Config{
		Views:                   html.New("../../../views", ".html"),
		ProxyHeader:             fiber.HeaderXForwardedFor,
		EnableTrustedProxyCheck: true,
		EnableIPValidation:      true,
	})
	setup(app, NewHttpRouter(), &ApiRouter{
		AdminAuth: middleware.AdminAuthConfig{
			StaticKey: testAdminKey,
			Users:     repos.User,
			Roles:     repos.Role,
		},
		RateLimit: rateLimit,
	})
	return app
}

func request(t *testing.T, app *fiber.App, method, path, body string, headers ...string) (int, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func TestPublicPagesRender(t *testing.T) {
	app := newTestApp(t, 100)

	for _, path := range []string{"/", "/pricing", "/checkout/cancel", "/checkout/success?session_id=cs_router"} {
		status, body := request(t, app, fiber.MethodGet, path, "")
		assert.Equal(t, fiber.StatusOK, status, path)
		assert.Contains(t, body, "VitalPredict AI", path)
	}

	_, body := request(t, app, fiber.MethodGet, "/pricing", "")
	assert.Contains(t, body, "49.00")

	_, body = request(t, app, fiber.MethodGet, "/checkout/success?session_id=cs_router", "")
	assert.Contains(t, body, "cs_router")
}

func TestAdminRoutesRequireCredentials(t *testing.T) {
	app := newTestApp(t, 100)

	status, _ := request(t, app, fiber.MethodGet, "/api/admin/roles", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = request(t, app, fiber.MethodGet, "/api/admin/roles", "", "X-API-Key", "wrong")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body := request(t, app, fiber.MethodGet, "/api/admin/roles", "", "X-API-Key", testAdminKey)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `"admin"`)
}

func TestApiRateLimitExemptsStripeWebhook(t *testing.T) {
	app := newTestApp(t, 2)

	for i := 0; i < 2; i++ {
		status, _ := request(t, app, fiber.MethodGet, "/api/subscribers/count", "")
		require.Equal(t, fiber.StatusOK, status)
	}
	status, body := request(t, app, fiber.MethodGet, "/api/subscribers/count", "")
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Contains(t, body, "rate_limited")

	status, body = request(t, app, fiber.MethodPost, "/api/webhooks/stripe", `{"id":"evt_1"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body, "missing_signature")
}

func TestApiRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	app := newTestApp(t, 2)

	for i := 0; i < 2; i++ {
		status, _ := request(t, app, fiber.MethodGet, "/api/subscribers/count", "",
			fiber.HeaderXForwardedFor, fmt.Sprintf("203.0.113.%d", i+1),
			"CF-Connecting-IP", fmt.Sprintf("198.51.100.%d", i+1))
		require.Equal(t, fiber.StatusOK, status)
	}
	status, body := request(t, app, fiber.MethodGet, "/api/subscribers/count", "",
		fiber.HeaderXForwardedFor, "203.0.113.99",
		"CF-Connecting-IP", "198.51.100.99")
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Contains(t, body, "rate_limited")
}

func TestHealthRoute(t *testing.T) {
	app := newTestApp(t, 100)

	status, body := request(t, app, fiber.MethodGet, "/api/health", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `"database":"ok"`)
}

func TestUnsubscribeLink(t *testing.T) {
	app := newTestApp(t, 100)

	status, _ := request(t, app, fiber.MethodPost, "/api/subscribe", `{"email":"leave@example.com"}`)
	require.Equal(t, fiber.StatusCreated, status)

	token, err := security.GenerateUnsubscribeToken("leave@example.com", time.Hour, testUnsubscribeSecret)
	require.NoError(t, err)

	status, body := request(t, app, fiber.MethodGet, "/unsubscribe?token="+url.QueryEscape(token), "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, "leave@example.com")

	status, _ = request(t, app, fiber.MethodGet, "/unsubscribe?token=forged.token", "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = request(t, app, fiber.MethodGet, "/unsubscribe", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `data-method="DELETE"`)
}
