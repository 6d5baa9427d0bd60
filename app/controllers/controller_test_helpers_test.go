package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/ManuelReschke/VitalPredict/app/repository"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/analytics"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/backup"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/billing"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/cache"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/subscription"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/usercontext"
)

const (
	testWebhookSecret     = "whsec_controller_test"
	testUnsubscribeSecret = "unsubscribe_controller_test"
)

type stubProvider struct {
	created int
	err     error
}

func (p *stubProvider) CreateSession(_ context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.created++
	id := fmt.Sprintf("cs_test_%d", p.created)
	return &billing.CheckoutSession{ID: id, URL: "https://checkout.stripe.com/c/pay/" + id, Status: "open", PaymentStatus: "unpaid", AmountTotal: req.UnitAmount * req.Quantity, Currency: req.Currency}, nil
}

func (p *stubProvider) GetSession(_ context.Context, id string) (*billing.CheckoutSession, error) {
	return &billing.CheckoutSession{ID: id, Status: "complete", PaymentStatus: "paid", AmountTotal: 4900, Currency: "usd"}, nil
}

type recordingTracker struct {
	events []analytics.Event
}

func (r *recordingTracker) Track(_ context.Context, ev analytics.Event) error {
	if err := analytics.ValidateEvent(ev); err != nil {
		return err
	}
	r.events = append(r.events, ev)
	return nil
}

type testApp struct {
	app      *fiber.App
	deps     *Dependencies
	repos    *repository.Repositories
	tracker  *recordingTracker
	provider *stubProvider
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db := dbtest.New(t)
	repos := repository.NewRepositories(db)
	qc := cache.NewQueryCache(cache.NewMemoryStore(), time.Minute)
	tracker := &recordingTracker{}
	provider := &stubProvider{}

	subs := subscription.NewService(repos.Subscriber, qc, subscription.WithUnsubscribeSecret(testUnsubscribeSecret))
	bill := billing.NewService(&billing.Config{
		SecretKey:     "sk_test",
		WebhookSecret: testWebhookSecret,
		PriceCents:    4900,
		Currency:      "usd",
		ProductName:   "VitalPredict AI Pre-Sale",
		PublicDomain:  "https://vitalpredict.test",
	}, billing.Deps{
		Provider:    provider,
		Payments:    repos.Payment,
		Events:      repos.WebhookEvent,
		Subscribers: subs,
		Cache:       qc,
		Tracker:     tracker,
	})
	backupCfg := &backup.Config{KeyPrefix: "backups", LocalDir: t.TempDir(), WebhookRetentionDays: 90}

	deps := &Dependencies{
		Repos:         repos,
		Cache:         qc,
		Subscriptions: subs,
		Billing:       bill,
		Tracker:       tracker,
		Backup:        backup.NewService(db, repos, &backup.LocalUploader{Dir: backupCfg.LocalDir}, qc, backupCfg),
		PingDB:        func() error { return nil },
	}

	app := fiber.New()
	sc := NewSubscribeController(deps)
	cc := NewCheckoutController(deps)
	ac := NewAdminController(deps)

	app.Get("/api/health", HandleHealthWith(deps))
	app.Post("/api/subscribe", sc.HandleSubscribe)
	app.Delete("/api/subscribe", sc.HandleUnsubscribe)
	app.Get("/api/subscribers/count", sc.HandleSubscriberCount)
	app.Post("/api/checkout", cc.HandleCreateCheckout)
	app.Get("/api/checkout/sessions/:id", cc.HandleSessionStatus)
	app.Post("/api/webhooks/stripe", cc.HandleStripeWebhook)
	app.Post("/api/analytics/events", HandleTrackEventWith(deps))

	admin := app.Group("/api/admin", func(c *fiber.Ctx) error {
		usercontext.Set(c, usercontext.UserContext{Email: "ops@example.com", IsLoggedIn: true, IsAdmin: true, AuthMethod: usercontext.AuthMethodBasic})
		return c.Next()
	})
	admin.Get("/users", ac.HandleUsers)
	admin.Get("/roles", ac.HandleRoles)
	admin.Post("/users/:id/roles", ac.HandleAssignRole)
	admin.Delete("/users/:id/roles/:role", ac.HandleRemoveRole)
	admin.Get("/subscribers", ac.HandleSubscribers)
	admin.Get("/stats", ac.HandleStats)
	admin.Post("/backup", ac.HandleBackup)
	admin.Get("/backups", ac.HandleBackups)
	admin.Post("/maintenance", ac.HandleMaintenance)

	return &testApp{app: app, deps: deps, repos: repos, tracker: tracker, provider: provider}
}

func (ta *testApp) do(t *testing.T, method, path, body string, headers ...string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func signWebhook(payload string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	}).Header
}

func checkoutCompletedEvent(eventID, sessionID, email string) string {
	return fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "api_version": "2020-08-27",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": %q,
    "object": "checkout.session",
    "status": "complete",
    "payment_status": "paid",
    "customer_details": {"email": %q},
    "payment_intent": "pi_ctrl",
    "amount_total": 4900,
    "currency": "usd"
  }}
}`, eventID, sessionID, email)
}
