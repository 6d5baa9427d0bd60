package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/ManuelReschke/VitalPredict/app/models"
	"github.com/ManuelReschke/VitalPredict/app/repository"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/cache"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/subscription"
)

const testWebhookSecret = "whsec_test_secret"

type fakeProvider struct {
	requests []CheckoutRequest
	err      error
	sessions map[string]*CheckoutSession
}

func (f *fakeProvider) CreateSession(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	id := fmt.Sprintf("cs_test_%d", len(f.requests))
	return &CheckoutSession{ID: id, URL: "https://checkout.stripe.com/c/pay/" + id, AmountTotal: req.UnitAmount * req.Quantity, Currency: req.Currency}, nil
}

func (f *fakeProvider) GetSession(_ context.Context, id string) (*CheckoutSession, error) {
	if s, ok := f.sessions[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: no such session", ErrProvider)
}

type testEnv struct {
	svc      *Service
	repos    *repository.Repositories
	provider *fakeProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repos := repository.NewRepositories(dbtest.New(t))
	qc := cache.NewQueryCache(cache.NewMemoryStore(), time.Minute)
	provider := &fakeProvider{sessions: map[string]*CheckoutSession{}}
	cfg := &Config{
		SecretKey:     "sk_test",
		WebhookSecret: testWebhookSecret,
		PriceCents:    4900,
		Currency:      "usd",
		ProductName:   "VitalPredict AI Pre-Sale",
		PublicDomain:  "https://vitalpredict.test",
	}
	svc := NewService(cfg, Deps{
		Provider:    provider,
		Payments:    repos.Payment,
		Events:      repos.WebhookEvent,
		Subscribers: subscription.NewService(repos.Subscriber, qc),
		Cache:       qc,
	})
	return &testEnv{svc: svc, repos: repos, provider: provider}
}

func signedPayload(t *testing.T, payload string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func sessionEvent(eventID, eventType, sessionID, paymentStatus string) string {
	return fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "api_version": "2020-08-27",
  "type": %q,
  "data": {
    "object": {
      "id": %q,
      "object": "checkout.session",
      "payment_status": %q,
      "status": "complete",
      "customer_details": {"email": "Buyer@Example.com"},
      "customer": "cus_123",
      "payment_intent": "pi_123",
      "amount_total": 9800,
      "currency": "usd",
      "payment_method_types": ["card"]
    }
  }
}`, eventID, eventType, sessionID, paymentStatus)
}

func TestCreateCheckoutPersistsPendingPayment(t *testing.T) {
	e := newTestEnv(t)

	res, err := e.svc.CreateCheckout(context.Background(), CheckoutInput{Email: " Buyer@Example.com ", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", res.SessionID)
	assert.Contains(t, res.URL, "cs_test_1")

	require.Len(t, e.provider.requests, 1)
	req := e.provider.requests[0]
	assert.Equal(t, "buyer@example.com", req.Email)
	assert.Equal(t, int64(2), req.Quantity)
	assert.Equal(t, int64(4900), req.UnitAmount)
	assert.Equal(t, "https://vitalpredict.test/checkout/success?session_id={CHECKOUT_SESSION_ID}", req.SuccessURL)

	p, err := e.repos.Payment.GetBySessionID("cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, p.Status)
	assert.Equal(t, int64(9800), p.Amount)
}

func TestCreateCheckoutValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.svc.CreateCheckout(ctx, CheckoutInput{Email: "nope"})
	assert.ErrorIs(t, err, subscription.ErrInvalidEmail)

	_, err = e.svc.CreateCheckout(ctx, CheckoutInput{Email: "a@example.com", Quantity: 11})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = e.svc.CreateCheckout(ctx, CheckoutInput{Email: "a@example.com", Quantity: -1})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	assert.Empty(t, e.provider.requests)
}

func TestCreateCheckoutProviderFailure(t *testing.T) {
	e := newTestEnv(t)
	e.provider.err = fmt.Errorf("%w: card_declined", ErrProvider)

	_, err := e.svc.CreateCheckout(context.Background(), CheckoutInput{Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrProvider)

	counts, err := e.repos.Payment.CountByStatus()
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestCreateCheckoutWithoutProvider(t *testing.T) {
	e := newTestEnv(t)
	e.svc.provider = nil

	_, err := e.svc.CreateCheckout(context.Background(), CheckoutInput{Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSessionStatus(t *testing.T) {
	e := newTestEnv(t)
	e.provider.sessions["cs_known"] = &CheckoutSession{ID: "cs_known", Status: "complete", PaymentStatus: "paid"}

	s, err := e.svc.SessionStatus(context.Background(), "cs_known")
	require.NoError(t, err)
	assert.Equal(t, "paid", s.PaymentStatus)

	_, err = e.svc.SessionStatus(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestWebhookWithoutSignatureIsRejectedBeforeProcessing(t *testing.T) {
	e := newTestEnv(t)
	payload := sessionEvent("evt_1", "checkout.session.completed", "cs_1", "paid")

	_, err := e.svc.HandleStripeWebhook(context.Background(), []byte(payload), "")
	assert.ErrorIs(t, err, ErrMissingSignature)

	events, err := e.repos.WebhookEvent.All()
	require.NoError(t, err)
	assert.Empty(t, events)
	_, err = e.repos.Payment.GetBySessionID("cs_1")
	assert.Error(t, err)
}

func TestWebhookInvalidSignatureIsAuditedNotApplied(t *testing.T) {
	e := newTestEnv(t)
	payload := sessionEvent("evt_1", "checkout.session.completed", "cs_1", "paid")

	_, err := e.svc.HandleStripeWebhook(context.Background(), []byte(payload), "t=123,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	events, err := e.repos.WebhookEvent.All()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].SignatureValid)
	assert.NotNil(t, events[0].ProcessedAt)
	assert.NotEmpty(t, events[0].ProcessingError)

	_, err = e.repos.Payment.GetBySessionID("cs_1")
	assert.Error(t, err)

	// a later genuine delivery with the same id is still applied
	out, err := e.svc.HandleStripeWebhook(context.Background(), []byte(payload), signedPayload(t, payload))
	require.NoError(t, err)
	assert.False(t, out.Duplicate)
}

func TestWebhookCompletedMarksPaidAndDeduplicates(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, err := e.svc.CreateCheckout(ctx, CheckoutInput{Email: "buyer@example.com", Quantity: 2})
	require.NoError(t, err)

	payload := sessionEvent("evt_1", "checkout.session.completed", "cs_test_1", "paid")
	out, err := e.svc.HandleStripeWebhook(ctx, []byte(payload), signedPayload(t, payload))
	require.NoError(t, err)
	assert.False(t, out.Duplicate)
	assert.False(t, out.Ignored)

	p, err := e.repos.Payment.GetBySessionID("cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, p.Status)
	assert.Equal(t, "pi_123", p.StripePaymentIntentID)
	assert.Equal(t, "cus_123", p.StripeCustomerID)
	assert.Equal(t, "card", p.PaymentMethod)

	sub, err := e.repos.Subscriber.GetByEmail("buyer@example.com")
	require.NoError(t, err)
	assert.True(t, sub.HasPurchased)

	out, err = e.svc.HandleStripeWebhook(ctx, []byte(payload), signedPayload(t, payload))
	require.NoError(t, err)
	assert.True(t, out.Duplicate)

	events, err := e.repos.WebhookEvent.All()
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestWebhookStatusTransitions(t *testing.T) {
	cases := []struct {
		name      string
		eventType string
		payStatus string
		want      string
	}{
		{"completed unpaid stays pending", "checkout.session.completed", "unpaid", models.PaymentStatusPending},
		{"async succeeded", "checkout.session.async_payment_succeeded", "paid", models.PaymentStatusPaid},
		{"async failed", "checkout.session.async_payment_failed", "unpaid", models.PaymentStatusFailed},
		{"expired", "checkout.session.expired", "unpaid", models.PaymentStatusExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEnv(t)
			payload := sessionEvent("evt_"+tc.eventType, tc.eventType, "cs_x", tc.payStatus)
			_, err := e.svc.HandleStripeWebhook(context.Background(), []byte(payload), signedPayload(t, payload))
			require.NoError(t, err)

			p, err := e.repos.Payment.GetBySessionID("cs_x")
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.Status)
		})
	}
}

func TestWebhookLateEventDoesNotDowngradePaid(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	paid := sessionEvent("evt_paid", "checkout.session.completed", "cs_x", "paid")
	_, err := e.svc.HandleStripeWebhook(ctx, []byte(paid), signedPayload(t, paid))
	require.NoError(t, err)

	expired := sessionEvent("evt_expired", "checkout.session.expired", "cs_x", "unpaid")
	_, err = e.svc.HandleStripeWebhook(ctx, []byte(expired), signedPayload(t, expired))
	require.NoError(t, err)

	p, err := e.repos.Payment.GetBySessionID("cs_x")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, p.Status)
}

func TestWebhookChargeRefunded(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	paid := sessionEvent("evt_paid", "checkout.session.completed", "cs_x", "paid")
	_, err := e.svc.HandleStripeWebhook(ctx, []byte(paid), signedPayload(t, paid))
	require.NoError(t, err)

	refund := `{"id":"evt_refund","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge","payment_intent":"pi_123","refunded":true,"amount_refunded":9800}}}`
	_, err = e.svc.HandleStripeWebhook(ctx, []byte(refund), signedPayload(t, refund))
	require.NoError(t, err)

	p, err := e.repos.Payment.GetBySessionID("cs_x")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, p.Status)
}

func TestWebhookPaymentIntentFailed(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	pending := sessionEvent("evt_pending", "checkout.session.completed", "cs_x", "unpaid")
	_, err := e.svc.HandleStripeWebhook(ctx, []byte(pending), signedPayload(t, pending))
	require.NoError(t, err)

	failed := `{"id":"evt_pi","object":"event","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_123","object":"payment_intent","status":"requires_payment_method"}}}`
	_, err = e.svc.HandleStripeWebhook(ctx, []byte(failed), signedPayload(t, failed))
	require.NoError(t, err)

	p, err := e.repos.Payment.GetBySessionID("cs_x")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, p.Status)
}

func TestWebhookUnknownEventIsIgnoredButAudited(t *testing.T) {
	e := newTestEnv(t)
	payload := `{"id":"evt_misc","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`

	out, err := e.svc.HandleStripeWebhook(context.Background(), []byte(payload), signedPayload(t, payload))
	require.NoError(t, err)
	assert.True(t, out.Ignored)

	events, err := e.repos.WebhookEvent.All()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].SignatureValid)
	assert.Equal(t, "customer.created", events[0].EventType)
}

func TestWebhookNotConfigured(t *testing.T) {
	e := newTestEnv(t)
	e.svc.cfg.WebhookSecret = ""

	_, err := e.svc.HandleStripeWebhook(context.Background(), []byte(`{}`), "t=1,v1=aa")
	assert.True(t, errors.Is(err, ErrNotConfigured))
}
