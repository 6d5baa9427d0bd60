package controllers

import (
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/VitalPredict/app/models"
)

func TestCreateCheckout(t *testing.T) {
	ta := newTestApp(t)

	status, body := ta.do(t, fiber.MethodPost, "/api/checkout", `{"email":"buyer@example.com","quantity":2}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "cs_test_1", body["session_id"])
	assert.Contains(t, body["url"], "cs_test_1")

	payment, err := ta.repos.Payment.GetBySessionID("cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Equal(t, int64(9800), payment.Amount)
}

func TestCreateCheckoutValidation(t *testing.T) {
	ta := newTestApp(t)

	status, body := ta.do(t, fiber.MethodPost, "/api/checkout", `{"email":"nope","quantity":1}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_email", body["error"])

	status, body = ta.do(t, fiber.MethodPost, "/api/checkout", `{"email":"buyer@example.com","quantity":11}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_quantity", body["error"])

	assert.Zero(t, ta.provider.created)
}

func TestCreateCheckoutProviderFailureIsGeneric(t *testing.T) {
	ta := newTestApp(t)
	ta.provider.err = assert.AnError

	status, body := ta.do(t, fiber.MethodPost, "/api/checkout", `{"email":"buyer@example.com"}`)
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "internal_server_error", body["error"])
}

func TestSessionStatus(t *testing.T) {
	ta := newTestApp(t)

	status, body := ta.do(t, fiber.MethodGet, "/api/checkout/sessions/cs_test_42", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "cs_test_42", body["id"])
	assert.Equal(t, "paid", body["payment_status"])
}

func TestStripeWebhookWithoutSignatureIsRejectedBeforeProcessing(t *testing.T) {
	ta := newTestApp(t)

	status, body := ta.do(t, fiber.MethodPost, "/api/webhooks/stripe", checkoutCompletedEvent("evt_1", "cs_1", "a@example.com"))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "missing_signature", body["error"])

	events, err := ta.repos.WebhookEvent.All()
	require.NoError(t, err)
	assert.Empty(t, events)
	_, err = ta.repos.Payment.GetBySessionID("cs_1")
	assert.Error(t, err)
}

func TestStripeWebhookInvalidSignatureIsAudited(t *testing.T) {
	ta := newTestApp(t)

	status, body := ta.do(t, fiber.MethodPost, "/api/webhooks/stripe", checkoutCompletedEvent("evt_1", "cs_1", "a@example.com"),
		"Stripe-Signature", "t=1,v1=deadbeef")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "invalid_signature", body["error"])

	events, err := ta.repos.WebhookEvent.All()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].SignatureValid)

	_, err = ta.repos.Payment.GetBySessionID("cs_1")
	assert.Error(t, err)
}

func TestStripeWebhookProcessesOnceAndAcknowledgesDuplicates(t *testing.T) {
	ta := newTestApp(t)
	payload := checkoutCompletedEvent("evt_paid", "cs_paid", "Buyer@Example.com")

	status, body := ta.do(t, fiber.MethodPost, "/api/webhooks/stripe", payload, "Stripe-Signature", signWebhook(payload))
	require.Equal(t, fiber.StatusOK, status)
	assert.Nil(t, body["duplicate"])

	payment, err := ta.repos.Payment.GetBySessionID("cs_paid")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, payment.Status)

	sub, err := ta.repos.Subscriber.GetByEmail("buyer@example.com")
	require.NoError(t, err)
	assert.True(t, sub.HasPurchased)

	status, body = ta.do(t, fiber.MethodPost, "/api/webhooks/stripe", payload, "Stripe-Signature", signWebhook(payload))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])

	events, err := ta.repos.WebhookEvent.All()
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestStripeWebhookIgnoresUnhandledTypes(t *testing.T) {
	ta := newTestApp(t)
	payload := `{"id":"evt_other","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`

	status, body := ta.do(t, fiber.MethodPost, "/api/webhooks/stripe", payload, "Stripe-Signature", signWebhook(payload))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["ignored"])
}
