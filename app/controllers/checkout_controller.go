package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/VitalPredict/internal/pkg/billing"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/metrics"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/subscription"
)

type checkoutRequest struct {
	Email    string `json:"email" form:"email"`
	Quantity int64  `json:"quantity" form:"quantity"`
}

// CheckoutController drives the pre-sale payment flow.
type CheckoutController struct {
	deps *Dependencies
}

func NewCheckoutController(deps *Dependencies) *CheckoutController {
	return &CheckoutController{deps: deps}
}

func (cc *CheckoutController) HandleCreateCheckout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Request body could not be parsed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := cc.deps.Billing.CreateCheckout(ctx, billing.CheckoutInput{Email: req.Email, Quantity: req.Quantity})
	switch {
	case errors.Is(err, subscription.ErrInvalidEmail):
		metrics.Checkout("invalid")
		return jsonError(c, fiber.StatusBadRequest, "invalid_email", "Please enter a valid email address")
	case errors.Is(err, billing.ErrInvalidQuantity):
		metrics.Checkout("invalid")
		return jsonError(c, fiber.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, billing.ErrNotConfigured):
		metrics.Checkout("unavailable")
		return jsonError(c, fiber.StatusServiceUnavailable, "payments_unavailable", "Payments are currently unavailable")
	case err != nil:
		log.Errorf("[Checkout] create session failed: %v", err)
		metrics.Checkout("error")
		return internalError(c)
	}

	metrics.Checkout("created")
	return c.JSON(res)
}

func (cc *CheckoutController) HandleSessionStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sess, err := cc.deps.Billing.SessionStatus(ctx, c.Params("id"))
	switch {
	case errors.Is(err, billing.ErrInvalidSession):
		return jsonError(c, fiber.StatusBadRequest, "invalid_session", "Invalid session id")
	case errors.Is(err, billing.ErrNotConfigured):
		return jsonError(c, fiber.StatusServiceUnavailable, "payments_unavailable", "Payments are currently unavailable")
	case err != nil:
		log.Errorf("[Checkout] session lookup failed: %v", err)
		return internalError(c)
	}
	return c.JSON(sess)
}

// HandleStripeWebhook receives signed provider events. Deliveries without
// a Stripe-Signature header are rejected before anything is read or stored.
func (cc *CheckoutController) HandleStripeWebhook(c *fiber.Ctx) error {
	signature := c.Get("Stripe-Signature")
	if signature == "" {
		metrics.WebhookEvent("", "missing_signature")
		return jsonError(c, fiber.StatusBadRequest, "missing_signature", "Stripe-Signature header is required")
	}
	rawBody := append([]byte(nil), c.BodyRaw()...)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	out, err := cc.deps.Billing.HandleStripeWebhook(ctx, rawBody, signature)
	eventType := ""
	if out != nil {
		eventType = out.EventType
	}
	switch {
	case errors.Is(err, billing.ErrInvalidSignature):
		metrics.WebhookEvent(eventType, "invalid_signature")
		return jsonError(c, fiber.StatusUnauthorized, "invalid_signature", "Webhook signature verification failed")
	case errors.Is(err, billing.ErrNotConfigured):
		metrics.WebhookEvent(eventType, "not_configured")
		return jsonError(c, fiber.StatusServiceUnavailable, "webhook_not_configured", "Webhook secret is not configured")
	case err != nil:
		log.Errorf("[Webhook] processing %s failed: %v", eventType, err)
		metrics.WebhookEvent(eventType, "error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}

	if out.Duplicate {
		metrics.WebhookEvent(eventType, "duplicate")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if out.Ignored {
		metrics.WebhookEvent(eventType, "ignored")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}
	metrics.WebhookEvent(eventType, "processed")
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
