package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/VitalPredict/internal/pkg/env"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/subscription"
)

// PageController renders the public landing pages.
type PageController struct {
	deps *Dependencies
}

func NewPageController(deps *Dependencies) *PageController {
	return &PageController{deps: deps}
}

func (pc *PageController) baseData(title string) fiber.Map {
	data := fiber.Map{
		"Title":  title,
		"IsDev":  env.IsDev(),
		"Domain": env.GetEnv("PUBLIC_DOMAIN", ""),
	}
	if pc.deps.Captcha != nil {
		data["HCaptchaSiteKey"] = env.GetEnv("HCAPTCHA_SITEKEY", "")
	}
	if cfg := pc.deps.Billing.Config(); cfg != nil {
		data["PriceCents"] = cfg.PriceCents
		data["Price"] = formatPrice(cfg.PriceCents)
		data["Currency"] = cfg.Currency
		data["ProductName"] = cfg.ProductName
		data["CheckoutEnabled"] = cfg.CheckoutEnabled()
	}
	return data
}

func (pc *PageController) HandleIndex(c *fiber.Ctx) error {
	data := pc.baseData("VitalPredict AI")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if n, err := pc.deps.Subscriptions.Count(ctx); err == nil {
		data["SubscriberCount"] = n
	} else {
		log.Warnf("[Pages] subscriber count unavailable: %v", err)
	}

	return c.Render("index", data, "layouts/main")
}

func (pc *PageController) HandlePricing(c *fiber.Ctx) error {
	return c.Render("pricing", pc.baseData("Pricing | VitalPredict AI"), "layouts/main")
}

// HandleCheckoutSuccess shows the thank-you page. The session is looked up
// for display only; fulfilment happens through the webhook.
func (pc *PageController) HandleCheckoutSuccess(c *fiber.Ctx) error {
	data := pc.baseData("Thank you | VitalPredict AI")

	if sessionID := c.Query("session_id"); sessionID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		sess, err := pc.deps.Billing.SessionStatus(ctx, sessionID)
		if err != nil {
			log.Warnf("[Pages] checkout session %s lookup failed: %v", sessionID, err)
		} else {
			data["Session"] = sess
		}
	}

	return c.Render("checkout_success", data, "layouts/main")
}

func (pc *PageController) HandleCheckoutCancel(c *fiber.Ctx) error {
	return c.Render("checkout_cancel", pc.baseData("Checkout cancelled | VitalPredict AI"), "layouts/main")
}

// HandleUnsubscribeLink processes the one-click link from outgoing mail.
// Without a token it shows the form for requesting such a link.
func (pc *PageController) HandleUnsubscribeLink(c *fiber.Ctx) error {
	data := pc.baseData("Unsubscribe | VitalPredict AI")

	token := c.Query("token")
	if token == "" {
		data["RequestForm"] = true
		return c.Render("unsubscribe", data, "layouts/main")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	email, err := pc.deps.Subscriptions.UnsubscribeWithToken(ctx, token)
	switch {
	case err == nil, errors.Is(err, subscription.ErrNotFound):
		data["Email"] = email
		data["Unsubscribed"] = true
		return c.Render("unsubscribe", data, "layouts/main")
	case errors.Is(err, subscription.ErrInvalidToken):
		data["Invalid"] = true
		return c.Status(fiber.StatusBadRequest).Render("unsubscribe", data, "layouts/main")
	default:
		log.Errorf("[Pages] unsubscribe link failed: %v", err)
		data["Failed"] = true
		return c.Status(fiber.StatusInternalServerError).Render("unsubscribe", data, "layouts/main")
	}
}

func formatPrice(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
