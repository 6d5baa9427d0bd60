package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/VitalPredict/internal/pkg/analytics"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/metrics"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/subscription"
)

type subscribeRequest struct {
	Email        string                 `json:"email" form:"email"`
	Source       string                 `json:"source" form:"source"`
	Interests    []string               `json:"interests" form:"interests"`
	Metadata     map[string]interface{} `json:"metadata"`
	CaptchaToken string                 `json:"h-captcha-response" form:"h-captcha-response"`
}

type unsubscribeRequest struct {
	Email string `json:"email" form:"email"`
	Token string `json:"token" form:"token"`
}

// SubscribeController handles email signups.
type SubscribeController struct {
	deps *Dependencies
}

func NewSubscribeController(deps *Dependencies) *SubscribeController {
	return &SubscribeController{deps: deps}
}

// HandleSubscribe stores a new signup. 201 on success, 409 for a known address.
func (sc *SubscribeController) HandleSubscribe(c *fiber.Ctx) error {
	var req subscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Request body could not be parsed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if sc.deps.Captcha != nil {
		if ok, err := sc.deps.Captcha.Verify(ctx, strings.TrimSpace(req.CaptchaToken)); !ok {
			log.Infof("[Subscribe] captcha rejected: %v", err)
			metrics.Signup("captcha_failed")
			return jsonError(c, fiber.StatusBadRequest, "captcha_failed", "Please complete the captcha")
		}
	}

	sub, err := sc.deps.Subscriptions.Subscribe(ctx, subscription.SubscribeInput{
		Email:     req.Email,
		Source:    req.Source,
		Interests: req.Interests,
		Metadata:  req.Metadata,
	})
	switch {
	case errors.Is(err, subscription.ErrInvalidEmail):
		metrics.Signup("invalid")
		return jsonError(c, fiber.StatusBadRequest, "invalid_email", "Please enter a valid email address")
	case errors.Is(err, subscription.ErrAlreadySubscribed):
		metrics.Signup("duplicate")
		return jsonError(c, fiber.StatusConflict, "already_subscribed", "This email is already subscribed")
	case err != nil:
		log.Errorf("[Subscribe] signup failed: %v", err)
		metrics.Signup("error")
		return internalError(c)
	}

	metrics.Signup("created")
	_ = sc.deps.Tracker.Track(ctx, analytics.Event{
		Name:       analytics.EventSubscribed,
		DistinctID: sub.Email,
		Properties: map[string]interface{}{"source": sub.Source},
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "subscriber": sub})
}

// HandleUnsubscribe removes a subscriber only with a signed token. A bare
// email gets a link mailed to it and the same 202 whether or not it is known.
func (sc *SubscribeController) HandleUnsubscribe(c *fiber.Ctx) error {
	var req unsubscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Request body could not be parsed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if token := strings.TrimSpace(req.Token); token != "" {
		_, err := sc.deps.Subscriptions.UnsubscribeWithToken(ctx, token)
		switch {
		case err == nil, errors.Is(err, subscription.ErrNotFound):
			return c.JSON(fiber.Map{"ok": true})
		case errors.Is(err, subscription.ErrInvalidToken):
			return jsonError(c, fiber.StatusBadRequest, "invalid_token", "This unsubscribe link is invalid or has expired")
		default:
			log.Errorf("[Subscribe] unsubscribe failed: %v", err)
			return internalError(c)
		}
	}

	err := sc.deps.Subscriptions.RequestUnsubscribe(ctx, req.Email)
	switch {
	case errors.Is(err, subscription.ErrInvalidEmail):
		return jsonError(c, fiber.StatusBadRequest, "invalid_email", "Please enter a valid email address")
	case err != nil:
		log.Errorf("[Subscribe] unsubscribe request failed: %v", err)
		return internalError(c)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"ok":      true,
		"message": "If this address is subscribed, we sent it a link to confirm",
	})
}

// HandleSubscriberCount returns the cached number of signups for the landing page counter.
func (sc *SubscribeController) HandleSubscriberCount(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	n, err := sc.deps.Subscriptions.Count(ctx)
	if err != nil {
		log.Errorf("[Subscribe] count failed: %v", err)
		return internalError(c)
	}
	return c.JSON(fiber.Map{"count": n})
}
