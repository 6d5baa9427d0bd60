package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/VitalPredict/internal/pkg/analytics"
)

type analyticsRequest struct {
	Name       string                 `json:"name"`
	DistinctID string                 `json:"distinct_id"`
	Properties map[string]interface{} `json:"properties"`
}

// HandleTrackEventWith forwards a browser analytics event. Delivery is best
// effort, so the request is acknowledged with 202 once validated.
func HandleTrackEventWith(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req analyticsRequest
		if err := c.BodyParser(&req); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Request body could not be parsed")
		}

		ev := analytics.Event{
			Name:       req.Name,
			DistinctID: req.DistinctID,
			Properties: req.Properties,
		}
		if ev.Properties == nil {
			ev.Properties = map[string]interface{}{}
		}
		if len(ev.Properties) < analytics.MaxPropertyCount {
			ev.Properties["ip"] = c.IP()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := deps.Tracker.Track(ctx, ev); err != nil {
			if errors.Is(err, analytics.ErrInvalidEvent) {
				return jsonError(c, fiber.StatusBadRequest, "invalid_event", err.Error())
			}
			return internalError(c)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"ok": true})
	}
}
