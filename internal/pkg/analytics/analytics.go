package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	EventSubscribed       = "subscribed"
	EventCheckoutStarted  = "checkout_started"
	EventPaymentCompleted = "payment_completed"
)

const (
	MaxEventNameLength = 100
	MaxPropertyCount   = 50
)

var ErrInvalidEvent = errors.New("invalid analytics event")

// Event is a product analytics event forwarded to the configured providers.
type Event struct {
	Name           string                 `json:"name"`
	DistinctID     string                 `json:"distinct_id"`
	Properties     map[string]interface{} `json:"properties"`
	UserProperties map[string]interface{} `json:"user_properties,omitempty"`
}

// Tracker forwards events. Implementations log provider failures instead
// of returning them, so callers only ever see validation errors.
type Tracker interface {
	Track(ctx context.Context, ev Event) error
}

// ValidateEvent checks the name and property limits of an incoming event.
func ValidateEvent(ev Event) error {
	name := strings.TrimSpace(ev.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEvent)
	}
	if len(name) > MaxEventNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidEvent, MaxEventNameLength)
	}
	if len(ev.Properties) > MaxPropertyCount {
		return fmt.Errorf("%w: more than %d properties", ErrInvalidEvent, MaxPropertyCount)
	}
	return nil
}

type noopTracker struct{}

func (noopTracker) Track(_ context.Context, ev Event) error {
	return ValidateEvent(ev)
}

// Noop validates events and drops them.
func Noop() Tracker {
	return noopTracker{}
}
