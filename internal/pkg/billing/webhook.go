package billing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// VerifyWebhook checks the Stripe-Signature header against the endpoint
// secret and decodes the event. The event API version is not enforced so
// that account upgrades do not break delivery.
func VerifyWebhook(payload []byte, header, secret string) (stripe.Event, error) {
	if strings.TrimSpace(header) == "" {
		return stripe.Event{}, ErrMissingSignature
	}
	ev, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return ev, nil
}

// peekEvent extracts id and type from an unverified payload for auditing.
func peekEvent(payload []byte) (string, string) {
	var head struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return "", ""
	}
	return head.ID, head.Type
}
