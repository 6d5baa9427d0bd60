package billing

import "errors"

var (
	ErrNotConfigured    = errors.New("payments are not configured")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrInvalidSession   = errors.New("invalid checkout session id")
	ErrProvider         = errors.New("payment provider error")
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// CheckoutInput is the request to start a pre-sale checkout.
type CheckoutInput struct {
	Email    string
	Quantity int64
}

// CheckoutResult is returned to the browser, which redirects to URL.
type CheckoutResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// CheckoutRequest is the provider-agnostic session creation request.
type CheckoutRequest struct {
	Email       string
	Quantity    int64
	UnitAmount  int64
	Currency    string
	ProductName string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

// CheckoutSession is the normalized view of a provider checkout session.
type CheckoutSession struct {
	ID              string            `json:"id"`
	URL             string            `json:"url,omitempty"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	Email           string            `json:"email,omitempty"`
	CustomerID      string            `json:"-"`
	PaymentIntentID string            `json:"-"`
	PaymentMethod   string            `json:"-"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"-"`
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// WebhookOutcome describes how a delivery was handled.
type WebhookOutcome struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
}
