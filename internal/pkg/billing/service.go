package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v76"
	"gorm.io/gorm"

	"github.com/ManuelReschke/VitalPredict/app/models"
	"github.com/ManuelReschke/VitalPredict/app/repository"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/analytics"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/cache"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/subscription"
)

// PurchaseRecorder flags an email address as a buyer.
type PurchaseRecorder interface {
	MarkPurchased(ctx context.Context, email string) (*models.Subscriber, error)
}

// Service coordinates checkout sessions, payment records and webhook processing.
type Service struct {
	cfg         *Config
	provider    CheckoutProvider
	payments    repository.PaymentRepository
	events      repository.WebhookEventRepository
	subscribers PurchaseRecorder
	cache       *cache.QueryCache
	tracker     analytics.Tracker
}

type Deps struct {
	Provider    CheckoutProvider
	Payments    repository.PaymentRepository
	Events      repository.WebhookEventRepository
	Subscribers PurchaseRecorder
	Cache       *cache.QueryCache
	Tracker     analytics.Tracker
}

func NewService(cfg *Config, deps Deps) *Service {
	tracker := deps.Tracker
	if tracker == nil {
		tracker = analytics.Noop()
	}
	return &Service{
		cfg:         cfg,
		provider:    deps.Provider,
		payments:    deps.Payments,
		events:      deps.Events,
		subscribers: deps.Subscribers,
		cache:       deps.Cache,
		tracker:     tracker,
	}
}

func (s *Service) Config() *Config {
	return s.cfg
}

// CreateCheckout opens a hosted checkout session for the pre-sale offer and
// records a pending payment. A failed record write is logged and the
// session is still returned.
func (s *Service) CreateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	email := subscription.NormalizeEmail(in.Email)
	if err := subscription.ValidateEmail(email); err != nil {
		return nil, err
	}
	qty := in.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 1 || qty > MaxQuantity {
		return nil, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidQuantity, MaxQuantity)
	}
	if s.provider == nil {
		return nil, ErrNotConfigured
	}

	sess, err := s.provider.CreateSession(ctx, CheckoutRequest{
		Email:       email,
		Quantity:    qty,
		UnitAmount:  s.cfg.PriceCents,
		Currency:    s.cfg.Currency,
		ProductName: s.cfg.ProductName,
		SuccessURL:  s.cfg.SuccessURL(),
		CancelURL:   s.cfg.CancelURL(),
		Metadata: map[string]string{
			"email":    email,
			"quantity": fmt.Sprintf("%d", qty),
		},
	})
	if err != nil {
		return nil, err
	}

	amount := sess.AmountTotal
	if amount == 0 {
		amount = s.cfg.PriceCents * qty
	}
	payment := &models.Payment{
		Email:           email,
		StripeSessionID: sess.ID,
		Amount:          amount,
		Currency:        s.cfg.Currency,
		Status:          models.PaymentStatusPending,
		Metadata:        map[string]interface{}{"quantity": qty},
	}
	if err := s.payments.Create(payment); err != nil {
		log.Errorf("[Billing] persisting pending payment for session %s failed: %v", sess.ID, err)
	}

	_ = s.tracker.Track(ctx, analytics.Event{
		Name:       analytics.EventCheckoutStarted,
		DistinctID: email,
		Properties: map[string]interface{}{"quantity": qty, "amount": amount, "currency": s.cfg.Currency},
	})

	return &CheckoutResult{SessionID: sess.ID, URL: sess.URL}, nil
}

// SessionStatus fetches the current state of a checkout session from the provider.
func (s *Service) SessionStatus(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || len(sessionID) > 255 {
		return nil, ErrInvalidSession
	}
	if s.provider == nil {
		return nil, ErrNotConfigured
	}
	return s.provider.GetSession(ctx, sessionID)
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.events.CreateIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.events.MarkProcessed(webhookEventID, errMsg)
}

// HandleStripeWebhook verifies, audits and applies one Stripe delivery.
// A missing signature header is rejected before anything is stored.
func (s *Service) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) (*WebhookOutcome, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, ErrMissingSignature
	}
	if s.cfg == nil || s.cfg.WebhookSecret == "" {
		return nil, ErrNotConfigured
	}

	event, verifyErr := VerifyWebhook(payload, signature, s.cfg.WebhookSecret)
	eventID, eventType := event.ID, string(event.Type)
	if verifyErr != nil {
		eventID, eventType = peekEvent(payload)
		if eventID != "" {
			// never let an unverified delivery occupy a real event id
			eventID = "unverified:" + eventID
		}
	}

	created, stored, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.WebhookProviderStripe,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(payload),
		SignatureValid:  verifyErr == nil,
	})
	if err != nil {
		return nil, fmt.Errorf("record webhook event: %w", err)
	}
	outcome := &WebhookOutcome{EventID: eventID, EventType: eventType}

	if verifyErr != nil {
		if created {
			_ = s.MarkWebhookProcessed(ctx, stored.ID, verifyErr)
		}
		return outcome, verifyErr
	}
	if !created {
		outcome.Duplicate = true
		return outcome, nil
	}

	handled, procErr := s.ProcessEvent(ctx, event)
	outcome.Ignored = !handled
	if err := s.MarkWebhookProcessed(ctx, stored.ID, procErr); err != nil {
		log.Warnf("[Billing] marking webhook %s processed failed: %v", eventID, err)
	}
	if procErr != nil {
		return outcome, procErr
	}
	return outcome, nil
}

// ProcessEvent applies a verified event to the local payment records. It
// reports false for event types the service does not act on.
func (s *Service) ProcessEvent(ctx context.Context, event stripe.Event) (bool, error) {
	if event.Data == nil {
		return false, errors.New("event has no data")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		sess, err := decodeSession(event.Data.Raw)
		if err != nil {
			return true, err
		}
		status := models.PaymentStatusPending
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
			sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
			status = models.PaymentStatusPaid
		}
		return true, s.applySession(ctx, sess, status)

	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		sess, err := decodeSession(event.Data.Raw)
		if err != nil {
			return true, err
		}
		return true, s.applySession(ctx, sess, models.PaymentStatusPaid)

	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		sess, err := decodeSession(event.Data.Raw)
		if err != nil {
			return true, err
		}
		return true, s.applySession(ctx, sess, models.PaymentStatusFailed)

	case stripe.EventTypeCheckoutSessionExpired:
		sess, err := decodeSession(event.Data.Raw)
		if err != nil {
			return true, err
		}
		return true, s.applySession(ctx, sess, models.PaymentStatusExpired)

	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return true, fmt.Errorf("decode payment intent: %w", err)
		}
		status := models.PaymentStatusPaid
		if event.Type == stripe.EventTypePaymentIntentPaymentFailed {
			status = models.PaymentStatusFailed
		}
		return true, s.applyPaymentIntent(ctx, pi.ID, status)

	case stripe.EventTypeChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return true, fmt.Errorf("decode charge: %w", err)
		}
		return true, s.applyRefund(ctx, &ch)
	}

	return false, nil
}

func decodeSession(raw json.RawMessage) (*stripe.CheckoutSession, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	if sess.ID == "" {
		return nil, ErrInvalidSession
	}
	return &sess, nil
}

func (s *Service) applySession(ctx context.Context, raw *stripe.CheckoutSession, status string) error {
	sess := sessionFromStripe(raw)

	payment, err := s.payments.GetBySessionID(sess.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("lookup payment: %w", err)
	}
	if payment == nil {
		payment = &models.Payment{StripeSessionID: sess.ID, Currency: s.cfg.Currency}
	}
	if payment.IsFinal() || (payment.Status == models.PaymentStatusPaid && status != models.PaymentStatusPaid) {
		// late or replayed events never move a payment backwards
		return nil
	}
	wasPaid := payment.Status == models.PaymentStatusPaid

	email := subscription.NormalizeEmail(sess.Email)
	if email == "" && sess.Metadata != nil {
		email = subscription.NormalizeEmail(sess.Metadata["email"])
	}
	if email != "" {
		payment.Email = email
	}
	if sess.CustomerID != "" {
		payment.StripeCustomerID = sess.CustomerID
	}
	if sess.PaymentIntentID != "" {
		payment.StripePaymentIntentID = sess.PaymentIntentID
	}
	if sess.AmountTotal > 0 {
		payment.Amount = sess.AmountTotal
	}
	if sess.Currency != "" {
		payment.Currency = sess.Currency
	}
	if sess.PaymentMethod != "" {
		payment.PaymentMethod = sess.PaymentMethod
	}
	payment.Status = status

	if err := s.payments.Upsert(payment); err != nil {
		return fmt.Errorf("upsert payment: %w", err)
	}

	if status == models.PaymentStatusPaid && !wasPaid {
		s.onPaid(ctx, payment)
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) applyPaymentIntent(ctx context.Context, paymentIntentID, status string) error {
	payment, err := s.payments.GetByPaymentIntentID(paymentIntentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// the checkout.session events carry the same information
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup payment: %w", err)
	}
	if payment.IsFinal() || payment.Status == status || payment.Status == models.PaymentStatusPaid {
		return nil
	}
	payment.Status = status
	if err := s.payments.Update(payment); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if status == models.PaymentStatusPaid {
		s.onPaid(ctx, payment)
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) applyRefund(ctx context.Context, ch *stripe.Charge) error {
	if ch.PaymentIntent == nil || ch.PaymentIntent.ID == "" {
		return nil
	}
	payment, err := s.payments.GetByPaymentIntentID(ch.PaymentIntent.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup payment: %w", err)
	}

	if payment.Metadata == nil {
		payment.Metadata = map[string]interface{}{}
	}
	payment.Metadata["amount_refunded"] = ch.AmountRefunded
	if ch.Refunded {
		payment.Status = models.PaymentStatusRefunded
	}
	if err := s.payments.Update(payment); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) onPaid(ctx context.Context, payment *models.Payment) {
	if payment.Email == "" {
		return
	}
	if s.subscribers != nil {
		if _, err := s.subscribers.MarkPurchased(ctx, payment.Email); err != nil {
			log.Warnf("[Billing] marking %s as purchaser failed: %v", payment.Email, err)
		}
	}
	_ = s.tracker.Track(ctx, analytics.Event{
		Name:       analytics.EventPaymentCompleted,
		DistinctID: payment.Email,
		Properties: map[string]interface{}{"amount": payment.Amount, "currency": payment.Currency},
	})
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	for _, prefix := range []string{"stats:", "subscribers:"} {
		if _, err := s.cache.Clear(ctx, prefix); err != nil {
			log.Warnf("[Billing] cache clear %q failed: %v", prefix, err)
		}
	}
}
