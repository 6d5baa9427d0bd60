package subscription

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/VitalPredict/app/models"
	"github.com/ManuelReschke/VitalPredict/app/repository"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/cache"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/mail"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/security"
)

var (
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrAlreadySubscribed = errors.New("email already subscribed")
	ErrNotFound          = errors.New("subscriber not found")
	ErrInvalidToken      = errors.New("invalid unsubscribe token")
)

const (
	CacheKeyCount   = "subscribers:count"
	cachePrefix     = "subscribers:"
	statsPrefix     = "stats:"
	maxInterests    = 20
	maxInterestLen  = 50
	maxSourceLength = 50

	UnsubscribeTokenTTL = 365 * 24 * time.Hour
)

var validate = validator.New()

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail reports ErrInvalidEmail for anything that is not a single
// RFC 5322 address of at most 254 characters.
func ValidateEmail(email string) error {
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return nil
}

type SubscribeInput struct {
	Email     string
	Source    string
	Interests []string
	Metadata  map[string]interface{}
}

// Service handles email signups.
type Service struct {
	repo    repository.SubscriberRepository
	cache   *cache.QueryCache
	mailer  mail.Mailer
	product string
	baseURL string
	// tokenSecret signs one-click unsubscribe links; empty disables them.
	tokenSecret string
}

type Option func(*Service)

// WithMailer enables the welcome mail after a successful signup.
func WithMailer(m mail.Mailer, product, baseURL string) Option {
	return func(s *Service) {
		s.mailer = m
		s.product = product
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithUnsubscribeSecret signs the unsubscribe link in outgoing mail.
func WithUnsubscribeSecret(secret string) Option {
	return func(s *Service) {
		s.tokenSecret = secret
	}
}

func NewService(repo repository.SubscriberRepository, qc *cache.QueryCache, opts ...Option) *Service {
	s := &Service{repo: repo, cache: qc, product: "VitalPredict AI"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe stores a new subscriber. An address that exists in any casing
// yields ErrAlreadySubscribed and no second row.
func (s *Service) Subscribe(ctx context.Context, in SubscribeInput) (*models.Subscriber, error) {
	email := NormalizeEmail(in.Email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByEmail(email)
	if err == nil && existing != nil {
		return nil, ErrAlreadySubscribed
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup subscriber: %w", err)
	}

	sub := &models.Subscriber{
		Email:     email,
		Source:    normalizeSource(in.Source),
		Interests: NormalizeInterests(in.Interests),
		Metadata:  in.Metadata,
	}
	if err := s.repo.Create(sub); err != nil {
		// lost a race against a concurrent signup of the same address
		if _, lookupErr := s.repo.GetByEmail(email); lookupErr == nil {
			return nil, ErrAlreadySubscribed
		}
		return nil, fmt.Errorf("create subscriber: %w", err)
	}

	s.invalidate(ctx)
	s.sendWelcome(sub.Email)
	return sub, nil
}

// MarkPurchased flags the address as a buyer, creating the subscriber if needed.
func (s *Service) MarkPurchased(ctx context.Context, email string) (*models.Subscriber, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	sub, err := s.repo.GetByEmail(email)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		sub = &models.Subscriber{
			Email:        email,
			Source:       models.SubscriberSourceCheckout,
			HasPurchased: true,
		}
		if err := s.repo.Create(sub); err != nil {
			return nil, fmt.Errorf("create subscriber: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("lookup subscriber: %w", err)
	default:
		if sub.HasPurchased {
			return sub, nil
		}
		sub.HasPurchased = true
		if err := s.repo.Update(sub); err != nil {
			return nil, fmt.Errorf("update subscriber: %w", err)
		}
	}

	s.invalidate(ctx)
	return sub, nil
}

func (s *Service) Unsubscribe(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return err
	}
	n, err := s.repo.DeleteByEmail(email)
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.invalidate(ctx)
	return nil
}

// UnsubscribeWithToken removes the address a signed unsubscribe link was
// issued for.
func (s *Service) UnsubscribeWithToken(ctx context.Context, token string) (string, error) {
	if s.tokenSecret == "" {
		return "", ErrInvalidToken
	}
	claims, err := security.VerifyUnsubscribeToken(token, s.tokenSecret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.Email, s.Unsubscribe(ctx, claims.Email)
}

// RequestUnsubscribe mails a signed unsubscribe link to a known address.
// Unknown addresses get the same result as known ones.
func (s *Service) RequestUnsubscribe(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return err
	}
	_, err := s.repo.GetByEmail(email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup subscriber: %w", err)
	}
	if s.mailer == nil || s.tokenSecret == "" {
		log.Warnf("[Subscription] unsubscribe requested for %s but mail links are not configured", email)
		return nil
	}

	body, err := mail.UnsubscribeMail(s.product, s.UnsubscribeURL(email))
	if err != nil {
		return fmt.Errorf("render unsubscribe mail: %w", err)
	}
	if err := s.mailer.Send(email, "Unsubscribe from "+s.product, body); err != nil {
		log.Warnf("[Subscription] unsubscribe mail to %s failed: %v", email, err)
	}
	return nil
}

// UnsubscribeURL is the link placed in mails. Without a signing secret it
// points at the page where a signed link can be requested.
func (s *Service) UnsubscribeURL(email string) string {
	if s.tokenSecret != "" {
		token, err := security.GenerateUnsubscribeToken(email, UnsubscribeTokenTTL, s.tokenSecret)
		if err == nil {
			return s.baseURL + "/unsubscribe?token=" + url.QueryEscape(token)
		}
		log.Warnf("[Subscription] signing unsubscribe link failed: %v", err)
	}
	return s.baseURL + "/unsubscribe"
}

// Count returns the number of subscribers, served from the query cache.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return cache.Cached(ctx, s.cache, CacheKeyCount, func(context.Context) (int64, error) {
		return s.repo.Count()
	})
}

// List returns one page of subscribers and the total count.
func (s *Service) List(ctx context.Context, page, perPage int) ([]models.Subscriber, int64, error) {
	total, err := s.repo.Count()
	if err != nil {
		return nil, 0, err
	}
	subs, err := s.repo.List((page-1)*perPage, perPage)
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	for _, prefix := range []string{cachePrefix, statsPrefix} {
		if _, err := s.cache.Clear(ctx, prefix); err != nil {
			log.Warnf("[Subscription] cache clear %q failed: %v", prefix, err)
		}
	}
}

func (s *Service) sendWelcome(email string) {
	if s.mailer == nil {
		return
	}
	body, err := mail.WelcomeMail(s.product, s.UnsubscribeURL(email))
	if err != nil {
		log.Errorf("[Subscription] render welcome mail: %v", err)
		return
	}
	if err := s.mailer.Send(email, "Welcome to "+s.product, body); err != nil {
		log.Warnf("[Subscription] welcome mail to %s failed: %v", email, err)
	}
}

// NormalizeInterests trims, lower-cases and de-duplicates interest tags,
// preserving first-seen order.
func NormalizeInterests(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag == "" || len(tag) > maxInterestLen {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
		if len(out) == maxInterests {
			break
		}
	}
	return out
}

func normalizeSource(source string) string {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		return models.SubscriberSourceWebsite
	}
	return truncateRunes(source, maxSourceLength)
}

// truncateRunes cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
