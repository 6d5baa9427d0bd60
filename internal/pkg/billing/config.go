package billing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ManuelReschke/VitalPredict/internal/pkg/env"
)

const (
	DefaultPriceCents  = 4900
	DefaultCurrency    = "usd"
	DefaultProductName = "VitalPredict AI Pre-Sale"
	MaxQuantity        = 10
)

var currencyPattern = regexp.MustCompile(`^[a-z]{3}$`)

// Config holds the pre-sale offer and Stripe credentials.
type Config struct {
	SecretKey     string
	WebhookSecret string
	PriceCents    int64
	Currency      string
	ProductName   string
	PublicDomain  string
}

// LoadConfig reads STRIPE_* and PRESALE_* variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		SecretKey:     strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		PriceCents:    int64(env.GetEnvInt("PRESALE_PRICE_CENTS", DefaultPriceCents)),
		Currency:      strings.ToLower(strings.TrimSpace(env.GetEnv("PRESALE_CURRENCY", DefaultCurrency))),
		ProductName:   strings.TrimSpace(env.GetEnv("PRESALE_PRODUCT_NAME", DefaultProductName)),
		PublicDomain:  strings.TrimRight(strings.TrimSpace(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000")), "/"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.PriceCents <= 0 {
		return fmt.Errorf("PRESALE_PRICE_CENTS must be positive, got %d", c.PriceCents)
	}
	if !currencyPattern.MatchString(c.Currency) {
		return fmt.Errorf("PRESALE_CURRENCY must be a three letter ISO code, got %q", c.Currency)
	}
	if c.ProductName == "" {
		return fmt.Errorf("PRESALE_PRODUCT_NAME is required")
	}
	if c.PublicDomain == "" {
		return fmt.Errorf("PUBLIC_DOMAIN is required")
	}
	return nil
}

// CheckoutEnabled reports whether a Stripe secret key is configured.
func (c *Config) CheckoutEnabled() bool {
	return c.SecretKey != ""
}

// SuccessURL carries Stripe's session id placeholder so the landing page can poll the status.
func (c *Config) SuccessURL() string {
	return c.PublicDomain + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"
}

func (c *Config) CancelURL() string {
	return c.PublicDomain + "/checkout/cancel"
}
