package controllers

import (
	"context"

	"github.com/ManuelReschke/VitalPredict/app/repository"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/analytics"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/backup"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/billing"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/cache"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/hcaptcha"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/subscription"
)

// Dependencies bundles the services the HTTP handlers call into.
type Dependencies struct {
	Repos         *repository.Repositories
	Cache         *cache.QueryCache
	Subscriptions *subscription.Service
	Billing       *billing.Service
	Tracker       analytics.Tracker
	Backup        *backup.Service
	// Captcha is nil when signup protection is disabled.
	Captcha *hcaptcha.Verifier

	PingDB    func() error
	PingCache func(ctx context.Context) error
}
