package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusExpired  = "expired"
	PaymentStatusRefunded = "refunded"
)

// Payment mirrors a one-time checkout at the payment provider.
// Amount is stored in the currency's minor unit (cents).
type Payment struct {
	ID                    uint              `gorm:"primaryKey" json:"id"`
	Email                 string            `gorm:"type:varchar(254);not null;index" json:"email"`
	StripeCustomerID      string            `gorm:"type:varchar(191);default:'';index" json:"stripe_customer_id"`
	StripeSessionID       string            `gorm:"type:varchar(191);not null;uniqueIndex" json:"stripe_session_id"`
	StripePaymentIntentID string            `gorm:"type:varchar(191);default:'';index" json:"stripe_payment_intent_id"`
	Amount                int64             `gorm:"not null;default:0" json:"amount"`
	Currency              string            `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Status                string            `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	PaymentMethod         string            `gorm:"type:varchar(50);default:''" json:"payment_method"`
	Metadata              datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt             time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsFinal reports whether no further provider event is expected to change the status.
func (p *Payment) IsFinal() bool {
	switch p.Status {
	case PaymentStatusRefunded, PaymentStatusExpired:
		return true
	default:
		return false
	}
}
