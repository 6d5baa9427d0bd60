package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SubscriberSourceWebsite  = "website"
	SubscriberSourceCheckout = "checkout"
)

// Subscriber is an email address that opted into product updates.
// Email is stored trimmed and lower-cased, which makes the unique index
// case-insensitive regardless of the column collation.
type Subscriber struct {
	ID           uint                        `gorm:"primaryKey" json:"id"`
	Email        string                      `gorm:"type:varchar(254);not null;uniqueIndex" json:"email" validate:"required,email,max=254"`
	Source       string                      `gorm:"type:varchar(50);not null;default:'website';index" json:"source" validate:"max=50"`
	Interests    datatypes.JSONSlice[string] `gorm:"type:json" json:"interests"`
	HasPurchased bool                        `gorm:"default:false;index" json:"has_purchased"`
	Metadata     datatypes.JSONMap           `gorm:"type:json" json:"metadata"`
	CreatedAt    time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}
