package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/VitalPredict/app/models"
)

type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a webhook audit repository backed by GORM.
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

func (r *webhookEventRepository) CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *webhookEventRepository) MarkProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// DeleteProcessedBefore removes processed events received before cutoff.
// Unprocessed rows are kept for inspection regardless of age.
func (r *webhookEventRepository) DeleteProcessedBefore(cutoff time.Time) (int64, error) {
	tx := r.db.Where("processed_at IS NOT NULL AND created_at < ?", cutoff).Delete(&models.WebhookEvent{})
	return tx.RowsAffected, tx.Error
}

func (r *webhookEventRepository) All() ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.Order("id ASC").Find(&events).Error
	return events, err
}
