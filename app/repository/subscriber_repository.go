package repository

import (
	"gorm.io/gorm"

	"github.com/ManuelReschke/VitalPredict/app/models"
)

// subscriberRepository implements the SubscriberRepository interface
type subscriberRepository struct {
	db *gorm.DB
}

// NewSubscriberRepository creates a new subscriber repository instance
func NewSubscriberRepository(db *gorm.DB) SubscriberRepository {
	return &subscriberRepository{db: db}
}

func (r *subscriberRepository) Create(subscriber *models.Subscriber) error {
	return r.db.Create(subscriber).Error
}

// GetByEmail expects an already normalized address.
func (r *subscriberRepository) GetByEmail(email string) (*models.Subscriber, error) {
	var s models.Subscriber
	err := r.db.Where("email = ?", email).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *subscriberRepository) Update(subscriber *models.Subscriber) error {
	return r.db.Save(subscriber).Error
}

func (r *subscriberRepository) DeleteByEmail(email string) (int64, error) {
	tx := r.db.Where("email = ?", email).Delete(&models.Subscriber{})
	return tx.RowsAffected, tx.Error
}

// List retrieves a paginated list of subscribers, newest first
func (r *subscriberRepository) List(offset, limit int) ([]models.Subscriber, error) {
	var subs []models.Subscriber
	err := r.db.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&subs).Error
	return subs, err
}

func (r *subscriberRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Subscriber{}).Count(&count).Error
	return count, err
}

func (r *subscriberRepository) CountPurchased() (int64, error) {
	var count int64
	err := r.db.Model(&models.Subscriber{}).Where("has_purchased = ?", true).Count(&count).Error
	return count, err
}

func (r *subscriberRepository) All() ([]models.Subscriber, error) {
	var subs []models.Subscriber
	err := r.db.Order("id ASC").Find(&subs).Error
	return subs, err
}
