package repository

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/VitalPredict/app/models"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

func (r *paymentRepository) GetBySessionID(sessionID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("stripe_session_id = ?", sessionID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) GetByPaymentIntentID(paymentIntentID string) (*models.Payment, error) {
	if strings.TrimSpace(paymentIntentID) == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var p models.Payment
	err := r.db.Where("stripe_payment_intent_id = ?", paymentIntentID).Order("id DESC").First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) Upsert(payment *models.Payment) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email",
			"stripe_customer_id",
			"stripe_payment_intent_id",
			"amount",
			"currency",
			"status",
			"payment_method",
			"metadata",
			"updated_at",
		}),
	}).Create(payment).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("stripe_session_id = ?", payment.StripeSessionID).First(payment).Error
}

func (r *paymentRepository) Update(payment *models.Payment) error {
	return r.db.Save(payment).Error
}

type statusCount struct {
	Status string
	Total  int64
}

func (r *paymentRepository) CountByStatus() (map[string]int64, error) {
	var rows []statusCount
	err := r.db.Model(&models.Payment{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}

type currencySum struct {
	Currency string
	Total    int64
}

// RevenueByCurrency sums the amount of paid payments per currency.
func (r *paymentRepository) RevenueByCurrency() (map[string]int64, error) {
	var rows []currencySum
	err := r.db.Model(&models.Payment{}).
		Select("currency, COALESCE(SUM(amount), 0) AS total").
		Where("status = ?", models.PaymentStatusPaid).
		Group("currency").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Currency] = row.Total
	}
	return out, nil
}

func (r *paymentRepository) All() ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Order("id ASC").Find(&payments).Error
	return payments, err
}
