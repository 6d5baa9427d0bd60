package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/VitalPredict/app/models"
)

// SubscriberRepository defines the interface for subscriber-related database operations
type SubscriberRepository interface {
	Create(subscriber *models.Subscriber) error
	GetByEmail(email string) (*models.Subscriber, error)
	Update(subscriber *models.Subscriber) error
	DeleteByEmail(email string) (int64, error)
	List(offset, limit int) ([]models.Subscriber, error)
	Count() (int64, error)
	CountPurchased() (int64, error)
	All() ([]models.Subscriber, error)
}

// PaymentRepository defines the interface for payment-related database operations
type PaymentRepository interface {
	Create(payment *models.Payment) error
	GetBySessionID(sessionID string) (*models.Payment, error)
	GetByPaymentIntentID(paymentIntentID string) (*models.Payment, error)
	// Upsert inserts or updates the row identified by StripeSessionID.
	Upsert(payment *models.Payment) error
	Update(payment *models.Payment) error
	CountByStatus() (map[string]int64, error)
	RevenueByCurrency() (map[string]int64, error)
	All() ([]models.Payment, error)
}

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	TouchAPIKey(id uint, at time.Time) error
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string, offset, limit int) ([]models.User, int64, error)
	All() ([]models.User, error)
}

// RoleRepository defines the interface for roles and their assignment to users
type RoleRepository interface {
	List() ([]models.Role, error)
	GetByName(name string) (*models.Role, error)
	// Assign is idempotent; it reports whether a new assignment was created.
	Assign(userID, roleID uint) (bool, error)
	// Remove reports whether an assignment existed.
	Remove(userID, roleID uint) (bool, error)
	RoleNamesForUser(userID uint) ([]string, error)
	RoleNamesForUsers(userIDs []uint) (map[uint][]string, error)
	HasRole(userID uint, roleName string) (bool, error)
	AllAssignments() ([]models.UserRole, error)
}

// WebhookEventRepository defines the interface for the webhook audit log
type WebhookEventRepository interface {
	// CreateIfNotExists inserts the event unless (provider, provider_event_id)
	// is already stored. It reports whether a row was created and returns the stored row.
	CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
	DeleteProcessedBefore(cutoff time.Time) (int64, error)
	All() ([]models.WebhookEvent, error)
}

// BackupLogRepository defines the interface for backup and maintenance logs
type BackupLogRepository interface {
	Create(entry *models.BackupLog) error
	Update(entry *models.BackupLog) error
	GetByBackupID(backupID string) (*models.BackupLog, error)
	List(limit int) ([]models.BackupLog, error)
	All() ([]models.BackupLog, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Subscriber   SubscriberRepository
	Payment      PaymentRepository
	User         UserRepository
	Role         RoleRepository
	WebhookEvent WebhookEventRepository
	BackupLog    BackupLogRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Subscriber:   NewSubscriberRepository(db),
		Payment:      NewPaymentRepository(db),
		User:         NewUserRepository(db),
		Role:         NewRoleRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
		BackupLog:    NewBackupLogRepository(db),
	}
}
