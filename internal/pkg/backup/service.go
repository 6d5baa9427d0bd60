package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/VitalPredict/app/models"
	"github.com/ManuelReschke/VitalPredict/app/repository"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/cache"
)

var ErrUnknownOperation = errors.New("unknown maintenance operation")

// MaintenanceOperations lists the operations accepted by RunMaintenance.
var MaintenanceOperations = []string{
	models.BackupOperationCleanupWebhookEvents,
	models.BackupOperationClearCache,
	models.BackupOperationAnalyzeTables,
}

var backupTables = []string{"subscribers", "payments", "users", "roles", "user_roles", "webhook_events", "backup_logs"}

// UserRecord is the exported form of an operator account. Password and api
// key hashes stay out of backups; restored accounts need new credentials.
type UserRecord struct {
	ID           uint       `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Status       string     `json:"status"`
	APIKeyPrefix string     `json:"api_key_prefix,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

func userRecords(users []models.User) []UserRecord {
	out := make([]UserRecord, len(users))
	for i, u := range users {
		out[i] = UserRecord{
			ID:           u.ID,
			Name:         u.Name,
			Email:        u.Email,
			Status:       u.Status,
			APIKeyPrefix: u.APIKeyPrefix,
			CreatedAt:    u.CreatedAt,
			UpdatedAt:    u.UpdatedAt,
		}
		if u.DeletedAt.Valid {
			deletedAt := u.DeletedAt.Time
			out[i].DeletedAt = &deletedAt
		}
	}
	return out
}

// Document is the JSON body written for each backup.
type Document struct {
	BackupID      string                `json:"backup_id"`
	CreatedAt     time.Time             `json:"created_at"`
	Subscribers   []models.Subscriber   `json:"subscribers"`
	Payments      []models.Payment      `json:"payments"`
	Users         []UserRecord          `json:"users"`
	Roles         []models.Role         `json:"roles"`
	UserRoles     []models.UserRole     `json:"user_roles"`
	WebhookEvents []models.WebhookEvent `json:"webhook_events"`
	BackupLogs    []models.BackupLog    `json:"backup_logs"`
}

func (d *Document) rowCount() int64 {
	return int64(len(d.Subscribers) + len(d.Payments) + len(d.Users) + len(d.Roles) + len(d.UserRoles) + len(d.WebhookEvents) + len(d.BackupLogs))
}

// Service runs backups and maintenance jobs and logs every run.
type Service struct {
	db       *gorm.DB
	repos    *repository.Repositories
	uploader Uploader
	cache    *cache.QueryCache
	cfg      *Config
	now      func() time.Time
}

func NewService(db *gorm.DB, repos *repository.Repositories, uploader Uploader, qc *cache.QueryCache, cfg *Config) *Service {
	return &Service{
		db:       db,
		repos:    repos,
		uploader: uploader,
		cache:    qc,
		cfg:      cfg,
		now:      time.Now,
	}
}

// RunBackup exports the application tables into one JSON document and uploads it.
func (s *Service) RunBackup(ctx context.Context, triggeredBy string) (*models.BackupLog, error) {
	entry, err := s.start(models.BackupOperationBackup, triggeredBy)
	if err != nil {
		return nil, err
	}
	entry.Tables = strings.Join(backupTables, ",")

	doc, err := s.export(entry.BackupID)
	if err != nil {
		return s.finish(entry, err)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return s.finish(entry, fmt.Errorf("encode backup: %w", err))
	}

	key := s.cfg.ObjectKey(entry.BackupID, entry.StartedAt)
	location, err := s.uploader.Upload(ctx, key, body)
	if err != nil {
		return s.finish(entry, err)
	}

	entry.ObjectKey = location
	entry.RowCount = doc.rowCount()
	entry.SizeBytes = int64(len(body))
	log.Infof("[Backup] %s finished: %d rows, %d bytes -> %s", entry.BackupID, entry.RowCount, entry.SizeBytes, location)
	return s.finish(entry, nil)
}

// RunMaintenance executes one of MaintenanceOperations.
func (s *Service) RunMaintenance(ctx context.Context, op, triggeredBy string) (*models.BackupLog, error) {
	op = strings.TrimSpace(op)
	if !IsMaintenanceOperation(op) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}

	entry, err := s.start(op, triggeredBy)
	if err != nil {
		return nil, err
	}

	var runErr error
	switch op {
	case models.BackupOperationCleanupWebhookEvents:
		entry.Tables = "webhook_events"
		var n int64
		n, runErr = s.repos.WebhookEvent.DeleteProcessedBefore(s.cfg.RetentionCutoff(s.now()))
		entry.RowCount = n

	case models.BackupOperationClearCache:
		var n int
		if s.cache != nil {
			n, runErr = s.cache.Clear(ctx, "")
		}
		entry.RowCount = int64(n)

	case models.BackupOperationAnalyzeTables:
		entry.Tables = strings.Join(backupTables, ",")
		runErr = s.analyzeTables(ctx)
	}

	return s.finish(entry, runErr)
}

func (s *Service) ListLogs(_ context.Context, limit int) ([]models.BackupLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repos.BackupLog.List(limit)
}

func IsMaintenanceOperation(op string) bool {
	for _, known := range MaintenanceOperations {
		if op == known {
			return true
		}
	}
	return false
}

func (s *Service) start(op, triggeredBy string) (*models.BackupLog, error) {
	entry := &models.BackupLog{
		BackupID:    uuid.NewString(),
		Operation:   op,
		Status:      models.BackupStatusRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   s.now().UTC(),
	}
	if err := s.repos.BackupLog.Create(entry); err != nil {
		return nil, fmt.Errorf("create backup log: %w", err)
	}
	return entry, nil
}

func (s *Service) finish(entry *models.BackupLog, runErr error) (*models.BackupLog, error) {
	finished := s.now().UTC()
	entry.FinishedAt = &finished
	entry.Status = models.BackupStatusSuccess
	if runErr != nil {
		entry.Status = models.BackupStatusFailed
		entry.Error = runErr.Error()
		log.Errorf("[Backup] %s %s failed: %v", entry.Operation, entry.BackupID, runErr)
	}
	if err := s.repos.BackupLog.Update(entry); err != nil {
		log.Errorf("[Backup] updating log %s failed: %v", entry.BackupID, err)
	}
	return entry, runErr
}

func (s *Service) export(backupID string) (*Document, error) {
	doc := &Document{BackupID: backupID, CreatedAt: s.now().UTC()}
	var err error
	if doc.Subscribers, err = s.repos.Subscriber.All(); err != nil {
		return nil, fmt.Errorf("export subscribers: %w", err)
	}
	if doc.Payments, err = s.repos.Payment.All(); err != nil {
		return nil, fmt.Errorf("export payments: %w", err)
	}
	users, err := s.repos.User.All()
	if err != nil {
		return nil, fmt.Errorf("export users: %w", err)
	}
	doc.Users = userRecords(users)
	if doc.Roles, err = s.repos.Role.List(); err != nil {
		return nil, fmt.Errorf("export roles: %w", err)
	}
	if doc.UserRoles, err = s.repos.Role.AllAssignments(); err != nil {
		return nil, fmt.Errorf("export user roles: %w", err)
	}
	if doc.WebhookEvents, err = s.repos.WebhookEvent.All(); err != nil {
		return nil, fmt.Errorf("export webhook events: %w", err)
	}
	if doc.BackupLogs, err = s.repos.BackupLog.All(); err != nil {
		return nil, fmt.Errorf("export backup logs: %w", err)
	}
	return doc, nil
}

// analyzeTables refreshes index statistics on MySQL and is a no-op elsewhere.
func (s *Service) analyzeTables(ctx context.Context) error {
	if s.db == nil || s.db.Dialector.Name() != "mysql" {
		return nil
	}
	return s.db.WithContext(ctx).Exec("ANALYZE TABLE " + strings.Join(backupTables, ", ")).Error
}
