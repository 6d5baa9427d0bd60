package repository

import (
	"gorm.io/gorm"

	"github.com/ManuelReschke/VitalPredict/app/models"
)

type backupLogRepository struct {
	db *gorm.DB
}

// NewBackupLogRepository creates a new backup log repository instance
func NewBackupLogRepository(db *gorm.DB) BackupLogRepository {
	return &backupLogRepository{db: db}
}

func (r *backupLogRepository) Create(entry *models.BackupLog) error {
	return r.db.Create(entry).Error
}

func (r *backupLogRepository) Update(entry *models.BackupLog) error {
	return r.db.Save(entry).Error
}

func (r *backupLogRepository) GetByBackupID(backupID string) (*models.BackupLog, error) {
	var entry models.BackupLog
	if err := r.db.Where("backup_id = ?", backupID).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns the most recent entries first.
func (r *backupLogRepository) List(limit int) ([]models.BackupLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []models.BackupLog
	err := r.db.Order("started_at DESC, id DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

func (r *backupLogRepository) All() ([]models.BackupLog, error) {
	var entries []models.BackupLog
	err := r.db.Order("id ASC").Find(&entries).Error
	return entries, err
}
