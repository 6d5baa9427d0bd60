package models

import "time"

const (
	BackupOperationBackup               = "backup"
	BackupOperationCleanupWebhookEvents = "cleanup_webhook_events"
	BackupOperationClearCache           = "clear_cache"
	BackupOperationAnalyzeTables        = "analyze_tables"
)

const (
	BackupStatusRunning = "running"
	BackupStatusSuccess = "success"
	BackupStatusFailed  = "failed"
)

// BackupLog records every backup or maintenance invocation.
type BackupLog struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	BackupID    string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"backup_id"`
	Operation   string     `gorm:"type:varchar(50);not null;index" json:"operation"`
	Status      string     `gorm:"type:varchar(20);not null;default:'running';index" json:"status"`
	ObjectKey   string     `gorm:"type:varchar(255);default:''" json:"object_key"`
	Tables      string     `gorm:"type:varchar(255);default:''" json:"tables"`
	RowCount    int64      `gorm:"default:0" json:"row_count"`
	SizeBytes   int64      `gorm:"default:0" json:"size_bytes"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	TriggeredBy string     `gorm:"type:varchar(200);default:''" json:"triggered_by"`
	StartedAt   time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt  *time.Time `gorm:"type:timestamp;default:null" json:"finished_at,omitempty"`
}
