package backup

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/VitalPredict/internal/pkg/env"
)

// Config holds backup target and maintenance configuration
type Config struct {
	S3Enabled            bool
	AccessKeyID          string
	SecretAccessKey      string
	Region               string
	BucketName           string
	EndpointURL          string // Optional for S3-compatible services
	KeyPrefix            string
	LocalDir             string
	WebhookRetentionDays int
}

// LoadConfig loads backup configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		S3Enabled:            env.GetEnvBool("S3_BACKUP_ENABLED", false),
		AccessKeyID:          env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey:      env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:               env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:           env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:          env.GetEnv("S3_ENDPOINT_URL", ""),
		KeyPrefix:            strings.Trim(env.GetEnv("S3_KEY_PREFIX", "backups"), "/"),
		LocalDir:             env.GetEnv("BACKUP_DIR", "./backups"),
		WebhookRetentionDays: env.GetEnvInt("WEBHOOK_RETENTION_DAYS", 90),
	}

	// Validate required fields if S3 backup is enabled
	if config.S3Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when S3 backup is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when S3 backup is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when S3 backup is enabled")
		}
	}
	if config.WebhookRetentionDays < 1 {
		return nil, fmt.Errorf("WEBHOOK_RETENTION_DAYS must be at least 1, got %d", config.WebhookRetentionDays)
	}

	return config, nil
}

// ObjectKey builds the key for a backup document.
// Format: <prefix>/YYYY/MM/vitalpredict-YYYYMMDDTHHMMSSZ-<id>.json
func (c *Config) ObjectKey(backupID string, at time.Time) string {
	at = at.UTC()
	name := fmt.Sprintf("vitalpredict-%s-%s.json", at.Format("20060102T150405Z"), backupID)
	key := fmt.Sprintf("%04d/%02d/%s", at.Year(), int(at.Month()), name)
	if c.KeyPrefix != "" {
		key = c.KeyPrefix + "/" + key
	}
	return key
}

// RetentionCutoff returns the instant before which processed webhook events are purged.
func (c *Config) RetentionCutoff(now time.Time) time.Time {
	return now.Add(-time.Duration(c.WebhookRetentionDays) * 24 * time.Hour)
}
