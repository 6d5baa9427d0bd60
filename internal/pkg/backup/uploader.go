package backup

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/VitalPredict/internal/pkg/env"
)

// Uploader stores a finished backup document and returns where it went.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte) (string, error)
}

// S3Uploader writes backups to an S3-compatible bucket
type S3Uploader struct {
	s3Client *s3.Client
	config   *Config
}

// NewS3Uploader creates the S3 client and makes sure the bucket is reachable.
func NewS3Uploader(ctx context.Context, cfg *Config) (*S3Uploader, error) {
	if !cfg.S3Enabled {
		return nil, fmt.Errorf("S3 backup is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible providers (MinIO, B2) expect path-style URLs
			o.UsePathStyle = true
		}
	})

	u := &S3Uploader{s3Client: s3Client, config: cfg}
	if err := u.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to S3: %w", err)
	}

	log.Infof("[Backup] Initialized S3 uploader for bucket: %s", cfg.BucketName)
	return u, nil
}

func (u *S3Uploader) ensureBucket(ctx context.Context) error {
	bucketName := u.config.BucketName
	_, err := u.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucketName),
	})
	if err == nil {
		return nil
	}
	if env.GetEnv("APP_ENV", "dev") == "prod" {
		return fmt.Errorf("bucket %s not accessible: %w", bucketName, err)
	}

	log.Warnf("[Backup] Bucket %s not found, attempting to create it", bucketName)
	input := &s3.CreateBucketInput{Bucket: aws.String(bucketName)}
	if u.config.EndpointURL == "" && u.config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(u.config.Region),
		}
	}
	if _, err := u.s3Client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
	}
	return nil
}

func (u *S3Uploader) Upload(ctx context.Context, key string, body []byte) (string, error) {
	bucketName := u.config.BucketName
	log.Infof("[Backup] Starting upload: s3://%s/%s (Size: %d bytes)", bucketName, key, len(body))

	_, err := u.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata: map[string]string{
			"upload-source": "vitalpredict-backup",
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", bucketName, key), nil
}

// LocalUploader writes backups below a directory on local disk.
type LocalUploader struct {
	Dir string
}

func (u *LocalUploader) Upload(_ context.Context, key string, body []byte) (string, error) {
	path := filepath.Join(u.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	return path, nil
}

// NewUploader picks S3 when enabled and the local directory otherwise.
func NewUploader(ctx context.Context, cfg *Config) (Uploader, error) {
	if cfg.S3Enabled {
		return NewS3Uploader(ctx, cfg)
	}
	log.Infof("[Backup] S3 disabled, writing backups to %s", cfg.LocalDir)
	return &LocalUploader{Dir: cfg.LocalDir}, nil
}
