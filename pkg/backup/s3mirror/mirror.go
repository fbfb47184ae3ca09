// Package s3mirror uploads metadata snapshots to an S3-compatible bucket.
//
// Objects are written as <prefix><snapshot-folder>/<file>, so the bucket
// mirrors the local backups folder.
package s3mirror

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/assetvault/assetvault/internal/logger"
	"github.com/assetvault/assetvault/pkg/metrics"
)

// Client is the subset of the S3 API the mirror needs.
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds mirror settings, decoded from the backup.s3 config map.
type Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// Decode parses a raw options map into a Config and checks required fields.
func Decode(options map[string]any) (Config, error) {
	var cfg Config
	if err := mapstructure.Decode(options, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode S3 mirror config: %w", err)
	}
	if cfg.Bucket == "" {
		return Config{}, fmt.Errorf("S3 mirror: bucket is required")
	}
	if cfg.Region == "" {
		return Config{}, fmt.Errorf("S3 mirror: region is required")
	}
	return cfg, nil
}

// Mirror uploads snapshot folders.
type Mirror struct {
	client  Client
	bucket  string
	prefix  string
	log     *logger.Logger
	metrics metrics.BackupMetrics
}

// New creates a Mirror around an existing client.
func New(client Client, bucket, prefix string, log *logger.Logger, m metrics.BackupMetrics) *Mirror {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewNoopBackupMetrics()
	}
	return &Mirror{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		log:     log.With("component", "s3mirror"),
		metrics: m,
	}
}

// NewFromConfig builds an S3 client from cfg and wraps it in a Mirror.
func NewFromConfig(ctx context.Context, cfg Config, log *logger.Logger, m metrics.BackupMetrics) (*Mirror, error) {
	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// MinIO, Localstack and friends
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	if log != nil {
		log.Info("S3 backup mirror initialized: bucket=%s, region=%s, prefix=%s",
			cfg.Bucket, cfg.Region, cfg.KeyPrefix)
	}
	return New(client, cfg.Bucket, cfg.KeyPrefix, log, m), nil
}

// Upload sends every regular file directly inside snapshotDir.
//
// Returns:
//   - int64: Total bytes uploaded
//   - error: First upload failure; earlier objects stay uploaded
func (m *Mirror) Upload(ctx context.Context, snapshotDir string) (int64, error) {
	entries, err := os.ReadDir(snapshotDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot %s: %w", snapshotDir, err)
	}

	folder := filepath.Base(snapshotDir)
	var total int64
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		n, err := m.put(ctx, filepath.Join(snapshotDir, e.Name()), m.key(folder, e.Name()))
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (m *Mirror) key(folder, name string) string {
	return m.prefix + path.Join(folder, name)
}

func (m *Mirror) put(ctx context.Context, file, key string) (n int64, err error) {
	start := time.Now()
	defer func() { m.metrics.RecordUpload(n, time.Since(start), err) }()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f, err := os.Open(file)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", file, err)
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upload %s to s3://%s/%s: %w", file, m.bucket, key, err)
	}

	m.log.Debug("Uploaded %s (%d bytes)", key, info.Size())
	return info.Size(), nil
}
