// Package storage archives bulk CRM sync reports to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	integrationapp "github.com/coccinelle/backend/internal/application/integration"
	"github.com/coccinelle/backend/internal/domain/integration"
	infraconfig "github.com/coccinelle/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

var _ integrationapp.SyncReportArchive = (*S3ReportArchive)(nil)

const defaultReportPrefix = "crm-sync-reports"

// objectAPI is the subset of the S3 client used by the archive
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3ReportArchive writes every finished sync run as a JSON document.
// Works with AWS S3 and S3-compatible stores (MinIO, RustFS).
type S3ReportArchive struct {
	client objectAPI
	bucket string
	prefix string
	logger *zap.Logger
}

// S3ReportArchiveOption configures an S3ReportArchive
type S3ReportArchiveOption func(*S3ReportArchive)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) S3ReportArchiveOption {
	return func(a *S3ReportArchive) {
		a.logger = logger
	}
}

// NewS3ReportArchive creates an archive from configuration
func NewS3ReportArchive(cfg *infraconfig.StorageConfig, opts ...S3ReportArchiveOption) (*S3ReportArchive, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, errors.New("storage access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("storage secret key is required")
	}

	endpoint, err := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.BaseEndpoint = aws.String(endpoint)
	})

	return newS3ReportArchive(client, cfg.Bucket, cfg.Prefix, opts...), nil
}

func newS3ReportArchive(client objectAPI, bucket, prefix string, opts ...S3ReportArchiveOption) *S3ReportArchive {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = defaultReportPrefix
	}
	a := &S3ReportArchive{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func normalizeEndpoint(endpoint string, useSSL bool) (string, error) {
	if endpoint == "" {
		endpoint = "http://localhost:9000"
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if useSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	if _, err := url.Parse(endpoint); err != nil {
		return "", fmt.Errorf("invalid storage endpoint: %w", err)
	}
	return endpoint, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (a *S3ReportArchive) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	a.logger.Info("Creating report bucket", zap.String("bucket", a.bucket))
	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// ReportKey returns the object key of a run's report:
// <prefix>/<tenant>/<system>/<yyyy>/<mm>/<dd>/<run id>.json
func (a *S3ReportArchive) ReportKey(result *integration.SyncResult) string {
	started := result.StartedAt.UTC()
	return path.Join(
		a.prefix,
		result.TenantID.String(),
		string(result.System),
		started.Format("2006"),
		started.Format("01"),
		started.Format("02"),
		result.RunID.String()+".json",
	)
}

// Archive uploads the report of a finished run
func (a *S3ReportArchive) Archive(ctx context.Context, result *integration.SyncResult) error {
	if result == nil {
		return errors.New("sync result is required")
	}

	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode sync report: %w", err)
	}

	key := a.ReportKey(result)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
		Metadata: map[string]string{
			"tenant-id": result.TenantID.String(),
			"system":    string(result.System),
			"status":    string(result.FinalStatus()),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload sync report: %w", err)
	}

	a.logger.Debug("Sync report archived",
		zap.String("bucket", a.bucket),
		zap.String("key", key),
		zap.String("run_id", result.RunID.String()),
	)
	return nil
}

// Bucket returns the bucket name
func (a *S3ReportArchive) Bucket() string {
	return a.bucket
}
