package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeObjectAPI struct {
	puts         []*s3.PutObjectInput
	bodies       [][]byte
	putErr       error
	headErr      error
	createErr    error
	createCalled int
}

func (f *fakeObjectAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectAPI) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeObjectAPI) CreateBucket(context.Context, *s3.CreateBucketInput, ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.createCalled++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &s3.CreateBucketOutput{}, nil
}

func newSyncResult() *integration.SyncResult {
	result := integration.NewSyncResult(uuid.New(), integration.SystemHubSpot)
	result.StartedAt = time.Date(2026, 3, 7, 23, 30, 0, 0, time.FixedZone("CET", 3600))
	result.Synced = 2
	result.Created = 1
	result.Updated = 1
	result.Errors = append(result.Errors, integration.ItemError{
		CustomerID: uuid.NewString(),
		Error:      "email rejected",
	})
	result.FinishedAt = result.StartedAt.Add(3 * time.Second)
	return result
}

func TestNewS3ReportArchive_Validation(t *testing.T) {
	t.Run("nil config returns error", func(t *testing.T) {
		_, err := NewS3ReportArchive(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket returns error", func(t *testing.T) {
		_, err := NewS3ReportArchive(&config.StorageConfig{AccessKey: "k", SecretKey: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("missing access key returns error", func(t *testing.T) {
		_, err := NewS3ReportArchive(&config.StorageConfig{Bucket: "b", SecretKey: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access key is required")
	})

	t.Run("missing secret key returns error", func(t *testing.T) {
		_, err := NewS3ReportArchive(&config.StorageConfig{Bucket: "b", AccessKey: "k"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "secret key is required")
	})

	t.Run("valid config creates archive", func(t *testing.T) {
		archive, err := NewS3ReportArchive(&config.StorageConfig{
			Bucket:       "reports",
			AccessKey:    "k",
			SecretKey:    "s",
			Endpoint:     "localhost:9000",
			UsePathStyle: true,
			Prefix:       "/crm/",
		})
		require.NoError(t, err)
		assert.Equal(t, "reports", archive.Bucket())
		assert.Equal(t, "crm", archive.prefix)
	})
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		useSSL   bool
		want     string
	}{
		{"empty defaults to localhost", "", false, "http://localhost:9000"},
		{"adds http without ssl", "minio:9000", false, "http://minio:9000"},
		{"adds https with ssl", "minio:9000", true, "https://minio:9000"},
		{"keeps explicit scheme", "https://s3.eu-west-3.amazonaws.com", false, "https://s3.eu-west-3.amazonaws.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeEndpoint(tt.endpoint, tt.useSSL)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestS3ReportArchive_ReportKey(t *testing.T) {
	archive := newS3ReportArchive(&fakeObjectAPI{}, "reports", "")
	result := newSyncResult()

	key := archive.ReportKey(result)

	assert.Equal(t,
		"crm-sync-reports/"+result.TenantID.String()+"/hubspot/2026/03/07/"+result.RunID.String()+".json",
		key)
}

func TestS3ReportArchive_Archive(t *testing.T) {
	t.Run("uploads json report", func(t *testing.T) {
		api := &fakeObjectAPI{}
		archive := newS3ReportArchive(api, "reports", "audit", WithLogger(zaptest.NewLogger(t)))
		result := newSyncResult()

		require.NoError(t, archive.Archive(context.Background(), result))

		require.Len(t, api.puts, 1)
		put := api.puts[0]
		assert.Equal(t, "reports", aws.ToString(put.Bucket))
		assert.Equal(t, archive.ReportKey(result), aws.ToString(put.Key))
		assert.Equal(t, "application/json", aws.ToString(put.ContentType))
		assert.Equal(t, int64(len(api.bodies[0])), aws.ToInt64(put.ContentLength))
		assert.Equal(t, "idle", put.Metadata["status"])
		assert.Equal(t, "hubspot", put.Metadata["system"])

		var decoded integration.SyncResult
		require.NoError(t, json.Unmarshal(api.bodies[0], &decoded))
		assert.Equal(t, result.RunID, decoded.RunID)
		assert.Equal(t, 2, decoded.Synced)
		require.Len(t, decoded.Errors, 1)
		assert.Equal(t, "email rejected", decoded.Errors[0].Error)
	})

	t.Run("all failed run is tagged error", func(t *testing.T) {
		api := &fakeObjectAPI{}
		archive := newS3ReportArchive(api, "reports", "")
		result := newSyncResult()
		result.Synced = 0

		require.NoError(t, archive.Archive(context.Background(), result))
		assert.Equal(t, "error", api.puts[0].Metadata["status"])
	})

	t.Run("nil result", func(t *testing.T) {
		archive := newS3ReportArchive(&fakeObjectAPI{}, "reports", "")
		assert.Error(t, archive.Archive(context.Background(), nil))
	})

	t.Run("upload failure is wrapped", func(t *testing.T) {
		cause := errors.New("connection reset")
		archive := newS3ReportArchive(&fakeObjectAPI{putErr: cause}, "reports", "")

		err := archive.Archive(context.Background(), newSyncResult())
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
	})
}

func TestS3ReportArchive_EnsureBucket(t *testing.T) {
	t.Run("existing bucket", func(t *testing.T) {
		api := &fakeObjectAPI{}
		archive := newS3ReportArchive(api, "reports", "")

		require.NoError(t, archive.EnsureBucket(context.Background()))
		assert.Equal(t, 0, api.createCalled)
	})

	t.Run("creates missing bucket", func(t *testing.T) {
		api := &fakeObjectAPI{headErr: &types.NotFound{}}
		archive := newS3ReportArchive(api, "reports", "")

		require.NoError(t, archive.EnsureBucket(context.Background()))
		assert.Equal(t, 1, api.createCalled)
	})

	t.Run("race on create is ignored", func(t *testing.T) {
		api := &fakeObjectAPI{headErr: &types.NoSuchBucket{}, createErr: &types.BucketAlreadyOwnedByYou{}}
		archive := newS3ReportArchive(api, "reports", "")

		assert.NoError(t, archive.EnsureBucket(context.Background()))
	})

	t.Run("other head errors are returned", func(t *testing.T) {
		api := &fakeObjectAPI{headErr: errors.New("access denied")}
		archive := newS3ReportArchive(api, "reports", "")

		err := archive.EnsureBucket(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket existence")
		assert.Equal(t, 0, api.createCalled)
	})
}
