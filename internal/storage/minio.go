// internal/storage/minio.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"translator-back/internal/config"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectTooLarge is returned by ReadObject when the object exceeds the
// requested limit.
var ErrObjectTooLarge = errors.New("object too large")

type MinIOClient struct {
	client *minio.Client
	bucket string
}

func NewMinIOClient(ctx context.Context, cfg config.MinIOConfig) (*MinIOClient, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	// Create bucket if it doesn't exist
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinIOClient{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// UploadFromReader uploads from an io.Reader
func (m *MinIOClient) UploadFromReader(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to MinIO: %w", err)
	}

	return objectName, nil
}

// ReadObject returns the whole object, refusing anything over limit bytes.
func (m *MinIOClient) ReadObject(ctx context.Context, objectName string, limit int64) ([]byte, error) {
	object, err := m.client.GetObject(ctx, m.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer object.Close()

	info, err := object.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	if info.Size > limit {
		return nil, fmt.Errorf("%w: %d bytes", ErrObjectTooLarge, info.Size)
	}

	data, err := io.ReadAll(io.LimitReader(object, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrObjectTooLarge
	}
	return data, nil
}

// GenerateObjectName places an upload under the owner's prefix with a
// unique name that keeps the original extension.
func GenerateObjectName(userID string, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("users/%s/uploads/%s%s", userID, uuid.NewString(), ext)
}
