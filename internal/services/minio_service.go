package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"storeadmin/internal/models"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// minioAPI is the subset of *minio.Client used here.
type minioAPI interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

// MinioUploader stores product images directly in an S3-compatible bucket.
type MinioUploader struct {
	client  minioAPI
	bucket  string
	baseURL string
	logger  *zap.SugaredLogger
}

// NewMinioUploader connects to endpoint. Object URLs are built from publicURL, or from
// the endpoint when publicURL is empty.
func NewMinioUploader(endpoint, accessKey, secretKey string, useSSL bool, bucket, publicURL string, logger *zap.SugaredLogger) (*MinioUploader, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	baseURL := publicURL
	if baseURL == "" {
		baseURL = client.EndpointURL().String()
	}
	return newMinioUploader(client, bucket, baseURL, logger), nil
}

func newMinioUploader(client minioAPI, bucket, baseURL string, logger *zap.SugaredLogger) *MinioUploader {
	return &MinioUploader{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// EnsureBucketExists creates the bucket on first start.
func (m *MinioUploader) EnsureBucketExists(ctx context.Context) error {
	found, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !found {
		m.logger.Infow("creating image bucket", "bucket", m.bucket)
		return m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// Upload puts the file under a fresh key and returns its public URL.
func (m *MinioUploader) Upload(ctx context.Context, file models.UploadFile) ([]string, error) {
	objectName := "products/" + uuid.NewString() + strings.ToLower(path.Ext(file.Filename))

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	size := file.Size
	if size <= 0 {
		size = -1
	}

	_, err := m.client.PutObject(ctx, m.bucket, objectName, file.Reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", objectName, err)
	}

	m.logger.Debugw("image stored", "bucket", m.bucket, "object", objectName)
	return []string{m.baseURL + "/" + m.bucket + "/" + objectName}, nil
}
