package storage

import (
	"context"
	"fmt"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioAPI is the subset of *minio.Client the publisher uses.
type MinioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	EndpointURL() *url.URL
}

// MinioConfig holds the configuration for MinIO publishing.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

// MinioPublisher uploads retained thumbnails to a MinIO bucket.
type MinioPublisher struct {
	client MinioAPI
	bucket string
}

// NewMinioPublisher connects to MinIO and, when createBucket is set, makes
// sure the bucket exists.
func NewMinioPublisher(ctx context.Context, cfg MinioConfig, createBucket bool) (*MinioPublisher, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	p := NewMinioPublisherWithClient(cl, cfg.Bucket)
	if createBucket {
		if err := p.CreateBucket(ctx); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// NewMinioPublisherWithClient wraps an existing client.
func NewMinioPublisherWithClient(client MinioAPI, bucket string) *MinioPublisher {
	return &MinioPublisher{client: client, bucket: bucket}
}

// CreateBucket creates the bucket unless it already exists.
func (p *MinioPublisher) CreateBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", p.bucket, err)
	}
	if exists {
		return nil
	}
	if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %q: %w", p.bucket, err)
	}
	return nil
}

// Publish uploads the file at path under key and returns its URL.
func (p *MinioPublisher) Publish(ctx context.Context, key, path string) (string, error) {
	_, err := p.client.FPutObject(ctx, p.bucket, key, path, minio.PutObjectOptions{
		ContentType: contentType(path),
	})
	if err != nil {
		return "", fmt.Errorf("upload %q to bucket %q: %w", key, p.bucket, err)
	}

	u := *p.client.EndpointURL()
	u.Path = "/" + p.bucket + "/" + key
	return u.String(), nil
}
