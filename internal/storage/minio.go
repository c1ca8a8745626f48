package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/example/wardrobe-scan/internal/apperror"
)

// MinIOOptions configures an S3-compatible MinIO endpoint.
type MinIOOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
}

// MinIOStore stores objects in a MinIO bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// NewMinIOStore connects to MinIO and creates the bucket when it is missing.
func NewMinIOStore(ctx context.Context, opts MinIOOptions, logger *zap.Logger) (*MinIOStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", opts.Bucket, err)
		}
		logger.Info("created storage bucket", zap.String("bucket", opts.Bucket))
	}

	return &MinIOStore{client: client, bucket: opts.Bucket, logger: logger.Named("minio_store")}, nil
}

// Put uploads data under key.
func (s *MinIOStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return apperror.New(apperror.KindStorage, "storage.minio.put", "", err)
	}
	s.logger.Debug("object stored", zap.String("key", key), zap.Int("size", len(data)))
	return nil
}

// Delete removes key. Removing a missing object is not an error.
func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return apperror.New(apperror.KindStorage, "storage.minio.delete", "", err)
	}
	return nil
}
