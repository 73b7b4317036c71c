package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"trackvault/config"
	"trackvault/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// stagingPrefix marks staged objects in the bucket.
const stagingPrefix = "staging/"

// minioStore stores objects in a MinIO bucket.
type minioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(cfg *config.Config) (Store, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("Created MinIO bucket", logger.String("bucket", cfg.MinioBucket))
	}

	return &minioStore{client: client, bucket: cfg.MinioBucket}, nil
}

// SaveStaged writes the stream under the staging prefix.
func (s *minioStore) SaveStaged(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, stagingPrefix+name, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload staged object %s: %w", name, err)
	}
	return nil
}

// Promote copies the staged object to its live name and removes the staged copy.
func (s *minioStore) Promote(ctx context.Context, name string) error {
	src := minio.CopySrcOptions{Bucket: s.bucket, Object: stagingPrefix + name}
	dst := minio.CopyDestOptions{Bucket: s.bucket, Object: name}
	if _, err := s.client.CopyObject(ctx, dst, src); err != nil {
		return fmt.Errorf("failed to promote staged object %s: %w", name, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, stagingPrefix+name, minio.RemoveObjectOptions{}); err != nil {
		logger.Warn("failed to remove staged copy after promote",
			logger.String("object", name), logger.ErrorField(err))
	}
	return nil
}

// DiscardStaged removes a staged object.
func (s *minioStore) DiscardStaged(ctx context.Context, name string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, stagingPrefix+name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to discard staged object %s: %w", name, err)
	}
	return nil
}

// Open opens a live object for reading.
func (s *minioStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", name, err)
	}
	// GetObject is lazy; surface missing objects here.
	if _, err := object.Stat(); err != nil {
		object.Close()
		return nil, fmt.Errorf("failed to stat object %s: %w", name, err)
	}
	return object, nil
}

// Remove deletes a live object.
func (s *minioStore) Remove(ctx context.Context, name string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object %s: %w", name, err)
	}
	return nil
}

// List returns every object in the bucket, staged ones flagged.
func (s *minioStore) List(ctx context.Context) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		name := object.Key
		staged := strings.HasPrefix(name, stagingPrefix)
		if staged {
			name = strings.TrimPrefix(name, stagingPrefix)
		}
		objects = append(objects, ObjectInfo{Name: name, ModTime: object.LastModified, Staged: staged})
	}
	return objects, nil
}
