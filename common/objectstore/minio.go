package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pulse/vidmod/common/apperrors"
	"github.com/pulse/vidmod/common/config"
	"github.com/pulse/vidmod/common/logger"
)

// maxPresignExpiry is the S3 v4 upper bound for presigned URLs
const maxPresignExpiry = 7 * 24 * time.Hour

// minioAPI is the subset of *minio.Client used by MinioStore (mocked in tests)
type minioAPI interface {
	PutObject(ctx context.Context, bucket, objectName string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, objectName string, opts minio.RemoveObjectOptions) error
	StatObject(ctx context.Context, bucket, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PresignedGetObject(ctx context.Context, bucket, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// MinioStore stores blobs in an S3-compatible bucket (GCS interop, MinIO, S3)
type MinioStore struct {
	client minioAPI
	bucket string
	scheme string
	logger *logger.Logger
}

// NewMinioStore connects to the configured endpoint and verifies the bucket exists
func NewMinioStore(ctx context.Context, cfg config.ObjectStoreConfig, log *logger.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", cfg.Bucket)
	}

	log.Info("object store connected",
		"endpoint", cfg.Endpoint,
		"bucket", cfg.Bucket,
		"scheme", cfg.Scheme)

	return newMinioStore(client, cfg.Bucket, cfg.Scheme, log), nil
}

func newMinioStore(client minioAPI, bucket, scheme string, log *logger.Logger) *MinioStore {
	return &MinioStore{
		client: client,
		bucket: bucket,
		scheme: scheme,
		logger: log,
	}
}

// Put uploads data under key and returns its canonical URI
func (s *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	const op = "objectstore.Put"

	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", apperrors.New(apperrors.KindStorageWrite, op, "object key is empty")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindStorageWrite, op, "failed to upload blob", err)
	}

	uri := Location{Scheme: s.scheme, Bucket: s.bucket, Key: key}.String()
	s.logger.Debug("blob stored", "uri", uri, "size", len(data))
	return uri, nil
}

// Delete removes the blob at uri. Failures are logged and reported as false.
func (s *MinioStore) Delete(ctx context.Context, uri string) bool {
	loc, err := s.locate(uri)
	if err != nil {
		s.logger.Warn("refusing to delete blob", "uri", uri, "error", err)
		return false
	}

	if err := s.client.RemoveObject(ctx, loc.Bucket, loc.Key, minio.RemoveObjectOptions{}); err != nil {
		s.logger.Warn("failed to delete blob", "uri", uri, "error", err)
		return false
	}

	s.logger.Debug("blob deleted", "uri", uri)
	return true
}

// SignedAccessURL mints a time-limited GET URL for an existing blob
func (s *MinioStore) SignedAccessURL(ctx context.Context, uri string, ttl time.Duration) (string, error) {
	const op = "objectstore.SignedAccessURL"

	if ttl <= 0 || ttl > maxPresignExpiry {
		return "", apperrors.New(apperrors.KindStorageRead, op, fmt.Sprintf("invalid signed url ttl %s", ttl))
	}

	loc, err := s.locate(uri)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindStorageRead, op, "malformed storage uri", err)
	}

	if _, err := s.client.StatObject(ctx, loc.Bucket, loc.Key, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return "", apperrors.New(apperrors.KindStorageRead, op, "blob does not exist")
		}
		return "", apperrors.Wrap(apperrors.KindStorageRead, op, "failed to stat blob", err)
	}

	signed, err := s.client.PresignedGetObject(ctx, loc.Bucket, loc.Key, ttl, url.Values{})
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindStorageRead, op, "failed to sign url", err)
	}
	return signed.String(), nil
}

// Exists reports whether the blob at uri is present
func (s *MinioStore) Exists(ctx context.Context, uri string) (bool, error) {
	const op = "objectstore.Exists"

	loc, err := s.locate(uri)
	if err != nil {
		return false, err
	}

	if _, err := s.client.StatObject(ctx, loc.Bucket, loc.Key, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, apperrors.Wrap(apperrors.KindStorageRead, op, "failed to stat blob", err)
	}
	return true, nil
}

// List returns every blob under prefix
func (s *MinioStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	const op = "objectstore.List"

	var objects []ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    strings.TrimPrefix(prefix, "/"),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, apperrors.Wrap(apperrors.KindStorageRead, op, "failed to list blobs", obj.Err)
		}
		objects = append(objects, ObjectInfo{
			URI:          Location{Scheme: s.scheme, Bucket: s.bucket, Key: obj.Key}.String(),
			Size:         obj.Size,
			ContentType:  obj.ContentType,
			LastModified: obj.LastModified,
		})
	}
	return objects, nil
}

// locate parses uri and rejects blobs outside the configured bucket
func (s *MinioStore) locate(uri string) (Location, error) {
	loc, err := ParseURI(uri, s.scheme)
	if err != nil {
		return Location{}, err
	}
	if loc.Bucket != s.bucket {
		return Location{}, apperrors.New(apperrors.KindInvalidArgument, "objectstore.locate",
			fmt.Sprintf("bucket %q is not managed by this store", loc.Bucket))
	}
	return loc, nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
