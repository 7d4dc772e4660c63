package objectstore

import (
	"context"
	"fmt"
	"time"

	"github.com/pulse/vidmod/common/config"
	"github.com/pulse/vidmod/common/logger"
)

// ObjectInfo describes a stored blob
type ObjectInfo struct {
	URI          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Store is the blob store contract used by the ingestion pipeline.
//
// Put returns the canonical scheme://bucket/key URI of the stored blob.
// Delete never returns an error: it reports success so callers decide
// whether dependent deletions may proceed. Deleting an absent blob succeeds.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, uri string) bool
	SignedAccessURL(ctx context.Context, uri string, ttl time.Duration) (string, error)
	Exists(ctx context.Context, uri string) (bool, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// New creates the store selected by cfg.Backend
func New(ctx context.Context, cfg config.ObjectStoreConfig, log *logger.Logger) (Store, error) {
	switch cfg.Backend {
	case "minio":
		return NewMinioStore(ctx, cfg, log)
	case "memory":
		log.Warn("using in-memory object store, blobs are lost on restart", "bucket", cfg.Bucket)
		return NewMemoryStore(cfg.Scheme, cfg.Bucket, cfg.PublicURL, []byte(cfg.SigningKey)), nil
	default:
		return nil, fmt.Errorf("unknown object store backend: %s", cfg.Backend)
	}
}
