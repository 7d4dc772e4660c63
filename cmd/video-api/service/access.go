package service

import (
	"context"
	"errors"
	"time"

	"github.com/pulse/vidmod/cmd/video-api/repository"
	"github.com/pulse/vidmod/common/apperrors"
	"github.com/pulse/vidmod/common/cache"
	"github.com/pulse/vidmod/common/logger"
	"github.com/pulse/vidmod/common/metrics"
	"github.com/pulse/vidmod/common/objectstore"
)

// DefaultSignedURLTTL is used when no TTL is configured
const DefaultSignedURLTTL = 60 * time.Minute

// AccessService mints signed read URLs for a caller's own videos
type AccessService struct {
	repo  repository.VideoRepository
	store objectstore.Store
	urls  cache.Cache
	ttl   time.Duration
	log   *logger.Logger
}

// NewAccessService creates an access mediator. urls may be nil to disable caching.
func NewAccessService(repo repository.VideoRepository, store objectstore.Store, urls cache.Cache, ttl time.Duration, log *logger.Logger) *AccessService {
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	return &AccessService{
		repo:  repo,
		store: store,
		urls:  urls,
		ttl:   ttl,
		log:   log,
	}
}

// GetAccessURL returns a signed URL for the owner's video. Unknown ids and
// videos owned by someone else are both not_found.
func (s *AccessService) GetAccessURL(ctx context.Context, id, owner string) (string, error) {
	const op = "service.GetAccessURL"

	video, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		return "", apperrors.New(apperrors.KindNotFound, op, "video not found")
	}
	if err != nil {
		return "", err
	}
	if video.Owner != owner {
		return "", apperrors.New(apperrors.KindNotFound, op, "video not found")
	}

	log := s.log.WithContext(ctx).WithVideoID(id)
	key := signedURLCacheKey(id, owner)

	if s.urls != nil {
		cached, found, err := s.urls.Get(ctx, key)
		if err != nil {
			log.Warn("signed url cache read failed", "error", err)
		} else if found {
			metrics.RecordSignedURL(true)
			return string(cached), nil
		}
	}

	signed, err := s.store.SignedAccessURL(ctx, video.StorageURI, s.ttl)
	if err != nil {
		log.Error("failed to sign access url", "storage_uri", video.StorageURI, "error", err)
		return "", err
	}
	metrics.RecordSignedURL(false)

	// cached for half the lifetime so a served URL always has time left
	if s.urls != nil {
		if err := s.urls.Set(ctx, key, []byte(signed), s.ttl/2); err != nil {
			log.Warn("signed url cache write failed", "error", err)
		}
	}

	return signed, nil
}

func signedURLCacheKey(id, owner string) string {
	return "signed_url:" + owner + ":" + id
}
