package service

import (
	"context"
	"errors"

	"github.com/pulse/vidmod/cmd/video-api/models"
	"github.com/pulse/vidmod/cmd/video-api/repository"
	"github.com/pulse/vidmod/common/apperrors"
	"github.com/pulse/vidmod/common/cache"
	"github.com/pulse/vidmod/common/logger"
	"github.com/pulse/vidmod/common/metrics"
	"github.com/pulse/vidmod/common/objectstore"
)

// VideoService handles owner-scoped reads and the deletion workflow
type VideoService struct {
	repo  repository.VideoRepository
	store objectstore.Store
	urls  cache.Cache
	log   *logger.Logger
}

// NewVideoService creates a video service. urls may be nil.
func NewVideoService(repo repository.VideoRepository, store objectstore.Store, urls cache.Cache, log *logger.Logger) *VideoService {
	return &VideoService{
		repo:  repo,
		store: store,
		urls:  urls,
		log:   log,
	}
}

// List returns the owner's videos
func (s *VideoService) List(ctx context.Context, owner string) ([]*models.Video, error) {
	return s.repo.ListByOwner(ctx, owner)
}

// Get returns one of the owner's videos
func (s *VideoService) Get(ctx context.Context, id, owner string) (*models.Video, error) {
	return s.owned(ctx, "service.GetVideo", id, owner)
}

// Delete removes the blob and then the record. A failed blob delete leaves
// the record in place so the blob is never left untracked.
func (s *VideoService) Delete(ctx context.Context, id, owner string) error {
	const op = "service.DeleteVideo"

	video, err := s.owned(ctx, op, id, owner)
	if err != nil {
		return err
	}
	log := s.log.WithContext(ctx).WithVideoID(id).WithOwner(owner)

	if !s.store.Delete(ctx, video.StorageURI) {
		metrics.RecordDeletion("blob_failed")
		log.Warn("blob delete failed, keeping record", "storage_uri", video.StorageURI)
		return apperrors.New(apperrors.KindStorageWrite, op, "failed to delete video file")
	}

	if err := s.repo.Delete(ctx, id, owner); err != nil {
		metrics.RecordDeletion("record_failed")
		log.Error("blob deleted but record delete failed", "storage_uri", video.StorageURI, "error", err)
		return err
	}

	if s.urls != nil {
		if err := s.urls.Delete(ctx, signedURLCacheKey(id, owner)); err != nil {
			log.Warn("failed to invalidate signed url", "error", err)
		}
	}

	metrics.RecordDeletion("deleted")
	log.Info("video deleted", "storage_uri", video.StorageURI)
	return nil
}

// owned fetches id and hides records the caller does not own
func (s *VideoService) owned(ctx context.Context, op, id, owner string) (*models.Video, error) {
	video, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.New(apperrors.KindNotFoundOrForbidden, op, "video not found")
	}
	if err != nil {
		return nil, err
	}
	if video.Owner != owner {
		return nil, apperrors.New(apperrors.KindNotFoundOrForbidden, op, "video not found")
	}
	return video, nil
}
