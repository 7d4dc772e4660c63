package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pulse/vidmod/cmd/video-api/models"
	"github.com/pulse/vidmod/common/apperrors"
)

// MemoryVideoRepository keeps videos in process memory for local runs and tests
type MemoryVideoRepository struct {
	mu     sync.RWMutex
	videos map[string]models.Video
	now    func() time.Time
}

// NewMemoryVideoRepository creates an empty repository
func NewMemoryVideoRepository() *MemoryVideoRepository {
	return &MemoryVideoRepository{
		videos: make(map[string]models.Video),
		now:    time.Now,
	}
}

// SetClock overrides the timestamp source (tests)
func (r *MemoryVideoRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryVideoRepository) Insert(ctx context.Context, video *models.Video) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "repository.Insert", "failed to insert video", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.videos {
		if existing.StorageURI == video.StorageURI {
			return apperrors.New(apperrors.KindInternal, "repository.Insert", "storage uri already recorded")
		}
	}

	now := r.now().UTC()
	video.ID = uuid.New().String()
	video.CreatedAt = now
	video.UpdatedAt = now
	r.videos[video.ID] = *video
	return nil
}

func (r *MemoryVideoRepository) ListByOwner(ctx context.Context, owner string) ([]*models.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	videos := []*models.Video{}
	for _, v := range r.videos {
		if v.Owner == owner {
			v := v
			videos = append(videos, &v)
		}
	}
	sort.Slice(videos, func(i, j int) bool {
		if videos[i].CreatedAt.Equal(videos[j].CreatedAt) {
			return videos[i].ID < videos[j].ID
		}
		return videos[i].CreatedAt.After(videos[j].CreatedAt)
	})
	return videos, nil
}

func (r *MemoryVideoRepository) FindByID(ctx context.Context, id string) (*models.Video, error) {
	const op = "repository.FindByID"

	if _, err := parseUUID(op, id); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.videos[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, op, "video not found")
	}
	return &v, nil
}

func (r *MemoryVideoRepository) Delete(ctx context.Context, id, owner string) error {
	const op = "repository.Delete"

	if _, err := parseUUID(op, id); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.videos[id]
	if !ok || v.Owner != owner {
		return apperrors.New(apperrors.KindNotFoundOrForbidden, op, "video not found")
	}
	delete(r.videos, id)
	return nil
}

func (r *MemoryVideoRepository) UpdateModerationState(ctx context.Context, id string, from, to models.ModerationState) (bool, error) {
	if _, err := parseUUID("repository.UpdateModerationState", id); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.videos[id]
	if !ok || v.ModerationState != from {
		return false, nil
	}
	v.ModerationState = to
	v.UpdatedAt = r.now().UTC()
	r.videos[id] = v
	return true, nil
}

func (r *MemoryVideoRepository) ListPending(ctx context.Context, olderThan time.Time, after *PendingCursor, limit int) ([]*models.Video, error) {
	if after != nil {
		if _, err := parseUUID("repository.ListPending", after.ID); err != nil {
			return nil, err
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	videos := []*models.Video{}
	for _, v := range r.videos {
		if v.ModerationState != models.ModerationPending || !v.CreatedAt.Before(olderThan) {
			continue
		}
		if after != nil && !pendingAfter(v, after) {
			continue
		}
		v := v
		videos = append(videos, &v)
	}
	sort.Slice(videos, func(i, j int) bool {
		if !videos[i].CreatedAt.Equal(videos[j].CreatedAt) {
			return videos[i].CreatedAt.Before(videos[j].CreatedAt)
		}
		return videos[i].ID < videos[j].ID
	})
	if limit > 0 && len(videos) > limit {
		videos = videos[:limit]
	}
	return videos, nil
}

// pendingAfter reports whether v sorts after the cursor
func pendingAfter(v models.Video, after *PendingCursor) bool {
	if !v.CreatedAt.Equal(after.CreatedAt) {
		return v.CreatedAt.After(after.CreatedAt)
	}
	return v.ID > after.ID
}

func (r *MemoryVideoRepository) ExistsByStorageURI(ctx context.Context, uri string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, v := range r.videos {
		if v.StorageURI == uri {
			return true, nil
		}
	}
	return false, nil
}
