package repository

import (
	"context"
	"time"

	"github.com/pulse/vidmod/cmd/video-api/models"
)

// VideoRepository is the metadata store for uploaded videos.
//
// Insert assigns ID and timestamps. FindByID returns a not_found error for
// unknown ids and invalid_argument for ids the backend cannot parse.
// Delete is scoped to owner and returns not_found_or_forbidden when no
// owned record matched. UpdateModerationState only moves records still in
// from and reports whether a row changed. ListPending pages through pending
// videos created before olderThan in (created_at, id) order, starting after
// the cursor when one is given; a limit <= 0 returns every match.
type VideoRepository interface {
	Insert(ctx context.Context, video *models.Video) error
	ListByOwner(ctx context.Context, owner string) ([]*models.Video, error)
	FindByID(ctx context.Context, id string) (*models.Video, error)
	Delete(ctx context.Context, id, owner string) error
	UpdateModerationState(ctx context.Context, id string, from, to models.ModerationState) (bool, error)
	ListPending(ctx context.Context, olderThan time.Time, after *PendingCursor, limit int) ([]*models.Video, error)
	ExistsByStorageURI(ctx context.Context, uri string) (bool, error)
}

// PendingCursor is the position of the last video of a ListPending page
type PendingCursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorAfter returns the cursor that resumes listing after v
func CursorAfter(v *models.Video) *PendingCursor {
	return &PendingCursor{CreatedAt: v.CreatedAt, ID: v.ID}
}
