package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pulse/vidmod/cmd/video-api/models"
	"github.com/pulse/vidmod/common/apperrors"
	"github.com/pulse/vidmod/common/db"
)

const (
	createVideoTable = `
		CREATE TABLE IF NOT EXISTS video (
			id               UUID PRIMARY KEY,
			owner            TEXT NOT NULL,
			description      TEXT NOT NULL,
			storage_uri      TEXT NOT NULL UNIQUE,
			moderation_state TEXT NOT NULL CHECK (moderation_state IN ('pending', 'clean', 'flagged')),
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	createVideoOwnerIndex   = `CREATE INDEX IF NOT EXISTS idx_video_owner ON video (owner, created_at DESC)`
	createVideoPendingIndex = `CREATE INDEX IF NOT EXISTS idx_video_pending ON video (created_at) WHERE moderation_state = 'pending'`

	videoColumns = `id, owner, description, storage_uri, moderation_state, created_at, updated_at`
)

// PostgresVideoRepository stores videos in the video table
type PostgresVideoRepository struct {
	db *db.DB
}

// NewPostgresVideoRepository creates a new video repository
func NewPostgresVideoRepository(db *db.DB) *PostgresVideoRepository {
	return &PostgresVideoRepository{db: db}
}

// EnsureSchema creates the video table and its indexes
func (r *PostgresVideoRepository) EnsureSchema(ctx context.Context) error {
	return r.db.Migrate(ctx, createVideoTable, createVideoOwnerIndex, createVideoPendingIndex)
}

// Insert stores a new video, assigning its id
func (r *PostgresVideoRepository) Insert(ctx context.Context, video *models.Video) error {
	query := `
		INSERT INTO video (id, owner, description, storage_uri, moderation_state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING created_at, updated_at
	`

	id := uuid.New()
	now := time.Now().UTC()

	err := r.db.QueryRow(ctx, query,
		id,
		video.Owner,
		video.Description,
		video.StorageURI,
		video.ModerationState,
		now,
	).Scan(&video.CreatedAt, &video.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "repository.Insert", "failed to insert video", err)
	}

	video.ID = id.String()
	return nil
}

// ListByOwner returns the owner's videos, newest first
func (r *PostgresVideoRepository) ListByOwner(ctx context.Context, owner string) ([]*models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM video WHERE owner = $1 ORDER BY created_at DESC, id`

	rows, err := r.db.Query(ctx, query, owner)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "repository.ListByOwner", "failed to list videos", err)
	}
	defer rows.Close()

	return collectVideos(rows, "repository.ListByOwner")
}

// FindByID retrieves a video by id
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (*models.Video, error) {
	const op = "repository.FindByID"

	videoID, err := parseUUID(op, id)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + videoColumns + ` FROM video WHERE id = $1`
	video, err := scanVideo(r.db.QueryRow(ctx, query, videoID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.New(apperrors.KindNotFound, op, "video not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, op, "failed to get video", err)
	}
	return video, nil
}

// Delete removes the owner's video
func (r *PostgresVideoRepository) Delete(ctx context.Context, id, owner string) error {
	const op = "repository.Delete"

	videoID, err := parseUUID(op, id)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM video WHERE id = $1 AND owner = $2`, videoID, owner)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, op, "failed to delete video", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.KindNotFoundOrForbidden, op, "video not found")
	}
	return nil
}

// UpdateModerationState moves a video from one state to another
func (r *PostgresVideoRepository) UpdateModerationState(ctx context.Context, id string, from, to models.ModerationState) (bool, error) {
	const op = "repository.UpdateModerationState"

	videoID, err := parseUUID(op, id)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE video
		SET moderation_state = $3, updated_at = now()
		WHERE id = $1 AND moderation_state = $2
	`
	tag, err := r.db.Exec(ctx, query, videoID, from, to)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindInternal, op, "failed to update moderation state", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListPending returns pending videos created before olderThan, oldest first
func (r *PostgresVideoRepository) ListPending(ctx context.Context, olderThan time.Time, after *PendingCursor, limit int) ([]*models.Video, error) {
	const op = "repository.ListPending"

	args := []any{olderThan}
	query := `SELECT ` + videoColumns + ` FROM video WHERE moderation_state = 'pending' AND created_at < $1`
	if after != nil {
		afterID, err := parseUUID(op, after.ID)
		if err != nil {
			return nil, err
		}
		args = append(args, after.CreatedAt, afterID)
		query += ` AND (created_at, id) > ($2, $3)`
	}
	query += ` ORDER BY created_at, id`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, op, "failed to list pending videos", err)
	}
	defer rows.Close()

	return collectVideos(rows, op)
}

// ExistsByStorageURI reports whether any video references uri
func (r *PostgresVideoRepository) ExistsByStorageURI(ctx context.Context, uri string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM video WHERE storage_uri = $1)`, uri).Scan(&exists)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindInternal, "repository.ExistsByStorageURI", "failed to check storage uri", err)
	}
	return exists, nil
}

func scanVideo(row pgx.Row) (*models.Video, error) {
	var (
		id    uuid.UUID
		video models.Video
	)
	err := row.Scan(
		&id,
		&video.Owner,
		&video.Description,
		&video.StorageURI,
		&video.ModerationState,
		&video.CreatedAt,
		&video.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	video.ID = id.String()
	return &video, nil
}

func collectVideos(rows pgx.Rows, op string) ([]*models.Video, error) {
	videos := []*models.Video{}
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, op, "failed to scan video", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, op, "failed to read videos", err)
	}
	return videos, nil
}

func parseUUID(op, id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, apperrors.Wrap(apperrors.KindInvalidArgument, op, fmt.Sprintf("invalid video id %q", id), err)
	}
	return parsed, nil
}
