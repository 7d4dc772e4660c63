package models

import (
	"time"
)

// ModerationState is the lifecycle stage of a video's content-safety verdict
type ModerationState string

const (
	ModerationPending ModerationState = "pending"
	ModerationClean   ModerationState = "clean"
	ModerationFlagged ModerationState = "flagged"
)

// Valid reports whether s is a known moderation state
func (s ModerationState) Valid() bool {
	switch s {
	case ModerationPending, ModerationClean, ModerationFlagged:
		return true
	}
	return false
}

// StateForVerdict maps a classifier verdict to a resolved moderation state
func StateForVerdict(flagged bool) ModerationState {
	if flagged {
		return ModerationFlagged
	}
	return ModerationClean
}

// Video is an uploaded video and its moderation outcome.
// Maps to: video table / videos collection
type Video struct {
	// Assigned by the metadata store on insert
	ID string `db:"id" json:"id"`

	// Authenticated uploader; immutable
	Owner string `db:"owner" json:"owner"`

	Description string `db:"description" json:"description"`

	// scheme://bucket/key of the blob, 1:1 with the record
	StorageURI string `db:"storage_uri" json:"storage_uri"`

	ModerationState ModerationState `db:"moderation_state" json:"moderation_state"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsFlagged reports whether the classifier flagged the video
func (v *Video) IsFlagged() bool {
	return v.ModerationState == ModerationFlagged
}

// VideoResponse is the wire form of a Video
type VideoResponse struct {
	ID              string          `json:"id"`
	Owner           string          `json:"owner"`
	Description     string          `json:"description"`
	VideoURL        string          `json:"video_url"`
	ModerationState ModerationState `json:"moderation_state"`
	IsFlagged       bool            `json:"is_flagged"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewVideoResponse converts a stored video to its wire form
func NewVideoResponse(v *Video) VideoResponse {
	return VideoResponse{
		ID:              v.ID,
		Owner:           v.Owner,
		Description:     v.Description,
		VideoURL:        v.StorageURI,
		ModerationState: v.ModerationState,
		IsFlagged:       v.IsFlagged(),
		CreatedAt:       v.CreatedAt,
	}
}

// NewVideoResponses converts a list of videos, never returning nil
func NewVideoResponses(videos []*Video) []VideoResponse {
	out := make([]VideoResponse, 0, len(videos))
	for _, v := range videos {
		out = append(out, NewVideoResponse(v))
	}
	return out
}
