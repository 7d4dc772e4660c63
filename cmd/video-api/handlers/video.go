package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pulse/vidmod/cmd/video-api/middleware"
	"github.com/pulse/vidmod/cmd/video-api/models"
	"github.com/pulse/vidmod/cmd/video-api/service"
	"github.com/pulse/vidmod/common/apperrors"
	"github.com/pulse/vidmod/common/config"
	"github.com/pulse/vidmod/common/logger"
)

// VideoHandler serves the /video endpoints
type VideoHandler struct {
	ingestion    *service.IngestionService
	videos       *service.VideoService
	access       *service.AccessService
	maxBytes     int64
	asyncEnabled bool
	log          *logger.Logger
}

// NewVideoHandler creates a new video handler
func NewVideoHandler(
	ingestion *service.IngestionService,
	videos *service.VideoService,
	access *service.AccessService,
	cfg config.UploadConfig,
	log *logger.Logger,
) *VideoHandler {
	return &VideoHandler{
		ingestion:    ingestion,
		videos:       videos,
		access:       access,
		maxBytes:     cfg.MaxBytes,
		asyncEnabled: cfg.AsyncEnabled,
		log:          log,
	}
}

// UploadResponse is returned by the upload endpoint
type UploadResponse struct {
	Status          string                 `json:"status"`
	VideoID         string                 `json:"video_id"`
	VideoURL        string                 `json:"video_url"`
	IsFlagged       bool                   `json:"is_flagged"`
	ModerationState models.ModerationState `json:"moderation_state"`
}

// UploadVideo stores, classifies and records an uploaded file
// POST /video/upload-video/
// POST /video/upload-video/?mode=async returns 202 with a pending video
func (h *VideoHandler) UploadVideo(c echo.Context) error {
	const op = "handlers.UploadVideo"

	owner := middleware.GetUsername(c)
	description := c.FormValue("description")

	file, err := c.FormFile("file")
	if err != nil {
		return apperrors.Wrap(apperrors.KindInvalidArgument, op, "file is required", err)
	}
	data, err := h.readFile(file)
	if err != nil {
		return err
	}

	req := service.UploadRequest{
		Owner:       owner,
		Description: description,
		Filename:    file.Filename,
		ContentType: file.Header.Get(echo.HeaderContentType),
		Data:        data,
	}
	ctx := c.Request().Context()

	if c.QueryParam("mode") == "async" {
		if !h.asyncEnabled {
			return apperrors.New(apperrors.KindInvalidArgument, op, "asynchronous uploads are disabled")
		}
		video, err := h.ingestion.Submit(ctx, req, nil)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusAccepted, newUploadResponse("pending", video))
	}

	video, err := h.ingestion.Upload(ctx, req, nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newUploadResponse("success", video))
}

// GetVideos lists the caller's videos
// GET /video/getVideos
func (h *VideoHandler) GetVideos(c echo.Context) error {
	videos, err := h.videos.List(c.Request().Context(), middleware.GetUsername(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"videos": models.NewVideoResponses(videos),
	})
}

// GetVideo returns one of the caller's videos, including its moderation state
// GET /video/getVideo/:id
func (h *VideoHandler) GetVideo(c echo.Context) error {
	video, err := h.videos.Get(c.Request().Context(), c.Param("id"), middleware.GetUsername(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewVideoResponse(video))
}

// DeleteVideo deletes the caller's video, blob first
// DELETE /video/deleteVideo/:id
func (h *VideoHandler) DeleteVideo(c echo.Context) error {
	if err := h.videos.Delete(c.Request().Context(), c.Param("id"), middleware.GetUsername(c)); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Video deleted successfully",
	})
}

// SignedURL mints a time-limited read URL for the caller's video
// GET /video/signed-url/?video_id=...
func (h *VideoHandler) SignedURL(c echo.Context) error {
	id := c.QueryParam("video_id")
	if id == "" {
		return apperrors.New(apperrors.KindInvalidArgument, "handlers.SignedURL", "video_id is required")
	}

	signed, err := h.access.GetAccessURL(c.Request().Context(), id, middleware.GetUsername(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{
		"signed_url": signed,
	})
}

func (h *VideoHandler) readFile(file *multipart.FileHeader) ([]byte, error) {
	const op = "handlers.readFile"

	if h.maxBytes > 0 && file.Size > h.maxBytes {
		return nil, apperrors.New(apperrors.KindInvalidArgument, op,
			fmt.Sprintf("file exceeds the %d byte upload limit", h.maxBytes))
	}

	src, err := file.Open()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidArgument, op, "unreadable file", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidArgument, op, "unreadable file", err)
	}
	return data, nil
}

func newUploadResponse(status string, video *models.Video) UploadResponse {
	return UploadResponse{
		Status:          status,
		VideoID:         video.ID,
		VideoURL:        video.StorageURI,
		IsFlagged:       video.IsFlagged(),
		ModerationState: video.ModerationState,
	}
}
