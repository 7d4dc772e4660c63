package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pulse/vidmod/cmd/video-api/middleware"
	"github.com/pulse/vidmod/cmd/video-api/service"
	"github.com/pulse/vidmod/common/apperrors"
	"github.com/pulse/vidmod/common/logger"
)

const (
	writeWait     = 10 * time.Second
	metaFrameSize = 64 * 1024
)

// Frame types pushed to streaming clients
const (
	FrameStatus = "status"
	FrameResult = "result"
	FrameError  = "error"
)

// UploadMeta is the first (text) frame of a streaming upload
type UploadMeta struct {
	Description string `json:"description"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// StreamFrame is a server-to-client message
type StreamFrame struct {
	Type    string          `json:"type"`
	Stage   service.Stage   `json:"stage,omitempty"`
	Message string          `json:"message,omitempty"`
	Kind    apperrors.Kind  `json:"kind,omitempty"`
	Result  *UploadResponse `json:"result,omitempty"`
}

// StreamHandler runs the ingestion pipeline over a websocket, pushing a
// status frame per stage and per classifier poll
type StreamHandler struct {
	ingestion *service.IngestionService
	maxBytes  int64
	upgrader  websocket.Upgrader
	log       *logger.Logger
}

// NewStreamHandler creates a websocket upload handler
func NewStreamHandler(ingestion *service.IngestionService, maxBytes int64, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		ingestion: ingestion,
		maxBytes:  maxBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log,
	}
}

// Upload handles a streaming upload session
// GET /video/ws/upload
func (h *StreamHandler) Upload(c echo.Context) error {
	owner := middleware.GetUsername(c)
	log := h.log.WithContext(c.Request().Context()).WithOwner(owner)

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already replied
		log.Warn("websocket upgrade failed", "error", err)
		return nil
	}
	defer conn.Close()

	if h.maxBytes > 0 {
		conn.SetReadLimit(h.maxBytes + metaFrameSize)
	}

	req, err := readUpload(conn, owner)
	if err != nil {
		writeFrame(conn, errorFrame(err))
		return nil
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request().Context()))
	defer cancel()

	// any further read error means the client went away
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	video, err := h.ingestion.Upload(ctx, req, func(stage service.Stage, message string) {
		writeFrame(conn, StreamFrame{Type: FrameStatus, Stage: stage, Message: message})
	})
	if ctx.Err() != nil {
		log.Info("streaming client disconnected during upload", "error", err)
		return nil
	}
	if err != nil {
		writeFrame(conn, errorFrame(err))
	} else {
		result := newUploadResponse("success", video)
		writeFrame(conn, StreamFrame{Type: FrameResult, Stage: service.StageDone, Result: &result})
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return nil
}

// readUpload reads the metadata text frame followed by the file binary frame
func readUpload(conn *websocket.Conn, owner string) (service.UploadRequest, error) {
	const op = "handlers.StreamUpload"

	msgType, payload, err := conn.ReadMessage()
	if err != nil {
		return service.UploadRequest{}, apperrors.Wrap(apperrors.KindInvalidArgument, op, "failed to read upload metadata", err)
	}
	if msgType != websocket.TextMessage {
		return service.UploadRequest{}, apperrors.New(apperrors.KindInvalidArgument, op, "expected a metadata text frame first")
	}

	var meta UploadMeta
	if err := json.Unmarshal(payload, &meta); err != nil {
		return service.UploadRequest{}, apperrors.Wrap(apperrors.KindInvalidArgument, op, "malformed upload metadata", err)
	}

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return service.UploadRequest{}, apperrors.Wrap(apperrors.KindInvalidArgument, op, "failed to read file", err)
	}
	if msgType != websocket.BinaryMessage {
		return service.UploadRequest{}, apperrors.New(apperrors.KindInvalidArgument, op, "expected a binary file frame")
	}

	return service.UploadRequest{
		Owner:       owner,
		Description: meta.Description,
		Filename:    meta.Filename,
		ContentType: meta.ContentType,
		Data:        data,
	}, nil
}

func errorFrame(err error) StreamFrame {
	detail := NewErrorDetail(err)
	return StreamFrame{
		Type:    FrameError,
		Kind:    detail.Kind,
		Stage:   detail.Stage,
		Message: detail.Message,
	}
}

func writeFrame(conn *websocket.Conn, frame StreamFrame) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(frame)
}
