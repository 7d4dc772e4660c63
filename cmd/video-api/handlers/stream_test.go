package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pulse/vidmod/cmd/video-api/models"
	"github.com/pulse/vidmod/cmd/video-api/service"
	"github.com/pulse/vidmod/common/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialStream(t *testing.T, h *harness, user string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h.e)
	t.Cleanup(srv.Close)

	header := http.Header{}
	header.Set("X-User-ID", user)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/video/ws/upload", header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrames collects frames until a result or error frame arrives
func readFrames(t *testing.T, conn *websocket.Conn) []StreamFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var frames []StreamFrame
	for {
		var frame StreamFrame
		require.NoError(t, conn.ReadJSON(&frame))
		frames = append(frames, frame)
		if frame.Type != FrameStatus {
			return frames
		}
	}
}

func sendUpload(t *testing.T, conn *websocket.Conn, meta UploadMeta, data []byte) {
	t.Helper()
	payload, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, data))
}

func TestStreamUpload_ReportsStagesThenResult(t *testing.T) {
	h := newHarness(t, defaultUploadConfig())
	conn := dialStream(t, h, "alice")

	sendUpload(t, conn, UploadMeta{Description: "test", Filename: "clip.mp4", ContentType: "video/mp4"}, []byte("video"))
	frames := readFrames(t, conn)
	require.GreaterOrEqual(t, len(frames), 2)

	var stages []service.Stage
	for _, f := range frames[:len(frames)-1] {
		assert.Equal(t, FrameStatus, f.Type)
		stages = append(stages, f.Stage)
	}
	assert.Equal(t, service.StageUploading, stages[0])
	assert.Contains(t, stages, service.StageClassifying)
	assert.Contains(t, stages, service.StageRecording)

	last := frames[len(frames)-1]
	require.Equal(t, FrameResult, last.Type)
	require.NotNil(t, last.Result)
	assert.Equal(t, "success", last.Result.Status)
	assert.Equal(t, models.ModerationClean, last.Result.ModerationState)

	require.Len(t, h.listVideos(t, "alice"), 1)
}

func TestStreamUpload_ClassificationFailure(t *testing.T) {
	h := newHarness(t, defaultUploadConfig())
	h.cls.err = apperrors.New(apperrors.KindClassification, "stub.Classify", "classifier unavailable")
	conn := dialStream(t, h, "alice")

	sendUpload(t, conn, UploadMeta{Description: "test", Filename: "clip.mp4"}, []byte("video"))
	frames := readFrames(t, conn)

	last := frames[len(frames)-1]
	assert.Equal(t, FrameError, last.Type)
	assert.Equal(t, apperrors.KindClassification, last.Kind)
	assert.Equal(t, service.StageClassifying, last.Stage)
	assert.Empty(t, h.listVideos(t, "alice"))
	assert.Zero(t, h.store.Len())
}

func TestStreamUpload_RequiresMetadataFrame(t *testing.T) {
	h := newHarness(t, defaultUploadConfig())
	conn := dialStream(t, h, "alice")

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("video")))
	frames := readFrames(t, conn)

	require.Len(t, frames, 1)
	assert.Equal(t, FrameError, frames[0].Type)
	assert.Equal(t, apperrors.KindInvalidArgument, frames[0].Kind)
	assert.Empty(t, frames[0].Stage)
	assert.Zero(t, h.store.Len())
}

func TestStreamUpload_ClientDisconnectCleansUp(t *testing.T) {
	h := newHarness(t, defaultUploadConfig())
	h.cls.delay = time.Minute
	conn := dialStream(t, h, "alice")

	sendUpload(t, conn, UploadMeta{Description: "test", Filename: "clip.mp4"}, []byte("video"))

	// wait until classification starts, then drop the connection
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var frame StreamFrame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Stage == service.StageClassifying {
			break
		}
	}
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return h.store.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, h.listVideos(t, "alice"))
}
