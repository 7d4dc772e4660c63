package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pulse/vidmod/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRequest_PropagatesHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.Client(), logger.Discard(),
		WithBearerToken("secret-key"),
		WithHeader("X-Empty", ""))

	ctx := WithUserID(context.Background(), "alice")
	ctx = logger.WithRequestID(ctx, "req-1")

	resp, err := client.DoRequest(ctx, http.MethodPost, srv.URL, strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer secret-key", got.Get("Authorization"))
	assert.Equal(t, "alice", got.Get("X-User-ID"))
	assert.Equal(t, "req-1", got.Get("X-Request-ID"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Empty(t, got.Get("X-Empty"))
}

func TestGetUserID_Empty(t *testing.T) {
	_, ok := GetUserID(WithUserID(context.Background(), ""))
	assert.False(t, ok)
}
