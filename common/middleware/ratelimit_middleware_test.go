package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pulse/vidmod/common/apperrors"
	"github.com/pulse/vidmod/common/logger"
	"github.com/pulse/vidmod/common/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockLimiter returns a canned result
type MockLimiter struct {
	result *ratelimit.RateLimitResult
	err    error
	calls  []string
}

func (m *MockLimiter) CheckUserLimit(ctx context.Context, username, action string, policy ratelimit.Policy) (*ratelimit.RateLimitResult, error) {
	m.calls = append(m.calls, username+":"+action)
	return m.result, m.err
}

func runLimited(t *testing.T, limiter *MockLimiter, username string) (*httptest.ResponseRecorder, bool, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/video/upload-video/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if username != "" {
		c.Set(UsernameContextKey, username)
	}

	called := false
	mw := UserRateLimitMiddleware(limiter, "upload", ratelimit.DefaultUploadPolicy, logger.Discard())
	err := mw(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})(c)
	return rec, called, err
}

func TestUserRateLimit_Allowed(t *testing.T) {
	limiter := &MockLimiter{result: &ratelimit.RateLimitResult{Allowed: true}}

	_, called, err := runLimited(t, limiter, "alice")
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, []string{"alice:upload"}, limiter.calls)
}

func TestUserRateLimit_Exceeded(t *testing.T) {
	limiter := &MockLimiter{result: &ratelimit.RateLimitResult{Allowed: false, RetryAfterSeconds: 17}}

	rec, called, err := runLimited(t, limiter, "alice")
	assert.False(t, called)
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)
	assert.Equal(t, "17", rec.Header().Get("Retry-After"))
}

func TestUserRateLimit_FailsOpen(t *testing.T) {
	limiter := &MockLimiter{err: errors.New("redis down")}

	_, called, err := runLimited(t, limiter, "alice")
	require.NoError(t, err)
	assert.True(t, called)
}

func TestUserRateLimit_SkipsAnonymous(t *testing.T) {
	limiter := &MockLimiter{}

	_, called, err := runLimited(t, limiter, "")
	require.NoError(t, err)
	assert.True(t, called)
	assert.Empty(t, limiter.calls)
}
