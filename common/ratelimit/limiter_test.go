package ratelimit

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/pulse/vidmod/common/config"
	"github.com/pulse/vidmod/common/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScriptResult(t *testing.T) {
	res, err := parseScriptResult([]interface{}{int64(0), int64(11), int64(10), int64(42)})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(11), res.CurrentCount)
	assert.Equal(t, int64(10), res.Limit)
	assert.Equal(t, int64(42), res.RetryAfterSeconds)

	_, err = parseScriptResult([]interface{}{int64(1)})
	assert.Error(t, err)

	_, err = parseScriptResult([]interface{}{"1", int64(1), int64(1), int64(0)})
	assert.Error(t, err)
}

func TestUploadPolicyFromConfig(t *testing.T) {
	assert.Equal(t, DefaultUploadPolicy, UploadPolicyFromConfig(config.RateLimitConfig{}))

	p := UploadPolicyFromConfig(config.RateLimitConfig{UploadsPerWindow: 3, WindowSeconds: 10})
	assert.Equal(t, Policy{Limit: 3, WindowSeconds: 10}, p)
}

// TestRateLimiter_Redis runs against a live Redis when REDIS_TEST_HOST is set
func TestRateLimiter_Redis(t *testing.T) {
	host := os.Getenv("REDIS_TEST_HOST")
	if host == "" {
		t.Skip("REDIS_TEST_HOST not set")
	}

	client := redis.NewClient(&redis.Options{Addr: host + ":6379"})
	defer client.Close()

	limiter := NewRateLimiter(client, logger.Discard())
	ctx := context.Background()
	user := "user-" + uuid.NewString()
	policy := Policy{Limit: 2, WindowSeconds: 30}

	for i := 0; i < 2; i++ {
		res, err := limiter.CheckUserLimit(ctx, user, "upload", policy)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := limiter.CheckUserLimit(ctx, user, "upload", policy)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfterSeconds)
}
