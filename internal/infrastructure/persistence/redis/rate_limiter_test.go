package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRateLimitKey(t *testing.T) {
	assert.Equal(t, "ratelimit:10.0.0.1:/v1/books/:book_id/generate", BuildRateLimitKey("10.0.0.1", "/v1/books/:book_id/generate"))
}

func TestRateLimiterFailsFastWhenRedisDown(t *testing.T) {
	limiter := NewRateLimiter(newUnreachableClient(t))
	ctx := context.Background()
	key := BuildRateLimitKey("10.0.0.1", "/v1/chat")

	_, err := limiter.Allow(ctx, key, 30, time.Minute)
	require.Error(t, err)

	_, err = limiter.Remaining(ctx, key, 30, time.Minute)
	require.Error(t, err)

	_, err = limiter.Reset(ctx, key, time.Minute)
	require.Error(t, err)
}
