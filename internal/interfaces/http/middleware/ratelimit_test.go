package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubLimiter struct {
	allowed   bool
	allowErr  error
	remaining int
	wait      time.Duration
}

func (s *stubLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return s.allowed, s.allowErr
}

func (s *stubLimiter) Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	return s.remaining, nil
}

func (s *stubLimiter) Reset(ctx context.Context, key string, window time.Duration) (time.Duration, error) {
	return s.wait, nil
}

func doLimitedRequest(t *testing.T, cfg RateLimitConfig, limiter Limiter) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.POST("/v1/chat", RateLimit(cfg, limiter), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
	engine.ServeHTTP(w, req)
	return w
}

func TestRateLimitAllowedSetsQuotaHeaders(t *testing.T) {
	limiter := &stubLimiter{allowed: true, remaining: 7}
	w := doLimitedRequest(t, RateLimitConfig{Enabled: true, RequestsPerMinute: 30}, limiter)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "30", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "7", w.Header().Get("X-RateLimit-Remaining"))
	assert.Empty(t, w.Header().Get("Retry-After"))
}

func TestRateLimitDeniedSetsRetryAfter(t *testing.T) {
	limiter := &stubLimiter{allowed: false, remaining: 0, wait: 2500 * time.Millisecond}
	w := doLimitedRequest(t, RateLimitConfig{Enabled: true, RequestsPerMinute: 30}, limiter)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "3", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
}

func TestRateLimitFailsOpenOnLimiterError(t *testing.T) {
	limiter := &stubLimiter{allowErr: fmt.Errorf("redis down")}
	w := doLimitedRequest(t, RateLimitConfig{Enabled: true, RequestsPerMinute: 30}, limiter)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitDisabledOrNilLimiterIsNoop(t *testing.T) {
	w := doLimitedRequest(t, RateLimitConfig{Enabled: false}, &stubLimiter{allowed: false})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doLimitedRequest(t, RateLimitConfig{Enabled: true, RequestsPerMinute: 30}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
