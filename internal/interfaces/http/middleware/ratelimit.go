// Package middleware 提供 HTTP 中间件
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fiction-ai-api/internal/infrastructure/persistence/redis"
)

// Limiter 滑动窗口限流器能力
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
	Reset(ctx context.Context, key string, window time.Duration) (time.Duration, error)
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// Enabled 是否启用限流
	Enabled bool
	// RequestsPerMinute 每个客户端每分钟允许的请求数
	RequestsPerMinute int
}

// RateLimit 生成类端点的限流中间件，按 客户端 IP + 路由 滑动窗口计数，
// 并通过 X-RateLimit-* 头暴露配额。限流器故障时放行，避免 Redis 抖动
// 影响业务。
func RateLimit(cfg RateLimitConfig, limiter Limiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 30
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := redis.BuildRateLimitKey(c.ClientIP(), c.FullPath())

		allowed, err := limiter.Allow(ctx, key, cfg.RequestsPerMinute, time.Minute)
		if err != nil {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerMinute))
		if remaining, err := limiter.Remaining(ctx, key, cfg.RequestsPerMinute, time.Minute); err == nil {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}

		if !allowed {
			if wait, err := limiter.Reset(ctx, key, time.Minute); err == nil && wait > 0 {
				c.Header("Retry-After", strconv.Itoa(int(wait/time.Second)+1))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":     429,
				"message":  "rate limit exceeded",
				"trace_id": c.GetString("trace_id"),
			})
			return
		}

		c.Next()
	}
}
