package writing

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

type fakeNetErr struct{ timeout bool }

func (e *fakeNetErr) Error() string   { return "dial tcp: i/o failure" }
func (e *fakeNetErr) Timeout() bool   { return e.timeout }
func (e *fakeNetErr) Temporary() bool { return true }

func TestIsTransientTypedChecks(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"超时", context.DeadlineExceeded, true},
		{"网络错误", &fakeNetErr{}, true},
		{"连接重置", syscall.ECONNRESET, true},
		{"连接拒绝", syscall.ECONNREFUSED, true},
		{"限流 429", &openai.APIError{HTTPStatusCode: 429}, true},
		{"服务端 500", &openai.APIError{HTTPStatusCode: 500}, true},
		{"服务端 503", &openai.RequestError{HTTPStatusCode: 503, Err: errors.New("unavailable")}, true},
		{"客户端 400", &openai.APIError{HTTPStatusCode: 400}, false},
		{"鉴权 401", &openai.APIError{HTTPStatusCode: 401}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

// 类型判断不命中时退化为消息子串匹配
func TestIsTransientMessageFallback(t *testing.T) {
	assert.True(t, IsTransient(errors.New("upstream Connection Error while reading")))
	assert.True(t, IsTransient(errors.New("incomplete chunked read")))
	assert.True(t, IsTransient(errors.New("service temporarily unavailable")))
	assert.False(t, IsTransient(errors.New("invalid request payload")))
}

// 包装链上的瞬态错误也能识别
func TestIsTransientWrapped(t *testing.T) {
	err := errors.Join(errors.New("call failed"), syscall.EPIPE)
	assert.True(t, IsTransient(err))
}

func TestRetryDelayBounds(t *testing.T) {
	w := &Writer{jitter: func() time.Duration { return 0 }}
	assert.Equal(t, 800*time.Millisecond, w.retryDelay(0))
	assert.Equal(t, 1600*time.Millisecond, w.retryDelay(1))

	// 抖动后超过 8s 时封顶
	w.jitter = func() time.Duration { return 250 * time.Millisecond }
	assert.Equal(t, 1050*time.Millisecond, w.retryDelay(0))
	w.jitter = func() time.Duration { return 0 }
	assert.Equal(t, 3200*time.Millisecond, w.retryDelay(2))
	assert.Equal(t, 6400*time.Millisecond, w.retryDelay(3))
	assert.Equal(t, 8*time.Second, w.retryDelay(4))
}
