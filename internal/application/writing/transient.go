package writing

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/sashabaranov/go-openai"
)

// transientMessageHints 子串兜底匹配，只在类型判断都不命中时使用
var transientMessageHints = []string{
	"connection error",
	"incomplete chunked read",
	"peer closed connection",
	"timeout",
	"temporarily unavailable",
}

// IsTransient 判断生成调用的失败是否可重试。
// 类型判断为主路径：网络错误、超时、限流、服务端 5xx；
// 都不命中时退化为保守的消息子串匹配。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range transientMessageHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
