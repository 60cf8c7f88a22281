// Package handler 提供 HTTP 请求处理器
package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"fiction-ai-api/internal/application/writing"
	"fiction-ai-api/internal/domain/repository"
	"fiction-ai-api/internal/infrastructure/llm"
	"fiction-ai-api/internal/interfaces/http/dto"
	apperrors "fiction-ai-api/pkg/errors"
	"fiction-ai-api/pkg/logger"
)

// StreamHandler 批量生成的 SSE 流式处理器
type StreamHandler struct {
	store    repository.Store
	runner   *writing.Runner
	provider llm.Provider
}

// NewStreamHandler 创建流式处理器
func NewStreamHandler(store repository.Store, runner *writing.Runner, provider llm.Provider) *StreamHandler {
	return &StreamHandler{store: store, runner: runner, provider: provider}
}

// StreamGenerateAll 流式批量生成章节。
// 事件序列：meta → (chapter_start → chapter_token* → chapter_end)* → done；
// 失败时以 error 事件结束。前置校验失败走普通 JSON 错误。
// GET /v1/books/:bid/chapters/all/stream
func (h *StreamHandler) StreamGenerateAll(c *gin.Context) {
	ctx := c.Request.Context()
	bookID := dto.BindBookID(c)

	state, err := loadBookState(ctx, h.store, bookID)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	if h.provider == nil || !h.provider.Available() {
		dto.AppError(c, apperrors.New(apperrors.CodeLLMUnavailable, "generation credential not configured"))
		return
	}
	outline, err := loadOutline(ctx, h.store, bookID)
	if err != nil {
		dto.AppError(c, err)
		return
	}

	opts := writing.RunOptions{
		BookID:        bookID,
		StartNumber:   dto.QueryInt(c, "start_number", 0),
		EndNumber:     dto.QueryInt(c, "end_number", 0),
		Instruction:   c.Query("instruction"),
		RetrieveQuery: c.Query("retrieve_query"),
		RetrieveLimit: dto.QueryInt(c, "retrieve_limit", 0),
		Overwrite:     dto.QueryBool(c, "overwrite"),
	}
	if n := dto.QueryInt(c, "target_chapter_words", 0); n > 0 {
		opts.TargetChapterWords = &n
	}

	// 设置 SSE 响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	eventCh := make(chan writing.Event, 16)
	go func() {
		defer close(eventCh)
		err := h.runner.GenerateBatchStream(ctx, state, outline.Markdown, opts, func(ev writing.Event) error {
			select {
			case eventCh <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && ctx.Err() == nil {
			logger.Warn(ctx, "bulk stream generation failed", "book_id", bookID, "error", err.Error())
		}
	}()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-eventCh:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev.Data)
			return true
		case <-ctx.Done():
			// 客户端断开
			return false
		}
	})
}
