package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"fiction-ai-api/internal/application/writing"
	"fiction-ai-api/internal/domain/repository"
	"fiction-ai-api/internal/infrastructure/llm"
	"fiction-ai-api/internal/interfaces/http/dto"
	apperrors "fiction-ai-api/pkg/errors"
)

// ChapterHandler 章节处理器
type ChapterHandler struct {
	store    repository.Store
	runner   *writing.Runner
	provider llm.Provider
}

// NewChapterHandler 创建章节处理器
func NewChapterHandler(store repository.Store, runner *writing.Runner, provider llm.Provider) *ChapterHandler {
	return &ChapterHandler{store: store, runner: runner, provider: provider}
}

// ListChapters 列出书的章节目录（不含正文）
// GET /v1/books/:bid/chapters
func (h *ChapterHandler) ListChapters(c *gin.Context) {
	ctx := c.Request.Context()
	bookID := dto.BindBookID(c)

	if _, err := loadBookState(ctx, h.store, bookID); err != nil {
		dto.AppError(c, err)
		return
	}

	entries, err := h.store.ListChapters(ctx, bookID)
	if err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to list chapters"))
		return
	}
	dto.Success(c, dto.ChapterIndexResponse{BookID: bookID, Chapters: entries})
}

// GetChapter 获取某一章的完整内容
// GET /v1/books/:bid/chapters/:number
func (h *ChapterHandler) GetChapter(c *gin.Context) {
	ctx := c.Request.Context()
	bookID := dto.BindBookID(c)

	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number <= 0 {
		dto.BadRequest(c, "chapter number must be a positive integer")
		return
	}

	if _, err := loadBookState(ctx, h.store, bookID); err != nil {
		dto.AppError(c, err)
		return
	}

	chapter, err := h.store.LoadChapter(ctx, bookID, number)
	if err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to load chapter"))
		return
	}
	if chapter == nil {
		dto.AppError(c, apperrors.New(apperrors.CodeChapterNotFound, "chapter not found").
			WithDetails(map[string]any{"book_id": bookID, "number": number}))
		return
	}
	dto.Success(c, dto.NewChapterResponse(chapter))
}

// GenerateChapter 生成单个章节。number 缺省时取下一章号。
// POST /v1/books/:bid/chapters/generate
func (h *ChapterHandler) GenerateChapter(c *gin.Context) {
	var req dto.GenerateChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		dto.BadRequest(c, "invalid request body")
		return
	}

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

	number := req.Number
	if number == 0 {
		number, err = h.store.NextChapterNumber(ctx, bookID)
		if err != nil {
			dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to resolve chapter number"))
			return
		}
	}
	if number <= 0 {
		dto.BadRequest(c, "chapter number must be a positive integer")
		return
	}

	chapter, _, err := h.runner.GenerateChapter(ctx, state, outline.Markdown, number, writing.RunOptions{
		BookID:             bookID,
		Instruction:        req.Instruction,
		TargetChapterWords: req.TargetChapterWords,
		RetrieveQuery:      req.RetrieveQuery,
		RetrieveLimit:      req.RetrieveLimit,
		Overwrite:          req.Overwrite,
	})
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Created(c, dto.NewChapterResponse(chapter))
}

// GenerateAll 批量生成章节区间，严格按章号升序。
// 失败时响应里带已完成/已跳过的进度。
// POST /v1/books/:bid/chapters/all
func (h *ChapterHandler) GenerateAll(c *gin.Context) {
	var req dto.GenerateAllRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		dto.BadRequest(c, "invalid request body")
		return
	}

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

	result, err := h.runner.GenerateBatch(ctx, state, outline.Markdown, writing.RunOptions{
		BookID:             bookID,
		StartNumber:        req.StartNumber,
		EndNumber:          req.EndNumber,
		Instruction:        req.Instruction,
		TargetChapterWords: req.TargetChapterWords,
		RetrieveQuery:      req.RetrieveQuery,
		RetrieveLimit:      req.RetrieveLimit,
		Overwrite:          req.Overwrite,
	})
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, result)
}
