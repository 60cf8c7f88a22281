package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"fiction-ai-api/internal/application/retrieval"
	"fiction-ai-api/internal/domain/entity"
	"fiction-ai-api/internal/domain/repository"
	"fiction-ai-api/internal/interfaces/http/dto"
	apperrors "fiction-ai-api/pkg/errors"
)

// SnippetHandler 参考片段处理器
type SnippetHandler struct {
	store  repository.Store
	engine *retrieval.Engine
}

// NewSnippetHandler 创建参考片段处理器
func NewSnippetHandler(store repository.Store, engine *retrieval.Engine) *SnippetHandler {
	return &SnippetHandler{store: store, engine: engine}
}

// CreateSnippet 保存参考片段。片段创建后不可变。
// POST /v1/snippets
func (h *SnippetHandler) CreateSnippet(c *gin.Context) {
	var req dto.CreateSnippetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "text is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		dto.BadRequest(c, "text must not be blank")
		return
	}

	ctx := c.Request.Context()

	// 书内片段必须挂在存在的书上；全局片段 book_id 留空
	if req.BookID != "" {
		if _, err := loadBookState(ctx, h.store, req.BookID); err != nil {
			dto.AppError(c, err)
			return
		}
	}

	snippet := entity.NewSnippet(req.BookID, req.Title, req.Text, req.Tags, req.Source, req.URL)
	if err := h.store.AddSnippet(ctx, snippet); err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to save snippet"))
		return
	}
	dto.Created(c, dto.NewSnippetResponse(snippet))
}

// SearchSnippets 词法检索片段。book_id 缺省用当前激活书。
// GET /v1/snippets/search?q=...&book_id=...&limit=...
func (h *SnippetHandler) SearchSnippets(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		dto.BadRequest(c, "q is required")
		return
	}

	ctx := c.Request.Context()
	bookID := c.Query("book_id")
	if bookID == "" {
		project, err := h.store.EnsureProject(ctx)
		if err != nil {
			dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to load workspace"))
			return
		}
		if project.ActiveBookID == "" {
			dto.AppError(c, apperrors.New(apperrors.CodeNoActiveBook, "no active book; pass book_id explicitly"))
			return
		}
		bookID = project.ActiveBookID
	}

	limit := dto.QueryInt(c, "limit", retrieval.DefaultLimit)
	hits, err := h.engine.Search(ctx, bookID, query, limit)
	if err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "snippet search failed"))
		return
	}
	dto.Success(c, dto.SnippetSearchResponse{
		Query:    query,
		Snippets: dto.NewSnippetResponses(hits),
	})
}

// ListChatLog 列出书的对话日志
// GET /v1/books/:bid/chatlog
func (h *SnippetHandler) ListChatLog(c *gin.Context) {
	ctx := c.Request.Context()
	bookID := dto.BindBookID(c)

	if _, err := loadBookState(ctx, h.store, bookID); err != nil {
		dto.AppError(c, err)
		return
	}

	entries, err := h.store.ListChatLog(ctx, bookID)
	if err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to list chat log"))
		return
	}
	dto.Success(c, dto.ChatLogResponse{BookID: bookID, Entries: entries})
}
