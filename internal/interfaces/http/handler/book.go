package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fiction-ai-api/internal/application/writing"
	"fiction-ai-api/internal/domain/entity"
	"fiction-ai-api/internal/domain/repository"
	"fiction-ai-api/internal/infrastructure/llm"
	"fiction-ai-api/internal/interfaces/http/dto"
	apperrors "fiction-ai-api/pkg/errors"
)

// BookHandler 书管理处理器
type BookHandler struct {
	store    repository.Store
	provider llm.Provider
}

// NewBookHandler 创建书管理处理器
func NewBookHandler(store repository.Store, provider llm.Provider) *BookHandler {
	return &BookHandler{store: store, provider: provider}
}

// ListBooks 列出工作区内全部书
// GET /v1/books
func (h *BookHandler) ListBooks(c *gin.Context) {
	project, err := h.store.EnsureProject(c.Request.Context())
	if err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to load workspace"))
		return
	}

	books := make([]*dto.BookResponse, 0, len(project.Books))
	for _, ref := range project.Books {
		books = append(books, dto.NewBookRefResponse(ref, ref.BookID == project.ActiveBookID))
	}
	dto.Success(c, dto.BookListResponse{
		ActiveBookID: project.ActiveBookID,
		Books:        books,
	})
}

// CreateBook 创建一本书并设为激活书
// POST /v1/books
func (h *BookHandler) CreateBook(c *gin.Context) {
	var req dto.CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "title is required")
		return
	}

	ctx := c.Request.Context()
	ref, err := h.store.CreateBook(ctx, req.Title)
	if err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to create book"))
		return
	}

	state := entity.NewBookState(*ref, req.Premise, req.Genre, req.TargetWords)
	state.StyleGuide = req.StyleGuide
	if err := h.store.SaveBookState(ctx, state); err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to save book state"))
		return
	}

	dto.Created(c, dto.NewBookResponse(state, true))
}

// GetBook 获取书详情
// GET /v1/books/:bid
func (h *BookHandler) GetBook(c *gin.Context) {
	ctx := c.Request.Context()
	bookID := dto.BindBookID(c)

	state, err := loadBookState(ctx, h.store, bookID)
	if err != nil {
		dto.AppError(c, err)
		return
	}

	project, err := h.store.EnsureProject(ctx)
	if err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to load workspace"))
		return
	}
	dto.Success(c, dto.NewBookResponse(state, project.ActiveBookID == bookID))
}

// UpdateBook 更新书标题或可见性，书引用与书状态同步更新
// PATCH /v1/books/:bid
func (h *BookHandler) UpdateBook(c *gin.Context) {
	var req dto.UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body")
		return
	}
	if req.Title == nil && req.IsPublic == nil {
		dto.BadRequest(c, "nothing to update")
		return
	}

	ctx := c.Request.Context()
	bookID := dto.BindBookID(c)

	state, err := loadBookState(ctx, h.store, bookID)
	if err != nil {
		dto.AppError(c, err)
		return
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			dto.BadRequest(c, "title must not be blank")
			return
		}
		if err := h.store.UpdateBookTitle(ctx, bookID, title); err != nil {
			dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to update title"))
			return
		}
		state.Title = title
		state.Slug = entity.Slugify(title)
	}

	if req.IsPublic != nil {
		project, err := h.store.EnsureProject(ctx)
		if err != nil {
			dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to load workspace"))
			return
		}
		if ref := project.FindBook(bookID); ref != nil {
			ref.IsPublic = *req.IsPublic
			ref.UpdatedAt = time.Now().UTC()
			if err := h.store.SaveProject(ctx, project); err != nil {
				dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to save workspace"))
				return
			}
		}
		state.IsPublic = *req.IsPublic
	}

	state.Touch()
	if err := h.store.SaveBookState(ctx, state); err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to save book state"))
		return
	}

	project, err := h.store.EnsureProject(ctx)
	if err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to load workspace"))
		return
	}
	dto.Success(c, dto.NewBookResponse(state, project.ActiveBookID == bookID))
}

// ActivateBook 设置激活书
// POST /v1/books/:bid/activate
func (h *BookHandler) ActivateBook(c *gin.Context) {
	ctx := c.Request.Context()
	bookID := dto.BindBookID(c)

	project, err := h.store.EnsureProject(ctx)
	if err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to load workspace"))
		return
	}
	if project.FindBook(bookID) == nil {
		dto.AppError(c, apperrors.New(apperrors.CodeBookNotFound, "book not found").
			WithDetails(map[string]any{"book_id": bookID}))
		return
	}

	if err := h.store.SetActiveBook(ctx, bookID); err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to switch book"))
		return
	}
	dto.Success(c, gin.H{"active_book_id": bookID})
}

// DeleteBook 删除书引用并级联删除该书全部数据
// DELETE /v1/books/:bid
func (h *BookHandler) DeleteBook(c *gin.Context) {
	ctx := c.Request.Context()
	bookID := dto.BindBookID(c)

	project, err := h.store.EnsureProject(ctx)
	if err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to load workspace"))
		return
	}
	if project.FindBook(bookID) == nil {
		dto.AppError(c, apperrors.New(apperrors.CodeBookNotFound, "book not found").
			WithDetails(map[string]any{"book_id": bookID}))
		return
	}

	if err := h.store.DeleteBook(ctx, bookID); err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to delete book"))
		return
	}
	dto.NoContent(c)
}

// GetOutline 获取书的大纲
// GET /v1/books/:bid/outline
func (h *BookHandler) GetOutline(c *gin.Context) {
	ctx := c.Request.Context()
	bookID := dto.BindBookID(c)

	if _, err := loadBookState(ctx, h.store, bookID); err != nil {
		dto.AppError(c, err)
		return
	}

	outline, err := loadOutline(ctx, h.store, bookID)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.OutlineResponse{
		BookID:    outline.BookID,
		Markdown:  outline.Markdown,
		UpdatedAt: outline.UpdatedAt,
	})
}

// GenerateOutline 生成并整体覆盖书的大纲
// POST /v1/books/:bid/outline/generate
func (h *BookHandler) GenerateOutline(c *gin.Context) {
	var req dto.GenerateOutlineRequest
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

	premise := req.Premise
	if premise == "" {
		premise = state.Premise
	}
	targetWords := req.TargetWords
	if targetWords == nil {
		targetWords = state.TargetWords
	}

	markdown, err := writing.MakeOutline(ctx, h.provider, writing.OutlineRequest{
		Title:       state.Title,
		Premise:     premise,
		Genre:       state.Genre,
		TargetWords: targetWords,
	})
	if err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeLLMConnectionError, "llm error during outline generation"))
		return
	}

	if err := h.store.SaveOutline(ctx, bookID, markdown); err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to save outline"))
		return
	}

	// 请求里带了新前提时同步进书状态
	if req.Premise != "" || req.TargetWords != nil {
		if req.Premise != "" {
			state.Premise = req.Premise
		}
		if req.TargetWords != nil {
			state.TargetWords = req.TargetWords
		}
		state.Touch()
		if err := h.store.SaveBookState(ctx, state); err != nil {
			dto.AppError(c, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to save book state"))
			return
		}
	}

	dto.Success(c, dto.OutlineResponse{
		BookID:    bookID,
		Markdown:  markdown,
		UpdatedAt: time.Now().UTC(),
	})
}
