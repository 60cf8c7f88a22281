package dto

import (
	"time"

	"fiction-ai-api/internal/domain/entity"
)

// CreateBookRequest 创建书请求
type CreateBookRequest struct {
	Title       string `json:"title" binding:"required"`
	Premise     string `json:"premise,omitempty"`
	Genre       string `json:"genre,omitempty"`
	TargetWords *int   `json:"target_words,omitempty"`
	StyleGuide  string `json:"style_guide,omitempty"`
}

// UpdateBookRequest 更新书请求，字段为 nil 时不变
type UpdateBookRequest struct {
	Title    *string `json:"title,omitempty"`
	IsPublic *bool   `json:"is_public,omitempty"`
}

// BookResponse 书详情响应
type BookResponse struct {
	BookID      string    `json:"book_id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Premise     string    `json:"premise,omitempty"`
	Genre       string    `json:"genre,omitempty"`
	TargetWords *int      `json:"target_words,omitempty"`
	StyleGuide  string    `json:"style_guide,omitempty"`
	IsPublic    bool      `json:"is_public"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BookListResponse 书列表响应
type BookListResponse struct {
	ActiveBookID string          `json:"active_book_id,omitempty"`
	Books        []*BookResponse `json:"books"`
}

// OutlineResponse 大纲响应
type OutlineResponse struct {
	BookID    string    `json:"book_id"`
	Markdown  string    `json:"markdown"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GenerateOutlineRequest 生成大纲请求，缺省字段取书的持久化状态
type GenerateOutlineRequest struct {
	Premise     string `json:"premise,omitempty"`
	TargetWords *int   `json:"target_words,omitempty"`
}

// NewBookResponse 由书状态构造响应
func NewBookResponse(state *entity.BookState, active bool) *BookResponse {
	return &BookResponse{
		BookID:      state.BookID,
		Title:       state.Title,
		Slug:        state.Slug,
		Premise:     state.Premise,
		Genre:       state.Genre,
		TargetWords: state.TargetWords,
		StyleGuide:  state.StyleGuide,
		IsPublic:    state.IsPublic,
		IsActive:    active,
		CreatedAt:   state.CreatedAt,
		UpdatedAt:   state.UpdatedAt,
	}
}

// NewBookRefResponse 由书引用构造响应（列表场景，不含状态字段）
func NewBookRefResponse(ref entity.BookRef, active bool) *BookResponse {
	return &BookResponse{
		BookID:    ref.BookID,
		Title:     ref.Title,
		Slug:      ref.Slug,
		IsPublic:  ref.IsPublic,
		IsActive:  active,
		CreatedAt: ref.CreatedAt,
		UpdatedAt: ref.UpdatedAt,
	}
}
