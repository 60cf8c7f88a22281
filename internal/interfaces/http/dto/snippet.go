package dto

import (
	"time"

	"fiction-ai-api/internal/domain/entity"
)

// CreateSnippetRequest 保存片段请求。BookID 为空表示全局片段。
type CreateSnippetRequest struct {
	BookID string   `json:"book_id,omitempty"`
	Title  string   `json:"title,omitempty"`
	Text   string   `json:"text" binding:"required"`
	Tags   []string `json:"tags,omitempty"`
	Source string   `json:"source,omitempty"`
	URL    string   `json:"url,omitempty"`
}

// SnippetResponse 片段响应
type SnippetResponse struct {
	SnippetID string    `json:"snippet_id"`
	BookID    string    `json:"book_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Text      string    `json:"text"`
	Tags      []string  `json:"tags,omitempty"`
	Source    string    `json:"source"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SnippetSearchResponse 片段检索响应
type SnippetSearchResponse struct {
	Query    string             `json:"query"`
	Snippets []*SnippetResponse `json:"snippets"`
}

// ChatLogResponse 对话日志响应
type ChatLogResponse struct {
	BookID  string                 `json:"book_id"`
	Entries []*entity.ChatLogEntry `json:"entries"`
}

// NewSnippetResponse 由片段实体构造响应
func NewSnippetResponse(sn *entity.Snippet) *SnippetResponse {
	return &SnippetResponse{
		SnippetID: sn.SnippetID,
		BookID:    sn.BookID,
		Title:     sn.Title,
		Text:      sn.Text,
		Tags:      sn.Tags,
		Source:    sn.Source,
		URL:       sn.URL,
		CreatedAt: sn.CreatedAt,
	}
}

// NewSnippetResponses 批量构造片段响应
func NewSnippetResponses(snippets []*entity.Snippet) []*SnippetResponse {
	out := make([]*SnippetResponse, 0, len(snippets))
	for _, sn := range snippets {
		out = append(out, NewSnippetResponse(sn))
	}
	return out
}
