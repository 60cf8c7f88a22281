package dto

import (
	"time"

	"fiction-ai-api/internal/domain/entity"
)

// GenerateChapterRequest 单章生成请求。Number 为 0 时取下一章号。
type GenerateChapterRequest struct {
	Number             int    `json:"number,omitempty"`
	Instruction        string `json:"instruction,omitempty"`
	Overwrite          bool   `json:"overwrite,omitempty"`
	RetrieveQuery      string `json:"retrieve_query,omitempty"`
	RetrieveLimit      int    `json:"retrieve_limit,omitempty"`
	TargetChapterWords *int   `json:"target_chapter_words,omitempty"`
}

// GenerateAllRequest 批量生成请求。EndNumber 为 0 时从大纲推断计划章数。
type GenerateAllRequest struct {
	StartNumber        int    `json:"start_number,omitempty"`
	EndNumber          int    `json:"end_number,omitempty"`
	Instruction        string `json:"instruction,omitempty"`
	Overwrite          bool   `json:"overwrite,omitempty"`
	RetrieveQuery      string `json:"retrieve_query,omitempty"`
	RetrieveLimit      int    `json:"retrieve_limit,omitempty"`
	TargetChapterWords *int   `json:"target_chapter_words,omitempty"`
}

// ChapterResponse 章节详情响应
type ChapterResponse struct {
	BookID          string    `json:"book_id"`
	Number          int       `json:"number"`
	Title           string    `json:"title"`
	ContentMarkdown string    `json:"content_markdown"`
	WordCount       int       `json:"word_count"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ChapterIndexResponse 章节目录响应
type ChapterIndexResponse struct {
	BookID   string                     `json:"book_id"`
	Chapters []entity.ChapterIndexEntry `json:"chapters"`
}

// NewChapterResponse 由章节实体构造响应
func NewChapterResponse(ch *entity.Chapter) *ChapterResponse {
	return &ChapterResponse{
		BookID:          ch.BookID,
		Number:          ch.Number,
		Title:           ch.Title,
		ContentMarkdown: ch.ContentMarkdown,
		WordCount:       ch.WordCount(),
		UpdatedAt:       ch.UpdatedAt,
	}
}
