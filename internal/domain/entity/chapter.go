package entity

import (
	"fmt"
	"time"
)

// Chapter 章节，以 (book_id, number) 唯一定位。
// 标题与正文作为一个原子单元整体覆盖写入。
type Chapter struct {
	BookID          string    `json:"book_id" gorm:"type:uuid;primaryKey"`
	Number          int       `json:"number" gorm:"primaryKey"`
	Title           string    `json:"title" gorm:"type:varchar(255)"`
	ContentMarkdown string    `json:"content_markdown" gorm:"type:text"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Chapter) TableName() string {
	return "chapters"
}

// ChapterIndexEntry 章节目录项，不含正文
type ChapterIndexEntry struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewChapter 创建章节
func NewChapter(bookID string, number int, title, content string) *Chapter {
	if title == "" {
		title = DefaultChapterTitle(number)
	}
	return &Chapter{
		BookID:          bookID,
		Number:          number,
		Title:           title,
		ContentMarkdown: content,
		UpdatedAt:       time.Now().UTC(),
	}
}

// DefaultChapterTitle 默认章节标题
func DefaultChapterTitle(number int) string {
	return fmt.Sprintf("第%d章", number)
}

// WordCount 按 rune 计的正文字数
func (c *Chapter) WordCount() int {
	return len([]rune(c.ContentMarkdown))
}
