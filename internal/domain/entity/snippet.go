package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Snippet 参考片段，创建后不可变。
// BookID 为空表示全局片段，对所有书的检索可见。
type Snippet struct {
	SnippetID string    `json:"snippet_id" gorm:"type:uuid;primaryKey"`
	BookID    string    `json:"book_id,omitempty" gorm:"type:varchar(36);index"`
	CreatedAt time.Time `json:"created_at"`
	Title     string    `json:"title" gorm:"type:varchar(255)"`
	Text      string    `json:"text" gorm:"type:text;not null"`
	Tags      []string  `json:"tags" gorm:"type:jsonb;serializer:json"`
	Source    string    `json:"source" gorm:"type:varchar(64)"`
	URL       string    `json:"url,omitempty" gorm:"type:varchar(512)"`
}

// TableName 指定表名
func (Snippet) TableName() string {
	return "snippets"
}

// NewSnippet 创建片段
func NewSnippet(bookID, title, text string, tags []string, source, url string) *Snippet {
	cleaned := make([]string, 0, len(tags))
	for _, t := range tags {
		if s := strings.TrimSpace(t); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	if source == "" {
		source = "user"
	}
	return &Snippet{
		SnippetID: uuid.NewString(),
		BookID:    bookID,
		CreatedAt: time.Now().UTC(),
		Title:     strings.TrimSpace(title),
		Text:      strings.TrimSpace(text),
		Tags:      cleaned,
		Source:    source,
		URL:       url,
	}
}

// IsGlobal 是否全局片段
func (s *Snippet) IsGlobal() bool {
	return s.BookID == ""
}

// VisibleTo 片段对某本书是否可见
func (s *Snippet) VisibleTo(bookID string) bool {
	return s.IsGlobal() || s.BookID == bookID
}
