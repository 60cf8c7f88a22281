// Package entity 定义领域实体
package entity

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion 当前工作区记录的结构版本
const SchemaVersion = 1

// BookStatus 书状态
type BookStatus string

const (
	BookStatusActive   BookStatus = "active"
	BookStatusArchived BookStatus = "archived"
)

// BookRef 工作区内一本书的引用，仅存在于 Project.Books 中
type BookRef struct {
	BookID    string     `json:"book_id"`
	Title     string     `json:"title"`
	Slug      string     `json:"slug"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Status    BookStatus `json:"status"`
	IsPublic  bool       `json:"is_public"`
	UserID    string     `json:"user_id,omitempty"`
}

// Project 工作区单例，持有书的列表与当前激活书
type Project struct {
	SchemaVersion int       `json:"schema_version"`
	ProjectID     string    `json:"project_id"`
	CreatedAt     time.Time `json:"created_at"`
	// ActiveBookID 为空表示没有激活的书；非空时必须指向 Books 中存在的一本
	ActiveBookID string    `json:"active_book_id,omitempty"`
	Books        []BookRef `json:"books"`
}

// NewProject 创建空白工作区记录
func NewProject() *Project {
	return &Project{
		SchemaVersion: SchemaVersion,
		ProjectID:     uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		Books:         []BookRef{},
	}
}

// NewBookRef 创建书引用
func NewBookRef(title string) BookRef {
	now := time.Now().UTC()
	t := strings.TrimSpace(title)
	if t == "" {
		t = "未命名小说"
	}
	return BookRef{
		BookID:    uuid.NewString(),
		Title:     t,
		Slug:      Slugify(t),
		CreatedAt: now,
		UpdatedAt: now,
		Status:    BookStatusActive,
	}
}

var (
	slugSpaceRe   = regexp.MustCompile(`\s+`)
	slugInvalidRe = regexp.MustCompile("[^a-z0-9\\-一-鿿]")
	slugDashRe    = regexp.MustCompile(`-+`)

	titlePunctRe = regexp.MustCompile("[《》\"'“”]")
)

// Slugify 将标题转换为 URL 安全的 slug，保留 CJK 字符
func Slugify(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = slugSpaceRe.ReplaceAllString(s, "-")
	s = slugInvalidRe.ReplaceAllString(s, "")
	s = strings.Trim(slugDashRe.ReplaceAllString(s, "-"), "-")
	if s == "" {
		return "book"
	}
	return s
}

// FindBook 按 ID 查找书引用
func (p *Project) FindBook(bookID string) *BookRef {
	for i := range p.Books {
		if p.Books[i].BookID == bookID {
			return &p.Books[i]
		}
	}
	return nil
}

// FindBooks 两轮匹配查书。
// 第一轮：标题、slug 或 ID 的大小写不敏感精确匹配；
// 第二轮（仅当第一轮为空）：去除引号书名号后的标题包含匹配。
func (p *Project) FindBooks(query string) []BookRef {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var hits []BookRef
	for _, b := range p.Books {
		if q == strings.ToLower(b.Title) || q == strings.ToLower(b.Slug) || q == strings.ToLower(b.BookID) {
			hits = append(hits, b)
		}
	}
	if len(hits) > 0 {
		return hits
	}

	q2 := titlePunctRe.ReplaceAllString(q, "")
	if q2 == "" {
		return nil
	}
	for _, b := range p.Books {
		t2 := titlePunctRe.ReplaceAllString(strings.ToLower(b.Title), "")
		if strings.Contains(t2, q2) {
			hits = append(hits, b)
		}
	}
	return hits
}

// RemoveBook 从列表中移除书引用；若删除的是激活书，激活权顺延给第一本
func (p *Project) RemoveBook(bookID string) bool {
	idx := -1
	for i := range p.Books {
		if p.Books[i].BookID == bookID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	p.Books = append(p.Books[:idx], p.Books[idx+1:]...)
	if p.ActiveBookID == bookID {
		if len(p.Books) > 0 {
			p.ActiveBookID = p.Books[0].BookID
		} else {
			p.ActiveBookID = ""
		}
	}
	return true
}
