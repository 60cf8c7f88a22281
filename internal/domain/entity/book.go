package entity

import (
	"time"
)

// BookState 一本书的独立持久化状态，与 BookRef 一一对应。
// 标题与可见性由 Orchestrator 负责与 BookRef 保持同步。
type BookState struct {
	BookID      string    `json:"book_id" gorm:"type:uuid;primaryKey"`
	Title       string    `json:"title" gorm:"type:varchar(255);not null"`
	Slug        string    `json:"slug" gorm:"type:varchar(255)"`
	Premise     string    `json:"premise" gorm:"type:text"`
	Genre       string    `json:"genre" gorm:"type:varchar(64)"`
	TargetWords *int      `json:"target_words,omitempty"`
	StyleGuide  string    `json:"style_guide" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	IsPublic    bool      `json:"is_public" gorm:"default:false"`
	UserID      string    `json:"user_id,omitempty" gorm:"type:varchar(64)"`
}

// TableName 指定表名
func (BookState) TableName() string {
	return "books"
}

// NewBookState 基于书引用创建书状态
func NewBookState(ref BookRef, premise, genre string, targetWords *int) *BookState {
	now := time.Now().UTC()
	return &BookState{
		BookID:      ref.BookID,
		Title:       ref.Title,
		Slug:        ref.Slug,
		Premise:     premise,
		Genre:       genre,
		TargetWords: targetWords,
		CreatedAt:   now,
		UpdatedAt:   now,
		IsPublic:    ref.IsPublic,
		UserID:      ref.UserID,
	}
}

// Touch 更新修改时间
func (b *BookState) Touch() {
	b.UpdatedAt = time.Now().UTC()
}

// Outline 一本书的大纲，整体覆盖写入，从不局部修改
type Outline struct {
	BookID    string    `json:"book_id" gorm:"type:uuid;primaryKey"`
	Markdown  string    `json:"markdown" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Outline) TableName() string {
	return "outlines"
}
