// Package repository 定义持久化层接口
package repository

import (
	"context"

	"fiction-ai-api/internal/domain/entity"
)

// Store 工作区持久化接口。
// 两个后端实现（file / postgres）语义一致；单写者假设下，
// 工作区级变更是对整条 Project 记录的读-改-写。
//
// 未命中的读操作返回 (nil, nil)，调用方负责映射为 NOT_FOUND 类错误。
type Store interface {
	// EnsureProject 幂等获取或创建工作区单例
	EnsureProject(ctx context.Context) (*entity.Project, error)
	// SaveProject 整体覆盖写入工作区记录
	SaveProject(ctx context.Context, project *entity.Project) error

	// CreateBook 追加书引用并设为激活书
	CreateBook(ctx context.Context, title string) (*entity.BookRef, error)
	// UpdateBookTitle 更新书标题与 slug
	UpdateBookTitle(ctx context.Context, bookID, title string) error
	// SetActiveBook 切换激活书
	SetActiveBook(ctx context.Context, bookID string) error
	// DeleteBook 移除书引用并级联删除该书全部数据
	DeleteBook(ctx context.Context, bookID string) error

	SaveBookState(ctx context.Context, state *entity.BookState) error
	LoadBookState(ctx context.Context, bookID string) (*entity.BookState, error)

	// SaveOutline 整体覆盖大纲
	SaveOutline(ctx context.Context, bookID, markdown string) error
	LoadOutline(ctx context.Context, bookID string) (*entity.Outline, error)

	// SaveChapter 原子写入章节（目录项与正文作为一个单元）
	SaveChapter(ctx context.Context, chapter *entity.Chapter) error
	LoadChapter(ctx context.Context, bookID string, number int) (*entity.Chapter, error)
	ListChapters(ctx context.Context, bookID string) ([]entity.ChapterIndexEntry, error)
	// NextChapterNumber 现有最大章号加一，无章节时为 1
	NextChapterNumber(ctx context.Context, bookID string) (int, error)

	AddSnippet(ctx context.Context, snippet *entity.Snippet) error
	// ListSnippets 返回某本书可见的全部片段（该书的加全局的），按创建时间倒序
	ListSnippets(ctx context.Context, bookID string) ([]*entity.Snippet, error)
	// SearchSnippetIndex 结构化多字段索引查询，按创建时间倒序
	SearchSnippetIndex(ctx context.Context, bookID, query string, limit int) ([]*entity.Snippet, error)

	AppendChatLog(ctx context.Context, bookID string, entry *entity.ChatLogEntry) error
	ListChatLog(ctx context.Context, bookID string) ([]*entity.ChatLogEntry, error)

	// DeleteBookAllData 删除某本书的状态、大纲、全部章节、对话日志与书内片段；
	// 全局片段与其他书不受影响
	DeleteBookAllData(ctx context.Context, bookID string) error

	Close() error
}
