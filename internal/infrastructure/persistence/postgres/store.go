package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"fiction-ai-api/internal/domain/entity"
	"fiction-ai-api/internal/domain/repository"
	"fiction-ai-api/internal/infrastructure/persistence/redis"
	"fiction-ai-api/pkg/logger"
)

// projectRecord 工作区单例行，Books 以 jsonb 内嵌
type projectRecord struct {
	ID            int              `gorm:"primaryKey"`
	SchemaVersion int              `gorm:"not null"`
	ProjectID     string           `gorm:"type:uuid;not null"`
	CreatedAt     time.Time        `gorm:"not null"`
	ActiveBookID  string           `gorm:"type:varchar(36)"`
	Books         []entity.BookRef `gorm:"type:jsonb;serializer:json"`
}

// TableName 指定表名
func (projectRecord) TableName() string {
	return "project"
}

const projectRowID = 1

// errNotFound 回源未命中哨兵：GetOrLoadSafe 只缓存命中的记录，
// 未命中由调用方还原为 (nil, nil)。
var errNotFound = errors.New("record not found")

// Store 文档库后端实现，与文件后端语义一致。
// 可选挂接 Redis 读缓存，缓存失效永远跟在成功写之后。
type Store struct {
	client   *Client
	cache    *redis.Cache
	cacheTTL time.Duration
}

var _ repository.Store = (*Store)(nil)

// NewStore 创建文档库存储；cache 传 nil 表示不启用缓存
func NewStore(client *Client, cache *redis.Cache, cacheTTL time.Duration) *Store {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Store{client: client, cache: cache, cacheTTL: cacheTTL}
}

// Close 关闭底层连接
func (s *Store) Close() error {
	return s.client.Close()
}

func toProject(rec *projectRecord) *entity.Project {
	return &entity.Project{
		SchemaVersion: rec.SchemaVersion,
		ProjectID:     rec.ProjectID,
		CreatedAt:     rec.CreatedAt,
		ActiveBookID:  rec.ActiveBookID,
		Books:         rec.Books,
	}
}

func toRecord(p *entity.Project) *projectRecord {
	return &projectRecord{
		ID:            projectRowID,
		SchemaVersion: p.SchemaVersion,
		ProjectID:     p.ProjectID,
		CreatedAt:     p.CreatedAt,
		ActiveBookID:  p.ActiveBookID,
		Books:         p.Books,
	}
}

// EnsureProject 幂等获取或创建工作区单例。
// 工作区是所有请求的热点读，经 Read-Through 缓存回源。
func (s *Store) EnsureProject(ctx context.Context) (*entity.Project, error) {
	ctx, span := tracer.Start(ctx, "postgres.Store.EnsureProject")
	defer span.End()

	if s.cache == nil {
		return s.ensureProjectDB(ctx)
	}

	data, err := s.cache.GetOrLoadSafe(ctx, redis.WorkspaceKey(), s.cacheTTL, func() (interface{}, error) {
		return s.ensureProjectDB(ctx)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	var p entity.Project
	if err := json.Unmarshal(data, &p); err != nil {
		logger.Debug(ctx, "cache payload decode failed", "key", redis.WorkspaceKey(), "error", err.Error())
		return s.ensureProjectDB(ctx)
	}
	return &p, nil
}

func (s *Store) ensureProjectDB(ctx context.Context) (*entity.Project, error) {
	var rec projectRecord
	err := s.client.db.WithContext(ctx).First(&rec, "id = ?", projectRowID).Error
	if err == gorm.ErrRecordNotFound {
		fresh := entity.NewProject()
		if err := s.client.db.WithContext(ctx).Create(toRecord(fresh)).Error; err != nil {
			return nil, fmt.Errorf("failed to create project: %w", err)
		}
		return fresh, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	return toProject(&rec), nil
}

// SaveProject 整体覆盖写入工作区记录
func (s *Store) SaveProject(ctx context.Context, project *entity.Project) error {
	ctx, span := tracer.Start(ctx, "postgres.Store.SaveProject")
	defer span.End()

	if err := s.client.db.WithContext(ctx).Save(toRecord(project)).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save project: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.InvalidateWorkspace(ctx); err != nil {
			logger.Debug(ctx, "workspace cache invalidation failed", "error", err.Error())
		}
	}
	return nil
}

// CreateBook 追加书引用并设为激活书
func (s *Store) CreateBook(ctx context.Context, title string) (*entity.BookRef, error) {
	project, err := s.EnsureProject(ctx)
	if err != nil {
		return nil, err
	}
	ref := entity.NewBookRef(title)
	project.Books = append(project.Books, ref)
	project.ActiveBookID = ref.BookID
	if err := s.SaveProject(ctx, project); err != nil {
		return nil, err
	}
	return &ref, nil
}

// UpdateBookTitle 更新书标题与 slug
func (s *Store) UpdateBookTitle(ctx context.Context, bookID, title string) error {
	project, err := s.EnsureProject(ctx)
	if err != nil {
		return err
	}
	ref := project.FindBook(bookID)
	if ref == nil {
		return fmt.Errorf("book %s not found", bookID)
	}
	t := strings.TrimSpace(title)
	if t == "" {
		t = "未命名小说"
	}
	ref.Title = t
	ref.Slug = entity.Slugify(t)
	ref.UpdatedAt = time.Now().UTC()
	return s.SaveProject(ctx, project)
}

// SetActiveBook 切换激活书
func (s *Store) SetActiveBook(ctx context.Context, bookID string) error {
	project, err := s.EnsureProject(ctx)
	if err != nil {
		return err
	}
	if project.FindBook(bookID) == nil {
		return fmt.Errorf("book %s not found", bookID)
	}
	project.ActiveBookID = bookID
	return s.SaveProject(ctx, project)
}

// DeleteBook 移除书引用并级联删除该书全部数据
func (s *Store) DeleteBook(ctx context.Context, bookID string) error {
	project, err := s.EnsureProject(ctx)
	if err != nil {
		return err
	}
	if !project.RemoveBook(bookID) {
		return fmt.Errorf("book %s not found", bookID)
	}
	if err := s.SaveProject(ctx, project); err != nil {
		return err
	}
	return s.DeleteBookAllData(ctx, bookID)
}

// SaveBookState 写入书状态
func (s *Store) SaveBookState(ctx context.Context, state *entity.BookState) error {
	ctx, span := tracer.Start(ctx, "postgres.Store.SaveBookState")
	defer span.End()

	if err := s.client.db.WithContext(ctx).Save(state).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save book state: %w", err)
	}
	s.cacheInvalidate(ctx, redis.BookStateKey(state.BookID))
	return nil
}

// LoadBookState 读取书状态，未命中返回 (nil, nil)
func (s *Store) LoadBookState(ctx context.Context, bookID string) (*entity.BookState, error) {
	ctx, span := tracer.Start(ctx, "postgres.Store.LoadBookState")
	defer span.End()

	if s.cache == nil {
		state, err := s.loadBookStateDB(ctx, bookID)
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		return state, nil
	}

	data, err := s.cache.GetOrLoadSafe(ctx, redis.BookStateKey(bookID), s.cacheTTL, func() (interface{}, error) {
		return s.loadBookStateDB(ctx, bookID)
	})
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	var state entity.BookState
	if err := json.Unmarshal(data, &state); err != nil {
		logger.Debug(ctx, "cache payload decode failed", "key", redis.BookStateKey(bookID), "error", err.Error())
		state, err := s.loadBookStateDB(ctx, bookID)
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return state, err
	}
	return &state, nil
}

func (s *Store) loadBookStateDB(ctx context.Context, bookID string) (*entity.BookState, error) {
	var state entity.BookState
	err := s.client.db.WithContext(ctx).First(&state, "book_id = ?", bookID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load book state: %w", err)
	}
	return &state, nil
}

// SaveOutline 整体覆盖大纲。
// 大纲写后紧跟批量写章，走 Write-Through 让缓存立即可读。
func (s *Store) SaveOutline(ctx context.Context, bookID, markdown string) error {
	ctx, span := tracer.Start(ctx, "postgres.Store.SaveOutline")
	defer span.End()

	outline := &entity.Outline{BookID: bookID, Markdown: markdown, UpdatedAt: time.Now().UTC()}
	write := func() error {
		return s.client.db.WithContext(ctx).Save(outline).Error
	}

	var err error
	if s.cache != nil {
		err = s.cache.SetWithDB(ctx, redis.OutlineKey(bookID), outline, s.cacheTTL, write)
	} else {
		err = write()
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save outline: %w", err)
	}
	return nil
}

// LoadOutline 读取大纲，未命中返回 (nil, nil)
func (s *Store) LoadOutline(ctx context.Context, bookID string) (*entity.Outline, error) {
	ctx, span := tracer.Start(ctx, "postgres.Store.LoadOutline")
	defer span.End()

	if s.cache == nil {
		outline, err := s.loadOutlineDB(ctx, bookID)
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		return outline, nil
	}

	data, err := s.cache.GetOrLoadSafe(ctx, redis.OutlineKey(bookID), s.cacheTTL, func() (interface{}, error) {
		return s.loadOutlineDB(ctx, bookID)
	})
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	var outline entity.Outline
	if err := json.Unmarshal(data, &outline); err != nil {
		logger.Debug(ctx, "cache payload decode failed", "key", redis.OutlineKey(bookID), "error", err.Error())
		outline, err := s.loadOutlineDB(ctx, bookID)
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return outline, err
	}
	return &outline, nil
}

func (s *Store) loadOutlineDB(ctx context.Context, bookID string) (*entity.Outline, error) {
	var outline entity.Outline
	err := s.client.db.WithContext(ctx).First(&outline, "book_id = ?", bookID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load outline: %w", err)
	}
	return &outline, nil
}

// SaveChapter 单行覆盖写入：标题与正文同行落库
func (s *Store) SaveChapter(ctx context.Context, chapter *entity.Chapter) error {
	ctx, span := tracer.Start(ctx, "postgres.Store.SaveChapter")
	defer span.End()

	if err := s.client.db.WithContext(ctx).Save(chapter).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save chapter: %w", err)
	}
	s.cacheInvalidate(ctx, redis.ChapterIndexKey(chapter.BookID))
	return nil
}

// LoadChapter 读取章节，未命中返回 (nil, nil)
func (s *Store) LoadChapter(ctx context.Context, bookID string, number int) (*entity.Chapter, error) {
	ctx, span := tracer.Start(ctx, "postgres.Store.LoadChapter")
	defer span.End()

	var chapter entity.Chapter
	err := s.client.db.WithContext(ctx).
		First(&chapter, "book_id = ? AND number = ?", bookID, number).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load chapter: %w", err)
	}
	return &chapter, nil
}

// ListChapters 按章号升序返回目录
func (s *Store) ListChapters(ctx context.Context, bookID string) ([]entity.ChapterIndexEntry, error) {
	ctx, span := tracer.Start(ctx, "postgres.Store.ListChapters")
	defer span.End()

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, redis.ChapterIndexKey(bookID)); err == nil {
			var index []entity.ChapterIndexEntry
			if err := json.Unmarshal(data, &index); err == nil {
				return index, nil
			}
		}
	}

	var index []entity.ChapterIndexEntry
	err := s.client.db.WithContext(ctx).
		Model(&entity.Chapter{}).
		Select("number", "title", "updated_at").
		Where("book_id = ?", bookID).
		Order("number ASC").
		Find(&index).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	s.cacheSet(ctx, redis.ChapterIndexKey(bookID), index)
	return index, nil
}

// NextChapterNumber 现有最大章号加一，无章节时为 1
func (s *Store) NextChapterNumber(ctx context.Context, bookID string) (int, error) {
	ctx, span := tracer.Start(ctx, "postgres.Store.NextChapterNumber")
	defer span.End()

	var max *int
	err := s.client.db.WithContext(ctx).
		Model(&entity.Chapter{}).
		Select("MAX(number)").
		Where("book_id = ?", bookID).
		Scan(&max).Error
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to query max chapter number: %w", err)
	}
	if max == nil {
		return 1, nil
	}
	return *max + 1, nil
}

// AddSnippet 写入片段
func (s *Store) AddSnippet(ctx context.Context, snippet *entity.Snippet) error {
	ctx, span := tracer.Start(ctx, "postgres.Store.AddSnippet")
	defer span.End()

	if err := s.client.db.WithContext(ctx).Create(snippet).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create snippet: %w", err)
	}
	return nil
}

// ListSnippets 返回某本书可见的全部片段，按创建时间倒序
func (s *Store) ListSnippets(ctx context.Context, bookID string) ([]*entity.Snippet, error) {
	ctx, span := tracer.Start(ctx, "postgres.Store.ListSnippets")
	defer span.End()

	var snippets []*entity.Snippet
	err := s.client.db.WithContext(ctx).
		Where("book_id = '' OR book_id = ?", bookID).
		Order("created_at DESC").
		Find(&snippets).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list snippets: %w", err)
	}
	return snippets, nil
}

// snippetSearchVector 与文件后端 FTS5 索引覆盖同样的列：标题、正文、标签。
// tags 为 jsonb 数组，转 text 后按词项参与检索。
const snippetSearchVector = "to_tsvector('simple', coalesce(title, '') || ' ' || text || ' ' || coalesce(tags::text, ''))"

// SearchSnippetIndex 结构化索引查询。
// simple 配置按空白切词，纯 CJK 查询整句一个词项，行为与文件后端
// 的 FTS5 索引一致：检索层负责在 CJK 场景走子串兜底。
func (s *Store) SearchSnippetIndex(ctx context.Context, bookID, query string, limit int) ([]*entity.Snippet, error) {
	ctx, span := tracer.Start(ctx, "postgres.Store.SearchSnippetIndex")
	defer span.End()

	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	var snippets []*entity.Snippet
	err := s.client.db.WithContext(ctx).
		Where("book_id = '' OR book_id = ?", bookID).
		Where(snippetSearchVector+" @@ plainto_tsquery('simple', ?)", q).
		Order("created_at DESC").
		Limit(limit).
		Find(&snippets).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("snippet index search failed: %w", err)
	}
	return snippets, nil
}

// AppendChatLog 追加对话日志
func (s *Store) AppendChatLog(ctx context.Context, bookID string, entry *entity.ChatLogEntry) error {
	ctx, span := tracer.Start(ctx, "postgres.Store.AppendChatLog")
	defer span.End()

	entry.BookID = bookID
	if err := s.client.db.WithContext(ctx).Create(entry).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to append chat log: %w", err)
	}
	return nil
}

// ListChatLog 按写入顺序返回对话日志
func (s *Store) ListChatLog(ctx context.Context, bookID string) ([]*entity.ChatLogEntry, error) {
	ctx, span := tracer.Start(ctx, "postgres.Store.ListChatLog")
	defer span.End()

	var entries []*entity.ChatLogEntry
	err := s.client.db.WithContext(ctx).
		Where("book_id = ?", bookID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list chat log: %w", err)
	}
	return entries, nil
}

// DeleteBookAllData 在一个事务里删除该书的全部数据；全局片段不受影响
func (s *Store) DeleteBookAllData(ctx context.Context, bookID string) error {
	ctx, span := tracer.Start(ctx, "postgres.Store.DeleteBookAllData")
	defer span.End()

	err := s.client.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&entity.Chapter{}, "book_id = ?", bookID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&entity.Outline{}, "book_id = ?", bookID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&entity.ChatLogEntry{}, "book_id = ?", bookID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&entity.Snippet{}, "book_id = ?", bookID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&entity.BookState{}, "book_id = ?", bookID).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete book data: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.InvalidateBook(ctx, bookID); err != nil {
			logger.Warn(ctx, "book cache invalidation failed", "book_id", bookID, "error", err.Error())
		}
	}
	return nil
}

func (s *Store) cacheSet(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		logger.Debug(ctx, "cache set failed", "key", key, "error", err.Error())
	}
}

func (s *Store) cacheInvalidate(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		logger.Debug(ctx, "cache invalidation failed", "error", err.Error())
	}
}
