package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"fiction-ai-api/internal/domain/entity"
	"fiction-ai-api/internal/domain/repository"
	"fiction-ai-api/pkg/logger"
)

var tracer = otel.Tracer("persistence.file")

// Store 文件后端实现。单写者假设下用互斥锁串行化所有操作。
type Store struct {
	paths paths
	mu    sync.Mutex
	index *snippetIndex
}

var _ repository.Store = (*Store)(nil)

// NewStore 打开工作区文件存储，并初始化片段索引
func NewStore(workspaceRoot string) (*Store, error) {
	s := &Store{paths: paths{workspaceRoot: workspaceRoot}}
	if err := os.MkdirAll(s.paths.snippetsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace dirs: %w", err)
	}
	idx, err := openSnippetIndex(s.paths.snippetsDBFile())
	if err != nil {
		return nil, fmt.Errorf("failed to open snippet index: %w", err)
	}
	s.index = idx
	return s, nil
}

// Close 关闭片段索引
func (s *Store) Close() error {
	if s.index != nil {
		return s.index.Close()
	}
	return nil
}

// EnsureProject 幂等获取或创建工作区单例
func (s *Store) EnsureProject(ctx context.Context) (*entity.Project, error) {
	ctx, span := tracer.Start(ctx, "file.Store.EnsureProject")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	var project entity.Project
	ok, err := readJSON(s.paths.projectFile(), &project)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read project: %w", err)
	}
	if ok {
		return &project, nil
	}

	fresh := entity.NewProject()
	if err := writeJSONAtomic(s.paths.projectFile(), fresh); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return fresh, nil
}

// SaveProject 整体覆盖写入工作区记录
func (s *Store) SaveProject(ctx context.Context, project *entity.Project) error {
	_, span := tracer.Start(ctx, "file.Store.SaveProject")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeJSONAtomic(s.paths.projectFile(), project); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save project: %w", err)
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
	_, span := tracer.Start(ctx, "file.Store.SaveBookState")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeJSONAtomic(s.paths.bookFile(state.BookID), state); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save book state: %w", err)
	}
	return nil
}

// LoadBookState 读取书状态，未命中返回 (nil, nil)
func (s *Store) LoadBookState(ctx context.Context, bookID string) (*entity.BookState, error) {
	_, span := tracer.Start(ctx, "file.Store.LoadBookState")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	var state entity.BookState
	ok, err := readJSON(s.paths.bookFile(bookID), &state)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load book state: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// SaveOutline 整体覆盖大纲
func (s *Store) SaveOutline(ctx context.Context, bookID, markdown string) error {
	_, span := tracer.Start(ctx, "file.Store.SaveOutline")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.paths.outlineFile(bookID), []byte(markdown)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save outline: %w", err)
	}
	return nil
}

// LoadOutline 读取大纲，"还没有大纲"返回 (nil, nil)
func (s *Store) LoadOutline(ctx context.Context, bookID string) (*entity.Outline, error) {
	_, span := tracer.Start(ctx, "file.Store.LoadOutline")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.paths.outlineFile(bookID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load outline: %w", err)
	}
	updatedAt := time.Now().UTC()
	if info, err := os.Stat(path); err == nil {
		updatedAt = info.ModTime().UTC()
	}
	return &entity.Outline{BookID: bookID, Markdown: string(data), UpdatedAt: updatedAt}, nil
}

// SaveChapter 原子写入章节：目录项与正文在同一个 JSON 文档里
func (s *Store) SaveChapter(ctx context.Context, chapter *entity.Chapter) error {
	_, span := tracer.Start(ctx, "file.Store.SaveChapter")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeJSONAtomic(s.paths.chapterFile(chapter.BookID, chapter.Number), chapter); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save chapter: %w", err)
	}
	return nil
}

// LoadChapter 读取章节，未命中返回 (nil, nil)
func (s *Store) LoadChapter(ctx context.Context, bookID string, number int) (*entity.Chapter, error) {
	_, span := tracer.Start(ctx, "file.Store.LoadChapter")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	var chapter entity.Chapter
	ok, err := readJSON(s.paths.chapterFile(bookID, number), &chapter)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load chapter: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &chapter, nil
}

// ListChapters 按章号升序返回目录
func (s *Store) ListChapters(ctx context.Context, bookID string) ([]entity.ChapterIndexEntry, error) {
	_, span := tracer.Start(ctx, "file.Store.ListChapters")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.paths.chaptersDir(bookID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}

	var index []entity.ChapterIndexEntry
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var chapter entity.Chapter
		ok, err := readJSON(s.paths.chaptersDir(bookID)+string(os.PathSeparator)+e.Name(), &chapter)
		if err != nil || !ok {
			continue
		}
		index = append(index, entity.ChapterIndexEntry{
			Number:    chapter.Number,
			Title:     chapter.Title,
			UpdatedAt: chapter.UpdatedAt,
		})
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Number < index[j].Number })
	return index, nil
}

// NextChapterNumber 现有最大章号加一，无章节时为 1
func (s *Store) NextChapterNumber(ctx context.Context, bookID string) (int, error) {
	index, err := s.ListChapters(ctx, bookID)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, e := range index {
		if e.Number > max {
			max = e.Number
		}
	}
	return max + 1, nil
}

// AddSnippet 追加片段；索引写入失败不阻塞主路径
func (s *Store) AddSnippet(ctx context.Context, snippet *entity.Snippet) error {
	ctx, span := tracer.Start(ctx, "file.Store.AddSnippet")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := appendJSONLine(s.paths.snippetsFile(), snippet); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to append snippet: %w", err)
	}
	if err := s.index.Add(ctx, snippet); err != nil {
		logger.Warn(ctx, "snippet index write failed", "snippet_id", snippet.SnippetID, "error", err.Error())
	}
	return nil
}

// ListSnippets 返回某本书可见的全部片段，按创建时间倒序
func (s *Store) ListSnippets(ctx context.Context, bookID string) ([]*entity.Snippet, error) {
	_, span := tracer.Start(ctx, "file.Store.ListSnippets")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readAllSnippets()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	var visible []*entity.Snippet
	for _, sn := range all {
		if sn.VisibleTo(bookID) {
			visible = append(visible, sn)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool { return visible[i].CreatedAt.After(visible[j].CreatedAt) })
	return visible, nil
}

// SearchSnippetIndex 结构化索引查询（FTS5），再按可见性过滤
func (s *Store) SearchSnippetIndex(ctx context.Context, bookID, query string, limit int) ([]*entity.Snippet, error) {
	ctx, span := tracer.Start(ctx, "file.Store.SearchSnippetIndex")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.index.Search(ctx, query, limit*4)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("snippet index search failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	all, err := s.readAllSnippets()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	byID := make(map[string]*entity.Snippet, len(all))
	for _, sn := range all {
		byID[sn.SnippetID] = sn
	}

	var hits []*entity.Snippet
	for _, id := range ids {
		sn, ok := byID[id]
		if !ok || !sn.VisibleTo(bookID) {
			continue
		}
		hits = append(hits, sn)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].CreatedAt.After(hits[j].CreatedAt) })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// AppendChatLog 追加对话日志
func (s *Store) AppendChatLog(ctx context.Context, bookID string, entry *entity.ChatLogEntry) error {
	_, span := tracer.Start(ctx, "file.Store.AppendChatLog")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	entry.BookID = bookID
	if err := appendJSONLine(s.paths.chatLogFile(bookID), entry); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to append chat log: %w", err)
	}
	return nil
}

// ListChatLog 按写入顺序返回对话日志
func (s *Store) ListChatLog(ctx context.Context, bookID string) ([]*entity.ChatLogEntry, error) {
	_, span := tracer.Start(ctx, "file.Store.ListChatLog")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.paths.chatLogFile(bookID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to open chat log: %w", err)
	}
	defer f.Close()

	var entries []*entity.ChatLogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e entity.ChatLogEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, &e)
	}
	if err := scanner.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read chat log: %w", err)
	}
	return entries, nil
}

// DeleteBookAllData 删除该书的目录树与书内片段；全局片段不受影响
func (s *Store) DeleteBookAllData(ctx context.Context, bookID string) error {
	ctx, span := tracer.Start(ctx, "file.Store.DeleteBookAllData")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.paths.bookDir(bookID)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to remove book dir: %w", err)
	}

	all, err := s.readAllSnippets()
	if err != nil {
		span.RecordError(err)
		return err
	}
	kept := make([]*entity.Snippet, 0, len(all))
	for _, sn := range all {
		if sn.BookID != bookID {
			kept = append(kept, sn)
		}
	}
	if len(kept) != len(all) {
		if err := rewriteJSONLines(s.paths.snippetsFile(), kept); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to rewrite snippets: %w", err)
		}
	}
	if err := s.index.DeleteBook(ctx, bookID); err != nil {
		logger.Warn(ctx, "snippet index cleanup failed", "book_id", bookID, "error", err.Error())
	}
	return nil
}

// readAllSnippets 调用方需持有 s.mu
func (s *Store) readAllSnippets() ([]*entity.Snippet, error) {
	f, err := os.Open(s.paths.snippetsFile())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open snippets: %w", err)
	}
	defer f.Close()

	var snippets []*entity.Snippet
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var sn entity.Snippet
		if err := json.Unmarshal([]byte(line), &sn); err != nil {
			continue
		}
		snippets = append(snippets, &sn)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snippets: %w", err)
	}
	return snippets, nil
}
