package writing

import (
	"context"
	"sort"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiction-ai-api/internal/application/retrieval"
	"fiction-ai-api/internal/domain/entity"
	apperrors "fiction-ai-api/pkg/errors"
)

// memStore 内存实现，够 Runner 测试用
type memStore struct {
	chapters map[int]*entity.Chapter
	snippets []*entity.Snippet
	saves    []int
}

func newMemStore() *memStore {
	return &memStore{chapters: map[int]*entity.Chapter{}}
}

func (s *memStore) EnsureProject(context.Context) (*entity.Project, error) { return entity.NewProject(), nil }
func (s *memStore) SaveProject(context.Context, *entity.Project) error    { return nil }
func (s *memStore) CreateBook(context.Context, string) (*entity.BookRef, error) {
	return nil, nil
}
func (s *memStore) UpdateBookTitle(context.Context, string, string) error { return nil }
func (s *memStore) SetActiveBook(context.Context, string) error           { return nil }
func (s *memStore) DeleteBook(context.Context, string) error              { return nil }
func (s *memStore) SaveBookState(context.Context, *entity.BookState) error {
	return nil
}
func (s *memStore) LoadBookState(context.Context, string) (*entity.BookState, error) {
	return nil, nil
}
func (s *memStore) SaveOutline(context.Context, string, string) error { return nil }
func (s *memStore) LoadOutline(context.Context, string) (*entity.Outline, error) {
	return nil, nil
}

func (s *memStore) SaveChapter(_ context.Context, ch *entity.Chapter) error {
	s.chapters[ch.Number] = ch
	s.saves = append(s.saves, ch.Number)
	return nil
}

func (s *memStore) LoadChapter(_ context.Context, _ string, number int) (*entity.Chapter, error) {
	return s.chapters[number], nil
}

func (s *memStore) ListChapters(context.Context, string) ([]entity.ChapterIndexEntry, error) {
	var entries []entity.ChapterIndexEntry
	for _, ch := range s.chapters {
		entries = append(entries, entity.ChapterIndexEntry{Number: ch.Number, Title: ch.Title})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Number < entries[j].Number })
	return entries, nil
}

func (s *memStore) NextChapterNumber(context.Context, string) (int, error) {
	max := 0
	for n := range s.chapters {
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}

func (s *memStore) AddSnippet(_ context.Context, sn *entity.Snippet) error {
	s.snippets = append(s.snippets, sn)
	return nil
}

func (s *memStore) ListSnippets(_ context.Context, bookID string) ([]*entity.Snippet, error) {
	var out []*entity.Snippet
	for _, sn := range s.snippets {
		if sn.VisibleTo(bookID) {
			out = append(out, sn)
		}
	}
	return out, nil
}

func (s *memStore) SearchSnippetIndex(context.Context, string, string, int) ([]*entity.Snippet, error) {
	return nil, nil
}

func (s *memStore) AppendChatLog(context.Context, string, *entity.ChatLogEntry) error { return nil }
func (s *memStore) ListChatLog(context.Context, string) ([]*entity.ChatLogEntry, error) {
	return nil, nil
}
func (s *memStore) DeleteBookAllData(context.Context, string) error { return nil }
func (s *memStore) Close() error                                    { return nil }

func newTestRunner(store *memStore, p *scriptedProvider) *Runner {
	w, _ := newTestWriter(p)
	return NewRunner(store, retrieval.NewEngine(store), w)
}

func testState() *entity.BookState {
	return &entity.BookState{BookID: "b1", Title: "晨雾", Genre: "悬疑"}
}

const testOutline = "共3章。\n- 第1章 开端\n- 第2章 转折\n- 第3章 结局\n"

func TestGenerateBatchAllSucceed(t *testing.T) {
	store := newMemStore()
	p := &scriptedProvider{results: []scriptedResult{
		{text: "一"}, {text: "二"}, {text: "三"},
	}}
	r := newTestRunner(store, p)

	result, err := r.GenerateBatch(context.Background(), testState(), testOutline, RunOptions{BookID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.StartNumber)
	assert.Equal(t, 3, result.EndNumber)
	assert.Equal(t, []int{1, 2, 3}, result.Generated)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, []int{1, 2, 3}, store.saves)
}

// 第 2 章瞬态失败且重试耗尽：第 1 章保留，2、3 章放弃，
// 错误归因到第 2 章并携带进度
func TestGenerateBatchFailureMidway(t *testing.T) {
	transient := &openai.APIError{HTTPStatusCode: 503}
	store := newMemStore()
	p := &scriptedProvider{results: []scriptedResult{
		{text: "一"},
		{err: transient}, {err: transient}, {err: transient},
	}}
	r := newTestRunner(store, p)

	result, err := r.GenerateBatch(context.Background(), testState(), testOutline, RunOptions{BookID: "b1"})
	require.Error(t, err)
	assert.Equal(t, []int{1}, result.Generated)
	assert.Equal(t, []int{1}, store.saves)
	assert.Nil(t, store.chapters[2])
	assert.Nil(t, store.chapters[3])

	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeLLMConnectionError, appErr.Code)
	assert.Equal(t, 2, appErr.Details["chapter_number"])
	assert.Equal(t, []int{1}, appErr.Details["generated_numbers"])
}

func TestGenerateBatchSkipsExisting(t *testing.T) {
	store := newMemStore()
	store.chapters[2] = entity.NewChapter("b1", 2, "", "旧二")
	p := &scriptedProvider{results: []scriptedResult{
		{text: "一"}, {text: "三"},
	}}
	r := newTestRunner(store, p)

	result, err := r.GenerateBatch(context.Background(), testState(), testOutline, RunOptions{BookID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, result.Generated)
	assert.Equal(t, []int{2}, result.Skipped)
	assert.Equal(t, "旧二", store.chapters[2].ContentMarkdown)
}

func TestGenerateBatchOverwrite(t *testing.T) {
	store := newMemStore()
	store.chapters[2] = entity.NewChapter("b1", 2, "", "旧二")
	p := &scriptedProvider{results: []scriptedResult{
		{text: "一"}, {text: "新二"}, {text: "三"},
	}}
	r := newTestRunner(store, p)

	result, err := r.GenerateBatch(context.Background(), testState(), testOutline, RunOptions{BookID: "b1", Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, result.Generated)
	assert.Equal(t, "新二", store.chapters[2].ContentMarkdown)
}

func TestResolveRangeFromOutline(t *testing.T) {
	r := newTestRunner(newMemStore(), &scriptedProvider{})

	start, end, err := r.ResolveRange(testOutline, RunOptions{BookID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, 1, start)
	assert.Equal(t, 3, end)

	// 推断不出章数时报错而不是兜底
	_, _, err = r.ResolveRange("没有任何章节标记", RunOptions{BookID: "b1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeOutlineChaptersNotFound))

	_, _, err = r.ResolveRange(testOutline, RunOptions{BookID: "b1", StartNumber: 5, EndNumber: 2})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestGenerateChapterConflictWithoutOverwrite(t *testing.T) {
	store := newMemStore()
	store.chapters[1] = entity.NewChapter("b1", 1, "", "旧一")
	r := newTestRunner(store, &scriptedProvider{})

	_, _, err := r.GenerateChapter(context.Background(), testState(), testOutline, 1, RunOptions{BookID: "b1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeChapterAlreadyExists))
}

func collectEvents(t *testing.T, r *Runner, state *entity.BookState, outline string, opts RunOptions) ([]Event, error) {
	t.Helper()
	var events []Event
	err := r.GenerateBatchStream(context.Background(), state, outline, opts, func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	return events, err
}

func TestGenerateBatchStreamEventOrder(t *testing.T) {
	store := newMemStore()
	store.chapters[2] = entity.NewChapter("b1", 2, "", "旧二")
	p := &scriptedProvider{results: []scriptedResult{
		{deltas: []string{"一", "之一"}, text: "一之一"},
		{deltas: []string{"三"}, text: "三"},
	}}
	r := newTestRunner(store, p)

	events, err := collectEvents(t, r, testState(), testOutline, RunOptions{BookID: "b1"})
	require.NoError(t, err)

	var types []EventType
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{
		EventMeta,
		EventChapterStart, EventChapterToken, EventChapterToken, EventChapterEnd,
		EventChapterEnd, // 第 2 章跳过
		EventChapterStart, EventChapterToken, EventChapterEnd,
		EventDone,
	}, types)

	done := events[len(events)-1].Data.(map[string]any)
	assert.Equal(t, []int{1, 3}, done["generated_numbers"])
	assert.Equal(t, []int{2}, done["skipped_numbers"])
}

// 流式失败：error 事件收尾，之前的章节保留
func TestGenerateBatchStreamFailureEmitsError(t *testing.T) {
	fatal := &openai.APIError{HTTPStatusCode: 401}
	store := newMemStore()
	p := &scriptedProvider{results: []scriptedResult{
		{deltas: []string{"一"}, text: "一"},
		{err: fatal},
	}}
	r := newTestRunner(store, p)

	events, err := collectEvents(t, r, testState(), testOutline, RunOptions{BookID: "b1"})
	require.Error(t, err)

	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	data := last.Data.(map[string]any)
	assert.Equal(t, apperrors.CodeLLMConnectionError, data["code"])
	assert.NotNil(t, store.chapters[1])
	assert.Nil(t, store.chapters[2])
}

// 消费端断开：emit 报错后生成就地停止，不再落盘后续章节
func TestGenerateBatchStreamConsumerGone(t *testing.T) {
	store := newMemStore()
	p := &scriptedProvider{results: []scriptedResult{
		{deltas: []string{"一"}, text: "一"},
		{deltas: []string{"二"}, text: "二"},
	}}
	r := newTestRunner(store, p)

	count := 0
	err := r.GenerateBatchStream(context.Background(), testState(), testOutline, RunOptions{BookID: "b1"}, func(Event) error {
		count++
		if count > 4 {
			return context.Canceled
		}
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, store.chapters[3])
}
