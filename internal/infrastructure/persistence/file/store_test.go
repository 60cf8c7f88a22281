package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiction-ai-api/internal/domain/entity"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnsureProjectIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.EnsureProject(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ProjectID)
	assert.Empty(t, first.Books)

	second, err := s.EnsureProject(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ProjectID, second.ProjectID)
}

func TestCreateBookActivates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ref1, err := s.CreateBook(ctx, "晨雾")
	require.NoError(t, err)
	ref2, err := s.CreateBook(ctx, "雨夜")
	require.NoError(t, err)

	project, err := s.EnsureProject(ctx)
	require.NoError(t, err)
	require.Len(t, project.Books, 2)
	assert.Equal(t, ref2.BookID, project.ActiveBookID)
	assert.NotNil(t, project.FindBook(ref1.BookID))
}

func TestBookStateRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	loaded, err := s.LoadBookState(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	ref, err := s.CreateBook(ctx, "晨雾")
	require.NoError(t, err)
	words := 80000
	state := entity.NewBookState(*ref, "雾都悬案", "悬疑", &words)
	require.NoError(t, s.SaveBookState(ctx, state))

	loaded, err = s.LoadBookState(ctx, ref.BookID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "晨雾", loaded.Title)
	assert.Equal(t, "雾都悬案", loaded.Premise)
	require.NotNil(t, loaded.TargetWords)
	assert.Equal(t, 80000, *loaded.TargetWords)
}

func TestOutlineRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	outline, err := s.LoadOutline(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, outline)

	require.NoError(t, s.SaveOutline(ctx, "b1", "# 大纲\n共3章\n"))
	outline, err = s.LoadOutline(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, outline)
	assert.Equal(t, "# 大纲\n共3章\n", outline.Markdown)

	// 整体覆盖
	require.NoError(t, s.SaveOutline(ctx, "b1", "新大纲"))
	outline, err = s.LoadOutline(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "新大纲", outline.Markdown)
}

func TestChapterRoundtripAndIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch, err := s.LoadChapter(ctx, "b1", 1)
	require.NoError(t, err)
	assert.Nil(t, ch)

	for _, n := range []int{2, 1, 4} {
		require.NoError(t, s.SaveChapter(ctx, entity.NewChapter("b1", n, "", "正文")))
	}

	ch, err = s.LoadChapter(ctx, "b1", 4)
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, "第4章", ch.Title)
	assert.Equal(t, "正文", ch.ContentMarkdown)

	index, err := s.ListChapters(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, index, 3)
	assert.Equal(t, []int{1, 2, 4}, []int{index[0].Number, index[1].Number, index[2].Number})
}

func TestNextChapterNumber(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	next, err := s.NextChapterNumber(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	for _, n := range []int{1, 2, 4} {
		require.NoError(t, s.SaveChapter(ctx, entity.NewChapter("b1", n, "", "正文")))
	}
	next, err = s.NextChapterNumber(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 5, next)
}

func TestSnippetVisibilityAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := entity.NewSnippet("", "全局", "全局片段", nil, "", "")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.AddSnippet(ctx, older))
	require.NoError(t, s.AddSnippet(ctx, entity.NewSnippet("b1", "书内", "b1 的片段", nil, "", "")))
	require.NoError(t, s.AddSnippet(ctx, entity.NewSnippet("b2", "别家", "b2 的片段", nil, "", "")))

	visible, err := s.ListSnippets(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, visible, 2)
	// 创建时间倒序：书内片段更新，排在全局之前
	assert.Equal(t, "书内", visible[0].Title)
	assert.Equal(t, "全局", visible[1].Title)
}

func TestSearchSnippetIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddSnippet(ctx, entity.NewSnippet("", "world", "the fog city setting", []string{"setting"}, "", "")))
	require.NoError(t, s.AddSnippet(ctx, entity.NewSnippet("b2", "hidden", "fog but private", nil, "", "")))
	require.NoError(t, s.AddSnippet(ctx, entity.NewSnippet("", "other", "unrelated", nil, "", "")))

	hits, err := s.SearchSnippetIndex(ctx, "b1", "fog", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "world", hits[0].Title)

	hits, err = s.SearchSnippetIndex(ctx, "b1", "nothing-matches", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChatLogAppendOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries, err := s.ListChatLog(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	for _, u := range []string{"写第1章", "写第2章"} {
		require.NoError(t, s.AppendChatLog(ctx, "b1", &entity.ChatLogEntry{
			Timestamp: time.Now().UTC(),
			Utterance: u,
			Intent:    "write_chapter",
		}))
	}

	entries, err = s.ListChatLog(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "写第1章", entries[0].Utterance)
	assert.Equal(t, "写第2章", entries[1].Utterance)
}

// 级联删除只影响该书：状态、大纲、章节、日志、书内片段清空，
// 全局片段与其他书保留
func TestDeleteBookAllDataCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ref, err := s.CreateBook(ctx, "晨雾")
	require.NoError(t, err)
	other, err := s.CreateBook(ctx, "雨夜")
	require.NoError(t, err)

	require.NoError(t, s.SaveBookState(ctx, entity.NewBookState(*ref, "", "", nil)))
	require.NoError(t, s.SaveOutline(ctx, ref.BookID, "共2章"))
	require.NoError(t, s.SaveChapter(ctx, entity.NewChapter(ref.BookID, 1, "", "正文")))
	require.NoError(t, s.AddSnippet(ctx, entity.NewSnippet(ref.BookID, "书内", "book snippet", nil, "", "")))
	require.NoError(t, s.AddSnippet(ctx, entity.NewSnippet("", "全局", "global snippet", nil, "", "")))
	require.NoError(t, s.SaveChapter(ctx, entity.NewChapter(other.BookID, 1, "", "别家正文")))

	require.NoError(t, s.DeleteBook(ctx, ref.BookID))

	state, err := s.LoadBookState(ctx, ref.BookID)
	require.NoError(t, err)
	assert.Nil(t, state)
	outline, err := s.LoadOutline(ctx, ref.BookID)
	require.NoError(t, err)
	assert.Nil(t, outline)
	ch, err := s.LoadChapter(ctx, ref.BookID, 1)
	require.NoError(t, err)
	assert.Nil(t, ch)

	remaining, err := s.ListSnippets(ctx, other.BookID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "全局", remaining[0].Title)

	otherCh, err := s.LoadChapter(ctx, other.BookID, 1)
	require.NoError(t, err)
	require.NotNil(t, otherCh)

	project, err := s.EnsureProject(ctx)
	require.NoError(t, err)
	assert.Nil(t, project.FindBook(ref.BookID))
	assert.Equal(t, other.BookID, project.ActiveBookID)
}

func TestDeleteActiveBookReassigns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateBook(ctx, "一")
	require.NoError(t, err)
	second, err := s.CreateBook(ctx, "二")
	require.NoError(t, err)

	// second 是激活书，删掉后顺延给剩下的第一本
	require.NoError(t, s.DeleteBook(ctx, second.BookID))
	project, err := s.EnsureProject(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.BookID, project.ActiveBookID)

	require.NoError(t, s.DeleteBook(ctx, first.BookID))
	project, err = s.EnsureProject(ctx)
	require.NoError(t, err)
	assert.Empty(t, project.ActiveBookID)
}

func TestFindBooksTwoPass(t *testing.T) {
	project := entity.NewProject()
	a := entity.NewBookRef("晨雾")
	b := entity.NewBookRef("晨雾之城")
	project.Books = append(project.Books, a, b)

	// 精确匹配只命中一本，不做子串扩展
	hits := project.FindBooks("晨雾")
	require.Len(t, hits, 1)
	assert.Equal(t, a.BookID, hits[0].BookID)

	// 书名号剥掉后做包含匹配
	hits = project.FindBooks("《之城》")
	require.Len(t, hits, 1)
	assert.Equal(t, b.BookID, hits[0].BookID)

	assert.Empty(t, project.FindBooks("不存在"))
}

func TestUpdateBookTitleSyncsSlug(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ref, err := s.CreateBook(ctx, "old title")
	require.NoError(t, err)
	require.NoError(t, s.UpdateBookTitle(ctx, ref.BookID, "New Title"))

	project, err := s.EnsureProject(ctx)
	require.NoError(t, err)
	updated := project.FindBook(ref.BookID)
	require.NotNil(t, updated)
	assert.Equal(t, "New Title", updated.Title)
	assert.Equal(t, "new-title", updated.Slug)

	assert.Error(t, s.UpdateBookTitle(ctx, "missing", "x"))
}
