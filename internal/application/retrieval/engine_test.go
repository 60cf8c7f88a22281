package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiction-ai-api/internal/domain/entity"
	"fiction-ai-api/internal/domain/repository"
)

// searchStore 只实现检索相关的两个方法，其余走零值
type searchStore struct {
	repository.Store

	snippets  []*entity.Snippet
	indexHits []*entity.Snippet
	indexErr  error
	indexed   int
	listed    int
}

func (s *searchStore) ListSnippets(_ context.Context, bookID string) ([]*entity.Snippet, error) {
	s.listed++
	var out []*entity.Snippet
	for _, sn := range s.snippets {
		if sn.VisibleTo(bookID) {
			out = append(out, sn)
		}
	}
	return out, nil
}

func (s *searchStore) SearchSnippetIndex(context.Context, string, string, int) ([]*entity.Snippet, error) {
	s.indexed++
	return s.indexHits, s.indexErr
}

func snip(id, title, text string, tags ...string) *entity.Snippet {
	return &entity.Snippet{SnippetID: id, Title: title, Text: text, Tags: tags}
}

func TestIsIdeographHeavy(t *testing.T) {
	assert.True(t, IsIdeographHeavy("主角设定"))
	assert.True(t, IsIdeographHeavy("protagonist 主角"))
	assert.False(t, IsIdeographHeavy("protagonist"))
	assert.False(t, IsIdeographHeavy("123"))
}

// 中文查询以子串扫描为主：索引为空也能靠正文子串命中
func TestSearchCJKSubstringPrimary(t *testing.T) {
	store := &searchStore{snippets: []*entity.Snippet{
		snip("s1", "人物卡", "主角林夜，雨夜出生"),
		snip("s2", "世界观", "城市常年被雾笼罩"),
	}}
	e := NewEngine(store)

	hits, err := e.Search(context.Background(), "b1", "雨夜", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "s1", hits[0].SnippetID)
	assert.Equal(t, 1, store.indexed)
}

// 中文查询的索引命中排在子串命中之后，且按 ID 去重
func TestSearchCJKMergeDedup(t *testing.T) {
	shared := snip("s1", "人物卡", "主角林夜")
	store := &searchStore{
		snippets:  []*entity.Snippet{shared, snip("s2", "", "与林夜无关")},
		indexHits: []*entity.Snippet{shared, snip("s3", "林夜小传", "")},
	}
	e := NewEngine(store)

	hits, err := e.Search(context.Background(), "b1", "林夜", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "s1", hits[0].SnippetID)
	assert.Equal(t, "s3", hits[1].SnippetID)
}

// 索引报错时中文路径按空结果处理，不向上抛
func TestSearchCJKIndexErrorIgnored(t *testing.T) {
	store := &searchStore{
		snippets: []*entity.Snippet{snip("s1", "", "主角林夜")},
		indexErr: errors.New("index offline"),
	}
	e := NewEngine(store)

	hits, err := e.Search(context.Background(), "b1", "林夜", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

// 非中文查询以索引为主：索引有命中就不做子串扫描
func TestSearchLatinIndexPrimary(t *testing.T) {
	store := &searchStore{
		snippets:  []*entity.Snippet{snip("s1", "arc", "the fog city arc")},
		indexHits: []*entity.Snippet{snip("s2", "fog notes", "")},
	}
	e := NewEngine(store)

	hits, err := e.Search(context.Background(), "b1", "fog", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "s2", hits[0].SnippetID)
	assert.Equal(t, 0, store.listed)
}

// 非中文查询索引零命中才回退子串扫描，匹配大小写不敏感、含标签
func TestSearchLatinSubstringFallback(t *testing.T) {
	store := &searchStore{snippets: []*entity.Snippet{
		snip("s1", "", "notes", "Fog-City"),
		snip("s2", "", "unrelated"),
	}}
	e := NewEngine(store)

	hits, err := e.Search(context.Background(), "b1", "fog", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "s1", hits[0].SnippetID)
}

func TestSearchBlankQuery(t *testing.T) {
	e := NewEngine(&searchStore{})
	hits, err := e.Search(context.Background(), "b1", "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchLimitTruncation(t *testing.T) {
	store := &searchStore{snippets: []*entity.Snippet{
		snip("s1", "", "林夜一"),
		snip("s2", "", "林夜二"),
		snip("s3", "", "林夜三"),
	}}
	e := NewEngine(store)

	hits, err := e.Search(context.Background(), "b1", "林夜", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "s1", hits[0].SnippetID)
	assert.Equal(t, "s2", hits[1].SnippetID)
}
