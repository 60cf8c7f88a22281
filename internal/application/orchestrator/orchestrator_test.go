package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiction-ai-api/internal/application/intent"
	"fiction-ai-api/internal/application/retrieval"
	"fiction-ai-api/internal/application/writing"
	"fiction-ai-api/internal/domain/entity"
	"fiction-ai-api/internal/infrastructure/persistence/file"
)

// stubProvider 固定返回同一段文本
type stubProvider struct {
	available bool
	text      string
	err       error
	calls     int
}

func (p *stubProvider) Available() bool { return p.available }

func (p *stubProvider) Complete(context.Context, string, string) (string, error) {
	p.calls++
	return p.text, p.err
}

func (p *stubProvider) StreamComplete(_ context.Context, _, _ string, onDelta func(string)) (string, error) {
	p.calls++
	if p.err == nil && p.text != "" {
		onDelta(p.text)
	}
	return p.text, p.err
}

func newTestOrchestrator(t *testing.T, provider *stubProvider) (*Orchestrator, *file.Store) {
	t.Helper()
	store, err := file.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine := retrieval.NewEngine(store)
	writer := writing.NewWriter(provider)
	return New(store, engine, writer, provider, 5), store
}

func TestHandleTurnGuardsReturnGuidanceOnly(t *testing.T) {
	o, store := newTestOrchestrator(t, &stubProvider{available: false})
	ctx := context.Background()

	// 守卫分支只回文案，不落任何数据
	for _, utterance := range []string{"保存参考：主角怕水", "搜索参考片段：怕水", "写下一章", "给这本书生成大纲"} {
		result, err := o.HandleTurn(ctx, utterance)
		require.NoError(t, err)
		assert.Contains(t, result.Text, "还没有激活任何小说", "utterance: %s", utterance)
	}

	project, err := store.EnsureProject(ctx)
	require.NoError(t, err)
	assert.Empty(t, project.Books)
	snippets, err := store.ListSnippets(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, snippets)
}

func TestHandleTurnNoop(t *testing.T) {
	o, _ := newTestOrchestrator(t, &stubProvider{})
	result, err := o.HandleTurn(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, intent.KindNoop, result.Intent)
	assert.Contains(t, result.Text, "我没理解")
}

func TestHandleTurnListBooks(t *testing.T) {
	o, store := newTestOrchestrator(t, &stubProvider{})
	ctx := context.Background()

	result, err := o.HandleTurn(ctx, "我有哪些小说")
	require.NoError(t, err)
	assert.Equal(t, intent.KindListBooks, result.Intent)
	assert.Contains(t, result.Text, "还没有任何小说")

	_, err = store.CreateBook(ctx, "晨雾")
	require.NoError(t, err)
	active, err := store.CreateBook(ctx, "雨夜")
	require.NoError(t, err)

	result, err = o.HandleTurn(ctx, "我有哪些小说")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "晨雾")
	assert.Contains(t, result.Text, "* 雨夜")
	assert.Contains(t, result.Text, active.BookID[:8])
}

func TestHandleTurnStartBookFromPromptNoLLM(t *testing.T) {
	o, store := newTestOrchestrator(t, &stubProvider{available: false})
	ctx := context.Background()

	result, err := o.HandleTurn(ctx, "写一个3000字的校园爱情小说")
	require.NoError(t, err)
	assert.Equal(t, intent.KindStartBookFromPrompt, result.Intent)
	assert.Contains(t, result.Text, "《校园小说》")
	assert.Contains(t, result.Text, "未配置 API Key")

	project, err := store.EnsureProject(ctx)
	require.NoError(t, err)
	require.Len(t, project.Books, 1)
	assert.Equal(t, project.Books[0].BookID, project.ActiveBookID)

	state, err := store.LoadBookState(ctx, project.ActiveBookID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "写一个3000字的校园爱情小说", state.Premise)
	require.NotNil(t, state.TargetWords)
	assert.Equal(t, 3000, *state.TargetWords)

	// 没配 LLM 就不会有大纲
	outline, err := store.LoadOutline(ctx, project.ActiveBookID)
	require.NoError(t, err)
	assert.Nil(t, outline)
}

func TestHandleTurnStartBookFromPromptWithLLM(t *testing.T) {
	provider := &stubProvider{available: true, text: "# 大纲\n共3章\n"}
	o, store := newTestOrchestrator(t, provider)
	ctx := context.Background()

	result, err := o.HandleTurn(ctx, "写一个3000字的悬疑小说")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "生成大纲（已保存）")
	assert.Contains(t, result.Text, "共3章")

	project, err := store.EnsureProject(ctx)
	require.NoError(t, err)
	outline, err := store.LoadOutline(ctx, project.ActiveBookID)
	require.NoError(t, err)
	require.NotNil(t, outline)
	assert.Equal(t, "# 大纲\n共3章\n", outline.Markdown)

	entries, err := store.ListChatLog(ctx, project.ActiveBookID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"outline.md"}, entries[0].Saved)
}

func TestHandleTurnSwitchBook(t *testing.T) {
	o, store := newTestOrchestrator(t, &stubProvider{})
	ctx := context.Background()

	morning, err := store.CreateBook(ctx, "晨雾")
	require.NoError(t, err)
	_, err = store.CreateBook(ctx, "雨夜")
	require.NoError(t, err)

	result, err := o.HandleTurn(ctx, "切换到《晨雾》")
	require.NoError(t, err)
	assert.Equal(t, intent.KindSwitchBook, result.Intent)
	assert.Contains(t, result.Text, "已切换到《晨雾》")

	project, err := store.EnsureProject(ctx)
	require.NoError(t, err)
	assert.Equal(t, morning.BookID, project.ActiveBookID)

	result, err = o.HandleTurn(ctx, "切换到《不存在的书》")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "没有找到")
}

func TestHandleTurnSwitchBookAmbiguous(t *testing.T) {
	o, store := newTestOrchestrator(t, &stubProvider{})
	ctx := context.Background()

	_, err := store.CreateBook(ctx, "晨雾之城")
	require.NoError(t, err)
	_, err = store.CreateBook(ctx, "晨雾散尽")
	require.NoError(t, err)

	result, err := o.HandleTurn(ctx, "继续《晨雾》")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "多本可能的小说")
	assert.Contains(t, result.Text, "晨雾之城")
	assert.Contains(t, result.Text, "晨雾散尽")
}

// 句中带《书名》时即使意图不是切换，也先自动切过去
func TestHandleTurnBracketTitleAutoSwitch(t *testing.T) {
	o, store := newTestOrchestrator(t, &stubProvider{})
	ctx := context.Background()

	morning, err := store.CreateBook(ctx, "晨雾")
	require.NoError(t, err)
	_, err = store.CreateBook(ctx, "雨夜")
	require.NoError(t, err)

	result, err := o.HandleTurn(ctx, "保存参考《晨雾》：主角林夜怕水")
	require.NoError(t, err)
	assert.Equal(t, intent.KindSaveSnippet, result.Intent)
	assert.Contains(t, result.Text, "已保存参考片段")

	project, err := store.EnsureProject(ctx)
	require.NoError(t, err)
	assert.Equal(t, morning.BookID, project.ActiveBookID)

	snippets, err := store.ListSnippets(ctx, morning.BookID)
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, morning.BookID, snippets[0].BookID)
}

func TestHandleTurnSaveAndSearchSnippet(t *testing.T) {
	o, store := newTestOrchestrator(t, &stubProvider{})
	ctx := context.Background()

	ref, err := store.CreateBook(ctx, "晨雾")
	require.NoError(t, err)

	result, err := o.HandleTurn(ctx, "保存参考：主角林夜怕水")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "已保存参考片段")

	result, err = o.HandleTurn(ctx, "搜索参考片段：怕水")
	require.NoError(t, err)
	assert.Equal(t, intent.KindSearchSnippets, result.Intent)
	assert.Contains(t, result.Text, "主角林夜怕水")

	result, err = o.HandleTurn(ctx, "搜索参考片段：完全无关的词")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "没有搜到")

	entries, err := store.ListChatLog(ctx, ref.BookID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Saved[0], "snippet:"))
}

func TestHandleTurnMakeOutlineNoLLM(t *testing.T) {
	o, store := newTestOrchestrator(t, &stubProvider{available: false})
	ctx := context.Background()

	ref, err := store.CreateBook(ctx, "晨雾")
	require.NoError(t, err)
	require.NoError(t, store.SaveBookState(ctx, entity.NewBookState(*ref, "", "", nil)))

	result, err := o.HandleTurn(ctx, "给这本书生成大纲")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "未配置 API Key")
}

func TestHandleTurnWriteChapterNoOutline(t *testing.T) {
	o, store := newTestOrchestrator(t, &stubProvider{available: true, text: "正文"})
	ctx := context.Background()

	ref, err := store.CreateBook(ctx, "晨雾")
	require.NoError(t, err)
	require.NoError(t, store.SaveBookState(ctx, entity.NewBookState(*ref, "", "", nil)))

	result, err := o.HandleTurn(ctx, "写下一章")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "还没有大纲")
	ch, err := store.LoadChapter(ctx, ref.BookID, 1)
	require.NoError(t, err)
	assert.Nil(t, ch)
}

func TestHandleTurnWriteChapter(t *testing.T) {
	provider := &stubProvider{available: true, text: "夜色渐浓，林夜推开了门。"}
	o, store := newTestOrchestrator(t, provider)
	ctx := context.Background()

	ref, err := store.CreateBook(ctx, "晨雾")
	require.NoError(t, err)
	require.NoError(t, store.SaveBookState(ctx, entity.NewBookState(*ref, "雾都悬案", "悬疑", nil)))
	require.NoError(t, store.SaveOutline(ctx, ref.BookID, "共3章"))

	result, err := o.HandleTurn(ctx, "写下一章")
	require.NoError(t, err)
	assert.Equal(t, intent.KindWriteNextChapter, result.Intent)
	assert.Equal(t, provider.text, result.Text)

	ch, err := store.LoadChapter(ctx, ref.BookID, 1)
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, provider.text, ch.ContentMarkdown)

	// 再来一次顺延到第 2 章
	_, err = o.HandleTurn(ctx, "继续写")
	require.NoError(t, err)
	ch, err = store.LoadChapter(ctx, ref.BookID, 2)
	require.NoError(t, err)
	require.NotNil(t, ch)

	entries, err := store.ListChatLog(ctx, ref.BookID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []string{"chapters/0001.json"}, entries[0].Saved)
}

func TestHandleTurnWriteNumberedChapter(t *testing.T) {
	provider := &stubProvider{available: true, text: "第五章正文。"}
	o, store := newTestOrchestrator(t, provider)
	ctx := context.Background()

	ref, err := store.CreateBook(ctx, "晨雾")
	require.NoError(t, err)
	require.NoError(t, store.SaveBookState(ctx, entity.NewBookState(*ref, "", "", nil)))
	require.NoError(t, store.SaveOutline(ctx, ref.BookID, "共8章"))

	_, err = o.HandleTurn(ctx, "写第5章，重点写正面冲突")
	require.NoError(t, err)

	ch, err := store.LoadChapter(ctx, ref.BookID, 5)
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, "第5章", ch.Title)
}

func TestHandleTurnChat(t *testing.T) {
	o, store := newTestOrchestrator(t, &stubProvider{})
	ctx := context.Background()

	result, err := o.HandleTurn(ctx, "今天天气不错")
	require.NoError(t, err)
	assert.Equal(t, intent.KindChat, result.Intent)
	assert.Contains(t, result.Text, "你可以先说")

	_, err = store.CreateBook(ctx, "晨雾")
	require.NoError(t, err)
	result, err = o.HandleTurn(ctx, "今天天气不错")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "你想现在做哪一个")
}

func TestGuessRetrievalQuery(t *testing.T) {
	assert.Equal(t, "写第1章 重点写男女主第一次正面冲突",
		guessRetrievalQuery("写第1章，重点写男女主第一次正面冲突。"))
	assert.Equal(t, "x", guessRetrievalQuery("x"))
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "短文本", shorten("短文本", 10))
	long := strings.Repeat("雨", 30)
	got := shorten(long, 10)
	assert.Equal(t, 10, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
