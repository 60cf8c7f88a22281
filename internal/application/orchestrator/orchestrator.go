// Package orchestrator 处理一次对话回合：解析意图、解析激活书
// 上下文、按意图分发并把产物写回存储。
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fiction-ai-api/internal/application/intent"
	"fiction-ai-api/internal/application/retrieval"
	"fiction-ai-api/internal/application/writing"
	"fiction-ai-api/internal/domain/entity"
	"fiction-ai-api/internal/domain/repository"
	"fiction-ai-api/internal/infrastructure/llm"
	apperrors "fiction-ai-api/pkg/errors"
	"fiction-ai-api/pkg/logger"
	"fiction-ai-api/pkg/metrics"
)

// TurnResult 一次回合的响应
type TurnResult struct {
	Text   string      `json:"text"`
	Intent intent.Kind `json:"intent"`
}

// 引导文案。守卫分支只返回文案，从不改状态。
const (
	guidanceNoActiveBook = "你还没有激活任何小说。你可以先说：'写一个3000字的校园爱情小说'。"
	guidanceNoLLM        = "当前未配置 API Key，无法生成大纲/正文。请在配置里设置 llm.api_key 后再试一次。"
	guidanceChatIdle     = "你可以先说：'写一个3000字的校园爱情小说'。"
	guidanceChatActive   = "我可以帮你生成大纲、写章节、保存/检索参考片段。你想现在做哪一个？"
	guidanceUnknown      = "我没理解你的意思。你可以说：'写一个3000字的校园爱情小说' 或 '保存参考：……'。"
)

// Orchestrator 回合处理器。持久化句柄由调用方显式传入，
// 没有任何进程级共享状态，便于并行跑隔离实例。
type Orchestrator struct {
	store    repository.Store
	engine   *retrieval.Engine
	writer   *writing.Writer
	provider llm.Provider

	retrieveLimit int
}

// New 创建回合处理器
func New(store repository.Store, engine *retrieval.Engine, writer *writing.Writer, provider llm.Provider, retrieveLimit int) *Orchestrator {
	if retrieveLimit <= 0 {
		retrieveLimit = retrieval.DefaultLimit
	}
	return &Orchestrator{
		store:         store,
		engine:        engine,
		writer:        writer,
		provider:      provider,
		retrieveLimit: retrieveLimit,
	}
}

// HandleTurn 处理一句用户输入，返回响应文本
func (o *Orchestrator) HandleTurn(ctx context.Context, utterance string) (*TurnResult, error) {
	project, err := o.store.EnsureProject(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to load workspace")
	}

	in := intent.Parse(utterance)
	metrics.TurnsTotal.WithLabelValues(string(in.Kind)).Inc()
	logger.Info(ctx, "turn", "intent", string(in.Kind))

	// 句中出现《书名》且唯一命中一本书时，先切过去再分发
	if ref := intent.ExtractBracketTitle(utterance); ref != "" {
		hits := project.FindBooks(ref)
		if len(hits) == 1 && project.ActiveBookID != hits[0].BookID {
			if err := o.store.SetActiveBook(ctx, hits[0].BookID); err != nil {
				return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to switch book")
			}
			project.ActiveBookID = hits[0].BookID
		}
	}

	switch in.Kind {
	case intent.KindNoop:
		return o.result(in, guidanceUnknown), nil
	case intent.KindListBooks:
		return o.result(in, listBooksText(project)), nil
	case intent.KindSwitchBook:
		return o.switchBook(ctx, project, in)
	case intent.KindSaveSnippet:
		return o.saveSnippet(ctx, project, in, utterance)
	case intent.KindSearchSnippets:
		return o.searchSnippets(ctx, project, in, utterance)
	case intent.KindCreateBook:
		return o.createBook(ctx, in, utterance)
	case intent.KindStartBookFromPrompt:
		return o.startBookFromPrompt(ctx, in, utterance)
	case intent.KindMakeOutline:
		return o.makeOutline(ctx, project, in, utterance)
	case intent.KindWriteChapter, intent.KindWriteNextChapter:
		return o.writeChapter(ctx, project, in, utterance)
	case intent.KindChat:
		if project.ActiveBookID == "" {
			return o.result(in, guidanceChatIdle), nil
		}
		return o.result(in, guidanceChatActive), nil
	default:
		return o.result(in, guidanceUnknown), nil
	}
}

func (o *Orchestrator) result(in intent.Intent, text string) *TurnResult {
	return &TurnResult{Text: text, Intent: in.Kind}
}

func (o *Orchestrator) switchBook(ctx context.Context, project *entity.Project, in intent.Intent) (*TurnResult, error) {
	title := strings.TrimSpace(in.Title)
	hits := project.FindBooks(title)
	if len(hits) == 0 {
		return o.result(in, fmt.Sprintf("没有找到名为《%s》的小说。你可以先创建一本，或说'我有哪些小说'。", title)), nil
	}
	if len(hits) > 1 {
		var lines []string
		lines = append(lines, "我找到了多本可能的小说，请你再说清楚要继续哪一本：")
		for _, b := range hits {
			lines = append(lines, fmt.Sprintf("- %s (id=%s)", b.Title, shortID(b.BookID)))
		}
		return o.result(in, strings.Join(lines, "\n")), nil
	}

	if err := o.store.SetActiveBook(ctx, hits[0].BookID); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to switch book")
	}
	return o.result(in, fmt.Sprintf("已切换到《%s》。你想先生成大纲，还是直接写下一章？", hits[0].Title)), nil
}

func (o *Orchestrator) saveSnippet(ctx context.Context, project *entity.Project, in intent.Intent, utterance string) (*TurnResult, error) {
	if project.ActiveBookID == "" {
		return o.result(in, guidanceNoActiveBook), nil
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return o.result(in, "要保存的片段内容为空。你可以说：'保存参考：……'"), nil
	}

	snippet := entity.NewSnippet(project.ActiveBookID, "", text, nil, "user", "")
	if err := o.store.AddSnippet(ctx, snippet); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to save snippet")
	}
	o.appendChatLog(ctx, project.ActiveBookID, utterance, in.Kind,
		[]string{"snippet:" + snippet.SnippetID}, nil)
	return o.result(in, fmt.Sprintf("已保存参考片段（id=%s）。", shortID(snippet.SnippetID))), nil
}

func (o *Orchestrator) searchSnippets(ctx context.Context, project *entity.Project, in intent.Intent, utterance string) (*TurnResult, error) {
	if project.ActiveBookID == "" {
		return o.result(in, guidanceNoActiveBook), nil
	}
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return o.result(in, "搜索关键词为空。你可以说：'搜索参考片段：雨后的味道'。"), nil
	}

	hits, err := o.engine.Search(ctx, project.ActiveBookID, query, o.retrieveLimit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return o.result(in, "没有搜到相关参考片段。"), nil
	}

	lines := []string{"我找到这些参考片段："}
	for _, h := range hits {
		lines = append(lines, fmt.Sprintf("- %s (id=%s)", shorten(h.Text, 120), shortID(h.SnippetID)))
	}
	return o.result(in, strings.Join(lines, "\n")), nil
}

func (o *Orchestrator) createBook(ctx context.Context, in intent.Intent, utterance string) (*TurnResult, error) {
	ref, err := o.store.CreateBook(ctx, in.Title)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to create book")
	}
	state := entity.NewBookState(*ref, in.Premise, "", nil)
	if err := o.store.SaveBookState(ctx, state); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to save book state")
	}
	return o.result(in, fmt.Sprintf("已创建新小说《%s》，并设为当前小说。你可以接着说：'给这本书生成大纲'。", ref.Title)), nil
}

func (o *Orchestrator) startBookFromPrompt(ctx context.Context, in intent.Intent, utterance string) (*TurnResult, error) {
	var targetWords *int
	if in.TargetMinWords > 0 && in.TargetMaxWords > 0 {
		avg := (in.TargetMinWords + in.TargetMaxWords) / 2
		targetWords = &avg
	}

	title := guessTitleFromPrompt(in.Prompt)
	ref, err := o.store.CreateBook(ctx, title)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to create book")
	}

	state := entity.NewBookState(*ref, in.Prompt, in.Genre, targetWords)
	if err := o.store.SaveBookState(ctx, state); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to save book state")
	}

	if !o.provider.Available() {
		return o.result(in, fmt.Sprintf(
			"已创建新小说《%s》，并设为当前小说。\n但当前未配置 API Key，无法生成大纲/正文。\n请配置 llm.api_key 后再试一次（比如：'给这本书生成大纲'）。",
			ref.Title)), nil
	}

	outline, err := writing.MakeOutline(ctx, o.provider, writing.OutlineRequest{
		Title:       state.Title,
		Premise:     state.Premise,
		Genre:       state.Genre,
		TargetWords: state.TargetWords,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLLMConnectionError, "outline generation failed")
	}
	if err := o.store.SaveOutline(ctx, state.BookID, outline); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to save outline")
	}

	o.appendChatLog(ctx, state.BookID, utterance, in.Kind, []string{"outline.md"}, nil)
	return o.result(in, fmt.Sprintf(
		"已创建新小说《%s》，并生成大纲（已保存）。\n\n%s\n\n你可以接着说：'写下一章' 或 '写第1章，重点写男女主第一次正面冲突'。",
		state.Title, outline)), nil
}

func (o *Orchestrator) makeOutline(ctx context.Context, project *entity.Project, in intent.Intent, utterance string) (*TurnResult, error) {
	if project.ActiveBookID == "" {
		return o.result(in, guidanceNoActiveBook), nil
	}
	if !o.provider.Available() {
		return o.result(in, guidanceNoLLM), nil
	}

	state, err := o.loadActiveBookState(ctx, project)
	if err != nil {
		return nil, err
	}

	outline, err := writing.MakeOutline(ctx, o.provider, writing.OutlineRequest{
		Title:       state.Title,
		Premise:     state.Premise,
		Genre:       state.Genre,
		TargetWords: state.TargetWords,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLLMConnectionError, "outline generation failed")
	}
	if err := o.store.SaveOutline(ctx, state.BookID, outline); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to save outline")
	}

	o.appendChatLog(ctx, state.BookID, utterance, in.Kind, []string{"outline.md"}, nil)
	return o.result(in, fmt.Sprintf("已生成/更新大纲（已保存）。\n\n%s", outline)), nil
}

func (o *Orchestrator) writeChapter(ctx context.Context, project *entity.Project, in intent.Intent, utterance string) (*TurnResult, error) {
	if project.ActiveBookID == "" {
		return o.result(in, guidanceNoActiveBook), nil
	}
	if !o.provider.Available() {
		return o.result(in, guidanceNoLLM), nil
	}

	state, err := o.loadActiveBookState(ctx, project)
	if err != nil {
		return nil, err
	}

	outline, err := o.store.LoadOutline(ctx, state.BookID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to load outline")
	}
	if outline == nil || strings.TrimSpace(outline.Markdown) == "" {
		return o.result(in, "这本书还没有大纲。你可以先说：'给这本书生成大纲'。"), nil
	}

	number := in.Number
	if in.Kind == intent.KindWriteNextChapter || number <= 0 {
		number, err = o.store.NextChapterNumber(ctx, state.BookID)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to resolve next chapter number")
		}
	}

	hits, err := o.engine.Search(ctx, state.BookID, guessRetrievalQuery(utterance), o.retrieveLimit)
	if err != nil {
		return nil, err
	}
	var snippetLines []string
	var snippetIDs []string
	for _, h := range hits {
		snippetLines = append(snippetLines, "- "+h.Text)
		snippetIDs = append(snippetIDs, h.SnippetID)
	}

	request := in.Request
	if request == "" {
		request = utterance
	}
	content, err := o.writer.WriteChapter(ctx, writing.ChapterRequest{
		Title:             state.Title,
		ChapterNumber:     number,
		OutlineMarkdown:   outline.Markdown,
		Premise:           state.Premise,
		Genre:             state.Genre,
		ExtraInstruction:  request,
		RetrievedSnippets: strings.Join(snippetLines, "\n"),
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLLMConnectionError, "chapter generation failed").
			WithDetails(map[string]any{"book_id": state.BookID, "chapter_number": number})
	}

	chapter := entity.NewChapter(state.BookID, number, "", content)
	if err := o.store.SaveChapter(ctx, chapter); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to save chapter")
	}
	metrics.ChaptersGeneratedTotal.Inc()
	metrics.ChapterWordCount.Observe(float64(chapter.WordCount()))

	o.appendChatLog(ctx, state.BookID, utterance, in.Kind,
		[]string{fmt.Sprintf("chapters/%04d.json", number)}, snippetIDs)
	return o.result(in, content), nil
}

func (o *Orchestrator) loadActiveBookState(ctx context.Context, project *entity.Project) (*entity.BookState, error) {
	state, err := o.store.LoadBookState(ctx, project.ActiveBookID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to load book state")
	}
	if state == nil {
		return nil, apperrors.New(apperrors.CodeBookNotFound, "active book state not found").
			WithDetails(map[string]any{"book_id": project.ActiveBookID})
	}
	return state, nil
}

// appendChatLog 日志写失败不影响回合结果
func (o *Orchestrator) appendChatLog(ctx context.Context, bookID, utterance string, kind intent.Kind, saved, snippetIDs []string) {
	entry := &entity.ChatLogEntry{
		Timestamp:           time.Now().UTC(),
		Utterance:           utterance,
		Intent:              string(kind),
		Saved:               saved,
		RetrievedSnippetIDs: snippetIDs,
	}
	if err := o.store.AppendChatLog(ctx, bookID, entry); err != nil {
		logger.Warn(ctx, "chat log append failed", "book_id", bookID, "error", err.Error())
	}
}

func listBooksText(project *entity.Project) string {
	if len(project.Books) == 0 {
		return "当前还没有任何小说。你可以说：'写一个3000字的校园爱情小说' 来创建第一本。"
	}
	var lines []string
	for _, b := range project.Books {
		marker := " "
		if b.BookID == project.ActiveBookID {
			marker = "*"
		}
		lines = append(lines, fmt.Sprintf("%s %s  (id=%s)", marker, b.Title, shortID(b.BookID)))
	}
	return strings.Join(lines, "\n")
}

var genreTitleHints = []string{"校园", "爱情", "悬疑", "科幻", "奇幻", "武侠", "历史", "都市", "推理", "治愈"}

func guessTitleFromPrompt(prompt string) string {
	for _, g := range genreTitleHints {
		if strings.Contains(prompt, g) {
			return g + "小说"
		}
	}
	return "未命名小说"
}

var retrievalPunctReplacer = strings.NewReplacer(
	"，", " ", "。", " ", "！", " ", "？", " ",
	",", " ", ".", " ", "!", " ", "?", " ",
	":", " ", "：", " ",
)

// guessRetrievalQuery 从整句里挑几个关键词做片段检索
func guessRetrievalQuery(utterance string) string {
	text := retrievalPunctReplacer.Replace(utterance)
	var parts []string
	for _, p := range strings.Fields(text) {
		if len([]rune(p)) >= 2 {
			parts = append(parts, p)
		}
		if len(parts) >= 6 {
			break
		}
	}
	if len(parts) == 0 {
		return utterance
	}
	return strings.Join(parts, " ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shorten(text string, maxLen int) string {
	t := strings.Join(strings.Fields(text), " ")
	runes := []rune(t)
	if len(runes) <= maxLen {
		return t
	}
	return string(runes[:maxLen-1]) + "…"
}
