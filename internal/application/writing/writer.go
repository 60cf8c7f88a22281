package writing

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"fiction-ai-api/internal/infrastructure/llm"
	"fiction-ai-api/pkg/logger"
	"fiction-ai-api/pkg/metrics"
)

// ChapterRequest 章节生成请求
type ChapterRequest struct {
	Title              string
	ChapterNumber      int
	OutlineMarkdown    string
	Premise            string
	Genre              string
	TargetChapterWords *int
	ExtraInstruction   string
	RetrievedSnippets  string
}

const chapterSystemPrompt = "你是一个小说写作助手。你将根据大纲与参考素材写出章节正文。\n" +
	"要求：\n" +
	"- 输出 Markdown\n" +
	"- 只输出本章正文，不要解释过程\n" +
	"- 语言自然、画面感强、对话推动情节\n" +
	"- 避免重复上一章内容（如果不知道上一章，就直接从本章目标写起）\n"

func buildChapterUserPrompt(req ChapterRequest) string {
	genre := req.Genre
	if genre == "" {
		genre = "（未指定）"
	}
	target := "（未指定）"
	if req.TargetChapterWords != nil {
		target = strconv.Itoa(*req.TargetChapterWords)
	}
	snippets := req.RetrievedSnippets
	if snippets == "" {
		snippets = "（无）"
	}
	instruction := req.ExtraInstruction
	if instruction == "" {
		instruction = "（无）"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "书名：%s\n", req.Title)
	fmt.Fprintf(&b, "题材/关键词：%s\n", genre)
	fmt.Fprintf(&b, "章节：第%d章\n", req.ChapterNumber)
	fmt.Fprintf(&b, "本章目标字数：%s\n\n", target)
	fmt.Fprintf(&b, "【全书大纲】\n%s\n\n", req.OutlineMarkdown)
	fmt.Fprintf(&b, "【参考片段（可选）】\n%s\n\n", snippets)
	fmt.Fprintf(&b, "【用户追加要求】\n%s\n", instruction)
	return b.String()
}

const maxAttempts = 3

// Writer 在生成调用外包一层有界重试
type Writer struct {
	provider llm.Provider
	// sleep 可注入，测试里替换为记录调用的桩
	sleep func(time.Duration)
	// jitter 返回 [0, 0.25s) 的随机抖动
	jitter func() time.Duration
}

// NewWriter 创建章节写作器
func NewWriter(provider llm.Provider) *Writer {
	return &Writer{
		provider: provider,
		sleep:    time.Sleep,
		jitter: func() time.Duration {
			return time.Duration(rand.Float64() * 0.25 * float64(time.Second))
		},
	}
}

// retryDelay 第 i 次失败后的退避：min(8s, 0.8*2^i + U(0, 0.25s))
func (w *Writer) retryDelay(attemptIndex int) time.Duration {
	base := time.Duration(0.8 * float64(int(1)<<attemptIndex) * float64(time.Second))
	d := base + w.jitter()
	if d > 8*time.Second {
		d = 8 * time.Second
	}
	return d
}

// WriteChapter 单次生成章节正文，瞬态失败最多重试至 3 次尝试
func (w *Writer) WriteChapter(ctx context.Context, req ChapterRequest) (string, error) {
	userPrompt := buildChapterUserPrompt(req)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		text, err := w.provider.Complete(ctx, chapterSystemPrompt, userPrompt)
		if err == nil {
			return strings.TrimSpace(text), nil
		}
		lastErr = err
		if !IsTransient(err) || attempt >= maxAttempts-1 {
			return "", err
		}
		metrics.LLMRetriesTotal.Inc()
		logger.Warn(ctx, "transient llm error, retrying",
			"chapter", req.ChapterNumber, "attempt", attempt+1, "error", err.Error())
		w.sleep(w.retryDelay(attempt))
	}
	return "", lastErr
}

// StreamChapter 流式生成章节正文。
// 重试只发生在还没有任何增量交付给 onDelta 之前；一旦第一个
// 增量发出，后续失败立即上抛（已经交付的输出没法收回）。
func (w *Writer) StreamChapter(ctx context.Context, req ChapterRequest, onDelta func(string)) (string, error) {
	userPrompt := buildChapterUserPrompt(req)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		sawAny := false
		wrapped := func(delta string) {
			sawAny = true
			if onDelta != nil {
				onDelta(delta)
			}
		}

		text, err := w.provider.StreamComplete(ctx, chapterSystemPrompt, userPrompt, wrapped)
		if err == nil {
			return strings.TrimSpace(text), nil
		}
		lastErr = err
		if sawAny || !IsTransient(err) || attempt >= maxAttempts-1 {
			return "", err
		}
		metrics.LLMRetriesTotal.Inc()
		logger.Warn(ctx, "transient llm stream error before first token, retrying",
			"chapter", req.ChapterNumber, "attempt", attempt+1, "error", err.Error())
		w.sleep(w.retryDelay(attempt))
	}
	return "", lastErr
}
