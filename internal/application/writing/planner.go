// Package writing 承载大纲与章节的生成逻辑：提示词组装、
// 重试策略、章节计数推断和批量生成状态机。
package writing

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"fiction-ai-api/internal/infrastructure/llm"
)

// OutlineRequest 大纲生成请求
type OutlineRequest struct {
	Title       string
	Premise     string
	Genre       string
	TargetWords *int
}

const outlineSystemPrompt = "你是一个职业小说策划编辑。你的任务是给小说做可执行的大纲。\n" +
	"要求：\n" +
	"- 输出为 Markdown\n" +
	"- 包含：一句话梗概、主要人物(3-6)、核心冲突、三幕结构、章节列表(8-14章，每章一句要点)\n" +
	"- 避免空话，尽量具体，可直接拿来写正文\n"

func buildOutlineUserPrompt(req OutlineRequest) string {
	title := req.Title
	if title == "" {
		title = "（未定）"
	}
	genre := req.Genre
	if genre == "" {
		genre = "（未指定）"
	}
	target := "（未指定）"
	if req.TargetWords != nil {
		target = strconv.Itoa(*req.TargetWords)
	}
	return fmt.Sprintf("书名：%s\n题材/关键词：%s\n目标总字数：%s\n创作需求：%s\n",
		title, genre, target, req.Premise)
}

// MakeOutline 生成大纲 Markdown
func MakeOutline(ctx context.Context, provider llm.Provider, req OutlineRequest) (string, error) {
	text, err := provider.Complete(ctx, outlineSystemPrompt, buildOutlineUserPrompt(req))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

var (
	totalChaptersRe   = regexp.MustCompile(`共\s*(\d{1,3})\s*章`)
	chapterMarkerRe   = regexp.MustCompile(`第\s*(\d{1,3})\s*章`)
	englishChapterRe  = regexp.MustCompile(`(?i)\bChapter\s*(\d{1,3})\b`)
	leadingOrdinalRe  = regexp.MustCompile(`(?m)^\s*(\d{1,3})\s*[.)、]`)
)

// PlannedLastChapter 从大纲文本推断计划章数。
// "共N章" 的明确总数声明直接胜出；否则取 "第N章" / "Chapter N" /
// 行首序号的最大值。完全没有数字信号时返回 (0, false)，
// 调用方必须把它作为错误呈现，不允许默认兜底。
func PlannedLastChapter(outlineMarkdown string) (int, bool) {
	if m := totalChaptersRe.FindStringSubmatch(outlineMarkdown); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}

	max := 0
	for _, m := range chapterMarkerRe.FindAllStringSubmatch(outlineMarkdown, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	for _, m := range englishChapterRe.FindAllStringSubmatch(outlineMarkdown, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	for _, m := range leadingOrdinalRe.FindAllStringSubmatch(outlineMarkdown, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}

	if max == 0 {
		return 0, false
	}
	return max, true
}
