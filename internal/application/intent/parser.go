// Package intent 把自然语言输入归类为带参数的意图。
// 分类按优先级逐条匹配，首个命中即返回；纯函数，无副作用。
package intent

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Kind 意图类型
type Kind string

const (
	KindNoop                Kind = "noop"
	KindListBooks           Kind = "list_books"
	KindSaveSnippet         Kind = "save_snippet"
	KindSearchSnippets      Kind = "search_snippets"
	KindSwitchBook          Kind = "switch_book"
	KindCreateBook          Kind = "create_book"
	KindMakeOutline         Kind = "make_outline"
	KindWriteChapter        Kind = "write_chapter"
	KindWriteNextChapter    Kind = "write_next_chapter"
	KindStartBookFromPrompt Kind = "start_book_from_prompt"
	KindChat                Kind = "chat"
)

// Intent 解析结果
type Intent struct {
	Kind Kind

	// Text save_snippet 的片段内容 / chat 的原文
	Text string
	// Query search_snippets 的检索词
	Query string
	// Title switch_book / create_book 提取出的书名
	Title string
	// Premise create_book 的创作需求原文
	Premise string
	// Number write_chapter 的章号
	Number int
	// Request 写作类意图的原始请求文本
	Request string
	// Prompt start_book_from_prompt 的创作提示
	Prompt string
	// TargetMinWords / TargetMaxWords 提取出的目标字数范围，0 表示未提取到
	TargetMinWords int
	TargetMaxWords int
	// Genre start_book_from_prompt 的题材提示
	Genre string
}

var (
	wordsRe         = regexp.MustCompile(`(\d{2,7})\s*字`)
	rangeRe         = regexp.MustCompile(`(\d{2,7})\s*[-~到]\s*(\d{2,7})\s*字`)
	chapterRe       = regexp.MustCompile(`第\s*(\d{1,4})\s*章`)
	titleBracketsRe = regexp.MustCompile(`《([^》]{1,80})》`)

	// 命名式书名模式："叫X" "名为X" "标题是X"，右边界为常见句读
	namedTitleRes = []*regexp.Regexp{
		regexp.MustCompile(`叫\s*([^，。！？,.!?:：]{1,50})`),
		regexp.MustCompile(`名为\s*([^，。！？,.!?:：]{1,50})`),
		regexp.MustCompile(`标题是\s*([^，。！？,.!?:：]{1,50})`),
	}

	queryPrefixRe = regexp.MustCompile(`^(一下|一下子|关于|有关|参考片段|片段|参考|资料|笔记|素材|设定)\s*`)
)

var (
	listKeywords     = []string{"我有哪些", "有哪些小说", "列出", "显示所有", "我的书"}
	saveKeywords     = []string{"保存", "记住", "收录"}
	materialKeywords = []string{"参考", "片段", "笔记", "资料", "素材", "设定", "灵感"}
	searchKeywords   = []string{"搜索", "查找", "检索", "找找"}
	searchMaterial   = []string{"片段", "笔记", "资料", "参考", "素材", "设定"}
	switchKeywords   = []string{"切换", "换到", "继续"}
	createKeywords   = []string{"新建", "创建", "开一本", "写一本新的", "开始一本新的"}
	outlineKeywords  = []string{"大纲", "提纲", "梗概", "故事线"}
	nextKeywords     = []string{"下一章", "继续写", "接着写", "写下去", "下一节", "下一段"}
	writeKeywords    = []string{"写", "创作", "写一个", "写一篇", "写一部"}

	genreHints = []string{"校园", "爱情", "悬疑", "科幻", "奇幻", "武侠", "历史", "都市", "推理", "恐怖", "治愈"}
)

// Parse 解析一句用户输入。
// 注意"继续"同时出现在切换与续写关键词里：切换意图要求能提取出书名，
// 提取不到时落到后面的续写分支。
func Parse(utterance string) Intent {
	text := strings.TrimSpace(utterance)
	if text == "" {
		return Intent{Kind: KindNoop}
	}

	if containsAny(text, listKeywords) {
		return Intent{Kind: KindListBooks}
	}

	if containsAny(text, saveKeywords) && containsAny(text, materialKeywords) {
		snippetText := extractAfterColon(text)
		if snippetText == "" {
			snippetText = text
		}
		return Intent{Kind: KindSaveSnippet, Text: snippetText}
	}

	if containsAny(text, searchKeywords) && containsAny(text, searchMaterial) {
		return Intent{Kind: KindSearchSnippets, Query: extractQuery(text)}
	}

	if containsAny(text, switchKeywords) {
		if title := ExtractBookTitle(text); title != "" {
			return Intent{Kind: KindSwitchBook, Title: title}
		}
	}

	if containsAny(text, createKeywords) {
		return Intent{Kind: KindCreateBook, Title: ExtractBookTitle(text), Premise: text}
	}

	if containsAny(text, outlineKeywords) {
		return Intent{Kind: KindMakeOutline, Request: text}
	}

	if m := chapterRe.FindStringSubmatch(text); m != nil {
		number, _ := strconv.Atoi(m[1])
		return Intent{Kind: KindWriteChapter, Number: number, Request: text}
	}

	if containsAny(text, nextKeywords) {
		return Intent{Kind: KindWriteNextChapter, Request: text}
	}

	if containsAny(text, writeKeywords) {
		minWords, maxWords := ExtractWordRange(text)
		return Intent{
			Kind:           KindStartBookFromPrompt,
			Prompt:         text,
			TargetMinWords: minWords,
			TargetMaxWords: maxWords,
			Genre:          ExtractGenreHint(text),
		}
	}

	return Intent{Kind: KindChat, Text: text}
}

// ExtractWordRange 提取目标字数范围。
// "A-B字" 按字面取 (A, B)；"N字" 视为 ±10% 的松散范围。
func ExtractWordRange(text string) (int, int) {
	if m := rangeRe.FindStringSubmatch(text); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		return lo, hi
	}
	if m := wordsRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return int(math.Round(float64(n) * 0.9)), int(math.Round(float64(n) * 1.1))
	}
	return 0, 0
}

// ExtractBookTitle 提取书名，《…》优先，其次命名式模式
func ExtractBookTitle(text string) string {
	if m := titleBracketsRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	for _, re := range namedTitleRes {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// ExtractBracketTitle 只提取《…》书名引用，用于自动切书
func ExtractBracketTitle(text string) string {
	if m := titleBracketsRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// ExtractGenreHint 提取题材提示词
func ExtractGenreHint(text string) string {
	for _, g := range genreHints {
		if strings.Contains(text, g) {
			return g
		}
	}
	return ""
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func extractAfterColon(text string) string {
	for _, sep := range []string{":", "："} {
		if idx := strings.Index(text, sep); idx >= 0 {
			return strings.TrimSpace(text[idx+len(sep):])
		}
	}
	return ""
}

func extractQuery(text string) string {
	for _, k := range searchKeywords {
		idx := strings.Index(text, k)
		if idx < 0 {
			continue
		}
		q := strings.TrimSpace(text[idx+len(k):])
		for _, sep := range []string{":", "："} {
			if i := strings.Index(q, sep); i >= 0 {
				q = strings.TrimSpace(q[i+len(sep):])
				break
			}
		}
		q = strings.TrimSpace(queryPrefixRe.ReplaceAllString(q, ""))
		q = strings.TrimSpace(strings.TrimLeft(q, ":：-— "))
		if q == "" {
			return text
		}
		return q
	}
	return text
}
