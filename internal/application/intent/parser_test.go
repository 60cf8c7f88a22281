package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriorityOrder(t *testing.T) {
	tests := []struct {
		name      string
		utterance string
		kind      Kind
	}{
		{"空输入", "   ", KindNoop},
		{"列书", "我有哪些小说", KindListBooks},
		{"保存片段", "保存参考：主角是左撇子", KindSaveSnippet},
		{"检索片段", "搜索一下关于主角的设定", KindSearchSnippets},
		{"切书", "切换到《晨雾》", KindSwitchBook},
		{"建书", "新建一本叫晨雾的小说", KindCreateBook},
		{"大纲", "给我生成一个大纲", KindMakeOutline},
		{"指定章号", "写第3章", KindWriteChapter},
		{"续写", "接着写下一章", KindWriteNextChapter},
		{"从提示开书", "写一个3000字的校园爱情小说", KindStartBookFromPrompt},
		{"闲聊", "今天天气不错", KindChat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, Parse(tt.utterance).Kind)
		})
	}
}

// 同时命中两类关键词时取优先级更高的那一类
func TestParseHigherPriorityWins(t *testing.T) {
	// "保存"+"参考" 命中保存片段，虽然句中也有写作关键词"写"
	in := Parse("保存参考：主角小时候写过日记")
	assert.Equal(t, KindSaveSnippet, in.Kind)

	// "列出" 的优先级高于一切写作类
	in = Parse("列出我写过的书")
	assert.Equal(t, KindListBooks, in.Kind)

	// "大纲" 优先于"第N章"
	in = Parse("把大纲里第2章的标题改一下")
	assert.Equal(t, KindMakeOutline, in.Kind)
}

// "继续" 同时是切换与续写关键词：提取不出书名时落到续写
func TestParseSwitchContinueOverlap(t *testing.T) {
	in := Parse("继续《晨雾》")
	require.Equal(t, KindSwitchBook, in.Kind)
	assert.Equal(t, "晨雾", in.Title)

	in = Parse("继续写")
	assert.Equal(t, KindWriteNextChapter, in.Kind)
}

func TestParseDeterministic(t *testing.T) {
	const utterance = "写一个3000字的校园爱情小说"
	first := Parse(utterance)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Parse(utterance))
	}
}

func TestParseChapterNumber(t *testing.T) {
	in := Parse("重写第 12 章")
	require.Equal(t, KindWriteChapter, in.Kind)
	assert.Equal(t, 12, in.Number)
}

func TestExtractWordRange(t *testing.T) {
	// 单值按 ±10% 取整
	lo, hi := ExtractWordRange("写一个3000字的小说")
	assert.Equal(t, 2700, lo)
	assert.Equal(t, 3300, hi)

	// 显式范围按字面取值，不做任何取整
	lo, hi = ExtractWordRange("写一个2000-5000字的小说")
	assert.Equal(t, 2000, lo)
	assert.Equal(t, 5000, hi)

	lo, hi = ExtractWordRange("写一个2000到5000字的小说")
	assert.Equal(t, 2000, lo)
	assert.Equal(t, 5000, hi)

	lo, hi = ExtractWordRange("随便写点")
	assert.Zero(t, lo)
	assert.Zero(t, hi)
}

func TestExtractBookTitle(t *testing.T) {
	// 书名号优先于命名式模式
	assert.Equal(t, "晨雾", ExtractBookTitle("切换到《晨雾》，就是那本叫别的名字的"))
	assert.Equal(t, "晨雾", ExtractBookTitle("换到名为晨雾，谢谢"))
	assert.Equal(t, "", ExtractBookTitle("换一本书"))

	// 自动切书只认书名号
	assert.Equal(t, "晨雾", ExtractBracketTitle("给《晨雾》写下一章"))
	assert.Equal(t, "", ExtractBracketTitle("给叫晨雾的书写下一章"))
}

func TestExtractGenreHint(t *testing.T) {
	in := Parse("写一个3000字的校园爱情小说")
	require.Equal(t, KindStartBookFromPrompt, in.Kind)
	// 命中多个题材词时取出现顺序靠前的
	assert.Equal(t, "校园", in.Genre)
}

func TestParseSearchQueryExtraction(t *testing.T) {
	// 前缀词只剥一层："一下" 去掉后保留 "关于…"
	in := Parse("搜索一下关于主角的设定")
	require.Equal(t, KindSearchSnippets, in.Kind)
	assert.Equal(t, "关于主角的设定", in.Query)

	in = Parse("查找资料 雨夜")
	require.Equal(t, KindSearchSnippets, in.Kind)
	assert.Equal(t, "雨夜", in.Query)

	in = Parse("检索片段：雨夜")
	require.Equal(t, KindSearchSnippets, in.Kind)
	assert.Equal(t, "雨夜", in.Query)
}

func TestParseSaveSnippetText(t *testing.T) {
	in := Parse("保存参考：主角是左撇子")
	require.Equal(t, KindSaveSnippet, in.Kind)
	assert.Equal(t, "主角是左撇子", in.Text)

	// 没有冒号时保留原句
	in = Parse("记住这个设定吧")
	require.Equal(t, KindSaveSnippet, in.Kind)
	assert.Equal(t, "记住这个设定吧", in.Text)
}
