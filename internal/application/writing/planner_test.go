package writing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlannedLastChapterExplicitTotalWins(t *testing.T) {
	outline := "# 大纲\n全书共12章。\n\n- 第3章 转折\n- 第9章 高潮\n"
	n, ok := PlannedLastChapter(outline)
	require.True(t, ok)
	assert.Equal(t, 12, n)
}

func TestPlannedLastChapterMaxMarker(t *testing.T) {
	outline := "- 第1章 开端\n- 第3章 转折\n- 第7章 结局\n"
	n, ok := PlannedLastChapter(outline)
	require.True(t, ok)
	assert.Equal(t, 7, n)
}

func TestPlannedLastChapterEnglishMarkers(t *testing.T) {
	outline := "Chapter 1: Setup\nChapter 5: Payoff\n"
	n, ok := PlannedLastChapter(outline)
	require.True(t, ok)
	assert.Equal(t, 5, n)
}

func TestPlannedLastChapterLeadingOrdinals(t *testing.T) {
	outline := "1. 开端\n2. 发展\n3、结局\n"
	n, ok := PlannedLastChapter(outline)
	require.True(t, ok)
	assert.Equal(t, 3, n)
}

// 混合信号取所有模式的最大值
func TestPlannedLastChapterMixedSignalsMax(t *testing.T) {
	outline := "- 第4章 转折\nChapter 6: Finale\n2. 某条列表项\n"
	n, ok := PlannedLastChapter(outline)
	require.True(t, ok)
	assert.Equal(t, 6, n)
}

func TestPlannedLastChapterNoSignal(t *testing.T) {
	_, ok := PlannedLastChapter("一段完全没有章节标记的散文大纲。")
	assert.False(t, ok)
}
