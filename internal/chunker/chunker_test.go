package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	// 按 rune 计数，多字节字符不膨胀
	assert.Equal(t, 1, EstimateTokens("需求分析"))
}

func TestSplitShortPlainText(t *testing.T) {
	chunks := Split("这是一段很短的用户反馈。")

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "这是一段很短的用户反馈。", chunks[0].Text)
}

func TestSplitLongPlainTextWithOverlap(t *testing.T) {
	// 每段约 300 token，三段无法合入一个 500 token 的分块
	p1 := strings.TrimSpace(strings.Repeat("alpha ", 200))
	p2 := strings.TrimSpace(strings.Repeat("bravo ", 200))
	p3 := strings.TrimSpace(strings.Repeat("charlie ", 150))
	chunks := Split(p1 + "\n\n" + p2 + "\n\n" + p3)

	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, EstimateTokens(c.Text), maxChunkTokens)
	}
	// 断开处把上一块的尾部带入下一块作为重叠上下文
	assert.True(t, strings.HasPrefix(chunks[1].Text, "alpha"))
	assert.Contains(t, chunks[1].Text, "bravo")
	assert.True(t, strings.HasPrefix(chunks[2].Text, "bravo"))
	assert.Contains(t, chunks[2].Text, "charlie")
}

func TestSplitEmptyPlainTextProducesFallbackChunk(t *testing.T) {
	chunks := Split("")

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.NotEmpty(t, chunks[0].Text)
}

func TestSplitStructuredBySections(t *testing.T) {
	body := `{"type":"doc","content":[
		{"type":"heading","attrs":{"level":1},"content":[{"type":"text","text":"概述"}]},
		{"type":"paragraph","content":[{"type":"text","text":"这是产品概述的内容。"}]},
		{"type":"heading","attrs":{"level":1},"content":[{"type":"text","text":"风险"}]},
		{"type":"paragraph","content":[{"type":"text","text":"这是风险章节的内容。"}]}
	]}`

	chunks := Split(body)

	require.Len(t, chunks, 2)
	assert.Equal(t, "概述\n这是产品概述的内容。", chunks[0].Text)
	assert.Equal(t, "风险\n这是风险章节的内容。", chunks[1].Text)
}

func TestSplitOversizedSectionRepeatsHeading(t *testing.T) {
	// 单个小节超过 500 token 时按段落切开，每个分块重新带上标题
	para := strings.TrimSpace(strings.Repeat("delta ", 200))
	var content []string
	content = append(content, `{"type":"heading","content":[{"type":"text","text":"需求"}]}`)
	for i := 0; i < 4; i++ {
		content = append(content, fmt.Sprintf(`{"type":"paragraph","content":[{"type":"text","text":"%s"}]}`, para))
	}
	body := fmt.Sprintf(`{"type":"doc","content":[%s]}`, strings.Join(content, ","))

	chunks := Split(body)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.True(t, strings.HasPrefix(c.Text, "需求\n"), "分块应以小节标题开头: %q", c.Text[:20])
		assert.LessOrEqual(t, EstimateTokens(c.Text), maxChunkTokens)
	}
}

func TestSplitOversizedParagraphKeptAtomic(t *testing.T) {
	// 无法再切分的超长段落作为整体保留，不在段落中间硬切
	para := strings.TrimSpace(strings.Repeat("echo ", 600))
	body := fmt.Sprintf(`{"type":"doc","content":[
		{"type":"heading","content":[{"type":"text","text":"需求"}]},
		{"type":"paragraph","content":[{"type":"text","text":"%s"}]}
	]}`, para)

	chunks := Split(body)

	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, para)
}

func TestSplitStructuredWithoutTextYieldsNoChunks(t *testing.T) {
	chunks := Split(`{"type":"doc","content":[{"type":"paragraph"},{"type":"heading"}]}`)
	assert.Empty(t, chunks)
}

func TestSplitDeterministic(t *testing.T) {
	body := strings.Repeat("重复的反馈内容。\n\n", 300)
	assert.Equal(t, Split(body), Split(body))
}

func TestExtractText(t *testing.T) {
	body := `{"type":"doc","content":[
		{"type":"heading","content":[{"type":"text","text":"标题"}]},
		{"type":"paragraph","content":[{"type":"text","text":"正文"},{"type":"text","text":"续写"}]}
	]}`
	assert.Equal(t, "标题\n正文续写", ExtractText(body))
	assert.Equal(t, "纯文本原样返回", ExtractText("纯文本原样返回"))
}

func TestCanonicalTextIgnoresAttrOrder(t *testing.T) {
	a := `{"type":"doc","content":[{"type":"heading","attrs":{"level":2,"id":"x"},"content":[{"type":"text","text":"标题"}]}]}`
	b := `{"type":"doc","content":[{"type":"heading","attrs":{"id":"x","level":2},"content":[{"type":"text","text":"标题"}]}]}`
	assert.Equal(t, CanonicalText(a), CanonicalText(b))
}

func TestCanonicalTextChangesOnEdit(t *testing.T) {
	a := `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"原始内容"}]}]}`
	b := `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"修改内容"}]}]}`
	assert.NotEqual(t, CanonicalText(a), CanonicalText(b))

	// 结构变化同样改变规范化文本，即使提取出的纯文本一致
	c := `{"type":"doc","content":[{"type":"blockquote","content":[{"type":"text","text":"原始内容"}]}]}`
	assert.NotEqual(t, CanonicalText(a), CanonicalText(c))
	assert.Equal(t, ExtractText(a), ExtractText(c))
}
