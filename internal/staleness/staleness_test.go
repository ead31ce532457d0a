package staleness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashDeterministic(t *testing.T) {
	text := "doc{heading(概述);paragraph(正文)}"
	assert.Equal(t, Hash(text), Hash(text))
}

func TestHashKnownValues(t *testing.T) {
	assert.Equal(t, int32(0), Hash(""))
	assert.Equal(t, int32(96354), Hash("abc"))
}

func TestHashOverflowWraps(t *testing.T) {
	// 长文本必然溢出 int32，散列依赖回绕语义而不是 panic
	long := make([]byte, 0, 1<<16)
	for i := 0; i < 1<<14; i++ {
		long = append(long, "内容"...)
	}
	first := Hash(string(long))
	assert.Equal(t, first, Hash(string(long)))
}

func TestIsStale(t *testing.T) {
	original := "用户希望支持批量导出。"
	h := Hash(original)

	assert.False(t, IsStale(h, original))
	assert.True(t, IsStale(h, original+"还要支持定时任务。"))
	assert.True(t, IsStale(h, ""))
}
