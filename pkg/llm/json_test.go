package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"无围栏", `[{"a":1}]`, `[{"a":1}]`},
		{"json 围栏", "```json\n[{\"a\":1}]\n```", `[{"a":1}]`},
		{"无语言标记", "```\n[{\"a\":1}]\n```", `[{"a":1}]`},
		{"围栏同行", "```[{\"a\":1}]```", `[{"a":1}]`},
		{"首尾空白", "  \n```json\n{\"a\":1}\n```  ", `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StripCodeFence(tc.in))
		})
	}
}

func TestDecodeJSONPlain(t *testing.T) {
	var groups []struct {
		Label string `json:"label"`
	}
	err := DecodeJSON(`[{"label":"性能"}]`, &groups)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "性能", groups[0].Label)
}

func TestDecodeJSONFenced(t *testing.T) {
	var v map[string]float64
	err := DecodeJSON("```json\n{\"overview\":0.8}\n```", &v)
	require.NoError(t, err)
	assert.Equal(t, 0.8, v["overview"])
}

func TestDecodeJSONWithSurroundingProse(t *testing.T) {
	// 模型偶尔在 JSON 前后附带说明文字
	var v []int
	err := DecodeJSON("好的，结果如下：[1,2,3]，请查收。", &v)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, v)
}

func TestDecodeJSONFailures(t *testing.T) {
	var v []int
	assert.Error(t, DecodeJSON("", &v))
	assert.Error(t, DecodeJSON("完全不是 JSON 的回答", &v))
	assert.Error(t, DecodeJSON("```\n```", &v))
}
