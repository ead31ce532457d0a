package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON 把模型输出解析到 v。
// 模型在传输层不受 schema 约束，经常把 JSON 包在 ```json 围栏里，
// 这里先防御性剥掉围栏再解析；解析失败由调用方执行各自的兜底策略。
func DecodeJSON(raw string, v interface{}) error {
	cleaned := StripCodeFence(raw)
	if cleaned == "" {
		return fmt.Errorf("模型输出为空")
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		// 再尝试截取首个 JSON 值（模型偶尔在 JSON 前后附带说明文字）
		if extracted := extractJSONValue(cleaned); extracted != "" {
			if err2 := json.Unmarshal([]byte(extracted), v); err2 == nil {
				return nil
			}
		}
		return fmt.Errorf("解析模型 JSON 输出失败: %w", err)
	}
	return nil
}

// StripCodeFence 去掉包裹内容的 Markdown 代码围栏。
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// 去掉语言标记行，例如 ```json
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "" || !strings.ContainsAny(first, "{[") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractJSONValue 截取首个 '['/'{' 到末尾对应 ']'/'}' 之间的内容。
func extractJSONValue(s string) string {
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return ""
	}
	var closer byte
	if s[start] == '[' {
		closer = ']'
	} else {
		closer = '}'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}
