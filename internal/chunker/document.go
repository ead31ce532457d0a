// Package chunker 将结构化文档或纯文本切分为适合向量化的语义分块。
package chunker

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Node 是结构化文档树的一个节点（编辑器侧的 JSON 文档模型）。
type Node struct {
	Type    string                 `json:"type"`
	Text    string                 `json:"text,omitempty"`
	Attrs   map[string]interface{} `json:"attrs,omitempty"`
	Content []Node                 `json:"content,omitempty"`
}

// 已知的块级节点类型。只遍历这些类型，文档语义不在本引擎校验范围内。
var blockTypes = map[string]bool{
	"doc":         true,
	"paragraph":   true,
	"heading":     true,
	"blockquote":  true,
	"codeBlock":   true,
	"bulletList":  true,
	"orderedList": true,
	"listItem":    true,
	"table":       true,
	"tableRow":    true,
	"tableCell":   true,
}

// ParseDocument 尝试把正文解析为结构化文档树。
// 解析失败或不是 doc 根节点时返回 false，调用方按纯文本处理。
func ParseDocument(body string) (*Node, bool) {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var root Node
	if err := json.Unmarshal([]byte(trimmed), &root); err != nil {
		return nil, false
	}
	if root.Type != "doc" {
		return nil, false
	}
	return &root, true
}

// extractText 提取一个节点的全部文本。
// 块级节点的子节点文本用换行连接，行内内容直接拼接。
func extractText(node *Node) string {
	if node.Text != "" {
		return node.Text
	}
	if len(node.Content) == 0 {
		return ""
	}
	parts := make([]string, 0, len(node.Content))
	for i := range node.Content {
		child := &node.Content[i]
		text := extractText(child)
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	if blockTypes[node.Type] && node.Type != "paragraph" && node.Type != "heading" {
		return strings.Join(parts, "\n")
	}
	return strings.Join(parts, "")
}

// ExtractText 返回正文的纯文本形式：结构化文档提取全部节点文本，
// 纯文本原样返回。用于构建模型输入，不保证确定性序列化。
func ExtractText(body string) string {
	root, ok := ParseDocument(body)
	if !ok {
		return body
	}
	return extractText(root)
}

// CanonicalText 把正文规范化为确定性的字符串，作为内容散列的输入。
// 结构化文档序列化完整的树（节点类型、排序后的属性、文本），
// 任何结构或文本上的修改都会改变结果；纯文本原样返回。
func CanonicalText(body string) string {
	root, ok := ParseDocument(body)
	if !ok {
		return body
	}
	var sb strings.Builder
	writeCanonical(&sb, root)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, node *Node) {
	sb.WriteString(node.Type)
	if len(node.Attrs) > 0 {
		keys := make([]string, 0, len(node.Attrs))
		for k := range node.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('[')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(sb, "%s=%v", k, node.Attrs[k])
		}
		sb.WriteByte(']')
	}
	if node.Text != "" {
		sb.WriteByte('(')
		sb.WriteString(node.Text)
		sb.WriteByte(')')
	}
	if len(node.Content) > 0 {
		sb.WriteByte('{')
		for i := range node.Content {
			if i > 0 {
				sb.WriteByte(';')
			}
			writeCanonical(sb, &node.Content[i])
		}
		sb.WriteByte('}')
	}
}
