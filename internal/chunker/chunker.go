package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// maxChunkTokens 是单个分块的估算 token 上限，对齐向量模型的有效上下文预算。
	maxChunkTokens = 500
	// overlapTokens 是纯文本分块断开时回带的尾部上下文量。
	overlapTokens = 50
	// charsPerToken 是估算比率：⌈字符数/4⌉ ≈ token 数。
	charsPerToken = 4
)

// Chunk 是一个带序号的语义分块，序号从 0 开始。
type Chunk struct {
	Text  string
	Index int
}

var paragraphSplitter = regexp.MustCompile(`\n\s*\n`)

// EstimateTokens 以 ⌈字符数/4⌉ 估算文本的 token 数。
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + charsPerToken - 1) / charsPerToken
}

// Split 把来源正文切分为有界的语义分块。
// 结构化文档按标题分节切分，可以合法地产出 0 个分块；
// 纯文本没有可提取内容时仍会产出一个兜底分块，保证可向量化。
func Split(body string) []Chunk {
	var texts []string
	root, structured := ParseDocument(body)
	if structured {
		texts = splitStructured(root)
	} else {
		texts = splitPlainText(body)
	}

	chunks := make([]Chunk, 0, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, Chunk{Text: text, Index: len(chunks)})
	}
	if len(chunks) == 0 && !structured {
		chunks = append(chunks, Chunk{Text: fallbackText(body), Index: 0})
	}
	return chunks
}

// section 是一个标题及其下聚拢的块级文本。
type section struct {
	heading string
	blocks  []string
}

// splitStructured 遍历文档树：标题开启新的小节，非标题块文本归入最近的标题之下。
func splitStructured(root *Node) []string {
	sections := collectSections(root)

	var texts []string
	for _, sec := range sections {
		texts = append(texts, splitSection(sec)...)
	}
	return texts
}

func collectSections(root *Node) []section {
	var sections []section
	current := section{}
	for i := range root.Content {
		node := &root.Content[i]
		if node.Type == "heading" {
			if current.heading != "" || len(current.blocks) > 0 {
				sections = append(sections, current)
			}
			current = section{heading: strings.TrimSpace(extractText(node))}
			continue
		}
		text := strings.TrimSpace(extractText(node))
		if text == "" {
			continue
		}
		current.blocks = append(current.blocks, text)
	}
	if current.heading != "" || len(current.blocks) > 0 {
		sections = append(sections, current)
	}
	return sections
}

// splitSection 输出一个小节的分块：整节不超限时作为单块输出，
// 超限时按空行段落贪心打包，打包断开后新分块重新带上小节标题前缀。
func splitSection(sec section) []string {
	body := strings.Join(sec.blocks, "\n\n")
	full := sec.heading
	if body != "" {
		if full != "" {
			full += "\n"
		}
		full += body
	}
	if full == "" {
		return nil
	}
	if EstimateTokens(full) <= maxChunkTokens {
		return []string{full}
	}

	var texts []string
	current := ""
	for _, para := range splitParagraphs(body) {
		candidate := withHeading(sec.heading, joinParagraphs(current, para))
		if current != "" && EstimateTokens(candidate) > maxChunkTokens {
			texts = append(texts, withHeading(sec.heading, current))
			current = para // 新分块从这个段落重新开始，输出时会再补上标题
			continue
		}
		current = joinParagraphs(current, para)
	}
	if current != "" {
		texts = append(texts, withHeading(sec.heading, current))
	}
	return texts
}

// splitPlainText 把空行分隔的段落贪心打包为不超限的分块，
// 断开处把上一个分块的尾部约 50 token 作为重叠上下文带入下一块。
func splitPlainText(text string) []string {
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var texts []string
	current := ""
	for _, para := range paragraphs {
		candidate := joinParagraphs(current, para)
		if current != "" && EstimateTokens(candidate) > maxChunkTokens {
			texts = append(texts, current)
			current = joinParagraphs(trailingContext(current), para)
			continue
		}
		current = candidate
	}
	if current != "" {
		texts = append(texts, current)
	}
	return texts
}

func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, part := range paragraphSplitter.Split(text, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		paragraphs = append(paragraphs, part)
	}
	return paragraphs
}

func joinParagraphs(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n\n" + b
}

func withHeading(heading, body string) string {
	if heading == "" {
		return body
	}
	if body == "" {
		return heading
	}
	return heading + "\n" + body
}

// trailingContext 截取文本尾部约 overlapTokens 个 token 的内容。
func trailingContext(text string) string {
	limit := overlapTokens * charsPerToken
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	tail := string(runes[len(runes)-limit:])
	// 对齐到词边界，避免把半个词带进下一块
	if idx := strings.IndexAny(tail, " \n"); idx >= 0 && idx+1 < len(tail) {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}

// fallbackText 为无可提取内容的纯文本来源产出兜底分块文本。
func fallbackText(body string) string {
	if trimmed := strings.TrimSpace(body); trimmed != "" {
		return trimmed
	}
	if body != "" {
		return body
	}
	return " "
}
