// Package staleness 用内容散列判断缓存的衍生产物是否已经过期。
package staleness

// Hash 计算规范化文本的 32 位滚动散列。
// 不用于安全场景，只需要对内容变化足够敏感且跨进程稳定。
func Hash(canonicalText string) int32 {
	var h int32
	for _, r := range canonicalText {
		h = 31*h + int32(r)
	}
	return h
}

// IsStale 判断以 storedHash 生成的产物相对实时内容是否已经陈旧。
func IsStale(storedHash int32, liveCanonicalText string) bool {
	return Hash(liveCanonicalText) != storedHash
}
