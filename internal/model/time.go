package model

import "time"

// localTimeLayout 是对外响应统一使用的时间格式。
const localTimeLayout = "2006-01-02 15:04:05"

// LocalTime 在 DTO 层替代 time.Time，序列化为 "YYYY-MM-DD HH:MM:SS"
// 而不是 RFC3339，与前端展示格式保持一致。
type LocalTime time.Time

// MarshalJSON 实现 json.Marshaler 接口。
func (t LocalTime) MarshalJSON() ([]byte, error) {
	b := make([]byte, 0, len(localTimeLayout)+2)
	b = append(b, '"')
	b = time.Time(t).AppendFormat(b, localTimeLayout)
	b = append(b, '"')
	return b, nil
}
