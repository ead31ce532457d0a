// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// IndexingTask represents the data structure for a background reindexing job.
// 正文不随消息传递，消费侧从 source_records 取最新内容，天然幂等。
type IndexingTask struct {
	SourceID    string `json:"source_id"`
	SourceType  string `json:"source_type"`
	WorkspaceID string `json:"workspace_id"`
}

// Key 返回任务在重试计数等场景下使用的稳定键。
func (t IndexingTask) Key() string {
	return t.SourceType + ":" + t.SourceID
}
