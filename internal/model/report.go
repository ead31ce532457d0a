package model

import "time"

// Report 对应于数据库中的 reports 表，保存一次分析报告的缓存产物。
// ContentHash 是生成报告时来源正文规范化文本的 32 位散列，
// 读取时用实时正文重算并比较即可判断报告是否陈旧。
type Report struct {
	ID          string    `gorm:"type:varchar(36);primaryKey;column:id"`
	WorkspaceID string    `gorm:"type:varchar(64);not null;index;column:workspace_id"`
	SourceID    string    `gorm:"type:varchar(64);not null;index;column:source_id"`
	SourceType  string    `gorm:"type:varchar(32);not null;column:source_type"`
	Content     string    `gorm:"type:longtext;column:content"`
	ContentHash int32     `gorm:"not null;column:content_hash"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (Report) TableName() string {
	return "reports"
}

// ReportDTO 定义了返回给前端的报告结构，Stale 标记由读取路径实时计算。
type ReportDTO struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	SourceID    string    `json:"sourceId"`
	SourceType  string    `json:"sourceType"`
	Content     string    `json:"content"`
	Stale       bool      `json:"stale"`
	CreatedAt   LocalTime `json:"createdAt"`
}
