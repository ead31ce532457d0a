// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 可被索引的来源类型。
const (
	SourceTypeSpecification = "specification"
	SourceTypeEvidence      = "evidence"
	SourceTypeCodeModule    = "code_module"
)

// SourceRecord 对应于数据库中的 source_records 表。
// 保存每个来源（规格文档、证据、代码模块摘要）的最新正文，
// 是陈旧性检查和聚类取数的事实来源。
type SourceRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	SourceID    string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_source,priority:1;column:source_id"`
	SourceType  string    `gorm:"type:varchar(32);not null;uniqueIndex:uk_source,priority:2;column:source_type"`
	WorkspaceID string    `gorm:"type:varchar(64);not null;index;column:workspace_id"`
	Body        string    `gorm:"type:longtext;column:body"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (SourceRecord) TableName() string {
	return "source_records"
}
