package model

import "time"

// RelationshipRelatedTo 是自动关联创建的边的固定关系类型。
const RelationshipRelatedTo = "related_to"

// Link 对应于数据库中的 links 表，表示证据与规格文档之间的关联边。
// 自动关联不会为同一对 (source, target) 创建重复边。
type Link struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	WorkspaceID  string    `gorm:"type:varchar(64);not null;index;column:workspace_id"`
	SourceID     string    `gorm:"type:varchar(64);not null;index:idx_link_source;column:source_id"`
	SourceType   string    `gorm:"type:varchar(32);not null;column:source_type"`
	TargetID     string    `gorm:"type:varchar(64);not null;index:idx_link_target;column:target_id"`
	TargetType   string    `gorm:"type:varchar(32);not null;column:target_type"`
	Relationship string    `gorm:"type:varchar(32);not null;column:relationship"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (Link) TableName() string {
	return "links"
}
