package model

import "time"

// 聚类计算状态机：idle -> computing -> {completed, failed}。
// idle 没有对应的行，首次计算前该工作区不存在记录。
const (
	ComputationStatusComputing = "computing"
	ComputationStatusCompleted = "completed"
	ComputationStatusFailed    = "failed"
)

// ClusterComputation 对应于数据库中的 cluster_computations 表。
// 每个工作区一行，既是软互斥锁（5 分钟租约），也是重算触发策略的输入。
type ClusterComputation struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	WorkspaceID    string    `gorm:"type:varchar(64);not null;uniqueIndex;column:workspace_id"`
	Status         string    `gorm:"type:varchar(16);not null;column:status"`
	LastComputedAt time.Time `gorm:"column:last_computed_at"`
	EvidenceCount  int       `gorm:"not null;default:0;column:evidence_count"`
}

func (ClusterComputation) TableName() string {
	return "cluster_computations"
}
