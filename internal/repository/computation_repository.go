package repository

import (
	"spechub-go/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ComputationRepository 定义了对 cluster_computations 表的数据操作接口。
type ComputationRepository interface {
	// Find 返回工作区的计算日志行，不存在时返回 gorm.ErrRecordNotFound。
	Find(workspaceID string) (*model.ClusterComputation, error)
	// Upsert 写入工作区的最新状态，LastComputedAt 同时充当软锁租约的起点。
	Upsert(workspaceID, status string, at time.Time, evidenceCount int) error
}

type computationRepository struct {
	db *gorm.DB
}

// NewComputationRepository 创建一个新的 ComputationRepository 实例。
func NewComputationRepository(db *gorm.DB) ComputationRepository {
	return &computationRepository{db: db}
}

// Find 按工作区查找计算日志。
func (r *computationRepository) Find(workspaceID string) (*model.ClusterComputation, error) {
	var computation model.ClusterComputation
	err := r.db.Where("workspace_id = ?", workspaceID).First(&computation).Error
	if err != nil {
		return nil, err
	}
	return &computation, nil
}

// Upsert 按 workspace_id 插入或更新状态行。
func (r *computationRepository) Upsert(workspaceID, status string, at time.Time, evidenceCount int) error {
	computation := &model.ClusterComputation{
		WorkspaceID:    workspaceID,
		Status:         status,
		LastComputedAt: at,
		EvidenceCount:  evidenceCount,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_computed_at", "evidence_count"}),
	}).Create(computation).Error
}
