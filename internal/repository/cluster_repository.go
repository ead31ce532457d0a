package repository

import (
	"spechub-go/internal/model"

	"gorm.io/gorm"
)

// ClusterRepository 定义了对 clusters 表的数据操作接口。
type ClusterRepository interface {
	// ReplaceForWorkspace 在一个事务中删除工作区的全部旧聚类并写入新聚类。
	// 聚类身份在两次计算之间不稳定，不做增量更新。
	ReplaceForWorkspace(workspaceID string, clusters []*model.Cluster) error
	FindByWorkspace(workspaceID string) ([]*model.Cluster, error)
}

type clusterRepository struct {
	db *gorm.DB
}

// NewClusterRepository 创建一个新的 ClusterRepository 实例。
func NewClusterRepository(db *gorm.DB) ClusterRepository {
	return &clusterRepository{db: db}
}

// ReplaceForWorkspace 整体替换工作区的聚类集合。
func (r *clusterRepository) ReplaceForWorkspace(workspaceID string, clusters []*model.Cluster) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("workspace_id = ?", workspaceID).Delete(&model.Cluster{}).Error; err != nil {
			return err
		}
		if len(clusters) == 0 {
			return nil
		}
		return tx.CreateInBatches(clusters, 50).Error
	})
}

// FindByWorkspace 返回工作区当前的全部聚类。
func (r *clusterRepository) FindByWorkspace(workspaceID string) ([]*model.Cluster, error) {
	var clusters []*model.Cluster
	err := r.db.Where("workspace_id = ?", workspaceID).
		Order("evidence_count DESC").
		Find(&clusters).Error
	return clusters, err
}
