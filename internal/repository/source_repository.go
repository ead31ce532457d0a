package repository

import (
	"spechub-go/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SourceRepository 定义了对 source_records 表的数据操作接口。
type SourceRepository interface {
	Upsert(record *model.SourceRecord) error
	FindBySource(sourceID, sourceType string) (*model.SourceRecord, error)
	CountEvidence(workspaceID string) (int64, error)
	FindRecentEvidence(workspaceID string, limit int) ([]*model.SourceRecord, error)
	RecentEvidenceRatio(workspaceID string, window time.Duration) (float64, error)
}

type sourceRepository struct {
	db *gorm.DB
}

// NewSourceRepository 创建一个新的 SourceRepository 实例。
func NewSourceRepository(db *gorm.DB) SourceRepository {
	return &sourceRepository{db: db}
}

// Upsert 插入或按 (source_id, source_type) 更新一条来源记录。
func (r *sourceRepository) Upsert(record *model.SourceRecord) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}, {Name: "source_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"workspace_id", "body", "updated_at"}),
	}).Create(record).Error
}

// FindBySource 按来源主键查找一条记录。
func (r *sourceRepository) FindBySource(sourceID, sourceType string) (*model.SourceRecord, error) {
	var record model.SourceRecord
	err := r.db.Where("source_id = ? AND source_type = ?", sourceID, sourceType).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// CountEvidence 统计工作区内证据类来源的数量。
func (r *sourceRepository) CountEvidence(workspaceID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.SourceRecord{}).
		Where("workspace_id = ? AND source_type = ?", workspaceID, model.SourceTypeEvidence).
		Count(&count).Error
	return count, err
}

// FindRecentEvidence 按创建时间倒序返回工作区内最近的证据记录。
func (r *sourceRepository) FindRecentEvidence(workspaceID string, limit int) ([]*model.SourceRecord, error) {
	var records []*model.SourceRecord
	err := r.db.Where("workspace_id = ? AND source_type = ?", workspaceID, model.SourceTypeEvidence).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// RecentEvidenceRatio 计算窗口期内新增证据占全部证据的比例，无证据时为 0。
func (r *sourceRepository) RecentEvidenceRatio(workspaceID string, window time.Duration) (float64, error) {
	total, err := r.CountEvidence(workspaceID)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	var recent int64
	since := time.Now().Add(-window)
	err = r.db.Model(&model.SourceRecord{}).
		Where("workspace_id = ? AND source_type = ? AND created_at >= ?", workspaceID, model.SourceTypeEvidence, since).
		Count(&recent).Error
	if err != nil {
		return 0, err
	}
	return float64(recent) / float64(total), nil
}
