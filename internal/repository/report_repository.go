package repository

import (
	"spechub-go/internal/model"

	"gorm.io/gorm"
)

// ReportRepository 定义了对 reports 表的数据操作接口。
type ReportRepository interface {
	Create(report *model.Report) error
	FindByID(id string) (*model.Report, error)
	FindBySource(workspaceID, sourceID string) ([]*model.Report, error)
}

type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository 创建一个新的 ReportRepository 实例。
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

// Create 保存一份报告。
func (r *reportRepository) Create(report *model.Report) error {
	return r.db.Create(report).Error
}

// FindByID 按报告 ID 查找。
func (r *reportRepository) FindByID(id string) (*model.Report, error) {
	var report model.Report
	err := r.db.Where("id = ?", id).First(&report).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// FindBySource 返回某来源的全部历史报告，按时间倒序。
func (r *reportRepository) FindBySource(workspaceID, sourceID string) ([]*model.Report, error) {
	var reports []*model.Report
	err := r.db.Where("workspace_id = ? AND source_id = ?", workspaceID, sourceID).
		Order("created_at DESC").
		Find(&reports).Error
	return reports, err
}
