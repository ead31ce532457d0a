package repository

import (
	"spechub-go/internal/model"

	"gorm.io/gorm"
)

// LinkRepository 定义了对 links 表的数据操作接口。
type LinkRepository interface {
	Create(link *model.Link) error
	// ExistsBetween 检查两个来源之间是否已存在任一方向的边。
	// 反向先行的自动关联可能已经建过这条边，所以两个方向都要查。
	ExistsBetween(workspaceID, aID, bID string) (bool, error)
	FindBySource(workspaceID, sourceID string) ([]*model.Link, error)
}

type linkRepository struct {
	db *gorm.DB
}

// NewLinkRepository 创建一个新的 LinkRepository 实例。
func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}

// Create 创建一条关联边。
func (r *linkRepository) Create(link *model.Link) error {
	return r.db.Create(link).Error
}

// ExistsBetween 检查 (a->b) 或 (b->a) 是否已存在。
func (r *linkRepository) ExistsBetween(workspaceID, aID, bID string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Link{}).
		Where("workspace_id = ?", workspaceID).
		Where("(source_id = ? AND target_id = ?) OR (source_id = ? AND target_id = ?)", aID, bID, bID, aID).
		Count(&count).Error
	return count > 0, err
}

// FindBySource 返回某来源参与的全部关联边（无论方向）。
func (r *linkRepository) FindBySource(workspaceID, sourceID string) ([]*model.Link, error) {
	var links []*model.Link
	err := r.db.Where("workspace_id = ?", workspaceID).
		Where("source_id = ? OR target_id = ?", sourceID, sourceID).
		Order("created_at DESC").
		Find(&links).Error
	return links, err
}
