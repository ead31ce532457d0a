package repository

import (
	"spechub-go/internal/model"

	"gorm.io/gorm"
)

// EmbeddingChunkRepository 定义了对 embedding_chunks 表的数据操作接口。
type EmbeddingChunkRepository interface {
	BatchCreate(chunks []*model.EmbeddingChunk) error
	FindBySource(sourceID, sourceType string) ([]*model.EmbeddingChunk, error)
	DeleteBySource(sourceID, sourceType string) error
}

type embeddingChunkRepository struct {
	db *gorm.DB
}

// NewEmbeddingChunkRepository 创建一个新的 EmbeddingChunkRepository 实例。
func NewEmbeddingChunkRepository(db *gorm.DB) EmbeddingChunkRepository {
	return &embeddingChunkRepository{db: db}
}

// BatchCreate 批量创建分块记录。
func (r *embeddingChunkRepository) BatchCreate(chunks []*model.EmbeddingChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.CreateInBatches(chunks, 100).Error // 每100条记录一批
}

// FindBySource 按来源查找全部分块记录，按分块序号升序。
func (r *embeddingChunkRepository) FindBySource(sourceID, sourceType string) ([]*model.EmbeddingChunk, error) {
	var chunks []*model.EmbeddingChunk
	err := r.db.Where("source_id = ? AND source_type = ?", sourceID, sourceType).
		Order("chunk_index ASC").
		Find(&chunks).Error
	return chunks, err
}

// DeleteBySource 按来源删除全部分块记录。
func (r *embeddingChunkRepository) DeleteBySource(sourceID, sourceType string) error {
	return r.db.Where("source_id = ? AND source_type = ?", sourceID, sourceType).
		Delete(&model.EmbeddingChunk{}).Error
}
