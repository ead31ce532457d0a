package model

// EmbeddingChunk 对应于数据库中的 embedding_chunks 表。
// 它是向量索引在 MySQL 侧的分块镜像：索引器先落库再逐块向量化，
// 重建索引时按 (source_id, source_type) 整体删除后重插。
type EmbeddingChunk struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	SourceID    string `gorm:"type:varchar(64);not null;index:idx_chunk_source,priority:1;column:source_id"`
	SourceType  string `gorm:"type:varchar(32);not null;index:idx_chunk_source,priority:2;column:source_type"`
	WorkspaceID string `gorm:"type:varchar(64);not null;index;column:workspace_id"`
	ChunkIndex  int    `gorm:"not null;column:chunk_index"`
	ChunkText   string `gorm:"type:text;column:chunk_text"`
}

func (EmbeddingChunk) TableName() string {
	return "embedding_chunks"
}
