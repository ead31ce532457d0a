package model

// EmbeddingDoc 定义了存储在 Elasticsearch 中的向量文档结构。
type EmbeddingDoc struct {
	VectorID     string            `json:"vector_id"` // 唯一标识，例如 sourceId_chunkIndex
	WorkspaceID  string            `json:"workspace_id"`
	SourceID     string            `json:"source_id"`
	SourceType   string            `json:"source_type"`
	ChunkText    string            `json:"chunk_text"`
	ChunkIndex   int               `json:"chunk_index"`
	Vector       []float32         `json:"vector"` // 分块文本的向量表示
	ModelVersion string            `json:"model_version"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// SimilarityResult 定义了相似度检索命中的结果结构（瞬态，不落库）。
// Similarity 已归一化到 [0,1]。
type SimilarityResult struct {
	ID         string            `json:"id"`
	SourceID   string            `json:"sourceId"`
	SourceType string            `json:"sourceType"`
	ChunkText  string            `json:"chunkText"`
	ChunkIndex int               `json:"chunkIndex"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Similarity float64           `json:"similarity"`
}
