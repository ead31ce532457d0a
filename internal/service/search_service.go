package service

import (
	"context"
	"fmt"
	"spechub-go/internal/config"
	"spechub-go/internal/model"
	"spechub-go/pkg/embedding"
	"spechub-go/pkg/es"
	"spechub-go/pkg/log"
)

// 检索参数的默认值。
const (
	DefaultSearchLimit = 10
	// relatedOverfetch 是 RelatedTo 为排除自身而放宽的候选倍数。
	relatedOverfetch = 3
)

// SearchOptions 控制一次相似度检索的范围与截断。
type SearchOptions struct {
	SourceTypes []string
	Limit       int
	Threshold   float64
}

func (o SearchOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultSearchLimit
	}
	return o.Limit
}

// SearchService 接口定义了工作区内的相似度检索操作。
type SearchService interface {
	// Search 向量化查询文本后做最近邻检索。
	Search(ctx context.Context, query, workspaceID string, opts SearchOptions) ([]model.SimilarityResult, error)
	// RelatedTo 用来源自身分块向量的中心做广义检索并排除自身，
	// 回答"还有什么与这份文档整体相似"，而不是字面查询匹配。
	RelatedTo(ctx context.Context, sourceID, sourceType, workspaceID string, opts SearchOptions) ([]model.SimilarityResult, error)
}

type searchService struct {
	embeddingClient embedding.Client
	esCfg           config.ElasticsearchConfig
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(embeddingClient embedding.Client, esCfg config.ElasticsearchConfig) SearchService {
	return &searchService{
		embeddingClient: embeddingClient,
		esCfg:           esCfg,
	}
}

// Search 执行查询文本的相似度检索。
func (s *searchService) Search(ctx context.Context, query, workspaceID string, opts SearchOptions) ([]model.SimilarityResult, error) {
	log.Infof("[SearchService] 开始相似度检索, workspace: %s, query_len: %d, types: %v", workspaceID, len(query), opts.SourceTypes)

	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, query)
	if err != nil {
		log.Errorf("[SearchService] 向量化查询失败: %v", err)
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}

	results, err := es.MatchEmbeddings(ctx, s.esCfg.IndexName, queryVector, workspaceID, opts.SourceTypes, opts.limit(), opts.Threshold)
	if err != nil {
		return nil, err
	}
	log.Infof("[SearchService] 相似度检索完成, 返回 %d 条结果", len(results))
	return results, nil
}

// RelatedTo 执行整篇文档级的相似检索。
// 来源尚未完成索引时没有分块向量，直接返回空结果而不报错。
func (s *searchService) RelatedTo(ctx context.Context, sourceID, sourceType, workspaceID string, opts SearchOptions) ([]model.SimilarityResult, error) {
	vectors, err := es.FetchSourceVectors(ctx, s.esCfg.IndexName, workspaceID, sourceID, sourceType)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		log.Infof("[SearchService] 来源尚无分块向量, RelatedTo 返回空: %s", sourceID)
		return []model.SimilarityResult{}, nil
	}

	centroid := Centroid(vectors)
	limit := opts.limit()
	// 放宽候选量，排除自身后仍能凑满 limit
	candidates, err := es.MatchEmbeddings(ctx, s.esCfg.IndexName, centroid, workspaceID, opts.SourceTypes, limit*relatedOverfetch, opts.Threshold)
	if err != nil {
		return nil, err
	}

	results := make([]model.SimilarityResult, 0, limit)
	for _, r := range candidates {
		if r.SourceID == sourceID && r.SourceType == sourceType {
			continue
		}
		results = append(results, r)
		if len(results) >= limit {
			break
		}
	}
	log.Infof("[SearchService] RelatedTo 完成, source: %s, 返回 %d 条结果", sourceID, len(results))
	return results, nil
}

// PartitionByType 把检索结果按来源类型划分为命名分组，纯后处理不触库。
func PartitionByType(results []model.SimilarityResult) map[string][]model.SimilarityResult {
	buckets := map[string][]model.SimilarityResult{
		"specifications": {},
		"evidence":       {},
		"codeModules":    {},
	}
	for _, r := range results {
		switch r.SourceType {
		case model.SourceTypeSpecification:
			buckets["specifications"] = append(buckets["specifications"], r)
		case model.SourceTypeEvidence:
			buckets["evidence"] = append(buckets["evidence"], r)
		case model.SourceTypeCodeModule:
			buckets["codeModules"] = append(buckets["codeModules"], r)
		}
	}
	return buckets
}
