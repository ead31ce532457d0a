// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"spechub-go/internal/config"
	"spechub-go/internal/model"
	"spechub-go/pkg/log"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig, dims int) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName, dims)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string, dims int) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	// 如果 res.StatusCode 是 200，说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	// 如果 res.StatusCode 是 404，说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 向量维度与 Embedding 模型对齐（默认 1536），cosine 相似度
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"vector_id": { "type": "keyword" },
				"workspace_id": { "type": "keyword" },
				"source_id": { "type": "keyword" },
				"source_type": { "type": "keyword" },
				"chunk_text": { "type": "text" },
				"chunk_index": { "type": "integer" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" },
				"metadata": { "type": "object", "enabled": false }
			}
		}
	}`, dims)

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)

	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// IndexEmbedding 将单个向量文档索引到 Elasticsearch。
func IndexEmbedding(ctx context.Context, indexName string, doc model.EmbeddingDoc) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: doc.VectorID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引向量文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index embedding")
	}

	return nil
}

// DeleteBySource 删除某来源的全部向量记录。
// 重建索引走先删后插，不保证跨语句事务性。
func DeleteBySource(ctx context.Context, indexName, workspaceID, sourceID, sourceType string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []map[string]interface{}{
					{"term": map[string]interface{}{"workspace_id": workspaceID}},
					{"term": map[string]interface{}{"source_id": sourceID}},
					{"term": map[string]interface{}{"source_type": sourceType}},
				},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return err
	}

	res, err := ESClient.DeleteByQuery(
		[]string{indexName},
		&buf,
		ESClient.DeleteByQuery.WithContext(ctx),
		ESClient.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("按来源删除向量记录出错: %s", res.String())
		return errors.New("failed to delete embeddings by source")
	}
	return nil
}

// MatchEmbeddings 执行 kNN 最近邻查询，按工作区与可选来源类型过滤，
// 相似度降序返回，threshold 在服务端以 min_score 截断。
// cosine 相似度经 ES 归一化后 _score 已落在 (0,1] 区间。
func MatchEmbeddings(ctx context.Context, indexName string, queryVector []float32, workspaceID string, sourceTypes []string, limit int, threshold float64) ([]model.SimilarityResult, error) {
	filters := []map[string]interface{}{
		{"term": map[string]interface{}{"workspace_id": workspaceID}},
	}
	if len(sourceTypes) > 0 {
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"source_type": sourceTypes},
		})
	}

	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   queryVector,
			"k":              limit,
			"num_candidates": limit * 10,
			"filter": map[string]interface{}{
				"bool": map[string]interface{}{"filter": filters},
			},
		},
		"size": limit,
		"_source": map[string]interface{}{
			"excludes": []string{"vector"},
		},
	}
	if threshold > 0 {
		esQuery["min_score"] = threshold
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := ESClient.Search(
		ESClient.Search.WithContext(ctx),
		ESClient.Search.WithIndex(indexName),
		ESClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("Elasticsearch 返回错误: %s", res.String())
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				ID     string             `json:"_id"`
				Score  float64            `json:"_score"`
				Source model.EmbeddingDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	results := make([]model.SimilarityResult, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		results = append(results, model.SimilarityResult{
			ID:         hit.ID,
			SourceID:   hit.Source.SourceID,
			SourceType: hit.Source.SourceType,
			ChunkText:  hit.Source.ChunkText,
			ChunkIndex: hit.Source.ChunkIndex,
			Metadata:   hit.Source.Metadata,
			Similarity: hit.Score,
		})
	}
	return results, nil
}

// FetchSourceVectors 取回某来源已存储的全部分块向量，按分块序号升序。
func FetchSourceVectors(ctx context.Context, indexName, workspaceID, sourceID, sourceType string) ([][]float32, error) {
	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []map[string]interface{}{
					{"term": map[string]interface{}{"workspace_id": workspaceID}},
					{"term": map[string]interface{}{"source_id": sourceID}},
					{"term": map[string]interface{}{"source_type": sourceType}},
				},
			},
		},
		"size": 1000,
		"sort": []map[string]interface{}{
			{"chunk_index": map[string]interface{}{"order": "asc"}},
		},
		"_source": map[string]interface{}{
			"includes": []string{"vector"},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := ESClient.Search(
		ESClient.Search.WithContext(ctx),
		ESClient.Search.WithIndex(indexName),
		ESClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("Elasticsearch 返回错误: %s", res.String())
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source struct {
					Vector []float32 `json:"vector"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	vectors := make([][]float32, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		if len(hit.Source.Vector) == 0 {
			continue
		}
		vectors = append(vectors, hit.Source.Vector)
	}
	return vectors, nil
}
