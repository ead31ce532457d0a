// Package pipeline 定义了来源重建索引的核心流程。
package pipeline

import (
	"context"
	"fmt"
	"spechub-go/internal/chunker"
	"spechub-go/internal/config"
	"spechub-go/internal/model"
	"spechub-go/internal/repository"
	"spechub-go/pkg/embedding"
	"spechub-go/pkg/es"
	"spechub-go/pkg/log"
	"spechub-go/pkg/tasks"

	"gorm.io/gorm"
)

// AutoLinker 是自动关联的最小接口，索引完成后尽力而为地补边。
type AutoLinker interface {
	LinkSource(ctx context.Context, sourceID, sourceType, workspaceID string) (int, error)
}

// ClusterScheduler 评估并执行聚类重算。
// 证据入库是聚类输入唯一的变化来源，由流水线在索引成功后触发评估，
// 触发策略本身（数量下限、间隔、增量、软锁）由实现方掌握。
type ClusterScheduler interface {
	ShouldRecompute(workspaceID string) (bool, error)
	ComputeClusters(ctx context.Context, workspaceID string) error
}

// vectorIndex 是向量库写路径的最小接口，默认实现落到 Elasticsearch。
type vectorIndex interface {
	DeleteBySource(ctx context.Context, indexName, workspaceID, sourceID, sourceType string) error
	IndexEmbedding(ctx context.Context, indexName string, doc model.EmbeddingDoc) error
}

type esVectorIndex struct{}

func (esVectorIndex) DeleteBySource(ctx context.Context, indexName, workspaceID, sourceID, sourceType string) error {
	return es.DeleteBySource(ctx, indexName, workspaceID, sourceID, sourceType)
}

func (esVectorIndex) IndexEmbedding(ctx context.Context, indexName string, doc model.EmbeddingDoc) error {
	return es.IndexEmbedding(ctx, indexName, doc)
}

// Processor 封装了重建索引的所有依赖和逻辑。
type Processor struct {
	embeddingClient embedding.Client
	esCfg           config.ElasticsearchConfig
	embeddingCfg    config.EmbeddingConfig
	sourceRepo      repository.SourceRepository
	chunkRepo       repository.EmbeddingChunkRepository
	linker          AutoLinker
	clusters        ClusterScheduler
	vectors         vectorIndex
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	embeddingClient embedding.Client,
	esCfg config.ElasticsearchConfig,
	embeddingCfg config.EmbeddingConfig,
	sourceRepo repository.SourceRepository,
	chunkRepo repository.EmbeddingChunkRepository,
	linker AutoLinker,
	clusters ClusterScheduler,
) *Processor {
	return &Processor{
		embeddingClient: embeddingClient,
		esCfg:           esCfg,
		embeddingCfg:    embeddingCfg,
		sourceRepo:      sourceRepo,
		chunkRepo:       chunkRepo,
		linker:          linker,
		clusters:        clusters,
		vectors:         esVectorIndex{},
	}
}

// Process 是后台索引任务的主函数：重建索引后尽力而为地自动关联。
func (p *Processor) Process(ctx context.Context, task tasks.IndexingTask) error {
	if err := p.Reindex(ctx, task.SourceID, task.SourceType, task.WorkspaceID); err != nil {
		return err
	}

	// 自动关联只对证据和规格文档有意义，失败不影响索引结果
	if p.linker != nil &&
		(task.SourceType == model.SourceTypeEvidence || task.SourceType == model.SourceTypeSpecification) {
		created, err := p.linker.LinkSource(ctx, task.SourceID, task.SourceType, task.WorkspaceID)
		if err != nil {
			log.Warnf("[Processor] 自动关联失败（不中断）: source=%s, err=%v", task.SourceID, err)
		} else if created > 0 {
			log.Infof("[Processor] 自动关联新增 %d 条边: source=%s", created, task.SourceID)
		}
	}

	// 证据变化是聚类输入唯一的变化来源，索引成功后在后台评估触发策略
	if p.clusters != nil && task.SourceType == model.SourceTypeEvidence {
		go p.maybeRecomputeClusters(task.WorkspaceID)
	}
	return nil
}

// maybeRecomputeClusters 评估触发策略，命中则执行一次聚类重算。
// 使用独立上下文：重算的生命周期不依附于触发它的那条消息。
func (p *Processor) maybeRecomputeClusters(workspaceID string) {
	should, err := p.clusters.ShouldRecompute(workspaceID)
	if err != nil {
		log.Warnf("[Processor] 聚类触发策略评估失败, workspace=%s: %v", workspaceID, err)
		return
	}
	if !should {
		return
	}
	log.Infof("[Processor] 触发策略命中, 开始后台聚类重算, workspace: %s", workspaceID)
	if err := p.clusters.ComputeClusters(context.Background(), workspaceID); err != nil {
		log.Errorf("[Processor] 后台聚类重算失败, workspace=%s: %v", workspaceID, err)
	}
}

// Reindex 为单个来源重建向量索引。
// 分块边界随每次编辑漂移，没有稳定的分块身份，所以采用整体先删后插
// 而不是增量比对；向量化在删除之前全部完成，失败时不产生半套记录。
func (p *Processor) Reindex(ctx context.Context, sourceID, sourceType, workspaceID string) error {
	log.Infof("[Processor] 开始重建索引, source: %s, type: %s, workspace: %s", sourceID, sourceType, workspaceID)

	// 1. 读取来源正文
	record, err := p.sourceRepo.FindBySource(sourceID, sourceType)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			log.Warnf("[Processor] 来源不存在, 跳过: %s", sourceID)
			return nil
		}
		return fmt.Errorf("读取来源记录失败: %w", err)
	}

	// 2. 语义分块
	chunks := chunker.Split(record.Body)
	log.Infof("[Processor] 分块完成, 共生成 %d 个分块", len(chunks))
	if len(chunks) == 0 {
		// 结构化文档可以合法地没有可索引内容，保留既有索引不动
		log.Infof("[Processor] 无可索引内容, 保留既有索引: %s", sourceID)
		return nil
	}

	// 阶段一：刷新 MySQL 侧的分块镜像（先删后插，幂等）
	if err := p.chunkRepo.DeleteBySource(sourceID, sourceType); err != nil {
		log.Warnf("[Processor] 清理 embedding_chunks 旧记录失败 (source=%s): %v", sourceID, err)
	}
	dbChunks := make([]*model.EmbeddingChunk, 0, len(chunks))
	for _, c := range chunks {
		dbChunks = append(dbChunks, &model.EmbeddingChunk{
			SourceID:    sourceID,
			SourceType:  sourceType,
			WorkspaceID: workspaceID,
			ChunkIndex:  c.Index,
			ChunkText:   c.Text,
		})
	}
	if err := p.chunkRepo.BatchCreate(dbChunks); err != nil {
		return fmt.Errorf("批量保存文本分块失败: %w", err)
	}
	log.Infof("[Processor] 阶段一: 成功将 %d 个分块存入数据库", len(dbChunks))

	// 阶段二：逐块向量化。串行调用以遵守服务端限流；
	// 任何一块失败立即中止，此时向量库尚未动过。
	docs := make([]model.EmbeddingDoc, 0, len(chunks))
	for i, c := range chunks {
		log.Infof("[Processor] 正在向量化分块 %d/%d", i+1, len(chunks))
		vector, err := p.embeddingClient.CreateEmbedding(ctx, c.Text)
		if err != nil {
			log.Errorf("[Processor] 分块 %d 向量化失败, Error: %v", c.Index, err)
			return fmt.Errorf("块 %d 向量化失败: %w", c.Index, err)
		}
		docs = append(docs, model.EmbeddingDoc{
			VectorID:     fmt.Sprintf("%s_%s_%d", sourceType, sourceID, c.Index),
			WorkspaceID:  workspaceID,
			SourceID:     sourceID,
			SourceType:   sourceType,
			ChunkText:    c.Text,
			ChunkIndex:   c.Index,
			Vector:       vector,
			ModelVersion: p.embeddingCfg.Model,
		})
	}

	// 阶段三：向量库先删后插。两步之间失败会让来源短暂处于未索引状态，
	// 下一次编辑重新触发索引即可恢复。
	if err := p.vectors.DeleteBySource(ctx, p.esCfg.IndexName, workspaceID, sourceID, sourceType); err != nil {
		return fmt.Errorf("删除旧向量记录失败: %w", err)
	}
	for _, doc := range docs {
		if err := p.vectors.IndexEmbedding(ctx, p.esCfg.IndexName, doc); err != nil {
			return fmt.Errorf("索引块 %d 到 Elasticsearch 失败: %w", doc.ChunkIndex, err)
		}
	}

	log.Infof("[Processor] 重建索引完成, source: %s, 共 %d 块", sourceID, len(docs))
	return nil
}
