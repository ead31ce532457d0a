package service

import (
	"context"
	"fmt"
	"spechub-go/internal/chunker"
	"spechub-go/internal/model"
	"spechub-go/internal/repository"
	"spechub-go/pkg/llm"
	"spechub-go/pkg/log"
	"strings"
	"time"

	"gorm.io/gorm"
)

// 聚类引擎的触发策略参数。
const (
	// minEvidenceForClustering 是聚类的证据数下限。
	minEvidenceForClustering = 3
	// maxEvidenceForClustering 是单次计算加载的证据上限。
	maxEvidenceForClustering = 200
	// computingLease 是 computing 状态的软锁租约，超时视为上一个 worker 已崩溃。
	computingLease = 5 * time.Minute
	// recomputeInterval 是定期重算的时间间隔。
	recomputeInterval = 6 * time.Hour
	// evidenceGrowthThreshold 是触发重算的证据增量。
	evidenceGrowthThreshold = 5
	// recencyWindow 是严重度打分使用的近期窗口。
	recencyWindow = 30 * 24 * time.Hour
	// evidenceExcerptLen 是送入模型的单条证据摘录长度（按 rune 截断前的字符数上限）。
	evidenceExcerptLen = 200
	// maxEvidenceGroups 是单次计算保留的分组上限，模型超发的部分合并为尾组。
	maxEvidenceGroups = 8
)

// ClusteringError 表示一次聚类计算失败。
// 模型输出不可解析不算失败（降级为兜底聚类），这里只覆盖存储与取数异常。
type ClusteringError struct {
	Stage string
	Err   error
}

func (e *ClusteringError) Error() string {
	return fmt.Sprintf("clustering %s: %v", e.Stage, e.Err)
}

func (e *ClusteringError) Unwrap() error { return e.Err }

// VectorSource 取回来源已存储的分块向量，聚类引擎用它计算主题中心。
type VectorSource interface {
	SourceVectors(ctx context.Context, workspaceID, sourceID, sourceType string) ([][]float32, error)
}

// ClusterService 接口定义了证据主题聚类操作。
type ClusterService interface {
	// ShouldRecompute 判断工作区是否需要重算聚类（触发策略）。
	ShouldRecompute(workspaceID string) (bool, error)
	// ComputeClusters 执行一次完整的聚类计算并整体替换工作区聚类集合。
	ComputeClusters(ctx context.Context, workspaceID string) error
	ListClusters(workspaceID string) ([]model.ClusterDTO, error)
}

type clusterService struct {
	sourceRepo  repository.SourceRepository
	clusterRepo repository.ClusterRepository
	compRepo    repository.ComputationRepository
	llmClient   llm.Client
	vectors     VectorSource
	sections    []string
	now         func() time.Time
}

// NewClusterService 创建一个新的 ClusterService 实例。
func NewClusterService(
	sourceRepo repository.SourceRepository,
	clusterRepo repository.ClusterRepository,
	compRepo repository.ComputationRepository,
	llmClient llm.Client,
	vectors VectorSource,
	sections []string,
) ClusterService {
	return &clusterService{
		sourceRepo:  sourceRepo,
		clusterRepo: clusterRepo,
		compRepo:    compRepo,
		llmClient:   llmClient,
		vectors:     vectors,
		sections:    sections,
		now:         time.Now,
	}
}

// ShouldRecompute 实现触发策略：
// 证据不足 3 条不算；没有日志行必算；computing 且租约未到不算（软锁）；
// 距上次计算超过 6 小时必算；证据净增 5 条以上必算；failed 行等同过期必算。
func (s *clusterService) ShouldRecompute(workspaceID string) (bool, error) {
	count, err := s.sourceRepo.CountEvidence(workspaceID)
	if err != nil {
		return false, err
	}
	if count < minEvidenceForClustering {
		return false, nil
	}

	comp, err := s.compRepo.Find(workspaceID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return true, nil
		}
		return false, err
	}

	elapsed := s.now().Sub(comp.LastComputedAt)
	if comp.Status == model.ComputationStatusComputing && elapsed < computingLease {
		return false, nil
	}
	if comp.Status == model.ComputationStatusFailed {
		return true, nil
	}
	if elapsed >= recomputeInterval {
		return true, nil
	}
	if int(count)-comp.EvidenceCount >= evidenceGrowthThreshold {
		return true, nil
	}
	return false, nil
}

// ComputeClusters 执行一次聚类计算。
// 任何存储或取数异常都会把日志行置为 failed，触发策略据此在下次触发时自愈重试。
func (s *clusterService) ComputeClusters(ctx context.Context, workspaceID string) error {
	startedAt := s.now()
	log.Infof("[ClusterService] 开始聚类计算, workspace: %s", workspaceID)

	// 1. 抢占软锁
	if err := s.compRepo.Upsert(workspaceID, model.ComputationStatusComputing, startedAt, 0); err != nil {
		return &ClusteringError{Stage: "acquire", Err: err}
	}

	// 2. 加载最近证据
	evidence, err := s.sourceRepo.FindRecentEvidence(workspaceID, maxEvidenceForClustering)
	if err != nil {
		return s.fail(workspaceID, "load", err)
	}
	if len(evidence) < minEvidenceForClustering {
		log.Infof("[ClusterService] 证据不足 %d 条, 跳过: %s", minEvidenceForClustering, workspaceID)
		if err := s.compRepo.Upsert(workspaceID, model.ComputationStatusCompleted, s.now(), len(evidence)); err != nil {
			return &ClusteringError{Stage: "complete", Err: err}
		}
		return nil
	}

	// 3. 模型分组（不可解析时降级为单个兜底分组，绝不硬失败）
	groups := s.partitionEvidence(ctx, evidence)
	log.Infof("[ClusterService] 模型分组完成, 共 %d 组", len(groups))

	// 4. 组装聚类：解析成员并计算中心向量
	clusters := make([]*model.Cluster, 0, len(groups))
	for _, g := range groups {
		ids := make([]string, 0, len(g.Indices))
		var memberVectors [][]float32
		for _, idx := range g.Indices {
			rec := evidence[idx]
			ids = append(ids, rec.SourceID)
			vectors, err := s.vectors.SourceVectors(ctx, workspaceID, rec.SourceID, rec.SourceType)
			if err != nil {
				return s.fail(workspaceID, "vectors", err)
			}
			memberVectors = append(memberVectors, vectors...)
		}
		cluster := &model.Cluster{
			WorkspaceID: workspaceID,
			Label:       g.Label,
			Summary:     g.Summary,
			ComputedAt:  startedAt,
		}
		cluster.SetEvidenceIDs(ids)
		// 成员尚未完成向量化时没有中心向量，留空
		cluster.SetCentroid(Centroid(memberVectors))
		clusters = append(clusters, cluster)
	}

	// 5. 章节相关度打分（失败降级为空表）
	s.scoreSectionRelevance(ctx, clusters)

	// 6. 严重度打分（失败降级为不打分）
	recency, err := s.sourceRepo.RecentEvidenceRatio(workspaceID, recencyWindow)
	if err != nil {
		return s.fail(workspaceID, "recency", err)
	}
	s.scoreCriticality(ctx, clusters, recency)

	// 7. 整体替换工作区聚类集合
	if err := s.clusterRepo.ReplaceForWorkspace(workspaceID, clusters); err != nil {
		return s.fail(workspaceID, "replace", err)
	}

	// 8. 落盘完成状态与本次计算使用的证据数
	if err := s.compRepo.Upsert(workspaceID, model.ComputationStatusCompleted, s.now(), len(evidence)); err != nil {
		return &ClusteringError{Stage: "complete", Err: err}
	}
	log.Infof("[ClusterService] 聚类计算完成, workspace: %s, 共 %d 个主题", workspaceID, len(clusters))
	return nil
}

func (s *clusterService) fail(workspaceID, stage string, err error) error {
	log.Errorf("[ClusterService] 聚类计算失败, workspace: %s, stage: %s, error: %v", workspaceID, stage, err)
	if upsertErr := s.compRepo.Upsert(workspaceID, model.ComputationStatusFailed, s.now(), 0); upsertErr != nil {
		log.Errorf("[ClusterService] 写入 failed 状态失败: %v", upsertErr)
	}
	return &ClusteringError{Stage: stage, Err: err}
}

// ListClusters 返回工作区当前的聚类集合。
func (s *clusterService) ListClusters(workspaceID string) ([]model.ClusterDTO, error) {
	clusters, err := s.clusterRepo.FindByWorkspace(workspaceID)
	if err != nil {
		return nil, err
	}
	dtos := make([]model.ClusterDTO, 0, len(clusters))
	for _, c := range clusters {
		dtos = append(dtos, c.ToDTO())
	}
	return dtos, nil
}

// evidenceGroup 是模型返回的一个分组，索引指向本次加载的证据列表。
type evidenceGroup struct {
	Label   string `json:"label"`
	Summary string `json:"summary"`
	Indices []int  `json:"indices"`
}

const partitionPrompt = `你是产品需求分析助手。下面是编号的用户证据摘录（反馈、访谈记录等）。
请把它们按主题归为 3 到 8 组，每组给出简短的中文标签和一句话总结。
只输出 JSON 数组，格式：[{"label":"...","summary":"...","indices":[0,2,5]}]。
每个编号至多出现在一个组里，不要输出 JSON 之外的任何内容。`

// partitionEvidence 让模型把证据分组。输出不可解析或为空时，
// 降级为覆盖全部证据的单个兜底分组，保证聚类流程不因模型而失败。
func (s *clusterService) partitionEvidence(ctx context.Context, evidence []*model.SourceRecord) []evidenceGroup {
	var sb strings.Builder
	for i, rec := range evidence {
		fmt.Fprintf(&sb, "[%d] %s\n", i, excerpt(rec.Body))
	}

	raw, err := s.llmClient.Complete(ctx, []llm.Message{
		{Role: "system", Content: partitionPrompt},
		{Role: "user", Content: sb.String()},
	}, nil)

	var groups []evidenceGroup
	if err != nil {
		log.Warnf("[ClusterService] 分组模型调用失败, 使用兜底分组: %v", err)
	} else if decodeErr := llm.DecodeJSON(raw, &groups); decodeErr != nil {
		log.Warnf("[ClusterService] 分组输出不可解析, 使用兜底分组: %v", decodeErr)
		groups = nil
	}

	groups = capGroups(sanitizeGroups(groups, len(evidence)))
	if len(groups) == 0 {
		all := make([]int, len(evidence))
		for i := range evidence {
			all[i] = i
		}
		groups = []evidenceGroup{{
			Label:   "未归类反馈",
			Summary: "包含本工作区全部证据的综合主题",
			Indices: all,
		}}
	}
	return groups
}

// capGroups 强制执行分组数上限：超出部分按模型给出的顺序合并为一个尾组。
// 分组偏多通常意味着模型把单条证据各自成组，合并比整体作废保留更多信息。
func capGroups(groups []evidenceGroup) []evidenceGroup {
	if len(groups) <= maxEvidenceGroups {
		return groups
	}
	merged := evidenceGroup{
		Label:   "其他主题",
		Summary: "合并自超出分组上限的若干小主题",
	}
	for _, g := range groups[maxEvidenceGroups-1:] {
		merged.Indices = append(merged.Indices, g.Indices...)
	}
	return append(groups[:maxEvidenceGroups-1], merged)
}

// sanitizeGroups 丢弃越界和重复的索引，清掉空组。
func sanitizeGroups(groups []evidenceGroup, total int) []evidenceGroup {
	used := make(map[int]bool, total)
	cleaned := make([]evidenceGroup, 0, len(groups))
	for _, g := range groups {
		valid := make([]int, 0, len(g.Indices))
		for _, idx := range g.Indices {
			if idx < 0 || idx >= total || used[idx] {
				continue
			}
			used[idx] = true
			valid = append(valid, idx)
		}
		if len(valid) == 0 {
			continue
		}
		if strings.TrimSpace(g.Label) == "" {
			g.Label = "未命名主题"
		}
		g.Indices = valid
		cleaned = append(cleaned, g)
	}
	return cleaned
}

const sectionRelevancePrompt = `你是产品需求分析助手。给定主题聚类列表和规格文档的章节名列表，
为每个聚类给出它与各章节的相关度（0 到 1 的小数）。
只输出 JSON 数组，格式：[{"index":0,"scores":{"章节名":0.8}}]，不要输出其他内容。`

// scoreSectionRelevance 让模型按已知章节名给每个聚类打相关度分。
// 模型失败或输出不可解析时保持空表。
func (s *clusterService) scoreSectionRelevance(ctx context.Context, clusters []*model.Cluster) {
	if len(s.sections) == 0 || len(clusters) == 0 {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "章节: %s\n聚类:\n", strings.Join(s.sections, ", "))
	for i, c := range clusters {
		fmt.Fprintf(&sb, "[%d] %s: %s\n", i, c.Label, c.Summary)
	}

	raw, err := s.llmClient.Complete(ctx, []llm.Message{
		{Role: "system", Content: sectionRelevancePrompt},
		{Role: "user", Content: sb.String()},
	}, nil)
	if err != nil {
		log.Warnf("[ClusterService] 章节相关度模型调用失败, 保持空表: %v", err)
		return
	}

	var scored []struct {
		Index  int                `json:"index"`
		Scores map[string]float64 `json:"scores"`
	}
	if err := llm.DecodeJSON(raw, &scored); err != nil {
		log.Warnf("[ClusterService] 章节相关度输出不可解析, 保持空表: %v", err)
		return
	}

	known := make(map[string]bool, len(s.sections))
	for _, sec := range s.sections {
		known[sec] = true
	}
	for _, item := range scored {
		if item.Index < 0 || item.Index >= len(clusters) {
			continue
		}
		scores := make(map[string]float64, len(item.Scores))
		for section, score := range item.Scores {
			if !known[section] {
				continue
			}
			scores[section] = clampScore(score)
		}
		clusters[item.Index].SetSectionRelevance(scores)
	}
}

const criticalityPrompt = `你是产品需求分析助手。给定主题聚类列表（含成员数量与近 30 天新增证据占比），
结合聚类规模、时效性以及对业务影响面的判断，为每个聚类给出 0 到 1 的严重度得分，
并附一句话理由。只输出 JSON 数组，格式：[{"index":0,"score":0.7,"reason":"..."}]。`

// scoreCriticality 让模型为每个聚类打严重度分，并按阈值换算等级。
// 模型失败或输出不可解析时不打分。
func (s *clusterService) scoreCriticality(ctx context.Context, clusters []*model.Cluster, recencyRatio float64) {
	if len(clusters) == 0 {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "近30天新增证据占比: %.2f\n聚类:\n", recencyRatio)
	for i, c := range clusters {
		fmt.Fprintf(&sb, "[%d] %s (成员 %d): %s\n", i, c.Label, c.EvidenceCount, c.Summary)
	}

	raw, err := s.llmClient.Complete(ctx, []llm.Message{
		{Role: "system", Content: criticalityPrompt},
		{Role: "user", Content: sb.String()},
	}, nil)
	if err != nil {
		log.Warnf("[ClusterService] 严重度模型调用失败, 跳过打分: %v", err)
		return
	}

	var scored []struct {
		Index  int     `json:"index"`
		Score  float64 `json:"score"`
		Reason string  `json:"reason"`
	}
	if err := llm.DecodeJSON(raw, &scored); err != nil {
		log.Warnf("[ClusterService] 严重度输出不可解析, 跳过打分: %v", err)
		return
	}

	for _, item := range scored {
		if item.Index < 0 || item.Index >= len(clusters) {
			continue
		}
		score := clampScore(item.Score)
		cluster := clusters[item.Index]
		cluster.CriticalityScore = &score
		cluster.CriticalityLevel = CriticalityLevel(score)
		cluster.CriticalityReason = item.Reason
	}
}

// CriticalityLevel 把严重度得分换算为等级。
func CriticalityLevel(score float64) string {
	switch {
	case score >= 0.8:
		return model.CriticalityCritical
	case score >= 0.6:
		return model.CriticalityHigh
	case score >= 0.4:
		return model.CriticalityMedium
	default:
		return model.CriticalityLow
	}
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// excerpt 取正文规范化后的前若干字符作为模型输入摘录。
func excerpt(body string) string {
	text := strings.Join(strings.Fields(chunker.ExtractText(body)), " ")
	runes := []rune(text)
	if len(runes) <= evidenceExcerptLen {
		return text
	}
	return string(runes[:evidenceExcerptLen]) + "…"
}
