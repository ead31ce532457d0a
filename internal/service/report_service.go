package service

import (
	"context"
	"fmt"
	"spechub-go/internal/chunker"
	"spechub-go/internal/config"
	"spechub-go/internal/model"
	"spechub-go/internal/repository"
	"spechub-go/internal/staleness"
	"spechub-go/pkg/es"
	"spechub-go/pkg/jobs"
	"spechub-go/pkg/llm"
	"spechub-go/pkg/log"
	"strings"

	"github.com/google/uuid"
)

// 报告生成的输入预算。
const (
	reportBodyBudget     = 8000
	reportContextResults = 5
)

// ReportService 接口定义了分析报告的生成与读取操作。
// 报告与生成时正文的内容散列一起缓存，读取时重算散列判断是否陈旧。
type ReportService interface {
	// StartReport 启动一个后台报告生成任务，立即返回任务 ID。
	// 流式输出通过任务登记表订阅，客户端断开不影响任务进行。
	StartReport(ctx context.Context, workspaceID, sourceID, sourceType string) (string, error)
	// GetReport 返回报告与实时计算的陈旧标记。
	GetReport(id string) (*model.ReportDTO, error)
	ListReports(workspaceID, sourceID string) ([]*model.ReportDTO, error)
}

type reportService struct {
	sourceRepo    repository.SourceRepository
	reportRepo    repository.ReportRepository
	searchService SearchService
	llmClient     llm.Client
	registry      *jobs.Registry
}

// NewReportService 创建一个新的 ReportService 实例。
func NewReportService(
	sourceRepo repository.SourceRepository,
	reportRepo repository.ReportRepository,
	searchService SearchService,
	llmClient llm.Client,
	registry *jobs.Registry,
) ReportService {
	return &reportService{
		sourceRepo:    sourceRepo,
		reportRepo:    reportRepo,
		searchService: searchService,
		llmClient:     llmClient,
		registry:      registry,
	}
}

const reportPrompt = `你是产品规格分析助手。基于给定的文档内容和相关材料，
生成一份结构化的中文分析报告：概述、关键发现、与相关材料的关联、建议。`

// StartReport 校验来源后登记任务并在后台生成报告。
func (s *reportService) StartReport(ctx context.Context, workspaceID, sourceID, sourceType string) (string, error) {
	record, err := s.sourceRepo.FindBySource(sourceID, sourceType)
	if err != nil {
		return "", fmt.Errorf("读取来源记录失败: %w", err)
	}

	// 散列在生成开始时就固定下来：报告描述的是这一刻的内容
	contentHash := staleness.Hash(chunker.CanonicalText(record.Body))

	jobID := uuid.NewString()
	job, err := s.registry.Start(jobID)
	if err != nil {
		return "", err
	}

	go s.generate(job, record, workspaceID, contentHash)

	log.Infof("[ReportService] 报告任务已启动, job: %s, source: %s", jobID, sourceID)
	return jobID, nil
}

// generate 在任务自己的上下文里运行：取消只会中止出站模型请求，
// 已提交的报告不受影响。
func (s *reportService) generate(job *jobs.Job, record *model.SourceRecord, workspaceID string, contentHash int32) {
	ctx := job.Context()

	contextText := s.buildContextText(ctx, record, workspaceID)
	body := chunker.ExtractText(record.Body)
	if runes := []rune(body); len(runes) > reportBodyBudget {
		body = string(runes[:reportBodyBudget]) + "…"
	}

	var user strings.Builder
	user.WriteString("文档内容:\n")
	user.WriteString(body)
	if contextText != "" {
		user.WriteString("\n\n相关材料:\n")
		user.WriteString(contextText)
	}

	writer := &jobStreamWriter{job: job, builder: &strings.Builder{}}
	err := s.llmClient.StreamChatMessages(ctx, []llm.Message{
		{Role: "system", Content: reportPrompt},
		{Role: "user", Content: user.String()},
	}, nil, writer)
	if err != nil {
		log.Errorf("[ReportService] 报告生成失败, job: %s: %v", job.ID, err)
		s.registry.Finish(job.ID, jobs.Event{Type: jobs.EventError, Data: "报告生成失败"})
		return
	}

	report := &model.Report{
		ID:          job.ID,
		WorkspaceID: workspaceID,
		SourceID:    record.SourceID,
		SourceType:  record.SourceType,
		Content:     writer.builder.String(),
		ContentHash: contentHash,
	}
	if err := s.reportRepo.Create(report); err != nil {
		log.Errorf("[ReportService] 保存报告失败, job: %s: %v", job.ID, err)
		s.registry.Finish(job.ID, jobs.Event{Type: jobs.EventError, Data: "报告保存失败"})
		return
	}

	log.Infof("[ReportService] 报告生成完成, job: %s, 长度: %d", job.ID, len(report.Content))
	s.registry.Finish(job.ID, jobs.Event{Type: jobs.EventDone, Data: report.ID})
}

// buildContextText 用整篇相似检索为报告补充相关材料，失败只记日志。
func (s *reportService) buildContextText(ctx context.Context, record *model.SourceRecord, workspaceID string) string {
	results, err := s.searchService.RelatedTo(ctx, record.SourceID, record.SourceType, workspaceID, SearchOptions{
		Limit: reportContextResults,
	})
	if err != nil {
		log.Warnf("[ReportService] 相关材料检索失败（不中断）: %v", err)
		return ""
	}
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] (%s) %s\n", i+1, r.SourceType, r.ChunkText)
	}
	return sb.String()
}

// GetReport 返回报告，并用来源实时正文重算散列得到陈旧标记。
// 来源已被删除时报告同样视为陈旧。
func (s *reportService) GetReport(id string) (*model.ReportDTO, error) {
	report, err := s.reportRepo.FindByID(id)
	if err != nil {
		return nil, err
	}
	return s.toDTO(report), nil
}

// ListReports 返回某来源的历史报告及各自的陈旧标记。
func (s *reportService) ListReports(workspaceID, sourceID string) ([]*model.ReportDTO, error) {
	reports, err := s.reportRepo.FindBySource(workspaceID, sourceID)
	if err != nil {
		return nil, err
	}
	dtos := make([]*model.ReportDTO, 0, len(reports))
	for _, r := range reports {
		dtos = append(dtos, s.toDTO(r))
	}
	return dtos, nil
}

func (s *reportService) toDTO(report *model.Report) *model.ReportDTO {
	stale := true
	if record, err := s.sourceRepo.FindBySource(report.SourceID, report.SourceType); err == nil {
		stale = staleness.IsStale(report.ContentHash, chunker.CanonicalText(record.Body))
	}
	return &model.ReportDTO{
		ID:          report.ID,
		WorkspaceID: report.WorkspaceID,
		SourceID:    report.SourceID,
		SourceType:  report.SourceType,
		Content:     report.Content,
		Stale:       stale,
		CreatedAt:   model.LocalTime(report.CreatedAt),
	}
}

// jobStreamWriter 把模型流式分块发布到任务登记表，同时累积完整内容。
type jobStreamWriter struct {
	job     *jobs.Job
	builder *strings.Builder
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *jobStreamWriter) WriteMessage(messageType int, data []byte) error {
	w.builder.Write(data)
	w.job.Publish(jobs.Event{Type: jobs.EventChunk, Data: string(data)})
	return nil
}

// esVectorSource 是 VectorSource 的 Elasticsearch 实现。
type esVectorSource struct {
	esCfg config.ElasticsearchConfig
}

// NewESVectorSource 创建基于 Elasticsearch 的分块向量来源。
func NewESVectorSource(esCfg config.ElasticsearchConfig) VectorSource {
	return &esVectorSource{esCfg: esCfg}
}

func (v *esVectorSource) SourceVectors(ctx context.Context, workspaceID, sourceID, sourceType string) ([][]float32, error) {
	return es.FetchSourceVectors(ctx, v.esCfg.IndexName, workspaceID, sourceID, sourceType)
}
