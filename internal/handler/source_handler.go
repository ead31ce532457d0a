// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"spechub-go/internal/model"
	"spechub-go/internal/pipeline"
	"spechub-go/internal/repository"
	"spechub-go/pkg/kafka"
	"spechub-go/pkg/log"
	"spechub-go/pkg/tasks"

	"github.com/gin-gonic/gin"
)

// SourceHandler 处理来源文档的写入与索引触发。
type SourceHandler struct {
	sourceRepo repository.SourceRepository
	processor  *pipeline.Processor
}

// NewSourceHandler 创建一个新的 SourceHandler 实例。
func NewSourceHandler(sourceRepo repository.SourceRepository, processor *pipeline.Processor) *SourceHandler {
	return &SourceHandler{
		sourceRepo: sourceRepo,
		processor:  processor,
	}
}

type upsertSourceRequest struct {
	WorkspaceID string `json:"workspaceId" binding:"required"`
	SourceID    string `json:"sourceId" binding:"required"`
	SourceType  string `json:"sourceType" binding:"required"`
	Body        string `json:"body"`
}

func validSourceType(t string) bool {
	switch t {
	case model.SourceTypeSpecification, model.SourceTypeEvidence, model.SourceTypeCodeModule:
		return true
	}
	return false
}

// Upsert 保存来源正文并异步触发重建索引。
// 编辑侧不等待索引完成，入队失败只作为软告警返回。
func (h *SourceHandler) Upsert(c *gin.Context) {
	var req upsertSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数"})
		return
	}
	if !validSourceType(req.SourceType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的来源类型"})
		return
	}

	record := &model.SourceRecord{
		SourceID:    req.SourceID,
		SourceType:  req.SourceType,
		WorkspaceID: req.WorkspaceID,
		Body:        req.Body,
	}
	if err := h.sourceRepo.Upsert(record); err != nil {
		log.Errorf("[SourceHandler] 保存来源失败, source=%s: %v", req.SourceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存失败"})
		return
	}

	warning := ""
	task := tasks.IndexingTask{
		SourceID:    req.SourceID,
		SourceType:  req.SourceType,
		WorkspaceID: req.WorkspaceID,
	}
	if err := kafka.ProduceIndexingTask(task); err != nil {
		// 下一次编辑会重新触发，不阻塞保存
		log.Warnf("[SourceHandler] 索引任务入队失败（软告警）, source=%s: %v", req.SourceID, err)
		warning = "索引任务入队失败，内容已保存，稍后编辑将重新触发"
	}

	resp := gin.H{"code": 200, "message": "success", "data": gin.H{"indexing": "queued"}}
	if warning != "" {
		resp["data"] = gin.H{"indexing": "deferred", "warning": warning}
	}
	c.JSON(http.StatusOK, resp)
}

type reindexRequest struct {
	WorkspaceID string `json:"workspaceId" binding:"required"`
	SourceID    string `json:"sourceId" binding:"required"`
	SourceType  string `json:"sourceType" binding:"required"`
}

// Reindex 同步重建单个来源的索引（用户显式触发）。
func (h *SourceHandler) Reindex(c *gin.Context) {
	var req reindexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数"})
		return
	}
	if !validSourceType(req.SourceType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的来源类型"})
		return
	}

	if err := h.processor.Reindex(c.Request.Context(), req.SourceID, req.SourceType, req.WorkspaceID); err != nil {
		log.Errorf("[SourceHandler] 同步重建索引失败, source=%s: %v", req.SourceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "重建索引失败，请稍后重试"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success", "data": nil})
}
