package handler

import (
	"net/http"
	"spechub-go/internal/service"
	"spechub-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ClusterHandler 结构体定义了主题聚类相关的处理器。
type ClusterHandler struct {
	clusterService service.ClusterService
}

// NewClusterHandler 创建一个新的 ClusterHandler 实例。
func NewClusterHandler(clusterService service.ClusterService) *ClusterHandler {
	return &ClusterHandler{
		clusterService: clusterService,
	}
}

// List 返回工作区当前的聚类集合。
func (h *ClusterHandler) List(c *gin.Context) {
	workspaceID := c.Query("workspaceId")
	if workspaceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的查询参数"})
		return
	}

	clusters, err := h.clusterService.ListClusters(workspaceID)
	if err != nil {
		log.Errorf("[ClusterHandler] 查询聚类失败, workspace=%s: %v", workspaceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": clusters, "message": "success"})
}

type recomputeRequest struct {
	WorkspaceID string `json:"workspaceId" binding:"required"`
	Force       bool   `json:"force"`
}

// Recompute 同步执行一次聚类计算（用户显式触发）。
// 默认仍遵守触发策略，force 跳过策略直接计算；失败只返回笼统信息。
func (h *ClusterHandler) Recompute(c *gin.Context) {
	var req recomputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数"})
		return
	}

	if !req.Force {
		should, err := h.clusterService.ShouldRecompute(req.WorkspaceID)
		if err != nil {
			log.Errorf("[ClusterHandler] 触发策略判断失败, workspace=%s: %v", req.WorkspaceID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "聚类计算失败，请稍后重试"})
			return
		}
		if !should {
			c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{"recomputed": false}, "message": "success"})
			return
		}
	}

	if err := h.clusterService.ComputeClusters(c.Request.Context(), req.WorkspaceID); err != nil {
		log.Errorf("[ClusterHandler] 聚类计算失败, workspace=%s: %v", req.WorkspaceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "聚类计算失败，请稍后重试"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{"recomputed": true}, "message": "success"})
}
