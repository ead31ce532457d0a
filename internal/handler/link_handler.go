package handler

import (
	"net/http"
	"spechub-go/internal/service"
	"spechub-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// LinkHandler 结构体定义了关联边相关的处理器。
type LinkHandler struct {
	linkerService service.LinkerService
}

// NewLinkHandler 创建一个新的 LinkHandler 实例。
func NewLinkHandler(linkerService service.LinkerService) *LinkHandler {
	return &LinkHandler{
		linkerService: linkerService,
	}
}

type autoLinkRequest struct {
	WorkspaceID string `json:"workspaceId" binding:"required"`
	SourceID    string `json:"sourceId" binding:"required"`
	SourceType  string `json:"sourceType" binding:"required"`
}

// AutoLink 为一个来源执行自动关联。
// 存储层失败是软失败：记日志并返回零条，不向用户暴露错误。
func (h *LinkHandler) AutoLink(c *gin.Context) {
	var req autoLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数"})
		return
	}

	created, err := h.linkerService.LinkSource(c.Request.Context(), req.SourceID, req.SourceType, req.WorkspaceID)
	if err != nil {
		log.Errorf("[LinkHandler] 自动关联失败, source=%s: %v", req.SourceID, err)
		created = 0
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{"created": created}, "message": "success"})
}

// List 返回某来源参与的全部关联边。
func (h *LinkHandler) List(c *gin.Context) {
	workspaceID := c.Query("workspaceId")
	sourceID := c.Query("sourceId")
	if workspaceID == "" || sourceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的查询参数"})
		return
	}

	links, err := h.linkerService.ListLinks(workspaceID, sourceID)
	if err != nil {
		log.Errorf("[LinkHandler] 查询关联边失败, source=%s: %v", sourceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": links, "message": "success"})
}
