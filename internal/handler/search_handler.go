package handler

import (
	"net/http"
	"spechub-go/internal/service"
	"spechub-go/pkg/log"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了检索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
	}
}

func parseSearchOptions(c *gin.Context) service.SearchOptions {
	opts := service.SearchOptions{}
	if types := c.Query("types"); types != "" {
		opts.SourceTypes = strings.Split(types, ",")
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "10")); err == nil && limit > 0 {
		opts.Limit = limit
	}
	if threshold, err := strconv.ParseFloat(c.DefaultQuery("threshold", "0"), 64); err == nil && threshold > 0 {
		opts.Threshold = threshold
	}
	return opts
}

// Search 是处理相似度检索请求的 Gin 处理函数。
func (h *SearchHandler) Search(c *gin.Context) {
	workspaceID := c.Query("workspaceId")
	query := c.Query("query")
	if workspaceID == "" || query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的查询参数"})
		return
	}

	results, err := h.searchService.Search(c.Request.Context(), query, workspaceID, parseSearchOptions(c))
	if err != nil {
		log.Errorf("[SearchHandler] 相似度检索失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "搜索失败"})
		return
	}

	if c.Query("partition") == "true" {
		c.JSON(http.StatusOK, gin.H{"code": 200, "data": service.PartitionByType(results), "message": "success"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": results, "message": "success"})
}

// Related 返回与整篇来源文档相似的其他内容。
func (h *SearchHandler) Related(c *gin.Context) {
	workspaceID := c.Query("workspaceId")
	sourceID := c.Query("sourceId")
	sourceType := c.Query("sourceType")
	if workspaceID == "" || sourceID == "" || sourceType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的查询参数"})
		return
	}

	results, err := h.searchService.RelatedTo(c.Request.Context(), sourceID, sourceType, workspaceID, parseSearchOptions(c))
	if err != nil {
		log.Errorf("[SearchHandler] RelatedTo 检索失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "搜索失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": service.PartitionByType(results), "message": "success"})
}
