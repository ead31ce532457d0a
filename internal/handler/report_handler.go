package handler

import (
	"encoding/json"
	"net/http"
	"spechub-go/internal/service"
	"spechub-go/pkg/jobs"
	"spechub-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

// ReportHandler 结构体定义了分析报告相关的处理器。
type ReportHandler struct {
	reportService service.ReportService
	registry      *jobs.Registry
}

// NewReportHandler 创建一个新的 ReportHandler 实例。
func NewReportHandler(reportService service.ReportService, registry *jobs.Registry) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		registry:      registry,
	}
}

type startReportRequest struct {
	WorkspaceID string `json:"workspaceId" binding:"required"`
	SourceID    string `json:"sourceId" binding:"required"`
	SourceType  string `json:"sourceType" binding:"required"`
}

// Start 启动一个后台报告生成任务并返回任务 ID。
func (h *ReportHandler) Start(c *gin.Context) {
	var req startReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数"})
		return
	}

	jobID, err := h.reportService.StartReport(c.Request.Context(), req.WorkspaceID, req.SourceID, req.SourceType)
	if err != nil {
		log.Errorf("[ReportHandler] 启动报告任务失败, source=%s: %v", req.SourceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "报告任务启动失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{"jobId": jobID}, "message": "success"})
}

// Get 按 ID 返回报告及其陈旧标记。
func (h *ReportHandler) Get(c *gin.Context) {
	report, err := h.reportService.GetReport(c.Param("id"))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "报告不存在"})
			return
		}
		log.Errorf("[ReportHandler] 查询报告失败, id=%s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": report, "message": "success"})
}

// List 返回某来源的历史报告。
func (h *ReportHandler) List(c *gin.Context) {
	workspaceID := c.Query("workspaceId")
	sourceID := c.Query("sourceId")
	if workspaceID == "" || sourceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的查询参数"})
		return
	}

	reports, err := h.reportService.ListReports(workspaceID, sourceID)
	if err != nil {
		log.Errorf("[ReportHandler] 查询报告列表失败, source=%s: %v", sourceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": reports, "message": "success"})
}

// upgrader 将 HTTP 连接升级为 WebSocket 连接
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有跨域请求
	},
}

// streamBufferSize 是单个连接的分块事件缓冲容量。
const streamBufferSize = 64

type streamControlMessage struct {
	Type string `json:"type"`
}

// Stream 通过 WebSocket 订阅报告任务的流式输出。
// 订阅先回放已产生的分块，断线重连不丢内容；收到 stop 消息时取消任务。
func (h *ReportHandler) Stream(c *gin.Context) {
	jobID := c.Param("jobId")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("[ReportHandler] WebSocket 升级失败: %v", err)
		return
	}
	defer conn.Close()

	job, ok := h.registry.Get(jobID)
	if !ok {
		// 任务已结束或不存在，完整结果走 GET /reports/:id
		_ = conn.WriteJSON(jobs.Event{Type: jobs.EventError, Data: "任务不存在或已结束"})
		return
	}

	// 事件经由 channel 串行写出，WebSocket 连接只允许一个写协程。
	// 缓冲满时只允许丢弃中间分块；终态事件走单独的 channel 并关闭分块流，
	// 慢客户端最终也一定能看到流结束。
	events := make(chan jobs.Event, streamBufferSize)
	terminal := make(chan jobs.Event, 1)
	job.Subscribe(func(event jobs.Event) {
		if event.Type == jobs.EventDone || event.Type == jobs.EventError {
			terminal <- event
			close(events)
			return
		}
		select {
		case events <- event:
		default:
			log.Warnf("[ReportHandler] 事件缓冲已满，丢弃分块, job: %s", jobID)
		}
	})

	// 读协程只处理客户端的 stop 控制消息
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg streamControlMessage
			if jsonErr := json.Unmarshal(data, &msg); jsonErr == nil && msg.Type == "stop" {
				log.Infof("[ReportHandler] 收到停止指令, job: %s", jobID)
				job.Cancel()
				return
			}
		}
	}()

	for event := range events {
		if err := conn.WriteJSON(event); err != nil {
			log.Warnf("[ReportHandler] WebSocket 写入失败, job: %s: %v", jobID, err)
			return
		}
	}

	// 分块流关闭意味着任务已到终态，最后补投终态事件
	select {
	case event := <-terminal:
		if err := conn.WriteJSON(event); err != nil {
			log.Warnf("[ReportHandler] 终态事件写入失败, job: %s: %v", jobID, err)
		}
	default:
	}
}
