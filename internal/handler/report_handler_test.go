package handler

import (
	"net/http/httptest"
	"spechub-go/pkg/jobs"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStreamTestServer(t *testing.T, registry *jobs.Registry) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewReportHandler(nil, registry)
	r.GET("/api/v1/reports/stream/:jobId", h.Stream)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialStream(t *testing.T, srv *httptest.Server, jobID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/reports/stream/" + jobID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestStreamSlowClientStillReceivesTerminalEvent(t *testing.T) {
	registry := jobs.NewRegistry()
	job, err := registry.Start("job-1")
	require.NoError(t, err)
	srv := newStreamTestServer(t, registry)

	// 积压远超缓冲容量的分块，迫使订阅侧丢弃一部分
	chunk := strings.Repeat("分析内容片段。", 64)
	for i := 0; i < 300; i++ {
		job.Publish(jobs.Event{Type: jobs.EventChunk, Data: chunk})
	}

	conn := dialStream(t, srv, "job-1")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	// 读到第一个事件后任务才结束，保证订阅已经建立
	var first jobs.Event
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, jobs.EventChunk, first.Type)
	registry.Finish("job-1", jobs.Event{Type: jobs.EventDone, Data: "job-1"})

	chunks := 1
	var last jobs.Event
	for {
		var event jobs.Event
		require.NoError(t, conn.ReadJSON(&event), "流必须以终态事件收尾，已读到 %d 个分块", chunks)
		if event.Type == jobs.EventChunk {
			chunks++
			continue
		}
		last = event
		break
	}

	assert.Equal(t, jobs.EventDone, last.Type)
	// 缓冲满时丢的是中间分块，不是终态事件
	assert.Less(t, chunks, 300)
	assert.GreaterOrEqual(t, chunks, 1)
}

func TestStreamUnknownJobRepliesWithErrorEvent(t *testing.T) {
	srv := newStreamTestServer(t, jobs.NewRegistry())

	conn := dialStream(t, srv, "missing")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var event jobs.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, jobs.EventError, event.Type)
}
