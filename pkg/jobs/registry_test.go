package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(events *[]Event) Subscriber {
	return func(e Event) { *events = append(*events, e) }
}

func TestStartRejectsDuplicateID(t *testing.T) {
	r := NewRegistry()
	_, err := r.Start("job-1")
	require.NoError(t, err)

	_, err = r.Start("job-1")
	assert.ErrorIs(t, err, ErrJobExists)
}

func TestSubscribeReplaysBufferedEvents(t *testing.T) {
	r := NewRegistry()
	job, err := r.Start("job-1")
	require.NoError(t, err)

	job.Publish(Event{Type: EventChunk, Data: "第一段"})
	job.Publish(Event{Type: EventChunk, Data: "第二段"})

	// 晚到的订阅者先收到历史事件，再收到后续事件
	var got []Event
	job.Subscribe(collect(&got))
	job.Publish(Event{Type: EventChunk, Data: "第三段"})

	require.Len(t, got, 3)
	assert.Equal(t, "第一段", got[0].Data)
	assert.Equal(t, "第三段", got[2].Data)
}

func TestFinishDeliversFinalEventAndRemovesJob(t *testing.T) {
	r := NewRegistry()
	job, err := r.Start("job-1")
	require.NoError(t, err)

	var got []Event
	job.Subscribe(collect(&got))

	r.Finish("job-1", Event{Type: EventDone, Data: "job-1"})

	require.Len(t, got, 1)
	assert.Equal(t, EventDone, got[0].Type)

	_, ok := r.Get("job-1")
	assert.False(t, ok)

	// 结束后的任务忽略后续发布与订阅
	job.Publish(Event{Type: EventChunk, Data: "迟到的分块"})
	var late []Event
	job.Subscribe(collect(&late))
	assert.Len(t, got, 1)
	assert.Len(t, late, 1) // 只回放终态事件
}

func TestCancelAbortsJobContext(t *testing.T) {
	r := NewRegistry()
	job, err := r.Start("job-1")
	require.NoError(t, err)

	select {
	case <-job.Context().Done():
		t.Fatal("任务上下文不应在取消前结束")
	default:
	}

	job.Cancel()
	assert.Error(t, job.Context().Err())
}

func TestFinishCancelsContext(t *testing.T) {
	r := NewRegistry()
	job, err := r.Start("job-1")
	require.NoError(t, err)

	r.Finish("job-1", Event{Type: EventError, Data: "失败"})
	assert.Error(t, job.Context().Err())
}
