// Package jobs 提供进程级的长任务登记表。
// 报告生成这类长流式任务登记在这里，客户端断开连接不会取消任务，
// 重新连上后可以继续订阅剩余输出。
package jobs

import (
	"context"
	"errors"
	"sync"
)

// 任务事件类型。
const (
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

// Event 是任务向订阅者投递的一条事件。
type Event struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// Subscriber 接收任务事件的回调。
type Subscriber func(Event)

// Job 表示一个进行中的长任务。
type Job struct {
	ID string

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	buffer      []Event // 已发生事件的回放缓冲，晚到的订阅者不丢内容
	subscribers []Subscriber
	finished    bool
}

// Context 返回任务的上下文，Cancel 后出站请求随之中止。
func (j *Job) Context() context.Context {
	return j.ctx
}

// Cancel 中止任务的出站调用，已提交的状态不受影响。
func (j *Job) Cancel() {
	j.cancel()
}

// Publish 向所有订阅者投递一条事件，并加入回放缓冲。
func (j *Job) Publish(event Event) {
	j.mu.Lock()
	if j.finished {
		j.mu.Unlock()
		return
	}
	j.buffer = append(j.buffer, event)
	subs := make([]Subscriber, len(j.subscribers))
	copy(subs, j.subscribers)
	j.mu.Unlock()

	for _, sub := range subs {
		sub(event)
	}
}

// Subscribe 订阅任务事件，先回放缓冲中的历史事件再接收后续事件。
func (j *Job) Subscribe(sub Subscriber) {
	j.mu.Lock()
	replay := make([]Event, len(j.buffer))
	copy(replay, j.buffer)
	finished := j.finished
	if !finished {
		j.subscribers = append(j.subscribers, sub)
	}
	j.mu.Unlock()

	for _, event := range replay {
		sub(event)
	}
}

// Registry 是任务登记表，显式持有并发安全的任务状态。
// 生命周期：进程启动时创建，任务完成时移除对应条目。
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewRegistry 创建一个空的任务登记表。
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// ErrJobExists 表示同一 ID 的任务已在运行。
var ErrJobExists = errors.New("jobs: 任务已存在")

// Start 登记并返回一个新任务。
func (r *Registry) Start(id string) (*Job, error) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{ID: id, ctx: ctx, cancel: cancel}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; ok {
		cancel()
		return nil, ErrJobExists
	}
	r.jobs[id] = job
	return job, nil
}

// Get 按 ID 查找进行中的任务。
func (r *Registry) Get(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	return job, ok
}

// Finish 投递终态事件并将任务从登记表移除。
func (r *Registry) Finish(id string, final Event) {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if ok {
		delete(r.jobs, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	job.Publish(final)
	job.mu.Lock()
	job.finished = true
	job.subscribers = nil
	job.mu.Unlock()
	job.cancel()
}
