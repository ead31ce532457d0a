package service

import (
	"context"
	"fmt"
	"spechub-go/internal/model"
	"spechub-go/pkg/llm"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ---- 共享的内存假件 ----

type fakeSourceRepo struct {
	records       map[string]*model.SourceRecord // key: sourceType + "/" + sourceID
	evidenceCount int64
	recent        []*model.SourceRecord
	ratio         float64
	countErr      error
}

func newFakeSourceRepo() *fakeSourceRepo {
	return &fakeSourceRepo{records: map[string]*model.SourceRecord{}}
}

func (r *fakeSourceRepo) Upsert(record *model.SourceRecord) error {
	r.records[record.SourceType+"/"+record.SourceID] = record
	return nil
}

func (r *fakeSourceRepo) FindBySource(sourceID, sourceType string) (*model.SourceRecord, error) {
	record, ok := r.records[sourceType+"/"+sourceID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return record, nil
}

func (r *fakeSourceRepo) CountEvidence(workspaceID string) (int64, error) {
	return r.evidenceCount, r.countErr
}

func (r *fakeSourceRepo) FindRecentEvidence(workspaceID string, limit int) ([]*model.SourceRecord, error) {
	if len(r.recent) > limit {
		return r.recent[:limit], nil
	}
	return r.recent, nil
}

func (r *fakeSourceRepo) RecentEvidenceRatio(workspaceID string, window time.Duration) (float64, error) {
	return r.ratio, nil
}

type fakeCompRepo struct {
	row        *model.ClusterComputation
	lastStatus string
	lastCount  int
}

func (r *fakeCompRepo) Find(workspaceID string) (*model.ClusterComputation, error) {
	if r.row == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return r.row, nil
}

func (r *fakeCompRepo) Upsert(workspaceID, status string, at time.Time, evidenceCount int) error {
	r.row = &model.ClusterComputation{
		WorkspaceID:    workspaceID,
		Status:         status,
		LastComputedAt: at,
		EvidenceCount:  evidenceCount,
	}
	r.lastStatus = status
	r.lastCount = evidenceCount
	return nil
}

type fakeClusterRepo struct {
	stored     []*model.Cluster
	replaceErr error
}

func (r *fakeClusterRepo) ReplaceForWorkspace(workspaceID string, clusters []*model.Cluster) error {
	if r.replaceErr != nil {
		return r.replaceErr
	}
	r.stored = clusters
	return nil
}

func (r *fakeClusterRepo) FindByWorkspace(workspaceID string) ([]*model.Cluster, error) {
	return r.stored, nil
}

// fakeLLM 按调用顺序依次返回预置的回答。
type fakeLLM struct {
	responses []string
	calls     int
	err       error
}

func (c *fakeLLM) Complete(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.calls++
	if len(c.responses) == 0 {
		return "", nil
	}
	resp := c.responses[0]
	if len(c.responses) > 1 {
		c.responses = c.responses[1:]
	}
	return resp, nil
}

func (c *fakeLLM) StreamChatMessages(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams, writer llm.MessageWriter) error {
	if c.err != nil {
		return c.err
	}
	for _, resp := range c.responses {
		if err := writer.WriteMessage(1, []byte(resp)); err != nil {
			return err
		}
	}
	return nil
}

type fakeVectors struct {
	vectors [][]float32
}

func (v *fakeVectors) SourceVectors(ctx context.Context, workspaceID, sourceID, sourceType string) ([][]float32, error) {
	return v.vectors, nil
}

func evidenceRecords(n int) []*model.SourceRecord {
	records := make([]*model.SourceRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, &model.SourceRecord{
			SourceID:    fmt.Sprintf("ev-%d", i),
			SourceType:  model.SourceTypeEvidence,
			WorkspaceID: "ws-1",
			Body:        fmt.Sprintf("用户反馈 %d：导出太慢。", i),
		})
	}
	return records
}

func newTestClusterService(sourceRepo *fakeSourceRepo, clusterRepo *fakeClusterRepo, compRepo *fakeCompRepo, llmClient llm.Client, now time.Time) *clusterService {
	svc := NewClusterService(
		sourceRepo, clusterRepo, compRepo, llmClient,
		&fakeVectors{vectors: [][]float32{{1, 0}, {0, 1}}},
		[]string{"overview", "risks"},
	).(*clusterService)
	svc.now = func() time.Time { return now }
	return svc
}

// ---- 触发策略 ----

func TestShouldRecomputeBelowEvidenceMinimum(t *testing.T) {
	repo := newFakeSourceRepo()
	repo.evidenceCount = 2
	svc := newTestClusterService(repo, &fakeClusterRepo{}, &fakeCompRepo{}, &fakeLLM{}, time.Now())

	should, err := svc.ShouldRecompute("ws-1")
	require.NoError(t, err)
	assert.False(t, should)
}

func TestShouldRecomputeFirstTime(t *testing.T) {
	repo := newFakeSourceRepo()
	repo.evidenceCount = 3
	svc := newTestClusterService(repo, &fakeClusterRepo{}, &fakeCompRepo{}, &fakeLLM{}, time.Now())

	should, err := svc.ShouldRecompute("ws-1")
	require.NoError(t, err)
	assert.True(t, should)
}

func TestShouldRecomputeComputingLeaseBlocks(t *testing.T) {
	now := time.Now()
	repo := newFakeSourceRepo()
	repo.evidenceCount = 20
	comp := &fakeCompRepo{row: &model.ClusterComputation{
		Status:         model.ComputationStatusComputing,
		LastComputedAt: now.Add(-time.Minute),
		EvidenceCount:  3, // 即使证据大幅增长，租约内也不抢
	}}
	svc := newTestClusterService(repo, &fakeClusterRepo{}, comp, &fakeLLM{}, now)

	should, err := svc.ShouldRecompute("ws-1")
	require.NoError(t, err)
	assert.False(t, should)
}

func TestShouldRecomputeExpiredLeaseReleased(t *testing.T) {
	now := time.Now()
	repo := newFakeSourceRepo()
	repo.evidenceCount = 20
	comp := &fakeCompRepo{row: &model.ClusterComputation{
		Status:         model.ComputationStatusComputing,
		LastComputedAt: now.Add(-10 * time.Minute),
		EvidenceCount:  3,
	}}
	svc := newTestClusterService(repo, &fakeClusterRepo{}, comp, &fakeLLM{}, now)

	should, err := svc.ShouldRecompute("ws-1")
	require.NoError(t, err)
	assert.True(t, should)
}

func TestShouldRecomputeAfterFailure(t *testing.T) {
	now := time.Now()
	repo := newFakeSourceRepo()
	repo.evidenceCount = 3
	comp := &fakeCompRepo{row: &model.ClusterComputation{
		Status:         model.ComputationStatusFailed,
		LastComputedAt: now.Add(-time.Minute),
		EvidenceCount:  3,
	}}
	svc := newTestClusterService(repo, &fakeClusterRepo{}, comp, &fakeLLM{}, now)

	should, err := svc.ShouldRecompute("ws-1")
	require.NoError(t, err)
	assert.True(t, should)
}

func TestShouldRecomputeAfterInterval(t *testing.T) {
	now := time.Now()
	repo := newFakeSourceRepo()
	repo.evidenceCount = 3
	comp := &fakeCompRepo{row: &model.ClusterComputation{
		Status:         model.ComputationStatusCompleted,
		LastComputedAt: now.Add(-7 * time.Hour),
		EvidenceCount:  3,
	}}
	svc := newTestClusterService(repo, &fakeClusterRepo{}, comp, &fakeLLM{}, now)

	should, err := svc.ShouldRecompute("ws-1")
	require.NoError(t, err)
	assert.True(t, should)
}

func TestShouldRecomputeOnEvidenceGrowth(t *testing.T) {
	now := time.Now()
	repo := newFakeSourceRepo()
	repo.evidenceCount = 10
	comp := &fakeCompRepo{row: &model.ClusterComputation{
		Status:         model.ComputationStatusCompleted,
		LastComputedAt: now.Add(-time.Hour),
		EvidenceCount:  5,
	}}
	svc := newTestClusterService(repo, &fakeClusterRepo{}, comp, &fakeLLM{}, now)

	should, err := svc.ShouldRecompute("ws-1")
	require.NoError(t, err)
	assert.True(t, should)

	// 增量不足 5 时不触发
	comp.row.EvidenceCount = 6
	should, err = svc.ShouldRecompute("ws-1")
	require.NoError(t, err)
	assert.False(t, should)
}

// ---- 聚类计算 ----

func TestComputeClustersHappyPath(t *testing.T) {
	now := time.Now()
	sourceRepo := newFakeSourceRepo()
	sourceRepo.recent = evidenceRecords(4)
	sourceRepo.ratio = 0.5
	clusterRepo := &fakeClusterRepo{}
	compRepo := &fakeCompRepo{}
	llmClient := &fakeLLM{responses: []string{
		`[{"label":"导出性能","summary":"导出相关的性能问题","indices":[0,1,2]},
		  {"label":"权限","summary":"权限配置问题","indices":[3]}]`,
		`[{"index":0,"scores":{"overview":0.9,"risks":0.3,"unknown_section":0.5}}]`,
		`[{"index":0,"score":0.85,"reason":"影响全部导出用户"},{"index":1,"score":0.5,"reason":"影响较小"}]`,
	}}
	svc := newTestClusterService(sourceRepo, clusterRepo, compRepo, llmClient, now)

	require.NoError(t, svc.ComputeClusters(context.Background(), "ws-1"))

	require.Len(t, clusterRepo.stored, 2)
	first := clusterRepo.stored[0]
	assert.Equal(t, "导出性能", first.Label)
	assert.Equal(t, []string{"ev-0", "ev-1", "ev-2"}, first.GetEvidenceIDs())
	assert.Equal(t, 3, first.EvidenceCount)
	assert.NotEmpty(t, first.GetCentroid())

	// 未知章节被过滤，只保留配置内的章节
	relevance := first.GetSectionRelevance()
	assert.Equal(t, 0.9, relevance["overview"])
	assert.Equal(t, 0.3, relevance["risks"])
	assert.NotContains(t, relevance, "unknown_section")

	require.NotNil(t, first.CriticalityScore)
	assert.Equal(t, 0.85, *first.CriticalityScore)
	assert.Equal(t, model.CriticalityCritical, first.CriticalityLevel)
	assert.Equal(t, model.CriticalityMedium, clusterRepo.stored[1].CriticalityLevel)

	assert.Equal(t, model.ComputationStatusCompleted, compRepo.lastStatus)
	assert.Equal(t, 4, compRepo.lastCount)
}

func TestComputeClustersFallsBackOnUnparsableGrouping(t *testing.T) {
	sourceRepo := newFakeSourceRepo()
	sourceRepo.recent = evidenceRecords(3)
	clusterRepo := &fakeClusterRepo{}
	compRepo := &fakeCompRepo{}
	llmClient := &fakeLLM{responses: []string{"抱歉，我无法完成这个任务。"}}
	svc := newTestClusterService(sourceRepo, clusterRepo, compRepo, llmClient, time.Now())

	require.NoError(t, svc.ComputeClusters(context.Background(), "ws-1"))

	// 不可解析的输出降级为覆盖全部证据的单个兜底分组
	require.Len(t, clusterRepo.stored, 1)
	cluster := clusterRepo.stored[0]
	assert.Equal(t, "未归类反馈", cluster.Label)
	assert.Equal(t, []string{"ev-0", "ev-1", "ev-2"}, cluster.GetEvidenceIDs())
	assert.Nil(t, cluster.CriticalityScore)
	assert.Equal(t, model.ComputationStatusCompleted, compRepo.lastStatus)
}

func TestComputeClustersSanitizesModelIndices(t *testing.T) {
	sourceRepo := newFakeSourceRepo()
	sourceRepo.recent = evidenceRecords(3)
	clusterRepo := &fakeClusterRepo{}
	llmClient := &fakeLLM{responses: []string{
		// 越界、重复和空组都应被清理
		`[{"label":"A","summary":"s","indices":[0,0,7,-1]},
		  {"label":"B","summary":"s","indices":[1]},
		  {"label":"C","summary":"s","indices":[99]}]`,
		`[]`,
		`[]`,
	}}
	svc := newTestClusterService(sourceRepo, clusterRepo, &fakeCompRepo{}, llmClient, time.Now())

	require.NoError(t, svc.ComputeClusters(context.Background(), "ws-1"))

	require.Len(t, clusterRepo.stored, 2)
	assert.Equal(t, []string{"ev-0"}, clusterRepo.stored[0].GetEvidenceIDs())
	assert.Equal(t, []string{"ev-1"}, clusterRepo.stored[1].GetEvidenceIDs())
}

func TestComputeClustersCapsGroupCount(t *testing.T) {
	sourceRepo := newFakeSourceRepo()
	sourceRepo.recent = evidenceRecords(10)
	clusterRepo := &fakeClusterRepo{}
	// 模型把每条证据各自成组，超出 8 组的部分应合并为尾组
	var groups []string
	for i := 0; i < 10; i++ {
		groups = append(groups, fmt.Sprintf(`{"label":"主题%d","summary":"s","indices":[%d]}`, i, i))
	}
	llmClient := &fakeLLM{responses: []string{
		"[" + strings.Join(groups, ",") + "]",
		`[]`,
		`[]`,
	}}
	svc := newTestClusterService(sourceRepo, clusterRepo, &fakeCompRepo{}, llmClient, time.Now())

	require.NoError(t, svc.ComputeClusters(context.Background(), "ws-1"))

	require.Len(t, clusterRepo.stored, 8)
	assert.Equal(t, "主题0", clusterRepo.stored[0].Label)
	tail := clusterRepo.stored[7]
	assert.Equal(t, "其他主题", tail.Label)
	assert.Equal(t, []string{"ev-7", "ev-8", "ev-9"}, tail.GetEvidenceIDs())
	assert.Equal(t, 3, tail.EvidenceCount)
}

func TestComputeClustersStoreFailureMarksFailed(t *testing.T) {
	sourceRepo := newFakeSourceRepo()
	sourceRepo.recent = evidenceRecords(3)
	clusterRepo := &fakeClusterRepo{replaceErr: assert.AnError}
	compRepo := &fakeCompRepo{}
	svc := newTestClusterService(sourceRepo, clusterRepo, compRepo, &fakeLLM{responses: []string{"junk"}}, time.Now())

	err := svc.ComputeClusters(context.Background(), "ws-1")

	require.Error(t, err)
	var clusterErr *ClusteringError
	require.ErrorAs(t, err, &clusterErr)
	assert.Equal(t, "replace", clusterErr.Stage)
	assert.Equal(t, model.ComputationStatusFailed, compRepo.lastStatus)
}

func TestComputeClustersSkipsWhenEvidenceShrankBelowMinimum(t *testing.T) {
	sourceRepo := newFakeSourceRepo()
	sourceRepo.recent = evidenceRecords(2)
	clusterRepo := &fakeClusterRepo{}
	compRepo := &fakeCompRepo{}
	svc := newTestClusterService(sourceRepo, clusterRepo, compRepo, &fakeLLM{}, time.Now())

	require.NoError(t, svc.ComputeClusters(context.Background(), "ws-1"))

	assert.Empty(t, clusterRepo.stored)
	assert.Equal(t, model.ComputationStatusCompleted, compRepo.lastStatus)
}

func TestCriticalityLevelThresholds(t *testing.T) {
	assert.Equal(t, model.CriticalityCritical, CriticalityLevel(0.8))
	assert.Equal(t, model.CriticalityHigh, CriticalityLevel(0.79))
	assert.Equal(t, model.CriticalityHigh, CriticalityLevel(0.6))
	assert.Equal(t, model.CriticalityMedium, CriticalityLevel(0.4))
	assert.Equal(t, model.CriticalityLow, CriticalityLevel(0.39))
}
