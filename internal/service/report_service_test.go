package service

import (
	"context"
	"spechub-go/internal/chunker"
	"spechub-go/internal/model"
	"spechub-go/internal/staleness"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeReportRepo struct {
	reports map[string]*model.Report
}

func newFakeReportRepo() *fakeReportRepo {
	return &fakeReportRepo{reports: map[string]*model.Report{}}
}

func (r *fakeReportRepo) Create(report *model.Report) error {
	r.reports[report.ID] = report
	return nil
}

func (r *fakeReportRepo) FindByID(id string) (*model.Report, error) {
	report, ok := r.reports[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return report, nil
}

func (r *fakeReportRepo) FindBySource(workspaceID, sourceID string) ([]*model.Report, error) {
	var found []*model.Report
	for _, report := range r.reports {
		if report.WorkspaceID == workspaceID && report.SourceID == sourceID {
			found = append(found, report)
		}
	}
	return found, nil
}

func seedReport(sourceRepo *fakeSourceRepo, reportRepo *fakeReportRepo, body string) *model.Report {
	record := &model.SourceRecord{
		SourceID:    "spec-1",
		SourceType:  model.SourceTypeSpecification,
		WorkspaceID: "ws-1",
		Body:        body,
	}
	_ = sourceRepo.Upsert(record)

	report := &model.Report{
		ID:          "report-1",
		WorkspaceID: "ws-1",
		SourceID:    "spec-1",
		SourceType:  model.SourceTypeSpecification,
		Content:     "分析报告正文",
		ContentHash: staleness.Hash(chunker.CanonicalText(body)),
		CreatedAt:   time.Now(),
	}
	_ = reportRepo.Create(report)
	return report
}

func TestGetReportFreshWhileSourceUnchanged(t *testing.T) {
	sourceRepo := newFakeSourceRepo()
	reportRepo := newFakeReportRepo()
	seedReport(sourceRepo, reportRepo, "产品目标：提升导出速度。")
	svc := NewReportService(sourceRepo, reportRepo, &fakeSearchService{}, &fakeLLM{}, nil)

	dto, err := svc.GetReport("report-1")

	require.NoError(t, err)
	assert.False(t, dto.Stale)
	assert.Equal(t, "分析报告正文", dto.Content)
}

func TestGetReportStaleAfterSourceEdit(t *testing.T) {
	sourceRepo := newFakeSourceRepo()
	reportRepo := newFakeReportRepo()
	seedReport(sourceRepo, reportRepo, "产品目标：提升导出速度。")
	svc := NewReportService(sourceRepo, reportRepo, &fakeSearchService{}, &fakeLLM{}, nil)

	_ = sourceRepo.Upsert(&model.SourceRecord{
		SourceID:    "spec-1",
		SourceType:  model.SourceTypeSpecification,
		WorkspaceID: "ws-1",
		Body:        "产品目标：提升导出速度，并支持定时任务。",
	})

	dto, err := svc.GetReport("report-1")

	require.NoError(t, err)
	assert.True(t, dto.Stale)
}

func TestGetReportStaleWhenSourceDeleted(t *testing.T) {
	sourceRepo := newFakeSourceRepo()
	reportRepo := newFakeReportRepo()
	report := seedReport(sourceRepo, reportRepo, "产品目标。")
	delete(sourceRepo.records, model.SourceTypeSpecification+"/"+report.SourceID)
	svc := NewReportService(sourceRepo, reportRepo, &fakeSearchService{}, &fakeLLM{}, nil)

	dto, err := svc.GetReport("report-1")

	require.NoError(t, err)
	assert.True(t, dto.Stale)
}

func TestGetReportNotFound(t *testing.T) {
	svc := NewReportService(newFakeSourceRepo(), newFakeReportRepo(), &fakeSearchService{}, &fakeLLM{}, nil)

	_, err := svc.GetReport("missing")

	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListReportsCarriesStaleness(t *testing.T) {
	sourceRepo := newFakeSourceRepo()
	reportRepo := newFakeReportRepo()
	seedReport(sourceRepo, reportRepo, "产品目标。")
	svc := NewReportService(sourceRepo, reportRepo, &fakeSearchService{}, &fakeLLM{}, nil)

	dtos, err := svc.ListReports("ws-1", "spec-1")

	require.NoError(t, err)
	require.Len(t, dtos, 1)
	assert.False(t, dtos[0].Stale)
}

func TestStartReportUnknownSource(t *testing.T) {
	svc := NewReportService(newFakeSourceRepo(), newFakeReportRepo(), &fakeSearchService{}, &fakeLLM{}, nil)

	_, err := svc.StartReport(context.Background(), "ws-1", "missing", model.SourceTypeSpecification)

	assert.Error(t, err)
}
