package service

import (
	"context"
	"fmt"
	"spechub-go/internal/model"
	"spechub-go/internal/repository"
	"spechub-go/pkg/log"
)

// 自动关联的固定策略。
const (
	// linkThreshold 是建边要求的最低相似度。
	linkThreshold = 0.75
	// evidenceToSpecLimit / specToEvidenceLimit 是两个方向的候选上限。
	evidenceToSpecLimit = 5
	specToEvidenceLimit = 10
)

// LinkError 表示关联边写入失败。对上层是软失败：记日志、返回零条、不打扰用户。
type LinkError struct {
	Op  string
	Err error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

// LinkerService 接口定义了证据与规格文档之间的自动关联操作。
type LinkerService interface {
	// LinkSource 按来源类型分派到对应方向，返回新建边数。
	LinkSource(ctx context.Context, sourceID, sourceType, workspaceID string) (int, error)
	LinkEvidenceToSpecs(ctx context.Context, evidenceID, workspaceID string) (int, error)
	LinkSpecToEvidence(ctx context.Context, specID, workspaceID string) (int, error)
	ListLinks(workspaceID, sourceID string) ([]*model.Link, error)
}

type linkerService struct {
	searchService SearchService
	linkRepo      repository.LinkRepository
}

// NewLinkerService 创建一个新的 LinkerService 实例。
func NewLinkerService(searchService SearchService, linkRepo repository.LinkRepository) LinkerService {
	return &linkerService{
		searchService: searchService,
		linkRepo:      linkRepo,
	}
}

// LinkSource 按来源类型选择关联方向，其余类型不建边。
func (s *linkerService) LinkSource(ctx context.Context, sourceID, sourceType, workspaceID string) (int, error) {
	switch sourceType {
	case model.SourceTypeEvidence:
		return s.LinkEvidenceToSpecs(ctx, sourceID, workspaceID)
	case model.SourceTypeSpecification:
		return s.LinkSpecToEvidence(ctx, sourceID, workspaceID)
	default:
		return 0, nil
	}
}

// LinkEvidenceToSpecs 为一条证据关联相似的规格文档。
func (s *linkerService) LinkEvidenceToSpecs(ctx context.Context, evidenceID, workspaceID string) (int, error) {
	return s.linkBySimilarity(ctx, workspaceID, evidenceID, model.SourceTypeEvidence, model.SourceTypeSpecification, evidenceToSpecLimit)
}

// LinkSpecToEvidence 为一份规格文档关联相似的证据。
func (s *linkerService) LinkSpecToEvidence(ctx context.Context, specID, workspaceID string) (int, error) {
	return s.linkBySimilarity(ctx, workspaceID, specID, model.SourceTypeSpecification, model.SourceTypeEvidence, specToEvidenceLimit)
}

// linkBySimilarity 对相反类型做阈值检索，去重后只插入净新增的边。
// 来源自身尚未完成向量化时检索为空，静默返回 0。
func (s *linkerService) linkBySimilarity(ctx context.Context, workspaceID, sourceID, sourceType, targetType string, limit int) (int, error) {
	results, err := s.searchService.RelatedTo(ctx, sourceID, sourceType, workspaceID, SearchOptions{
		SourceTypes: []string{targetType},
		Limit:       limit,
		Threshold:   linkThreshold,
	})
	if err != nil {
		log.Errorf("[LinkerService] 相似检索失败, source=%s: %v", sourceID, err)
		return 0, &LinkError{Op: "search", Err: err}
	}
	if len(results) == 0 {
		return 0, nil
	}

	// 命中的是分块，先按目标来源去重
	seen := make(map[string]struct{}, len(results))
	targetIDs := make([]string, 0, len(results))
	for _, r := range results {
		if r.SourceID == sourceID {
			continue
		}
		if _, ok := seen[r.SourceID]; ok {
			continue
		}
		seen[r.SourceID] = struct{}{}
		targetIDs = append(targetIDs, r.SourceID)
	}

	created := 0
	for _, targetID := range targetIDs {
		// 反向先行的自动关联可能已经建过这条边
		exists, err := s.linkRepo.ExistsBetween(workspaceID, sourceID, targetID)
		if err != nil {
			log.Errorf("[LinkerService] 查询既有关联失败, source=%s, target=%s: %v", sourceID, targetID, err)
			return 0, &LinkError{Op: "exists", Err: err}
		}
		if exists {
			continue
		}
		link := &model.Link{
			WorkspaceID:  workspaceID,
			SourceID:     sourceID,
			SourceType:   sourceType,
			TargetID:     targetID,
			TargetType:   targetType,
			Relationship: model.RelationshipRelatedTo,
		}
		if err := s.linkRepo.Create(link); err != nil {
			log.Errorf("[LinkerService] 写入关联边失败, source=%s, target=%s: %v", sourceID, targetID, err)
			return 0, &LinkError{Op: "create", Err: err}
		}
		created++
	}

	log.Infof("[LinkerService] 自动关联完成, source=%s, 候选 %d, 新增 %d", sourceID, len(targetIDs), created)
	return created, nil
}

// ListLinks 返回某来源参与的全部关联边。
func (s *linkerService) ListLinks(workspaceID, sourceID string) ([]*model.Link, error) {
	return s.linkRepo.FindBySource(workspaceID, sourceID)
}
