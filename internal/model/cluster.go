package model

import (
	"encoding/json"
	"time"
)

// 聚类严重度等级，由严重度得分按阈值换算。
const (
	CriticalityCritical = "critical"
	CriticalityHigh     = "high"
	CriticalityMedium   = "medium"
	CriticalityLow      = "low"
)

// Cluster 对应于数据库中的 clusters 表，表示一次聚类计算产出的一个主题。
// 聚类身份在两次计算之间不稳定，每次成功计算都会整体替换工作区的聚类集合。
// EvidenceIDs / Centroid / SectionRelevance 以 JSON 文本存储，通过下面的
// 辅助方法编解码。
type Cluster struct {
	ID                uint      `gorm:"primaryKey;autoIncrement"`
	WorkspaceID       string    `gorm:"type:varchar(64);not null;index;column:workspace_id"`
	Label             string    `gorm:"type:varchar(255);not null;column:label"`
	Summary           string    `gorm:"type:text;column:summary"`
	EvidenceIDs       string    `gorm:"type:text;column:evidence_ids"`
	EvidenceCount     int       `gorm:"not null;column:evidence_count"`
	Centroid          string    `gorm:"type:mediumtext;column:centroid"`
	SectionRelevance  string    `gorm:"type:text;column:section_relevance"`
	CriticalityScore  *float64  `gorm:"column:criticality_score"`
	CriticalityLevel  string    `gorm:"type:varchar(16);column:criticality_level"`
	CriticalityReason string    `gorm:"type:text;column:criticality_reason"`
	ComputedAt        time.Time `gorm:"column:computed_at"`
}

func (Cluster) TableName() string {
	return "clusters"
}

// SetEvidenceIDs 将证据 ID 列表编码到 EvidenceIDs 字段。
func (c *Cluster) SetEvidenceIDs(ids []string) {
	b, _ := json.Marshal(ids)
	c.EvidenceIDs = string(b)
	c.EvidenceCount = len(ids)
}

// GetEvidenceIDs 解码 EvidenceIDs 字段。
func (c *Cluster) GetEvidenceIDs() []string {
	var ids []string
	_ = json.Unmarshal([]byte(c.EvidenceIDs), &ids)
	return ids
}

// SetCentroid 将中心向量编码到 Centroid 字段，nil 表示尚无可用向量。
func (c *Cluster) SetCentroid(vector []float32) {
	if vector == nil {
		c.Centroid = ""
		return
	}
	b, _ := json.Marshal(vector)
	c.Centroid = string(b)
}

// GetCentroid 解码 Centroid 字段，无中心向量时返回 nil。
func (c *Cluster) GetCentroid() []float32 {
	if c.Centroid == "" {
		return nil
	}
	var vector []float32
	_ = json.Unmarshal([]byte(c.Centroid), &vector)
	return vector
}

// SetSectionRelevance 将章节相关度表编码到 SectionRelevance 字段。
func (c *Cluster) SetSectionRelevance(scores map[string]float64) {
	b, _ := json.Marshal(scores)
	c.SectionRelevance = string(b)
}

// GetSectionRelevance 解码 SectionRelevance 字段。
func (c *Cluster) GetSectionRelevance() map[string]float64 {
	scores := map[string]float64{}
	if c.SectionRelevance != "" {
		_ = json.Unmarshal([]byte(c.SectionRelevance), &scores)
	}
	return scores
}

// ClusterDTO 定义了返回给前端的聚类结构。
type ClusterDTO struct {
	Label             string             `json:"label"`
	Summary           string             `json:"summary"`
	EvidenceIDs       []string           `json:"evidenceIds"`
	EvidenceCount     int                `json:"evidenceCount"`
	SectionRelevance  map[string]float64 `json:"sectionRelevance"`
	CriticalityScore  *float64           `json:"criticalityScore,omitempty"`
	CriticalityLevel  string             `json:"criticalityLevel,omitempty"`
	CriticalityReason string             `json:"criticalityReason,omitempty"`
	ComputedAt        LocalTime          `json:"computedAt"`
}

// ToDTO 将数据库模型转换为响应 DTO。
func (c *Cluster) ToDTO() ClusterDTO {
	return ClusterDTO{
		Label:             c.Label,
		Summary:           c.Summary,
		EvidenceIDs:       c.GetEvidenceIDs(),
		EvidenceCount:     c.EvidenceCount,
		SectionRelevance:  c.GetSectionRelevance(),
		CriticalityScore:  c.CriticalityScore,
		CriticalityLevel:  c.CriticalityLevel,
		CriticalityReason: c.CriticalityReason,
		ComputedAt:        LocalTime(c.ComputedAt),
	}
}
