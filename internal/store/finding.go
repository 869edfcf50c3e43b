package store

import (
	"time"

	"gorm.io/gorm"

	"github.com/reviewpilot/reviewpilot/internal/model"
)

// SeverityCount is a grouped count of findings by severity.
// Used by the stats endpoint to display the severity breakdown.
type SeverityCount struct {
	Severity string `json:"severity"`
	Count    int64  `json:"count"`
}

// FindingStore defines operations for the Finding model.
type FindingStore interface {
	BatchCreate(findings []model.Finding) error
	ListByReviewID(reviewID string) ([]model.Finding, error)
	DeleteByReviewID(reviewID string) error

	// Statistics queries
	CountAll() (int64, error)
	CountBySeverityAfter(start time.Time) ([]SeverityCount, error)
}

// findingStore implements FindingStore using GORM.
type findingStore struct {
	db *gorm.DB
}

func newFindingStore(db *gorm.DB) FindingStore {
	return &findingStore{db: db}
}

func (s *findingStore) BatchCreate(findings []model.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	return s.db.Create(&findings).Error
}

func (s *findingStore) ListByReviewID(reviewID string) ([]model.Finding, error) {
	var findings []model.Finding
	err := s.db.Where("review_id = ?", reviewID).Order("id ASC").Find(&findings).Error
	return findings, err
}

func (s *findingStore) DeleteByReviewID(reviewID string) error {
	return s.db.Where("review_id = ?", reviewID).Delete(&model.Finding{}).Error
}

// Statistics queries

func (s *findingStore) CountAll() (int64, error) {
	var count int64
	err := s.db.Model(&model.Finding{}).Count(&count).Error
	return count, err
}

func (s *findingStore) CountBySeverityAfter(start time.Time) ([]SeverityCount, error) {
	var counts []SeverityCount
	err := s.db.Model(&model.Finding{}).
		Select("severity, COUNT(*) as count").
		Where("created_at >= ?", start).
		Group("severity").
		Order("count DESC").
		Find(&counts).Error
	return counts, err
}
