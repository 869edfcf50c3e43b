package store

import (
	"gorm.io/gorm"

	"github.com/reviewpilot/reviewpilot/internal/model"
)

// TrackStore defines operations for the PullRequestTrack model.
// Track rows are keyed by (project, repo, PR number) and are never deleted.
type TrackStore interface {
	Create(track *model.PullRequestTrack) error
	Get(projectKey, repoName string, prNumber int) (*model.PullRequestTrack, error)
	Save(track *model.PullRequestTrack) error
	List(limit, offset int) ([]model.PullRequestTrack, int64, error)
	CountAll() (int64, error)
}

// trackStore implements TrackStore using GORM.
type trackStore struct {
	db *gorm.DB
}

func newTrackStore(db *gorm.DB) TrackStore {
	return &trackStore{db: db}
}

func (s *trackStore) Create(track *model.PullRequestTrack) error {
	return s.db.Create(track).Error
}

func (s *trackStore) Get(projectKey, repoName string, prNumber int) (*model.PullRequestTrack, error) {
	var track model.PullRequestTrack
	err := s.db.
		Where("project_key = ? AND repo_name = ? AND pr_number = ?", projectKey, repoName, prNumber).
		First(&track).Error
	if err != nil {
		return nil, err
	}
	return &track, nil
}

func (s *trackStore) Save(track *model.PullRequestTrack) error {
	return s.db.Save(track).Error
}

func (s *trackStore) List(limit, offset int) ([]model.PullRequestTrack, int64, error) {
	var tracks []model.PullRequestTrack
	var total int64

	query := s.db.Model(&model.PullRequestTrack{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("last_review_at DESC").Limit(limit).Offset(offset).Find(&tracks).Error
	return tracks, total, err
}

func (s *trackStore) CountAll() (int64, error) {
	var count int64
	err := s.db.Model(&model.PullRequestTrack{}).Count(&count).Error
	return count, err
}
