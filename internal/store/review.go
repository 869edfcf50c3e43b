package store

import (
	"time"

	"gorm.io/gorm"

	"github.com/reviewpilot/reviewpilot/internal/model"
)

// ReviewStore defines operations for the Review model.
type ReviewStore interface {
	// Review CRUD
	Create(review *model.Review) error
	GetByID(id string) (*model.Review, error)
	GetByIDWithFindings(id string) (*model.Review, error)
	GetBySubmissionID(submissionID string) (*model.Review, error)
	Update(review *model.Review) error
	Save(review *model.Review) error

	// Review status updates
	UpdateStatus(id string, status model.ReviewStatus) error
	MarkInProgress(id string, startedAt time.Time) error
	MarkReviewed(id string, commentID int64, findingsCount int, completedAt time.Time) error
	MarkFailed(id string, errMsg string) error

	// Review queries
	List(statusFilter string, limit, offset int) ([]model.Review, int64, error)
	ListByRepo(provider, projectKey, repoName string, limit, offset int) ([]model.Review, int64, error)
	ListByPR(provider, projectKey, repoName string, prNumber int) ([]model.Review, error)

	// Statistics queries
	CountAll() (int64, error)
	CountByStatus(status model.ReviewStatus) (int64, error)
	CountCreatedAfter(start time.Time) (int64, error)
	GetAverageDurationAfter(start time.Time) (float64, error)
}

// reviewStore implements ReviewStore using GORM.
type reviewStore struct {
	db *gorm.DB
}

func newReviewStore(db *gorm.DB) ReviewStore {
	return &reviewStore{db: db}
}

// firstReview fetches a single review matching conds from tx.
func firstReview(tx *gorm.DB, conds ...any) (*model.Review, error) {
	var review model.Review
	if err := tx.First(&review, conds...).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

// pageReviews counts the rows matched by query, then returns one page
// ordered newest first.
func pageReviews(query *gorm.DB, limit, offset int) ([]model.Review, int64, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var reviews []model.Review
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&reviews).Error
	return reviews, total, err
}

func countReviews(query *gorm.DB) (int64, error) {
	var count int64
	err := query.Count(&count).Error
	return count, err
}

func (s *reviewStore) reviews() *gorm.DB {
	return s.db.Model(&model.Review{})
}

// updateByID applies column updates to one review without loading it.
func (s *reviewStore) updateByID(id string, updates map[string]any) error {
	return s.reviews().Where("id = ?", id).Updates(updates).Error
}

// Review CRUD implementations

func (s *reviewStore) Create(review *model.Review) error {
	return s.db.Create(review).Error
}

func (s *reviewStore) GetByID(id string) (*model.Review, error) {
	return firstReview(s.db, "id = ?", id)
}

func (s *reviewStore) GetByIDWithFindings(id string) (*model.Review, error) {
	return firstReview(s.db.Preload("Findings"), "id = ?", id)
}

func (s *reviewStore) GetBySubmissionID(submissionID string) (*model.Review, error) {
	return firstReview(s.db, "submission_id = ?", submissionID)
}

func (s *reviewStore) Update(review *model.Review) error {
	return s.db.Model(review).Updates(review).Error
}

func (s *reviewStore) Save(review *model.Review) error {
	return s.db.Save(review).Error
}

// Review status updates

func (s *reviewStore) UpdateStatus(id string, status model.ReviewStatus) error {
	return s.updateByID(id, map[string]any{"status": status})
}

func (s *reviewStore) MarkInProgress(id string, startedAt time.Time) error {
	return s.updateByID(id, map[string]any{
		"status":     model.ReviewStatusInProgress,
		"started_at": startedAt,
	})
}

func (s *reviewStore) MarkReviewed(id string, commentID int64, findingsCount int, completedAt time.Time) error {
	updates := map[string]any{
		"status":         model.ReviewStatusReviewed,
		"comment_id":     commentID,
		"findings_count": findingsCount,
		"completed_at":   completedAt,
		"error_message":  "",
	}
	// Duration is derived from started_at when present
	if review, err := firstReview(s.db.Select("started_at"), "id = ?", id); err == nil && review.StartedAt != nil {
		updates["duration"] = completedAt.Sub(*review.StartedAt).Milliseconds()
	}
	return s.updateByID(id, updates)
}

func (s *reviewStore) MarkFailed(id string, errMsg string) error {
	return s.updateByID(id, map[string]any{
		"status":        model.ReviewStatusFailed,
		"error_message": errMsg,
		"completed_at":  time.Now(),
	})
}

// Review queries

func (s *reviewStore) List(statusFilter string, limit, offset int) ([]model.Review, int64, error) {
	query := s.reviews()
	if statusFilter != "" {
		query = query.Where("status = ?", statusFilter)
	}
	return pageReviews(query, limit, offset)
}

func (s *reviewStore) ListByRepo(provider, projectKey, repoName string, limit, offset int) ([]model.Review, int64, error) {
	query := s.reviews().
		Where("provider = ? AND project_key = ? AND repo_name = ?", provider, projectKey, repoName)
	return pageReviews(query, limit, offset)
}

func (s *reviewStore) ListByPR(provider, projectKey, repoName string, prNumber int) ([]model.Review, error) {
	var reviews []model.Review
	err := s.db.
		Where("provider = ? AND project_key = ? AND repo_name = ? AND pr_number = ?",
			provider, projectKey, repoName, prNumber).
		Order("created_at ASC").
		Find(&reviews).Error
	return reviews, err
}

// Statistics queries

func (s *reviewStore) CountAll() (int64, error) {
	return countReviews(s.reviews())
}

func (s *reviewStore) CountByStatus(status model.ReviewStatus) (int64, error) {
	return countReviews(s.reviews().Where("status = ?", status))
}

func (s *reviewStore) CountCreatedAfter(start time.Time) (int64, error) {
	return countReviews(s.reviews().Where("created_at >= ?", start))
}

func (s *reviewStore) GetAverageDurationAfter(start time.Time) (float64, error) {
	var avgDuration float64
	err := s.reviews().
		Where("completed_at >= ? AND status = ? AND duration > 0", start, model.ReviewStatusReviewed).
		Select("COALESCE(AVG(duration), 0)").Row().Scan(&avgDuration)
	return avgDuration, err
}
