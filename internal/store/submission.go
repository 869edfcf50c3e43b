package store

import (
	"gorm.io/gorm"

	"github.com/reviewpilot/reviewpilot/internal/model"
)

// SubmissionStore defines operations for the Submission model.
type SubmissionStore interface {
	// Submission CRUD
	Create(submission *model.Submission) error
	GetByID(id string) (*model.Submission, error)
	Save(submission *model.Submission) error

	// Exists reports whether a submission row exists for the given id.
	// Soft-deleted rows do not count.
	Exists(id string) (bool, error)

	// Submission status updates
	UpdateStatus(id string, status model.SubmissionStatus) error
	UpdateStatusWithError(id string, status model.SubmissionStatus, errMsg string) error

	// Submission queries
	ListByStatus(status model.SubmissionStatus) ([]model.Submission, error)
}

// submissionStore implements SubmissionStore using GORM.
type submissionStore struct {
	db *gorm.DB
}

func newSubmissionStore(db *gorm.DB) SubmissionStore {
	return &submissionStore{db: db}
}

// Submission CRUD implementations

func (s *submissionStore) Create(submission *model.Submission) error {
	return s.db.Create(submission).Error
}

func (s *submissionStore) GetByID(id string) (*model.Submission, error) {
	var submission model.Submission
	err := s.db.First(&submission, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &submission, nil
}

func (s *submissionStore) Save(submission *model.Submission) error {
	return s.db.Save(submission).Error
}

func (s *submissionStore) Exists(id string) (bool, error) {
	var count int64
	err := s.db.Model(&model.Submission{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// Submission status updates

func (s *submissionStore) UpdateStatus(id string, status model.SubmissionStatus) error {
	return s.db.Model(&model.Submission{}).Where("id = ?", id).Update("status", status).Error
}

func (s *submissionStore) UpdateStatusWithError(id string, status model.SubmissionStatus, errMsg string) error {
	return s.db.Model(&model.Submission{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        status,
		"error_message": errMsg,
	}).Error
}

// Submission queries

func (s *submissionStore) ListByStatus(status model.SubmissionStatus) ([]model.Submission, error) {
	var submissions []model.Submission
	err := s.db.Where("status = ?", status).Order("created_at ASC").Find(&submissions).Error
	return submissions, err
}
