// Package model defines the data models for the application.
// All models use GORM for ORM operations with SQLite database.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// StringArray is a custom type for storing string arrays in SQLite
type StringArray []string

// Value implements driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	return string(data), err
}

// Scan implements sql.Scanner interface
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	}
	return json.Unmarshal(bytes, s)
}

// JSONMap is a custom type for storing JSON maps in SQLite
type JSONMap map[string]interface{}

// Value implements driver.Valuer interface
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	data, err := json.Marshal(j)
	return string(data), err
}

// Scan implements sql.Scanner interface
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	}
	return json.Unmarshal(bytes, j)
}

// ReviewKind distinguishes the first review of a pull request from
// reviews triggered on an already tracked pull request.
type ReviewKind string

const (
	ReviewKindInitial  ReviewKind = "initial"
	ReviewKindReReview ReviewKind = "re_review"
)

// ReviewStatus represents the status of a review
type ReviewStatus string

const (
	ReviewStatusPending    ReviewStatus = "pending"
	ReviewStatusInProgress ReviewStatus = "in_progress"
	ReviewStatusReviewed   ReviewStatus = "reviewed"
	ReviewStatusFailed     ReviewStatus = "failed"
)

// Review sources. Webhook reviews come from provider events, reconcile
// reviews from the periodic open-PR scan, api reviews from a manual
// trigger.
const (
	ReviewSourceWebhook   = "webhook"
	ReviewSourceReconcile = "reconcile"
	ReviewSourceAPI       = "api"
)

// Review represents a code review of a pull request
type Review struct {
	ID        string         `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Review classification
	Kind   ReviewKind   `gorm:"size:20;not null;default:initial;index" json:"kind"`
	Status ReviewStatus `gorm:"size:50;not null;default:pending;index" json:"status"`

	// Pull request identification. Provider is one of github, gitlab,
	// gitea or backlog. ProjectKey is the repository owner, group path
	// or project key depending on the provider.
	Provider   string `gorm:"size:50;not null;index" json:"provider"`
	ProjectKey string `gorm:"size:255;not null;index" json:"project_key"`
	RepoName   string `gorm:"size:255;not null;index" json:"repo_name"`
	PRNumber   int    `gorm:"not null;index" json:"pr_number"`
	PRURL      string `gorm:"size:512" json:"pr_url,omitempty"`
	PRTitle    string `gorm:"size:512" json:"pr_title,omitempty"`
	Author     string `gorm:"size:255" json:"author,omitempty"`

	// Trigger information
	Source           string `gorm:"size:50;not null;default:webhook" json:"source"` // webhook, reconcile, api
	TriggeredBy      string `gorm:"size:255" json:"triggered_by,omitempty"`         // login of the commenter
	TriggerCommentID int64  `gorm:"default:0" json:"trigger_comment_id"`            // 0 when not comment-triggered

	// Submission linkage
	SubmissionID string `gorm:"size:20;index" json:"submission_id,omitempty"`

	// Posted result
	CommentID     int64 `gorm:"default:0" json:"comment_id"`     // provider comment id of the posted review
	FindingsCount int   `gorm:"default:0" json:"findings_count"`

	// Agent information
	Agent string `gorm:"size:100" json:"agent,omitempty"`

	// Timing
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Duration    int64      `json:"duration,omitempty"` // milliseconds

	// Error handling
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	// Relations
	Findings []Finding `gorm:"foreignKey:ReviewID" json:"findings,omitempty"`
}

// SubmissionStatus represents the status of a queued submission
type SubmissionStatus string

const (
	SubmissionStatusSubmitted  SubmissionStatus = "submitted"
	SubmissionStatusProcessing SubmissionStatus = "processing"
	SubmissionStatusReviewed   SubmissionStatus = "reviewed"
	SubmissionStatusFailed     SubmissionStatus = "failed"
)

// Submission is the unit of work processed by the review queue.
// It snapshots the pull request diff at trigger time so a queued review
// is not affected by later pushes.
type Submission struct {
	ID        string         `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Association
	ReviewID string `gorm:"size:20;not null;index" json:"review_id"`

	// Pull request identification (denormalized for the engine)
	Provider   string `gorm:"size:50;not null" json:"provider"`
	ProjectKey string `gorm:"size:255;not null" json:"project_key"`
	RepoName   string `gorm:"size:255;not null" json:"repo_name"`
	PRNumber   int    `gorm:"not null" json:"pr_number"`

	// Status
	Status SubmissionStatus `gorm:"size:50;not null;default:submitted;index" json:"status"`

	// Diff snapshot in unified format
	DiffText string `gorm:"type:text" json:"-"`

	// Diff statistics
	LinesAdded   int `gorm:"default:0" json:"lines_added"`
	LinesDeleted int `gorm:"default:0" json:"lines_deleted"`
	FilesChanged int `gorm:"default:0" json:"files_changed"`

	// Error handling
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`
}

// FindingSeverity represents the severity level of a finding
type FindingSeverity string

const (
	SeverityCritical FindingSeverity = "critical"
	SeverityHigh     FindingSeverity = "high"
	SeverityMedium   FindingSeverity = "medium"
	SeverityLow      FindingSeverity = "low"
	SeverityInfo     FindingSeverity = "info"
)

// Finding represents a single issue reported by a review
type Finding struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Association
	ReviewID string `gorm:"size:20;not null;index" json:"review_id"`

	// Location
	File string `gorm:"size:1024" json:"file,omitempty"`
	Line int    `gorm:"default:0" json:"line,omitempty"`

	// Classification
	Severity FindingSeverity `gorm:"size:20;not null;default:info;index" json:"severity"`
	Category string          `gorm:"size:100;index" json:"category,omitempty"`         // e.g. security, performance, style

	// Content
	Message    string `gorm:"type:text;not null" json:"message"`
	Suggestion string `gorm:"type:text" json:"suggestion,omitempty"`
}

// ReviewHistoryEntry records one completed review of a tracked pull request
type ReviewHistoryEntry struct {
	ReviewID      string    `json:"reviewId"`
	Date          time.Time `json:"date"`
	CommentsCount int       `json:"commentsCount"`
	CommentID     int64     `json:"commentId"`     // 0 when the review was not comment-triggered
}

// ReviewHistory is an append-only list of review history entries stored as JSON
type ReviewHistory []ReviewHistoryEntry

// Value implements driver.Valuer interface
func (h ReviewHistory) Value() (driver.Value, error) {
	if len(h) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(h)
	return string(data), err
}

// Scan implements sql.Scanner interface
func (h *ReviewHistory) Scan(value interface{}) error {
	if value == nil {
		*h = ReviewHistory{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	}
	return json.Unmarshal(bytes, h)
}

// Int64Set is a grow-only set of int64 values stored as a JSON array
type Int64Set []int64

// Value implements driver.Valuer interface
func (s Int64Set) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	return string(data), err
}

// Scan implements sql.Scanner interface
func (s *Int64Set) Scan(value interface{}) error {
	if value == nil {
		*s = Int64Set{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	}
	return json.Unmarshal(bytes, s)
}

// Contains reports whether id is in the set
func (s Int64Set) Contains(id int64) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Add returns the set with id included. Adding an existing id is a no-op.
func (s Int64Set) Add(id int64) Int64Set {
	if s.Contains(id) {
		return s
	}
	return append(s, id)
}

// PullRequestTrack records which pull requests have been processed.
// One row exists per (provider, project, repo, PR number) combination and
// rows are never deleted; history and comment ids only grow.
type PullRequestTrack struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Pull request identification (composite unique key)
	Provider   string `gorm:"size:50;not null;index" json:"provider"`
	ProjectKey string `gorm:"size:255;not null;uniqueIndex:idx_track_pr,priority:1" json:"project_key"`
	RepoName   string `gorm:"size:255;not null;uniqueIndex:idx_track_pr,priority:2" json:"repo_name"`
	PRNumber   int    `gorm:"not null;uniqueIndex:idx_track_pr,priority:3" json:"pr_number"`

	// Processing state. ProcessedAt is set the first time the pull request
	// is accepted for review, LastReviewAt on every accepted review.
	ProcessedAt  time.Time `json:"processed_at"`
	LastReviewAt time.Time `json:"last_review_at"`
	ReviewCount  int       `gorm:"default:0" json:"review_count"`

	// Review history, one entry per accepted review
	ReviewHistory ReviewHistory `gorm:"type:json" json:"review_history"`

	// Comment ids that have already triggered a review
	ProcessedCommentIDs Int64Set `gorm:"type:json" json:"processed_comment_ids"`
}

// AllModels returns all models for auto-migration
func AllModels() []interface{} {
	return []interface{}{
		&Review{},
		&Submission{},
		&Finding{},
		&PullRequestTrack{},
	}
}
