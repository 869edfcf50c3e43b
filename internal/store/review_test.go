package store

import (
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/reviewpilot/reviewpilot/internal/model"
)

// mustGetReview reloads a review by id, failing the test on any error
func mustGetReview(t *testing.T, s Store, id string) *model.Review {
	t.Helper()
	r, err := s.Review().GetByID(id)
	if err != nil {
		t.Fatalf("GetByID(%s) failed: %v", id, err)
	}
	return r
}

func TestReviewStore_Create(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	review := &model.Review{
		ID:         "test-review-001",
		Kind:       model.ReviewKindInitial,
		Status:     model.ReviewStatusPending,
		Provider:   "github",
		ProjectKey: "acme",
		RepoName:   "widget",
		PRNumber:   42,
		PRURL:      "https://github.com/acme/widget/pull/42",
		Source:     "webhook",
	}
	if err := store.Review().Create(review); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	got := mustGetReview(t, store, "test-review-001")
	if got.ProjectKey != "acme" || got.RepoName != "widget" {
		t.Errorf("repo = %s/%s, want acme/widget", got.ProjectKey, got.RepoName)
	}
	if got.PRNumber != 42 {
		t.Errorf("PRNumber = %d, want 42", got.PRNumber)
	}
}

func TestReviewStore_GetByID_NotFound(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	review := CreateTestReview(t, store)
	if got := mustGetReview(t, store, review.ID); got.ID != review.ID {
		t.Errorf("ID = %s, want %s", got.ID, review.ID)
	}

	_, err := store.Review().GetByID("non-existent")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("GetByID(non-existent) = %v, want gorm.ErrRecordNotFound", err)
	}
}

func TestReviewStore_GetByIDWithFindings(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	review := CreateTestReview(t, store)

	findings := []model.Finding{
		{ReviewID: review.ID, Severity: model.SeverityHigh, Message: "unchecked error"},
		{ReviewID: review.ID, Severity: model.SeverityLow, Message: "typo in comment"},
	}
	if err := store.Finding().BatchCreate(findings); err != nil {
		t.Fatalf("BatchCreate() failed: %v", err)
	}

	got, err := store.Review().GetByIDWithFindings(review.ID)
	if err != nil {
		t.Fatalf("GetByIDWithFindings() failed: %v", err)
	}
	if len(got.Findings) != 2 {
		t.Errorf("len(Findings) = %d, want 2", len(got.Findings))
	}
}

func TestReviewStore_GetBySubmissionID(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	review := CreateTestReview(t, store)
	submission := CreateTestSubmission(t, store, review.ID)

	review.SubmissionID = submission.ID
	if err := store.Review().Save(review); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := store.Review().GetBySubmissionID(submission.ID)
	if err != nil {
		t.Fatalf("GetBySubmissionID() failed: %v", err)
	}
	if got.ID != review.ID {
		t.Errorf("review = %s, want %s", got.ID, review.ID)
	}
}

func TestReviewStore_StatusTransitions(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	review := CreateTestReview(t, store)

	startedAt := time.Now()
	if err := store.Review().MarkInProgress(review.ID, startedAt); err != nil {
		t.Fatalf("MarkInProgress() failed: %v", err)
	}

	got := mustGetReview(t, store, review.ID)
	if got.Status != model.ReviewStatusInProgress {
		t.Errorf("Status = %s, want in_progress", got.Status)
	}
	if got.StartedAt == nil {
		t.Error("StartedAt should be set")
	}

	completedAt := startedAt.Add(30 * time.Second)
	if err := store.Review().MarkReviewed(review.ID, 1001, 3, completedAt); err != nil {
		t.Fatalf("MarkReviewed() failed: %v", err)
	}

	got = mustGetReview(t, store, review.ID)
	if got.Status != model.ReviewStatusReviewed {
		t.Errorf("Status = %s, want reviewed", got.Status)
	}
	if got.CommentID != 1001 {
		t.Errorf("CommentID = %d, want 1001", got.CommentID)
	}
	if got.FindingsCount != 3 {
		t.Errorf("FindingsCount = %d, want 3", got.FindingsCount)
	}
	if got.Duration <= 0 {
		t.Errorf("Duration = %d, want > 0", got.Duration)
	}
}

func TestReviewStore_MarkFailed(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	review := CreateTestReview(t, store)

	if err := store.Review().MarkFailed(review.ID, "agent timed out"); err != nil {
		t.Fatalf("MarkFailed() failed: %v", err)
	}

	got := mustGetReview(t, store, review.ID)
	if got.Status != model.ReviewStatusFailed {
		t.Errorf("Status = %s, want failed", got.Status)
	}
	if got.ErrorMessage != "agent timed out" {
		t.Errorf("ErrorMessage = %q, want %q", got.ErrorMessage, "agent timed out")
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set on failure")
	}
}

func TestReviewStore_List(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	CreateTestReview(t, store)
	for range 2 {
		CreateTestReview(t, store, func(r *model.Review) {
			r.Status = model.ReviewStatusReviewed
		})
	}

	cases := []struct {
		name      string
		status    string
		limit     int
		wantTotal int64
		wantLen   int
	}{
		{"all", "", 10, 3, 3},
		{"filtered by status", "reviewed", 10, 2, 2},
		{"paginated", "", 2, 3, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reviews, total, err := store.Review().List(tc.status, tc.limit, 0)
			if err != nil {
				t.Fatalf("List(%q, %d, 0) failed: %v", tc.status, tc.limit, err)
			}
			if total != tc.wantTotal || len(reviews) != tc.wantLen {
				t.Errorf("List(%q) total=%d len=%d, want total=%d len=%d",
					tc.status, total, len(reviews), tc.wantTotal, tc.wantLen)
			}
		})
	}
}

func TestReviewStore_ListByPR(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	CreateTestReview(t, store, func(r *model.Review) { r.PRNumber = 7 })
	CreateTestReview(t, store, func(r *model.Review) {
		r.PRNumber = 7
		r.Kind = model.ReviewKindReReview
	})
	CreateTestReview(t, store, func(r *model.Review) { r.PRNumber = 8 })

	reviews, err := store.Review().ListByPR("github", "acme", "widget", 7)
	if err != nil {
		t.Fatalf("ListByPR() failed: %v", err)
	}
	if len(reviews) != 2 {
		t.Errorf("len = %d, want 2 reviews for PR 7", len(reviews))
	}
}

func TestReviewStore_Counts(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	CreateTestReview(t, store)
	CreateTestReview(t, store, func(r *model.Review) {
		r.Status = model.ReviewStatusReviewed
	})

	if total, err := store.Review().CountAll(); err != nil || total != 2 {
		t.Errorf("CountAll() = %d, %v, want 2, nil", total, err)
	}
	if n, err := store.Review().CountByStatus(model.ReviewStatusReviewed); err != nil || n != 1 {
		t.Errorf("CountByStatus(reviewed) = %d, %v, want 1, nil", n, err)
	}
	if n, err := store.Review().CountCreatedAfter(time.Now().Add(-time.Hour)); err != nil || n != 2 {
		t.Errorf("CountCreatedAfter(-1h) = %d, %v, want 2, nil", n, err)
	}
}
