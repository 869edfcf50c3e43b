// Test helpers shared by every package that needs a real database.
// They live in the non-test tree so sibling packages can import them.
package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/reviewpilot/reviewpilot/internal/database"
	"github.com/reviewpilot/reviewpilot/internal/model"
	"github.com/reviewpilot/reviewpilot/pkg/idgen"
)

// openTestDB initializes a fresh SQLite database under t.TempDir and
// returns the connection plus a teardown that re-arms database.Init for
// the next test. File removal rides on t.TempDir.
func openTestDB(t *testing.T) (*gorm.DB, func()) {
	t.Helper()

	database.ResetForTesting()

	tmpPath := filepath.Join(t.TempDir(), "store_test.db")
	if err := database.InitWithPath(tmpPath); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	return database.Get(), func() {
		database.Close()
		database.ResetForTesting()
		os.Remove(tmpPath)
	}
}

// SetupTestDB creates a temporary SQLite database for testing.
// It returns a Store instance and a cleanup function.
// The cleanup function should be called with defer in tests.
func SetupTestDB(t *testing.T) (Store, func()) {
	db, cleanup := openTestDB(t)
	return NewStore(db), cleanup
}

// SetupTestDBWithModels creates a temporary SQLite database and runs migrations.
// This is a convenience function for tests that need the raw connection.
func SetupTestDBWithModels(t *testing.T) (*gorm.DB, func()) {
	db, cleanup := openTestDB(t)

	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		cleanup()
		t.Fatalf("Failed to migrate models: %v", err)
	}

	return db, cleanup
}

// CreateTestReview creates a test Review with default values.
// Fields can be overridden by passing a function that modifies the review.
func CreateTestReview(t *testing.T, store Store, overrides ...func(*model.Review)) *model.Review {
	t.Helper()

	review := &model.Review{
		ID:         idgen.NewReviewID(),
		Kind:       model.ReviewKindInitial,
		Status:     model.ReviewStatusPending,
		Provider:   "github",
		ProjectKey: "acme",
		RepoName:   "widget",
		PRNumber:   42,
		PRURL:      "https://github.com/acme/widget/pull/42",
		Source:     "webhook",
	}
	for _, override := range overrides {
		override(review)
	}

	if err := store.Review().Create(review); err != nil {
		t.Fatalf("Failed to create test review: %v", err)
	}
	return review
}

// CreateTestSubmission creates a test Submission with default values.
func CreateTestSubmission(t *testing.T, store Store, reviewID string, overrides ...func(*model.Submission)) *model.Submission {
	t.Helper()

	submission := &model.Submission{
		ID:         idgen.NewSubmissionID(),
		ReviewID:   reviewID,
		Provider:   "github",
		ProjectKey: "acme",
		RepoName:   "widget",
		PRNumber:   42,
		Status:     model.SubmissionStatusSubmitted,
		DiffText:   "diff --git a/main.go b/main.go\n+package main\n",
	}
	for _, override := range overrides {
		override(submission)
	}

	if err := store.Submission().Create(submission); err != nil {
		t.Fatalf("Failed to create test submission: %v", err)
	}
	return submission
}

// CreateTestTrack creates a test PullRequestTrack with default values.
func CreateTestTrack(t *testing.T, store Store, overrides ...func(*model.PullRequestTrack)) *model.PullRequestTrack {
	t.Helper()

	now := time.Now()
	track := &model.PullRequestTrack{
		Provider:     "github",
		ProjectKey:   "acme",
		RepoName:     "widget",
		PRNumber:     42,
		ProcessedAt:  now,
		LastReviewAt: now,
		ReviewCount:  1,
		ReviewHistory: model.ReviewHistory{
			{ReviewID: "rev-1", Date: now, CommentsCount: 0, CommentID: 0},
		},
		ProcessedCommentIDs: model.Int64Set{},
	}
	for _, override := range overrides {
		override(track)
	}

	if err := store.Track().Create(track); err != nil {
		t.Fatalf("Failed to create test track: %v", err)
	}
	return track
}
