// Package tracker records which pull requests and trigger comments have
// already caused a review. It is the single source of truth for the
// "initial review or re-review or skip" decision and for the per-PR
// review history.
package tracker

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reviewpilot/reviewpilot/internal/model"
	"github.com/reviewpilot/reviewpilot/internal/store"
	"github.com/reviewpilot/reviewpilot/pkg/errors"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
	"github.com/reviewpilot/reviewpilot/pkg/telemetry"
)

// Decision is the outcome of a ShouldProcess call.
type Decision struct {
	// Proceed is true when a review should be started.
	Proceed bool

	// Kind distinguishes the first review of a PR from a re-review.
	// Only meaningful when Proceed is true.
	Kind model.ReviewKind

	// Reason explains a skip, for logging and the decision metric.
	Reason string

	// Record is the existing tracker record, nil when the PR has never
	// been processed. Carried so callers can reuse prior history.
	Record *model.PullRequestTrack
}

// HistoryView is the read-only projection of one PR's review history.
type HistoryView struct {
	Count        int                 `json:"count"`
	LastReviewAt time.Time           `json:"lastReviewAt"`
	History      model.ReviewHistory `json:"history"`
}

// Tracker implements the PR processing ledger on top of the store.
type Tracker struct {
	store store.Store
}

// New creates a Tracker backed by the given store.
func New(st store.Store) *Tracker {
	return &Tracker{store: st}
}

// ShouldProcess decides whether a trigger for the given PR should start a
// review. commentID is the provider comment id that carried the trigger
// mention, or 0 for poll-driven checks (startup scan, reconciliation).
//
// With no comment id the PR proceeds only if it has never been processed:
// polling exists to catch PRs that predate the trigger mechanism and never
// re-reviews a PR that already has a record, regardless of new activity.
// With a comment id the PR is skipped only if that exact comment was seen
// before, so webhook redeliveries are no-ops while genuinely new trigger
// comments start a re-review.
func (t *Tracker) ShouldProcess(ctx context.Context, projectKey, repoName string, prNumber int, commentID int64) (*Decision, error) {
	record, err := t.store.Track().Get(projectKey, repoName, prNumber)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to read tracker record", err)
	}

	decision := t.decide(record, commentID)

	metrics := telemetry.GetMetrics()
	if decision.Proceed {
		if decision.Kind == model.ReviewKindReReview {
			metrics.RecordTrackerDecision(ctx, "re_review")
		} else {
			metrics.RecordTrackerDecision(ctx, "initial_review")
		}
	} else {
		metrics.RecordTrackerDecision(ctx, "skip")
	}

	logger.Debug("Tracker decision",
		zap.String("project", projectKey),
		zap.String("repo", repoName),
		zap.Int("pr_number", prNumber),
		zap.Int64("comment_id", commentID),
		zap.Bool("proceed", decision.Proceed),
		zap.String("kind", string(decision.Kind)),
		zap.String("reason", decision.Reason),
	)

	return decision, nil
}

// decide derives the decision from the record and comment id.
func (t *Tracker) decide(record *model.PullRequestTrack, commentID int64) *Decision {
	if record == nil {
		// First-ever processing of this PR
		return &Decision{Proceed: true, Kind: model.ReviewKindInitial}
	}

	if commentID == 0 {
		// Poll-driven check on an already processed PR
		return &Decision{
			Proceed: false,
			Reason:  "already_processed",
			Record:  record,
		}
	}

	if record.ProcessedCommentIDs.Contains(commentID) {
		// Webhook redelivery of a comment that already triggered a review
		return &Decision{
			Proceed: false,
			Reason:  "comment_already_seen",
			Record:  record,
		}
	}

	// New trigger comment on a tracked PR
	return &Decision{
		Proceed: true,
		Kind:    model.ReviewKindReReview,
		Record:  record,
	}
}

// MarkProcessed records an accepted review trigger for the given PR.
// It creates the tracker record if absent and otherwise appends to it:
// review count incremented, one history entry added, and the comment id
// (when non-zero) added to the processed set. The whole update runs in a
// single transaction so the history, count and comment set never diverge.
func (t *Tracker) MarkProcessed(ctx context.Context, provider, projectKey, repoName string, prNumber int, reviewID string, commentsCount int, commentID int64) error {
	_, span := telemetry.StartSpan(ctx, "tracker.markProcessed")
	defer span.End()

	now := time.Now()
	entry := model.ReviewHistoryEntry{
		ReviewID:      reviewID,
		Date:          now,
		CommentsCount: commentsCount,
		CommentID:     commentID,
	}

	err := t.store.Transaction(func(tx store.Store) error {
		record, err := tx.Track().Get(projectKey, repoName, prNumber)
		if err != nil && err != gorm.ErrRecordNotFound {
			return err
		}

		if record == nil {
			record = &model.PullRequestTrack{
				Provider:            provider,
				ProjectKey:          projectKey,
				RepoName:            repoName,
				PRNumber:            prNumber,
				ProcessedAt:         now,
				LastReviewAt:        now,
				ReviewCount:         1,
				ReviewHistory:       model.ReviewHistory{entry},
				ProcessedCommentIDs: model.Int64Set{},
			}
			if commentID != 0 {
				record.ProcessedCommentIDs = record.ProcessedCommentIDs.Add(commentID)
			}
			return tx.Track().Create(record)
		}

		record.ReviewCount++
		record.LastReviewAt = now
		record.ReviewHistory = append(record.ReviewHistory, entry)
		if commentID != 0 {
			record.ProcessedCommentIDs = record.ProcessedCommentIDs.Add(commentID)
		}
		return tx.Track().Save(record)
	})
	if err != nil {
		telemetry.SetSpanError(span, err)
		return errors.Wrap(errors.ErrCodeTrackerWrite, "failed to mark PR as processed", err)
	}

	logger.Info("PR marked as processed",
		zap.String("provider", provider),
		zap.String("project", projectKey),
		zap.String("repo", repoName),
		zap.Int("pr_number", prNumber),
		zap.String("review_id", reviewID),
		zap.Int64("comment_id", commentID),
	)

	return nil
}

// GetHistory returns the review history projection for one PR, or nil if
// the PR has never been processed.
func (t *Tracker) GetHistory(ctx context.Context, projectKey, repoName string, prNumber int) (*HistoryView, error) {
	record, err := t.store.Track().Get(projectKey, repoName, prNumber)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to read tracker record", err)
	}

	return &HistoryView{
		Count:        record.ReviewCount,
		LastReviewAt: record.LastReviewAt,
		History:      record.ReviewHistory,
	}, nil
}
