// Package engine provides the asynchronous review pipeline for ReviewPilot.
// This file implements the Dispatcher that runs one submission through the
// configured agent and posts the result.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot/internal/agent/base"
	"github.com/reviewpilot/reviewpilot/internal/git/gitcmd"
	"github.com/reviewpilot/reviewpilot/internal/git/provider"
	"github.com/reviewpilot/reviewpilot/internal/model"
	"github.com/reviewpilot/reviewpilot/internal/output"
	"github.com/reviewpilot/reviewpilot/internal/prompt"
	"github.com/reviewpilot/reviewpilot/internal/store"
	"github.com/reviewpilot/reviewpilot/pkg/idgen"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
	"github.com/reviewpilot/reviewpilot/pkg/telemetry"
)

// Dispatcher executes review submissions. For each submission it builds a
// prompt from the stored diff snapshot, runs the configured agent, posts
// the review comment to the pull request and persists the findings.
type Dispatcher struct {
	store     store.Store
	providers ProviderResolver
	agent     base.Agent
	prompts   *prompt.Builder
	publisher *output.CommentPublisher
}

// NewDispatcher creates a dispatcher bound to a single agent.
func NewDispatcher(st store.Store, providers ProviderResolver, agent base.Agent, prompts *prompt.Builder) *Dispatcher {
	return &Dispatcher{
		store:     st,
		providers: providers,
		agent:     agent,
		prompts:   prompts,
		publisher: output.NewCommentPublisher(),
	}
}

// AgentName returns the name of the agent this dispatcher runs.
func (d *Dispatcher) AgentName() string {
	return d.agent.Name()
}

// Review runs one review attempt for a submission. An error marks both
// the submission and its review failed; the queue decides whether the
// attempt is retried. Comment delivery is not exactly-once: a crash
// between posting and persisting leads to a second comment on retry.
func (d *Dispatcher) Review(ctx context.Context, submission *model.Submission) error {
	ctx, span := telemetry.StartSpan(ctx, "review.execute",
		telemetry.WithReviewAttributes(submission.ReviewID, submission.Provider, submission.PRNumber))
	defer span.End()
	telemetry.SetSpanAttributes(span,
		telemetry.AttrAgentName.String(d.agent.Name()),
		telemetry.AttrRepoProject.String(submission.ProjectKey),
		telemetry.AttrRepoName.String(submission.RepoName),
	)

	review, err := d.store.Review().GetBySubmissionID(submission.ID)
	if err != nil {
		telemetry.SetSpanError(span, err)
		return fmt.Errorf("failed to load review for submission %s: %w", submission.ID, err)
	}

	prov := d.providers.Get(submission.Provider)
	if prov == nil {
		err := fmt.Errorf("provider %s is not configured", submission.Provider)
		d.markFailed(submission.ID, review.ID, err)
		telemetry.SetSpanError(span, err)
		return err
	}

	startedAt := time.Now()
	d.markStarted(submission.ID, review.ID, startedAt)

	metrics := telemetry.GetMetrics()
	metrics.RecordReviewStarted(ctx, submission.Provider, string(review.Kind))

	logger.Info("Dispatching submission to agent",
		zap.String("submission_id", submission.ID),
		zap.String("review_id", review.ID),
		zap.String("agent", d.agent.Name()),
		zap.String("provider", submission.Provider),
		zap.String("repo", submission.ProjectKey+"/"+submission.RepoName),
		zap.Int("pr_number", submission.PRNumber),
	)

	result, err := d.runAgent(ctx, submission, review, prov)
	if err != nil {
		d.markFailed(submission.ID, review.ID, err)
		metrics.RecordReviewCompleted(ctx, string(model.ReviewStatusFailed), time.Since(startedAt).Seconds())
		telemetry.SetSpanError(span, err)
		return err
	}

	commentID, err := d.publisher.Publish(ctx, prov, submission.ProjectKey, submission.RepoName, submission.PRNumber, result)
	if err != nil {
		d.markFailed(submission.ID, review.ID, err)
		metrics.RecordReviewCompleted(ctx, string(model.ReviewStatusFailed), time.Since(startedAt).Seconds())
		telemetry.SetSpanError(span, err)
		return err
	}

	if err := d.persistResult(submission.ID, review.ID, result, commentID); err != nil {
		d.markFailed(submission.ID, review.ID, err)
		metrics.RecordReviewCompleted(ctx, string(model.ReviewStatusFailed), time.Since(startedAt).Seconds())
		telemetry.SetSpanError(span, err)
		return err
	}

	d.recordFindings(ctx, result)
	metrics.RecordReviewCompleted(ctx, string(model.ReviewStatusReviewed), time.Since(startedAt).Seconds())
	telemetry.SetSpanAttributes(span,
		telemetry.AttrFindingsCount.Int(len(result.Findings)),
		telemetry.AttrReviewStatus.String(string(model.ReviewStatusReviewed)),
		telemetry.AttrDurationMs.Int64(time.Since(startedAt).Milliseconds()),
	)
	telemetry.SetSpanOK(span)

	logger.Info("Review completed",
		zap.String("submission_id", submission.ID),
		zap.String("review_id", review.ID),
		zap.String("agent", result.AgentName),
		zap.String("model", result.ModelName),
		zap.Int("findings", len(result.Findings)),
		zap.Int64("comment_id", commentID),
		zap.Duration("duration", time.Since(startedAt)),
	)
	return nil
}

// runAgent builds the review request and prompt and executes the agent.
func (d *Dispatcher) runAgent(ctx context.Context, submission *model.Submission, review *model.Review, prov provider.Provider) (*base.ReviewResult, error) {
	req := &base.ReviewRequest{
		Provider:     submission.Provider,
		ProjectKey:   submission.ProjectKey,
		RepoName:     submission.RepoName,
		PRNumber:     submission.PRNumber,
		PRTitle:      review.PRTitle,
		Diff:         submission.DiffText,
		ChangedFiles: gitcmd.ChangedFilePaths(submission.DiffText),
		RequestID:    idgen.NewRequestID(),
		ReviewID:     review.ID,
		SubmissionID: submission.ID,
	}

	// Fresh title and description improve the prompt context but the
	// stored snapshot is enough to review.
	if pr, err := prov.GetPullRequest(ctx, submission.ProjectKey, submission.RepoName, submission.PRNumber); err != nil {
		logger.Warn("Failed to fetch pull request details, continuing without description",
			zap.String("submission_id", submission.ID),
			zap.Error(err),
		)
	} else {
		req.PRTitle = pr.Title
		req.PRBody = pr.Description
	}

	promptText, err := d.prompts.Build(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build review prompt: %w", err)
	}
	req.Prompt = promptText

	result, err := d.agent.Review(ctx, req)
	telemetry.GetMetrics().RecordAgentExecution(ctx, d.agent.Name(), err == nil)
	if err != nil {
		return nil, fmt.Errorf("agent %s review failed: %w", d.agent.Name(), err)
	}
	return result, nil
}

// persistResult stores findings and final statuses in one transaction.
// Findings left over from an earlier failed attempt are replaced, not
// appended.
func (d *Dispatcher) persistResult(submissionID, reviewID string, result *base.ReviewResult, commentID int64) error {
	findings := make([]model.Finding, 0, len(result.Findings))
	for _, f := range result.Findings {
		findings = append(findings, model.Finding{
			ReviewID:   reviewID,
			File:       f.File,
			Line:       f.Line,
			Severity:   model.FindingSeverity(f.Severity),
			Category:   f.Category,
			Message:    f.Message,
			Suggestion: f.Suggestion,
		})
	}

	err := d.store.Transaction(func(tx store.Store) error {
		if err := tx.Finding().DeleteByReviewID(reviewID); err != nil {
			return err
		}
		if err := tx.Finding().BatchCreate(findings); err != nil {
			return err
		}
		if err := tx.Review().MarkReviewed(reviewID, commentID, len(findings), time.Now()); err != nil {
			return err
		}
		return tx.Submission().UpdateStatus(submissionID, model.SubmissionStatusReviewed)
	})
	if err != nil {
		return fmt.Errorf("failed to persist review result: %w", err)
	}
	return nil
}

// markStarted transitions the submission and review into their active
// states. Store failures here are logged but do not abort the attempt.
func (d *Dispatcher) markStarted(submissionID, reviewID string, startedAt time.Time) {
	if err := d.store.Submission().UpdateStatus(submissionID, model.SubmissionStatusProcessing); err != nil {
		logger.Warn("Failed to mark submission processing",
			zap.String("submission_id", submissionID),
			zap.Error(err),
		)
	}
	if err := d.store.Review().MarkInProgress(reviewID, startedAt); err != nil {
		logger.Warn("Failed to mark review in progress",
			zap.String("review_id", reviewID),
			zap.Error(err),
		)
	}
}

// markFailed records the failure on both rows. A later retry moves them
// back through processing, so failed is not a terminal state until the
// queue abandons the submission.
func (d *Dispatcher) markFailed(submissionID, reviewID string, cause error) {
	if err := d.store.Submission().UpdateStatusWithError(submissionID, model.SubmissionStatusFailed, cause.Error()); err != nil {
		logger.Error("Failed to mark submission failed",
			zap.String("submission_id", submissionID),
			zap.Error(err),
		)
	}
	if err := d.store.Review().MarkFailed(reviewID, cause.Error()); err != nil {
		logger.Error("Failed to mark review failed",
			zap.String("review_id", reviewID),
			zap.Error(err),
		)
	}
}

// recordFindings emits the per-severity findings metrics.
func (d *Dispatcher) recordFindings(ctx context.Context, result *base.ReviewResult) {
	counts := make(map[string]int64)
	for _, f := range result.Findings {
		counts[f.Severity]++
	}
	metrics := telemetry.GetMetrics()
	for severity, count := range counts {
		metrics.RecordFindings(ctx, severity, count)
	}
}
