// Package orchestrator connects review triggers to the pipeline. It
// turns webhook events, reconciliation hits and manual API calls into
// Review/Submission records and hands the submission to the queue. All
// paths return quickly; review execution is asynchronous.
package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot/internal/git/gitcmd"
	"github.com/reviewpilot/reviewpilot/internal/git/provider"
	"github.com/reviewpilot/reviewpilot/internal/git/prurl"
	"github.com/reviewpilot/reviewpilot/internal/mention"
	"github.com/reviewpilot/reviewpilot/internal/model"
	"github.com/reviewpilot/reviewpilot/internal/output"
	"github.com/reviewpilot/reviewpilot/internal/store"
	"github.com/reviewpilot/reviewpilot/internal/tracker"
	"github.com/reviewpilot/reviewpilot/pkg/errors"
	"github.com/reviewpilot/reviewpilot/pkg/idgen"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
	"github.com/reviewpilot/reviewpilot/pkg/telemetry"
)

// ReviewEnqueuer accepts submissions for asynchronous review.
type ReviewEnqueuer interface {
	Enqueue(submissionID string) error
	AgentName() string
}

// ProviderResolver resolves a configured Git provider by name.
type ProviderResolver interface {
	Get(name string) provider.Provider
}

// Orchestrator decides whether a trigger starts a review and creates
// the records when it does.
type Orchestrator struct {
	store     store.Store
	providers ProviderResolver
	tracker   *tracker.Tracker
	engine    ReviewEnqueuer
	detector  *mention.Detector
}

// New creates an Orchestrator. The detector falls back to the default
// trigger mention when trigger is empty.
func New(st store.Store, providers ProviderResolver, trk *tracker.Tracker, engine ReviewEnqueuer, trigger string) *Orchestrator {
	detector := mention.Default
	if trigger != "" {
		detector = mention.New(trigger)
	}
	return &Orchestrator{
		store:     st,
		providers: providers,
		tracker:   trk,
		engine:    engine,
		detector:  detector,
	}
}

// Trigger returns the mention that starts a review.
func (o *Orchestrator) Trigger() string {
	return o.detector.Trigger()
}

// startParams carries the accepted-trigger context into startReview.
type startParams struct {
	provider    string
	projectKey  string
	repoName    string
	prNumber    int
	kind        model.ReviewKind
	source      string
	commentID   int64
	triggeredBy string
}

// HandleWebhookEvent routes a parsed webhook event. It returns the
// created review, or nil when the event was skipped.
func (o *Orchestrator) HandleWebhookEvent(ctx context.Context, event *provider.WebhookEvent) (*model.Review, error) {
	switch event.Type {
	case provider.EventTypeComment:
		return o.handleCommentEvent(ctx, event)
	case provider.EventTypePullRequest, provider.EventTypeMergeRequest:
		return o.handlePREvent(ctx, event)
	default:
		logger.Debug("Ignoring webhook event of unhandled type",
			zap.String("provider", event.Provider),
			zap.String("type", string(event.Type)),
		)
		return nil, nil
	}
}

// handleCommentEvent processes a PR comment. The comment must carry the
// trigger mention, must not be one of the pipeline's own comments, and
// its id must not have been processed before.
func (o *Orchestrator) handleCommentEvent(ctx context.Context, event *provider.WebhookEvent) (*model.Review, error) {
	if output.HasMarker(event.CommentBody) {
		logger.Debug("Ignoring comment posted by the pipeline itself",
			zap.String("provider", event.Provider),
			zap.Int64("comment_id", event.CommentID),
		)
		return nil, nil
	}

	if !o.detector.Detect(event.CommentBody) {
		return nil, nil
	}

	decision, err := o.tracker.ShouldProcess(ctx, event.ProjectKey, event.RepoName, event.PRNumber, event.CommentID)
	if err != nil {
		return nil, err
	}
	if !decision.Proceed {
		logger.Info("Trigger comment skipped",
			zap.String("provider", event.Provider),
			zap.String("repo", event.ProjectKey+"/"+event.RepoName),
			zap.Int("pr_number", event.PRNumber),
			zap.Int64("comment_id", event.CommentID),
			zap.String("reason", decision.Reason),
		)
		return nil, nil
	}

	return o.startReview(ctx, startParams{
		provider:    event.Provider,
		projectKey:  event.ProjectKey,
		repoName:    event.RepoName,
		prNumber:    event.PRNumber,
		kind:        decision.Kind,
		source:      model.ReviewSourceWebhook,
		commentID:   event.CommentID,
		triggeredBy: event.Sender,
	})
}

// handlePREvent processes a PR lifecycle event. Only actions that can
// start a review are considered, and the trigger mention must appear in
// the PR description. The tracker is consulted with comment id 0, so a
// PR that was already processed is never re-triggered by later edits.
func (o *Orchestrator) handlePREvent(ctx context.Context, event *provider.WebhookEvent) (*model.Review, error) {
	if !provider.ShouldProcessPREvent(event.Action) {
		return nil, nil
	}

	if !o.detector.Detect(event.PRDescription) {
		return nil, nil
	}

	decision, err := o.tracker.ShouldProcess(ctx, event.ProjectKey, event.RepoName, event.PRNumber, 0)
	if err != nil {
		return nil, err
	}
	if !decision.Proceed {
		logger.Debug("PR event skipped",
			zap.String("provider", event.Provider),
			zap.String("repo", event.ProjectKey+"/"+event.RepoName),
			zap.Int("pr_number", event.PRNumber),
			zap.String("reason", decision.Reason),
		)
		return nil, nil
	}

	return o.startReview(ctx, startParams{
		provider:    event.Provider,
		projectKey:  event.ProjectKey,
		repoName:    event.RepoName,
		prNumber:    event.PRNumber,
		kind:        decision.Kind,
		source:      model.ReviewSourceWebhook,
		commentID:   0,
		triggeredBy: event.Sender,
	})
}

// ReviewOpenPR processes one open PR found by a reconciliation scan.
// The tracker is consulted with comment id 0: only PRs with no record
// at all proceed, so reconciliation reviews each PR at most once in
// its lifetime.
func (o *Orchestrator) ReviewOpenPR(ctx context.Context, providerName, projectKey, repoName string, prNumber int) (*model.Review, error) {
	decision, err := o.tracker.ShouldProcess(ctx, projectKey, repoName, prNumber, 0)
	if err != nil {
		return nil, err
	}
	if !decision.Proceed {
		return nil, nil
	}

	return o.startReview(ctx, startParams{
		provider:   providerName,
		projectKey: projectKey,
		repoName:   repoName,
		prNumber:   prNumber,
		kind:       decision.Kind,
		source:     model.ReviewSourceReconcile,
	})
}

// ReviewFromURL starts a review from a manually submitted PR URL.
// Manual triggers express operator intent, so they bypass the
// once-per-lifetime gate: a tracked PR gets a re-review instead of a
// skip. The history entry is recorded with comment id 0.
func (o *Orchestrator) ReviewFromURL(ctx context.Context, prURL, triggeredBy string) (*model.Review, error) {
	info, err := prurl.Parse(prURL)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, "invalid pull request URL", err).WithDetails(prURL)
	}

	if o.providers.Get(info.Provider) == nil {
		return nil, errors.Newf(errors.ErrCodeProviderNotFound, "provider %s is not configured", info.Provider)
	}

	history, err := o.tracker.GetHistory(ctx, info.ProjectKey, info.RepoName, info.Number)
	if err != nil {
		return nil, err
	}
	kind := model.ReviewKindInitial
	if history != nil && history.Count > 0 {
		kind = model.ReviewKindReReview
	}

	return o.startReview(ctx, startParams{
		provider:    info.Provider,
		projectKey:  info.ProjectKey,
		repoName:    info.RepoName,
		prNumber:    info.Number,
		kind:        kind,
		source:      model.ReviewSourceAPI,
		triggeredBy: triggeredBy,
	})
}

// startReview runs the accepted-trigger path: fetch PR context and
// diff, create the Review and Submission records, mark the PR as
// processed, then enqueue. Marking happens before enqueueing so a
// crash cannot process the same trigger twice.
func (o *Orchestrator) startReview(ctx context.Context, p startParams) (*model.Review, error) {
	ctx, span := telemetry.StartSpan(ctx, "orchestrator.startReview")
	defer span.End()

	prov := o.providers.Get(p.provider)
	if prov == nil {
		err := fmt.Errorf("provider %s is not configured", p.provider)
		telemetry.SetSpanError(span, err)
		return nil, err
	}

	pr, err := prov.GetPullRequest(ctx, p.projectKey, p.repoName, p.prNumber)
	if err != nil {
		telemetry.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to fetch pull request %s/%s#%d: %w", p.projectKey, p.repoName, p.prNumber, err)
	}

	commentsCount := 0
	comments, err := prov.ListComments(ctx, p.projectKey, p.repoName, p.prNumber)
	if err != nil {
		// The count only feeds the history snapshot, so a listing
		// failure does not abort the review.
		logger.Warn("Failed to list PR comments",
			zap.String("repo", p.projectKey+"/"+p.repoName),
			zap.Int("pr_number", p.prNumber),
			zap.Error(err),
		)
	} else {
		commentsCount = len(comments)
	}

	diff, err := prov.GetDiff(ctx, p.projectKey, p.repoName, p.prNumber)
	if err != nil {
		telemetry.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to fetch diff for %s/%s#%d: %w", p.projectKey, p.repoName, p.prNumber, err)
	}
	if diff == "" {
		logger.Warn("Pull request has an empty diff, skipping review",
			zap.String("repo", p.projectKey+"/"+p.repoName),
			zap.Int("pr_number", p.prNumber),
		)
		return nil, nil
	}

	stats := gitcmd.ParseDiffStats(diff)

	review := &model.Review{
		ID:               idgen.NewReviewID(),
		Kind:             p.kind,
		Status:           model.ReviewStatusPending,
		Provider:         p.provider,
		ProjectKey:       p.projectKey,
		RepoName:         p.repoName,
		PRNumber:         p.prNumber,
		PRURL:            pr.URL,
		PRTitle:          pr.Title,
		Author:           pr.Author,
		Source:           p.source,
		TriggeredBy:      p.triggeredBy,
		TriggerCommentID: p.commentID,
		Agent:            o.engine.AgentName(),
	}
	submission := &model.Submission{
		ID:           idgen.NewSubmissionID(),
		ReviewID:     review.ID,
		Provider:     p.provider,
		ProjectKey:   p.projectKey,
		RepoName:     p.repoName,
		PRNumber:     p.prNumber,
		Status:       model.SubmissionStatusSubmitted,
		DiffText:     diff,
		LinesAdded:   stats.LinesAdded,
		LinesDeleted: stats.LinesDeleted,
		FilesChanged: stats.FilesChanged,
	}

	err = o.store.Transaction(func(tx store.Store) error {
		if err := tx.Review().Create(review); err != nil {
			return err
		}
		if err := tx.Submission().Create(submission); err != nil {
			return err
		}
		review.SubmissionID = submission.ID
		return tx.Review().Save(review)
	})
	if err != nil {
		telemetry.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to create review records: %w", err)
	}

	if err := o.tracker.MarkProcessed(ctx, p.provider, p.projectKey, p.repoName, p.prNumber, review.ID, commentsCount, p.commentID); err != nil {
		o.failReview(review.ID, err)
		telemetry.SetSpanError(span, err)
		return nil, err
	}

	if err := o.engine.Enqueue(submission.ID); err != nil {
		o.failReview(review.ID, err)
		telemetry.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to enqueue submission %s: %w", submission.ID, err)
	}

	telemetry.SetSpanAttributes(span,
		telemetry.AttrReviewID.String(review.ID),
		telemetry.AttrRepoProvider.String(p.provider),
	)
	telemetry.SetSpanOK(span)

	logger.Info("Review created and enqueued",
		zap.String("review_id", review.ID),
		zap.String("submission_id", submission.ID),
		zap.String("kind", string(p.kind)),
		zap.String("source", p.source),
		zap.String("repo", p.projectKey+"/"+p.repoName),
		zap.Int("pr_number", p.prNumber),
	)

	return review, nil
}

// failReview marks a review failed after its records were committed but
// a later step broke, so it does not dangle as pending forever.
func (o *Orchestrator) failReview(reviewID string, cause error) {
	if err := o.store.Review().MarkFailed(reviewID, cause.Error()); err != nil {
		logger.Error("Failed to mark review failed",
			zap.String("review_id", reviewID),
			zap.Error(err),
		)
	}
}
