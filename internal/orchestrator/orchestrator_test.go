package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/reviewpilot/reviewpilot/internal/git/provider"
	"github.com/reviewpilot/reviewpilot/internal/mention"
	"github.com/reviewpilot/reviewpilot/internal/model"
	"github.com/reviewpilot/reviewpilot/internal/output"
	"github.com/reviewpilot/reviewpilot/internal/store"
	"github.com/reviewpilot/reviewpilot/internal/tracker"
)

const testDiff = "diff --git a/main.go b/main.go\n--- a/main.go\n+++ b/main.go\n+package main\n"

// fakeProvider serves canned PR context.
type fakeProvider struct {
	pr       *provider.PullRequest
	diff     string
	comments []*provider.Comment

	prErr       error
	diffErr     error
	commentsErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		pr: &provider.PullRequest{
			Number:      42,
			Title:       "Add retry handling",
			Description: "Retries transient failures in the widget pipeline.",
			State:       "open",
			Author:      "dev1",
			URL:         "https://github.com/acme/widget/pull/42",
		},
		diff: testDiff,
		comments: []*provider.Comment{
			{ID: 101, Body: "Looks fine overall.", Author: "dev2"},
			{ID: 102, Body: "One nit inline.", Author: "dev3"},
		},
	}
}

func (p *fakeProvider) Name() string                        { return "github" }
func (p *fakeProvider) GetBaseURL() string                  { return "https://github.com" }
func (p *fakeProvider) MatchesURL(string) bool              { return false }
func (p *fakeProvider) ValidateToken(context.Context) error { return nil }

func (p *fakeProvider) GetPullRequest(ctx context.Context, projectKey, repoName string, number int) (*provider.PullRequest, error) {
	if p.prErr != nil {
		return nil, p.prErr
	}
	return p.pr, nil
}

func (p *fakeProvider) ListOpenPullRequests(ctx context.Context, projectKey, repoName string) ([]*provider.PullRequest, error) {
	return []*provider.PullRequest{p.pr}, nil
}

func (p *fakeProvider) GetDiff(ctx context.Context, projectKey, repoName string, number int) (string, error) {
	if p.diffErr != nil {
		return "", p.diffErr
	}
	return p.diff, nil
}

func (p *fakeProvider) ListComments(ctx context.Context, projectKey, repoName string, prNumber int) ([]*provider.Comment, error) {
	if p.commentsErr != nil {
		return nil, p.commentsErr
	}
	return p.comments, nil
}

func (p *fakeProvider) PostComment(ctx context.Context, projectKey, repoName string, prNumber int, body string) (int64, error) {
	return 0, errors.New("posting is not part of orchestration")
}

func (p *fakeProvider) ParseWebhook(r *http.Request, secret string) (*provider.WebhookEvent, error) {
	return nil, errors.New("parsing is not part of orchestration")
}

// fakeResolver resolves providers from a fixed map.
type fakeResolver map[string]provider.Provider

func (r fakeResolver) Get(name string) provider.Provider { return r[name] }

// fakeEnqueuer records enqueued submission ids.
type fakeEnqueuer struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (e *fakeEnqueuer) Enqueue(submissionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.ids = append(e.ids, submissionID)
	return nil
}

func (e *fakeEnqueuer) AgentName() string { return "mock" }

func (e *fakeEnqueuer) enqueued() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.ids...)
}

func newTestOrchestrator(st store.Store, prov provider.Provider) (*Orchestrator, *fakeEnqueuer) {
	eng := &fakeEnqueuer{}
	return New(st, fakeResolver{"github": prov}, tracker.New(st), eng, ""), eng
}

func commentEvent(body string, commentID int64) *provider.WebhookEvent {
	return &provider.WebhookEvent{
		Type:        provider.EventTypeComment,
		Provider:    "github",
		ProjectKey:  "acme",
		RepoName:    "widget",
		PRNumber:    42,
		CommentID:   commentID,
		CommentBody: body,
		Sender:      "dev1",
	}
}

func prEvent(action, description string) *provider.WebhookEvent {
	return &provider.WebhookEvent{
		Type:          provider.EventTypePullRequest,
		Provider:      "github",
		ProjectKey:    "acme",
		RepoName:      "widget",
		PRNumber:      42,
		Action:        action,
		PRTitle:       "Add retry handling",
		PRDescription: description,
		Sender:        "dev1",
	}
}

func countReviews(t *testing.T, st store.Store) int64 {
	t.Helper()
	n, err := st.Review().CountAll()
	if err != nil {
		t.Fatalf("CountAll() failed: %v", err)
	}
	return n
}

// TestNew_TriggerFallback tests that an empty trigger falls back to the
// built-in mention
func TestNew_TriggerFallback(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	o := New(st, fakeResolver{}, tracker.New(st), &fakeEnqueuer{}, "")
	if o.Trigger() != mention.DefaultTrigger {
		t.Errorf("Expected default trigger %s, got %s", mention.DefaultTrigger, o.Trigger())
	}

	o = New(st, fakeResolver{}, tracker.New(st), &fakeEnqueuer{}, "@CustomBot")
	if o.Trigger() != "@custombot" {
		t.Errorf("Expected normalized custom trigger, got %s", o.Trigger())
	}
}

// TestHandleCommentEvent_CreatesReview tests the full comment-trigger
// path: records created, tracker updated, submission enqueued
func TestHandleCommentEvent_CreatesReview(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	prov := newFakeProvider()
	o, eng := newTestOrchestrator(st, prov)
	ctx := context.Background()

	review, err := o.HandleWebhookEvent(ctx, commentEvent("@reviewpilot please take a look", 555))
	if err != nil {
		t.Fatalf("HandleWebhookEvent() failed: %v", err)
	}
	if review == nil {
		t.Fatal("Expected a review to be created")
	}

	if review.Kind != model.ReviewKindInitial {
		t.Errorf("Expected kind initial, got %s", review.Kind)
	}
	if review.Source != model.ReviewSourceWebhook {
		t.Errorf("Expected source webhook, got %s", review.Source)
	}
	if review.TriggerCommentID != 555 {
		t.Errorf("Expected trigger comment id 555, got %d", review.TriggerCommentID)
	}
	if review.TriggeredBy != "dev1" {
		t.Errorf("Expected triggered_by dev1, got %s", review.TriggeredBy)
	}
	if review.PRTitle != "Add retry handling" || review.Author != "dev1" {
		t.Errorf("PR context not captured: title=%q author=%q", review.PRTitle, review.Author)
	}
	if review.PRURL != "https://github.com/acme/widget/pull/42" {
		t.Errorf("Unexpected PR URL %s", review.PRURL)
	}
	if review.Agent != "mock" {
		t.Errorf("Expected agent mock, got %s", review.Agent)
	}
	if review.SubmissionID == "" {
		t.Fatal("Review should be linked to its submission")
	}

	stored, err := st.Review().GetByID(review.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if stored.Status != model.ReviewStatusPending {
		t.Errorf("Expected status pending, got %s", stored.Status)
	}

	sub, err := st.Submission().GetByID(review.SubmissionID)
	if err != nil {
		t.Fatalf("Submission GetByID() failed: %v", err)
	}
	if sub.ReviewID != review.ID {
		t.Errorf("Submission review_id = %s, want %s", sub.ReviewID, review.ID)
	}
	if sub.Status != model.SubmissionStatusSubmitted {
		t.Errorf("Expected submission status submitted, got %s", sub.Status)
	}
	if sub.DiffText != testDiff {
		t.Error("Diff snapshot does not match the provider diff")
	}
	if sub.FilesChanged != 1 || sub.LinesAdded != 1 || sub.LinesDeleted != 0 {
		t.Errorf("Unexpected diff stats: files=%d added=%d deleted=%d",
			sub.FilesChanged, sub.LinesAdded, sub.LinesDeleted)
	}

	if got := eng.enqueued(); len(got) != 1 || got[0] != sub.ID {
		t.Errorf("Expected submission %s enqueued once, got %v", sub.ID, got)
	}

	history, err := tracker.New(st).GetHistory(ctx, "acme", "widget", 42)
	if err != nil {
		t.Fatalf("GetHistory() failed: %v", err)
	}
	if history == nil || history.Count != 1 {
		t.Errorf("Expected one tracked review, got %+v", history)
	}
}

// TestHandleCommentEvent_NoMention tests that comments without the
// trigger are ignored
func TestHandleCommentEvent_NoMention(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	o, eng := newTestOrchestrator(st, newFakeProvider())

	review, err := o.HandleWebhookEvent(context.Background(), commentEvent("LGTM, merging.", 555))
	if err != nil {
		t.Fatalf("HandleWebhookEvent() failed: %v", err)
	}
	if review != nil {
		t.Error("Comment without the trigger should not start a review")
	}
	if countReviews(t, st) != 0 {
		t.Error("No review rows should exist")
	}
	if len(eng.enqueued()) != 0 {
		t.Error("Nothing should be enqueued")
	}
}

// TestHandleCommentEvent_OwnCommentIgnored tests that the pipeline's
// own posted comments never re-trigger, even when they quote the mention
func TestHandleCommentEvent_OwnCommentIgnored(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	o, _ := newTestOrchestrator(st, newFakeProvider())

	body := output.ReviewMarker + "\n## Review\nTriggered by @reviewpilot."
	review, err := o.HandleWebhookEvent(context.Background(), commentEvent(body, 556))
	if err != nil {
		t.Fatalf("HandleWebhookEvent() failed: %v", err)
	}
	if review != nil {
		t.Error("Marker comment should be ignored")
	}
	if countReviews(t, st) != 0 {
		t.Error("No review rows should exist")
	}
}

// TestHandleCommentEvent_DuplicateDelivery tests that redelivering the
// same comment id is a no-op
func TestHandleCommentEvent_DuplicateDelivery(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	o, eng := newTestOrchestrator(st, newFakeProvider())
	ctx := context.Background()

	first, err := o.HandleWebhookEvent(ctx, commentEvent("@reviewpilot check this", 555))
	if err != nil || first == nil {
		t.Fatalf("First delivery should create a review, got (%v, %v)", first, err)
	}

	second, err := o.HandleWebhookEvent(ctx, commentEvent("@reviewpilot check this", 555))
	if err != nil {
		t.Fatalf("Redelivery failed: %v", err)
	}
	if second != nil {
		t.Error("Redelivered comment should be skipped")
	}
	if countReviews(t, st) != 1 {
		t.Error("Redelivery must not create a second review")
	}
	if len(eng.enqueued()) != 1 {
		t.Error("Redelivery must not enqueue again")
	}
}

// TestHandleCommentEvent_NewCommentReReviews tests that a fresh trigger
// comment on a tracked PR starts a re-review
func TestHandleCommentEvent_NewCommentReReviews(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	o, _ := newTestOrchestrator(st, newFakeProvider())
	ctx := context.Background()

	if _, err := o.HandleWebhookEvent(ctx, commentEvent("@reviewpilot first pass", 555)); err != nil {
		t.Fatalf("First trigger failed: %v", err)
	}

	review, err := o.HandleWebhookEvent(ctx, commentEvent("@reviewpilot again please", 556))
	if err != nil {
		t.Fatalf("Second trigger failed: %v", err)
	}
	if review == nil {
		t.Fatal("New trigger comment should start a review")
	}
	if review.Kind != model.ReviewKindReReview {
		t.Errorf("Expected kind re_review, got %s", review.Kind)
	}
	if countReviews(t, st) != 2 {
		t.Error("Expected two reviews for two distinct triggers")
	}
}

// TestHandlePREvent_OpenedWithMention tests that opening a PR whose
// description carries the trigger starts a review
func TestHandlePREvent_OpenedWithMention(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	o, _ := newTestOrchestrator(st, newFakeProvider())

	review, err := o.HandleWebhookEvent(context.Background(),
		prEvent(provider.PREventActionOpened, "Adds retries.\n\n@reviewpilot review this"))
	if err != nil {
		t.Fatalf("HandleWebhookEvent() failed: %v", err)
	}
	if review == nil {
		t.Fatal("Expected a review to be created")
	}
	if review.Kind != model.ReviewKindInitial {
		t.Errorf("Expected kind initial, got %s", review.Kind)
	}
	if review.TriggerCommentID != 0 {
		t.Errorf("PR-event review should have no trigger comment, got %d", review.TriggerCommentID)
	}
}

// TestHandlePREvent_Skips tests the PR-event gates: irrelevant actions,
// missing mention, and already tracked PRs
func TestHandlePREvent_Skips(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	o, _ := newTestOrchestrator(st, newFakeProvider())
	ctx := context.Background()

	review, err := o.HandleWebhookEvent(ctx, prEvent("closed", "@reviewpilot review this"))
	if err != nil || review != nil {
		t.Errorf("Closed PR event should be skipped, got (%v, %v)", review, err)
	}

	review, err = o.HandleWebhookEvent(ctx, prEvent(provider.PREventActionOpened, "Adds retries."))
	if err != nil || review != nil {
		t.Errorf("Description without the trigger should be skipped, got (%v, %v)", review, err)
	}

	// A tracked PR is not re-triggered by later pushes
	if _, err := o.HandleWebhookEvent(ctx,
		prEvent(provider.PREventActionOpened, "@reviewpilot review this")); err != nil {
		t.Fatalf("Initial PR event failed: %v", err)
	}
	review, err = o.HandleWebhookEvent(ctx,
		prEvent(provider.PREventActionSynchronize, "@reviewpilot review this"))
	if err != nil || review != nil {
		t.Errorf("Tracked PR should not re-trigger on push, got (%v, %v)", review, err)
	}
	if countReviews(t, st) != 1 {
		t.Error("Expected exactly one review")
	}
}

// TestHandleWebhookEvent_UnhandledType tests that unknown event types
// are ignored without error
func TestHandleWebhookEvent_UnhandledType(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	o, _ := newTestOrchestrator(st, newFakeProvider())

	review, err := o.HandleWebhookEvent(context.Background(), &provider.WebhookEvent{
		Type:     provider.WebhookEventType("push"),
		Provider: "github",
	})
	if err != nil || review != nil {
		t.Errorf("Unhandled event type should be ignored, got (%v, %v)", review, err)
	}
}

// TestReviewOpenPR tests the reconciliation path: untracked PRs get an
// initial review, tracked PRs are left alone
func TestReviewOpenPR(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	o, eng := newTestOrchestrator(st, newFakeProvider())
	ctx := context.Background()

	review, err := o.ReviewOpenPR(ctx, "github", "acme", "widget", 42)
	if err != nil {
		t.Fatalf("ReviewOpenPR() failed: %v", err)
	}
	if review == nil {
		t.Fatal("Untracked open PR should be reviewed")
	}
	if review.Source != model.ReviewSourceReconcile {
		t.Errorf("Expected source reconcile, got %s", review.Source)
	}
	if review.Kind != model.ReviewKindInitial {
		t.Errorf("Expected kind initial, got %s", review.Kind)
	}
	if len(eng.enqueued()) != 1 {
		t.Error("Expected one enqueued submission")
	}

	again, err := o.ReviewOpenPR(ctx, "github", "acme", "widget", 42)
	if err != nil {
		t.Fatalf("Second ReviewOpenPR() failed: %v", err)
	}
	if again != nil {
		t.Error("Tracked PR should be skipped by reconciliation")
	}
	if countReviews(t, st) != 1 {
		t.Error("Reconciliation must not duplicate reviews")
	}
}

// TestReviewFromURL tests the manual path, which bypasses the
// once-per-lifetime gate
func TestReviewFromURL(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	o, _ := newTestOrchestrator(st, newFakeProvider())
	ctx := context.Background()

	review, err := o.ReviewFromURL(ctx, "https://github.com/acme/widget/pull/42", "admin")
	if err != nil {
		t.Fatalf("ReviewFromURL() failed: %v", err)
	}
	if review == nil {
		t.Fatal("Expected a review to be created")
	}
	if review.Source != model.ReviewSourceAPI {
		t.Errorf("Expected source api, got %s", review.Source)
	}
	if review.Kind != model.ReviewKindInitial {
		t.Errorf("Expected kind initial, got %s", review.Kind)
	}
	if review.TriggeredBy != "admin" {
		t.Errorf("Expected triggered_by admin, got %s", review.TriggeredBy)
	}

	// Manual re-trigger on the same PR proceeds as a re-review
	review, err = o.ReviewFromURL(ctx, "https://github.com/acme/widget/pull/42", "admin")
	if err != nil {
		t.Fatalf("Second ReviewFromURL() failed: %v", err)
	}
	if review == nil {
		t.Fatal("Manual trigger on a tracked PR should still review")
	}
	if review.Kind != model.ReviewKindReReview {
		t.Errorf("Expected kind re_review, got %s", review.Kind)
	}
	if countReviews(t, st) != 2 {
		t.Error("Expected two reviews")
	}
}

// TestReviewFromURL_Errors tests URL validation and provider lookup
func TestReviewFromURL_Errors(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	o, _ := newTestOrchestrator(st, newFakeProvider())
	ctx := context.Background()

	if _, err := o.ReviewFromURL(ctx, "not a url", "admin"); err == nil {
		t.Error("Expected an error for a malformed URL")
	}

	_, err := o.ReviewFromURL(ctx, "https://gitlab.com/acme/widget/-/merge_requests/7", "admin")
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Errorf("Expected a not-configured error, got %v", err)
	}
	if countReviews(t, st) != 0 {
		t.Error("Failed triggers must not create reviews")
	}
}

// TestStartReview_EmptyDiff tests that a PR with no diff is skipped
// without creating records
func TestStartReview_EmptyDiff(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	prov := newFakeProvider()
	prov.diff = ""
	o, eng := newTestOrchestrator(st, prov)

	review, err := o.HandleWebhookEvent(context.Background(), commentEvent("@reviewpilot look", 555))
	if err != nil {
		t.Fatalf("HandleWebhookEvent() failed: %v", err)
	}
	if review != nil {
		t.Error("Empty diff should not produce a review")
	}
	if countReviews(t, st) != 0 {
		t.Error("No review rows should exist")
	}
	if len(eng.enqueued()) != 0 {
		t.Error("Nothing should be enqueued")
	}
}

// TestStartReview_PRFetchFails tests that a failed PR lookup aborts the
// attempt before any records are written
func TestStartReview_PRFetchFails(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	prov := newFakeProvider()
	prov.prErr = errors.New("HTTP 500")
	o, eng := newTestOrchestrator(st, prov)

	_, err := o.HandleWebhookEvent(context.Background(), commentEvent("@reviewpilot look", 555))
	if err == nil {
		t.Fatal("Expected an error when the PR fetch fails")
	}
	if countReviews(t, st) != 0 {
		t.Error("No review rows should exist")
	}
	if len(eng.enqueued()) != 0 {
		t.Error("Nothing should be enqueued")
	}
}

// TestStartReview_DiffFetchFails tests that a failed diff fetch aborts
// the attempt
func TestStartReview_DiffFetchFails(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	prov := newFakeProvider()
	prov.diffErr = errors.New("HTTP 500")
	o, _ := newTestOrchestrator(st, prov)

	_, err := o.HandleWebhookEvent(context.Background(), commentEvent("@reviewpilot look", 555))
	if err == nil {
		t.Fatal("Expected an error when the diff fetch fails")
	}
	if countReviews(t, st) != 0 {
		t.Error("No review rows should exist")
	}
}

// TestStartReview_CommentListFailureTolerated tests that the review
// proceeds when only the comment listing fails
func TestStartReview_CommentListFailureTolerated(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	prov := newFakeProvider()
	prov.commentsErr = errors.New("HTTP 502")
	o, eng := newTestOrchestrator(st, prov)

	review, err := o.HandleWebhookEvent(context.Background(), commentEvent("@reviewpilot look", 555))
	if err != nil {
		t.Fatalf("HandleWebhookEvent() failed: %v", err)
	}
	if review == nil {
		t.Fatal("Comment listing failure should not block the review")
	}
	if len(eng.enqueued()) != 1 {
		t.Error("Expected one enqueued submission")
	}
}

// TestStartReview_EnqueueFailure tests that an enqueue failure marks
// the already-created review failed
func TestStartReview_EnqueueFailure(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	prov := newFakeProvider()
	o, eng := newTestOrchestrator(st, prov)
	eng.err = errors.New("queue stopped")

	_, err := o.HandleWebhookEvent(context.Background(), commentEvent("@reviewpilot look", 555))
	if err == nil {
		t.Fatal("Expected an error when enqueueing fails")
	}

	reviews, _, err := st.Review().List("", 10, 0)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(reviews) != 1 {
		t.Fatalf("Expected the review row to exist, got %d", len(reviews))
	}
	if reviews[0].Status != model.ReviewStatusFailed {
		t.Errorf("Expected status failed, got %s", reviews[0].Status)
	}
	if reviews[0].ErrorMessage == "" {
		t.Error("Expected the failure reason to be recorded")
	}
}

// TestStartReview_ProviderMissing tests that events from an
// unconfigured provider fail cleanly
func TestStartReview_ProviderMissing(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	eng := &fakeEnqueuer{}
	o := New(st, fakeResolver{}, tracker.New(st), eng, "")

	_, err := o.HandleWebhookEvent(context.Background(), commentEvent("@reviewpilot look", 555))
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Errorf("Expected a not-configured error, got %v", err)
	}
	if countReviews(t, st) != 0 {
		t.Error("No review rows should exist")
	}
}
