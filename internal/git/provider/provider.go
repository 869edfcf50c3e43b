// Package provider defines the contract a Git hosting backend must
// fulfil (GitHub, GitLab, Gitea, Backlog) and the registry the provider
// packages register their factories into.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// PullRequest represents a pull/merge request
type PullRequest struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description"`
	State       string `json:"state"` // open, closed, merged
	HeadBranch  string `json:"head_branch"`
	HeadSHA     string `json:"head_sha"`
	BaseBranch  string `json:"base_branch"`
	Author      string `json:"author"`
	URL         string `json:"url"`
}

// Comment is one comment on a pull request, reduced to the fields the
// mention detector needs
type Comment struct {
	ID        int64  `json:"id"`
	Body      string `json:"body"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at"`
}

// WebhookEventType represents the type of webhook event
type WebhookEventType string

const (
	EventTypePullRequest  WebhookEventType = "pull_request"
	EventTypeMergeRequest WebhookEventType = "merge_request"
	EventTypeComment      WebhookEventType = "comment"
)

// Normalized PR/MR action names that may start a review. Parsers map
// provider-specific spellings onto these.
const (
	PREventActionOpened      = "opened"
	PREventActionSynchronize = "synchronize"
	PREventActionReopened    = "reopened"
)

// WebhookEvent represents a parsed webhook event.
// ProjectKey and RepoName identify the repository in provider-neutral
// terms: owner/group on GitHub, GitLab and Gitea, project key on Backlog.
type WebhookEvent struct {
	Type          WebhookEventType `json:"type"`
	Provider      string           `json:"provider"`
	ProjectKey    string           `json:"project_key"`
	RepoName      string           `json:"repo_name"`
	PRNumber      int              `json:"pr_number"`
	Action        string           `json:"action,omitempty"` // opened, synchronize, reopened, closed, etc.
	PRTitle       string           `json:"pr_title,omitempty"`
	PRDescription string           `json:"pr_description,omitempty"`
	PRURL         string           `json:"pr_url,omitempty"`
	Author        string           `json:"author,omitempty"` // PR author username
	Sender        string           `json:"sender"`           // user who triggered the event
	CommentID     int64            `json:"comment_id,omitempty"`
	CommentBody   string           `json:"comment_body,omitempty"`
	RawPayload    []byte           `json:"-"`
}

// ErrUnsupportedEvent reports a webhook event the pipeline does not act on,
// such as pushes, pings, or comments on plain issues. Handlers should
// acknowledge these with a 2xx so the provider does not retry delivery.
var ErrUnsupportedEvent = errors.New("unsupported webhook event")

// Provider defines the interface for Git hosting providers
type Provider interface {
	// Name returns the provider name (github, gitlab, gitea, backlog)
	Name() string

	// GetBaseURL returns the base URL of the provider
	// For public providers: https://github.com, https://gitlab.com
	// For self-hosted: the configured base URL
	GetBaseURL() string

	// MatchesURL checks if the given repository or PR URL belongs to this
	// provider, based on its domain or configured base URL
	MatchesURL(repoURL string) bool

	// GetPullRequest retrieves pull request details
	GetPullRequest(ctx context.Context, projectKey, repoName string, number int) (*PullRequest, error)

	// ListOpenPullRequests lists open pull requests for a repository
	ListOpenPullRequests(ctx context.Context, projectKey, repoName string) ([]*PullRequest, error)

	// GetDiff returns the unified diff of a pull request
	GetDiff(ctx context.Context, projectKey, repoName string, number int) (string, error)

	// ListComments lists comments on a pull request
	ListComments(ctx context.Context, projectKey, repoName string, prNumber int) ([]*Comment, error)

	// PostComment posts a comment on a pull request and returns the
	// provider-assigned comment id
	PostComment(ctx context.Context, projectKey, repoName string, prNumber int, body string) (int64, error)

	// ParseWebhook validates and parses an incoming webhook request.
	// Events the pipeline does not act on are reported with a
	// ProviderError wrapping ErrUnsupportedEvent.
	ParseWebhook(r *http.Request, secret string) (*WebhookEvent, error)

	// ValidateToken validates the provider token
	ValidateToken(ctx context.Context) error
}

// ProviderOptions holds options for creating a provider
type ProviderOptions struct {
	Token              string // access token (API key for Backlog)
	BaseURL            string // base URL for self-hosted instances or the Backlog space
	Username           string // git username, only needed by Backlog for fetching diffs
	InsecureSkipVerify bool   // skip SSL certificate verification
}

// ProviderFactory creates a provider instance
type ProviderFactory func(opts *ProviderOptions) (Provider, error)

// Registry maps provider names to their factories. Provider packages
// add themselves in init().
var Registry = make(map[string]ProviderFactory)

// Register adds a provider factory under the given name
func Register(name string, factory ProviderFactory) {
	Registry[name] = factory
}

// Create instantiates the named provider, or returns a ProviderError
// when no factory is registered under that name
func Create(name string, opts *ProviderOptions) (Provider, error) {
	factory, ok := Registry[name]
	if !ok {
		return nil, &ProviderError{Provider: name, Message: "provider not registered"}
	}
	return factory(opts)
}

// ProviderError represents a provider-related error
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// UnsupportedEvent builds the ProviderError every parser returns for events
// outside the pipeline's interest
func UnsupportedEvent(providerName, eventType string) error {
	return &ProviderError{
		Provider: providerName,
		Message:  "unsupported event type: " + eventType,
		Err:      ErrUnsupportedEvent,
	}
}

// ShouldProcessPREvent determines if a PR/MR webhook action may start a review.
// Opened, synchronized and reopened PRs are candidates; closed, merged,
// labeled and similar actions are not.
func ShouldProcessPREvent(action string) bool {
	switch strings.ToLower(action) {
	case PREventActionOpened, PREventActionSynchronize, PREventActionReopened,
		"open", "update", "reopen": // GitLab and Gitea spellings
		return true
	}
	return false
}
