// Package github implements the Git provider interface for GitHub.
package github

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/reviewpilot/reviewpilot/internal/git/provider"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

const (
	// defaultPerPage is the page size for list calls
	defaultPerPage = 100

	// defaultGitHubURL is the base URL of public GitHub
	defaultGitHubURL = "https://github.com"
)

func init() {
	provider.Register("github", NewProvider)
}

// GitHubProvider implements the Provider interface for GitHub
type GitHubProvider struct {
	client  *github.Client
	token   string
	baseURL string
}

// NewProvider creates a new GitHub provider instance
func NewProvider(opts *provider.ProviderOptions) (provider.Provider, error) {
	httpClient := newHTTPClient(opts.Token, opts.InsecureSkipVerify)

	client := github.NewClient(httpClient)
	if opts.BaseURL != "" && opts.BaseURL != defaultGitHubURL {
		var err error
		client, err = client.WithEnterpriseURLs(opts.BaseURL, opts.BaseURL)
		if err != nil {
			return nil, apiError("failed to create enterprise client", err)
		}
	}

	return &GitHubProvider{
		client:  client,
		token:   opts.Token,
		baseURL: opts.BaseURL,
	}, nil
}

// newHTTPClient builds the underlying HTTP client. A configured token is
// attached through an oauth2 transport; without one the client stays
// anonymous for public repositories.
func newHTTPClient(token string, insecure bool) *http.Client {
	base := &http.Transport{}
	if insecure {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	if token == "" {
		return &http.Client{Transport: base}
	}

	return &http.Client{
		Transport: &oauth2.Transport{
			Base:   base,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		},
	}
}

// apiError tags an error with this provider
func apiError(message string, err error) error {
	return &provider.ProviderError{Provider: "github", Message: message, Err: err}
}

// Name returns the provider name
func (p *GitHubProvider) Name() string {
	return "github"
}

// GetBaseURL returns the base URL of the provider
func (p *GitHubProvider) GetBaseURL() string {
	if p.isDefaultGitHub() {
		return defaultGitHubURL
	}
	return p.baseURL
}

// isDefaultGitHub reports whether the provider targets public GitHub
// rather than a GitHub Enterprise instance
func (p *GitHubProvider) isDefaultGitHub() bool {
	return p.baseURL == "" || p.baseURL == defaultGitHubURL
}

// normalizeURL strips the scheme, the .git suffix and trailing slashes,
// and rewrites scp-like git@host:path URLs to host/path form
func normalizeURL(url string) string {
	url = strings.TrimSuffix(url, ".git")
	for _, prefix := range []string{"https://", "http://", "git@"} {
		url = strings.TrimPrefix(url, prefix)
	}
	url = strings.TrimSuffix(url, "/")

	if host, path, ok := strings.Cut(url, ":"); ok {
		url = host + "/" + path
	}
	return url
}

// hostFromBaseURL returns the hostname part of the configured base URL
func (p *GitHubProvider) hostFromBaseURL() string {
	if p.isDefaultGitHub() {
		return "github.com"
	}

	host := strings.TrimPrefix(p.baseURL, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimSuffix(host, "/")
}

// MatchesURL checks if the given repository or PR URL belongs to this
// GitHub instance
func (p *GitHubProvider) MatchesURL(repoURL string) bool {
	if repoURL == "" {
		return false
	}

	url := normalizeURL(repoURL)
	domain, _, _ := strings.Cut(url, "/")

	if p.isDefaultGitHub() {
		return strings.Contains(domain, "github.com")
	}

	host := p.hostFromBaseURL()
	hostDomain, _, _ := strings.Cut(host, "/")
	return domain == hostDomain || strings.HasPrefix(url, host)
}

// toPullRequest converts a go-github pull request to the provider type
func toPullRequest(pr *github.PullRequest) *provider.PullRequest {
	return &provider.PullRequest{
		Number:      pr.GetNumber(),
		Title:       pr.GetTitle(),
		Description: pr.GetBody(),
		State:       pr.GetState(),
		HeadBranch:  pr.GetHead().GetRef(),
		HeadSHA:     pr.GetHead().GetSHA(),
		BaseBranch:  pr.GetBase().GetRef(),
		Author:      pr.GetUser().GetLogin(),
		URL:         pr.GetHTMLURL(),
	}
}

// GetPullRequest retrieves pull request details
func (p *GitHubProvider) GetPullRequest(ctx context.Context, projectKey, repoName string, number int) (*provider.PullRequest, error) {
	pr, _, err := p.client.PullRequests.Get(ctx, projectKey, repoName, number)
	if err != nil {
		logger.Error("Failed to get pull request",
			zap.Error(err),
			zap.String("project", projectKey),
			zap.String("repo", repoName),
			zap.Int("number", number),
		)
		return nil, apiError("failed to get pull request", err)
	}

	return toPullRequest(pr), nil
}

// ListOpenPullRequests lists open pull requests
func (p *GitHubProvider) ListOpenPullRequests(ctx context.Context, projectKey, repoName string) ([]*provider.PullRequest, error) {
	prs, _, err := p.client.PullRequests.List(ctx, projectKey, repoName, &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: defaultPerPage},
	})
	if err != nil {
		logger.Error("Failed to list pull requests",
			zap.Error(err),
			zap.String("project", projectKey),
			zap.String("repo", repoName),
		)
		return nil, apiError("failed to list pull requests", err)
	}

	result := make([]*provider.PullRequest, len(prs))
	for i, pr := range prs {
		result[i] = toPullRequest(pr)
	}
	return result, nil
}

// GetDiff returns the unified diff of a pull request using the raw media type
func (p *GitHubProvider) GetDiff(ctx context.Context, projectKey, repoName string, number int) (string, error) {
	diff, _, err := p.client.PullRequests.GetRaw(ctx, projectKey, repoName, number, github.RawOptions{
		Type: github.Diff,
	})
	if err != nil {
		logger.Error("Failed to get pull request diff",
			zap.Error(err),
			zap.String("project", projectKey),
			zap.String("repo", repoName),
			zap.Int("number", number),
		)
		return "", apiError("failed to get pull request diff", err)
	}

	return diff, nil
}

// ListComments lists comments on a PR
func (p *GitHubProvider) ListComments(ctx context.Context, projectKey, repoName string, prNumber int) ([]*provider.Comment, error) {
	comments, _, err := p.client.Issues.ListComments(ctx, projectKey, repoName, prNumber, &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: defaultPerPage},
	})
	if err != nil {
		logger.Error("Failed to list PR comments",
			zap.Error(err),
			zap.String("project", projectKey),
			zap.String("repo", repoName),
			zap.Int("pr", prNumber),
		)
		return nil, apiError("failed to list PR comments", err)
	}

	result := make([]*provider.Comment, len(comments))
	for i, c := range comments {
		result[i] = &provider.Comment{
			ID:        c.GetID(),
			Body:      c.GetBody(),
			Author:    c.GetUser().GetLogin(),
			CreatedAt: c.GetCreatedAt().Format(time.RFC3339),
		}
	}
	return result, nil
}

// PostComment posts a comment on a PR and returns the new comment id
func (p *GitHubProvider) PostComment(ctx context.Context, projectKey, repoName string, prNumber int, body string) (int64, error) {
	created, _, err := p.client.Issues.CreateComment(ctx, projectKey, repoName, prNumber, &github.IssueComment{
		Body: &body,
	})
	if err != nil {
		logger.Error("Failed to post PR comment",
			zap.Error(err),
			zap.String("project", projectKey),
			zap.String("repo", repoName),
			zap.Int("pr", prNumber),
		)
		return 0, apiError("failed to post PR comment", err)
	}

	logger.Info("PR comment posted",
		zap.String("project", projectKey),
		zap.String("repo", repoName),
		zap.Int("pr", prNumber),
		zap.Int64("comment_id", created.GetID()),
	)
	return created.GetID(), nil
}

// readPayload returns the webhook body, enforcing the HMAC signature
// when a secret is configured
func readPayload(r *http.Request, secret string) ([]byte, error) {
	if secret != "" {
		return github.ValidatePayload(r, []byte(secret))
	}
	return io.ReadAll(r.Body)
}

// ParseWebhook parses an incoming webhook request
func (p *GitHubProvider) ParseWebhook(r *http.Request, secret string) (*provider.WebhookEvent, error) {
	body, err := readPayload(r, secret)
	if err != nil {
		logger.Warn("Failed to validate webhook payload", zap.Error(err))
		return nil, apiError("invalid webhook payload", err)
	}

	eventType := r.Header.Get("X-GitHub-Event")
	switch eventType {
	case "pull_request":
		return p.parsePullRequestEvent(body)
	case "issue_comment":
		return p.parseIssueCommentEvent(body)
	default:
		return nil, provider.UnsupportedEvent("github", eventType)
	}
}

// parsePullRequestEvent parses a pull_request webhook event
func (p *GitHubProvider) parsePullRequestEvent(body []byte) (*provider.WebhookEvent, error) {
	var payload github.PullRequestEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apiError("failed to parse pull_request event", err)
	}

	pr := payload.GetPullRequest()
	event := &provider.WebhookEvent{
		Type:       provider.EventTypePullRequest,
		Provider:   "github",
		ProjectKey: payload.GetRepo().GetOwner().GetLogin(),
		RepoName:   payload.GetRepo().GetName(),
		PRNumber:   pr.GetNumber(),
		// GitHub actions are already lowercase: opened, synchronize, reopened, ...
		Action:        strings.ToLower(payload.GetAction()),
		PRTitle:       pr.GetTitle(),
		PRDescription: pr.GetBody(),
		PRURL:         pr.GetHTMLURL(),
		Author:        pr.GetUser().GetLogin(),
		Sender:        payload.GetSender().GetLogin(),
		RawPayload:    body,
	}

	logger.Info("Parsed GitHub pull_request webhook",
		zap.String("action", event.Action),
		zap.String("project", event.ProjectKey),
		zap.String("repo", event.RepoName),
		zap.Int("pr_number", event.PRNumber),
	)

	return event, nil
}

// parseIssueCommentEvent parses an issue_comment webhook event.
// GitHub delivers PR comments as issue comments; comments on plain issues
// and non-create actions are reported as unsupported.
func (p *GitHubProvider) parseIssueCommentEvent(body []byte) (*provider.WebhookEvent, error) {
	var payload github.IssueCommentEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apiError("failed to parse issue_comment event", err)
	}

	if action := payload.GetAction(); action != "created" {
		return nil, provider.UnsupportedEvent("github", "issue_comment/"+action)
	}

	issue := payload.GetIssue()
	if !issue.IsPullRequest() {
		return nil, apiError("comment is not on a pull request", provider.ErrUnsupportedEvent)
	}

	comment := payload.GetComment()
	event := &provider.WebhookEvent{
		Type:          provider.EventTypeComment,
		Provider:      "github",
		ProjectKey:    payload.GetRepo().GetOwner().GetLogin(),
		RepoName:      payload.GetRepo().GetName(),
		PRNumber:      issue.GetNumber(),
		PRTitle:       issue.GetTitle(),
		PRDescription: issue.GetBody(),
		PRURL:         issue.GetPullRequestLinks().GetHTMLURL(),
		Author:        issue.GetUser().GetLogin(),
		Sender:        comment.GetUser().GetLogin(),
		CommentID:     comment.GetID(),
		CommentBody:   comment.GetBody(),
		RawPayload:    body,
	}

	logger.Info("Parsed GitHub issue_comment webhook",
		zap.String("project", event.ProjectKey),
		zap.String("repo", event.RepoName),
		zap.Int("pr_number", event.PRNumber),
		zap.Int64("comment_id", event.CommentID),
	)

	return event, nil
}

// ValidateToken validates the GitHub token
func (p *GitHubProvider) ValidateToken(ctx context.Context) error {
	if _, _, err := p.client.Users.Get(ctx, ""); err != nil {
		return apiError("invalid token", err)
	}
	return nil
}
