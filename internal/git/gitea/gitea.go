// Package gitea implements the Git provider interface for Gitea using
// the official Gitea Go SDK. It supports both Gitea.com and self-hosted
// instances.
package gitea

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"code.gitea.io/sdk/gitea"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot/internal/git/provider"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

const (
	// defaultPerPage is the page size for list calls
	defaultPerPage = 100

	// defaultGiteaURL is the base URL of Gitea cloud
	defaultGiteaURL = "https://gitea.com"
)

func init() {
	provider.Register("gitea", NewProvider)
}

// GiteaProvider implements the Provider interface for Gitea
type GiteaProvider struct {
	client  *gitea.Client
	token   string
	baseURL string
}

// NewProvider creates a new Gitea provider instance
func NewProvider(opts *provider.ProviderOptions) (provider.Provider, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultGiteaURL
	}

	clientOpts := []gitea.ClientOption{gitea.SetToken(opts.Token)}
	if opts.InsecureSkipVerify {
		clientOpts = append(clientOpts, gitea.SetHTTPClient(&http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // User explicitly enabled insecure mode
			},
		}))
		logger.Warn("Gitea client configured with InsecureSkipVerify=true, SSL certificate verification is disabled")
	}

	client, err := gitea.NewClient(baseURL, clientOpts...)
	if err != nil {
		return nil, apiError("failed to create gitea client", err)
	}

	logger.Info("Gitea provider initialized",
		zap.String("base_url", baseURL),
		zap.Bool("insecure_skip_verify", opts.InsecureSkipVerify),
	)

	return &GiteaProvider{
		client:  client,
		token:   opts.Token,
		baseURL: baseURL,
	}, nil
}

// apiError tags an error with this provider
func apiError(message string, err error) error {
	return &provider.ProviderError{Provider: "gitea", Message: message, Err: err}
}

// Name returns the provider name
func (p *GiteaProvider) Name() string {
	return "gitea"
}

// GetBaseURL returns the base URL of the provider
func (p *GiteaProvider) GetBaseURL() string {
	if p.baseURL == "" {
		return defaultGiteaURL
	}
	return p.baseURL
}

// isDefaultGitea reports whether the provider targets Gitea cloud
// rather than a self-hosted instance
func (p *GiteaProvider) isDefaultGitea() bool {
	return p.baseURL == "" || p.baseURL == defaultGiteaURL
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
func (p *GiteaProvider) hostFromBaseURL() string {
	host := strings.TrimPrefix(p.GetBaseURL(), "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimSuffix(host, "/")
}

// MatchesURL checks if the given repository or PR URL belongs to this
// Gitea instance
func (p *GiteaProvider) MatchesURL(repoURL string) bool {
	if repoURL == "" {
		return false
	}

	url := normalizeURL(repoURL)
	domain, _, _ := strings.Cut(url, "/")

	if p.isDefaultGitea() {
		return strings.Contains(domain, "gitea.com")
	}

	host := p.hostFromBaseURL()
	hostDomain, _, _ := strings.Cut(host, "/")
	return domain == hostDomain || strings.HasPrefix(url, host)
}

// toPullRequest converts a Gitea SDK pull request to the provider type
func toPullRequest(pr *gitea.PullRequest) *provider.PullRequest {
	author := ""
	if pr.Poster != nil {
		author = pr.Poster.UserName
	}

	return &provider.PullRequest{
		Number:      int(pr.Index),
		Title:       pr.Title,
		Description: pr.Body,
		State:       string(pr.State),
		HeadBranch:  pr.Head.Ref,
		HeadSHA:     pr.Head.Sha,
		BaseBranch:  pr.Base.Ref,
		Author:      author,
		URL:         pr.HTMLURL,
	}
}

// GetPullRequest retrieves pull request details
func (p *GiteaProvider) GetPullRequest(ctx context.Context, projectKey, repoName string, number int) (*provider.PullRequest, error) {
	pr, _, err := p.client.GetPullRequest(projectKey, repoName, int64(number))
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
func (p *GiteaProvider) ListOpenPullRequests(ctx context.Context, projectKey, repoName string) ([]*provider.PullRequest, error) {
	prs, _, err := p.client.ListRepoPullRequests(projectKey, repoName, gitea.ListPullRequestsOptions{
		State:       gitea.StateOpen,
		ListOptions: gitea.ListOptions{PageSize: defaultPerPage},
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

// GetDiff returns the unified diff of a pull request
func (p *GiteaProvider) GetDiff(ctx context.Context, projectKey, repoName string, number int) (string, error) {
	diff, _, err := p.client.GetPullRequestDiff(projectKey, repoName, int64(number), gitea.PullRequestDiffOptions{})
	if err != nil {
		logger.Error("Failed to get pull request diff",
			zap.Error(err),
			zap.String("project", projectKey),
			zap.String("repo", repoName),
			zap.Int("number", number),
		)
		return "", apiError("failed to get pull request diff", err)
	}

	return string(diff), nil
}

// ListComments lists comments on a PR
func (p *GiteaProvider) ListComments(ctx context.Context, projectKey, repoName string, prNumber int) ([]*provider.Comment, error) {
	comments, _, err := p.client.ListIssueComments(projectKey, repoName, int64(prNumber), gitea.ListIssueCommentOptions{
		ListOptions: gitea.ListOptions{PageSize: defaultPerPage},
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
		author := ""
		if c.Poster != nil {
			author = c.Poster.UserName
		}

		createdAt := ""
		if !c.Created.IsZero() {
			createdAt = c.Created.Format(time.RFC3339)
		}

		result[i] = &provider.Comment{
			ID:        c.ID,
			Body:      c.Body,
			Author:    author,
			CreatedAt: createdAt,
		}
	}
	return result, nil
}

// PostComment posts a comment on a PR and returns the new comment id
func (p *GiteaProvider) PostComment(ctx context.Context, projectKey, repoName string, prNumber int, body string) (int64, error) {
	comment, _, err := p.client.CreateIssueComment(projectKey, repoName, int64(prNumber), gitea.CreateIssueCommentOption{
		Body: body,
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
		zap.Int64("comment_id", comment.ID),
	)
	return comment.ID, nil
}

// checkSignature verifies the X-Gitea-Signature header, an HMAC-SHA256
// of the body keyed with the webhook secret
func checkSignature(r *http.Request, body []byte, secret string) error {
	signature := r.Header.Get("X-Gitea-Signature")
	if signature == "" {
		return apiError("missing webhook signature header (X-Gitea-Signature)", nil)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		logger.Warn("Rejected Gitea webhook with invalid signature")
		return apiError("invalid webhook signature", nil)
	}
	return nil
}

// ParseWebhook parses an incoming webhook request
func (p *GiteaProvider) ParseWebhook(r *http.Request, secret string) (*provider.WebhookEvent, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, apiError("failed to read webhook body", err)
	}

	if secret != "" {
		if err := checkSignature(r, body, secret); err != nil {
			return nil, err
		}
	}

	eventType := r.Header.Get("X-Gitea-Event")
	switch eventType {
	case "pull_request":
		return p.parsePullRequestEvent(body)
	case "issue_comment":
		return p.parseIssueCommentEvent(body)
	default:
		return nil, provider.UnsupportedEvent("gitea", eventType)
	}
}

// parsePullRequestEvent parses a pull_request webhook event
func (p *GiteaProvider) parsePullRequestEvent(body []byte) (*provider.WebhookEvent, error) {
	var payload struct {
		Action      string `json:"action"`
		Number      int64  `json:"number"`
		PullRequest struct {
			Title   string `json:"title"`
			Body    string `json:"body"`
			HTMLURL string `json:"html_url"`
			User    struct {
				Login string `json:"login"`
			} `json:"user"`
		} `json:"pull_request"`
		Sender struct {
			Login string `json:"login"`
		} `json:"sender"`
		Repository struct {
			Owner struct {
				Login string `json:"login"`
			} `json:"owner"`
			Name string `json:"name"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apiError("failed to parse pull_request event", err)
	}

	event := &provider.WebhookEvent{
		Type:          provider.EventTypePullRequest,
		Provider:      "gitea",
		ProjectKey:    payload.Repository.Owner.Login,
		RepoName:      payload.Repository.Name,
		PRNumber:      int(payload.Number),
		Action:        normalizeGiteaAction(payload.Action),
		PRTitle:       payload.PullRequest.Title,
		PRDescription: payload.PullRequest.Body,
		PRURL:         payload.PullRequest.HTMLURL,
		Author:        payload.PullRequest.User.Login,
		Sender:        payload.Sender.Login,
		RawPayload:    body,
	}

	logger.Info("Parsed Gitea pull_request webhook",
		zap.String("action", event.Action),
		zap.String("original_action", payload.Action),
		zap.String("project", event.ProjectKey),
		zap.String("repo", event.RepoName),
		zap.Int("pr_number", event.PRNumber),
	)

	return event, nil
}

// parseIssueCommentEvent parses an issue_comment webhook event.
// Gitea delivers PR comments as issue comments; the issue carries a
// pull_request field only when it backs a pull request.
func (p *GiteaProvider) parseIssueCommentEvent(body []byte) (*provider.WebhookEvent, error) {
	var payload struct {
		Action string `json:"action"`
		Issue  struct {
			Number  int64  `json:"number"`
			Title   string `json:"title"`
			Body    string `json:"body"`
			HTMLURL string `json:"html_url"`
			User    struct {
				Login string `json:"login"`
			} `json:"user"`
			PullRequest *struct {
				Merged bool `json:"merged"`
			} `json:"pull_request"`
		} `json:"issue"`
		Comment struct {
			ID   int64  `json:"id"`
			Body string `json:"body"`
			User struct {
				Login string `json:"login"`
			} `json:"user"`
		} `json:"comment"`
		Sender struct {
			Login string `json:"login"`
		} `json:"sender"`
		Repository struct {
			Owner struct {
				Login string `json:"login"`
			} `json:"owner"`
			Name string `json:"name"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apiError("failed to parse issue_comment event", err)
	}

	if payload.Action != "created" {
		return nil, provider.UnsupportedEvent("gitea", "issue_comment/"+payload.Action)
	}
	if payload.Issue.PullRequest == nil {
		return nil, apiError("comment is not on a pull request", provider.ErrUnsupportedEvent)
	}

	event := &provider.WebhookEvent{
		Type:          provider.EventTypeComment,
		Provider:      "gitea",
		ProjectKey:    payload.Repository.Owner.Login,
		RepoName:      payload.Repository.Name,
		PRNumber:      int(payload.Issue.Number),
		PRTitle:       payload.Issue.Title,
		PRDescription: payload.Issue.Body,
		PRURL:         payload.Issue.HTMLURL,
		Author:        payload.Issue.User.Login,
		Sender:        payload.Sender.Login,
		CommentID:     payload.Comment.ID,
		CommentBody:   payload.Comment.Body,
		RawPayload:    body,
	}

	logger.Info("Parsed Gitea issue_comment webhook",
		zap.String("project", event.ProjectKey),
		zap.String("repo", event.RepoName),
		zap.Int("pr_number", event.PRNumber),
		zap.Int64("comment_id", event.CommentID),
	)

	return event, nil
}

// ValidateToken validates the Gitea token by fetching the current user
func (p *GiteaProvider) ValidateToken(ctx context.Context) error {
	user, _, err := p.client.GetMyUserInfo()
	if err != nil {
		return apiError("invalid token", err)
	}

	logger.Info("Gitea token validated successfully",
		zap.String("username", user.UserName),
	)
	return nil
}

// giteaActionMap maps Gitea PR action names to the unified action
// vocabulary. Gitea actions are mostly GitHub-compatible already.
var giteaActionMap = map[string]string{
	"opened":       provider.PREventActionOpened,
	"synchronized": provider.PREventActionSynchronize,
	"synchronize":  provider.PREventActionSynchronize,
	"reopened":     provider.PREventActionReopened,
}

// normalizeGiteaAction maps a Gitea PR action to the unified format.
// Actions without a mapping (closed, merged, edited, ...) pass through
// lowercased.
func normalizeGiteaAction(action string) string {
	action = strings.ToLower(action)
	if mapped, ok := giteaActionMap[action]; ok {
		return mapped
	}
	return action
}
