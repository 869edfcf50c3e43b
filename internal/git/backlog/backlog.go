// Package backlog implements the Git provider interface for Backlog
// (backlog.com / backlog.jp). The Backlog v2 REST API authenticates with
// an API key passed as a query parameter and has no raw diff endpoint,
// so pull request diffs are produced with git.
package backlog

import (
	"context"
	"crypto/hmac"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot/internal/git/gitcmd"
	"github.com/reviewpilot/reviewpilot/internal/git/provider"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

// Backlog API request timeout
const defaultTimeout = 30 * time.Second

// Backlog pull request status ids
const statusIDOpen = "1"

// Backlog webhook activity type codes
const (
	webhookTypePRAdded     = 18
	webhookTypePRUpdated   = 19
	webhookTypePRCommented = 20
)

func init() {
	// Register Backlog provider factory
	provider.Register("backlog", NewProvider)
}

// BacklogProvider implements the Provider interface for Backlog
type BacklogProvider struct {
	client             *http.Client
	apiKey             string
	baseURL            string
	username           string
	insecureSkipVerify bool
}

// NewProvider creates a new Backlog provider instance.
// The base URL identifies the space, e.g. https://yourspace.backlog.com.
func NewProvider(opts *provider.ProviderOptions) (provider.Provider, error) {
	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, &provider.ProviderError{
			Provider: "backlog",
			Message:  "base URL is required (e.g. https://yourspace.backlog.com)",
		}
	}

	transport := &http.Transport{}
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // User explicitly enabled insecure mode
		}
		logger.Warn("Backlog client configured with InsecureSkipVerify=true, SSL certificate verification is disabled")
	}

	logger.Info("Backlog provider initialized",
		zap.String("base_url", baseURL),
	)

	return &BacklogProvider{
		client: &http.Client{
			Timeout:   defaultTimeout,
			Transport: transport,
		},
		apiKey:             opts.Token,
		baseURL:            baseURL,
		username:           opts.Username,
		insecureSkipVerify: opts.InsecureSkipVerify,
	}, nil
}

// Name returns the provider name
func (p *BacklogProvider) Name() string {
	return "backlog"
}

// GetBaseURL returns the base URL of the provider
func (p *BacklogProvider) GetBaseURL() string {
	return p.baseURL
}

// MatchesURL checks if the given repository URL belongs to the configured space
func (p *BacklogProvider) MatchesURL(repoURL string) bool {
	if repoURL == "" {
		return false
	}

	// Normalize URL: remove .git suffix, protocol, trailing slash
	url := strings.TrimSuffix(repoURL, ".git")
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	url = strings.TrimSuffix(url, "/")

	// Extract domain from URL (first part before /)
	urlParts := strings.Split(url, "/")
	if len(urlParts) == 0 {
		return false
	}
	urlDomain := urlParts[0]

	// Each Backlog space has its own host, so match the configured one
	baseDomain := strings.TrimPrefix(p.baseURL, "https://")
	baseDomain = strings.TrimPrefix(baseDomain, "http://")
	baseDomain = strings.TrimSuffix(baseDomain, "/")

	return urlDomain == baseDomain
}

// ==================== API plumbing ====================

// backlogUser mirrors the user object in Backlog API responses
type backlogUser struct {
	ID     int64  `json:"id"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// backlogStatus mirrors the pull request status object.
// Status names are Open, Closed and Merged.
type backlogStatus struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// backlogPullRequest mirrors the Backlog pull request object
type backlogPullRequest struct {
	ID           int64         `json:"id"`
	Number       int           `json:"number"`
	Summary      string        `json:"summary"`
	Description  string        `json:"description"`
	Base         string        `json:"base"`
	Branch       string        `json:"branch"`
	Status       backlogStatus `json:"status"`
	BaseCommit   string        `json:"baseCommit"`
	BranchCommit string        `json:"branchCommit"`
	CreatedUser  backlogUser   `json:"createdUser"`
}

// backlogComment mirrors the pull request comment object
type backlogComment struct {
	ID          int64       `json:"id"`
	Content     string      `json:"content"`
	CreatedUser backlogUser `json:"createdUser"`
	Created     string      `json:"created"`
}

// doJSON performs a Backlog API request and decodes the JSON response into out.
// The API key always travels in the query string; form parameters are sent
// urlencoded in the request body.
func (p *BacklogProvider) doJSON(ctx context.Context, method, path string, query, form url.Values, out interface{}) error {
	q := url.Values{}
	for key, values := range query {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	q.Set("apiKey", p.apiKey)

	endpoint := p.baseURL + path + "?" + q.Encode()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("backlog API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// prPath returns the API path for a repository's pull requests
func prPath(projectKey, repoName string) string {
	return fmt.Sprintf("/api/v2/projects/%s/git/repositories/%s/pullRequests",
		url.PathEscape(projectKey), url.PathEscape(repoName))
}

// prWebURL builds the Backlog web URL for a pull request
func (p *BacklogProvider) prWebURL(projectKey, repoName string, number int) string {
	return fmt.Sprintf("%s/git/%s/%s/pullRequests/%d", p.baseURL, projectKey, repoName, number)
}

// gitCloneURL builds the HTTPS clone URL for a repository
func (p *BacklogProvider) gitCloneURL(projectKey, repoName string) string {
	return fmt.Sprintf("%s/git/%s/%s.git", p.baseURL, projectKey, repoName)
}

// toPullRequest converts a Backlog pull request to the provider type
func (p *BacklogProvider) toPullRequest(projectKey, repoName string, pr *backlogPullRequest) *provider.PullRequest {
	return &provider.PullRequest{
		Number:      pr.Number,
		Title:       pr.Summary,
		Description: pr.Description,
		State:       strings.ToLower(pr.Status.Name),
		HeadBranch:  pr.Branch,
		HeadSHA:     pr.BranchCommit,
		BaseBranch:  pr.Base,
		Author:      pr.CreatedUser.UserID,
		URL:         p.prWebURL(projectKey, repoName, pr.Number),
	}
}

// ==================== Provider operations ====================

// GetPullRequest retrieves pull request details
func (p *BacklogProvider) GetPullRequest(ctx context.Context, projectKey, repoName string, number int) (*provider.PullRequest, error) {
	var pr backlogPullRequest
	path := fmt.Sprintf("%s/%d", prPath(projectKey, repoName), number)
	if err := p.doJSON(ctx, http.MethodGet, path, nil, nil, &pr); err != nil {
		logger.Error("Failed to get pull request",
			zap.Error(err),
			zap.String("project", projectKey),
			zap.String("repo", repoName),
			zap.Int("number", number),
		)
		return nil, &provider.ProviderError{
			Provider: "backlog",
			Message:  "failed to get pull request",
			Err:      err,
		}
	}

	return p.toPullRequest(projectKey, repoName, &pr), nil
}

// ListOpenPullRequests lists open pull requests
func (p *BacklogProvider) ListOpenPullRequests(ctx context.Context, projectKey, repoName string) ([]*provider.PullRequest, error) {
	query := url.Values{}
	query.Add("statusId[]", statusIDOpen)
	query.Set("count", "100")

	var prs []backlogPullRequest
	if err := p.doJSON(ctx, http.MethodGet, prPath(projectKey, repoName), query, nil, &prs); err != nil {
		logger.Error("Failed to list pull requests",
			zap.Error(err),
			zap.String("project", projectKey),
			zap.String("repo", repoName),
		)
		return nil, &provider.ProviderError{
			Provider: "backlog",
			Message:  "failed to list pull requests",
			Err:      err,
		}
	}

	result := make([]*provider.PullRequest, len(prs))
	for i := range prs {
		result[i] = p.toPullRequest(projectKey, repoName, &prs[i])
	}

	return result, nil
}

// GetDiff returns the unified diff of a pull request.
// The diff is produced by fetching both branches with git; Backlog's git
// hosting authenticates over HTTPS with the configured username and token.
func (p *BacklogProvider) GetDiff(ctx context.Context, projectKey, repoName string, number int) (string, error) {
	pr, err := p.GetPullRequest(ctx, projectKey, repoName, number)
	if err != nil {
		return "", err
	}

	diff, err := gitcmd.CloneDiff(ctx, &gitcmd.DiffOptions{
		ProviderName:       "backlog",
		RepoURL:            p.gitCloneURL(projectKey, repoName),
		Token:              p.apiKey,
		Username:           p.username,
		BaseBranch:         pr.BaseBranch,
		HeadBranch:         pr.HeadBranch,
		InsecureSkipVerify: p.insecureSkipVerify,
	})
	if err != nil {
		return "", &provider.ProviderError{
			Provider: "backlog",
			Message:  "failed to get pull request diff",
			Err:      err,
		}
	}

	return diff, nil
}

// ListComments lists comments on a pull request
func (p *BacklogProvider) ListComments(ctx context.Context, projectKey, repoName string, prNumber int) ([]*provider.Comment, error) {
	// Backlog returns newest comments first; request ascending order
	query := url.Values{}
	query.Set("order", "asc")
	query.Set("count", "100")

	var comments []backlogComment
	path := fmt.Sprintf("%s/%d/comments", prPath(projectKey, repoName), prNumber)
	if err := p.doJSON(ctx, http.MethodGet, path, query, nil, &comments); err != nil {
		logger.Error("Failed to list PR comments",
			zap.Error(err),
			zap.String("project", projectKey),
			zap.String("repo", repoName),
			zap.Int("pr", prNumber),
		)
		return nil, &provider.ProviderError{
			Provider: "backlog",
			Message:  "failed to list PR comments",
			Err:      err,
		}
	}

	result := make([]*provider.Comment, len(comments))
	for i, c := range comments {
		result[i] = &provider.Comment{
			ID:        c.ID,
			Body:      c.Content,
			Author:    c.CreatedUser.UserID,
			CreatedAt: c.Created,
		}
	}

	return result, nil
}

// PostComment posts a comment on a pull request and returns the new comment id
func (p *BacklogProvider) PostComment(ctx context.Context, projectKey, repoName string, prNumber int, body string) (int64, error) {
	form := url.Values{}
	form.Set("content", body)

	var created backlogComment
	path := fmt.Sprintf("%s/%d/comments", prPath(projectKey, repoName), prNumber)
	if err := p.doJSON(ctx, http.MethodPost, path, nil, form, &created); err != nil {
		logger.Error("Failed to post PR comment",
			zap.Error(err),
			zap.String("project", projectKey),
			zap.String("repo", repoName),
			zap.Int("pr", prNumber),
		)
		return 0, &provider.ProviderError{
			Provider: "backlog",
			Message:  "failed to post PR comment",
			Err:      err,
		}
	}

	logger.Info("PR comment posted",
		zap.String("project", projectKey),
		zap.String("repo", repoName),
		zap.Int("pr", prNumber),
		zap.Int64("comment_id", created.ID),
	)
	return created.ID, nil
}

// ParseWebhook parses an incoming webhook request.
// Backlog does not sign webhook deliveries; when a secret is configured it
// is carried as a shared token in the query string or X-Webhook-Secret header.
func (p *BacklogProvider) ParseWebhook(r *http.Request, secret string) (*provider.WebhookEvent, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, &provider.ProviderError{
			Provider: "backlog",
			Message:  "failed to read webhook body",
			Err:      err,
		}
	}

	if secret != "" {
		token := r.URL.Query().Get("secret")
		if token == "" {
			token = r.Header.Get("X-Webhook-Secret")
		}
		if !hmac.Equal([]byte(token), []byte(secret)) {
			logger.Warn("Invalid webhook secret received",
				zap.String("expected_length", fmt.Sprintf("%d", len(secret))),
				zap.String("received_length", fmt.Sprintf("%d", len(token))),
			)
			return nil, &provider.ProviderError{
				Provider: "backlog",
				Message:  "invalid webhook secret",
			}
		}
	}

	var payload struct {
		Type    int `json:"type"`
		Project struct {
			ProjectKey string `json:"projectKey"`
		} `json:"project"`
		Content struct {
			Number      int    `json:"number"`
			Summary     string `json:"summary"`
			Description string `json:"description"`
			Base        string `json:"base"`
			Branch      string `json:"branch"`
			Comment     *struct {
				ID      int64  `json:"id"`
				Content string `json:"content"`
			} `json:"comment"`
			Repository struct {
				Name string `json:"name"`
			} `json:"repository"`
		} `json:"content"`
		CreatedUser struct {
			UserID string `json:"userId"`
		} `json:"createdUser"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &provider.ProviderError{
			Provider: "backlog",
			Message:  "failed to parse webhook payload",
			Err:      err,
		}
	}

	event := &provider.WebhookEvent{
		Provider:      "backlog",
		ProjectKey:    payload.Project.ProjectKey,
		RepoName:      payload.Content.Repository.Name,
		PRNumber:      payload.Content.Number,
		PRTitle:       payload.Content.Summary,
		PRDescription: payload.Content.Description,
		Sender:        payload.CreatedUser.UserID,
		RawPayload:    body,
	}
	if event.ProjectKey != "" && event.RepoName != "" && event.PRNumber > 0 {
		event.PRURL = p.prWebURL(event.ProjectKey, event.RepoName, event.PRNumber)
	}

	switch payload.Type {
	case webhookTypePRAdded:
		event.Type = provider.EventTypePullRequest
		event.Action = provider.PREventActionOpened
	case webhookTypePRUpdated:
		event.Type = provider.EventTypePullRequest
		event.Action = provider.PREventActionSynchronize
	case webhookTypePRCommented:
		event.Type = provider.EventTypeComment
		if payload.Content.Comment != nil {
			event.CommentID = payload.Content.Comment.ID
			event.CommentBody = payload.Content.Comment.Content
		}
	default:
		return nil, provider.UnsupportedEvent("backlog", fmt.Sprintf("activity type %d", payload.Type))
	}

	logger.Info("Parsed Backlog webhook",
		zap.Int("activity_type", payload.Type),
		zap.String("project", event.ProjectKey),
		zap.String("repo", event.RepoName),
		zap.Int("pr_number", event.PRNumber),
	)

	return event, nil
}

// ValidateToken validates the API key by fetching the authenticated user
func (p *BacklogProvider) ValidateToken(ctx context.Context) error {
	var user backlogUser
	if err := p.doJSON(ctx, http.MethodGet, "/api/v2/users/myself", nil, nil, &user); err != nil {
		return &provider.ProviderError{
			Provider: "backlog",
			Message:  "invalid API key",
			Err:      err,
		}
	}

	logger.Info("Backlog API key validated successfully",
		zap.String("user", user.UserID),
	)
	return nil
}
