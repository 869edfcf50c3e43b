// Package gitlab implements the Git provider interface for GitLab.
// It supports both GitLab.com (SaaS) and self-hosted GitLab instances.
package gitlab

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot/internal/git/provider"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

const (
	// defaultPerPage is the page size for list calls
	defaultPerPage = 100

	// defaultGitLabURL is the base URL of GitLab SaaS
	defaultGitLabURL = "https://gitlab.com"
)

func init() {
	provider.Register("gitlab", NewProvider)
}

// GitLabProvider implements the Provider interface for GitLab
type GitLabProvider struct {
	client  *gitlab.Client
	token   string
	baseURL string
}

// NewProvider creates a new GitLab provider instance
func NewProvider(opts *provider.ProviderOptions) (provider.Provider, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultGitLabURL
	}

	var clientOpts []gitlab.ClientOptionFunc
	if baseURL != defaultGitLabURL {
		clientOpts = append(clientOpts, gitlab.WithBaseURL(baseURL))
	}
	if opts.InsecureSkipVerify {
		clientOpts = append(clientOpts, gitlab.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // User explicitly enabled insecure mode
			},
		}))
		logger.Warn("GitLab client configured with InsecureSkipVerify=true, SSL certificate verification is disabled")
	}

	client, err := gitlab.NewClient(opts.Token, clientOpts...)
	if err != nil {
		return nil, apiError("failed to create gitlab client", err)
	}

	logger.Info("GitLab provider initialized",
		zap.String("base_url", baseURL),
		zap.Bool("insecure_skip_verify", opts.InsecureSkipVerify),
	)

	return &GitLabProvider{
		client:  client,
		token:   opts.Token,
		baseURL: baseURL,
	}, nil
}

// apiError tags an error with this provider
func apiError(message string, err error) error {
	return &provider.ProviderError{Provider: "gitlab", Message: message, Err: err}
}

// Name returns the provider name
func (p *GitLabProvider) Name() string {
	return "gitlab"
}

// GetBaseURL returns the base URL of the provider
func (p *GitLabProvider) GetBaseURL() string {
	if p.baseURL == "" {
		return defaultGitLabURL
	}
	return p.baseURL
}

// isDefaultGitLab reports whether the provider targets GitLab SaaS
// rather than a self-hosted instance
func (p *GitLabProvider) isDefaultGitLab() bool {
	return p.baseURL == "" || p.baseURL == defaultGitLabURL
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
func (p *GitLabProvider) hostFromBaseURL() string {
	host := strings.TrimPrefix(p.GetBaseURL(), "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimSuffix(host, "/")
}

// MatchesURL checks if the given repository or MR URL belongs to this
// GitLab instance
func (p *GitLabProvider) MatchesURL(repoURL string) bool {
	if repoURL == "" {
		return false
	}

	url := normalizeURL(repoURL)
	domain, _, _ := strings.Cut(url, "/")

	if p.isDefaultGitLab() {
		return strings.Contains(domain, "gitlab.com")
	}

	host := p.hostFromBaseURL()
	hostDomain, _, _ := strings.Cut(host, "/")
	return domain == hostDomain || strings.HasPrefix(url, host)
}

// projectPath returns the GitLab project path
func projectPath(projectKey, repoName string) string {
	return projectKey + "/" + repoName
}

// toPullRequest converts a GitLab merge request to the provider type.
// It takes the basic variant, which carries every field used here; full
// merge requests embed it.
func toPullRequest(mr *gitlab.BasicMergeRequest) *provider.PullRequest {
	return &provider.PullRequest{
		Number:      int(mr.IID),
		Title:       mr.Title,
		Description: mr.Description,
		State:       mr.State,
		HeadBranch:  mr.SourceBranch,
		HeadSHA:     mr.SHA,
		BaseBranch:  mr.TargetBranch,
		Author:      mr.Author.Username,
		URL:         mr.WebURL,
	}
}

// GetPullRequest retrieves merge request details
func (p *GitLabProvider) GetPullRequest(ctx context.Context, projectKey, repoName string, number int) (*provider.PullRequest, error) {
	mr, _, err := p.client.MergeRequests.GetMergeRequest(projectPath(projectKey, repoName), int64(number), nil)
	if err != nil {
		logger.Error("Failed to get merge request",
			zap.Error(err),
			zap.String("project", projectKey),
			zap.String("repo", repoName),
			zap.Int("number", number),
		)
		return nil, apiError("failed to get merge request", err)
	}

	return toPullRequest(&mr.BasicMergeRequest), nil
}

// ListOpenPullRequests lists open merge requests
func (p *GitLabProvider) ListOpenPullRequests(ctx context.Context, projectKey, repoName string) ([]*provider.PullRequest, error) {
	state := "opened"
	mrs, _, err := p.client.MergeRequests.ListProjectMergeRequests(projectPath(projectKey, repoName), &gitlab.ListProjectMergeRequestsOptions{
		State:       &state,
		ListOptions: gitlab.ListOptions{PerPage: defaultPerPage},
	})
	if err != nil {
		logger.Error("Failed to list merge requests",
			zap.Error(err),
			zap.String("project", projectKey),
			zap.String("repo", repoName),
		)
		return nil, apiError("failed to list merge requests", err)
	}

	result := make([]*provider.PullRequest, len(mrs))
	for i, mr := range mrs {
		result[i] = toPullRequest(mr)
	}
	return result, nil
}

// GetDiff returns the unified diff of a merge request.
// GitLab serves per-file diffs without git headers, so the standard
// "diff --git" and "---"/"+++" lines are reconstructed here.
func (p *GitLabProvider) GetDiff(ctx context.Context, projectKey, repoName string, number int) (string, error) {
	pid := projectPath(projectKey, repoName)

	var sb strings.Builder
	for page := int64(1); ; page++ {
		diffs, _, err := p.client.MergeRequests.ListMergeRequestDiffs(pid, int64(number), &gitlab.ListMergeRequestDiffsOptions{
			ListOptions: gitlab.ListOptions{
				Page:    page,
				PerPage: defaultPerPage,
			},
		})
		if err != nil {
			logger.Error("Failed to get merge request diff",
				zap.Error(err),
				zap.String("project", projectKey),
				zap.String("repo", repoName),
				zap.Int("number", number),
			)
			return "", apiError("failed to get merge request diff", err)
		}

		for _, d := range diffs {
			from, to := "a/"+d.OldPath, "b/"+d.NewPath
			fmt.Fprintf(&sb, "diff --git %s %s\n", from, to)
			if d.NewFile {
				from = "/dev/null"
			}
			if d.DeletedFile {
				to = "/dev/null"
			}
			fmt.Fprintf(&sb, "--- %s\n+++ %s\n", from, to)
			sb.WriteString(d.Diff)
			if d.Diff != "" && !strings.HasSuffix(d.Diff, "\n") {
				sb.WriteByte('\n')
			}
		}

		if len(diffs) < defaultPerPage {
			return sb.String(), nil
		}
	}
}

// ListComments lists comments (notes) on a MR. System notes such as
// "merged branch X into Y" are filtered out.
func (p *GitLabProvider) ListComments(ctx context.Context, projectKey, repoName string, prNumber int) ([]*provider.Comment, error) {
	notes, _, err := p.client.Notes.ListMergeRequestNotes(projectPath(projectKey, repoName), int64(prNumber), &gitlab.ListMergeRequestNotesOptions{
		ListOptions: gitlab.ListOptions{PerPage: defaultPerPage},
	})
	if err != nil {
		logger.Error("Failed to list MR comments",
			zap.Error(err),
			zap.String("project", projectKey),
			zap.String("repo", repoName),
			zap.Int("mr", prNumber),
		)
		return nil, apiError("failed to list MR comments", err)
	}

	result := make([]*provider.Comment, 0, len(notes))
	for _, note := range notes {
		if note.System {
			continue
		}

		createdAt := ""
		if note.CreatedAt != nil {
			createdAt = note.CreatedAt.Format(time.RFC3339)
		}

		result = append(result, &provider.Comment{
			ID:        note.ID,
			Body:      note.Body,
			Author:    note.Author.Username,
			CreatedAt: createdAt,
		})
	}
	return result, nil
}

// PostComment posts a comment (note) on a MR and returns the new note id
func (p *GitLabProvider) PostComment(ctx context.Context, projectKey, repoName string, prNumber int, body string) (int64, error) {
	note, _, err := p.client.Notes.CreateMergeRequestNote(projectPath(projectKey, repoName), int64(prNumber), &gitlab.CreateMergeRequestNoteOptions{
		Body: &body,
	})
	if err != nil {
		logger.Error("Failed to post MR comment",
			zap.Error(err),
			zap.String("project", projectKey),
			zap.String("repo", repoName),
			zap.Int("mr", prNumber),
		)
		return 0, apiError("failed to post MR comment", err)
	}

	logger.Info("MR comment posted",
		zap.String("project", projectKey),
		zap.String("repo", repoName),
		zap.Int("mr", prNumber),
		zap.Int64("note_id", note.ID),
	)
	return note.ID, nil
}

// eventTypeOf determines the webhook event type. Some GitLab setups
// omit the X-Gitlab-Event header, so the body's object_kind field is
// used as a fallback.
func eventTypeOf(r *http.Request, body []byte) string {
	if eventType := r.Header.Get("X-Gitlab-Event"); eventType != "" {
		return eventType
	}

	var payload struct {
		ObjectKind string `json:"object_kind"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	switch payload.ObjectKind {
	case "merge_request":
		return "Merge Request Hook"
	case "note":
		return "Note Hook"
	}
	return ""
}

// ParseWebhook parses an incoming webhook request. GitLab authenticates
// webhooks with a shared secret in the X-Gitlab-Token header rather
// than an HMAC signature.
func (p *GitLabProvider) ParseWebhook(r *http.Request, secret string) (*provider.WebhookEvent, error) {
	if secret != "" {
		token := r.Header.Get("X-Gitlab-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			logger.Warn("Rejected GitLab webhook with invalid token")
			return nil, apiError("invalid webhook token", nil)
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, apiError("failed to read webhook body", err)
	}

	eventType := eventTypeOf(r, body)
	switch eventType {
	case "Merge Request Hook":
		return p.parseMergeRequestEvent(body)
	case "Note Hook":
		return p.parseNoteEvent(body)
	default:
		return nil, provider.UnsupportedEvent("gitlab", eventType)
	}
}

// splitProjectPath splits path_with_namespace into namespace and project
func splitProjectPath(pathWithNamespace string) (string, string, error) {
	namespace, name, ok := strings.Cut(pathWithNamespace, "/")
	if !ok {
		return "", "", apiError("invalid project path", nil)
	}
	return namespace, name, nil
}

// parseMergeRequestEvent parses a merge request webhook event
func (p *GitLabProvider) parseMergeRequestEvent(body []byte) (*provider.WebhookEvent, error) {
	var payload struct {
		User struct {
			Username string `json:"username"`
		} `json:"user"`
		Project struct {
			PathWithNamespace string `json:"path_with_namespace"`
		} `json:"project"`
		ObjectAttributes struct {
			IID         int    `json:"iid"`
			Title       string `json:"title"`
			Description string `json:"description"`
			Action      string `json:"action"`
			URL         string `json:"url"`
		} `json:"object_attributes"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apiError("failed to parse merge request event", err)
	}

	namespace, name, err := splitProjectPath(payload.Project.PathWithNamespace)
	if err != nil {
		return nil, err
	}

	attrs := payload.ObjectAttributes
	event := &provider.WebhookEvent{
		Type:          provider.EventTypeMergeRequest,
		Provider:      "gitlab",
		ProjectKey:    namespace,
		RepoName:      name,
		PRNumber:      attrs.IID,
		Action:        normalizeGitLabAction(attrs.Action),
		PRTitle:       attrs.Title,
		PRDescription: attrs.Description,
		PRURL:         attrs.URL,
		Sender:        payload.User.Username,
		RawPayload:    body,
	}
	// The payload carries only the author id, not the username.
	// On "open" the acting user is the author.
	if event.Action == provider.PREventActionOpened {
		event.Author = payload.User.Username
	}

	logger.Info("Parsed GitLab merge request webhook",
		zap.String("action", event.Action),
		zap.String("original_action", attrs.Action),
		zap.String("project", event.ProjectKey),
		zap.String("repo", event.RepoName),
		zap.Int("mr_number", event.PRNumber),
	)

	return event, nil
}

// parseNoteEvent parses a note (comment) webhook event.
// Only notes on merge requests are of interest; notes on issues, commits
// and snippets are reported as unsupported.
func (p *GitLabProvider) parseNoteEvent(body []byte) (*provider.WebhookEvent, error) {
	var payload struct {
		User struct {
			Username string `json:"username"`
		} `json:"user"`
		Project struct {
			PathWithNamespace string `json:"path_with_namespace"`
		} `json:"project"`
		ObjectAttributes struct {
			ID           int64  `json:"id"`
			Note         string `json:"note"`
			NoteableType string `json:"noteable_type"`
		} `json:"object_attributes"`
		MergeRequest struct {
			IID         int    `json:"iid"`
			Title       string `json:"title"`
			Description string `json:"description"`
			URL         string `json:"url"`
		} `json:"merge_request"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apiError("failed to parse note event", err)
	}

	if payload.ObjectAttributes.NoteableType != "MergeRequest" {
		return nil, provider.UnsupportedEvent("gitlab", "note/"+payload.ObjectAttributes.NoteableType)
	}

	namespace, name, err := splitProjectPath(payload.Project.PathWithNamespace)
	if err != nil {
		return nil, err
	}

	event := &provider.WebhookEvent{
		Type:          provider.EventTypeComment,
		Provider:      "gitlab",
		ProjectKey:    namespace,
		RepoName:      name,
		PRNumber:      payload.MergeRequest.IID,
		PRTitle:       payload.MergeRequest.Title,
		PRDescription: payload.MergeRequest.Description,
		PRURL:         payload.MergeRequest.URL,
		Sender:        payload.User.Username,
		CommentID:     payload.ObjectAttributes.ID,
		CommentBody:   payload.ObjectAttributes.Note,
		RawPayload:    body,
	}

	logger.Info("Parsed GitLab note webhook",
		zap.String("project", event.ProjectKey),
		zap.String("repo", event.RepoName),
		zap.Int("mr_number", event.PRNumber),
		zap.Int64("note_id", event.CommentID),
	)

	return event, nil
}

// ValidateToken validates the GitLab token by fetching the current user
func (p *GitLabProvider) ValidateToken(ctx context.Context) error {
	user, _, err := p.client.Users.CurrentUser()
	if err != nil {
		return apiError("invalid token", err)
	}

	logger.Info("GitLab token validated successfully",
		zap.String("username", user.Username),
	)
	return nil
}

// gitlabActionMap maps GitLab MR action names (open, update, reopen,
// close, merge) to the unified action vocabulary
var gitlabActionMap = map[string]string{
	"open":   provider.PREventActionOpened,
	"update": provider.PREventActionSynchronize,
	"reopen": provider.PREventActionReopened,
	"close":  "closed",
	"closed": "closed",
	"merge":  "merged",
	"merged": "merged",
}

// normalizeGitLabAction maps a GitLab MR action to the unified format.
// Unknown actions pass through lowercased.
func normalizeGitLabAction(action string) string {
	action = strings.ToLower(action)
	if mapped, ok := gitlabActionMap[action]; ok {
		return mapped
	}
	return action
}
