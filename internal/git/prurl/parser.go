// Package prurl parses pull request URLs from the supported Git
// providers (GitHub, GitLab, Gitea, Backlog), including self-hosted
// instances registered by host.
package prurl

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// pullPathRes matches the /owner/repo/<segment>/<number> layouts.
// GitLab is handled separately because nested groups make the project
// path variable-length.
var pullPathRes = map[string]*regexp.Regexp{
	"github":  regexp.MustCompile(`^/([^/]+)/([^/]+)/pull/(\d+)`),
	"gitea":   regexp.MustCompile(`^/([^/]+)/([^/]+)/pulls/(\d+)`),
	"backlog": regexp.MustCompile(`^/git/([^/]+)/([^/]+)/pullRequests/(\d+)`),
}

// gitlabMRRes is tried in order. The modern /-/ layout must come first:
// the legacy pattern would otherwise swallow the dash segment into the
// project path.
var gitlabMRRes = []*regexp.Regexp{
	regexp.MustCompile(`^/(.+?)/-/merge_requests/(\d+)`),
	regexp.MustCompile(`^/(.+?)/merge_requests/(\d+)`),
}

// PRInfo contains parsed information from a PR URL
type PRInfo struct {
	// Provider is the Git provider name (github, gitlab, gitea, backlog)
	Provider string

	// Host is the full host (e.g., github.com, gitlab.example.com)
	Host string

	// ProjectKey is the repository owner, group or Backlog project key
	ProjectKey string

	// RepoName is the repository name
	RepoName string

	// Number is the PR/MR number
	Number int

	// OriginalURL is the original URL that was parsed
	OriginalURL string
}

// String returns a human-readable string representation
func (info *PRInfo) String() string {
	return fmt.Sprintf("%s/%s#%d (%s)", info.ProjectKey, info.RepoName, info.Number, info.Provider)
}

// Parser parses PR URLs from different Git providers
type Parser struct {
	// customHostMappings maps custom hosts to provider names
	customHostMappings map[string]string
}

// NewParser creates a new PR URL parser
func NewParser() *Parser {
	return &Parser{
		customHostMappings: make(map[string]string),
	}
}

// RegisterHost registers a custom host mapping to a provider
// For example: RegisterHost("git.example.com", "github") for GitHub Enterprise
func (p *Parser) RegisterHost(host, provider string) {
	p.customHostMappings[strings.ToLower(host)] = provider
}

// RegisterHostsFromConfig registers the hosts of configured self-hosted
// providers so their PR URLs resolve without a path hint. Hosted
// defaults are skipped; the built-in detection already covers them.
func (p *Parser) RegisterHostsFromConfig(providers []struct {
	Type string
	URL  string
}) {
	for _, prov := range providers {
		switch host := hostOf(prov.URL); host {
		case "", "github.com", "gitlab.com", "gitea.com":
		default:
			p.RegisterHost(host, prov.Type)
		}
	}
}

// hostOf pulls the lowercased host out of a configured provider URL.
func hostOf(rawURL string) string {
	host := strings.TrimPrefix(rawURL, "https://")
	host = strings.TrimPrefix(host, "http://")
	host, _, _ = strings.Cut(host, "/")
	return strings.ToLower(host)
}

// Parse parses a PR URL and returns PRInfo
// Supported formats:
// - GitHub: https://github.com/owner/repo/pull/123
// - GitLab: https://gitlab.com/owner/repo/-/merge_requests/123
// - Gitea: https://gitea.com/owner/repo/pulls/123
// - Backlog: https://space.backlog.com/git/PROJ/repo/pullRequests/123
// - Self-hosted instances of any of the above via RegisterHost
func (p *Parser) Parse(prURL string) (*PRInfo, error) {
	prURL = strings.TrimSpace(prURL)
	if prURL == "" {
		return nil, fmt.Errorf("empty PR URL")
	}

	u, err := url.Parse(prURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL format: %w", err)
	}

	host := strings.ToLower(u.Host)
	if host == "" {
		return nil, fmt.Errorf("missing host in URL")
	}

	providerName := p.detectProvider(host, u.Path)
	if providerName == "" {
		return nil, fmt.Errorf("unsupported Git provider for host: %s", host)
	}

	info, err := parsePullPath(providerName, u.Path)
	if err != nil {
		return nil, err
	}

	info.Provider = providerName
	info.Host = host
	info.OriginalURL = prURL
	return info, nil
}

// detectProvider resolves the provider for a host, falling back to
// path-shape hints for self-hosted instances on unrecognized domains.
func (p *Parser) detectProvider(host, path string) string {
	if provider, ok := p.customHostMappings[host]; ok {
		return provider
	}
	if provider := providerForHost(host); provider != "" {
		return provider
	}
	return providerForPath(path)
}

func providerForHost(host string) string {
	switch {
	case strings.Contains(host, "github"):
		return "github"
	case strings.Contains(host, "gitlab"):
		return "gitlab"
	case strings.Contains(host, "gitea"):
		return "gitea"
	case strings.HasSuffix(host, ".backlog.com"), strings.HasSuffix(host, ".backlog.jp"):
		return "backlog"
	}
	return ""
}

// providerForPath guesses the provider from the URL layout; each
// provider embeds its pull request segment differently.
func providerForPath(path string) string {
	switch {
	case strings.Contains(path, "/pull/"):
		return "github"
	case strings.Contains(path, "/-/merge_requests/"), strings.Contains(path, "/merge_requests/"):
		return "gitlab"
	case strings.Contains(path, "/pulls/"):
		return "gitea"
	case strings.Contains(path, "/pullRequests/"):
		return "backlog"
	}
	return ""
}

// parsePullPath extracts project, repository and number from the URL
// path using the provider's layout.
func parsePullPath(providerName, path string) (*PRInfo, error) {
	if providerName == "gitlab" {
		return parseGitLabPath(path)
	}

	re, ok := pullPathRes[providerName]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", providerName)
	}
	m := re.FindStringSubmatch(path)
	if m == nil {
		return nil, fmt.Errorf("no %s pull request in URL path: %s", providerName, path)
	}

	number, err := strconv.Atoi(m[3])
	if err != nil {
		return nil, fmt.Errorf("invalid PR number: %s", m[3])
	}
	return &PRInfo{
		ProjectKey: m[1],
		RepoName:   m[2],
		Number:     number,
	}, nil
}

func parseGitLabPath(path string) (*PRInfo, error) {
	for _, re := range gitlabMRRes {
		m := re.FindStringSubmatch(path)
		if m == nil {
			continue
		}

		number, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, fmt.Errorf("invalid MR number: %s", m[2])
		}

		// The last segment is the repository, everything before it the
		// (possibly nested) group path
		idx := strings.LastIndex(m[1], "/")
		if idx < 1 {
			return nil, fmt.Errorf("invalid GitLab project path: %s", m[1])
		}
		return &PRInfo{
			ProjectKey: m[1][:idx],
			RepoName:   m[1][idx+1:],
			Number:     number,
		}, nil
	}
	return nil, fmt.Errorf("no GitLab merge request in URL path: %s", path)
}

// DefaultParser is the default PR URL parser instance
var DefaultParser = NewParser()

// Parse is a convenience function using the default parser
func Parse(prURL string) (*PRInfo, error) {
	return DefaultParser.Parse(prURL)
}
