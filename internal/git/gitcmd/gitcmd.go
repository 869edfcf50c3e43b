// Package gitcmd shells out to the git binary for operations the provider
// APIs cannot serve, primarily producing a pull request diff for providers
// without a raw-diff endpoint.
package gitcmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot/pkg/logger"
	"github.com/reviewpilot/reviewpilot/pkg/telemetry"
)

// DefaultTimeout bounds a whole CloneDiff run.
// This prevents a hung fetch from blocking the review queue indefinitely.
const DefaultTimeout = 5 * time.Minute

// DiffOptions describes how to reach a repository and which branches to compare
type DiffOptions struct {
	// ProviderName is used for logging, metrics and error messages
	ProviderName string

	// RepoURL is the Git clone URL WITHOUT embedded credentials
	RepoURL string

	// Token is the authentication token, passed via GIT_ASKPASS credential
	// helper rather than embedded in the URL
	Token string

	// Username is the username git presents for token authentication.
	// Defaults to "oauth2" when empty.
	Username string

	// BaseBranch and HeadBranch are the two sides of the comparison
	BaseBranch string
	HeadBranch string

	// InsecureSkipVerify skips SSL certificate verification
	InsecureSkipVerify bool

	// Timeout bounds the whole operation. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// MaskToken masks a token for safe logging, showing first 4 and last 4 characters
// Returns "****" for tokens <= 8 characters, or "xxxx...xxxx" format for longer tokens
func MaskToken(token string) string {
	if token == "" {
		return "(empty)"
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// createCredentialHelper creates a temporary credential helper script that provides the token
// Returns the script path and a cleanup function that should be deferred
// This uses the GIT_ASKPASS mechanism for secure token passing
func createCredentialHelper(token string) (string, func(), error) {
	tmpFile, err := os.CreateTemp("", "git-credential-helper-*.sh")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create credential helper: %w", err)
	}

	// Script content that outputs the password when git asks for credentials
	var scriptContent string
	if runtime.GOOS == "windows" {
		scriptContent = fmt.Sprintf("@echo off\necho password=%s\n", token)
	} else {
		scriptContent = fmt.Sprintf("#!/bin/sh\necho \"password=%s\"\n", token)
	}

	if _, err := tmpFile.WriteString(scriptContent); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", nil, fmt.Errorf("failed to write credential helper: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpFile.Name())
		return "", nil, fmt.Errorf("failed to close credential helper: %w", err)
	}

	// Make script executable on Unix
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpFile.Name(), 0700); err != nil {
			os.Remove(tmpFile.Name())
			return "", nil, fmt.Errorf("failed to make credential helper executable: %w", err)
		}
	}

	cleanup := func() {
		os.Remove(tmpFile.Name())
	}

	return tmpFile.Name(), cleanup, nil
}

// buildEnv assembles the extra environment for git commands, including the
// credential helper when a token is configured. The returned cleanup must
// be called after the last git command using the environment.
func buildEnv(opts *DiffOptions) ([]string, func(), error) {
	// Always prevent interactive credential prompts
	env := []string{"GIT_TERMINAL_PROMPT=0"}

	if opts.InsecureSkipVerify {
		env = append(env, "GIT_SSL_NO_VERIFY=true")
	}

	cleanup := func() {}
	if opts.Token != "" {
		helperPath, remove, err := createCredentialHelper(opts.Token)
		if err != nil {
			return nil, nil, err
		}
		cleanup = remove

		username := opts.Username
		if username == "" {
			username = "oauth2"
		}
		env = append(env,
			"GIT_ASKPASS="+helperPath,
			"GIT_USERNAME="+username,
		)
	}

	return env, cleanup, nil
}

// runGit executes a git command, discarding stdout and returning stderr in the error
func runGit(ctx context.Context, env []string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(cmd.Environ(), env...)
	cmd.Stdout = io.Discard

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git %s failed: %w (stderr: %s)", args[0], err, strings.TrimSpace(stderrBuf.String()))
	}
	return nil
}

// runGitOutput executes a git command and returns its stdout
func runGitOutput(ctx context.Context, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(cmd.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s failed: %w (stderr: %s)", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// CloneDiff fetches the base and head branches of a repository into a
// throwaway directory and returns the three-dot diff between them, the same
// range a pull request page shows. The working tree is removed before return.
func CloneDiff(ctx context.Context, opts *DiffOptions) (string, error) {
	if opts == nil {
		return "", fmt.Errorf("diff options are nil")
	}
	if opts.RepoURL == "" || opts.BaseBranch == "" || opts.HeadBranch == "" {
		return "", fmt.Errorf("repo URL, base branch and head branch are required")
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	metrics := telemetry.GetMetrics()

	logger.Debug("Producing PR diff via git",
		zap.String("provider", opts.ProviderName),
		zap.String("repo_url", opts.RepoURL),
		zap.String("base", opts.BaseBranch),
		zap.String("head", opts.HeadBranch),
		zap.String("token", MaskToken(opts.Token)),
	)

	diff, err := cloneDiff(timeoutCtx, opts)
	duration := time.Since(start)
	metrics.RecordGitClone(ctx, opts.ProviderName, err == nil, duration.Seconds())

	if err != nil {
		if timeoutCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("git diff timed out after %v: %w", timeout, err)
		}
		logger.Error("Failed to produce PR diff via git",
			zap.Error(err),
			zap.String("provider", opts.ProviderName),
			zap.String("base", opts.BaseBranch),
			zap.String("head", opts.HeadBranch),
			zap.Duration("duration", duration),
		)
		return "", err
	}

	logger.Debug("Produced PR diff via git",
		zap.String("provider", opts.ProviderName),
		zap.Int("diff_bytes", len(diff)),
		zap.Duration("duration", duration),
	)
	return diff, nil
}

func cloneDiff(ctx context.Context, opts *DiffOptions) (string, error) {
	tmpDir, err := os.MkdirTemp("", "reviewpilot-diff-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	env, cleanup, err := buildEnv(opts)
	if err != nil {
		return "", err
	}
	defer cleanup()

	if err := runGit(ctx, env, "init", "--quiet", tmpDir); err != nil {
		return "", err
	}

	if err := runGit(ctx, env, "-C", tmpDir, "remote", "add", "origin", opts.RepoURL); err != nil {
		return "", err
	}

	// Fetch only the two branches under comparison, without tags, into
	// remote-tracking refs so the diff range reads like a PR page
	baseRef := fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", opts.BaseBranch, opts.BaseBranch)
	headRef := fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", opts.HeadBranch, opts.HeadBranch)
	if err := runGit(ctx, env, "-C", tmpDir, "fetch", "--no-tags", "origin", baseRef, headRef); err != nil {
		return "", fmt.Errorf("%s: %w", fetchErrorHint(opts.ProviderName, err.Error()), err)
	}

	// Three-dot range: changes on head since it diverged from base
	return runGitOutput(ctx, env, "-C", tmpDir, "diff", "origin/"+opts.BaseBranch+"..."+"origin/"+opts.HeadBranch)
}

// fetchErrorHint maps common fetch failures to actionable messages
func fetchErrorHint(providerName, stderrOutput string) string {
	if strings.Contains(stderrOutput, "couldn't find remote ref") {
		return "branch not found on remote: the PR may have been closed or its branch deleted"
	}

	if strings.Contains(stderrOutput, "Authentication failed") ||
		strings.Contains(stderrOutput, "could not read Username") {
		tokenEnvVar := fmt.Sprintf("RP_%s_TOKEN", strings.ToUpper(providerName))
		return fmt.Sprintf("authentication failed: check your %s", tokenEnvVar)
	}

	if strings.Contains(stderrOutput, "SSL certificate problem") {
		return "SSL certificate verification failed: consider setting insecure_skip_verify: true"
	}

	return "failed to fetch branches"
}

// DiffStats summarizes a unified diff
type DiffStats struct {
	FilesChanged int
	LinesAdded   int
	LinesDeleted int
}

// ParseDiffStats counts changed files and added/removed lines in a unified
// diff. File headers ("+++", "---") are not counted as changes.
func ParseDiffStats(diff string) DiffStats {
	var stats DiffStats
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			stats.FilesChanged++
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			// file headers
		case strings.HasPrefix(line, "+"):
			stats.LinesAdded++
		case strings.HasPrefix(line, "-"):
			stats.LinesDeleted++
		}
	}
	return stats
}

// ChangedFilePaths extracts the file paths touched by a unified diff from
// its "+++" headers. Deleted files fall back to the "---" header so they
// are listed under their old path instead of /dev/null.
func ChangedFilePaths(diff string) []string {
	var paths []string
	seen := make(map[string]struct{})

	add := func(path string) {
		if path == "" || path == "/dev/null" {
			return
		}
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		if !strings.HasPrefix(line, "+++ ") {
			continue
		}
		path := stripDiffPathPrefix(strings.TrimPrefix(line, "+++ "))
		if path == "" && i > 0 && strings.HasPrefix(lines[i-1], "--- ") {
			path = stripDiffPathPrefix(strings.TrimPrefix(lines[i-1], "--- "))
		}
		add(path)
	}
	return paths
}

// stripDiffPathPrefix removes the a/ or b/ prefix git places in front of
// diff header paths. /dev/null maps to an empty string.
func stripDiffPathPrefix(path string) string {
	path = strings.TrimSpace(path)
	if path == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(path, "a/") || strings.HasPrefix(path, "b/") {
		return path[2:]
	}
	return path
}
