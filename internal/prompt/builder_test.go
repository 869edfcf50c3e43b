package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reviewpilot/reviewpilot/internal/agent/base"
)

func testRequest() *base.ReviewRequest {
	return &base.ReviewRequest{
		Provider:     "github",
		ProjectKey:   "owner",
		RepoName:     "repo",
		PRNumber:     42,
		PRTitle:      "Test PR",
		PRBody:       "Test description",
		ChangedFiles: []string{"file1.go", "file2.go"},
		Diff:         "diff --git a/file1.go b/file1.go\n+package main",
		RequestID:    "req-1",
	}
}

// TestNewBuilder tests creating a new builder
func TestNewBuilder(t *testing.T) {
	builder := NewBuilder(Options{})
	if builder == nil {
		t.Error("NewBuilder() returned nil")
	}
}

// TestBuilder_Build tests building the full prompt from a request
func TestBuilder_Build(t *testing.T) {
	t.Run("basic request", func(t *testing.T) {
		builder := NewBuilder(Options{})

		result, err := builder.Build(testRequest())
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}

		if !strings.Contains(result, "experienced software engineer") {
			t.Error("Expected default role description in prompt")
		}

		if !strings.Contains(result, "owner/repo PR #42: Test PR") {
			t.Error("Expected PR identification in prompt")
		}

		if !strings.Contains(result, "> Test description") {
			t.Error("Expected quoted PR description in prompt")
		}

		if !strings.Contains(result, "- file1.go") || !strings.Contains(result, "- file2.go") {
			t.Error("Expected changed files in prompt")
		}

		if !strings.Contains(result, "```diff") {
			t.Error("Expected fenced diff in prompt")
		}

		if !strings.Contains(result, "## Output Format") {
			t.Error("Expected output format instructions appended to prompt")
		}
	})

	t.Run("includes scope control defaults", func(t *testing.T) {
		builder := NewBuilder(Options{})

		result, err := builder.Build(testRequest())
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}

		if !strings.Contains(result, "Review ONLY the code changed in this diff") {
			t.Error("Expected scope control instructions in prompt")
		}
		if !strings.Contains(result, "Do NOT attempt to run, build or modify any code") {
			t.Error("Expected no-execution instruction in prompt")
		}
	})

	t.Run("with output language", func(t *testing.T) {
		builder := NewBuilder(Options{
			OutputLanguage: "Japanese",
		})

		result, err := builder.Build(testRequest())
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}

		if !strings.Contains(result, "Response language: Japanese") {
			t.Error("Expected response language constraint in prompt")
		}
		if !strings.Contains(result, "MUST be in Japanese") {
			t.Error("Expected language instruction in output format section")
		}
	})

	t.Run("with guidelines", func(t *testing.T) {
		builder := NewBuilder(Options{
			Guidelines: "Prefer table-driven tests.",
		})

		result, err := builder.Build(testRequest())
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}

		if !strings.Contains(result, "### Project Guidelines") {
			t.Error("Expected guidelines section in prompt")
		}
		if !strings.Contains(result, "Prefer table-driven tests.") {
			t.Error("Expected guidelines content in prompt")
		}
	})
}

// TestLoadGuidelines tests reading the guidelines file
func TestLoadGuidelines(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		content, err := LoadGuidelines("")
		if err != nil {
			t.Fatalf("LoadGuidelines failed: %v", err)
		}
		if content != "" {
			t.Errorf("Expected empty content, got %q", content)
		}
	})

	t.Run("reads and trims file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "guidelines.md")
		if err := os.WriteFile(path, []byte("# Guidelines\n\nBe nice.\n\n"), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}

		content, err := LoadGuidelines(path)
		if err != nil {
			t.Fatalf("LoadGuidelines failed: %v", err)
		}
		if content != "# Guidelines\n\nBe nice." {
			t.Errorf("Unexpected content: %q", content)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadGuidelines("/nonexistent/guidelines.md")
		if err == nil {
			t.Error("Expected error for missing file")
		}
	})
}
