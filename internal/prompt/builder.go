package prompt

import (
	"fmt"
	"os"
	"strings"

	"github.com/reviewpilot/reviewpilot/internal/agent/base"
)

// defaultRole is the reviewer persona used for every review.
const defaultRole = "You are an experienced software engineer performing a code review. " +
	"You review pull request diffs for correctness, security, performance and maintainability issues."

// defaultScopeControl restricts the review to the submitted diff.
var defaultScopeControl = []string{
	"Review ONLY the code changed in this diff",
	"Do NOT review or comment on files outside the diff",
	"Do NOT attempt to run, build or modify any code",
}

// Options configures prompt building.
type Options struct {
	// OutputLanguage is the human-readable language instruction for the
	// response (e.g., "Chinese (Simplified Chinese preferred)").
	// Empty means the agent's default language.
	OutputLanguage string

	// Guidelines holds project-specific review guidelines markdown,
	// inlined into every prompt. Empty to omit.
	Guidelines string
}

// Builder builds review prompts from agent requests
type Builder struct {
	renderer *Renderer
	format   *FormatInstructionBuilder
	opts     Options
}

// NewBuilder creates a new prompt builder
func NewBuilder(opts Options) *Builder {
	return &Builder{
		renderer: NewRenderer(),
		format:   NewFormatInstructionBuilder(),
		opts:     opts,
	}
}

// LoadGuidelines reads a guidelines markdown file for Options.Guidelines.
// Returns an empty string when path is empty.
func LoadGuidelines(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read guidelines file %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Build renders the full prompt for a review request,
// including the output format instructions
func (b *Builder) Build(req *base.ReviewRequest) (string, error) {
	spec := b.buildSpec(req)

	text, err := b.renderer.Render(spec)
	if err != nil {
		return "", err
	}

	return text + b.format.Build(b.opts.OutputLanguage), nil
}

// buildSpec converts a review request into a prompt specification
func (b *Builder) buildSpec(req *base.ReviewRequest) *Spec {
	return &Spec{
		SystemRole: SystemRoleSpec{
			Description: defaultRole,
		},
		Constraints: ConstraintsSpec{
			ScopeControl:      defaultScopeControl,
			FocusOnIssuesOnly: true,
			SeverityLevels:    severityLevels,
			Tone:              "constructive",
			Concise:           true,
			NoEmoji:           true,
			Language:          b.opts.OutputLanguage,
			Guidelines:        b.opts.Guidelines,
		},
		Context: ContextSpec{
			Provider:      req.Provider,
			ProjectKey:    req.ProjectKey,
			RepoName:      req.RepoName,
			PRNumber:      req.PRNumber,
			PRTitle:       req.PRTitle,
			PRDescription: req.PRBody,
			ChangedFiles:  req.ChangedFiles,
		},
		Diff: req.Diff,
	}
}
