// Package prompt builds the review prompt sent to AI agents.
// It assembles PR context, review constraints and the diff into a
// structured prompt instructing the agent to emit JSON findings.
package prompt

// Spec is the intermediate form of a review prompt: everything the
// template needs, decoupled from where the values came from.
type Spec struct {
	// SystemRole sets the reviewer persona
	SystemRole SystemRoleSpec

	// Constraints carries the behavioral rules for the review
	Constraints ConstraintsSpec

	// Context identifies the repository and pull request under review
	Context ContextSpec

	// Diff is the unified diff under review
	Diff string
}

// SystemRoleSpec sets the reviewer persona.
type SystemRoleSpec struct {
	// Description states the reviewer's role and focus areas
	Description string
}

// ConstraintsSpec carries the rules that shape review behavior and output.
type ConstraintsSpec struct {
	// ScopeControl limits what the reviewer may comment on,
	// e.g. "Review only code changed in this diff"
	ScopeControl []string

	// FocusOnIssuesOnly suppresses praise and change summaries;
	// the reviewer reports problems and nothing else
	FocusOnIssuesOnly bool

	// SeverityLevels lists the allowed severity values for findings
	SeverityLevels []string

	// Tone of the review text, e.g. "constructive" or "strict"
	Tone string

	// Concise asks for short finding descriptions
	Concise bool

	// NoEmoji keeps emoji out of the output
	NoEmoji bool

	// Language is a human-readable response language instruction,
	// e.g. "Chinese (Simplified Chinese preferred)"
	Language string

	// Guidelines holds project-specific review guidelines, inlined
	// from the configured guidelines file
	Guidelines string
}

// ContextSpec identifies the repository and pull request under review.
type ContextSpec struct {
	// Provider is the git provider type (github, gitlab, gitea, backlog)
	Provider string

	// ProjectKey is the repository owner, group path or project key
	ProjectKey string

	// RepoName is the repository name
	RepoName string

	// PRNumber is the PR/MR number
	PRNumber int

	// PRTitle is the PR/MR title
	PRTitle string

	// PRDescription is the PR/MR description
	PRDescription string

	// ChangedFiles lists the files touched by the diff
	ChangedFiles []string
}
