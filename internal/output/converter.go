// Package output renders review results into markdown comments and
// publishes them to git providers.
package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/reviewpilot/reviewpilot/internal/agent/base"
)

// ReviewMarker identifies comments posted by the review pipeline.
// It renders invisibly on git platforms and lets the comment handler
// skip events raised by the pipeline's own comments.
const ReviewMarker = "<!-- reviewpilot:review -->"

// HasMarker reports whether a comment body was produced by the pipeline
func HasMarker(body string) bool {
	return strings.Contains(body, ReviewMarker)
}

// severityOrder ranks severities for display, strongest first.
// Unknown severities sort last.
var severityOrder = map[string]int{
	"critical": 0,
	"high":     1,
	"medium":   2,
	"low":      3,
	"info":     4,
}

// MarkdownOptions controls markdown generation behavior
type MarkdownOptions struct {
	// IncludeMarker prepends the hidden review marker
	IncludeMarker bool

	// IncludeHeader adds the report header
	IncludeHeader bool

	// CollapsibleRawText wraps unstructured output in a <details> tag
	CollapsibleRawText bool

	// ShowAgent adds the agent name to the metadata footer
	ShowAgent bool

	// ShowModel adds the model name to the metadata footer
	ShowModel bool
}

// CommentMarkdownOptions returns options for PR comment output
func CommentMarkdownOptions() *MarkdownOptions {
	return &MarkdownOptions{
		IncludeMarker:      true,
		IncludeHeader:      true,
		CollapsibleRawText: true,
		ShowAgent:          true,
		ShowModel:          true,
	}
}

// ConvertToMarkdown converts a review result to markdown.
// This is the unified conversion function for comments and API responses.
func ConvertToMarkdown(result *base.ReviewResult, opts *MarkdownOptions) string {
	if opts == nil {
		opts = &MarkdownOptions{}
	}

	var sb strings.Builder

	if opts.IncludeMarker {
		sb.WriteString(ReviewMarker)
		sb.WriteString("\n\n")
	}

	if opts.IncludeHeader {
		sb.WriteString("## Code Review\n\n")
	}

	hasContent := false

	if result.Summary != "" {
		sb.WriteString(result.Summary)
		sb.WriteString("\n\n")
		hasContent = true
	}

	if len(result.Findings) > 0 {
		writeFindings(&sb, result.Findings)
		hasContent = true
	} else if result.Summary != "" {
		sb.WriteString("No issues found in this review.\n\n")
	}

	// Unstructured output: fall back to the raw agent text
	if !hasContent && result.Text != "" {
		if opts.CollapsibleRawText {
			sb.WriteString("<details>\n<summary>Review Output</summary>\n\n")
			sb.WriteString(result.Text)
			sb.WriteString("\n\n</details>\n\n")
		} else {
			sb.WriteString(result.Text)
			sb.WriteString("\n\n")
		}
		hasContent = true
	}

	if !hasContent {
		sb.WriteString("**No review content available.**\n\n")
		if result.Error != "" {
			sb.WriteString(fmt.Sprintf("**Error**: %s\n\n", result.Error))
		} else {
			sb.WriteString("The review did not return any content. Please check the execution logs.\n")
		}
	}

	// Append metadata footer if configured
	metadata := BuildMetadataString(opts, result.AgentName, result.ModelName)
	if metadata != "" {
		sb.WriteString("---\n\n")
		sb.WriteString(metadata)
		sb.WriteString("\n")
	}

	return sb.String()
}

// writeFindings renders the findings section, strongest severity first
func writeFindings(sb *strings.Builder, findings []base.Finding) {
	sorted := make([]base.Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return severityRank(sorted[i].Severity) < severityRank(sorted[j].Severity)
	})

	sb.WriteString(fmt.Sprintf("### Findings (%d)\n\n", len(sorted)))

	for i, f := range sorted {
		sb.WriteString(fmt.Sprintf("**%d.** %s **[%s]**", i+1, formatLocation(f), f.Severity))
		if f.Category != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", f.Category))
		}
		sb.WriteString("\n\n")

		if f.Message != "" {
			sb.WriteString(f.Message)
			sb.WriteString("\n\n")
		}

		if f.Suggestion != "" {
			sb.WriteString(fmt.Sprintf("> **Suggestion**: %s\n\n", f.Suggestion))
		}
	}
}

// formatLocation renders the file reference of a finding
func formatLocation(f base.Finding) string {
	if f.File == "" {
		return "`(general)`"
	}
	if f.Line > 0 {
		return fmt.Sprintf("`%s:%d`", f.File, f.Line)
	}
	return fmt.Sprintf("`%s`", f.File)
}

func severityRank(severity string) int {
	if rank, ok := severityOrder[strings.ToLower(severity)]; ok {
		return rank
	}
	return len(severityOrder)
}
