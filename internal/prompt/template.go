package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// templateSources lists the named templates making up a review prompt.
// Output format instructions are not part of the set; the Builder appends
// them after rendering.
var templateSources = []struct {
	name string
	text string
}{
	{"main", mainTemplate},
	{"system_role", systemRoleTemplate},
	{"constraints", constraintsTemplate},
	{"context", contextTemplate},
	{"diff", diffTemplate},
}

func newTemplate() *template.Template {
	t := template.New("prompt").Funcs(template.FuncMap{
		"join":     strings.Join,
		"bullet":   bullet,
		"numbered": numbered,
		"quote":    quote,
	})
	for _, src := range templateSources {
		template.Must(t.New(src.name).Parse(src.text))
	}
	return t
}

// Renderer renders prompt specifications into prompt text
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer creates a new prompt renderer
func NewRenderer() *Renderer {
	return &Renderer{tmpl: newTemplate()}
}

// Render renders a Spec into prompt text
func (r *Renderer) Render(spec *Spec) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "main", spec); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

// QuickRender renders a spec with default settings
func QuickRender(spec *Spec) (string, error) {
	return NewRenderer().Render(spec)
}

// bullet renders items as a markdown list
func bullet(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return "- " + strings.Join(items, "\n- ") + "\n"
}

// numbered renders items as an ordered markdown list
func numbered(items []string) string {
	var sb strings.Builder
	for i, item := range items {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, item)
	}
	return sb.String()
}

// quote renders text as a markdown blockquote
func quote(s string) string {
	if s == "" {
		return ""
	}
	return "> " + strings.ReplaceAll(s, "\n", "\n> ")
}

const mainTemplate = `{{template "system_role" .SystemRole}}

{{template "constraints" .Constraints}}

{{template "context" .Context}}

{{template "diff" .}}`

const systemRoleTemplate = `## Role

{{.Description}}
`

const constraintsTemplate = `## Constraints
{{- if .ScopeControl}}

### Scope Control
{{numbered .ScopeControl}}
{{- end}}
{{- if .FocusOnIssuesOnly}}

### Focus
- Focus ONLY on reporting issues and risks found in the code
- Do NOT summarize what the changes do or restate their purpose
- Do NOT praise the changes or remark on their quality in general terms
{{- end}}

### Severity
Levels: {{join .SeverityLevels ", "}}

- Judge severity by the actual impact of the issue; never inflate it.

### Output Style
- Reply with the review as plain text. Never create or write files.
{{- if .Tone}}
- Tone: {{.Tone}}
{{- end}}
{{- if .Concise}}
- Be concise.
{{- end}}
{{- if .NoEmoji}}
- Do NOT use emojis.
{{- end}}
{{- if .Language}}
- Response language: {{.Language}}
{{- end}}
{{- if .Guidelines}}

### Project Guidelines
Apply these project-specific guidelines when reviewing:

{{.Guidelines}}
{{- end}}`

const contextTemplate = `## Context

This is a code review for a Pull Request / Merge Request.

### Pull Request
{{.ProjectKey}}/{{.RepoName}} PR #{{.PRNumber}}{{if .PRTitle}}: {{.PRTitle}}{{end}}
{{- if .Provider}}
Provider: {{.Provider}}
{{- end}}
{{- if .PRDescription}}

Description:

{{quote .PRDescription}}
{{- end}}
{{- if .ChangedFiles}}

### Changed Files
{{bullet .ChangedFiles}}
{{- end}}`

const diffTemplate = `## Diff

Review the following unified diff. Line numbers in findings must refer
to the new file version.

` + "```diff\n{{.Diff}}\n```"
