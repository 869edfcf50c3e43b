// Package base defines the contract between the review dispatcher and
// the AI CLI agents (Cursor, Gemini, Qoder) that implement it, plus the
// registry the agent packages register themselves into.
package base

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/reviewpilot/reviewpilot/internal/config"
)

// ErrTimeout indicates the agent execution timed out
var ErrTimeout = errors.New("agent execution timeout")

// ReviewRequest represents a request to review one code submission
type ReviewRequest struct {
	// Repository information
	Provider   string `json:"provider"`    // Git provider name (github, gitlab, gitea, backlog)
	ProjectKey string `json:"project_key"` // Repository owner, group or project key
	RepoName   string `json:"repo_name"`   // Repository name

	// Pull request context
	PRNumber int    `json:"pr_number"`
	PRTitle  string `json:"pr_title,omitempty"`
	PRBody   string `json:"pr_body,omitempty"`

	// Diff is the unified diff under review
	Diff string `json:"diff"`

	// ChangedFiles lists the file paths touched by the diff
	ChangedFiles []string `json:"changed_files,omitempty"`

	// Prompt is the fully rendered prompt text. The dispatcher builds it
	// before handing the request to an agent.
	Prompt string `json:"-"`

	// Identifiers carried through for tracing and persistence
	RequestID    string `json:"request_id"`
	ReviewID     string `json:"review_id,omitempty"`
	SubmissionID string `json:"submission_id,omitempty"`

	// Model is an optional model override for this request
	Model string `json:"model,omitempty"`
}

// Finding is one structured feedback item parsed from agent output
type Finding struct {
	File       string `json:"file"`
	Line       int    `json:"line,omitempty"`
	Severity   string `json:"severity"` // low, medium, high, critical
	Category   string `json:"category,omitempty"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ReviewResult represents the outcome of one agent review.
// Summary and Findings are populated when the agent output parses as the
// expected JSON document; Text always carries the raw output.
type ReviewResult struct {
	RequestID string `json:"request_id"`

	// Parsed review content
	Summary  string    `json:"summary,omitempty"`
	Findings []Finding `json:"findings,omitempty"`

	// Text stores the raw agent output
	Text string `json:"text,omitempty"`

	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`

	AgentName    string `json:"agent_name"`
	AgentVersion string `json:"agent_version,omitempty"`
	ModelName    string `json:"model_name,omitempty"` // Model name used for this review

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// NewResult creates a ReviewResult primed for the happy path; error
// handling flips Success off
func NewResult(requestID, agentName string) *ReviewResult {
	return &ReviewResult{
		RequestID: requestID,
		AgentName: agentName,
		Success:   true,
	}
}

// Agent is implemented by every AI code review backend
type Agent interface {
	// Name returns the agent identifier
	Name() string

	// Version returns the agent version
	Version() string

	// Available checks if the agent is available for use
	Available() bool

	// Review performs a code review for the given request.
	// The request's Prompt must be set by the caller.
	Review(ctx context.Context, req *ReviewRequest) (*ReviewResult, error)
}

// AgentFactory creates an Agent instance from its configuration
type AgentFactory func(cfg config.AgentDetail) (Agent, error)

// Registry maps agent names to their factories. Agent packages add
// themselves in init(), so registration order follows import order.
var Registry = make(map[string]AgentFactory)

// Register adds an agent factory under the given name
func Register(name string, factory AgentFactory) {
	Registry[name] = factory
}

// Create instantiates the named agent, or returns an AgentError when no
// factory is registered under that name
func Create(name string, cfg config.AgentDetail) (Agent, error) {
	factory, ok := Registry[name]
	if !ok {
		return nil, &AgentError{Agent: name, Message: "agent not registered"}
	}
	return factory(cfg)
}

// List returns all registered agent names in sorted order
func List() []string {
	return slices.Sorted(maps.Keys(Registry))
}

// AgentError represents an agent-related error
type AgentError struct {
	Agent     string
	Message   string
	Err       error
	Retryable bool
}

func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[agent:%s] %s: %s", e.Agent, e.Message, e.Err)
	}
	return fmt.Sprintf("[agent:%s] %s", e.Agent, e.Message)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// NewAgentError creates a non-retryable AgentError
func NewAgentError(agent, message string, err error) *AgentError {
	return &AgentError{Agent: agent, Message: message, Err: err}
}

// NewRetryableError creates a retryable AgentError
func NewRetryableError(agent, message string, err error) *AgentError {
	return &AgentError{Agent: agent, Message: message, Err: err, Retryable: true}
}

// IsRetryable reports whether err is an AgentError marked retryable
func IsRetryable(err error) bool {
	var agentErr *AgentError
	return errors.As(err, &agentErr) && agentErr.Retryable
}
