// Package cursor implements the Agent interface for the Cursor CLI.
// Cursor is the default AI agent for code review.
package cursor

import (
	"context"

	"github.com/reviewpilot/reviewpilot/internal/agent/base"
	"github.com/reviewpilot/reviewpilot/internal/agent/cli"
	"github.com/reviewpilot/reviewpilot/internal/config"
)

// AgentName is the identifier for the Cursor agent
const AgentName = "cursor"

// Version is the current version of the Cursor agent
const Version = "2.0.0"

// Default CLI command name
const defaultCLIName = "cursor-agent"

// defaultModel is used when no model is configured
const defaultModel = "composer-1"

func init() {
	// Register Cursor agent factory
	base.Register(AgentName, NewAgent)
}

// CursorAgent implements the Agent interface for the Cursor CLI
type CursorAgent struct {
	runner         *cli.Runner
	apiKey         string
	model          string
	fallbackModels []string
	version        string
}

// NewAgent creates a new Cursor agent instance
func NewAgent(cfg config.AgentDetail) (base.Agent, error) {
	model := cfg.DefaultModel
	if model == "" {
		model = defaultModel
	}

	return &CursorAgent{
		runner:         cli.NewRunner(AgentName, defaultCLIName, cfg),
		apiKey:         cfg.APIKey,
		model:          model,
		fallbackModels: cfg.FallbackModels,
		version:        Version,
	}, nil
}

// Name returns the agent identifier
func (a *CursorAgent) Name() string {
	return AgentName
}

// Version returns the agent version
func (a *CursorAgent) Version() string {
	return a.version
}

// Available checks if the Cursor CLI is available
func (a *CursorAgent) Available() bool {
	return a.runner.Available()
}

// Review performs a code review using the rendered prompt in the request
func (a *CursorAgent) Review(ctx context.Context, req *base.ReviewRequest) (*base.ReviewResult, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}

	return base.ExecuteReview(ctx, a.Name(), a.version, req, func(ctx context.Context) (string, string, error) {
		return a.runner.RunWithFallback(ctx, model, a.fallbackModels,
			func(ctx context.Context, model string) (string, error) {
				return a.runner.Run(ctx, a.buildArgs(model), req.Prompt)
			})
	})
}

// buildArgs builds the CLI arguments for one execution.
// --force skips confirmation prompts for automated execution.
func (a *CursorAgent) buildArgs(model string) []string {
	args := []string{"-p", "--force", "--model", model, "--output-format", "text"}
	if a.apiKey != "" {
		args = append(args, "--api-key", a.apiKey)
	}
	return args
}
