// Package gemini implements the Agent interface for the Gemini CLI.
package gemini

import (
	"context"

	"github.com/reviewpilot/reviewpilot/internal/agent/base"
	"github.com/reviewpilot/reviewpilot/internal/agent/cli"
	"github.com/reviewpilot/reviewpilot/internal/config"
)

// AgentName is the identifier for the Gemini agent
const AgentName = "gemini"

// Version is the current version of the Gemini agent
const Version = "2.0.0"

// Default CLI command name
const defaultCLIName = "gemini"

func init() {
	// Register Gemini agent factory
	base.Register(AgentName, NewAgent)
}

// GeminiAgent implements the Agent interface for the Gemini CLI
type GeminiAgent struct {
	runner         *cli.Runner
	apiKey         string
	model          string
	fallbackModels []string
	version        string
}

// NewAgent creates a new Gemini agent instance.
// Without a configured model the CLI picks its own default.
func NewAgent(cfg config.AgentDetail) (base.Agent, error) {
	return &GeminiAgent{
		runner:         cli.NewRunner(AgentName, defaultCLIName, cfg),
		apiKey:         cfg.APIKey,
		model:          cfg.DefaultModel,
		fallbackModels: cfg.FallbackModels,
		version:        Version,
	}, nil
}

// Name returns the agent identifier
func (a *GeminiAgent) Name() string {
	return AgentName
}

// Version returns the agent version
func (a *GeminiAgent) Version() string {
	return a.version
}

// Available checks if the Gemini CLI is available
func (a *GeminiAgent) Available() bool {
	return a.runner.Available()
}

// Review performs a code review using the rendered prompt in the request
func (a *GeminiAgent) Review(ctx context.Context, req *base.ReviewRequest) (*base.ReviewResult, error) {
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
// --yolo auto-approves tool use for unattended runs.
func (a *GeminiAgent) buildArgs(model string) []string {
	args := []string{"-p", "--output-format", "text", "--yolo"}
	if model != "" {
		args = append(args, "--model", model)
	}
	if a.apiKey != "" {
		args = append(args, "--api-key", a.apiKey)
	}
	return args
}
