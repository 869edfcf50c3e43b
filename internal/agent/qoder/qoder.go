// Package qoder implements the Agent interface for the Qoder CLI.
// Official documentation: https://docs.qoder.com/zh/cli/using-cli
package qoder

import (
	"context"

	"github.com/reviewpilot/reviewpilot/internal/agent/base"
	"github.com/reviewpilot/reviewpilot/internal/agent/cli"
	"github.com/reviewpilot/reviewpilot/internal/config"
)

// AgentName is the identifier for the Qoder agent
const AgentName = "qoder"

// Version is the current version of the Qoder agent
const Version = "1.0.0"

// Default CLI command name
const defaultCLIName = "qodercli"

func init() {
	// Register Qoder agent factory
	base.Register(AgentName, NewAgent)
}

// QoderAgent implements the Agent interface for the Qoder CLI.
// The Qoder CLI does not take a model argument.
type QoderAgent struct {
	runner  *cli.Runner
	version string
}

// NewAgent creates a new Qoder agent instance
func NewAgent(cfg config.AgentDetail) (base.Agent, error) {
	return &QoderAgent{
		runner:  cli.NewRunner(AgentName, defaultCLIName, cfg),
		version: Version,
	}, nil
}

// Name returns the agent identifier
func (a *QoderAgent) Name() string {
	return AgentName
}

// Version returns the agent version
func (a *QoderAgent) Version() string {
	return a.version
}

// Available checks if the Qoder CLI is available
func (a *QoderAgent) Available() bool {
	return a.runner.Available()
}

// Review performs a code review using the rendered prompt in the request
func (a *QoderAgent) Review(ctx context.Context, req *base.ReviewRequest) (*base.ReviewResult, error) {
	return base.ExecuteReview(ctx, a.Name(), a.version, req, func(ctx context.Context) (string, string, error) {
		// --yolo auto-approves tool use for unattended runs
		args := []string{"-p", "--yolo", "--output-format", "text"}
		output, err := a.runner.Run(ctx, args, req.Prompt)
		return output, "", err
	})
}
