// Package mock implements the Agent interface with canned responses.
// The mock agent is used for testing and development, returning generated
// findings with timestamps and random IDs to verify the pipeline without
// consuming tokens.
package mock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot/internal/agent/base"
	"github.com/reviewpilot/reviewpilot/internal/config"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

// AgentName is the identifier for the Mock agent
const AgentName = "mock"

// Version is the current version of the Mock agent
const Version = "1.0.0"

func init() {
	// Register Mock agent factory
	base.Register(AgentName, NewAgent)
}

// MockAgent implements the Agent interface with generated responses
type MockAgent struct {
	version string
}

// NewAgent creates a new Mock agent instance
func NewAgent(cfg config.AgentDetail) (base.Agent, error) {
	return &MockAgent{
		version: Version,
	}, nil
}

// Name returns the agent identifier
func (a *MockAgent) Name() string {
	return AgentName
}

// Version returns the agent version
func (a *MockAgent) Version() string {
	return a.version
}

// Available always returns true for the mock agent
func (a *MockAgent) Available() bool {
	return true
}

// Review returns a generated review result. The canned output is run
// through the same JSON parsing as real agent output.
func (a *MockAgent) Review(ctx context.Context, req *base.ReviewRequest) (*base.ReviewResult, error) {
	startTime := time.Now()
	result := base.NewResult(req.RequestID, a.Name())
	result.StartedAt = startTime
	result.AgentVersion = a.version
	result.ModelName = "mock-model"

	logger.Info("Starting mock agent review",
		zap.String("request_id", req.RequestID),
		zap.String("review_id", req.ReviewID),
	)

	output := a.generateReviewJSON(req)
	result.Text = output

	parsed, err := base.ParseReviewOutput(output)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		result.CompletedAt = time.Now()
		result.Duration = result.CompletedAt.Sub(result.StartedAt)
		return result, base.NewAgentError(AgentName, "generated output failed to parse", err)
	}

	result.Summary = parsed.Summary
	result.Findings = parsed.Findings
	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	logger.Info("Mock agent review completed",
		zap.String("request_id", req.RequestID),
		zap.Int("findings", len(result.Findings)),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

// generateRandomID generates a random hexadecimal string of 16 characters
func generateRandomID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to time-based ID if crypto/rand fails
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// generateReviewJSON generates the review document in the same JSON shape
// real agents are instructed to emit
func (a *MockAgent) generateReviewJSON(req *base.ReviewRequest) string {
	timestamp := time.Now().Format(time.RFC3339)
	findingID1 := generateRandomID()[:8]
	findingID2 := generateRandomID()[:8]

	return fmt.Sprintf(`{
  "summary": "Mock review of %s/%s#%d completed at %s. Two sample findings were generated for pipeline verification.",
  "findings": [
    {
      "file": "example/main.go",
      "line": 10,
      "severity": "low",
      "category": "style",
      "message": "Mock finding: code formatting could be improved [ID: %s]",
      "suggestion": "Run the project formatter"
    },
    {
      "file": "example/handler.go",
      "line": 42,
      "severity": "medium",
      "category": "logic",
      "message": "Mock finding: potential edge case not handled [ID: %s]",
      "suggestion": "Add a guard for the empty input case"
    }
  ]
}`, req.ProjectKey, req.RepoName, req.PRNumber, timestamp, findingID1, findingID2)
}
