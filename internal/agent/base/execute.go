package base

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

// RunFunc produces the raw output for one review attempt. The returned
// model is the one that actually served the request (relevant when
// fallbacks kick in); agents without model selection return "".
type RunFunc func(ctx context.Context) (output, model string, err error)

// ExecuteReview wraps one agent execution with the bookkeeping every
// CLI agent shares: result construction, timing, logging, and parsing
// of the structured output.
func ExecuteReview(ctx context.Context, agentName, version string, req *ReviewRequest, run RunFunc) (*ReviewResult, error) {
	result := NewResult(req.RequestID, agentName)
	result.StartedAt = time.Now()
	result.AgentVersion = version

	logger.Info("Starting agent review",
		zap.String("agent", agentName),
		zap.String("review_id", req.ReviewID),
		zap.String("request_id", req.RequestID),
		zap.Int("diff_length", len(req.Diff)),
	)

	output, model, err := run(ctx)
	if err != nil {
		logger.Error("Agent execution failed",
			zap.String("agent", agentName),
			zap.String("request_id", req.RequestID),
			zap.Error(err),
		)
		result.Success = false
		result.Error = err.Error()
		result.finish()
		return result, err
	}

	result.Text = output
	result.ModelName = model

	// The prompt asks for a strict JSON document; the raw text stays
	// available when the output does not parse
	if parsed, perr := ParseReviewOutput(output); perr == nil {
		result.Summary = parsed.Summary
		result.Findings = parsed.Findings
	} else {
		logger.Warn("Agent output is not structured JSON",
			zap.String("agent", agentName),
			zap.String("request_id", req.RequestID),
			zap.Error(perr),
		)
	}

	result.finish()
	logger.Info("Agent review completed",
		zap.String("agent", agentName),
		zap.String("request_id", req.RequestID),
		zap.Int("findings", len(result.Findings)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// finish stamps the completion time and derives the duration.
func (r *ReviewResult) finish() {
	r.CompletedAt = time.Now()
	r.Duration = r.CompletedAt.Sub(r.StartedAt)
}
