// Package engine provides the asynchronous review pipeline for ReviewPilot.
// It wires the review queue, the dispatcher and the configured agent into
// a single long-running component.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot/internal/agent/base"
	"github.com/reviewpilot/reviewpilot/internal/config"
	"github.com/reviewpilot/reviewpilot/internal/prompt"
	"github.com/reviewpilot/reviewpilot/internal/store"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

// Engine owns the review pipeline. Submissions enter through Enqueue and
// leave as posted pull request comments; everything in between runs on
// the queue's single processing loop.
type Engine struct {
	agent base.Agent
	queue *ReviewQueue
}

// NewEngine creates the engine from configuration. The configured review
// agent must be registered; a missing CLI binary is only a warning since
// the agent can be installed while the server runs.
func NewEngine(ctx context.Context, cfg *config.Config, st store.Store, providers ProviderResolver) (*Engine, error) {
	agentName := cfg.ReviewAgent()
	detail := cfg.GetAgent(agentName)
	if detail == nil {
		return nil, fmt.Errorf("review agent %s is not configured", agentName)
	}

	ag, err := base.Create(agentName, *detail)
	if err != nil {
		return nil, fmt.Errorf("failed to create review agent %s: %w", agentName, err)
	}
	if !ag.Available() {
		logger.Warn("Review agent CLI not found, reviews will fail until it is installed",
			zap.String("agent", agentName))
	}

	guidelines, err := prompt.LoadGuidelines(cfg.Review.GuidelinesFile)
	if err != nil {
		return nil, err
	}
	lang, err := cfg.Review.GetOutputLanguage()
	if err != nil {
		return nil, fmt.Errorf("invalid output language %q: %w", cfg.Review.OutputLanguage, err)
	}

	builder := prompt.NewBuilder(prompt.Options{
		OutputLanguage: lang.PromptInstruction(),
		Guidelines:     guidelines,
	})

	dispatcher := NewDispatcher(st, providers, ag, builder)
	queue := NewReviewQueue(ctx, st.Submission(), dispatcher, QueueOptions{
		MaxRetries: cfg.Review.MaxRetries,
		RetryDelay: time.Duration(cfg.Review.RetryDelay) * time.Second,
		LoopDelay:  time.Duration(cfg.Review.LoopDelay) * time.Second,
	})

	logger.Info("Review engine initialized",
		zap.String("agent", agentName),
		zap.String("output_language", lang.String()),
		zap.Bool("guidelines", guidelines != ""),
		zap.Strings("registered_agents", base.List()),
	)

	return &Engine{
		agent: ag,
		queue: queue,
	}, nil
}

// Start launches the queue processing loop.
func (e *Engine) Start() {
	e.queue.Start()
}

// Stop halts the processing loop and waits for an in-flight review
// attempt to return. Queued items are dropped; the reconciliation scan
// picks up anything that was lost.
func (e *Engine) Stop() {
	e.queue.Stop()
}

// Enqueue schedules a submission for asynchronous review.
func (e *Engine) Enqueue(submissionID string) error {
	return e.queue.Enqueue(submissionID)
}

// QueueStatus returns a snapshot of the queue state.
func (e *Engine) QueueStatus() QueueStatus {
	return e.queue.Status()
}

// AgentName returns the name of the configured review agent.
func (e *Engine) AgentName() string {
	return e.agent.Name()
}
