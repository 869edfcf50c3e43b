// Package telemetry provides OpenTelemetry integration for the application.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

const (
	// MeterName is the default meter name for the application
	MeterName = "github.com/reviewpilot/reviewpilot"
)

// Metrics holds all application metrics
type Metrics struct {
	// Review metrics
	ReviewsTotal       metric.Int64Counter
	ReviewDuration     metric.Float64Histogram
	ActiveReviews      metric.Int64UpDownCounter
	ReviewsByStatus    metric.Int64Counter
	FindingsBySeverity metric.Int64Counter

	// Queue metrics
	QueueDepth    metric.Int64UpDownCounter
	QueueEnqueues metric.Int64Counter
	QueueRetries  metric.Int64Counter
	QueueDrops    metric.Int64Counter

	// Webhook and tracking metrics
	WebhookEventsTotal    metric.Int64Counter
	TrackerDecisionsTotal metric.Int64Counter

	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Agent metrics
	AgentExecutionsTotal metric.Int64Counter
	AgentExecutionErrors metric.Int64Counter

	// Git metrics
	GitCloneTotal    metric.Int64Counter
	GitCloneDuration metric.Float64Histogram
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics returns the global metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		var err error
		globalMetrics, err = initMetrics()
		if err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			// Return empty metrics to avoid nil pointer
			globalMetrics = &Metrics{}
		}
	})
	return globalMetrics
}

// instruments creates the individual instruments, holding on to the
// first creation error so initMetrics stays a flat list.
type instruments struct {
	meter metric.Meter
	err   error
}

func (in *instruments) counter(name, desc, unit string) metric.Int64Counter {
	if in.err != nil {
		return nil
	}
	c, err := in.meter.Int64Counter(name,
		metric.WithDescription(desc),
		metric.WithUnit(unit),
	)
	in.err = err
	return c
}

func (in *instruments) upDownCounter(name, desc, unit string) metric.Int64UpDownCounter {
	if in.err != nil {
		return nil
	}
	c, err := in.meter.Int64UpDownCounter(name,
		metric.WithDescription(desc),
		metric.WithUnit(unit),
	)
	in.err = err
	return c
}

// histogram creates a seconds histogram with explicit buckets.
func (in *instruments) histogram(name, desc string, buckets ...float64) metric.Float64Histogram {
	if in.err != nil {
		return nil
	}
	h, err := in.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	in.err = err
	return h
}

// initMetrics initializes all application metrics
func initMetrics() (*Metrics, error) {
	in := &instruments{meter: otel.Meter(MeterName)}

	m := &Metrics{
		ReviewsTotal: in.counter("reviewpilot_reviews_total",
			"Total number of code reviews", "{review}"),
		ReviewDuration: in.histogram("reviewpilot_review_duration_seconds",
			"Duration of code reviews in seconds",
			1, 5, 10, 30, 60, 120, 300, 600, 1800),
		ActiveReviews: in.upDownCounter("reviewpilot_active_reviews",
			"Number of currently active reviews", "{review}"),
		ReviewsByStatus: in.counter("reviewpilot_reviews_by_status_total",
			"Total number of reviews by status", "{review}"),
		FindingsBySeverity: in.counter("reviewpilot_findings_by_severity_total",
			"Total number of review findings by severity", "{finding}"),

		QueueDepth: in.upDownCounter("reviewpilot_queue_depth",
			"Number of submissions currently waiting in the review queue", "{submission}"),
		QueueEnqueues: in.counter("reviewpilot_queue_enqueues_total",
			"Total number of submissions enqueued for review", "{submission}"),
		QueueRetries: in.counter("reviewpilot_queue_retries_total",
			"Total number of submissions requeued after a failed attempt", "{submission}"),
		QueueDrops: in.counter("reviewpilot_queue_drops_total",
			"Total number of submissions removed from the queue by outcome", "{submission}"),

		WebhookEventsTotal: in.counter("reviewpilot_webhook_events_total",
			"Total number of webhook events received by provider and type", "{event}"),
		TrackerDecisionsTotal: in.counter("reviewpilot_tracker_decisions_total",
			"Total number of pull request processing decisions", "{decision}"),

		HTTPRequestsTotal: in.counter("reviewpilot_http_requests_total",
			"Total number of HTTP requests", "{request}"),
		HTTPRequestDuration: in.histogram("reviewpilot_http_request_duration_seconds",
			"Duration of HTTP requests in seconds",
			0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),

		AgentExecutionsTotal: in.counter("reviewpilot_agent_executions_total",
			"Total number of agent executions", "{execution}"),
		AgentExecutionErrors: in.counter("reviewpilot_agent_execution_errors_total",
			"Total number of agent execution errors", "{error}"),

		GitCloneTotal: in.counter("reviewpilot_git_clone_total",
			"Total number of git clone operations", "{clone}"),
		GitCloneDuration: in.histogram("reviewpilot_git_clone_duration_seconds",
			"Duration of git clone operations in seconds",
			1, 5, 10, 30, 60, 120, 300),
	}
	if in.err != nil {
		return nil, in.err
	}

	logger.Info("Metrics initialized successfully")
	return m, nil
}

// RecordReviewStarted records that a review has started
func (m *Metrics) RecordReviewStarted(ctx context.Context, provider, kind string) {
	if m.ReviewsTotal == nil {
		return
	}
	m.ReviewsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
	if m.ActiveReviews != nil {
		m.ActiveReviews.Add(ctx, 1)
	}
}

// RecordReviewCompleted records that a review has completed
func (m *Metrics) RecordReviewCompleted(ctx context.Context, status string, durationSeconds float64) {
	if m.ActiveReviews != nil {
		m.ActiveReviews.Add(ctx, -1)
	}
	if m.ReviewsByStatus != nil {
		m.ReviewsByStatus.Add(ctx, 1,
			metric.WithAttributes(attribute.String("status", status)),
		)
	}
	if m.ReviewDuration != nil {
		m.ReviewDuration.Record(ctx, durationSeconds,
			metric.WithAttributes(attribute.String("status", status)),
		)
	}
}

// RecordFindings records review findings by severity
func (m *Metrics) RecordFindings(ctx context.Context, severity string, count int64) {
	if m.FindingsBySeverity == nil {
		return
	}
	m.FindingsBySeverity.Add(ctx, count,
		metric.WithAttributes(attribute.String("severity", severity)),
	)
}

// RecordEnqueue records a submission entering the review queue
func (m *Metrics) RecordEnqueue(ctx context.Context) {
	if m.QueueEnqueues != nil {
		m.QueueEnqueues.Add(ctx, 1)
	}
	if m.QueueDepth != nil {
		m.QueueDepth.Add(ctx, 1)
	}
}

// RecordRetry records a submission moved back to the queue tail
func (m *Metrics) RecordRetry(ctx context.Context, reason string) {
	if m.QueueRetries == nil {
		return
	}
	m.QueueRetries.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordDrop records a submission leaving the queue by outcome
func (m *Metrics) RecordDrop(ctx context.Context, outcome string) {
	if m.QueueDrops != nil {
		m.QueueDrops.Add(ctx, 1,
			metric.WithAttributes(attribute.String("outcome", outcome)),
		)
	}
	if m.QueueDepth != nil {
		m.QueueDepth.Add(ctx, -1)
	}
}

// RecordWebhookEvent records a received webhook event
func (m *Metrics) RecordWebhookEvent(ctx context.Context, provider, eventType string) {
	if m.WebhookEventsTotal == nil {
		return
	}
	m.WebhookEventsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("type", eventType),
		),
	)
}

// RecordTrackerDecision records a pull request processing decision
func (m *Metrics) RecordTrackerDecision(ctx context.Context, decision string) {
	if m.TrackerDecisionsTotal == nil {
		return
	}
	m.TrackerDecisionsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("decision", decision)),
	)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	if m.HTTPRequestsTotal != nil {
		m.HTTPRequestsTotal.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("method", method),
				attribute.String("path", path),
				attribute.Int("status_code", statusCode),
			),
		)
	}
	if m.HTTPRequestDuration != nil {
		m.HTTPRequestDuration.Record(ctx, durationSeconds,
			metric.WithAttributes(
				attribute.String("method", method),
				attribute.String("path", path),
			),
		)
	}
}

// RecordAgentExecution records an agent execution
func (m *Metrics) RecordAgentExecution(ctx context.Context, agentName string, success bool) {
	if m.AgentExecutionsTotal != nil {
		m.AgentExecutionsTotal.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("agent.name", agentName),
				attribute.Bool("success", success),
			),
		)
	}
	if !success && m.AgentExecutionErrors != nil {
		m.AgentExecutionErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("agent.name", agentName)),
		)
	}
}

// RecordGitClone records a git clone operation
func (m *Metrics) RecordGitClone(ctx context.Context, provider string, success bool, durationSeconds float64) {
	if m.GitCloneTotal != nil {
		m.GitCloneTotal.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("provider", provider),
				attribute.Bool("success", success),
			),
		)
	}
	if m.GitCloneDuration != nil {
		m.GitCloneDuration.Record(ctx, durationSeconds,
			metric.WithAttributes(
				attribute.String("provider", provider),
				attribute.Bool("success", success),
			),
		)
	}
}
