// Package telemetry provides OpenTelemetry integration for the application.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for spans started by this package.
const TracerName = "github.com/reviewpilot/reviewpilot"

// Span attribute keys shared by the pipeline, so the same dimension always
// serializes under the same name.
var (
	AttrSubmissionID = attribute.Key("submission.id")
	AttrQueueLength  = attribute.Key("queue.length")
	AttrRetryCount   = attribute.Key("retry.count")

	AttrRepoProvider = attribute.Key("repo.provider")
	AttrRepoProject  = attribute.Key("repo.project")
	AttrRepoName     = attribute.Key("repo.name")
	AttrPRNumber     = attribute.Key("pr.number")

	AttrReviewID     = attribute.Key("review.id")
	AttrReviewStatus = attribute.Key("review.status")
	AttrReviewKind   = attribute.Key("review.kind")

	AttrAgentName     = attribute.Key("agent.name")
	AttrFindingsCount = attribute.Key("findings.count")
	AttrDurationMs    = attribute.Key("duration.ms")
)

// Tracer returns the application tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSpan starts a span. The caller must call span.End().
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// SpanFromContext returns the span carried by ctx, a no-op span if none.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// SetSpanError records err on the span and marks its status as error.
// A nil err leaves the span untouched.
func SetSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span status as OK.
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddSpanEvent adds a named event with optional attributes to the span.
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanAttributes sets attributes on the span.
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// WithSubmissionAttributes annotates a span start with queue item identity.
func WithSubmissionAttributes(submissionID string, retryCount int) trace.SpanStartOption {
	return trace.WithAttributes(
		AttrSubmissionID.String(submissionID),
		AttrRetryCount.Int(retryCount),
	)
}

// WithReviewAttributes annotates a span start with review identity.
func WithReviewAttributes(reviewID, provider string, prNumber int) trace.SpanStartOption {
	return trace.WithAttributes(
		AttrReviewID.String(reviewID),
		AttrRepoProvider.String(provider),
		AttrPRNumber.Int(prNumber),
	)
}
