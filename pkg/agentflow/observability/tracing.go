package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Uses the global OTel tracer provider.
var tracer = otel.Tracer("agentflow")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartExecutionSpan starts the root span of an execution.
	StartExecutionSpan(ctx context.Context, executionID, start string) (context.Context, trace.Span)

	// StartNodeSpan starts a span for one node dispatch.
	StartNodeSpan(ctx context.Context, nodeID, kind, branchID string) (context.Context, trace.Span)

	// StartToolSpan starts a span for a tool or pipeline invocation.
	StartToolSpan(ctx context.Context, name, step string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// Configure the global tracer provider before calling this function:
//
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartExecutionSpan(ctx context.Context, executionID, start string) (context.Context, trace.Span) {
	return StartExecutionSpan(ctx, executionID, start)
}

func (m *otelSpanManager) StartNodeSpan(ctx context.Context, nodeID, kind, branchID string) (context.Context, trace.Span) {
	return StartNodeSpan(ctx, nodeID, kind, branchID)
}

func (m *otelSpanManager) StartToolSpan(ctx context.Context, name, step string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "agentflow.tool."+name,
		trace.WithAttributes(
			attribute.String("tool.name", name),
			attribute.String("tool.step", step),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// StartExecutionSpan starts the root span of an execution using the global tracer.
func StartExecutionSpan(ctx context.Context, executionID, start string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "agentflow.execution",
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.String("execution.start", start),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartNodeSpan starts a node span using the global tracer.
func StartNodeSpan(ctx context.Context, nodeID, kind, branchID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "agentflow.node."+nodeID,
		trace.WithAttributes(
			attribute.String("node.id", nodeID),
			attribute.String("node.kind", kind),
			attribute.String("branch.id", branchID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
