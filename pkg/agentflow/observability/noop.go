package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

func (NoopMetrics) RecordNodeExecution(context.Context, string, string, time.Duration, error) {}
func (NoopMetrics) RecordExecution(context.Context, bool, time.Duration)                      {}
func (NoopMetrics) RecordBranch(context.Context, bool)                                        {}
func (NoopMetrics) RecordJoinFired(context.Context, string, int)                              {}
func (NoopMetrics) RecordLoopIteration(context.Context, string)                               {}
func (NoopMetrics) RecordToolStep(context.Context, string, time.Duration, error)              {}
func (NoopMetrics) RecordResourceWait(context.Context, string, time.Duration, error)          {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartExecutionSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartExecutionSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartNodeSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartNodeSpan(ctx context.Context, _, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartToolSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartToolSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(trace.Span, error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(context.Context, string, ...attribute.KeyValue) {}
