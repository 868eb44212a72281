package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records agentflow metrics.
// Use NewMetricsRecorder() for OTel metrics, NewPrometheusRecorder for a
// Prometheus registry, or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records a node dispatch with its duration and error status.
	RecordNodeExecution(ctx context.Context, nodeID, kind string, duration time.Duration, err error)

	// RecordExecution records a finished execution.
	RecordExecution(ctx context.Context, success bool, duration time.Duration)

	// RecordBranch records a branch ending, successfully or not.
	RecordBranch(ctx context.Context, failed bool)

	// RecordJoinFired records a join firing with its arrival count.
	RecordJoinFired(ctx context.Context, joinID string, arrivals int)

	// RecordLoopIteration records one loop iteration.
	RecordLoopIteration(ctx context.Context, loopID string)

	// RecordToolStep records one tool step attempt.
	RecordToolStep(ctx context.Context, tool string, duration time.Duration, err error)

	// RecordResourceWait records time spent waiting for a resource permit.
	RecordResourceWait(ctx context.Context, resource string, waited time.Duration, err error)
}

type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	executions     metric.Int64Counter
	execLatency    metric.Float64Histogram
	branches       metric.Int64Counter
	joinsFired     metric.Int64Counter
	joinArrivals   metric.Int64Histogram
	loopIterations metric.Int64Counter
	toolSteps      metric.Int64Counter
	toolLatency    metric.Float64Histogram
	resourceWait   metric.Float64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics lazily initializes the OTel instruments.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("agentflow")
	m := &otelMetrics{}
	var err error

	if m.nodeExecutions, err = meter.Int64Counter("agentflow.node.executions",
		metric.WithDescription("Number of node dispatches"),
	); err != nil {
		return nil, err
	}
	if m.nodeLatency, err = meter.Float64Histogram("agentflow.node.latency_ms",
		metric.WithDescription("Node dispatch latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.nodeErrors, err = meter.Int64Counter("agentflow.node.errors",
		metric.WithDescription("Number of node dispatch errors"),
	); err != nil {
		return nil, err
	}
	if m.executions, err = meter.Int64Counter("agentflow.executions",
		metric.WithDescription("Number of executions"),
	); err != nil {
		return nil, err
	}
	if m.execLatency, err = meter.Float64Histogram("agentflow.execution.latency_ms",
		metric.WithDescription("Execution latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.branches, err = meter.Int64Counter("agentflow.branches",
		metric.WithDescription("Number of finished branches"),
	); err != nil {
		return nil, err
	}
	if m.joinsFired, err = meter.Int64Counter("agentflow.join.fired",
		metric.WithDescription("Number of join firings"),
	); err != nil {
		return nil, err
	}
	if m.joinArrivals, err = meter.Int64Histogram("agentflow.join.arrivals",
		metric.WithDescription("Arrivals aggregated per join firing"),
	); err != nil {
		return nil, err
	}
	if m.loopIterations, err = meter.Int64Counter("agentflow.loop.iterations",
		metric.WithDescription("Number of loop iterations"),
	); err != nil {
		return nil, err
	}
	if m.toolSteps, err = meter.Int64Counter("agentflow.tool.steps",
		metric.WithDescription("Number of tool step attempts"),
	); err != nil {
		return nil, err
	}
	if m.toolLatency, err = meter.Float64Histogram("agentflow.tool.latency_ms",
		metric.WithDescription("Tool step latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.resourceWait, err = meter.Float64Histogram("agentflow.resource.wait_ms",
		metric.WithDescription("Time spent waiting for a resource permit"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeID, kind string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("node_id", nodeID),
		attribute.String("kind", kind),
	)
	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordExecution(ctx context.Context, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.executions.Add(ctx, 1, attrs)
	m.execLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (m *otelMetrics) RecordBranch(ctx context.Context, failed bool) {
	m.branches.Add(ctx, 1, metric.WithAttributes(attribute.Bool("failed", failed)))
}

func (m *otelMetrics) RecordJoinFired(ctx context.Context, joinID string, arrivals int) {
	attrs := metric.WithAttributes(attribute.String("join_id", joinID))
	m.joinsFired.Add(ctx, 1, attrs)
	m.joinArrivals.Record(ctx, int64(arrivals), attrs)
}

func (m *otelMetrics) RecordLoopIteration(ctx context.Context, loopID string) {
	m.loopIterations.Add(ctx, 1, metric.WithAttributes(attribute.String("loop_id", loopID)))
}

func (m *otelMetrics) RecordToolStep(ctx context.Context, tool string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.Bool("success", err == nil),
	)
	m.toolSteps.Add(ctx, 1, attrs)
	m.toolLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (m *otelMetrics) RecordResourceWait(ctx context.Context, resource string, waited time.Duration, err error) {
	m.resourceWait.Record(ctx, float64(waited.Milliseconds()), metric.WithAttributes(
		attribute.String("resource", resource),
		attribute.Bool("acquired", err == nil),
	))
}
