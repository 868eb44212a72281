package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest installs a manual-reader meter provider for the test.
func setupMetricsTest(t *testing.T) *sdkmetric.ManualReader {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(original)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("shutting down meter provider: %v", err)
		}
	})
	return reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the counter value for the datapoint whose attribute key equals value.
func sumFor(t *testing.T, m *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum[int64], got %T", m.Data)
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestNewMetricsRecorder(t *testing.T) {
	setupMetricsTest(t)

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)
	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop)
}

func TestOtelNodeExecution(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordNodeExecution(ctx, "review", "agent", 20*time.Millisecond, nil)
	m.RecordNodeExecution(ctx, "review", "agent", 5*time.Millisecond, errors.New("bad"))
	m.RecordNodeExecution(ctx, "route", "decision", time.Millisecond, nil)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(2), sumFor(t, findMetric(rm, "agentflow.node.executions"), "node_id", "review"))
	assert.Equal(t, int64(1), sumFor(t, findMetric(rm, "agentflow.node.errors"), "node_id", "review"))
	assert.Equal(t, int64(0), sumFor(t, findMetric(rm, "agentflow.node.errors"), "node_id", "route"))

	hist, ok := findMetric(rm, "agentflow.node.latency_ms").Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.NotEmpty(t, hist.DataPoints)
}

func TestOtelAllInstruments(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordExecution(ctx, true, 100*time.Millisecond)
	m.RecordBranch(ctx, true)
	m.RecordJoinFired(ctx, "merge", 3)
	m.RecordLoopIteration(ctx, "retry")
	m.RecordLoopIteration(ctx, "retry")
	m.RecordToolStep(ctx, "search", 10*time.Millisecond, nil)
	m.RecordResourceWait(ctx, "llm", 2*time.Millisecond, nil)

	rm := collectMetrics(t, reader)
	for _, name := range []string{
		"agentflow.executions",
		"agentflow.execution.latency_ms",
		"agentflow.branches",
		"agentflow.join.fired",
		"agentflow.join.arrivals",
		"agentflow.loop.iterations",
		"agentflow.tool.steps",
		"agentflow.tool.latency_ms",
		"agentflow.resource.wait_ms",
	} {
		assert.NotNil(t, findMetric(rm, name), name)
	}
	assert.Equal(t, int64(2), sumFor(t, findMetric(rm, "agentflow.loop.iterations"), "loop_id", "retry"))
	assert.Equal(t, int64(1), sumFor(t, findMetric(rm, "agentflow.join.fired"), "join_id", "merge"))
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)
	ctx := context.Background()

	r.RecordNodeExecution(ctx, "review", "agent", 10*time.Millisecond, nil)
	r.RecordNodeExecution(ctx, "review", "agent", 10*time.Millisecond, errors.New("x"))
	r.RecordExecution(ctx, false, time.Second)
	r.RecordBranch(ctx, false)
	r.RecordJoinFired(ctx, "merge", 2)
	r.RecordLoopIteration(ctx, "retry")
	r.RecordToolStep(ctx, "search", time.Millisecond, errors.New("503"))
	r.RecordResourceWait(ctx, "llm", time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.nodeExecutions.WithLabelValues("review", "agent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.nodeErrors.WithLabelValues("review", "agent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.executions.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.joinsFired.WithLabelValues("merge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.toolSteps.WithLabelValues("search", "false")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.resourceWait))
}

func TestPrometheusRecorderDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	_, err = NewPrometheusRecorder(reg)
	var already prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &already)
}
