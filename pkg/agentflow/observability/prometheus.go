package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder is a MetricsRecorder backed by Prometheus collectors.
type PrometheusRecorder struct {
	nodeExecutions *prometheus.CounterVec
	nodeErrors     *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	executions     *prometheus.CounterVec
	execDuration   prometheus.Histogram
	branches       *prometheus.CounterVec
	joinsFired     *prometheus.CounterVec
	loopIterations *prometheus.CounterVec
	toolSteps      *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
	resourceWait   *prometheus.HistogramVec
}

var _ MetricsRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		nodeExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentflow", Name: "node_executions_total",
			Help: "Number of node dispatches.",
		}, []string{"node", "kind"}),
		nodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentflow", Name: "node_errors_total",
			Help: "Number of node dispatch errors.",
		}, []string{"node", "kind"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentflow", Name: "node_duration_seconds",
			Help:    "Node dispatch latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"node", "kind"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentflow", Name: "executions_total",
			Help: "Number of finished executions.",
		}, []string{"success"}),
		execDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agentflow", Name: "execution_duration_seconds",
			Help:    "Execution latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		branches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentflow", Name: "branches_total",
			Help: "Number of finished branches.",
		}, []string{"failed"}),
		joinsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentflow", Name: "join_fired_total",
			Help: "Number of join firings.",
		}, []string{"join"}),
		loopIterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentflow", Name: "loop_iterations_total",
			Help: "Number of loop iterations.",
		}, []string{"loop"}),
		toolSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentflow", Name: "tool_steps_total",
			Help: "Number of tool step attempts.",
		}, []string{"tool", "success"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentflow", Name: "tool_duration_seconds",
			Help:    "Tool step latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		resourceWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentflow", Name: "resource_wait_seconds",
			Help:    "Time spent waiting for a resource permit.",
			Buckets: prometheus.DefBuckets,
		}, []string{"resource", "acquired"}),
	}

	for _, c := range []prometheus.Collector{
		r.nodeExecutions, r.nodeErrors, r.nodeDuration,
		r.executions, r.execDuration, r.branches,
		r.joinsFired, r.loopIterations,
		r.toolSteps, r.toolDuration, r.resourceWait,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) RecordNodeExecution(_ context.Context, nodeID, kind string, duration time.Duration, err error) {
	r.nodeExecutions.WithLabelValues(nodeID, kind).Inc()
	r.nodeDuration.WithLabelValues(nodeID, kind).Observe(duration.Seconds())
	if err != nil {
		r.nodeErrors.WithLabelValues(nodeID, kind).Inc()
	}
}

func (r *PrometheusRecorder) RecordExecution(_ context.Context, success bool, duration time.Duration) {
	r.executions.WithLabelValues(strconv.FormatBool(success)).Inc()
	r.execDuration.Observe(duration.Seconds())
}

func (r *PrometheusRecorder) RecordBranch(_ context.Context, failed bool) {
	r.branches.WithLabelValues(strconv.FormatBool(failed)).Inc()
}

func (r *PrometheusRecorder) RecordJoinFired(_ context.Context, joinID string, _ int) {
	r.joinsFired.WithLabelValues(joinID).Inc()
}

func (r *PrometheusRecorder) RecordLoopIteration(_ context.Context, loopID string) {
	r.loopIterations.WithLabelValues(loopID).Inc()
}

func (r *PrometheusRecorder) RecordToolStep(_ context.Context, tool string, duration time.Duration, err error) {
	r.toolSteps.WithLabelValues(tool, strconv.FormatBool(err == nil)).Inc()
	r.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) RecordResourceWait(_ context.Context, resource string, waited time.Duration, err error) {
	r.resourceWait.WithLabelValues(resource, strconv.FormatBool(err == nil)).Observe(waited.Seconds())
}
