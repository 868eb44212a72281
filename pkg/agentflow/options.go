package agentflow

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/agentflow/pkg/agentflow/observability"
	"github.com/randalmurphal/agentflow/pkg/agentflow/schema"
	"github.com/randalmurphal/agentflow/pkg/agentflow/tools"
)

// config holds executor settings.
type config struct {
	maxHops        int
	maxConcurrency int
	timeout        time.Duration
	joinTimeout    time.Duration
	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	orchestrator   *tools.Orchestrator
	schemas        *schema.Registry
}

func defaultConfig() config {
	return config{
		maxHops:        1000,
		maxConcurrency: 8,
		logger:         slog.Default(),
		metrics:        observability.NoopMetrics{},
		spans:          observability.NoopSpanManager{},
	}
}

// Option configures an Executor.
type Option func(*config)

// WithMaxHops bounds the number of node dispatches along one branch lineage.
// Default: 1000
//
// Exceeding it fails the branch with a *MaxHopsError. Child branches inherit
// their parent's hop count.
func WithMaxHops(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxHops = n
		}
	}
}

// WithMaxConcurrency bounds how many branches run at once. Default: 8
func WithMaxConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}

// WithTimeout bounds a whole execution. Branches still running when it
// expires fail with a *CancellationError. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithJoinTimeout fails a join that has not fired within d of its first
// arrival with ErrJoinTimeout. Zero means joins wait until the execution drains.
func WithJoinTimeout(d time.Duration) Option {
	return func(c *config) { c.joinTimeout = d }
}

// WithLogger sets the logger. Default: slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics enables metrics recording.
//
// Example:
//
//	exec := agentflow.NewExecutor(g, agentflow.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *config) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithSpanManager enables tracing with the given span manager, typically
// observability.NewSpanManager().
func WithSpanManager(sm observability.SpanManager) Option {
	return func(c *config) {
		if sm != nil {
			c.spans = sm
		}
	}
}

// WithOrchestrator sets the tool orchestrator used by tool nodes and
// CallTool actions.
func WithOrchestrator(o *tools.Orchestrator) Option {
	return func(c *config) { c.orchestrator = o }
}

// WithSchemas validates agent-produced messages whose Schema is registered
// in reg. A mismatch fails the branch. Tool results are validated by the
// orchestrator; see tools.WithSchemas.
func WithSchemas(reg *schema.Registry) Option {
	return func(c *config) { c.schemas = reg }
}
