// Package observability provides structured logging, metrics, and tracing
// helpers for agentflow executions.
//
// Features:
//   - Structured logging via slog
//   - Metrics via OpenTelemetry or Prometheus
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds execution context to a logger.
// Returns a new logger with execution_id, node_id, and branch_id fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "exec-123", "review", "0.1")
//	enriched.Info("doing work") // includes execution_id, node_id, branch_id
func EnrichLogger(logger *slog.Logger, executionID, nodeID, branchID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("execution_id", executionID),
		slog.String("node_id", nodeID),
		slog.String("branch_id", branchID),
	)
}

// LogExecutionStart logs the start of an execution.
func LogExecutionStart(logger *slog.Logger, executionID, start string) {
	if logger == nil {
		return
	}
	logger.Info("execution starting",
		slog.String("execution_id", executionID),
		slog.String("start_node", start),
	)
}

// LogExecutionComplete logs a finished execution.
func LogExecutionComplete(logger *slog.Logger, executionID string, durationMs float64, hops, terminals, failures int) {
	if logger == nil {
		return
	}
	logger.Info("execution completed",
		slog.String("execution_id", executionID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("hops", hops),
		slog.Int("terminals", terminals),
		slog.Int("branch_failures", failures),
	)
}

// LogExecutionError logs an execution that produced no successful outcome.
func LogExecutionError(logger *slog.Logger, executionID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("execution failed",
		slog.String("execution_id", executionID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeStart logs node dispatch.
func LogNodeStart(logger *slog.Logger, nodeID, kind string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
		slog.String("kind", kind),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogBranchFailed logs a branch that stopped with an error. Sibling branches
// keep running, so this is a warning.
func LogBranchFailed(logger *slog.Logger, branchID, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("branch failed",
		slog.String("branch_id", branchID),
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogJoinFired logs a join releasing its aggregate.
func LogJoinFired(logger *slog.Logger, joinID, policy string, arrivals int) {
	if logger == nil {
		return
	}
	logger.Debug("join fired",
		slog.String("join_id", joinID),
		slog.String("policy", policy),
		slog.Int("arrivals", arrivals),
	)
}

// LogToolStep logs one tool step attempt outcome.
func LogToolStep(logger *slog.Logger, pipeline, step, tool string, attempt int, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Warn("tool step failed",
			slog.String("pipeline", pipeline),
			slog.String("step", step),
			slog.String("tool", tool),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("tool step completed",
		slog.String("pipeline", pipeline),
		slog.String("step", step),
		slog.String("tool", tool),
		slog.Int("attempt", attempt),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
