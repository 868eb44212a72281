package agentflow

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for graph construction. Every *ValidationError matches
// ErrInvalidGraph and one of these.
var (
	ErrInvalidGraph      = errors.New("invalid graph")
	ErrNoStart           = errors.New("start node not set")
	ErrStartNotFound     = errors.New("start node not found")
	ErrEmptyName         = errors.New("empty node name")
	ErrDuplicateNode     = errors.New("duplicate node name")
	ErrNodeNotFound      = errors.New("node not found")
	ErrEmptyDecision     = errors.New("decision has no branches")
	ErrEmptyInbound      = errors.New("join has no inbound nodes")
	ErrInvalidJoinCount  = errors.New("join count out of range")
	ErrMissingAggregator = errors.New("custom join has no aggregator")
	ErrInvalidLoop       = errors.New("invalid loop")
	ErrInvalidCondition  = errors.New("invalid condition")
	ErrUnreachable       = errors.New("node unreachable from start")
)

// Sentinel errors for execution.
var (
	ErrNilContext        = errors.New("context cannot be nil")
	ErrUnknownAgent      = errors.New("agent not registered")
	ErrUnknownPipeline   = errors.New("pipeline not registered")
	ErrNoOrchestrator    = errors.New("no tool orchestrator configured")
	ErrUnknownTarget     = errors.New("unknown target node")
	ErrDecisionNoMatch   = errors.New("no decision branch matched")
	ErrDecisionPolicy    = errors.New("decision policy violation")
	ErrJoinIncomplete    = errors.New("join never fired")
	ErrJoinTimeout       = errors.New("join timed out")
	ErrLoopBoundExceeded = errors.New("loop bound exceeded")
	ErrMaxHops           = errors.New("exceeded maximum hops")
	ErrUnsupportedAction = errors.New("unsupported action")
	ErrNoBranchCompleted = errors.New("no branch completed")
)

// ValidationError reports one problem found while building a graph.
type ValidationError struct {
	Node string
	Err  error
}

func (e *ValidationError) Error() string {
	if e.Node == "" {
		return "invalid graph: " + e.Err.Error()
	}
	return fmt.Sprintf("invalid graph: node %s: %v", e.Node, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is matches ErrInvalidGraph.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidGraph }

// NodeError wraps an error with node context.
type NodeError struct {
	NodeID string
	// Op is the operation that failed ("act", "route", "condition", "tool", ...).
	Op  string
	Err error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// AgentError wraps an error returned by an agent's Act.
type AgentError struct {
	Agent  string
	NodeID string
	Err    error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent %s at %s: %v", e.Agent, e.NodeID, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// DecisionError reports a decision that could not route its message.
type DecisionError struct {
	Node   string
	Policy DecisionPolicy
	Err    error
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("decision %s (%s): %v", e.Node, e.Policy, e.Err)
}

func (e *DecisionError) Unwrap() error { return e.Err }

// PanicError captures a panic raised by an agent.
type PanicError struct {
	NodeID string
	Value  any
	Stack  string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// CancellationError reports a branch stopped by context cancellation or the
// execution timeout.
type CancellationError struct {
	NodeID string
	Cause  error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

func (e *CancellationError) Unwrap() error { return e.Cause }

// LoopBoundError reports a loop whose condition still held after
// MaxIterations entries.
type LoopBoundError struct {
	Loop       string
	Max        int
	Iterations int
}

func (e *LoopBoundError) Error() string {
	return fmt.Sprintf("loop %s: condition still true after %d of %d iterations", e.Loop, e.Iterations, e.Max)
}

func (e *LoopBoundError) Unwrap() error { return ErrLoopBoundExceeded }

// MaxHopsError reports a branch lineage that dispatched too many nodes.
type MaxHopsError struct {
	Max        int
	LastNodeID string
}

func (e *MaxHopsError) Error() string {
	return fmt.Sprintf("exceeded maximum hops (%d) at node %s", e.Max, e.LastNodeID)
}

func (e *MaxHopsError) Unwrap() error { return ErrMaxHops }

// JoinError reports a join that never fired.
type JoinError struct {
	Join     string
	Strategy JoinStrategy
	Arrived  []string
	Err      error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join %s (%s): %v; arrived from [%s]",
		e.Join, e.Strategy, e.Err, strings.Join(e.Arrived, ", "))
}

func (e *JoinError) Unwrap() error { return e.Err }

// BranchError records a failed branch. Sibling branches are unaffected.
type BranchError struct {
	ExecutionID string
	BranchID    string
	NodeID      string
	Err         error
}

func (e *BranchError) Error() string {
	return fmt.Sprintf("branch %s at %s: %v", e.BranchID, e.NodeID, e.Err)
}

func (e *BranchError) Unwrap() error { return e.Err }

// FlowError is returned by Start when no branch completed and at least one
// failed. It matches every collected error via errors.Is and errors.As.
type FlowError struct {
	ExecutionID string
	Errors      []error
}

func (e *FlowError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("execution %s: %v: %s", e.ExecutionID, ErrNoBranchCompleted, strings.Join(parts, "; "))
}

func (e *FlowError) Unwrap() []error {
	return append([]error{ErrNoBranchCompleted}, e.Errors...)
}
