package agentflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/randalmurphal/agentflow/pkg/agentflow/flowctx"
	"github.com/randalmurphal/agentflow/pkg/agentflow/message"
	"github.com/randalmurphal/agentflow/pkg/agentflow/observability"
	"github.com/randalmurphal/agentflow/pkg/agentflow/registry"
)

// branch is one concurrent lineage of work. Its scope frame lives as long as
// any unit of the branch or any child branch holds a reference.
type branch struct {
	id       string
	parent   *branch
	view     *flowctx.View
	refs     atomic.Int32
	children atomic.Int32
}

func (b *branch) acquire() { b.refs.Add(1) }

func (b *branch) release() {
	if b.refs.Add(-1) > 0 {
		return
	}
	b.view.Close()
	if b.parent != nil {
		b.parent.release()
	}
}

// unit is a pending dispatch: a message arriving at node on branch br.
type unit struct {
	node string
	from string
	msg  *message.Message
	br   *branch
	hops int
}

// execution is the per-Start state. Graph and Executor are shared and
// read-only; everything mutable lives here.
type execution struct {
	e      *Executor
	id     string
	fc     *flowctx.Context
	ctx    context.Context
	logger *slog.Logger
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	hops   atomic.Int64

	mu        sync.Mutex
	joins     map[string]*joinTracker
	loops     map[string]*loopFrame
	starts    *registry.Registry[string, *agentStart]
	terminals map[string]*message.Message
	outputs   []Output
	errs      []error
	completed int
	drained   bool
}

func newExecution(e *Executor, fc *flowctx.Context) *execution {
	id := uuid.NewString()
	return &execution{
		e:         e,
		id:        id,
		fc:        fc,
		logger:    e.cfg.logger.With("execution_id", id),
		sem:       semaphore.NewWeighted(int64(e.cfg.maxConcurrency)),
		joins:     make(map[string]*joinTracker),
		loops:     make(map[string]*loopFrame),
		starts:    registry.New[string, *agentStart](),
		terminals: make(map[string]*message.Message),
	}
}

func (x *execution) run(ctx context.Context, initial *message.Message) (*ExecutionResult, error) {
	cfg := x.e.cfg
	startedAt := time.Now()

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}
	ctx, span := cfg.spans.StartExecutionSpan(ctx, x.id, x.e.graph.start)
	x.ctx = ctx

	observability.LogExecutionStart(x.logger, x.id, x.e.graph.start)

	x.fc.AppendMessage(initial)
	x.spawn(unit{node: x.e.graph.start, msg: initial, br: x.newBranch(nil)})
	x.wg.Wait()
	x.drain()

	result := x.result(time.Since(startedAt))

	var err error
	if result.Completed == 0 && len(result.Errors) > 0 {
		err = &FlowError{ExecutionID: x.id, Errors: result.Errors}
	}

	durationMs := float64(result.Duration.Microseconds()) / 1000
	cfg.metrics.RecordExecution(ctx, err == nil, result.Duration)
	cfg.spans.EndSpanWithError(span, err)
	if err != nil {
		observability.LogExecutionError(x.logger, x.id, err, durationMs)
	} else {
		observability.LogExecutionComplete(x.logger, x.id, durationMs, result.Hops, len(result.Terminals), len(result.Errors))
	}
	return result, err
}

func (x *execution) result(d time.Duration) *ExecutionResult {
	x.mu.Lock()
	defer x.mu.Unlock()
	return &ExecutionResult{
		ExecutionID: x.id,
		Terminals:   x.terminals,
		Outputs:     x.outputs,
		LastMessage: x.fc.LastMessage(),
		History:     x.fc.History(),
		Errors:      x.errs,
		Completed:   x.completed,
		Hops:        int(x.hops.Load()),
		Duration:    d,
	}
}

// newBranch creates a child of parent, or the root branch when parent is nil.
func (x *execution) newBranch(parent *branch) *branch {
	if parent == nil {
		return &branch{id: "0", view: x.fc.Root().Push(flowctx.ScopeBranch, "0")}
	}
	id := fmt.Sprintf("%s.%d", parent.id, parent.children.Add(1))
	parent.acquire()
	return &branch{id: id, parent: parent, view: parent.view.Push(flowctx.ScopeBranch, id)}
}

// spawn runs u on its own goroutine once a concurrency slot is free.
func (x *execution) spawn(u unit) {
	u.br.acquire()
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		if err := x.sem.Acquire(x.ctx, 1); err != nil {
			x.fail(u, &CancellationError{NodeID: u.node, Cause: err})
			u.br.release()
			return
		}
		defer x.sem.Release(1)
		x.runBranch(u)
	}()
}

// runBranch dispatches units sequentially until the branch ends, forks or
// hands its work to a join.
func (x *execution) runBranch(u unit) {
	for {
		next, ok := x.step(u)
		if ok {
			next.br.acquire()
		}
		u.br.release()
		if !ok {
			return
		}
		u = next
	}
}

func (x *execution) step(u unit) (unit, bool) {
	cfg := x.e.cfg
	if err := x.ctx.Err(); err != nil {
		x.fail(u, &CancellationError{NodeID: u.node, Cause: err})
		return unit{}, false
	}
	u.hops++
	if u.hops > cfg.maxHops {
		x.fail(u, &MaxHopsError{Max: cfg.maxHops, LastNodeID: u.node})
		return unit{}, false
	}
	x.hops.Add(1)

	node := x.e.graph.nodes[u.node]
	x.breakLoops(u.node)

	view := u.br.view.Push(flowctx.ScopeNode, u.node)
	defer view.Close()

	kind := node.Kind().String()
	ctx, span := cfg.spans.StartNodeSpan(x.ctx, u.node, kind, u.br.id)
	observability.LogNodeStart(x.logger, u.node, kind)
	elapsed := observability.TimedOperation()
	startedAt := time.Now()

	next, ok, err := x.dispatch(ctx, node, u, view)

	cfg.metrics.RecordNodeExecution(ctx, u.node, kind, time.Since(startedAt), err)
	cfg.spans.EndSpanWithError(span, err)
	if err != nil {
		observability.LogNodeError(x.logger, u.node, err)
		x.fail(u, err)
		return unit{}, false
	}
	observability.LogNodeComplete(x.logger, u.node, elapsed())
	return next, ok
}

func (x *execution) dispatch(ctx context.Context, node Node, u unit, view *flowctx.View) (unit, bool, error) {
	switch n := node.(type) {
	case *AgentNode:
		return x.runAgent(ctx, n, u, view)
	case *DecisionNode:
		return x.decide(n, u)
	case *JoinNode:
		return x.arrive(ctx, n, u)
	case *LoopNode:
		return x.loop(ctx, n, u)
	case *ToolNode:
		return x.runTool(ctx, n, u, view)
	case *TerminalNode:
		x.complete(u, n.ID, u.msg, true)
		return unit{}, false, nil
	}
	return unit{}, false, &NodeError{NodeID: u.node, Op: "dispatch", Err: fmt.Errorf("unsupported node %T", node)}
}

// next moves u to target on the same branch.
func (x *execution) next(u unit, target string, msg *message.Message) unit {
	return unit{node: target, from: u.node, msg: msg, br: u.br, hops: u.hops}
}

// follow takes the first plain transition out of u.node whose condition
// holds against the session scope.
func (x *execution) follow(u unit, msg *message.Message) (unit, bool, error) {
	vars := x.fc.Session()
	for _, t := range x.e.graph.transitions[u.node] {
		ok, err := t.Condition.Eval(vars)
		if err != nil {
			return unit{}, false, &NodeError{NodeID: u.node, Op: "condition", Err: fmt.Errorf("transition to %s: %w", t.To, err)}
		}
		if ok {
			return x.next(u, t.To, msg), true, nil
		}
	}
	return unit{}, false, nil
}

// followOrComplete follows a transition, completing the branch with msg
// when none matches.
func (x *execution) followOrComplete(u unit, msg *message.Message) (unit, bool, error) {
	next, ok, err := x.follow(u, msg)
	if err != nil {
		return unit{}, false, err
	}
	if !ok {
		x.complete(u, u.node, msg, false)
	}
	return next, ok, nil
}

func (x *execution) record(msg *message.Message) {
	if msg != nil {
		x.fc.AppendMessage(msg)
	}
}

func (x *execution) complete(u unit, node string, msg *message.Message, terminal bool) {
	x.mu.Lock()
	if terminal {
		x.terminals[node] = msg
	}
	x.outputs = append(x.outputs, Output{Node: node, BranchID: u.br.id, Message: msg})
	x.completed++
	x.mu.Unlock()
	x.e.cfg.metrics.RecordBranch(x.ctx, false)
}

func (x *execution) fail(u unit, err error) {
	x.failAt(u.br.id, u.node, err)
}

func (x *execution) failAt(branchID, node string, err error) {
	be := &BranchError{ExecutionID: x.id, BranchID: branchID, NodeID: node, Err: err}
	x.mu.Lock()
	x.errs = append(x.errs, be)
	x.mu.Unlock()
	x.reportFailure(be)
}

// reportFailure logs and counts a failure already recorded in x.errs.
func (x *execution) reportFailure(be *BranchError) {
	observability.LogBranchFailed(x.logger, be.BranchID, be.NodeID, be.Err)
	x.e.cfg.metrics.RecordBranch(x.ctx, true)
}
