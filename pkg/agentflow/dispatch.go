package agentflow

import (
	"context"
	"fmt"
	"maps"
	"runtime/debug"
	"sync"

	"github.com/randalmurphal/agentflow/pkg/agentflow/flowctx"
	"github.com/randalmurphal/agentflow/pkg/agentflow/message"
	"github.com/randalmurphal/agentflow/pkg/agentflow/observability"
	"github.com/randalmurphal/agentflow/pkg/agentflow/tools"
)

// agentStart runs an agent's OnStart hook at most once per execution.
type agentStart struct {
	once sync.Once
	err  error
}

func (x *execution) runAgent(ctx context.Context, n *AgentNode, u unit, view *flowctx.View) (unit, bool, error) {
	name := n.agentName()
	agent, ok := x.e.agents.Get(name)
	if !ok {
		return unit{}, false, &NodeError{NodeID: n.ID, Op: "lookup", Err: fmt.Errorf("%w: %s", ErrUnknownAgent, name)}
	}

	actx := &executionContext{
		Context:     ctx,
		logger:      observability.EnrichLogger(x.e.cfg.logger, x.id, n.ID, u.br.id),
		executionID: x.id,
		nodeID:      n.ID,
		branchID:    u.br.id,
		view:        view,
	}
	if err := x.startAgent(name, agent, actx); err != nil {
		return unit{}, false, &NodeError{NodeID: n.ID, Op: "start", Err: err}
	}

	action, err := act(name, agent, actx, u.msg)
	if err != nil {
		return unit{}, false, err
	}
	return x.apply(actx, n, agent, action, u)
}

func (x *execution) startAgent(name string, agent Agent, ctx Context) error {
	starter, ok := agent.(Starter)
	if !ok {
		return nil
	}
	s := x.starts.GetOrCreate(name, func() *agentStart { return &agentStart{} })
	s.once.Do(func() { s.err = starter.OnStart(ctx) })
	return s.err
}

func act(name string, agent Agent, ctx Context, msg *message.Message) (action Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{NodeID: ctx.NodeID(), Value: r, Stack: string(debug.Stack())}
		}
	}()
	action, err = agent.Act(ctx, msg)
	if err != nil {
		return nil, &AgentError{Agent: name, NodeID: ctx.NodeID(), Err: err}
	}
	return action, nil
}

// apply routes an agent's action.
func (x *execution) apply(ctx Context, n *AgentNode, agent Agent, action Action, u unit) (unit, bool, error) {
	g := x.e.graph

	// emit validates and records a message the agent produced; nil
	// forwards the input.
	emit := func(m *message.Message) (*message.Message, error) {
		if m == nil {
			return u.msg, nil
		}
		if err := x.e.checkPayload(m); err != nil {
			return nil, &NodeError{NodeID: n.ID, Op: "schema", Err: err}
		}
		x.record(m)
		return m, nil
	}

	switch a := deref(action).(type) {
	case nil:
		return x.followOrComplete(u, u.msg)

	case Next:
		if !g.HasNode(a.Target) {
			return unit{}, false, &NodeError{NodeID: n.ID, Op: "route", Err: fmt.Errorf("%w: %s", ErrUnknownTarget, a.Target)}
		}
		msg, err := emit(a.Message)
		if err != nil {
			return unit{}, false, err
		}
		return x.next(u, a.Target, msg), true, nil

	case Branch:
		var valid []BranchTarget
		for _, t := range a.Targets {
			if !g.HasNode(t.Node) {
				ctx.Logger().Warn("skipping unknown branch target", "target", t.Node)
				continue
			}
			valid = append(valid, t)
		}
		msgs := make([]*message.Message, len(valid))
		for i, t := range valid {
			msg, err := emit(t.Message)
			if err != nil {
				return unit{}, false, err
			}
			msgs[i] = msg
		}
		for i, t := range valid {
			child := x.newBranch(u.br)
			x.spawn(unit{node: t.Node, from: n.ID, msg: msgs[i], br: child, hops: u.hops})
		}
		if len(valid) == 0 {
			x.complete(u, n.ID, u.msg, false)
		}
		return unit{}, false, nil

	case CallTool:
		res, err := x.callTool(ctx, a.Name, a.Params, ctx.View())
		if err != nil {
			return unit{}, false, &NodeError{NodeID: n.ID, Op: "tool", Err: err}
		}
		msg, err := emit(res.Message)
		if err != nil {
			return unit{}, false, err
		}
		if a.OnComplete == "" {
			x.complete(u, n.ID, msg, false)
			return unit{}, false, nil
		}
		if !g.HasNode(a.OnComplete) {
			return unit{}, false, &NodeError{NodeID: n.ID, Op: "route", Err: fmt.Errorf("%w: %s", ErrUnknownTarget, a.OnComplete)}
		}
		return x.next(u, a.OnComplete, msg), true, nil

	case Finish:
		msg, err := emit(a.Message)
		if err != nil {
			return unit{}, false, err
		}
		if f, ok := agent.(Finisher); ok {
			if err := f.OnFinish(ctx, msg); err != nil {
				return unit{}, false, &NodeError{NodeID: n.ID, Op: "finish", Err: err}
			}
		}
		x.complete(u, n.ID, msg, false)
		return unit{}, false, nil

	case Continue:
		msg, err := emit(a.Message)
		if err != nil {
			return unit{}, false, err
		}
		return x.followOrComplete(u, msg)
	}
	return unit{}, false, &NodeError{NodeID: n.ID, Op: "route", Err: fmt.Errorf("%w: %T", ErrUnsupportedAction, action)}
}

// deref accepts pointer forms of the built-in actions.
func deref(action Action) Action {
	switch a := action.(type) {
	case *Next:
		if a != nil {
			return *a
		}
	case *Branch:
		if a != nil {
			return *a
		}
	case *CallTool:
		if a != nil {
			return *a
		}
	case *Finish:
		if a != nil {
			return *a
		}
	case *Continue:
		if a != nil {
			return *a
		}
	default:
		return action
	}
	return nil
}

func (x *execution) callTool(ctx context.Context, name string, params map[string]any, view *flowctx.View) (*tools.Result, error) {
	o := x.e.cfg.orchestrator
	if o == nil {
		return nil, ErrNoOrchestrator
	}
	return o.Execute(ctx, name, params, view)
}

// runTool executes a tool node. Params are the incoming payload overlaid by
// the node's static params.
func (x *execution) runTool(ctx context.Context, n *ToolNode, u unit, view *flowctx.View) (unit, bool, error) {
	params := make(map[string]any)
	if p, ok := u.msg.PayloadMap(); ok {
		maps.Copy(params, p)
	}
	maps.Copy(params, n.Params)

	res, err := x.callTool(ctx, n.Pipeline, params, view)
	if err != nil {
		return unit{}, false, &NodeError{NodeID: n.ID, Op: "tool", Err: err}
	}
	x.record(res.Message)
	return x.followOrComplete(u, res.Message)
}
