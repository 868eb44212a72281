package agentflow

import (
	"context"
	"fmt"
)

// loopFrame counts entries into a loop for one execution. It is dropped
// when the loop exits, fails or is broken out of.
type loopFrame struct {
	iterations int
}

func (x *execution) loop(ctx context.Context, n *LoopNode, u unit) (unit, bool, error) {
	x.mu.Lock()
	f := x.loops[n.ID]
	if f == nil {
		f = &loopFrame{}
		x.loops[n.ID] = f
	}
	again, err := n.Condition.Eval(x.fc.Session())
	if err != nil || !again {
		delete(x.loops, n.ID)
		x.mu.Unlock()
		if err != nil {
			return unit{}, false, &NodeError{NodeID: n.ID, Op: "condition", Err: err}
		}
		return x.exitLoop(n, u)
	}
	if f.iterations >= n.MaxIterations {
		delete(x.loops, n.ID)
		x.mu.Unlock()
		return unit{}, false, &LoopBoundError{Loop: n.ID, Max: n.MaxIterations, Iterations: f.iterations}
	}
	f.iterations++
	x.mu.Unlock()

	x.e.cfg.metrics.RecordLoopIteration(ctx, n.ID)
	return x.next(u, n.Entry, u.msg), true, nil
}

func (x *execution) exitLoop(n *LoopNode, u unit) (unit, bool, error) {
	if n.Exit != "" {
		return x.next(u, n.Exit, u.msg), true, nil
	}
	vars := x.fc.Session()
	for _, t := range x.e.graph.transitions[n.ID] {
		if t.To == n.Entry {
			continue
		}
		ok, err := t.Condition.Eval(vars)
		if err != nil {
			return unit{}, false, &NodeError{NodeID: n.ID, Op: "condition", Err: fmt.Errorf("transition to %s: %w", t.To, err)}
		}
		if ok {
			return x.next(u, t.To, u.msg), true, nil
		}
	}
	x.complete(u, n.ID, u.msg, false)
	return unit{}, false, nil
}

// breakLoops drops the frames of loops that node breaks out of.
func (x *execution) breakLoops(node string) {
	loops := x.e.graph.breaks[node]
	if len(loops) == 0 {
		return
	}
	x.mu.Lock()
	for _, l := range loops {
		delete(x.loops, l)
	}
	x.mu.Unlock()
}
