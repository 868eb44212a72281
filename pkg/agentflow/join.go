package agentflow

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"slices"
	"sort"
	"time"

	"github.com/randalmurphal/agentflow/pkg/agentflow/message"
	"github.com/randalmurphal/agentflow/pkg/agentflow/observability"
)

// joinTracker collects arrivals at one join node for one execution.
type joinTracker struct {
	node     *JoinNode
	sources  map[string]bool
	arrivals []Arrival
	fired    bool
	timer    *time.Timer
}

// complete reports whether every inbound source has arrived.
func (t *joinTracker) complete() bool {
	for _, in := range t.node.Inbound {
		if !t.sources[in] {
			return false
		}
	}
	return true
}

// ready reports whether the join should fire. A panicking custom
// aggregator is returned as a *PanicError.
func (t *joinTracker) ready() (ok bool, err error) {
	switch t.node.Strategy {
	case JoinAny:
		return len(t.arrivals) >= 1, nil
	case JoinCount:
		return len(t.arrivals) >= t.node.Count, nil
	case JoinCustom:
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{NodeID: t.node.ID, Value: r, Stack: string(debug.Stack())}
			}
		}()
		return t.node.Aggregator.Ready(slices.Clone(t.arrivals)), nil
	default:
		return t.complete(), nil
	}
}

func (t *joinTracker) arrived() []string {
	out := make([]string, 0, len(t.sources))
	for s := range t.sources {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (t *joinTracker) lastBranch() string {
	if len(t.arrivals) == 0 {
		return ""
	}
	return t.arrivals[len(t.arrivals)-1].BranchID
}

// arrive records u at join n and, when the join fires, continues with the
// aggregate in the parent of the arriving branch.
func (x *execution) arrive(ctx context.Context, n *JoinNode, u unit) (unit, bool, error) {
	if len(n.Inbound) > 0 && !slices.Contains(n.Inbound, u.from) {
		x.logger.Warn("ignoring join arrival from non-inbound source",
			"node_id", n.ID, "source", u.from, "branch_id", u.br.id)
		return unit{}, false, nil
	}

	x.mu.Lock()
	t := x.joins[n.ID]
	if t == nil {
		t = &joinTracker{node: n, sources: make(map[string]bool)}
		x.joins[n.ID] = t
		if d := x.e.cfg.joinTimeout; d > 0 {
			t.timer = time.AfterFunc(d, func() { x.expireJoin(n.ID, t) })
		}
	}
	t.sources[u.from] = true

	fire := false
	if t.fired {
		x.logger.Debug("dropping late join arrival", "node_id", n.ID, "source", u.from, "branch_id", u.br.id)
	} else {
		t.arrivals = append(t.arrivals, Arrival{Source: u.from, BranchID: u.br.id, Message: u.msg})
		ready, err := t.ready()
		if err != nil {
			if t.timer != nil {
				t.timer.Stop()
			}
			delete(x.joins, n.ID)
			x.mu.Unlock()
			return unit{}, false, err
		}
		if ready {
			t.fired = true
			fire = true
			if t.timer != nil {
				t.timer.Stop()
			}
		}
	}
	if t.fired && t.complete() {
		delete(x.joins, n.ID)
	}
	arrivals := slices.Clone(t.arrivals)
	x.mu.Unlock()

	if !fire {
		return unit{}, false, nil
	}

	msg, err := aggregateJoin(n, arrivals)
	if err != nil {
		return unit{}, false, &NodeError{NodeID: n.ID, Op: "aggregate", Err: err}
	}
	x.record(msg)
	x.e.cfg.metrics.RecordJoinFired(ctx, n.ID, len(arrivals))
	observability.LogJoinFired(x.logger, n.ID, n.Strategy.String(), len(arrivals))

	br := u.br
	if br.parent != nil {
		br = br.parent
	}
	return x.followOrComplete(unit{node: n.ID, from: u.from, msg: msg, br: br, hops: u.hops}, msg)
}

func (x *execution) expireJoin(name string, t *joinTracker) {
	x.mu.Lock()
	if x.drained || t.fired || x.joins[name] != t {
		x.mu.Unlock()
		return
	}
	delete(x.joins, name)
	be := &BranchError{
		ExecutionID: x.id,
		BranchID:    t.lastBranch(),
		NodeID:      name,
		Err:         &JoinError{Join: name, Strategy: t.node.Strategy, Arrived: t.arrived(), Err: ErrJoinTimeout},
	}
	x.errs = append(x.errs, be)
	x.mu.Unlock()

	x.reportFailure(be)
}

// drain converts joins still waiting at the end of the execution into errors.
func (x *execution) drain() {
	x.mu.Lock()
	x.drained = true
	names := make([]string, 0, len(x.joins))
	for name := range x.joins {
		names = append(names, name)
	}
	sort.Strings(names)

	var pending []*BranchError
	for _, name := range names {
		t := x.joins[name]
		if t.timer != nil {
			t.timer.Stop()
		}
		delete(x.joins, name)
		if t.fired {
			continue
		}
		pending = append(pending, &BranchError{
			BranchID: t.lastBranch(),
			NodeID:   name,
			Err:      &JoinError{Join: name, Strategy: t.node.Strategy, Arrived: t.arrived(), Err: ErrJoinIncomplete},
		})
	}
	x.mu.Unlock()

	for _, be := range pending {
		x.failAt(be.BranchID, be.NodeID, be.Err)
	}
}

// aggregateJoin builds the message a join releases. The default aggregate
// is a system message whose payload lists every arrival in order.
func aggregateJoin(n *JoinNode, arrivals []Arrival) (msg *message.Message, err error) {
	if n.Strategy == JoinCustom {
		defer func() {
			if r := recover(); r != nil {
				msg, err = nil, &PanicError{NodeID: n.ID, Value: r, Stack: string(debug.Stack())}
			}
		}()
		msg, err = n.Aggregator.Aggregate(n.ID, arrivals)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			msg = message.New(message.RoleSystem, n.ID, "")
		}
		return msg, nil
	}

	items := make([]map[string]any, len(arrivals))
	for i, a := range arrivals {
		item := map[string]any{"source": a.Source, "branch": a.BranchID}
		if m := a.Message; m != nil {
			item["id"] = m.ID
			item["role"] = string(m.Role)
			item["content"] = m.Content
			if len(m.Metadata) > 0 {
				item["metadata"] = m.Metadata
			}
		}
		items[i] = item
	}
	payload := map[string]any{"join_node": n.ID, "messages": items}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return message.New(message.RoleSystem, n.ID, string(data)).WithPayload(payload, "join.aggregate"), nil
}
