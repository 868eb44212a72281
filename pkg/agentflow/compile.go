package agentflow

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Build validates a graph definition and returns the immutable Graph.
// Every problem found is reported; the returned error joins one
// *ValidationError per problem.
//
// Validation checks:
//  1. node names are non-empty and unique
//  2. the start node is set and exists
//  3. transitions, decision targets, join inbound sets, loop entry, exit and
//     break targets, and agent routes reference existing nodes
//  4. decisions have branches; joins have inbound nodes and a valid count or
//     aggregator; loops have a positive iteration bound
//  5. conditions are well formed (expressions are parsed here)
//  6. every node is reachable from the start node
func Build(start string, nodes []Node, transitions []Transition) (*Graph, error) {
	var errs []error
	invalid := func(node string, err error) {
		errs = append(errs, &ValidationError{Node: node, Err: err})
	}

	g := &Graph{
		start:       start,
		nodes:       make(map[string]Node, len(nodes)),
		transitions: make(map[string][]Transition),
		breaks:      make(map[string][]string),
	}

	for _, n := range nodes {
		if n == nil {
			invalid("", errors.New("nil node"))
			continue
		}
		name := n.Name()
		switch {
		case name == "":
			invalid("", ErrEmptyName)
			continue
		case g.nodes[name] != nil:
			invalid(name, ErrDuplicateNode)
			continue
		}
		g.nodes[name] = cloneNode(n)
		g.order = append(g.order, name)
	}

	switch {
	case start == "":
		invalid("", ErrNoStart)
	case g.nodes[start] == nil:
		invalid(start, fmt.Errorf("%w: %s", ErrStartNotFound, start))
	}

	ref := func(owner, what, target string) {
		if g.nodes[target] == nil {
			invalid(owner, fmt.Errorf("%w: %s %q", ErrNodeNotFound, what, target))
		}
	}
	cond := func(owner string, c Condition) Condition {
		compiled, err := c.compile()
		if err != nil {
			invalid(owner, fmt.Errorf("%w: %v", ErrInvalidCondition, err))
		}
		return compiled
	}

	for _, t := range transitions {
		ref(t.From, "transition source", t.From)
		ref(t.From, "transition target", t.To)
		t.Condition = cond(t.From, t.Condition)
		g.transitions[t.From] = append(g.transitions[t.From], t)
	}

	for _, name := range g.order {
		switch n := g.nodes[name].(type) {
		case *AgentNode:
			for _, r := range n.Routes {
				ref(name, "route", r)
			}
		case *DecisionNode:
			if len(n.Branches) == 0 {
				invalid(name, ErrEmptyDecision)
			}
			compiled := *n
			compiled.Branches = slices.Clone(n.Branches)
			for i, br := range compiled.Branches {
				ref(name, "decision target", br.Target)
				compiled.Branches[i].Condition = cond(name, br.Condition)
			}
			g.nodes[name] = &compiled
		case *JoinNode:
			if len(n.Inbound) == 0 {
				invalid(name, ErrEmptyInbound)
			}
			for _, in := range n.Inbound {
				ref(name, "inbound", in)
			}
			switch n.Strategy {
			case JoinCount:
				if n.Count < 1 || (len(n.Inbound) > 0 && n.Count > len(n.Inbound)) {
					invalid(name, fmt.Errorf("%w: %d of %d inbound", ErrInvalidJoinCount, n.Count, len(n.Inbound)))
				}
			case JoinCustom:
				if n.Aggregator == nil {
					invalid(name, ErrMissingAggregator)
				}
			}
		case *LoopNode:
			if n.Entry == "" {
				invalid(name, fmt.Errorf("%w: no entry", ErrInvalidLoop))
			} else {
				ref(name, "loop entry", n.Entry)
			}
			if n.MaxIterations <= 0 {
				invalid(name, fmt.Errorf("%w: max_iterations must be positive, got %d", ErrInvalidLoop, n.MaxIterations))
			}
			if n.Exit != "" {
				ref(name, "loop exit", n.Exit)
			}
			for _, bt := range n.BreakTargets {
				ref(name, "break target", bt)
				g.breaks[bt] = append(g.breaks[bt], name)
			}
			compiled := *n
			compiled.Condition = cond(name, n.Condition)
			g.nodes[name] = &compiled
		case *ToolNode:
			if n.Pipeline == "" {
				invalid(name, errors.New("tool node names no pipeline"))
			}
		}
	}

	if g.nodes[start] != nil {
		reachable := g.reachable()
		for _, name := range g.order {
			if !reachable[name] {
				invalid(name, ErrUnreachable)
			}
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return g, nil
}

// reachable returns the nodes reachable from start over every static edge.
func (g *Graph) reachable() map[string]bool {
	seen := map[string]bool{g.start: true}
	queue := []string{g.start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.edges(cur) {
			if g.nodes[next] != nil && !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

// edges lists every node statically reachable in one hop from name.
func (g *Graph) edges(name string) []string {
	var out []string
	for _, t := range g.transitions[name] {
		out = append(out, t.To)
	}
	switch n := g.nodes[name].(type) {
	case *AgentNode:
		out = append(out, n.Routes...)
	case *DecisionNode:
		for _, br := range n.Branches {
			out = append(out, br.Target)
		}
	case *LoopNode:
		out = append(out, n.Entry)
		if n.Exit != "" {
			out = append(out, n.Exit)
		}
		out = append(out, n.BreakTargets...)
	}
	return out
}

// cloneNode copies n together with its slices and maps, so a built graph
// shares nothing with the definitions it was built from.
func cloneNode(n Node) Node {
	switch n := n.(type) {
	case *AgentNode:
		c := *n
		c.Routes = slices.Clone(n.Routes)
		return &c
	case *DecisionNode:
		c := *n
		c.Branches = slices.Clone(n.Branches)
		return &c
	case *JoinNode:
		c := *n
		c.Inbound = slices.Clone(n.Inbound)
		return &c
	case *LoopNode:
		c := *n
		c.BreakTargets = slices.Clone(n.BreakTargets)
		return &c
	case *ToolNode:
		c := *n
		c.Params = maps.Clone(n.Params)
		return &c
	case *TerminalNode:
		c := *n
		return &c
	}
	return n
}
