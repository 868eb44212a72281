package agentflow

import (
	"maps"
	"slices"
)

// Graph is an immutable, validated flow graph created by Build.
//
// A Graph is safe for concurrent use and may back any number of
// simultaneous executions; none of them mutate it.
type Graph struct {
	start       string
	nodes       map[string]Node
	order       []string
	transitions map[string][]Transition

	// breaks maps a node to the loops it breaks out of.
	breaks map[string][]string
}

// Start returns the start node name.
func (g *Graph) Start() string { return g.start }

// Node returns a copy of the named node.
func (g *Graph) Node(name string) (Node, bool) {
	n, ok := g.nodes[name]
	if !ok {
		return nil, false
	}
	return cloneNode(n), true
}

// HasNode reports whether name exists.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// NodeNames returns node names in declaration order.
func (g *Graph) NodeNames() []string { return slices.Clone(g.order) }

// Nodes returns copies of the nodes in declaration order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.order))
	for i, name := range g.order {
		out[i] = cloneNode(g.nodes[name])
	}
	return out
}

// Transitions returns the plain transitions leaving name, in declaration order.
func (g *Graph) Transitions(name string) []Transition {
	return slices.Clone(g.transitions[name])
}

// AllTransitions returns every transition grouped by source in node
// declaration order.
func (g *Graph) AllTransitions() []Transition {
	var out []Transition
	for _, name := range g.order {
		out = append(out, g.transitions[name]...)
	}
	return out
}

// Successors returns the distinct nodes reachable in one hop from name,
// including decision, loop and agent route targets.
func (g *Graph) Successors(name string) []string {
	var out []string
	for _, n := range g.edges(name) {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

// Predecessors returns the nodes with a static edge into name, in
// declaration order.
func (g *Graph) Predecessors(name string) []string {
	var out []string
	for _, from := range g.order {
		if slices.Contains(g.edges(from), name) {
			out = append(out, from)
		}
	}
	return out
}

// Kinds counts nodes per kind.
func (g *Graph) Kinds() map[NodeKind]int {
	out := make(map[NodeKind]int)
	for _, n := range g.nodes {
		out[n.Kind()]++
	}
	return out
}

// agentNames lists the distinct agent names referenced by agent nodes.
func (g *Graph) agentNames() []string {
	seen := make(map[string]bool)
	for _, n := range g.nodes {
		if a, ok := n.(*AgentNode); ok {
			seen[a.agentName()] = true
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// pipelineNames lists the distinct pipelines referenced by tool nodes.
func (g *Graph) pipelineNames() []string {
	seen := make(map[string]bool)
	for _, n := range g.nodes {
		if t, ok := n.(*ToolNode); ok {
			seen[t.Pipeline] = true
		}
	}
	return slices.Sorted(maps.Keys(seen))
}
