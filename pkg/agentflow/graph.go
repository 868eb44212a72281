package agentflow

// Builder accumulates nodes and transitions for a flow graph.
// Call Build to validate them and obtain an immutable *Graph.
//
// Builder is NOT safe for concurrent use. Problems are reported by Build,
// not by the Add methods, so nodes and transitions may be added in any order.
//
// Example:
//
//	g, err := agentflow.NewBuilder().
//	    AddNode(&agentflow.AgentNode{ID: "plan"}).
//	    AddNode(&agentflow.TerminalNode{ID: "done"}).
//	    Connect("plan", "done").
//	    SetStart("plan").
//	    Build()
type Builder struct {
	start       string
	nodes       []Node
	transitions []Transition
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddNode appends a node.
func (b *Builder) AddNode(n Node) *Builder {
	b.nodes = append(b.nodes, n)
	return b
}

// AddNodes appends several nodes.
func (b *Builder) AddNodes(nodes ...Node) *Builder {
	b.nodes = append(b.nodes, nodes...)
	return b
}

// Connect adds an unconditional transition.
func (b *Builder) Connect(from, to string) *Builder {
	return b.AddTransition(Transition{From: from, To: to})
}

// ConnectIf adds a transition taken only when cond holds.
func (b *Builder) ConnectIf(from, to string, cond Condition) *Builder {
	return b.AddTransition(Transition{From: from, To: to, Condition: cond})
}

// AddTransition appends a transition. Transitions sharing a From are
// evaluated in the order they were added.
func (b *Builder) AddTransition(t Transition) *Builder {
	b.transitions = append(b.transitions, t)
	return b
}

// SetStart designates the start node.
func (b *Builder) SetStart(name string) *Builder {
	b.start = name
	return b
}

// Build validates the accumulated definition. See Build.
func (b *Builder) Build() (*Graph, error) {
	return Build(b.start, b.nodes, b.transitions)
}
