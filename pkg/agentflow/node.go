package agentflow

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/agentflow/pkg/agentflow/message"
)

// NodeKind discriminates the node variants.
type NodeKind int

const (
	KindAgent NodeKind = iota
	KindDecision
	KindJoin
	KindLoop
	KindTool
	KindTerminal
)

var kindNames = [...]string{"agent", "decision", "join", "loop", "tool", "terminal"}

func (k NodeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseNodeKind converts a kind name such as "decision".
func ParseNodeKind(s string) (NodeKind, error) {
	for i, name := range kindNames {
		if strings.EqualFold(s, name) {
			return NodeKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown node kind %q", s)
}

// Node is one vertex of a flow graph. The set of implementations is closed:
// *AgentNode, *DecisionNode, *JoinNode, *LoopNode, *ToolNode and *TerminalNode.
type Node interface {
	Name() string
	Kind() NodeKind
	node()
}

// AgentNode delegates to a registered Agent.
type AgentNode struct {
	ID string

	// Agent is the registered agent name. Empty means ID.
	Agent string

	// Routes lists nodes the agent may target with Next or Branch. It is only
	// used for reachability analysis at build time.
	Routes []string
}

func (n *AgentNode) Name() string   { return n.ID }
func (n *AgentNode) Kind() NodeKind { return KindAgent }
func (*AgentNode) node()            {}

func (n *AgentNode) agentName() string {
	if n.Agent != "" {
		return n.Agent
	}
	return n.ID
}

// DecisionPolicy selects how many decision branches are taken.
type DecisionPolicy int

const (
	// FirstMatch takes the first branch whose condition holds and stays on
	// the current execution branch.
	FirstMatch DecisionPolicy = iota

	// AllMatches spawns one concurrent branch per matching condition.
	AllMatches
)

func (p DecisionPolicy) String() string {
	switch p {
	case FirstMatch:
		return "first_match"
	case AllMatches:
		return "all_matches"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// NoMatchPolicy decides what happens when no decision branch matches.
type NoMatchPolicy int

const (
	// NoMatchDefault fails FirstMatch decisions with ErrDecisionNoMatch and
	// silently ends AllMatches paths.
	NoMatchDefault NoMatchPolicy = iota

	// NoMatchEnd ends the path without an error.
	NoMatchEnd

	// NoMatchFail fails the branch with ErrDecisionNoMatch.
	NoMatchFail
)

func (p NoMatchPolicy) String() string {
	switch p {
	case NoMatchEnd:
		return "end"
	case NoMatchFail:
		return "fail"
	default:
		return "default"
	}
}

// DecisionBranch is one guarded outcome of a decision.
type DecisionBranch struct {
	Name      string
	Condition Condition
	Target    string
}

// DecisionNode routes on conditions evaluated against Session variables.
type DecisionNode struct {
	ID       string
	Policy   DecisionPolicy
	Branches []DecisionBranch
	NoMatch  NoMatchPolicy
}

func (n *DecisionNode) Name() string   { return n.ID }
func (n *DecisionNode) Kind() NodeKind { return KindDecision }
func (*DecisionNode) node()            {}

// JoinStrategy decides when a join fires.
type JoinStrategy int

const (
	// JoinAll fires once every inbound node has arrived.
	JoinAll JoinStrategy = iota

	// JoinAny fires on the first arrival.
	JoinAny

	// JoinCount fires when Count arrivals have been seen.
	JoinCount

	// JoinCustom delegates to the node's Aggregator.
	JoinCustom
)

func (s JoinStrategy) String() string {
	switch s {
	case JoinAny:
		return "any"
	case JoinCount:
		return "count"
	case JoinCustom:
		return "custom"
	default:
		return "all"
	}
}

// Arrival is a message that reached a join.
type Arrival struct {
	Source   string
	BranchID string
	Message  *message.Message
}

// JoinAggregator implements JoinCustom. Ready is called after each arrival
// with every arrival so far, in arrival order; once it returns true
// Aggregate builds the message released by the join.
type JoinAggregator interface {
	Ready(arrivals []Arrival) bool
	Aggregate(join string, arrivals []Arrival) (*message.Message, error)
}

// JoinNode waits for inbound branches and releases one aggregated message.
type JoinNode struct {
	ID       string
	Strategy JoinStrategy

	// Count is the arrival threshold for JoinCount.
	Count int

	// Inbound names the nodes whose arrivals count toward the join.
	Inbound []string

	Aggregator JoinAggregator
}

func (n *JoinNode) Name() string   { return n.ID }
func (n *JoinNode) Kind() NodeKind { return KindJoin }
func (*JoinNode) node()            {}

// LoopNode bounds re-entry into a region of the graph.
type LoopNode struct {
	ID string

	// Entry is enqueued while Condition holds.
	Entry     string
	Condition Condition

	// MaxIterations is the number of entries allowed before the branch fails
	// with ErrLoopBoundExceeded.
	MaxIterations int

	// Exit is taken when Condition fails. Empty falls back to the first
	// matching plain transition that does not target Entry.
	Exit string

	// BreakTargets are nodes whose dispatch discards this loop's frame.
	BreakTargets []string
}

func (n *LoopNode) Name() string   { return n.ID }
func (n *LoopNode) Kind() NodeKind { return KindLoop }
func (*LoopNode) node()            {}

// ToolNode runs a pipeline or tool through the orchestrator.
type ToolNode struct {
	ID       string
	Pipeline string

	// Params override per-call params taken from the incoming message payload.
	Params map[string]any
}

func (n *ToolNode) Name() string   { return n.ID }
func (n *ToolNode) Kind() NodeKind { return KindTool }
func (*ToolNode) node()            {}

// TerminalNode completes the branch that reaches it.
type TerminalNode struct {
	ID string
}

func (n *TerminalNode) Name() string   { return n.ID }
func (n *TerminalNode) Kind() NodeKind { return KindTerminal }
func (*TerminalNode) node()            {}

// Transition is a plain edge between nodes, taken in declaration order when
// its Condition holds.
type Transition struct {
	From      string
	To        string
	Condition Condition
}
