package config

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/agentflow/pkg/agentflow"
)

// ErrNotSerializable is returned by Encode for graphs holding Go-only
// conditions.
var ErrNotSerializable = errors.New("graph is not serializable")

// Encode renders g as a workflow document with only the flow section.
// Decoding the result with FromYAML and calling Graph yields an equivalent
// graph; custom joins reference their aggregator by node id.
func Encode(g *agentflow.Graph) ([]byte, error) {
	flow, err := EncodeFlow(g)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(&Workflow{Flow: flow})
}

// EncodeFlow converts g into a FlowDef.
func EncodeFlow(g *agentflow.Graph) (FlowDef, error) {
	fd := FlowDef{Start: g.Start()}
	for _, n := range g.Nodes() {
		nd, err := encodeNode(n)
		if err != nil {
			return FlowDef{}, fmt.Errorf("node %q: %w", n.Name(), err)
		}
		fd.Nodes = append(fd.Nodes, nd)
	}
	for _, t := range g.AllTransitions() {
		when, err := encodeCondition(t.Condition)
		if err != nil {
			return FlowDef{}, fmt.Errorf("transition %s -> %s: %w", t.From, t.To, err)
		}
		fd.Transitions = append(fd.Transitions, TransitionDef{From: t.From, To: t.To, When: when})
	}
	return fd, nil
}

func encodeNode(n agentflow.Node) (NodeDef, error) {
	nd := NodeDef{ID: n.Name(), Kind: n.Kind().String()}
	switch n := n.(type) {
	case *agentflow.AgentNode:
		nd.Agent = n.Agent
		nd.Routes = n.Routes
	case *agentflow.DecisionNode:
		nd.Policy = n.Policy.String()
		if n.NoMatch != agentflow.NoMatchDefault {
			nd.NoMatch = n.NoMatch.String()
		}
		for _, b := range n.Branches {
			when, err := encodeCondition(b.Condition)
			if err != nil {
				return NodeDef{}, fmt.Errorf("branch %q: %w", b.Name, err)
			}
			nd.Branches = append(nd.Branches, BranchDef{Name: b.Name, When: when, Target: b.Target})
		}
	case *agentflow.JoinNode:
		nd.Strategy = n.Strategy.String()
		nd.Count = n.Count
		nd.Inbound = n.Inbound
		if n.Strategy == agentflow.JoinCustom {
			nd.Aggregator = n.ID
		}
	case *agentflow.LoopNode:
		when, err := encodeCondition(n.Condition)
		if err != nil {
			return NodeDef{}, err
		}
		nd.Entry = n.Entry
		nd.Condition = when
		nd.MaxIterations = n.MaxIterations
		nd.Exit = n.Exit
		nd.BreakTargets = n.BreakTargets
	case *agentflow.ToolNode:
		nd.Pipeline = n.Pipeline
		nd.Params = n.Params
	}
	return nd, nil
}

func encodeCondition(c agentflow.Condition) (*ConditionDef, error) {
	switch {
	case c.IsAlways():
		return nil, nil
	case c.Kind == agentflow.CondFunc:
		return nil, fmt.Errorf("%w: func condition", ErrNotSerializable)
	}
	return &ConditionDef{Kind: string(c.Kind), Key: c.Key, Value: c.Value, Expr: c.Expr}, nil
}
