package agentflow

import (
	"fmt"

	"github.com/randalmurphal/agentflow/pkg/agentflow/message"
)

// decide evaluates a decision node against the session scope.
func (x *execution) decide(n *DecisionNode, u unit) (unit, bool, error) {
	if n.Policy != FirstMatch && n.Policy != AllMatches {
		return unit{}, false, &DecisionError{Node: n.ID, Policy: n.Policy, Err: ErrDecisionPolicy}
	}
	vars := x.fc.Session()

	var matched []DecisionBranch
	for _, b := range n.Branches {
		ok, err := b.Condition.Eval(vars)
		if err != nil {
			return unit{}, false, &NodeError{NodeID: n.ID, Op: "condition", Err: fmt.Errorf("branch %s: %w", b.Name, err)}
		}
		if !ok {
			continue
		}
		matched = append(matched, b)
		if n.Policy == FirstMatch {
			break
		}
	}

	if len(matched) == 0 {
		return x.noMatch(n, u)
	}

	if n.Policy == FirstMatch {
		b := matched[0]
		return x.next(u, b.Target, decorate(u.msg, n.ID, b)), true, nil
	}
	for _, b := range matched {
		child := x.newBranch(u.br)
		x.spawn(unit{node: b.Target, from: n.ID, msg: decorate(u.msg, n.ID, b), br: child, hops: u.hops})
	}
	return unit{}, false, nil
}

func (x *execution) noMatch(n *DecisionNode, u unit) (unit, bool, error) {
	fail := n.NoMatch == NoMatchFail || (n.NoMatch == NoMatchDefault && n.Policy == FirstMatch)
	if fail {
		return unit{}, false, &DecisionError{Node: n.ID, Policy: n.Policy, Err: ErrDecisionNoMatch}
	}
	x.logger.Debug("decision matched no branch", "node_id", n.ID, "branch_id", u.br.id)
	return unit{}, false, nil
}

// decorate tags the message with the decision that routed it.
func decorate(msg *message.Message, node string, b DecisionBranch) *message.Message {
	return msg.WithMetadata("decision", map[string]any{
		"node":              node,
		"branch":            b.Name,
		"source_message_id": msg.ID,
	})
}
