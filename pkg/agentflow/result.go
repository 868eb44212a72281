package agentflow

import (
	"time"

	"github.com/randalmurphal/agentflow/pkg/agentflow/message"
)

// Output is the final message of a completed branch path.
type Output struct {
	Node     string
	BranchID string
	Message  *message.Message
}

// ExecutionResult summarizes one execution.
type ExecutionResult struct {
	ExecutionID string

	// Terminals holds the last message recorded per terminal node reached.
	Terminals map[string]*message.Message

	// Outputs lists every completed path, including ones ended by Finish,
	// by a tool call without successor, or by running out of transitions.
	// Order follows completion and is not deterministic across branches.
	Outputs []Output

	LastMessage *message.Message
	History     []*message.Message

	// Errors holds one *BranchError per failed branch or unfired join.
	Errors []error

	Completed int
	Hops      int
	Duration  time.Duration
}

// Reached reports whether the terminal node was reached.
func (r *ExecutionResult) Reached(terminal string) bool {
	_, ok := r.Terminals[terminal]
	return ok
}

// Terminal returns the last message recorded at a terminal node.
func (r *ExecutionResult) Terminal(name string) (*message.Message, bool) {
	m, ok := r.Terminals[name]
	return m, ok
}
