package agentflow

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/agentflow/pkg/agentflow/flowctx"
)

// Context is passed to agents. It extends context.Context with the
// execution's identity and the scoped variable view of the current node.
//
// Writes through View land in the node's own scope unless a scope is
// named with SetScope; use flowctx.ScopeSession for state that must
// outlive the node and be visible to conditions.
type Context interface {
	context.Context

	// Logger returns a logger enriched with execution, node and branch ids.
	Logger() *slog.Logger

	ExecutionID() string
	NodeID() string
	BranchID() string

	// View returns the node's scoped context view.
	View() *flowctx.View

	// Flow returns the execution's shared context, including message history.
	Flow() *flowctx.Context
}

type executionContext struct {
	context.Context

	logger      *slog.Logger
	executionID string
	nodeID      string
	branchID    string
	view        *flowctx.View
}

func (c *executionContext) Logger() *slog.Logger   { return c.logger }
func (c *executionContext) ExecutionID() string    { return c.executionID }
func (c *executionContext) NodeID() string         { return c.nodeID }
func (c *executionContext) BranchID() string       { return c.branchID }
func (c *executionContext) View() *flowctx.View    { return c.view }
func (c *executionContext) Flow() *flowctx.Context { return c.view.Context() }
