package agentflow

import (
	"github.com/randalmurphal/agentflow/pkg/agentflow/message"
)

// Agent is an external capability invoked by agent nodes. It inspects the
// incoming message and the context view and returns the next Action.
//
// Act may be called concurrently from different branches.
type Agent interface {
	Act(ctx Context, msg *message.Message) (Action, error)
}

// AgentFunc adapts a function to Agent.
type AgentFunc func(ctx Context, msg *message.Message) (Action, error)

// Act implements Agent.
func (f AgentFunc) Act(ctx Context, msg *message.Message) (Action, error) {
	return f(ctx, msg)
}

// Starter is implemented by agents that need setup. OnStart runs once per
// agent per execution, before its first Act. An error fails the branch.
type Starter interface {
	OnStart(ctx Context) error
}

// Finisher is implemented by agents notified when they return Finish.
type Finisher interface {
	OnFinish(ctx Context, msg *message.Message) error
}

// Port is one named input or output of an agent. Schema, when set, names
// an entry in the executor's schema registry.
type Port struct {
	Name        string `yaml:"name" json:"name"`
	Schema      string `yaml:"schema,omitempty" json:"schema,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Manifest describes an agent: what it consumes and produces, the tools
// it calls and free-form capability tags.
type Manifest struct {
	Name         string   `yaml:"name" json:"name"`
	Description  string   `yaml:"description,omitempty" json:"description,omitempty"`
	Inputs       []Port   `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs      []Port   `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Tools        []string `yaml:"tools,omitempty" json:"tools,omitempty"`
	Capabilities []string `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
}

// Describer is implemented by agents that publish a Manifest. Check
// verifies the manifest's tools and port schemas resolve.
type Describer interface {
	Manifest() Manifest
}

// Action is the closed set of agent outcomes: Next, Branch, CallTool,
// Finish and Continue. A nil Action is treated as Continue{}.
//
// In every action a nil Message forwards the incoming message.
type Action interface {
	action()
}

// Next moves the current branch to Target.
type Next struct {
	Target  string
	Message *message.Message
}

// BranchTarget is one destination of a Branch action.
type BranchTarget struct {
	Node    string
	Message *message.Message
}

// Branch spawns one concurrent child branch per target. Unknown targets are
// skipped with a warning; with no valid target the branch completes.
type Branch struct {
	Targets []BranchTarget
}

// CallTool runs a pipeline or tool and routes its result to OnComplete.
// With no OnComplete the result completes the branch.
type CallTool struct {
	Name       string
	Params     map[string]any
	OnComplete string
}

// Finish completes the branch with Message.
type Finish struct {
	Message *message.Message
}

// Continue follows the node's plain transitions. With none matching the
// branch completes.
type Continue struct {
	Message *message.Message
}

func (Next) action()     {}
func (Branch) action()   {}
func (CallTool) action() {}
func (Finish) action()   {}
func (Continue) action() {}

// GoTo returns a Next action forwarding the incoming message.
func GoTo(target string) Next { return Next{Target: target} }

// Fork returns a Branch action forwarding the incoming message to every target.
func Fork(targets ...string) Branch {
	b := Branch{Targets: make([]BranchTarget, len(targets))}
	for i, t := range targets {
		b.Targets[i] = BranchTarget{Node: t}
	}
	return b
}
