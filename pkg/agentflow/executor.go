package agentflow

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/randalmurphal/agentflow/pkg/agentflow/flowctx"
	"github.com/randalmurphal/agentflow/pkg/agentflow/message"
	"github.com/randalmurphal/agentflow/pkg/agentflow/registry"
	"github.com/randalmurphal/agentflow/pkg/agentflow/schema"
	"github.com/randalmurphal/agentflow/pkg/agentflow/tools"
)

// Executor runs a Graph. It holds the registered agents and the tool
// orchestrator; each Start call is an independent execution, so one
// Executor may run many executions concurrently.
type Executor struct {
	graph  *Graph
	agents *registry.Registry[string, Agent]
	cfg    config
}

// NewExecutor creates an Executor for g.
func NewExecutor(g *Graph, opts ...Option) *Executor {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Executor{
		graph:  g,
		agents: registry.New[string, Agent](),
		cfg:    cfg,
	}
}

// Graph returns the executed graph.
func (e *Executor) Graph() *Graph { return e.graph }

// RegisterAgent binds name to a. Agent nodes refer to agents by name.
func (e *Executor) RegisterAgent(name string, a Agent) error {
	if a == nil {
		return fmt.Errorf("register agent %s: nil agent", name)
	}
	if err := e.agents.Add(name, a); err != nil {
		return fmt.Errorf("register agent %s: %w", name, err)
	}
	return nil
}

// Check reports agents and pipelines the graph references but the executor
// cannot resolve. Start runs it before dispatching anything.
func (e *Executor) Check() error {
	var errs []error
	for _, name := range e.graph.agentNames() {
		if !e.agents.Has(name) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownAgent, name))
		}
	}
	pipelines := e.graph.pipelineNames()
	if len(pipelines) > 0 && e.cfg.orchestrator == nil {
		errs = append(errs, ErrNoOrchestrator)
	} else {
		for _, p := range pipelines {
			if !e.cfg.orchestrator.Has(p) {
				errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownPipeline, p))
			}
		}
	}
	errs = append(errs, e.checkManifests()...)
	return errors.Join(errs...)
}

// checkManifests verifies that every described agent's tools and port
// schemas resolve.
func (e *Executor) checkManifests() []error {
	var errs []error
	for name, a := range e.agents.All() {
		d, ok := a.(Describer)
		if !ok {
			continue
		}
		m := d.Manifest()
		for _, tool := range m.Tools {
			if e.cfg.orchestrator == nil || !e.cfg.orchestrator.Has(tool) {
				errs = append(errs, fmt.Errorf("agent %s: %w: %s", name, tools.ErrUnknownTool, tool))
			}
		}
		for _, p := range slices.Concat(m.Inputs, m.Outputs) {
			if p.Schema == "" {
				continue
			}
			if e.cfg.schemas == nil || !e.cfg.schemas.Has(p.Schema) {
				errs = append(errs, fmt.Errorf("agent %s port %s: %w: %s", name, p.Name, schema.ErrNotRegistered, p.Schema))
			}
		}
	}
	return errs
}

// checkPayload validates msg when its Schema is registered.
func (e *Executor) checkPayload(msg *message.Message) error {
	reg := e.cfg.schemas
	if reg == nil || msg.Schema == "" || !reg.Has(msg.Schema) {
		return nil
	}
	return reg.Validate(msg.Schema, msg.Payload)
}

// Start executes the graph from its start node with initial as the
// incoming message. fc may be nil, in which case a fresh context is used.
//
// Branch failures do not abort the execution; they are collected in
// ExecutionResult.Errors. When no branch completed and at least one failed,
// Start returns the result together with a *FlowError.
//
// Example:
//
//	exec := agentflow.NewExecutor(g)
//	exec.RegisterAgent("planner", planner)
//	result, err := exec.Start(ctx, flowctx.New(), message.User("summarize the repo"))
func (e *Executor) Start(ctx context.Context, fc *flowctx.Context, initial *message.Message) (*ExecutionResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := e.Check(); err != nil {
		return nil, err
	}
	if fc == nil {
		fc = flowctx.New()
	}
	if initial == nil {
		initial = message.User("")
	}
	return newExecution(e, fc).run(ctx, initial)
}
