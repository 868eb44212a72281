package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/agentflow/pkg/agentflow"
	"github.com/randalmurphal/agentflow/pkg/agentflow/flowctx"
	"github.com/randalmurphal/agentflow/pkg/agentflow/resource"
	"github.com/randalmurphal/agentflow/pkg/agentflow/schema"
	"github.com/randalmurphal/agentflow/pkg/agentflow/store"
	"github.com/randalmurphal/agentflow/pkg/agentflow/tools"
)

// Workflow is the decoded form of a workflow file.
type Workflow struct {
	Name        string                    `mapstructure:"name" yaml:"name,omitempty"`
	Description string                    `mapstructure:"description" yaml:"description,omitempty"`
	Flow        FlowDef                   `mapstructure:"flow" yaml:"flow"`
	Runtime     map[string]any            `mapstructure:"runtime" yaml:"runtime,omitempty"`
	Resources   map[string]ResourceDef    `mapstructure:"resources" yaml:"resources,omitempty"`
	Pipelines   []PipelineDef             `mapstructure:"pipelines" yaml:"pipelines,omitempty"`
	Schemas     map[string]*schema.Schema `mapstructure:"schemas" yaml:"schemas,omitempty"`
	Store       *StoreDef                 `mapstructure:"store" yaml:"store,omitempty"`
	Session     SessionDef                `mapstructure:"session" yaml:"session,omitempty"`
}

// FlowDef describes the graph.
type FlowDef struct {
	Start       string          `mapstructure:"start" yaml:"start"`
	Nodes       []NodeDef       `mapstructure:"nodes" yaml:"nodes"`
	Transitions []TransitionDef `mapstructure:"transitions" yaml:"transitions,omitempty"`
}

// NodeDef is one node. Kind selects which of the remaining fields apply.
type NodeDef struct {
	ID   string `mapstructure:"id" yaml:"id"`
	Kind string `mapstructure:"kind" yaml:"kind"`

	// agent
	Agent  string   `mapstructure:"agent" yaml:"agent,omitempty"`
	Routes []string `mapstructure:"routes" yaml:"routes,omitempty"`

	// decision
	Policy   string      `mapstructure:"policy" yaml:"policy,omitempty"`
	NoMatch  string      `mapstructure:"no_match" yaml:"no_match,omitempty"`
	Branches []BranchDef `mapstructure:"branches" yaml:"branches,omitempty"`

	// join
	Strategy   string   `mapstructure:"strategy" yaml:"strategy,omitempty"`
	Count      int      `mapstructure:"count" yaml:"count,omitempty"`
	Inbound    []string `mapstructure:"inbound" yaml:"inbound,omitempty"`
	Aggregator string   `mapstructure:"aggregator" yaml:"aggregator,omitempty"`

	// loop
	Entry         string        `mapstructure:"entry" yaml:"entry,omitempty"`
	Condition     *ConditionDef `mapstructure:"condition" yaml:"condition,omitempty"`
	MaxIterations int           `mapstructure:"max_iterations" yaml:"max_iterations,omitempty"`
	Exit          string        `mapstructure:"exit" yaml:"exit,omitempty"`
	BreakTargets  []string      `mapstructure:"break_targets" yaml:"break_targets,omitempty"`

	// tool
	Pipeline string         `mapstructure:"pipeline" yaml:"pipeline,omitempty"`
	Params   map[string]any `mapstructure:"params" yaml:"params,omitempty"`
}

// BranchDef is a decision branch.
type BranchDef struct {
	Name   string        `mapstructure:"name" yaml:"name"`
	When   *ConditionDef `mapstructure:"when" yaml:"when,omitempty"`
	Target string        `mapstructure:"target" yaml:"target"`
}

// TransitionDef is a plain edge.
type TransitionDef struct {
	From string        `mapstructure:"from" yaml:"from"`
	To   string        `mapstructure:"to" yaml:"to"`
	When *ConditionDef `mapstructure:"when" yaml:"when,omitempty"`
}

// ConditionDef is a serialized agentflow.Condition. A bare string in a
// workflow file is shorthand for {kind: expr, expr: <string>}.
type ConditionDef struct {
	Kind  string `mapstructure:"kind" yaml:"kind"`
	Key   string `mapstructure:"key" yaml:"key,omitempty"`
	Value any    `mapstructure:"value" yaml:"value,omitempty"`
	Expr  string `mapstructure:"expr" yaml:"expr,omitempty"`
}

// PipelineDef is a tool pipeline.
type PipelineDef struct {
	Name     string    `mapstructure:"name" yaml:"name"`
	Strategy string    `mapstructure:"strategy" yaml:"strategy,omitempty"`
	Steps    []StepDef `mapstructure:"steps" yaml:"steps"`
}

// StepDef is one pipeline step: either a tool call or a nested pipeline.
type StepDef struct {
	Name     string         `mapstructure:"name" yaml:"name,omitempty"`
	Tool     string         `mapstructure:"tool" yaml:"tool,omitempty"`
	Input    map[string]any `mapstructure:"input" yaml:"input,omitempty"`
	Timeout  time.Duration  `mapstructure:"timeout" yaml:"timeout,omitempty"`
	Retries  int            `mapstructure:"retries" yaml:"retries,omitempty"`
	Pipeline *PipelineDef   `mapstructure:"pipeline" yaml:"pipeline,omitempty"`
}

// ResourceDef bounds a resource pool.
type ResourceDef struct {
	Limit   int           `mapstructure:"limit" yaml:"limit"`
	Wait    time.Duration `mapstructure:"wait" yaml:"wait,omitempty"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

// StoreDef selects the session persistence backend.
type StoreDef struct {
	// Driver is one of memory, sqlite or redis.
	Driver   string        `mapstructure:"driver" yaml:"driver"`
	Path     string        `mapstructure:"path" yaml:"path,omitempty"`
	Addr     string        `mapstructure:"addr" yaml:"addr,omitempty"`
	Password string        `mapstructure:"password" yaml:"password,omitempty"`
	DB       int           `mapstructure:"db" yaml:"db,omitempty"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix,omitempty"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl,omitempty"`
}

// SessionDef seeds the session scope.
type SessionDef struct {
	ID        string         `mapstructure:"id" yaml:"id,omitempty"`
	Variables map[string]any `mapstructure:"variables" yaml:"variables,omitempty"`
}

// ErrUnknownAggregator is returned when a custom join names an aggregator
// that was not supplied with WithAggregator.
var ErrUnknownAggregator = errors.New("join aggregator not provided")

// GraphOption configures Workflow.Graph.
type GraphOption func(*graphOptions)

type graphOptions struct {
	aggregators map[string]agentflow.JoinAggregator
}

// WithAggregator supplies the aggregator for custom joins naming name. A
// custom join without an aggregator field is looked up by its node id.
func WithAggregator(name string, a agentflow.JoinAggregator) GraphOption {
	return func(o *graphOptions) { o.aggregators[name] = a }
}

// Graph converts the flow section and builds it.
func (w *Workflow) Graph(opts ...GraphOption) (*agentflow.Graph, error) {
	o := graphOptions{aggregators: make(map[string]agentflow.JoinAggregator)}
	for _, opt := range opts {
		opt(&o)
	}

	var errs []error
	b := agentflow.NewBuilder().SetStart(w.Flow.Start)
	for _, nd := range w.Flow.Nodes {
		n, err := nd.node(o)
		if err != nil {
			errs = append(errs, fmt.Errorf("node %q: %w", nd.ID, err))
			continue
		}
		b.AddNode(n)
	}
	for _, td := range w.Flow.Transitions {
		cond, err := td.When.condition()
		if err != nil {
			errs = append(errs, fmt.Errorf("transition %s -> %s: %w", td.From, td.To, err))
			continue
		}
		b.ConnectIf(td.From, td.To, cond)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return b.Build()
}

func (nd NodeDef) node(o graphOptions) (agentflow.Node, error) {
	kind, err := agentflow.ParseNodeKind(nd.Kind)
	if err != nil {
		return nil, err
	}
	switch kind {
	case agentflow.KindAgent:
		return &agentflow.AgentNode{ID: nd.ID, Agent: nd.Agent, Routes: nd.Routes}, nil

	case agentflow.KindDecision:
		policy, err := parsePolicy(nd.Policy)
		if err != nil {
			return nil, err
		}
		noMatch, err := parseNoMatch(nd.NoMatch)
		if err != nil {
			return nil, err
		}
		d := &agentflow.DecisionNode{ID: nd.ID, Policy: policy, NoMatch: noMatch}
		for _, bd := range nd.Branches {
			cond, err := bd.When.condition()
			if err != nil {
				return nil, fmt.Errorf("branch %q: %w", bd.Name, err)
			}
			d.Branches = append(d.Branches, agentflow.DecisionBranch{Name: bd.Name, Condition: cond, Target: bd.Target})
		}
		return d, nil

	case agentflow.KindJoin:
		strategy, err := parseStrategy(nd.Strategy)
		if err != nil {
			return nil, err
		}
		j := &agentflow.JoinNode{ID: nd.ID, Strategy: strategy, Count: nd.Count, Inbound: nd.Inbound}
		if strategy == agentflow.JoinCustom {
			name := nd.Aggregator
			if name == "" {
				name = nd.ID
			}
			agg, ok := o.aggregators[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownAggregator, name)
			}
			j.Aggregator = agg
		}
		return j, nil

	case agentflow.KindLoop:
		cond, err := nd.Condition.condition()
		if err != nil {
			return nil, err
		}
		return &agentflow.LoopNode{
			ID:            nd.ID,
			Entry:         nd.Entry,
			Condition:     cond,
			MaxIterations: nd.MaxIterations,
			Exit:          nd.Exit,
			BreakTargets:  nd.BreakTargets,
		}, nil

	case agentflow.KindTool:
		return &agentflow.ToolNode{ID: nd.ID, Pipeline: nd.Pipeline, Params: nd.Params}, nil

	default:
		return &agentflow.TerminalNode{ID: nd.ID}, nil
	}
}

func (cd *ConditionDef) condition() (agentflow.Condition, error) {
	if cd == nil {
		return agentflow.Always(), nil
	}
	kind := agentflow.ConditionKind(cd.Kind)
	switch kind {
	case "", agentflow.CondAlways, agentflow.CondStateEquals, agentflow.CondStateNotEquals,
		agentflow.CondStateExists, agentflow.CondStateAbsent, agentflow.CondExpr:
		return agentflow.Condition{Kind: kind, Key: cd.Key, Value: cd.Value, Expr: cd.Expr}, nil
	}
	return agentflow.Condition{}, fmt.Errorf("unsupported condition kind %q", cd.Kind)
}

func parsePolicy(s string) (agentflow.DecisionPolicy, error) {
	switch s {
	case "", "first_match":
		return agentflow.FirstMatch, nil
	case "all_matches":
		return agentflow.AllMatches, nil
	}
	return 0, fmt.Errorf("unknown decision policy %q", s)
}

func parseNoMatch(s string) (agentflow.NoMatchPolicy, error) {
	switch s {
	case "", "default":
		return agentflow.NoMatchDefault, nil
	case "end":
		return agentflow.NoMatchEnd, nil
	case "fail":
		return agentflow.NoMatchFail, nil
	}
	return 0, fmt.Errorf("unknown no_match policy %q", s)
}

func parseStrategy(s string) (agentflow.JoinStrategy, error) {
	switch s {
	case "", "all":
		return agentflow.JoinAll, nil
	case "any":
		return agentflow.JoinAny, nil
	case "count":
		return agentflow.JoinCount, nil
	case "custom":
		return agentflow.JoinCustom, nil
	}
	return 0, fmt.Errorf("unknown join strategy %q", s)
}

// ToolPipelines converts the pipelines section.
func (w *Workflow) ToolPipelines() ([]tools.Pipeline, error) {
	out := make([]tools.Pipeline, 0, len(w.Pipelines))
	var errs []error
	for _, pd := range w.Pipelines {
		p, err := pd.pipeline()
		if err == nil {
			err = p.Validate()
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, *p)
	}
	return out, errors.Join(errs...)
}

func (pd PipelineDef) pipeline() (*tools.Pipeline, error) {
	strategy, err := tools.ParseStrategy(pd.Strategy)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", pd.Name, err)
	}
	p := &tools.Pipeline{Name: pd.Name, Strategy: strategy}
	for _, sd := range pd.Steps {
		step := tools.Step{Name: sd.Name, Tool: sd.Tool, Input: sd.Input, Timeout: sd.Timeout, Retries: sd.Retries}
		if sd.Pipeline != nil {
			nested, err := sd.Pipeline.pipeline()
			if err != nil {
				return nil, fmt.Errorf("pipeline %q: %w", pd.Name, err)
			}
			step.Pipeline = nested
		}
		p.Steps = append(p.Steps, step)
	}
	return p, nil
}

// ApplyResources registers every resource pool with m.
func (w *Workflow) ApplyResources(m *resource.Manager) error {
	var errs []error
	for name, rd := range w.Resources {
		if err := m.Register(name, resource.Spec{Limit: rd.Limit, Wait: rd.Wait, Timeout: rd.Timeout}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RegisterSchemas adds every payload schema to reg.
func (w *Workflow) RegisterSchemas(reg *schema.Registry) error {
	var errs []error
	for name, s := range w.Schemas {
		if err := reg.Register(name, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RegisterPipelines adds every pipeline to o.
func (w *Workflow) RegisterPipelines(o *tools.Orchestrator) error {
	pipelines, err := w.ToolPipelines()
	if err != nil {
		return err
	}
	for _, p := range pipelines {
		if err := o.RegisterPipeline(p); err != nil {
			return err
		}
	}
	return nil
}

// ExecutorOptions translates the runtime section:
//
//	runtime:
//	  max_hops: 500
//	  max_concurrency: 4
//	  timeout: 2m
//	  join_timeout: 30s
func (w *Workflow) ExecutorOptions() []agentflow.Option {
	rt := NewValues(w.Runtime)
	var opts []agentflow.Option
	if n := rt.Int("max_hops", 0); n > 0 {
		opts = append(opts, agentflow.WithMaxHops(n))
	}
	if n := rt.Int("max_concurrency", 0); n > 0 {
		opts = append(opts, agentflow.WithMaxConcurrency(n))
	}
	if d := rt.Duration("timeout", 0); d > 0 {
		opts = append(opts, agentflow.WithTimeout(d))
	}
	if d := rt.Duration("join_timeout", 0); d > 0 {
		opts = append(opts, agentflow.WithJoinTimeout(d))
	}
	return opts
}

// OpenStore opens the configured session backend. Without a store section
// it returns nil and no error.
func (w *Workflow) OpenStore() (store.Store, error) {
	if w.Store == nil {
		return nil, nil
	}
	sd := w.Store
	switch sd.Driver {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "sqlite":
		if sd.Path == "" {
			return nil, errors.New("sqlite store needs a path")
		}
		return store.NewSQLiteStore(sd.Path)
	case "redis":
		if sd.Addr == "" {
			return nil, errors.New("redis store needs an addr")
		}
		var opts []store.RedisOption
		if sd.Prefix != "" {
			opts = append(opts, store.WithPrefix(sd.Prefix))
		}
		if sd.TTL > 0 {
			opts = append(opts, store.WithTTL(sd.TTL))
		}
		return store.NewRedisStore(sd.Addr, sd.Password, sd.DB, opts...), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", sd.Driver)
}

// OpenContext creates the flow context for one execution, restoring the
// session from s when it is not nil.
func (w *Workflow) OpenContext(ctx context.Context, s store.Store) (*flowctx.Context, error) {
	opts := []flowctx.Option{flowctx.WithVariables(w.Session.Variables)}
	if w.Session.ID != "" {
		opts = append(opts, flowctx.WithSessionID(w.Session.ID))
	}
	if s != nil {
		opts = append(opts, flowctx.WithStore(s))
	}
	return flowctx.Open(ctx, opts...)
}
