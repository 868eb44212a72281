package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/agentflow/pkg/agentflow"
	"github.com/randalmurphal/agentflow/pkg/agentflow/config"
	"github.com/randalmurphal/agentflow/pkg/agentflow/flowctx"
	"github.com/randalmurphal/agentflow/pkg/agentflow/message"
	"github.com/randalmurphal/agentflow/pkg/agentflow/resource"
	"github.com/randalmurphal/agentflow/pkg/agentflow/schema"
	"github.com/randalmurphal/agentflow/pkg/agentflow/store"
	"github.com/randalmurphal/agentflow/pkg/agentflow/tools"
)

const researchYAML = `
name: research
flow:
  start: plan
  nodes:
    - {id: plan, kind: agent, agent: planner}
    - id: route
      kind: decision
      policy: first_match
      no_match: fail
      branches:
        - {name: deep, when: "depth > 2", target: fan}
        - {name: flagged, when: {kind: state_equals, key: mode, value: quick}, target: answer}
        - {name: shallow, target: answer}
    - {id: fan, kind: agent, routes: [a, b]}
    - {id: a, kind: tool, pipeline: web, params: {limit: 3}}
    - {id: b, kind: agent}
    - {id: merge, kind: join, strategy: count, count: 1, inbound: [a, b]}
    - id: refine
      kind: loop
      entry: answer
      condition: "rounds < 2"
      max_iterations: 3
      exit: done
    - {id: answer, kind: agent}
    - {id: done, kind: terminal}
  transitions:
    - {from: plan, to: route}
    - {from: a, to: merge}
    - {from: b, to: merge}
    - {from: merge, to: refine}
    - {from: answer, to: refine}
runtime:
  max_hops: 200
  max_concurrency: 4
  timeout: 2m
  join_timeout: 5s
resources:
  search_api: {limit: 2, wait: 1s, timeout: 10s}
pipelines:
  - name: web
    strategy: sequential
    steps:
      - name: lookup
        pipeline:
          name: search
          strategy: fallback
          steps:
            - {tool: primary_search, input: {query: "${topic}"}, retries: 2, timeout: 500ms}
            - {tool: backup_search}
      - {tool: summarize, input: {text: "${previous}"}}
session:
  id: research-1
  variables: {depth: 3}
`

func TestFromYAML_FullWorkflow(t *testing.T) {
	wf, err := config.FromYAML([]byte(researchYAML))
	require.NoError(t, err)
	assert.Equal(t, "research", wf.Name)

	g, err := wf.Graph()
	require.NoError(t, err)
	assert.Equal(t, "plan", g.Start())
	assert.Len(t, g.NodeNames(), 9)

	n, ok := g.Node("route")
	require.True(t, ok)
	d := n.(*agentflow.DecisionNode)
	assert.Equal(t, agentflow.NoMatchFail, d.NoMatch)
	require.Len(t, d.Branches, 3)
	assert.Equal(t, agentflow.CondExpr, d.Branches[0].Condition.Kind)
	assert.Equal(t, "depth > 2", d.Branches[0].Condition.Expr)
	assert.Equal(t, agentflow.CondStateEquals, d.Branches[1].Condition.Kind)
	assert.True(t, d.Branches[2].Condition.IsAlways())

	n, _ = g.Node("merge")
	assert.Equal(t, agentflow.JoinCount, n.(*agentflow.JoinNode).Strategy)

	n, _ = g.Node("refine")
	loop := n.(*agentflow.LoopNode)
	assert.Equal(t, 3, loop.MaxIterations)
	assert.Equal(t, "rounds < 2", loop.Condition.Expr)

	n, _ = g.Node("a")
	assert.Equal(t, map[string]any{"limit": 3}, n.(*agentflow.ToolNode).Params)

	assert.Len(t, wf.ExecutorOptions(), 4)
}

func TestWorkflow_PipelinesAndResources(t *testing.T) {
	wf, err := config.FromYAML([]byte(researchYAML))
	require.NoError(t, err)

	pipelines, err := wf.ToolPipelines()
	require.NoError(t, err)
	require.Len(t, pipelines, 1)
	web := pipelines[0]
	assert.Equal(t, tools.Sequential, web.Strategy)
	require.Len(t, web.Steps, 2)
	nested := web.Steps[0].Pipeline
	require.NotNil(t, nested)
	assert.Equal(t, tools.Fallback, nested.Strategy)
	assert.Equal(t, 500*time.Millisecond, nested.Steps[0].Timeout)
	assert.Equal(t, 2, nested.Steps[0].Retries)
	assert.Equal(t, "${previous}", web.Steps[1].Input["text"])

	m := resource.NewManager()
	require.NoError(t, wf.ApplyResources(m))
	spec, ok := m.Spec("search_api")
	require.True(t, ok)
	assert.Equal(t, resource.Spec{Limit: 2, Wait: time.Second, Timeout: 10 * time.Second}, spec)

	o := tools.NewOrchestrator(tools.WithResources(m))
	require.NoError(t, wf.RegisterPipelines(o))
	assert.True(t, o.Has("web"))
}

func TestWorkflow_Schemas(t *testing.T) {
	wf, err := config.FromYAML([]byte(`
flow:
  start: done
  nodes:
    - {id: done, kind: terminal}
schemas:
  plan:
    type: object
    required: [steps]
    additional_properties: false
    properties:
      steps:
        type: array
        items: {type: string}
      budget: {type: number}
`))
	require.NoError(t, err)
	require.Contains(t, wf.Schemas, "plan")

	reg := schema.NewRegistry()
	require.NoError(t, wf.RegisterSchemas(reg))
	assert.NoError(t, reg.Validate("plan", map[string]any{"steps": []any{"search", "write"}, "budget": 3}))

	err = reg.Validate("plan", map[string]any{"steps": []any{"search", 7}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$.steps[1]")
	assert.Error(t, reg.Validate("plan", map[string]any{"steps": []any{}, "extra": true}))

	bad, err := config.FromYAML([]byte(`
flow: {start: done, nodes: [{id: done, kind: terminal}]}
schemas:
  odd: {type: tuple}
`))
	require.NoError(t, err)
	assert.Error(t, bad.RegisterSchemas(schema.NewRegistry()))
}

func TestFromJSON(t *testing.T) {
	doc := `{
	  "flow": {
	    "start": "loop",
	    "nodes": [
	      {"id": "loop", "kind": "loop", "entry": "work", "max_iterations": 4, "condition": {"kind": "state_absent", "key": "done"}},
	      {"id": "work", "kind": "agent"}
	    ],
	    "transitions": [{"from": "work", "to": "loop"}]
	  },
	  "runtime": {"max_hops": 50, "timeout": 1.5}
	}`
	wf, err := config.FromJSON([]byte(doc))
	require.NoError(t, err)

	g, err := wf.Graph()
	require.NoError(t, err)
	n, _ := g.Node("loop")
	assert.Equal(t, 4, n.(*agentflow.LoopNode).MaxIterations)
	assert.Len(t, wf.ExecutorOptions(), 2)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown top-level key", "flow: {start: a}\nwat: 1\n"},
		{"unknown node key", "flow:\n  start: a\n  nodes: [{id: a, kind: agent, colour: red}]\n"},
		{"bad duration", "flow: {start: a}\nresources: {gpu: {limit: 1, wait: soon}}\n"},
		{"invalid yaml", "flow: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestGraph_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{
			name: "unknown kind",
			doc:  "flow:\n  start: a\n  nodes: [{id: a, kind: router}]\n",
		},
		{
			name: "bad policy",
			doc:  "flow:\n  start: d\n  nodes: [{id: d, kind: decision, policy: some, branches: [{name: x, target: d}]}]\n",
		},
		{
			name: "bad condition kind",
			doc:  "flow:\n  start: a\n  nodes: [{id: a, kind: agent}]\n  transitions: [{from: a, to: a, when: {kind: sometimes}}]\n",
		},
		{
			name: "missing aggregator",
			doc:  "flow:\n  start: a\n  nodes: [{id: a, kind: agent}, {id: j, kind: join, strategy: custom, inbound: [a]}]\n  transitions: [{from: a, to: j}]\n",
			want: config.ErrUnknownAggregator,
		},
		{
			name: "graph validation",
			doc:  "flow:\n  start: a\n  nodes: [{id: a, kind: agent}]\n  transitions: [{from: a, to: ghost}]\n",
			want: agentflow.ErrNodeNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf, err := config.FromYAML([]byte(tt.doc))
			require.NoError(t, err)
			_, err = wf.Graph()
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

type firstArrival struct{}

func (firstArrival) Ready(arrivals []agentflow.Arrival) bool { return len(arrivals) > 0 }

func (firstArrival) Aggregate(join string, arrivals []agentflow.Arrival) (*message.Message, error) {
	return arrivals[0].Message, nil
}

func TestEncode_RoundTrip(t *testing.T) {
	g, err := agentflow.NewBuilder().
		AddNodes(
			&agentflow.AgentNode{ID: "start", Agent: "planner", Routes: []string{"x", "y"}},
			&agentflow.DecisionNode{ID: "d", Policy: agentflow.AllMatches, NoMatch: agentflow.NoMatchEnd, Branches: []agentflow.DecisionBranch{
				{Name: "x", Condition: agentflow.StateEquals("lang", "go"), Target: "x"},
				{Name: "y", Condition: agentflow.Expr("score >= 0.5"), Target: "y"},
			}},
			&agentflow.AgentNode{ID: "x"},
			&agentflow.ToolNode{ID: "y", Pipeline: "lint", Params: map[string]any{"strict": true}},
			&agentflow.JoinNode{ID: "j", Strategy: agentflow.JoinCustom, Inbound: []string{"x", "y"}, Aggregator: firstArrival{}},
			&agentflow.LoopNode{ID: "l", Entry: "x", Condition: agentflow.StateAbsent("ok"), MaxIterations: 2, Exit: "done", BreakTargets: []string{"done"}},
			&agentflow.TerminalNode{ID: "done"},
		).
		Connect("start", "d").
		ConnectIf("x", "j", agentflow.StateExists("ready")).
		Connect("y", "j").
		Connect("j", "l").
		SetStart("start").
		Build()
	require.NoError(t, err)

	first, err := config.Encode(g)
	require.NoError(t, err)

	wf, err := config.FromYAML(first)
	require.NoError(t, err)
	g2, err := wf.Graph(config.WithAggregator("j", firstArrival{}))
	require.NoError(t, err)

	second, err := config.Encode(g2)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.Equal(t, g.NodeNames(), g2.NodeNames())
	assert.Equal(t, g.Successors("start"), g2.Successors("start"))
}

func TestEncode_FuncCondition(t *testing.T) {
	g, err := agentflow.NewBuilder().
		AddNodes(&agentflow.AgentNode{ID: "a"}, &agentflow.TerminalNode{ID: "done"}).
		ConnectIf("a", "done", agentflow.When(func(flowctx.Vars) bool { return true })).
		SetStart("a").
		Build()
	require.NoError(t, err)

	_, err = config.Encode(g)
	assert.ErrorIs(t, err, config.ErrNotSerializable)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "flow.yml")
	require.NoError(t, os.WriteFile(path, []byte(researchYAML), 0o600))
	wf, err := config.FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "research", wf.Name)

	_, err = config.FromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	txt := filepath.Join(dir, "flow.txt")
	require.NoError(t, os.WriteFile(txt, []byte(researchYAML), 0o600))
	_, err = config.FromFile(txt)
	assert.ErrorContains(t, err, "unsupported")
}

func TestOpenStore(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		s, err := (&config.Workflow{}).OpenStore()
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("memory", func(t *testing.T) {
		s, err := (&config.Workflow{Store: &config.StoreDef{Driver: "memory"}}).OpenStore()
		require.NoError(t, err)
		assert.IsType(t, &store.MemoryStore{}, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sessions.db")
		s, err := (&config.Workflow{Store: &config.StoreDef{Driver: "sqlite", Path: path}}).OpenStore()
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		assert.IsType(t, &store.SQLiteStore{}, s)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		s, err := (&config.Workflow{Store: &config.StoreDef{Driver: "redis", Addr: mr.Addr(), Prefix: "test:"}}).OpenStore()
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		require.NoError(t, s.Set(context.Background(), "sess", "k", []byte(`1`)))
		assert.NotEmpty(t, mr.Keys())
	})

	t.Run("invalid", func(t *testing.T) {
		for _, sd := range []config.StoreDef{{Driver: "etcd"}, {Driver: "sqlite"}, {Driver: "redis"}} {
			_, err := (&config.Workflow{Store: &sd}).OpenStore()
			assert.Error(t, err, sd.Driver)
		}
	})
}

func TestOpenContext_RestoresSession(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.Set(ctx, "research-1", "rounds", []byte(`1`)))

	wf, err := config.FromYAML([]byte(researchYAML))
	require.NoError(t, err)

	fc, err := wf.OpenContext(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "research-1", fc.SessionID())
	snap := fc.SessionSnapshot()
	assert.Equal(t, 3, snap["depth"])
	assert.Equal(t, float64(1), snap["rounds"], "restored values are JSON decoded")
}
