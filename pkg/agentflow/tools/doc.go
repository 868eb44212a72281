// Package tools runs tool calls for agentflow executions.
//
// A Tool is an external capability described by a Manifest. Tools are
// composed into a Pipeline, a strategy tree whose Steps run Sequential,
// Parallel or Fallback. The Orchestrator interprets the tree:
//
//	orch := tools.NewOrchestrator(tools.WithResources(mgr))
//	orch.RegisterTool(searchTool)
//	orch.RegisterPipeline(tools.Pipeline{
//	    Name:     "research",
//	    Strategy: tools.Fallback,
//	    Steps: []tools.Step{
//	        {Name: "primary", Tool: "search", Timeout: 5 * time.Second, Retries: 2},
//	        {Name: "cache", Tool: "cache_lookup"},
//	    },
//	})
//	res, err := orch.Execute(ctx, "research", map[string]any{"query": "go"}, view)
//
// Each step's input merges three layers, highest priority first: call-time
// params, the step's declared Input, then the tool's manifest Defaults.
// String values are then expanded with ${name} against the calling context
// view; ${previous} holds the previous sequential step's content.
//
// Steps are retried with exponential backoff only for transient failures
// (timeouts, resource exhaustion, errors reporting Temporary). Validation
// failures are never retried.
package tools
