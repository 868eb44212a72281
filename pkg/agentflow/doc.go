/*
Package agentflow executes multi-agent workflows described as directed graphs.

# Overview

A flow graph is a set of typed nodes connected by transitions. Messages move
along the graph; each node decides where they go next:

  - AgentNode delegates to a registered Agent, which returns an Action
  - DecisionNode routes by evaluating conditions over session variables
  - JoinNode waits for concurrent branches and releases one aggregate
  - LoopNode re-enters a region of the graph while a condition holds
  - ToolNode runs a tool pipeline through a tools.Orchestrator
  - TerminalNode completes the branch

Graphs are validated once with Build and are immutable afterwards; any
number of executions may share one *Graph.

# Basic Usage

	g, err := agentflow.NewBuilder().
	    AddNode(&agentflow.AgentNode{ID: "writer"}).
	    AddNode(&agentflow.TerminalNode{ID: "done"}).
	    Connect("writer", "done").
	    SetStart("writer").
	    Build()
	if err != nil {
	    log.Fatal(err)
	}

	exec := agentflow.NewExecutor(g)
	exec.RegisterAgent("writer", agentflow.AgentFunc(
	    func(ctx agentflow.Context, msg *message.Message) (agentflow.Action, error) {
	        reply := message.New(message.RoleAssistant, ctx.NodeID(), "draft: "+msg.Content)
	        return agentflow.Continue{Message: reply}, nil
	    }))

	result, err := exec.Start(ctx, flowctx.New(), message.User("write a haiku"))
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Println(result.Terminals["done"].Content)

# Branches

Decision nodes with the AllMatches policy and agents returning a Branch
action spawn concurrent branches. Each branch gets its own scope frame in the
flow context: writes to ScopeBranch are visible to the branch and its
children only, while ScopeSession is shared by every branch. Branch ids are
hierarchical ("0", "0.1", "0.1.2").

A failing branch never aborts its siblings. Failures are collected in
ExecutionResult.Errors; Start only returns an error (*FlowError) when no
branch completed at all.

# Joins

A JoinNode fires once its strategy is satisfied (all inbound nodes, any, a
count, or a custom JoinAggregator). The aggregate continues in the parent of
the arriving branch. Arrivals after the join fired are dropped, and a join
that never fires is reported as ErrJoinIncomplete when the execution drains.

# Loops

A LoopNode counts entries per execution. While its condition holds it
enqueues Entry; once the condition fails it routes to Exit. Reaching
MaxIterations with the condition still true fails the branch with a
*LoopBoundError.

# Observability

	exec := agentflow.NewExecutor(g,
	    agentflow.WithLogger(logger),
	    agentflow.WithMetrics(observability.NewMetricsRecorder()),
	    agentflow.WithSpanManager(observability.NewSpanManager()))

Logs carry execution_id, node_id and branch_id. Spans: agentflow.execution >
agentflow.node.{id} > agentflow.tool.{name}.

# Thread Safety

  - Builder is NOT safe for concurrent use
  - Graph IS safe for concurrent use (immutable)
  - Executor IS safe for concurrent use once agents are registered
  - flowctx.Context IS safe for concurrent use

# Subpackages

  - message: the message envelope
  - flowctx: history and scoped variables
  - tools: tools, pipelines and the orchestrator
  - resource: bounded resource pools
  - store: session persistence (memory, SQLite, Redis)
  - config: workflow files
  - observability: logging, metrics and tracing helpers
*/
package agentflow
