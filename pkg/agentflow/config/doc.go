/*
Package config loads workflow files into agentflow graphs, tool pipelines,
resource pools and executor options.

# File Format

Workflows are YAML or JSON documents:

	name: research
	flow:
	  start: plan
	  nodes:
	    - {id: plan, kind: agent, agent: planner}
	    - id: route
	      kind: decision
	      policy: first_match
	      branches:
	        - {name: deep, when: "depth > 2", target: search}
	        - {name: shallow, target: answer}
	    - {id: search, kind: tool, pipeline: web}
	    - {id: answer, kind: agent}
	    - {id: done, kind: terminal}
	  transitions:
	    - {from: plan, to: route}
	    - {from: search, to: answer}
	    - {from: answer, to: done}
	runtime:
	  max_concurrency: 4
	  timeout: 2m
	resources:
	  search_api: {limit: 2, wait: 1s, timeout: 10s}
	pipelines:
	  - name: web
	    strategy: fallback
	    steps:
	      - {tool: primary_search, input: {query: "${topic}"}, retries: 2}
	      - {tool: backup_search, input: {query: "${topic}"}}
	store:
	  driver: sqlite
	  path: ./sessions.db
	session:
	  id: research-1
	  variables: {depth: 3}

A condition is either a bare expression string or a map with a kind
(always, state_equals, state_not_equals, state_exists, state_absent, expr).
Durations accept Go duration strings. Unknown keys are rejected.

# Usage

	wf, err := config.FromFile("workflow.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	g, err := wf.Graph()
	if err != nil {
	    log.Fatal(err)
	}

	resources := resource.NewManager()
	if err := wf.ApplyResources(resources); err != nil {
	    log.Fatal(err)
	}
	orch := tools.NewOrchestrator(tools.WithResources(resources))
	// register tools, then:
	if err := wf.RegisterPipelines(orch); err != nil {
	    log.Fatal(err)
	}

	exec := agentflow.NewExecutor(g, append(wf.ExecutorOptions(), agentflow.WithOrchestrator(orch))...)

Encode writes a graph back to YAML; graphs using Go predicate conditions
cannot be encoded.
*/
package config
