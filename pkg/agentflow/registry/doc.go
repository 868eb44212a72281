// Package registry provides a concurrency-safe, name-indexed registry.
//
// agentflow keeps agents, tools, pipelines and resource pools in registries:
//
//	agents := registry.New[string, agentflow.Agent]()
//	if err := agents.Add("planner", planner); err != nil {
//	    // registry.ErrDuplicate: a planner is already registered
//	}
//	a, ok := agents.Get("planner")
//
// Add refuses to replace an existing entry. GetOrCreate builds an entry on
// first use. Keys and All return entries in key order over a snapshot, so
// callers may mutate the registry while iterating.
package registry
