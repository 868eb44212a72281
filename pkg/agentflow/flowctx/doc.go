// Package flowctx holds the shared state of one flow execution: the
// append-only message history and the scoped variable store.
//
// Variables live in three kinds of scope:
//
//	Session  shared by every branch, optionally persisted through a store.Store
//	Branch   one frame per branch; child branches nest under their parent
//	Node     one frame per node visit, innermost
//
// A View is a chain of frames. Reads fall back from the innermost frame
// outward to the session; writes go to the innermost frame unless a scope is
// named explicitly. Sibling views never see each other's frames. Closing a
// view tears down its innermost frame, which makes those keys unreachable
// without touching outer scopes.
//
// All state is guarded by the Context, so views may be used from any
// goroutine.
package flowctx
