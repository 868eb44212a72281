package flowctx

import (
	"context"
	"fmt"
	"maps"
)

// View is a chain of scope frames over a Context. Views are immutable;
// Push returns a new view and leaves the receiver untouched.
type View struct {
	c      *Context
	frames []uint64 // outermost first
	kinds  []Scope
}

// Context returns the underlying Context.
func (v *View) Context() *Context { return v.c }

// Push opens a new innermost frame of the given scope and returns the view
// that owns it. kind must be ScopeBranch or ScopeNode.
func (v *View) Push(kind Scope, name string) *View {
	if kind == ScopeSession {
		panic("flowctx: cannot push a session scope")
	}
	id := v.c.nextID.Add(1)

	v.c.mu.Lock()
	v.c.frames[id] = &frame{kind: kind, name: name, vars: make(map[string]any)}
	v.c.mu.Unlock()

	child := &View{
		c:      v.c,
		frames: make([]uint64, len(v.frames), len(v.frames)+1),
		kinds:  make([]Scope, len(v.kinds), len(v.kinds)+1),
	}
	copy(child.frames, v.frames)
	copy(child.kinds, v.kinds)
	child.frames = append(child.frames, id)
	child.kinds = append(child.kinds, kind)
	return child
}

// Close tears down the innermost frame. Closing twice, or closing a root
// view, is a no-op.
func (v *View) Close() {
	if len(v.frames) == 0 {
		return
	}
	v.c.mu.Lock()
	delete(v.c.frames, v.frames[len(v.frames)-1])
	v.c.mu.Unlock()
}

// Scope returns the kind of the innermost frame.
func (v *View) Scope() Scope {
	if len(v.kinds) == 0 {
		return ScopeSession
	}
	return v.kinds[len(v.kinds)-1]
}

// Name returns the name the innermost frame was pushed with.
func (v *View) Name() string {
	if len(v.frames) == 0 {
		return ""
	}
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	if f, ok := v.c.frames[v.frames[len(v.frames)-1]]; ok {
		return f.name
	}
	return ""
}

// Get looks key up from the innermost frame outward, ending at the session.
func (v *View) Get(key string) (any, bool) {
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()

	for i := len(v.frames) - 1; i >= 0; i-- {
		f, ok := v.c.frames[v.frames[i]]
		if !ok {
			continue
		}
		if val, ok := f.vars[key]; ok {
			return val, true
		}
	}
	val, ok := v.c.session[key]
	return val, ok
}

// Lookup is Get. It lets a view serve as an expression or template source.
func (v *View) Lookup(key string) (any, bool) { return v.Get(key) }

// GetScope reads key from the nearest frame of the given scope only.
func (v *View) GetScope(scope Scope, key string) (any, bool) {
	if scope == ScopeSession {
		return v.c.getSession(key)
	}
	idx := v.nearest(scope)
	if idx < 0 {
		return nil, false
	}
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	f, ok := v.c.frames[v.frames[idx]]
	if !ok {
		return nil, false
	}
	val, ok := f.vars[key]
	return val, ok
}

// Set writes key to the innermost frame, or to the session for a root view.
func (v *View) Set(ctx context.Context, key string, value any) error {
	if len(v.frames) == 0 {
		return v.c.setSession(ctx, key, value)
	}
	return v.setFrame(len(v.frames)-1, key, value)
}

// SetScope writes key to the nearest frame of the given scope.
func (v *View) SetScope(ctx context.Context, scope Scope, key string, value any) error {
	if scope == ScopeSession {
		return v.c.setSession(ctx, key, value)
	}
	idx := v.nearest(scope)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNoScope, scope)
	}
	return v.setFrame(idx, key, value)
}

// Delete removes key from the innermost frame, or from the session for a root view.
func (v *View) Delete(ctx context.Context, key string) error {
	if len(v.frames) == 0 {
		return v.c.deleteSession(ctx, key)
	}
	v.c.mu.Lock()
	defer v.c.mu.Unlock()
	f, ok := v.c.frames[v.frames[len(v.frames)-1]]
	if !ok {
		return ErrScopeClosed
	}
	delete(f.vars, key)
	return nil
}

// Snapshot merges every visible variable, inner scopes winning.
func (v *View) Snapshot() map[string]any {
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()

	out := maps.Clone(v.c.session)
	if out == nil {
		out = make(map[string]any)
	}
	for _, id := range v.frames {
		if f, ok := v.c.frames[id]; ok {
			maps.Copy(out, f.vars)
		}
	}
	return out
}

func (v *View) setFrame(idx int, key string, value any) error {
	v.c.mu.Lock()
	defer v.c.mu.Unlock()
	f, ok := v.c.frames[v.frames[idx]]
	if !ok {
		return fmt.Errorf("%w: %s %q", ErrScopeClosed, v.kinds[idx], key)
	}
	f.vars[key] = value
	return nil
}

func (v *View) nearest(scope Scope) int {
	for i := len(v.kinds) - 1; i >= 0; i-- {
		if v.kinds[i] == scope {
			return i
		}
	}
	return -1
}
