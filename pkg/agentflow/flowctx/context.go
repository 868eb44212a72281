package flowctx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/randalmurphal/agentflow/pkg/agentflow/message"
	"github.com/randalmurphal/agentflow/pkg/agentflow/store"
)

var (
	// ErrScopeClosed is returned when writing through a view whose frame was torn down.
	ErrScopeClosed = errors.New("flowctx: scope is no longer active")

	// ErrNoScope is returned when a view has no frame of the requested scope.
	ErrNoScope = errors.New("flowctx: no such scope in view")
)

// Scope identifies a layer of the variable store.
type Scope int

const (
	ScopeSession Scope = iota
	ScopeBranch
	ScopeNode
)

// String returns the scope name.
func (s Scope) String() string {
	switch s {
	case ScopeSession:
		return "session"
	case ScopeBranch:
		return "branch"
	case ScopeNode:
		return "node"
	default:
		return "unknown"
	}
}

// Context is the shared state of one execution.
type Context struct {
	sessionID string
	backend   store.Store

	mu      sync.RWMutex
	session map[string]any
	frames  map[uint64]*frame
	history []*message.Message

	// writeMu serializes session writes so the backend and the in-memory
	// copy apply them in the same order.
	writeMu sync.Mutex
	nextID  atomic.Uint64
}

type frame struct {
	kind Scope
	name string
	vars map[string]any
}

// Option configures a Context.
type Option func(*Context)

// WithStore persists Session-scope variables to s.
func WithStore(s store.Store) Option {
	return func(c *Context) { c.backend = s }
}

// WithSessionID sets the session namespace used with the store.
// The default is a random UUID.
func WithSessionID(id string) Option {
	return func(c *Context) { c.sessionID = id }
}

// WithVariables seeds Session-scope variables without writing them to the store.
func WithVariables(vars map[string]any) Option {
	return func(c *Context) { maps.Copy(c.session, vars) }
}

// New creates a Context. Nothing is loaded from the store; use Open to restore a session.
func New(opts ...Option) *Context {
	c := &Context{
		session: make(map[string]any),
		frames:  make(map[uint64]*frame),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sessionID == "" {
		c.sessionID = uuid.NewString()
	}
	return c
}

// Open creates a Context and restores Session-scope variables previously
// written to the configured store under the session ID.
func Open(ctx context.Context, opts ...Option) (*Context, error) {
	c := New(opts...)
	if c.backend == nil {
		return c, nil
	}
	stored, err := c.backend.All(ctx, c.sessionID)
	if err != nil {
		return nil, fmt.Errorf("restore session %s: %w", c.sessionID, err)
	}
	for key, raw := range stored {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("restore session %s: decode %q: %w", c.sessionID, key, err)
		}
		c.session[key] = v
	}
	return c, nil
}

// SessionID returns the session namespace.
func (c *Context) SessionID() string { return c.sessionID }

// AppendMessage appends m to the history. m must not be modified afterwards.
func (c *Context) AppendMessage(m *message.Message) {
	if m == nil {
		return
	}
	c.mu.Lock()
	c.history = append(c.history, m)
	c.mu.Unlock()
}

// History returns the messages appended so far, oldest first.
func (c *Context) History() []*message.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*message.Message(nil), c.history...)
}

// LastMessage returns the most recently appended message, or nil.
func (c *Context) LastMessage() *message.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.history) == 0 {
		return nil
	}
	return c.history[len(c.history)-1]
}

// Root returns a view with no frames: reads and writes hit the session.
func (c *Context) Root() *View {
	return &View{c: c}
}

// Session returns the session variables as a lookup source.
func (c *Context) Session() Vars {
	return sessionVars{c: c}
}

// SessionSnapshot copies the Session-scope variables.
func (c *Context) SessionSnapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.session)
}

// ActiveFrames returns the number of Branch and Node frames still open.
func (c *Context) ActiveFrames() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.frames)
}

func (c *Context) getSession(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.session[key]
	return v, ok
}

func (c *Context) setSession(ctx context.Context, key string, value any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.backend != nil {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode session variable %q: %w", key, err)
		}
		if err := c.backend.Set(ctx, c.sessionID, key, raw); err != nil {
			return fmt.Errorf("persist session variable %q: %w", key, err)
		}
	}

	c.mu.Lock()
	c.session[key] = value
	c.mu.Unlock()
	return nil
}

func (c *Context) deleteSession(ctx context.Context, key string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.backend != nil {
		if err := c.backend.Delete(ctx, c.sessionID, key); err != nil {
			return fmt.Errorf("delete session variable %q: %w", key, err)
		}
	}

	c.mu.Lock()
	delete(c.session, key)
	c.mu.Unlock()
	return nil
}

// Vars resolves variable names. *View and Context.Session satisfy it.
type Vars interface {
	Lookup(key string) (any, bool)
}

type sessionVars struct{ c *Context }

func (s sessionVars) Lookup(key string) (any, bool) { return s.c.getSession(key) }
