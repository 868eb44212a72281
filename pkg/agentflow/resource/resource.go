// Package resource bounds concurrent access to named external resources
// such as model clients and connection pools.
//
// Each registered name owns a permit pool of Spec.Limit permits. Checkout
// takes one permit and returns a Handle; Release gives it back. A checkout
// either waits up to Spec.Wait for a permit or, with a zero Wait, fails fast.
// Failed checkouts return an *Error wrapping ErrResourceExhausted, which is
// classified as transient so callers may retry.
package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/agentflow/pkg/agentflow/registry"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrResourceExhausted is returned when no permit became available in time.
	ErrResourceExhausted = errors.New("resource: exhausted")

	// ErrUnknownResource is returned for names that were never registered.
	ErrUnknownResource = errors.New("resource: not registered")

	// ErrInvalidSpec is returned by Register for a non-positive limit.
	ErrInvalidSpec = errors.New("resource: invalid spec")
)

// Spec describes a resource's quota.
type Spec struct {
	// Limit is the number of concurrent handles. Must be positive.
	Limit int

	// Wait bounds how long Checkout blocks for a permit. Zero fails fast.
	Wait time.Duration

	// Timeout is a default call timeout for work done under this resource.
	// The tool orchestrator applies it to steps that declare none.
	Timeout time.Duration
}

// Error reports a failed checkout.
type Error struct {
	Name   string
	Waited time.Duration
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("checkout %s (waited %s): %v", e.Name, e.Waited, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Temporary reports whether a retry could succeed.
func (e *Error) Temporary() bool {
	return errors.Is(e.Err, ErrResourceExhausted)
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Limit   int
	InUse   int
	Waiting int
}

type pool struct {
	name    string
	spec    Spec
	sem     *semaphore.Weighted
	inUse   atomic.Int64
	waiting atomic.Int64
}

// Handle is a checked-out permit. Release it exactly once; extra calls are no-ops.
type Handle struct {
	pool     *pool
	acquired time.Time
	once     sync.Once
}

// Name returns the resource name.
func (h *Handle) Name() string { return h.pool.name }

// Held returns how long the handle has been checked out.
func (h *Handle) Held() time.Duration { return time.Since(h.acquired) }

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for checkout diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithWaitObserver is called after every checkout attempt with the time
// spent waiting and the outcome.
func WithWaitObserver(fn func(ctx context.Context, name string, waited time.Duration, err error)) Option {
	return func(m *Manager) { m.observe = fn }
}

// Manager owns the permit pools.
type Manager struct {
	pools   *registry.Registry[string, *pool]
	logger  *slog.Logger
	observe func(ctx context.Context, name string, waited time.Duration, err error)
}

// NewManager creates an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		pools:  registry.New[string, *pool](),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register creates the pool for name. Registering a name twice fails.
func (m *Manager) Register(name string, spec Spec) error {
	if spec.Limit <= 0 {
		return fmt.Errorf("%w: %s limit %d", ErrInvalidSpec, name, spec.Limit)
	}
	p := &pool{name: name, spec: spec, sem: semaphore.NewWeighted(int64(spec.Limit))}
	if err := m.pools.Add(name, p); err != nil {
		return fmt.Errorf("register resource: %w", err)
	}
	return nil
}

// Has reports whether name is registered.
func (m *Manager) Has(name string) bool { return m.pools.Has(name) }

// Spec returns the registered spec for name.
func (m *Manager) Spec(name string) (Spec, bool) {
	p, ok := m.pools.Get(name)
	if !ok {
		return Spec{}, false
	}
	return p.spec, true
}

// Checkout takes a permit for name.
func (m *Manager) Checkout(ctx context.Context, name string) (*Handle, error) {
	p, ok := m.pools.Get(name)
	if !ok {
		return nil, &Error{Name: name, Err: ErrUnknownResource}
	}

	start := time.Now()
	err := p.acquire(ctx)
	waited := time.Since(start)
	if m.observe != nil {
		m.observe(ctx, name, waited, err)
	}
	if err != nil {
		m.logger.Debug("resource checkout failed",
			slog.String("resource", name),
			slog.Duration("waited", waited),
			slog.String("error", err.Error()),
		)
		return nil, &Error{Name: name, Waited: waited, Err: err}
	}

	p.inUse.Add(1)
	return &Handle{pool: p, acquired: time.Now()}, nil
}

func (p *pool) acquire(ctx context.Context) error {
	if p.spec.Wait <= 0 {
		if !p.sem.TryAcquire(1) {
			return ErrResourceExhausted
		}
		return nil
	}

	p.waiting.Add(1)
	defer p.waiting.Add(-1)

	waitCtx, cancel := context.WithTimeout(ctx, p.spec.Wait)
	defer cancel()
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrResourceExhausted
	}
	return nil
}

// Release returns the handle's permit.
func (m *Manager) Release(h *Handle) {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.pool.inUse.Add(-1)
		h.pool.sem.Release(1)
	})
}

// Stats reports usage of name.
func (m *Manager) Stats(name string) (Stats, bool) {
	p, ok := m.pools.Get(name)
	if !ok {
		return Stats{}, false
	}
	return Stats{
		Limit:   p.spec.Limit,
		InUse:   int(p.inUse.Load()),
		Waiting: int(p.waiting.Load()),
	}, true
}

// Names returns the registered resource names in order.
func (m *Manager) Names() []string { return m.pools.Keys() }
