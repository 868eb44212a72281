package resource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	fgerrors "github.com/randalmurphal/agentflow/pkg/agentflow/errors"
	"github.com/randalmurphal/agentflow/pkg/agentflow/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register("llm", Spec{Limit: 2}))
	assert.True(t, m.Has("llm"))

	err := m.Register("llm", Spec{Limit: 1})
	assert.ErrorIs(t, err, registry.ErrDuplicate)

	err = m.Register("bad", Spec{Limit: 0})
	assert.ErrorIs(t, err, ErrInvalidSpec)

	spec, ok := m.Spec("llm")
	require.True(t, ok)
	assert.Equal(t, 2, spec.Limit)
	assert.Equal(t, []string{"llm"}, m.Names())
}

func TestCheckoutUnknown(t *testing.T) {
	_, err := NewManager().Checkout(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownResource)

	var resErr *Error
	require.True(t, errors.As(err, &resErr))
	assert.False(t, resErr.Temporary())
}

func TestCheckoutFailFast(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	require.NoError(t, m.Register("db", Spec{Limit: 1}))

	h, err := m.Checkout(ctx, "db")
	require.NoError(t, err)
	assert.Equal(t, "db", h.Name())

	_, err = m.Checkout(ctx, "db")
	assert.ErrorIs(t, err, ErrResourceExhausted)
	assert.True(t, fgerrors.IsRetryable(err), "exhaustion is transient")

	m.Release(h)
	h2, err := m.Checkout(ctx, "db")
	require.NoError(t, err)
	m.Release(h2)
}

func TestCheckoutWaitsUpToBound(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	require.NoError(t, m.Register("llm", Spec{Limit: 1, Wait: 30 * time.Millisecond}))

	h, err := m.Checkout(ctx, "llm")
	require.NoError(t, err)

	start := time.Now()
	_, err = m.Checkout(ctx, "llm")
	assert.ErrorIs(t, err, ErrResourceExhausted)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	go func() {
		time.Sleep(5 * time.Millisecond)
		m.Release(h)
	}()
	h2, err := m.Checkout(ctx, "llm")
	require.NoError(t, err, "permit released within the wait bound")
	m.Release(h2)
}

func TestCheckoutCancelled(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register("llm", Spec{Limit: 1, Wait: time.Second}))
	h, err := m.Checkout(context.Background(), "llm")
	require.NoError(t, err)
	defer m.Release(h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Checkout(ctx, "llm")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrResourceExhausted)
}

func TestReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	require.NoError(t, m.Register("pool", Spec{Limit: 1}))

	h, err := m.Checkout(ctx, "pool")
	require.NoError(t, err)
	m.Release(h)
	m.Release(h)
	m.Release(nil)

	stats, _ := m.Stats("pool")
	assert.Equal(t, 0, stats.InUse)

	h1, err := m.Checkout(ctx, "pool")
	require.NoError(t, err)
	_, err = m.Checkout(ctx, "pool")
	assert.ErrorIs(t, err, ErrResourceExhausted, "double release must not add permits")
	m.Release(h1)
}

func TestConcurrencyNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	require.NoError(t, m.Register("llm", Spec{Limit: 3, Wait: time.Second}))

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := m.Checkout(ctx, "llm")
			if !assert.NoError(t, err) {
				return
			}
			defer m.Release(h)

			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			current.Add(-1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
	stats, ok := m.Stats("llm")
	require.True(t, ok)
	assert.Equal(t, Stats{Limit: 3}, stats)
}

func TestWaitObserver(t *testing.T) {
	var calls []error
	m := NewManager(WithWaitObserver(func(_ context.Context, name string, _ time.Duration, err error) {
		assert.Equal(t, "x", name)
		calls = append(calls, err)
	}))
	require.NoError(t, m.Register("x", Spec{Limit: 1}))

	h, _ := m.Checkout(context.Background(), "x")
	_, _ = m.Checkout(context.Background(), "x")
	m.Release(h)

	require.Len(t, calls, 2)
	assert.NoError(t, calls[0])
	assert.ErrorIs(t, calls[1], ErrResourceExhausted)
}

func TestStatsUnknown(t *testing.T) {
	_, ok := NewManager().Stats("missing")
	assert.False(t, ok)
}
