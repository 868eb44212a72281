package agentflow

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/agentflow/pkg/agentflow/flowctx"
	"github.com/randalmurphal/agentflow/pkg/agentflow/message"
)

// testCtx returns a context that fails a hung test instead of blocking forever.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tracker records node visits from concurrent branches.
type tracker struct {
	mu     sync.Mutex
	visits []string
}

func (tr *tracker) add(node string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.visits = append(tr.visits, node)
}

func (tr *tracker) count(node string) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	n := 0
	for _, v := range tr.visits {
		if v == node {
			n++
		}
	}
	return n
}

func (tr *tracker) list() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.visits...)
}

// passAgent records its visit and follows plain transitions.
func passAgent(tr *tracker) Agent {
	return AgentFunc(func(ctx Context, _ *message.Message) (Action, error) {
		tr.add(ctx.NodeID())
		return Continue{}, nil
	})
}

// actionAgent records its visit and returns a fixed action.
func actionAgent(tr *tracker, action Action) Agent {
	return AgentFunc(func(ctx Context, _ *message.Message) (Action, error) {
		tr.add(ctx.NodeID())
		return action, nil
	})
}

// incrementAgent adds one to the session variable key, then continues.
func incrementAgent(tr *tracker, key string) Agent {
	return AgentFunc(func(ctx Context, _ *message.Message) (Action, error) {
		tr.add(ctx.NodeID())
		n := 0
		if v, ok := ctx.View().Get(key); ok {
			n = v.(int)
		}
		if err := ctx.View().SetScope(ctx, flowctx.ScopeSession, key, n+1); err != nil {
			return nil, err
		}
		return Continue{}, nil
	})
}

func mustBuild(t *testing.T, b *Builder) *Graph {
	t.Helper()
	g, err := b.Build()
	require.NoError(t, err)
	return g
}

// newTestExecutor registers agents by node name.
func newTestExecutor(t *testing.T, g *Graph, agents map[string]Agent, opts ...Option) *Executor {
	t.Helper()
	e := NewExecutor(g, append([]Option{WithLogger(quietLogger())}, opts...)...)
	for name, a := range agents {
		require.NoError(t, e.RegisterAgent(name, a))
	}
	return e
}
