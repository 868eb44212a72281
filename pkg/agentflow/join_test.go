package agentflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/agentflow/pkg/agentflow/flowctx"
)

func TestExpireJoin_RecordedWithTracker(t *testing.T) {
	g := forkGraph(t, &JoinNode{ID: "J", Inbound: []string{"X", "Y"}})
	x := newExecution(newTestExecutor(t, g, nil), flowctx.New())
	x.ctx = context.Background()

	jt := &joinTracker{
		node:     g.nodes["J"].(*JoinNode),
		sources:  map[string]bool{"X": true},
		arrivals: []Arrival{{Source: "X", BranchID: "0.1"}},
	}
	x.joins["J"] = jt

	x.expireJoin("J", jt)
	x.mu.Lock()
	assert.Len(t, x.errs, 1, "failure is recorded together with removing the tracker")
	x.mu.Unlock()

	x.drain()
	x.expireJoin("J", jt)

	res := x.result(0)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], ErrJoinTimeout)

	var be *BranchError
	require.True(t, errors.As(res.Errors[0], &be))
	assert.Equal(t, x.id, be.ExecutionID)
	assert.Equal(t, "0.1", be.BranchID)
	assert.Equal(t, "J", be.NodeID)
}

func TestExpireJoin_IgnoredAfterDrain(t *testing.T) {
	g := forkGraph(t, &JoinNode{ID: "J", Inbound: []string{"X", "Y"}})
	x := newExecution(newTestExecutor(t, g, nil), flowctx.New())
	x.ctx = context.Background()

	jt := &joinTracker{node: g.nodes["J"].(*JoinNode), sources: map[string]bool{"X": true}}
	x.joins["J"] = jt
	x.drain()
	x.expireJoin("J", jt)

	res := x.result(0)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], ErrJoinIncomplete)
}
