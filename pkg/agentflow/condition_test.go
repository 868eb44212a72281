package agentflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/agentflow/pkg/agentflow/expr"
	"github.com/randalmurphal/agentflow/pkg/agentflow/flowctx"
)

func TestConditionEval(t *testing.T) {
	vars := expr.Map{"status": "ok", "count": 2, "retries": "1"}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"zero value", Condition{}, true},
		{"always", Always(), true},
		{"equals", StateEquals("status", "ok"), true},
		{"equals numeric string", StateEquals("retries", 1), true},
		{"equals mismatch", StateEquals("status", "failed"), false},
		{"equals absent", StateEquals("missing", nil), false},
		{"not equals", StateNotEquals("status", "failed"), true},
		{"not equals absent", StateNotEquals("missing", "x"), true},
		{"exists", StateExists("count"), true},
		{"absent", StateAbsent("count"), false},
		{"expr", Expr("count < 3 and status == 'ok'"), true},
		{"expr false", Expr("count >= 3"), false},
		{"func", When(func(v flowctx.Vars) bool { _, ok := v.Lookup("status"); return ok }), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cond.Eval(vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditionCompile(t *testing.T) {
	_, err := Condition{Kind: CondStateEquals}.compile()
	assert.Error(t, err, "key required")

	_, err = Condition{Kind: "sometimes"}.compile()
	assert.Error(t, err)

	_, err = Condition{Kind: CondFunc}.compile()
	assert.Error(t, err)

	c, err := Expr("ready").compile()
	require.NoError(t, err)
	assert.NotNil(t, c.program)

	_, err = Expr("ready and").Eval(expr.Map{})
	assert.Error(t, err, "uncompiled expressions still report syntax errors")
}

func TestConditionString(t *testing.T) {
	assert.Equal(t, "always", Condition{}.String())
	assert.Equal(t, "status == ok", StateEquals("status", "ok").String())
	assert.Equal(t, "exists(k)", StateExists("k").String())
	assert.Equal(t, "count < 3", Expr("count < 3").String())
	assert.True(t, Always().IsAlways())
	assert.False(t, StateAbsent("k").IsAlways())
}
