package agentflow

import (
	"fmt"
	"runtime/debug"

	"github.com/randalmurphal/agentflow/pkg/agentflow/expr"
	"github.com/randalmurphal/agentflow/pkg/agentflow/flowctx"
)

// ConditionKind names a condition form.
type ConditionKind string

const (
	CondAlways         ConditionKind = "always"
	CondStateEquals    ConditionKind = "state_equals"
	CondStateNotEquals ConditionKind = "state_not_equals"
	CondStateExists    ConditionKind = "state_exists"
	CondStateAbsent    ConditionKind = "state_absent"
	CondExpr           ConditionKind = "expr"
	CondFunc           ConditionKind = "func"
)

// Condition is a predicate over Session variables. The zero value is Always.
type Condition struct {
	Kind  ConditionKind
	Key   string
	Value any

	// Expr is the source of a CondExpr condition.
	Expr string

	// Func backs CondFunc conditions. They cannot be serialized.
	Func func(vars flowctx.Vars) bool

	program *expr.Program
}

// Always is the unconditional Condition.
func Always() Condition { return Condition{Kind: CondAlways} }

// StateEquals holds when key is set and equal to value.
func StateEquals(key string, value any) Condition {
	return Condition{Kind: CondStateEquals, Key: key, Value: value}
}

// StateNotEquals holds when key is absent or differs from value.
func StateNotEquals(key string, value any) Condition {
	return Condition{Kind: CondStateNotEquals, Key: key, Value: value}
}

// StateExists holds when key is set.
func StateExists(key string) Condition { return Condition{Kind: CondStateExists, Key: key} }

// StateAbsent holds when key is not set.
func StateAbsent(key string) Condition { return Condition{Kind: CondStateAbsent, Key: key} }

// Expr is a condition written in the expr language, e.g. "count < 3 and ready".
// It is compiled when the graph is built.
func Expr(src string) Condition { return Condition{Kind: CondExpr, Expr: src} }

// When wraps a Go predicate.
func When(fn func(vars flowctx.Vars) bool) Condition { return Condition{Kind: CondFunc, Func: fn} }

// IsAlways reports whether the condition is unconditional.
func (c Condition) IsAlways() bool { return c.Kind == "" || c.Kind == CondAlways }

// compile validates c and parses expressions.
func (c Condition) compile() (Condition, error) {
	switch c.Kind {
	case "", CondAlways:
		return c, nil
	case CondStateEquals, CondStateNotEquals, CondStateExists, CondStateAbsent:
		if c.Key == "" {
			return c, fmt.Errorf("%s condition needs a key", c.Kind)
		}
		return c, nil
	case CondExpr:
		p, err := expr.Compile(c.Expr)
		if err != nil {
			return c, err
		}
		c.program = p
		return c, nil
	case CondFunc:
		if c.Func == nil {
			return c, fmt.Errorf("func condition has no func")
		}
		return c, nil
	}
	return c, fmt.Errorf("unknown condition kind %q", c.Kind)
}

// Eval evaluates the condition. Expr conditions compile lazily when the
// condition did not come from a built graph.
func (c Condition) Eval(vars flowctx.Vars) (bool, error) {
	switch c.Kind {
	case "", CondAlways:
		return true, nil
	case CondStateEquals:
		v, ok := vars.Lookup(c.Key)
		return ok && expr.Equal(v, c.Value), nil
	case CondStateNotEquals:
		v, ok := vars.Lookup(c.Key)
		return !ok || !expr.Equal(v, c.Value), nil
	case CondStateExists:
		_, ok := vars.Lookup(c.Key)
		return ok, nil
	case CondStateAbsent:
		_, ok := vars.Lookup(c.Key)
		return !ok, nil
	case CondExpr:
		p := c.program
		if p == nil {
			var err error
			if p, err = expr.Compile(c.Expr); err != nil {
				return false, err
			}
		}
		return p.Eval(vars)
	case CondFunc:
		if c.Func == nil {
			return false, fmt.Errorf("func condition has no func")
		}
		return evalFunc(c.Func, vars)
	}
	return false, fmt.Errorf("unknown condition kind %q", c.Kind)
}

// evalFunc runs a Go predicate, turning a panic into an error.
func evalFunc(fn func(flowctx.Vars) bool, vars flowctx.Vars) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return fn(vars), nil
}

func (c Condition) String() string {
	switch c.Kind {
	case "", CondAlways:
		return "always"
	case CondStateEquals:
		return fmt.Sprintf("%s == %v", c.Key, c.Value)
	case CondStateNotEquals:
		return fmt.Sprintf("%s != %v", c.Key, c.Value)
	case CondStateExists:
		return "exists(" + c.Key + ")"
	case CondStateAbsent:
		return "absent(" + c.Key + ")"
	case CondExpr:
		return c.Expr
	}
	return string(c.Kind)
}
