package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Vars resolves variable names during evaluation.
type Vars interface {
	Lookup(key string) (any, bool)
}

// Map is a Vars backed by a plain map.
type Map map[string]any

// Lookup implements Vars.
func (m Map) Lookup(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

// resolvePath resolves a dotted path. The first segment goes through vars,
// the rest walk nested maps.
func resolvePath(vars Vars, path []string) any {
	if vars == nil || len(path) == 0 {
		return nil
	}
	cur, ok := vars.Lookup(path[0])
	if !ok {
		return nil
	}
	for _, field := range path[1:] {
		switch m := cur.(type) {
		case map[string]any:
			cur, ok = m[field]
		case map[string]string:
			cur, ok = m[field]
		default:
			return nil
		}
		if !ok {
			return nil
		}
	}
	return cur
}

// IsTruthy reports whether a value counts as true in a boolean position.
func IsTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	}
	if f, ok := toNumber(v); ok {
		return f != 0
	}
	return true
}

// ToFloat64 converts a value for numeric comparison.
// Values that are not numeric convert to 0.
func ToFloat64(v any) float64 {
	f, _ := toNumber(v)
	return f
}

func toNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case fmt.Stringer:
		f, err := strconv.ParseFloat(val.String(), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// isNumeric reports whether v is a Go numeric type. Numeric strings do not count.
func isNumeric(v any) bool {
	switch v.(type) {
	case string, nil, bool:
		return false
	}
	_, ok := toNumber(v)
	return ok
}

// Equal compares two values the way == does inside expressions.
func Equal(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	if isNumeric(left) && isNumeric(right) {
		return ToFloat64(left) == ToFloat64(right)
	}
	return fmt.Sprint(left) == fmt.Sprint(right)
}

// Compare applies a built-in operator to two values.
func Compare(left, right any, op string) (bool, error) {
	switch op {
	case "==":
		return Equal(left, right), nil
	case "!=":
		return !Equal(left, right), nil
	case "<":
		return ToFloat64(left) < ToFloat64(right), nil
	case ">":
		return ToFloat64(left) > ToFloat64(right), nil
	case "<=":
		return ToFloat64(left) <= ToFloat64(right), nil
	case ">=":
		return ToFloat64(left) >= ToFloat64(right), nil
	case "contains":
		return contains(left, right), nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownOperator, op)
	}
}

func contains(container, item any) bool {
	switch c := container.(type) {
	case nil:
		return false
	case []any:
		for _, el := range c {
			if Equal(el, item) {
				return true
			}
		}
		return false
	case []string:
		s := fmt.Sprint(item)
		for _, el := range c {
			if el == s {
				return true
			}
		}
		return false
	default:
		return strings.Contains(fmt.Sprint(container), fmt.Sprint(item))
	}
}
