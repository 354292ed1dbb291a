package workflow

import (
	"reflect"
	"strings"
)

// Operator is the closed set of comparison variants a condition may use.
// Anything outside the set evaluates to false (fail-closed).
type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpContains     Operator = "contains"
)

func (op Operator) Eval(actual, expected any) bool {
	switch op {
	case OpEqual:
		return valuesEqual(actual, expected)
	case OpNotEqual:
		return !valuesEqual(actual, expected)
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		a, aok := toFloat(actual)
		b, bok := toFloat(expected)
		if !aok || !bok {
			return false
		}
		switch op {
		case OpGreater:
			return a > b
		case OpLess:
			return a < b
		case OpGreaterEqual:
			return a >= b
		default:
			return a <= b
		}
	case OpContains:
		haystack, hok := actual.(string)
		needle, nok := expected.(string)
		return hok && nok && strings.Contains(haystack, needle)
	default:
		return false
	}
}

// EvalConditions applies AND semantics over the condition list against a
// metadata bag. A missing field never satisfies a condition.
func EvalConditions(conds []Condition, metadata map[string]any) bool {
	for _, c := range conds {
		actual, ok := metadata[c.Field]
		if !ok {
			return false
		}
		if !c.Operator.Eval(actual, c.Value) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}
