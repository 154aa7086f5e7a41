package services

import (
	"math"
	"strconv"

	"fitTribeAPI/internal/stats"
	"fitTribeAPI/internal/types/badge"
)

// EvaluateRules decides whether a snapshot satisfies a badge's full rule
// set. Rules combine with logical AND and short-circuit on the first
// failure. Evaluation never errors: anything malformed or unresolvable makes
// the rule false.
func EvaluateRules(snap stats.Snapshot, rules []badge.Rule) bool {
	for _, r := range rules {
		if !evaluateRule(snap, r) {
			return false
		}
	}
	return true
}

func evaluateRule(snap stats.Snapshot, r badge.Rule) bool {
	field, ok := snap.Resolve(r.Field)
	if !ok {
		return false
	}

	switch r.Operator {
	case badge.OpEquals:
		return strictEquals(field, r.Value)
	case badge.OpGreaterThan:
		f := coerceNumber(field)
		return f > r.Value.AsNumber()
	case badge.OpLessThan:
		f := coerceNumber(field)
		return f < r.Value.AsNumber()
	case badge.OpContains:
		seq, ok := field.([]any)
		if !ok {
			return false
		}
		for _, member := range seq {
			if strictEquals(member, r.Value) {
				return true
			}
		}
		return false
	case badge.OpBetween:
		if r.Value2 == nil {
			// rejected at badge creation; unreachable for stored badges
			return false
		}
		f := coerceNumber(field)
		return f >= r.Value.AsNumber() && f <= r.Value2.AsNumber()
	default:
		return false
	}
}

// strictEquals is type-sensitive equality with no coercion. Numbers compare
// numerically across int widths; everything else requires matching kinds.
// Sequences compare by identity, which a fresh snapshot never shares, so a
// list-valued rule under equals is always false.
func strictEquals(field any, v badge.Value) bool {
	switch v.Kind {
	case badge.KindNumber:
		f := coerceStrictNumber(field)
		if math.IsNaN(f) {
			return false
		}
		return f == v.Num
	case badge.KindString:
		s, ok := field.(string)
		return ok && s == v.Str
	case badge.KindBool:
		b, ok := field.(bool)
		return ok && b == v.Bool
	default:
		return false
	}
}

// coerceStrictNumber accepts only values that already are numbers.
func coerceStrictNumber(field any) float64 {
	switch t := field.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case float64:
		return t
	default:
		return math.NaN()
	}
}

// coerceNumber mirrors the lenient coercion the ordered operators use:
// numeric strings parse, booleans map to 0/1, anything else is NaN and every
// comparison against NaN is false. Fail closed.
func coerceNumber(field any) float64 {
	switch t := field.(type) {
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return coerceStrictNumber(field)
	}
}
