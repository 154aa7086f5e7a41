package badge

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

type ValueKind int

const (
	KindAbsent ValueKind = iota
	KindNumber
	KindString
	KindBool
	KindList
)

// Value is the tagged comparison operand of a rule. JSON numbers, strings,
// booleans and flat lists are accepted; objects and nested lists are not.
type Value struct {
	Kind ValueKind
	Num  float64
	Str  string
	Bool bool
	List []Value
}

func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }
func String(s string) Value  { return Value{Kind: KindString, Str: s} }
func Boolean(b bool) Value   { return Value{Kind: KindBool, Bool: b} }
func List(vs []Value) Value  { return Value{Kind: KindList, List: vs} }

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := valueFromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func valueFromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case float64:
		return Number(t), nil
	case string:
		return String(t), nil
	case bool:
		return Boolean(t), nil
	case []any:
		members := make([]Value, 0, len(t))
		for _, m := range t {
			mv, err := valueFromAny(m)
			if err != nil {
				return Value{}, err
			}
			if mv.Kind == KindList {
				return Value{}, fmt.Errorf("nested lists are not allowed in rule values")
			}
			members = append(members, mv)
		}
		return List(members), nil
	case nil:
		return Value{}, fmt.Errorf("rule value must not be null")
	default:
		return Value{}, fmt.Errorf("unsupported rule value type %T", raw)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Num)
	case KindString:
		return json.Marshal(v.Str)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindList:
		members := v.List
		if members == nil {
			members = []Value{}
		}
		return json.Marshal(members)
	default:
		return nil, fmt.Errorf("cannot encode absent rule value")
	}
}

// AsNumber coerces the value for ordered comparisons. Numeric strings parse,
// booleans map to 0/1, everything else is NaN so every comparison fails.
func (v Value) AsNumber() float64 {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindString:
		f, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case KindBool:
		if v.Bool {
			return 1
		}
		return 0
	default:
		return math.NaN()
	}
}
