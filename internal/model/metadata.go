package model

import (
	"encoding/json"
	"fmt"
	"math"
)

type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
	KindFloat
	KindBool
)

// Value is a small variant type for chunk metadata. Keys stay open-ended,
// values are constrained to string/int/float/bool so that exact-match
// filtering and JSON round-trips stay unambiguous.
type Value struct {
	Kind  ValueKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
}

func String(v string) Value { return Value{Kind: KindString, Str: v} }
func Int(v int64) Value     { return Value{Kind: KindInt, Int: v} }
func Float(v float64) Value { return Value{Kind: KindFloat, Float: v} }
func Bool(v bool) Value     { return Value{Kind: KindBool, Bool: v} }

func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == other.Str
	case KindInt:
		return v.Int == other.Int
	case KindFloat:
		return v.Float == other.Float
	case KindBool:
		return v.Bool == other.Bool
	}
	return false
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindInt:
		return json.Marshal(v.Int)
	case KindFloat:
		return json.Marshal(v.Float)
	case KindBool:
		return json.Marshal(v.Bool)
	}
	return nil, fmt.Errorf("unknown metadata value kind: %d", v.Kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch val := raw.(type) {
	case string:
		*v = String(val)
	case bool:
		*v = Bool(val)
	case float64:
		// JSON numbers decode as float64; keep integral values as ints so
		// that a saved Int compares equal after a reload.
		if val == math.Trunc(val) && !math.IsInf(val, 0) {
			*v = Int(int64(val))
		} else {
			*v = Float(val)
		}
	default:
		return fmt.Errorf("unsupported metadata value type: %T", raw)
	}
	return nil
}

// Metadata is the open string-keyed bag carried alongside every chunk.
type Metadata map[string]Value

func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	clone := make(Metadata, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// Matches reports whether every key in filter is present with an equal value.
// Equality is exact and kind-sensitive. Because UnmarshalJSON folds integral
// floats into KindInt, a Float holding a whole number changes kind across a
// JSON round-trip; write whole-number metadata as Int so filters keep
// matching after a reload.
func (m Metadata) Matches(filter Metadata) bool {
	for key, want := range filter {
		got, ok := m[key]
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}
