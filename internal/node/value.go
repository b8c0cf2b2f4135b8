package node

import (
	"fmt"
	"math"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind enumerates the scalar variants a metadata value can hold. Keeping the
// set closed makes the document codec's round-trip property checkable.
type Kind int

const (
	KindString Kind = iota + 1
	KindNumber
	KindBool
	KindTime
)

// Value is one metadata scalar: a string, number, boolean, or timestamp.
// The zero Value is invalid and never produced by the codec.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	ts   time.Time
}

func String(s string) Value  { return Value{kind: KindString, str: s} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Time(t time.Time) Value { return Value{kind: KindTime, ts: t.UTC()} }

// Kind returns the variant held, or 0 for the zero Value.
func (v Value) Kind() Kind { return v.kind }

func (v Value) StringVal() string  { return v.str }
func (v Value) NumberVal() float64 { return v.num }
func (v Value) BoolVal() bool      { return v.b }
func (v Value) TimeVal() time.Time { return v.ts }

// Equal compares two values by kind and payload. Timestamps compare by
// instant.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindTime:
		return v.ts.Equal(o.ts)
	default:
		return true
	}
}

// Display renders the value for user-facing output.
func (v Value) Display() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		if v.num == math.Trunc(v.num) && math.Abs(v.num) < 1e15 {
			return fmt.Sprintf("%d", int64(v.num))
		}
		return fmt.Sprintf("%g", v.num)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindTime:
		return v.ts.Format(time.RFC3339)
	default:
		return ""
	}
}

// MarshalYAML emits the native scalar so YAML's own tagging round-trips the
// kind: numbers stay numbers, booleans stay booleans, timestamps stay
// timestamps.
func (v Value) MarshalYAML() (any, error) {
	switch v.kind {
	case KindString:
		return v.str, nil
	case KindNumber:
		if v.num == math.Trunc(v.num) && math.Abs(v.num) < 1e15 {
			return int64(v.num), nil
		}
		return v.num, nil
	case KindBool:
		return v.b, nil
	case KindTime:
		return v.ts, nil
	default:
		return nil, fmt.Errorf("node: cannot marshal zero metadata value")
	}
}

// UnmarshalYAML maps a YAML scalar onto the closed variant set. Non-scalar
// values (mappings, sequences) are rejected.
func (v *Value) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("node: metadata value must be a scalar, got %s", n.Tag)
	}
	switch n.Tag {
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return err
		}
		*v = Bool(b)
	case "!!int", "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return err
		}
		*v = Number(f)
	case "!!timestamp":
		var t time.Time
		if err := n.Decode(&t); err != nil {
			return err
		}
		*v = Time(t)
	default:
		*v = String(n.Value)
	}
	return nil
}
