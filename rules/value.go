package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Value is a sealed interface over the dynamically typed values used for
// facts, rule literals and outputs.
// Only String, Int, Float, Bool, List, Map and Null implement it.
type Value interface {
	value()
	// Kind returns the variant tag used in the exchange format.
	Kind() string
}

// String is a string value.
type String string

// Int is a 64-bit signed integer value.
type Int int64

// Float is a 64-bit floating point value.
type Float float64

// Bool is a boolean value.
type Bool bool

// List is an ordered, heterogeneous list of values.
type List []Value

// Map maps unique string keys to values. Iteration order is not significant.
type Map map[string]Value

// Null is the absent value.
type Null struct{}

func (String) value() {}
func (Int) value()    {}
func (Float) value()  {}
func (Bool) value()   {}
func (List) value()   {}
func (Map) value()    {}
func (Null) value()   {}

// Variant tags.
const (
	KindString = "String"
	KindInt    = "Int"
	KindFloat  = "Float"
	KindBool   = "Bool"
	KindList   = "List"
	KindMap    = "Map"
	KindNull   = "Null"
)

func (String) Kind() string { return KindString }
func (Int) Kind() string    { return KindInt }
func (Float) Kind() string  { return KindFloat }
func (Bool) Kind() string   { return KindBool }
func (List) Kind() string   { return KindList }
func (Map) Kind() string    { return KindMap }
func (Null) Kind() string   { return KindNull }

// Equal reports structural, variant-exact equality.
// Int(5) and Float(5.0) are not equal.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Null:
		_, ok := b.(Null)
		return ok
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Map:
		bv, ok := b.(Map)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, exists := bv[k]
			if !exists || !Equal(v, other) {
				return false
			}
		}
		return true
	default:
		return a == nil && b == nil
	}
}

// Clone returns a deep copy of v. Scalars are returned as is.
func Clone(v Value) Value {
	switch val := v.(type) {
	case List:
		if val == nil {
			return List(nil)
		}
		out := make(List, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case Map:
		return CloneMap(val)
	default:
		return v
	}
}

// CloneMap deep-copies a map of values. A nil map yields an empty map.
func CloneMap[M ~map[string]Value](m M) M {
	out := make(M, len(m))
	for k, v := range m {
		out[k] = Clone(v)
	}
	return out
}

// Format renders v for log lines, e.g. Int(5) or List[String("a")].
func Format(v Value) string {
	switch val := v.(type) {
	case String:
		return fmt.Sprintf("String(%q)", string(val))
	case Int:
		return fmt.Sprintf("Int(%d)", int64(val))
	case Float:
		return fmt.Sprintf("Float(%v)", float64(val))
	case Bool:
		return fmt.Sprintf("Bool(%t)", bool(val))
	case Null:
		return "Null"
	case List:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = Format(elem)
		}
		return "List[" + strings.Join(parts, ", ") + "]"
	case Map:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%q: %s", k, Format(val[k]))
		}
		return "Map{" + strings.Join(parts, ", ") + "}"
	default:
		return "<nil>"
	}
}

// MarshalValue encodes v in the tagged exchange format: {"Int":5}, "Null", ...
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Null:
		return json.Marshal(KindNull)
	case String:
		return tagged(KindString, string(val))
	case Int:
		return tagged(KindInt, int64(val))
	case Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("cannot encode non-finite float %v", f)
		}
		return tagged(KindFloat, f)
	case Bool:
		return tagged(KindBool, bool(val))
	case List:
		elems := make([]json.RawMessage, len(val))
		for i, elem := range val {
			b, err := MarshalValue(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			elems[i] = b
		}
		return tagged(KindList, elems)
	case Map:
		fields, err := marshalValueMap(val)
		if err != nil {
			return nil, err
		}
		return tagged(KindMap, fields)
	default:
		return nil, fmt.Errorf("unknown value type %T", v)
	}
}

// UnmarshalValue decodes a tagged value produced by MarshalValue.
func UnmarshalValue(data []byte) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return nil, err
		}
		if tag != KindNull {
			return nil, fmt.Errorf("unknown unit value variant %q", tag)
		}
		return Null{}, nil
	}

	tag, body, err := splitTagged(data)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}

	switch tag {
	case KindString:
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, err
		}
		return String(s), nil
	case KindInt:
		var n int64
		if err := json.Unmarshal(body, &n); err != nil {
			return nil, err
		}
		return Int(n), nil
	case KindFloat:
		var f float64
		if err := json.Unmarshal(body, &f); err != nil {
			return nil, err
		}
		return Float(f), nil
	case KindBool:
		var b bool
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case KindList:
		var raw []json.RawMessage
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, err
		}
		list := make(List, len(raw))
		for i, elem := range raw {
			v, err := UnmarshalValue(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list[i] = v
		}
		return list, nil
	case KindMap:
		m, err := unmarshalValueMap(body)
		if err != nil {
			return nil, err
		}
		return m, nil
	case KindNull:
		return Null{}, nil
	default:
		return nil, fmt.Errorf("unknown value variant %q", tag)
	}
}

func marshalValueMap(m map[string]Value) (map[string]json.RawMessage, error) {
	fields := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		b, err := MarshalValue(v)
		if err != nil {
			return nil, fmt.Errorf("map[%q]: %w", k, err)
		}
		fields[k] = b
	}
	return fields, nil
}

func unmarshalValueMap(data []byte) (Map, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	m := make(Map, len(raw))
	for k, elem := range raw {
		v, err := UnmarshalValue(elem)
		if err != nil {
			return nil, fmt.Errorf("map[%q]: %w", k, err)
		}
		m[k] = v
	}
	return m, nil
}

// FromNative converts decoded JSON/YAML data into a Value.
// Go integers become Int and float64 always becomes Float. A json.Number
// becomes Int when its literal is integral, Float otherwise.
func FromNative(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return Int(n), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return Float(f), nil
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			converted, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list[i] = converted
		}
		return list, nil
	case map[string]any:
		return FromNativeMap(val)
	default:
		return nil, fmt.Errorf("unsupported native type %T", v)
	}
}

// FromNativeMap converts a decoded JSON object into a fact/output map.
func FromNativeMap(m map[string]any) (Map, error) {
	out := make(Map, len(m))
	for k, elem := range m {
		converted, err := FromNative(elem)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = converted
	}
	return out, nil
}

// ToNative converts a Value into plain Go data suitable for encoding/json.
func ToNative(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToNative(elem)
		}
		return out
	case Map:
		return ToNativeMap(val)
	default:
		return nil
	}
}

// ToNativeMap converts a value map into plain Go data.
func ToNativeMap(m map[string]Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = ToNative(v)
	}
	return out
}
