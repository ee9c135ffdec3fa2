package facts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/liamcoop/ruleengine/rules"
)

// Decode parses a JSON object of facts. Numbers are kept exact until the
// schema decides their variant.
func Decode(data []byte, schema Schema) (rules.Map, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid facts: %w", err)
	}
	return Convert(raw, schema)
}

// Convert turns decoded JSON into facts. Declared fields are coerced to
// their schema type; undeclared fields use rules.FromNative. A nil schema
// converts everything with rules.FromNative.
func Convert(raw map[string]any, schema Schema) (rules.Map, error) {
	out := make(rules.Map, len(raw))
	for name, v := range raw {
		declared, ok := schema[name]
		if !ok {
			converted, err := rules.FromNative(v)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			out[name] = converted
			continue
		}

		converted, err := coerce(v, declared)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out[name] = converted
	}
	return out, nil
}

func coerce(v any, declared FieldType) (rules.Value, error) {
	t, ok := declared.Canonical()
	if !ok {
		return nil, fmt.Errorf("unknown type %q", declared)
	}
	if v == nil {
		return rules.Null{}, nil
	}

	switch t {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(v, t)
		}
		return rules.String(s), nil
	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch(v, t)
		}
		return rules.Bool(b), nil
	case TypeInt:
		return toInt(v)
	case TypeFloat:
		return toFloat(v)
	case TypeList:
		if _, ok := v.([]any); !ok {
			return nil, mismatch(v, t)
		}
		return rules.FromNative(v)
	case TypeMap:
		if _, ok := v.(map[string]any); !ok {
			return nil, mismatch(v, t)
		}
		return rules.FromNative(v)
	default:
		return rules.FromNative(v)
	}
}

func toInt(v any) (rules.Value, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("%s is not an integer", n)
		}
		return rules.Int(i), nil
	case float64:
		if n != math.Trunc(n) || math.Abs(n) >= 1<<63 {
			return nil, fmt.Errorf("%v is not an integer", n)
		}
		return rules.Int(int64(n)), nil
	case int:
		return rules.Int(n), nil
	case int64:
		return rules.Int(n), nil
	default:
		return nil, mismatch(v, TypeInt)
	}
}

func toFloat(v any) (rules.Value, error) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("%s is not a number", n)
		}
		return rules.Float(f), nil
	case float64:
		return rules.Float(n), nil
	case int:
		return rules.Float(float64(n)), nil
	case int64:
		return rules.Float(float64(n)), nil
	default:
		return nil, mismatch(v, TypeFloat)
	}
}

func mismatch(v any, want FieldType) error {
	return fmt.Errorf("expected %s, got %T", want, v)
}
