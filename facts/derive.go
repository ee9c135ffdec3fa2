package facts

import (
	"fmt"
	"math"
	"reflect"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/liamcoop/ruleengine/rules"
	"google.golang.org/protobuf/types/known/structpb"
)

// DerivedField is a fact computed from other facts before rules run.
type DerivedField struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"expression"` // CEL expression
}

// costLimit bounds the work a single derived expression may do.
const costLimit = 1000000

type derivation struct {
	name    string
	program cel.Program
}

// Deriver computes derived fields. Fields are evaluated in declaration
// order and each one may reference the fields derived before it.
// A Deriver is immutable and safe for concurrent use.
type Deriver struct {
	fields []derivation
}

// NewCELEnv declares one CEL variable per schema field.
func NewCELEnv(schema Schema) (*cel.Env, error) {
	opts := make([]cel.EnvOption, 0, len(schema))
	for name, declared := range schema {
		opts = append(opts, cel.Variable(name, celType(declared)))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

func celType(declared FieldType) *cel.Type {
	t, _ := declared.Canonical()
	switch t {
	case TypeString:
		return cel.StringType
	case TypeInt:
		return cel.IntType
	case TypeFloat:
		return cel.DoubleType
	case TypeBool:
		return cel.BoolType
	case TypeList:
		return cel.ListType(cel.DynType)
	case TypeMap:
		return cel.MapType(cel.StringType, cel.DynType)
	default:
		return cel.DynType
	}
}

// NewDeriver compiles the derived fields against schema.
func NewDeriver(schema Schema, fields []DerivedField) (*Deriver, error) {
	env, err := NewCELEnv(schema)
	if err != nil {
		return nil, err
	}

	d := &Deriver{fields: make([]derivation, 0, len(fields))}
	for _, f := range fields {
		if err := ValidateIdentifier(f.Name); err != nil {
			return nil, fmt.Errorf("invalid derived field name %q: %w", f.Name, err)
		}
		if _, declared := schema[f.Name]; declared {
			return nil, fmt.Errorf("derived field %q shadows a schema field", f.Name)
		}

		ast, issues := env.Compile(f.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("derived field %q: compile error: %w", f.Name, issues.Err())
		}
		prog, err := env.Program(ast, cel.CostLimit(costLimit))
		if err != nil {
			return nil, fmt.Errorf("derived field %q: program creation error: %w", f.Name, err)
		}
		d.fields = append(d.fields, derivation{name: f.Name, program: prog})

		// Later expressions may use this field.
		env, err = env.Extend(cel.Variable(f.Name, ast.OutputType()))
		if err != nil {
			return nil, fmt.Errorf("derived field %q: %w", f.Name, err)
		}
	}
	return d, nil
}

// Len returns the number of derived fields.
func (d *Deriver) Len() int {
	if d == nil {
		return 0
	}
	return len(d.fields)
}

// Derive returns a copy of facts with every derived field added.
func (d *Deriver) Derive(facts map[string]rules.Value) (rules.Map, error) {
	out := rules.CloneMap(rules.Map(facts))
	if d.Len() == 0 {
		return out, nil
	}

	activation := rules.ToNativeMap(out)
	for _, f := range d.fields {
		result, _, err := f.program.Eval(activation)
		if err != nil {
			return nil, fmt.Errorf("derived field %q: %w", f.name, err)
		}
		v, err := fromCEL(result)
		if err != nil {
			return nil, fmt.Errorf("derived field %q: %w", f.name, err)
		}
		out[f.name] = v
		activation[f.name] = rules.ToNative(v)
	}
	return out, nil
}

var structValueType = reflect.TypeOf(&structpb.Value{})

// fromCEL converts an evaluation result into a Value. Scalars keep their
// CEL type and collections are converted element by element. Other
// results go through their JSON form.
func fromCEL(v ref.Val) (rules.Value, error) {
	switch val := v.(type) {
	case types.Bool:
		return rules.Bool(bool(val)), nil
	case types.Int:
		return rules.Int(int64(val)), nil
	case types.Uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("unsigned result %d overflows int64", uint64(val))
		}
		return rules.Int(int64(val)), nil
	case types.Double:
		return rules.Float(float64(val)), nil
	case types.String:
		return rules.String(string(val)), nil
	case types.Null:
		return rules.Null{}, nil
	case traits.Lister:
		list := make(rules.List, 0)
		for it := val.Iterator(); it.HasNext() == types.True; {
			elem, err := fromCEL(it.Next())
			if err != nil {
				return nil, err
			}
			list = append(list, elem)
		}
		return list, nil
	case traits.Mapper:
		m := make(rules.Map)
		for it := val.Iterator(); it.HasNext() == types.True; {
			key := it.Next()
			k, ok := key.(types.String)
			if !ok {
				return nil, fmt.Errorf("map key %v is not a string", key.Value())
			}
			elem, err := fromCEL(val.Get(key))
			if err != nil {
				return nil, err
			}
			m[string(k)] = elem
		}
		return m, nil
	}

	native, err := v.ConvertToNative(structValueType)
	if err != nil {
		return nil, fmt.Errorf("unsupported result type %s: %w", v.Type().TypeName(), err)
	}
	pb, ok := native.(*structpb.Value)
	if !ok {
		return nil, fmt.Errorf("unsupported result type %s", v.Type().TypeName())
	}
	return rules.FromNative(pb.AsInterface())
}
