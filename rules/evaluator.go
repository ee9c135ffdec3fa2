package rules

import "strings"

// Evaluate evaluates condition against facts.
// It is a pure function: facts are only read, and the first error stops the walk.
func Evaluate(condition Condition, facts map[string]Value) (bool, error) {
	switch c := condition.(type) {
	case Equals:
		fact, err := lookup(facts, c.Field)
		if err != nil {
			return false, err
		}
		return Equal(fact, c.Value), nil

	case GreaterThan:
		fact, err := lookup(facts, c.Field)
		if err != nil {
			return false, err
		}
		cmp, err := compareNumeric(c.Field, fact, c.Value)
		if err != nil {
			return false, err
		}
		return cmp > 0, nil

	case LessThan:
		fact, err := lookup(facts, c.Field)
		if err != nil {
			return false, err
		}
		cmp, err := compareNumeric(c.Field, fact, c.Value)
		if err != nil {
			return false, err
		}
		return cmp < 0, nil

	case Contains:
		fact, err := lookup(facts, c.Field)
		if err != nil {
			return false, err
		}
		return contains(c.Field, fact, c.Value)

	case And:
		for _, sub := range c {
			ok, err := Evaluate(sub, facts)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case Or:
		for _, sub := range c {
			ok, err := Evaluate(sub, facts)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case Not:
		ok, err := Evaluate(c.Condition, facts)
		if err != nil {
			return false, err
		}
		return !ok, nil

	default:
		return false, typeMismatch("", "unsupported condition %T", condition)
	}
}

func lookup(facts map[string]Value, field string) (Value, error) {
	v, ok := facts[field]
	if !ok {
		return nil, fieldNotFound(field)
	}
	return v, nil
}

// compareNumeric returns -1, 0 or 1. Mixed Int/Float pairs widen the Int side.
// NaN compares as neither greater nor less.
func compareNumeric(field string, fact, literal Value) (int, error) {
	switch a := fact.(type) {
	case Int:
		switch b := literal.(type) {
		case Int:
			return compare(int64(a), int64(b)), nil
		case Float:
			return compare(float64(a), float64(b)), nil
		}
	case Float:
		switch b := literal.(type) {
		case Float:
			return compare(float64(a), float64(b)), nil
		case Int:
			return compare(float64(a), float64(b)), nil
		}
	}
	return 0, typeMismatch(field, "cannot compare %s and %s", Format(fact), Format(literal))
}

func compare[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func contains(field string, fact, literal Value) (bool, error) {
	switch f := fact.(type) {
	case String:
		sub, ok := literal.(String)
		if !ok {
			return false, typeMismatch(field, "contains on a string requires a string operand, got %s", kindName(literal))
		}
		return strings.Contains(string(f), string(sub)), nil
	case List:
		for _, elem := range f {
			if Equal(elem, literal) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, typeMismatch(field, "field %s does not support contains (%s)", field, kindName(fact))
	}
}

func kindName(v Value) string {
	if v == nil {
		return "nil"
	}
	return v.Kind()
}
