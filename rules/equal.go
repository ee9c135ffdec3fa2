package rules

// EqualRule reports whether two rules are structurally equal. Empty and nil
// containers compare equal, so a rule equals its own decoded encoding.
func EqualRule(a, b Rule) bool {
	if a.ID != b.ID || a.Name != b.Name || a.Description != b.Description ||
		a.Priority != b.Priority || a.Enabled != b.Enabled {
		return false
	}
	if !EqualCondition(a.Condition, b.Condition) {
		return false
	}
	return equalActions(a.Actions, b.Actions)
}

// EqualCondition reports whether two condition trees are structurally equal.
func EqualCondition(a, b Condition) bool {
	switch ac := a.(type) {
	case Equals:
		bc, ok := b.(Equals)
		return ok && ac.Field == bc.Field && Equal(ac.Value, bc.Value)
	case GreaterThan:
		bc, ok := b.(GreaterThan)
		return ok && ac.Field == bc.Field && Equal(ac.Value, bc.Value)
	case LessThan:
		bc, ok := b.(LessThan)
		return ok && ac.Field == bc.Field && Equal(ac.Value, bc.Value)
	case Contains:
		bc, ok := b.(Contains)
		return ok && ac.Field == bc.Field && Equal(ac.Value, bc.Value)
	case And:
		bc, ok := b.(And)
		return ok && equalConditions(ac, bc)
	case Or:
		bc, ok := b.(Or)
		return ok && equalConditions(ac, bc)
	case Not:
		bc, ok := b.(Not)
		return ok && EqualCondition(ac.Condition, bc.Condition)
	default:
		return a == nil && b == nil
	}
}

func equalConditions(a, b []Condition) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !EqualCondition(a[i], b[i]) {
			return false
		}
	}
	return true
}

// EqualAction reports whether two action trees are structurally equal.
func EqualAction(a, b Action) bool {
	switch aa := a.(type) {
	case Log:
		ba, ok := b.(Log)
		return ok && aa == ba
	case UpdateField:
		ba, ok := b.(UpdateField)
		return ok && aa.Field == ba.Field && Equal(aa.Value, ba.Value)
	case CallExternalService:
		ba, ok := b.(CallExternalService)
		return ok && aa.Endpoint == ba.Endpoint && Equal(Map(aa.Payload), Map(ba.Payload))
	case SendEvent:
		ba, ok := b.(SendEvent)
		return ok && aa.EventType == ba.EventType && Equal(Map(aa.Data), Map(ba.Data))
	case Composite:
		ba, ok := b.(Composite)
		return ok && equalActions(aa, ba)
	default:
		return a == nil && b == nil
	}
}

func equalActions(a, b []Action) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !EqualAction(a[i], b[i]) {
			return false
		}
	}
	return true
}
