package rules

import (
	"fmt"
	"strings"
)

// Limits enforced by Validate.
const (
	MaxRuleIDLength   = 100
	MaxConditionDepth = 64
)

// Validate checks the shape of a rule before it is stored. Engine.Add does
// not call it; loaders and the HTTP API do.
func Validate(rule Rule) error {
	if strings.TrimSpace(rule.ID) == "" {
		return invalidRule(rule.ID, "rule id cannot be empty")
	}
	if len(rule.ID) > MaxRuleIDLength {
		return invalidRule(rule.ID, "rule id length %d exceeds maximum of %d characters", len(rule.ID), MaxRuleIDLength)
	}
	if strings.TrimSpace(rule.Name) == "" {
		return invalidRule(rule.ID, "rule name cannot be empty")
	}
	if rule.Condition == nil {
		return invalidRule(rule.ID, "rule has no condition")
	}
	if err := validateCondition(rule.Condition, 1); err != nil {
		return invalidRule(rule.ID, "condition: %v", err)
	}
	for i, action := range rule.Actions {
		if err := validateAction(action); err != nil {
			return invalidRule(rule.ID, "action %d: %v", i, err)
		}
	}
	return nil
}

// ValidateAll validates rules and rejects duplicate IDs within the set.
func ValidateAll(rules []Rule) error {
	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		if err := Validate(rule); err != nil {
			return err
		}
		if seen[rule.ID] {
			return invalidRule(rule.ID, "duplicate rule id")
		}
		seen[rule.ID] = true
	}
	return nil
}

func validateCondition(c Condition, depth int) error {
	if depth > MaxConditionDepth {
		return fmt.Errorf("nesting exceeds maximum depth of %d", MaxConditionDepth)
	}

	switch cond := c.(type) {
	case Equals:
		return validateLeaf(TagEquals, cond.Field, cond.Value)
	case GreaterThan:
		if err := validateLeaf(TagGreaterThan, cond.Field, cond.Value); err != nil {
			return err
		}
		return requireNumeric(TagGreaterThan, cond.Value)
	case LessThan:
		if err := validateLeaf(TagLessThan, cond.Field, cond.Value); err != nil {
			return err
		}
		return requireNumeric(TagLessThan, cond.Value)
	case Contains:
		return validateLeaf(TagContains, cond.Field, cond.Value)
	case And:
		return validateChildren(TagAnd, cond, depth)
	case Or:
		return validateChildren(TagOr, cond, depth)
	case Not:
		if cond.Condition == nil {
			return fmt.Errorf("%s requires a sub-condition", TagNot)
		}
		return validateCondition(cond.Condition, depth+1)
	case nil:
		return fmt.Errorf("missing condition")
	default:
		return fmt.Errorf("unknown condition type %T", c)
	}
}

func validateLeaf(tag, field string, v Value) error {
	if field == "" {
		return fmt.Errorf("%s has an empty field name", tag)
	}
	if v == nil {
		return fmt.Errorf("%s %s has no value", tag, field)
	}
	return nil
}

func requireNumeric(tag string, v Value) error {
	switch v.(type) {
	case Int, Float:
		return nil
	default:
		return fmt.Errorf("%s compares against %s, want Int or Float", tag, v.Kind())
	}
}

func validateChildren(tag string, conds []Condition, depth int) error {
	for i, sub := range conds {
		if err := validateCondition(sub, depth+1); err != nil {
			return fmt.Errorf("%s[%d]: %w", tag, i, err)
		}
	}
	return nil
}

func validateAction(a Action) error {
	switch act := a.(type) {
	case Log:
		return nil
	case UpdateField:
		if act.Field == "" {
			return fmt.Errorf("%s has an empty field name", TagUpdateField)
		}
		if act.Value == nil {
			return fmt.Errorf("%s %s has no value", TagUpdateField, act.Field)
		}
		return nil
	case CallExternalService:
		if act.Endpoint == "" {
			return fmt.Errorf("%s has an empty endpoint", TagCallExternalService)
		}
		return validateValues(act.Payload)
	case SendEvent:
		if act.EventType == "" {
			return fmt.Errorf("%s has an empty event type", TagSendEvent)
		}
		return validateValues(act.Data)
	case Composite:
		for i, child := range act {
			if err := validateAction(child); err != nil {
				return fmt.Errorf("%s[%d]: %w", TagComposite, i, err)
			}
		}
		return nil
	case nil:
		return fmt.Errorf("missing action")
	default:
		return fmt.Errorf("unknown action type %T", a)
	}
}

func validateValues(m map[string]Value) error {
	for k, v := range m {
		if v == nil {
			return fmt.Errorf("%q has no value", k)
		}
	}
	return nil
}
