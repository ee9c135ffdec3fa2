package rules

import "slices"

// DefaultPriority is the priority given to rules built without one.
const DefaultPriority uint32 = 50

// RuleBuilder builds a Rule step by step.
//
//	rule := rules.NewRuleBuilder("rule1", "High risk transaction").
//		Priority(100).
//		Condition(rules.GreaterThan{Field: "amount", Value: rules.Int(10000)}).
//		Action(rules.Log{Message: "high risk transaction detected"}).
//		Build()
type RuleBuilder struct {
	rule Rule
}

// NewRuleBuilder starts a rule that is enabled, has priority 50, no actions
// and an always-true condition.
func NewRuleBuilder(id, name string) *RuleBuilder {
	return &RuleBuilder{rule: Rule{
		ID:        id,
		Name:      name,
		Priority:  DefaultPriority,
		Condition: And{},
		Enabled:   true,
	}}
}

func (b *RuleBuilder) Description(description string) *RuleBuilder {
	b.rule.Description = description
	return b
}

func (b *RuleBuilder) Priority(priority uint32) *RuleBuilder {
	b.rule.Priority = priority
	return b
}

func (b *RuleBuilder) Condition(condition Condition) *RuleBuilder {
	b.rule.Condition = condition
	return b
}

// Action appends an action; actions run in the order they were added.
func (b *RuleBuilder) Action(action Action) *RuleBuilder {
	b.rule.Actions = append(b.rule.Actions, action)
	return b
}

func (b *RuleBuilder) Enabled(enabled bool) *RuleBuilder {
	b.rule.Enabled = enabled
	return b
}

// Build returns the rule. Later builder calls do not affect it.
func (b *RuleBuilder) Build() Rule {
	rule := b.rule
	rule.Actions = slices.Clone(b.rule.Actions)
	return rule
}
