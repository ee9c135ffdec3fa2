package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRuleBuilderDefaults verifies the defaults of an unconfigured rule
func TestRuleBuilderDefaults(t *testing.T) {
	rule := NewRuleBuilder("r1", "Rule one").Build()

	assert.Equal(t, "r1", rule.ID)
	assert.Equal(t, "Rule one", rule.Name)
	assert.Equal(t, DefaultPriority, rule.Priority)
	assert.Equal(t, uint32(50), rule.Priority)
	assert.True(t, rule.Enabled)
	assert.Empty(t, rule.Description)
	assert.Empty(t, rule.Actions)
	assert.True(t, EqualCondition(And{}, rule.Condition))
}

func TestRuleBuilderChaining(t *testing.T) {
	rule := NewRuleBuilder("r1", "Rule one").
		Description("flags large orders").
		Priority(7).
		Condition(GreaterThan{Field: "amount", Value: Int(100)}).
		Action(Log{Message: "one"}).
		Action(Log{Message: "two"}).
		Enabled(false).
		Build()

	assert.Equal(t, "flags large orders", rule.Description)
	assert.Equal(t, uint32(7), rule.Priority)
	assert.False(t, rule.Enabled)
	assert.Equal(t, []Action{Log{Message: "one"}, Log{Message: "two"}}, rule.Actions)
	assert.True(t, EqualCondition(GreaterThan{Field: "amount", Value: Int(100)}, rule.Condition))
}

// TestRuleBuilderBuildIsIndependent verifies built rules do not share action slices
func TestRuleBuilderBuildIsIndependent(t *testing.T) {
	b := NewRuleBuilder("r1", "Rule one").Action(Log{Message: "one"})
	first := b.Build()
	b.Action(Log{Message: "two"})
	second := b.Build()

	assert.Len(t, first.Actions, 1)
	assert.Len(t, second.Actions, 2)
}
