package rules

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsWellFormedRule(t *testing.T) {
	require.NoError(t, Validate(nestedRule()))
	require.NoError(t, Validate(NewRuleBuilder("r", "minimal").Build()))
}

// TestValidateRejectsMalformedRules verifies each structural check reports InvalidRuleFormat
func TestValidateRejectsMalformedRules(t *testing.T) {
	base := func() *RuleBuilder { return NewRuleBuilder("r1", "Rule one") }

	tests := []struct {
		name string
		rule Rule
	}{
		{"empty id", NewRuleBuilder("", "x").Build()},
		{"blank name", NewRuleBuilder("r1", "  ").Build()},
		{"long id", NewRuleBuilder(strings.Repeat("a", MaxRuleIDLength+1), "x").Build()},
		{"nil condition", base().Condition(nil).Build()},
		{"empty field", base().Condition(Equals{Value: Int(1)}).Build()},
		{"nil literal", base().Condition(Equals{Field: "a"}).Build()},
		{"string threshold", base().Condition(GreaterThan{Field: "a", Value: String("1")}).Build()},
		{"nested nil", base().Condition(And{Or{nil}}).Build()},
		{"empty not", base().Condition(Not{}).Build()},
		{"nil action", base().Action(nil).Build()},
		{"update without field", base().Action(UpdateField{Value: Int(1)}).Build()},
		{"update without value", base().Action(UpdateField{Field: "a"}).Build()},
		{"empty endpoint", base().Action(CallExternalService{}).Build()},
		{"empty event type", base().Action(SendEvent{}).Build()},
		{"nil payload value", base().Action(CallExternalService{Endpoint: "/x", Payload: map[string]Value{"k": nil}}).Build()},
		{"bad composite child", base().Action(Composite{Log{}, SendEvent{}}).Build()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.rule)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRuleFormat)
		})
	}
}

func TestValidateDepthLimit(t *testing.T) {
	var cond Condition = Equals{Field: "a", Value: Int(1)}
	for i := 0; i < MaxConditionDepth; i++ {
		cond = Not{Condition: cond}
	}

	err := Validate(NewRuleBuilder("deep", "deep").Condition(cond).Build())
	assert.ErrorIs(t, err, ErrInvalidRuleFormat)
}

func TestValidateAllRejectsDuplicates(t *testing.T) {
	err := ValidateAll([]Rule{
		NewRuleBuilder("a", "a").Build(),
		NewRuleBuilder("a", "again").Build(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRuleFormat)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "a", e.RuleID)
}

// TestEngineAddSkipsValidation verifies malformed rules are stored and fail only when run
func TestEngineAddSkipsValidation(t *testing.T) {
	engine := NewEngine(WithLogger(&recordingLogger{}))
	engine.Add(Rule{ID: "broken", Name: "broken", Enabled: true, Condition: Not{}})
	assert.Equal(t, 1, engine.Len())

	_, err := engine.Execute(context.Background(), nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}
