package facts

import (
	"testing"

	"github.com/liamcoop/ruleengine/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecodeFollowsSchema verifies declared types decide the numeric variant
func TestDecodeFollowsSchema(t *testing.T) {
	schema := Schema{"amount": TypeInt, "rate": TypeFloat, "currency": TypeString}

	got, err := Decode([]byte(`{"amount": 15000, "rate": 2, "currency": "USD", "extra": 3.5, "count": 4}`), schema)
	require.NoError(t, err)

	assert.Equal(t, rules.Int(15000), got["amount"])
	assert.Equal(t, rules.Float(2), got["rate"])
	assert.Equal(t, rules.String("USD"), got["currency"])
	assert.Equal(t, rules.Float(3.5), got["extra"])
	assert.Equal(t, rules.Int(4), got["count"])
}

func TestDecodeWithoutSchema(t *testing.T) {
	got, err := Decode([]byte(`{"tags": ["a", 1, 1.5], "meta": {"vip": true}, "none": null}`), nil)
	require.NoError(t, err)

	assert.True(t, rules.Equal(rules.List{rules.String("a"), rules.Int(1), rules.Float(1.5)}, got["tags"]))
	assert.True(t, rules.Equal(rules.Map{"vip": rules.Bool(true)}, got["meta"]))
	assert.Equal(t, rules.Null{}, got["none"])
}

// TestDecodeRejectsMismatches verifies declared types are enforced
func TestDecodeRejectsMismatches(t *testing.T) {
	schema := Schema{
		"amount": TypeInt, "rate": TypeFloat, "name": TypeString,
		"vip": TypeBool, "tags": TypeList, "meta": TypeMap,
	}

	inputs := map[string]string{
		"fractional int":  `{"amount": 1.5}`,
		"string as int":   `{"amount": "15"}`,
		"string as float": `{"rate": "x"}`,
		"number as name":  `{"name": 5}`,
		"string as bool":  `{"vip": "true"}`,
		"object as list":  `{"tags": {}}`,
		"list as map":     `{"meta": []}`,
		"not an object":   `[1, 2]`,
		"broken json":     `{"amount":`,
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(input), schema)
			assert.Error(t, err)
		})
	}
}

func TestConvertNullDeclaredField(t *testing.T) {
	got, err := Convert(map[string]any{"amount": nil}, Schema{"amount": TypeInt})
	require.NoError(t, err)
	assert.Equal(t, rules.Null{}, got["amount"])
}

// TestDecodedFactsDriveEngine verifies converted facts run through the engine
func TestDecodedFactsDriveEngine(t *testing.T) {
	facts, err := Decode([]byte(`{"amount": 15000, "currency": "USD"}`), Schema{"amount": TypeInt})
	require.NoError(t, err)

	ok, err := rules.Evaluate(rules.And{
		rules.GreaterThan{Field: "amount", Value: rules.Int(10000)},
		rules.Equals{Field: "currency", Value: rules.String("USD")},
	}, facts)
	require.NoError(t, err)
	assert.True(t, ok)
}
