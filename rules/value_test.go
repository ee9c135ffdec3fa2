package rules

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same string", String("a"), String("a"), true},
		{"different string", String("a"), String("b"), false},
		{"int vs float", Int(1), Float(1), false},
		{"bool", Bool(true), Bool(true), true},
		{"null", Null{}, Null{}, true},
		{"null vs string", Null{}, String(""), false},
		{"empty list vs nil list", List{}, List(nil), true},
		{"list order matters", List{Int(1), Int(2)}, List{Int(2), Int(1)}, false},
		{"map ignores order", Map{"a": Int(1), "b": Int(2)}, Map{"b": Int(2), "a": Int(1)}, true},
		{"map missing key", Map{"a": Int(1)}, Map{"b": Int(1)}, false},
		{"list vs map", List{}, Map{}, false},
		{"both nil", nil, nil, true},
		{"nil vs null", nil, Null{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
			assert.Equal(t, tt.want, Equal(tt.b, tt.a))
		})
	}
}

// TestCloneIsDeep verifies clones share no containers with the original
func TestCloneIsDeep(t *testing.T) {
	original := Map{
		"list": List{Int(1), Map{"inner": String("x")}},
	}

	cloned := Clone(original).(Map)
	require.True(t, Equal(original, cloned))

	cloned["list"].(List)[1].(Map)["inner"] = String("changed")
	cloned["new"] = Bool(true)

	assert.Equal(t, String("x"), original["list"].(List)[1].(Map)["inner"])
	assert.NotContains(t, original, "new")
}

func TestCloneMapNil(t *testing.T) {
	var m Map
	cloned := CloneMap(m)
	assert.NotNil(t, cloned)
	assert.Empty(t, cloned)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, `Int(5)`, Format(Int(5)))
	assert.Equal(t, `String("USD")`, Format(String("USD")))
	assert.Equal(t, `Null`, Format(Null{}))
	assert.Equal(t, `List[Bool(true), Float(0.15)]`, Format(List{Bool(true), Float(0.15)}))
	assert.Equal(t, `Map{"a": Int(1), "b": Int(2)}`, Format(Map{"b": Int(2), "a": Int(1)}))
}

// TestValueEncoding verifies the tagged exchange format of each variant
func TestValueEncoding(t *testing.T) {
	tests := []struct {
		value Value
		json  string
	}{
		{String("USD"), `{"String":"USD"}`},
		{Int(15000), `{"Int":15000}`},
		{Float(0.15), `{"Float":0.15}`},
		{Bool(true), `{"Bool":true}`},
		{Null{}, `"Null"`},
		{List{Int(1), Null{}}, `{"List":[{"Int":1},"Null"]}`},
		{Map{"k": String("v")}, `{"Map":{"k":{"String":"v"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.value.Kind(), func(t *testing.T) {
			data, err := MarshalValue(tt.value)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(data))

			decoded, err := UnmarshalValue([]byte(tt.json))
			require.NoError(t, err)
			assert.True(t, Equal(tt.value, decoded), "decoded %s", Format(decoded))
		})
	}
}

func TestMarshalValueRejectsNonFinite(t *testing.T) {
	_, err := MarshalValue(Float(math.Inf(1)))
	assert.Error(t, err)

	_, err = MarshalValue(List{Float(math.NaN())})
	assert.Error(t, err)

	_, err = MarshalValue(nil)
	assert.Error(t, err)
}

func TestUnmarshalValueErrors(t *testing.T) {
	inputs := []string{
		`"Nothing"`,
		`{"Int":"five"}`,
		`{"Int":1,"Float":1.0}`,
		`{}`,
		`{"Decimal":"1.0"}`,
		`[1,2]`,
		`{"List":[{"Int":1},{"Bogus":2}]}`,
	}

	for _, in := range inputs {
		_, err := UnmarshalValue([]byte(in))
		assert.Error(t, err, in)
	}
}

// TestFromNative verifies decoded JSON becomes the narrowest matching variant
func TestFromNative(t *testing.T) {
	dec := json.NewDecoder(strings.NewReader(`{
		"amount": 15000,
		"rate": 0.15,
		"currency": "USD",
		"vip": false,
		"tags": ["a", 1],
		"meta": {"nested": null}
	}`))
	dec.UseNumber()
	var decoded map[string]any
	require.NoError(t, dec.Decode(&decoded))

	facts, err := FromNativeMap(decoded)
	require.NoError(t, err)

	assert.Equal(t, Int(15000), facts["amount"])
	assert.Equal(t, Float(0.15), facts["rate"])
	assert.Equal(t, String("USD"), facts["currency"])
	assert.Equal(t, Bool(false), facts["vip"])
	assert.True(t, Equal(List{String("a"), Int(1)}, facts["tags"]))
	assert.True(t, Equal(Map{"nested": Null{}}, facts["meta"]))
}

// TestFromNativeFloatStaysFloat verifies a whole float64 keeps its Float variant
func TestFromNativeFloatStaysFloat(t *testing.T) {
	v, err := FromNative(5.0)
	require.NoError(t, err)
	assert.Equal(t, Float(5), v)

	v, err = FromNative([]any{1.0, 2.5})
	require.NoError(t, err)
	assert.True(t, Equal(List{Float(1), Float(2.5)}, v))

	v, err = FromNative(map[string]any{"n": float64(1 << 60)})
	require.NoError(t, err)
	assert.True(t, Equal(Map{"n": Float(1 << 60)}, v))
}

func TestFromNativeJSONNumber(t *testing.T) {
	v, err := FromNative(json.Number("42"))
	require.NoError(t, err)
	assert.Equal(t, Int(42), v)

	v, err = FromNative(json.Number("4.2"))
	require.NoError(t, err)
	assert.Equal(t, Float(4.2), v)

	_, err = FromNative(struct{}{})
	assert.Error(t, err)
}

func TestToNative(t *testing.T) {
	native := ToNativeMap(Map{
		"amount": Int(15000),
		"tags":   List{String("a")},
		"none":   Null{},
	})

	assert.Equal(t, int64(15000), native["amount"])
	assert.Equal(t, []any{"a"}, native["tags"])
	assert.Nil(t, native["none"])
}
