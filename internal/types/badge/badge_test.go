package badge

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitTribeAPI/internal/apperr"
)

func TestValueUnmarshalKinds(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Value
	}{
		{"number", `42.5`, Number(42.5)},
		{"string", `"gold"`, String("gold")},
		{"bool", `true`, Boolean(true)},
		{"list", `[1,"two",false]`, List([]Value{Number(1), String("two"), Boolean(false)})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var v Value
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &v))
			assert.Equal(t, tc.want, v)
		})
	}
}

func TestValueUnmarshalRejectsInvalid(t *testing.T) {
	for _, raw := range []string{`null`, `{"a":1}`, `[[1,2]]`} {
		var v Value
		assert.Error(t, json.Unmarshal([]byte(raw), &v), "input %s", raw)
	}
}

func TestValueMarshalRoundTrip(t *testing.T) {
	original := Rule{
		Type:     RuleUserStat,
		Field:    "stats.score",
		Operator: OpContains,
		Value:    List([]Value{Number(1), String("two")}),
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Rule
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}

func TestValueAsNumber(t *testing.T) {
	assert.Equal(t, 3.5, Number(3.5).AsNumber())
	assert.Equal(t, 15.0, String("15").AsNumber())
	assert.Equal(t, 1.0, Boolean(true).AsNumber())
	assert.Equal(t, 0.0, Boolean(false).AsNumber())
	assert.True(t, math.IsNaN(String("not a number").AsNumber()))
	assert.True(t, math.IsNaN(List(nil).AsNumber()))
}

func TestRuleValidate(t *testing.T) {
	v2 := Number(10)

	valid := Rule{Type: RuleUserStat, Field: "stats.score", Operator: OpGreaterThan, Value: Number(100)}
	assert.NoError(t, valid.Validate())

	betweenOK := Rule{Type: RuleUserStat, Field: "stats.score", Operator: OpBetween, Value: Number(1), Value2: &v2}
	assert.NoError(t, betweenOK.Validate())

	betweenMissing := Rule{Type: RuleUserStat, Field: "stats.score", Operator: OpBetween, Value: Number(1)}
	assert.ErrorIs(t, betweenMissing.Validate(), apperr.ErrValidation)

	strayValue2 := Rule{Type: RuleUserStat, Field: "stats.score", Operator: OpEquals, Value: Number(1), Value2: &v2}
	assert.ErrorIs(t, strayValue2.Validate(), apperr.ErrValidation)

	badOperator := Rule{Type: RuleUserStat, Field: "stats.score", Operator: "approximately", Value: Number(1)}
	assert.ErrorIs(t, badOperator.Validate(), apperr.ErrValidation)

	badType := Rule{Type: "horoscope", Field: "stats.score", Operator: OpEquals, Value: Number(1)}
	assert.ErrorIs(t, badType.Validate(), apperr.ErrValidation)

	noField := Rule{Type: RuleUserStat, Operator: OpEquals, Value: Number(1)}
	assert.ErrorIs(t, noField.Validate(), apperr.ErrValidation)

	noValue := Rule{Type: RuleUserStat, Field: "stats.score", Operator: OpEquals}
	assert.ErrorIs(t, noValue.Validate(), apperr.ErrValidation)
}

func TestValidateDefinition(t *testing.T) {
	rules := []Rule{{Type: RuleUserStat, Field: "stats.score", Operator: OpGreaterThan, Value: Number(100)}}

	assert.NoError(t, ValidateDefinition("Century Club", rules, 50))
	assert.NoError(t, ValidateDefinition("Zero Points", rules, 0))
	assert.NoError(t, ValidateDefinition("Max Points", rules, 1000))

	assert.ErrorIs(t, ValidateDefinition("", rules, 50), apperr.ErrValidation)
	assert.ErrorIs(t, ValidateDefinition("No Rules", nil, 50), apperr.ErrValidation)
	assert.ErrorIs(t, ValidateDefinition("Negative", rules, -1), apperr.ErrValidation)
	assert.ErrorIs(t, ValidateDefinition("Too Generous", rules, 1001), apperr.ErrValidation)
}
