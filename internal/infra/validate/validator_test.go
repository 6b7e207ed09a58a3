package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tooldeck/internal/domain"
)

func TestArgs_AllMissingRequiredReportedTogether(t *testing.T) {
	schema := domain.ParameterSchema{
		"a": {Kind: domain.KindString, Required: true},
		"b": {Kind: domain.KindNumber, Required: true},
		"c": {Kind: domain.KindBoolean, Required: true},
	}

	err := Args(schema, map[string]any{})
	require.NotNil(t, err)
	assert.Equal(t, domain.ErrValidation, err.Kind)
	require.Len(t, err.Violations, 3)

	params := make([]string, 0, 3)
	for _, v := range err.Violations {
		params = append(params, v.Param)
	}
	assert.Equal(t, []string{"a", "b", "c"}, params)
}

func TestArgs_NullCountsAsMissing(t *testing.T) {
	schema := domain.ParameterSchema{
		"text": {Kind: domain.KindString, Required: true},
	}
	err := Args(schema, map[string]any{"text": nil})
	require.NotNil(t, err)
	require.Len(t, err.Violations, 1)
	assert.Equal(t, "text", err.Violations[0].Param)
}

func TestArgs_KindConformance(t *testing.T) {
	schema := domain.ParameterSchema{
		"text":  {Kind: domain.KindString},
		"count": {Kind: domain.KindNumber},
		"force": {Kind: domain.KindBoolean},
		"opts":  {Kind: domain.KindObject},
		"items": {Kind: domain.KindArray},
	}

	assert.Nil(t, Args(schema, map[string]any{
		"text":  "hi",
		"count": 3,
		"force": true,
		"opts":  map[string]any{"k": "v"},
		"items": []any{"a", "b"},
	}))

	err := Args(schema, map[string]any{
		"text":  7,
		"count": "42", // numeric strings are not coerced
		"force": "yes",
		"opts":  []any{},
		"items": map[string]any{},
	})
	require.NotNil(t, err)
	assert.Len(t, err.Violations, 5)
}

func TestArgs_FloatAndIntBothSatisfyNumber(t *testing.T) {
	schema := domain.ParameterSchema{"count": {Kind: domain.KindNumber}}
	assert.Nil(t, Args(schema, map[string]any{"count": 3}))
	assert.Nil(t, Args(schema, map[string]any{"count": 3.5}))
	assert.Nil(t, Args(schema, map[string]any{"count": float64(3)}))
}

func TestArgs_Enum(t *testing.T) {
	schema := domain.ParameterSchema{
		"method": {Kind: domain.KindString, Enum: []any{"GET", "POST"}},
	}
	assert.Nil(t, Args(schema, map[string]any{"method": "GET"}))

	err := Args(schema, map[string]any{"method": "DELETE"})
	require.NotNil(t, err)
	require.Len(t, err.Violations, 1)
	assert.Contains(t, err.Violations[0].Reason, "allowed values")
}

func TestArgs_NumericEnumAcrossRepresentations(t *testing.T) {
	// YAML decodes enum values as int; JSON callers send float64.
	schema := domain.ParameterSchema{
		"level": {Kind: domain.KindNumber, Enum: []any{1, 2, 3}},
	}
	assert.Nil(t, Args(schema, map[string]any{"level": float64(2)}))
	require.NotNil(t, Args(schema, map[string]any{"level": float64(9)}))
}

func TestArgs_UnknownExtrasPassThrough(t *testing.T) {
	schema := domain.ParameterSchema{
		"text": {Kind: domain.KindString, Required: true},
	}
	assert.Nil(t, Args(schema, map[string]any{
		"text":         "hi",
		"experimental": true,
	}))
}

func TestArgs_OptionalAbsentIsFine(t *testing.T) {
	schema := domain.ParameterSchema{
		"text":   {Kind: domain.KindString, Required: true},
		"prefix": {Kind: domain.KindString},
	}
	assert.Nil(t, Args(schema, map[string]any{"text": "hi"}))
}

func TestCompileSchema(t *testing.T) {
	schema := domain.ParameterSchema{
		"text":   {Kind: domain.KindString, Required: true, Description: "input text"},
		"method": {Kind: domain.KindString, Enum: []any{"GET", "POST"}},
	}

	compiled := CompileSchema(schema)
	assert.Equal(t, "object", compiled.Type)
	assert.Equal(t, []string{"text"}, compiled.Required)
	require.Contains(t, compiled.Properties, "text")
	assert.Equal(t, "string", compiled.Properties["text"].Type)
	assert.Equal(t, "input text", compiled.Properties["text"].Description)
	require.Contains(t, compiled.Properties, "method")
	assert.Len(t, compiled.Properties["method"].Enum, 2)
}

func TestCompileSchema_Empty(t *testing.T) {
	compiled := CompileSchema(nil)
	assert.Equal(t, "object", compiled.Type)
	assert.Empty(t, compiled.Required)
}
