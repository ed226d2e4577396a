package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomatyss/chatter/internal/domain"
)

// --- field helpers ---

func TestRequireField(t *testing.T) {
	assert.NoError(t, RequireField("path", "a.txt"))
	err := RequireField("path", "")
	require.Error(t, err)
	assert.Equal(t, "'path' is required", err.Error())
}

// --- ValidateParams ---

func testSchema(t *testing.T) domain.ParameterSchema {
	t.Helper()
	var s domain.ParameterSchema
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"line": {"type": "integer"},
			"flag": {"type": "boolean"},
			"tags": {"type": "array"},
			"meta": {"type": "object"},
			"free": {}
		},
		"required": ["path"]
	}`), &s))
	return s
}

func TestValidateParams(t *testing.T) {
	schema := testSchema(t)

	tests := []struct {
		name    string
		params  map[string]any
		wantErr error
	}{
		{"minimal", map[string]any{"path": "a"}, nil},
		{"all types", map[string]any{
			"path": "a", "line": 3.0, "flag": true, "tags": []any{"x"}, "meta": map[string]any{}, "free": 1,
		}, nil},
		{"go int for integer", map[string]any{"path": "a", "line": 3}, nil},
		{"missing required", map[string]any{"line": 1.0}, domain.ErrMissingParameter},
		{"nil params", nil, domain.ErrMissingParameter},
		{"string for integer", map[string]any{"path": "a", "line": "3"}, domain.ErrInvalidInput},
		{"null for string", map[string]any{"path": nil}, domain.ErrInvalidInput},
		{"number for boolean", map[string]any{"path": "a", "flag": 1.0}, domain.ErrInvalidInput},
		{"undeclared ignored", map[string]any{"path": "a", "other": []int{1}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams("op", schema, tt.params)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateParams_Message(t *testing.T) {
	err := ValidateParams("op", testSchema(t), map[string]any{"path": "a", "line": "3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parameter 'line' has type 'string' but expected 'integer'")

	err = ValidateParams("op", testSchema(t), map[string]any{})
	require.Error(t, err)
	assert.Equal(t, "op: path: missing required parameter", err.Error())
}

func TestJSONType(t *testing.T) {
	tests := []struct {
		v    any
		want string
	}{
		{nil, "null"},
		{"s", "string"},
		{true, "boolean"},
		{1, "number"},
		{uint8(1), "number"},
		{1.5, "number"},
		{json.Number("2"), "number"},
		{[]any{}, "array"},
		{[]string{"a"}, "array"},
		{map[string]any{}, "object"},
		{map[string]int{}, "object"},
		{struct{}{}, "object"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, jsonType(tt.v), "%#v", tt.v)
	}
}
