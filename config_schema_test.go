package oors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var serverSchema = ConfigSchema{
	"type": "object",
	"properties": map[string]any{
		"host":  map[string]any{"type": "string", "default": "localhost"},
		"port":  map[string]any{"type": "integer", "minimum": 1, "maximum": 65535},
		"debug": map[string]any{"type": "boolean", "default": false},
		"tags":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"tls": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"enabled": map[string]any{"type": "boolean", "default": false},
				"cert":    map[string]any{"type": "string"},
			},
			"default": map[string]any{},
		},
	},
	"required": []string{"port"},
}

func TestValidator_DefaultsAndCoercion(t *testing.T) {
	v := NewValidator()

	out, err := v.Validate(serverSchema, map[string]any{
		"port":  "8080",
		"debug": "true",
		"tags":  "api",
	})
	require.NoError(t, err)

	assert.Equal(t, "localhost", out["host"])
	assert.Equal(t, int64(8080), out["port"])
	assert.Equal(t, true, out["debug"])
	assert.Equal(t, []any{"api"}, out["tags"])
	assert.Equal(t, map[string]any{"enabled": false}, out["tls"])
}

func TestValidator_CollectsEveryViolation(t *testing.T) {
	v := NewValidator()

	_, err := v.Validate(serverSchema, map[string]any{
		"port":  "not-a-number",
		"debug": "maybe",
		"tls":   map[string]any{"cert": []string{"a", "b"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigValidation)

	var cve *ConfigValidationError
	require.True(t, errors.As(err, &cve))

	paths := make([]string, 0, len(cve.Violations))
	for _, viol := range cve.Violations {
		paths = append(paths, viol.Path)
		assert.NotEmpty(t, viol.Message)
	}
	assert.Contains(t, paths, "/port")
	assert.Contains(t, paths, "/debug")
	assert.Contains(t, paths, "/tls/cert")
}

func TestValidator_MissingRequired(t *testing.T) {
	v := NewValidator()

	_, err := v.Validate(serverSchema, nil)
	var cve *ConfigValidationError
	require.True(t, errors.As(err, &cve))
	require.Len(t, cve.Violations, 1)
	assert.Contains(t, cve.Violations[0].Message, "port")
}

func TestValidator_NilSchemaAcceptsAnything(t *testing.T) {
	v := NewValidator()
	out, err := v.Validate(nil, map[string]any{"anything": []int{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, out["anything"])
}

func TestValidator_CustomFormat(t *testing.T) {
	v := NewValidator()
	v.RegisterFormat("even", func(val any) error {
		n, ok := val.(json.Number)
		if !ok {
			return nil
		}
		i, err := n.Int64()
		if err != nil || i%2 != 0 {
			return fmt.Errorf("%s is not even", n)
		}
		return nil
	})

	schema := ConfigSchema{
		"type": "object",
		"properties": map[string]any{
			"workers": map[string]any{"type": "integer", "format": "even"},
			"handle":  map[string]any{"type": "string", "format": "identifier"},
		},
	}

	_, err := v.Validate(schema, map[string]any{"workers": 4, "handle": "blogPosts"})
	require.NoError(t, err)

	_, err = v.Validate(schema, map[string]any{"workers": 3, "handle": "1bad-name"})
	var cve *ConfigValidationError
	require.True(t, errors.As(err, &cve))
	assert.Len(t, cve.Violations, 2)
}

func TestValidator_InvalidSchema(t *testing.T) {
	v := NewValidator()
	_, err := v.Validate(ConfigSchema{"type": 12}, map[string]any{})
	assert.ErrorIs(t, err, ErrSchemaInvalid)
}

func TestValidator_DoesNotMutateInput(t *testing.T) {
	v := NewValidator()
	raw := map[string]any{"port": "80"}
	_, err := v.Validate(serverSchema, raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"port": "80"}, raw)
}

func TestWithModuleProperties(t *testing.T) {
	v := NewValidator()
	schema := withModuleProperties(ConfigSchema{
		"properties":           map[string]any{"level": map[string]any{"type": "string"}},
		"additionalProperties": false,
	})

	out, err := v.Validate(schema, map[string]any{"name": "logger", "level": "info"})
	require.NoError(t, err)
	assert.Equal(t, true, out["enabled"])

	out, err = v.Validate(schema, map[string]any{"enabled": "false"})
	require.NoError(t, err)
	assert.Equal(t, false, out["enabled"])

	_, err = v.Validate(schema, map[string]any{"unknown": 1})
	assert.ErrorIs(t, err, ErrConfigValidation)
}

func TestCoerceTo(t *testing.T) {
	tests := []struct {
		target string
		in     any
		want   any
		ok     bool
	}{
		{"integer", "42", json.Number("42"), true},
		{"integer", "4.2", nil, false},
		{"number", "4.5", json.Number("4.5"), true},
		{"number", true, json.Number("1"), true},
		{"boolean", "false", false, true},
		{"boolean", json.Number("1"), true, true},
		{"boolean", "yes", nil, false},
		{"string", json.Number("7"), "7", true},
		{"string", false, "false", true},
		{"null", "", nil, true},
		{"array", "x", []any{"x"}, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.target, tt.in), func(t *testing.T) {
			got, ok := coerceTo(tt.target, tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestValidator_ValidateModule(t *testing.T) {
	v := NewValidator()
	mod := newTestModule("server").withConfig(map[string]any{"port": "9000", "enabled": "false"})
	mod.schema = serverSchema

	out, err := v.ValidateModule(mod)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), out["port"])
	assert.Equal(t, false, out["enabled"])
	assert.Equal(t, "localhost", out["host"])

	mod.RawConfig = map[string]any{"port": 0}
	_, err = v.ValidateModule(mod)
	var cve *ConfigValidationError
	require.ErrorAs(t, err, &cve)
	assert.Equal(t, "server", cve.Module)

	out, err = v.ValidateModule(newTestModule("plain"))
	require.NoError(t, err)
	assert.Equal(t, true, out["enabled"])
}

func TestValidator_PlainNumbers(t *testing.T) {
	v := NewValidator()
	schema := ConfigSchema{
		"type": "object",
		"properties": map[string]any{
			"port":  map[string]any{"type": "integer"},
			"ratio": map[string]any{"type": "number", "default": 0.5},
			"limits": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "number"},
			},
			"pool": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"size": map[string]any{"type": "integer", "default": 4},
				},
				"default": map[string]any{},
			},
		},
	}

	out, err := v.Validate(schema, map[string]any{"port": 8080, "limits": []any{1, 2.5}})
	require.NoError(t, err)
	assert.Equal(t, int64(8080), out["port"])
	assert.Equal(t, 0.5, out["ratio"])
	assert.Equal(t, []any{int64(1), 2.5}, out["limits"])
	assert.Equal(t, map[string]any{"size": int64(4)}, out["pool"])
}
