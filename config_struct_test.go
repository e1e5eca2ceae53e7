package oors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDBConfig struct {
	DSN     string        `json:"dsn" required:"true"`
	Pool    int           `json:"pool" default:"4"`
	Timeout time.Duration `json:"timeout" default:"5s"`
	Tags    []string      `json:"tags" default:"[\"primary\"]"`
	Debug   bool          `json:"debug" default:"true"`
	Nested  struct {
		Region string `json:"region" default:"eu-west-1"`
	} `json:"nested"`
}

type validatedConfig struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

var errMinAboveMax = errors.New("min must not exceed max")

func (c *validatedConfig) Validate() error {
	if c.Min > c.Max {
		return errMinAboveMax
	}
	return nil
}

func TestDecodeConfig_DefaultsAndRequired(t *testing.T) {
	var cfg testDBConfig
	err := DecodeConfig(map[string]any{"dsn": "postgres://localhost", "pool": 16}, &cfg)
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost", cfg.DSN)
	assert.Equal(t, 16, cfg.Pool)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"primary"}, cfg.Tags)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "eu-west-1", cfg.Nested.Region)
}

func TestDecodeConfig_MissingRequired(t *testing.T) {
	var cfg testDBConfig
	err := DecodeConfig(map[string]any{}, &cfg)

	var cve *ConfigValidationError
	require.True(t, errors.As(err, &cve))
	require.Len(t, cve.Violations, 1)
	assert.Equal(t, "DSN", cve.Violations[0].Path)
}

func TestDecodeConfig_CustomValidation(t *testing.T) {
	var cfg validatedConfig
	err := DecodeConfig(map[string]any{"min": 5, "max": 1}, &cfg)
	assert.ErrorIs(t, err, ErrConfigValidation)
	assert.Contains(t, err.Error(), errMinAboveMax.Error())
}

func TestDecodeConfig_TargetMustBeStructPointer(t *testing.T) {
	var cfg testDBConfig
	assert.ErrorIs(t, DecodeConfig(nil, cfg), ErrConfigNotPointer)

	var s string
	assert.ErrorIs(t, DecodeConfig(nil, &s), ErrConfigNotPointer)
}

func TestDecodeConfig_TypeMismatch(t *testing.T) {
	var cfg testDBConfig
	err := DecodeConfig(map[string]any{"dsn": "x", "pool": "many"}, &cfg)
	assert.ErrorIs(t, err, ErrConfigValidation)
}
