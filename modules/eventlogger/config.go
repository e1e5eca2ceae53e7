package eventlogger

import (
	"slices"
	"strings"

	"github.com/GoCodeAlone/oors"
)

var (
	levels  = []string{"DEBUG", "INFO", "WARN", "ERROR"}
	formats = []string{"text", "json", "structured"}
)

// Config holds configuration for the event logger module.
type Config struct {
	// LogLevel is the minimum level of events to log (DEBUG, INFO, WARN, ERROR)
	LogLevel string `json:"logLevel" default:"INFO"`

	// IncludeData adds the event payload to every entry.
	IncludeData bool `json:"includeData"`

	// Include keeps only events whose type starts with one of the prefixes.
	// Empty means all events.
	Include []string `json:"include"`

	// Exclude drops events whose type starts with one of the prefixes.
	Exclude []string `json:"exclude"`

	// BufferSize is how many recent entries are kept in memory.
	BufferSize int `json:"bufferSize"`

	// OutputTargets specifies where to output logs. Without targets,
	// entries go to the module logger.
	OutputTargets []OutputTargetConfig `json:"outputTargets"`
}

// OutputTargetConfig configures a specific output target for event logs.
type OutputTargetConfig struct {
	// Type is one of logger, console or file.
	Type string `json:"type"`

	// Level allows different log levels per target
	Level string `json:"level"`

	// Format is one of text, json or structured.
	Format string `json:"format"`

	// Path of the log file, file targets only.
	Path string `json:"path"`
}

// Validate implements oors.ConfigValidator.
func (c *Config) Validate() error {
	c.LogLevel = strings.ToUpper(c.LogLevel)
	if !slices.Contains(levels, c.LogLevel) {
		return ErrInvalidLogLevel
	}
	for i := range c.OutputTargets {
		if err := c.OutputTargets[i].Validate(); err != nil {
			return NewOutputTargetError(i, err)
		}
	}
	return nil
}

// Validate validates an OutputTargetConfig.
func (o *OutputTargetConfig) Validate() error {
	if o.Type == "" {
		o.Type = "console"
	}
	if o.Level == "" {
		o.Level = "DEBUG"
	}
	o.Level = strings.ToUpper(o.Level)
	if !slices.Contains(levels, o.Level) {
		return ErrInvalidLogLevel
	}
	if o.Format != "" && !slices.Contains(formats, o.Format) {
		return ErrInvalidFormat
	}

	switch o.Type {
	case "logger", "console":
	case "file":
		if o.Path == "" {
			return ErrMissingFilePath
		}
	default:
		return ErrInvalidOutputType
	}
	return nil
}

// Schema is the JSON Schema of the event logger configuration.
func Schema() oors.ConfigSchema {
	levelEnum := []any{"DEBUG", "INFO", "WARN", "ERROR", "debug", "info", "warn", "error"}
	return oors.ConfigSchema{
		"type": "object",
		"properties": map[string]any{
			"logLevel":    map[string]any{"type": "string", "enum": levelEnum, "default": "INFO"},
			"includeData": map[string]any{"type": "boolean", "default": false},
			"include":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "default": []any{}},
			"exclude":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "default": []any{}},
			"bufferSize":  map[string]any{"type": "integer", "minimum": 0, "default": 100},
			"outputTargets": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type":   map[string]any{"type": "string", "enum": []any{"logger", "console", "file"}, "default": "console"},
						"level":  map[string]any{"type": "string", "enum": levelEnum},
						"format": map[string]any{"type": "string", "enum": []any{"text", "json", "structured"}},
						"path":   map[string]any{"type": "string"},
					},
					"additionalProperties": false,
				},
				"default": []any{},
			},
		},
		"additionalProperties": false,
	}
}
