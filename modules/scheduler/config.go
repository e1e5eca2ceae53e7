package scheduler

import (
	"fmt"
	"time"

	"github.com/GoCodeAlone/oors"
)

// FormatCron is the schema format name of cron expressions.
const FormatCron = "cron"

// Config defines the configuration for the scheduler module
type Config struct {
	// Timezone the schedules are evaluated in.
	Timezone string `json:"timezone" default:"UTC"`

	// AutoStart starts the cron loop at the end of Setup.
	AutoStart bool `json:"autoStart"`

	// Schedules overrides the schedule of contributed jobs by name.
	Schedules map[string]string `json:"schedules"`

	// Disabled names jobs that are collected but never scheduled.
	Disabled []string `json:"disabled"`

	// HistorySize is how many executions are kept per job.
	HistorySize int `json:"historySize"`

	location *time.Location
}

// Validate implements oors.ConfigValidator.
func (c *Config) Validate() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	c.location = loc
	return nil
}

// Location returns the parsed timezone.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// Schema is the JSON Schema of the scheduler configuration. Schedules use
// the "cron" format, see RegisterFormats.
func Schema() oors.ConfigSchema {
	return oors.ConfigSchema{
		"type": "object",
		"properties": map[string]any{
			"timezone":  map[string]any{"type": "string", "default": "UTC"},
			"autoStart": map[string]any{"type": "boolean", "default": true},
			"schedules": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string", "format": FormatCron},
				"default":              map[string]any{},
			},
			"disabled": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string", "format": "identifier"},
				"uniqueItems": true,
				"default":     []any{},
			},
			"historySize": map[string]any{"type": "integer", "minimum": 0, "maximum": 1000, "default": 10},
		},
		"additionalProperties": false,
	}
}

// RegisterFormats adds the "cron" format to v. Call it before registering
// the scheduler module, since configurations are validated at registration.
func RegisterFormats(v *oors.Validator) {
	v.RegisterFormat(FormatCron, func(value any) error {
		s, ok := value.(string)
		if !ok {
			return nil
		}
		if _, err := Parser.Parse(s); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", s, err)
		}
		return nil
	})
}
