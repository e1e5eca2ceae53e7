package router

import (
	"fmt"
	"strings"
	"time"

	"github.com/GoCodeAlone/oors"
)

// Config holds the configuration of the router module.
//
// Example YAML configuration:
//
//	modules:
//	  router:
//	    basePath: /api/v1
//	    port: 8080
//	    allowedOrigins: ["https://example.com"]
//	    allowCredentials: true
//	    timeout: 30s
type Config struct {
	// BasePath prefixes every route contributed through the routes
	// workflow. Empty mounts routes at the root.
	BasePath string `json:"basePath"`

	// Port the host serves the router handler on.
	Port int `json:"port" default:"8080"`

	// CORS settings. An origin of "*" allows every origin.
	AllowedOrigins   []string `json:"allowedOrigins" default:"[\"*\"]"`
	AllowedMethods   []string `json:"allowedMethods" default:"[\"GET\",\"POST\",\"PUT\",\"DELETE\",\"OPTIONS\"]"`
	AllowedHeaders   []string `json:"allowedHeaders" default:"[\"Origin\",\"Accept\",\"Content-Type\",\"X-Requested-With\",\"Authorization\"]"`
	AllowCredentials bool     `json:"allowCredentials"`
	MaxAge           int      `json:"maxAge" default:"300"`

	// Timeout bounds request handling, as a Go duration string.
	Timeout string `json:"timeout" default:"60s"`

	timeout time.Duration
}

// Validate implements oors.ConfigValidator.
func (c *Config) Validate() error {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return fmt.Errorf("timeout: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	c.timeout = d
	c.BasePath = strings.TrimRight(c.BasePath, "/")
	return nil
}

// RequestTimeout returns the parsed request timeout.
func (c *Config) RequestTimeout() time.Duration { return c.timeout }

// Schema is the JSON Schema of the router configuration.
func Schema() oors.ConfigSchema {
	stringList := func(def ...any) map[string]any {
		return map[string]any{
			"type":    "array",
			"items":   map[string]any{"type": "string", "minLength": 1},
			"default": def,
		}
	}
	return oors.ConfigSchema{
		"type": "object",
		"properties": map[string]any{
			"basePath":         map[string]any{"type": "string", "pattern": "^(/[^/\\s]+)*/?$", "default": ""},
			"port":             map[string]any{"type": "integer", "minimum": 1, "maximum": 65535, "default": 8080},
			"allowedOrigins":   stringList("*"),
			"allowedMethods":   stringList("GET", "POST", "PUT", "DELETE", "OPTIONS"),
			"allowedHeaders":   stringList("Origin", "Accept", "Content-Type", "X-Requested-With", "Authorization"),
			"allowCredentials": map[string]any{"type": "boolean", "default": false},
			"maxAge":           map[string]any{"type": "integer", "minimum": 0, "default": 300},
			"timeout":          map[string]any{"type": "string", "minLength": 2, "default": "60s"},
		},
		"additionalProperties": false,
	}
}
