// Package config loads per-module configuration trees from files and the
// environment, and watches the files for changes.
package config

import (
	"context"
	"time"
)

// Source describes one configuration source and the result of its last load.
type Source struct {
	Name       string     `json:"name"`     // e.g., "environment", "app.yaml"
	Type       string     `json:"type"`     // "yaml", "toml", "json" or "env"
	Location   string     `json:"location"` // file path, or the env prefix
	Priority   int        `json:"priority"` // higher priority overrides lower
	Loaded     bool       `json:"loaded"`
	LastLoaded *time.Time `json:"last_loaded,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// ChangeType is the kind of change that happened to a configuration field.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is a single field that differs between two loads.
type Change struct {
	Module    string     `json:"module"`
	FieldPath string     `json:"field_path"` // dotted, e.g. "tls.cert"
	Type      ChangeType `json:"type"`
	OldValue  any        `json:"old_value,omitempty"`
	NewValue  any        `json:"new_value,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ReloadCallback is called when a reload produced changes.
type ReloadCallback func(ctx context.Context, doc *Document, changes []*Change) error
