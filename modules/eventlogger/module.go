// Package eventlogger logs every event published on the manager bus.
//
// The module subscribes to all events when it is initialized, so it sees
// the registration and lifecycle events of every module registered after
// it. Entries are written to the configured output targets (the module
// logger, the console or a file) and the most recent ones are kept in
// memory.
//
// # Configuration
//
//	eventlogger:
//	  logLevel: INFO
//	  includeData: true
//	  exclude: ["module:registered"]
//	  outputTargets:
//	    - type: file
//	      path: /var/log/oors-events.log
//	      format: json
//
// # Levels
//
// Events whose type ends in ":failed" are logged at ERROR, before and
// after hook events and registrations at DEBUG, everything else at INFO.
package eventlogger

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/GoCodeAlone/oors"
)

// ModuleName is the unique identifier for the eventlogger module.
const ModuleName = "eventlogger"

// ExportLogger is the export key of the module itself.
const ExportLogger = "logger"

// Module is the event logger module.
type Module struct {
	oors.BaseModule

	config      Config
	logger      oors.Logger
	outputs     []OutputTarget
	unsubscribe func()

	mu     sync.RWMutex
	recent []LogEntry
}

// New creates an event logger module with a raw configuration.
func New(config map[string]any) *Module {
	return &Module{BaseModule: oors.NewBaseModule(ModuleName, config)}
}

// ConfigSchema implements oors.SchemaProvider.
func (m *Module) ConfigSchema() oors.ConfigSchema { return Schema() }

// Initialize opens the output targets and subscribes to every event.
func (m *Module) Initialize(mc *oors.ModuleContext) error {
	m.logger = mc.Logger()
	if err := mc.DecodeConfig(&m.config); err != nil {
		return err
	}

	targets := m.config.OutputTargets
	if len(targets) == 0 {
		targets = []OutputTargetConfig{{Type: "logger", Level: m.config.LogLevel}}
	}
	for _, tc := range targets {
		out, err := NewOutputTarget(tc, m.logger)
		if err != nil {
			return errors.Join(err, m.closeOutputs())
		}
		m.outputs = append(m.outputs, out)
	}

	m.unsubscribe = mc.On(oors.EventAny, m.OnEvent)
	m.logger.Debug("Event logger subscribed", "outputs", len(m.outputs), "level", m.config.LogLevel)
	return nil
}

// Setup exports the module so others can read recent entries.
func (m *Module) Setup(ctx context.Context, mc *oors.ModuleContext) error {
	return mc.ExportValue(ExportLogger, m)
}

// OnEvent logs a single event. Output failures are reported on the module
// logger and never returned to the publisher.
func (m *Module) OnEvent(ctx context.Context, event oors.Event) error {
	if !m.shouldLogEvent(event) {
		return nil
	}
	entry := m.entry(event)

	m.mu.Lock()
	if m.config.BufferSize > 0 {
		m.recent = append(m.recent, entry)
		if over := len(m.recent) - m.config.BufferSize; over > 0 {
			m.recent = slices.Delete(m.recent, 0, over)
		}
	}
	outputs := slices.Clone(m.outputs)
	m.mu.Unlock()

	for _, out := range outputs {
		if err := out.WriteEvent(&entry); err != nil {
			m.logger.Error("Failed to write event to output target", "error", err, "eventType", event.Type())
		}
	}
	return nil
}

func (m *Module) entry(event oors.Event) LogEntry {
	entry := LogEntry{
		Timestamp: event.Time(),
		Level:     eventLevel(event.Type()),
		Type:      event.Type(),
		Source:    event.Source(),
		Subject:   event.Subject(),
		ID:        event.ID(),
	}
	if m.config.IncludeData && len(event.Data()) > 0 {
		var data any
		if err := event.DataAs(&data); err != nil {
			data = string(event.Data())
		}
		entry.Data = data
	}
	if ext := event.Extensions(); len(ext) > 0 {
		entry.Metadata = maps.Clone(ext)
	}
	return entry
}

// shouldLogEvent applies the prefix filters and the minimum level.
func (m *Module) shouldLogEvent(event oors.Event) bool {
	t := event.Type()
	if len(m.config.Include) > 0 && !hasAnyPrefix(t, m.config.Include) {
		return false
	}
	if hasAnyPrefix(t, m.config.Exclude) {
		return false
	}
	return shouldLogLevel(eventLevel(t), m.config.LogLevel)
}

// Recent returns the buffered entries, oldest first.
func (m *Module) Recent() []LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.recent)
}

// Close unsubscribes from the bus and closes the output targets.
func (m *Module) Close() error {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	return m.closeOutputs()
}

func (m *Module) closeOutputs() error {
	m.mu.Lock()
	outputs := m.outputs
	m.outputs = nil
	m.mu.Unlock()

	var err error
	for _, out := range outputs {
		err = errors.Join(err, out.Close())
	}
	return err
}

func eventLevel(eventType string) string {
	switch {
	case strings.HasSuffix(eventType, ":failed"):
		return "ERROR"
	case eventType == oors.EventModuleRegistered,
		strings.Contains(eventType, "before:"),
		strings.Contains(eventType, "after:"):
		return "DEBUG"
	default:
		return "INFO"
	}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
