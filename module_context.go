package oors

import (
	"context"
	"errors"
	"maps"
	"strings"
)

// ModuleContext is the handle a module receives from its manager. It is
// created once, when the module is registered.
type ModuleContext struct {
	manager *Manager
	entry   *moduleEntry
	logger  Logger
}

// Name returns the module name.
func (mc *ModuleContext) Name() string { return mc.entry.name }

// Manager returns the owning manager.
func (mc *ModuleContext) Manager() *Manager { return mc.manager }

// Logger returns a logger that tags every line with the module name.
func (mc *ModuleContext) Logger() Logger { return mc.logger }

// State returns the module's current lifecycle state.
func (mc *ModuleContext) State() ModuleState { return mc.entry.getState() }

// Config returns a copy of the validated, normalized configuration.
func (mc *ModuleContext) Config() map[string]any { return maps.Clone(mc.entry.config) }

// ConfigValue reads a dot separated path from the configuration.
func (mc *ModuleContext) ConfigValue(path string, def any) any {
	var cur any = mc.entry.config
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return def
		}
		if cur, ok = m[seg]; !ok {
			return def
		}
	}
	return cur
}

// DecodeConfig decodes the normalized configuration into a typed struct.
func (mc *ModuleContext) DecodeConfig(target any) error {
	err := DecodeConfig(mc.entry.config, target)
	var cve *ConfigValidationError
	if errors.As(err, &cve) {
		cve.Module = mc.entry.name
	}
	return err
}

// Dependency declares that this module needs name and blocks until name's
// Setup has completed, returning what it exported. It must be called from
// Setup. Cycles are reported immediately, before blocking.
func (mc *ModuleContext) Dependency(ctx context.Context, name string) (Capabilities, error) {
	return mc.manager.dependency(ctx, mc.entry, name)
}

// Dependencies declares every edge first, then waits for all of them.
func (mc *ModuleContext) Dependencies(ctx context.Context, names ...string) ([]Capabilities, error) {
	targets := make([]*moduleEntry, len(names))
	for i, name := range names {
		target, err := mc.manager.declareDependency(mc.entry, name)
		if err != nil {
			return nil, err
		}
		targets[i] = target
	}

	out := make([]Capabilities, len(targets))
	for i, target := range targets {
		caps, err := mc.manager.await(ctx, mc.entry, target)
		if err != nil {
			return nil, err
		}
		out[i] = caps
	}
	return out, nil
}

// Export merges values into this module's capability map. Existing keys
// are overwritten.
func (mc *ModuleContext) Export(values map[string]any) error {
	return mc.manager.exports.Export(mc.entry.name, values)
}

// ExportValue exports a single key.
func (mc *ModuleContext) ExportValue(key string, value any) error {
	return mc.manager.exports.ExportOrdered(mc.entry.name, []string{key}, map[string]any{key: value})
}

// Exported reads back a key this module exported.
func (mc *ModuleContext) Exported(key string) (any, error) {
	return mc.manager.exports.Read(mc.entry.name, key)
}

// Get reads a module's export by path. Another module's exports are only
// readable once its Setup has completed; use Dependency to wait for it.
func (mc *ModuleContext) Get(module, path string, def any) (any, error) {
	return mc.manager.get(mc.entry.name, module, path, def)
}

// OnHook registers a handler for a hook of any workflow on this module.
func (mc *ModuleContext) OnHook(name string, h HookFunc) error {
	if _, _, err := ParseHookName(name); err != nil {
		return err
	}
	mc.entry.addHook(name, h)
	return nil
}

// AddHook makes this module take part in a workflow created by module with
// CreateHook. hook may carry a "before:" or "after:" prefix.
func (mc *ModuleContext) AddHook(module, hook string, h HookFunc) error {
	phase, workflow, err := ParseHookName(hook)
	if err != nil {
		return err
	}
	name := module + "." + workflow
	switch phase {
	case HookBefore:
		name = BeforeHook(name)
	case HookAfter:
		name = AfterHook(name)
	}
	mc.entry.addHook(name, h)
	return nil
}

// CreateHook runs the workflow "<module>.<hook>" across every module and
// returns the collected results.
func (mc *ModuleContext) CreateHook(ctx context.Context, hook string, def DefaultAction, hc any) ([]any, error) {
	return mc.manager.RunWorkflow(ctx, mc.entry.name+"."+hook, def, hc)
}

// On subscribes to a manager event.
func (mc *ModuleContext) On(eventType string, h EventHandler) func() {
	return mc.manager.bus.On(eventType, h)
}

// Once subscribes to the next occurrence of a manager event.
func (mc *ModuleContext) Once(eventType string, h EventHandler) func() {
	return mc.manager.bus.Once(eventType, h)
}

// Emit publishes "module:<name>:<event>" on the manager bus.
func (mc *ModuleContext) Emit(ctx context.Context, event string, data any) error {
	return mc.manager.bus.Emit(ctx, ModuleEvent(mc.entry.name, event), mc.entry.name, data)
}

// Value returns a shared host value. See Manager.SetValue.
func (mc *ModuleContext) Value(key string) (any, bool) {
	return mc.manager.Value(key)
}

// SetValue stores a shared host value.
func (mc *ModuleContext) SetValue(key string, value any) {
	mc.manager.SetValue(key, value)
}

type moduleLogger struct {
	name   string
	logger Logger
}

func (l *moduleLogger) with(args []any) []any {
	return append([]any{"module", l.name}, args...)
}

func (l *moduleLogger) Info(msg string, args ...any)  { l.logger.Info(msg, l.with(args)...) }
func (l *moduleLogger) Error(msg string, args ...any) { l.logger.Error(msg, l.with(args)...) }
func (l *moduleLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, l.with(args)...) }
func (l *moduleLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, l.with(args)...) }
