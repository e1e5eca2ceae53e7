// Package oors is a module orchestration kernel.
//
// A host registers independently written modules with a Manager. Each module
// is initialized synchronously at registration, then set up concurrently
// during Bootstrap. A module that needs another one calls
// ModuleContext.Dependency during Setup; the edge is checked for cycles
// before the caller blocks, and the call returns the capabilities the other
// module exported once its Setup has completed.
//
// Basic usage:
//
//	m := oors.NewManager(oors.WithLogger(logger))
//	if err := m.Register(router.New(cfg), &blog.Module{}); err != nil {
//		log.Fatal(err)
//	}
//	if err := m.Bootstrap(ctx); err != nil {
//		log.Fatal(err)
//	}
//	handler := m.Get("router", "handler", nil)
package oors

import "context"

// Module is a registrable unit of functionality.
type Module interface {
	// Name returns the unique identifier of the module. It is used for
	// dependency resolution, export lookups and hook scoping.
	Name() string

	// Initialize is called once, at registration, with the module's
	// connected context. It must not wait on other modules; dependency
	// declarations are not legal yet. This is where hooks into other
	// modules' workflows are usually added.
	Initialize(mc *ModuleContext) error

	// Setup is called concurrently for every module during Bootstrap. It
	// may call mc.Dependency to wait for other modules and mc.Export to
	// publish capabilities. The module becomes ready when Setup returns.
	Setup(ctx context.Context, mc *ModuleContext) error
}

// Configurable is implemented by modules that carry a raw configuration
// tree, usually decoded from a config file.
type Configurable interface {
	Config() map[string]any
}

// SchemaProvider is implemented by modules that declare a JSON Schema for
// their configuration. The manager validates and normalizes the raw
// configuration against it at registration.
type SchemaProvider interface {
	ConfigSchema() ConfigSchema
}

// HookProvider is implemented by modules that respond to named hooks.
type HookProvider interface {
	Hooks() Hooks
}

// ModuleState is the lifecycle state of a registered module.
type ModuleState string

const (
	StateRegistered    ModuleState = "registered"
	StateConnected     ModuleState = "connected"
	StateInitialized   ModuleState = "initialized"
	StateBootstrapping ModuleState = "bootstrapping"
	StateReady         ModuleState = "ready"
	StateFailed        ModuleState = "failed"
)

// BaseModule can be embedded to get a name, a raw configuration and a hook
// map without writing the accessors. Embedders still implement Initialize
// and Setup.
type BaseModule struct {
	ModuleName string
	RawConfig  map[string]any
	ModuleHook Hooks
}

// NewBaseModule creates a BaseModule. A "name" key in config takes
// precedence over name.
func NewBaseModule(name string, config map[string]any) BaseModule {
	if n, ok := config["name"].(string); ok && n != "" {
		name = n
	}
	return BaseModule{ModuleName: name, RawConfig: config, ModuleHook: Hooks{}}
}

func (b *BaseModule) Name() string { return b.ModuleName }

func (b *BaseModule) Config() map[string]any { return b.RawConfig }

func (b *BaseModule) Hooks() Hooks { return b.ModuleHook }

// OnHook registers a handler on the module's own hook map.
func (b *BaseModule) OnHook(name string, h HookFunc) {
	if b.ModuleHook == nil {
		b.ModuleHook = Hooks{}
	}
	b.ModuleHook[name] = h
}
