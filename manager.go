package oors

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
)

// moduleEntry is the manager's bookkeeping for one registered module.
type moduleEntry struct {
	name   string
	module Module
	config map[string]any
	ctx    *ModuleContext
	loaded *future[Capabilities]

	mu    sync.RWMutex
	state ModuleState
	hooks Hooks
}

func (e *moduleEntry) hook(name string) HookFunc {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hooks[name]
}

func (e *moduleEntry) addHook(name string, h HookFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks[name] = h
}

func (e *moduleEntry) setState(s ModuleState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

func (e *moduleEntry) getState() ModuleState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Manager owns the registered modules, their dependency graph and export
// maps, and drives bootstrap. A host creates one Manager and passes it
// around explicitly.
type Manager struct {
	mu      sync.RWMutex
	modules map[string]*moduleEntry
	order   []*moduleEntry
	values  map[string]any

	graph     *DependencyGraph
	exports   *ExportMap
	bus       *EventBus
	validator *Validator
	logger    Logger
	source    string

	// regMu is held for reading by each registration and for writing
	// while Bootstrap takes its snapshot.
	regMu        sync.RWMutex
	bootstrapped atomic.Bool
}

// NewManager creates a manager with no modules.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		modules: make(map[string]*moduleEntry),
		values:  make(map[string]any),
		graph:   NewDependencyGraph(),
		exports: NewExportMap(),
		logger:  NopLogger(),
		source:  "oors",
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.validator == nil {
		m.validator = NewValidator()
	}
	m.bus = NewEventBus(m.source)
	return m
}

// Logger returns the manager logger.
func (m *Manager) Logger() Logger { return m.logger }

// Validator returns the validator used for module configurations, so hosts
// and modules can register custom formats before registration.
func (m *Manager) Validator() *Validator { return m.validator }

// Events returns the manager's event bus.
func (m *Manager) Events() *EventBus { return m.bus }

// Graph returns the dependency graph recorded so far.
func (m *Manager) Graph() *DependencyGraph { return m.graph }

// On subscribes to a manager event. The returned function unsubscribes.
func (m *Manager) On(eventType string, h EventHandler) func() {
	return m.bus.On(eventType, h)
}

// Once subscribes to the next occurrence of a manager event.
func (m *Manager) Once(eventType string, h EventHandler) func() {
	return m.bus.Once(eventType, h)
}

// Register validates, registers and initializes modules in order. It stops
// at the first module that fails; modules registered before it stay
// registered. A Register racing with Bootstrap either completes before
// Bootstrap starts or fails with ErrAlreadyBootstrapped.
func (m *Manager) Register(modules ...Module) error {
	for _, mod := range modules {
		if err := m.register(mod); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) register(mod Module) error {
	if mod == nil {
		return ErrModuleNil
	}

	m.regMu.RLock()
	defer m.regMu.RUnlock()
	if m.bootstrapped.Load() {
		return fmt.Errorf("%w: cannot register %q", ErrAlreadyBootstrapped, mod.Name())
	}

	name := mod.Name()
	if name == "" {
		return ErrModuleNameEmpty
	}

	config, err := m.validator.ValidateModule(mod)
	if err != nil {
		m.logger.Error("Invalid module configuration", "module", name, "error", err)
		return err
	}

	if enabled, ok := config["enabled"].(bool); ok && !enabled {
		m.logger.Info("Module disabled, skipping", "module", name)
		return nil
	}

	hooks := Hooks{}
	if hp, ok := mod.(HookProvider); ok {
		for hookName, h := range hp.Hooks() {
			if _, _, err := ParseHookName(hookName); err != nil {
				return &ModuleError{Module: name, Phase: PhaseRegister, Err: err}
			}
			hooks[hookName] = h
		}
	}

	e := &moduleEntry{
		name:   name,
		module: mod,
		config: config,
		loaded: newFuture[Capabilities](),
		state:  StateRegistered,
		hooks:  hooks,
	}

	m.mu.Lock()
	if _, exists := m.modules[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateModule, name)
	}
	if err := m.exports.Declare(name); err != nil {
		m.mu.Unlock()
		return err
	}
	m.graph.AddNode(name)
	m.modules[name] = e
	m.order = append(m.order, e)
	m.mu.Unlock()

	m.logger.Debug("Registered module", "module", name, "type", fmt.Sprintf("%T", mod))
	m.emit(context.Background(), EventModuleRegistered, e)

	return m.connect(e)
}

// connect attaches the module context and runs Initialize.
func (m *Manager) connect(e *moduleEntry) error {
	ctx := context.Background()

	e.ctx = &ModuleContext{manager: m, entry: e, logger: &moduleLogger{name: e.name, logger: m.logger}}
	e.setState(StateConnected)

	m.emit(ctx, ModuleEvent(e.name, BeforeHook(string(PhaseInitialize))), e)
	if err := e.module.Initialize(e.ctx); err != nil {
		return m.fail(ctx, e, PhaseInitialize, err)
	}
	e.setState(StateInitialized)
	m.emit(ctx, ModuleEvent(e.name, AfterHook(string(PhaseInitialize))), e)

	m.logger.Info("Initialized module", "module", e.name)
	return nil
}

func (m *Manager) fail(ctx context.Context, e *moduleEntry, phase Phase, err error) error {
	e.setState(StateFailed)
	merr := &ModuleError{Module: e.name, Phase: phase, Err: err}
	e.loaded.reject(merr)

	m.logger.Error("Module failed", "module", e.name, "phase", phase, "error", err)
	if emitErr := m.bus.Emit(ctx, EventModuleFailed, e.name,
		ModulePayload{Module: e.name, State: StateFailed, Error: err.Error()}); emitErr != nil {
		m.logger.Warn("Event handler failed", "event", EventModuleFailed, "error", emitErr)
	}
	return merr
}

// emit publishes a module scoped lifecycle event. Handler errors are
// logged and do not affect the lifecycle.
func (m *Manager) emit(ctx context.Context, eventType string, e *moduleEntry) {
	payload := ModulePayload{Module: e.name, State: e.getState()}
	if err := m.bus.Emit(ctx, eventType, e.name, payload); err != nil {
		m.logger.Warn("Event handler failed", "event", eventType, "module", e.name, "error", err)
	}
}

// Bootstrap runs Setup for every registered module concurrently and waits
// for all of them. Modules order themselves by calling Dependency. The
// first module failure is returned as a *ModuleError; modules that already
// became ready stay ready.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.regMu.Lock()
	if !m.bootstrapped.CompareAndSwap(false, true) {
		m.regMu.Unlock()
		return ErrAlreadyBootstrapped
	}
	entries := m.entries()
	m.regMu.Unlock()

	m.logger.Info("Bootstrapping modules", "count", len(entries))

	if err := m.bus.EmitAsync(ctx, EventBeforeSetup, "", nil); err != nil {
		return fmt.Errorf("%s handlers failed: %w", EventBeforeSetup, err)
	}

	var (
		wg       sync.WaitGroup
		failMu   sync.Mutex
		rootErr  error
		firstErr error
	)
	for _, e := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.load(ctx, e); err != nil {
				failMu.Lock()
				defer failMu.Unlock()
				if firstErr == nil {
					firstErr = err
				}
				if rootErr == nil && !errors.Is(err, ErrDependencyFailed) {
					rootErr = err
				}
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		err := rootErr
		if err == nil {
			err = firstErr
		}
		if emitErr := m.bus.Emit(ctx, EventSetupFailed, "", map[string]string{"error": err.Error()}); emitErr != nil {
			m.logger.Warn("Event handler failed", "event", EventSetupFailed, "error", emitErr)
		}
		return err
	}

	if err := m.bus.EmitAsync(ctx, EventAfterSetup, "", nil); err != nil {
		return fmt.Errorf("%s handlers failed: %w", EventAfterSetup, err)
	}
	m.logger.Info("Bootstrap complete", "count", len(entries))
	return nil
}

// load runs one module's Setup and resolves its future.
func (m *Manager) load(ctx context.Context, e *moduleEntry) error {
	if e.getState() == StateFailed {
		// failed during Initialize, the future already carries the error
		_, err := e.loaded.await(ctx)
		return err
	}
	e.setState(StateBootstrapping)
	m.emit(ctx, ModuleEvent(e.name, BeforeHook(string(PhaseSetup))), e)

	if err := e.module.Setup(ctx, e.ctx); err != nil {
		return m.fail(ctx, e, PhaseSetup, err)
	}

	caps, err := m.exports.Snapshot(e.name)
	if err != nil {
		return m.fail(ctx, e, PhaseSetup, err)
	}
	e.setState(StateReady)
	e.loaded.resolve(caps)

	m.emit(ctx, ModuleEvent(e.name, AfterHook(string(PhaseSetup))), e)
	m.emit(ctx, EventModuleLoaded, e)
	m.logger.Debug("Module ready", "module", e.name, "exports", caps.Len())
	return nil
}

// dependency records the edge from -> to, then waits for to's setup.
func (m *Manager) dependency(ctx context.Context, from *moduleEntry, to string) (Capabilities, error) {
	target, err := m.declareDependency(from, to)
	if err != nil {
		return Capabilities{}, err
	}
	return m.await(ctx, from, target)
}

// declareDependency checks and records an edge without blocking.
func (m *Manager) declareDependency(from *moduleEntry, to string) (*moduleEntry, error) {
	if strings.TrimSpace(to) == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDependencyName, to)
	}
	if state := from.getState(); state != StateBootstrapping {
		return nil, fmt.Errorf("%w: %q is %s", ErrNotBootstrapping, from.name, state)
	}
	if err := m.graph.AddEdge(from.name, to); err != nil {
		return nil, err
	}
	m.logger.Debug("Dependency declared", "from", from.name, "to", to)
	return m.entry(to)
}

func (m *Manager) await(ctx context.Context, from, target *moduleEntry) (Capabilities, error) {
	caps, err := target.loaded.await(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Capabilities{}, fmt.Errorf("waiting for %q: %w", target.name, ctxErr)
		}
		return Capabilities{}, fmt.Errorf("%w: %q required by %q: %w", ErrDependencyFailed, target.name, from.name, err)
	}
	return caps, nil
}

func (m *Manager) entry(name string) (*moduleEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return e, nil
}

func (m *Manager) entries() []*moduleEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*moduleEntry(nil), m.order...)
}

// Get reads an exported value by dot separated path, returning def when the
// path is missing. Unknown modules are an error, and so is a module whose
// Setup has not completed (ErrNotReady). An empty path returns the module's
// Capabilities.
func (m *Manager) Get(module, path string, def any) (any, error) {
	return m.get("", module, path, def)
}

func (m *Manager) get(reader, module, path string, def any) (any, error) {
	if err := m.readable(reader, module); err != nil {
		return nil, err
	}
	caps, err := m.exports.Snapshot(module)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return caps, nil
	}
	return caps.Get(path, def), nil
}

// Capability reads a single exported key and fails with
// ErrUnknownCapability when the module never exported it.
func (m *Manager) Capability(module, key string) (any, error) {
	if err := m.readable("", module); err != nil {
		return nil, err
	}
	return m.exports.Read(module, key)
}

// Capabilities returns a snapshot of everything a module exported.
func (m *Manager) Capabilities(module string) (Capabilities, error) {
	if err := m.readable("", module); err != nil {
		return Capabilities{}, err
	}
	return m.exports.Snapshot(module)
}

// readable checks that reader may see module's exports: a module always
// sees its own, everyone else only once module is ready.
func (m *Manager) readable(reader, module string) error {
	e, err := m.entry(module)
	if err != nil {
		return err
	}
	if reader == module {
		return nil
	}
	if state := e.getState(); state != StateReady {
		return fmt.Errorf("%w: %q is %s", ErrNotReady, module, state)
	}
	return nil
}

// Module returns a registered module by name.
func (m *Manager) Module(name string) (Module, bool) {
	e, err := m.entry(name)
	if err != nil {
		return nil, false
	}
	return e.module, true
}

// Modules returns the registered modules in registration order.
func (m *Manager) Modules() []Module {
	entries := m.entries()
	out := make([]Module, len(entries))
	for i, e := range entries {
		out[i] = e.module
	}
	return out
}

// ModuleNames returns the registered module names in registration order.
func (m *Manager) ModuleNames() []string {
	entries := m.entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.name
	}
	return out
}

// HasModule reports whether name is registered.
func (m *Manager) HasModule(name string) bool {
	_, err := m.entry(name)
	return err == nil
}

// State returns the lifecycle state of a module.
func (m *Manager) State(name string) (ModuleState, bool) {
	e, err := m.entry(name)
	if err != nil {
		return "", false
	}
	return e.getState(), true
}

// ModuleConfig returns the normalized configuration of a module.
func (m *Manager) ModuleConfig(name string) (map[string]any, error) {
	e, err := m.entry(name)
	if err != nil {
		return nil, err
	}
	return maps.Clone(e.config), nil
}

// SetValue stores a host value shared with every module, e.g. the HTTP
// server or a database pool.
func (m *Manager) SetValue(key string, value any) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return m
}

// Value returns a shared host value.
func (m *Manager) Value(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}
