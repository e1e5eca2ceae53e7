package oors

import "context"

// testModule is a configurable module whose lifecycle methods are plain
// function fields.
type testModule struct {
	BaseModule
	schema ConfigSchema
	init   func(mc *ModuleContext) error
	setup  func(ctx context.Context, mc *ModuleContext) error
}

func newTestModule(name string) *testModule {
	return &testModule{BaseModule: NewBaseModule(name, nil)}
}

func (m *testModule) withConfig(config map[string]any) *testModule {
	m.RawConfig = config
	return m
}

func (m *testModule) withSetup(fn func(ctx context.Context, mc *ModuleContext) error) *testModule {
	m.setup = fn
	return m
}

func (m *testModule) withInit(fn func(mc *ModuleContext) error) *testModule {
	m.init = fn
	return m
}

func (m *testModule) ConfigSchema() ConfigSchema { return m.schema }

func (m *testModule) Initialize(mc *ModuleContext) error {
	if m.init == nil {
		return nil
	}
	return m.init(mc)
}

func (m *testModule) Setup(ctx context.Context, mc *ModuleContext) error {
	if m.setup == nil {
		return nil
	}
	return m.setup(ctx, mc)
}

// hookableModule takes part in workflows through the Hookable methods.
type hookableModule struct {
	*testModule
	calls []string
}

func (m *hookableModule) BeforePhase(ctx context.Context, workflow string, hc any) error {
	m.calls = append(m.calls, "before:"+workflow)
	return nil
}

func (m *hookableModule) MainPhase(ctx context.Context, workflow string, hc any) (any, bool, error) {
	m.calls = append(m.calls, workflow)
	if workflow != "render" {
		return nil, false, nil
	}
	return m.Name() + " rendered", true, nil
}

func (m *hookableModule) AfterPhase(ctx context.Context, workflow string, hc any) error {
	m.calls = append(m.calls, "after:"+workflow)
	return nil
}
