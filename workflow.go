package oors

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"
)

// HookFunc handles a hook. For before/after hooks the result is ignored.
type HookFunc func(ctx context.Context, hc any) (any, error)

// Hooks maps hook names ("load", "before:load", "router.routes", ...) to
// handlers.
type Hooks map[string]HookFunc

// DefaultAction runs for every module that does not override a workflow.
type DefaultAction func(ctx context.Context, m Module, hc any) (any, error)

// HookPhase is the position of a hook inside a workflow run.
type HookPhase string

const (
	HookBefore HookPhase = "before"
	HookMain   HookPhase = "main"
	HookAfter  HookPhase = "after"
)

// BeforeHook returns the hook name of the before phase of workflow.
func BeforeHook(workflow string) string { return "before:" + workflow }

// AfterHook returns the hook name of the after phase of workflow.
func AfterHook(workflow string) string { return "after:" + workflow }

// ParseHookName splits a hook name into its phase and workflow.
func ParseHookName(name string) (HookPhase, string, error) {
	phase, workflow := HookMain, name
	if rest, ok := strings.CutPrefix(name, "before:"); ok {
		phase, workflow = HookBefore, rest
	} else if rest, ok := strings.CutPrefix(name, "after:"); ok {
		phase, workflow = HookAfter, rest
	}

	if workflow == "" {
		return "", "", fmt.Errorf("%w: %q has no workflow name", ErrInvalidHookName, name)
	}
	if strings.IndexFunc(workflow, unicode.IsSpace) >= 0 {
		return "", "", fmt.Errorf("%w: %q contains whitespace", ErrInvalidHookName, name)
	}
	return phase, workflow, nil
}

// Hookable lets a module take part in workflows through methods instead of
// a hook map. MainPhase reports handled=false to fall back to the default
// action.
type Hookable interface {
	BeforePhase(ctx context.Context, workflow string, hc any) error
	MainPhase(ctx context.Context, workflow string, hc any) (result any, handled bool, err error)
	AfterPhase(ctx context.Context, workflow string, hc any) error
}

// Invoke runs the hook called name of every module, in registration order.
func (m *Manager) Invoke(ctx context.Context, name string, hc any) error {
	phase, workflow, err := ParseHookName(name)
	if err != nil {
		return err
	}

	for _, e := range m.entries() {
		if err := m.invokeEntry(ctx, e, phase, workflow, name, hc); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) invokeEntry(ctx context.Context, e *moduleEntry, phase HookPhase, workflow, name string, hc any) error {
	if h := e.hook(name); h != nil {
		if _, err := h(ctx, hc); err != nil {
			return &HookError{Module: e.name, Hook: name, Err: err}
		}
		return nil
	}

	hookable, ok := e.module.(Hookable)
	if !ok {
		return nil
	}

	var err error
	switch phase {
	case HookBefore:
		err = hookable.BeforePhase(ctx, workflow, hc)
	case HookAfter:
		err = hookable.AfterPhase(ctx, workflow, hc)
	case HookMain:
		_, _, err = hookable.MainPhase(ctx, workflow, hc)
	}
	if err != nil {
		return &HookError{Module: e.name, Hook: name, Err: err}
	}
	return nil
}

// RunWorkflow runs a named workflow across every module. All before hooks
// finish first, in registration order. Then every module runs its override
// of the workflow, or def when it has none; these run concurrently and the
// results are returned in registration order. After hooks run last, in
// registration order. A nil def contributes a nil result.
func (m *Manager) RunWorkflow(ctx context.Context, name string, def DefaultAction, hc any) ([]any, error) {
	results, _, err := m.runWorkflow(ctx, name, def, hc)
	return results, err
}

// runWorkflow also returns the module name behind each result.
func (m *Manager) runWorkflow(ctx context.Context, name string, def DefaultAction, hc any) ([]any, []string, error) {
	if _, _, err := ParseHookName(name); err != nil {
		return nil, nil, err
	}

	m.logger.Debug("Running workflow", "workflow", name)

	if err := m.Invoke(ctx, BeforeHook(name), hc); err != nil {
		return nil, nil, err
	}

	entries := m.entries()
	results := make([]any, len(entries))
	errs := make([]error, len(entries))
	names := make([]string, len(entries))

	var wg sync.WaitGroup
	for i, e := range entries {
		names[i] = e.name
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = m.runMain(ctx, e, name, def, hc)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, nil, &HookError{Module: names[i], Hook: name, Err: err}
		}
	}

	if err := m.Invoke(ctx, AfterHook(name), hc); err != nil {
		return nil, nil, err
	}
	return results, names, nil
}

func (m *Manager) runMain(ctx context.Context, e *moduleEntry, name string, def DefaultAction, hc any) (any, error) {
	if h := e.hook(name); h != nil {
		return h(ctx, hc)
	}
	if hookable, ok := e.module.(Hookable); ok {
		res, handled, err := hookable.MainPhase(ctx, name, hc)
		if err != nil || handled {
			return res, err
		}
	}
	if def == nil {
		return nil, nil
	}
	return def(ctx, e.module, hc)
}

// Workflow is a typed handle on a named workflow: C is the context passed
// to every hook and R the result each module contributes.
type Workflow[C, R any] struct {
	Name string
}

// NewWorkflow creates a typed workflow handle.
func NewWorkflow[C, R any](name string) Workflow[C, R] {
	return Workflow[C, R]{Name: name}
}

// Run runs the workflow on m and converts every result to R.
func (w Workflow[C, R]) Run(ctx context.Context, m *Manager, def func(context.Context, Module, C) (R, error), hc C) ([]R, error) {
	var action DefaultAction
	if def != nil {
		action = func(ctx context.Context, mod Module, _ any) (any, error) {
			return def(ctx, mod, hc)
		}
	}

	raw, names, err := m.runWorkflow(ctx, w.Name, action, hc)
	if err != nil {
		return nil, err
	}

	out := make([]R, 0, len(raw))
	for i, r := range raw {
		if r == nil {
			var zero R
			out = append(out, zero)
			continue
		}
		typed, ok := r.(R)
		if !ok {
			return nil, fmt.Errorf("%w: workflow %q module %q returned %T",
				ErrHookResultType, w.Name, names[i], r)
		}
		out = append(out, typed)
	}
	return out, nil
}

// Handle adapts a typed main phase handler to a HookFunc.
func (w Workflow[C, R]) Handle(h func(context.Context, C) (R, error)) HookFunc {
	return func(ctx context.Context, hc any) (any, error) {
		c, err := w.context(hc)
		if err != nil {
			return nil, err
		}
		return h(ctx, c)
	}
}

// Observe adapts a typed before/after handler to a HookFunc.
func (w Workflow[C, R]) Observe(h func(context.Context, C) error) HookFunc {
	return func(ctx context.Context, hc any) (any, error) {
		c, err := w.context(hc)
		if err != nil {
			return nil, err
		}
		return nil, h(ctx, c)
	}
}

func (w Workflow[C, R]) context(hc any) (C, error) {
	c, ok := hc.(C)
	if !ok && hc != nil {
		var zero C
		return zero, fmt.Errorf("%w: workflow %q got context %T", ErrHookContextType, w.Name, hc)
	}
	return c, nil
}
