package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/GoCodeAlone/oors"
	"github.com/GoCodeAlone/oors/config"
	"github.com/GoCodeAlone/oors/modules/eventlogger"
	"github.com/GoCodeAlone/oors/modules/router"
	"github.com/GoCodeAlone/oors/modules/scheduler"
)

// ErrUnknownModule is returned for configuration sections no built-in
// module claims.
var ErrUnknownModule = errors.New("no such module")

// builtins returns the modules the host knows, configured from doc. The
// event logger comes first so it sees the other registrations.
func builtins(doc *config.Document) []oors.Module {
	return []oors.Module{
		eventlogger.New(doc.Module(eventlogger.ModuleName)),
		router.New(doc.Module(router.ModuleName)),
		scheduler.New(doc.Module(scheduler.ModuleName)),
	}
}

// configTarget returns the typed configuration of a built-in module.
func configTarget(mod oors.Module) any {
	switch mod.(type) {
	case *router.Module:
		return &router.Config{}
	case *scheduler.Module:
		return &scheduler.Config{}
	case *eventlogger.Module:
		return &eventlogger.Config{}
	default:
		return &struct{}{}
	}
}

func newValidator() *oors.Validator {
	v := oors.NewValidator()
	scheduler.RegisterFormats(v)
	return v
}

// checkSections reports configuration sections without a module.
func checkSections(doc *config.Document, modules []oors.Module) error {
	var err error
	for _, name := range doc.ModuleNames() {
		if !slices.ContainsFunc(modules, func(m oors.Module) bool { return m.Name() == name }) {
			err = errors.Join(err, fmt.Errorf("%w: %s", ErrUnknownModule, name))
		}
	}
	return err
}

// app is a bootstrapped set of built-in modules.
type app struct {
	manager *oors.Manager
	logger  oors.Logger
}

func newApp(ctx context.Context, doc *config.Document, logger oors.Logger) (*app, error) {
	modules := builtins(doc)
	if err := checkSections(doc, modules); err != nil {
		return nil, err
	}

	m := oors.NewManager(
		oors.WithLogger(logger),
		oors.WithValidator(newValidator()),
		oors.WithEventSource("oors"),
	)
	if err := m.Register(modules...); err != nil {
		return nil, err
	}
	if err := m.Bootstrap(ctx); err != nil {
		return nil, err
	}
	return &app{manager: m, logger: logger}, nil
}

// handler returns the router handler and its port. It fails when the
// router module was disabled.
func (a *app) handler() (http.Handler, int, error) {
	h, err := a.manager.Get(router.ModuleName, router.ExportHandler, nil)
	if err != nil {
		return nil, 0, err
	}
	port, err := a.manager.Get(router.ModuleName, router.ExportPort, nil)
	if err != nil {
		return nil, 0, err
	}
	return h.(http.Handler), port.(int), nil
}

// configChanged republishes a configuration reload on the manager bus.
func (a *app) configChanged(ctx context.Context, doc *config.Document, changes []*config.Change) error {
	modules := config.ChangedModules(changes)
	a.logger.Info("Configuration changed", "modules", modules, "changes", len(changes))
	return a.manager.Events().Emit(ctx, oors.EventConfigChanged, "", map[string]any{
		"modules": modules,
		"changes": changes,
	})
}

// shutdown stops the scheduler and closes the event logger outputs.
func (a *app) shutdown(ctx context.Context) error {
	var err error
	if mod, ok := a.manager.Module(scheduler.ModuleName); ok {
		err = errors.Join(err, mod.(*scheduler.Module).Stop(ctx))
	}
	if mod, ok := a.manager.Module(eventlogger.ModuleName); ok {
		err = errors.Join(err, mod.(*eventlogger.Module).Close())
	}
	return err
}
