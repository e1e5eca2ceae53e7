// Package scheduler provides a cron based job scheduler module.
//
// During Setup the module runs the "scheduler.jobs" workflow, so every
// registered module can contribute named jobs:
//
//	mc.AddHook("scheduler", "jobs", scheduler.Jobs.Handle(func(ctx context.Context, jc *scheduler.JobContext) ([]scheduler.Job, error) {
//		return []scheduler.Job{{Name: "cleanup", Schedule: "@hourly", Run: cleanup}}, nil
//	}))
//
// Schedules can be overridden and jobs disabled by name from configuration.
// Execution results are emitted as "module:scheduler:job:completed" and
// "module:scheduler:job:failed" events.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/GoCodeAlone/oors"
)

// ModuleName is the unique identifier for the scheduler module.
const ModuleName = "scheduler"

// Export keys
const (
	ExportScheduler = "scheduler"
	ExportEntries   = "entries"
)

// Module scoped event names.
const (
	EventJobsScheduled = "jobs:scheduled"
	EventJobCompleted  = "job:completed"
	EventJobFailed     = "job:failed"
)

// JobContext is passed to every jobs hook.
type JobContext struct {
	Location *time.Location
}

// Jobs is the workflow the scheduler runs during Setup.
var Jobs = oors.NewWorkflow[*JobContext, []Job](ModuleName + ".jobs")

// Module is the scheduler module.
type Module struct {
	oors.BaseModule

	config    Config
	scheduler *Scheduler
	logger    oors.Logger
}

// New creates a scheduler module with a raw configuration.
func New(config map[string]any) *Module {
	return &Module{BaseModule: oors.NewBaseModule(ModuleName, config)}
}

// ConfigSchema implements oors.SchemaProvider.
func (m *Module) ConfigSchema() oors.ConfigSchema { return Schema() }

// Initialize decodes the configuration and creates the scheduler.
func (m *Module) Initialize(mc *oors.ModuleContext) error {
	m.logger = mc.Logger()
	if err := mc.DecodeConfig(&m.config); err != nil {
		return err
	}

	m.scheduler = NewScheduler(
		WithLocation(m.config.Location()),
		WithLogger(m.logger),
		WithHistorySize(m.config.HistorySize),
		WithResultHandler(func(ctx context.Context, exec JobExecution) {
			event := EventJobCompleted
			if exec.Status == JobStatusFailed {
				event = EventJobFailed
			}
			if err := mc.Emit(ctx, event, exec); err != nil {
				m.logger.Warn("Job event handler failed", "job", exec.Job, "error", err)
			}
		}),
	)
	return nil
}

// Setup collects jobs from every module, schedules them and, unless
// autoStart is off, starts the scheduler.
func (m *Module) Setup(ctx context.Context, mc *oors.ModuleContext) error {
	contributed, err := Jobs.Run(ctx, mc.Manager(), nil, &JobContext{Location: m.config.Location()})
	if err != nil {
		return fmt.Errorf("collect jobs: %w", err)
	}

	names := mc.Manager().ModuleNames()
	seen := make(map[string]bool)
	for i, jobs := range contributed {
		for _, job := range jobs {
			seen[job.Name] = true
			if slices.Contains(m.config.Disabled, job.Name) {
				m.logger.Info("Job disabled", "job", job.Name, "module", names[i])
				continue
			}
			if schedule, ok := m.config.Schedules[job.Name]; ok {
				job.Schedule = schedule
			}
			if addErr := m.scheduler.Add(job); addErr != nil {
				err = errors.Join(err, fmt.Errorf("module %q: %w", names[i], addErr))
			}
		}
	}
	if err != nil {
		return err
	}
	for name := range m.config.Schedules {
		if !seen[name] {
			m.logger.Warn("Schedule override for unknown job", "job", name)
		}
	}

	if err := mc.Export(map[string]any{
		ExportScheduler: m.scheduler,
		ExportEntries:   m.scheduler.Names(),
	}); err != nil {
		return err
	}

	if m.config.AutoStart {
		if err := m.scheduler.Start(ctx); err != nil {
			return err
		}
	}
	return mc.Emit(ctx, EventJobsScheduled, map[string]any{"jobs": m.scheduler.Names()})
}

// Scheduler returns the underlying scheduler. It is nil before Initialize.
func (m *Module) Scheduler() *Scheduler { return m.scheduler }

// Stop stops the scheduler and waits for running jobs.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler == nil {
		return ErrNotInitialized
	}
	return m.scheduler.Stop(ctx)
}
