package scheduler

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/GoCodeAlone/oors"
	"github.com/robfig/cron/v3"
)

// Parser accepts standard five field expressions, an optional leading
// seconds field and descriptors such as "@hourly" or "@every 5m".
var Parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// JobFunc defines a function that can be executed as a job
type JobFunc func(ctx context.Context) error

// Job is a named recurring job contributed by a module.
type Job struct {
	Name     string
	Schedule string
	Run      JobFunc
}

// JobStatus represents the outcome of a job execution
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobExecution records details about a single execution of a job
type JobExecution struct {
	Job       string    `json:"job"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime,omitempty"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
}

// Duration is how long the execution took.
func (e JobExecution) Duration() time.Duration { return e.EndTime.Sub(e.StartTime) }

// Entry describes a scheduled job.
type Entry struct {
	Name     string     `json:"name"`
	Schedule string     `json:"schedule"`
	Next     time.Time  `json:"next,omitempty"`
	LastRun  *time.Time `json:"lastRun,omitempty"`
	Status   JobStatus  `json:"status,omitempty"`
}

type scheduledJob struct {
	job     Job
	entryID cron.EntryID
	history []JobExecution
}

// Scheduler runs named jobs on cron schedules.
type Scheduler struct {
	cron        *cron.Cron
	location    *time.Location
	logger      oors.Logger
	historySize int
	onResult    func(context.Context, JobExecution)

	mu      sync.RWMutex
	jobs    map[string]*scheduledJob
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// SchedulerOption defines a function that can configure a scheduler
type SchedulerOption func(*Scheduler)

// WithLocation sets the timezone schedules are evaluated in.
func WithLocation(loc *time.Location) SchedulerOption {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger oors.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHistorySize sets how many executions are kept per job.
func WithHistorySize(size int) SchedulerOption {
	return func(s *Scheduler) {
		if size >= 0 {
			s.historySize = size
		}
	}
}

// WithResultHandler is called after every execution.
func WithResultHandler(fn func(context.Context, JobExecution)) SchedulerOption {
	return func(s *Scheduler) {
		s.onResult = fn
	}
}

// NewScheduler creates a new scheduler
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		location:    time.UTC,
		logger:      oors.NopLogger(),
		historySize: 10,
		jobs:        make(map[string]*scheduledJob),
	}
	for _, opt := range opts {
		opt(s)
	}

	cl := cronLogger{s.logger}
	s.cron = cron.New(
		cron.WithLocation(s.location),
		cron.WithParser(Parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s
}

// Add schedules a job. Names are unique.
func (s *Scheduler) Add(job Job) error {
	if strings.TrimSpace(job.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidJob)
	}
	if job.Run == nil {
		return fmt.Errorf("%w: job %q has no function", ErrInvalidJob, job.Name)
	}
	schedule, err := Parser.Parse(job.Schedule)
	if err != nil {
		return fmt.Errorf("%w: job %q: %w", ErrInvalidJob, job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}

	sj := &scheduledJob{job: job}
	sj.entryID = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.execute(s.runContext(), sj)
	}))
	s.jobs[job.Name] = sj

	s.logger.Debug("Scheduled job", "job", job.Name, "schedule", job.Schedule)
	return nil
}

// Remove unschedules a job.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sj, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	s.cron.Remove(sj.entryID)
	delete(s.jobs, name)
	return nil
}

// Entries lists the scheduled jobs sorted by name. Next is zero until the
// scheduler is started.
func (s *Scheduler) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.jobs))
	for name, sj := range s.jobs {
		e := Entry{Name: name, Schedule: sj.job.Schedule, Next: s.cron.Entry(sj.entryID).Next}
		if n := len(sj.history); n > 0 {
			last := sj.history[n-1]
			e.LastRun = &last.StartTime
			e.Status = last.Status
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Names returns the scheduled job names in sorted order.
func (s *Scheduler) Names() []string {
	entries := s.Entries()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

// History returns the recorded executions of a job, oldest first.
func (s *Scheduler) History(name string) ([]JobExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sj, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return slices.Clone(sj.history), nil
}

// RunNow executes a job synchronously outside of its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobExecution, error) {
	s.mu.RLock()
	sj, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return JobExecution{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	exec := s.execute(ctx, sj)
	if exec.Status == JobStatusFailed {
		return exec, fmt.Errorf("job %q: %s", name, exec.Error)
	}
	return exec, nil
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.logger.Info("Starting scheduler", "jobs", len(s.jobs), "location", s.location.String())
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.cron.Start()
	s.started = true
	return nil
}

// Stop stops scheduling, cancels running jobs and waits for them to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler")
	cancel()
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler shutdown timed out")
		return ErrStopTimeout
	}
}

// Running reports whether the scheduler was started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

func (s *Scheduler) runContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// execute runs a job and records its execution
func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob) JobExecution {
	s.logger.Debug("Executing job", "job", sj.job.Name)

	exec := JobExecution{Job: sj.job.Name, StartTime: time.Now(), Status: JobStatusRunning}
	err := sj.job.Run(ctx)
	exec.EndTime = time.Now()
	if err != nil {
		exec.Status = JobStatusFailed
		exec.Error = err.Error()
		s.logger.Error("Job execution failed", "job", sj.job.Name, "error", err)
	} else {
		exec.Status = JobStatusCompleted
		s.logger.Debug("Job execution completed", "job", sj.job.Name, "duration", exec.Duration())
	}

	s.mu.Lock()
	if s.historySize > 0 {
		sj.history = append(sj.history, exec)
		if over := len(sj.history) - s.historySize; over > 0 {
			sj.history = slices.Delete(sj.history, 0, over)
		}
	}
	s.mu.Unlock()

	if s.onResult != nil {
		s.onResult(ctx, exec)
	}
	return exec
}

// cronLogger adapts oors.Logger to cron.Logger.
type cronLogger struct {
	logger oors.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
