package job

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"coinchart/internal/metrics"
	"coinchart/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrUnknownTask      = errors.New("unknown task")
	ErrTaskExists       = errors.New("task already registered")
	ErrTaskBusy         = errors.New("task is already running")
	ErrInvalidTask      = errors.New("invalid task")
	ErrSchedulerStarted = errors.New("scheduler already started")
)

// Task is a named unit of periodic work.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// TaskStatus is a snapshot of a task's run history.
type TaskStatus struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval_ns"`
	Runs         int           `json:"runs"`
	Failures     int           `json:"failures"`
	Running      bool          `json:"running"`
	LastStarted  time.Time     `json:"last_started,omitempty"`
	LastDuration time.Duration `json:"last_duration_ns"`
	LastError    string        `json:"last_error,omitempty"`
}

type entry struct {
	task    Task
	running sync.Mutex

	mu     sync.Mutex
	status TaskStatus
}

// Scheduler runs each registered task once at Start and then on its own
// ticker. Runs of one task never overlap.
type Scheduler struct {
	tracer  trace.Tracer
	clock   Clock
	metrics *metrics.Recorder
	log     *logger.Logger

	mu      sync.Mutex
	entries map[string]*entry
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewScheduler(tracer trace.Tracer, rec *metrics.Recorder, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		tracer:  tracer,
		clock:   realClock{},
		metrics: rec,
		log:     log,
		entries: make(map[string]*entry),
	}
}

// WithClock replaces the time source. Call before Start.
func (s *Scheduler) WithClock(c Clock) *Scheduler {
	s.clock = c
	return s
}

func (s *Scheduler) Register(t Task) error {
	if t.Name == "" || t.Interval <= 0 || t.Run == nil {
		return fmt.Errorf("%w: %q", ErrInvalidTask, t.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrSchedulerStarted
	}
	if _, ok := s.entries[t.Name]; ok {
		return fmt.Errorf("%w: %s", ErrTaskExists, t.Name)
	}
	s.entries[t.Name] = &entry{task: t, status: TaskStatus{Name: t.Name, Interval: t.Interval}}
	return nil
}

// Start launches one goroutine per task and returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrSchedulerStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, e := range s.entries {
		s.wg.Add(1)
		go s.loop(ctx, e)
	}
	s.log.Info("scheduler started", logger.Int("tasks", len(s.entries)))
	return nil
}

// Stop cancels every loop and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// RunNow runs a task synchronously and returns its error. It fails fast
// with ErrTaskBusy when the task is already running.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	if !e.running.TryLock() {
		return fmt.Errorf("%w: %s", ErrTaskBusy, name)
	}
	defer e.running.Unlock()
	return s.execute(ctx, e, "manual")
}

// Tasks returns status snapshots sorted by name.
func (s *Scheduler) Tasks() []TaskStatus {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]TaskStatus, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.status)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()

	s.scheduled(ctx, e)

	ticker := s.clock.NewTicker(e.task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.scheduled(ctx, e)
		}
	}
}

func (s *Scheduler) scheduled(ctx context.Context, e *entry) {
	if ctx.Err() != nil {
		return
	}
	e.running.Lock()
	defer e.running.Unlock()
	_ = s.execute(ctx, e, "scheduled")
}

// execute runs the task with the entry's run lock held.
func (s *Scheduler) execute(ctx context.Context, e *entry, trigger string) (err error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.run-task")
	defer span.End()
	span.SetAttributes(attribute.String("task", e.task.Name), attribute.String("trigger", trigger))

	start := s.clock.Now()
	e.mu.Lock()
	e.status.Running = true
	e.status.LastStarted = start
	e.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", e.task.Name, r)
			s.log.Error("task panic recovered", logger.String("task", e.task.Name), logger.String("stack", string(debug.Stack())))
		}

		elapsed := s.clock.Now().Sub(start)
		status := "ok"
		e.mu.Lock()
		e.status.Running = false
		e.status.Runs++
		e.status.LastDuration = elapsed
		e.status.LastError = ""
		if err != nil {
			status = "error"
			e.status.Failures++
			e.status.LastError = err.Error()
		}
		e.mu.Unlock()

		s.metrics.RecordTaskRun(e.task.Name, status, elapsed)
		if err != nil {
			span.RecordError(err)
			s.log.Error("task failed", logger.String("task", e.task.Name), logger.String("trigger", trigger),
				logger.Duration("duration", elapsed), logger.Error(err))
			return
		}
		s.log.Debug("task finished", logger.String("task", e.task.Name), logger.String("trigger", trigger),
			logger.Duration("duration", elapsed))
	}()

	return e.task.Run(ctx)
}
