// Package tasks keeps scheduled tasks per user in memory and fires them on
// time. One-shot tasks are dropped once they run; cron tasks re-arm.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/julianstephens/flux/internal/logger"
	"github.com/julianstephens/flux/internal/metrics"
)

type Kind string

const (
	KindScheduled Kind = "scheduled"
	KindDelayed   Kind = "delayed"
	KindCron      Kind = "cron"
)

var (
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrTaskNotFound    = errors.New("scheduled task not found")
	ErrClosed          = errors.New("task scheduler is closed")
)

// runTimeout bounds a single Runner call.
const runTimeout = 30 * time.Second

// Spec says when a task runs. At is read for KindScheduled, Delay for
// KindDelayed and Cron for KindCron.
type Spec struct {
	Kind  Kind
	At    time.Time
	Delay time.Duration
	Cron  string
}

type Task struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Description string    `json:"description"`
	Kind        Kind      `json:"type"`
	Cron        string    `json:"cron,omitempty"`
	NextRun     time.Time `json:"nextRun"`
	CreatedAt   time.Time `json:"createdAt"`
	Runs        int       `json:"runs"`
}

// Prompt is the message a fired task hands back to the agent.
func (t Task) Prompt() string {
	return "Running scheduled task: " + t.Description
}

// Runner is told about every task that fires.
type Runner interface {
	RunTask(ctx context.Context, t Task) error
}

type RunnerFunc func(ctx context.Context, t Task) error

func (f RunnerFunc) RunTask(ctx context.Context, t Task) error {
	return f(ctx, t)
}

type entry struct {
	task     Task
	schedule cron.Schedule
	timer    *time.Timer
}

type Scheduler struct {
	runner  Runner
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string

	mu     sync.Mutex
	tasks  map[string]map[string]*entry
	wg     sync.WaitGroup
	closed bool
}

type Option func(*Scheduler)

// WithRunner sets who is told when a task fires. Without one, fired tasks
// are only logged.
func WithRunner(r Runner) Option {
	return func(s *Scheduler) { s.runner = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithClock overrides the clock used for NextRun. Timers still use real
// durations.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Scheduler) { s.newID = fn }
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		now:   time.Now,
		newID: uuid.NewString,
		tasks: make(map[string]map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ParseCron parses a five-field cron expression or a descriptor such as
// @hourly or @every 15m.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("%w: cron %q: %v", ErrInvalidSchedule, expr, err)
	}
	return sched, nil
}

// Schedule registers a task for userID and arms its timer.
func (s *Scheduler) Schedule(userID, description string, spec Spec) (Task, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Task{}, fmt.Errorf("%w: description is required", ErrInvalidSchedule)
	}

	now := s.now()
	e := &entry{task: Task{
		UserID:      userID,
		Description: description,
		Kind:        spec.Kind,
		CreatedAt:   now,
	}}
	switch spec.Kind {
	case KindScheduled:
		if !spec.At.After(now) {
			return Task{}, fmt.Errorf("%w: %s is not in the future", ErrInvalidSchedule, spec.At.Format(time.RFC3339))
		}
		e.task.NextRun = spec.At
	case KindDelayed:
		if spec.Delay <= 0 {
			return Task{}, fmt.Errorf("%w: delay must be positive", ErrInvalidSchedule)
		}
		e.task.NextRun = now.Add(spec.Delay)
	case KindCron:
		sched, err := ParseCron(spec.Cron)
		if err != nil {
			return Task{}, err
		}
		next := sched.Next(now)
		if next.IsZero() {
			return Task{}, fmt.Errorf("%w: cron %q never fires", ErrInvalidSchedule, spec.Cron)
		}
		e.schedule = sched
		e.task.Cron = strings.TrimSpace(spec.Cron)
		e.task.NextRun = next
	default:
		return Task{}, fmt.Errorf("%w: unknown type %q", ErrInvalidSchedule, spec.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Task{}, ErrClosed
	}
	e.task.ID = s.newID()
	if s.tasks[userID] == nil {
		s.tasks[userID] = make(map[string]*entry)
	}
	s.tasks[userID][e.task.ID] = e
	s.arm(e, e.task.NextRun.Sub(now))

	logger.Info("Scheduled task", "user", userID, "task", e.task.ID, "type", e.task.Kind, "next", e.task.NextRun)
	return e.task, nil
}

// List returns the user's tasks, soonest first.
func (s *Scheduler) List(userID string) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks[userID]))
	for _, e := range s.tasks[userID] {
		out = append(out, e.task)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextRun.Equal(out[j].NextRun) {
			return out[i].NextRun.Before(out[j].NextRun)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Cancel removes a task. A run already under way is not interrupted.
func (s *Scheduler) Cancel(userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[userID][id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	s.removeLocked(e)
	logger.Info("Canceled scheduled task", "user", userID, "task", id)
	return nil
}

// Close cancels every task and waits for runs in flight.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for _, byID := range s.tasks {
		for _, e := range byID {
			s.removeLocked(e)
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// arm starts e's timer. Callers hold s.mu.
func (s *Scheduler) arm(e *entry, delay time.Duration) {
	s.wg.Add(1)
	e.timer = time.AfterFunc(delay, func() { s.fire(e) })
}

// removeLocked drops e and stops its timer if it has not fired yet.
func (s *Scheduler) removeLocked(e *entry) {
	if e.timer != nil && e.timer.Stop() {
		s.wg.Done()
	}
	byID := s.tasks[e.task.UserID]
	delete(byID, e.task.ID)
	if len(byID) == 0 {
		delete(s.tasks, e.task.UserID)
	}
}

func (s *Scheduler) fire(e *entry) {
	defer s.wg.Done()

	s.mu.Lock()
	if s.closed || s.tasks[e.task.UserID][e.task.ID] != e {
		s.mu.Unlock()
		return
	}
	e.task.Runs++
	fired := e.task
	e.timer = nil
	if e.schedule != nil {
		now := s.now()
		if next := e.schedule.Next(now); !next.IsZero() {
			e.task.NextRun = next
			s.arm(e, next.Sub(now))
		} else {
			s.removeLocked(e)
		}
	} else {
		s.removeLocked(e)
	}
	s.mu.Unlock()

	s.run(fired)
}

func (s *Scheduler) run(t Task) {
	logger.Info("Running scheduled task", "user", t.UserID, "task", t.ID, "description", t.Description)
	outcome := "ok"
	if s.runner != nil {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if err := s.runner.RunTask(ctx, t); err != nil {
			outcome = "failed"
			logger.Error("Scheduled task failed", "user", t.UserID, "task", t.ID, "error", err)
		}
	}
	s.metrics.TaskRun(string(t.Kind), outcome)
}
