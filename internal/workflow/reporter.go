// Package workflow drives WorkflowStatus through idle, running and a
// terminal state, and back to idle.
package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/flux/internal/constants"
	"github.com/julianstephens/flux/internal/logger"
	"github.com/julianstephens/flux/internal/state"
)

// Executor runs fn with exclusive access to a user's State.
type Executor interface {
	Do(ctx context.Context, userID string, fn func(*state.Store) error) error
}

// Reporter applies workflow transitions through an Executor so that status
// changes are serialized with every other mutation of the same State.
type Reporter struct {
	exec         Executor
	dismissAfter time.Duration
	newID        func() string

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	wg     sync.WaitGroup
	closed bool
}

type Option func(*Reporter)

// WithDismissAfter sets the auto-dismiss delay. Zero disables auto-dismiss.
func WithDismissAfter(d time.Duration) Option {
	return func(r *Reporter) { r.dismissAfter = d }
}

// WithIDGenerator overrides the run id generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *Reporter) { r.newID = fn }
}

func NewReporter(exec Executor, opts ...Option) *Reporter {
	r := &Reporter{
		exec:         exec,
		dismissAfter: constants.DefaultDismissAfter,
		newID:        uuid.NewString,
		timers:       make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Begin starts a new run with a fresh id at the first checkpoint. Any run
// still in flight is superseded.
func (r *Reporter) Begin(ctx context.Context, userID string) (string, error) {
	id := r.newID()
	err := r.exec.Do(ctx, userID, func(s *state.Store) error {
		_, err := Start(s, id)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Advance moves run id to a new checkpoint. It reports false when the run
// has been superseded.
func (r *Reporter) Advance(ctx context.Context, userID, id string, progress int, message string) (bool, error) {
	var applied bool
	err := r.exec.Do(ctx, userID, func(s *state.Store) error {
		var err error
		applied, err = Progress(s, id, progress, message)
		return err
	})
	return applied, err
}

// Complete finishes run id and schedules its auto-dismiss.
func (r *Reporter) Complete(ctx context.Context, userID, id string) (bool, error) {
	var applied bool
	err := r.exec.Do(ctx, userID, func(s *state.Store) error {
		var err error
		applied, err = Finish(s, id)
		return err
	})
	if err == nil && applied {
		r.ScheduleDismiss(userID, id)
	}
	return applied, err
}

// Fail marks run id failed with cause and schedules its auto-dismiss.
func (r *Reporter) Fail(ctx context.Context, userID, id string, cause error) (bool, error) {
	var applied bool
	err := r.exec.Do(ctx, userID, func(s *state.Store) error {
		var err error
		applied, err = Abort(s, id, cause)
		return err
	})
	if err == nil && applied {
		r.ScheduleDismiss(userID, id)
	}
	return applied, err
}

// Dismiss resets a completed or failed run to idle. Idle and running
// workflows are left alone.
func (r *Reporter) Dismiss(ctx context.Context, userID string) (bool, error) {
	var applied bool
	err := r.exec.Do(ctx, userID, func(s *state.Store) error {
		var err error
		applied, err = Reset(s, s.Workflow().ID)
		return err
	})
	return applied, err
}

// ScheduleDismiss resets run id to idle after the configured delay, unless
// the stored id has changed or the run was already dismissed by then.
func (r *Reporter) ScheduleDismiss(userID, id string) {
	if r.dismissAfter <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	var timer *time.Timer
	r.wg.Add(1)
	timer = time.AfterFunc(r.dismissAfter, func() {
		defer r.wg.Done()
		r.mu.Lock()
		delete(r.timers, timer)
		r.mu.Unlock()

		err := r.exec.Do(context.Background(), userID, func(s *state.Store) error {
			applied, err := Reset(s, id)
			if err == nil && !applied {
				logger.Info("Ignoring stale workflow dismiss", "user", userID, "workflow", id)
			}
			return err
		})
		if err != nil {
			logger.Error("Workflow auto-dismiss failed", "user", userID, "workflow", id, "error", err)
		}
	})
	r.timers[timer] = struct{}{}
}

// Close cancels pending dismissals and waits for running ones.
func (r *Reporter) Close() {
	r.mu.Lock()
	r.closed = true
	for timer := range r.timers {
		if timer.Stop() {
			r.wg.Done()
		}
		delete(r.timers, timer)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
