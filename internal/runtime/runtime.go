// Package runtime hosts one mailbox goroutine per user. Every read and write
// of a user's State runs on that goroutine, one request at a time, and each
// write is persisted before the caller is released.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/julianstephens/flux/internal/logger"
	"github.com/julianstephens/flux/internal/metrics"
	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/state"
	"github.com/julianstephens/flux/internal/storage"
)

var (
	ErrClosed      = errors.New("runtime is closed")
	ErrMissingUser = errors.New("user id is required")
)

// EventSink receives events after they have been persisted.
type EventSink interface {
	Notify(ctx context.Context, userID string, events []models.Event) error
}

type Runtime struct {
	provider  storage.Provider
	sink      EventSink
	metrics   *metrics.Metrics
	storeOpts []state.Option
	queueSize int

	mu     sync.Mutex
	actors map[string]*actor
	quit   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

type Option func(*Runtime)

func WithEventSink(sink EventSink) Option {
	return func(r *Runtime) { r.sink = sink }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// WithStoreOptions forwards clock and id overrides to every State Store.
func WithStoreOptions(opts ...state.Option) Option {
	return func(r *Runtime) { r.storeOpts = append(r.storeOpts, opts...) }
}

// WithQueueSize sets the per-user mailbox buffer.
func WithQueueSize(n int) Option {
	return func(r *Runtime) { r.queueSize = n }
}

func New(provider storage.Provider, opts ...Option) *Runtime {
	r := &Runtime{
		provider:  provider,
		queueSize: 16,
		actors:    make(map[string]*actor),
		quit:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs fn with exclusive access to the user's State. If fn fails, the
// State is rolled back. If fn appended events, the State is saved before Do
// returns and a failed save rolls back as well. ctx only bounds the wait for
// a mailbox slot and is checked before fn starts; a call that has started
// always reports its own outcome.
func (r *Runtime) Do(ctx context.Context, userID string, fn func(*state.Store) error) error {
	return r.send(ctx, userID, request{ctx: ctx, fn: fn})
}

// View hands fn a copy of the user's State, ordered with all writes.
func (r *Runtime) View(ctx context.Context, userID string, fn func(models.State)) error {
	return r.send(ctx, userID, request{ctx: ctx, view: fn})
}

// Close stops every mailbox and waits for in-flight requests to finish.
func (r *Runtime) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.quit)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runtime) send(ctx context.Context, userID string, req request) error {
	if userID == "" {
		return ErrMissingUser
	}
	a, err := r.actor(userID)
	if err != nil {
		return err
	}

	req.reply = make(chan error, 1)
	select {
	case a.inbox <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return ErrClosed
	}

	// Once queued the request is answered truthfully: the actor either skips
	// it because ctx is already done or runs and persists it.
	select {
	case err := <-req.reply:
		return err
	case <-a.done:
		select {
		case err := <-req.reply:
			return err
		default:
			return ErrClosed
		}
	}
}

func (r *Runtime) actor(userID string) (*actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if a, ok := r.actors[userID]; ok {
		return a, nil
	}

	a := &actor{
		rt:     r,
		userID: userID,
		inbox:  make(chan request, r.queueSize),
		done:   make(chan struct{}),
	}
	r.actors[userID] = a
	r.wg.Add(1)
	go a.run()
	logger.Debug("Started user mailbox", "user", userID)
	return a, nil
}

// eventsSaved counts and publishes events that are now durable.
func (r *Runtime) eventsSaved(ctx context.Context, userID string, events []models.Event) {
	for _, e := range events {
		r.metrics.EventAppended(string(e.Type))
	}
	if r.sink == nil || len(events) == 0 {
		return
	}
	if err := r.sink.Notify(ctx, userID, events); err != nil {
		logger.Warn("Failed to publish events", "user", userID, "count", len(events), "error", err)
	}
}

type request struct {
	ctx   context.Context
	fn    func(*state.Store) error
	view  func(models.State)
	reply chan error
}

type actor struct {
	rt     *Runtime
	userID string
	inbox  chan request
	done   chan struct{}
	state  *models.State
}

func (a *actor) run() {
	defer a.rt.wg.Done()
	defer close(a.done)
	for {
		select {
		case <-a.rt.quit:
			logger.Debug("Stopped user mailbox", "user", a.userID)
			return
		case req := <-a.inbox:
			req.reply <- a.handle(req)
		}
	}
}

func (a *actor) handle(req request) error {
	if err := req.ctx.Err(); err != nil {
		return err
	}
	if err := a.load(req.ctx); err != nil {
		return err
	}
	if req.view != nil {
		req.view(a.state.Clone())
		return nil
	}
	return a.apply(req.ctx, req.fn)
}

// load reads the State on first use and bootstraps the default plan.
func (a *actor) load(ctx context.Context) error {
	if a.state != nil {
		return nil
	}
	st, err := a.rt.provider.LoadState(ctx, a.userID)
	if err != nil {
		return fmt.Errorf("failed to load state for %s: %w", a.userID, err)
	}
	a.state = &st
	logger.Debug("Loaded state", "user", a.userID, "plans", len(st.Plans), "events", len(st.Events))

	err = a.apply(ctx, func(s *state.Store) error {
		_, err := s.EnsureDefaultPlan()
		return err
	})
	if err != nil {
		a.state = nil
		return err
	}
	return nil
}

func (a *actor) apply(ctx context.Context, fn func(*state.Store) error) error {
	snapshot := a.state.Clone()
	before := len(a.state.Events)

	if err := call(fn, state.New(a.state, a.rt.storeOpts...)); err != nil {
		*a.state = snapshot
		return err
	}
	if len(a.state.Events) == before {
		return nil
	}

	if err := a.rt.provider.SaveState(ctx, a.userID, a.state.Clone()); err != nil {
		*a.state = snapshot
		a.rt.metrics.SaveFailed()
		logger.Error("Failed to save state", "user", a.userID, "error", err)
		return fmt.Errorf("failed to save state: %w", err)
	}

	events := append([]models.Event{}, a.state.Events[before:]...)
	a.rt.eventsSaved(context.WithoutCancel(ctx), a.userID, events)
	return nil
}

func call(fn func(*state.Store) error, s *state.Store) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("state operation panicked: %v", p)
		}
	}()
	return fn(s)
}
