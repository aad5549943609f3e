// Package tools maps agent tool calls onto State Store operations and holds
// calls that need a human decision until one arrives.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/flux/internal/architect"
	"github.com/julianstephens/flux/internal/constants"
	fluxerrors "github.com/julianstephens/flux/internal/errors"
	"github.com/julianstephens/flux/internal/logger"
	"github.com/julianstephens/flux/internal/metrics"
	"github.com/julianstephens/flux/internal/tasks"
	"github.com/julianstephens/flux/internal/validation"
	"github.com/julianstephens/flux/internal/workflow"
)

// Architect starts a background decomposition run.
type Architect interface {
	Start(ctx context.Context, req architect.Request) (string, error)
}

// TaskScheduler keeps each user's scheduled tasks.
type TaskScheduler interface {
	Schedule(userID, description string, spec tasks.Spec) (tasks.Task, error)
	List(userID string) []tasks.Task
	Cancel(userID, id string) error
}

type Status string

const (
	StatusDone    Status = "done"
	StatusPending Status = "pending"
)

// Result is what the agent sees for a tool call.
type Result struct {
	Status Status `json:"status"`
	Text   string `json:"result"`
	CallID string `json:"callId,omitempty"`
}

// PendingCall is a confirmation-required call awaiting a decision.
type PendingCall struct {
	ID        string          `json:"id"`
	Tool      string          `json:"tool"`
	Input     json.RawMessage `json:"input"`
	CreatedAt time.Time       `json:"createdAt"`

	run action
}

type action func(ctx context.Context, userID string) (string, error)

// deniedResult is returned verbatim when the user rejects a pending call.
const deniedResult = "Error: User denied access to tool execution"

type Dispatcher struct {
	exec      workflow.Executor
	architect Architect
	tasks     TaskScheduler
	metrics   *metrics.Metrics
	location  *time.Location
	now       func() time.Time
	newID     func() string
	validator *validation.Validator

	mu      sync.Mutex
	pending map[string]map[string]*PendingCall
}

type Option func(*Dispatcher)

// WithTaskScheduler enables scheduleTask, getScheduledTasks and
// cancelScheduledTask.
func WithTaskScheduler(ts TaskScheduler) Option {
	return func(d *Dispatcher) { d.tasks = ts }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLocation sets the zone used for bare times and getLocalTime fallbacks.
func WithLocation(loc *time.Location) Option {
	return func(d *Dispatcher) {
		if loc != nil {
			d.location = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithIDGenerator overrides the pending call id generator.
func WithIDGenerator(fn func() string) Option {
	return func(d *Dispatcher) { d.newID = fn }
}

func New(exec workflow.Executor, arch Architect, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		exec:      exec,
		architect: arch,
		location:  time.Local,
		now:       time.Now,
		newID:     uuid.NewString,
		validator: validation.New(),
		pending:   make(map[string]map[string]*PendingCall),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) clock() time.Time {
	return d.now().In(d.location)
}

// Dispatch validates and runs a tool call. Tools that require confirmation
// are parked and reported as pending. Failures of the tool itself come back
// as result text; only an unknown tool name is returned as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, name string, input json.RawMessage) (Result, error) {
	def, ok := Lookup(name)
	parse := parsers[name]
	if !ok || parse == nil {
		d.metrics.ToolCall(name, "unknown")
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	logger.Debug("Dispatching tool", "user", userID, "tool", name)

	run, err := parse(d, input)
	if err != nil {
		d.metrics.ToolCall(name, "invalid")
		logger.Debug("Rejected tool input", "tool", name, "error", err)
		return Result{Status: StatusDone, Text: fluxerrors.Format(err)}, nil
	}

	if def.RequiresConfirmation {
		call := &PendingCall{
			ID:        d.newID(),
			Tool:      name,
			Input:     normalizeInput(input),
			CreatedAt: d.now(),
			run:       run,
		}
		d.park(userID, call)
		d.metrics.ToolCall(name, "pending")
		logger.Info("Tool call awaiting confirmation", "user", userID, "tool", name, "call", call.ID)
		return Result{
			Status: StatusPending,
			CallID: call.ID,
			Text:   fmt.Sprintf("%s requires confirmation. Reply %q to run it or %q to cancel.", name, constants.ApprovalYes, constants.ApprovalNo),
		}, nil
	}

	return d.execute(ctx, userID, name, run), nil
}

// Resolve applies a human decision to a pending call. An approval runs the
// call and a denial discards it. Any other decision leaves it pending.
func (d *Dispatcher) Resolve(ctx context.Context, userID, callID, decision string) (Result, error) {
	if decision != constants.ApprovalYes && decision != constants.ApprovalNo {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}
	call, ok := d.take(userID, callID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrNoPendingCall, callID)
	}

	if decision == constants.ApprovalNo {
		d.metrics.ToolCall(call.Tool, "denied")
		logger.Info("Tool call denied", "user", userID, "tool", call.Tool, "call", callID)
		return Result{Status: StatusDone, Text: deniedResult, CallID: callID}, nil
	}

	logger.Info("Tool call approved", "user", userID, "tool", call.Tool, "call", callID)
	res := d.execute(ctx, userID, call.Tool, call.run)
	res.CallID = callID
	return res, nil
}

// Pending lists the user's parked calls, oldest first.
func (d *Dispatcher) Pending(userID string) []PendingCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]PendingCall, 0, len(d.pending[userID]))
	for _, c := range d.pending[userID] {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// EndSession discards every call the user left pending and returns how many
// there were. Discarded calls never run.
func (d *Dispatcher) EndSession(userID string) int {
	d.mu.Lock()
	n := len(d.pending[userID])
	delete(d.pending, userID)
	d.metrics.SetPending(d.countLocked())
	d.mu.Unlock()

	if n > 0 {
		logger.Info("Discarded pending tool calls", "user", userID, "count", n)
	}
	return n
}

func (d *Dispatcher) execute(ctx context.Context, userID, name string, run action) Result {
	text, err := run(ctx, userID)
	if err != nil {
		d.metrics.ToolCall(name, "error")
		logger.Warn("Tool failed", "user", userID, "tool", name, "error", err)
		return Result{Status: StatusDone, Text: fluxerrors.Format(err)}
	}
	d.metrics.ToolCall(name, "done")
	return Result{Status: StatusDone, Text: text}
}

func (d *Dispatcher) park(userID string, call *PendingCall) {
	d.mu.Lock()
	defer d.mu.Unlock()
	calls, ok := d.pending[userID]
	if !ok {
		calls = make(map[string]*PendingCall)
		d.pending[userID] = calls
	}
	calls[call.ID] = call
	d.metrics.SetPending(d.countLocked())
}

func (d *Dispatcher) take(userID, callID string) (*PendingCall, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	call, ok := d.pending[userID][callID]
	if !ok {
		return nil, false
	}
	delete(d.pending[userID], callID)
	if len(d.pending[userID]) == 0 {
		delete(d.pending, userID)
	}
	d.metrics.SetPending(d.countLocked())
	return call, true
}

func (d *Dispatcher) countLocked() int {
	n := 0
	for _, calls := range d.pending {
		n += len(calls)
	}
	return n
}
