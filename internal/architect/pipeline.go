// Package architect turns a free-text goal into scheduled blocks: it asks the
// completion service for a task list, repairs the raw response and appends
// the resulting blocks to the active plan in one batch.
package architect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/julianstephens/flux/internal/constants"
	"github.com/julianstephens/flux/internal/llm"
	"github.com/julianstephens/flux/internal/logger"
	"github.com/julianstephens/flux/internal/metrics"
	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/repair"
	"github.com/julianstephens/flux/internal/state"
	"github.com/julianstephens/flux/internal/workflow"
)

var (
	ErrMissingParameters = errors.New("goal and user id are required")
	ErrNoTasks           = errors.New("no tasks extracted")
)

// Request asks for one decomposition run.
type Request struct {
	Goal   string
	UserID string
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Goal) == "" || strings.TrimSpace(r.UserID) == "" {
		return ErrMissingParameters
	}
	return nil
}

// Pipeline runs decompositions. Every State access goes through exec, so a
// run never holds its own copy of the State between steps.
type Pipeline struct {
	exec      workflow.Executor
	reporter  *workflow.Reporter
	completer llm.Completer
	metrics   *metrics.Metrics
	layout    Layout
	now       func() time.Time
	timeout   time.Duration

	wg sync.WaitGroup
}

type Option func(*Pipeline)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithLayout(l Layout) Option {
	return func(p *Pipeline) { p.layout = l }
}

// WithClock sets the time source used to place the first block.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithTimeout bounds each completion call. Zero leaves it to the provider.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

func New(exec workflow.Executor, reporter *workflow.Reporter, completer llm.Completer, opts ...Option) *Pipeline {
	p := &Pipeline{
		exec:      exec,
		reporter:  reporter,
		completer: completer,
		layout:    DefaultLayout(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start marks a new run as running and continues it in the background. The
// returned id identifies the run in WorkflowStatus.
func (p *Pipeline) Start(ctx context.Context, req Request) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	id, err := p.reporter.Begin(ctx, req.UserID)
	if err != nil {
		return "", err
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		_ = p.execute(context.WithoutCancel(ctx), req, id)
	}()
	return id, nil
}

// Run performs a whole decomposition before returning. The returned error is
// the cause recorded in WorkflowStatus when the run failed.
func (p *Pipeline) Run(ctx context.Context, req Request) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	id, err := p.reporter.Begin(ctx, req.UserID)
	if err != nil {
		return "", err
	}
	return id, p.execute(ctx, req, id)
}

// Wait blocks until every run started with Start has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) execute(ctx context.Context, req Request, id string) error {
	started := time.Now()

	if err := p.decompose(ctx, req, id); err != nil {
		logger.Error("Decomposition failed", "user", req.UserID, "workflow", id, "error", err)
		if _, ferr := p.reporter.Fail(ctx, req.UserID, id, err); ferr != nil {
			logger.Error("Failed to record workflow failure", "workflow", id, "error", ferr)
		}
		p.metrics.WorkflowFinished(string(models.WorkflowFailed), time.Since(started))
		return err
	}

	applied, err := p.reporter.Complete(ctx, req.UserID, id)
	if err != nil {
		logger.Error("Failed to record workflow completion", "workflow", id, "error", err)
		return err
	}
	if !applied {
		logger.Info("Workflow superseded before completion", "user", req.UserID, "workflow", id)
	}
	p.metrics.WorkflowFinished(string(models.WorkflowCompleted), time.Since(started))
	return nil
}

func (p *Pipeline) decompose(ctx context.Context, req Request, id string) error {
	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	raw, err := p.completer.Complete(callCtx, constants.DecompositionPrompt, req.Goal)
	if err != nil {
		return fmt.Errorf("completion failed: %w", err)
	}

	tasks, err := p.parse(raw)
	if err != nil {
		return err
	}

	if _, err := p.reporter.Advance(ctx, req.UserID, id, constants.ProgressStructuring, constants.MessageStructuring); err != nil {
		return err
	}

	reason := fmt.Sprintf("%s: %s", constants.TagArchitect, req.Goal)
	return p.exec.Do(ctx, req.UserID, func(s *state.Store) error {
		blocks := p.layout.Blocks(tasks, p.now())
		_, err := s.ScheduleBlocks(blocks, reason)
		return err
	})
}

func (p *Pipeline) parse(raw string) ([]Task, error) {
	var value any
	if arr, ok := topLevelArray(raw); ok {
		value = arr
		p.metrics.Repair("clean")
	} else {
		v, res, err := repair.ParseResult(raw)
		if err != nil {
			p.metrics.Repair("failed")
			return nil, err
		}
		if res.Healed() {
			logger.Debug("Healed truncated response",
				"closed_string", res.ClosedString,
				"backtracked", res.Backtracked,
				"closers", res.ClosedCount)
			p.metrics.Repair("healed")
		} else {
			p.metrics.Repair("clean")
		}
		value = v
	}

	tasks, err := ExtractTasks(value)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrNoTasks
	}
	return tasks, nil
}
