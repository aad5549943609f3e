package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/flux/internal/architect"
	"github.com/julianstephens/flux/internal/logger"
	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/state"
	"github.com/julianstephens/flux/internal/tasks"
	"github.com/julianstephens/flux/internal/utils"
)

type parser func(d *Dispatcher, raw json.RawMessage) (action, error)

var parsers = map[string]parser{
	ScheduleBlock:   (*Dispatcher).scheduleBlock,
	UpdateBlock:     (*Dispatcher).updateBlock,
	DeleteBlock:     (*Dispatcher).deleteBlock,
	CompleteBlock:   (*Dispatcher).completeBlock,
	UncompleteBlock: (*Dispatcher).uncompleteBlock,
	UseArchitect:    (*Dispatcher).useArchitect,
	CreatePlan:      (*Dispatcher).createPlan,
	SwitchPlan:      (*Dispatcher).switchPlan,
	ListPlans:       (*Dispatcher).listPlans,
	DeletePlan:      (*Dispatcher).deletePlan,
	ClearPlan:       (*Dispatcher).clearPlan,
	GetLocalTime:    (*Dispatcher).getLocalTime,

	ScheduleTask:        (*Dispatcher).scheduleTask,
	GetScheduledTasks:   (*Dispatcher).getScheduledTasks,
	CancelScheduledTask: (*Dispatcher).cancelScheduledTask,
}

// mutate runs fn through the executor and returns the text it produced.
func (d *Dispatcher) mutate(ctx context.Context, userID string, fn func(*state.Store) (string, error)) (string, error) {
	var text string
	err := d.exec.Do(ctx, userID, func(s *state.Store) error {
		var err error
		text, err = fn(s)
		return err
	})
	return text, err
}

func (d *Dispatcher) formatClock(t time.Time) string {
	return utils.FormatClock(t.In(d.location))
}

func (d *Dispatcher) scheduleBlock(raw json.RawMessage) (action, error) {
	var in scheduleBlockInput
	if err := decode(ScheduleBlock, raw, &in); err != nil {
		return nil, err
	}
	b, err := in.block(ScheduleBlock, d.clock())
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, userID string) (string, error) {
		return d.mutate(ctx, userID, func(s *state.Store) (string, error) {
			plan, err := s.ActivePlan()
			if err != nil {
				return "", err
			}
			overlaps := d.validator.CheckOverlaps(plan.Blocks, b)

			scheduled, err := s.ScheduleBlocks([]models.TimeBlock{b}, "")
			if err != nil {
				return "", err
			}
			text := fmt.Sprintf("Scheduled %q from %s to %s.",
				scheduled[0].Title, d.formatClock(scheduled[0].StartTime), d.formatClock(scheduled[0].EndTime))
			if overlaps.HasConflicts() {
				text += " Warning: " + overlaps.Summary() + "."
			}
			return text, nil
		})
	}, nil
}

func (d *Dispatcher) updateBlock(raw json.RawMessage) (action, error) {
	var in updateBlockInput
	if err := decode(UpdateBlock, raw, &in); err != nil {
		return nil, err
	}
	upd, err := in.update(UpdateBlock, d.clock())
	if err != nil {
		return nil, err
	}
	return d.applyUpdate(in.ID, upd, func(b models.TimeBlock) string {
		return fmt.Sprintf("Updated block %q on timeline.", b.Title)
	}), nil
}

func (d *Dispatcher) completeBlock(raw json.RawMessage) (action, error) {
	return d.setStatus(CompleteBlock, raw, models.BlockStatusCompleted)
}

func (d *Dispatcher) uncompleteBlock(raw json.RawMessage) (action, error) {
	return d.setStatus(UncompleteBlock, raw, models.BlockStatusPending)
}

func (d *Dispatcher) setStatus(tool string, raw json.RawMessage, status models.BlockStatus) (action, error) {
	var in idInput
	if err := decode(tool, raw, &in); err != nil {
		return nil, err
	}
	p := &problems{tool: tool}
	requireString(p, "id", in.ID)
	if err := p.err(); err != nil {
		return nil, err
	}
	upd := models.BlockUpdate{Status: &status}
	return d.applyUpdate(in.ID, upd, func(b models.TimeBlock) string {
		return fmt.Sprintf("Marked %q as %s.", b.Title, status)
	}), nil
}

func (d *Dispatcher) applyUpdate(id string, upd models.BlockUpdate, describe func(models.TimeBlock) string) action {
	return func(ctx context.Context, userID string) (string, error) {
		return d.mutate(ctx, userID, func(s *state.Store) (string, error) {
			updated, found, err := s.UpdateBlock(id, upd)
			if err != nil {
				return "", err
			}
			if !found {
				return fmt.Sprintf("Block with ID %s not found on timeline.", id), nil
			}
			return describe(updated), nil
		})
	}
}

func (d *Dispatcher) deleteBlock(raw json.RawMessage) (action, error) {
	var in idInput
	if err := decode(DeleteBlock, raw, &in); err != nil {
		return nil, err
	}
	p := &problems{tool: DeleteBlock}
	requireString(p, "id", in.ID)
	if err := p.err(); err != nil {
		return nil, err
	}

	return func(ctx context.Context, userID string) (string, error) {
		return d.mutate(ctx, userID, func(s *state.Store) (string, error) {
			if _, err := s.DeleteBlock(in.ID); err != nil {
				return "", err
			}
			return fmt.Sprintf("Deleted block %s from timeline.", in.ID), nil
		})
	}, nil
}

// useArchitect starts the pipeline outside the executor; the pipeline
// enters it on its own for every write.
func (d *Dispatcher) useArchitect(raw json.RawMessage) (action, error) {
	var in goalInput
	if err := decode(UseArchitect, raw, &in); err != nil {
		return nil, err
	}
	p := &problems{tool: UseArchitect}
	requireString(p, "goal", in.Goal)
	if err := p.err(); err != nil {
		return nil, err
	}

	return func(ctx context.Context, userID string) (string, error) {
		if d.architect == nil {
			return "", fmt.Errorf("failed to trigger architect: no completion service configured")
		}
		id, err := d.architect.Start(ctx, architect.Request{Goal: strings.TrimSpace(in.Goal), UserID: userID})
		if err != nil {
			return "", fmt.Errorf("failed to trigger architect: %w", err)
		}
		logger.Debug("Architect run started", "user", userID, "workflow", id)
		return "Architect Workflow started. I'll break down this goal and add tasks to your timeline shortly.", nil
	}, nil
}

func (d *Dispatcher) createPlan(raw json.RawMessage) (action, error) {
	var in titleInput
	if err := decode(CreatePlan, raw, &in); err != nil {
		return nil, err
	}
	p := &problems{tool: CreatePlan}
	requireString(p, "title", in.Title)
	if err := p.err(); err != nil {
		return nil, err
	}

	return func(ctx context.Context, userID string) (string, error) {
		return d.mutate(ctx, userID, func(s *state.Store) (string, error) {
			plan, err := s.CreatePlan(strings.TrimSpace(in.Title))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Created plan %q (%s) and made it active.", plan.Title, plan.ID), nil
		})
	}, nil
}

func (d *Dispatcher) switchPlan(raw json.RawMessage) (action, error) {
	var in idInput
	if err := decode(SwitchPlan, raw, &in); err != nil {
		return nil, err
	}
	p := &problems{tool: SwitchPlan}
	requireString(p, "id", in.ID)
	if err := p.err(); err != nil {
		return nil, err
	}

	return func(ctx context.Context, userID string) (string, error) {
		return d.mutate(ctx, userID, func(s *state.Store) (string, error) {
			plan, err := s.SwitchPlan(in.ID)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Switched to plan %q.", plan.Title), nil
		})
	}, nil
}

func (d *Dispatcher) listPlans(raw json.RawMessage) (action, error) {
	var in emptyInput
	if err := decode(ListPlans, raw, &in); err != nil {
		return nil, err
	}

	return func(ctx context.Context, userID string) (string, error) {
		return d.mutate(ctx, userID, func(s *state.Store) (string, error) {
			if _, err := s.EnsureDefaultPlan(); err != nil {
				return "", err
			}
			return FormatPlans(s.ListPlans()), nil
		})
	}, nil
}

// FormatPlans renders plan summaries one per line.
func FormatPlans(plans []models.PlanSummary) string {
	if len(plans) == 0 {
		return "No plans found."
	}
	var sb strings.Builder
	sb.WriteString("Plans:")
	for _, p := range plans {
		fmt.Fprintf(&sb, "\n- %s (%s): %d blocks", p.Title, p.ID, p.BlockCount)
		if p.IsActive {
			sb.WriteString(" [active]")
		}
	}
	return sb.String()
}

func (d *Dispatcher) deletePlan(raw json.RawMessage) (action, error) {
	var in idInput
	if err := decode(DeletePlan, raw, &in); err != nil {
		return nil, err
	}
	p := &problems{tool: DeletePlan}
	requireString(p, "id", in.ID)
	if err := p.err(); err != nil {
		return nil, err
	}

	return func(ctx context.Context, userID string) (string, error) {
		return d.mutate(ctx, userID, func(s *state.Store) (string, error) {
			if err := s.DeletePlan(in.ID); err != nil {
				return "", err
			}
			active := s.State().ActivePlan()
			return fmt.Sprintf("Deleted plan %s. Active plan is %q.", in.ID, active.Title), nil
		})
	}, nil
}

func (d *Dispatcher) clearPlan(raw json.RawMessage) (action, error) {
	var in emptyInput
	if err := decode(ClearPlan, raw, &in); err != nil {
		return nil, err
	}

	return func(ctx context.Context, userID string) (string, error) {
		return d.mutate(ctx, userID, func(s *state.Store) (string, error) {
			plan, err := s.ActivePlan()
			if err != nil {
				return "", err
			}
			ids, err := s.ClearPlan()
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Cleared %d blocks from plan %q.", len(ids), plan.Title), nil
		})
	}, nil
}

// getLocalTime is read-only and never enters the executor.
func (d *Dispatcher) getLocalTime(raw json.RawMessage) (action, error) {
	var in locationInput
	if err := decode(GetLocalTime, raw, &in); err != nil {
		return nil, err
	}

	return func(context.Context, string) (string, error) {
		loc := d.location
		if in.Location != "" {
			if l, err := utils.LoadLocation(in.Location); err == nil {
				loc = l
			}
		}
		now := d.now().In(loc)
		return fmt.Sprintf("The local time in %s is %s.", loc, now.Format("Monday, January 2, 2006 3:04 PM MST")), nil
	}, nil
}

// taskTimeFormat renders task run times for the agent.
const taskTimeFormat = "Mon Jan 2, 2006 3:04 PM MST"

// scheduleTask and the two tools after it leave State alone; tasks live in
// the TaskScheduler.
func (d *Dispatcher) scheduleTask(raw json.RawMessage) (action, error) {
	var in scheduleTaskInput
	if err := decode(ScheduleTask, raw, &in); err != nil {
		return nil, err
	}
	spec, err := in.spec(ScheduleTask, d.clock())
	if err != nil {
		return nil, err
	}

	return func(_ context.Context, userID string) (string, error) {
		if d.tasks == nil {
			return "", ErrNoTaskScheduler
		}
		task, err := d.tasks.Schedule(userID, in.Description, spec)
		if err != nil {
			return "", fmt.Errorf("failed to schedule task: %w", err)
		}
		return fmt.Sprintf("Task %s scheduled for type %q, next run %s.",
			task.ID, task.Kind, task.NextRun.In(d.location).Format(taskTimeFormat)), nil
	}, nil
}

func (d *Dispatcher) getScheduledTasks(raw json.RawMessage) (action, error) {
	var in emptyInput
	if err := decode(GetScheduledTasks, raw, &in); err != nil {
		return nil, err
	}

	return func(_ context.Context, userID string) (string, error) {
		if d.tasks == nil {
			return "", ErrNoTaskScheduler
		}
		return FormatTasks(d.tasks.List(userID), d.location), nil
	}, nil
}

func (d *Dispatcher) cancelScheduledTask(raw json.RawMessage) (action, error) {
	var in taskIDInput
	if err := decode(CancelScheduledTask, raw, &in); err != nil {
		return nil, err
	}
	p := &problems{tool: CancelScheduledTask}
	requireString(p, "taskId", in.TaskID)
	if err := p.err(); err != nil {
		return nil, err
	}

	return func(_ context.Context, userID string) (string, error) {
		if d.tasks == nil {
			return "", ErrNoTaskScheduler
		}
		id := strings.TrimSpace(in.TaskID)
		if err := d.tasks.Cancel(userID, id); err != nil {
			return "", fmt.Errorf("failed to cancel task %s: %w", id, err)
		}
		return fmt.Sprintf("Task %s has been successfully canceled.", id), nil
	}, nil
}

// FormatTasks renders scheduled tasks one per line, times in loc.
func FormatTasks(list []tasks.Task, loc *time.Location) string {
	if len(list) == 0 {
		return "No scheduled tasks found."
	}
	var sb strings.Builder
	sb.WriteString("Scheduled tasks:")
	for _, t := range list {
		fmt.Fprintf(&sb, "\n- %s (%s): %s, next run %s", t.Description, t.ID, t.Kind, t.NextRun.In(loc).Format(taskTimeFormat))
		if t.Cron != "" {
			fmt.Fprintf(&sb, " [%s]", t.Cron)
		}
	}
	return sb.String()
}
