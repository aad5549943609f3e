// Package state owns every mutation of a user's State. Operations are not
// safe for concurrent use; callers serialize access per user.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/flux/internal/constants"
	"github.com/julianstephens/flux/internal/logger"
	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/validation"
)

var (
	ErrPlanNotFound         = errors.New("plan not found")
	ErrCannotDeleteLastPlan = errors.New("cannot delete the last remaining plan")
	ErrInvalidTimeRange     = errors.New("start time must be before end time")
	ErrInvalidBlock         = errors.New("invalid block")
)

// Store applies operations to a State value and appends the resulting events.
type Store struct {
	state     *models.State
	now       func() time.Time
	newID     func() string
	validator *validation.Validator
}

type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the generator used for plan, block and event ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// New wraps st. A nil map or event slice is initialized in place.
func New(st *models.State, opts ...Option) *Store {
	if st.Plans == nil {
		st.Plans = make(map[string]*models.Plan)
	}
	if st.Events == nil {
		st.Events = []models.Event{}
	}
	s := &Store{
		state:     st,
		now:       time.Now,
		newID:     uuid.NewString,
		validator: validation.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State exposes the underlying value for reads.
func (s *Store) State() *models.State {
	return s.state
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}

// NewID returns a fresh identifier from the store's generator.
func (s *Store) NewID() string {
	return s.newID()
}

// EnsureDefaultPlan creates the default plan when no plan exists and repairs
// a dangling active plan pointer. It reports whether anything changed.
func (s *Store) EnsureDefaultPlan() (bool, error) {
	if len(s.state.Plans) == 0 {
		_, err := s.createPlan(constants.DefaultPlanTitle, constants.DefaultPlanReason)
		return err == nil, err
	}
	if s.state.ActivePlan() == nil {
		first := s.orderedPlans()[0]
		logger.Warn("Active plan missing, reassigning", "was", s.state.ActivePlanID, "now", first.ID)
		s.state.ActivePlanID = first.ID
		return true, nil
	}
	return false, nil
}

// CreatePlan adds an empty plan and makes it active.
func (s *Store) CreatePlan(title string) (*models.Plan, error) {
	return s.createPlan(title, "")
}

func (s *Store) createPlan(title, reason string) (*models.Plan, error) {
	now := s.now()
	plan := &models.Plan{
		ID:        s.newID(),
		Title:     title,
		Blocks:    []models.TimeBlock{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	payload := models.PlanPayload{ID: plan.ID, Title: plan.Title, PreviousID: s.state.ActivePlanID}
	if err := s.appendEvent(models.EventPlanCreated, payload, reason); err != nil {
		return nil, err
	}
	s.state.Plans[plan.ID] = plan
	s.state.ActivePlanID = plan.ID
	logger.Debug("Plan created", "id", plan.ID, "title", plan.Title)
	return plan, nil
}

// SwitchPlan makes the plan with the given id active.
func (s *Store) SwitchPlan(id string) (*models.Plan, error) {
	plan, ok := s.state.Plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	payload := models.PlanPayload{ID: id, Title: plan.Title, PreviousID: s.state.ActivePlanID}
	if err := s.appendEvent(models.EventPlanSwitched, payload, ""); err != nil {
		return nil, err
	}
	s.state.ActivePlanID = id
	logger.Debug("Plan switched", "id", id)
	return plan, nil
}

// DeletePlan removes a plan. Deleting the active plan activates the first
// remaining plan in list order.
func (s *Store) DeletePlan(id string) error {
	plan, ok := s.state.Plans[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	if len(s.state.Plans) == 1 {
		return ErrCannotDeleteLastPlan
	}

	nextActive := s.state.ActivePlanID
	if nextActive == id {
		for _, p := range s.orderedPlans() {
			if p.ID != id {
				nextActive = p.ID
				break
			}
		}
	}

	payload := models.PlanPayload{ID: id, Title: plan.Title, ActivePlanID: nextActive}
	if err := s.appendEvent(models.EventPlanDeleted, payload, ""); err != nil {
		return err
	}
	delete(s.state.Plans, id)
	s.state.ActivePlanID = nextActive
	logger.Debug("Plan deleted", "id", id, "active", nextActive)
	return nil
}

// ListPlans returns plan summaries ordered by creation time.
func (s *Store) ListPlans() []models.PlanSummary {
	plans := s.orderedPlans()
	out := make([]models.PlanSummary, 0, len(plans))
	for _, p := range plans {
		out = append(out, models.PlanSummary{
			ID:         p.ID,
			Title:      p.Title,
			IsActive:   p.ID == s.state.ActivePlanID,
			BlockCount: len(p.Blocks),
		})
	}
	return out
}

func (s *Store) orderedPlans() []*models.Plan {
	plans := make([]*models.Plan, 0, len(s.state.Plans))
	for _, p := range s.state.Plans {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool {
		if !plans[i].CreatedAt.Equal(plans[j].CreatedAt) {
			return plans[i].CreatedAt.Before(plans[j].CreatedAt)
		}
		return plans[i].ID < plans[j].ID
	})
	return plans
}

// ActivePlan returns the active plan, creating the default plan if none exists.
func (s *Store) ActivePlan() (*models.Plan, error) {
	if _, err := s.EnsureDefaultPlan(); err != nil {
		return nil, err
	}
	return s.state.ActivePlan(), nil
}

// ScheduleBlocks appends blocks to the active plan as one batch. Missing ids,
// statuses, priorities and tags are filled in. An empty batch is a no-op.
func (s *Store) ScheduleBlocks(blocks []models.TimeBlock, reason string) ([]models.TimeBlock, error) {
	if len(blocks) == 0 {
		return nil, nil
	}

	prepared := make([]models.TimeBlock, len(blocks))
	for i, b := range blocks {
		b = b.Clone()
		if b.ID == "" {
			b.ID = s.newID()
		}
		if b.Status == "" {
			b.Status = models.BlockStatusPending
		}
		if b.Priority == "" {
			b.Priority = models.PriorityMedium
		}
		if b.Tags == nil {
			b.Tags = []string{}
		}
		if err := s.checkBlock(b); err != nil {
			return nil, err
		}
		prepared[i] = b
	}

	plan, err := s.ActivePlan()
	if err != nil {
		return nil, err
	}

	var payload any = prepared
	if len(prepared) == 1 {
		payload = prepared[0]
	}
	if err := s.appendEvent(models.EventBlockScheduled, payload, reason); err != nil {
		return nil, err
	}

	for _, b := range prepared {
		plan.Blocks = append(plan.Blocks, b.Clone())
	}
	plan.UpdatedAt = s.now()
	logger.Debug("Blocks scheduled", "plan", plan.ID, "count", len(prepared))
	return prepared, nil
}

// UpdateBlock merges upd into the block with the given id in the active plan.
// It reports false without error when no such block exists.
func (s *Store) UpdateBlock(id string, upd models.BlockUpdate) (models.TimeBlock, bool, error) {
	plan := s.state.ActivePlan()
	if plan == nil {
		return models.TimeBlock{}, false, nil
	}
	idx := plan.BlockIndex(id)
	if idx < 0 {
		return models.TimeBlock{}, false, nil
	}

	updated := upd.Apply(plan.Blocks[idx])
	updated.ID = id
	if err := s.checkBlock(updated); err != nil {
		return models.TimeBlock{}, false, err
	}

	payload := models.BlockUpdatedPayload{ID: id, Updates: upd}
	if err := s.appendEvent(models.EventBlockUpdated, payload, ""); err != nil {
		return models.TimeBlock{}, false, err
	}
	plan.Blocks[idx] = updated
	plan.UpdatedAt = s.now()
	logger.Debug("Block updated", "plan", plan.ID, "id", id)
	return updated.Clone(), true, nil
}

// DeleteBlock removes the block with the given id from the active plan. The
// event is appended whether or not the block existed.
func (s *Store) DeleteBlock(id string) (bool, error) {
	if err := s.appendEvent(models.EventBlockDeleted, models.BlockDeletedPayload{ID: id}, ""); err != nil {
		return false, err
	}
	plan := s.state.ActivePlan()
	if plan == nil {
		return false, nil
	}
	idx := plan.BlockIndex(id)
	if idx < 0 {
		logger.Debug("Block already absent", "id", id)
		return false, nil
	}
	plan.Blocks = append(plan.Blocks[:idx], plan.Blocks[idx+1:]...)
	plan.UpdatedAt = s.now()
	logger.Debug("Block deleted", "plan", plan.ID, "id", id)
	return true, nil
}

// ClearPlan removes every block of the active plan and returns their ids.
func (s *Store) ClearPlan() ([]string, error) {
	plan := s.state.ActivePlan()
	ids := []string{}
	if plan != nil {
		for _, b := range plan.Blocks {
			ids = append(ids, b.ID)
		}
	}
	if err := s.appendEvent(models.EventBlockDeleted, models.BlockDeletedPayload{IDs: ids}, "clear plan"); err != nil {
		return nil, err
	}
	if plan != nil {
		plan.Blocks = []models.TimeBlock{}
		plan.UpdatedAt = s.now()
	}
	return ids, nil
}

// Workflow returns the current status, or idle at 0% if none was ever set.
func (s *Store) Workflow() models.WorkflowStatus {
	if s.state.Workflow == nil {
		return models.WorkflowStatus{Status: models.WorkflowIdle}
	}
	return *s.state.Workflow
}

// SetWorkflowStatus merges patch into the current status and records the
// change. Progress is clamped to 0..100.
func (s *Store) SetWorkflowStatus(patch models.WorkflowPatch) (models.WorkflowStatus, error) {
	next := s.Workflow()
	if patch.ID != nil {
		next.ID = *patch.ID
	}
	if patch.Status != nil {
		next.Status = *patch.Status
	}
	if patch.Progress != nil {
		next.Progress = min(max(*patch.Progress, 0), 100)
	}
	if patch.Message != nil {
		next.Message = *patch.Message
	}
	if patch.Error != nil {
		next.Error = *patch.Error
	}
	if next.Status == "" {
		next.Status = models.WorkflowIdle
	}

	if err := s.appendEvent(models.EventWorkflowUpdated, next, ""); err != nil {
		return models.WorkflowStatus{}, err
	}
	s.state.Workflow = &next
	logger.Debug("Workflow updated", "id", next.ID, "status", next.Status, "progress", next.Progress)
	return next, nil
}

// RecentEvents returns up to n events, newest first.
func (s *Store) RecentEvents(n int) []models.Event {
	return s.state.RecentEvents(n)
}

func (s *Store) checkBlock(b models.TimeBlock) error {
	result := s.validator.ValidateBlock(b)
	if !result.HasConflicts() {
		return nil
	}
	if result.HasType(validation.ConflictInvalidTimeRange) {
		return fmt.Errorf("%w: %s", ErrInvalidTimeRange, b.Title)
	}
	return fmt.Errorf("%w: %s", ErrInvalidBlock, result.Summary())
}

func (s *Store) appendEvent(typ models.EventType, payload any, reason string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", typ, err)
	}
	s.state.Events = append(s.state.Events, models.Event{
		ID:        s.newID(),
		Type:      typ,
		Payload:   raw,
		Timestamp: s.now(),
		Reason:    reason,
	})
	return nil
}
