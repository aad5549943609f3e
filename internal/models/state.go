package models

// State is the root aggregate for one user. If Plans is non-empty,
// ActivePlanID names one of its keys.
type State struct {
	Plans        map[string]*Plan `json:"plans"`
	ActivePlanID string           `json:"activePlanId,omitempty"`
	Events       []Event          `json:"events"`
	Workflow     *WorkflowStatus  `json:"workflow,omitempty"`
}

func NewState() State {
	return State{
		Plans:  make(map[string]*Plan),
		Events: []Event{},
	}
}

// ActivePlan returns the active plan or nil.
func (s *State) ActivePlan() *Plan {
	if s.ActivePlanID == "" {
		return nil
	}
	return s.Plans[s.ActivePlanID]
}

// RecentEvents returns up to n events, newest first.
func (s *State) RecentEvents(n int) []Event {
	if n <= 0 || n > len(s.Events) {
		n = len(s.Events)
	}
	out := make([]Event, 0, n)
	for i := len(s.Events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.Events[i])
	}
	return out
}

// Clone returns a deep copy. Event payloads are shared since they are never
// mutated after append.
func (s State) Clone() State {
	c := State{
		Plans:        make(map[string]*Plan, len(s.Plans)),
		ActivePlanID: s.ActivePlanID,
		Events:       append([]Event{}, s.Events...),
	}
	for id, p := range s.Plans {
		c.Plans[id] = p.Clone()
	}
	if s.Workflow != nil {
		w := *s.Workflow
		c.Workflow = &w
	}
	return c
}
