package models

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventBlockScheduled  EventType = "BLOCK_SCHEDULED"
	EventBlockUpdated    EventType = "BLOCK_UPDATED"
	EventBlockDeleted    EventType = "BLOCK_DELETED"
	EventPlanCreated     EventType = "PLAN_CREATED"
	EventPlanSwitched    EventType = "PLAN_SWITCHED"
	EventPlanDeleted     EventType = "PLAN_DELETED"
	EventWorkflowUpdated EventType = "WORKFLOW_UPDATED"
)

// Event is an immutable audit record. Payload is the JSON encoding of the
// type-specific body and is never rewritten after append.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Reason    string          `json:"reason,omitempty"`
}

// DecodePayload unmarshals the event payload into v.
func (e Event) DecodePayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// BlockUpdatedPayload is the body of BLOCK_UPDATED events.
type BlockUpdatedPayload struct {
	ID      string      `json:"id"`
	Updates BlockUpdate `json:"updates"`
}

// BlockDeletedPayload is the body of BLOCK_DELETED events.
type BlockDeletedPayload struct {
	ID  string   `json:"id,omitempty"`
	IDs []string `json:"ids,omitempty"`
}

// PlanPayload is the body of PLAN_CREATED, PLAN_SWITCHED and PLAN_DELETED events.
type PlanPayload struct {
	ID           string `json:"id"`
	Title        string `json:"title,omitempty"`
	PreviousID   string `json:"previousId,omitempty"`
	ActivePlanID string `json:"activePlanId,omitempty"`
}

// BlockUpdate carries the fields of a partial block update. Nil means unchanged.
type BlockUpdate struct {
	Title       *string      `json:"title,omitempty"`
	Description *string      `json:"description,omitempty"`
	Priority    *Priority    `json:"priority,omitempty"`
	Tags        *[]string    `json:"tags,omitempty"`
	StartTime   *time.Time   `json:"startTime,omitempty"`
	EndTime     *time.Time   `json:"endTime,omitempty"`
	Status      *BlockStatus `json:"status,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u BlockUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Priority == nil && u.Tags == nil &&
		u.StartTime == nil && u.EndTime == nil && u.Status == nil
}

// Apply returns a copy of b with the update merged in.
func (u BlockUpdate) Apply(b TimeBlock) TimeBlock {
	out := b.Clone()
	if u.Title != nil {
		out.Title = *u.Title
	}
	if u.Description != nil {
		out.Description = *u.Description
	}
	if u.Priority != nil {
		out.Priority = *u.Priority
	}
	if u.Tags != nil {
		out.Tags = append([]string{}, (*u.Tags)...)
	}
	if u.StartTime != nil {
		out.StartTime = *u.StartTime
	}
	if u.EndTime != nil {
		out.EndTime = *u.EndTime
	}
	if u.Status != nil {
		out.Status = *u.Status
	}
	return out
}
