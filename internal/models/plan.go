package models

import "time"

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

type BlockStatus string

const (
	BlockStatusPending   BlockStatus = "pending"
	BlockStatusCompleted BlockStatus = "completed"
	BlockStatusCancelled BlockStatus = "cancelled"
)

func (s BlockStatus) Valid() bool {
	switch s {
	case BlockStatusPending, BlockStatusCompleted, BlockStatusCancelled:
		return true
	}
	return false
}

// TimeBlock is a scheduled unit of work. StartTime must be before EndTime.
type TimeBlock struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Priority    Priority    `json:"priority"`
	Tags        []string    `json:"tags"`
	StartTime   time.Time   `json:"startTime"`
	EndTime     time.Time   `json:"endTime"`
	Status      BlockStatus `json:"status"`
}

// Duration returns the scheduled length of the block.
func (b TimeBlock) Duration() time.Duration {
	return b.EndTime.Sub(b.StartTime)
}

// Overlaps reports whether two blocks share any instant.
func (b TimeBlock) Overlaps(other TimeBlock) bool {
	return b.StartTime.Before(other.EndTime) && other.StartTime.Before(b.EndTime)
}

func (b TimeBlock) Clone() TimeBlock {
	c := b
	if b.Tags != nil {
		c.Tags = append([]string{}, b.Tags...)
	}
	return c
}

// Plan is a named, independent timeline. Blocks keep insertion order.
type Plan struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Blocks    []TimeBlock `json:"blocks"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// BlockIndex returns the position of the block with the given id, or -1.
func (p *Plan) BlockIndex(id string) int {
	for i := range p.Blocks {
		if p.Blocks[i].ID == id {
			return i
		}
	}
	return -1
}

func (p *Plan) Clone() *Plan {
	c := *p
	c.Blocks = make([]TimeBlock, len(p.Blocks))
	for i, b := range p.Blocks {
		c.Blocks[i] = b.Clone()
	}
	return &c
}

// PlanSummary is the listPlans projection of a plan.
type PlanSummary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	IsActive   bool   `json:"isActive"`
	BlockCount int    `json:"blockCount"`
}
