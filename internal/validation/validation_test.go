package validation

import (
	"testing"
	"time"

	"github.com/julianstephens/flux/internal/models"
)

func block(id, title string, start time.Time, minutes int) models.TimeBlock {
	return models.TimeBlock{
		ID:        id,
		Title:     title,
		Priority:  models.PriorityMedium,
		Tags:      []string{},
		StartTime: start,
		EndTime:   start.Add(time.Duration(minutes) * time.Minute),
		Status:    models.BlockStatusPending,
	}
}

func TestValidateBlock(t *testing.T) {
	validator := New()
	start := time.Date(2024, 1, 27, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(b *models.TimeBlock)
		want   ConflictType
	}{
		{name: "valid", mutate: func(b *models.TimeBlock) {}},
		{name: "missing title", mutate: func(b *models.TimeBlock) { b.Title = "  " }, want: ConflictMissingTitle},
		{name: "end before start", mutate: func(b *models.TimeBlock) { b.EndTime = b.StartTime.Add(-time.Minute) }, want: ConflictInvalidTimeRange},
		{name: "zero length", mutate: func(b *models.TimeBlock) { b.EndTime = b.StartTime }, want: ConflictInvalidTimeRange},
		{name: "bad priority", mutate: func(b *models.TimeBlock) { b.Priority = "urgent" }, want: ConflictInvalidPriority},
		{name: "bad status", mutate: func(b *models.TimeBlock) { b.Status = "done" }, want: ConflictInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := block("1", "Read", start, 30)
			tt.mutate(&b)
			result := validator.ValidateBlock(b)
			if tt.want == "" {
				if result.HasConflicts() {
					t.Errorf("ValidateBlock() conflicts = %v, want none", result.Conflicts)
				}
				return
			}
			if !result.HasType(tt.want) {
				t.Errorf("ValidateBlock() missing %s conflict, got %v", tt.want, result.Conflicts)
			}
		})
	}
}

func TestCheckOverlaps(t *testing.T) {
	validator := New()
	start := time.Date(2024, 1, 27, 9, 0, 0, 0, time.UTC)

	existing := []models.TimeBlock{
		block("a", "Standup", start, 30),
		block("b", "Lunch", start.Add(3*time.Hour), 60),
	}
	done := block("c", "Email", start.Add(time.Hour), 30)
	done.Status = models.BlockStatusCompleted
	existing = append(existing, done)

	tests := []struct {
		name      string
		candidate models.TimeBlock
		want      int
	}{
		{name: "overlaps standup", candidate: block("x", "Focus", start.Add(15*time.Minute), 30), want: 1},
		{name: "touching is not overlap", candidate: block("x", "Focus", start.Add(30*time.Minute), 30), want: 0},
		{name: "completed blocks ignored", candidate: block("x", "Focus", start.Add(time.Hour), 30), want: 0},
		{name: "spans two", candidate: block("x", "Deep work", start, 240), want: 2},
		{name: "same id skipped", candidate: block("a", "Standup", start, 30), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validator.CheckOverlaps(existing, tt.candidate)
			if len(result.Conflicts) != tt.want {
				t.Errorf("CheckOverlaps() = %d conflicts, want %d: %v", len(result.Conflicts), tt.want, result.Conflicts)
			}
		})
	}
}

func TestValidatePlan(t *testing.T) {
	validator := New()
	start := time.Date(2024, 1, 27, 9, 0, 0, 0, time.UTC)

	plan := &models.Plan{
		ID:    "p1",
		Title: "Today",
		Blocks: []models.TimeBlock{
			block("a", "Standup", start, 30),
			block("b", "Review", start.Add(20*time.Minute), 30),
			block("a", "Duplicate", start.Add(2*time.Hour), 30),
		},
	}

	result := validator.ValidatePlan(plan)
	if !result.HasType(ConflictDuplicateBlockID) {
		t.Error("Expected ConflictDuplicateBlockID conflict type")
	}
	if !result.HasType(ConflictOverlappingBlocks) {
		t.Error("Expected ConflictOverlappingBlocks conflict type")
	}
	if got := len(result.Conflicts); got != 2 {
		t.Errorf("ValidatePlan() = %d conflicts, want 2: %s", got, result.FormatReport())
	}
}

func TestFormatReport_NoConflicts(t *testing.T) {
	result := ValidationResult{}
	if got := result.FormatReport(); got != "No conflicts detected." {
		t.Errorf("FormatReport() = %q", got)
	}
}
