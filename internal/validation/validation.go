package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/julianstephens/flux/internal/constants"
	"github.com/julianstephens/flux/internal/models"
)

// ConflictType represents the type of validation conflict
type ConflictType string

const (
	ConflictOverlappingBlocks ConflictType = "overlapping_blocks"
	ConflictInvalidTimeRange  ConflictType = "invalid_time_range"
	ConflictMissingTitle      ConflictType = "missing_title"
	ConflictInvalidPriority   ConflictType = "invalid_priority"
	ConflictInvalidStatus     ConflictType = "invalid_status"
	ConflictDuplicateBlockID  ConflictType = "duplicate_block_id"
)

// Conflict represents a detected conflict in a block or plan
type Conflict struct {
	Type        ConflictType
	Description string
	Items       []string // Block titles involved
	TimeRange   string   // Human-readable time range (if applicable)
	BlockIDs    []string // IDs of blocks involved
}

// ValidationResult contains all detected conflicts
type ValidationResult struct {
	Conflicts []Conflict
}

// HasConflicts returns true if there are any conflicts
func (vr *ValidationResult) HasConflicts() bool {
	return len(vr.Conflicts) > 0
}

// HasType reports whether any conflict has the given type.
func (vr *ValidationResult) HasType(t ConflictType) bool {
	for _, c := range vr.Conflicts {
		if c.Type == t {
			return true
		}
	}
	return false
}

// FormatReport returns a human-readable report of all conflicts
func (vr *ValidationResult) FormatReport() string {
	if !vr.HasConflicts() {
		return "No conflicts detected."
	}

	report := "Conflicts detected:\n"
	for _, conflict := range vr.Conflicts {
		report += fmt.Sprintf("- %s\n", conflict.Description)
	}
	return report
}

// Summary joins conflict descriptions on one line.
func (vr *ValidationResult) Summary() string {
	parts := make([]string, 0, len(vr.Conflicts))
	for _, c := range vr.Conflicts {
		parts = append(parts, c.Description)
	}
	return strings.Join(parts, "; ")
}

// Validator validates blocks and plans for conflicts
type Validator struct{}

// New creates a new Validator
func New() *Validator {
	return &Validator{}
}

// ValidateBlock checks a single block's fields.
func (v *Validator) ValidateBlock(b models.TimeBlock) ValidationResult {
	result := ValidationResult{Conflicts: []Conflict{}}

	if strings.TrimSpace(b.Title) == "" {
		result.Conflicts = append(result.Conflicts, Conflict{
			Type:        ConflictMissingTitle,
			Description: fmt.Sprintf("Block %s has no title", b.ID),
			BlockIDs:    []string{b.ID},
		})
	}

	if b.StartTime.IsZero() || b.EndTime.IsZero() || !b.StartTime.Before(b.EndTime) {
		result.Conflicts = append(result.Conflicts, Conflict{
			Type:        ConflictInvalidTimeRange,
			Description: fmt.Sprintf("Block \"%s\" must start before it ends", b.Title),
			Items:       []string{b.Title},
			TimeRange:   formatRange(b),
			BlockIDs:    []string{b.ID},
		})
	}

	if !b.Priority.Valid() {
		result.Conflicts = append(result.Conflicts, Conflict{
			Type:        ConflictInvalidPriority,
			Description: fmt.Sprintf("Block \"%s\" has invalid priority: %q", b.Title, b.Priority),
			Items:       []string{b.Title},
			BlockIDs:    []string{b.ID},
		})
	}

	if !b.Status.Valid() {
		result.Conflicts = append(result.Conflicts, Conflict{
			Type:        ConflictInvalidStatus,
			Description: fmt.Sprintf("Block \"%s\" has invalid status: %q", b.Title, b.Status),
			Items:       []string{b.Title},
			BlockIDs:    []string{b.ID},
		})
	}

	return result
}

// CheckOverlaps reports pending blocks in existing that share time with candidate.
// Completed and cancelled blocks never conflict.
func (v *Validator) CheckOverlaps(existing []models.TimeBlock, candidate models.TimeBlock) ValidationResult {
	result := ValidationResult{Conflicts: []Conflict{}}
	if candidate.Status != "" && candidate.Status != models.BlockStatusPending {
		return result
	}

	for _, b := range existing {
		if b.ID == candidate.ID || b.Status != models.BlockStatusPending {
			continue
		}
		if !b.Overlaps(candidate) {
			continue
		}
		result.Conflicts = append(result.Conflicts, Conflict{
			Type:        ConflictOverlappingBlocks,
			Description: fmt.Sprintf("\"%s\" overlaps \"%s\" (%s)", candidate.Title, b.Title, formatRange(b)),
			Items:       []string{candidate.Title, b.Title},
			TimeRange:   formatRange(b),
			BlockIDs:    []string{candidate.ID, b.ID},
		})
	}
	return result
}

// ValidatePlan checks every block of a plan, duplicate ids and pairwise overlaps.
func (v *Validator) ValidatePlan(plan *models.Plan) ValidationResult {
	result := ValidationResult{Conflicts: []Conflict{}}
	if plan == nil {
		return result
	}

	seen := make(map[string]bool, len(plan.Blocks))
	for _, b := range plan.Blocks {
		if seen[b.ID] {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictDuplicateBlockID,
				Description: fmt.Sprintf("Duplicate block id: %s", b.ID),
				BlockIDs:    []string{b.ID},
			})
		}
		seen[b.ID] = true
		result.Conflicts = append(result.Conflicts, v.ValidateBlock(b).Conflicts...)
	}

	pending := make([]models.TimeBlock, 0, len(plan.Blocks))
	for _, b := range plan.Blocks {
		if b.Status == models.BlockStatusPending {
			pending = append(pending, b)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].StartTime.Before(pending[j].StartTime)
	})

	// Sorted by start, so a block can only overlap the ones after it until one starts past its end.
	for i := 0; i < len(pending); i++ {
		for j := i + 1; j < len(pending); j++ {
			if !pending[j].StartTime.Before(pending[i].EndTime) {
				break
			}
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictOverlappingBlocks,
				Description: fmt.Sprintf("\"%s\" overlaps \"%s\"", pending[i].Title, pending[j].Title),
				Items:       []string{pending[i].Title, pending[j].Title},
				TimeRange:   formatRange(pending[j]),
				BlockIDs:    []string{pending[i].ID, pending[j].ID},
			})
		}
	}

	return result
}

func formatRange(b models.TimeBlock) string {
	return fmt.Sprintf("%s-%s", b.StartTime.Format(constants.TimeFormat), b.EndTime.Format(constants.TimeFormat))
}
