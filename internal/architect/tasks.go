package architect

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/julianstephens/flux/internal/constants"
	"github.com/julianstephens/flux/internal/logger"
	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/utils"
)

var ErrMissingTasksArray = errors.New("response does not contain a tasks array")

// Task is one step of a decomposed goal as returned by the model.
type Task struct {
	Title           string
	Description     string
	DurationMinutes int
	Priority        models.Priority
}

// ExtractTasks reads the task list out of a decoded response. It accepts
// {"tasks": [...]} or a bare top-level array. Entries without a title are
// dropped.
func ExtractTasks(v any) ([]Task, error) {
	var items []any
	switch t := v.(type) {
	case map[string]any:
		arr, ok := t["tasks"].([]any)
		if !ok {
			return nil, ErrMissingTasksArray
		}
		items = arr
	case []any:
		items = t
	default:
		return nil, ErrMissingTasksArray
	}

	tasks := make([]Task, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			logger.Debug("Skipping non-object task", "index", i)
			continue
		}
		title := strings.TrimSpace(stringField(obj, "title"))
		if title == "" {
			logger.Debug("Skipping task without title", "index", i)
			continue
		}
		tasks = append(tasks, Task{
			Title:           title,
			Description:     stringField(obj, "description"),
			DurationMinutes: intField(obj, "durationMinutes"),
			Priority:        models.Priority(strings.ToLower(stringField(obj, "priority"))),
		})
	}
	return tasks, nil
}

// topLevelArray decodes raw when it is exactly one JSON array.
func topLevelArray(raw string) ([]any, bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	var arr []any
	if err := json.Unmarshal([]byte(trimmed), &arr); err != nil {
		return nil, false
	}
	return arr, true
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func intField(obj map[string]any, key string) int {
	switch n := obj[key].(type) {
	case float64:
		return int(math.Round(n))
	case json.Number:
		f, _ := n.Float64()
		return int(math.Round(f))
	}
	return 0
}

// Layout controls how tasks are placed on the timeline.
type Layout struct {
	Gap             time.Duration
	DefaultDuration time.Duration
	RoundTo         time.Duration
}

// DefaultLayout places blocks on 5-minute boundaries, 5 minutes apart, 30
// minutes long unless the task says otherwise.
func DefaultLayout() Layout {
	return Layout{
		Gap:             constants.DefaultBlockGap,
		DefaultDuration: constants.DefaultBlockDuration,
		RoundTo:         constants.DefaultRoundTo,
	}
}

// Blocks lays tasks out back to back starting at now rounded up to the
// layout boundary. ids are filled in by the caller or the store.
func (l Layout) Blocks(tasks []Task, now time.Time) []models.TimeBlock {
	start := utils.CeilTo(now, l.RoundTo)
	blocks := make([]models.TimeBlock, 0, len(tasks))
	for _, t := range tasks {
		duration := l.DefaultDuration
		if t.DurationMinutes > 0 {
			duration = time.Duration(t.DurationMinutes) * time.Minute
		}
		priority := t.Priority
		if !priority.Valid() {
			priority = models.PriorityMedium
		}
		end := start.Add(duration)
		blocks = append(blocks, models.TimeBlock{
			Title:       t.Title,
			Description: t.Description,
			Priority:    priority,
			Tags:        []string{constants.TagArchitect, constants.TagAutoGenerated},
			StartTime:   start,
			EndTime:     end,
			Status:      models.BlockStatusPending,
		})
		start = end.Add(l.Gap)
	}
	return blocks
}
