package tools

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/tasks"
	"github.com/julianstephens/flux/internal/utils"
)

type scheduleBlockInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	Tags        []string `json:"tags"`
	StartTime   string   `json:"startTime"`
	EndTime     string   `json:"endTime"`
}

type blockUpdates struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Priority    *string         `json:"priority"`
	StartTime   *string         `json:"startTime"`
	EndTime     *string         `json:"endTime"`
	Status      *string         `json:"status"`
	Tags        json.RawMessage `json:"tags"`
}

type updateBlockInput struct {
	ID      string        `json:"id"`
	Updates *blockUpdates `json:"updates"`
}

type idInput struct {
	ID string `json:"id"`
}

type goalInput struct {
	Goal string `json:"goal"`
}

type titleInput struct {
	Title string `json:"title"`
}

type locationInput struct {
	Location string `json:"location"`
}

type emptyInput struct{}

type whenInput struct {
	Type           string   `json:"type"`
	Date           string   `json:"date"`
	DelayInSeconds *float64 `json:"delayInSeconds"`
	Cron           string   `json:"cron"`
}

type scheduleTaskInput struct {
	When        *whenInput `json:"when"`
	Description string     `json:"description"`
}

type taskIDInput struct {
	TaskID string `json:"taskId"`
}

// normalizeInput trims raw and maps missing or null input to {}.
func normalizeInput(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return json.RawMessage("{}")
	}
	return append(json.RawMessage{}, raw...)
}

// decode unmarshals raw into v. Missing or null input decodes as {}.
func decode(tool string, raw json.RawMessage, v any) error {
	if err := json.Unmarshal(normalizeInput(raw), v); err != nil {
		return &InputError{Tool: tool, Problems: []string{err.Error()}}
	}
	return nil
}

func requireString(p *problems, field, value string) {
	if strings.TrimSpace(value) == "" {
		p.add("%s is required", field)
	}
}

func parsePriority(p *problems, field, value string) models.Priority {
	pr := models.Priority(strings.ToLower(strings.TrimSpace(value)))
	if !pr.Valid() {
		p.add("%s must be one of high, medium, low", field)
	}
	return pr
}

func parseStatus(p *problems, field, value string) models.BlockStatus {
	st := models.BlockStatus(strings.ToLower(strings.TrimSpace(value)))
	if !st.Valid() {
		p.add("%s must be one of pending, completed, cancelled", field)
	}
	return st
}

func parseTime(p *problems, field, value string, now time.Time) time.Time {
	t, err := utils.ParseISO(value, now)
	if err != nil {
		p.add("%s: %v", field, err)
	}
	return t
}

// parseTags accepts a JSON array of strings or a string holding one.
func parseTags(p *problems, field string, raw json.RawMessage) *[]string {
	var tags []string
	if err := json.Unmarshal(raw, &tags); err == nil {
		if tags == nil {
			tags = []string{}
		}
		return &tags
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if err := json.Unmarshal([]byte(encoded), &tags); err == nil {
			if tags == nil {
				tags = []string{}
			}
			return &tags
		}
	}
	p.add("%s must be an array of strings", field)
	return nil
}

func (in scheduleBlockInput) block(tool string, now time.Time) (models.TimeBlock, error) {
	p := &problems{tool: tool}
	requireString(p, "title", in.Title)
	requireString(p, "startTime", in.StartTime)
	requireString(p, "endTime", in.EndTime)

	b := models.TimeBlock{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Priority:    models.PriorityMedium,
		Tags:        append([]string{}, in.Tags...),
		Status:      models.BlockStatusPending,
	}
	if in.Priority != "" {
		b.Priority = parsePriority(p, "priority", in.Priority)
	}
	if in.StartTime != "" {
		b.StartTime = parseTime(p, "startTime", in.StartTime, now)
	}
	if in.EndTime != "" {
		b.EndTime = parseTime(p, "endTime", in.EndTime, now)
	}
	if err := p.err(); err != nil {
		return models.TimeBlock{}, err
	}
	if !b.StartTime.Before(b.EndTime) {
		p.add("startTime must be before endTime")
	}
	return b, p.err()
}

func (in updateBlockInput) update(tool string, now time.Time) (models.BlockUpdate, error) {
	p := &problems{tool: tool}
	requireString(p, "id", in.ID)
	if in.Updates == nil {
		p.add("updates is required")
		return models.BlockUpdate{}, p.err()
	}

	u := in.Updates
	var upd models.BlockUpdate
	upd.Title = u.Title
	upd.Description = u.Description
	if u.Priority != nil {
		pr := parsePriority(p, "updates.priority", *u.Priority)
		upd.Priority = &pr
	}
	if u.Status != nil {
		st := parseStatus(p, "updates.status", *u.Status)
		upd.Status = &st
	}
	if u.StartTime != nil {
		t := parseTime(p, "updates.startTime", *u.StartTime, now)
		upd.StartTime = &t
	}
	if u.EndTime != nil {
		t := parseTime(p, "updates.endTime", *u.EndTime, now)
		upd.EndTime = &t
	}
	if len(u.Tags) > 0 && !bytes.Equal(u.Tags, []byte("null")) {
		upd.Tags = parseTags(p, "updates.tags", u.Tags)
	}
	return upd, p.err()
}

// maxTaskDelay caps delayInSeconds.
const maxTaskDelay = 366 * 24 * time.Hour

func (in scheduleTaskInput) spec(tool string, now time.Time) (tasks.Spec, error) {
	p := &problems{tool: tool}
	requireString(p, "description", in.Description)
	if in.When == nil {
		p.add("when is required")
		return tasks.Spec{}, p.err()
	}

	w := in.When
	spec := tasks.Spec{Kind: tasks.Kind(strings.ToLower(strings.TrimSpace(w.Type)))}
	switch spec.Kind {
	case tasks.KindScheduled:
		requireString(p, "when.date", w.Date)
		if strings.TrimSpace(w.Date) != "" {
			spec.At = parseTime(p, "when.date", w.Date, now)
		}
	case tasks.KindDelayed:
		switch {
		case w.DelayInSeconds == nil || *w.DelayInSeconds <= 0:
			p.add("when.delayInSeconds must be a positive number")
		case *w.DelayInSeconds > maxTaskDelay.Seconds():
			p.add("when.delayInSeconds must be at most %.0f", maxTaskDelay.Seconds())
		default:
			spec.Delay = time.Duration(*w.DelayInSeconds * float64(time.Second))
		}
	case tasks.KindCron:
		requireString(p, "when.cron", w.Cron)
		if strings.TrimSpace(w.Cron) != "" {
			if _, err := tasks.ParseCron(w.Cron); err != nil {
				p.add("when.cron: %v", err)
			}
		}
		spec.Cron = w.Cron
	default:
		p.add("when.type must be one of scheduled, delayed, cron")
	}
	return spec, p.err()
}
