package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/tools"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(14)

	blockStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

func renderResult(w io.Writer, res tools.Result) {
	text := res.Text
	switch {
	case strings.HasPrefix(text, "Error:"):
		text = errorStyle.Render(text)
	case res.Status == tools.StatusPending:
		text = warningStyle.Render(text)
	}
	fmt.Fprintln(w, text)
}

func renderPlans(w io.Writer, plans []models.PlanSummary) {
	if len(plans) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No plans found."))
		return
	}
	fmt.Fprintln(w, titleStyle.Render("Plans"))
	for _, p := range plans {
		line := fmt.Sprintf("  %s  %s  %s", blockStyle.Render(p.Title), mutedStyle.Render(p.ID), fmt.Sprintf("%d blocks", p.BlockCount))
		if p.IsActive {
			line += "  " + activeStyle.Render("active")
		}
		fmt.Fprintln(w, line)
	}
}

func renderPlan(w io.Writer, plan *models.Plan, loc *time.Location) {
	if plan == nil {
		fmt.Fprintln(w, mutedStyle.Render("No active plan."))
		return
	}
	fmt.Fprintln(w, titleStyle.Render(plan.Title))
	if len(plan.Blocks) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  No blocks scheduled."))
		return
	}
	for _, b := range plan.Blocks {
		span := fmt.Sprintf("%s-%s", b.StartTime.In(loc).Format("15:04"), b.EndTime.In(loc).Format("15:04"))
		line := "  " + timeStyle.Render(span) + blockStyle.Render(b.Title)
		line += "  " + mutedStyle.Render(fmt.Sprintf("%s, %s", b.Priority, b.Status))
		if len(b.Tags) > 0 {
			line += "  " + mutedStyle.Render("#"+strings.Join(b.Tags, " #"))
		}
		fmt.Fprintln(w, line)
	}
}

func renderWorkflow(w io.Writer, wf models.WorkflowStatus) {
	label := string(wf.Status)
	switch wf.Status {
	case models.WorkflowRunning:
		label = warningStyle.Render(label)
	case models.WorkflowCompleted:
		label = activeStyle.Render(label)
	case models.WorkflowFailed:
		label = errorStyle.Render(label)
	}

	line := fmt.Sprintf("Architect: %s %d%%", label, wf.Progress)
	if wf.Message != "" {
		line += "  " + mutedStyle.Render(wf.Message)
	}
	fmt.Fprintln(w, line)
	if wf.Error != "" {
		fmt.Fprintln(w, "  "+errorStyle.Render(wf.Error))
	}
}

func renderEvents(w io.Writer, events []models.Event, loc *time.Location) {
	if len(events) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No events recorded."))
		return
	}
	for _, e := range events {
		line := "  " + timeStyle.Render(e.Timestamp.In(loc).Format("Jan 2 15:04:05")) + blockStyle.Render(string(e.Type))
		if e.Reason != "" {
			line += "  " + mutedStyle.Render(e.Reason)
		}
		fmt.Fprintln(w, line)
	}
}
