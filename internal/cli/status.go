package cli

import (
	"context"

	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/state"
)

type StatusCmd struct {
	Show    StatusShowCmd    `cmd:"" help:"Show the architect workflow and active plan." default:"1"`
	Dismiss StatusDismissCmd `cmd:"" help:"Reset a finished workflow to idle."`
}

type StatusShowCmd struct{}

func (c *StatusShowCmd) Run(ctx *Context) error {
	svc, err := ctx.Services()
	if err != nil {
		return err
	}

	var wf models.WorkflowStatus
	var plan *models.Plan
	err = svc.Runtime.View(context.Background(), ctx.user(), func(st models.State) {
		wf = state.New(&st).Workflow()
		plan = st.ActivePlan()
	})
	if err != nil {
		return err
	}
	renderWorkflow(ctx.Out, wf)
	ctx.println()
	renderPlan(ctx.Out, plan, svc.Location)
	return nil
}

type StatusDismissCmd struct{}

func (c *StatusDismissCmd) Run(ctx *Context) error {
	svc, err := ctx.Services()
	if err != nil {
		return err
	}
	dismissed, err := svc.Reporter.Dismiss(context.Background(), ctx.user())
	if err != nil {
		return err
	}
	if dismissed {
		ctx.println("Workflow dismissed.")
	} else {
		ctx.println(mutedStyle.Render("Nothing to dismiss."))
	}
	return nil
}
