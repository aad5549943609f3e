package cli

import (
	"context"
	"strings"

	"github.com/julianstephens/flux/internal/architect"
	"github.com/julianstephens/flux/internal/constants"
	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/state"
)

type ArchitectCmd struct {
	Goal []string `arg:"" help:"Goal to break down into scheduled blocks."`
}

func (c *ArchitectCmd) Run(ctx *Context) error {
	svc, err := ctx.Services()
	if err != nil {
		return err
	}
	bg := context.Background()

	p, err := svc.Architect.Pipeline(bg)
	if err != nil {
		return err
	}

	ctx.println(mutedStyle.Render(constants.MessageArchitecting))
	req := architect.Request{Goal: strings.Join(c.Goal, " "), UserID: ctx.user()}
	_, runErr := p.Run(bg, req)

	var wf models.WorkflowStatus
	var plan *models.Plan
	err = svc.Runtime.View(bg, ctx.user(), func(st models.State) {
		wf = state.New(&st).Workflow()
		plan = st.ActivePlan()
	})
	if err != nil {
		return err
	}

	renderWorkflow(ctx.Out, wf)
	if runErr != nil {
		return runErr
	}
	renderPlan(ctx.Out, plan, svc.Location)
	return nil
}
