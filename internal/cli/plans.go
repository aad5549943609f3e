package cli

import (
	"context"
	"strings"

	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/state"
)

type PlansCmd struct {
	List   PlansListCmd   `cmd:"" help:"List plans." default:"1"`
	Show   PlansShowCmd   `cmd:"" help:"Show the active plan's blocks."`
	Create PlansCreateCmd `cmd:"" help:"Create a plan and make it active."`
	Switch PlansSwitchCmd `cmd:"" help:"Make a plan active."`
	Delete PlansDeleteCmd `cmd:"" help:"Delete a plan."`
}

type PlansListCmd struct{}

func (c *PlansListCmd) Run(ctx *Context) error {
	svc, err := ctx.Services()
	if err != nil {
		return err
	}
	var plans []models.PlanSummary
	err = svc.Runtime.View(context.Background(), ctx.user(), func(st models.State) {
		plans = state.New(&st).ListPlans()
	})
	if err != nil {
		return err
	}
	renderPlans(ctx.Out, plans)
	return nil
}

type PlansShowCmd struct{}

func (c *PlansShowCmd) Run(ctx *Context) error {
	svc, err := ctx.Services()
	if err != nil {
		return err
	}
	var plan *models.Plan
	err = svc.Runtime.View(context.Background(), ctx.user(), func(st models.State) {
		plan = st.ActivePlan()
	})
	if err != nil {
		return err
	}
	renderPlan(ctx.Out, plan, svc.Location)
	return nil
}

type PlansCreateCmd struct {
	Title []string `arg:"" help:"Plan title."`
}

func (c *PlansCreateCmd) Run(ctx *Context) error {
	svc, err := ctx.Services()
	if err != nil {
		return err
	}
	title := strings.TrimSpace(strings.Join(c.Title, " "))

	var plan *models.Plan
	err = svc.Runtime.Do(context.Background(), ctx.user(), func(s *state.Store) error {
		p, err := s.CreatePlan(title)
		if err != nil {
			return err
		}
		plan = p.Clone()
		return nil
	})
	if err != nil {
		return err
	}
	ctx.printf("Created plan %s (%s) and made it active.\n", activeStyle.Render(plan.Title), plan.ID)
	return nil
}

type PlansSwitchCmd struct {
	ID string `arg:"" help:"Plan ID."`
}

func (c *PlansSwitchCmd) Run(ctx *Context) error {
	svc, err := ctx.Services()
	if err != nil {
		return err
	}

	var title string
	err = svc.Runtime.Do(context.Background(), ctx.user(), func(s *state.Store) error {
		p, err := s.SwitchPlan(c.ID)
		if err != nil {
			return err
		}
		title = p.Title
		return nil
	})
	if err != nil {
		return err
	}
	ctx.printf("Switched to plan %s.\n", activeStyle.Render(title))
	return nil
}

type PlansDeleteCmd struct {
	ID  string `arg:"" help:"Plan ID."`
	Yes bool   `short:"y" help:"Delete without asking."`
}

func (c *PlansDeleteCmd) Run(ctx *Context) error {
	svc, err := ctx.Services()
	if err != nil {
		return err
	}

	if !c.Yes {
		ok, err := ctx.Confirm("Delete plan "+c.ID+"?", "Its blocks are removed with it.")
		if err != nil {
			return err
		}
		if !ok {
			ctx.println(mutedStyle.Render("Cancelled."))
			return nil
		}
	}

	var active string
	err = svc.Runtime.Do(context.Background(), ctx.user(), func(s *state.Store) error {
		if err := s.DeletePlan(c.ID); err != nil {
			return err
		}
		active = s.State().ActivePlan().Title
		return nil
	})
	if err != nil {
		return err
	}
	ctx.printf("Deleted plan %s. Active plan is %s.\n", c.ID, activeStyle.Render(active))
	return nil
}
