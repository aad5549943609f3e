package cli

import (
	"context"
	"fmt"

	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/validation"
)

type ValidateCmd struct{}

func (cmd *ValidateCmd) Run(ctx *Context) error {
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
	if plan == nil {
		return fmt.Errorf("no active plan")
	}

	ctx.printf("Validating plan %s...\n\n", blockStyle.Render(plan.Title))
	result := validation.New().ValidatePlan(plan)
	ctx.println(result.FormatReport())
	return nil
}
