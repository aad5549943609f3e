package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/julianstephens/flux/internal/constants"
	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/state"
	"github.com/julianstephens/flux/internal/tools"
)

type ToolsCmd struct {
	JSON bool `help:"Print the catalog with input schemas as JSON."`
}

func (c *ToolsCmd) Run(ctx *Context) error {
	catalog := tools.Catalog()
	if c.JSON {
		data, err := json.MarshalIndent(catalog, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal catalog: %w", err)
		}
		ctx.println(string(data))
		return nil
	}

	for _, def := range catalog {
		line := blockStyle.Render(def.Name)
		if def.RequiresConfirmation {
			line += " " + warningStyle.Render("(requires confirmation)")
		}
		ctx.println(line)
		ctx.println("  " + mutedStyle.Render(def.Description))
	}
	return nil
}

type CallCmd struct {
	Tool  string `arg:"" help:"Tool name (see 'flux tools')."`
	Input string `arg:"" optional:"" help:"Tool input as a JSON object." default:"{}"`
	Yes   bool   `short:"y" help:"Approve confirmation-required tools without asking."`
}

func (c *CallCmd) Run(ctx *Context) error {
	svc, err := ctx.Services()
	if err != nil {
		return err
	}
	bg := context.Background()
	user := ctx.user()
	defer svc.Dispatcher.EndSession(user)

	res, err := svc.Dispatcher.Dispatch(bg, user, c.Tool, json.RawMessage(c.Input))
	if err != nil {
		return err
	}
	renderResult(ctx.Out, res)

	if res.Status == tools.StatusPending {
		decision := constants.ApprovalYes
		if !c.Yes {
			ok, err := ctx.Confirm(fmt.Sprintf("Run %s?", c.Tool), "This change cannot be undone.")
			if err != nil {
				return err
			}
			if !ok {
				decision = constants.ApprovalNo
			}
		}
		ctx.println(mutedStyle.Render(decision))
		if res, err = svc.Dispatcher.Resolve(bg, user, res.CallID, decision); err != nil {
			return err
		}
		renderResult(ctx.Out, res)
	}

	if c.Tool == tools.UseArchitect {
		return waitForArchitect(ctx, svc)
	}
	return nil
}

// waitForArchitect blocks until the background run finishes and prints
// where it ended.
func waitForArchitect(ctx *Context, svc *Services) error {
	svc.Architect.Wait()

	var wf models.WorkflowStatus
	var plan *models.Plan
	err := svc.Runtime.View(context.Background(), ctx.user(), func(st models.State) {
		wf = state.New(&st).Workflow()
		plan = st.ActivePlan()
	})
	if err != nil {
		return err
	}
	renderWorkflow(ctx.Out, wf)
	if wf.Status == models.WorkflowCompleted {
		renderPlan(ctx.Out, plan, svc.Location)
	}
	return nil
}
