package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/tools"
)

type DebugCmd struct {
	DBPath    DebugDBPathCmd    `cmd:"" help:"Show the storage location."`
	DumpState DebugDumpStateCmd `cmd:"" help:"Dump the user's State as JSON."`
	Prompt    DebugPromptCmd    `cmd:"" help:"Print the agent system prompt for the user."`
}

type DebugDBPathCmd struct{}

func (cmd *DebugDBPathCmd) Run(ctx *Context) error {
	return printJSON(ctx, map[string]string{"path": ctx.Store.GetConfigPath()})
}

type DebugDumpStateCmd struct{}

func (cmd *DebugDumpStateCmd) Run(ctx *Context) error {
	svc, err := ctx.Services()
	if err != nil {
		return err
	}
	var snapshot models.State
	err = svc.Runtime.View(context.Background(), ctx.user(), func(st models.State) {
		snapshot = st
	})
	if err != nil {
		return err
	}
	return printJSON(ctx, snapshot)
}

type DebugPromptCmd struct{}

func (cmd *DebugPromptCmd) Run(ctx *Context) error {
	svc, err := ctx.Services()
	if err != nil {
		return err
	}
	var prompt string
	err = svc.Runtime.View(context.Background(), ctx.user(), func(st models.State) {
		prompt = tools.SystemPrompt(st, time.Now().In(svc.Location))
	})
	if err != nil {
		return err
	}
	ctx.println(prompt)
	return nil
}

func printJSON(ctx *Context, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	ctx.println(string(data))
	return nil
}
