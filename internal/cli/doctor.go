package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/julianstephens/flux/internal/keyring"
	"github.com/julianstephens/flux/internal/llm"
	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/validation"
)

type DoctorCmd struct{}

type check struct {
	name string
	// warnOnly failures do not fail the command
	warnOnly bool
	// needsStorage checks are skipped when the storage check fails
	needsStorage bool
	storage      bool
	run          func(ctx *Context) error
}

var checks = []check{
	{name: "Configuration", run: checkConfig},
	{name: "Storage reachable", storage: true, run: checkStorage},
	{name: "State readable", needsStorage: true, run: checkState},
	{name: "Active plan valid", needsStorage: true, run: checkActivePlan},
	{name: "Clock and timezone", run: checkClockTimezone},
	{name: "OS keyring", warnOnly: true, run: checkKeyring},
	{name: "Completion API key", warnOnly: true, run: checkAPIKey},
}

func (cmd *DoctorCmd) Run(ctx *Context) error {
	ctx.println("Running diagnostics...")
	ctx.println()

	hasError := false
	storageOK := true
	for _, c := range checks {
		if c.needsStorage && !storageOK {
			ctx.printf("⊘ %s: SKIPPED (storage not reachable)\n", c.name)
			continue
		}
		err := c.run(ctx)
		switch {
		case err == nil:
			ctx.printf("✓ %s: OK\n", c.name)
		case c.warnOnly:
			ctx.printf("⚠ %s: WARNING\n   %v\n", c.name, err)
		default:
			ctx.printf("❌ %s: FAIL\n   Error: %v\n", c.name, err)
			hasError = true
			if c.storage {
				storageOK = false
			}
		}
	}

	ctx.println()
	if hasError {
		ctx.println("Diagnostics completed with errors.")
		return fmt.Errorf("one or more health checks failed")
	}
	ctx.println("All diagnostics passed!")
	return nil
}

func checkConfig(ctx *Context) error {
	return ctx.Config.Validate()
}

func checkStorage(ctx *Context) error {
	if err := ctx.Store.Load(); err != nil {
		return fmt.Errorf("failed to load storage: %w", err)
	}
	return nil
}

func checkState(ctx *Context) error {
	svc, err := ctx.Services()
	if err != nil {
		return err
	}
	return svc.Runtime.View(context.Background(), ctx.user(), func(models.State) {})
}

func checkActivePlan(ctx *Context) error {
	svc, err := ctx.Services()
	if err != nil {
		return err
	}
	var result validation.ValidationResult
	err = svc.Runtime.View(context.Background(), ctx.user(), func(st models.State) {
		result = validation.New().ValidatePlan(st.ActivePlan())
	})
	if err != nil {
		return err
	}
	// Overlaps are allowed; 'flux validate' reports them.
	var broken validation.ValidationResult
	for _, c := range result.Conflicts {
		if c.Type != validation.ConflictOverlappingBlocks {
			broken.Conflicts = append(broken.Conflicts, c)
		}
	}
	if broken.HasConflicts() {
		return fmt.Errorf("%s", broken.Summary())
	}
	return nil
}

func checkClockTimezone(ctx *Context) error {
	now := time.Now()
	if now.Year() < 2020 || now.Year() > 2100 {
		return fmt.Errorf("system time appears incorrect: %s", now.Format(time.RFC3339))
	}
	loc, err := ctx.Config.Location()
	if err != nil {
		return err
	}
	ctx.printf("   Local time: %s\n", now.In(loc).Format("Mon Jan 2 15:04 MST"))
	return nil
}

func checkKeyring(*Context) error {
	if !keyring.IsAvailable() {
		return keyring.ErrKeyringUnavailable
	}
	return nil
}

func checkAPIKey(ctx *Context) error {
	_, err := llm.ResolveAPIKey(ctx.Config.LLM.Provider)
	return err
}
