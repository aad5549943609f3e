package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/julianstephens/flux/internal/logger"
	"github.com/julianstephens/flux/internal/storage"
	"github.com/julianstephens/flux/internal/storage/sqlite"
)

type InitCmd struct {
	Force       bool `help:"Delete an existing SQLite or JSON store before initializing."`
	WriteConfig bool `help:"Write the effective configuration to the config file."`
}

func (c *InitCmd) Run(ctx *Context) error {
	if c.Force {
		if err := c.reset(ctx); err != nil {
			return err
		}
	}

	if err := ctx.Store.Init(); err != nil {
		return err
	}
	ctx.printf("Initialized flux storage at: %s\n", ctx.Store.GetConfigPath())

	if c.WriteConfig {
		if err := ctx.Config.SaveToFile(ctx.ConfigFile); err != nil {
			return err
		}
		ctx.printf("Wrote configuration to: %s\n", ctx.ConfigFile)
	}
	return nil
}

// reset removes file-backed storage. Database servers are never dropped.
func (c *InitCmd) reset(ctx *Context) error {
	switch ctx.Store.(type) {
	case *sqlite.Store, *storage.JSONStore:
	default:
		return fmt.Errorf("--force is only supported for SQLite and JSON storage")
	}

	path := ctx.Store.GetConfigPath()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to access existing storage: %w", err)
	}
	if err := ctx.Store.Close(); err != nil {
		return fmt.Errorf("failed to close existing storage: %w", err)
	}
	if mgr, err := backupManager(ctx); err == nil {
		if path, err := mgr.Create(); err == nil {
			ctx.printf("Backed up existing storage to: %s\n", path)
		} else {
			logger.Warn("Backup before reset failed", "error", err)
		}
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete existing storage: %w", err)
	}
	ctx.printf("Deleted existing storage at: %s\n", path)
	return nil
}
