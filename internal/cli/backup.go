package cli

import (
	"fmt"
	"path/filepath"

	"github.com/julianstephens/flux/internal/backup"
	"github.com/julianstephens/flux/internal/logger"
	"github.com/julianstephens/flux/internal/storage"
	"github.com/julianstephens/flux/internal/storage/sqlite"
)

type BackupCmd struct {
	Create  BackupCreateCmd  `cmd:"" help:"Create a manual backup." default:"1"`
	List    BackupListCmd    `cmd:"" help:"List available backups."`
	Restore BackupRestoreCmd `cmd:"" help:"Restore from a backup."`
}

// backupManager returns the snapshot manager for file-backed storage.
func backupManager(ctx *Context) (*backup.Manager, error) {
	switch ctx.Store.(type) {
	case *sqlite.Store, *storage.JSONStore:
		return backup.NewManager(ctx.Store.GetConfigPath()), nil
	default:
		return nil, fmt.Errorf("backups are only supported for SQLite and JSON storage")
	}
}

// autoBackup snapshots file-backed storage before a destructive command.
// Failures are logged and never stop the command.
func autoBackup(ctx *Context) {
	mgr, err := backupManager(ctx)
	if err != nil {
		return
	}
	if _, err := mgr.Create(); err != nil {
		logger.Warn("Automatic backup failed", "error", err)
	}
}

type BackupCreateCmd struct{}

func (c *BackupCreateCmd) Run(ctx *Context) error {
	mgr, err := backupManager(ctx)
	if err != nil {
		return err
	}
	path, err := mgr.Create()
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	ctx.printf("Backup created: %s\n", path)
	return nil
}

type BackupListCmd struct{}

func (c *BackupListCmd) Run(ctx *Context) error {
	mgr, err := backupManager(ctx)
	if err != nil {
		return err
	}
	backups, err := mgr.List()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) == 0 {
		ctx.println(mutedStyle.Render("No backups found."))
		return nil
	}

	ctx.printf("Backups in %s:\n", mgr.Dir())
	for _, b := range backups {
		ctx.printf("  %s  %s  %s\n",
			timeStyle.Render(b.Timestamp.Local().Format("2006-01-02 15:04:05")),
			blockStyle.Render(filepath.Base(b.Path)),
			mutedStyle.Render(fmt.Sprintf("%.1f KB", float64(b.Size)/1024)))
	}
	return nil
}

type BackupRestoreCmd struct {
	Path string `arg:"" help:"Backup file to restore."`
	Yes  bool   `short:"y" help:"Restore without asking."`
}

func (c *BackupRestoreCmd) Run(ctx *Context) error {
	mgr, err := backupManager(ctx)
	if err != nil {
		return err
	}

	if !c.Yes {
		ok, err := ctx.Confirm("Restore "+filepath.Base(c.Path)+"?", "The current store is backed up first.")
		if err != nil {
			return err
		}
		if !ok {
			ctx.println(mutedStyle.Render("Cancelled."))
			return nil
		}
	}

	if err := ctx.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	previous, err := mgr.Restore(c.Path)
	if err != nil {
		return err
	}
	if previous != "" {
		ctx.printf("Backed up current store to: %s\n", previous)
	}
	ctx.printf("Restored %s from %s\n", ctx.Store.GetConfigPath(), c.Path)
	return nil
}
