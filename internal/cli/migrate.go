package cli

import (
	"errors"
	"fmt"

	"github.com/julianstephens/flux/internal/migration"
)

// migrator is implemented by the SQL-backed providers.
type migrator interface {
	Migrate(logFn func(string)) (int, error)
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx *Context) error {
	m, ok := ctx.Store.(migrator)
	if !ok {
		return fmt.Errorf("migrate command only supports SQLite and PostgreSQL storage")
	}

	// An outdated schema still leaves the connection open.
	if err := ctx.Store.Load(); err != nil && !errors.Is(err, migration.ErrSchemaOutdated) {
		return fmt.Errorf("failed to load database: %w", err)
	}

	autoBackup(ctx)
	count, err := m.Migrate(func(msg string) {
		ctx.println(msg)
	})
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if count == 0 {
		ctx.println("No migrations to apply. Database is up to date.")
	} else {
		ctx.printf("\nSuccessfully applied %d migration(s).\n", count)
	}
	return nil
}
