package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/flux/internal/logger"
	"github.com/julianstephens/flux/internal/migration"
	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/storage"
	"github.com/julianstephens/flux/internal/storage/sqlstate"
	"github.com/julianstephens/flux/migrations"
)

type Store struct {
	path    string
	db      *sql.DB
	queries *sqlstate.Queries
}

func NewStore(path string) *Store {
	return &Store{
		path: path,
	}
}

func (s *Store) open() error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; mailboxes for different users share the file.
	db.SetMaxOpenConns(1)
	s.db = db
	s.queries = sqlstate.New(db, migration.SQLite)
	return nil
}

func (s *Store) Init() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if s.db == nil {
		if err := s.open(); err != nil {
			return err
		}
	}

	if _, err := s.Migrate(func(msg string) { logger.Info(msg) }); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *Store) Load() error {
	if s.db != nil {
		return nil
	}

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return fmt.Errorf("storage not initialized, run 'flux init' first")
	}

	if err := s.open(); err != nil {
		return err
	}
	return s.runner().ValidateVersion()
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db, s.queries = nil, nil
	return err
}

// Migrate applies pending schema migrations and returns how many ran.
func (s *Store) Migrate(logFn func(string)) (int, error) {
	if s.db == nil {
		if err := s.open(); err != nil {
			return 0, err
		}
	}
	return s.runner().ApplyMigrations(logFn)
}

func (s *Store) runner() *migration.Runner {
	subFS, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		// The embedded tree always has the directory.
		panic(fmt.Sprintf("sqlite migrations missing: %v", err))
	}
	return migration.NewRunner(s.db, subFS)
}

func (s *Store) LoadState(ctx context.Context, userID string) (models.State, error) {
	if s.queries == nil {
		return models.State{}, storage.ErrNotLoaded
	}
	return s.queries.LoadState(ctx, userID)
}

func (s *Store) SaveState(ctx context.Context, userID string, st models.State) error {
	if s.queries == nil {
		return storage.ErrNotLoaded
	}
	return s.queries.SaveState(ctx, userID, st)
}

func (s *Store) GetConfigPath() string {
	return s.path
}

// GetDB returns the underlying database connection.
// Returns nil if the database has not been initialized or loaded.
func (s *Store) GetDB() *sql.DB {
	return s.db
}
