package migration

import (
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func migrationFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, content := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return fsys
}

func TestGetCurrentVersion(t *testing.T) {
	runner := NewRunner(setupTestDB(t), migrationFS(nil))

	version, err := runner.GetCurrentVersion()
	if err != nil {
		t.Fatalf("GetCurrentVersion() error = %v", err)
	}
	if version != 0 {
		t.Errorf("GetCurrentVersion() = %d, want 0 on a fresh database", version)
	}
}

func TestReadMigrationFiles(t *testing.T) {
	runner := NewRunner(setupTestDB(t), migrationFS(map[string]string{
		"002_events.sql": "CREATE TABLE events (id TEXT);",
		"001_init.sql":   "CREATE TABLE plans (id TEXT);",
		"README.md":      "ignored",
	}))

	migrations, err := runner.ReadMigrationFiles()
	if err != nil {
		t.Fatalf("ReadMigrationFiles() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("ReadMigrationFiles() returned %d migrations, want 2", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "init" {
		t.Errorf("migrations[0] = %+v, want version 1 named init", migrations[0])
	}
	if migrations[1].Version != 2 || migrations[1].Name != "events" {
		t.Errorf("migrations[1] = %+v, want version 2 named events", migrations[1])
	}
}

func TestApplyMigrations(t *testing.T) {
	db := setupTestDB(t)
	files := map[string]string{
		"001_init.sql": "CREATE TABLE plans (id TEXT PRIMARY KEY);",
	}
	runner := NewRunner(db, migrationFS(files))

	var logs []string
	applied, err := runner.ApplyMigrations(func(s string) { logs = append(logs, s) })
	if err != nil {
		t.Fatalf("ApplyMigrations() error = %v", err)
	}
	if applied != 1 {
		t.Errorf("ApplyMigrations() = %d, want 1", applied)
	}
	if len(logs) == 0 {
		t.Error("ApplyMigrations() logged nothing")
	}

	files["002_events.sql"] = "CREATE TABLE events (id TEXT PRIMARY KEY);"
	runner = NewRunner(db, migrationFS(files))
	applied, err = runner.ApplyMigrations(nil)
	if err != nil {
		t.Fatalf("incremental ApplyMigrations() error = %v", err)
	}
	if applied != 1 {
		t.Errorf("incremental ApplyMigrations() = %d, want 1", applied)
	}

	version, _ := runner.GetCurrentVersion()
	if version != 2 {
		t.Errorf("GetCurrentVersion() = %d, want 2", version)
	}

	applied, err = runner.ApplyMigrations(nil)
	if err != nil || applied != 0 {
		t.Errorf("no-op ApplyMigrations() = %d, %v; want 0, nil", applied, err)
	}
	if err := runner.ValidateVersion(); err != nil {
		t.Errorf("ValidateVersion() error = %v", err)
	}
}

func TestMigrationRollbackOnError(t *testing.T) {
	db := setupTestDB(t)
	runner := NewRunner(db, migrationFS(map[string]string{
		"001_init.sql":   "CREATE TABLE plans (id TEXT PRIMARY KEY);",
		"002_broken.sql": "CREATE TABLE blocks (id TEXT); THIS IS NOT SQL;",
	}))

	applied, err := runner.ApplyMigrations(nil)
	if err == nil {
		t.Fatal("ApplyMigrations() expected error for broken migration")
	}
	if applied != 1 {
		t.Errorf("ApplyMigrations() applied = %d, want 1", applied)
	}

	version, _ := runner.GetCurrentVersion()
	if version != 1 {
		t.Errorf("GetCurrentVersion() = %d, want 1 after rollback", version)
	}

	var count int
	if err := db.QueryRow("SELECT count(*) FROM sqlite_master WHERE type='table' AND name='blocks'").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Error("table from failed migration should have been rolled back")
	}
}

func TestValidateVersion(t *testing.T) {
	db := setupTestDB(t)
	files := map[string]string{
		"001_init.sql": "CREATE TABLE plans (id TEXT);",
		"002_more.sql": "CREATE TABLE more (id TEXT);",
	}
	runner := NewRunner(db, migrationFS(files))
	if _, err := runner.ApplyMigrations(nil); err != nil {
		t.Fatal(err)
	}

	older := NewRunner(db, migrationFS(map[string]string{"001_init.sql": files["001_init.sql"]}))
	err := older.ValidateVersion()
	if err == nil || !strings.Contains(err.Error(), "newer than supported") {
		t.Errorf("ValidateVersion() error = %v, want newer-than-supported error", err)
	}

	files["003_extra.sql"] = "CREATE TABLE extra (id TEXT);"
	newer := NewRunner(db, migrationFS(files))
	err = newer.ValidateVersion()
	if !errors.Is(err, ErrSchemaOutdated) || !strings.Contains(err.Error(), "flux migrate") {
		t.Errorf("ValidateVersion() error = %v, want ErrSchemaOutdated with migrate hint", err)
	}
}

func TestReadMigrationFiles_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{name: "bad filename", files: map[string]string{"init.sql": ""}, want: "invalid migration filename"},
		{name: "bad version", files: map[string]string{"abc_init.sql": ""}, want: "invalid version number"},
		{name: "zero version", files: map[string]string{"000_init.sql": ""}, want: "at least 1"},
		{name: "duplicate", files: map[string]string{"001_a.sql": "", "01_b.sql": ""}, want: "duplicate migration version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRunner(setupTestDB(t), migrationFS(tt.files)).ReadMigrationFiles()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ReadMigrationFiles() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		dialect Dialect
		in      string
		want    string
	}{
		{SQLite, "SELECT * FROM plans WHERE id = ?", "SELECT * FROM plans WHERE id = ?"},
		{Postgres, "INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{Postgres, "SELECT '?' , ? FROM t", "SELECT '?' , $1 FROM t"},
	}
	for _, tt := range tests {
		if got := tt.dialect.Rebind(tt.in); got != tt.want {
			t.Errorf("Rebind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
