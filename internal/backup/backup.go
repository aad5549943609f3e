// Package backup keeps timestamped snapshots of file-backed State stores
// next to the store file.
package backup

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/flux/internal/logger"
)

const (
	// MaxBackups is the number of snapshots kept after rotation.
	MaxBackups = 14
	// DirName is the snapshot directory created beside the store file.
	DirName = "backups"

	filePrefix      = "flux-"
	timestampLayout = "20060102-150405"
)

var ErrStoreMissing = errors.New("store file does not exist")

// Info describes one snapshot on disk.
type Info struct {
	Path      string
	Timestamp time.Time
	Size      int64

	seq int
}

// Manager snapshots a single store file. SQLite files are copied with
// VACUUM INTO; anything else (JSON stores) is copied byte for byte.
type Manager struct {
	storePath string
	dir       string
	now       func() time.Time
}

func NewManager(storePath string) *Manager {
	return &Manager{
		storePath: storePath,
		dir:       filepath.Join(filepath.Dir(storePath), DirName),
		now:       time.Now,
	}
}

// WithClock overrides the clock used to name snapshots.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) Dir() string {
	return m.dir
}

func (m *Manager) isSQLite() bool {
	return !strings.EqualFold(filepath.Ext(m.storePath), ".json")
}

func (m *Manager) ext() string {
	if m.isSQLite() {
		return ".db"
	}
	return ".json"
}

// Create writes a new snapshot and prunes the oldest beyond MaxBackups.
func (m *Manager) Create() (string, error) {
	path, err := m.create()
	if err != nil {
		return "", err
	}
	if err := m.rotate(); err != nil {
		logger.Warn("Failed to rotate backups", "dir", m.dir, "error", err)
	}
	return path, nil
}

func (m *Manager) create() (string, error) {
	if _, err := os.Stat(m.storePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrStoreMissing, m.storePath)
		}
		return "", err
	}
	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	path, err := m.nextPath()
	if err != nil {
		return "", err
	}

	if m.isSQLite() {
		err = vacuumInto(m.storePath, path)
	} else {
		err = copyFile(m.storePath, path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to back up %s: %w", m.storePath, err)
	}
	logger.Debug("Backup created", "path", path)
	return path, nil
}

// nextPath picks an unused snapshot name for the current second.
func (m *Manager) nextPath() (string, error) {
	stamp := m.now().UTC().Format(timestampLayout)
	for n := 0; n < 100; n++ {
		name := filePrefix + stamp
		if n > 0 {
			name = fmt.Sprintf("%s.%d", name, n)
		}
		path := filepath.Join(m.dir, name+m.ext())
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique backup filename")
}

// List returns snapshots newest first. Files that do not look like
// snapshots are ignored.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := []Info{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, m.ext()) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), m.ext())
		seq := 0
		if i := strings.IndexByte(stamp, '.'); i >= 0 {
			n, err := strconv.Atoi(stamp[i+1:])
			if err != nil {
				continue
			}
			stamp, seq = stamp[:i], n
		}
		ts, err := time.Parse(timestampLayout, stamp)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Path:      filepath.Join(m.dir, name),
			Timestamp: ts,
			Size:      info.Size(),
			seq:       seq,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].Timestamp.Equal(backups[j].Timestamp) {
			return backups[i].seq > backups[j].seq
		}
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

func (m *Manager) rotate() error {
	backups, err := m.List()
	if err != nil {
		return err
	}
	for i := MaxBackups; i < len(backups); i++ {
		if err := os.Remove(backups[i].Path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", backups[i].Path, err)
		}
	}
	return nil
}

// Restore replaces the store file with the snapshot at path. The current
// file is snapshotted first and its path returned ("" if there was none).
// The store must be closed.
func (m *Manager) Restore(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("backup file does not exist: %s", path)
	}
	if m.isSQLite() {
		if err := verifySQLite(path); err != nil {
			return "", fmt.Errorf("backup file is corrupted or invalid: %w", err)
		}
	}

	var previous string
	if _, err := os.Stat(m.storePath); err == nil {
		p, err := m.create()
		if err != nil {
			return "", fmt.Errorf("failed to back up current store before restore: %w", err)
		}
		previous = p
	}

	tmp := m.storePath + ".restore.tmp"
	if err := copyFile(path, tmp); err != nil {
		return "", fmt.Errorf("failed to copy backup file: %w", err)
	}
	if err := os.Rename(tmp, m.storePath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to restore store: %w", err)
	}
	logger.Info("Store restored", "from", path, "previous", previous)
	return previous, nil
}

func vacuumInto(src, dst string) error {
	db, err := sql.Open("sqlite", src)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := pingSchema(db); err != nil {
		return fmt.Errorf("source database appears to be corrupted: %w", err)
	}
	_, err = db.Exec("VACUUM INTO ?", dst)
	return err
}

func verifySQLite(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()
	return pingSchema(db)
}

func pingSchema(db *sql.DB) error {
	var n int
	return db.QueryRow("SELECT COUNT(*) FROM sqlite_master").Scan(&n)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
