package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/julianstephens/flux/internal/models"
)

type document struct {
	Version int                     `json:"version"`
	Users   map[string]models.State `json:"users"`
}

// JSONStore keeps every user's State in one JSON file, rewritten atomically
// on each save.
type JSONStore struct {
	path string

	mu  sync.Mutex
	doc *document
}

func NewJSONStore(configPath string) *JSONStore {
	return &JSONStore{
		path: configPath,
	}
}

func (s *JSONStore) Init() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return s.load()
	}

	s.doc = &document{Version: 1, Users: make(map[string]models.State)}
	return s.save()
}

func (s *JSONStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("storage not initialized, run 'flux init' first")
		}
		return fmt.Errorf("failed to read storage: %w", err)
	}

	doc := &document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("failed to parse storage: %w", err)
	}
	if doc.Users == nil {
		doc.Users = make(map[string]models.State)
	}
	s.doc = doc
	return nil
}

func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) LoadState(_ context.Context, userID string) (models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return models.State{}, ErrNotLoaded
	}
	st, ok := s.doc.Users[userID]
	if !ok {
		return models.NewState(), nil
	}
	return normalize(st.Clone()), nil
}

func (s *JSONStore) SaveState(_ context.Context, userID string, st models.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return ErrNotLoaded
	}
	prev, had := s.doc.Users[userID]
	if err := CheckAppendOnly(prev.Events, st.Events); err != nil {
		return err
	}

	s.doc.Users[userID] = st.Clone()
	if err := s.save(); err != nil {
		if had {
			s.doc.Users[userID] = prev
		} else {
			delete(s.doc.Users, userID)
		}
		return err
	}
	return nil
}

// save writes to a temp file and renames it over the store file. Output is
// compact so stored event payloads keep their exact bytes.
func (s *JSONStore) save() error {
	data, err := json.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("failed to serialize storage: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.tmp.%d", s.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write storage: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace storage: %w", err)
	}
	return nil
}

func (s *JSONStore) GetConfigPath() string {
	return s.path
}

// normalize fills nil collections left by decoding.
func normalize(st models.State) models.State {
	if st.Plans == nil {
		st.Plans = make(map[string]*models.Plan)
	}
	if st.Events == nil {
		st.Events = []models.Event{}
	}
	for _, p := range st.Plans {
		if p.Blocks == nil {
			p.Blocks = []models.TimeBlock{}
		}
	}
	return st
}
