package storage

import (
	"context"
	"sync"

	"github.com/julianstephens/flux/internal/models"
)

// MemoryPath is the storage string that selects a MemoryStore.
const MemoryPath = ":memory:"

// MemoryStore keeps State in process memory. It backs tests and ephemeral
// server runs.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]models.State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]models.State)}
}

func (s *MemoryStore) Init() error  { return nil }
func (s *MemoryStore) Load() error  { return nil }
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) LoadState(_ context.Context, userID string) (models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.users[userID]
	if !ok {
		return models.NewState(), nil
	}
	return st.Clone(), nil
}

func (s *MemoryStore) SaveState(_ context.Context, userID string, st models.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := CheckAppendOnly(s.users[userID].Events, st.Events); err != nil {
		return err
	}
	s.users[userID] = st.Clone()
	return nil
}

func (s *MemoryStore) GetConfigPath() string {
	return MemoryPath
}
