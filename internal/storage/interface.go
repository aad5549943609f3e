package storage

import (
	"context"
	"errors"

	"github.com/julianstephens/flux/internal/models"
)

var (
	// ErrNotLoaded is returned when a provider is used before Init or Load.
	ErrNotLoaded = errors.New("storage not loaded")
	// ErrEventLogRewritten is returned when a save would drop or alter events
	// that were already persisted.
	ErrEventLogRewritten = errors.New("event log is append-only")
)

// Provider persists one State per user id. SaveState must be durable before
// it returns.
type Provider interface {
	// Lifecycle
	Init() error
	Load() error
	Close() error

	// LoadState returns the stored State for userID, or an empty State if the
	// user has none yet.
	LoadState(ctx context.Context, userID string) (models.State, error)
	// SaveState replaces the stored State for userID. Events already stored
	// must be a prefix of st.Events.
	SaveState(ctx context.Context, userID string, st models.State) error

	// Utils
	GetConfigPath() string
}

// CheckAppendOnly verifies that stored is a prefix of next by event id.
func CheckAppendOnly(stored, next []models.Event) error {
	if len(stored) > len(next) {
		return ErrEventLogRewritten
	}
	for i := range stored {
		if stored[i].ID != next[i].ID {
			return ErrEventLogRewritten
		}
	}
	return nil
}
