package keyring

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/flux/internal/constants"
)

var (
	// ErrNotFound is returned when no credentials are found in the keyring
	ErrNotFound = errors.New("credentials not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring is not available
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

func apiKeyUser(provider string) string {
	return strings.ToLower(provider) + constants.KeyringAPIKeySuffix
}

// GetAPIKey retrieves the completion provider API key from the OS keyring.
// Returns ErrNotFound if no key is stored.
func GetAPIKey(provider string) (string, error) {
	return get(apiKeyUser(provider))
}

// SetAPIKey stores the completion provider API key in the OS keyring.
func SetAPIKey(provider, key string) error {
	if provider == "" {
		return errors.New("provider cannot be empty")
	}
	if key == "" {
		return errors.New("API key cannot be empty")
	}
	return set(apiKeyUser(provider), key)
}

// DeleteAPIKey removes the completion provider API key from the OS keyring.
func DeleteAPIKey(provider string) error {
	return del(apiKeyUser(provider))
}

// GetConnectionString retrieves the PostgreSQL connection string from the OS keyring.
func GetConnectionString() (string, error) {
	return get(constants.DefaultKeyringUser)
}

// SetConnectionString stores the PostgreSQL connection string in the OS keyring.
func SetConnectionString(connStr string) error {
	if connStr == "" {
		return errors.New("connection string cannot be empty")
	}
	return set(constants.DefaultKeyringUser, connStr)
}

// IsAvailable checks if the OS keyring is available on the current system.
// This is a best-effort check and may not catch all failure scenarios.
func IsAvailable() bool {
	_, err := keyring.Get(constants.AppName, "test-availability")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}

func get(user string) (string, error) {
	secret, err := keyring.Get(constants.AppName, user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return secret, nil
}

func set(user, secret string) error {
	if err := keyring.Set(constants.AppName, user, secret); err != nil {
		return fmt.Errorf("failed to store credentials in keyring: %w", err)
	}
	return nil
}

func del(user string) error {
	if err := keyring.Delete(constants.AppName, user); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete credentials from keyring: %w", err)
	}
	return nil
}
