package llm

import (
	"errors"
	"fmt"
)

var (
	ErrNoAPIKey        = errors.New("no API key configured")
	ErrEmptyResponse   = errors.New("completion returned no text")
	ErrUnknownProvider = errors.New("unknown completion provider")
)

// StatusError is a non-2xx response from a provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion request failed with status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status indicates a temporary condition.
// Nothing in flux retries automatically; callers may surface the hint.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
