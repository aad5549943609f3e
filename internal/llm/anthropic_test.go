package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropic_Complete(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [
				{"type": "text", "text": "{\"tasks\":["},
				{"type": "text", "text": "{\"title\":\"A\"}]}"}
			],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 12}
		}`))
	}))
	defer srv.Close()

	a := NewAnthropic(Config{Endpoint: srv.URL + "/", APIKey: "sk-test", Model: "claude-test", MaxTokens: 256})
	text, err := a.Complete(context.Background(), "decompose", "Learn German")
	require.NoError(t, err)
	assert.Equal(t, `{"tasks":[{"title":"A"}]}`, text)

	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	assert.Equal(t, "decompose", got.System)
	assert.Equal(t, []anthropicMessage{{Role: "user", Content: "Learn German"}}, got.Messages)
}

func TestAnthropic_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	a := NewAnthropic(Config{Endpoint: srv.URL, APIKey: "sk-test"})
	_, err := a.Complete(context.Background(), "s", "u")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr), "error = %v", err)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.True(t, statusErr.Retryable())
	assert.Contains(t, err.Error(), "rate_limit_error")
}

func TestAnthropic_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[],"stop_reason":"max_tokens"}`))
	}))
	defer srv.Close()

	a := NewAnthropic(Config{Endpoint: srv.URL, APIKey: "sk-test"})
	_, err := a.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestAnthropic_URL(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     string
	}{
		{name: "empty uses default", endpoint: "", want: "https://api.anthropic.com/v1/messages"},
		{name: "custom base URL", endpoint: "https://proxy.local", want: "https://proxy.local/v1/messages"},
		{name: "trailing slash handled", endpoint: "https://proxy.local/", want: "https://proxy.local/v1/messages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewAnthropic(Config{Endpoint: tt.endpoint}).url())
		})
	}
}
