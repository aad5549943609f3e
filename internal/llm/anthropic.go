package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/julianstephens/flux/internal/logger"
)

const (
	anthropicVersion = "2023-06-01"
	anthropicBaseURL = "https://api.anthropic.com"

	// maxResponseSize limits the response body to prevent memory exhaustion.
	maxResponseSize = 10 * 1024 * 1024
)

// Anthropic calls the Messages API over HTTP.
type Anthropic struct {
	cfg    Config
	client *http.Client
}

func NewAnthropic(cfg Config) *Anthropic {
	cfg = cfg.withDefaults()
	return &Anthropic{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (a *Anthropic) url() string {
	base := a.cfg.Endpoint
	if base == "" {
		base = anthropicBaseURL
	}
	return strings.TrimSuffix(base, "/") + "/v1/messages"
}

func (a *Anthropic) Complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		System:    systemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: userContent}},
	})
	if err != nil {
		return "", fmt.Errorf("build request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	logger.Debug("Sending completion request", "provider", "anthropic", "model", a.cfg.Model)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse anthropic response: %w", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", ErrEmptyResponse
	}

	logger.Debug("Completion received",
		"provider", "anthropic",
		"stop_reason", parsed.StopReason,
		"input_tokens", parsed.Usage.InputTokens,
		"output_tokens", parsed.Usage.OutputTokens)
	return text.String(), nil
}
