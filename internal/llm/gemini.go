package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/julianstephens/flux/internal/logger"
)

// Gemini calls the Gemini API through the genai SDK and asks for JSON output.
type Gemini struct {
	cfg    Config
	client *genai.Client
}

func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	cfg = cfg.withDefaults()
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Gemini{cfg: cfg, client: client}, nil
}

func (g *Gemini) Complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		MaxOutputTokens:   int32(g.cfg.MaxTokens),
	}
	contents := []*genai.Content{genai.NewContentFromText(userContent, genai.RoleUser)}

	logger.Debug("Sending completion request", "provider", "gemini", "model", g.cfg.Model)

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
