// Package llm provides the completion service used by the decomposition
// pipeline. A Completer turns a system prompt and user content into raw text;
// callers never assume the text is well-formed.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/julianstephens/flux/internal/constants"
	"github.com/julianstephens/flux/internal/keyring"
	"github.com/julianstephens/flux/internal/logger"
)

// Completer returns the raw text the model produced for userContent.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userContent string) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, systemPrompt, userContent string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	return f(ctx, systemPrompt, userContent)
}

// Config selects and configures a provider.
type Config struct {
	Provider  string
	Model     string
	Endpoint  string
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Provider == "" {
		c.Provider = constants.ProviderAnthropic
	}
	if c.Model == "" {
		switch c.Provider {
		case constants.ProviderGemini:
			c.Model = constants.DefaultGeminiModel
		default:
			c.Model = constants.DefaultAnthropicModel
		}
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = constants.DefaultLLMMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = constants.DefaultLLMTimeout
	}
	return c
}

// New builds the Completer for cfg.Provider. A missing API key is resolved
// from the OS keyring and then the provider's environment variable.
func New(ctx context.Context, cfg Config) (Completer, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		key, err := ResolveAPIKey(cfg.Provider)
		if err != nil {
			return nil, err
		}
		cfg.APIKey = key
	}

	switch cfg.Provider {
	case constants.ProviderAnthropic:
		return NewAnthropic(cfg), nil
	case constants.ProviderGemini:
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// EnvVar returns the environment variable consulted for provider's API key.
func EnvVar(provider string) string {
	switch provider {
	case constants.ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return strings.ToUpper(provider) + "_API_KEY"
	}
}

// ResolveAPIKey looks up provider's API key in the keyring, then the environment.
func ResolveAPIKey(provider string) (string, error) {
	key, err := keyring.GetAPIKey(provider)
	if err == nil && key != "" {
		return key, nil
	}
	if err != nil && err != keyring.ErrNotFound {
		logger.Debug("Keyring lookup failed", "provider", provider, "error", err)
	}
	if key := os.Getenv(EnvVar(provider)); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w for %s (set %s or run 'flux auth set-key')", ErrNoAPIKey, provider, EnvVar(provider))
}
