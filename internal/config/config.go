// Package config loads flux configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/julianstephens/flux/internal/constants"
	"github.com/julianstephens/flux/internal/llm"
	"github.com/julianstephens/flux/internal/utils"
)

// Config represents the complete flux configuration
type Config struct {
	// Storage is a SQLite path, a .json file, ":memory:", or a postgres:// URL
	Storage  string         `yaml:"storage"`
	User     string         `yaml:"user"`
	Timezone string         `yaml:"timezone"`
	LLM      LLMConfig      `yaml:"llm"`
	Workflow WorkflowConfig `yaml:"workflow"`
	NATS     NATSConfig     `yaml:"nats"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// LLMConfig configures the completion service
type LLMConfig struct {
	// Provider is "anthropic" or "gemini"
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	Endpoint  string        `yaml:"endpoint"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// WorkflowConfig configures decomposition layout and dismissal
type WorkflowConfig struct {
	DismissAfter    time.Duration `yaml:"dismiss_after"`
	BlockGap        time.Duration `yaml:"block_gap"`
	DefaultDuration time.Duration `yaml:"default_duration"`
	RoundTo         time.Duration `yaml:"round_to"`
}

// NATSConfig configures the event feed publisher. Empty URL disables it.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"`
}

// Environment variables that override file values.
const (
	EnvStorage     = "FLUX_STORAGE"
	EnvUser        = "FLUX_USER"
	EnvLLMProvider = "FLUX_LLM_PROVIDER"
	EnvLLMModel    = "FLUX_LLM_MODEL"
	EnvNATSURL     = "FLUX_NATS_URL"
)

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Storage:  constants.DefaultConfigPath,
		User:     constants.DefaultUser,
		Timezone: "Local",
		LLM: LLMConfig{
			Provider:  constants.ProviderAnthropic,
			MaxTokens: constants.DefaultLLMMaxTokens,
			Timeout:   constants.DefaultLLMTimeout,
		},
		Workflow: WorkflowConfig{
			DismissAfter:    constants.DefaultDismissAfter,
			BlockGap:        constants.DefaultBlockGap,
			DefaultDuration: constants.DefaultBlockDuration,
			RoundTo:         constants.DefaultRoundTo,
		},
		NATS: NATSConfig{
			SubjectPrefix: constants.DefaultNATSSubject,
		},
		Server: ServerConfig{
			Addr: constants.DefaultServerAddr,
		},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ExpandHome(path))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. Empty values are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvStorage); v != "" {
		c.Storage = v
	}
	if v := getenv(EnvUser); v != "" {
		c.User = v
	}
	if v := getenv(EnvLLMProvider); v != "" {
		c.LLM.Provider = strings.ToLower(v)
	}
	if v := getenv(EnvLLMModel); v != "" {
		c.LLM.Model = v
	}
	if v := getenv(EnvNATSURL); v != "" {
		c.NATS.URL = v
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage) == "" {
		return fmt.Errorf("storage is required")
	}
	if strings.TrimSpace(c.User) == "" {
		return fmt.Errorf("user is required")
	}
	if !utils.ValidateTimezone(c.Timezone) {
		return fmt.Errorf("invalid timezone: %q", c.Timezone)
	}
	switch c.LLM.Provider {
	case constants.ProviderAnthropic, constants.ProviderGemini:
	default:
		return fmt.Errorf("llm.provider must be %q or %q, got %q", constants.ProviderAnthropic, constants.ProviderGemini, c.LLM.Provider)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	if c.Workflow.DismissAfter < 0 {
		return fmt.Errorf("workflow.dismiss_after must not be negative")
	}
	if c.Workflow.BlockGap < 0 {
		return fmt.Errorf("workflow.block_gap must not be negative")
	}
	if c.Workflow.DefaultDuration <= 0 {
		return fmt.Errorf("workflow.default_duration must be positive")
	}
	if c.Workflow.RoundTo <= 0 {
		return fmt.Errorf("workflow.round_to must be positive")
	}
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	path = ExpandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Location resolves the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	return utils.LoadLocation(c.Timezone)
}

// Completer converts the completion settings for llm.New.
func (c *Config) Completer() llm.Config {
	return llm.Config{
		Provider:  c.LLM.Provider,
		Model:     c.LLM.Model,
		Endpoint:  c.LLM.Endpoint,
		MaxTokens: c.LLM.MaxTokens,
		Timeout:   c.LLM.Timeout,
	}
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
