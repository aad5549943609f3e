package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/julianstephens/flux/internal/constants"
	"github.com/julianstephens/flux/internal/keyring"
	"github.com/julianstephens/flux/internal/llm"
	"github.com/julianstephens/flux/internal/storage/postgres"
)

type AuthCmd struct {
	SetKey        AuthSetKeyCmd        `cmd:"" help:"Store a completion provider API key in the OS keyring."`
	DeleteKey     AuthDeleteKeyCmd     `cmd:"" help:"Remove a completion provider API key from the OS keyring."`
	SetConnection AuthSetConnectionCmd `cmd:"" help:"Store a PostgreSQL connection string in the OS keyring (use --storage keyring)."`
	Status        AuthStatusCmd        `cmd:"" help:"Show keyring availability and stored credentials."`
}

type AuthSetKeyCmd struct {
	Provider string `arg:"" enum:"anthropic,gemini" help:"Completion provider (anthropic or gemini)."`
	Key      string `arg:"" optional:"" help:"API key. Prompted for when omitted."`
}

func (cmd *AuthSetKeyCmd) Run(ctx *Context) error {
	key := strings.TrimSpace(cmd.Key)
	if key == "" {
		var err error
		if key, err = secretPrompt(fmt.Sprintf("%s API key", cmd.Provider)); err != nil {
			return err
		}
	}
	if err := keyring.SetAPIKey(cmd.Provider, key); err != nil {
		return fmt.Errorf("failed to store API key in keyring: %w", err)
	}
	ctx.printf("✓ %s API key stored in OS keyring\n", cmd.Provider)
	return nil
}

type AuthDeleteKeyCmd struct {
	Provider string `arg:"" enum:"anthropic,gemini" help:"Completion provider (anthropic or gemini)."`
}

func (cmd *AuthDeleteKeyCmd) Run(ctx *Context) error {
	if err := keyring.DeleteAPIKey(cmd.Provider); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("no %s API key found in keyring", cmd.Provider)
		}
		return fmt.Errorf("failed to delete API key from keyring: %w", err)
	}
	ctx.printf("✓ %s API key deleted from OS keyring\n", cmd.Provider)
	return nil
}

type AuthSetConnectionCmd struct {
	ConnectionString string `arg:"" help:"PostgreSQL connection string."`
}

func (cmd *AuthSetConnectionCmd) Run(ctx *Context) error {
	if !isPostgres(cmd.ConnectionString) {
		return errors.New("connection string must be a valid PostgreSQL connection string")
	}
	if _, err := postgres.ValidateConnString(cmd.ConnectionString); err != nil {
		if !errors.Is(err, postgres.ErrEmbeddedCredentials) {
			return fmt.Errorf("invalid connection string: %w", err)
		}
		ctx.println("⚠️  Connection string contains embedded credentials. It will be stored as-is in the encrypted OS keyring.")
	}
	if err := keyring.SetConnectionString(cmd.ConnectionString); err != nil {
		return fmt.Errorf("failed to store connection string in keyring: %w", err)
	}
	ctx.println("✓ Connection string stored in OS keyring")
	ctx.println("  Use --storage keyring (or storage: keyring in the config file) to connect with it")
	return nil
}

type AuthStatusCmd struct{}

func (cmd *AuthStatusCmd) Run(ctx *Context) error {
	if !keyring.IsAvailable() {
		ctx.println("❌ OS keyring is not available on this system")
		return keyring.ErrKeyringUnavailable
	}
	ctx.println("✓ OS keyring is available")

	for _, provider := range []string{constants.ProviderAnthropic, constants.ProviderGemini} {
		if _, err := keyring.GetAPIKey(provider); err == nil {
			ctx.printf("✓ %s API key stored\n", provider)
		} else if errors.Is(err, keyring.ErrNotFound) {
			ctx.printf("ℹ No %s API key stored (falls back to %s)\n", provider, llm.EnvVar(provider))
		}
	}
	if _, err := keyring.GetConnectionString(); err == nil {
		ctx.println("✓ Connection string stored")
	}
	return nil
}
