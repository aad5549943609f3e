package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/flux/internal/cli"
	"github.com/julianstephens/flux/internal/config"
	"github.com/julianstephens/flux/internal/constants"
	"github.com/julianstephens/flux/internal/errors"
	"github.com/julianstephens/flux/internal/logger"
)

var CLI struct {
	Version    kong.VersionFlag
	ConfigFile string `help:"Config file path." type:"path" default:"${config_file}"`
	Storage    string `help:"SQLite path, .json file, :memory:, keyring, or PostgreSQL connection string. PostgreSQL credentials must NOT be embedded in the connection string."`
	User       string `help:"User whose State commands operate on."`
	Debug      bool   `help:"Log debug output to stderr."`

	Init      cli.InitCmd      `cmd:"" help:"Initialize flux storage."`
	Migrate   cli.MigrateCmd   `cmd:"" help:"Run database migrations."`
	Doctor    cli.DoctorCmd    `cmd:"" help:"Run health checks and diagnostics."`
	Tools     cli.ToolsCmd     `cmd:"" help:"List the tool catalog."`
	Call      cli.CallCmd      `cmd:"" help:"Invoke a tool."`
	Architect cli.ArchitectCmd `cmd:"" help:"Break a goal down into scheduled blocks."`
	Plans     cli.PlansCmd     `cmd:"" help:"Manage plans."`
	Events    cli.EventsCmd    `cmd:"" help:"Show recent events."`
	Status    cli.StatusCmd    `cmd:"" help:"Show or dismiss the architect workflow."`
	Validate  cli.ValidateCmd  `cmd:"" help:"Check the active plan for conflicts."`
	Serve     cli.ServeCmd     `cmd:"" help:"Serve the HTTP API."`
	Backup    cli.BackupCmd    `cmd:"" help:"Manage storage backups."`
	Auth      cli.AuthCmd      `cmd:"" help:"Manage credentials in the OS keyring."`
	DebugCmd  cli.DebugCmd     `cmd:"" name:"debug" help:"Debug commands for troubleshooting."`
}

// Commands that manage storage or credentials themselves.
var skipLoad = map[string]bool{
	"init":    true,
	"migrate": true,
	"doctor":  true,
	"auth":    true,
	"backup":  true,
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Goal decomposition and time-blocking companion"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":     constants.Version,
			"config_file": constants.DefaultConfigFile,
			"event_limit": strconv.Itoa(constants.EventFeedLimit),
		},
	)

	cfg, err := config.Load(CLI.ConfigFile)
	if err != nil {
		errors.Fatal(err)
	}
	if CLI.Storage != "" {
		cfg.Storage = CLI.Storage
	}
	if CLI.User != "" {
		cfg.User = CLI.User
	}
	if CLI.Debug {
		cfg.Log.Debug = true
	}

	command := strings.Fields(kctx.Command())[0]
	if err := logger.Init(logger.Config{
		Debug:     cfg.Log.Debug,
		ConfigDir: filepath.Dir(config.ExpandHome(CLI.ConfigFile)),
		Level:     cfg.Log.Level,
		Console:   command == "serve",
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	if command != "doctor" {
		if err := cfg.Validate(); err != nil {
			errors.Fatalf("invalid configuration: %v", err)
		}
	}

	store, err := cli.OpenProvider(cfg.Storage)
	if err != nil {
		errors.Fatal(err)
	}
	if !skipLoad[command] {
		if err := store.Load(); err != nil {
			errors.Fatal(err)
		}
	}

	appCtx := cli.NewContext(cfg, config.ExpandHome(CLI.ConfigFile), store)
	runErr := kctx.Run(appCtx)
	if err := appCtx.Close(); err != nil {
		logger.Warn("Failed to close storage", "error", err)
	}
	errors.Fatal(runErr)
}
