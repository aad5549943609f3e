package constants

import "time"

const (
	AppName            = "flux"
	DefaultUser        = "default"
	DefaultConfigPath  = "~/.config/flux/flux.db"
	DefaultConfigFile  = "~/.config/flux/config.yaml"
	DefaultPlanTitle   = "My Timeline"
	DefaultPlanReason  = "default plan"
	DefaultServerAddr  = "127.0.0.1:8787"
	DefaultNATSSubject = "flux.events"
	Version            = "v0.3.0"

	// DateFormat is the standard date format used throughout the application (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the standard time format used for human-readable output (HH:MM)
	TimeFormat = "15:04"

	// Human-in-the-loop sentinels routed back through the conversation
	ApprovalYes = "Yes, confirmed."
	ApprovalNo  = "No, denied."

	// EventFeedLimit is the number of events consumers show in the audit view
	EventFeedLimit = 10

	// Workflow progress checkpoints
	ProgressArchitecting = 10
	ProgressStructuring  = 60
	ProgressDone         = 100

	MessageArchitecting = "Architecting your plan..."
	MessageStructuring  = "Structuring your timeline..."
	MessageCompleted    = "completed"

	// Tags seeded on every block produced by the decomposition pipeline
	TagArchitect     = "architect"
	TagAutoGenerated = "auto-generated"

	// Scheduling defaults for decomposed goals
	DefaultBlockGap      = 5 * time.Minute
	DefaultBlockDuration = 30 * time.Minute
	DefaultRoundTo       = 5 * time.Minute
	DefaultDismissAfter  = 5 * time.Second

	// Completion service defaults
	DefaultLLMTimeout     = 2 * time.Minute
	DefaultLLMMaxTokens   = 1024
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
	DefaultGeminiModel    = "gemini-2.5-flash"
	ProviderAnthropic     = "anthropic"
	ProviderGemini        = "gemini"
	KeyringAPIKeySuffix   = "-api-key"
	DefaultKeyringUser    = "flux-db"
)
