package config

// ProviderConfig defines a transport layer (CLI command, args, base settings).
// Providers are separate from agents -- multiple agents can share one provider.
type ProviderConfig struct {
	Command string   `json:"command"`        // CLI binary name (e.g., "claude")
	Args    []string `json:"args,omitempty"` // Default args appended to every invocation
	Type    string   `json:"type"`           // Backend type matching backend.Config.Type: "claude" or "command"
}

// AgentConfig binds an agent role to a provider and model.
type AgentConfig struct {
	Provider     string `json:"provider"`                // Key into Providers map
	Model        string `json:"model,omitempty"`         // Model override
	SystemPrompt string `json:"system_prompt,omitempty"` // Role-specific system prompt
}

// RetryConfig mirrors retry.Policy.
type RetryConfig struct {
	MaxAttempts  int      `json:"max_attempts,omitempty"`
	InitialDelay Duration `json:"initial_delay,omitempty"`
	MaxDelay     Duration `json:"max_delay,omitempty"`
	Multiplier   float64  `json:"multiplier,omitempty"`
}

// BuildConfig tunes the build phase.
type BuildConfig struct {
	Concurrency     int      `json:"concurrency,omitempty"`
	CheckpointEvery int      `json:"checkpoint_every,omitempty"`
	TaskTimeout     Duration `json:"task_timeout,omitempty"`
	WorkDir         string   `json:"work_dir,omitempty"` // Where workers, gates and deploy commands run
}

// GateCommandConfig is one check of a validation level.
type GateCommandConfig struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// GatesConfig lists the checks of each validation level.
type GatesConfig struct {
	Automated           []GateCommandConfig `json:"automated,omitempty"`
	Integration         []GateCommandConfig `json:"integration,omitempty"`
	Business            []GateCommandConfig `json:"business,omitempty"`
	AutoApproveBusiness bool                `json:"auto_approve_business,omitempty"`
}

// DeployTargetConfig describes how to deploy to one environment.
type DeployTargetConfig struct {
	Command    string   `json:"command"`
	Args       []string `json:"args,omitempty"`
	URL        string   `json:"url,omitempty"`
	HealthURLs []string `json:"health_urls,omitempty"`
}

// StoreConfig locates the checkpoint database.
type StoreConfig struct {
	Path string `json:"path,omitempty"`
}

// ControlConfig configures the HTTP control surface.
type ControlConfig struct {
	Listen string `json:"listen,omitempty"`
}

// NotifyConfig configures the optional NATS notification sink.
type NotifyConfig struct {
	NATSURL string `json:"nats_url,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// OrchestratorConfig is the top-level configuration.
type OrchestratorConfig struct {
	Providers map[string]ProviderConfig     `json:"providers"`
	Agents    map[string]AgentConfig        `json:"agents"`
	Retry     RetryConfig                   `json:"retry"`
	Build     BuildConfig                   `json:"build"`
	Gates     GatesConfig                   `json:"gates"`
	Deploy    map[string]DeployTargetConfig `json:"deploy,omitempty"` // Keyed by environment: staging, production
	Store     StoreConfig                   `json:"store"`
	Control   ControlConfig                 `json:"control"`
	Notify    NotifyConfig                  `json:"notify"`
	LogLevel  string                        `json:"log_level,omitempty"`
}
