package config

import "time"

// DefaultConfig returns the default configuration: every agent role on the
// claude provider, the default retry policy, sequential build, and no gate
// or deploy commands.
func DefaultConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		Providers: map[string]ProviderConfig{
			"claude": {
				Command: "claude",
				Type:    "claude",
			},
		},
		Agents: map[string]AgentConfig{
			"supervisor": {
				Provider:     "claude",
				SystemPrompt: "You turn project goals into structured, dependency-ordered plans.",
			},
			"architect": {
				Provider:     "claude",
				SystemPrompt: "You design system architecture, data models and interfaces.",
			},
			"backend": {
				Provider:     "claude",
				SystemPrompt: "You implement server-side features, APIs and persistence.",
			},
			"frontend": {
				Provider:     "claude",
				SystemPrompt: "You implement user interfaces and client-side behaviour.",
			},
			"qa-tester": {
				Provider:     "claude",
				SystemPrompt: "You write comprehensive tests and validate functionality.",
			},
			"devops": {
				Provider:     "claude",
				SystemPrompt: "You build CI, packaging and deployment tooling.",
			},
			"security": {
				Provider:     "claude",
				SystemPrompt: "You audit code and configuration for security problems.",
			},
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: Duration(time.Second),
			MaxDelay:     Duration(10 * time.Second),
			Multiplier:   2,
		},
		Build: BuildConfig{
			Concurrency:     1,
			CheckpointEvery: 5,
			TaskTimeout:     Duration(30 * time.Minute),
			WorkDir:         ".",
		},
		Deploy:   map[string]DeployTargetConfig{},
		Store:    StoreConfig{Path: ".pbvs/pbvs.db"},
		Control:  ControlConfig{Listen: "127.0.0.1:8089"},
		Notify:   NotifyConfig{Subject: "pbvs.notifications"},
		LogLevel: "info",
	}
}
