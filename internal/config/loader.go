package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. PBVS_DB_PATH.
const EnvPrefix = "PBVS"

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*OrchestratorConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	// Project config has the highest file precedence
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths and applies
// environment overrides.
// Global: ~/.pbvs/config.json
// Project: .pbvs/config.json (relative to cwd)
func LoadDefault() (*OrchestratorConfig, error) {
	globalPath, err := GlobalPath()
	if err != nil {
		return nil, err
	}

	cfg, err := Load(globalPath, ProjectPath)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envOverrides are the settings that can be changed without a config file.
type envOverrides struct {
	DBPath      string   `envconfig:"DB_PATH"`
	Listen      string   `envconfig:"LISTEN"`
	LogLevel    string   `envconfig:"LOG_LEVEL"`
	NATSURL     string   `envconfig:"NATS_URL"`
	WorkDir     string   `envconfig:"WORK_DIR"`
	Concurrency int      `envconfig:"CONCURRENCY"`
	TaskTimeout Duration `envconfig:"TASK_TIMEOUT"`
}

// ApplyEnv overrides cfg with any PBVS_* variables that are set.
func ApplyEnv(cfg *OrchestratorConfig) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}

	if env.DBPath != "" {
		cfg.Store.Path = env.DBPath
	}
	if env.Listen != "" {
		cfg.Control.Listen = env.Listen
	}
	if env.LogLevel != "" {
		cfg.LogLevel = env.LogLevel
	}
	if env.NATSURL != "" {
		cfg.Notify.NATSURL = env.NATSURL
	}
	if env.WorkDir != "" {
		cfg.Build.WorkDir = env.WorkDir
	}
	if env.Concurrency > 0 {
		cfg.Build.Concurrency = env.Concurrency
	}
	if env.TaskTimeout > 0 {
		cfg.Build.TaskTimeout = env.TaskTimeout
	}
	return nil
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Missing files are silently skipped. Malformed JSON returns an error.
func mergeConfigFile(base *OrchestratorConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded OrchestratorConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	merge(base, &loaded)
	return nil
}

// merge copies every map entry and every non-zero field of loaded into base.
// Gate lists replace the base list of their level when present.
func merge(base, loaded *OrchestratorConfig) {
	for key, provider := range loaded.Providers {
		base.Providers[key] = provider
	}
	for key, agent := range loaded.Agents {
		base.Agents[key] = agent
	}
	if base.Deploy == nil {
		base.Deploy = map[string]DeployTargetConfig{}
	}
	for env, target := range loaded.Deploy {
		base.Deploy[env] = target
	}

	if r := loaded.Retry; r.MaxAttempts > 0 {
		base.Retry.MaxAttempts = r.MaxAttempts
	}
	if r := loaded.Retry; r.InitialDelay > 0 {
		base.Retry.InitialDelay = r.InitialDelay
	}
	if r := loaded.Retry; r.MaxDelay > 0 {
		base.Retry.MaxDelay = r.MaxDelay
	}
	if r := loaded.Retry; r.Multiplier > 0 {
		base.Retry.Multiplier = r.Multiplier
	}

	if b := loaded.Build; b.Concurrency > 0 {
		base.Build.Concurrency = b.Concurrency
	}
	if b := loaded.Build; b.CheckpointEvery > 0 {
		base.Build.CheckpointEvery = b.CheckpointEvery
	}
	if b := loaded.Build; b.TaskTimeout > 0 {
		base.Build.TaskTimeout = b.TaskTimeout
	}
	if b := loaded.Build; b.WorkDir != "" {
		base.Build.WorkDir = b.WorkDir
	}

	if g := loaded.Gates; g.Automated != nil {
		base.Gates.Automated = g.Automated
	}
	if g := loaded.Gates; g.Integration != nil {
		base.Gates.Integration = g.Integration
	}
	if g := loaded.Gates; g.Business != nil {
		base.Gates.Business = g.Business
	}
	if loaded.Gates.AutoApproveBusiness {
		base.Gates.AutoApproveBusiness = true
	}

	if loaded.Store.Path != "" {
		base.Store.Path = loaded.Store.Path
	}
	if loaded.Control.Listen != "" {
		base.Control.Listen = loaded.Control.Listen
	}
	if loaded.Notify.NATSURL != "" {
		base.Notify.NATSURL = loaded.Notify.NATSURL
	}
	if loaded.Notify.Subject != "" {
		base.Notify.Subject = loaded.Notify.Subject
	}
	if loaded.LogLevel != "" {
		base.LogLevel = loaded.LogLevel
	}
}
