package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/aristath/pbvs/internal/activity"
	"github.com/aristath/pbvs/internal/backend"
	"github.com/aristath/pbvs/internal/retry"
)

// RetryPolicy converts the retry section, keeping the default retryable
// categories.
func (c *OrchestratorConfig) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	if c.Retry.MaxAttempts > 0 {
		p.MaxAttempts = c.Retry.MaxAttempts
	}
	if c.Retry.InitialDelay > 0 {
		p.InitialDelay = c.Retry.InitialDelay.Std()
	}
	if c.Retry.MaxDelay > 0 {
		p.MaxDelay = c.Retry.MaxDelay.Std()
	}
	if c.Retry.Multiplier > 0 {
		p.Multiplier = c.Retry.Multiplier
	}
	return p
}

// BackendConfig resolves an agent role to the transport that serves it.
func (c *OrchestratorConfig) BackendConfig(role string) (backend.Config, error) {
	agent, ok := c.Agents[role]
	if !ok {
		return backend.Config{}, fmt.Errorf("no agent configured for role %q", role)
	}
	provider, ok := c.Providers[agent.Provider]
	if !ok {
		return backend.Config{}, fmt.Errorf("agent %q uses unknown provider %q", role, agent.Provider)
	}
	return backend.Config{
		Type:         provider.Type,
		WorkDir:      c.Build.WorkDir,
		Model:        agent.Model,
		SystemPrompt: agent.SystemPrompt,
		Command:      provider.Command,
		Args:         append([]string(nil), provider.Args...),
	}, nil
}

// GateCommands converts the gates section for activity.NewCommandValidator.
func (c *OrchestratorConfig) GateCommands() map[activity.GateLevel][]activity.GateCommand {
	convert := func(in []GateCommandConfig) []activity.GateCommand {
		out := make([]activity.GateCommand, 0, len(in))
		for _, g := range in {
			out = append(out, activity.GateCommand{Name: g.Name, Command: g.Command, Args: g.Args})
		}
		return out
	}
	return map[activity.GateLevel][]activity.GateCommand{
		activity.GateAutomated:   convert(c.Gates.Automated),
		activity.GateIntegration: convert(c.Gates.Integration),
		activity.GateBusiness:    convert(c.Gates.Business),
	}
}

// DeployTargets converts the deploy section for activity.NewCommandDeployer.
func (c *OrchestratorConfig) DeployTargets() map[activity.Environment]activity.DeployTarget {
	out := make(map[activity.Environment]activity.DeployTarget, len(c.Deploy))
	for env, t := range c.Deploy {
		out[activity.Environment(env)] = activity.DeployTarget{
			Command:    t.Command,
			Args:       t.Args,
			URL:        t.URL,
			HealthURLs: t.HealthURLs,
		}
	}
	return out
}

// SlogLevel parses log_level, defaulting to info.
func (c *OrchestratorConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
