package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/pbvs/internal/activity"
	"github.com/aristath/pbvs/internal/backend"
	"github.com/aristath/pbvs/internal/config"
	"github.com/aristath/pbvs/internal/events"
	"github.com/aristath/pbvs/internal/orchestrator"
	"github.com/aristath/pbvs/internal/persistence"
	"github.com/aristath/pbvs/internal/scheduler"
)

var (
	flagDB       string
	flagLogLevel string
	flagJSON     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pbvs",
		Short: "Plan, build, validate and ship a project with a team of agents",
		Long: `pbvs turns a project goal into a plan of features, runs each feature as a
task on an agent backend in dependency order, validates the result through
automated, integration and business gates, and deploys to staging and then,
after approval, to production. Every step is checkpointed so an interrupted
workflow can be resumed.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "Checkpoint database path (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (default from config)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Machine-readable JSON output")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(resumeCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(projectsCmd())
	rootCmd.AddCommand(resultCmd())
	rootCmd.AddCommand(signalCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(configCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// app holds what every local command needs: configuration, a logger, the
// subprocess tracker and the checkpoint store.
type app struct {
	cfg     *config.OrchestratorConfig
	logger  *slog.Logger
	pm      *backend.ProcessManager
	store   *persistence.SQLiteStore
	logFile *os.File
}

// newApp loads configuration and opens the store. With quiet set, logs go to
// a file next to the database so they do not tear the dashboard.
func newApp(ctx context.Context, quiet bool) (*app, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flagDB != "" {
		cfg.Store.Path = flagDB
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	a := &app{cfg: cfg, pm: backend.NewProcessManager()}

	var logOut io.Writer = os.Stderr
	if quiet {
		path := filepath.Join(filepath.Dir(cfg.Store.Path), "pbvs.log")
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		a.logFile = f
		logOut = f
	}
	a.logger = slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	store, err := persistence.NewSQLiteStore(ctx, cfg.Store.Path)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = store
	return a, nil
}

// close kills any agent or gate subprocess still running and releases the
// store.
func (a *app) close() {
	if a.pm != nil {
		if err := a.pm.KillAll(); err != nil && a.logger != nil {
			a.logger.Warn("failed to kill subprocesses", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && a.logger != nil {
			a.logger.Warn("failed to close store", "error", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// backendFactory builds a fresh backend per call from the agent config of
// the role.
func (a *app) backendFactory() activity.BackendFactory {
	return func(role scheduler.AgentRole) (backend.Backend, error) {
		bc, err := a.cfg.BackendConfig(string(role))
		if err != nil {
			return nil, err
		}
		return backend.New(bc, a.pm)
	}
}

// activities wires the configured activity implementations. The returned
// func releases the notification sinks.
func (a *app) activities(bus *events.EventBus, planFile string) (activity.Set, func()) {
	factory := a.backendFactory()
	workDir := a.cfg.Build.WorkDir

	var planner activity.Planner = activity.NewBackendPlanner(factory, a.logger)
	if planFile != "" {
		planner = activity.FilePlanner{Path: planFile}
	}

	validator := activity.NewCommandValidator(a.cfg.GateCommands(), workDir, a.pm, a.logger)
	validator.AutoApproveBusiness = a.cfg.Gates.AutoApproveBusiness

	notifiers := activity.MultiNotifier{
		activity.LogNotifier{Logger: a.logger},
		activity.BusNotifier{Bus: bus},
	}
	cleanup := func() {}
	if url := a.cfg.Notify.NATSURL; url != "" {
		nn, err := activity.NewNATSNotifier(url, a.cfg.Notify.Subject)
		if err != nil {
			a.logger.Warn("NATS notifications disabled", "url", url, "error", err)
		} else {
			notifiers = append(notifiers, nn)
			cleanup = func() {
				if err := nn.Close(); err != nil {
					a.logger.Warn("failed to close NATS connection", "error", err)
				}
			}
		}
	}

	return activity.Set{
		Planner:     planner,
		Worker:      activity.NewBackendWorker(factory, a.logger),
		Validator:   validator,
		Deployer:    activity.NewCommandDeployer(a.cfg.DeployTargets(), workDir, a.pm, a.logger),
		Checkpoints: a.store,
		Notifier:    notifiers,
	}, cleanup
}

// orchestratorConfig converts the build and retry sections.
func (a *app) orchestratorConfig(concurrency int) orchestrator.Config {
	cfg := orchestrator.Config{
		Retry:           a.cfg.RetryPolicy(),
		Concurrency:     a.cfg.Build.Concurrency,
		CheckpointEvery: a.cfg.Build.CheckpointEvery,
		TaskTimeout:     a.cfg.Build.TaskTimeout.Std(),
	}
	if concurrency > 0 {
		cfg.Concurrency = concurrency
	}
	return cfg
}
