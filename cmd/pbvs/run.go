package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/aristath/pbvs/internal/activity"
	"github.com/aristath/pbvs/internal/control"
	"github.com/aristath/pbvs/internal/events"
	"github.com/aristath/pbvs/internal/orchestrator"
	"github.com/aristath/pbvs/internal/persistence"
	"github.com/aristath/pbvs/internal/tui"
)

// driveOptions are the flags shared by run and resume.
type driveOptions struct {
	listen      string
	watch       bool
	concurrency int
	planFile    string
}

func addDriveFlags(cmd *cobra.Command, opts *driveOptions) {
	cmd.Flags().StringVar(&opts.listen, "listen", "", "Control server address (default from config, \"off\" to disable)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Show the live dashboard")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Tasks to run at once (default from config)")
	cmd.Flags().StringVar(&opts.planFile, "plan", "", "Load the plan from a YAML or JSON file instead of asking the supervisor")
}

func runCmd() *cobra.Command {
	var (
		opts       driveOptions
		in         activity.ProjectInput
		targetDate string
		duration   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a new workflow for a project goal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			in.PlanFile = opts.planFile
			in.Timeline = activity.Timeline{TargetLaunchDate: targetDate, EstimatedDuration: duration}
			if err := in.Validate(); err != nil {
				return err
			}

			a, err := newApp(ctx, opts.watch)
			if err != nil {
				return err
			}
			defer a.close()

			bus := events.NewEventBus()
			defer bus.Close()

			acts, closeActs := a.activities(bus, opts.planFile)
			defer closeActs()

			o, err := orchestrator.New(acts, orchestrator.Options{
				Config: a.orchestratorConfig(opts.concurrency),
				Logger: a.logger,
				Bus:    bus,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s %s\n", Dim("project"), BoldCyan(o.ProjectID()))

			res, err := a.drive(ctx, o, bus, opts, func(ctx context.Context) (*orchestrator.Result, error) {
				return o.Run(ctx, in)
			})
			return report(o.ProjectID(), res, err)
		},
	}

	cmd.Flags().StringVar(&in.Goal, "goal", "", "What the project should achieve")
	cmd.Flags().StringVar(&in.Stakeholder, "stakeholder", "", "Who the project is for")
	cmd.Flags().StringVar(&targetDate, "target-date", "", "Target launch date")
	cmd.Flags().StringVar(&duration, "duration", "", "Estimated duration, e.g. \"6 weeks\"")
	cmd.Flags().Float64Var(&in.Quality.TestCoverage, "coverage", 0, "Required test coverage percentage")
	cmd.Flags().StringSliceVar(&in.Quality.PerformanceTargets, "performance", nil, "Performance targets")
	cmd.Flags().StringSliceVar(&in.Quality.SecurityStandards, "security", nil, "Security standards to meet")
	_ = cmd.MarkFlagRequired("goal")
	addDriveFlags(cmd, &opts)

	return cmd
}

func resumeCmd() *cobra.Command {
	var opts driveOptions

	cmd := &cobra.Command{
		Use:   "resume <project-id>",
		Short: "Continue a workflow from its latest checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			projectID := args[0]

			a, err := newApp(ctx, opts.watch)
			if err != nil {
				return err
			}
			defer a.close()

			cp, err := a.store.LoadLatest(ctx, projectID)
			if errors.Is(err, persistence.ErrNotFound) {
				return fmt.Errorf("no checkpoint for project %s", projectID)
			}
			if err != nil {
				return err
			}

			// A workflow started from a plan file keeps planning from it
			planFile := opts.planFile
			if planFile == "" {
				planFile = gjson.GetBytes(cp.State, "input.plan_file").String()
			}

			bus := events.NewEventBus()
			defer bus.Close()

			acts, closeActs := a.activities(bus, planFile)
			defer closeActs()

			o, err := orchestrator.New(acts, orchestrator.Options{
				ProjectID: projectID,
				Config:    a.orchestratorConfig(opts.concurrency),
				Logger:    a.logger,
				Bus:       bus,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s %s %s\n", Dim("resuming"), BoldCyan(projectID), Dim("from "+cp.Phase+" checkpoint"))

			res, err := a.drive(ctx, o, bus, opts, func(ctx context.Context) (*orchestrator.Result, error) {
				return o.Resume(ctx, cp)
			})
			return report(projectID, res, err)
		},
	}
	addDriveFlags(cmd, &opts)

	return cmd
}

// drive runs start alongside the control server and, when asked, the
// dashboard. It returns once the workflow finishes or ctx ends.
func (a *app) drive(ctx context.Context, o *orchestrator.Orchestrator, bus *events.EventBus, opts driveOptions,
	start func(context.Context) (*orchestrator.Result, error)) (*orchestrator.Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	listen := opts.listen
	if listen == "" {
		listen = a.cfg.Control.Listen
	}
	if listen != "" && listen != "off" {
		srv := control.NewServer(o, o.Metrics().Registry, a.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(runCtx, listen); err != nil {
				a.logger.Warn("control server stopped", "addr", listen, "error", err)
			}
		}()
	}

	// The dashboard subscribes before the workflow publishes anything
	var program *tea.Program
	if opts.watch {
		program = tea.NewProgram(tui.New(bus, o, o.ProjectID()), tea.WithAltScreen(), tea.WithContext(runCtx))
	}

	type outcome struct {
		res *orchestrator.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := start(runCtx)
		done <- outcome{res: res, err: err}
	}()

	if program != nil {
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			a.logger.Warn("dashboard exited", "error", err)
		}
		select {
		case <-o.Done():
		case <-runCtx.Done():
		default:
			fmt.Fprintf(os.Stderr, "%s\n", Dim("dashboard closed; the workflow keeps running (Ctrl+C to stop)"))
		}
	}

	out := <-done
	cancel()
	wg.Wait()
	return out.res, out.err
}

// report prints the outcome of a run and turns an unsuccessful one into an
// error for the exit code.
func report(projectID string, res *orchestrator.Result, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			fmt.Fprintf(os.Stderr, "%s resume with: pbvs resume %s\n", Yellow("interrupted;"), projectID)
		} else {
			fmt.Fprintf(os.Stderr, "%s %v\n", BoldRed("error:"), err)
		}
		return err
	}

	if flagJSON {
		if err := outputJSON(res); err != nil {
			return err
		}
	} else {
		printResult(res)
	}
	if res.Status == orchestrator.ResultFailed {
		return fmt.Errorf("workflow %s failed", projectID)
	}
	return nil
}
