package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/pbvs/internal/control"
	"github.com/aristath/pbvs/internal/orchestrator"
	"github.com/aristath/pbvs/internal/persistence"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [project-id]",
		Short: "Show the latest checkpointed status of a project (default: most recent)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			projects, err := a.store.ListProjects(ctx)
			if err != nil {
				return err
			}
			var project *persistence.ProjectSummary
			for i := range projects {
				if len(args) == 0 || projects[i].ID == args[0] {
					project = &projects[i]
					break
				}
			}
			if project == nil {
				if len(args) == 0 {
					return errors.New("no projects yet")
				}
				return fmt.Errorf("unknown project %s", args[0])
			}

			tasks, err := a.store.ListTasks(ctx, project.ID)
			if err != nil {
				return err
			}

			if flagJSON {
				return outputJSON(map[string]any{"project": project, "tasks": tasks})
			}
			printProject(*project)
			printTasks(tasks)
			return nil
		},
	}
}

func projectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List known projects, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			projects, err := a.store.ListProjects(ctx)
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(projects)
			}
			if len(projects) == 0 {
				fmt.Println(Dim("no projects yet"))
				return nil
			}
			for _, p := range projects {
				fmt.Printf("%s  %s  %-9s %s\n", BoldCyan(p.ID), p.UpdatedAt.Format("2006-01-02 15:04"), statusColor(p.Status), p.Goal)
			}
			return nil
		},
	}
}

func resultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "result <project-id>",
		Short: "Show the final report of a finished project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			_, data, err := a.store.GetResult(ctx, args[0])
			if errors.Is(err, persistence.ErrNotFound) {
				return fmt.Errorf("project %s has not finished", args[0])
			}
			if err != nil {
				return err
			}

			var res orchestrator.Result
			if err := json.Unmarshal(data, &res); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
			if flagJSON {
				return outputJSON(res)
			}
			printResult(&res)
			return nil
		},
	}
}

func signalCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "signal <pause|resume|approve|approveTask|cancel> [payload]",
		Short: "Send a signal to a running workflow",
		Long: `Send a signal to a workflow through its control server.

approve takes the gate to release as payload: "production" or "validation".
Without a payload it approves whichever gate the workflow is waiting at.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := ""
			if len(args) == 2 {
				payload = args[1]
			}
			if err := control.NewClient(addr).Signal(cmd.Context(), args[0], payload); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", Green("sent"), args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8089", "Control server address")

	return cmd
}

func queryCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "query <getState|getProgress>",
		Short: "Query a running workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := control.NewClient(addr)
			if args[0] == orchestrator.QueryProgress && !flagJSON {
				p, err := client.Progress(cmd.Context())
				if err != nil {
					return err
				}
				printProgress(p)
				return nil
			}

			var out json.RawMessage
			if err := client.Query(cmd.Context(), args[0], &out); err != nil {
				return err
			}
			return outputJSON(out)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8089", "Control server address")

	return cmd
}
