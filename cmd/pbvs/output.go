package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/aristath/pbvs/internal/orchestrator"
	"github.com/aristath/pbvs/internal/persistence"
	"github.com/aristath/pbvs/internal/scheduler"
)

// Sprint color functions for building styled strings.
var (
	Bold       = color.New(color.Bold).SprintFunc()
	Dim        = color.New(color.Faint).SprintFunc()
	Green      = color.New(color.FgGreen).SprintFunc()
	Yellow     = color.New(color.FgYellow).SprintFunc()
	BoldCyan   = color.New(color.Bold, color.FgCyan).SprintFunc()
	BoldGreen  = color.New(color.Bold, color.FgGreen).SprintFunc()
	BoldRed    = color.New(color.Bold, color.FgRed).SprintFunc()
	BoldYellow = color.New(color.Bold, color.FgYellow).SprintFunc()
)

func outputJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}

// statusColor colors a workflow, result or task status.
func statusColor(status string) string {
	switch status {
	case "completed":
		return BoldGreen(status)
	case "failed":
		return BoldRed(status)
	case "partially_completed", "blocked":
		return BoldYellow(status)
	default:
		return Yellow(status)
	}
}

func taskIcon(status scheduler.TaskStatus) string {
	switch status {
	case scheduler.TaskCompleted:
		return BoldGreen("✓")
	case scheduler.TaskFailed:
		return BoldRed("✗")
	case scheduler.TaskBlocked:
		return BoldYellow("⊘")
	case scheduler.TaskInProgress:
		return Yellow("●")
	default:
		return Dim("○")
	}
}

func printProject(p persistence.ProjectSummary) {
	fmt.Printf("%s %s\n", Bold("Project:"), BoldCyan(p.ID))
	fmt.Printf("%s    %s\n", Bold("Goal:"), p.Goal)
	fmt.Printf("%s  %s (%s)\n", Bold("Status:"), statusColor(p.Status), p.Phase)
	fmt.Printf("%s %s\n", Bold("Updated:"), p.UpdatedAt.Format(time.RFC3339))
}

func printTasks(tasks []*scheduler.Task) {
	if len(tasks) == 0 {
		fmt.Println(Dim("\nno tasks yet"))
		return
	}
	fmt.Printf("\n%s\n", Bold("Tasks"))
	for _, t := range tasks {
		fmt.Printf("  %s %-40s %s %s\n", taskIcon(t.Status), t.Name, Dim(string(t.AgentRole)), Dim(fmt.Sprintf("%.1fh", t.EstimatedHours)))
		if t.Error != "" {
			fmt.Printf("      %s\n", Dim(t.Error))
		}
	}
}

func printProgress(p *orchestrator.Progress) {
	fmt.Printf("%s %s (%s)", Bold("Status:"), statusColor(string(p.Status)), p.Phase)
	if p.Paused {
		fmt.Printf(" %s", BoldYellow("PAUSED"))
	}
	fmt.Println()
	if p.Gate != "" {
		fmt.Printf("%s %s\n", Bold("Waiting at:"), BoldYellow(string(p.Gate)))
	}
	fmt.Printf("%s %d/%d completed, %d running, %d failed, %d blocked\n",
		Bold("Tasks:"), p.Completed, p.Total, p.InProgress, p.Failed, p.Blocked)
}

// printResult renders the final report.
func printResult(r *orchestrator.Result) {
	if r == nil {
		return
	}
	fmt.Println()
	fmt.Printf("%s %s\n", Bold("Project:"), BoldCyan(r.ProjectID))
	fmt.Printf("%s  %s", Bold("Result:"), statusColor(string(r.Status)))
	if r.Cancelled {
		fmt.Printf(" %s", Dim("(cancelled)"))
	}
	fmt.Println()
	fmt.Printf("%s   %d/%d completed, %d failed, %d blocked\n",
		Bold("Tasks:"), r.CompletedTasks, r.TotalTasks, r.FailedTasks, r.BlockedTasks)
	fmt.Printf("%s   %.1f estimated, %.1f actual\n", Bold("Hours:"), r.EstimatedHours, r.ActualHours)
	fmt.Printf("%s %s\n", Bold("Duration:"), r.Duration.Round(time.Second))

	if v := r.Validation; v != nil {
		fmt.Printf("%s %s\n", Bold("Validation:"), passFail(v.OverallPassed))
	}
	if d := r.Deployment; d != nil {
		fmt.Printf("%s %s %s %s\n", Bold("Deployed:"), d.Environment, d.Version, Dim(string(d.Status)))
		if d.URL != "" {
			fmt.Printf("%s      %s\n", Bold("URL:"), BoldCyan(d.URL))
		}
	}
	if r.Error != "" {
		fmt.Printf("%s    %s\n", BoldRed("Error:"), r.Error)
	}

	if len(r.RollbackTasks) > 0 {
		fmt.Printf("\n%s\n", BoldYellow("Completed tasks asking for rollback"))
		for _, name := range r.RollbackTasks {
			fmt.Printf("  %s %s\n", BoldYellow("↺"), name)
		}
	}

	if len(r.Failures) > 0 {
		fmt.Printf("\n%s\n", Bold("Tasks that did not complete"))
		for _, f := range r.Failures {
			line := fmt.Sprintf("  %s %s", taskIcon(f.Status), f.Name)
			var extra []string
			if f.Kind != "" {
				extra = append(extra, f.Kind)
			}
			if f.Attempts > 0 {
				extra = append(extra, fmt.Sprintf("%d attempts", f.Attempts))
			}
			if f.RollbackRequired {
				extra = append(extra, "rollback required")
			}
			if len(extra) > 0 {
				line += " " + Dim("("+strings.Join(extra, ", ")+")")
			}
			fmt.Println(line)
			if f.Error != "" {
				fmt.Printf("      %s\n", Dim(f.Error))
			}
		}
	}
}

func passFail(ok bool) string {
	if ok {
		return BoldGreen("passed")
	}
	return BoldRed("needs review")
}
