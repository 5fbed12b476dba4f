package activity

import (
	"fmt"
	"strings"

	"github.com/aristath/pbvs/internal/scheduler"
)

// BuildInstruction renders the instruction sent to the worker for a task.
func BuildInstruction(task *scheduler.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s agent.\n\n", task.AgentRole)
	fmt.Fprintf(&b, "Task ID: %s\n", task.ID)
	fmt.Fprintf(&b, "Task: %s\n", task.Name)
	if task.Capability != "" {
		fmt.Fprintf(&b, "Capability: %s (phase %d)\n", task.Capability, task.Phase)
	}
	if task.EstimatedHours > 0 {
		fmt.Fprintf(&b, "Estimated effort: %.1f hours\n", task.EstimatedHours)
	}
	if task.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", task.Description)
	}
	if len(task.AcceptanceCriteria) > 0 {
		b.WriteString("\nAcceptance criteria:\n")
		for _, c := range task.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	b.WriteString("\nWhen you are done, reply with a single JSON object and nothing else, matching this schema:\n")
	b.WriteString(TaskOutputSchema)
	fmt.Fprintf(&b, "\n\nUse \"task_id\": %q and \"agent\": %q.", task.ID, task.AgentRole)
	return b.String()
}

const planSchema = `{
  "project_name": "string",
  "version": "string",
  "stakeholder": "string",
  "business_goals": ["string"],
  "technical_requirements": ["string"],
  "capabilities": [
    {
      "name": "string",
      "phase": 1,
      "features": [
        {
          "name": "string, unique across the plan",
          "description": "string",
          "depends_on": ["name of another feature"],
          "phase": 1,
          "complexity": "low|medium|high",
          "estimated_hours": 4,
          "acceptance_criteria": ["string"]
        }
      ]
    }
  ],
  "non_functional": {"performance": ["string"], "security": ["string"], "scalability": ["string"]}
}`

// BuildPlanInstruction renders the instruction sent to the supervisor to
// produce a plan.
func BuildPlanInstruction(in ProjectInput) string {
	var b strings.Builder
	b.WriteString("Create a product requirements document for the following project.\n\n")
	fmt.Fprintf(&b, "Goal: %s\n", in.Goal)
	if in.Stakeholder != "" {
		fmt.Fprintf(&b, "Stakeholder: %s\n", in.Stakeholder)
	}
	if in.Timeline.TargetLaunchDate != "" {
		fmt.Fprintf(&b, "Target launch date: %s\n", in.Timeline.TargetLaunchDate)
	}
	if in.Timeline.EstimatedDuration != "" {
		fmt.Fprintf(&b, "Estimated duration: %s\n", in.Timeline.EstimatedDuration)
	}
	if in.Quality.TestCoverage > 0 {
		fmt.Fprintf(&b, "Required test coverage: %.0f%%\n", in.Quality.TestCoverage)
	}
	if len(in.Quality.PerformanceTargets) > 0 {
		fmt.Fprintf(&b, "Performance targets: %s\n", strings.Join(in.Quality.PerformanceTargets, "; "))
	}
	if len(in.Quality.SecurityStandards) > 0 {
		fmt.Fprintf(&b, "Security standards: %s\n", strings.Join(in.Quality.SecurityStandards, "; "))
	}
	b.WriteString("\nBreak the work into capabilities and features. Every feature belongs to exactly one capability and one phase; ")
	b.WriteString("phases never decrease within a capability and a feature may only depend on features in the same or an earlier phase.\n")
	b.WriteString("\nReply with a single JSON object and nothing else, matching this schema:\n")
	b.WriteString(planSchema)
	return b.String()
}
