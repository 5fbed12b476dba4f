package scheduler

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aristath/pbvs/internal/plan"
)

var taskNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/aristath/pbvs/task"))

// UnresolvedDependency lists the dependency names of one feature that do not
// name any feature in the plan.
type UnresolvedDependency struct {
	Feature string
	Missing []string
}

// PlanIntegrityError reports a plan whose dependency graph cannot be built.
type PlanIntegrityError struct {
	Unresolved []UnresolvedDependency
	Reason     string
}

func (e *PlanIntegrityError) Error() string {
	var parts []string
	for _, u := range e.Unresolved {
		parts = append(parts, fmt.Sprintf("feature %q depends on unknown %s", u.Feature, quoteAll(u.Missing)))
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	return "plan integrity: " + strings.Join(parts, "; ")
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(quoted, ", ")
}

// TaskID returns the deterministic ID of a feature's task.
func TaskID(project, capability, feature string) string {
	key := project + "\x00" + capability + "\x00" + feature
	return uuid.NewSHA1(taskNamespace, []byte(key)).String()
}

// BuildGraph converts a plan into a validated DAG with one task per feature,
// in declaration order. Dependency names are resolved across the whole plan.
func BuildGraph(p *plan.ProjectPlan) (*DAG, error) {
	features := p.Features()
	if len(features) == 0 {
		return nil, &PlanIntegrityError{Reason: "plan has no features"}
	}

	byName := make(map[string]plan.PlannedFeature, len(features))
	ids := make(map[string]string, len(features))
	for _, f := range features {
		if _, dup := byName[f.Name]; dup {
			return nil, &PlanIntegrityError{Reason: fmt.Sprintf("duplicate feature name %q", f.Name)}
		}
		byName[f.Name] = f
		ids[f.Name] = TaskID(p.ProjectName, f.Capability, f.Name)
	}

	var unresolved []UnresolvedDependency
	var phaseProblems []string
	dag := NewDAG()
	for _, f := range features {
		var deps, missing []string
		for _, name := range f.DependsOn {
			dep, ok := byName[name]
			if !ok {
				missing = append(missing, name)
				continue
			}
			if dep.Phase > f.Phase {
				phaseProblems = append(phaseProblems,
					fmt.Sprintf("feature %q (phase %d) depends on %q from later phase %d", f.Name, f.Phase, name, dep.Phase))
			}
			deps = append(deps, ids[name])
		}
		if len(missing) > 0 {
			unresolved = append(unresolved, UnresolvedDependency{Feature: f.Name, Missing: missing})
		}

		task := &Task{
			ID:                 ids[f.Name],
			Name:               f.Name,
			Description:        f.Description,
			Capability:         f.Capability,
			AgentRole:          ClassifyRole(f.Name, f.Description),
			Phase:              f.Phase,
			DependsOn:          deps,
			EstimatedHours:     f.EstimatedHours,
			AcceptanceCriteria: append([]string(nil), f.AcceptanceCriteria...),
			Status:             TaskPending,
		}
		if err := dag.AddTask(task); err != nil {
			return nil, &PlanIntegrityError{Reason: err.Error()}
		}
	}

	if len(unresolved) > 0 || len(phaseProblems) > 0 {
		return nil, &PlanIntegrityError{Unresolved: unresolved, Reason: strings.Join(phaseProblems, "; ")}
	}

	if _, err := dag.Validate(); err != nil {
		return nil, &PlanIntegrityError{Reason: err.Error()}
	}
	return dag, nil
}
