// Package plan defines the structured requirements document (PRD) that
// drives task generation.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Complexity is the effort tier of a feature.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// ProjectPlan is produced once by the planning activity and never mutated
// afterwards.
type ProjectPlan struct {
	ProjectName           string        `json:"project_name" yaml:"project_name"`
	Version               string        `json:"version" yaml:"version"`
	CreatedAt             time.Time     `json:"created_at" yaml:"created_at"`
	Stakeholder           string        `json:"stakeholder" yaml:"stakeholder"`
	BusinessGoals         []string      `json:"business_goals,omitempty" yaml:"business_goals,omitempty"`
	TechnicalRequirements []string      `json:"technical_requirements,omitempty" yaml:"technical_requirements,omitempty"`
	Capabilities          []Capability  `json:"capabilities" yaml:"capabilities"`
	NonFunctional         NonFunctional `json:"non_functional" yaml:"non_functional"`
}

// Capability groups an ordered list of features.
type Capability struct {
	Name     string    `json:"name" yaml:"name"`
	Phase    int       `json:"phase" yaml:"phase"`
	Features []Feature `json:"features" yaml:"features"`
}

// Feature becomes exactly one task.
type Feature struct {
	Name               string     `json:"name" yaml:"name"`
	Description        string     `json:"description" yaml:"description"`
	DependsOn          []string   `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Phase              int        `json:"phase" yaml:"phase"`
	Complexity         Complexity `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	EstimatedHours     float64    `json:"estimated_hours" yaml:"estimated_hours"`
	AcceptanceCriteria []string   `json:"acceptance_criteria,omitempty" yaml:"acceptance_criteria,omitempty"`
}

// NonFunctional holds requirement buckets that apply to the whole project.
type NonFunctional struct {
	Performance []string `json:"performance,omitempty" yaml:"performance,omitempty"`
	Security    []string `json:"security,omitempty" yaml:"security,omitempty"`
	Scalability []string `json:"scalability,omitempty" yaml:"scalability,omitempty"`
}

// PlannedFeature is a feature paired with the capability that owns it.
type PlannedFeature struct {
	Capability string
	Feature
}

// Features returns every feature in declaration order. A feature without
// its own phase inherits the capability's.
func (p *ProjectPlan) Features() []PlannedFeature {
	var out []PlannedFeature
	for _, c := range p.Capabilities {
		for _, f := range c.Features {
			if f.Phase == 0 {
				f.Phase = c.Phase
			}
			out = append(out, PlannedFeature{Capability: c.Name, Feature: f})
		}
	}
	return out
}

// TotalHours sums the estimated hours of all features.
func (p *ProjectPlan) TotalHours() float64 {
	var total float64
	for _, f := range p.Features() {
		total += f.EstimatedHours
	}
	return total
}

// Validate checks the structural invariants of the plan and reports every
// problem found.
func (p *ProjectPlan) Validate() error {
	var errs []error

	if strings.TrimSpace(p.ProjectName) == "" {
		errs = append(errs, errors.New("project_name is required"))
	}

	seen := make(map[string]string)
	count := 0
	for _, c := range p.Capabilities {
		if strings.TrimSpace(c.Name) == "" {
			errs = append(errs, errors.New("capability name is required"))
		}
		lastPhase := 0
		for i, f := range c.Features {
			count++
			phase := f.Phase
			if phase == 0 {
				phase = c.Phase
			}

			if strings.TrimSpace(f.Name) == "" {
				errs = append(errs, fmt.Errorf("capability %q: feature %d has no name", c.Name, i))
				continue
			}
			if owner, dup := seen[f.Name]; dup {
				errs = append(errs, fmt.Errorf("feature %q declared in both %q and %q", f.Name, owner, c.Name))
			}
			seen[f.Name] = c.Name

			if phase < 1 {
				errs = append(errs, fmt.Errorf("feature %q: phase must be >= 1", f.Name))
			}
			if phase < lastPhase {
				errs = append(errs, fmt.Errorf("feature %q: phase %d decreases after phase %d in capability %q", f.Name, phase, lastPhase, c.Name))
			}
			if phase > lastPhase {
				lastPhase = phase
			}
			if f.EstimatedHours < 0 {
				errs = append(errs, fmt.Errorf("feature %q: estimated_hours must be >= 0", f.Name))
			}
			switch f.Complexity {
			case "", ComplexityLow, ComplexityMedium, ComplexityHigh:
			default:
				errs = append(errs, fmt.Errorf("feature %q: unknown complexity %q", f.Name, f.Complexity))
			}
		}
	}

	if count == 0 {
		errs = append(errs, errors.New("plan has no features"))
	}

	return errors.Join(errs...)
}

// Load reads a plan from a YAML (.yaml, .yml) or JSON file and validates it.
func Load(path string) (*ProjectPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}

	var p ProjectPlan
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse plan %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse plan %s: %w", path, err)
		}
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return &p, nil
}
