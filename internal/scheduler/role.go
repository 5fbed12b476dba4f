package scheduler

import (
	"strings"
	"unicode"
)

// AgentRole names a specialist worker.
type AgentRole string

const (
	RoleArchitect  AgentRole = "architect"
	RoleBackend    AgentRole = "backend"
	RoleFrontend   AgentRole = "frontend"
	RoleQATester   AgentRole = "qa-tester"
	RoleDevOps     AgentRole = "devops"
	RoleSecurity   AgentRole = "security"
	RoleSupervisor AgentRole = "supervisor" // planning only, never assigned a task
)

// WorkerRoles returns the roles that can be assigned tasks.
func WorkerRoles() []AgentRole {
	return []AgentRole{RoleArchitect, RoleBackend, RoleFrontend, RoleQATester, RoleDevOps, RoleSecurity}
}

// Valid reports whether r is a known role, including the supervisor.
func (r AgentRole) Valid() bool {
	if r == RoleSupervisor {
		return true
	}
	for _, known := range WorkerRoles() {
		if r == known {
			return true
		}
	}
	return false
}

type roleRule struct {
	role     AgentRole
	keywords []string
}

// Checked in order; the first rule with a matching keyword wins.
var roleRules = []roleRule{
	{RoleArchitect, []string{"design", "architecture", "schema"}},
	{RoleBackend, []string{"api", "database", "backend"}},
	{RoleFrontend, []string{"ui", "component", "frontend"}},
	{RoleQATester, []string{"test", "qa"}},
	{RoleDevOps, []string{"deploy", "docker", "ci", "cd"}},
	{RoleSecurity, []string{"security", "audit"}},
}

// ClassifyRole assigns a role from a feature's name, falling back to its
// description, and finally to backend. Keywords of three letters or fewer
// must match a whole word so "build" is not mistaken for "ui".
func ClassifyRole(name, description string) AgentRole {
	for _, text := range []string{name, description} {
		if role, ok := matchRole(text); ok {
			return role
		}
	}
	return RoleBackend
}

func matchRole(text string) (AgentRole, bool) {
	lower := strings.ToLower(text)
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = true
	}

	for _, rule := range roleRules {
		for _, kw := range rule.keywords {
			if len(kw) <= 3 {
				if words[kw] {
					return rule.role, true
				}
				continue
			}
			if strings.Contains(lower, kw) {
				return rule.role, true
			}
		}
	}
	return "", false
}
