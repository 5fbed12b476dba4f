package scheduler

import "testing"

func TestClassifyRole(t *testing.T) {
	tests := []struct {
		name, description string
		want              AgentRole
	}{
		{"Database schema", "", RoleArchitect},
		{"System architecture", "", RoleArchitect},
		{"Orders API", "", RoleBackend},
		{"User database", "", RoleBackend},
		{"Login UI", "", RoleFrontend},
		{"Navbar component", "", RoleFrontend},
		{"Load tests", "", RoleQATester},
		{"QA sign-off", "", RoleQATester},
		{"Docker images", "", RoleDevOps},
		{"CI/CD pipeline", "", RoleDevOps},
		{"Security review", "", RoleSecurity},
		{"Dependency audit", "", RoleSecurity},
		{"Build pipeline", "", RoleBackend}, // "build" must not match "ui"
		{"Payments", "Expose a REST API for refunds", RoleBackend},
		{"Payments", "Render the checkout component", RoleFrontend},
		{"Payments", "", RoleBackend},
		{"", "", RoleBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.description, func(t *testing.T) {
			got := ClassifyRole(tt.name, tt.description)
			if got != tt.want {
				t.Errorf("ClassifyRole(%q, %q) = %s, want %s", tt.name, tt.description, got, tt.want)
			}
			if again := ClassifyRole(tt.name, tt.description); again != got {
				t.Errorf("ClassifyRole not stable: %s then %s", got, again)
			}
			if !got.Valid() {
				t.Errorf("ClassifyRole returned unknown role %q", got)
			}
		})
	}
}

func TestAgentRoleValid(t *testing.T) {
	if !RoleSupervisor.Valid() {
		t.Error("supervisor should be valid")
	}
	if AgentRole("designer").Valid() {
		t.Error("designer should not be valid")
	}
	if len(WorkerRoles()) != 6 {
		t.Errorf("WorkerRoles() = %v, want 6 roles", WorkerRoles())
	}
}
