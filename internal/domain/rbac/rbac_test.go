package rbac

import (
	"testing"
)

func TestCanManage(t *testing.T) {
	tests := []struct {
		name   string
		actor  string
		target string
		want   bool
	}{
		{name: "admin управляет водителем", actor: RoleAdmin, target: RoleDriver, want: true},
		{name: "admin управляет admin", actor: RoleAdmin, target: RoleAdmin, want: true},
		{name: "admin не управляет super_admin", actor: RoleAdmin, target: RoleSuperAdmin, want: false},
		{name: "super_admin управляет всеми", actor: RoleSuperAdmin, target: RoleSuperAdmin, want: true},
		{name: "council не управляет admin", actor: RoleCouncil, target: RoleAdmin, want: false},
		{name: "compliance_officer управляет council", actor: RoleComplianceOfficer, target: RoleCouncil, want: true},
		{name: "неизвестная роль субъекта", actor: "guest", target: RoleDriver, want: false},
		{name: "неизвестная роль цели", actor: RoleDispatcher, target: "legacy", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanManage(tt.actor, tt.target)
			if got != tt.want {
				t.Errorf("CanManage(%q, %q) = %v, хотели %v", tt.actor, tt.target, got, tt.want)
			}
		})
	}
}

func TestAllowList(t *testing.T) {
	allow := NewAllowList([]string{RoleAdmin, RoleCouncil, RoleSuperAdmin, RoleComplianceOfficer})

	tests := []struct {
		role string
		want bool
	}{
		{RoleAdmin, true},
		{RoleCouncil, true},
		{RoleSuperAdmin, true},
		{RoleComplianceOfficer, true},
		{RoleDriver, false},
		{RoleDispatcher, false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			if got := allow.Allows(tt.role); got != tt.want {
				t.Errorf("Allows(%q) = %v, хотели %v", tt.role, got, tt.want)
			}
		})
	}
}

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{RoleAdmin, true},
		{RoleDriver, true},
		{RoleSuperAdmin, true},
		{"invalid", false},
		{"", false},
		{"superadmin", false},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			got := IsValidRole(tt.role)
			if got != tt.want {
				t.Errorf("IsValidRole(%q) = %v, хотели %v", tt.role, got, tt.want)
			}
		})
	}
}
