package models

import (
	"testing"
)

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		expected bool
	}{
		{"admin role", RoleAdmin, true},
		{"manager role", RoleManager, true},
		{"technician role", RoleTechnician, true},
		{"operator role", RoleOperator, true},
		{"viewer role", RoleViewer, true},
		{"invalid role", "invalid", false},
		{"empty role", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidRole(tt.role)
			if result != tt.expected {
				t.Errorf("IsValidRole(%s) = %v, want %v", tt.role, result, tt.expected)
			}
		})
	}
}

func TestUser_CanReceiveEscalation(t *testing.T) {
	roles := []Role{RoleManager, RoleAdmin}

	tests := []struct {
		name     string
		user     *User
		expected bool
	}{
		{"active manager", &User{Role: RoleManager, IsActive: true}, true},
		{"active admin", &User{Role: RoleAdmin, IsActive: true}, true},
		{"inactive manager", &User{Role: RoleManager, IsActive: false}, false},
		{"technician", &User{Role: RoleTechnician, IsActive: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.CanReceiveEscalation(roles); got != tt.expected {
				t.Errorf("CanReceiveEscalation() = %v, want %v", got, tt.expected)
			}
		})
	}
}
