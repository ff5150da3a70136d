package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents user roles in the system
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleTechnician Role = "technician"
	RoleOperator   Role = "operator"
	RoleViewer     Role = "viewer"
)

// User is the membership record read from the role directory.
type User struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrganizationID primitive.ObjectID `bson:"organization_id" json:"organization_id"`
	Username       string             `bson:"username" json:"username"`
	Email          string             `bson:"email" json:"email"`
	Role           Role               `bson:"role" json:"role"`
	IsActive       bool               `bson:"is_active" json:"is_active"`
}

// ActionClaims are the verified contents of a signed action link.
type ActionClaims struct {
	UserID      string    `json:"user_id"`
	WorkOrderID string    `json:"work_order_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleTechnician, RoleOperator, RoleViewer:
		return true
	default:
		return false
	}
}

// CanReceiveEscalation reports whether a user should be targeted for the given escalation roles.
func (u *User) CanReceiveEscalation(roles []Role) bool {
	if !u.IsActive {
		return false
	}
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}
