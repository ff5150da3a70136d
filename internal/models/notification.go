package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EntityKind enumerates the entities a notification may point at.
type EntityKind string

const (
	EntityWorkOrder  EntityKind = "WORK_ORDER"
	EntityPMSchedule EntityKind = "PM_SCHEDULE"
	EntityAsset      EntityKind = "ASSET"
)

// IsValidEntityKind checks if a kind is known.
func IsValidEntityKind(k EntityKind) bool {
	switch k {
	case EntityWorkOrder, EntityPMSchedule, EntityAsset:
		return true
	default:
		return false
	}
}

// EntityRef is a typed reference to a related entity.
type EntityRef struct {
	Kind EntityKind         `bson:"kind" json:"kind"`
	ID   primitive.ObjectID `bson:"id" json:"id"`
}

// Notification is a delivery-agnostic record addressed to one user.
type Notification struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         primitive.ObjectID `bson:"user_id" json:"user_id"`
	OrganizationID primitive.ObjectID `bson:"organization_id" json:"organization_id"`
	Title          string             `bson:"title" json:"title"`
	Message        string             `bson:"message" json:"message"`
	Priority       Priority           `bson:"priority" json:"priority"`
	Related        EntityRef          `bson:"related" json:"related"`
	ActionURL      string             `bson:"action_url,omitempty" json:"action_url,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}
