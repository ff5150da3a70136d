package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Criticality ranks how important an asset is to operations.
type Criticality string

const (
	CriticalityLow       Criticality = "LOW"
	CriticalityMedium    Criticality = "MEDIUM"
	CriticalityHigh      Criticality = "HIGH"
	CriticalityImportant Criticality = "IMPORTANT"
)

// IsValidCriticality checks if a criticality is known.
func IsValidCriticality(c Criticality) bool {
	switch c {
	case CriticalityLow, CriticalityMedium, CriticalityHigh, CriticalityImportant:
		return true
	default:
		return false
	}
}

// Asset is the read-only view of a registered piece of equipment.
type Asset struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name           string             `bson:"name" json:"name"`
	Criticality    Criticality        `bson:"criticality" json:"criticality"`
	OrganizationID primitive.ObjectID `bson:"organization_id" json:"organization_id"`
}
