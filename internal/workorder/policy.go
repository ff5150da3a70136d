package workorder

import (
	"context"
	"time"

	"github.com/ukydev/fleet-pm/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Policy holds the tunable rules of generation and escalation.
type Policy struct {
	CriticalityPriority map[models.Criticality]models.Priority
	DefaultPriority     models.Priority
	EscalatedPriority   models.Priority
	RemediationWindow   time.Duration
	EscalationRoles     []models.Role
	LaborRatePerHour    float64
}

// DefaultPolicy maps HIGH assets to HIGH priority and everything else to
// MEDIUM, escalating to managers within three days.
func DefaultPolicy() Policy {
	return Policy{
		CriticalityPriority: map[models.Criticality]models.Priority{
			models.CriticalityHigh: models.PriorityHigh,
		},
		DefaultPriority:   models.PriorityMedium,
		EscalatedPriority: models.PriorityHigh,
		RemediationWindow: 72 * time.Hour,
		EscalationRoles:   []models.Role{models.RoleManager},
	}
}

// PriorityFor maps an asset criticality to a work order priority.
func (p Policy) PriorityFor(c models.Criticality) models.Priority {
	if prio, ok := p.CriticalityPriority[c]; ok {
		return prio
	}
	if p.DefaultPriority == "" {
		return models.PriorityMedium
	}
	return p.DefaultPriority
}

// Publisher delivers committed notifications to an external channel.
type Publisher interface {
	Publish(ctx context.Context, n models.Notification) error
}

// LinkBuilder produces the action URL placed on an escalation notification.
type LinkBuilder interface {
	ActionURL(userID, workOrderID primitive.ObjectID) (string, error)
}
