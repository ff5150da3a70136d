package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WorkOrderStatus is the lifecycle state of a work order.
type WorkOrderStatus string

const (
	WorkOrderOpen       WorkOrderStatus = "OPEN"
	WorkOrderInProgress WorkOrderStatus = "IN_PROGRESS"
	WorkOrderOnHold     WorkOrderStatus = "ON_HOLD"
	WorkOrderCompleted  WorkOrderStatus = "COMPLETED"
	WorkOrderCanceled   WorkOrderStatus = "CANCELED"
)

// IsOpen reports whether the status counts against the one-open-order-per-schedule rule.
func (s WorkOrderStatus) IsOpen() bool {
	return s == WorkOrderOpen || s == WorkOrderInProgress
}

// IsTerminal reports whether no further transitions are allowed.
func (s WorkOrderStatus) IsTerminal() bool {
	return s == WorkOrderCompleted || s == WorkOrderCanceled
}

// Priority of a work order.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// IsValidPriority checks if a priority is known.
func IsValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// WorkOrder is an actionable unit of maintenance work.
type WorkOrder struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	HumanID          string              `bson:"human_id" json:"human_id"`
	Title            string              `bson:"title" json:"title"`
	Description      string              `bson:"description" json:"description"`
	Status           WorkOrderStatus     `bson:"status" json:"status"`
	Priority         Priority            `bson:"priority" json:"priority"`
	AssetID          primitive.ObjectID  `bson:"asset_id" json:"asset_id"`
	OrganizationID   primitive.ObjectID  `bson:"organization_id" json:"organization_id"`
	PMScheduleID     *primitive.ObjectID `bson:"pm_schedule_id,omitempty" json:"pm_schedule_id,omitempty"`
	FollowUpOf       *primitive.ObjectID `bson:"follow_up_of,omitempty" json:"follow_up_of,omitempty"`
	AssignedToID     *primitive.ObjectID `bson:"assigned_to_id,omitempty" json:"assigned_to_id,omitempty"`
	EstimatedHours   float64             `bson:"estimated_hours" json:"estimated_hours"`
	TotalLoggedHours float64             `bson:"total_logged_hours" json:"total_logged_hours"`
	DueAt            *time.Time          `bson:"due_at,omitempty" json:"due_at,omitempty"`
	CreatedAt        time.Time           `bson:"created_at" json:"created_at"`
	StartedAt        *time.Time          `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt      *time.Time          `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	UpdatedAt        time.Time           `bson:"updated_at" json:"updated_at"`

	// ActiveScheduleID mirrors PMScheduleID while the order is open and is
	// cleared otherwise. The store keeps a sparse unique index on it.
	ActiveScheduleID *primitive.ObjectID `bson:"active_schedule_id,omitempty" json:"-"`
}

// SetStatus changes the status and keeps ActiveScheduleID in step.
func (w *WorkOrder) SetStatus(s WorkOrderStatus) {
	w.Status = s
	if s.IsOpen() && w.PMScheduleID != nil {
		id := *w.PMScheduleID
		w.ActiveScheduleID = &id
		return
	}
	w.ActiveScheduleID = nil
}

// Clone returns a deep copy.
func (w WorkOrder) Clone() WorkOrder {
	out := w
	out.PMScheduleID = cloneID(w.PMScheduleID)
	out.FollowUpOf = cloneID(w.FollowUpOf)
	out.AssignedToID = cloneID(w.AssignedToID)
	out.ActiveScheduleID = cloneID(w.ActiveScheduleID)
	out.DueAt = cloneTime(w.DueAt)
	out.StartedAt = cloneTime(w.StartedAt)
	out.CompletedAt = cloneTime(w.CompletedAt)
	return out
}

// TaskStatus is the state of one checklist line.
type TaskStatus string

const (
	TaskNotStarted TaskStatus = "NOT_STARTED"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskSkipped    TaskStatus = "SKIPPED"
	TaskFailed     TaskStatus = "FAILED"
)

// IsTerminal reports whether the task can no longer change.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskSkipped || s == TaskFailed
}

// CanTransitionTo enforces forward-only task transitions.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskNotStarted:
		return next == TaskInProgress || next.IsTerminal()
	case TaskInProgress:
		return next.IsTerminal()
	default:
		return false
	}
}

// WorkOrderTask is a checklist line snapshotted from a PMTask at generation time.
type WorkOrderTask struct {
	ID                 primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	WorkOrderID        primitive.ObjectID  `bson:"work_order_id" json:"work_order_id"`
	Title              string              `bson:"title" json:"title"`
	Description        string              `bson:"description" json:"description"`
	SafetyRequirements string              `bson:"safety_requirements" json:"safety_requirements"`
	ToolsAndParts      string              `bson:"tools_and_parts" json:"tools_and_parts"`
	Required           bool                `bson:"required" json:"required"`
	Status             TaskStatus          `bson:"status" json:"status"`
	OrderIndex         int                 `bson:"order_index" json:"order_index"`
	Notes              string              `bson:"notes" json:"notes"`
	ActualMinutes      int                 `bson:"actual_minutes" json:"actual_minutes"`
	CompletedAt        *time.Time          `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	OriginPMTaskID     *primitive.ObjectID `bson:"origin_pm_task_id,omitempty" json:"origin_pm_task_id,omitempty"`
	RemediatesTaskID   *primitive.ObjectID `bson:"remediates_task_id,omitempty" json:"remediates_task_id,omitempty"`
}

// Clone returns a deep copy.
func (t WorkOrderTask) Clone() WorkOrderTask {
	out := t
	out.CompletedAt = cloneTime(t.CompletedAt)
	out.OriginPMTaskID = cloneID(t.OriginPMTaskID)
	out.RemediatesTaskID = cloneID(t.RemediatesTaskID)
	return out
}

func cloneID(id *primitive.ObjectID) *primitive.ObjectID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
