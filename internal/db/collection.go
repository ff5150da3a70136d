package db

import (
	"context"
	"time"

	"github.com/ukydev/fleet-pm/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store is the persistence port. Every read and write of the engine happens
// inside WithTx; fn's error aborts the transaction and nothing is persisted.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of collections visible inside one transaction.
type Tx interface {
	TemplateCollection
	ScheduleCollection
	WorkOrderCollection
	MeterCollection
	HistoryCollection
	NotificationCollection
}

// TemplateCollection defines the interface for PM task template operations.
type TemplateCollection interface {
	InsertPMTask(ctx context.Context, task models.PMTask) error
	FindPMTask(ctx context.Context, id primitive.ObjectID) (*models.PMTask, error)
	UpdatePMTask(ctx context.Context, task models.PMTask) error
	DeletePMTask(ctx context.Context, id primitive.ObjectID) error
}

// ScheduleCollection defines the interface for PM schedule operations. Triggers
// are stored inside their schedule.
type ScheduleCollection interface {
	InsertSchedule(ctx context.Context, schedule models.PMSchedule) error
	FindSchedule(ctx context.Context, id primitive.ObjectID) (*models.PMSchedule, error)
	FindScheduleByTrigger(ctx context.Context, triggerID primitive.ObjectID) (*models.PMSchedule, error)
	ListSchedules(ctx context.Context) ([]models.PMSchedule, error)
	CountSchedulesReferencingTask(ctx context.Context, taskID primitive.ObjectID) (int64, error)
	UpdateSchedule(ctx context.Context, schedule models.PMSchedule) error
	DeleteSchedule(ctx context.Context, id primitive.ObjectID) error
}

// WorkOrderFilter narrows ListWorkOrders. Zero fields are ignored.
type WorkOrderFilter struct {
	PMScheduleID *primitive.ObjectID
	AssetID      *primitive.ObjectID
	Statuses     []models.WorkOrderStatus
}

// WorkOrderCollection defines the interface for work orders and their checklists.
type WorkOrderCollection interface {
	NextWorkOrderNumber(ctx context.Context) (int64, error)
	InsertWorkOrder(ctx context.Context, wo models.WorkOrder) error
	FindWorkOrder(ctx context.Context, id primitive.ObjectID) (*models.WorkOrder, error)
	// FindOpenWorkOrder returns nil, nil when the schedule has no OPEN or IN_PROGRESS order.
	FindOpenWorkOrder(ctx context.Context, scheduleID primitive.ObjectID) (*models.WorkOrder, error)
	ListWorkOrders(ctx context.Context, filter WorkOrderFilter) ([]models.WorkOrder, error)
	UpdateWorkOrder(ctx context.Context, wo models.WorkOrder) error

	InsertWorkOrderTasks(ctx context.Context, tasks []models.WorkOrderTask) error
	FindWorkOrderTask(ctx context.Context, id primitive.ObjectID) (*models.WorkOrderTask, error)
	// ListWorkOrderTasks returns the checklist ordered by OrderIndex.
	ListWorkOrderTasks(ctx context.Context, workOrderID primitive.ObjectID) ([]models.WorkOrderTask, error)
	UpdateWorkOrderTask(ctx context.Context, task models.WorkOrderTask) error
}

// MeterCollection defines the interface for the append-only meter log.
type MeterCollection interface {
	InsertMeterReading(ctx context.Context, reading models.MeterReading) error
	// LatestMeterReading returns nil, nil when the meter has no readings.
	LatestMeterReading(ctx context.Context, assetID primitive.ObjectID, meterType string) (*models.MeterReading, error)
	// MeterReadingsSince returns readings at or after since, oldest first.
	MeterReadingsSince(ctx context.Context, assetID primitive.ObjectID, meterType string, since time.Time) ([]models.MeterReading, error)
}

// HistoryFilter narrows ListHistory. Zero fields are ignored.
type HistoryFilter struct {
	WorkOrderID *primitive.ObjectID
	AssetID     *primitive.ObjectID
}

// HistoryCollection defines the interface for the append-only maintenance history.
type HistoryCollection interface {
	InsertHistory(ctx context.Context, record models.MaintenanceHistory) error
	ListHistory(ctx context.Context, filter HistoryFilter) ([]models.MaintenanceHistory, error)
}

// NotificationFilter narrows ListNotifications. Zero fields are ignored.
type NotificationFilter struct {
	UserID  *primitive.ObjectID
	Related *models.EntityRef
}

// NotificationCollection defines the interface for notification records.
type NotificationCollection interface {
	InsertNotifications(ctx context.Context, notifications []models.Notification) error
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]models.Notification, error)
}

// AssetRegistry is the read-only asset lookup owned by another subsystem.
type AssetRegistry interface {
	GetAsset(ctx context.Context, id primitive.ObjectID) (*models.Asset, error)
}

// RoleDirectory resolves organization members holding a role.
type RoleDirectory interface {
	UsersWithRole(ctx context.Context, organizationID primitive.ObjectID, role models.Role) ([]primitive.ObjectID, error)
}
