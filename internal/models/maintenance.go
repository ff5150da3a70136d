package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// MaintenanceType classifies a history record.
type MaintenanceType string

const (
	MaintenancePreventive  MaintenanceType = "PREVENTIVE"
	MaintenanceCorrective  MaintenanceType = "CORRECTIVE"
	MaintenanceEmergency   MaintenanceType = "EMERGENCY"
	MaintenanceInspection  MaintenanceType = "INSPECTION"
	MaintenanceCalibration MaintenanceType = "CALIBRATION"
)

// MaintenanceHistory is the append-only record of one work order closure.
type MaintenanceHistory struct {
	ID              primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	AssetID         primitive.ObjectID   `json:"asset_id" bson:"asset_id"`
	WorkOrderID     primitive.ObjectID   `json:"work_order_id" bson:"work_order_id"`
	PMScheduleID    *primitive.ObjectID  `json:"pm_schedule_id,omitempty" bson:"pm_schedule_id,omitempty"`
	Type            MaintenanceType      `json:"type" bson:"type"`
	DurationMinutes int                  `json:"duration_minutes" bson:"duration_minutes"`
	LaborCost       float64              `json:"labor_cost" bson:"labor_cost"`
	PartsCost       float64              `json:"parts_cost" bson:"parts_cost"`
	IsCompleted     bool                 `json:"is_completed" bson:"is_completed"`
	CompletedAt     time.Time            `json:"completed_at" bson:"completed_at"`
	FailedTaskIDs   []primitive.ObjectID `json:"failed_task_ids,omitempty" bson:"failed_task_ids,omitempty"`
	Notes           string               `json:"notes" bson:"notes"`
}
