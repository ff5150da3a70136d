package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-pm/internal/db"
	"github.com/ukydev/fleet-pm/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Outcome describes how a work order closed.
type Outcome struct {
	Completed bool
	ClosedAt  time.Time
}

// Recorder writes one history row per closed work order.
type Recorder struct {
	store     db.Store
	laborRate float64
	log       log.FieldLogger
}

// NewRecorder creates a history recorder. laborRate is the cost of one
// logged hour.
func NewRecorder(store db.Store, laborRate float64, logger log.FieldLogger) *Recorder {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Recorder{store: store, laborRate: laborRate, log: logger}
}

// Record appends the history row for wo inside the caller's transaction.
// tasks is the full checklist of the work order.
func (r *Recorder) Record(ctx context.Context, tx db.HistoryCollection, wo models.WorkOrder, tasks []models.WorkOrderTask, outcome Outcome) (*models.MaintenanceHistory, error) {
	minutes := TotalMinutes(tasks)
	record := models.MaintenanceHistory{
		ID:              primitive.NewObjectID(),
		AssetID:         wo.AssetID,
		WorkOrderID:     wo.ID,
		Type:            models.MaintenanceCorrective,
		DurationMinutes: minutes,
		LaborCost:       float64(minutes) / 60 * r.laborRate,
		IsCompleted:     outcome.Completed,
		CompletedAt:     outcome.ClosedAt,
		Notes:           notes(tasks, outcome.Completed),
	}
	if wo.PMScheduleID != nil {
		id := *wo.PMScheduleID
		record.PMScheduleID = &id
		record.Type = models.MaintenancePreventive
	}
	for _, t := range tasks {
		if t.Status == models.TaskFailed {
			record.FailedTaskIDs = append(record.FailedTaskIDs, t.ID)
		}
	}

	if err := tx.InsertHistory(ctx, record); err != nil {
		return nil, fmt.Errorf("record history for %s: %w", wo.HumanID, err)
	}
	r.log.WithFields(log.Fields{
		"work_order_id": wo.ID.Hex(),
		"completed":     record.IsCompleted,
		"minutes":       record.DurationMinutes,
	}).Debug("Maintenance history recorded")
	return &record, nil
}

// ForWorkOrder returns the history row of a work order, or nil when it has
// not closed yet.
func (r *Recorder) ForWorkOrder(ctx context.Context, workOrderID primitive.ObjectID) (*models.MaintenanceHistory, error) {
	var record *models.MaintenanceHistory
	err := r.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		rows, err := tx.ListHistory(ctx, db.HistoryFilter{WorkOrderID: &workOrderID})
		if err != nil {
			return err
		}
		record = nil
		if len(rows) > 0 {
			record = &rows[0]
		}
		return nil
	})
	return record, err
}

// ForAsset returns every history row of an asset.
func (r *Recorder) ForAsset(ctx context.Context, assetID primitive.ObjectID) ([]models.MaintenanceHistory, error) {
	var rows []models.MaintenanceHistory
	err := r.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		rows, err = tx.ListHistory(ctx, db.HistoryFilter{AssetID: &assetID})
		return err
	})
	return rows, err
}

// TotalMinutes sums the actual minutes logged on a checklist.
func TotalMinutes(tasks []models.WorkOrderTask) int {
	total := 0
	for _, t := range tasks {
		total += t.ActualMinutes
	}
	return total
}

func notes(tasks []models.WorkOrderTask, completed bool) string {
	if completed {
		skipped := 0
		for _, t := range tasks {
			if t.Status == models.TaskSkipped {
				skipped++
			}
		}
		return fmt.Sprintf("%d of %d tasks completed, %d skipped", len(tasks)-skipped, len(tasks), skipped)
	}

	var failed []string
	for _, t := range tasks {
		if t.Status != models.TaskFailed {
			continue
		}
		line := t.Title
		if t.Notes != "" {
			line += ": " + t.Notes
		}
		failed = append(failed, line)
	}
	return "Failed tasks: " + strings.Join(failed, "; ")
}
