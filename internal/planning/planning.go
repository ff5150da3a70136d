package planning

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-pm/internal/clock"
	"github.com/ukydev/fleet-pm/internal/db"
	"github.com/ukydev/fleet-pm/internal/models"
	"github.com/ukydev/fleet-pm/internal/trigger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Service administers PM task templates and schedules.
type Service struct {
	store  db.Store
	assets db.AssetRegistry
	clock  clock.Clock
	log    log.FieldLogger
}

// NewService creates a planning service.
func NewService(store db.Store, assets db.AssetRegistry, c clock.Clock, logger log.FieldLogger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{store: store, assets: assets, clock: clock.OrSystem(c), log: logger}
}

func validateTask(task models.PMTask) error {
	if strings.TrimSpace(task.Title) == "" {
		return models.Invalid("title", "is required")
	}
	if task.EstimatedMinutes < 0 {
		return models.Invalid("estimated_minutes", "must not be negative")
	}
	return nil
}

// CreateTask stores a new template.
func (s *Service) CreateTask(ctx context.Context, task models.PMTask) (*models.PMTask, error) {
	if err := validateTask(task); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	task.ID = primitive.NewObjectID()
	task.CreatedAt = now
	task.UpdatedAt = now

	err := s.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		return tx.InsertPMTask(ctx, task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask edits a template. Work order tasks already generated from it
// keep their snapshot.
func (s *Service) UpdateTask(ctx context.Context, task models.PMTask) (*models.PMTask, error) {
	if err := validateTask(task); err != nil {
		return nil, err
	}
	var updated models.PMTask
	err := s.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		existing, err := tx.FindPMTask(ctx, task.ID)
		if err != nil {
			return err
		}
		updated = task
		updated.CreatedAt = existing.CreatedAt
		updated.UpdatedAt = s.clock.Now()
		return tx.UpdatePMTask(ctx, updated)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteTask removes a template that no schedule references.
func (s *Service) DeleteTask(ctx context.Context, id primitive.ObjectID) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		if _, err := tx.FindPMTask(ctx, id); err != nil {
			return err
		}
		n, err := tx.CountSchedulesReferencingTask(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("delete pm task %s: %w", id.Hex(), models.ErrTaskReferenced)
		}
		return tx.DeletePMTask(ctx, id)
	})
}

// ScheduleInput describes a new PM schedule.
type ScheduleInput struct {
	Title    string
	AssetID  primitive.ObjectID
	Tasks    []models.TaskLink
	Triggers []models.PMTrigger
}

// CreateSchedule validates and stores a schedule, projecting its first
// nextDue from the triggers.
func (s *Service) CreateSchedule(ctx context.Context, in ScheduleInput) (*models.PMSchedule, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, models.Invalid("title", "is required")
	}
	if in.AssetID.IsZero() {
		return nil, models.Invalid("asset_id", "is required")
	}
	if len(in.Triggers) == 0 {
		return nil, models.Invalid("triggers", "at least one trigger is required")
	}
	for _, t := range in.Triggers {
		if err := trigger.Validate(t); err != nil {
			return nil, err
		}
	}
	if _, err := s.assets.GetAsset(ctx, in.AssetID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	schedule := models.PMSchedule{
		ID:           primitive.NewObjectID(),
		Title:        in.Title,
		AssetID:      in.AssetID,
		OrderedTasks: append([]models.TaskLink(nil), in.Tasks...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, t := range in.Triggers {
		t = t.Clone()
		if t.ID.IsZero() {
			t.ID = primitive.NewObjectID()
		}
		t.PMScheduleID = schedule.ID
		if t.Kind == models.TriggerEventBased && t.Event == nil {
			t.Event = &models.EventState{}
		}
		schedule.Triggers = append(schedule.Triggers, t)
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		for _, link := range schedule.OrderedTasks {
			if _, err := tx.FindPMTask(ctx, link.PMTaskID); err != nil {
				return err
			}
		}
		next, err := trigger.ProjectNextDue(ctx, tx, schedule, now)
		if err != nil {
			return err
		}
		schedule.NextDue = next
		return tx.InsertSchedule(ctx, schedule)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(log.Fields{
		"schedule_id": schedule.ID.Hex(),
		"asset_id":    schedule.AssetID.Hex(),
		"triggers":    len(schedule.Triggers),
	}).Info("PM schedule created")
	return &schedule, nil
}

// DeleteSchedule removes a schedule that has no open work orders.
func (s *Service) DeleteSchedule(ctx context.Context, id primitive.ObjectID) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		if _, err := tx.FindSchedule(ctx, id); err != nil {
			return err
		}
		open, err := tx.ListWorkOrders(ctx, db.WorkOrderFilter{
			PMScheduleID: &id,
			Statuses:     []models.WorkOrderStatus{models.WorkOrderOpen, models.WorkOrderInProgress, models.WorkOrderOnHold},
		})
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return fmt.Errorf("delete pm schedule %s: %w", id.Hex(), models.ErrScheduleInUse)
		}
		return tx.DeleteSchedule(ctx, id)
	})
}
