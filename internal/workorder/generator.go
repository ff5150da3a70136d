package workorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-pm/internal/clock"
	"github.com/ukydev/fleet-pm/internal/db"
	"github.com/ukydev/fleet-pm/internal/models"
	"github.com/ukydev/fleet-pm/internal/trigger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Skip reasons reported by Generate.
const (
	SkipOpenWorkOrder = "open_work_order"
	SkipNotDue        = "not_due"
)

// Result is the outcome of one generation attempt. Exactly one of WorkOrder
// and SkipReason is set.
type Result struct {
	WorkOrder  *models.WorkOrder
	Tasks      []models.WorkOrderTask
	SkipReason string
	// ExistingID is the open work order that blocked generation, when known.
	ExistingID *primitive.ObjectID
}

// Skipped reports whether generation was a no-op.
func (r *Result) Skipped() bool {
	return r.SkipReason != ""
}

// Generator turns due schedules into work orders.
type Generator struct {
	store   db.Store
	assets  db.AssetRegistry
	checker trigger.Checker
	policy  Policy
	clock   clock.Clock
	log     log.FieldLogger
}

// NewGenerator creates a work order generator.
func NewGenerator(store db.Store, assets db.AssetRegistry, checker trigger.Checker, policy Policy, c clock.Clock, logger log.FieldLogger) *Generator {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Generator{
		store:   store,
		assets:  assets,
		checker: checker,
		policy:  policy,
		clock:   clock.OrSystem(c),
		log:     logger,
	}
}

// FormatHumanID renders a work order sequence number.
func FormatHumanID(n int64) string {
	return fmt.Sprintf("WO-%06d", n)
}

// Generate creates a work order for the schedule if it is still due at asOf
// and has no open work order. The guard, the creation and the trigger
// advance commit together.
func (g *Generator) Generate(ctx context.Context, schedule models.PMSchedule, asOf time.Time) (*Result, error) {
	var result *Result
	err := g.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		result, err = g.generate(ctx, tx, schedule.ID, asOf)
		return err
	})
	if errors.Is(err, models.ErrDuplicateOpenWorkOrder) {
		// A concurrent generation won the race.
		result, err = &Result{SkipReason: SkipOpenWorkOrder}, nil
	}
	if err != nil {
		return nil, err
	}

	fields := log.Fields{
		"schedule_id": schedule.ID.Hex(),
		"as_of":       asOf.Format(time.RFC3339),
	}
	if result.Skipped() {
		fields["reason"] = result.SkipReason
		if result.ExistingID != nil {
			fields["work_order_id"] = result.ExistingID.Hex()
		}
		g.log.WithFields(fields).Info("Skipped work order generation")
		return result, nil
	}
	fields["work_order_id"] = result.WorkOrder.ID.Hex()
	fields["human_id"] = result.WorkOrder.HumanID
	fields["priority"] = result.WorkOrder.Priority
	g.log.WithFields(fields).Info("Generated preventive work order")
	return result, nil
}

func (g *Generator) generate(ctx context.Context, tx db.Tx, scheduleID primitive.ObjectID, asOf time.Time) (*Result, error) {
	schedule, err := tx.FindSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	open, err := tx.FindOpenWorkOrder(ctx, schedule.ID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		id := open.ID
		return &Result{SkipReason: SkipOpenWorkOrder, ExistingID: &id}, nil
	}

	decisions, err := g.checker.Evaluate(ctx, tx, *schedule, asOf)
	if err != nil {
		return nil, err
	}
	if !trigger.AnyDue(decisions) {
		return &Result{SkipReason: SkipNotDue}, nil
	}

	asset, err := g.assets.GetAsset(ctx, schedule.AssetID)
	if err != nil {
		return nil, err
	}

	templates := make([]models.PMTask, 0, len(schedule.OrderedTasks))
	estimated := 0
	for _, link := range schedule.OrderedTasks {
		tpl, err := tx.FindPMTask(ctx, link.PMTaskID)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *tpl)
		estimated += tpl.EstimatedMinutes
	}

	seq, err := tx.NextWorkOrderNumber(ctx)
	if err != nil {
		return nil, err
	}
	now := g.clock.Now()
	due := asOf
	sid := schedule.ID
	wo := models.WorkOrder{
		ID:             primitive.NewObjectID(),
		HumanID:        FormatHumanID(seq),
		Title:          "PM: " + schedule.Title,
		Description:    describe(schedule, decisions),
		Priority:       g.policy.PriorityFor(asset.Criticality),
		AssetID:        schedule.AssetID,
		OrganizationID: asset.OrganizationID,
		PMScheduleID:   &sid,
		EstimatedHours: float64(estimated) / 60,
		DueAt:          &due,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	wo.SetStatus(models.WorkOrderOpen)
	if err := tx.InsertWorkOrder(ctx, wo); err != nil {
		return nil, err
	}

	tasks := make([]models.WorkOrderTask, len(templates))
	for i, tpl := range templates {
		origin := tpl.ID
		tasks[i] = models.WorkOrderTask{
			ID:                 primitive.NewObjectID(),
			WorkOrderID:        wo.ID,
			Title:              tpl.Title,
			Description:        tpl.Procedure,
			SafetyRequirements: tpl.SafetyRequirements,
			ToolsAndParts:      tpl.ToolsAndParts,
			Required:           schedule.OrderedTasks[i].Required,
			Status:             models.TaskNotStarted,
			OrderIndex:         i,
			OriginPMTaskID:     &origin,
		}
	}
	if len(tasks) > 0 {
		if err := tx.InsertWorkOrderTasks(ctx, tasks); err != nil {
			return nil, err
		}
	}

	trigger.Advance(schedule, decisions, asOf)
	next, err := trigger.ProjectNextDue(ctx, tx, *schedule, asOf)
	if err != nil {
		return nil, err
	}
	schedule.NextDue = next
	schedule.UpdatedAt = now
	if err := tx.UpdateSchedule(ctx, *schedule); err != nil {
		return nil, err
	}

	return &Result{WorkOrder: &wo, Tasks: tasks}, nil
}

func describe(schedule *models.PMSchedule, decisions []trigger.Decision) string {
	var reasons []string
	for _, d := range decisions {
		if d.Due {
			reasons = append(reasons, fmt.Sprintf("%s (%s)", d.Kind, d.Reason))
		}
	}
	return fmt.Sprintf("Preventive maintenance for schedule %q. Triggered by: %s.", schedule.Title, strings.Join(reasons, ", "))
}
