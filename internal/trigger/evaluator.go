package trigger

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-pm/internal/clock"
	"github.com/ukydev/fleet-pm/internal/db"
	"github.com/ukydev/fleet-pm/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DueSchedule is a schedule with at least one due trigger.
type DueSchedule struct {
	Schedule  models.PMSchedule
	Decisions []Decision
}

// Evaluator answers which schedules are due and latches event triggers.
type Evaluator struct {
	store   db.Store
	checker Checker
	clock   clock.Clock
	log     log.FieldLogger
}

// NewEvaluator creates a trigger evaluator. feed may be nil, in which case
// condition triggers are never due.
func NewEvaluator(store db.Store, feed ConditionFeed, c clock.Clock, logger log.FieldLogger) *Evaluator {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Evaluator{
		store:   store,
		checker: Checker{Feed: feed, Log: logger},
		clock:   clock.OrSystem(c),
		log:     logger,
	}
}

// Checker returns the per-schedule checker used by this evaluator.
func (e *Evaluator) Checker() Checker {
	return e.checker
}

// DueSchedules returns every schedule for which at least one active trigger
// is due at asOf. It has no side effects.
func (e *Evaluator) DueSchedules(ctx context.Context, asOf time.Time) ([]DueSchedule, error) {
	var due []DueSchedule
	err := e.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		schedules, err := tx.ListSchedules(ctx)
		if err != nil {
			return err
		}
		due = due[:0]
		for _, s := range schedules {
			decisions, err := e.checker.Evaluate(ctx, tx, s, asOf)
			if err != nil {
				return err
			}
			if AnyDue(decisions) {
				due = append(due, DueSchedule{Schedule: s, Decisions: decisions})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(log.Fields{
		"as_of": asOf.Format(time.RFC3339),
		"due":   len(due),
	}).Debug("Evaluated PM schedules")
	return due, nil
}

// FireEvent latches an EVENT_BASED trigger so its schedule is due at the
// next evaluation. Firing an already pending trigger is a no-op.
func (e *Evaluator) FireEvent(ctx context.Context, triggerID primitive.ObjectID) error {
	now := e.clock.Now()
	var scheduleID primitive.ObjectID
	err := e.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		schedule, err := tx.FindScheduleByTrigger(ctx, triggerID)
		if err != nil {
			return err
		}
		scheduleID = schedule.ID
		t := schedule.Trigger(triggerID)
		if t == nil {
			return models.NotFound("pm trigger", triggerID.Hex())
		}
		if t.Kind != models.TriggerEventBased {
			return models.Invalid("trigger.kind", "only EVENT_BASED triggers can be fired")
		}
		if !t.Active {
			return models.Invalid("trigger.active", "trigger is inactive")
		}
		if t.Event == nil {
			t.Event = &models.EventState{}
		}
		if t.Event.Pending {
			return nil
		}
		t.Event.Pending = true
		t.Event.FiredAt = &now
		schedule.UpdatedAt = now
		return tx.UpdateSchedule(ctx, *schedule)
	})
	if err != nil {
		return err
	}

	e.log.WithFields(log.Fields{
		"trigger_id":  triggerID.Hex(),
		"schedule_id": scheduleID.Hex(),
	}).Info("Event trigger fired")
	return nil
}
