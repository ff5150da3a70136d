package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-pm/internal/clock"
	"github.com/ukydev/fleet-pm/internal/db"
	"github.com/ukydev/fleet-pm/internal/history"
	"github.com/ukydev/fleet-pm/internal/meter"
	"github.com/ukydev/fleet-pm/internal/models"
	"github.com/ukydev/fleet-pm/internal/planning"
	"github.com/ukydev/fleet-pm/internal/trigger"
	"github.com/ukydev/fleet-pm/internal/workorder"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds parallel generation during a tick.
const DefaultWorkers = 4

// Deps wires the engine to its collaborators.
type Deps struct {
	Store     db.Store
	Assets    db.AssetRegistry
	Directory db.RoleDirectory
	Feed      trigger.ConditionFeed
	Policy    workorder.Policy
	Links     workorder.LinkBuilder
	Publisher workorder.Publisher
	Clock     clock.Clock
	Logger    log.FieldLogger
	Workers   int
}

// Engine is the preventive maintenance core.
type Engine struct {
	Planning   *planning.Service
	Meters     *meter.Recorder
	Triggers   *trigger.Evaluator
	Generator  *workorder.Generator
	Completion *workorder.Handler
	History    *history.Recorder

	clock   clock.Clock
	workers int
	log     log.FieldLogger
}

// New assembles an engine.
func New(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	c := clock.OrSystem(d.Clock)
	workers := d.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	var opts []workorder.HandlerOption
	if d.Links != nil {
		opts = append(opts, workorder.WithLinks(d.Links))
	}
	if d.Publisher != nil {
		opts = append(opts, workorder.WithPublisher(d.Publisher))
	}

	evaluator := trigger.NewEvaluator(d.Store, d.Feed, c, logger.WithField("component", "trigger"))
	recorder := history.NewRecorder(d.Store, d.Policy.LaborRatePerHour, logger.WithField("component", "history"))
	return &Engine{
		Planning:   planning.NewService(d.Store, d.Assets, c, logger.WithField("component", "planning")),
		Meters:     meter.NewRecorder(d.Store, c, logger.WithField("component", "meter")),
		Triggers:   evaluator,
		Generator:  workorder.NewGenerator(d.Store, d.Assets, evaluator.Checker(), d.Policy, c, logger.WithField("component", "generator")),
		Completion: workorder.NewHandler(d.Store, d.Directory, recorder, d.Policy, c, logger.WithField("component", "completion"), opts...),
		History:    recorder,
		clock:      c,
		workers:    workers,
		log:        logger,
	}
}

// DueSchedules returns the schedules due at asOf.
func (e *Engine) DueSchedules(ctx context.Context, asOf time.Time) ([]trigger.DueSchedule, error) {
	return e.Triggers.DueSchedules(ctx, asOf)
}

// FireEvent latches an event trigger.
func (e *Engine) FireEvent(ctx context.Context, triggerID primitive.ObjectID) error {
	return e.Triggers.FireEvent(ctx, triggerID)
}

// Generate creates a work order for a due schedule.
func (e *Engine) Generate(ctx context.Context, schedule models.PMSchedule, asOf time.Time) (*workorder.Result, error) {
	return e.Generator.Generate(ctx, schedule, asOf)
}

// OnTaskStatusChanged applies a task status change and any closure it causes.
func (e *Engine) OnTaskStatusChanged(ctx context.Context, task models.WorkOrderTask, status models.TaskStatus) (*workorder.Outcome, error) {
	return e.Completion.OnTaskStatusChanged(ctx, task, status)
}

// TickReport summarizes one evaluation pass.
type TickReport struct {
	RunID     string
	AsOf      time.Time
	Due       int
	Generated []models.WorkOrder
	Skipped   map[primitive.ObjectID]string
	Failed    map[primitive.ObjectID]error
	Duration  time.Duration
}

// Tick evaluates every schedule at asOf and generates a work order for each
// due one. A failure on one schedule does not stop the others; it is
// reported and retried on the next tick.
func (e *Engine) Tick(ctx context.Context, asOf time.Time) (*TickReport, error) {
	start := e.clock.Now()
	report := &TickReport{
		RunID:   uuid.NewString(),
		AsOf:    asOf,
		Skipped: make(map[primitive.ObjectID]string),
		Failed:  make(map[primitive.ObjectID]error),
	}
	logger := e.log.WithField("run_id", report.RunID)

	due, err := e.Triggers.DueSchedules(ctx, asOf)
	if err != nil {
		return nil, err
	}
	report.Due = len(due)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(e.workers)
	for _, d := range due {
		schedule := d.Schedule
		g.Go(func() error {
			res, err := e.Generator.Generate(ctx, schedule, asOf)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed[schedule.ID] = err
			case res.Skipped():
				report.Skipped[schedule.ID] = res.SkipReason
			default:
				report.Generated = append(report.Generated, *res.WorkOrder)
			}
			return nil
		})
	}
	_ = g.Wait()
	report.Duration = e.clock.Now().Sub(start)

	for id, err := range report.Failed {
		logger.WithError(err).WithField("schedule_id", id.Hex()).Error("Work order generation failed")
	}
	logger.WithFields(log.Fields{
		"as_of":     asOf.Format(time.RFC3339),
		"due":       report.Due,
		"generated": len(report.Generated),
		"skipped":   len(report.Skipped),
		"failed":    len(report.Failed),
	}).Info("PM tick finished")
	return report, ctx.Err()
}
