package workorder

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-pm/internal/clock"
	"github.com/ukydev/fleet-pm/internal/db"
	"github.com/ukydev/fleet-pm/internal/history"
	"github.com/ukydev/fleet-pm/internal/models"
	"github.com/ukydev/fleet-pm/internal/trigger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var day0 = time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)

// MockPublisher is a mock implementation of Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, n models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// MockLinks is a mock implementation of LinkBuilder
type MockLinks struct {
	mock.Mock
}

func (m *MockLinks) ActionURL(userID, workOrderID primitive.ObjectID) (string, error) {
	args := m.Called(userID, workOrderID)
	return args.String(0), args.Error(1)
}

type fixture struct {
	store     *db.MemoryStore
	registry  *db.MemoryRegistry
	clock     *clock.Manual
	hook      *test.Hook
	generator *Generator
	handler   *Handler
	publisher *MockPublisher
	links     *MockLinks
	asset     models.Asset
	managers  []primitive.ObjectID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	f := &fixture{
		store:     db.NewMemoryStore(),
		registry:  db.NewMemoryRegistry(),
		clock:     clock.NewManual(day0),
		hook:      hook,
		publisher: new(MockPublisher),
		links:     new(MockLinks),
	}
	org := primitive.NewObjectID()
	f.asset = models.Asset{ID: primitive.NewObjectID(), Name: "Air Handler A", Criticality: models.CriticalityHigh, OrganizationID: org}
	f.registry.AddAsset(f.asset)
	for i := 0; i < 2; i++ {
		id := primitive.NewObjectID()
		f.managers = append(f.managers, id)
		f.registry.AddUser(models.User{ID: id, OrganizationID: org, Role: models.RoleManager, IsActive: true})
	}
	f.registry.AddUser(models.User{ID: primitive.NewObjectID(), OrganizationID: org, Role: models.RoleManager, IsActive: false})
	f.registry.AddUser(models.User{ID: primitive.NewObjectID(), OrganizationID: org, Role: models.RoleTechnician, IsActive: true})
	f.registry.AddUser(models.User{ID: primitive.NewObjectID(), OrganizationID: primitive.NewObjectID(), Role: models.RoleManager, IsActive: true})

	policy := DefaultPolicy()
	policy.LaborRatePerHour = 60
	checker := trigger.Checker{Log: logger}
	f.generator = NewGenerator(f.store, f.registry, checker, policy, f.clock, logger)
	recorder := history.NewRecorder(f.store, policy.LaborRatePerHour, logger)
	f.handler = NewHandler(f.store, f.registry, recorder, policy, f.clock, logger, WithLinks(f.links), WithPublisher(f.publisher))
	return f
}

func (f *fixture) template(t *testing.T, title string, minutes int) models.PMTask {
	t.Helper()
	tpl := models.PMTask{ID: primitive.NewObjectID(), Title: title, Procedure: "Procedure for " + title, EstimatedMinutes: minutes}
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx db.Tx) error {
		return tx.InsertPMTask(ctx, tpl)
	}))
	return tpl
}

// weekly stores a schedule with a 7 day trigger last fired a week before day0.
func (f *fixture) weekly(t *testing.T, title string, templates ...models.PMTask) models.PMSchedule {
	t.Helper()
	last := day0.AddDate(0, 0, -7)
	return f.schedule(t, title, []models.PMTrigger{trigger.NewTime(7, models.UnitDays, &last)}, templates...)
}

func (f *fixture) schedule(t *testing.T, title string, triggers []models.PMTrigger, templates ...models.PMTask) models.PMSchedule {
	t.Helper()
	next := day0
	s := models.PMSchedule{ID: primitive.NewObjectID(), Title: title, AssetID: f.asset.ID, NextDue: &next, Triggers: triggers}
	for i := range s.Triggers {
		s.Triggers[i].PMScheduleID = s.ID
	}
	for _, tpl := range templates {
		s.OrderedTasks = append(s.OrderedTasks, models.TaskLink{PMTaskID: tpl.ID, Required: true})
	}
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx db.Tx) error {
		return tx.InsertSchedule(ctx, s)
	}))
	return s
}

func (f *fixture) load(t *testing.T, fn func(ctx context.Context, tx db.Tx) error) {
	t.Helper()
	require.NoError(t, f.store.WithTx(context.Background(), fn))
}

func (f *fixture) findSchedule(t *testing.T, id primitive.ObjectID) models.PMSchedule {
	t.Helper()
	var s *models.PMSchedule
	f.load(t, func(ctx context.Context, tx db.Tx) error {
		var err error
		s, err = tx.FindSchedule(ctx, id)
		return err
	})
	return *s
}

func (f *fixture) findWorkOrder(t *testing.T, id primitive.ObjectID) models.WorkOrder {
	t.Helper()
	var wo *models.WorkOrder
	f.load(t, func(ctx context.Context, tx db.Tx) error {
		var err error
		wo, err = tx.FindWorkOrder(ctx, id)
		return err
	})
	return *wo
}

func (f *fixture) tasks(t *testing.T, workOrderID primitive.ObjectID) []models.WorkOrderTask {
	t.Helper()
	var tasks []models.WorkOrderTask
	f.load(t, func(ctx context.Context, tx db.Tx) error {
		var err error
		tasks, err = tx.ListWorkOrderTasks(ctx, workOrderID)
		return err
	})
	return tasks
}

func (f *fixture) workOrders(t *testing.T, scheduleID primitive.ObjectID, statuses ...models.WorkOrderStatus) []models.WorkOrder {
	t.Helper()
	var out []models.WorkOrder
	f.load(t, func(ctx context.Context, tx db.Tx) error {
		var err error
		out, err = tx.ListWorkOrders(ctx, db.WorkOrderFilter{PMScheduleID: &scheduleID, Statuses: statuses})
		return err
	})
	return out
}

func (f *fixture) generate(t *testing.T, s models.PMSchedule) *Result {
	t.Helper()
	res, err := f.generator.Generate(context.Background(), s, f.clock.Now())
	require.NoError(t, err)
	require.False(t, res.Skipped(), "unexpected skip: %s", res.SkipReason)
	return res
}
