package planning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-pm/internal/clock"
	"github.com/ukydev/fleet-pm/internal/db"
	"github.com/ukydev/fleet-pm/internal/models"
	"github.com/ukydev/fleet-pm/internal/trigger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var day0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *db.MemoryStore, models.Asset) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	store := db.NewMemoryStore()
	registry := db.NewMemoryRegistry()
	asset := models.Asset{ID: primitive.NewObjectID(), Name: "Compressor 7", Criticality: models.CriticalityHigh, OrganizationID: primitive.NewObjectID()}
	registry.AddAsset(asset)
	return NewService(store, registry, clock.NewManual(day0), logger), store, asset
}

func TestCreateTask(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, models.PMTask{Title: "Replace Filter", EstimatedMinutes: 30})
	require.NoError(t, err)
	assert.False(t, task.ID.IsZero())
	assert.Equal(t, day0, task.CreatedAt)

	_, err = svc.CreateTask(ctx, models.PMTask{Title: "  "})
	var verr *models.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = svc.CreateTask(ctx, models.PMTask{Title: "Grease", EstimatedMinutes: -1})
	assert.True(t, errors.As(err, &verr))
}

func TestUpdateTask(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, models.PMTask{Title: "Replace Filter", Procedure: "v1"})
	require.NoError(t, err)

	task.Procedure = "v2"
	updated, err := svc.UpdateTask(ctx, *task)
	require.NoError(t, err)
	assert.Equal(t, "v2", updated.Procedure)
	assert.Equal(t, task.CreatedAt, updated.CreatedAt)

	_, err = svc.UpdateTask(ctx, models.PMTask{ID: primitive.NewObjectID(), Title: "Ghost"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteTask_ReferentialGuard(t *testing.T) {
	svc, _, asset := newService(t)
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, models.PMTask{Title: "Replace Filter"})
	require.NoError(t, err)
	schedule, err := svc.CreateSchedule(ctx, ScheduleInput{
		Title:    "Weekly Filter Change",
		AssetID:  asset.ID,
		Tasks:    []models.TaskLink{{PMTaskID: task.ID, Required: true}},
		Triggers: []models.PMTrigger{trigger.NewTime(7, models.UnitDays, nil)},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteTask(ctx, task.ID), models.ErrTaskReferenced)

	require.NoError(t, svc.DeleteSchedule(ctx, schedule.ID))
	require.NoError(t, svc.DeleteTask(ctx, task.ID))
	assert.ErrorIs(t, svc.DeleteTask(ctx, task.ID), models.ErrNotFound)
}

func TestCreateSchedule(t *testing.T) {
	svc, store, asset := newService(t)
	ctx := context.Background()
	last := day0.AddDate(0, 0, -2)

	schedule, err := svc.CreateSchedule(ctx, ScheduleInput{
		Title:    "Weekly Filter Change",
		AssetID:  asset.ID,
		Triggers: []models.PMTrigger{trigger.NewTime(7, models.UnitDays, &last), {Kind: models.TriggerEventBased}},
	})
	require.NoError(t, err)
	require.NotNil(t, schedule.NextDue)
	assert.Equal(t, day0.AddDate(0, 0, 5), *schedule.NextDue)
	for _, tr := range schedule.Triggers {
		assert.Equal(t, schedule.ID, tr.PMScheduleID)
	}
	require.NotNil(t, schedule.Triggers[1].Event)

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		stored, err := tx.FindSchedule(ctx, schedule.ID)
		require.NoError(t, err)
		assert.Equal(t, "Weekly Filter Change", stored.Title)
		return nil
	}))
}

func TestCreateSchedule_Rejections(t *testing.T) {
	svc, _, asset := newService(t)
	ctx := context.Background()
	valid := []models.PMTrigger{trigger.NewTime(7, models.UnitDays, nil)}

	tests := []struct {
		name  string
		input ScheduleInput
		want  error
	}{
		{"missing title", ScheduleInput{AssetID: asset.ID, Triggers: valid}, nil},
		{"missing asset", ScheduleInput{Title: "x", Triggers: valid}, nil},
		{"no triggers", ScheduleInput{Title: "x", AssetID: asset.ID}, nil},
		{"bad trigger", ScheduleInput{Title: "x", AssetID: asset.ID, Triggers: []models.PMTrigger{trigger.NewTime(0, models.UnitDays, nil)}}, nil},
		{"unknown asset", ScheduleInput{Title: "x", AssetID: primitive.NewObjectID(), Triggers: valid}, models.ErrNotFound},
		{"unknown task", ScheduleInput{Title: "x", AssetID: asset.ID, Triggers: valid, Tasks: []models.TaskLink{{PMTaskID: primitive.NewObjectID()}}}, models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSchedule(ctx, tt.input)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				return
			}
			var verr *models.ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestDeleteSchedule_InUse(t *testing.T) {
	svc, store, asset := newService(t)
	ctx := context.Background()
	schedule, err := svc.CreateSchedule(ctx, ScheduleInput{
		Title:    "Weekly Filter Change",
		AssetID:  asset.ID,
		Triggers: []models.PMTrigger{trigger.NewTime(7, models.UnitDays, nil)},
	})
	require.NoError(t, err)

	wo := models.WorkOrder{ID: primitive.NewObjectID(), PMScheduleID: &schedule.ID, AssetID: asset.ID}
	wo.SetStatus(models.WorkOrderOpen)
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		return tx.InsertWorkOrder(ctx, wo)
	}))

	assert.ErrorIs(t, svc.DeleteSchedule(ctx, schedule.ID), models.ErrScheduleInUse)

	wo.SetStatus(models.WorkOrderCompleted)
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		return tx.UpdateWorkOrder(ctx, wo)
	}))
	assert.NoError(t, svc.DeleteSchedule(ctx, schedule.ID))
	assert.ErrorIs(t, svc.DeleteSchedule(ctx, schedule.ID), models.ErrNotFound)
}
