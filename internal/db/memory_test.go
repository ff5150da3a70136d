package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-pm/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func openOrder(scheduleID primitive.ObjectID) models.WorkOrder {
	wo := models.WorkOrder{ID: primitive.NewObjectID(), PMScheduleID: &scheduleID, CreatedAt: time.Now()}
	wo.SetStatus(models.WorkOrderOpen)
	return wo
}

func TestMemoryStore_CommitsOnSuccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	task := models.PMTask{ID: primitive.NewObjectID(), Title: "Replace Filter"}

	err := store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertPMTask(ctx, task)
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		found, err := tx.FindPMTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, "Replace Filter", found.Title)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_RollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")
	task := models.PMTask{ID: primitive.NewObjectID()}

	err := store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.InsertPMTask(ctx, task))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_ = store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.FindPMTask(ctx, task.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
		return nil
	})
}

func TestMemoryStore_OneOpenWorkOrderPerSchedule(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	scheduleID := primitive.NewObjectID()
	first := openOrder(scheduleID)

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertWorkOrder(ctx, first)
	}))

	err := store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertWorkOrder(ctx, openOrder(scheduleID))
	})
	assert.ErrorIs(t, err, models.ErrDuplicateOpenWorkOrder)

	// Closing the first order frees the slot.
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		first.SetStatus(models.WorkOrderCanceled)
		if err := tx.UpdateWorkOrder(ctx, first); err != nil {
			return err
		}
		return tx.InsertWorkOrder(ctx, openOrder(scheduleID))
	}))

	_ = store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		open, err := tx.FindOpenWorkOrder(ctx, scheduleID)
		require.NoError(t, err)
		require.NotNil(t, open)
		assert.NotEqual(t, first.ID, open.ID)
		all, err := tx.ListWorkOrders(ctx, WorkOrderFilter{PMScheduleID: &scheduleID})
		require.NoError(t, err)
		assert.Len(t, all, 2)
		return nil
	})
}

func TestMemoryStore_InjectFault(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.InjectFault("InsertNotifications", errors.New("disk full"))

	err := store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertNotifications(ctx, []models.Notification{{ID: primitive.NewObjectID()}})
	})
	assert.ErrorIs(t, err, models.ErrTransaction)

	store.InjectFault("InsertNotifications", nil)
	err = store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertNotifications(ctx, []models.Notification{{ID: primitive.NewObjectID()}})
	})
	assert.NoError(t, err)
}

func TestMemoryStore_MeterReadingsOrdered(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	asset := primitive.NewObjectID()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		for i, v := range []float64{30, 10, 20} {
			r := models.MeterReading{ID: primitive.NewObjectID(), AssetID: asset, MeterType: "hours", Value: v,
				ReadingDate: base.Add(time.Duration(2-i) * time.Hour)}
			if err := tx.InsertMeterReading(ctx, r); err != nil {
				return err
			}
		}
		return nil
	}))

	_ = store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		latest, err := tx.LatestMeterReading(ctx, asset, "hours")
		require.NoError(t, err)
		assert.Equal(t, 30.0, latest.Value)

		since, err := tx.MeterReadingsSince(ctx, asset, "hours", base.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, since, 2)
		assert.Equal(t, 10.0, since[0].Value)
		assert.Equal(t, 30.0, since[1].Value)

		none, err := tx.LatestMeterReading(ctx, asset, "cycles")
		assert.NoError(t, err)
		assert.Nil(t, none)
		return nil
	})
}

func TestMemoryStore_HistoryIsOncePerWorkOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	woID := primitive.NewObjectID()

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertHistory(ctx, models.MaintenanceHistory{ID: primitive.NewObjectID(), WorkOrderID: woID})
	}))
	err := store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertHistory(ctx, models.MaintenanceHistory{ID: primitive.NewObjectID(), WorkOrderID: woID})
	})
	assert.ErrorIs(t, err, models.ErrDuplicateHistory)
}

func TestMemoryRegistry_UsersWithRole(t *testing.T) {
	reg := NewMemoryRegistry()
	org := primitive.NewObjectID()
	manager := models.User{ID: primitive.NewObjectID(), OrganizationID: org, Role: models.RoleManager, IsActive: true}
	reg.AddUser(manager)
	reg.AddUser(models.User{ID: primitive.NewObjectID(), OrganizationID: org, Role: models.RoleManager, IsActive: false})
	reg.AddUser(models.User{ID: primitive.NewObjectID(), OrganizationID: primitive.NewObjectID(), Role: models.RoleManager, IsActive: true})

	ids, err := reg.UsersWithRole(context.Background(), org, models.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{manager.ID}, ids)

	_, err = reg.GetAsset(context.Background(), primitive.NewObjectID())
	assert.ErrorIs(t, err, models.ErrNotFound)
}
