package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-pm/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestConnectMongo_BadURI(t *testing.T) {
	client, err := ConnectMongo("mongodb://bad:uri")
	if err == nil {
		t.Error("expected error for bad URI, got nil")
	}
	if client != nil {
		t.Error("expected nil client on error")
	}
}

func TestRegistries_NilCollection(t *testing.T) {
	assets := &MongoAssetRegistry{Collection: nil}
	_, err := assets.GetAsset(context.Background(), primitive.NewObjectID())
	assert.Error(t, err)

	users := &MongoUserCollection{Collection: nil}
	_, err = users.UsersWithRole(context.Background(), primitive.NewObjectID(), models.RoleManager)
	assert.Error(t, err)
}

// Integration test (requires a MongoDB replica set)
func integrationStore(t *testing.T) *MongoStore {
	uri := os.Getenv("MONGO_URI")
	if uri == "" || uri == "uri" {
		t.Skip("MONGO_URI not set or invalid, skipping integration test")
	}
	client, err := ConnectMongo(uri)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	store := NewMongoStore(client, "test_fleet_pm")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, store.Database().Drop(ctx))
	require.NoError(t, store.EnsureIndexes(ctx))
	return store
}

func TestMongoStore_OneOpenWorkOrderPerSchedule_Integration(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()
	scheduleID := primitive.NewObjectID()

	err := store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		n, err := tx.NextWorkOrderNumber(ctx)
		if err != nil {
			return err
		}
		wo := openOrder(scheduleID)
		wo.HumanID = "WO-" + primitive.NewObjectID().Hex()
		assert.Equal(t, int64(1), n)
		return tx.InsertWorkOrder(ctx, wo)
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		wo := openOrder(scheduleID)
		wo.HumanID = "WO-" + primitive.NewObjectID().Hex()
		return tx.InsertWorkOrder(ctx, wo)
	})
	assert.ErrorIs(t, err, models.ErrDuplicateOpenWorkOrder)

	_ = store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		open, err := tx.FindOpenWorkOrder(ctx, scheduleID)
		require.NoError(t, err)
		assert.NotNil(t, open)
		return nil
	})
}

func TestMongoStore_ScheduleByTrigger_Integration(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()
	sid := primitive.NewObjectID()
	tid := primitive.NewObjectID()
	schedule := models.PMSchedule{
		ID:    sid,
		Title: "Weekly Filter Change",
		Triggers: []models.PMTrigger{{
			ID: tid, PMScheduleID: sid, Kind: models.TriggerEventBased, Active: true,
		}},
	}

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertSchedule(ctx, schedule)
	}))
	_ = store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		found, err := tx.FindScheduleByTrigger(ctx, tid)
		require.NoError(t, err)
		assert.Equal(t, sid, found.ID)
		_, err = tx.FindScheduleByTrigger(ctx, primitive.NewObjectID())
		assert.ErrorIs(t, err, models.ErrNotFound)
		return nil
	})
}
