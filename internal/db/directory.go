package db

import (
	"context"
	"errors"

	"github.com/ukydev/fleet-pm/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errNilCollection = errors.New("mongo collection is nil")

// MongoAssetRegistry implements AssetRegistry over the shared assets collection.
type MongoAssetRegistry struct {
	Collection *mongo.Collection
}

// NewMongoAssetRegistry binds the registry to the store's database.
func NewMongoAssetRegistry(s *MongoStore) *MongoAssetRegistry {
	return &MongoAssetRegistry{Collection: s.Database().Collection(collAssets)}
}

// GetAsset finds an asset by its ID
func (r *MongoAssetRegistry) GetAsset(ctx context.Context, id primitive.ObjectID) (*models.Asset, error) {
	if r.Collection == nil {
		return nil, errNilCollection
	}
	var asset models.Asset
	err := r.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&asset)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NotFound("asset", id.Hex())
		}
		return nil, txErr("find asset", err)
	}
	return &asset, nil
}

// MongoUserCollection implements RoleDirectory for MongoDB
type MongoUserCollection struct {
	Collection *mongo.Collection
}

// NewMongoUserCollection binds the directory to the store's database.
func NewMongoUserCollection(s *MongoStore) *MongoUserCollection {
	return &MongoUserCollection{Collection: s.Database().Collection(collUsers)}
}

// InsertUser inserts a new user into the database
func (c *MongoUserCollection) InsertUser(ctx context.Context, user models.User) error {
	if c.Collection == nil {
		return errNilCollection
	}
	user.IsActive = true
	_, err := c.Collection.InsertOne(ctx, user)
	return err
}

// FindUserByID finds a user by their ID
func (c *MongoUserCollection) FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NotFound("user", id.Hex())
		}
		return nil, err
	}
	return &user, nil
}

// UsersWithRole returns the IDs of active members of an organization holding a role
func (c *MongoUserCollection) UsersWithRole(ctx context.Context, organizationID primitive.ObjectID, role models.Role) ([]primitive.ObjectID, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	cursor, err := c.Collection.Find(ctx,
		bson.M{"organization_id": organizationID, "role": role, "is_active": true},
		options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}
