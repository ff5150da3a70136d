package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MeterReading is one append-only usage sample for an asset meter.
type MeterReading struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AssetID      primitive.ObjectID `bson:"asset_id" json:"asset_id"`
	MeterType    string             `bson:"meter_type" json:"meter_type"` // "hours", "cycles", "km", ...
	Value        float64            `bson:"value" json:"value"`
	Unit         string             `bson:"unit" json:"unit"`
	RecordedByID primitive.ObjectID `bson:"recorded_by_id" json:"recorded_by_id"`
	ReadingDate  time.Time          `bson:"reading_date" json:"reading_date"`

	// Regressed flags a value lower than the previous reading of the same meter.
	Regressed     bool     `bson:"regressed,omitempty" json:"regressed,omitempty"`
	PreviousValue *float64 `bson:"previous_value,omitempty" json:"previous_value,omitempty"`
}

// ConditionSample is the latest value of one sensor field reported for an asset.
type ConditionSample struct {
	AssetID     primitive.ObjectID `json:"asset_id"`
	SensorField string             `json:"sensor_field"`
	Value       float64            `json:"value"`
	Timestamp   time.Time          `json:"timestamp"`
}
