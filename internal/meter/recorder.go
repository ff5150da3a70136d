package meter

import (
	"context"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-pm/internal/clock"
	"github.com/ukydev/fleet-pm/internal/db"
	"github.com/ukydev/fleet-pm/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Recorder appends meter readings and answers latest/trend queries.
type Recorder struct {
	store db.Store
	clock clock.Clock
	log   log.FieldLogger
}

// NewRecorder creates a meter recorder.
func NewRecorder(store db.Store, c clock.Clock, logger log.FieldLogger) *Recorder {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Recorder{store: store, clock: clock.OrSystem(c), log: logger}
}

// ReadingInput is one reading to append.
type ReadingInput struct {
	AssetID      primitive.ObjectID
	MeterType    string
	Value        float64
	Unit         string
	RecordedByID primitive.ObjectID
	At           time.Time
}

// Record appends a reading. A value lower than the previous reading is still
// stored, flagged as regressed, and logged as a data-quality warning.
func (r *Recorder) Record(ctx context.Context, in ReadingInput) (*models.MeterReading, error) {
	if in.AssetID.IsZero() {
		return nil, models.Invalid("asset_id", "is required")
	}
	if in.MeterType == "" {
		return nil, models.Invalid("meter_type", "is required")
	}
	if math.IsNaN(in.Value) || math.IsInf(in.Value, 0) {
		return nil, models.Invalid("value", "must be a finite number")
	}
	at := in.At
	if at.IsZero() {
		at = r.clock.Now()
	}

	reading := models.MeterReading{
		ID:           primitive.NewObjectID(),
		AssetID:      in.AssetID,
		MeterType:    in.MeterType,
		Value:        in.Value,
		Unit:         in.Unit,
		RecordedByID: in.RecordedByID,
		ReadingDate:  at,
	}
	err := r.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		prev, err := tx.LatestMeterReading(ctx, in.AssetID, in.MeterType)
		if err != nil {
			return err
		}
		if prev != nil && in.Value < prev.Value {
			v := prev.Value
			reading.Regressed = true
			reading.PreviousValue = &v
		}
		return tx.InsertMeterReading(ctx, reading)
	})
	if err != nil {
		return nil, err
	}

	if reading.Regressed {
		r.log.WithFields(log.Fields{
			"asset_id":       reading.AssetID.Hex(),
			"meter_type":     reading.MeterType,
			"value":          reading.Value,
			"previous_value": *reading.PreviousValue,
		}).Warn("Meter reading lower than previous value")
	}
	return &reading, nil
}

// Latest returns the most recent reading, or nil when the meter has none.
func (r *Recorder) Latest(ctx context.Context, assetID primitive.ObjectID, meterType string) (*models.MeterReading, error) {
	var latest *models.MeterReading
	err := r.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		latest, err = tx.LatestMeterReading(ctx, assetID, meterType)
		return err
	})
	return latest, err
}

// Trend returns the average daily increase over the trailing window. It
// reports false when fewer than two readings fall inside the window.
func (r *Recorder) Trend(ctx context.Context, assetID primitive.ObjectID, meterType string, windowDays int) (float64, bool, error) {
	if windowDays <= 0 {
		return 0, false, models.Invalid("window_days", "must be positive")
	}
	since := r.clock.Now().AddDate(0, 0, -windowDays)
	var readings []models.MeterReading
	err := r.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		readings, err = tx.MeterReadingsSince(ctx, assetID, meterType, since)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	rate, ok := DailyRate(readings, float64(windowDays))
	return rate, ok, nil
}
