package trigger

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-pm/internal/db"
	"github.com/ukydev/fleet-pm/internal/meter"
	"github.com/ukydev/fleet-pm/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TrendWindowDays is the trailing window used to project usage-based due dates.
const TrendWindowDays = 30

// ConditionFeed supplies the current value of a sensor field. ok is false
// when no usable value exists.
type ConditionFeed interface {
	CurrentValue(ctx context.Context, assetID primitive.ObjectID, sensorField string) (value float64, ok bool, err error)
}

// Decision is the outcome of evaluating one trigger.
type Decision struct {
	TriggerID primitive.ObjectID
	Kind      models.TriggerKind
	Due       bool
	Reason    string

	// Meter is the latest reading seen by a usage trigger, used to advance
	// its baseline after generation.
	Meter *models.MeterReading
}

// Checker evaluates the triggers of one schedule against a transaction view.
type Checker struct {
	Feed ConditionFeed
	Log  log.FieldLogger
}

// Evaluate returns a decision for every active trigger of the schedule.
// A schedule is due when any decision is due.
func (c Checker) Evaluate(ctx context.Context, tx db.MeterCollection, schedule models.PMSchedule, asOf time.Time) ([]Decision, error) {
	var decisions []Decision
	for _, t := range schedule.ActiveTriggers() {
		d, err := c.evaluate(ctx, tx, schedule.AssetID, t, asOf)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

func (c Checker) evaluate(ctx context.Context, tx db.MeterCollection, assetID primitive.ObjectID, t models.PMTrigger, asOf time.Time) (Decision, error) {
	d := Decision{TriggerID: t.ID, Kind: t.Kind}
	switch t.Kind {
	case models.TriggerTimeBased:
		if t.Time == nil {
			d.Reason = "missing parameters"
			return d, nil
		}
		if t.Time.LastFiredAt == nil {
			d.Due, d.Reason = true, "never fired"
			return d, nil
		}
		due := t.Time.Interval.AddTo(*t.Time.LastFiredAt)
		d.Due = !asOf.Before(due)
		d.Reason = "interval elapsed"
		if !d.Due {
			d.Reason = "due " + due.Format(time.RFC3339)
		}
	case models.TriggerUsageBased:
		if t.Usage == nil {
			d.Reason = "missing parameters"
			return d, nil
		}
		readings, err := tx.MeterReadingsSince(ctx, assetID, t.Usage.MeterType, t.Usage.BaselineAt)
		if err != nil {
			return d, err
		}
		readings = until(readings, asOf)
		usage, latest := meter.EffectiveUsage(t.Usage.BaselineValue, readings)
		d.Meter = latest
		d.Due = latest != nil && usage >= t.Usage.ThresholdDelta
		d.Reason = "usage below threshold"
		if latest == nil {
			d.Reason = "no readings since baseline"
		} else if d.Due {
			d.Reason = "usage threshold reached"
		}
	case models.TriggerConditionBased:
		if t.Condition == nil || c.Feed == nil {
			d.Reason = "no condition feed"
			return d, nil
		}
		value, ok, err := c.Feed.CurrentValue(ctx, assetID, t.Condition.SensorField)
		if err != nil {
			c.logger().WithError(err).WithFields(log.Fields{
				"asset_id":     assetID.Hex(),
				"sensor_field": t.Condition.SensorField,
			}).Warn("Condition feed unavailable")
			ok = false
		}
		if !ok {
			d.Reason = "no sensor value"
			return d, nil
		}
		d.Due = t.Condition.Operator.Holds(value, t.Condition.ThresholdValue)
		d.Reason = "condition not met"
		if d.Due {
			d.Reason = "condition met"
		}
	case models.TriggerEventBased:
		d.Due = t.Event != nil && t.Event.Pending
		d.Reason = "no pending event"
		if d.Due {
			d.Reason = "event fired"
		}
	}
	return d, nil
}

func (c Checker) logger() log.FieldLogger {
	if c.Log == nil {
		return log.StandardLogger()
	}
	return c.Log
}

// until drops readings recorded after asOf.
func until(readings []models.MeterReading, asOf time.Time) []models.MeterReading {
	for i, r := range readings {
		if r.ReadingDate.After(asOf) {
			return readings[:i]
		}
	}
	return readings
}

// AnyDue reports whether at least one decision is due.
func AnyDue(decisions []Decision) bool {
	for _, d := range decisions {
		if d.Due {
			return true
		}
	}
	return false
}

// Advance resets the state of every due trigger after a work order was
// generated from them. Condition triggers carry no state.
func Advance(schedule *models.PMSchedule, decisions []Decision, asOf time.Time) {
	for _, d := range decisions {
		if !d.Due {
			continue
		}
		t := schedule.Trigger(d.TriggerID)
		if t == nil {
			continue
		}
		switch t.Kind {
		case models.TriggerTimeBased:
			fired := asOf
			t.Time.LastFiredAt = &fired
		case models.TriggerUsageBased:
			if d.Meter != nil {
				t.Usage.BaselineValue = d.Meter.Value
				t.Usage.BaselineAt = d.Meter.ReadingDate
			}
		case models.TriggerEventBased:
			t.Event.Pending = false
		}
	}
}

// ProjectNextDue returns the earliest projected due date across the
// schedule's time and usage triggers, or nil when none can be projected.
// Condition and event triggers have no predictable date.
func ProjectNextDue(ctx context.Context, tx db.MeterCollection, schedule models.PMSchedule, asOf time.Time) (*time.Time, error) {
	var next *time.Time
	consider := func(t time.Time) {
		if next == nil || t.Before(*next) {
			v := t
			next = &v
		}
	}

	for _, t := range schedule.ActiveTriggers() {
		switch t.Kind {
		case models.TriggerTimeBased:
			if t.Time == nil {
				continue
			}
			if t.Time.LastFiredAt == nil {
				consider(asOf)
				continue
			}
			consider(t.Time.Interval.AddTo(*t.Time.LastFiredAt))
		case models.TriggerUsageBased:
			if t.Usage == nil {
				continue
			}
			since, err := tx.MeterReadingsSince(ctx, schedule.AssetID, t.Usage.MeterType, t.Usage.BaselineAt)
			if err != nil {
				return nil, err
			}
			usage, _ := meter.EffectiveUsage(t.Usage.BaselineValue, until(since, asOf))
			remaining := t.Usage.ThresholdDelta - usage
			if remaining <= 0 {
				consider(asOf)
				continue
			}
			window, err := tx.MeterReadingsSince(ctx, schedule.AssetID, t.Usage.MeterType, asOf.AddDate(0, 0, -TrendWindowDays))
			if err != nil {
				return nil, err
			}
			rate, ok := meter.DailyRate(until(window, asOf), TrendWindowDays)
			if !ok || rate <= 0 {
				continue
			}
			consider(asOf.Add(time.Duration(remaining / rate * float64(24*time.Hour))))
		}
	}
	return next, nil
}
