package trigger

import (
	"fmt"
	"time"

	"github.com/ukydev/fleet-pm/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NewTime builds an active TIME_BASED trigger. A nil lastFiredAt makes the
// trigger due at the first evaluation.
func NewTime(every int, unit models.IntervalUnit, lastFiredAt *time.Time) models.PMTrigger {
	return models.PMTrigger{
		ID:     primitive.NewObjectID(),
		Kind:   models.TriggerTimeBased,
		Active: true,
		Time:   &models.TimeParams{Interval: models.Interval{Every: every, Unit: unit}, LastFiredAt: lastFiredAt},
	}
}

// NewUsage builds an active USAGE_BASED trigger.
func NewUsage(meterType string, thresholdDelta, baselineValue float64, baselineAt time.Time) models.PMTrigger {
	return models.PMTrigger{
		ID:     primitive.NewObjectID(),
		Kind:   models.TriggerUsageBased,
		Active: true,
		Usage: &models.UsageParams{
			MeterType:      meterType,
			ThresholdDelta: thresholdDelta,
			BaselineValue:  baselineValue,
			BaselineAt:     baselineAt,
		},
	}
}

// NewCondition builds an active CONDITION_BASED trigger.
func NewCondition(sensorField string, op models.Operator, threshold float64) models.PMTrigger {
	return models.PMTrigger{
		ID:        primitive.NewObjectID(),
		Kind:      models.TriggerConditionBased,
		Active:    true,
		Condition: &models.ConditionParams{SensorField: sensorField, Operator: op, ThresholdValue: threshold},
	}
}

// NewEvent builds an active EVENT_BASED trigger with a cleared latch.
func NewEvent() models.PMTrigger {
	return models.PMTrigger{
		ID:     primitive.NewObjectID(),
		Kind:   models.TriggerEventBased,
		Active: true,
		Event:  &models.EventState{},
	}
}

// Validate checks that the trigger carries exactly the parameter block its
// kind requires and that the parameters are usable.
func Validate(t models.PMTrigger) error {
	blocks := 0
	for _, set := range []bool{t.Time != nil, t.Usage != nil, t.Condition != nil, t.Event != nil} {
		if set {
			blocks++
		}
	}
	if blocks > 1 {
		return models.Invalid("trigger", "more than one parameter block is set")
	}

	switch t.Kind {
	case models.TriggerTimeBased:
		if t.Time == nil {
			return models.Invalid("trigger.time", "is required for TIME_BASED")
		}
		if t.Time.Interval.Every <= 0 {
			return models.Invalid("trigger.time.interval", "must be positive")
		}
		switch t.Time.Interval.Unit {
		case models.UnitDays, models.UnitWeeks, models.UnitMonths:
		default:
			return models.Invalid("trigger.time.interval", fmt.Sprintf("unknown unit %q", t.Time.Interval.Unit))
		}
	case models.TriggerUsageBased:
		if t.Usage == nil {
			return models.Invalid("trigger.usage", "is required for USAGE_BASED")
		}
		if t.Usage.MeterType == "" {
			return models.Invalid("trigger.usage.meter_type", "is required")
		}
		if t.Usage.ThresholdDelta <= 0 {
			return models.Invalid("trigger.usage.threshold_delta", "must be positive")
		}
	case models.TriggerConditionBased:
		if t.Condition == nil {
			return models.Invalid("trigger.condition", "is required for CONDITION_BASED")
		}
		if t.Condition.SensorField == "" {
			return models.Invalid("trigger.condition.sensor_field", "is required")
		}
		if !models.IsValidOperator(t.Condition.Operator) {
			return models.Invalid("trigger.condition.operator", fmt.Sprintf("unsupported operator %q", t.Condition.Operator))
		}
	case models.TriggerEventBased:
		if blocks == 1 && t.Event == nil {
			return models.Invalid("trigger", "EVENT_BASED takes no parameters")
		}
	default:
		return models.Invalid("trigger.kind", fmt.Sprintf("unknown kind %q", t.Kind))
	}
	return nil
}
