package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TriggerKind selects which parameter block of a PMTrigger is meaningful.
type TriggerKind string

const (
	TriggerTimeBased      TriggerKind = "TIME_BASED"
	TriggerUsageBased     TriggerKind = "USAGE_BASED"
	TriggerConditionBased TriggerKind = "CONDITION_BASED"
	TriggerEventBased     TriggerKind = "EVENT_BASED"
)

// IntervalUnit is the calendar unit of a time-based interval.
type IntervalUnit string

const (
	UnitDays   IntervalUnit = "days"
	UnitWeeks  IntervalUnit = "weeks"
	UnitMonths IntervalUnit = "months"
)

// Interval is a calendar period such as "3 months".
type Interval struct {
	Every int          `bson:"every" json:"every"`
	Unit  IntervalUnit `bson:"unit" json:"unit"`
}

// AddTo advances t by the interval. Months follow calendar arithmetic.
func (i Interval) AddTo(t time.Time) time.Time {
	switch i.Unit {
	case UnitWeeks:
		return t.AddDate(0, 0, 7*i.Every)
	case UnitMonths:
		return t.AddDate(0, i.Every, 0)
	default:
		return t.AddDate(0, 0, i.Every)
	}
}

// Operator is a comparison applied to a sensor value.
type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
)

// Holds reports whether "value op threshold" is true.
func (o Operator) Holds(value, threshold float64) bool {
	switch o {
	case OpGreater:
		return value > threshold
	case OpGreaterEqual:
		return value >= threshold
	case OpLess:
		return value < threshold
	case OpLessEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	default:
		return false
	}
}

// IsValidOperator checks if an operator is supported.
func IsValidOperator(o Operator) bool {
	switch o {
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpEqual:
		return true
	default:
		return false
	}
}

// TimeParams parameterize a TIME_BASED trigger.
type TimeParams struct {
	Interval    Interval   `bson:"interval" json:"interval"`
	LastFiredAt *time.Time `bson:"last_fired_at,omitempty" json:"last_fired_at,omitempty"`
}

// UsageParams parameterize a USAGE_BASED trigger.
type UsageParams struct {
	MeterType      string    `bson:"meter_type" json:"meter_type"`
	ThresholdDelta float64   `bson:"threshold_delta" json:"threshold_delta"`
	BaselineValue  float64   `bson:"baseline_value" json:"baseline_value"`
	BaselineAt     time.Time `bson:"baseline_at" json:"baseline_at"`
}

// ConditionParams parameterize a CONDITION_BASED trigger.
type ConditionParams struct {
	SensorField    string   `bson:"sensor_field" json:"sensor_field"`
	Operator       Operator `bson:"operator" json:"operator"`
	ThresholdValue float64  `bson:"threshold_value" json:"threshold_value"`
}

// EventState is the single-shot latch of an EVENT_BASED trigger.
type EventState struct {
	Pending bool       `bson:"pending" json:"pending"`
	FiredAt *time.Time `bson:"fired_at,omitempty" json:"fired_at,omitempty"`
}

// PMTrigger is one condition that can make a schedule due. Exactly one
// parameter block matching Kind is set.
type PMTrigger struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	PMScheduleID primitive.ObjectID `bson:"pm_schedule_id" json:"pm_schedule_id"`
	Kind         TriggerKind        `bson:"kind" json:"kind"`
	Active       bool               `bson:"active" json:"active"`
	Time         *TimeParams        `bson:"time,omitempty" json:"time,omitempty"`
	Usage        *UsageParams       `bson:"usage,omitempty" json:"usage,omitempty"`
	Condition    *ConditionParams   `bson:"condition,omitempty" json:"condition,omitempty"`
	Event        *EventState        `bson:"event,omitempty" json:"event,omitempty"`
}

// Clone returns a deep copy.
func (t PMTrigger) Clone() PMTrigger {
	out := t
	if t.Time != nil {
		tp := *t.Time
		tp.LastFiredAt = cloneTime(t.Time.LastFiredAt)
		out.Time = &tp
	}
	if t.Usage != nil {
		up := *t.Usage
		out.Usage = &up
	}
	if t.Condition != nil {
		cp := *t.Condition
		out.Condition = &cp
	}
	if t.Event != nil {
		ep := *t.Event
		ep.FiredAt = cloneTime(t.Event.FiredAt)
		out.Event = &ep
	}
	return out
}
