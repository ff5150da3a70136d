package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PMTask is a reusable checklist item template.
type PMTask struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title              string             `bson:"title" json:"title"`
	Procedure          string             `bson:"procedure" json:"procedure"`
	SafetyRequirements string             `bson:"safety_requirements" json:"safety_requirements"`
	ToolsAndParts      string             `bson:"tools_and_parts" json:"tools_and_parts"`
	EstimatedMinutes   int                `bson:"estimated_minutes" json:"estimated_minutes"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at" json:"updated_at"`
}

// TaskLink places a template in a schedule's ordered checklist.
type TaskLink struct {
	PMTaskID primitive.ObjectID `bson:"pm_task_id" json:"pm_task_id"`
	Required bool               `bson:"required" json:"required"`
}

// PMSchedule is a recurring maintenance definition tied to one asset.
type PMSchedule struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title        string             `bson:"title" json:"title"`
	AssetID      primitive.ObjectID `bson:"asset_id" json:"asset_id"`
	OrderedTasks []TaskLink         `bson:"ordered_tasks" json:"ordered_tasks"`
	NextDue      *time.Time         `bson:"next_due,omitempty" json:"next_due,omitempty"`
	Triggers     []PMTrigger        `bson:"triggers" json:"triggers"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// ActiveTriggers returns the triggers that take part in evaluation.
func (s *PMSchedule) ActiveTriggers() []PMTrigger {
	var out []PMTrigger
	for _, t := range s.Triggers {
		if t.Active {
			out = append(out, t)
		}
	}
	return out
}

// Trigger returns a pointer into the schedule's trigger list, or nil.
func (s *PMSchedule) Trigger(id primitive.ObjectID) *PMTrigger {
	for i := range s.Triggers {
		if s.Triggers[i].ID == id {
			return &s.Triggers[i]
		}
	}
	return nil
}

// References reports whether the schedule links the given template.
func (s *PMSchedule) References(taskID primitive.ObjectID) bool {
	for _, l := range s.OrderedTasks {
		if l.PMTaskID == taskID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (s PMSchedule) Clone() PMSchedule {
	out := s
	out.NextDue = cloneTime(s.NextDue)
	out.OrderedTasks = append([]TaskLink(nil), s.OrderedTasks...)
	out.Triggers = make([]PMTrigger, len(s.Triggers))
	for i, t := range s.Triggers {
		out.Triggers[i] = t.Clone()
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
