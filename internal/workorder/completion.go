package workorder

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-pm/internal/clock"
	"github.com/ukydev/fleet-pm/internal/db"
	"github.com/ukydev/fleet-pm/internal/history"
	"github.com/ukydev/fleet-pm/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RescheduledSuffix marks follow-up work orders and their tasks.
const RescheduledSuffix = " (Rescheduled)"

// TaskUpdate is a technician's change to one checklist line.
type TaskUpdate struct {
	TaskID        primitive.ObjectID
	Status        models.TaskStatus
	Notes         string
	ActualMinutes int
}

// Escalation is the follow-up created when a work order closes with failures.
type Escalation struct {
	FollowUp       models.WorkOrder
	Tasks          []models.WorkOrderTask
	Notifications  []models.Notification
	RemediationDue time.Time
}

// Outcome reports what a task transition changed.
type Outcome struct {
	Task      models.WorkOrderTask
	WorkOrder models.WorkOrder
	// Noop is set when the task already had the requested terminal status.
	Noop       bool
	History    *models.MaintenanceHistory
	Escalation *Escalation
}

// Closed reports whether the transition closed the work order.
func (o *Outcome) Closed() bool {
	return o.History != nil
}

// Handler applies task transitions and closes work orders, escalating
// failed preventive work.
type Handler struct {
	store     db.Store
	directory db.RoleDirectory
	history   *history.Recorder
	links     LinkBuilder
	publisher Publisher
	policy    Policy
	clock     clock.Clock
	log       log.FieldLogger
}

// HandlerOption configures optional collaborators of a Handler.
type HandlerOption func(*Handler)

// WithLinks sets the builder for notification action URLs.
func WithLinks(l LinkBuilder) HandlerOption {
	return func(h *Handler) { h.links = l }
}

// WithPublisher sets the post-commit notification publisher.
func WithPublisher(p Publisher) HandlerOption {
	return func(h *Handler) { h.publisher = p }
}

// NewHandler creates a completion and escalation handler.
func NewHandler(store db.Store, directory db.RoleDirectory, recorder *history.Recorder, policy Policy, c clock.Clock, logger log.FieldLogger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	h := &Handler{
		store:     store,
		directory: directory,
		history:   recorder,
		policy:    policy,
		clock:     clock.OrSystem(c),
		log:       logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnTaskStatusChanged applies newStatus to the task, carrying its notes and
// actual minutes, and closes the work order when every task is terminal.
func (h *Handler) OnTaskStatusChanged(ctx context.Context, task models.WorkOrderTask, newStatus models.TaskStatus) (*Outcome, error) {
	return h.TransitionTask(ctx, TaskUpdate{
		TaskID:        task.ID,
		Status:        newStatus,
		Notes:         task.Notes,
		ActualMinutes: task.ActualMinutes,
	})
}

// TransitionTask moves one checklist line forward. When it leaves every task
// of the work order terminal, the work order closes in the same transaction:
// COMPLETED with a history row when nothing failed, otherwise CANCELED with a
// partial history row, an expedited schedule and a HIGH priority follow-up.
func (h *Handler) TransitionTask(ctx context.Context, update TaskUpdate) (*Outcome, error) {
	if update.ActualMinutes < 0 {
		return nil, models.Invalid("actual_minutes", "must not be negative")
	}

	var out *Outcome
	err := h.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		out, err = h.transition(ctx, tx, update)
		return err
	})
	if err != nil {
		return nil, err
	}

	fields := log.Fields{
		"task_id":       out.Task.ID.Hex(),
		"work_order_id": out.WorkOrder.ID.Hex(),
		"status":        out.Task.Status,
	}
	switch {
	case out.Noop:
		h.log.WithFields(fields).Debug("Task already in requested status")
	case out.Escalation != nil:
		fields["follow_up_id"] = out.Escalation.FollowUp.ID.Hex()
		fields["notified"] = len(out.Escalation.Notifications)
		h.log.WithFields(fields).Info("Work order failed and was escalated")
		h.publish(ctx, out.Escalation.Notifications)
	case out.Closed():
		h.log.WithFields(fields).Info("Work order completed")
	}
	return out, nil
}

func (h *Handler) transition(ctx context.Context, tx db.Tx, update TaskUpdate) (*Outcome, error) {
	task, err := tx.FindWorkOrderTask(ctx, update.TaskID)
	if err != nil {
		return nil, err
	}
	wo, err := tx.FindWorkOrder(ctx, task.WorkOrderID)
	if err != nil {
		return nil, err
	}

	if task.Status == update.Status && task.Status.IsTerminal() {
		return &Outcome{Task: *task, WorkOrder: *wo, Noop: true}, nil
	}
	if wo.Status.IsTerminal() {
		return nil, fmt.Errorf("task %s: work order %s is %s: %w", task.ID.Hex(), wo.HumanID, wo.Status, models.ErrInvalidTransition)
	}
	if !task.Status.CanTransitionTo(update.Status) {
		return nil, fmt.Errorf("task %s: %s to %s: %w", task.ID.Hex(), task.Status, update.Status, models.ErrInvalidTransition)
	}

	now := h.clock.Now()
	task.Status = update.Status
	if update.Notes != "" {
		task.Notes = update.Notes
	}
	if update.ActualMinutes > 0 {
		task.ActualMinutes = update.ActualMinutes
	}
	if task.Status.IsTerminal() {
		task.CompletedAt = &now
	}
	if err := tx.UpdateWorkOrderTask(ctx, *task); err != nil {
		return nil, err
	}

	// ON_HOLD is set by technicians outside the engine; task work resumes it.
	if wo.Status == models.WorkOrderOpen || wo.Status == models.WorkOrderOnHold {
		wo.SetStatus(models.WorkOrderInProgress)
		if wo.StartedAt == nil {
			wo.StartedAt = &now
		}
	}
	wo.UpdatedAt = now
	out := &Outcome{Task: *task}

	tasks, err := tx.ListWorkOrderTasks(ctx, wo.ID)
	if err != nil {
		return nil, err
	}
	if !allTerminal(tasks) {
		if err := tx.UpdateWorkOrder(ctx, *wo); err != nil {
			return nil, err
		}
		out.WorkOrder = *wo
		return out, nil
	}

	failed := failedTasks(tasks)
	wo.TotalLoggedHours = float64(history.TotalMinutes(tasks)) / 60
	wo.CompletedAt = &now
	if len(failed) == 0 {
		wo.SetStatus(models.WorkOrderCompleted)
	} else {
		wo.SetStatus(models.WorkOrderCanceled)
	}
	// The original must leave the open set before a follow-up can take its place.
	if err := tx.UpdateWorkOrder(ctx, *wo); err != nil {
		return nil, err
	}
	out.WorkOrder = *wo

	out.History, err = h.history.Record(ctx, tx, *wo, tasks, history.Outcome{Completed: len(failed) == 0, ClosedAt: now})
	if err != nil {
		return nil, err
	}
	if len(failed) == 0 {
		return out, nil
	}

	out.Escalation, err = h.escalate(ctx, tx, *wo, failed, now)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (h *Handler) escalate(ctx context.Context, tx db.Tx, wo models.WorkOrder, failed []models.WorkOrderTask, now time.Time) (*Escalation, error) {
	esc := &Escalation{RemediationDue: now.Add(h.remediationWindow())}

	if wo.PMScheduleID != nil {
		schedule, err := tx.FindSchedule(ctx, *wo.PMScheduleID)
		if err != nil {
			return nil, err
		}
		if schedule.NextDue == nil || esc.RemediationDue.Before(*schedule.NextDue) {
			due := esc.RemediationDue
			schedule.NextDue = &due
		}
		schedule.UpdatedAt = now
		if err := tx.UpdateSchedule(ctx, *schedule); err != nil {
			return nil, err
		}
	}

	seq, err := tx.NextWorkOrderNumber(ctx)
	if err != nil {
		return nil, err
	}
	due := esc.RemediationDue
	origin := wo.ID
	follow := models.WorkOrder{
		ID:             primitive.NewObjectID(),
		HumanID:        FormatHumanID(seq),
		Title:          rescheduled(wo.Title),
		Description:    fmt.Sprintf("Remediation of %d failed task(s) from %s.", len(failed), wo.HumanID),
		Priority:       h.escalatedPriority(),
		AssetID:        wo.AssetID,
		OrganizationID: wo.OrganizationID,
		PMScheduleID:   cloneID(wo.PMScheduleID),
		FollowUpOf:     &origin,
		AssignedToID:   cloneID(wo.AssignedToID),
		DueAt:          &due,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	follow.SetStatus(models.WorkOrderOpen)
	if err := tx.InsertWorkOrder(ctx, follow); err != nil {
		return nil, err
	}
	esc.FollowUp = follow

	for i, f := range failed {
		remediates := f.ID
		esc.Tasks = append(esc.Tasks, models.WorkOrderTask{
			ID:                 primitive.NewObjectID(),
			WorkOrderID:        follow.ID,
			Title:              rescheduled(f.Title),
			Description:        f.Description,
			SafetyRequirements: f.SafetyRequirements,
			ToolsAndParts:      f.ToolsAndParts,
			Required:           f.Required,
			Status:             models.TaskNotStarted,
			OrderIndex:         i,
			OriginPMTaskID:     cloneID(f.OriginPMTaskID),
			RemediatesTaskID:   &remediates,
		})
	}
	if err := tx.InsertWorkOrderTasks(ctx, esc.Tasks); err != nil {
		return nil, err
	}

	esc.Notifications, err = h.notifications(ctx, wo, follow, failed, now)
	if err != nil {
		return nil, err
	}
	if len(esc.Notifications) > 0 {
		if err := tx.InsertNotifications(ctx, esc.Notifications); err != nil {
			return nil, err
		}
	}
	return esc, nil
}

func (h *Handler) notifications(ctx context.Context, original, follow models.WorkOrder, failed []models.WorkOrderTask, now time.Time) ([]models.Notification, error) {
	roles := h.policy.EscalationRoles
	if len(roles) == 0 {
		roles = []models.Role{models.RoleManager}
	}

	seen := make(map[primitive.ObjectID]bool)
	var recipients []primitive.ObjectID
	for _, role := range roles {
		ids, err := h.directory.UsersWithRole(ctx, original.OrganizationID, role)
		if err != nil {
			return nil, fmt.Errorf("resolve %s recipients: %w", role, err)
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				recipients = append(recipients, id)
			}
		}
	}

	titles := make([]string, len(failed))
	for i, f := range failed {
		titles[i] = f.Title
	}
	message := fmt.Sprintf("%s failed: %s. Follow-up %s is due %s.",
		original.HumanID, strings.Join(titles, ", "), follow.HumanID, follow.DueAt.Format(time.RFC3339))

	out := make([]models.Notification, 0, len(recipients))
	for _, userID := range recipients {
		n := models.Notification{
			ID:             primitive.NewObjectID(),
			UserID:         userID,
			OrganizationID: original.OrganizationID,
			Title:          "Preventive maintenance failed: " + original.Title,
			Message:        message,
			Priority:       follow.Priority,
			Related:        models.EntityRef{Kind: models.EntityWorkOrder, ID: follow.ID},
			CreatedAt:      now,
		}
		if h.links != nil {
			url, err := h.links.ActionURL(userID, follow.ID)
			if err != nil {
				return nil, fmt.Errorf("build action link: %w", err)
			}
			n.ActionURL = url
		}
		out = append(out, n)
	}
	return out, nil
}

func (h *Handler) publish(ctx context.Context, notifications []models.Notification) {
	if h.publisher == nil {
		return
	}
	for _, n := range notifications {
		if err := h.publisher.Publish(ctx, n); err != nil {
			h.log.WithError(err).WithFields(log.Fields{
				"notification_id": n.ID.Hex(),
				"user_id":         n.UserID.Hex(),
			}).Warn("Failed to publish notification")
		}
	}
}

// escalatedPriority never drops below HIGH.
func (h *Handler) escalatedPriority() models.Priority {
	if h.policy.EscalatedPriority == models.PriorityUrgent {
		return models.PriorityUrgent
	}
	return models.PriorityHigh
}

func (h *Handler) remediationWindow() time.Duration {
	if h.policy.RemediationWindow <= 0 {
		return DefaultPolicy().RemediationWindow
	}
	return h.policy.RemediationWindow
}

func rescheduled(title string) string {
	if strings.HasSuffix(title, RescheduledSuffix) {
		return title
	}
	return title + RescheduledSuffix
}

func allTerminal(tasks []models.WorkOrderTask) bool {
	for _, t := range tasks {
		if !t.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func failedTasks(tasks []models.WorkOrderTask) []models.WorkOrderTask {
	var out []models.WorkOrderTask
	for _, t := range tasks {
		if t.Status == models.TaskFailed {
			out = append(out, t)
		}
	}
	return out
}

func cloneID(id *primitive.ObjectID) *primitive.ObjectID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
