package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ukydev/fleet-pm/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore provides an in-memory implementation of the Store interface.
// Transactions run one at a time against a private copy of the state that
// replaces the committed state only when fn succeeds.
type MemoryStore struct {
	mu     sync.Mutex
	state  *memState
	faults map[string]error
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState(), faults: make(map[string]error)}
}

// InjectFault makes the named Tx method fail with err until cleared with a nil err.
func (m *MemoryStore) InjectFault(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, method)
		return
	}
	m.faults[method] = err
}

// WithTx runs fn against a copy of the state and commits it on success.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return &models.TransactionError{Op: "begin", Err: err}
	}
	work := m.state.clone()
	if err := fn(ctx, &memTx{st: work, faults: m.faults}); err != nil {
		return err
	}
	m.state = work
	return nil
}

type memState struct {
	tasks         map[primitive.ObjectID]models.PMTask
	schedules     map[primitive.ObjectID]models.PMSchedule
	workOrders    map[primitive.ObjectID]models.WorkOrder
	woTasks       map[primitive.ObjectID]models.WorkOrderTask
	readings      []models.MeterReading
	history       []models.MaintenanceHistory
	notifications []models.Notification
	seq           int64
}

func newMemState() *memState {
	return &memState{
		tasks:      make(map[primitive.ObjectID]models.PMTask),
		schedules:  make(map[primitive.ObjectID]models.PMSchedule),
		workOrders: make(map[primitive.ObjectID]models.WorkOrder),
		woTasks:    make(map[primitive.ObjectID]models.WorkOrderTask),
	}
}

// clone copies the maps and slices. Stored values are never mutated in
// place, so element copies are only needed on the way in and out.
func (s *memState) clone() *memState {
	out := &memState{
		tasks:         make(map[primitive.ObjectID]models.PMTask, len(s.tasks)),
		schedules:     make(map[primitive.ObjectID]models.PMSchedule, len(s.schedules)),
		workOrders:    make(map[primitive.ObjectID]models.WorkOrder, len(s.workOrders)),
		woTasks:       make(map[primitive.ObjectID]models.WorkOrderTask, len(s.woTasks)),
		readings:      append([]models.MeterReading(nil), s.readings...),
		history:       append([]models.MaintenanceHistory(nil), s.history...),
		notifications: append([]models.Notification(nil), s.notifications...),
		seq:           s.seq,
	}
	for k, v := range s.tasks {
		out.tasks[k] = v
	}
	for k, v := range s.schedules {
		out.schedules[k] = v
	}
	for k, v := range s.workOrders {
		out.workOrders[k] = v
	}
	for k, v := range s.woTasks {
		out.woTasks[k] = v
	}
	return out
}

type memTx struct {
	st     *memState
	faults map[string]error
}

func (t *memTx) fault(method string) error {
	if err, ok := t.faults[method]; ok {
		return &models.TransactionError{Op: method, Err: err}
	}
	return nil
}

func requireID(entity string, id primitive.ObjectID) error {
	if id.IsZero() {
		return fmt.Errorf("%s id is required", entity)
	}
	return nil
}

func (t *memTx) InsertPMTask(_ context.Context, task models.PMTask) error {
	if err := t.fault("InsertPMTask"); err != nil {
		return err
	}
	if err := requireID("pm task", task.ID); err != nil {
		return err
	}
	t.st.tasks[task.ID] = task
	return nil
}

func (t *memTx) FindPMTask(_ context.Context, id primitive.ObjectID) (*models.PMTask, error) {
	task, ok := t.st.tasks[id]
	if !ok {
		return nil, models.NotFound("pm task", id.Hex())
	}
	return &task, nil
}

func (t *memTx) UpdatePMTask(_ context.Context, task models.PMTask) error {
	if err := t.fault("UpdatePMTask"); err != nil {
		return err
	}
	if _, ok := t.st.tasks[task.ID]; !ok {
		return models.NotFound("pm task", task.ID.Hex())
	}
	t.st.tasks[task.ID] = task
	return nil
}

func (t *memTx) DeletePMTask(_ context.Context, id primitive.ObjectID) error {
	if _, ok := t.st.tasks[id]; !ok {
		return models.NotFound("pm task", id.Hex())
	}
	delete(t.st.tasks, id)
	return nil
}

func (t *memTx) InsertSchedule(_ context.Context, schedule models.PMSchedule) error {
	if err := t.fault("InsertSchedule"); err != nil {
		return err
	}
	if err := requireID("pm schedule", schedule.ID); err != nil {
		return err
	}
	t.st.schedules[schedule.ID] = schedule.Clone()
	return nil
}

func (t *memTx) FindSchedule(_ context.Context, id primitive.ObjectID) (*models.PMSchedule, error) {
	s, ok := t.st.schedules[id]
	if !ok {
		return nil, models.NotFound("pm schedule", id.Hex())
	}
	c := s.Clone()
	return &c, nil
}

func (t *memTx) FindScheduleByTrigger(_ context.Context, triggerID primitive.ObjectID) (*models.PMSchedule, error) {
	for _, s := range t.st.schedules {
		if s.Trigger(triggerID) != nil {
			c := s.Clone()
			return &c, nil
		}
	}
	return nil, models.NotFound("pm trigger", triggerID.Hex())
}

func (t *memTx) ListSchedules(_ context.Context) ([]models.PMSchedule, error) {
	out := make([]models.PMSchedule, 0, len(t.st.schedules))
	for _, s := range t.st.schedules {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out, nil
}

func (t *memTx) CountSchedulesReferencingTask(_ context.Context, taskID primitive.ObjectID) (int64, error) {
	var n int64
	for _, s := range t.st.schedules {
		if s.References(taskID) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) UpdateSchedule(_ context.Context, schedule models.PMSchedule) error {
	if err := t.fault("UpdateSchedule"); err != nil {
		return err
	}
	if _, ok := t.st.schedules[schedule.ID]; !ok {
		return models.NotFound("pm schedule", schedule.ID.Hex())
	}
	t.st.schedules[schedule.ID] = schedule.Clone()
	return nil
}

func (t *memTx) DeleteSchedule(_ context.Context, id primitive.ObjectID) error {
	if _, ok := t.st.schedules[id]; !ok {
		return models.NotFound("pm schedule", id.Hex())
	}
	delete(t.st.schedules, id)
	return nil
}

func (t *memTx) NextWorkOrderNumber(_ context.Context) (int64, error) {
	t.st.seq++
	return t.st.seq, nil
}

// checkActiveSchedule enforces the same rule as the Mongo sparse unique index.
func (t *memTx) checkActiveSchedule(wo models.WorkOrder) error {
	if wo.ActiveScheduleID == nil {
		return nil
	}
	for id, other := range t.st.workOrders {
		if id == wo.ID || other.ActiveScheduleID == nil {
			continue
		}
		if *other.ActiveScheduleID == *wo.ActiveScheduleID {
			return models.ErrDuplicateOpenWorkOrder
		}
	}
	return nil
}

func (t *memTx) InsertWorkOrder(_ context.Context, wo models.WorkOrder) error {
	if err := t.fault("InsertWorkOrder"); err != nil {
		return err
	}
	if err := requireID("work order", wo.ID); err != nil {
		return err
	}
	if err := t.checkActiveSchedule(wo); err != nil {
		return fmt.Errorf("insert work order: %w", err)
	}
	t.st.workOrders[wo.ID] = wo.Clone()
	return nil
}

func (t *memTx) FindWorkOrder(_ context.Context, id primitive.ObjectID) (*models.WorkOrder, error) {
	wo, ok := t.st.workOrders[id]
	if !ok {
		return nil, models.NotFound("work order", id.Hex())
	}
	c := wo.Clone()
	return &c, nil
}

func (t *memTx) FindOpenWorkOrder(_ context.Context, scheduleID primitive.ObjectID) (*models.WorkOrder, error) {
	for _, wo := range t.st.workOrders {
		if wo.PMScheduleID != nil && *wo.PMScheduleID == scheduleID && wo.Status.IsOpen() {
			c := wo.Clone()
			return &c, nil
		}
	}
	return nil, nil
}

func (t *memTx) ListWorkOrders(_ context.Context, filter WorkOrderFilter) ([]models.WorkOrder, error) {
	var out []models.WorkOrder
	for _, wo := range t.st.workOrders {
		if filter.PMScheduleID != nil && (wo.PMScheduleID == nil || *wo.PMScheduleID != *filter.PMScheduleID) {
			continue
		}
		if filter.AssetID != nil && wo.AssetID != *filter.AssetID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, wo.Status) {
			continue
		}
		out = append(out, wo.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].HumanID < out[j].HumanID
	})
	return out, nil
}

func containsStatus(list []models.WorkOrderStatus, s models.WorkOrderStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (t *memTx) UpdateWorkOrder(_ context.Context, wo models.WorkOrder) error {
	if err := t.fault("UpdateWorkOrder"); err != nil {
		return err
	}
	if _, ok := t.st.workOrders[wo.ID]; !ok {
		return models.NotFound("work order", wo.ID.Hex())
	}
	if err := t.checkActiveSchedule(wo); err != nil {
		return fmt.Errorf("update work order: %w", err)
	}
	t.st.workOrders[wo.ID] = wo.Clone()
	return nil
}

func (t *memTx) InsertWorkOrderTasks(_ context.Context, tasks []models.WorkOrderTask) error {
	if err := t.fault("InsertWorkOrderTasks"); err != nil {
		return err
	}
	for _, task := range tasks {
		if err := requireID("work order task", task.ID); err != nil {
			return err
		}
		for _, existing := range t.st.woTasks {
			if existing.WorkOrderID == task.WorkOrderID && existing.OrderIndex == task.OrderIndex {
				return fmt.Errorf("work order %s already has a task at index %d", task.WorkOrderID.Hex(), task.OrderIndex)
			}
		}
		t.st.woTasks[task.ID] = task.Clone()
	}
	return nil
}

func (t *memTx) FindWorkOrderTask(_ context.Context, id primitive.ObjectID) (*models.WorkOrderTask, error) {
	task, ok := t.st.woTasks[id]
	if !ok {
		return nil, models.NotFound("work order task", id.Hex())
	}
	c := task.Clone()
	return &c, nil
}

func (t *memTx) ListWorkOrderTasks(_ context.Context, workOrderID primitive.ObjectID) ([]models.WorkOrderTask, error) {
	var out []models.WorkOrderTask
	for _, task := range t.st.woTasks {
		if task.WorkOrderID == workOrderID {
			out = append(out, task.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (t *memTx) UpdateWorkOrderTask(_ context.Context, task models.WorkOrderTask) error {
	if err := t.fault("UpdateWorkOrderTask"); err != nil {
		return err
	}
	if _, ok := t.st.woTasks[task.ID]; !ok {
		return models.NotFound("work order task", task.ID.Hex())
	}
	t.st.woTasks[task.ID] = task.Clone()
	return nil
}

func (t *memTx) InsertMeterReading(_ context.Context, reading models.MeterReading) error {
	if err := t.fault("InsertMeterReading"); err != nil {
		return err
	}
	if err := requireID("meter reading", reading.ID); err != nil {
		return err
	}
	t.st.readings = append(t.st.readings, reading)
	return nil
}

func (t *memTx) meterReadings(assetID primitive.ObjectID, meterType string, since time.Time) []models.MeterReading {
	var out []models.MeterReading
	for _, r := range t.st.readings {
		if r.AssetID == assetID && r.MeterType == meterType && !r.ReadingDate.Before(since) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReadingDate.Before(out[j].ReadingDate) })
	return out
}

func (t *memTx) LatestMeterReading(_ context.Context, assetID primitive.ObjectID, meterType string) (*models.MeterReading, error) {
	all := t.meterReadings(assetID, meterType, time.Time{})
	if len(all) == 0 {
		return nil, nil
	}
	latest := all[len(all)-1]
	return &latest, nil
}

func (t *memTx) MeterReadingsSince(_ context.Context, assetID primitive.ObjectID, meterType string, since time.Time) ([]models.MeterReading, error) {
	return t.meterReadings(assetID, meterType, since), nil
}

func (t *memTx) InsertHistory(_ context.Context, record models.MaintenanceHistory) error {
	if err := t.fault("InsertHistory"); err != nil {
		return err
	}
	if err := requireID("maintenance history", record.ID); err != nil {
		return err
	}
	for _, h := range t.st.history {
		if h.WorkOrderID == record.WorkOrderID {
			return fmt.Errorf("insert maintenance history: %w", models.ErrDuplicateHistory)
		}
	}
	t.st.history = append(t.st.history, record)
	return nil
}

func (t *memTx) ListHistory(_ context.Context, filter HistoryFilter) ([]models.MaintenanceHistory, error) {
	var out []models.MaintenanceHistory
	for _, h := range t.st.history {
		if filter.WorkOrderID != nil && h.WorkOrderID != *filter.WorkOrderID {
			continue
		}
		if filter.AssetID != nil && h.AssetID != *filter.AssetID {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func (t *memTx) InsertNotifications(_ context.Context, notifications []models.Notification) error {
	if err := t.fault("InsertNotifications"); err != nil {
		return err
	}
	for _, n := range notifications {
		if err := requireID("notification", n.ID); err != nil {
			return err
		}
	}
	t.st.notifications = append(t.st.notifications, notifications...)
	return nil
}

func (t *memTx) ListNotifications(_ context.Context, filter NotificationFilter) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range t.st.notifications {
		if filter.UserID != nil && n.UserID != *filter.UserID {
			continue
		}
		if filter.Related != nil && n.Related != *filter.Related {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// MemoryRegistry is an in-memory AssetRegistry and RoleDirectory.
type MemoryRegistry struct {
	mu     sync.RWMutex
	assets map[primitive.ObjectID]models.Asset
	users  []models.User
}

// NewMemoryRegistry constructs an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{assets: make(map[primitive.ObjectID]models.Asset)}
}

// AddAsset registers an asset.
func (r *MemoryRegistry) AddAsset(asset models.Asset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[asset.ID] = asset
}

// AddUser registers a user.
func (r *MemoryRegistry) AddUser(user models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, user)
}

// GetAsset implements AssetRegistry.
func (r *MemoryRegistry) GetAsset(_ context.Context, id primitive.ObjectID) (*models.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	asset, ok := r.assets[id]
	if !ok {
		return nil, models.NotFound("asset", id.Hex())
	}
	return &asset, nil
}

// UsersWithRole implements RoleDirectory.
func (r *MemoryRegistry) UsersWithRole(_ context.Context, organizationID primitive.ObjectID, role models.Role) ([]primitive.ObjectID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []primitive.ObjectID
	for _, u := range r.users {
		if u.OrganizationID == organizationID && u.CanReceiveEscalation([]models.Role{role}) {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*MongoStore)(nil)
var _ AssetRegistry = (*MemoryRegistry)(nil)
var _ RoleDirectory = (*MemoryRegistry)(nil)
var _ AssetRegistry = (*MongoAssetRegistry)(nil)
var _ RoleDirectory = (*MongoUserCollection)(nil)
