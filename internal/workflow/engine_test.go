package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/voltlink-io/onboardflow/internal/apperrors"
	"github.com/voltlink-io/onboardflow/internal/models"
	"github.com/voltlink-io/onboardflow/internal/schema"
)

// fakeTaskStore is an in-memory TaskStore. InTransaction runs the callback
// against the same store; tests that need rollback semantics assert on the
// error path before any write happens. beforeTransaction, when set, runs
// once at the start of the next transaction and stands in for a concurrent
// writer that committed first.
type fakeTaskStore struct {
	seq          int
	tasks        map[string]*models.OnboardingTask
	procurements map[string][]models.HardwareProcurementItem
	devices      map[string][]models.DeviceProvisioning
	reports      map[string][]models.TechnicalReport

	replaceDevicesErr error
	beforeTransaction func(s *fakeTaskStore)
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{
		tasks:        map[string]*models.OnboardingTask{},
		procurements: map[string][]models.HardwareProcurementItem{},
		devices:      map[string][]models.DeviceProvisioning{},
		reports:      map[string][]models.TechnicalReport{},
	}
}

func (s *fakeTaskStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *fakeTaskStore) Create(ctx context.Context, task *models.OnboardingTask) error {
	if task.ID == "" {
		task.ID = s.nextID("task")
	}
	copied := *task
	s.tasks[task.ID] = &copied
	return nil
}

func (s *fakeTaskStore) FindByID(ctx context.Context, id string) (*models.OnboardingTask, error) {
	stored, ok := s.tasks[id]
	if !ok {
		return nil, apperrors.NewNotFound("task", id)
	}
	copied := *stored
	copied.Procurements = append([]models.HardwareProcurementItem(nil), s.procurements[id]...)
	copied.Devices = append([]models.DeviceProvisioning(nil), s.devices[id]...)
	copied.Reports = append([]models.TechnicalReport(nil), s.reports[id]...)
	return &copied, nil
}

func (s *fakeTaskStore) FindByIDForUpdate(ctx context.Context, id string) (*models.OnboardingTask, error) {
	return s.FindByID(ctx, id)
}

// Save mirrors gorm's default association write-back: child rows still
// carried on the struct are inserted if their id is not already stored, so
// flows that leave stale slices on the task surface as resurrected rows.
func (s *fakeTaskStore) Save(ctx context.Context, task *models.OnboardingTask) error {
	if _, ok := s.tasks[task.ID]; !ok {
		return apperrors.NewNotFound("task", task.ID)
	}
	s.writeBackChildren(task)
	copied := *task
	copied.Procurements = nil
	copied.Devices = nil
	copied.Reports = nil
	s.tasks[task.ID] = &copied
	return nil
}

func (s *fakeTaskStore) writeBackChildren(task *models.OnboardingTask) {
	seenProc := map[string]bool{}
	for _, it := range s.procurements[task.ID] {
		seenProc[it.ID] = true
	}
	for _, it := range task.Procurements {
		if !seenProc[it.ID] {
			s.procurements[task.ID] = append(s.procurements[task.ID], it)
		}
	}

	seenDev := map[string]bool{}
	for _, d := range s.devices[task.ID] {
		seenDev[d.ID] = true
	}
	for _, d := range task.Devices {
		if !seenDev[d.ID] {
			s.devices[task.ID] = append(s.devices[task.ID], d)
		}
	}

	seenRep := map[string]bool{}
	for _, rep := range s.reports[task.ID] {
		seenRep[rep.ID] = true
	}
	for _, rep := range task.Reports {
		if !seenRep[rep.ID] {
			s.reports[task.ID] = append(s.reports[task.ID], rep)
		}
	}
}

func (s *fakeTaskStore) InTransaction(ctx context.Context, fn func(tx TaskStore) error) error {
	if s.beforeTransaction != nil {
		hook := s.beforeTransaction
		s.beforeTransaction = nil
		hook(s)
	}
	return fn(s)
}

func (s *fakeTaskStore) ReplaceProcurements(ctx context.Context, taskID string, items []models.HardwareProcurementItem) error {
	stored := make([]models.HardwareProcurementItem, len(items))
	for i, item := range items {
		item.ID = s.nextID("proc")
		stored[i] = item
	}
	s.procurements[taskID] = stored
	return nil
}

func (s *fakeTaskStore) DeleteProcurements(ctx context.Context, taskID string) error {
	delete(s.procurements, taskID)
	return nil
}

func (s *fakeTaskStore) ReplaceDevices(ctx context.Context, taskID string, devices []models.DeviceProvisioning) error {
	if s.replaceDevicesErr != nil {
		return s.replaceDevicesErr
	}
	stored := make([]models.DeviceProvisioning, len(devices))
	for i, device := range devices {
		device.ID = s.nextID("dev")
		stored[i] = device
	}
	s.devices[taskID] = stored
	return nil
}

func (s *fakeTaskStore) DeleteDevices(ctx context.Context, taskID string) error {
	delete(s.devices, taskID)
	return nil
}

func (s *fakeTaskStore) ResetDeviceQRCodes(ctx context.Context, taskID string) error {
	devices := s.devices[taskID]
	for i := range devices {
		devices[i].QRCode = models.QRCodePending
	}
	return nil
}

func (s *fakeTaskStore) SetDeviceQRCode(ctx context.Context, deviceID, qrPayload string) error {
	for _, devices := range s.devices {
		for i := range devices {
			if devices[i].ID == deviceID {
				devices[i].QRCode = qrPayload
				return nil
			}
		}
	}
	return apperrors.NewNotFound("device", deviceID)
}

func (s *fakeTaskStore) CreateReport(ctx context.Context, report *models.TechnicalReport) error {
	report.ID = s.nextID("rep")
	s.reports[report.TaskID] = append(s.reports[report.TaskID], *report)
	return nil
}

func (s *fakeTaskStore) CountReports(ctx context.Context, taskID string) (int64, error) {
	return int64(len(s.reports[taskID])), nil
}

type fakeClients struct {
	seq  int
	byID map[string]*models.Client
}

func (f *fakeClients) FindByID(ctx context.Context, id string) (*models.Client, error) {
	client, ok := f.byID[id]
	if !ok {
		return nil, apperrors.NewNotFound("client", id)
	}
	copied := *client
	return &copied, nil
}

func (f *fakeClients) UpsertByName(ctx context.Context, client *models.Client) (*models.Client, error) {
	for _, existing := range f.byID {
		if existing.Name == client.Name {
			existing.IsActive = true
			copied := *existing
			return &copied, nil
		}
	}
	f.seq++
	client.ID = fmt.Sprintf("client-%d", f.seq)
	client.IsActive = true
	copied := *client
	f.byID[client.ID] = &copied
	return client, nil
}

type fakeProducts map[string]*models.Product

func (f fakeProducts) FindByID(ctx context.Context, id string) (*models.Product, error) {
	product, ok := f[id]
	if !ok {
		return nil, apperrors.NewNotFound("product", id)
	}
	return product, nil
}

type fakeHardware map[string]*models.Hardware

func (f fakeHardware) FindByID(ctx context.Context, id string) (*models.Hardware, error) {
	hw, ok := f[id]
	if !ok {
		return nil, apperrors.NewNotFound("hardware", id)
	}
	return hw, nil
}

type fakeUsers map[string]*models.UserAuth

func (f fakeUsers) FindByID(ctx context.Context, id string) (*models.UserAuth, error) {
	user, ok := f[id]
	if !ok {
		return nil, apperrors.NewNotFound("user", id)
	}
	return user, nil
}

type fakeDefs struct {
	sopFields    []schema.FormField
	sopVersion   int
	reportFields []schema.FormField
	reportVer    int
}

func (f *fakeDefs) SnapshotSOP(productID string) ([]schema.FormField, int, error) {
	return append([]schema.FormField(nil), f.sopFields...), f.sopVersion, nil
}

func (f *fakeDefs) SnapshotReportSchema(productID string) ([]schema.FormField, int, error) {
	return append([]schema.FormField(nil), f.reportFields...), f.reportVer, nil
}

type publishedEvent struct {
	taskID string
	from   models.TaskStatus
	to     models.TaskStatus
}

type fakeEvents struct {
	published []publishedEvent
}

func (f *fakeEvents) PublishStatusChanged(task *models.OnboardingTask, from, to models.TaskStatus) {
	f.published = append(f.published, publishedEvent{taskID: task.ID, from: from, to: to})
}

type fixture struct {
	engine   *Engine
	store    *fakeTaskStore
	clients  *fakeClients
	products fakeProducts
	hardware fakeHardware
	events   *fakeEvents
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newFakeTaskStore()
	clients := &fakeClients{byID: map[string]*models.Client{
		"client-active": {ID: "client-active", Name: "Acme Farms", Phone: "", IsActive: true},
		"client-frozen": {ID: "client-frozen", Name: "Dormant Corp", IsActive: false},
	}}
	products := fakeProducts{
		"prod-lorawan": {ID: "prod-lorawan", Name: "Cold Chain Monitor", Code: "CCM", IsLorawanProduct: true},
		"prod-plain":   {ID: "prod-plain", Name: "Gate Counter", Code: "GC"},
	}
	hardware := fakeHardware{
		"hw-sensor":  {ID: "hw-sensor", Name: "Temp Sensor", Code: "TS-100"},
		"hw-gateway": {ID: "hw-gateway", Name: "LoRa Gateway", Code: "GW-8"},
	}
	users := fakeUsers{
		"user-eng": {ID: "user-eng", Username: "eng", Role: models.RoleEngineer},
	}
	defs := &fakeDefs{
		sopFields: []schema.FormField{
			{ID: "s1", Name: "mountSensor", Label: "Mount the sensor", Type: schema.FieldCheckbox, Order: 1},
		},
		sopVersion: 3,
		reportFields: []schema.FormField{
			{
				ID: "r1", Name: "signalStrength", Label: "Signal Strength", Type: schema.FieldNumber,
				Required: true, Order: 1,
				ValidationRules: []schema.ValidationRule{
					{Type: schema.RuleMin, Value: float64(-120), Message: "too weak"},
				},
			},
		},
		reportVer: 2,
	}

	engine := NewEngine(store, clients, products, hardware, users, defs, NewPolicy(), schema.NewValidator())
	events := &fakeEvents{}
	engine.SetEventPublisher(events)

	return &fixture{engine: engine, store: store, clients: clients, products: products, hardware: hardware, events: events}
}

// seedTask plants a task directly at the given status, bypassing the engine.
func (f *fixture) seedTask(status models.TaskStatus, productID string) *models.OnboardingTask {
	task := &models.OnboardingTask{
		ID:         "task-seeded",
		TaskNo:     "OB-20260828-abcd1234",
		ClientID:   "client-active",
		ClientName: "Acme Farms",
		ProductID:  productID,
		Status:     status,
	}
	f.store.tasks[task.ID] = task
	return task
}

func (f *fixture) seedProcurements(taskID string, quantities map[string]int) {
	var items []models.HardwareProcurementItem
	for hwID, qty := range quantities {
		items = append(items, models.HardwareProcurementItem{
			ID: f.store.nextID("proc"), TaskID: taskID, HardwareID: hwID, Quantity: qty,
		})
	}
	f.store.procurements[taskID] = items
}

func TestCreateTaskWithInactiveClient(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateTask(context.Background(), CreateTaskInput{
		ClientID:  "client-frozen",
		ProductID: "prod-plain",
	})

	var invalid *apperrors.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidState for inactive client, got %v", err)
	}
	if len(f.store.tasks) != 0 {
		t.Errorf("no task should be created, store has %d", len(f.store.tasks))
	}
}

func TestCreateTaskWithUnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateTask(context.Background(), CreateTaskInput{
		ClientID:  "client-active",
		ProductID: "prod-missing",
	})

	var notFound *apperrors.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if len(f.store.tasks) != 0 {
		t.Error("no task should be created when the product is unknown")
	}
}

func TestCreateTaskByClientName(t *testing.T) {
	f := newFixture(t)
	before := len(f.clients.byID)

	task, err := f.engine.CreateTask(context.Background(), CreateTaskInput{
		ClientName:    "Fresh Fields GmbH",
		ClientAddress: "Dock 4",
		ProductID:     "prod-plain",
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if len(f.clients.byID) != before+1 {
		t.Errorf("exactly one client should be created, got %d new", len(f.clients.byID)-before)
	}
	if task.Status != models.StatusInitialization {
		t.Errorf("new task status = %s, want INITIALIZATION", task.Status)
	}
	if !strings.HasPrefix(task.TaskNo, "OB-") {
		t.Errorf("task number %q should carry the OB- prefix", task.TaskNo)
	}
	if task.ClientName != "Fresh Fields GmbH" || task.ClientAddress != "Dock 4" {
		t.Errorf("client snapshot fields not copied: %+v", task)
	}
	if task.SOPVersion != 3 {
		t.Errorf("SOP version = %d, want 3", task.SOPVersion)
	}

	fields, version, err := f.engine.GetSOPSnapshot(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetSOPSnapshot failed: %v", err)
	}
	if version != 3 || len(fields) != 1 || fields[0].Name != "mountSensor" {
		t.Errorf("snapshot mismatch: version=%d fields=%+v", version, fields)
	}
}

func TestCreateTaskReusesExistingClientByName(t *testing.T) {
	f := newFixture(t)

	task, err := f.engine.CreateTask(context.Background(), CreateTaskInput{
		ClientName: "Acme Farms",
		ProductID:  "prod-plain",
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.ClientID != "client-active" {
		t.Errorf("should reuse the existing client, got %s", task.ClientID)
	}
	if len(f.clients.byID) != 2 {
		t.Errorf("no new client should be created, have %d", len(f.clients.byID))
	}
}

func TestScheduleVisitRequiresDate(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(models.StatusInitialization, "prod-plain")

	_, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusScheduledVisit, models.RoleSales, "user-eng", TransitionPayload{})
	var invalid *apperrors.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidState without scheduledDate, got %v", err)
	}
	if f.store.tasks[task.ID].Status != models.StatusInitialization {
		t.Error("status must not change on a failed transition")
	}

	when := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	updated, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusScheduledVisit, models.RoleSales, "user-eng", TransitionPayload{ScheduledDate: &when})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.Status != models.StatusScheduledVisit {
		t.Errorf("status = %s, want SCHEDULED_VISIT", updated.Status)
	}
	if updated.ScheduledDate == nil || !updated.ScheduledDate.Equal(when) {
		t.Errorf("scheduled date = %v, want %v", updated.ScheduledDate, when)
	}
}

func TestRequirementsNeedsReport(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(models.StatusScheduledVisit, "prod-plain")

	// No inline report and none on file.
	_, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusRequirementsComplete, models.RoleEngineer, "user-eng", TransitionPayload{})
	var invalid *apperrors.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidState without a report, got %v", err)
	}

	// Inline report violating the schema.
	_, err = f.engine.UpdateStatus(context.Background(), task.ID, models.StatusRequirementsComplete, models.RoleEngineer, "user-eng", TransitionPayload{
		ReportData: map[string]interface{}{"signalStrength": float64(-150)},
	})
	var failed *schema.ValidationFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected ValidationFailedError, got %v", err)
	}
	if len(f.store.reports[task.ID]) != 0 {
		t.Error("an invalid report must not be persisted")
	}

	// Valid inline report.
	updated, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusRequirementsComplete, models.RoleEngineer, "user-eng", TransitionPayload{
		ReportData: map[string]interface{}{"signalStrength": float64(-85)},
	})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.Status != models.StatusRequirementsComplete {
		t.Errorf("status = %s, want REQUIREMENTS_COMPLETE", updated.Status)
	}

	reports := f.store.reports[task.ID]
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	report := reports[0]
	if report.SubmitterID == nil || *report.SubmitterID != "user-eng" {
		t.Errorf("submitter = %v, want user-eng", report.SubmitterID)
	}
	if report.FormVersion != 2 {
		t.Errorf("form version = %d, want 2", report.FormVersion)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(report.SubmissionData, &data); err != nil {
		t.Fatalf("submission data not JSON: %v", err)
	}
	if data["signalStrength"] != float64(-85) {
		t.Errorf("submission data = %+v", data)
	}
}

func TestRequirementsAcceptsExistingReport(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(models.StatusScheduledVisit, "prod-plain")
	f.store.reports[task.ID] = []models.TechnicalReport{{ID: "rep-1", TaskID: task.ID}}

	updated, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusRequirementsComplete, models.RoleEngineer, "user-eng", TransitionPayload{})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.Status != models.StatusRequirementsComplete {
		t.Errorf("status = %s, want REQUIREMENTS_COMPLETE", updated.Status)
	}
}

func TestProcurementReplacesWholeList(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(models.StatusRequirementsComplete, "prod-plain")

	// Empty list rejected.
	_, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusHardwareProcurementComplete, models.RoleProcurement, "user-eng", TransitionPayload{})
	var invalid *apperrors.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidState for empty hardwareList, got %v", err)
	}

	// Zero quantity rejected.
	_, err = f.engine.UpdateStatus(context.Background(), task.ID, models.StatusHardwareProcurementComplete, models.RoleProcurement, "user-eng", TransitionPayload{
		HardwareList: []HardwareRequest{{HardwareID: "hw-sensor", Quantity: 0}},
	})
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidState for zero quantity, got %v", err)
	}

	// Unknown hardware rejected.
	_, err = f.engine.UpdateStatus(context.Background(), task.ID, models.StatusHardwareProcurementComplete, models.RoleProcurement, "user-eng", TransitionPayload{
		HardwareList: []HardwareRequest{{HardwareID: "hw-missing", Quantity: 1}},
	})
	var notFound *apperrors.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFound for unknown hardware, got %v", err)
	}

	// First valid submission.
	_, err = f.engine.UpdateStatus(context.Background(), task.ID, models.StatusHardwareProcurementComplete, models.RoleProcurement, "user-eng", TransitionPayload{
		HardwareList: []HardwareRequest{
			{HardwareID: "hw-sensor", Quantity: 2},
			{HardwareID: "hw-gateway", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if len(f.store.procurements[task.ID]) != 2 {
		t.Fatalf("expected 2 procurement rows, got %d", len(f.store.procurements[task.ID]))
	}

	// Correction by admin reversal and resubmission replaces, never
	// accumulates.
	if _, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusRequirementsComplete, models.RoleAdmin, "user-eng", TransitionPayload{}); err != nil {
		t.Fatalf("reversal failed: %v", err)
	}
	_, err = f.engine.UpdateStatus(context.Background(), task.ID, models.StatusHardwareProcurementComplete, models.RoleProcurement, "user-eng", TransitionPayload{
		HardwareList: []HardwareRequest{{HardwareID: "hw-sensor", Quantity: 5}},
	})
	if err != nil {
		t.Fatalf("resubmission failed: %v", err)
	}
	rows := f.store.procurements[task.ID]
	if len(rows) != 1 || rows[0].Quantity != 5 {
		t.Errorf("resubmission should replace the list, got %+v", rows)
	}
}

func TestPreparationCountMismatch(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(models.StatusHardwareProcurementComplete, "prod-plain")
	f.seedProcurements(task.ID, map[string]int{"hw-sensor": 3})

	_, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusHardwarePreparedComplete, models.RoleTechnician, "user-eng", TransitionPayload{
		DeviceList: []DeviceRequest{
			{HardwareID: "hw-sensor", DeviceSerial: "SN-1", FirmwareVersion: "1.0"},
			{HardwareID: "hw-sensor", DeviceSerial: "SN-2", FirmwareVersion: "1.0"},
		},
	})

	var invalid *apperrors.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
	if !strings.Contains(err.Error(), "expected 3, received 2") {
		t.Errorf("message %q should state the count mismatch", err.Error())
	}
	if f.store.tasks[task.ID].Status != models.StatusHardwareProcurementComplete {
		t.Error("status must not change on a count mismatch")
	}
}

func TestPreparationStampsDeviceRows(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(models.StatusHardwareProcurementComplete, "prod-lorawan")
	f.seedProcurements(task.ID, map[string]int{"hw-sensor": 2})

	updated, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusHardwarePreparedComplete, models.RoleTechnician, "user-eng", TransitionPayload{
		DeviceList: []DeviceRequest{
			{HardwareID: "hw-sensor", DeviceSerial: "SN-1", FirmwareVersion: "2.1", DevEUI: "AABBCCDD00112233"},
			{HardwareID: "hw-sensor", DeviceSerial: "SN-2", FirmwareVersion: "2.1", DevEUI: "AABBCCDD00112244"},
		},
	})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.Status != models.StatusHardwarePreparedComplete {
		t.Errorf("status = %s, want HARDWARE_PREPARED_COMPLETE", updated.Status)
	}

	devices := f.store.devices[task.ID]
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}
	for _, d := range devices {
		if d.QRCode != models.QRCodePending {
			t.Errorf("device %s QR = %q, want PENDING", d.DeviceSerial, d.QRCode)
		}
		if d.LorawanStatus != models.LorawanPending {
			t.Errorf("device %s lorawan status = %s, want PENDING", d.DeviceSerial, d.LorawanStatus)
		}
		if d.DeviceType != "TS-100" {
			t.Errorf("device type = %q, want catalog code TS-100", d.DeviceType)
		}
		if d.ProvisionerID == nil || *d.ProvisionerID != "user-eng" {
			t.Errorf("provisioner = %v, want user-eng", d.ProvisionerID)
		}
	}
}

func TestPreparationNonLorawanProduct(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(models.StatusHardwareProcurementComplete, "prod-plain")
	f.seedProcurements(task.ID, map[string]int{"hw-sensor": 1})

	_, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusHardwarePreparedComplete, models.RoleTechnician, "user-eng", TransitionPayload{
		DeviceList: []DeviceRequest{{HardwareID: "hw-sensor", DeviceSerial: "SN-9", FirmwareVersion: "1.0"}},
	})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if got := f.store.devices[task.ID][0].LorawanStatus; got != models.LorawanNotApplicable {
		t.Errorf("lorawan status = %s, want NOT_APPLICABLE", got)
	}
}

func TestPreparationDuplicateSerialConflict(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(models.StatusHardwareProcurementComplete, "prod-plain")
	f.seedProcurements(task.ID, map[string]int{"hw-sensor": 1})
	f.store.replaceDevicesErr = apperrors.NewConflict("a device serial in the list is already provisioned")

	_, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusHardwarePreparedComplete, models.RoleTechnician, "user-eng", TransitionPayload{
		DeviceList: []DeviceRequest{{HardwareID: "hw-sensor", DeviceSerial: "SN-1", FirmwareVersion: "1.0"}},
	})

	var conflict *apperrors.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
	if f.store.tasks[task.ID].Status != models.StatusHardwareProcurementComplete {
		t.Error("status must not change when the device write conflicts")
	}
}

func TestReadyForInstallationStampsQRCodes(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(models.StatusHardwarePreparedComplete, "prod-plain")
	f.store.devices[task.ID] = []models.DeviceProvisioning{
		{ID: "dev-1", TaskID: task.ID, HardwareID: "hw-sensor", DeviceType: "TS-100", DeviceSerial: "SN-1", QRCode: models.QRCodePending},
		{ID: "dev-2", TaskID: task.ID, HardwareID: "hw-sensor", DeviceType: "TS-100", DeviceSerial: "SN-2", QRCode: models.QRCodePending},
	}

	updated, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusReadyForInstallation, models.RoleTechnician, "user-eng", TransitionPayload{})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.Status != models.StatusReadyForInstallation {
		t.Errorf("status = %s, want READY_FOR_INSTALLATION", updated.Status)
	}

	for _, d := range f.store.devices[task.ID] {
		if d.QRCode == models.QRCodePending {
			t.Fatalf("device %s still PENDING", d.DeviceSerial)
		}
		var payload map[string]string
		if err := json.Unmarshal([]byte(d.QRCode), &payload); err != nil {
			t.Fatalf("QR payload of %s not JSON: %v", d.DeviceSerial, err)
		}
		if payload["taskId"] != task.ID || payload["deviceSerial"] != d.DeviceSerial || payload["clientName"] != "Acme Farms" {
			t.Errorf("QR payload mismatch: %+v", payload)
		}
	}

	if len(f.events.published) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(f.events.published))
	}
	ev := f.events.published[0]
	if ev.from != models.StatusHardwarePreparedComplete || ev.to != models.StatusReadyForInstallation {
		t.Errorf("event = %+v", ev)
	}
}

func TestAdminReversalResetsQRCodes(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(models.StatusReadyForInstallation, "prod-plain")
	f.store.devices[task.ID] = []models.DeviceProvisioning{
		{ID: "dev-1", TaskID: task.ID, DeviceSerial: "SN-1", QRCode: `{"taskId":"task-seeded"}`},
	}

	updated, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusHardwarePreparedComplete, models.RoleAdmin, "user-eng", TransitionPayload{})
	if err != nil {
		t.Fatalf("reversal failed: %v", err)
	}
	if updated.Status != models.StatusHardwarePreparedComplete {
		t.Errorf("status = %s, want HARDWARE_PREPARED_COMPLETE", updated.Status)
	}
	if got := f.store.devices[task.ID][0].QRCode; got != models.QRCodePending {
		t.Errorf("QR code = %q, want PENDING after reversal", got)
	}
}

func TestNonAdminReversalForbidden(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(models.StatusReadyForInstallation, "prod-plain")

	_, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusHardwarePreparedComplete, models.RoleTechnician, "user-eng", TransitionPayload{})
	var forbidden *apperrors.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
	if f.store.tasks[task.ID].Status != models.StatusReadyForInstallation {
		t.Error("status must not change on a forbidden reversal")
	}
}

func TestReversalToRequirementsDeletesDownstream(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(models.StatusHardwarePreparedComplete, "prod-plain")
	f.seedProcurements(task.ID, map[string]int{"hw-sensor": 1})
	f.store.devices[task.ID] = []models.DeviceProvisioning{
		{ID: "dev-1", TaskID: task.ID, DeviceSerial: "SN-1", QRCode: models.QRCodePending},
	}

	updated, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusRequirementsComplete, models.RoleAdmin, "user-eng", TransitionPayload{})
	if err != nil {
		t.Fatalf("reversal failed: %v", err)
	}
	if updated.Status != models.StatusRequirementsComplete {
		t.Errorf("status = %s, want REQUIREMENTS_COMPLETE", updated.Status)
	}
	if len(f.store.devices[task.ID]) != 0 {
		t.Error("devices should be deleted by the compensation")
	}
	if len(f.store.procurements[task.ID]) != 0 {
		t.Error("procurements should be deleted by the compensation")
	}
}

func TestResubmissionAfterReversalReplacesDevices(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(models.StatusHardwareProcurementComplete, "prod-plain")
	f.seedProcurements(task.ID, map[string]int{"hw-sensor": 2})

	first := []DeviceRequest{
		{HardwareID: "hw-sensor", DeviceSerial: "SN-1", FirmwareVersion: "1.0"},
		{HardwareID: "hw-sensor", DeviceSerial: "SN-2", FirmwareVersion: "1.0"},
	}
	if _, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusHardwarePreparedComplete, models.RoleTechnician, "user-eng", TransitionPayload{DeviceList: first}); err != nil {
		t.Fatalf("first preparation failed: %v", err)
	}

	if _, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusHardwareProcurementComplete, models.RoleAdmin, "user-eng", TransitionPayload{}); err != nil {
		t.Fatalf("reversal failed: %v", err)
	}
	if got := len(f.store.devices[task.ID]); got != 0 {
		t.Fatalf("device rows must stay deleted after the reversal commits, found %d", got)
	}

	// Same serials, corrected firmware.
	corrected := []DeviceRequest{
		{HardwareID: "hw-sensor", DeviceSerial: "SN-1", FirmwareVersion: "1.1"},
		{HardwareID: "hw-sensor", DeviceSerial: "SN-2", FirmwareVersion: "1.1"},
	}
	if _, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusHardwarePreparedComplete, models.RoleTechnician, "user-eng", TransitionPayload{DeviceList: corrected}); err != nil {
		t.Fatalf("resubmission failed: %v", err)
	}

	devices := f.store.devices[task.ID]
	if len(devices) != 2 {
		t.Fatalf("resubmission must replace the device list, not accumulate: got %d rows", len(devices))
	}
	for _, d := range devices {
		if d.FirmwareVersion != "1.1" {
			t.Errorf("stale device row survived the resubmission: %+v", d)
		}
	}
}

func TestUpdateStatusRevalidatesCurrentStatus(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(models.StatusInitialization, "prod-plain")

	// A concurrent transition commits between the request being accepted
	// and this transaction acquiring the row.
	f.store.beforeTransaction = func(s *fakeTaskStore) {
		s.tasks[task.ID].Status = models.StatusScheduledVisit
	}

	when := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	_, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusScheduledVisit, models.RoleSales, "user-eng", TransitionPayload{ScheduledDate: &when})

	var invalid *apperrors.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransition against the committed status, got %v", err)
	}
	if len(f.events.published) != 0 {
		t.Errorf("a rejected transition must not publish events, got %d", len(f.events.published))
	}
}

func TestSkippingAStageIsRejected(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(models.StatusInitialization, "prod-plain")

	_, err := f.engine.UpdateStatus(context.Background(), task.ID, models.StatusRequirementsComplete, models.RoleAdmin, "user-eng", TransitionPayload{})
	var invalid *apperrors.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransition when skipping a stage, got %v", err)
	}
}

func TestAssignUser(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(models.StatusInitialization, "prod-plain")

	_, err := f.engine.AssignUser(context.Background(), task.ID, "user-missing")
	var notFound *apperrors.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFound for unknown user, got %v", err)
	}

	updated, err := f.engine.AssignUser(context.Background(), task.ID, "user-eng")
	if err != nil {
		t.Fatalf("AssignUser failed: %v", err)
	}
	if updated.AssignedUserID == nil || *updated.AssignedUserID != "user-eng" {
		t.Errorf("assigned user = %v, want user-eng", updated.AssignedUserID)
	}
}
