package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/voltlink-io/onboardflow/internal/apperrors"
	"github.com/voltlink-io/onboardflow/internal/models"
	"github.com/voltlink-io/onboardflow/internal/schema"
)

// CreateTaskInput carries everything needed to open an onboarding task.
// Either ClientID (existing client) or ClientName+ClientAddress (find or
// create) must be set.
type CreateTaskInput struct {
	ClientID       string  `json:"clientId,omitempty"`
	ClientName     string  `json:"clientName,omitempty"`
	ClientAddress  string  `json:"clientAddress,omitempty"`
	ClientEmail    string  `json:"clientEmail,omitempty"`
	ClientPhone    string  `json:"clientPhone,omitempty"`
	ContactPerson  string  `json:"contactPerson,omitempty"`
	ProductID      string  `json:"productId"`
	AssignedUserID *string `json:"assignedUserId,omitempty"`
	Notes          string  `json:"notes,omitempty"`
}

// HardwareRequest is one procurement line item in a transition payload
type HardwareRequest struct {
	HardwareID string `json:"hardwareId"`
	Quantity   int    `json:"quantity"`
	Notes      string `json:"notes,omitempty"`
}

// DeviceRequest is one prepared physical unit in a transition payload
type DeviceRequest struct {
	HardwareID      string `json:"hardwareId"`
	DeviceSerial    string `json:"deviceSerial"`
	FirmwareVersion string `json:"firmwareVersion"`
	DevEUI          string `json:"devEui,omitempty"`
	AppKey          string `json:"appKey,omitempty"`
}

// TransitionPayload carries the stage-specific data of an UpdateStatus
// call. Which part is required depends on the target status.
type TransitionPayload struct {
	ScheduledDate *time.Time             `json:"scheduledDate,omitempty"`
	ReportData    map[string]interface{} `json:"reportData,omitempty"`
	HardwareList  []HardwareRequest      `json:"hardwareList,omitempty"`
	DeviceList    []DeviceRequest        `json:"deviceList,omitempty"`
}

// qrPayload is the client-tagged content rendered into a device QR code
type qrPayload struct {
	TaskID       string `json:"taskId"`
	DeviceSerial string `json:"deviceSerial"`
	DeviceType   string `json:"deviceType"`
	ClientID     string `json:"clientId"`
	ClientName   string `json:"clientName"`
}

// Engine orchestrates the task lifecycle. It is request-scoped and
// stateless between calls; all state lives in the persisted rows, read
// fresh at the start of each call.
type Engine struct {
	tasks    TaskStore
	clients  ClientDirectory
	products ProductCatalog
	hardware HardwareCatalog
	users    UserDirectory
	defs     DefinitionSource
	policy   *Policy
	schemas  *schema.Validator

	notifier Notifier
	webhook  WebhookSender
	events   EventPublisher
}

// NewEngine creates the workflow engine over its persistence collaborators
func NewEngine(tasks TaskStore, clients ClientDirectory, products ProductCatalog, hardware HardwareCatalog, users UserDirectory, defs DefinitionSource, policy *Policy, validator *schema.Validator) *Engine {
	return &Engine{
		tasks:    tasks,
		clients:  clients,
		products: products,
		hardware: hardware,
		users:    users,
		defs:     defs,
		policy:   policy,
		schemas:  validator,
	}
}

// SetNotifier injects the best-effort notification sender
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// SetWebhookSender injects the LoRaWAN provisioning webhook client
func (e *Engine) SetWebhookSender(w WebhookSender) { e.webhook = w }

// SetEventPublisher injects the task event broadcaster
func (e *Engine) SetEventPublisher(p EventPublisher) { e.events = p }

// CreateTask resolves (or creates) the client, snapshots the product's SOP
// and persists a task at INITIALIZATION. The "task created" notification is
// dispatched best-effort and never fails the creation.
func (e *Engine) CreateTask(ctx context.Context, input CreateTaskInput) (*models.OnboardingTask, error) {
	client, err := e.resolveClient(ctx, input)
	if err != nil {
		return nil, err
	}

	product, err := e.products.FindByID(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}

	if input.AssignedUserID != nil {
		if _, err := e.users.FindByID(ctx, *input.AssignedUserID); err != nil {
			return nil, err
		}
	}

	sopFields, sopVersion, err := e.defs.SnapshotSOP(product.ID)
	if err != nil {
		return nil, err
	}
	sopRaw, err := schema.EncodeDefinition(sopFields)
	if err != nil {
		return nil, err
	}

	task := &models.OnboardingTask{
		TaskNo:         newTaskNo(),
		ClientID:       client.ID,
		ClientName:     client.Name,
		ClientAddress:  firstNonEmpty(input.ClientAddress, client.Address),
		ClientEmail:    firstNonEmpty(input.ClientEmail, client.Email),
		ClientPhone:    firstNonEmpty(input.ClientPhone, client.Phone),
		ContactPerson:  firstNonEmpty(input.ContactPerson, client.ContactPerson),
		ProductID:      product.ID,
		AssignedUserID: input.AssignedUserID,
		Status:         models.StatusInitialization,
		SOPSnapshot:    sopRaw,
		SOPVersion:     sopVersion,
		Notes:          input.Notes,
	}

	if err := e.tasks.Create(ctx, task); err != nil {
		return nil, err
	}

	if e.notifier != nil && task.ClientPhone != "" {
		go func(phone, taskNo, contact, productName string) {
			if !e.notifier.Notify("task_created", phone, map[string]string{
				"taskNo":  taskNo,
				"contact": contact,
				"product": productName,
			}) {
				log.Printf("⚠️ task_created notification not delivered (task=%s)", taskNo)
			}
		}(task.ClientPhone, task.TaskNo, task.ContactPerson, product.Name)
	}

	return e.tasks.FindByID(ctx, task.ID)
}

// resolveClient implements the createTask client rules: an explicit id must
// point at an active client; otherwise the client is found-or-created by
// its unique name.
func (e *Engine) resolveClient(ctx context.Context, input CreateTaskInput) (*models.Client, error) {
	if input.ClientID != "" {
		client, err := e.clients.FindByID(ctx, input.ClientID)
		if err != nil {
			return nil, err
		}
		if !client.IsActive {
			return nil, apperrors.NewInvalidState("client %s is inactive", client.Name)
		}
		return client, nil
	}

	if input.ClientName == "" {
		return nil, apperrors.NewInvalidState("either clientId or clientName is required")
	}

	return e.clients.UpsertByName(ctx, &models.Client{
		Name:          input.ClientName,
		Address:       input.ClientAddress,
		Email:         input.ClientEmail,
		Phone:         input.ClientPhone,
		ContactPerson: input.ContactPerson,
	})
}

// UpdateStatus executes a single validated status transition: policy check,
// reversal compensation, forward data requirements, then the status write —
// all inside one atomic unit of work. The task is read under a row lock
// inside the transaction, so two concurrent calls from the same status
// cannot both pass validation. Side effects are dispatched after the write
// and never fail the transition.
func (e *Engine) UpdateStatus(ctx context.Context, taskID string, target models.TaskStatus, actingRole models.Role, actingUserID string, payload TransitionPayload) (*models.OnboardingTask, error) {
	var from models.TaskStatus
	var product *models.Product

	err := e.tasks.InTransaction(ctx, func(tx TaskStore) error {
		task, err := tx.FindByIDForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		from = task.Status

		if err := e.policy.Validate(from, target, actingRole); err != nil {
			return err
		}

		product, err = e.products.FindByID(ctx, task.ProductID)
		if err != nil {
			return err
		}

		if e.policy.IsReverse(from, target) {
			if err := e.compensate(ctx, tx, task, target); err != nil {
				return err
			}
		} else {
			if err := e.applyForward(ctx, tx, task, product, target, actingUserID, payload); err != nil {
				return err
			}
		}

		// The preloaded child slices are stale after the writes above and
		// must not ride along on the status write.
		task.Procurements = nil
		task.Devices = nil
		task.Reports = nil
		task.Status = target
		return tx.Save(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	updated, err := e.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	e.dispatchSideEffects(updated, product, from, target)
	return updated, nil
}

// compensate invalidates downstream artifacts before a reverse status
// write. Runs inside the transition transaction.
func (e *Engine) compensate(ctx context.Context, tx TaskStore, task *models.OnboardingTask, target models.TaskStatus) error {
	switch target {
	case models.StatusRequirementsComplete:
		// Both procurement and preparation are downstream of requirements.
		if err := tx.DeleteDevices(ctx, task.ID); err != nil {
			return err
		}
		return tx.DeleteProcurements(ctx, task.ID)
	case models.StatusHardwareProcurementComplete:
		return tx.DeleteDevices(ctx, task.ID)
	case models.StatusHardwarePreparedComplete:
		// QR codes are regenerated, never reused, once hardware details
		// could have changed.
		return tx.ResetDeviceQRCodes(ctx, task.ID)
	}
	return nil
}

// applyForward enforces the per-stage data requirements of a forward edge
// and persists the stage's artifacts. Runs inside the transition
// transaction.
func (e *Engine) applyForward(ctx context.Context, tx TaskStore, task *models.OnboardingTask, product *models.Product, target models.TaskStatus, actingUserID string, payload TransitionPayload) error {
	switch target {
	case models.StatusScheduledVisit:
		if payload.ScheduledDate == nil {
			return apperrors.NewInvalidState("scheduledDate is required to schedule a visit")
		}
		task.ScheduledDate = payload.ScheduledDate
		return nil

	case models.StatusRequirementsComplete:
		return e.applyRequirements(ctx, tx, task, product, actingUserID, payload)

	case models.StatusHardwareProcurementComplete:
		return e.applyProcurement(ctx, tx, task, payload)

	case models.StatusHardwarePreparedComplete:
		return e.applyPreparation(ctx, tx, task, product, actingUserID, payload)

	case models.StatusReadyForInstallation:
		return e.applyQRCodes(ctx, tx, task)
	}
	return nil
}

func (e *Engine) applyRequirements(ctx context.Context, tx TaskStore, task *models.OnboardingTask, product *models.Product, actingUserID string, payload TransitionPayload) error {
	if payload.ReportData == nil {
		count, err := tx.CountReports(ctx, task.ID)
		if err != nil {
			return err
		}
		if count == 0 {
			return apperrors.NewInvalidState("a report must be submitted before completing requirements")
		}
		return nil
	}

	fields, version, err := e.defs.SnapshotReportSchema(product.ID)
	if err != nil {
		return err
	}
	sanitized, err := e.schemas.Enforce(fields, payload.ReportData)
	if err != nil {
		return err
	}

	submitter := &actingUserID
	if actingUserID == "" {
		submitter = task.AssignedUserID
	}
	if submitter == nil || *submitter == "" {
		return apperrors.NewInvalidState("report submitter could not be resolved")
	}

	formRaw, err := schema.EncodeDefinition(fields)
	if err != nil {
		return err
	}
	dataRaw, err := json.Marshal(sanitized)
	if err != nil {
		return fmt.Errorf("failed to encode submission data: %w", err)
	}

	return tx.CreateReport(ctx, &models.TechnicalReport{
		TaskID:         task.ID,
		SubmitterID:    submitter,
		FormSnapshot:   formRaw,
		FormVersion:    version,
		SubmissionData: dataRaw,
	})
}

func (e *Engine) applyProcurement(ctx context.Context, tx TaskStore, task *models.OnboardingTask, payload TransitionPayload) error {
	if len(payload.HardwareList) == 0 {
		return apperrors.NewInvalidState("a non-empty hardwareList is required to complete procurement")
	}

	items := make([]models.HardwareProcurementItem, 0, len(payload.HardwareList))
	for _, req := range payload.HardwareList {
		if req.HardwareID == "" {
			return apperrors.NewInvalidState("every hardware item needs a hardwareId")
		}
		if req.Quantity < 1 {
			return apperrors.NewInvalidState("hardware quantity must be at least 1")
		}
		if _, err := e.hardware.FindByID(ctx, req.HardwareID); err != nil {
			return err
		}
		items = append(items, models.HardwareProcurementItem{
			TaskID:     task.ID,
			HardwareID: req.HardwareID,
			Quantity:   req.Quantity,
			Notes:      req.Notes,
		})
	}

	// Delete-and-replace: a resubmission corrects the whole list, it never
	// accumulates.
	return tx.ReplaceProcurements(ctx, task.ID, items)
}

func (e *Engine) applyPreparation(ctx context.Context, tx TaskStore, task *models.OnboardingTask, product *models.Product, actingUserID string, payload TransitionPayload) error {
	if len(payload.DeviceList) == 0 {
		return apperrors.NewInvalidState("a non-empty deviceList is required to complete preparation")
	}

	expected := 0
	for _, item := range task.Procurements {
		expected += item.Quantity
	}
	if len(payload.DeviceList) != expected {
		return apperrors.NewInvalidState("device count does not match procurement: expected %d, received %d", expected, len(payload.DeviceList))
	}

	lorawanStatus := models.LorawanNotApplicable
	if product.IsLorawanProduct {
		lorawanStatus = models.LorawanPending
	}

	var provisioner *string
	if actingUserID != "" {
		provisioner = &actingUserID
	}

	devices := make([]models.DeviceProvisioning, 0, len(payload.DeviceList))
	for _, req := range payload.DeviceList {
		if req.DeviceSerial == "" || req.FirmwareVersion == "" || req.HardwareID == "" {
			return apperrors.NewInvalidState("every device needs deviceSerial, firmwareVersion and hardwareId")
		}
		hw, err := e.hardware.FindByID(ctx, req.HardwareID)
		if err != nil {
			return err
		}
		devices = append(devices, models.DeviceProvisioning{
			TaskID:          task.ID,
			HardwareID:      hw.ID,
			DeviceType:      hw.Code,
			DeviceSerial:    req.DeviceSerial,
			FirmwareVersion: req.FirmwareVersion,
			QRCode:          models.QRCodePending,
			ProvisionerID:   provisioner,
			DevEUI:          req.DevEUI,
			AppKey:          req.AppKey,
			LorawanStatus:   lorawanStatus,
		})
	}

	return tx.ReplaceDevices(ctx, task.ID, devices)
}

// applyQRCodes stamps a client-tagged payload onto every device row when
// the task becomes ready for installation.
func (e *Engine) applyQRCodes(ctx context.Context, tx TaskStore, task *models.OnboardingTask) error {
	for _, device := range task.Devices {
		payload, err := json.Marshal(qrPayload{
			TaskID:       task.ID,
			DeviceSerial: device.DeviceSerial,
			DeviceType:   device.DeviceType,
			ClientID:     task.ClientID,
			ClientName:   task.ClientName,
		})
		if err != nil {
			return fmt.Errorf("failed to encode QR payload: %w", err)
		}
		if err := tx.SetDeviceQRCode(ctx, device.ID, string(payload)); err != nil {
			return err
		}
	}
	return nil
}

// dispatchSideEffects fires notification, webhook and event broadcast
// after the transaction committed. Failures are logged and swallowed; the
// state transition is the source of truth.
func (e *Engine) dispatchSideEffects(task *models.OnboardingTask, product *models.Product, from, to models.TaskStatus) {
	if e.events != nil {
		e.events.PublishStatusChanged(task, from, to)
	}

	if e.notifier != nil && task.ClientPhone != "" {
		go func(phone, taskNo string, status models.TaskStatus) {
			if !e.notifier.Notify("status_changed", phone, map[string]string{
				"taskNo": taskNo,
				"status": string(status),
			}) {
				log.Printf("⚠️ status_changed notification not delivered (task=%s)", taskNo)
			}
		}(task.ClientPhone, task.TaskNo, to)
	}

	if e.webhook != nil && to == models.StatusReadyForInstallation && product.IsLorawanProduct {
		go func(taskID string) {
			if err := e.webhook.SendProvisioningWebhook(context.Background(), taskID); err != nil {
				log.Printf("⚠️ LoRaWAN provisioning webhook failed (task=%s): %v", taskID, err)
			}
		}(task.ID)
	}
}

// AssignUser reassigns a task unconditionally. Role gating happens at the
// calling boundary, not here.
func (e *Engine) AssignUser(ctx context.Context, taskID, userID string) (*models.OnboardingTask, error) {
	task, err := e.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	task.AssignedUserID = &user.ID
	if err := e.tasks.Save(ctx, task); err != nil {
		return nil, err
	}
	return e.tasks.FindByID(ctx, taskID)
}

// GetSOPSnapshot returns the frozen SOP checklist of a task
func (e *Engine) GetSOPSnapshot(ctx context.Context, taskID string) ([]schema.FormField, int, error) {
	task, err := e.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, 0, err
	}
	fields, err := schema.DecodeDefinition(task.SOPSnapshot)
	if err != nil {
		return nil, 0, err
	}
	return fields, task.SOPVersion, nil
}

func newTaskNo() string {
	return fmt.Sprintf("OB-%s-%s", time.Now().UTC().Format("20060102"), uuid.NewString()[:8])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
