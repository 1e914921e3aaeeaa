package workflow

import (
	"context"

	"github.com/voltlink-io/onboardflow/internal/models"
	"github.com/voltlink-io/onboardflow/internal/schema"
)

// ClientDirectory resolves and creates client records
type ClientDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Client, error)
	// UpsertByName finds a client by its unique name, reactivating a
	// soft-deleted match, or creates a new one.
	UpsertByName(ctx context.Context, client *models.Client) (*models.Client, error)
}

// ProductCatalog resolves products
type ProductCatalog interface {
	FindByID(ctx context.Context, id string) (*models.Product, error)
}

// HardwareCatalog resolves catalog hardware types
type HardwareCatalog interface {
	FindByID(ctx context.Context, id string) (*models.Hardware, error)
}

// UserDirectory resolves users
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*models.UserAuth, error)
}

// TaskStore is the persistence contract for tasks and their child rows.
// InTransaction must run the callback as one atomic unit: compensation
// deletes and the subsequent status write either all land or none do.
// Save writes the task's own columns only; child rows are owned by the
// replace/delete methods.
type TaskStore interface {
	Create(ctx context.Context, task *models.OnboardingTask) error
	FindByID(ctx context.Context, id string) (*models.OnboardingTask, error)
	// FindByIDForUpdate additionally locks the task row until the
	// surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id string) (*models.OnboardingTask, error)
	Save(ctx context.Context, task *models.OnboardingTask) error
	InTransaction(ctx context.Context, fn func(tx TaskStore) error) error

	ReplaceProcurements(ctx context.Context, taskID string, items []models.HardwareProcurementItem) error
	DeleteProcurements(ctx context.Context, taskID string) error
	ReplaceDevices(ctx context.Context, taskID string, devices []models.DeviceProvisioning) error
	DeleteDevices(ctx context.Context, taskID string) error
	ResetDeviceQRCodes(ctx context.Context, taskID string) error
	SetDeviceQRCode(ctx context.Context, deviceID, qrPayload string) error

	CreateReport(ctx context.Context, report *models.TechnicalReport) error
	CountReports(ctx context.Context, taskID string) (int64, error)
}

// DefinitionSource hands out frozen copies of the per-product SOP and
// report form definitions. Satisfied by schema.Store.
type DefinitionSource interface {
	SnapshotSOP(productID string) ([]schema.FormField, int, error)
	SnapshotReportSchema(productID string) ([]schema.FormField, int, error)
}

// Notifier delivers best-effort client notifications. Implementations
// never return an error; a false result only means delivery was not
// confirmed.
type Notifier interface {
	Notify(kind string, phoneNumber string, args map[string]string) bool
}

// WebhookSender pushes the device list of a task to the LoRaWAN network
// provisioning collaborator.
type WebhookSender interface {
	SendProvisioningWebhook(ctx context.Context, taskID string) error
}

// EventPublisher broadcasts task status changes to connected dashboards.
// Delivery is best-effort.
type EventPublisher interface {
	PublishStatusChanged(task *models.OnboardingTask, from, to models.TaskStatus)
}
