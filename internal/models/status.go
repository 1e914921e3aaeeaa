package models

// TaskStatus defines the onboarding workflow stage of a task.
// The forward path is strictly linear; see internal/workflow for the
// transition tables that enforce it.
type TaskStatus string

const (
	StatusInitialization              TaskStatus = "INITIALIZATION"
	StatusScheduledVisit              TaskStatus = "SCHEDULED_VISIT"
	StatusRequirementsComplete        TaskStatus = "REQUIREMENTS_COMPLETE"
	StatusHardwareProcurementComplete TaskStatus = "HARDWARE_PROCUREMENT_COMPLETE"
	StatusHardwarePreparedComplete    TaskStatus = "HARDWARE_PREPARED_COMPLETE"
	StatusReadyForInstallation        TaskStatus = "READY_FOR_INSTALLATION"
)

// AllStatuses lists every workflow status in forward order.
var AllStatuses = []TaskStatus{
	StatusInitialization,
	StatusScheduledVisit,
	StatusRequirementsComplete,
	StatusHardwareProcurementComplete,
	StatusHardwarePreparedComplete,
	StatusReadyForInstallation,
}

// Role defines the job function of a user within the onboarding flow
type Role string

const (
	RoleAdmin       Role = "ADMIN" // Administrative override, may reverse any stage
	RoleSales       Role = "SALES"
	RoleEngineer    Role = "ENGINEER"
	RoleProcurement Role = "PROCUREMENT"
	RoleTechnician  Role = "TECHNICIAN"
)

// LorawanStatus tracks network-server provisioning of a single device
type LorawanStatus string

const (
	LorawanPending       LorawanStatus = "PENDING"
	LorawanProvisioned   LorawanStatus = "PROVISIONED"
	LorawanFailed        LorawanStatus = "FAILED"
	LorawanNotApplicable LorawanStatus = "NOT_APPLICABLE"
)

// QRCodePending is the placeholder stored on a device row until the task
// reaches READY_FOR_INSTALLATION (and again after a reversal out of it).
const QRCodePending = "PENDING"
