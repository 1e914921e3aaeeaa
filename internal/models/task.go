package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OnboardingTask is the workflow subject: one client being onboarded onto
// one product. Client contact fields are copied in at creation time so the
// task remains readable even if the client record is edited later.
//
// Status only ever changes through workflow.Engine.UpdateStatus; SOPSnapshot
// is written once at creation and never re-read from the product template.
type OnboardingTask struct {
	ID     string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	TaskNo string `gorm:"uniqueIndex;not null" json:"taskNo"`

	ClientID      string `gorm:"type:uuid;not null;index" json:"clientId"`
	ClientName    string `gorm:"not null" json:"clientName"`
	ClientAddress string `json:"clientAddress"`
	ClientEmail   string `json:"clientEmail"`
	ClientPhone   string `json:"clientPhone"`
	ContactPerson string `json:"contactPerson"`

	ProductID      string  `gorm:"type:uuid;not null;index" json:"productId"`
	AssignedUserID *string `gorm:"type:uuid;index" json:"assignedUserId,omitempty"`

	Status        TaskStatus     `gorm:"default:'INITIALIZATION';index" json:"status"`
	ScheduledDate *time.Time     `json:"scheduledDate,omitempty"`
	SOPSnapshot   datatypes.JSON `gorm:"column:sop_snapshot;type:jsonb" json:"sopSnapshot"`
	SOPVersion    int            `gorm:"column:sop_version" json:"sopVersion"`
	Notes         string         `gorm:"type:text" json:"notes"`

	Client       *Client                   `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Product      *Product                  `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	AssignedUser *UserAuth                 `gorm:"foreignKey:AssignedUserID" json:"assignedUser,omitempty"`
	Procurements []HardwareProcurementItem `gorm:"foreignKey:TaskID" json:"procurements,omitempty"`
	Devices      []DeviceProvisioning      `gorm:"foreignKey:TaskID" json:"devices,omitempty"`
	Reports      []TechnicalReport         `gorm:"foreignKey:TaskID" json:"reports,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (OnboardingTask) TableName() string { return "onboarding_tasks" }

// HardwareProcurementItem is an intent to acquire N units of a catalog
// hardware type for one task. Not yet individual physical units.
type HardwareProcurementItem struct {
	ID         string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	TaskID     string    `gorm:"type:uuid;not null;index" json:"taskId"`
	HardwareID string    `gorm:"type:uuid;not null" json:"hardwareId"`
	Quantity   int       `gorm:"not null" json:"quantity"`
	Notes      string    `json:"notes"`
	Hardware   *Hardware `gorm:"foreignKey:HardwareID" json:"hardware,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (HardwareProcurementItem) TableName() string { return "hardware_procurement_items" }

// DeviceProvisioning is one physical unit prepared for installation.
// DeviceSerial is globally unique across all tasks; QRCode stays "PENDING"
// until the task passes through READY_FOR_INSTALLATION.
type DeviceProvisioning struct {
	ID              string        `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	TaskID          string        `gorm:"type:uuid;not null;index" json:"taskId"`
	HardwareID      string        `gorm:"type:uuid;not null" json:"hardwareId"`
	DeviceType      string        `json:"deviceType"`
	DeviceSerial    string        `gorm:"uniqueIndex;not null" json:"deviceSerial"`
	FirmwareVersion string        `gorm:"not null" json:"firmwareVersion"`
	QRCode          string        `gorm:"type:text;default:'PENDING'" json:"qrCode"`
	ProvisionerID   *string       `gorm:"type:uuid" json:"provisionerId,omitempty"`
	DevEUI          string        `gorm:"column:dev_eui" json:"devEui,omitempty"`
	AppKey          string        `json:"appKey,omitempty"`
	LorawanStatus   LorawanStatus `gorm:"default:'NOT_APPLICABLE'" json:"lorawanProvisioningStatus"`
	Hardware        *Hardware     `gorm:"foreignKey:HardwareID" json:"hardware,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

func (DeviceProvisioning) TableName() string { return "device_provisionings" }

// TechnicalReport is a requirements-capture form submission for a task.
// FormSnapshot freezes the schema the submission was validated against, so
// later edits to the product's report schema cannot invalidate it.
type TechnicalReport struct {
	ID             string         `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	TaskID         string         `gorm:"type:uuid;not null;index" json:"taskId"`
	SubmitterID    *string        `gorm:"type:uuid" json:"submitterId,omitempty"`
	FormSnapshot   datatypes.JSON `gorm:"type:jsonb" json:"formSnapshot"`
	FormVersion    int            `json:"formVersion"`
	SubmissionData datatypes.JSON `gorm:"type:jsonb" json:"submissionData"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func (TechnicalReport) TableName() string { return "technical_reports" }
