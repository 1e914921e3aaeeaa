package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Product represents a sellable product line that clients are onboarded onto.
// SOPDefinition and ReportSchema hold the live (editable, versioned) form
// definitions; tasks and reports carry frozen snapshots of them, never a
// reference back to these columns.
type Product struct {
	ID               string         `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Name             string         `gorm:"not null;index" json:"name"`
	Code             string         `gorm:"uniqueIndex;not null" json:"code"`
	Description      string         `gorm:"type:text" json:"description"`
	IsLorawanProduct bool           `gorm:"default:false" json:"isLorawanProduct"`
	SOPDefinition    datatypes.JSON `gorm:"column:sop_definition;type:jsonb" json:"sopDefinition"`
	SOPVersion       int            `gorm:"column:sop_version;default:0" json:"sopVersion"`
	ReportSchema     datatypes.JSON `gorm:"type:jsonb" json:"reportSchema"`
	ReportVersion    int            `gorm:"default:0" json:"reportVersion"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Product) TableName() string { return "products" }

// Hardware represents a catalog hardware type (sensor, gateway, mount kit).
// Rows can be imported from the ERP; Code is the ERP-side natural key.
type Hardware struct {
	ID          string         `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Name        string         `gorm:"not null" json:"name"`
	Code        string         `gorm:"uniqueIndex;not null" json:"code"`
	Description string         `gorm:"type:text" json:"description"`
	UnitPrice   float64        `json:"unitPrice"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Hardware) TableName() string { return "hardware" }
