package models

import (
	"time"

	"gorm.io/gorm"
)

// Client represents a customer company being onboarded
// Convention: Go PascalCase -> DB snake_case (GORM auto) -> JSON camelCase
type Client struct {
	ID            string         `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Name          string         `gorm:"uniqueIndex;not null" json:"name"`
	Address       string         `json:"address"`
	Email         string         `json:"email"`
	Phone         string         `json:"phone"`
	ContactPerson string         `json:"contactPerson"`
	IsActive      bool           `gorm:"default:true" json:"isActive"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Client) TableName() string { return "clients" }
