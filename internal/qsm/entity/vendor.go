package entity

import (
	"time"

	"gorm.io/gorm"
)

// Vendor is an RMC supplier scoped to a project. Bulk batch entry may create
// a stub vendor on the fly; stubs carry sentinel contact fields and are never
// approved until the approval workflow completes them.
type Vendor struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	ProjectID string `json:"project_id" gorm:"size:32;not null;index:idx_vendor_project_name"`
	Name      string `json:"name" gorm:"size:200;not null;index:idx_vendor_project_name"`

	ContactName  string `json:"contact_name" gorm:"size:100"`
	ContactPhone string `json:"contact_phone" gorm:"size:20"`
	ContactEmail string `json:"contact_email" gorm:"size:200"`
	UserID       *string `json:"user_id" gorm:"size:32"` // linked platform account, if any

	Approved    bool   `json:"approved" gorm:"default:false"`
	AutoCreated bool   `json:"auto_created" gorm:"default:false"`
	CreatedBy   string `json:"created_by" gorm:"size:32"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Vendor) TableName() string {
	return "qsm_vendors"
}

// Sentinel contact values stamped on auto-created vendor stubs.
const (
	StubContactName  = "TO BE UPDATED"
	StubContactPhone = "0000000000"
)
