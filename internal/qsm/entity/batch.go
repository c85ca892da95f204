package entity

import (
	"time"

	"gorm.io/gorm"
)

// Batch is one truck-load of concrete accepted at site. A batch may exist
// without a pour (standalone delivery) and is linked back to exactly one
// vehicle entry.
type Batch struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	ProjectID string `json:"project_id" gorm:"size:32;not null;index:idx_batch_project_number,unique"`

	BatchNumber    string  `json:"batch_number" gorm:"size:32;not null;uniqueIndex;index:idx_batch_project_number,unique"` // BATCH-2025-0001
	PourActivityID *string `json:"pour_activity_id" gorm:"size:32;index"`
	MixDesignID    string  `json:"mix_design_id" gorm:"size:32;not null"`
	VendorID       string  `json:"vendor_id" gorm:"size:32;not null;index"`
	VehicleEntryID *string `json:"vehicle_entry_id" gorm:"size:32"`

	VehicleNumber string    `json:"vehicle_number" gorm:"size:20"`
	DeliveryTime  time.Time `json:"delivery_time"`

	QuantityOrdered  float64  `json:"quantity_ordered" gorm:"type:decimal(10,2)"`
	QuantityReceived float64  `json:"quantity_received" gorm:"type:decimal(10,2)"`
	SlumpMM          *float64 `json:"slump_mm" gorm:"type:decimal(6,1)"`
	TemperatureC     *float64 `json:"temperature_c" gorm:"type:decimal(4,1)"`
	Remarks          string   `json:"remarks" gorm:"type:text"`

	Location Location `json:"location" gorm:"embedded;embeddedPrefix:loc_"`

	VerificationStatus string     `json:"verification_status" gorm:"size:20;default:pending"`
	VerifiedBy         *string    `json:"verified_by" gorm:"size:32"`
	VerifiedAt         *time.Time `json:"verified_at"`
	RejectionReason    string     `json:"rejection_reason" gorm:"type:text"`

	CreatedBy string         `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Vendor    *Vendor    `json:"vendor,omitempty" gorm:"foreignKey:VendorID"`
	MixDesign *MixDesign `json:"mix_design,omitempty" gorm:"foreignKey:MixDesignID"`
}

func (Batch) TableName() string {
	return "qsm_batches"
}

// Verification status
const (
	BatchVerificationPending  = "pending"
	BatchVerificationApproved = "approved"
	BatchVerificationRejected = "rejected"
)
