package entity

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// VehicleEntry is the gate log record written by the watchman. RMC entries
// are later consumed by the batch materializer; exit and time-warning fields
// are maintained by their own workflows.
type VehicleEntry struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	ProjectID string `json:"project_id" gorm:"size:32;not null;index"`

	VehicleNumber string `json:"vehicle_number" gorm:"size:20;not null;index"`
	MaterialType  string `json:"material_type" gorm:"size:50;not null"`
	VendorName    string `json:"vendor_name" gorm:"size:200"`
	DriverName    string `json:"driver_name" gorm:"size:100"`
	ChallanNumber string `json:"challan_number" gorm:"size:50"`

	EntryTime time.Time  `json:"entry_time" gorm:"not null;index"`
	ExitTime  *time.Time `json:"exit_time"`
	Status    string     `json:"status" gorm:"size:20;default:on_site"`

	AllowedTimeHours  float64    `json:"allowed_time_hours" gorm:"type:decimal(4,1);default:3.0"`
	ExceededTimeLimit bool       `json:"exceeded_time_limit" gorm:"default:false"`
	TimeWarningSent   bool       `json:"time_warning_sent" gorm:"default:false"`
	TimeWarningSentAt *time.Time `json:"time_warning_sent_at"`

	IsLinkedToBatch bool    `json:"is_linked_to_batch" gorm:"default:false"`
	LinkedBatchID   *string `json:"linked_batch_id" gorm:"size:32;uniqueIndex"`

	PhotoKeys StringList `json:"photo_keys" gorm:"type:jsonb"`

	CreatedBy string         `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (VehicleEntry) TableName() string {
	return "qsm_vehicle_entries"
}

// Vehicle status
const (
	VehicleStatusOnSite = "on_site"
	VehicleStatusExited = "exited"
)

// Material types seen at the gate. Free text is accepted; only the RMC
// variants participate in batching and time warnings.
const (
	MaterialConcrete = "Concrete"
	MaterialRMC      = "RMC"
	MaterialReadyMix = "Ready Mix Concrete"
	MaterialSteel    = "Steel"
	MaterialCement   = "Cement"
	MaterialSand     = "Sand"
)

var rmcMaterials = map[string]bool{
	MaterialConcrete: true,
	MaterialRMC:      true,
	MaterialReadyMix: true,
}

// IsRMCMaterial reports whether a material type is ready-mix concrete.
// Steel, cement, sand and everything else are excluded: only RMC degrades
// on the hour scale.
func IsRMCMaterial(materialType string) bool {
	return rmcMaterials[strings.TrimSpace(materialType)]
}

// RMCMaterialTypes returns the material type strings treated as RMC.
func RMCMaterialTypes() []string {
	return []string{MaterialConcrete, MaterialRMC, MaterialReadyMix}
}

// NormalizeVehicleNumber trims and uppercases a plate number.
func NormalizeVehicleNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}
