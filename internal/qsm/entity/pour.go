package entity

import (
	"time"

	"gorm.io/gorm"
)

// Location identifies the structural position of a pour or batch.
type Location struct {
	Building    string `json:"building" gorm:"size:100"`
	Floor       string `json:"floor" gorm:"size:50"`
	Zone        string `json:"zone" gorm:"size:50"`
	Grid        string `json:"grid" gorm:"size:50"`
	ElementType string `json:"element_type" gorm:"size:50"` // slab/column/beam/raft/wall
	ElementID   string `json:"element_id" gorm:"size:50"`
	Description string `json:"description" gorm:"size:500"`
}

// PourActivity is one physical pour of concrete at a known structural
// location, typically consuming several vehicle batches.
type PourActivity struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	ProjectID string `json:"project_id" gorm:"size:32;not null;index:idx_pour_project_code,unique"`
	PourCode  string `json:"pour_code" gorm:"size:32;not null;index:idx_pour_project_code,unique"` // POUR-2025-001

	PourDate     time.Time `json:"pour_date" gorm:"not null"`
	Location     Location  `json:"location" gorm:"embedded;embeddedPrefix:loc_"`
	ConcreteType string    `json:"concrete_type" gorm:"size:10;default:Normal"` // Normal/PT
	DesignGrade  string    `json:"design_grade" gorm:"size:20"`

	TotalQuantityPlanned  float64  `json:"total_quantity_planned" gorm:"type:decimal(10,2)"`
	TotalQuantityReceived *float64 `json:"total_quantity_received" gorm:"type:decimal(10,2)"`

	Status      string     `json:"status" gorm:"size:20;default:in_progress"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	CreatedBy string         `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Batches []Batch `json:"batches,omitempty" gorm:"foreignKey:PourActivityID"`
}

func (PourActivity) TableName() string {
	return "qsm_pour_activities"
}

// Pour status
const (
	PourStatusInProgress = "in_progress"
	PourStatusCompleted  = "completed"
	PourStatusCancelled  = "cancelled"
)

// Concrete types
const (
	ConcreteTypeNormal = "Normal"
	ConcreteTypePT     = "PT"
)

// TestAgesFor returns the scheduled cube test ages in days for a concrete
// type. Post-tensioned pours need an extra early 5-day test instead of the
// 3-day one.
func TestAgesFor(concreteType string) []int {
	if concreteType == ConcreteTypePT {
		return []int{5, 7, 28, 56}
	}
	return []int{3, 7, 28, 56}
}
