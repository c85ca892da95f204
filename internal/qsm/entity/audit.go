package entity

import "time"

// AuditEntry is one immutable history record for a domain entity. Entries are
// written in the same transaction as the domain change and never updated or
// deleted.
type AuditEntry struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	ProjectID string `json:"project_id" gorm:"size:32;index"`

	EntityType string `json:"entity_type" gorm:"size:50;not null;index:idx_audit_entity"`
	EntityID   string `json:"entity_id" gorm:"size:32;not null;index:idx_audit_entity"`

	Action        string `json:"action" gorm:"size:50;not null"`
	PreviousState string `json:"previous_state" gorm:"size:30"`
	NewState      string `json:"new_state" gorm:"size:30"`
	Detail        JSONB  `json:"detail" gorm:"type:jsonb"`

	ActorUserID string    `json:"actor_user_id" gorm:"size:32"`
	CreatedAt   time.Time `json:"created_at"`
}

func (AuditEntry) TableName() string {
	return "qsm_audit_entries"
}

// Audited entity types.
const (
	AuditEntityBatch    = "batch"
	AuditEntityCubeTest = "cube_test"
	AuditEntityNC       = "nc"
	AuditEntityPour     = "pour"
	AuditEntityVehicle  = "vehicle"
	AuditEntityPermit   = "permit"
)
