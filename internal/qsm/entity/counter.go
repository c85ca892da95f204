package entity

// SequenceCounter backs the gap-free per-project document numbers (batch
// numbers, pour codes, NC numbers). The row is locked FOR UPDATE for the
// duration of the allocating transaction.
type SequenceCounter struct {
	ProjectID string `gorm:"primaryKey;size:32"`
	Kind      string `gorm:"primaryKey;size:20"` // batch/pour/nc
	Year      int    `gorm:"primaryKey"`
	Value     int64  `gorm:"not null;default:0"`
}

func (SequenceCounter) TableName() string {
	return "qsm_sequence_counters"
}

// Counter kinds
const (
	CounterBatch = "batch"
	CounterPour  = "pour"
	CounterNC    = "nc"
)
