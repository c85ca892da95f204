package entity

import (
	"time"

	"gorm.io/gorm"
)

// NonConformance is a tracked quality defect assigned to a contractor with a
// resolution lifecycle and severity-weighted scoring.
type NonConformance struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	ProjectID string `json:"project_id" gorm:"size:32;not null;index"`
	NCNumber  string `json:"nc_number" gorm:"size:40;uniqueIndex;not null"` // NC-{project}-{year}-{seq}

	Title       string `json:"title" gorm:"size:300;not null"`
	Description string `json:"description" gorm:"type:text"`

	Severity      string  `json:"severity" gorm:"size:20;not null"` // HIGH/MODERATE/LOW
	SeverityScore float64 `json:"severity_score" gorm:"type:decimal(3,2);not null"`

	Tags      StringList `json:"tags" gorm:"type:jsonb"`
	PhotoKeys StringList `json:"photo_keys" gorm:"type:jsonb"`
	Location  Location   `json:"location" gorm:"embedded;embeddedPrefix:loc_"`

	RaisedBy          string  `json:"raised_by" gorm:"size:32;not null"`
	RaisedAt          time.Time `json:"raised_at" gorm:"not null"`
	ContractorID      string  `json:"contractor_id" gorm:"size:32;not null;index"`
	OversightEngineer *string `json:"oversight_engineer" gorm:"size:32"`

	Status       string    `json:"status" gorm:"size:20;default:raised;index"`
	DeadlineDate time.Time `json:"deadline_date"`

	ContractorResponse   string     `json:"contractor_response" gorm:"type:text"`
	ProposedDeadline     *time.Time `json:"proposed_deadline"`
	ResolutionPhotoKeys  StringList `json:"resolution_photo_keys" gorm:"type:jsonb"`
	VerificationNotes    string     `json:"verification_notes" gorm:"type:text"`
	RejectionReason      string     `json:"rejection_reason" gorm:"type:text"`
	ClosedAt             *time.Time `json:"closed_at"`
	ActualResolutionDays *int       `json:"actual_resolution_days"`

	// Scoring period, stamped from raised_at and never recomputed.
	ScoreYear  int `json:"score_year" gorm:"index"`
	ScoreMonth int `json:"score_month" gorm:"index"`
	ScoreWeek  int `json:"score_week" gorm:"index"`

	SourceCubeTestID *string `json:"source_cube_test_id" gorm:"size:32"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	TransferHistory []NCTransfer `json:"transfer_history,omitempty" gorm:"foreignKey:NCID"`
}

func (NonConformance) TableName() string {
	return "qsm_non_conformances"
}

// NCTransfer is one append-only reassignment record.
type NCTransfer struct {
	ID   string `json:"id" gorm:"primaryKey;size:32"`
	NCID string `json:"nc_id" gorm:"size:32;not null;index"`

	FromContractorID string    `json:"from_contractor_id" gorm:"size:32;not null"`
	ToContractorID   string    `json:"to_contractor_id" gorm:"size:32;not null"`
	TransferredBy    string    `json:"transferred_by" gorm:"size:32;not null"`
	TransferredAt    time.Time `json:"transferred_at" gorm:"not null"`
	Reason           string    `json:"reason" gorm:"type:text"`
}

func (NCTransfer) TableName() string {
	return "qsm_nc_transfers"
}

// NC status
const (
	NCStatusRaised       = "raised"
	NCStatusAcknowledged = "acknowledged"
	NCStatusInProgress   = "in_progress"
	NCStatusResolved     = "resolved"
	NCStatusVerified     = "verified"
	NCStatusClosed       = "closed"
	NCStatusRejected     = "rejected"
	NCStatusTransferred  = "transferred"
)

// NC severity
const (
	SeverityHigh     = "HIGH"
	SeverityModerate = "MODERATE"
	SeverityLow      = "LOW"
)

var severityWeights = map[string]float64{
	SeverityHigh:     1.0,
	SeverityModerate: 0.5,
	SeverityLow:      0.25,
}

// SeverityWeight returns the frozen score weight for a severity, or 0 for an
// unknown severity.
func SeverityWeight(severity string) float64 {
	return severityWeights[severity]
}

// ValidSeverity reports whether severity is one of HIGH/MODERATE/LOW.
func ValidSeverity(severity string) bool {
	_, ok := severityWeights[severity]
	return ok
}

// TerminalStatus reports whether no further transition is allowed.
func (n *NonConformance) TerminalStatus() bool {
	return n.Status == NCStatusClosed || n.Status == NCStatusRejected
}

// StampScorePeriod fixes the monthly and ISO-weekly scoring period from
// raised_at. Transfers never restamp it.
func (n *NonConformance) StampScorePeriod() {
	n.ScoreYear = n.RaisedAt.Year()
	n.ScoreMonth = int(n.RaisedAt.Month())
	_, n.ScoreWeek = n.RaisedAt.ISOWeek()
}

// ScoreGrade maps a 0-10 contractor score to a performance letter.
func ScoreGrade(score float64) string {
	switch {
	case score >= 9:
		return "A"
	case score >= 7:
		return "B"
	case score >= 5:
		return "C"
	case score >= 3:
		return "D"
	default:
		return "F"
	}
}

// ContractorScore computes the per-period score over 10: the closed share of
// severity points scaled to 10. No points at all is a clean 10.
func ContractorScore(closedPoints, totalPoints float64) float64 {
	if totalPoints <= 0 {
		return 10.0
	}
	return closedPoints / totalPoints * 10
}
