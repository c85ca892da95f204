package entity

import (
	"time"

	"gorm.io/gorm"
)

// CubeResult holds the measurements of one cube specimen. Dimensions are in
// mm (nominal 150), weight in kg, failure load in kN, strength in MPa.
type CubeResult struct {
	WeightKg    *float64 `json:"weight_kg" gorm:"type:decimal(6,3)"`
	LengthMM    *float64 `json:"length_mm" gorm:"type:decimal(6,1)"`
	WidthMM     *float64 `json:"width_mm" gorm:"type:decimal(6,1)"`
	HeightMM    *float64 `json:"height_mm" gorm:"type:decimal(6,1)"`
	LoadKN      *float64 `json:"load_kn" gorm:"type:decimal(8,2)"`
	StrengthMPa *float64 `json:"strength_mpa" gorm:"type:decimal(6,2)"`
	FailureMode string   `json:"failure_mode" gorm:"size:50"`
}

// Recorded reports whether this cube has a computed strength.
func (c CubeResult) Recorded() bool {
	return c.StrengthMPa != nil
}

// CubeTest is a set of 3 cube specimens cast from one batch/pour and crushed
// at one test age.
type CubeTest struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	ProjectID string `json:"project_id" gorm:"size:32;not null;index"`

	BatchID        *string `json:"batch_id" gorm:"size:32;index"`
	PourActivityID *string `json:"pour_activity_id" gorm:"size:32;index"`

	SetNumber   int       `json:"set_number" gorm:"default:1"`
	TestAgeDays int       `json:"test_age_days" gorm:"not null"`
	CastingDate time.Time `json:"casting_date" gorm:"not null"`
	TestingDate *time.Time `json:"testing_date"`

	RequiredStrengthMPa float64 `json:"required_strength_mpa" gorm:"type:decimal(6,2);not null"`

	Cube1 CubeResult `json:"cube_1" gorm:"embedded;embeddedPrefix:cube1_"`
	Cube2 CubeResult `json:"cube_2" gorm:"embedded;embeddedPrefix:cube2_"`
	Cube3 CubeResult `json:"cube_3" gorm:"embedded;embeddedPrefix:cube3_"`

	AverageStrengthMPa   *float64 `json:"average_strength_mpa" gorm:"type:decimal(6,2)"`
	StrengthRatioPercent *float64 `json:"strength_ratio_percent" gorm:"type:decimal(6,2)"`
	PassFailStatus       string   `json:"pass_fail_status" gorm:"size:20;default:planned"`

	NCRGenerated bool    `json:"ncr_generated" gorm:"default:false"`
	NCNumber     *string `json:"nc_number" gorm:"size:40"`

	VerifiedBy   *string    `json:"verified_by" gorm:"size:32"`
	VerifiedAt   *time.Time `json:"verified_at"`
	SignatureKey *string    `json:"signature_key" gorm:"size:100"` // blob store key

	TestedBy  *string        `json:"tested_by" gorm:"size:32"`
	CreatedBy string         `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (CubeTest) TableName() string {
	return "qsm_cube_tests"
}

// Pass/fail status
const (
	CubeTestStatusPlanned   = "planned"
	CubeTestStatusPending   = "pending"
	CubeTestStatusPass      = "pass"
	CubeTestStatusFail      = "fail"
	CubeTestStatusCancelled = "cancelled"
)

// Minimum individual cube strength as a fraction of required, per IS 516.
const MinIndividualRatio = 0.75

// CubeStrengthMPa computes compressive strength from failure load and the
// loaded cross-section. Load in kN, dimensions in mm.
//
//	σ = load·1000 / (L·W)
func CubeStrengthMPa(loadKN, lengthMM, widthMM float64) float64 {
	area := lengthMM * widthMM
	if area <= 0 {
		return 0
	}
	return loadKN * 1000 / area
}

// EvaluateIS516 applies the IS 516 acceptance rule: pass iff the average of
// recorded strengths meets the required strength AND every individual cube
// is at least 0.75·required. The 0.75 boundary is inclusive.
func EvaluateIS516(strengths []float64, requiredMPa float64) (avg float64, pass bool) {
	if len(strengths) == 0 {
		return 0, false
	}
	sum := 0.0
	minimum := strengths[0]
	for _, s := range strengths {
		sum += s
		if s < minimum {
			minimum = s
		}
	}
	avg = sum / float64(len(strengths))
	pass = avg >= requiredMPa && minimum >= MinIndividualRatio*requiredMPa
	return avg, pass
}

// RecordedStrengths returns the non-nil cube strengths in cube order.
func (t *CubeTest) RecordedStrengths() []float64 {
	var out []float64
	for _, c := range []CubeResult{t.Cube1, t.Cube2, t.Cube3} {
		if c.StrengthMPa != nil {
			out = append(out, *c.StrengthMPa)
		}
	}
	return out
}

// Terminal reports whether the test has a final pass/fail result.
func (t *CubeTest) Terminal() bool {
	return t.PassFailStatus == CubeTestStatusPass || t.PassFailStatus == CubeTestStatusFail
}
