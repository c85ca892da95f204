package entity

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// MixDesign is the certified recipe for a concrete grade. Bulk batch entry
// creates stubs for unknown grades with the strength derived from the grade
// designation.
type MixDesign struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	ProjectID string `json:"project_id" gorm:"size:32;not null;index:idx_mix_project_grade"`
	VendorID  *string `json:"vendor_id" gorm:"size:32"`

	Grade                 string  `json:"grade" gorm:"size:20;not null;index:idx_mix_project_grade"` // M30, M40FF
	SpecifiedStrengthMPa  float64 `json:"specified_strength_mpa" gorm:"type:decimal(6,2);not null"`
	SpecifiedStrengthPsi  float64 `json:"specified_strength_psi" gorm:"type:decimal(8,2)"`
	IsFreeFlow            bool    `json:"is_free_flow" gorm:"default:false"`
	TargetSlumpMM         *float64 `json:"target_slump_mm" gorm:"type:decimal(6,1)"`

	Approved    bool   `json:"approved" gorm:"default:false"`
	AutoCreated bool   `json:"auto_created" gorm:"default:false"`
	CreatedBy   string `json:"created_by" gorm:"size:32"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (MixDesign) TableName() string {
	return "qsm_mix_designs"
}

const mpaToPsi = 145.038

// ParseGradeStrength derives the characteristic strength in MPa from a grade
// designation like "M30" or "M40FF". The FF suffix marks free-flow mixes.
func ParseGradeStrength(grade string) (mpa float64, freeFlow bool, err error) {
	g := strings.ToUpper(strings.TrimSpace(grade))
	if !strings.HasPrefix(g, "M") {
		return 0, false, fmt.Errorf("unrecognized grade %q", grade)
	}
	g = strings.TrimPrefix(g, "M")
	if strings.HasSuffix(g, "FF") {
		freeFlow = true
		g = strings.TrimSuffix(g, "FF")
	}
	n, err := strconv.ParseFloat(g, 64)
	if err != nil || n <= 0 {
		return 0, false, fmt.Errorf("unrecognized grade %q", grade)
	}
	return n, freeFlow, nil
}

// PsiFromMPa converts MPa to psi, rounded to the nearest whole psi.
func PsiFromMPa(mpa float64) float64 {
	return math.Round(mpa * mpaToPsi)
}
