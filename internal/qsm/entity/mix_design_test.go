package entity

import "testing"

func TestParseGradeStrength(t *testing.T) {
	tests := []struct {
		grade        string
		wantMPa      float64
		wantFreeFlow bool
		wantErr      bool
	}{
		{"M30", 30, false, false},
		{"M40FF", 40, true, false},
		{"m25", 25, false, false},
		{" M35 ", 35, false, false},
		{"M7.5", 7.5, false, false},
		{"C30", 0, false, true},
		{"M", 0, false, true},
		{"MFF", 0, false, true},
		{"M-10", 0, false, true},
		{"", 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.grade, func(t *testing.T) {
			mpa, ff, err := ParseGradeStrength(tt.grade)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGradeStrength(%q) error = %v, wantErr %v", tt.grade, err, tt.wantErr)
			}
			if mpa != tt.wantMPa || ff != tt.wantFreeFlow {
				t.Errorf("ParseGradeStrength(%q) = (%v, %v), want (%v, %v)",
					tt.grade, mpa, ff, tt.wantMPa, tt.wantFreeFlow)
			}
		})
	}
}

func TestPsiFromMPa(t *testing.T) {
	if got := PsiFromMPa(30); got != 4351 {
		t.Errorf("PsiFromMPa(30) = %v, want 4351", got)
	}
	if got := PsiFromMPa(40); got != 5802 {
		t.Errorf("PsiFromMPa(40) = %v, want 5802", got)
	}
}
