package entity

import "testing"

func TestIsRMCMaterial(t *testing.T) {
	for _, m := range []string{MaterialConcrete, MaterialRMC, MaterialReadyMix, " RMC "} {
		if !IsRMCMaterial(m) {
			t.Errorf("IsRMCMaterial(%q) = false", m)
		}
	}
	for _, m := range []string{MaterialSteel, MaterialCement, MaterialSand, "rmc", ""} {
		if IsRMCMaterial(m) {
			t.Errorf("IsRMCMaterial(%q) = true", m)
		}
	}
}

func TestNormalizeVehicleNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"mh12ab1234", "MH12AB1234"},
		{"  ka 01 x 9999 ", "KA 01 X 9999"},
		{"DL8CAF5031", "DL8CAF5031"},
	}
	for _, tt := range tests {
		if got := NormalizeVehicleNumber(tt.in); got != tt.want {
			t.Errorf("NormalizeVehicleNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTestAgesFor(t *testing.T) {
	normal := TestAgesFor(ConcreteTypeNormal)
	if len(normal) != 4 || normal[0] != 3 || normal[3] != 56 {
		t.Errorf("TestAgesFor(Normal) = %v, want [3 7 28 56]", normal)
	}
	pt := TestAgesFor(ConcreteTypePT)
	if len(pt) != 4 || pt[0] != 5 || pt[3] != 56 {
		t.Errorf("TestAgesFor(PT) = %v, want [5 7 28 56]", pt)
	}
}
