package models

import "testing"

func TestRoleAtLeast(t *testing.T) {
	tests := []struct {
		role, required string
		want           bool
	}{
		{RoleAdmin, RoleViewer, true},
		{RoleAdmin, RoleAdmin, true},
		{RoleOperator, RoleViewer, true},
		{RoleOperator, RoleAdmin, false},
		{RoleViewer, RoleOperator, false},
		{"root", RoleViewer, false},
		{RoleAdmin, "root", false},
	}
	for _, tt := range tests {
		if got := RoleAtLeast(tt.role, tt.required); got != tt.want {
			t.Errorf("RoleAtLeast(%q, %q) = %v, want %v", tt.role, tt.required, got, tt.want)
		}
	}
}

func TestSpeedKmh(t *testing.T) {
	if _, ok := (GPSFix{}).SpeedKmh(); ok {
		t.Fatal("expected no speed for nil reading")
	}
	speed := 10.0
	kmh, ok := GPSFix{Speed: &speed}.SpeedKmh()
	if !ok || kmh != 36 {
		t.Fatalf("expected 36 km/h, got %v (%v)", kmh, ok)
	}
}
