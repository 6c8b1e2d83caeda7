package geo

import (
	"math"
	"testing"
)

func TestWithinBox(t *testing.T) {
	if !WithinBox(12.9716, 77.5946, 12.97161, 77.59461, DefaultToleranceDeg) {
		t.Fatal("coordinates 0.00001 deg apart should match the tolerance box")
	}
	if WithinBox(12.9716, 77.5946, 12.9720, 77.5946, DefaultToleranceDeg) {
		t.Fatal("coordinates 0.0004 deg apart should not match")
	}
}

func TestHaversineKm(t *testing.T) {
	// Bangalore city centre to airport, roughly 31-33 km.
	d := HaversineKm(12.9716, 77.5946, 13.1986, 77.7066)
	if d < 28 || d > 36 {
		t.Fatalf("HaversineKm = %v, want roughly 31-33", d)
	}
	if z := HaversineKm(12.9716, 77.5946, 12.9716, 77.5946); math.Abs(z) > 1e-9 {
		t.Fatalf("zero distance expected, got %v", z)
	}
}

func TestValidCoordinates(t *testing.T) {
	if !ValidCoordinates(12.9716, 77.5946) {
		t.Fatal("valid coordinates rejected")
	}
	if ValidCoordinates(0, 0) {
		t.Fatal("null island accepted")
	}
	if ValidCoordinates(91, 0) || ValidCoordinates(0, 181) {
		t.Fatal("out of range coordinates accepted")
	}
}
