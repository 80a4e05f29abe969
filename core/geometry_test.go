package core

import (
	"math"
	"testing"
)

func TestVec3Arithmetic(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 2}
	if got := a.Norm(); got != 3 {
		t.Fatalf("Norm() = %v, want 3", got)
	}
	if got := a.DistanceTo(Vec3{X: 1, Y: 2, Z: 5}); got != 3 {
		t.Fatalf("DistanceTo() = %v, want 3", got)
	}
	if got := a.Add(Vec3{X: 1}).Scale(2); got != (Vec3{X: 4, Y: 4, Z: 4}) {
		t.Fatalf("Add/Scale = %+v", got)
	}
	if got := a.Lerp(Vec3{X: 3, Y: 2, Z: 2}, 0.5); got != (Vec3{X: 2, Y: 2, Z: 2}) {
		t.Fatalf("Lerp = %+v", got)
	}
}

func TestTurnAngle(t *testing.T) {
	if got := turnAngle(Vec3{X: 1}, Vec3{X: 5}); got > 1e-4 {
		t.Fatalf("parallel turn = %v, want 0", got)
	}
	if got := turnAngle(Vec3{X: 1}, Vec3{Y: 1}); math.Abs(got-math.Pi/2) > 1e-6 {
		t.Fatalf("right-angle turn = %v, want pi/2", got)
	}
	if got := turnAngle(Vec3{}, Vec3{X: 1}); math.IsNaN(got) {
		t.Fatalf("zero-length segment produced NaN")
	}
}

func TestLinspaceInclusive(t *testing.T) {
	a, b := Vec3{}, Vec3{X: 10, Y: 5, Z: 1}
	pts := linspace(a, b, 11)
	if len(pts) != 11 {
		t.Fatalf("len = %d, want 11", len(pts))
	}
	if pts[0] != a || pts[10] != b {
		t.Fatalf("endpoints = %+v, %+v", pts[0], pts[10])
	}
	if math.Abs(pts[5].X-5) > 1e-9 {
		t.Fatalf("midpoint X = %v, want 5", pts[5].X)
	}
}

func TestLocalOffsetRoundTrip(t *testing.T) {
	east, north := LocalOffset(47.0, 8.0, 47.001, 8.002)
	if math.Abs(east-222) > 1e-6 || math.Abs(north-111) > 1e-6 {
		t.Fatalf("LocalOffset() = %v, %v, want 222, 111", east, north)
	}
	lat, lon := OffsetToGPS(47.0, 8.0, east, north)
	if math.Abs(lat-47.001) > 1e-12 || math.Abs(lon-8.002) > 1e-12 {
		t.Fatalf("OffsetToGPS() = %v, %v, want 47.001, 8.002", lat, lon)
	}
}
