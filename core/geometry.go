package core

import "math"

// MetresPerDegree is the flat-earth conversion used for GPS deltas.
const MetresPerDegree = 111000.0

// LocalOffset converts a GPS fix to metres east and north of an origin fix
// using the flat-earth approximation of the feature pipeline.
func LocalOffset(originLat, originLon, lat, lon float64) (east, north float64) {
	return (lon - originLon) * MetresPerDegree, (lat - originLat) * MetresPerDegree
}

// OffsetToGPS is the inverse of LocalOffset.
func OffsetToGPS(originLat, originLon, east, north float64) (lat, lon float64) {
	return originLat + north/MetresPerDegree, originLon + east/MetresPerDegree
}

// Vec3 is a point or direction in a local Cartesian frame, metres.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale returns v * k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Lerp interpolates between v (t=0) and other (t=1).
func (v Vec3) Lerp(other Vec3, t float64) Vec3 {
	return v.Add(other.Sub(v).Scale(t))
}

// turnAngle returns the angle in radians between two direction vectors.
// A tiny epsilon keeps zero-length segments from producing NaN.
func turnAngle(a, b Vec3) float64 {
	cos := a.Dot(b) / (a.Norm()*b.Norm() + 1e-10)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos)
}

// linspace returns n evenly spaced points from a to b, both inclusive.
func linspace(a, b Vec3, n int) []Vec3 {
	if n < 2 {
		return []Vec3{a, b}
	}
	out := make([]Vec3, n)
	for i := 0; i < n; i++ {
		out[i] = a.Lerp(b, float64(i)/float64(n-1))
	}
	// Pin the endpoints exactly; Lerp can drift by an ulp.
	out[0], out[n-1] = a, b
	return out
}
