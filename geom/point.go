// Package geom provides the 3-D point and vector primitives shared by every
// other package in this module: coordinate arithmetic, rotation and the
// angular distance used throughout clustering and face matching.
package geom

import (
	"math"

	"github.com/golang/geo/r3"
)

// ClusterID sentinel values. Non-negative values are assigned cluster ids.
const (
	Unclassified = -1
	NoiseLabel   = -4
)

// epsilon is the coordinate-wise tolerance used by Point equality.
const epsilon = 1e-9

// Point is an immutable 3-D coordinate plus a mutable cluster label. It
// doubles as a 3-vector for geometric arithmetic: Vector, also used for
// normals, is an alias of the same representation.
type Point struct {
	X, Y, Z   float64
	ClusterID int
}

// Vector is an alias for Point used where the value denotes a direction or
// displacement rather than a location. A zero vector means "no valid value"
// wherever a Normal is produced by estimation.
type Vector = Point

// New returns a Point with the unclassified cluster label.
func New(x, y, z float64) Point {
	return Point{X: x, Y: y, Z: z, ClusterID: Unclassified}
}

// NewVector returns a direction/displacement value. Its ClusterID is unused.
func NewVector(x, y, z float64) Vector {
	return Vector{X: x, Y: y, Z: z}
}

// FromR3 converts a github.com/golang/geo/r3.Vector into a Point. Every
// vector-arithmetic method below round-trips through R3/FromR3 rather than
// duplicating r3.Vector's own Add/Sub/Mul/Dot/Cross/Norm/Distance, so the
// ClusterID-carrying Point stays the type callers use while the actual
// arithmetic is r3's.
func FromR3(v r3.Vector) Point {
	return Point{X: v.X, Y: v.Y, Z: v.Z, ClusterID: Unclassified}
}

// R3 converts a Point into a github.com/golang/geo/r3.Vector, discarding the
// cluster label.
func (p Point) R3() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

// IsZero reports whether p is the zero vector, the sentinel for "no valid
// normal".
func (p Point) IsZero() bool {
	return p.X == 0 && p.Y == 0 && p.Z == 0
}

// Equal reports coordinate-wise equality within machine epsilon. The cluster
// label is not compared.
func (p Point) Equal(o Point) bool {
	return math.Abs(p.X-o.X) <= epsilon &&
		math.Abs(p.Y-o.Y) <= epsilon &&
		math.Abs(p.Z-o.Z) <= epsilon
}

// Add returns the coordinate-wise sum of p and o.
func (p Point) Add(o Point) Point {
	return FromR3(p.R3().Add(o.R3()))
}

// Sub returns the coordinate-wise difference p - o.
func (p Point) Sub(o Point) Point {
	return FromR3(p.R3().Sub(o.R3()))
}

// Scale returns p scaled by a scalar factor.
func (p Point) Scale(f float64) Point {
	return FromR3(p.R3().Mul(f))
}

// Distance returns the Euclidean distance between p and o.
func (p Point) Distance(o Point) float64 {
	return p.R3().Distance(o.R3())
}

// Norm returns the Euclidean norm (module) of p treated as a vector.
func (p Point) Norm() float64 {
	return p.R3().Norm()
}

// Dot returns the scalar (dot) product of p and o.
func (p Point) Dot(o Point) float64 {
	return p.R3().Dot(o.R3())
}

// Cross returns the vector (cross) product of p and o.
func (p Point) Cross(o Point) Vector {
	return FromR3(p.R3().Cross(o.R3()))
}

// Normalize returns p scaled to unit length. It returns the zero vector if p
// is already the zero vector.
func (p Point) Normalize() Vector {
	n := p.Norm()
	if n == 0 {
		return Vector{}
	}
	return p.Scale(1 / n)
}

// Angle returns the angular separation between p and o in radians, in
// [0, pi], via acos(dot/|p||o|). Callers comparing normals whose sign is
// ambiguous should use MinAngle instead.
func (p Point) Angle(o Point) float64 {
	denom := p.Norm() * o.Norm()
	if denom == 0 {
		return 0
	}
	cos := p.Dot(o) / denom
	// Clamp for float round-off just outside [-1, 1].
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos)
}

// MinAngle returns min(Angle(p, o), pi - Angle(p, o)), the angular distance
// that is insensitive to an arbitrary sign flip of either vector. Surface
// normals estimated by PCA have no consistent orientation, so every
// normal-vs-normal comparison in this module (clustering, face matching)
// goes through MinAngle rather than raw Angle.
func (p Point) MinAngle(o Point) float64 {
	a := p.Angle(o)
	if b := math.Pi - a; b < a {
		return b
	}
	return a
}

// Rotate applies a 3x3 rotation matrix (row-major) to p about the origin.
func (p Point) Rotate(r Rotation) Point {
	return Point{
		X: r[0][0]*p.X + r[0][1]*p.Y + r[0][2]*p.Z,
		Y: r[1][0]*p.X + r[1][1]*p.Y + r[1][2]*p.Z,
		Z: r[2][0]*p.X + r[2][1]*p.Y + r[2][2]*p.Z,
	}
}

// Mean returns the arithmetic mean of pts. It returns the zero Point for an
// empty slice.
func Mean(pts []Point) Point {
	if len(pts) == 0 {
		return Point{}
	}
	var sum Point
	for _, p := range pts {
		sum.X += p.X
		sum.Y += p.Y
		sum.Z += p.Z
	}
	n := float64(len(pts))
	return Point{X: sum.X / n, Y: sum.Y / n, Z: sum.Z / n, ClusterID: Unclassified}
}
