// Package lidartest provides synthetic point-cloud and point-stream
// generators shared by this module's test suites, following the pattern of
// pointcloud/testutils.go: one place to build geometric fixtures (a cube's
// surface, a pair of skew planes) instead of duplicating sampling code in
// every _test.go file.
package lidartest

import (
	"math/rand"

	"github.com/ilMartoo/lidar-anomaly-detector/geom"
)

// CubeSurface uniformly samples n points from the surface of an axis-
// aligned cube of the given side length centered at center, roughly evenly
// split across its 6 faces.
func CubeSurface(rng *rand.Rand, n int, center geom.Point, side float64) []geom.Point {
	pts := make([]geom.Point, 0, n)
	half := side / 2
	for len(pts) < n {
		face := rng.Intn(6)
		a := rng.Float64()*side - half
		b := rng.Float64()*side - half
		var x, y, z float64
		switch face {
		case 0:
			x, y, z = half, a, b
		case 1:
			x, y, z = -half, a, b
		case 2:
			x, y, z = a, half, b
		case 3:
			x, y, z = a, -half, b
		case 4:
			x, y, z = a, b, half
		default:
			x, y, z = a, b, -half
		}
		pts = append(pts, geom.New(center.X+x, center.Y+y, center.Z+z))
	}
	return pts
}

// PlanePatch uniformly samples n points from a rectangular patch of a
// plane through origin, spanned by two axes perpendicular to normal.
func PlanePatch(rng *rand.Rand, n int, origin geom.Point, normal geom.Vector, halfExtent float64) []geom.Point {
	u, v := perpendicularBasis(normal)
	pts := make([]geom.Point, n)
	for i := range pts {
		a := rng.Float64()*2*halfExtent - halfExtent
		b := rng.Float64()*2*halfExtent - halfExtent
		offset := u.Scale(a).Add(v.Scale(b))
		pts[i] = origin.Add(offset)
	}
	return pts
}

func perpendicularBasis(n geom.Vector) (geom.Vector, geom.Vector) {
	u := n.Normalize()
	ref := geom.NewVector(1, 0, 0)
	if u.MinAngle(ref) < 1e-6 || u.MinAngle(ref) > 3.14159-1e-6 {
		ref = geom.NewVector(0, 1, 0)
	}
	a := u.Cross(ref).Normalize()
	b := u.Cross(a).Normalize()
	return a, b
}

// LidarStream turns positions into a LidarPoint stream with strictly
// increasing timestamps spaced dtNanos apart, starting at t0, all carrying
// the given reflectivity. Used to drive the characterizer state machine in
// tests without a real scanner.
func LidarStream(points []geom.Point, t0 geom.Timestamp, dtNanos int64, reflectivity float64) []geom.LidarPoint {
	out := make([]geom.LidarPoint, len(points))
	for i, p := range points {
		out[i] = geom.LidarPoint{
			Point:        p,
			Timestamp:    t0.Add(int64(i) * dtNanos),
			Reflectivity: reflectivity,
		}
	}
	return out
}
