package normal

import (
	"math"
	"math/rand"
	"testing"

	"go.viam.com/test"

	"github.com/ilMartoo/lidar-anomaly-detector/geom"
	"github.com/ilMartoo/lidar-anomaly-detector/octree"
)

func planePoints(rng *rand.Rand, n int, normalAxis int, extent float64) []geom.Point {
	pts := make([]geom.Point, n)
	for i := range pts {
		a := rng.Float64()*extent - extent/2
		b := rng.Float64()*extent - extent/2
		switch normalAxis {
		case 0:
			pts[i] = geom.New(0, a, b)
		case 1:
			pts[i] = geom.New(a, 0, b)
		default:
			pts[i] = geom.New(a, b, 0)
		}
	}
	return pts
}

func TestEstimateFlatPlaneNormalIsPerpendicular(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pts := planePoints(rng, 500, 2, 200)
	tree, err := octree.Build(pts, octree.WithMaxLeafPoints(16))
	test.That(t, err, test.ShouldBeNil)

	normals, err := Estimate(pts, tree, 20, nil)
	test.That(t, err, test.ShouldBeNil)

	for i, p := range pts {
		neighborCount, _ := tree.SearchNeighbors(p, 20, octree.Sphere)
		if len(neighborCount) < MinNeighbors {
			continue
		}
		n := normals[i]
		test.That(t, n.IsZero(), test.ShouldBeFalse)
		// Normal should be nearly parallel to Z (the plane's true normal),
		// allowing for sign ambiguity.
		angle := n.MinAngle(geom.NewVector(0, 0, 1))
		test.That(t, angle < 0.05 || math.Abs(angle-math.Pi) < 0.05, test.ShouldBeTrue)
	}
}

func TestEstimateSparsePointGetsZeroNormal(t *testing.T) {
	pts := []geom.Point{
		geom.New(0, 0, 0),
		geom.New(1000, 1000, 1000),
	}
	tree, err := octree.Build(pts)
	test.That(t, err, test.ShouldBeNil)

	normals, err := Estimate(pts, tree, 5, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, normals[0].IsZero(), test.ShouldBeTrue)
	test.That(t, normals[1].IsZero(), test.ShouldBeTrue)
}
