package box

import (
	"math/rand"
	"testing"

	"go.viam.com/test"

	"github.com/ilMartoo/lidar-anomaly-detector/geom"
)

func TestFromPointsBasic(t *testing.T) {
	pts := []geom.Point{
		geom.New(0, 0, 0),
		geom.New(10, 5, 2),
		geom.New(-3, 7, 1),
	}
	b := FromPoints(pts)
	test.That(t, b.Min, test.ShouldResemble, geom.New(-3, 0, 0))
	test.That(t, b.Max, test.ShouldResemble, geom.New(10, 7, 2))
	test.That(t, b.Delta, test.ShouldResemble, geom.New(13, 7, 2))
}

func TestFromPointsEmpty(t *testing.T) {
	test.That(t, FromPoints(nil), test.ShouldResemble, Empty)
}

func TestVolume(t *testing.T) {
	b := Box{Delta: geom.New(2, 3, 4)}
	test.That(t, b.Volume(), test.ShouldEqual, 24.0)
}

func TestOrderingIsTotalOnVolume(t *testing.T) {
	small := Box{Delta: geom.New(1, 1, 1)}
	large := Box{Delta: geom.New(2, 2, 2)}
	test.That(t, small.Less(large), test.ShouldBeTrue)
	test.That(t, large.Less(small), test.ShouldBeFalse)
}

// TestBBoxIdempotence checks that BBox(BBox(P).corners()).delta ==
// BBox(P).delta, across randomly sampled point sets.
func TestBBoxIdempotence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		n := 5 + rng.Intn(50)
		pts := make([]geom.Point, n)
		for i := range pts {
			pts[i] = geom.New(rng.Float64()*100-50, rng.Float64()*100-50, rng.Float64()*100-50)
		}
		b1 := FromPoints(pts)
		b2 := FromPoints(b1.Corners())
		test.That(t, b2.Delta.X, test.ShouldAlmostEqual, b1.Delta.X, 1e-9)
		test.That(t, b2.Delta.Y, test.ShouldAlmostEqual, b1.Delta.Y, 1e-9)
		test.That(t, b2.Delta.Z, test.ShouldAlmostEqual, b1.Delta.Z, 1e-9)
	}
}

func TestContainsHalfOpen(t *testing.T) {
	b := Box{Min: geom.New(0, 0, 0), Max: geom.New(10, 10, 10)}
	test.That(t, b.Contains(geom.New(0, 0, 0)), test.ShouldBeTrue)
	test.That(t, b.Contains(geom.New(10, 5, 5)), test.ShouldBeFalse)
	test.That(t, b.ContainsClosed(geom.New(10, 5, 5)), test.ShouldBeTrue)
}

func TestMaxExtent(t *testing.T) {
	b := Box{Delta: geom.New(1, 9, 3)}
	test.That(t, b.MaxExtent(), test.ShouldEqual, 9.0)
}
