package octree

import (
	"math/rand"
	"sort"
	"testing"

	"go.viam.com/test"

	"github.com/ilMartoo/lidar-anomaly-detector/geom"
)

func randomPoints(rng *rand.Rand, n int, extent float64) []geom.Point {
	pts := make([]geom.Point, n)
	for i := range pts {
		pts[i] = geom.New(
			rng.Float64()*extent-extent/2,
			rng.Float64()*extent-extent/2,
			rng.Float64()*extent-extent/2,
		)
	}
	return pts
}

func bruteForce(points []geom.Point, query geom.Point, radius float64, kernel Kernel) []int {
	var out []int
	for i, p := range points {
		if kernelContains(p, query, radius, kernel) {
			out = append(out, i)
		}
	}
	return out
}

func sortedInts(xs []int) []int {
	cp := append([]int(nil), xs...)
	sort.Ints(cp)
	return cp
}

// TestOctreeCompleteness checks that SearchNeighbors(q, r, Sphere) equals
// the brute-force distance filter exactly, for arbitrary point sets and
// queries.
func TestOctreeCompleteness(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 30; trial++ {
		n := 1 + rng.Intn(300)
		points := randomPoints(rng, n, 1000)
		tree, err := Build(points, WithMaxLeafPoints(8), WithMinLeafExtent(0.5))
		test.That(t, err, test.ShouldBeNil)

		for q := 0; q < 5; q++ {
			query := geom.New(rng.Float64()*1200-600, rng.Float64()*1200-600, rng.Float64()*1200-600)
			radius := 5 + rng.Float64()*200
			for _, kernel := range []Kernel{Sphere, Cube} {
				got, err := tree.SearchNeighbors(query, radius, kernel)
				test.That(t, err, test.ShouldBeNil)
				want := bruteForce(points, query, radius, kernel)
				test.That(t, sortedInts(got), test.ShouldResemble, sortedInts(want))
			}
		}
	}
}

func TestOctreeEmptyInput(t *testing.T) {
	tree, err := Build(nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tree.Size(), test.ShouldEqual, 0)

	got, err := tree.SearchNeighbors(geom.New(0, 0, 0), 10, Sphere)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldBeEmpty)
}

func TestOctreeNonPositiveRadiusFails(t *testing.T) {
	tree, err := Build([]geom.Point{geom.New(0, 0, 0)})
	test.That(t, err, test.ShouldBeNil)

	_, err = tree.SearchNeighbors(geom.New(0, 0, 0), 0, Sphere)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = tree.SearchNeighbors(geom.New(0, 0, 0), -1, Sphere)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOctreeQueryOutsideRootClips(t *testing.T) {
	points := []geom.Point{geom.New(0, 0, 0), geom.New(1, 1, 1)}
	tree, err := Build(points)
	test.That(t, err, test.ShouldBeNil)

	got, err := tree.SearchNeighbors(geom.New(10000, 10000, 10000), 1, Sphere)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldBeEmpty)
}

func TestOctreeExactPointMatch(t *testing.T) {
	points := []geom.Point{geom.New(5, 5, 5)}
	tree, err := Build(points)
	test.That(t, err, test.ShouldBeNil)
	got, err := tree.SearchNeighbors(geom.New(5, 5, 5), 0.001, Sphere)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, []int{0})
}

func TestOctreeCoincidentPointsDoNotInfiniteLoop(t *testing.T) {
	points := make([]geom.Point, 100)
	for i := range points {
		points[i] = geom.New(1, 1, 1)
	}
	tree, err := Build(points, WithMaxLeafPoints(4))
	test.That(t, err, test.ShouldBeNil)
	got, err := tree.SearchNeighbors(geom.New(1, 1, 1), 0.1, Sphere)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(got), test.ShouldEqual, 100)
}

func TestCubeKernelUsesPerAxisDistance(t *testing.T) {
	// A point offset diagonally can be within the cube kernel but outside
	// the sphere kernel of the same radius.
	points := []geom.Point{geom.New(3, 3, 0)}
	tree, err := Build(points)
	test.That(t, err, test.ShouldBeNil)

	sphereHits, err := tree.SearchNeighbors(geom.New(0, 0, 0), 4, Sphere)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sphereHits, test.ShouldBeEmpty)

	cubeHits, err := tree.SearchNeighbors(geom.New(0, 0, 0), 4, Cube)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cubeHits, test.ShouldResemble, []int{0})
}
