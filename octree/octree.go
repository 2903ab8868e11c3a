// Package octree implements the spatial index used for every radius
// neighborhood query in this module: proximity clustering, normal-mode
// clustering and per-point normal estimation all go through here.
//
// An Octree is built once over a stable external point slice and is
// read-only afterwards; it stores indices into that slice rather than
// copies of the points, so callers must not let the backing slice go away
// or be reordered while an Octree built over it is still in use.
package octree

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/ilMartoo/lidar-anomaly-detector/box"
	"github.com/ilMartoo/lidar-anomaly-detector/geom"
)

// Kernel selects the neighborhood shape used by SearchNeighbors.
type Kernel int

const (
	// Sphere accepts points within Euclidean distance <= radius.
	Sphere Kernel = iota
	// Cube accepts points within radius on every axis independently.
	Cube
)

// ErrIndexEmpty is returned by SearchNeighbors when queried with a
// non-positive radius.
var ErrIndexEmpty = errors.New("octree: search radius must be positive")

const (
	// DefaultMaxLeafPoints is the typical leaf capacity before a node
	// subdivides.
	DefaultMaxLeafPoints = 32
	// DefaultMinLeafExtent is the typical minimum node extent, in the same
	// units as the input points (typically mm), below which a node never
	// subdivides regardless of point count.
	DefaultMinLeafExtent = 1.0
)

// node is a single octree node: either an internal node with up to 8
// children, or a leaf holding indices into the tree's backing point slice.
type node struct {
	box      box.Box
	indices  []int
	children [8]*node
}

func (n *node) isLeaf() bool {
	return n.children == [8]*node{}
}

// Octree is a read-only spatial index over an external, stable slice of
// points.
type Octree struct {
	logger        golog.Logger
	points        []geom.Point
	root          *node
	maxLeafPoints int
	minLeafExtent float64
}

// Option configures Build.
type Option func(*buildConfig)

type buildConfig struct {
	logger        golog.Logger
	maxLeafPoints int
	minLeafExtent float64
}

// WithMaxLeafPoints overrides DefaultMaxLeafPoints.
func WithMaxLeafPoints(n int) Option {
	return func(c *buildConfig) { c.maxLeafPoints = n }
}

// WithMinLeafExtent overrides DefaultMinLeafExtent.
func WithMinLeafExtent(extent float64) Option {
	return func(c *buildConfig) { c.minLeafExtent = extent }
}

// WithLogger attaches a logger; the default is golog.NewDevelopmentLogger("octree").
func WithLogger(logger golog.Logger) Option {
	return func(c *buildConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Build constructs an Octree covering the axis-aligned bounding box of
// points. Empty input is permitted and yields a valid, empty index.
func Build(points []geom.Point, opts ...Option) (*Octree, error) {
	cfg := buildConfig{
		logger:        golog.NewDevelopmentLogger("octree"),
		maxLeafPoints: DefaultMaxLeafPoints,
		minLeafExtent: DefaultMinLeafExtent,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	o := &Octree{
		logger:        cfg.logger,
		points:        points,
		maxLeafPoints: cfg.maxLeafPoints,
		minLeafExtent: cfg.minLeafExtent,
	}
	if len(points) == 0 {
		o.logger.Debug("building octree over empty point set")
		return o, nil
	}

	indices := make([]int, len(points))
	for i := range indices {
		indices[i] = i
	}
	bounds := box.FromPoints(points)
	o.root = buildNode(points, indices, bounds, cfg.maxLeafPoints, cfg.minLeafExtent)
	return o, nil
}

func buildNode(points []geom.Point, indices []int, bounds box.Box, maxLeaf int, minExtent float64) *node {
	n := &node{box: bounds}
	if len(indices) <= maxLeaf || bounds.MaxExtent() <= minExtent {
		n.indices = indices
		return n
	}

	mid := bounds.Center()
	var buckets [8][]int
	for _, idx := range indices {
		buckets[octantOf(points[idx], mid)] = append(buckets[octantOf(points[idx], mid)], idx)
	}

	nonEmpty := 0
	for _, b := range buckets {
		if len(b) > 0 {
			nonEmpty++
		}
	}
	// All points landed in the same octant (e.g. coincident points below the
	// extent threshold's resolution): subdividing further would not
	// separate anything, so stop here rather than recursing forever.
	if nonEmpty <= 1 {
		n.indices = indices
		return n
	}

	for oct, idxs := range buckets {
		if len(idxs) == 0 {
			continue
		}
		childBounds := octantBounds(bounds, mid, oct)
		n.children[oct] = buildNode(points, idxs, childBounds, maxLeaf, minExtent)
	}
	return n
}

// octantOf returns the 0-7 octant index of p relative to mid. Ties (p's
// coordinate equal to mid on some axis) resolve to the upper half on that
// axis, keeping the lower half's interval half-open as [min, mid).
func octantOf(p, mid geom.Point) int {
	oct := 0
	if p.X >= mid.X {
		oct |= 1
	}
	if p.Y >= mid.Y {
		oct |= 2
	}
	if p.Z >= mid.Z {
		oct |= 4
	}
	return oct
}

func octantBounds(parent box.Box, mid geom.Point, oct int) box.Box {
	min, max := parent.Min, parent.Max
	if oct&1 == 0 {
		max.X = mid.X
	} else {
		min.X = mid.X
	}
	if oct&2 == 0 {
		max.Y = mid.Y
	} else {
		min.Y = mid.Y
	}
	if oct&4 == 0 {
		max.Z = mid.Z
	} else {
		min.Z = mid.Z
	}
	return box.Box{Min: min, Max: max, Delta: max.Sub(min)}
}

// Size returns the number of points the index was built over.
func (o *Octree) Size() int {
	return len(o.points)
}

// SearchNeighbors returns the indices (into the slice passed to Build) of
// every point within the given kernel of query. Order is unspecified but
// every matching index appears exactly once. A tree built over zero points,
// or a query that misses the root box entirely, returns an empty result
// with no error.
func (o *Octree) SearchNeighbors(query geom.Point, radius float64, kernel Kernel) ([]int, error) {
	if radius <= 0 {
		return nil, errors.Wrapf(ErrIndexEmpty, "radius %.6f", radius)
	}
	if o.root == nil {
		return nil, nil
	}
	var out []int
	searchNode(o.root, o.points, query, radius, kernel, &out)
	return out, nil
}

func searchNode(n *node, points []geom.Point, query geom.Point, radius float64, kernel Kernel, out *[]int) {
	if !boxIntersectsKernel(n.box, query, radius, kernel) {
		return
	}
	if n.isLeaf() {
		for _, idx := range n.indices {
			if kernelContains(points[idx], query, radius, kernel) {
				*out = append(*out, idx)
			}
		}
		return
	}
	for _, c := range n.children {
		if c != nil {
			searchNode(c, points, query, radius, kernel, out)
		}
	}
}

// boxIntersectsKernel is the pruning test: it returns false only when no
// point inside b could possibly satisfy the kernel predicate centered at
// query, so it must never produce a false negative.
func boxIntersectsKernel(b box.Box, query geom.Point, radius float64, kernel Kernel) bool {
	switch kernel {
	case Cube:
		return query.X+radius >= b.Min.X && query.X-radius <= b.Max.X &&
			query.Y+radius >= b.Min.Y && query.Y-radius <= b.Max.Y &&
			query.Z+radius >= b.Min.Z && query.Z-radius <= b.Max.Z
	default:
		closest := closestPointInBox(b, query)
		return closest.Distance(query) <= radius
	}
}

func closestPointInBox(b box.Box, q geom.Point) geom.Point {
	return geom.New(
		clamp(q.X, b.Min.X, b.Max.X),
		clamp(q.Y, b.Min.Y, b.Max.Y),
		clamp(q.Z, b.Min.Z, b.Max.Z),
	)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func kernelContains(p, query geom.Point, radius float64, kernel Kernel) bool {
	switch kernel {
	case Cube:
		return math.Abs(p.X-query.X) <= radius &&
			math.Abs(p.Y-query.Y) <= radius &&
			math.Abs(p.Z-query.Z) <= radius
	default:
		return p.Distance(query) <= radius
	}
}
