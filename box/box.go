// Package box implements the axis-aligned bounding box used to describe an
// object's overall extent and the local-frame extent of each of its faces.
package box

import "github.com/ilMartoo/lidar-anomaly-detector/geom"

// Box is an axis-aligned bounding box: a min corner, a max corner and their
// difference. Ordering is total on volume, matching original_source's
// BBox::operator< family.
type Box struct {
	Min, Max, Delta geom.Point
}

// Empty is the zero-value Box (min == max == delta == origin). Callers must
// not treat it as "no points"; use FromPoints on an empty slice, which
// returns Empty, and check Size()/len at the call site instead.
var Empty = Box{}

// FromPoints computes the bounding box of pts. It returns the zero Box for
// an empty slice.
func FromPoints(pts []geom.Point) Box {
	if len(pts) == 0 {
		return Empty
	}
	min, max := pts[0], pts[0]
	for _, p := range pts[1:] {
		if p.X < min.X {
			min.X = p.X
		}
		if p.Y < min.Y {
			min.Y = p.Y
		}
		if p.Z < min.Z {
			min.Z = p.Z
		}
		if p.X > max.X {
			max.X = p.X
		}
		if p.Y > max.Y {
			max.Y = p.Y
		}
		if p.Z > max.Z {
			max.Z = p.Z
		}
	}
	return Box{Min: min, Max: max, Delta: max.Sub(min)}
}

// FromRotatedPoints applies rot to every point before accumulating min/max,
// used by the characterized-object builder to compute a face's bounding box
// in the frame whose +Z aligns with the face normal.
func FromRotatedPoints(pts []geom.Point, rot geom.Rotation) Box {
	if len(pts) == 0 {
		return Empty
	}
	rotated := make([]geom.Point, len(pts))
	for i, p := range pts {
		rotated[i] = p.Rotate(rot)
	}
	return FromPoints(rotated)
}

// Volume returns delta.x * delta.y * delta.z.
func (b Box) Volume() float64 {
	return b.Delta.X * b.Delta.Y * b.Delta.Z
}

// Corners returns the 8 vertices of the box.
func (b Box) Corners() []geom.Point {
	corners := make([]geom.Point, 0, 8)
	xs := [2]float64{b.Min.X, b.Max.X}
	ys := [2]float64{b.Min.Y, b.Max.Y}
	zs := [2]float64{b.Min.Z, b.Max.Z}
	for _, x := range xs {
		for _, y := range ys {
			for _, z := range zs {
				corners = append(corners, geom.New(x, y, z))
			}
		}
	}
	return corners
}

// Less reports whether b has a smaller volume than o.
func (b Box) Less(o Box) bool {
	return b.Volume() < o.Volume()
}

// Contains reports whether p lies within b using half-open intervals on the
// upper bound, i.e. [min, max). This is the convention the octree uses to
// assign octant membership without double-counting points on a boundary.
func (b Box) Contains(p geom.Point) bool {
	return p.X >= b.Min.X && p.X < b.Max.X &&
		p.Y >= b.Min.Y && p.Y < b.Max.Y &&
		p.Z >= b.Min.Z && p.Z < b.Max.Z
}

// ContainsClosed is like Contains but treats the upper bound as inclusive,
// so a point exactly on the outer max face is still considered inside.
func (b Box) ContainsClosed(p geom.Point) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// MaxExtent returns the largest of delta.x, delta.y, delta.z.
func (b Box) MaxExtent() float64 {
	m := b.Delta.X
	if b.Delta.Y > m {
		m = b.Delta.Y
	}
	if b.Delta.Z > m {
		m = b.Delta.Z
	}
	return m
}

// Center returns the midpoint between Min and Max.
func (b Box) Center() geom.Point {
	return b.Min.Add(b.Max).Scale(0.5)
}
