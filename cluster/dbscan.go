// Package cluster implements the two DBSCAN-family clustering modes this
// module needs: proximity clustering (isolate distinct objects) and
// normal-consistency clustering (segment one object into planar faces).
// Both mutate the ClusterID field of a shared point slice and must not be
// run concurrently over the same slice.
//
// The expansion order below mirrors original_source's DBScan.cc exactly:
// the seed's own eps-neighborhood decides whether it is noise using only
// the count of not-yet-assigned candidates, while later core-point checks
// during frontier expansion use the raw (unfiltered) neighbor count. This
// asymmetry is intentional -- DESIGN.md records the decision to preserve
// it rather than "fix" it into textbook DBSCAN.
package cluster

import (
	"github.com/ilMartoo/lidar-anomaly-detector/geom"
	"github.com/ilMartoo/lidar-anomaly-detector/octree"
)

// Proximity partitions points by spatial proximity. idx must be an octree
// built over points. Every point's ClusterID is reset to
// Unclassified before the run, then set to a non-negative cluster id or to
// geom.NoiseLabel. The returned clusters list each contain point indices
// into points; every index appears in at most one cluster.
func Proximity(points []geom.Point, idx *octree.Octree, eps float64, minPts int) ([][]int, error) {
	resetLabels(points)

	var clusters [][]int
	clusterID := 0
	for i := range points {
		if points[i].ClusterID != geom.Unclassified {
			continue
		}
		_, candidates, err := proximityNeighbors(points, idx, i, eps)
		if err != nil {
			return nil, err
		}
		if len(candidates) < minPts {
			points[i].ClusterID = geom.NoiseLabel
			continue
		}

		members := append([]int(nil), candidates...)
		for _, c := range candidates {
			points[c].ClusterID = clusterID
		}
		frontier := removeOnce(candidates, i)

		for fi := 0; fi < len(frontier); fi++ {
			raw, cand, err := proximityNeighbors(points, idx, frontier[fi], eps)
			if err != nil {
				return nil, err
			}
			if raw < minPts {
				continue
			}
			for _, j := range cand {
				if points[j].ClusterID == geom.Unclassified {
					frontier = append(frontier, j)
				}
				points[j].ClusterID = clusterID
				members = append(members, j)
			}
		}

		clusters = append(clusters, members)
		clusterID++
	}
	return clusters, nil
}

// proximityNeighbors returns (a) the raw count of every point within eps of
// points[seed], and (b) the subset of those indices whose ClusterID is
// still negative (Unclassified or NoiseLabel) and therefore eligible to
// join a new cluster.
func proximityNeighbors(points []geom.Point, idx *octree.Octree, seed int, eps float64) (int, []int, error) {
	neighbors, err := idx.SearchNeighbors(points[seed], eps, octree.Sphere)
	if err != nil {
		return 0, nil, err
	}
	candidates := make([]int, 0, len(neighbors))
	for _, n := range neighbors {
		if points[n].ClusterID < 0 {
			candidates = append(candidates, n)
		}
	}
	return len(neighbors), candidates, nil
}

// NormalConsistency partitions points into planar face clusters by normal
// similarity. points and normals must be aligned by index; points whose
// normal is the zero vector (normal estimation could not find enough
// neighbors) are never assigned to a cluster and are left Unclassified.
// Angular comparisons use geom.Point.MinAngle rather than raw Angle,
// resolving the normal sign-ambiguity open question recorded in
// DESIGN.md by treating a normal and its negation as equivalent
// everywhere a normal is compared.
func NormalConsistency(
	points []geom.Point,
	normals []geom.Vector,
	idx *octree.Octree,
	eps float64,
	minPts int,
	maxNormalVectAngle, maxMeanVectAngle, maxMeanVectAngleSingle float64,
) ([][]int, error) {
	resetLabels(points)

	gates := angleGates{
		maxNormalVectAngle:     maxNormalVectAngle,
		maxMeanVectAngle:       maxMeanVectAngle,
		maxMeanVectAngleSingle: maxMeanVectAngleSingle,
	}

	var clusters [][]int
	clusterID := 0
	for i := range points {
		if points[i].ClusterID != geom.Unclassified || normals[i].IsZero() {
			continue
		}

		_, candidates, err := normalNeighbors(points, normals, idx, i, normals[i], eps, gates)
		if err != nil {
			return nil, err
		}
		if len(candidates) < minPts {
			points[i].ClusterID = geom.NoiseLabel
			continue
		}

		members := append([]int(nil), candidates...)
		clusterNormals := make([]geom.Vector, len(candidates))
		for k, c := range candidates {
			clusterNormals[k] = normals[c]
			points[c].ClusterID = clusterID
		}
		frontier := removeOnce(candidates, i)

		for fi := 0; fi < len(frontier); fi++ {
			mean := geom.Mean(clusterNormals)
			raw, cand, err := normalNeighbors(points, normals, idx, frontier[fi], mean, eps, gates)
			if err != nil {
				return nil, err
			}
			if raw < minPts {
				continue
			}
			for _, j := range cand {
				if points[j].ClusterID == geom.Unclassified {
					frontier = append(frontier, j)
				}
				points[j].ClusterID = clusterID
				clusterNormals = append(clusterNormals, normals[j])
				members = append(members, j)
			}
		}

		clusters = append(clusters, members)
		clusterID++
	}
	return clusters, nil
}

type angleGates struct {
	maxNormalVectAngle     float64
	maxMeanVectAngle       float64
	maxMeanVectAngleSingle float64
}

// normalNeighbors returns the count of every eps-neighbor whose normal
// passes the acceptance gate regardless of classification, and the subset
// of those indices still eligible (ClusterID < 0) to join the cluster
// being grown from meanNormal.
func normalNeighbors(
	points []geom.Point,
	normals []geom.Vector,
	idx *octree.Octree,
	seed int,
	meanNormal geom.Vector,
	eps float64,
	gates angleGates,
) (int, []int, error) {
	neighbors, err := idx.SearchNeighbors(points[seed], eps, octree.Sphere)
	if err != nil {
		return 0, nil, err
	}
	seedNormal := normals[seed]

	accepted := 0
	var candidates []int
	for _, n := range neighbors {
		nn := normals[n]
		if nn.IsZero() {
			continue
		}
		toSeed := seedNormal.MinAngle(nn)
		toMean := meanNormal.MinAngle(nn)
		if (toSeed <= gates.maxNormalVectAngle && toMean <= gates.maxMeanVectAngle) ||
			toMean <= gates.maxMeanVectAngleSingle {
			accepted++
			if points[n].ClusterID < 0 {
				candidates = append(candidates, n)
			}
		}
	}
	return accepted, candidates, nil
}

func resetLabels(points []geom.Point) {
	for i := range points {
		points[i].ClusterID = geom.Unclassified
	}
}

// removeOnce returns a copy of xs with the first occurrence of v removed.
func removeOnce(xs []int, v int) []int {
	out := make([]int, 0, len(xs))
	removed := false
	for _, x := range xs {
		if !removed && x == v {
			removed = true
			continue
		}
		out = append(out, x)
	}
	return out
}
