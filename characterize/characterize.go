// Package characterize builds a CharacterizedObject (bounding box plus
// planar faces) from a raw point cloud via a four-stage pipeline:
// proximity-cluster to isolate the object, estimate normals,
// normal-cluster to segment faces, then describe each face in its own
// local frame.
package characterize

import (
	"sort"

	"github.com/edaniels/golog"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"github.com/ilMartoo/lidar-anomaly-detector/box"
	"github.com/ilMartoo/lidar-anomaly-detector/cluster"
	"github.com/ilMartoo/lidar-anomaly-detector/config"
	"github.com/ilMartoo/lidar-anomaly-detector/geom"
	"github.com/ilMartoo/lidar-anomaly-detector/normal"
	"github.com/ilMartoo/lidar-anomaly-detector/octree"
)

// ErrNoObject is returned when proximity clustering finds no cluster at all
// among the input points.
var ErrNoObject = errors.New("characterize: no object cluster found")

// Face is a planar subset of an object's surface: a centroid, an outward
// (sign-ambiguous) unit normal, a bounding box in the frame whose +Z aligns
// with that normal, and the member point indices into the object's point
// slice (not the original input slice -- see CharacterizedObject doc).
type Face struct {
	Centroid geom.Point
	Normal   geom.Vector
	BBox     box.Box
	Members  []int

	// ResidualMean and ResidualStdDev summarize each member point's
	// distance from the fitted plane (centroid, normal); a well-formed
	// planar face should show a small mean and stddev. Computed with
	// montanaflynn/stats the same way rimage/calibrate summarizes corner
	// residuals.
	ResidualMean   float64
	ResidualStdDev float64
}

// CharacterizedObject is the immutable output of Build: an overall bounding
// box plus faces sorted by descending member count, a largest-face-first
// ordering that keeps downstream face matching stable across runs.
type CharacterizedObject struct {
	BBox  box.Box
	Faces []Face

	// Points holds the object's own points (the largest proximity
	// cluster from the input), in the frame they were built in. Face
	// member indices are indices into this slice.
	Points []geom.Point
}

// Build runs the characterization pipeline over points, which need not
// already be isolated from noise: proximity clustering picks out the
// largest cluster and treats everything else as stray.
func Build(points []geom.Point, cfg config.Parameters, logger golog.Logger) (*CharacterizedObject, error) {
	if logger == nil {
		logger = golog.NewDevelopmentLogger("characterize")
	}

	idx, err := octree.Build(points, octree.WithLogger(logger))
	if err != nil {
		return nil, errors.Wrap(err, "characterize: building index over raw points")
	}

	proximityClusters, err := cluster.Proximity(points, idx, cfg.ClusterPointProximity, cfg.MinClusterPoints)
	if err != nil {
		return nil, errors.Wrap(err, "characterize: proximity clustering")
	}
	if len(proximityClusters) == 0 {
		return nil, ErrNoObject
	}

	largest := largestCluster(proximityClusters)
	if len(proximityClusters) > 1 {
		logger.Debugw("discarding stray proximity clusters",
			"kept", len(largest), "discarded_clusters", len(proximityClusters)-1)
	}

	objectPoints := make([]geom.Point, len(largest))
	for i, srcIdx := range largest {
		objectPoints[i] = points[srcIdx]
	}

	objectIdx, err := octree.Build(objectPoints, octree.WithLogger(logger))
	if err != nil {
		return nil, errors.Wrap(err, "characterize: rebuilding index over the object cluster")
	}

	normals, err := normal.Estimate(objectPoints, objectIdx, cfg.NormalCalcPointProximity, logger)
	if err != nil {
		return nil, errors.Wrap(err, "characterize: estimating normals")
	}

	faceClusters, err := cluster.NormalConsistency(
		objectPoints, normals, objectIdx,
		cfg.FacePointProximity, cfg.MinFacePoints,
		cfg.MaxNormalVectAngle, cfg.MaxMeanVectAngle, cfg.MaxMeanVectAngleSingle,
	)
	if err != nil {
		return nil, errors.Wrap(err, "characterize: normal-consistency clustering")
	}

	faces := make([]Face, len(faceClusters))
	for i, members := range faceClusters {
		faces[i] = buildFace(objectPoints, normals, members)
	}
	sort.SliceStable(faces, func(a, b int) bool {
		return len(faces[a].Members) > len(faces[b].Members)
	})

	return &CharacterizedObject{
		BBox:   box.FromPoints(objectPoints),
		Faces:  faces,
		Points: objectPoints,
	}, nil
}

func buildFace(points []geom.Point, normals []geom.Vector, members []int) Face {
	memberPoints := make([]geom.Point, len(members))
	memberNormals := make([]geom.Vector, len(members))
	for i, m := range members {
		memberPoints[i] = points[m]
		memberNormals[i] = normals[m]
	}

	centroid := geom.Mean(memberPoints)
	meanNormal := geom.Mean(memberNormals).Normalize()
	rot := geom.AlignToZ(meanNormal)
	bbox := box.FromRotatedPoints(memberPoints, rot)

	mean, stddev := planeResiduals(memberPoints, centroid, meanNormal)

	return Face{
		Centroid:       centroid,
		Normal:         meanNormal,
		BBox:           bbox,
		Members:        members,
		ResidualMean:   mean,
		ResidualStdDev: stddev,
	}
}

// planeResiduals returns the mean and population stddev of each point's
// signed distance from the plane (centroid, normal).
func planeResiduals(points []geom.Point, centroid geom.Point, normal geom.Vector) (float64, float64) {
	if normal.IsZero() || len(points) == 0 {
		return 0, 0
	}
	residuals := make([]float64, len(points))
	for i, p := range points {
		residuals[i] = p.Sub(centroid).Dot(normal)
	}
	mean, err := stats.Mean(residuals)
	if err != nil {
		return 0, 0
	}
	stddev, err := stats.StandardDeviationPopulation(residuals)
	if err != nil {
		return mean, 0
	}
	return mean, stddev
}

func largestCluster(clusters [][]int) []int {
	largest := clusters[0]
	for _, c := range clusters[1:] {
		if len(c) > len(largest) {
			largest = c
		}
	}
	return largest
}
