// Package normal estimates a per-point surface normal from the local
// neighborhood of each point via PCA: the normal is the eigenvector of the
// neighborhood's covariance matrix with the smallest eigenvalue.
package normal

import (
	"github.com/edaniels/golog"
	"gonum.org/v1/gonum/mat"

	"github.com/ilMartoo/lidar-anomaly-detector/geom"
	"github.com/ilMartoo/lidar-anomaly-detector/octree"
)

// MinNeighbors is the smallest neighborhood size a normal estimate is
// attempted from; points with fewer neighbors get the zero vector, since
// a covariance matrix from fewer than three points has no well-defined
// smallest-eigenvalue direction.
const MinNeighbors = 3

// Estimate computes one Vector per input point, aligned by index. idx must
// have been built over points (or an equivalent, index-compatible slice).
// Points whose radius-neighborhood contains fewer than MinNeighbors members
// get the zero vector, the module-wide sentinel for "no valid normal".
func Estimate(points []geom.Point, idx *octree.Octree, radius float64, logger golog.Logger) ([]geom.Vector, error) {
	if logger == nil {
		logger = golog.NewDevelopmentLogger("normal")
	}
	out := make([]geom.Vector, len(points))
	zeroNormals := 0
	for i, p := range points {
		neighborIdx, err := idx.SearchNeighbors(p, radius, octree.Sphere)
		if err != nil {
			return nil, err
		}
		if len(neighborIdx) < MinNeighbors {
			zeroNormals++
			continue
		}
		neighbors := make([]geom.Point, len(neighborIdx))
		for j, ni := range neighborIdx {
			neighbors[j] = points[ni]
		}
		out[i] = estimateOne(neighbors)
	}
	if zeroNormals > 0 {
		logger.Debugw("normal estimation left points without a valid normal",
			"count", zeroNormals, "total", len(points))
	}
	return out, nil
}

// estimateOne returns the smallest-eigenvalue eigenvector of the covariance
// matrix of the centered neighborhood. Normal sign is left undefined, as
// PCA gives no orientation; callers that compare normals (the
// normal-consistency clusterer, face matching) use geom.Point.MinAngle
// rather than relying on sign here.
func estimateOne(neighbors []geom.Point) geom.Vector {
	mean := geom.Mean(neighbors)

	var sum [3][3]float64
	for _, p := range neighbors {
		d := p.Sub(mean)
		v := [3]float64{d.X, d.Y, d.Z}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				sum[i][j] += v[i] * v[j]
			}
		}
	}
	n := float64(len(neighbors))
	data := make([]float64, 9)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			data[i*3+j] = sum[i][j] / n
		}
	}
	cov := mat.NewSymDense(3, data)

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return geom.Vector{}
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	minIdx := 0
	for i := 1; i < len(values); i++ {
		if values[i] < values[minIdx] {
			minIdx = i
		}
	}
	return geom.NewVector(vectors.At(0, minIdx), vectors.At(1, minIdx), vectors.At(2, minIdx))
}
