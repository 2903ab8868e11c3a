// Package anomaly compares an observed CharacterizedObject against a stored
// model and produces a structured report of dimensional and structural
// differences: an overall bounding-box delta plus, when both sides have
// faces, a per-face match against the model.
package anomaly

import (
	"math"

	"github.com/pkg/errors"

	"github.com/ilMartoo/lidar-anomaly-detector/characterize"
	"github.com/ilMartoo/lidar-anomaly-detector/config"
)

// ErrModelIncompatible is returned alongside a best-effort Report when
// either side has zero faces: overall deltas are still computed and
// Similar is forced false, but per-face matching is meaningless with
// nothing to match against.
var ErrModelIncompatible = errors.New("anomaly: model or observed object has no faces")

// NoMatch is the sentinel model-face index meaning "no model face matched
// this observed face within MaxFaceMatchAngle".
const NoMatch = -1

// Comparison carries the three signed per-axis deltas model minus observed.
type Comparison struct {
	DeltaX, DeltaY, DeltaZ float64
}

func compareDeltas(model, observed [3]float64) Comparison {
	return Comparison{
		DeltaX: model[0] - observed[0],
		DeltaY: model[1] - observed[1],
		DeltaZ: model[2] - observed[2],
	}
}

// MaxAbs returns the largest-magnitude axis delta.
func (c Comparison) MaxAbs() float64 {
	m := math.Abs(c.DeltaX)
	if v := math.Abs(c.DeltaY); v > m {
		m = v
	}
	if v := math.Abs(c.DeltaZ); v > m {
		m = v
	}
	return m
}

// FaceComparison describes how one observed face matched (or failed to
// match) a model face. ModelFaceIndex is NoMatch when nothing in the model
// fell within MaxFaceMatchAngle of this face's normal.
type FaceComparison struct {
	ModelFaceIndex int
	Delta          Comparison
}

// Matched reports whether this comparison found a model face.
func (fc FaceComparison) Matched() bool {
	return fc.ModelFaceIndex != NoMatch
}

// Report is the full anomaly-detection outcome, field order matching
// original_source's AnomalyReport.hh baseline.
type Report struct {
	Similar        bool
	Overall        Comparison
	DeltaFaceCount int
	PerFace        []FaceComparison
}

// Detect compares observed against model, matching faces and computing
// per-axis deltas. It returns ErrModelIncompatible (alongside a
// best-effort Report with Similar forced false) when either object has
// zero faces.
func Detect(observed, model *characterize.CharacterizedObject, cfg config.Parameters) (*Report, error) {
	overall := compareDeltas(
		[3]float64{model.BBox.Delta.X, model.BBox.Delta.Y, model.BBox.Delta.Z},
		[3]float64{observed.BBox.Delta.X, observed.BBox.Delta.Y, observed.BBox.Delta.Z},
	)
	deltaFaceCount := len(model.Faces) - len(observed.Faces)

	if len(model.Faces) == 0 || len(observed.Faces) == 0 {
		return &Report{
			Similar:        false,
			Overall:        overall,
			DeltaFaceCount: deltaFaceCount,
		}, ErrModelIncompatible
	}

	perFace := matchFaces(observed, model, cfg.MaxFaceMatchAngle)

	similar := len(observed.Faces) > 0 && overall.MaxAbs() <= cfg.SimilarityTolerance
	for _, fc := range perFace {
		if !fc.Matched() {
			similar = false
			break
		}
		if fc.Delta.MaxAbs() > cfg.SimilarityTolerance {
			similar = false
			break
		}
	}

	return &Report{
		Similar:        similar,
		Overall:        overall,
		DeltaFaceCount: deltaFaceCount,
		PerFace:        perFace,
	}, nil
}

// matchFaces greedily matches each observed face, in descending-size
// iteration order, to the closest-by-normal-angle unmatched model face.
// Angle comparisons use MinAngle to stay consistent with every other
// normal-vs-normal comparison in this module (DESIGN.md's resolution of the
// normal sign-ambiguity open question), and ties resolve to the lower model
// index because the scan below only replaces the best match on a strictly
// smaller angle.
func matchFaces(observed, model *characterize.CharacterizedObject, maxAngle float64) []FaceComparison {
	used := make([]bool, len(model.Faces))
	out := make([]FaceComparison, len(observed.Faces))

	for i, of := range observed.Faces {
		best := -1
		bestAngle := math.Inf(1)
		for j, mf := range model.Faces {
			if used[j] {
				continue
			}
			angle := of.Normal.MinAngle(mf.Normal)
			if angle < bestAngle {
				bestAngle = angle
				best = j
			}
		}
		if best == -1 || bestAngle > maxAngle {
			out[i] = FaceComparison{ModelFaceIndex: NoMatch}
			continue
		}
		used[best] = true
		mf := model.Faces[best]
		out[i] = FaceComparison{
			ModelFaceIndex: best,
			Delta: compareDeltas(
				[3]float64{mf.BBox.Delta.X, mf.BBox.Delta.Y, mf.BBox.Delta.Z},
				[3]float64{of.BBox.Delta.X, of.BBox.Delta.Y, of.BBox.Delta.Z},
			),
		}
	}
	return out
}
