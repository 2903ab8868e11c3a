// Package config collects every tunable knob this module's components take,
// following the plain-struct-plus-Validate shape used by
// utils.SafeJoinDir's callers rather than a config-file loader: loading
// these values from disk, flags or environment is left to whatever binary
// embeds this module.
package config

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Parameters enumerates the clustering, normal-estimation, anomaly-match
// and characterizer-timing knobs every component in this module reads.
// Proximities and distances are millimeters, angles are radians, durations
// are time.Duration (converted to raw stream nanoseconds internally, per
// DESIGN.md's note on ObjectCharacterizer.hh's unit-conversion-at-the-
// boundary pattern).
type Parameters struct {
	// Proximity clustering (isolates distinct objects).
	MinClusterPoints      int
	ClusterPointProximity float64

	// Normal-consistency clustering (segments one object into faces).
	MinFacePoints          int
	FacePointProximity     float64
	MaxNormalVectAngle     float64
	MaxMeanVectAngle       float64
	MaxMeanVectAngleSingle float64

	// Normal estimation.
	NormalCalcPointProximity float64

	// Anomaly detection.
	MaxFaceMatchAngle   float64
	SimilarityTolerance float64

	// Characterizer state machine.
	ObjFrame        time.Duration
	BackFrame       time.Duration
	MinReflectivity float64
	BackDistance    float64 // millimeters
	HardWallTimeout time.Duration
}

// Default returns a typical starting configuration for a mid-range scanner:
// tens-of-points cluster thresholds, tens-of-millimeters proximities, and
// sub-radian angle gates.
func Default() Parameters {
	return Parameters{
		MinClusterPoints:      20,
		ClusterPointProximity: 75,

		MinFacePoints:          40,
		FacePointProximity:     50,
		MaxNormalVectAngle:     0.25,
		MaxMeanVectAngle:       0.35,
		MaxMeanVectAngleSingle: 0.15,

		NormalCalcPointProximity: 30,

		MaxFaceMatchAngle:   0.3,
		SimilarityTolerance: 10,

		ObjFrame:        time.Second,
		BackFrame:       time.Second,
		MinReflectivity: 0,
		BackDistance:    50,
		HardWallTimeout: 5 * time.Second,
	}
}

// Validate reports every out-of-range field as a single combined error via
// go.uber.org/multierr, so a caller loading these from a file gets one full
// report instead of failing on the first bad field.
func (p Parameters) Validate() error {
	var err error
	if p.MinClusterPoints < 1 {
		err = multierr.Append(err, errors.Errorf("MinClusterPoints must be >= 1, got %d", p.MinClusterPoints))
	}
	if p.ClusterPointProximity <= 0 {
		err = multierr.Append(err, errors.Errorf("ClusterPointProximity must be > 0, got %f", p.ClusterPointProximity))
	}
	if p.MinFacePoints < 1 {
		err = multierr.Append(err, errors.Errorf("MinFacePoints must be >= 1, got %d", p.MinFacePoints))
	}
	if p.FacePointProximity <= 0 {
		err = multierr.Append(err, errors.Errorf("FacePointProximity must be > 0, got %f", p.FacePointProximity))
	}
	if err2 := validateAngle("MaxNormalVectAngle", p.MaxNormalVectAngle); err2 != nil {
		err = multierr.Append(err, err2)
	}
	if err2 := validateAngle("MaxMeanVectAngle", p.MaxMeanVectAngle); err2 != nil {
		err = multierr.Append(err, err2)
	}
	if err2 := validateAngle("MaxMeanVectAngleSingle", p.MaxMeanVectAngleSingle); err2 != nil {
		err = multierr.Append(err, err2)
	}
	if p.NormalCalcPointProximity <= 0 {
		err = multierr.Append(err, errors.Errorf("NormalCalcPointProximity must be > 0, got %f", p.NormalCalcPointProximity))
	}
	if err2 := validateAngle("MaxFaceMatchAngle", p.MaxFaceMatchAngle); err2 != nil {
		err = multierr.Append(err, err2)
	}
	if p.SimilarityTolerance < 0 {
		err = multierr.Append(err, errors.Errorf("SimilarityTolerance must be >= 0, got %f", p.SimilarityTolerance))
	}
	if p.ObjFrame <= 0 {
		err = multierr.Append(err, errors.New("ObjFrame must be > 0"))
	}
	if p.BackFrame <= 0 {
		err = multierr.Append(err, errors.New("BackFrame must be > 0"))
	}
	if p.MinReflectivity < 0 {
		err = multierr.Append(err, errors.New("MinReflectivity must be >= 0"))
	}
	if p.BackDistance < 0 {
		err = multierr.Append(err, errors.New("BackDistance must be >= 0"))
	}
	if p.HardWallTimeout <= 0 {
		err = multierr.Append(err, errors.New("HardWallTimeout must be > 0"))
	}
	return err
}

func validateAngle(name string, v float64) error {
	if v < 0 || v > math.Pi {
		return errors.Errorf("%s must be in [0, pi], got %f", name, v)
	}
	return nil
}
