package geom

import "math"

// Rotation is a 3x3 row-major rotation matrix.
type Rotation [3][3]float64

// Identity returns the identity rotation.
func Identity() Rotation {
	return Rotation{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

// AlignToZ returns the rotation matrix that maps unit vector n onto +Z,
// used by the characterized-object builder to move a face's member points
// into the face-local frame before computing its bounding box. If n is
// already parallel to +Z, Identity (or a 180-degree rotation about X for
// -Z) is returned. n need not be normalized.
func AlignToZ(n Vector) Rotation {
	u := n.Normalize()
	if u.IsZero() {
		return Identity()
	}
	z := Vector{X: 0, Y: 0, Z: 1}
	const parallelEpsilon = 1e-12
	dot := u.Dot(z)
	if dot > 1-parallelEpsilon {
		return Identity()
	}
	if dot < -1+parallelEpsilon {
		// 180 degree rotation about any axis perpendicular to z, X works.
		return Rotation{
			{1, 0, 0},
			{0, -1, 0},
			{0, 0, -1},
		}
	}
	axis := u.Cross(z)
	axis = axis.Normalize()
	angle := math.Acos(dot)
	return fromAxisAngle(axis, angle)
}

// fromAxisAngle builds a rotation matrix from an axis (assumed unit length)
// and an angle in radians using the Rodrigues rotation formula.
func fromAxisAngle(axis Vector, angle float64) Rotation {
	c := math.Cos(angle)
	s := math.Sin(angle)
	t := 1 - c
	x, y, z := axis.X, axis.Y, axis.Z
	return Rotation{
		{t*x*x + c, t*x*y - s*z, t*x*z + s*y},
		{t*x*y + s*z, t*y*y + c, t*y*z - s*x},
		{t*x*z - s*y, t*y*z + s*x, t*z*z + c},
	}
}
