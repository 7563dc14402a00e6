package math

// Quat represents a quaternion for 3D rotations.
// Components are stored as X, Y, Z, W where W is the scalar part.
type Quat struct {
	X, Y, Z, W float32
}

// QuatIdentity returns an identity quaternion (no rotation).
func QuatIdentity() Quat {
	return Quat{X: 0, Y: 0, Z: 0, W: 1}
}

// QuatFromWXYZ creates a quaternion from scalar-first components,
// the order used by authoring tools and level files.
func QuatFromWXYZ(w, x, y, z float32) Quat {
	return Quat{X: x, Y: y, Z: z, W: w}
}

// QuatFromSlice builds a quaternion from scalar-first components.
// Anything other than exactly four components yields the identity.
func QuatFromSlice(s []float32) Quat {
	if len(s) != 4 {
		return QuatIdentity()
	}
	return QuatFromWXYZ(s[0], s[1], s[2], s[3])
}

// IsIdentity reports whether q is exactly the identity rotation.
func (q Quat) IsIdentity() bool {
	return q == QuatIdentity()
}

// String formats the quaternion scalar first: "w, x, y, z".
func (q Quat) String() string {
	return JoinFloats(q.W, q.X, q.Y, q.Z)
}
