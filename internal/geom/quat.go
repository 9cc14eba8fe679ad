package geom

import "math"

// Quat is a rotation quaternion. The zero value is not a rotation; use
// IdentityQuat.
type Quat struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
	W float32 `json:"w"`
}

// IdentityQuat returns the quaternion for "no rotation".
func IdentityQuat() Quat {
	return Quat{W: 1}
}

// QuatFromAxisAngle returns the rotation of angle radians about axis.
// A zero axis yields the identity.
func QuatFromAxisAngle(axis Vec3, angle float32) Quat {
	a := axis.Normalize()
	if a == (Vec3{}) {
		return IdentityQuat()
	}
	s, c := math.Sincos(float64(angle) / 2)
	return Quat{X: a.X * float32(s), Y: a.Y * float32(s), Z: a.Z * float32(s), W: float32(c)}
}

// Mul returns the Hamilton product q*r: r is applied first, then q.
func (q Quat) Mul(r Quat) Quat {
	return Quat{
		X: q.W*r.X + q.X*r.W + q.Y*r.Z - q.Z*r.Y,
		Y: q.W*r.Y - q.X*r.Z + q.Y*r.W + q.Z*r.X,
		Z: q.W*r.Z + q.X*r.Y - q.Y*r.X + q.Z*r.W,
		W: q.W*r.W - q.X*r.X - q.Y*r.Y - q.Z*r.Z,
	}
}

// Normalize returns q at unit length, or the identity when q has none.
func (q Quat) Normalize() Quat {
	l := float32(math.Sqrt(float64(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)))
	if l < 1e-12 || !finite(l) {
		return IdentityQuat()
	}
	return Quat{q.X / l, q.Y / l, q.Z / l, q.W / l}
}

// Conjugate is the inverse of a unit quaternion.
func (q Quat) Conjugate() Quat {
	return Quat{-q.X, -q.Y, -q.Z, q.W}
}

// Rotate applies q to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Mul(2)
	return v.Add(t.Mul(q.W)).Add(u.Cross(t))
}

func (q Quat) IsFinite() bool {
	return finite(q.X) && finite(q.Y) && finite(q.Z) && finite(q.W)
}
