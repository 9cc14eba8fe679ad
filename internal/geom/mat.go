package geom

// Mat4 is a column-major 4x4 matrix: element (row r, column c) lives at
// index c*4+r, and column 3 holds the translation.
type Mat4 [16]float32

// IdentityMat4 returns the identity transform.
func IdentityMat4() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// TranslationMat4 returns a pure translation by v.
func TranslationMat4(v Vec3) Mat4 {
	m := IdentityMat4()
	m[12], m[13], m[14] = v.X, v.Y, v.Z
	return m
}

// RotationMat4 returns the rotation matrix for q.
func RotationMat4(q Quat) Mat4 {
	return Compose(Vec3{}, q, Vec3{1, 1, 1}, Vec3{})
}

// Compose builds T(position) * R(rotation) * S(scale) * T(-pivot): the
// transform of a stroke whose geometry is scaled and rotated about pivot
// and whose pivot then lands on position.
func Compose(position Vec3, rotation Quat, scale Vec3, pivot Vec3) Mat4 {
	x, y, z, w := rotation.X, rotation.Y, rotation.Z, rotation.W
	m := Mat4{
		(1 - 2*(y*y+z*z)) * scale.X, 2 * (x*y + z*w) * scale.X, 2 * (x*z - y*w) * scale.X, 0,
		2 * (x*y - z*w) * scale.Y, (1 - 2*(x*x+z*z)) * scale.Y, 2 * (y*z + x*w) * scale.Y, 0,
		2 * (x*z + y*w) * scale.Z, 2 * (y*z - x*w) * scale.Z, (1 - 2*(x*x+y*y)) * scale.Z, 0,
		0, 0, 0, 1,
	}
	t := position.Sub(m.TransformVector(pivot))
	m[12], m[13], m[14] = t.X, t.Y, t.Z
	return m
}

// LookAt returns a camera-to-world pose at eye looking towards target.
func LookAt(eye, target, up Vec3) Mat4 {
	back := eye.Sub(target).Normalize()
	right := up.Cross(back).Normalize()
	upward := back.Cross(right)
	return Mat4{
		right.X, right.Y, right.Z, 0,
		upward.X, upward.Y, upward.Z, 0,
		back.X, back.Y, back.Z, 0,
		eye.X, eye.Y, eye.Z, 1,
	}
}

// At returns the element in row r, column c.
func (m Mat4) At(r, c int) float32 {
	return m[c*4+r]
}

// Col returns the first three rows of column c.
func (m Mat4) Col(c int) Vec3 {
	return Vec3{m[c*4], m[c*4+1], m[c*4+2]}
}

// Mul returns m*n.
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[k*4+r] * n[c*4+k]
			}
			out[c*4+r] = sum
		}
	}
	return out
}

// TransformPoint applies m to the point v (w = 1).
func (m Mat4) TransformPoint(v Vec3) Vec3 {
	return Vec3{
		m[0]*v.X + m[4]*v.Y + m[8]*v.Z + m[12],
		m[1]*v.X + m[5]*v.Y + m[9]*v.Z + m[13],
		m[2]*v.X + m[6]*v.Y + m[10]*v.Z + m[14],
	}
}

// TransformVector applies m to the direction v (w = 0).
func (m Mat4) TransformVector(v Vec3) Vec3 {
	return Vec3{
		m[0]*v.X + m[4]*v.Y + m[8]*v.Z,
		m[1]*v.X + m[5]*v.Y + m[9]*v.Z,
		m[2]*v.X + m[6]*v.Y + m[10]*v.Z,
	}
}

func (m Mat4) IsFinite() bool {
	for _, f := range m {
		if !finite(f) {
			return false
		}
	}
	return true
}
