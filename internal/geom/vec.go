// Package geom holds the vector math used to turn touches into 3D stroke
// geometry: projection through a camera pose, ribbon segment builders,
// bounding boxes and picking rays.
package geom

import "math"

// Vec3 is a point or direction in world space, in metres.
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// V3 is shorthand for Vec3{x, y, z}.
func V3(x, y, z float32) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) Mul(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) Neg() Vec3 {
	return Vec3{-v.X, -v.Y, -v.Z}
}

func (v Vec3) Dot(o Vec3) float32 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

func (v Vec3) Length() float32 {
	return float32(math.Sqrt(float64(v.Dot(v))))
}

// Distance returns the euclidean distance between v and o.
func (v Vec3) Distance(o Vec3) float32 {
	return v.Sub(o).Length()
}

// Normalize returns v scaled to unit length. The zero vector (and anything
// too short to divide by) normalizes to the zero vector.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l < 1e-12 || !finite(l) {
		return Vec3{}
	}
	return v.Mul(1 / l)
}

// IsFinite reports whether no component is NaN or infinite.
func (v Vec3) IsFinite() bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}

// Min returns the component-wise minimum.
func (v Vec3) Min(o Vec3) Vec3 {
	return Vec3{min(v.X, o.X), min(v.Y, o.Y), min(v.Z, o.Z)}
}

// Max returns the component-wise maximum.
func (v Vec3) Max(o Vec3) Vec3 {
	return Vec3{max(v.X, o.X), max(v.Y, o.Y), max(v.Z, o.Z)}
}

func finite(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}
