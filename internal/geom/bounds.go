package geom

import "math"

// AABB is an axis aligned bounding box.
type AABB struct {
	Min, Max Vec3
}

// BoundsOf returns the box enclosing points; ok is false for no points.
func BoundsOf(points []Vec3) (box AABB, ok bool) {
	if len(points) == 0 {
		return AABB{}, false
	}
	box = AABB{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		box.Min = box.Min.Min(p)
		box.Max = box.Max.Max(p)
	}
	return box, true
}

func (b AABB) Center() Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b AABB) Size() Vec3 {
	return b.Max.Sub(b.Min)
}

// Expand grows the box by margin on every side.
func (b AABB) Expand(margin float32) AABB {
	m := Vec3{margin, margin, margin}
	return AABB{Min: b.Min.Sub(m), Max: b.Max.Add(m)}
}

func (b AABB) Corners() [8]Vec3 {
	return [8]Vec3{
		{b.Min.X, b.Min.Y, b.Min.Z},
		{b.Max.X, b.Min.Y, b.Min.Z},
		{b.Min.X, b.Max.Y, b.Min.Z},
		{b.Max.X, b.Max.Y, b.Min.Z},
		{b.Min.X, b.Min.Y, b.Max.Z},
		{b.Max.X, b.Min.Y, b.Max.Z},
		{b.Min.X, b.Max.Y, b.Max.Z},
		{b.Max.X, b.Max.Y, b.Max.Z},
	}
}

// Transform returns the axis aligned box enclosing b after applying m.
func (b AABB) Transform(m Mat4) AABB {
	corners := b.Corners()
	for i, c := range corners {
		corners[i] = m.TransformPoint(c)
	}
	out, _ := BoundsOf(corners[:])
	return out
}

// IntersectAABB returns the distance along r to the first point inside b.
// A ray starting inside the box hits at 0.
func (r Ray) IntersectAABB(b AABB) (float32, bool) {
	tmin := float32(math.Inf(-1))
	tmax := float32(math.Inf(1))
	origin := [3]float32{r.Origin.X, r.Origin.Y, r.Origin.Z}
	dir := [3]float32{r.Dir.X, r.Dir.Y, r.Dir.Z}
	lo := [3]float32{b.Min.X, b.Min.Y, b.Min.Z}
	hi := [3]float32{b.Max.X, b.Max.Y, b.Max.Z}

	for i := 0; i < 3; i++ {
		if dir[i] > -1e-9 && dir[i] < 1e-9 {
			if origin[i] < lo[i] || origin[i] > hi[i] {
				return 0, false
			}
			continue
		}
		t1 := (lo[i] - origin[i]) / dir[i]
		t2 := (hi[i] - origin[i]) / dir[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = max(tmin, t1)
		tmax = min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	if tmax < 0 {
		return 0, false
	}
	return max(tmin, 0), true
}
