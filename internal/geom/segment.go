package geom

// SegmentVertices is the number of vertices (and indices) one stroke
// segment contributes: two triangles.
const SegmentVertices = 6

// PencilSegment builds the quad joining prev and next, billboarded to the
// camera: its half-width offset is perpendicular to both the segment and
// view. joint holds the trailing pair of the previous segment, or nil for
// the first segment; reusing it keeps the strip continuous.
func PencilSegment(prev, next Vec3, joint *[2]Vec3, view Vec3, width float32) [SegmentVertices]Vec3 {
	dir := next.Sub(prev).Normalize()
	ortho := dir.Cross(view).Normalize().Mul(width / 2)

	a, b := prev.Add(ortho), prev.Sub(ortho)
	if joint != nil {
		a, b = joint[0], joint[1]
	}
	c, d := next.Add(ortho), next.Sub(ortho)
	return [SegmentVertices]Vec3{a, b, c, b, c, d}
}

// MarkerSegment builds a camera independent ribbon between prev and next
// that always faces up.
func MarkerSegment(prev, next Vec3, width float32) [SegmentVertices]Vec3 {
	h := width / 2
	upper := func(p Vec3) Vec3 { return Vec3{p.X - h/2, p.Y + h, p.Z} }
	lower := func(p Vec3) Vec3 { return Vec3{p.X + h/2, p.Y - h, p.Z} }
	a, b := upper(prev), lower(prev)
	c, d := upper(next), lower(next)
	return [SegmentVertices]Vec3{a, b, c, b, c, d}
}

// CentroidPivot returns the centre of the bounding box of vertices, or the
// origin when there are none.
func CentroidPivot(vertices []Vec3) Vec3 {
	b, ok := BoundsOf(vertices)
	if !ok {
		return Vec3{}
	}
	return b.Center()
}
