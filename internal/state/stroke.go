package state

import (
	"SharedSketch/internal/geom"

	"github.com/google/uuid"
)

// Key identifies a stroke across both devices. Strokes from different
// owners are never merged, even if their ids collide.
type Key struct {
	Owner string
	ID    uuid.UUID
}

// Sample is one committed centre point together with the camera view vector
// it was sampled with. Replaying samples through Extend rebuilds a stroke.
type Sample struct {
	Point geom.Vec3 `json:"point"`
	View  geom.Vec3 `json:"view"`
}

// Transform places a stroke's geometry in the world. Rotation and scale act
// about the pivot; Position is where the pivot ends up.
type Transform struct {
	Position geom.Vec3
	Rotation geom.Quat
	Scale    geom.Vec3
}

// TransformUpdate carries the components to overwrite; nil fields are left
// as they are.
type TransformUpdate struct {
	Position *geom.Vec3
	Rotation *geom.Quat
	Scale    *geom.Vec3
}

// Stroke is a ribbon of triangles grown one centre point at a time.
// Vertices and indices only ever grow: every point after the first adds
// one six-vertex segment.
type Stroke struct {
	id    uuid.UUID
	owner string
	style Style
	color Color
	width float32

	samples  []Sample
	vertices []geom.Vec3
	indices  []uint32

	pivot     geom.Vec3
	transform Transform
}

// NewStroke returns an empty stroke with a fresh id.
func NewStroke(owner string, style Style, color Color, width float32) *Stroke {
	return NewStrokeWithID(uuid.New(), owner, style, color, width)
}

// NewStrokeWithID returns an empty stroke keyed by an existing id, as
// needed for strokes announced by the peer.
func NewStrokeWithID(id uuid.UUID, owner string, style Style, color Color, width float32) *Stroke {
	return &Stroke{
		id:    id,
		owner: owner,
		style: style,
		color: color,
		width: width,
		transform: Transform{
			Rotation: geom.IdentityQuat(),
			Scale:    geom.Vec3{X: 1, Y: 1, Z: 1},
		},
	}
}

func (s *Stroke) ID() uuid.UUID { return s.id }
func (s *Stroke) Owner() string { return s.owner }
func (s *Stroke) Key() Key { return Key{Owner: s.owner, ID: s.id} }
func (s *Stroke) Style() Style { return s.style }
func (s *Stroke) Color() Color { return s.color }
func (s *Stroke) Width() float32 { return s.width }
func (s *Stroke) Pivot() geom.Vec3 { return s.pivot }

func (s *Stroke) Transform() Transform { return s.transform }

// PointCount is the number of committed centre points.
func (s *Stroke) PointCount() int { return len(s.samples) }

// CenterPoints returns a copy of the committed centre points.
func (s *Stroke) CenterPoints() []geom.Vec3 {
	out := make([]geom.Vec3, len(s.samples))
	for i, smp := range s.samples {
		out[i] = smp.Point
	}
	return out
}

// Samples returns a copy of the committed samples.
func (s *Stroke) Samples() []Sample {
	return append([]Sample(nil), s.samples...)
}

// Vertices returns a copy of the triangle vertices in stroke-local space.
func (s *Stroke) Vertices() []geom.Vec3 {
	return append([]geom.Vec3(nil), s.vertices...)
}

// Indices returns a copy of the triangle indices.
func (s *Stroke) Indices() []uint32 {
	return append([]uint32(nil), s.indices...)
}

// LastPoint returns the most recent centre point.
func (s *Stroke) LastPoint() (geom.Vec3, bool) {
	if len(s.samples) == 0 {
		return geom.Vec3{}, false
	}
	return s.samples[len(s.samples)-1].Point, true
}

// Extend appends a centre point. The first point is only buffered; every
// later point adds one segment built by the stroke's style.
func (s *Stroke) Extend(point, view geom.Vec3) {
	n := len(s.samples)
	s.samples = append(s.samples, Sample{Point: point, View: view})
	if n == 0 {
		return
	}
	prev := s.samples[n-1].Point

	var seg [geom.SegmentVertices]geom.Vec3
	switch s.style {
	case Marker:
		seg = geom.MarkerSegment(prev, point, s.width)
	default:
		var joint *[2]geom.Vec3
		if v := len(s.vertices); v >= 2 {
			joint = &[2]geom.Vec3{s.vertices[v-2], s.vertices[v-1]}
		}
		seg = geom.PencilSegment(prev, point, joint, view, s.width)
	}

	base := uint32(len(s.indices))
	for i, v := range seg {
		s.vertices = append(s.vertices, v)
		s.indices = append(s.indices, base+uint32(i))
	}
	s.pivot = geom.CentroidPivot(s.vertices)
	s.transform.Position = s.pivot
}

// SetTransform overwrites the components present in u.
func (s *Stroke) SetTransform(u TransformUpdate) {
	if u.Position != nil {
		s.transform.Position = *u.Position
	}
	if u.Rotation != nil {
		s.transform.Rotation = *u.Rotation
	}
	if u.Scale != nil {
		s.transform.Scale = *u.Scale
	}
}

// WorldMatrix maps stroke-local vertices into the world.
func (s *Stroke) WorldMatrix() geom.Mat4 {
	t := s.transform
	return geom.Compose(t.Position, t.Rotation, t.Scale, s.pivot)
}

// Bounds is the local-space box around the vertices.
func (s *Stroke) Bounds() (geom.AABB, bool) {
	return geom.BoundsOf(s.vertices)
}

// WorldBounds is Bounds carried through WorldMatrix.
func (s *Stroke) WorldBounds() (geom.AABB, bool) {
	b, ok := s.Bounds()
	if !ok {
		return geom.AABB{}, false
	}
	return b.Transform(s.WorldMatrix()), true
}

// WorldCenterPoints returns the centre points carried through WorldMatrix.
func (s *Stroke) WorldCenterPoints() []geom.Vec3 {
	m := s.WorldMatrix()
	out := make([]geom.Vec3, len(s.samples))
	for i, smp := range s.samples {
		out[i] = m.TransformPoint(smp.Point)
	}
	return out
}

// WorldVertices returns the vertices carried through WorldMatrix.
func (s *Stroke) WorldVertices() []geom.Vec3 {
	m := s.WorldMatrix()
	out := make([]geom.Vec3, len(s.vertices))
	for i, v := range s.vertices {
		out[i] = m.TransformPoint(v)
	}
	return out
}
