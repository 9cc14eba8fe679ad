// Package export writes the scene to flat files, viewed from the front:
// world x to the right, world y up, depth dropped.
package export

import (
	"SharedSketch/internal/geom"
	"SharedSketch/internal/state"
)

// Shape is one stroke flattened for export.
type Shape struct {
	Color state.Color
	// Triangles holds world-space vertices, three per triangle.
	Triangles []geom.Vec3
}

// Sketch is a set of shapes and the x/y extent they cover.
type Sketch struct {
	Shapes []Shape
	Min    geom.Vec3
	Max    geom.Vec3
}

// Empty reports whether there is nothing to draw.
func (s Sketch) Empty() bool { return len(s.Shapes) == 0 }

// FromStrokes flattens strokes in the given order. Strokes with fewer than
// two points have no triangles and are skipped.
func FromStrokes(strokes []*state.Stroke) Sketch {
	var sk Sketch
	var all []geom.Vec3
	for _, s := range strokes {
		verts := s.WorldVertices()
		if len(verts) < 3 {
			continue
		}
		tris := make([]geom.Vec3, 0, len(verts))
		for _, i := range s.Indices() {
			if int(i) < len(verts) {
				tris = append(tris, verts[i])
			}
		}
		tris = tris[:len(tris)/3*3]
		sk.Shapes = append(sk.Shapes, Shape{Color: s.Color(), Triangles: tris})
		all = append(all, tris...)
	}
	if box, ok := geom.BoundsOf(all); ok {
		sk.Min, sk.Max = box.Min, box.Max
	}
	return sk
}

// frame maps world x/y into a w by h area inset by margin, keeping the
// aspect ratio and centring the drawing.
type frame struct {
	scale float64
	offX  float64
	offY  float64
	minX  float64
	maxY  float64
}

func fit(sk Sketch, w, h, margin float64) frame {
	dx := float64(sk.Max.X - sk.Min.X)
	dy := float64(sk.Max.Y - sk.Min.Y)
	availW, availH := w-2*margin, h-2*margin
	scale := 1.0
	switch {
	case dx > 0 && dy > 0:
		scale = min(availW/dx, availH/dy)
	case dx > 0:
		scale = availW / dx
	case dy > 0:
		scale = availH / dy
	}
	return frame{
		scale: scale,
		offX:  margin + (availW-dx*scale)/2,
		offY:  margin + (availH-dy*scale)/2,
		minX:  float64(sk.Min.X),
		maxY:  float64(sk.Max.Y),
	}
}

func (f frame) point(v geom.Vec3) (x, y float64) {
	return f.offX + (float64(v.X)-f.minX)*f.scale, f.offY + (f.maxY-float64(v.Y))*f.scale
}
