package state

import "fmt"

// Style selects the segment builder used to extend a stroke. The wire
// values are fixed: Pencil is 0, Marker is 1.
type Style int

const (
	Pencil Style = iota
	Marker
)

func (s Style) String() string {
	switch s {
	case Pencil:
		return "pencil"
	case Marker:
		return "marker"
	default:
		return fmt.Sprintf("Style(%d)", int(s))
	}
}

func (s Style) Valid() bool {
	return s == Pencil || s == Marker
}

// WidthClass is the user-facing stroke thickness.
type WidthClass int

const (
	Small WidthClass = iota
	Medium
	Large
)

// Width returns the ribbon width in metres.
func (w WidthClass) Width() float32 {
	switch w {
	case Medium:
		return 0.01
	case Large:
		return 0.03
	default:
		return 0.003
	}
}

func (w WidthClass) String() string {
	switch w {
	case Small:
		return "small"
	case Medium:
		return "medium"
	case Large:
		return "large"
	default:
		return fmt.Sprintf("WidthClass(%d)", int(w))
	}
}

// Color is a straight (non-premultiplied) RGBA colour with components in
// [0,1]. It implements color.Color.
type Color struct {
	R float32 `json:"r"`
	G float32 `json:"g"`
	B float32 `json:"b"`
	A float32 `json:"a"`
}

// RGBA implements color.Color.
func (c Color) RGBA() (r, g, b, a uint32) {
	alpha := clamp01(c.A)
	a = uint32(alpha * 0xffff)
	r = uint32(clamp01(c.R) * alpha * 0xffff)
	g = uint32(clamp01(c.G) * alpha * 0xffff)
	b = uint32(clamp01(c.B) * alpha * 0xffff)
	return
}

func clamp01(f float32) float32 {
	switch {
	case f < 0 || f != f:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// Palette offered by the toolbar. Pink is the default pen colour.
var (
	Pink   = Color{R: 1, G: 0.176, B: 0.333, A: 1}
	Black  = Color{A: 1}
	Red    = Color{R: 1, A: 1}
	Green  = Color{G: 1, A: 1}
	Blue   = Color{B: 1, A: 1}
	Yellow = Color{R: 1, G: 1, A: 1}
)

// Settings is the pen state new strokes are created with.
type Settings struct {
	Style Style
	Width WidthClass
	Color Color
}

// DefaultSettings is a small pink pencil.
func DefaultSettings() Settings {
	return Settings{Style: Pencil, Width: Small, Color: Pink}
}
