package ui

import (
	"image/color"
	"math"
	"sync"
	"sync/atomic"

	"SharedSketch/internal/geom"
	"SharedSketch/internal/session"
	"SharedSketch/internal/state"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
)

// Dispatch runs fn on the session goroutine.
type Dispatch func(fn func(c *session.Coordinator))

// strokeView is the part of a stroke the board draws, copied out of the
// session goroutine.
type strokeView struct {
	origin state.Origin
	color  state.Color
	width  float32
	points []geom.Vec3
}

// Board shows every stroke as seen from the camera and turns mouse input
// into editor gestures. It is the scene sink of the session.
type Board struct {
	widget.BaseWidget
	camera   *Camera
	lens     geom.Lens
	dispatch Dispatch

	mu      sync.RWMutex
	strokes map[state.Key]*strokeView
	order   []state.Key

	primary, secondary bool
	closed             atomic.Bool
}

var _ fyne.Widget = (*Board)(nil)
var _ fyne.Draggable = (*Board)(nil)
var _ fyne.Tappable = (*Board)(nil)
var _ fyne.Scrollable = (*Board)(nil)
var _ desktop.Mouseable = (*Board)(nil)
var _ state.Sink = (*Board)(nil)

func NewBoard(camera *Camera, lens geom.Lens, dispatch Dispatch) *Board {
	b := &Board{
		camera:   camera,
		lens:     lens,
		dispatch: dispatch,
		strokes:  make(map[state.Key]*strokeView),
	}
	b.ExtendBaseWidget(b)
	return b
}

func (b *Board) StrokeAdded(s *state.Stroke, origin state.Origin) { b.upsert(s, origin) }
func (b *Board) StrokeUpdated(s *state.Stroke, origin state.Origin) { b.upsert(s, origin) }

func (b *Board) StrokeRemoved(s *state.Stroke, _ state.Origin) {
	b.mu.Lock()
	k := s.Key()
	if _, ok := b.strokes[k]; ok {
		delete(b.strokes, k)
		b.order = removeKey(b.order, k)
	}
	b.mu.Unlock()
	b.refreshLater()
}

func (b *Board) StrokesCleared(origin state.Origin) {
	b.mu.Lock()
	kept := b.order[:0]
	for _, k := range b.order {
		if b.strokes[k].origin == origin {
			delete(b.strokes, k)
			continue
		}
		kept = append(kept, k)
	}
	b.order = kept
	b.mu.Unlock()
	b.refreshLater()
}

func (b *Board) upsert(s *state.Stroke, origin state.Origin) {
	v := &strokeView{
		origin: origin,
		color:  s.Color(),
		width:  s.Width(),
		points: s.WorldCenterPoints(),
	}
	b.mu.Lock()
	k := s.Key()
	if _, ok := b.strokes[k]; !ok {
		b.order = append(b.order, k)
	}
	b.strokes[k] = v
	b.mu.Unlock()
	b.refreshLater()
}

// Len reports how many strokes are shown.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}

func (b *Board) refreshLater() {
	if !b.closed.Load() {
		fyne.Do(b.Refresh)
	}
}

func removeKey(keys []state.Key, k state.Key) []state.Key {
	for i, x := range keys {
		if x == k {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}

func (b *Board) MouseDown(e *desktop.MouseEvent) {
	p := e.Position
	switch e.Button {
	case desktop.MouseButtonPrimary:
		b.primary = true
		b.dispatch(func(c *session.Coordinator) {
			c.PanBegin(p)
			c.LongPressBegin(p)
		})
	case desktop.MouseButtonSecondary:
		b.secondary = true
		b.dispatch(func(c *session.Coordinator) { c.RotateBegin(p) })
	}
}

func (b *Board) MouseUp(e *desktop.MouseEvent) {
	switch e.Button {
	case desktop.MouseButtonPrimary:
		b.primary = false
		b.dispatch(func(c *session.Coordinator) {
			c.PanEnd()
			c.LongPressEnd()
		})
	case desktop.MouseButtonSecondary:
		b.secondary = false
		b.dispatch(func(c *session.Coordinator) { c.RotateEnd() })
	}
}

func (b *Board) Dragged(e *fyne.DragEvent) {
	p := e.Position
	switch {
	case b.primary:
		b.dispatch(func(c *session.Coordinator) {
			c.PanChange(p)
			c.LongPressChange(p)
		})
	case b.secondary:
		angle := e.Dragged.DX * 0.01
		b.dispatch(func(c *session.Coordinator) { c.Rotate(angle) })
	}
}

func (b *Board) DragEnd() {}

func (b *Board) Tapped(e *fyne.PointEvent) {
	p := e.Position
	b.dispatch(func(c *session.Coordinator) { c.Tap(p) })
}

// Scrolled scales the stroke under the pointer; one wheel notch is about
// ten percent.
func (b *Board) Scrolled(e *fyne.ScrollEvent) {
	p := e.Position
	factor := float32(math.Exp(float64(e.Scrolled.DY) * 0.01))
	b.dispatch(func(c *session.Coordinator) {
		c.PinchBegin(p)
		c.Pinch(factor)
		c.PinchEnd()
	})
}

func (b *Board) MouseIn(*desktop.MouseEvent) {}
func (b *Board) MouseOut() {}
func (b *Board) MouseMoved(*desktop.MouseEvent) {}

func (b *Board) CreateRenderer() fyne.WidgetRenderer {
	r := &boardRenderer{board: b, background: canvas.NewRectangle(color.NRGBA{R: 245, G: 246, B: 248, A: 255})}
	r.objects = []fyne.CanvasObject{r.background}
	return r
}

type boardRenderer struct {
	board      *Board
	background *canvas.Rectangle
	objects    []fyne.CanvasObject
	size       fyne.Size
}

func (r *boardRenderer) Layout(size fyne.Size) {
	r.background.Resize(size)
	if size != r.size {
		r.size = size
		r.board.dispatch(func(c *session.Coordinator) { c.SetViewport(size) })
		r.Refresh()
	}
}

func (r *boardRenderer) MinSize() fyne.Size { return fyne.NewSize(300, 400) }

func (r *boardRenderer) Objects() []fyne.CanvasObject { return r.objects }

func (r *boardRenderer) Destroy() {}

// Refresh reprojects every stroke from the current camera pose.
func (r *boardRenderer) Refresh() {
	b := r.board
	pose, _ := b.camera.CurrentPose()
	w, h := r.size.Width, r.size.Height
	focal := h / 2 / float32(math.Tan(float64(b.lens.FieldOfView)/2))

	objects := []fyne.CanvasObject{r.background}
	b.mu.RLock()
	for _, k := range b.order {
		v := b.strokes[k]
		for i := 1; i < len(v.points); i++ {
			p0, d0, ok0 := geom.ProjectToScreen(v.points[i-1], pose, b.lens)
			p1, d1, ok1 := geom.ProjectToScreen(v.points[i], pose, b.lens)
			if !ok0 || !ok1 {
				continue
			}
			line := canvas.NewLine(v.color)
			line.StrokeWidth = max(1, v.width*focal*2/(d0+d1))
			line.Position1 = fyne.NewPos(p0.X*w, p0.Y*h)
			line.Position2 = fyne.NewPos(p1.X*w, p1.Y*h)
			objects = append(objects, line)
		}
	}
	b.mu.RUnlock()
	r.objects = objects
	canvas.Refresh(b)
}
