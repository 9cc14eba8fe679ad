package edit

import (
	"math"
	"testing"

	"SharedSketch/internal/geom"
	"SharedSketch/internal/state"

	"fyne.io/fyne/v2"
	"github.com/google/uuid"
)

type fixedCamera struct {
	pose geom.Mat4
}

func (c fixedCamera) CurrentPose() (geom.Mat4, bool) { return c.pose, true }

type recordingPublisher struct {
	appends []state.Sample
	deletes []uuid.UUID
}

func (p *recordingPublisher) PublishAppend(_ *state.Stroke, s state.Sample) {
	p.appends = append(p.appends, s)
}

func (p *recordingPublisher) PublishDelete(s *state.Stroke) {
	p.deletes = append(p.deletes, s.ID())
}

var center = fyne.NewPos(100, 100)

func newEditor(t *testing.T) (*Editor, *state.Manager, *recordingPublisher) {
	t.Helper()
	m := state.NewManager("me", nil, nil)
	pub := &recordingPublisher{}
	e := New(m, pub, fixedCamera{pose: geom.IdentityMat4()}, DefaultOptions(), nil)
	e.SetViewport(fyne.NewSize(200, 200))
	return e, m, pub
}

// drawAcross draws a short horizontal stroke through the middle of the
// screen and returns it.
func drawAcross(t *testing.T, e *Editor) *state.Stroke {
	t.Helper()
	pose := geom.IdentityMat4()
	e.PanBegin(fyne.NewPos(90, 100))
	e.Tick(pose)
	e.PanChange(fyne.NewPos(110, 100))
	e.Tick(pose)
	e.PanEnd()
	s := e.Stroke()
	if s == nil || s.PointCount() != 2 {
		t.Fatalf("drawAcross produced %v", s)
	}
	return s
}

func TestThresholdSuppression(t *testing.T) {
	e, m, pub := newEditor(t)
	pose := geom.IdentityMat4()

	e.PanBegin(center)
	if e.State() != Drawing {
		t.Fatalf("state = %v, want drawing", e.State())
	}
	e.Tick(pose)
	e.Tick(pose)

	s := m.Current()
	if s == nil {
		t.Fatalf("no current stroke")
	}
	if n := s.PointCount(); n != 1 {
		t.Fatalf("points after repeated touch = %d, want 1", n)
	}
	if n := len(s.Indices()); n != 0 {
		t.Fatalf("indices after repeated touch = %d, want 0", n)
	}
	if n := len(pub.appends); n != 1 {
		t.Fatalf("published %d appends, want 1 (first point)", n)
	}

	e.PanChange(fyne.NewPos(110, 100))
	e.Tick(pose)
	if n := len(s.Indices()); n != 6 {
		t.Fatalf("indices after move = %d, want 6", n)
	}
	if n := len(pub.appends); n != 2 {
		t.Fatalf("published %d appends, want 2", n)
	}
	want := geom.V3(0, 0, -0.2)
	if got := pub.appends[0].Point; got.Distance(want) > 1e-5 {
		t.Fatalf("first point = %v, want %v", got, want)
	}
	if got := pub.appends[0].View; got != geom.V3(0, 0, -1) {
		t.Fatalf("view vector = %v, want camera forward", got)
	}
}

func TestPanEndKeepsStroke(t *testing.T) {
	e, m, _ := newEditor(t)
	s := drawAcross(t, e)

	if e.State() != Idle {
		t.Fatalf("state = %v, want idle", e.State())
	}
	if m.Current() != s {
		t.Fatalf("current stroke lost after pan end")
	}
	e.Tick(geom.IdentityMat4())
	if s.PointCount() != 2 {
		t.Fatalf("stroke extended after pan end")
	}
}

func TestEmptyStrokeDiscarded(t *testing.T) {
	e, m, _ := newEditor(t)
	e.PanBegin(center)
	e.PanEnd()
	if n := len(m.LocalStrokes()); n != 0 {
		t.Fatalf("empty stroke kept, %d strokes", n)
	}
}

func TestToolSwitchCancelsDrawing(t *testing.T) {
	e, m, _ := newEditor(t)
	pose := geom.IdentityMat4()
	e.PanBegin(center)
	e.Tick(pose)

	e.SelectTool(ToolEraser)
	if e.State() != Erasing {
		t.Fatalf("state = %v, want erasing", e.State())
	}
	e.PanChange(fyne.NewPos(150, 150))
	e.Tick(pose)
	if n := m.Current().PointCount(); n != 1 {
		t.Fatalf("stroke extended after switching to eraser: %d points", n)
	}

	e.PanBegin(center)
	if e.State() == Drawing {
		t.Fatalf("eraser started a stroke")
	}
}

func TestMarkerToolSetsStyle(t *testing.T) {
	e, _, _ := newEditor(t)
	e.SelectTool(ToolMarker)
	e.SetWidthClass(state.Large)
	e.SetColor(state.Green)
	e.PanBegin(center)
	s := e.Stroke()
	if s.Style() != state.Marker || s.Width() != state.Large.Width() || s.Color() != state.Green {
		t.Fatalf("stroke = %v %v %v", s.Style(), s.Width(), s.Color())
	}
}

func TestDisabledIgnoresPan(t *testing.T) {
	e, m, _ := newEditor(t)
	e.SetEnabled(false)
	e.PanBegin(center)
	e.Tick(geom.IdentityMat4())
	if len(m.LocalStrokes()) != 0 {
		t.Fatalf("disabled editor created a stroke")
	}
	e.SetEnabled(true)
	e.PanBegin(center)
	if e.State() != Drawing {
		t.Fatalf("re-enabled editor did not start drawing")
	}
}

func TestEraseTap(t *testing.T) {
	e, m, pub := newEditor(t)
	s := drawAcross(t, e)
	e.SelectTool(ToolEraser)

	e.Tap(fyne.NewPos(0, 0))
	if len(m.LocalStrokes()) != 1 {
		t.Fatalf("tap on empty space erased a stroke")
	}

	e.Tap(center)
	if len(m.LocalStrokes()) != 0 {
		t.Fatalf("tap on stroke did not erase it")
	}
	if len(pub.deletes) != 1 || pub.deletes[0] != s.ID() {
		t.Fatalf("published deletes = %v, want [%s]", pub.deletes, s.ID())
	}
	if e.Stroke() != nil {
		t.Fatalf("editor still references erased stroke")
	}
}

func TestEraseIgnoresRemote(t *testing.T) {
	e, m, pub := newEditor(t)
	for _, x := range []float32{-0.01, 0.01} {
		_, err := m.ApplyRemoteAppend(state.RemoteAppend{
			Owner: "peer", ID: uuid.Nil, Style: state.Pencil, Width: 0.01,
			Point: geom.V3(x, 0, -0.2), View: geom.V3(0, 0, -1),
		})
		if err != nil {
			t.Fatalf("ApplyRemoteAppend: %v", err)
		}
	}
	e.SelectTool(ToolEraser)
	e.Tap(center)
	if len(m.RemoteStrokes()) != 1 || len(pub.deletes) != 0 {
		t.Fatalf("eraser removed a remote stroke")
	}
}

func TestDrag(t *testing.T) {
	e, m, _ := newEditor(t)
	s := drawAcross(t, e)
	e.SelectTool(ToolMover)

	e.LongPressBegin(center)
	if e.State() != Dragging {
		t.Fatalf("state = %v, want dragging", e.State())
	}
	e.LongPressChange(fyne.NewPos(150, 100))
	e.Tick(geom.IdentityMat4())

	want := float32(0.5 * math.Tan(math.Pi/6) * 0.75 * 0.2)
	pos := s.Transform().Position
	if math.Abs(float64(pos.X-want)) > 1e-3 || math.Abs(float64(pos.Z+0.2)) > 1e-3 {
		t.Fatalf("dragged position = %v, want x=%v z=-0.2", pos, want)
	}
	if len(m.LocalStrokes()) != 1 {
		t.Fatalf("drag changed the collection")
	}

	e.LongPressEnd()
	if e.State() != Transforming {
		t.Fatalf("state after long press = %v, want transforming", e.State())
	}
}

func TestLongPressMissStaysPut(t *testing.T) {
	e, _, _ := newEditor(t)
	drawAcross(t, e)
	e.SelectTool(ToolMover)
	e.LongPressBegin(fyne.NewPos(0, 0))
	if e.State() == Dragging {
		t.Fatalf("long press on empty space started a drag")
	}
}

func TestPinchScales(t *testing.T) {
	e, _, _ := newEditor(t)
	s := drawAcross(t, e)
	e.SelectTool(ToolMover)

	e.PinchBegin(center)
	e.Pinch(2)
	e.Pinch(1.5)
	e.Pinch(-1)
	e.PinchEnd()
	e.Pinch(10)

	if got := s.Transform().Scale; got != geom.V3(3, 3, 3) {
		t.Fatalf("scale = %v, want (3,3,3)", got)
	}
}

func TestRotateAccumulates(t *testing.T) {
	e, _, _ := newEditor(t)
	s := drawAcross(t, e)
	e.SelectTool(ToolMover)

	e.RotateBegin(center)
	e.Rotate(math.Pi / 4)
	e.Rotate(math.Pi / 4)
	e.RotateEnd()

	got := s.Transform().Rotation.Rotate(geom.V3(1, 0, 0))
	want := geom.V3(0, -1, 0)
	if got.Distance(want) > 1e-5 {
		t.Fatalf("rotated x axis = %v, want %v", got, want)
	}
}

func TestMoverDoesNotDraw(t *testing.T) {
	e, m, _ := newEditor(t)
	e.SelectTool(ToolMover)
	e.PanBegin(center)
	e.Tick(geom.IdentityMat4())
	if len(m.LocalStrokes()) != 0 {
		t.Fatalf("mover created a stroke")
	}
}
