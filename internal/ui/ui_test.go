package ui

import (
	"context"
	"errors"
	"testing"
	"time"

	"SharedSketch/internal/edit"
	"SharedSketch/internal/geom"
	"SharedSketch/internal/session"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/test"
)

func near(a, b float32) bool {
	d := a - b
	return d < 1e-5 && d > -1e-5
}

func TestCameraKeys(t *testing.T) {
	c := NewCamera()
	if !c.Key(fyne.KeyW) {
		t.Fatal("W not handled")
	}
	if c.Key(fyne.KeyZ) {
		t.Fatal("Z handled")
	}
	pose, ok := c.CurrentPose()
	if !ok {
		t.Fatal("tracking limited")
	}
	if p := geom.CameraPosition(pose); !near(p.Z, -moveStep) || !near(p.X, 0) {
		t.Fatalf("position after W = %v", p)
	}

	c.Key(fyne.KeyLeft)
	if f := geom.CameraForward(c.pose()); f.X >= 0 {
		t.Fatalf("forward after turning left = %v", f)
	}
	c.ResetTracking()
	if p := geom.CameraPosition(c.pose()); p != (geom.Vec3{}) {
		t.Fatalf("position after reset = %v", p)
	}
}

func TestCameraWorldMap(t *testing.T) {
	host := NewCamera()
	host.Move(0.1, 0, 0)
	data, err := host.CaptureWorldMap(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	now := time.Unix(1000, 0)
	joiner := NewCamera()
	joiner.now = func() time.Time { return now }
	if err := joiner.ApplyWorldMap(data); err != nil {
		t.Fatal(err)
	}
	if joiner.TrackingNormal() {
		t.Fatal("tracking normal right after applying a world map")
	}
	if _, ok := joiner.CurrentPose(); ok {
		t.Fatal("pose available while relocalising")
	}
	now = now.Add(relocalizeTime)
	if !joiner.TrackingNormal() {
		t.Fatal("tracking still limited")
	}
	if p := geom.CameraPosition(joiner.pose()); !near(p.X, 0.1) {
		t.Fatalf("joined position = %v", p)
	}

	if err := joiner.ApplyWorldMap([]byte(`{"position":`)); err == nil {
		t.Fatal("accepted a truncated world map")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := host.CaptureWorldMap(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled capture = %v", err)
	}
}

func newWiredBoard(t *testing.T) (*Board, *session.Coordinator) {
	t.Helper()
	test.NewTempApp(t)

	cam := NewCamera()
	var coord *session.Coordinator
	board := NewBoard(cam, geom.DefaultLens(), func(fn func(*session.Coordinator)) { fn(coord) })
	coord = session.NewCoordinator(session.Deps{
		Self:     "me",
		Camera:   cam,
		WorldMap: cam,
		Sink:     board,
		Edit:     edit.DefaultOptions(),
	})
	coord.SetViewport(fyne.NewSize(200, 200))
	return board, coord
}

func mouse(x, y float32, button desktop.MouseButton) *desktop.MouseEvent {
	return &desktop.MouseEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(x, y)}, Button: button}
}

func TestBoardDrawsThroughSession(t *testing.T) {
	board, coord := newWiredBoard(t)

	board.MouseDown(mouse(90, 100, desktop.MouseButtonPrimary))
	coord.Tick()
	board.Dragged(&fyne.DragEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(110, 100)}})
	coord.Tick()
	board.MouseUp(mouse(110, 100, desktop.MouseButtonPrimary))

	if board.Len() != 1 {
		t.Fatalf("board shows %d strokes", board.Len())
	}
	if n := len(coord.Manager().LocalStrokes()); n != 1 {
		t.Fatalf("manager holds %d strokes", n)
	}

	if err := coord.SelectTool(edit.ToolEraser); err != nil {
		t.Fatal(err)
	}
	board.Tapped(&fyne.PointEvent{Position: fyne.NewPos(100, 100)})
	if board.Len() != 0 {
		t.Fatalf("board shows %d strokes after erasing", board.Len())
	}
}

func TestBoardClearsByOrigin(t *testing.T) {
	board, coord := newWiredBoard(t)

	board.MouseDown(mouse(90, 100, desktop.MouseButtonPrimary))
	coord.Tick()
	board.Dragged(&fyne.DragEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(110, 100)}})
	coord.Tick()
	board.MouseUp(mouse(110, 100, desktop.MouseButtonPrimary))

	coord.Manager().DeleteAllRemote()
	if board.Len() != 1 {
		t.Fatal("clearing remote strokes removed a local one")
	}
	coord.DeleteAll()
	if board.Len() != 0 {
		t.Fatalf("board shows %d strokes after delete all", board.Len())
	}
}

func TestBoardRendersVisibleStrokes(t *testing.T) {
	board, coord := newWiredBoard(t)
	w := test.NewWindow(board)
	defer w.Close()
	w.Resize(fyne.NewSize(200, 200))

	board.MouseDown(mouse(90, 100, desktop.MouseButtonPrimary))
	coord.Tick()
	board.Dragged(&fyne.DragEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(110, 100)}})
	coord.Tick()
	board.MouseUp(mouse(110, 100, desktop.MouseButtonPrimary))

	r := test.WidgetRenderer(board)
	r.Refresh()
	if got := len(r.Objects()); got != 2 {
		t.Fatalf("renderer has %d objects, want background and one segment", got)
	}
}
