package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"SharedSketch/internal/edit"
	"SharedSketch/internal/geom"
	"SharedSketch/internal/protocol"
	"SharedSketch/internal/state"

	"fyne.io/fyne/v2"
	"github.com/google/uuid"
)

type pipe struct {
	frames [][]byte
}

func (p *pipe) Send(data []byte) error {
	p.frames = append(p.frames, data)
	return nil
}

func (p *pipe) kinds(t *testing.T) []protocol.Kind {
	t.Helper()
	out := make([]protocol.Kind, len(p.frames))
	for i, f := range p.frames {
		m, err := protocol.Decode(f)
		if err != nil {
			t.Fatalf("Decode frame %d: %v", i, err)
		}
		out[i] = m.Kind()
	}
	return out
}

// fakeWorld hands out whatever is pushed on result once Share starts a
// capture.
type fakeWorld struct {
	result  chan capture
	applied [][]byte
	resets  int
}

type capture struct {
	data []byte
	err  error
}

func newFakeWorld() *fakeWorld { return &fakeWorld{result: make(chan capture, 1)} }

func (w *fakeWorld) CaptureWorldMap(ctx context.Context) ([]byte, error) {
	select {
	case c := <-w.result:
		return c.data, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *fakeWorld) ApplyWorldMap(data []byte) error {
	w.applied = append(w.applied, data)
	return nil
}

func (w *fakeWorld) ResetTracking() { w.resets++ }

type fixedCamera struct{}

func (fixedCamera) CurrentPose() (geom.Mat4, bool) { return geom.IdentityMat4(), true }

// queue stands in for the Loop: posted closures wait until the test runs
// them with next.
type queue chan func()

func (q queue) Post(fn func()) bool {
	q <- fn
	return true
}

func (q queue) next(t *testing.T) {
	t.Helper()
	select {
	case fn := <-q:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("nothing posted")
	}
}

type observer struct {
	states  []State
	lost    int
	invited []string
	errs    []error
}

func (o *observer) SessionChanged(s State) { o.states = append(o.states, s) }
func (o *observer) PeerLost() { o.lost++ }
func (o *observer) Invited(peer string) { o.invited = append(o.invited, peer) }
func (o *observer) Error(err error) { o.errs = append(o.errs, err) }

type fixture struct {
	c     *Coordinator
	pipe  *pipe
	world *fakeWorld
	posts queue
	obs   *observer
}

func newFixture(t *testing.T, self string) *fixture {
	t.Helper()
	f := &fixture{
		pipe:  &pipe{},
		world: newFakeWorld(),
		posts: make(queue, 4),
		obs:   &observer{},
	}
	f.c = NewCoordinator(Deps{
		Self:     self,
		Pipe:     f.pipe,
		Camera:   fixedCamera{},
		WorldMap: f.world,
		Observer: f.obs,
		Poster:   f.posts,
		Edit:     edit.DefaultOptions(),
	})
	f.c.SetViewport(fyne.NewSize(200, 200))
	return f
}

func (f *fixture) draw() {
	f.c.PanBegin(fyne.NewPos(90, 100))
	f.c.Tick()
	f.c.PanChange(fyne.NewPos(110, 100))
	f.c.Tick()
	f.c.PanEnd()
}

func encode(t *testing.T, m protocol.Message) []byte {
	t.Helper()
	data, err := protocol.Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func TestShareRequiresOnePeer(t *testing.T) {
	f := newFixture(t, "me")
	if err := f.c.Share(context.Background()); !errors.Is(err, ErrNoPeer) {
		t.Fatalf("Share alone = %v, want ErrNoPeer", err)
	}
	f.c.PeerConnected("a")
	f.c.PeerConnected("b")
	if err := f.c.Share(context.Background()); !errors.Is(err, ErrNoPeer) {
		t.Fatalf("Share with two peers = %v, want ErrNoPeer", err)
	}
	if f.c.State() != Idle {
		t.Fatalf("state = %s", f.c.State())
	}
}

func TestShareAndAcknowledge(t *testing.T) {
	f := newFixture(t, "me")
	f.c.PeerConnected("peer")

	if err := f.c.Share(context.Background()); err != nil {
		t.Fatalf("Share: %v", err)
	}
	if f.c.State() != Capturing || f.c.Editor().Enabled() {
		t.Fatalf("after Share: state %s, editor enabled %v", f.c.State(), f.c.Editor().Enabled())
	}
	if err := f.c.Share(context.Background()); !errors.Is(err, ErrAlreadyShared) {
		t.Fatalf("second Share = %v, want ErrAlreadyShared", err)
	}

	f.world.result <- capture{data: []byte("map")}
	f.posts.next(t)
	if f.c.State() != Sharing || !f.c.Editor().Enabled() {
		t.Fatalf("after capture: state %s, editor enabled %v", f.c.State(), f.c.Editor().Enabled())
	}
	kinds := f.pipe.kinds(t)
	if len(kinds) != 1 || kinds[0] != protocol.KindSceneSnapshot {
		t.Fatalf("sent %v", kinds)
	}

	f.c.Receive("peer", encode(t, protocol.WorldMapReceived{}))
	if f.c.State() != Synchronized {
		t.Fatalf("after ack: %s", f.c.State())
	}
	want := []State{Capturing, Sharing, Synchronized}
	if len(f.obs.states) != len(want) {
		t.Fatalf("observed %v, want %v", f.obs.states, want)
	}
	for i := range want {
		if f.obs.states[i] != want[i] {
			t.Fatalf("observed %v, want %v", f.obs.states, want)
		}
	}
}

func TestCaptureFailureReturnsToIdle(t *testing.T) {
	f := newFixture(t, "me")
	f.c.PeerConnected("peer")
	if err := f.c.Share(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.world.result <- capture{err: errors.New("not enough features")}
	f.posts.next(t)
	if f.c.State() != Idle {
		t.Fatalf("state = %s", f.c.State())
	}
	if len(f.obs.errs) != 1 {
		t.Fatalf("errors = %v", f.obs.errs)
	}
	if len(f.pipe.frames) != 0 {
		t.Fatalf("sent %d frames after failed capture", len(f.pipe.frames))
	}
}

func TestResetDuringCaptureIgnoresLateResult(t *testing.T) {
	f := newFixture(t, "me")
	f.c.PeerConnected("peer")
	if err := f.c.Share(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.c.Reset()
	if f.c.State() != Idle {
		t.Fatalf("state = %s", f.c.State())
	}
	// Reset cancels the capture; the late completion must not move us.
	f.posts.next(t)
	if f.c.State() != Idle {
		t.Fatalf("state after stale capture = %s", f.c.State())
	}
	for _, k := range f.pipe.kinds(t) {
		if k == protocol.KindSceneSnapshot {
			t.Fatal("stale capture sent a snapshot")
		}
	}
}

func TestJoinFromSnapshot(t *testing.T) {
	f := newFixture(t, "me")
	f.c.PeerConnected("host")

	theirs := state.NewStroke("host", state.Pencil, state.Red, 0.01)
	theirs.Extend(geom.V3(0, 0, -0.2), geom.V3(0, 0, -1))
	theirs.Extend(geom.V3(0.05, 0, -0.2), geom.V3(0, 0, -1))
	snap := protocol.SceneSnapshot{
		WorldMap: []byte("map"),
		Strokes:  []protocol.StrokeRecord{protocol.RecordOf(theirs)},
	}
	f.c.Receive("host", encode(t, snap))

	if f.c.State() != Joined {
		t.Fatalf("state = %s", f.c.State())
	}
	if len(f.world.applied) != 1 || string(f.world.applied[0]) != "map" {
		t.Fatalf("applied %q", f.world.applied)
	}
	if len(f.obs.invited) != 1 || f.obs.invited[0] != "host" {
		t.Fatalf("invited %v", f.obs.invited)
	}
	if got := len(f.c.Manager().RemoteStrokes()); got != 1 {
		t.Fatalf("remote strokes = %d", got)
	}

	f.c.TrackingNormal()
	f.c.TrackingNormal()
	if f.c.State() != Synchronized {
		t.Fatalf("state = %s", f.c.State())
	}
	kinds := f.pipe.kinds(t)
	if len(kinds) != 1 || kinds[0] != protocol.KindWorldMapReceived {
		t.Fatalf("sent %v, want a single ack", kinds)
	}
}

func TestSnapshotOutsideIdleIsDropped(t *testing.T) {
	f := newFixture(t, "me")
	f.c.PeerConnected("peer")
	if err := f.c.Share(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.c.Receive("peer", encode(t, protocol.SceneSnapshot{WorldMap: []byte("theirs")}))
	if f.c.State() != Capturing {
		t.Fatalf("state = %s", f.c.State())
	}
	if len(f.world.applied) != 0 {
		t.Fatal("world map applied outside idle")
	}
}

func TestDisconnectBeforeExchangeIsSilent(t *testing.T) {
	f := newFixture(t, "me")
	f.c.PeerConnected("peer")
	f.c.PeerDisconnected("peer")
	if f.c.State() != Idle || f.obs.lost != 0 {
		t.Fatalf("state %s, lost %d", f.c.State(), f.obs.lost)
	}

	f.c.PeerConnected("peer")
	if err := f.c.Share(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.c.PeerDisconnected("peer")
	if f.c.State() != Idle || f.obs.lost != 0 || !f.c.Editor().Enabled() {
		t.Fatalf("disconnect while capturing: state %s, lost %d", f.c.State(), f.obs.lost)
	}
	f.posts.next(t)
	if f.c.State() != Idle {
		t.Fatalf("state after cancelled capture = %s", f.c.State())
	}
}

func TestPeerLostAndContinueSolo(t *testing.T) {
	f := newFixture(t, "me")
	f.c.PeerConnected("host")
	f.c.Receive("host", encode(t, protocol.SceneSnapshot{WorldMap: []byte("map")}))
	f.draw()
	f.c.PeerDisconnected("host")

	if f.c.State() != PeerLost || f.obs.lost != 1 {
		t.Fatalf("state %s, lost %d", f.c.State(), f.obs.lost)
	}
	if err := f.c.Share(context.Background()); !errors.Is(err, ErrPeerLost) {
		t.Fatalf("Share in PeerLost = %v", err)
	}
	if err := f.c.ContinueSolo(); err != nil {
		t.Fatal(err)
	}
	if f.c.State() != Idle {
		t.Fatalf("state = %s", f.c.State())
	}
	if got := len(f.c.Manager().LocalStrokes()); got != 1 {
		t.Fatalf("local strokes after ContinueSolo = %d", got)
	}
	if err := f.c.ContinueSolo(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("ContinueSolo from idle = %v", err)
	}
}

func TestCollaborationDisablesUndoRedoAndMover(t *testing.T) {
	f := newFixture(t, "me")
	if err := f.c.SelectTool(edit.ToolMover); err != nil {
		t.Fatal(err)
	}
	f.c.PeerConnected("host")
	f.c.Receive("host", encode(t, protocol.SceneSnapshot{WorldMap: []byte("map")}))

	if f.c.Editor().Tool() != edit.ToolPencil {
		t.Fatalf("tool = %s, want pencil after joining", f.c.Editor().Tool())
	}
	if err := f.c.SelectTool(edit.ToolMover); !errors.Is(err, ErrCollaborating) {
		t.Fatalf("SelectTool(mover) = %v", err)
	}
	if err := f.c.Undo(); !errors.Is(err, ErrCollaborating) {
		t.Fatalf("Undo = %v", err)
	}
	if err := f.c.Redo(); !errors.Is(err, ErrCollaborating) {
		t.Fatalf("Redo = %v", err)
	}
	if err := f.c.SelectTool(edit.ToolEraser); err != nil {
		t.Fatalf("SelectTool(eraser) = %v", err)
	}
}

func TestUndoRedoWhenSolo(t *testing.T) {
	f := newFixture(t, "me")
	f.draw()
	if err := f.c.Undo(); err != nil {
		t.Fatal(err)
	}
	if len(f.c.Manager().LocalStrokes()) != 0 {
		t.Fatal("undo left the stroke")
	}
	if err := f.c.Redo(); err != nil {
		t.Fatal(err)
	}
	if len(f.c.Manager().LocalStrokes()) != 1 {
		t.Fatal("redo did not restore the stroke")
	}
}

func TestInboundStrokeTraffic(t *testing.T) {
	f := newFixture(t, "me")
	id := uuid.New()
	appendPoint := func(p geom.Vec3) []byte {
		return encode(t, protocol.StrokeAppend{
			OwnerID:     "X",
			StrokeID:    id,
			Style:       state.Pencil,
			Color:       state.Color{R: 1, A: 1},
			Width:       0.01,
			SourcePoint: geom.V3(0, 0, 0),
			NewPoint:    p,
		})
	}
	f.c.Receive("peer", appendPoint(geom.V3(0, 0, 0)))
	f.c.Receive("peer", appendPoint(geom.V3(0, 0, 1)))

	s, origin, ok := f.c.Manager().Lookup(state.Key{Owner: "X", ID: id})
	if !ok || origin != state.Remote {
		t.Fatalf("Lookup = %v %v", ok, origin)
	}
	if s.PointCount() != 2 || len(s.Vertices()) != geom.SegmentVertices {
		t.Fatalf("points %d vertices %d", s.PointCount(), len(s.Vertices()))
	}

	f.c.Receive("peer", []byte(`{"kind":"stroke-append","payload":{`))
	f.c.Receive("peer", encode(t, protocol.StrokeDelete{StrokeID: id}))
	if len(f.c.Manager().RemoteStrokes()) != 0 {
		t.Fatal("stroke-delete was not applied")
	}
}

func TestResetClearsEverything(t *testing.T) {
	f := newFixture(t, "me")
	f.c.PeerConnected("host")
	f.c.Receive("host", encode(t, protocol.StrokeAppend{
		OwnerID: "host", StrokeID: uuid.New(), Style: state.Marker,
		Color: state.Blue, Width: 0.01, NewPoint: geom.V3(0, 0, -0.2),
	}))
	f.draw()
	f.c.Reset()

	if n := len(f.c.Manager().All()); n != 0 {
		t.Fatalf("%d strokes after reset", n)
	}
	if f.world.resets != 1 {
		t.Fatalf("tracking resets = %d", f.world.resets)
	}
	kinds := f.pipe.kinds(t)
	if kinds[len(kinds)-1] != protocol.KindDeleteAll {
		t.Fatalf("last frame %s, want delete-all", kinds[len(kinds)-1])
	}
	if f.c.Manager().CanRedo() {
		t.Fatal("reset kept the undo stack")
	}
}
