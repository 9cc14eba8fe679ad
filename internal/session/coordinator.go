// Package session coordinates one two-party sketching session: sharing the
// scene with the peer, the acknowledgement handshake, peer loss and reset.
// It is also the single entry point for UI events, which it forwards to
// the editor.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SharedSketch/internal/edit"
	"SharedSketch/internal/protocol"
	"SharedSketch/internal/state"
	"SharedSketch/internal/telemetry"

	"fyne.io/fyne/v2"
	"go.uber.org/zap"
)

var (
	ErrNoPeer            = errors.New("session: sharing needs exactly one connected peer")
	ErrAlreadyShared     = errors.New("session: scene already shared")
	ErrPeerLost          = errors.New("session: peer lost")
	ErrCollaborating     = errors.New("session: not available while collaborating")
	ErrInvalidTransition = errors.New("session: invalid state transition")
)

// State is the session lifecycle.
type State int

const (
	// Idle: no shared scene. Drawing is solo.
	Idle State = iota
	// Capturing: this device offered to share and is capturing its world
	// map. Drawing is disabled.
	Capturing
	// Sharing: the snapshot went out; waiting for the peer's ack.
	Sharing
	// Joined: the peer's snapshot was applied; the ack goes out once
	// tracking is normal.
	Joined
	// Synchronized: both devices share one reference frame.
	Synchronized
	// PeerLost: the peer disconnected after a snapshot exchange.
	PeerLost
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Sharing:
		return "sharing"
	case Joined:
		return "joined"
	case Synchronized:
		return "synchronized"
	case PeerLost:
		return "peer-lost"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var transitions = map[State][]State{
	Idle:         {Capturing, Joined},
	Capturing:    {Sharing, Idle},
	Sharing:      {Synchronized, PeerLost},
	Joined:       {Synchronized, PeerLost},
	Synchronized: {PeerLost},
	PeerLost:     {Idle},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// WorldMap is the AR tracking collaborator.
type WorldMap interface {
	CaptureWorldMap(ctx context.Context) ([]byte, error)
	ApplyWorldMap(data []byte) error
	ResetTracking()
}

// Observer is told about session changes that need the user's attention.
// Calls happen on the session goroutine.
type Observer interface {
	SessionChanged(s State)
	PeerLost()
	Invited(peer string)
	Error(err error)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) SessionChanged(State) {}
func (NopObserver) PeerLost() {}
func (NopObserver) Invited(string) {}
func (NopObserver) Error(error) {}

// Poster schedules work on the session goroutine; *Loop implements it.
type Poster interface {
	Post(fn func()) bool
}

// Deps are the collaborators a Coordinator is built from.
type Deps struct {
	Self     string
	Pipe     protocol.Pipe
	Camera   edit.PoseSource
	WorldMap WorldMap
	Sink     state.Sink
	Observer Observer
	Poster   Poster
	Edit     edit.Options
	Log      *zap.Logger
}

// Coordinator owns the manager, editor and replicator of one device and
// drives the session state machine. Every method must be called on the
// session goroutine, usually by posting to a Loop.
type Coordinator struct {
	state State
	epoch uint64
	abort context.CancelFunc
	peers map[string]struct{}

	manager    *state.Manager
	editor     *edit.Editor
	replicator *protocol.Replicator
	camera     edit.PoseSource
	worldMap   WorldMap
	observer   Observer
	poster     Poster
	log        *zap.Logger
}

// NewCoordinator wires a coordinator from d.
func NewCoordinator(d Deps) *Coordinator {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	observer := d.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	c := &Coordinator{
		peers:    make(map[string]struct{}),
		camera:   d.Camera,
		worldMap: d.WorldMap,
		observer: observer,
		poster:   d.Poster,
		log:      log.Named("session"),
	}
	c.manager = state.NewManager(d.Self, d.Sink, log)
	c.replicator = protocol.NewReplicator(c.manager, d.Pipe,
		protocol.WithLogger(log),
		protocol.WithErrorReporter(func(err error) { c.observer.Error(err) }),
	)
	c.editor = edit.New(c.manager, c.replicator, d.Camera, d.Edit, log)
	telemetry.SessionState.Set(float64(Idle))
	return c
}

func (c *Coordinator) State() State { return c.state }
func (c *Coordinator) Manager() *state.Manager { return c.manager }
func (c *Coordinator) Editor() *edit.Editor { return c.editor }
func (c *Coordinator) Replicator() *protocol.Replicator { return c.replicator }

// Peers returns how many peers are connected.
func (c *Coordinator) Peers() int { return len(c.peers) }

func (c *Coordinator) transition(to State) bool {
	from := c.state
	if from == to {
		return true
	}
	if !canTransition(from, to) {
		c.log.Error("refused transition", zap.Stringer("from", from), zap.Stringer("to", to))
		return false
	}
	c.enter(to)
	return true
}

func (c *Coordinator) enter(to State) {
	from := c.state
	c.state = to
	telemetry.SessionState.Set(float64(to))
	c.log.Info("session state", zap.Stringer("from", from), zap.Stringer("to", to))
	if c.collaborating() && c.editor.Tool() == edit.ToolMover {
		c.editor.SelectTool(edit.ToolPencil)
	}
	c.observer.SessionChanged(to)
}

func (c *Coordinator) collaborating() bool {
	switch c.state {
	case Capturing, Sharing, Joined, Synchronized:
		return true
	}
	return false
}

// Collaborating reports whether a shared session is active, during which
// undo, redo and the mover tool are unavailable.
func (c *Coordinator) Collaborating() bool { return c.collaborating() }

// PeerConnected records a new peer.
func (c *Coordinator) PeerConnected(peer string) {
	c.peers[peer] = struct{}{}
	c.log.Info("peer connected", zap.String("peer", peer), zap.Int("peers", len(c.peers)))
}

// PeerDisconnected forgets a peer. Losing the peer after a snapshot
// exchange is reported; before that it is silent.
func (c *Coordinator) PeerDisconnected(peer string) {
	delete(c.peers, peer)
	c.log.Info("peer disconnected", zap.String("peer", peer), zap.Stringer("state", c.state))
	switch c.state {
	case Capturing:
		c.stopCapture()
		c.editor.SetEnabled(true)
		c.transition(Idle)
	case Sharing, Joined, Synchronized:
		c.transition(PeerLost)
		c.observer.PeerLost()
	}
}

// Share captures the world map in the background and sends it, with the
// strokes this device holds from others, to the single connected peer.
// Drawing is disabled until the capture completes.
func (c *Coordinator) Share(ctx context.Context) error {
	switch {
	case c.state == PeerLost:
		return ErrPeerLost
	case c.state != Idle:
		return fmt.Errorf("share in state %s: %w", c.state, ErrAlreadyShared)
	case len(c.peers) != 1:
		return fmt.Errorf("share with %d peers: %w", len(c.peers), ErrNoPeer)
	}

	c.epoch++
	epoch := c.epoch
	captureCtx, cancel := context.WithCancel(ctx)
	c.abort = cancel
	c.editor.SetEnabled(false)
	c.transition(Capturing)

	start := time.Now()
	go func() {
		data, err := c.worldMap.CaptureWorldMap(captureCtx)
		telemetry.CaptureDuration.Observe(time.Since(start).Seconds())
		if !c.poster.Post(func() { c.finishShare(epoch, data, err) }) {
			cancel()
		}
	}()
	return nil
}

func (c *Coordinator) finishShare(epoch uint64, data []byte, err error) {
	if epoch != c.epoch || c.state != Capturing {
		c.log.Debug("stale world map capture", zap.Uint64("epoch", epoch), zap.Uint64("current", c.epoch))
		return
	}
	c.stopCapture()
	c.editor.SetEnabled(true)

	if err != nil {
		c.transition(Idle)
		c.observer.Error(fmt.Errorf("capture world map: %w", err))
		return
	}
	if err := c.replicator.PublishSnapshot(data); err != nil {
		c.transition(Idle)
		if !errors.Is(err, protocol.ErrProtocolInvariant) {
			c.observer.Error(fmt.Errorf("send snapshot: %w", err))
		}
		return
	}
	c.transition(Sharing)
}

func (c *Coordinator) stopCapture() {
	if c.abort != nil {
		c.abort()
		c.abort = nil
	}
}

// TrackingNormal is signalled by the AR collaborator whenever tracking is
// normal. After joining a shared scene, the first one acknowledges it.
func (c *Coordinator) TrackingNormal() {
	if c.state != Joined {
		return
	}
	c.replicator.PublishAck()
	c.transition(Synchronized)
}

// Receive handles one inbound frame from peer. Malformed frames are logged
// and dropped.
func (c *Coordinator) Receive(peer string, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		c.log.Warn("drop inbound frame", zap.String("peer", peer), zap.Int("bytes", len(data)), zap.Error(err))
		telemetry.MessagesDropped.WithLabelValues("malformed").Inc()
		return
	}
	telemetry.MessagesReceived.WithLabelValues(string(msg.Kind())).Inc()

	switch m := msg.(type) {
	case protocol.SceneSnapshot:
		telemetry.SnapshotBytes.Observe(float64(len(data)))
		c.joinScene(peer, m)
	case protocol.WorldMapReceived:
		if c.state != Sharing {
			c.log.Debug("unexpected ack", zap.Stringer("state", c.state))
			return
		}
		c.transition(Synchronized)
	default:
		if err := c.replicator.Apply(msg); err != nil {
			c.log.Debug("apply inbound", zap.String("kind", string(msg.Kind())), zap.Error(err))
		}
	}
}

func (c *Coordinator) joinScene(peer string, snap protocol.SceneSnapshot) {
	if c.state != Idle {
		c.log.Info("drop snapshot outside idle", zap.Stringer("state", c.state))
		telemetry.MessagesDropped.WithLabelValues("snapshot_state").Inc()
		return
	}
	if err := c.worldMap.ApplyWorldMap(snap.WorldMap); err != nil {
		c.observer.Error(fmt.Errorf("apply world map: %w", err))
		return
	}
	merged := c.replicator.MergeSnapshot(snap)
	c.log.Info("joined shared scene", zap.String("peer", peer), zap.Int("strokes", merged))
	c.transition(Joined)
	c.observer.Invited(peer)
}

// ContinueSolo leaves PeerLost keeping every stroke.
func (c *Coordinator) ContinueSolo() error {
	if c.state != PeerLost {
		return fmt.Errorf("continue solo from %s: %w", c.state, ErrInvalidTransition)
	}
	c.transition(Idle)
	return nil
}

// Reset abandons any pending share, deletes every stroke on both sides,
// resets tracking and returns to Idle.
func (c *Coordinator) Reset() {
	c.stopCapture()
	c.epoch++
	c.editor.Reset()
	c.editor.SetEnabled(true)
	c.manager.DeleteAll()
	c.manager.DeleteAllRemote()
	c.replicator.PublishDeleteAll()
	c.worldMap.ResetTracking()
	if c.state != Idle {
		c.enter(Idle)
	}
}

// Tick advances the editor with the current camera pose. Frames without
// tracking are skipped.
func (c *Coordinator) Tick() {
	if c.camera == nil {
		return
	}
	pose, ok := c.camera.CurrentPose()
	if !ok {
		return
	}
	c.editor.Tick(pose)
}

// SelectTool switches the editing tool. The mover is refused while
// collaborating because transforms are not replicated.
func (c *Coordinator) SelectTool(t edit.Tool) error {
	if t == edit.ToolMover && c.collaborating() {
		return ErrCollaborating
	}
	c.editor.SelectTool(t)
	return nil
}

func (c *Coordinator) SetColor(col state.Color) { c.editor.SetColor(col) }
func (c *Coordinator) SetWidthClass(w state.WidthClass) { c.editor.SetWidthClass(w) }
func (c *Coordinator) SetViewport(size fyne.Size) { c.editor.SetViewport(size) }
func (c *Coordinator) PanBegin(p fyne.Position) { c.editor.PanBegin(p) }
func (c *Coordinator) PanChange(p fyne.Position) { c.editor.PanChange(p) }
func (c *Coordinator) PanEnd() { c.editor.PanEnd() }
func (c *Coordinator) Tap(p fyne.Position) { c.editor.Tap(p) }
func (c *Coordinator) LongPressBegin(p fyne.Position) { c.editor.LongPressBegin(p) }
func (c *Coordinator) LongPressChange(p fyne.Position) { c.editor.LongPressChange(p) }
func (c *Coordinator) LongPressEnd() { c.editor.LongPressEnd() }
func (c *Coordinator) PinchBegin(p fyne.Position) { c.editor.PinchBegin(p) }
func (c *Coordinator) Pinch(factor float32) { c.editor.Pinch(factor) }
func (c *Coordinator) PinchEnd() { c.editor.PinchEnd() }
func (c *Coordinator) RotateBegin(p fyne.Position) { c.editor.RotateBegin(p) }
func (c *Coordinator) Rotate(delta float32) { c.editor.Rotate(delta) }
func (c *Coordinator) RotateEnd() { c.editor.RotateEnd() }

// Undo removes the last local stroke.
func (c *Coordinator) Undo() error {
	if c.collaborating() {
		return ErrCollaborating
	}
	if s, ok := c.manager.UndoLast(); ok {
		c.editor.Forget(s)
	}
	return nil
}

// Redo restores the last undone stroke.
func (c *Coordinator) Redo() error {
	if c.collaborating() {
		return ErrCollaborating
	}
	c.manager.RedoLast()
	return nil
}

// DeleteAll removes every local stroke here and on the peer.
func (c *Coordinator) DeleteAll() {
	c.editor.Reset()
	c.manager.DeleteAll()
	c.replicator.PublishDeleteAll()
}
