// Package edit turns touch gestures into stroke edits: drawing, erasing
// and moving, scaling or rotating strokes this device owns.
package edit

import (
	"fmt"

	"SharedSketch/internal/geom"
	"SharedSketch/internal/state"

	"fyne.io/fyne/v2"
	"go.uber.org/zap"
)

// Tool is the active editing mode picked in the toolbar.
type Tool int

const (
	ToolPencil Tool = iota
	ToolMarker
	ToolEraser
	ToolMover
)

func (t Tool) String() string {
	switch t {
	case ToolPencil:
		return "pencil"
	case ToolMarker:
		return "marker"
	case ToolEraser:
		return "eraser"
	case ToolMover:
		return "mover"
	default:
		return fmt.Sprintf("Tool(%d)", int(t))
	}
}

// Draws reports whether the tool creates strokes.
func (t Tool) Draws() bool {
	return t == ToolPencil || t == ToolMarker
}

func (t Tool) style() state.Style {
	if t == ToolMarker {
		return state.Marker
	}
	return state.Pencil
}

// State is what the editor is doing right now.
type State int

const (
	Idle State = iota
	Drawing
	Erasing
	Transforming
	Dragging
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Drawing:
		return "drawing"
	case Erasing:
		return "erasing"
	case Transforming:
		return "transforming"
	case Dragging:
		return "dragging"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Publisher forwards local edits to the peer.
type Publisher interface {
	PublishAppend(s *state.Stroke, sample state.Sample)
	PublishDelete(s *state.Stroke)
}

// PoseSource yields the latest camera pose; ok is false while tracking is
// unavailable.
type PoseSource interface {
	CurrentPose() (geom.Mat4, bool)
}

// Options tunes projection and picking.
type Options struct {
	Lens geom.Lens
	// Distance in front of the camera at which touches are placed.
	Distance float32
	// MinSegmentLength is the distance a new point must move away from the
	// last committed point before it is added.
	MinSegmentLength float32
	// HitMargin pads stroke bounds when picking.
	HitMargin float32
}

// DefaultOptions matches a handheld device.
func DefaultOptions() Options {
	return Options{
		Lens:             geom.DefaultLens(),
		Distance:         geom.DefaultDistance,
		MinSegmentLength: 0.002,
		HitMargin:        0.01,
	}
}

type nopPublisher struct{}

func (nopPublisher) PublishAppend(*state.Stroke, state.Sample) {}
func (nopPublisher) PublishDelete(*state.Stroke) {}

// Editor is the local edit state machine. Touch positions are in screen
// points relative to the viewport set with SetViewport. Like the Manager it
// edits, Editor must only be used from the session goroutine.
type Editor struct {
	manager *state.Manager
	pub     Publisher
	camera  PoseSource
	opts    Options
	log     *zap.Logger

	viewport fyne.Size
	tool     Tool
	settings state.Settings
	disabled bool

	// drawing
	drawing   bool
	touch     *fyne.Position
	lastPoint *geom.Vec3
	stroke    *state.Stroke

	// dragging
	dragging   bool
	dragTarget *state.Stroke
	dragTouch  fyne.Position
	dragDepth  float32

	pinchTarget *state.Stroke

	rotateTarget *state.Stroke
	rotateStart  geom.Quat
	rotateAxis   geom.Vec3
	rotateAngle  float32
}

// New returns an editor drawing into manager.
func New(manager *state.Manager, pub Publisher, camera PoseSource, opts Options, log *zap.Logger) *Editor {
	if pub == nil {
		pub = nopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Editor{
		manager:  manager,
		pub:      pub,
		camera:   camera,
		opts:     opts,
		log:      log.Named("edit"),
		viewport: fyne.NewSize(1, 1),
		settings: state.DefaultSettings(),
	}
}

// SetViewport sets the size touches are normalised against.
func (e *Editor) SetViewport(size fyne.Size) {
	if size.Width > 0 && size.Height > 0 {
		e.viewport = size
	}
}

// State reports the current edit state. Outside of a gesture it reflects
// the selected tool.
func (e *Editor) State() State {
	switch {
	case e.dragging:
		return Dragging
	case e.drawing:
		return Drawing
	case e.tool == ToolEraser:
		return Erasing
	case e.tool == ToolMover:
		return Transforming
	default:
		return Idle
	}
}

func (e *Editor) Tool() Tool { return e.tool }
func (e *Editor) Settings() state.Settings { return e.settings }

// Stroke is the stroke most recently drawn through this editor.
func (e *Editor) Stroke() *state.Stroke { return e.stroke }

// SelectTool switches mode. Leaving a drawing tool cancels any stroke in
// progress and leaving the mover drops its selections.
func (e *Editor) SelectTool(t Tool) {
	if !t.Draws() {
		e.endDrawing()
	}
	if t != ToolMover {
		e.LongPressEnd()
		e.PinchEnd()
		e.RotateEnd()
	}
	e.tool = t
	if t.Draws() {
		e.settings.Style = t.style()
	}
	e.log.Debug("tool selected", zap.Stringer("tool", t))
}

func (e *Editor) SetColor(c state.Color) { e.settings.Color = c }

func (e *Editor) SetWidthClass(w state.WidthClass) { e.settings.Width = w }

// SetEnabled turns drawing on or off. Disabling ends any stroke in progress.
func (e *Editor) SetEnabled(enabled bool) {
	e.disabled = !enabled
	if !enabled {
		e.endDrawing()
	}
}

func (e *Editor) Enabled() bool { return !e.disabled }

// Reset drops all gesture state and forgets the last stroke.
func (e *Editor) Reset() {
	e.endDrawing()
	e.LongPressEnd()
	e.PinchEnd()
	e.RotateEnd()
	e.stroke = nil
}

// Forget drops any reference to s, typically because it was removed from
// the scene.
func (e *Editor) Forget(s *state.Stroke) {
	if s == nil {
		return
	}
	if e.stroke == s {
		e.endDrawing()
		e.stroke = nil
	}
	if e.dragTarget == s {
		e.LongPressEnd()
	}
	if e.pinchTarget == s {
		e.PinchEnd()
	}
	if e.rotateTarget == s {
		e.RotateEnd()
	}
}

func (e *Editor) normalise(p fyne.Position) fyne.Position {
	return fyne.NewPos(p.X/e.viewport.Width, p.Y/e.viewport.Height)
}

// PanBegin starts a stroke with the current settings.
func (e *Editor) PanBegin(p fyne.Position) {
	if e.disabled || !e.tool.Draws() || e.dragging {
		return
	}
	e.endDrawing()
	s := state.NewStroke(e.manager.Self(), e.settings.Style, e.settings.Color, e.settings.Width.Width())
	if err := e.manager.Add(s); err != nil {
		e.log.Error("start stroke", zap.Error(err))
		return
	}
	e.stroke = s
	e.drawing = true
	e.touch = &p
	e.lastPoint = nil
}

// PanChange records the latest touch; the point is committed on Tick.
func (e *Editor) PanChange(p fyne.Position) {
	if e.drawing {
		e.touch = &p
	}
}

// PanEnd finishes the stroke. It stays current.
func (e *Editor) PanEnd() {
	e.endDrawing()
}

func (e *Editor) endDrawing() {
	if e.drawing && e.stroke != nil && e.stroke.PointCount() == 0 {
		e.manager.Discard(e.stroke.ID())
		e.stroke = nil
	}
	e.drawing = false
	e.touch = nil
	e.lastPoint = nil
}

// Tick runs once per rendered frame with the frame's camera pose.
func (e *Editor) Tick(pose geom.Mat4) {
	if e.dragging {
		e.tickDrag(pose)
	}
	if e.drawing {
		e.tickDraw(pose)
	}
}

func (e *Editor) tickDraw(pose geom.Mat4) {
	if e.touch == nil || e.stroke == nil {
		return
	}
	p, err := geom.ProjectTouch(e.normalise(*e.touch), pose, e.opts.Lens, e.opts.Distance)
	if err != nil {
		e.log.Debug("skip frame", zap.Error(err))
		return
	}
	if e.lastPoint != nil && p.Distance(*e.lastPoint) <= e.opts.MinSegmentLength {
		return
	}
	view := geom.ViewVector(pose)
	if err := e.manager.Extend(e.stroke, p, view); err != nil {
		e.log.Warn("extend stroke", zap.Stringer("id", e.stroke.ID()), zap.Error(err))
		e.endDrawing()
		return
	}
	e.lastPoint = &p
	e.pub.PublishAppend(e.stroke, state.Sample{Point: p, View: view})
}

// hit returns the nearest local stroke under the screen point p.
func (e *Editor) hit(p fyne.Position) (*state.Stroke, geom.Mat4, bool) {
	if e.camera == nil {
		return nil, geom.Mat4{}, false
	}
	pose, ok := e.camera.CurrentPose()
	if !ok {
		return nil, geom.Mat4{}, false
	}
	ray, err := geom.PickRay(e.normalise(p), pose, e.opts.Lens)
	if err != nil {
		e.log.Debug("pick", zap.Error(err))
		return nil, geom.Mat4{}, false
	}

	var (
		best  *state.Stroke
		bestT float32
	)
	for _, s := range e.manager.LocalStrokes() {
		b, ok := s.WorldBounds()
		if !ok {
			continue
		}
		t, ok := ray.IntersectAABB(b.Expand(e.opts.HitMargin))
		if ok && (best == nil || t < bestT) {
			best, bestT = s, t
		}
	}
	return best, pose, best != nil
}

// Tap erases the local stroke under p when the eraser is active.
func (e *Editor) Tap(p fyne.Position) {
	if e.tool != ToolEraser || e.disabled {
		return
	}
	s, _, ok := e.hit(p)
	if !ok {
		return
	}
	if _, err := e.manager.Delete(s.ID()); err != nil {
		e.log.Warn("erase", zap.Error(err))
		return
	}
	e.Forget(s)
	e.pub.PublishDelete(s)
}

// LongPressBegin picks up the local stroke under p for dragging.
func (e *Editor) LongPressBegin(p fyne.Position) {
	if e.tool != ToolMover {
		return
	}
	s, pose, ok := e.hit(p)
	if !ok {
		return
	}
	_, depth, visible := geom.ProjectToScreen(s.Transform().Position, pose, e.opts.Lens)
	if !visible {
		return
	}
	e.dragging = true
	e.dragTarget = s
	e.dragTouch = p
	e.dragDepth = depth
}

// LongPressChange records where the dragged stroke should follow.
func (e *Editor) LongPressChange(p fyne.Position) {
	if e.dragging {
		e.dragTouch = p
	}
}

// LongPressEnd drops the dragged stroke where it is.
func (e *Editor) LongPressEnd() {
	e.dragging = false
	e.dragTarget = nil
	e.dragDepth = 0
}

func (e *Editor) tickDrag(pose geom.Mat4) {
	if e.dragTarget == nil {
		return
	}
	pos, err := geom.UnprojectAtDepth(e.normalise(e.dragTouch), pose, e.opts.Lens, e.dragDepth)
	if err != nil {
		e.log.Debug("skip drag frame", zap.Error(err))
		return
	}
	if err := e.manager.Transform(e.dragTarget, state.TransformUpdate{Position: &pos}); err != nil {
		e.log.Warn("drag", zap.Error(err))
		e.LongPressEnd()
	}
}

// PinchBegin selects the local stroke under p for scaling.
func (e *Editor) PinchBegin(p fyne.Position) {
	if e.tool != ToolMover {
		return
	}
	if s, _, ok := e.hit(p); ok {
		e.pinchTarget = s
	}
}

// Pinch multiplies the selection's scale by factor.
func (e *Editor) Pinch(factor float32) {
	if e.pinchTarget == nil || !(factor > 0) || factor > 1e6 {
		return
	}
	scale := e.pinchTarget.Transform().Scale.Mul(factor)
	if err := e.manager.Transform(e.pinchTarget, state.TransformUpdate{Scale: &scale}); err != nil {
		e.log.Warn("scale", zap.Error(err))
		e.PinchEnd()
	}
}

func (e *Editor) PinchEnd() {
	e.pinchTarget = nil
}

// RotateBegin selects the local stroke under p and fixes the rotation axis
// to the camera's view direction expressed in the stroke's frame.
func (e *Editor) RotateBegin(p fyne.Position) {
	if e.tool != ToolMover {
		return
	}
	s, pose, ok := e.hit(p)
	if !ok {
		return
	}
	e.rotateTarget = s
	e.rotateStart = s.Transform().Rotation
	e.rotateAxis = e.rotateStart.Conjugate().Rotate(geom.CameraForward(pose))
	e.rotateAngle = 0
}

// Rotate turns the selection by delta radians more.
func (e *Editor) Rotate(delta float32) {
	if e.rotateTarget == nil || delta != delta {
		return
	}
	e.rotateAngle += delta
	q := e.rotateStart.Mul(geom.QuatFromAxisAngle(e.rotateAxis, e.rotateAngle)).Normalize()
	if err := e.manager.Transform(e.rotateTarget, state.TransformUpdate{Rotation: &q}); err != nil {
		e.log.Warn("rotate", zap.Error(err))
		e.RotateEnd()
	}
}

func (e *Editor) RotateEnd() {
	e.rotateTarget = nil
	e.rotateStart = geom.IdentityQuat()
	e.rotateAxis = geom.Vec3{}
	e.rotateAngle = 0
}
