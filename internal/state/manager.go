package state

import (
	"errors"
	"fmt"

	"SharedSketch/internal/geom"
	"SharedSketch/internal/telemetry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrOwnership is returned when a local operation is handed a foreign
	// stroke or a remote operation is handed one of ours.
	ErrOwnership = errors.New("state: stroke owner mismatch")
	// ErrNotFound is returned when no stroke matches the given id.
	ErrNotFound = errors.New("state: stroke not found")
)

// Origin tells local strokes (drawn on this device) from remote ones.
type Origin int

const (
	Local Origin = iota
	Remote
)

func (o Origin) String() string {
	if o == Remote {
		return "remote"
	}
	return "local"
}

// Sink receives every change to the scene, in order. Implementations
// typically forward to a renderer.
type Sink interface {
	StrokeAdded(s *Stroke, origin Origin)
	StrokeUpdated(s *Stroke, origin Origin)
	StrokeRemoved(s *Stroke, origin Origin)
	StrokesCleared(origin Origin)
}

// NopSink discards all notifications.
type NopSink struct{}

func (NopSink) StrokeAdded(*Stroke, Origin) {}
func (NopSink) StrokeUpdated(*Stroke, Origin) {}
func (NopSink) StrokeRemoved(*Stroke, Origin) {}
func (NopSink) StrokesCleared(Origin) {}

// RemoteAppend is one inbound point of a peer's stroke along with the
// metadata needed to start that stroke.
type RemoteAppend struct {
	Owner string
	ID    uuid.UUID
	Style Style
	Color Color
	Width float32
	Point geom.Vec3
	View  geom.Vec3
}

// Manager owns every stroke in the scene, split into the strokes this
// device drew and the strokes received from the peer. A stroke never moves
// between the two. Manager is not safe for concurrent use; all calls must
// come from the goroutine that owns the session.
type Manager struct {
	self   string
	local  collection
	remote collection
	sink   Sink
	log    *zap.Logger
}

// NewManager returns a manager for the device identified by self.
func NewManager(self string, sink Sink, log *zap.Logger) *Manager {
	if sink == nil {
		sink = NopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{self: self, sink: sink, log: log.Named("strokes")}
}

// Self is the owner id of this device.
func (m *Manager) Self() string { return m.self }

// Add registers a freshly created local stroke and makes it current.
func (m *Manager) Add(s *Stroke) error {
	if s.owner != m.self {
		return fmt.Errorf("add %s owned by %q: %w", s.id, s.owner, ErrOwnership)
	}
	m.local.strokes = append(m.local.strokes, s)
	m.local.current = s
	m.gauge(Local)
	m.sink.StrokeAdded(s, Local)
	return nil
}

// Extend commits a point to one of our strokes.
func (m *Manager) Extend(s *Stroke, point, view geom.Vec3) error {
	if s.owner != m.self {
		return fmt.Errorf("extend %s: %w", s.id, ErrOwnership)
	}
	if !m.local.contains(s) {
		return fmt.Errorf("extend %s: %w", s.id, ErrNotFound)
	}
	m.extend(s, point, view, Local)
	return nil
}

func (m *Manager) extend(s *Stroke, point, view geom.Vec3, origin Origin) {
	before := len(s.indices)
	s.Extend(point, view)
	if len(s.indices) > before {
		telemetry.Segments.WithLabelValues(origin.String()).Inc()
	}
	m.sink.StrokeUpdated(s, origin)
}

// Transform moves, rotates or scales one of our strokes.
func (m *Manager) Transform(s *Stroke, u TransformUpdate) error {
	if s.owner != m.self {
		return fmt.Errorf("transform %s: %w", s.id, ErrOwnership)
	}
	if !m.local.contains(s) {
		return fmt.Errorf("transform %s: %w", s.id, ErrNotFound)
	}
	s.SetTransform(u)
	m.sink.StrokeUpdated(s, Local)
	return nil
}

// Delete removes a local stroke and pushes it on the undo stack so it can
// be redone. When it was current, current falls back to the last stroke.
func (m *Manager) Delete(id uuid.UUID) (*Stroke, error) {
	s := m.local.remove(id)
	if s == nil {
		return nil, fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	m.local.undone = append(m.local.undone, s)
	m.gauge(Local)
	m.sink.StrokeRemoved(s, Local)
	return s, nil
}

// Discard drops a local stroke that never received a point. It does not
// touch the undo stack.
func (m *Manager) Discard(id uuid.UUID) {
	s := m.local.get(id)
	if s == nil || len(s.samples) > 0 {
		return
	}
	m.local.remove(id)
	m.gauge(Local)
	m.sink.StrokeRemoved(s, Local)
}

// UndoLast moves the most recent local stroke onto the undo stack.
func (m *Manager) UndoLast() (*Stroke, bool) {
	s := m.local.last()
	if s == nil {
		return nil, false
	}
	m.local.strokes = m.local.strokes[:len(m.local.strokes)-1]
	m.local.undone = append(m.local.undone, s)
	m.local.current = nil
	m.gauge(Local)
	m.sink.StrokeRemoved(s, Local)
	return s, true
}

// RedoLast restores the most recently undone stroke. It is the exact
// inverse of UndoLast.
func (m *Manager) RedoLast() (*Stroke, bool) {
	n := len(m.local.undone)
	if n == 0 {
		return nil, false
	}
	s := m.local.undone[n-1]
	m.local.undone = m.local.undone[:n-1]
	m.local.strokes = append(m.local.strokes, s)
	m.gauge(Local)
	m.sink.StrokeAdded(s, Local)
	return s, true
}

// CanUndo reports whether UndoLast has anything to do.
func (m *Manager) CanUndo() bool { return len(m.local.strokes) > 0 }

// CanRedo reports whether RedoLast has anything to do.
func (m *Manager) CanRedo() bool { return len(m.local.undone) > 0 }

// DeleteAll clears every local stroke and the undo stack.
func (m *Manager) DeleteAll() {
	m.local.clear()
	m.gauge(Local)
	m.sink.StrokesCleared(Local)
}

// Current is the local stroke being drawn or last drawn, if any.
func (m *Manager) Current() *Stroke { return m.local.current }

// LocalStrokes returns the local strokes in drawing order.
func (m *Manager) LocalStrokes() []*Stroke { return m.local.snapshot() }

// ApplyRemoteAppend adds a peer's point. A point for the current remote
// stroke extends it; any other id finalises the current remote stroke and
// continues (or starts) the stroke it names.
func (m *Manager) ApplyRemoteAppend(a RemoteAppend) (*Stroke, error) {
	if a.Owner == m.self {
		return nil, fmt.Errorf("remote append %s: %w", a.ID, ErrOwnership)
	}
	s := m.remote.current
	if s == nil || s.id != a.ID || s.owner != a.Owner {
		s = m.remoteStroke(a.Owner, a.ID)
		if s == nil {
			s = NewStrokeWithID(a.ID, a.Owner, a.Style, a.Color, a.Width)
			m.remote.strokes = append(m.remote.strokes, s)
			m.gauge(Remote)
			m.sink.StrokeAdded(s, Remote)
			m.log.Debug("remote stroke started", zap.Stringer("id", a.ID), zap.Stringer("style", a.Style))
		}
		m.remote.current = s
	}
	m.extend(s, a.Point, a.View, Remote)
	return s, nil
}

func (m *Manager) remoteStroke(owner string, id uuid.UUID) *Stroke {
	s := m.remote.get(id)
	if s == nil || s.owner != owner {
		return nil
	}
	return s
}

// DeleteRemote removes a stroke the peer deleted.
func (m *Manager) DeleteRemote(id uuid.UUID) (*Stroke, error) {
	s := m.remote.remove(id)
	if s == nil {
		return nil, fmt.Errorf("delete remote %s: %w", id, ErrNotFound)
	}
	m.gauge(Remote)
	m.sink.StrokeRemoved(s, Remote)
	return s, nil
}

// DeleteAllRemote clears every stroke received from the peer.
func (m *Manager) DeleteAllRemote() {
	m.remote.clear()
	m.gauge(Remote)
	m.sink.StrokesCleared(Remote)
}

// MergeRemote adds a complete stroke from a scene snapshot. It reports
// false when the stroke is already known.
func (m *Manager) MergeRemote(s *Stroke) (bool, error) {
	if s.owner == m.self {
		return false, fmt.Errorf("merge %s: %w", s.id, ErrOwnership)
	}
	if m.remoteStroke(s.owner, s.id) != nil {
		return false, nil
	}
	m.remote.strokes = append(m.remote.strokes, s)
	m.gauge(Remote)
	m.sink.StrokeAdded(s, Remote)
	return true, nil
}

// CurrentRemote is the remote stroke most recently extended.
func (m *Manager) CurrentRemote() *Stroke { return m.remote.current }

// RemoteStrokes returns the remote strokes in arrival order.
func (m *Manager) RemoteStrokes() []*Stroke { return m.remote.snapshot() }

// Lookup finds a stroke by its full key in either collection.
func (m *Manager) Lookup(k Key) (*Stroke, Origin, bool) {
	if k.Owner == m.self {
		if s := m.local.get(k.ID); s != nil {
			return s, Local, true
		}
		return nil, Local, false
	}
	if s := m.remoteStroke(k.Owner, k.ID); s != nil {
		return s, Remote, true
	}
	return nil, Remote, false
}

// All returns local strokes followed by remote ones.
func (m *Manager) All() []*Stroke {
	out := make([]*Stroke, 0, len(m.local.strokes)+len(m.remote.strokes))
	out = append(out, m.local.strokes...)
	return append(out, m.remote.strokes...)
}

func (m *Manager) gauge(o Origin) {
	n := len(m.local.strokes)
	if o == Remote {
		n = len(m.remote.strokes)
	}
	telemetry.Strokes.WithLabelValues(o.String()).Set(float64(n))
}
