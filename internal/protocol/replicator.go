package protocol

import (
	"errors"
	"fmt"

	"SharedSketch/internal/state"
	"SharedSketch/internal/telemetry"

	"go.uber.org/zap"
)

// ErrNotConnected is returned by a Pipe with no peer on the other end.
// Edits made while alone are simply not replicated.
var ErrNotConnected = errors.New("protocol: no peer connected")

// Pipe is the outbound half of the peer connection. Send is fire and
// forget: delivery is best effort and nothing is retried.
type Pipe interface {
	Send(data []byte) error
}

// Replicator publishes local edits to the peer and applies the peer's
// edits to the manager.
type Replicator struct {
	manager *state.Manager
	pipe    Pipe
	log     *zap.Logger
	report  func(error)
}

// Option configures a Replicator.
type Option func(*Replicator)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Replicator) { r.log = log.Named("replicator") }
}

// WithErrorReporter receives local invariant violations, which are never
// sent to the peer.
func WithErrorReporter(fn func(error)) Option {
	return func(r *Replicator) { r.report = fn }
}

// NewReplicator returns a replicator for manager's strokes writing to pipe.
func NewReplicator(manager *state.Manager, pipe Pipe, opts ...Option) *Replicator {
	r := &Replicator{
		manager: manager,
		pipe:    pipe,
		log:     zap.NewNop(),
		report:  func(error) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Replicator) send(m Message) error {
	data, err := Encode(m)
	if err != nil {
		r.log.Error("encode", zap.String("kind", string(m.Kind())), zap.Error(err))
		telemetry.MessagesDropped.WithLabelValues("encode").Inc()
		r.report(err)
		return err
	}
	if r.pipe == nil {
		err = ErrNotConnected
	} else {
		err = r.pipe.Send(data)
	}
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			r.log.Debug("no peer", zap.String("kind", string(m.Kind())))
			telemetry.MessagesDropped.WithLabelValues("no_peer").Inc()
		} else {
			r.log.Warn("send", zap.String("kind", string(m.Kind())), zap.Error(err))
			telemetry.MessagesDropped.WithLabelValues("send").Inc()
		}
		return fmt.Errorf("send %s: %w", m.Kind(), err)
	}
	telemetry.MessagesSent.WithLabelValues(string(m.Kind())).Inc()
	if m.Kind() == KindSceneSnapshot {
		telemetry.SnapshotBytes.Observe(float64(len(data)))
	}
	return nil
}

// PublishAppend sends one newly committed point of a local stroke.
func (r *Replicator) PublishAppend(s *state.Stroke, smp state.Sample) {
	_ = r.send(StrokeAppend{
		OwnerID:     s.Owner(),
		StrokeID:    s.ID(),
		Style:       s.Style(),
		Color:       s.Color(),
		Width:       s.Width(),
		SourcePoint: smp.View,
		NewPoint:    smp.Point,
	})
}

// PublishDelete tells the peer a local stroke was erased.
func (r *Replicator) PublishDelete(s *state.Stroke) {
	_ = r.send(StrokeDelete{StrokeID: s.ID()})
}

// PublishDeleteAll tells the peer every local stroke is gone.
func (r *Replicator) PublishDeleteAll() {
	_ = r.send(DeleteAll{})
}

// PublishAck acknowledges the peer's snapshot.
func (r *Replicator) PublishAck() {
	_ = r.send(WorldMapReceived{})
}

// PublishSnapshot sends worldMap with every stroke this device holds that
// it does not own. The peer already has its own strokes and local strokes
// are replicated point by point as they are drawn.
func (r *Replicator) PublishSnapshot(worldMap []byte) error {
	return r.send(r.Snapshot(worldMap))
}

// Snapshot builds the scene snapshot PublishSnapshot would send.
func (r *Replicator) Snapshot(worldMap []byte) SceneSnapshot {
	snap := SceneSnapshot{WorldMap: worldMap}
	for _, s := range r.manager.RemoteStrokes() {
		if s.Owner() == r.manager.Self() {
			continue
		}
		snap.Strokes = append(snap.Strokes, RecordOf(s))
	}
	return snap
}

// MergeSnapshot adds the snapshot's strokes to the remote collection,
// skipping any this device owns or already has.
func (r *Replicator) MergeSnapshot(snap SceneSnapshot) int {
	merged := 0
	for _, rec := range snap.Strokes {
		if rec.OwnerID == r.manager.Self() {
			continue
		}
		added, err := r.manager.MergeRemote(rec.Build())
		if err != nil {
			r.log.Warn("merge snapshot stroke", zap.Stringer("id", rec.StrokeID), zap.Error(err))
			continue
		}
		if added {
			merged++
		}
	}
	return merged
}

// ErrUnroutable is returned by Apply for messages the session handles
// itself.
var ErrUnroutable = errors.New("protocol: message is handled by the session")

// Apply routes an inbound stroke message into the manager.
func (r *Replicator) Apply(m Message) error {
	switch v := m.(type) {
	case StrokeAppend:
		_, err := r.manager.ApplyRemoteAppend(state.RemoteAppend{
			Owner: v.OwnerID,
			ID:    v.StrokeID,
			Style: v.Style,
			Color: v.Color,
			Width: v.Width,
			Point: v.NewPoint,
			View:  v.SourcePoint,
		})
		return err
	case StrokeDelete:
		_, err := r.manager.DeleteRemote(v.StrokeID)
		return err
	case DeleteAll:
		r.manager.DeleteAllRemote()
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnroutable, m.Kind())
	}
}
