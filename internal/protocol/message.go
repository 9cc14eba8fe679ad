// Package protocol defines the messages exchanged by two sketching devices
// and the Replicator that maps them onto the stroke manager.
package protocol

import (
	"SharedSketch/internal/geom"
	"SharedSketch/internal/state"

	"github.com/google/uuid"
)

// Kind tags the payload of an Envelope.
type Kind string

const (
	KindSceneSnapshot    Kind = "scene-snapshot"
	KindStrokeAppend     Kind = "stroke-append"
	KindStrokeDelete     Kind = "stroke-delete"
	KindDeleteAll        Kind = "delete-all"
	KindWorldMapReceived Kind = "world-map-received"
)

// Message is any payload that can be sent to the peer.
type Message interface {
	Kind() Kind
}

// StrokeAppend carries one new centre point of the sender's stroke, with
// enough metadata for the receiver to start the stroke if it is new.
// SourcePoint is the camera view vector the point was sampled with.
type StrokeAppend struct {
	OwnerID     string      `json:"ownerId"`
	StrokeID    uuid.UUID   `json:"strokeId"`
	Style       state.Style `json:"style"`
	Color       state.Color `json:"color"`
	Width       float32     `json:"width"`
	SourcePoint geom.Vec3   `json:"sourcePoint"`
	NewPoint    geom.Vec3   `json:"newPoint"`
}

func (StrokeAppend) Kind() Kind { return KindStrokeAppend }

// StrokeDelete removes one of the sender's strokes.
type StrokeDelete struct {
	StrokeID uuid.UUID `json:"strokeId"`
}

func (StrokeDelete) Kind() Kind { return KindStrokeDelete }

// DeleteAll removes every stroke the sender owns.
type DeleteAll struct{}

func (DeleteAll) Kind() Kind { return KindDeleteAll }

// WorldMapReceived acknowledges a scene snapshot once the receiver's
// tracking has relocalised against it.
type WorldMapReceived struct{}

func (WorldMapReceived) Kind() Kind { return KindWorldMapReceived }

// StrokeRecord is a complete stroke inside a snapshot.
type StrokeRecord struct {
	OwnerID  string         `json:"ownerId"`
	StrokeID uuid.UUID      `json:"strokeId"`
	Style    state.Style    `json:"style"`
	Color    state.Color    `json:"color"`
	Width    float32        `json:"width"`
	Samples  []state.Sample `json:"samples"`
}

// SceneSnapshot invites the peer into the sender's space: the opaque world
// map plus the strokes the sender holds that it does not own.
type SceneSnapshot struct {
	WorldMap []byte         `json:"worldMap"`
	Strokes  []StrokeRecord `json:"strokes,omitempty"`
}

func (SceneSnapshot) Kind() Kind { return KindSceneSnapshot }

// RecordOf captures s for a snapshot.
func RecordOf(s *state.Stroke) StrokeRecord {
	return StrokeRecord{
		OwnerID:  s.Owner(),
		StrokeID: s.ID(),
		Style:    s.Style(),
		Color:    s.Color(),
		Width:    s.Width(),
		Samples:  s.Samples(),
	}
}

// Build replays the record into a new stroke.
func (r StrokeRecord) Build() *state.Stroke {
	s := state.NewStrokeWithID(r.StrokeID, r.OwnerID, r.Style, r.Color, r.Width)
	for _, smp := range r.Samples {
		s.Extend(smp.Point, smp.View)
	}
	return s
}
