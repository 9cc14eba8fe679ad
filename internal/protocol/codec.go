package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"SharedSketch/internal/state"

	"github.com/google/uuid"
)

var (
	// ErrMalformedMessage is returned for inbound bytes that do not decode
	// into a valid message.
	ErrMalformedMessage = errors.New("protocol: malformed message")
	// ErrProtocolInvariant is returned when a local message cannot be
	// encoded. It points at a bug on this side, not the peer's.
	ErrProtocolInvariant = errors.New("protocol: local message violates protocol")
)

// Envelope is the frame on the wire.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode serialises m into an envelope.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrProtocolInvariant)
	}
	if err := validate(m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProtocolInvariant, m.Kind(), err)
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProtocolInvariant, m.Kind(), err)
	}
	data, err := json.Marshal(Envelope{Kind: m.Kind(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProtocolInvariant, m.Kind(), err)
	}
	return data, nil
}

// Decode parses one envelope.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var m Message
	switch env.Kind {
	case KindStrokeAppend:
		var v StrokeAppend
		if err := unmarshal(env, &v); err != nil {
			return nil, err
		}
		m = v
	case KindStrokeDelete:
		var v StrokeDelete
		if err := unmarshal(env, &v); err != nil {
			return nil, err
		}
		m = v
	case KindSceneSnapshot:
		var v SceneSnapshot
		if err := unmarshal(env, &v); err != nil {
			return nil, err
		}
		m = v
	case KindDeleteAll:
		m = DeleteAll{}
	case KindWorldMapReceived:
		m = WorldMapReceived{}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedMessage, env.Kind)
	}

	if err := validate(m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, env.Kind, err)
	}
	return m, nil
}

func unmarshal(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%w: %s without payload", ErrMalformedMessage, env.Kind)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedMessage, env.Kind, err)
	}
	return nil
}

func validate(m Message) error {
	switch v := m.(type) {
	case StrokeAppend:
		if err := checkStroke(v.OwnerID, v.StrokeID, v.Style, v.Width); err != nil {
			return err
		}
		if !v.NewPoint.IsFinite() || !v.SourcePoint.IsFinite() {
			return errors.New("non-finite point")
		}
	case StrokeDelete:
		if v.StrokeID == uuid.Nil {
			return errors.New("missing stroke id")
		}
	case SceneSnapshot:
		for i, r := range v.Strokes {
			if err := checkStroke(r.OwnerID, r.StrokeID, r.Style, r.Width); err != nil {
				return fmt.Errorf("stroke %d: %w", i, err)
			}
			for _, smp := range r.Samples {
				if !smp.Point.IsFinite() || !smp.View.IsFinite() {
					return fmt.Errorf("stroke %d: non-finite sample", i)
				}
			}
		}
	}
	return nil
}

func checkStroke(owner string, id uuid.UUID, style state.Style, width float32) error {
	switch {
	case owner == "":
		return errors.New("missing owner")
	case id == uuid.Nil:
		return errors.New("missing stroke id")
	case !style.Valid():
		return fmt.Errorf("unknown style %d", int(style))
	case !(width > 0) || math.IsInf(float64(width), 0):
		return fmt.Errorf("invalid width %v", width)
	}
	return nil
}
