package protocol

import (
	"errors"
	"fmt"
	"math"

	"mazeplay/anim"
)

// ErrMalformed marks a message that could not be decoded or validated.
var ErrMalformed = errors.New("malformed message")

// Vec3 is a world position.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quat is an orientation quaternion.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// PlayerState is the replicated record for one session. The three fields
// are always replaced together. It doubles as the playerUpdate payload.
type PlayerState struct {
	Position  Vec3     `json:"position"`
	Direction Quat     `json:"direction"`
	Animation anim.Tag `json:"animation"`
}

// DefaultPlayerState is what a session starts with on join.
func DefaultPlayerState() PlayerState {
	return PlayerState{Animation: anim.Idle}
}

// Field is a bit set of PlayerState fields.
type Field uint8

const (
	FieldPosition Field = 1 << iota
	FieldDirection
	FieldAnimation
)

// Has reports whether f contains all bits of other.
func (f Field) Has(other Field) bool { return f&other == other }

// Diff returns the fields that differ between prev and next.
func Diff(prev, next PlayerState) Field {
	var f Field
	if prev.Position != next.Position {
		f |= FieldPosition
	}
	if prev.Direction != next.Direction {
		f |= FieldDirection
	}
	if prev.Animation != next.Animation {
		f |= FieldAnimation
	}
	return f
}

// wire shapes with pointers so missing fields can be told apart from zeros.
type (
	rawVec3 struct {
		X, Y, Z *float64
	}
	rawQuat struct {
		X, Y, Z, W *float64
	}
	rawUpdate struct {
		Position  *rawVec3 `json:"position"`
		Direction *rawQuat `json:"direction"`
		Animation *string  `json:"animation"`
	}
)

// DecodePlayerUpdate validates a playerUpdate envelope. Every numeric field
// and the animation are required.
func DecodePlayerUpdate(env Envelope) (PlayerState, error) {
	if env.T != MsgPlayerUpdate {
		return PlayerState{}, fmt.Errorf("%w: type %q is not %s", ErrMalformed, env.T, MsgPlayerUpdate)
	}
	raw, err := DecodePayload[rawUpdate](env)
	if err != nil {
		return PlayerState{}, err
	}
	if raw.Position == nil {
		return PlayerState{}, fmt.Errorf("%w: missing position", ErrMalformed)
	}
	if raw.Direction == nil {
		return PlayerState{}, fmt.Errorf("%w: missing direction", ErrMalformed)
	}
	if raw.Animation == nil {
		return PlayerState{}, fmt.Errorf("%w: missing animation", ErrMalformed)
	}

	var s PlayerState
	pos := []struct {
		name string
		src  *float64
		dst  *float64
	}{
		{"position.x", raw.Position.X, &s.Position.X},
		{"position.y", raw.Position.Y, &s.Position.Y},
		{"position.z", raw.Position.Z, &s.Position.Z},
		{"direction.x", raw.Direction.X, &s.Direction.X},
		{"direction.y", raw.Direction.Y, &s.Direction.Y},
		{"direction.z", raw.Direction.Z, &s.Direction.Z},
		{"direction.w", raw.Direction.W, &s.Direction.W},
	}
	for _, p := range pos {
		if p.src == nil {
			return PlayerState{}, fmt.Errorf("%w: missing %s", ErrMalformed, p.name)
		}
		if math.IsNaN(*p.src) || math.IsInf(*p.src, 0) {
			return PlayerState{}, fmt.Errorf("%w: %s is not finite", ErrMalformed, p.name)
		}
		*p.dst = *p.src
	}

	tag, err := anim.Parse(*raw.Animation)
	if err != nil {
		return PlayerState{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	s.Animation = tag
	return s, nil
}
