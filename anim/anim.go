// Package anim selects the single animation an avatar plays from the
// player's movement intent.
package anim

import (
	"errors"
	"fmt"
)

// Tag names one of the avatar animations. The string value is what goes
// over the wire.
type Tag string

const (
	Idle     Tag = "idle"
	Walk     Tag = "walk"
	WalkBack Tag = "walkBack"
	Dance    Tag = "dance"
)

// ErrUnknownTag is returned for any animation name outside the closed set.
var ErrUnknownTag = errors.New("unknown animation")

// Tags lists every valid tag.
func Tags() []Tag {
	return []Tag{Idle, Walk, WalkBack, Dance}
}

// Valid reports whether t is one of the four known tags.
func (t Tag) Valid() bool {
	switch t {
	case Idle, Walk, WalkBack, Dance:
		return true
	}
	return false
}

// Parse converts a wire value to a Tag.
func Parse(s string) (Tag, error) {
	t := Tag(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTag, s)
	}
	return t, nil
}

// Intent is the movement intent sampled from held keys in one frame.
type Intent struct {
	Forward  bool
	Backward bool
	Left     bool
	Right    bool
	Dance    bool
}

// Any reports whether any key is held.
func (in Intent) Any() bool {
	return in.Forward || in.Backward || in.Left || in.Right || in.Dance
}

// Resolve picks the target animation. Dance wins over everything, then
// backward, then any forward or strafe movement.
func Resolve(in Intent) Tag {
	switch {
	case in.Dance:
		return Dance
	case in.Backward:
		return WalkBack
	case in.Forward || in.Left || in.Right:
		return Walk
	default:
		return Idle
	}
}
