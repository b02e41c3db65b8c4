package client

import (
	"mazeplay/anim"
	"mazeplay/protocol"
)

// FrameContext is what the render loop knows about the local player in one
// frame: which keys are held and where the avatar ended up.
type FrameContext struct {
	Intent    anim.Intent
	Position  protocol.Vec3
	Direction protocol.Quat
}
