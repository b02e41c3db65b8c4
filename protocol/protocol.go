package protocol

import (
	"encoding/json"
)

// Message types carried in Envelope.T.
const (
	MsgPlayerUpdate = "playerUpdate"
	MsgWelcome      = "welcome"
	MsgPlayerAdd    = "player-add"
	MsgPlayerChange = "player-change"
	MsgPlayerRemove = "player-remove"
	MsgError        = "error"
)

// Error codes sent in an Error message before the server closes the socket.
const (
	CodeBadRequest   = 4000
	CodeRoomNotFound = 4004
	CodeRoomFull     = 4009
	CodeRoomClosed   = 4010
)

// Envelope wraps every message on the socket.
type Envelope struct {
	T string          `json:"t"`
	P json.RawMessage `json:"p"` // raw payload bytes
}

// Welcome is the first message a joined client receives.
type Welcome struct {
	SessionID string                 `json:"sessionId"`
	Room      string                 `json:"room"`
	Players   map[string]PlayerState `json:"players"`
	Maze      MazeLayout             `json:"maze"`
}

// PlayerEvent is the payload of player-add, player-change and player-remove.
// State is nil for removals.
type PlayerEvent struct {
	SessionID string       `json:"sessionId"`
	State     *PlayerState `json:"state,omitempty"`
}

// Error is sent when a join fails.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
