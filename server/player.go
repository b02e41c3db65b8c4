package server

import (
	"time"
)

// Conn is the outbound side of a client connection. Send must not block.
type Conn interface {
	Send([]byte) error
	Close() error
}

// member is a joined session and the connection its events go to.
// The replicated record itself lives in RoomState.
type member struct {
	SessionID string
	JoinedAt  time.Time

	Conn Conn
}
