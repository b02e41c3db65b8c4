package server

import (
	"errors"
	"fmt"

	"mazeplay/protocol"
)

// ErrSessionExists is returned when a session id joins twice.
var ErrSessionExists = errors.New("session already joined")

// EventKind says what happened to a session's record.
type EventKind int

const (
	EventAdd EventKind = iota + 1
	EventChange
	EventRemove
)

func (k EventKind) String() string {
	switch k {
	case EventAdd:
		return protocol.MsgPlayerAdd
	case EventChange:
		return protocol.MsgPlayerChange
	case EventRemove:
		return protocol.MsgPlayerRemove
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one mutation of RoomState, in the order it was applied.
type Event struct {
	Kind      EventKind
	SessionID string
	State     protocol.PlayerState
}

// Encode renders the event as a wire envelope.
func (e Event) Encode() ([]byte, error) {
	ev := protocol.PlayerEvent{SessionID: e.SessionID}
	if e.Kind != EventRemove {
		st := e.State
		ev.State = &st
	}
	return protocol.Encode(e.Kind.String(), ev)
}

// RoomState is the authoritative session → player map of one room.
// It is owned by the room goroutine and is not safe for concurrent use.
type RoomState struct {
	players map[string]protocol.PlayerState
}

// NewRoomState returns an empty state.
func NewRoomState() *RoomState {
	return &RoomState{players: make(map[string]protocol.PlayerState)}
}

// Join creates the default record for id.
func (s *RoomState) Join(id string) (protocol.PlayerState, Event, error) {
	if _, ok := s.players[id]; ok {
		return protocol.PlayerState{}, Event{}, fmt.Errorf("join %s: %w", id, ErrSessionExists)
	}
	st := protocol.DefaultPlayerState()
	s.players[id] = st
	return st, Event{Kind: EventAdd, SessionID: id, State: st}, nil
}

// ApplyUpdate replaces the whole record of id. It reports false and changes
// nothing when id is not joined.
func (s *RoomState) ApplyUpdate(id string, next protocol.PlayerState) (Event, bool) {
	if _, ok := s.players[id]; !ok {
		return Event{}, false
	}
	s.players[id] = next
	return Event{Kind: EventChange, SessionID: id, State: next}, true
}

// Leave drops id. It reports false when id was not joined.
func (s *RoomState) Leave(id string) (Event, bool) {
	if _, ok := s.players[id]; !ok {
		return Event{}, false
	}
	delete(s.players, id)
	return Event{Kind: EventRemove, SessionID: id}, true
}

// Get returns the record for id.
func (s *RoomState) Get(id string) (protocol.PlayerState, bool) {
	st, ok := s.players[id]
	return st, ok
}

// Len is the number of joined sessions.
func (s *RoomState) Len() int { return len(s.players) }

// Snapshot copies the full state.
func (s *RoomState) Snapshot() map[string]protocol.PlayerState {
	out := make(map[string]protocol.PlayerState, len(s.players))
	for id, st := range s.players {
		out[id] = st
	}
	return out
}
