package client

import (
	"fmt"
	"sync"

	"mazeplay/anim"
	"mazeplay/maze"
	"mazeplay/protocol"
)

// Avatar is the rendered stand-in for a remote player.
type Avatar interface {
	SetPosition(protocol.Vec3)
	SetDirection(protocol.Quat)
	Clips() anim.Clips
	Dispose()
}

// AvatarFactory builds the avatar of a newly seen remote session. Returning
// nil leaves that session without an avatar; its state is still mirrored.
type AvatarFactory func(sessionID string) Avatar

type proxy struct {
	avatar  Avatar
	machine *anim.Machine
	state   protocol.PlayerState
}

func newProxy(a Avatar, st protocol.PlayerState) *proxy {
	p := &proxy{avatar: a, machine: anim.NewMachine(a.Clips()), state: st}
	a.SetPosition(st.Position)
	a.SetDirection(st.Direction)
	_, _ = p.machine.Set(st.Animation)
	return p
}

// apply pushes only the fields that changed to the avatar.
func (p *proxy) apply(st protocol.PlayerState) {
	d := protocol.Diff(p.state, st)
	p.state = st
	if d.Has(protocol.FieldPosition) {
		p.avatar.SetPosition(st.Position)
	}
	if d.Has(protocol.FieldDirection) {
		p.avatar.SetDirection(st.Direction)
	}
	if d.Has(protocol.FieldAnimation) {
		_, _ = p.machine.Set(st.Animation)
	}
}

func (p *proxy) dispose() {
	p.machine.StopAll()
	p.avatar.Dispose()
}

// Mirror is a client's copy of the room: every session's state, its own
// included, plus an avatar for each remote session.
type Mirror struct {
	mu        sync.RWMutex
	self      string
	room      string
	maze      *maze.WallGraph
	players   map[string]protocol.PlayerState
	proxies   map[string]*proxy
	newAvatar AvatarFactory
}

// NewMirror returns an empty mirror. newAvatar may be nil when no rendering
// is attached.
func NewMirror(newAvatar AvatarFactory) *Mirror {
	return &Mirror{
		players:   make(map[string]protocol.PlayerState),
		proxies:   make(map[string]*proxy),
		newAvatar: newAvatar,
	}
}

// Apply folds one server message into the mirror. Unknown message types are
// ignored.
func (m *Mirror) Apply(env protocol.Envelope) error {
	switch env.T {
	case protocol.MsgWelcome:
		w, err := protocol.DecodePayload[protocol.Welcome](env)
		if err != nil {
			return err
		}
		return m.ApplyWelcome(w)
	case protocol.MsgPlayerAdd, protocol.MsgPlayerChange:
		ev, err := protocol.DecodePayload[protocol.PlayerEvent](env)
		if err != nil {
			return err
		}
		if ev.SessionID == "" || ev.State == nil {
			return fmt.Errorf("%s without state: %w", env.T, protocol.ErrMalformed)
		}
		m.upsert(ev.SessionID, *ev.State)
	case protocol.MsgPlayerRemove:
		ev, err := protocol.DecodePayload[protocol.PlayerEvent](env)
		if err != nil {
			return err
		}
		m.remove(ev.SessionID)
	}
	return nil
}

// ApplyWelcome resets the mirror to the snapshot and maze in w.
func (m *Mirror) ApplyWelcome(w protocol.Welcome) error {
	g, err := w.Maze.WallGraph()
	if err != nil {
		return err
	}
	m.Detach()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.self = w.SessionID
	m.room = w.Room
	m.maze = g
	for id, st := range w.Players {
		m.players[id] = st
		if id != m.self {
			m.spawn(id, st)
		}
	}
	return nil
}

func (m *Mirror) upsert(id string, st protocol.PlayerState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[id] = st
	if id == m.self {
		return
	}
	if p, ok := m.proxies[id]; ok {
		p.apply(st)
		return
	}
	m.spawn(id, st)
}

// spawn creates the avatar of a remote session. Callers hold m.mu.
func (m *Mirror) spawn(id string, st protocol.PlayerState) {
	if m.newAvatar == nil {
		return
	}
	a := m.newAvatar(id)
	if a == nil {
		return
	}
	m.proxies[id] = newProxy(a, st)
}

func (m *Mirror) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.players, id)
	if p, ok := m.proxies[id]; ok {
		delete(m.proxies, id)
		p.dispose()
	}
}

// Detach disposes every avatar and forgets all sessions.
func (m *Mirror) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.proxies {
		p.dispose()
		delete(m.proxies, id)
	}
	for id := range m.players {
		delete(m.players, id)
	}
}

// Self returns the local session id, empty before the welcome.
func (m *Mirror) Self() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.self
}

// Room returns the joined room name.
func (m *Mirror) Room() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.room
}

// Get returns the mirrored state of id.
func (m *Mirror) Get(id string) (protocol.PlayerState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.players[id]
	return st, ok
}

// Players copies the mirrored state.
func (m *Mirror) Players() map[string]protocol.PlayerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]protocol.PlayerState, len(m.players))
	for id, st := range m.players {
		out[id] = st
	}
	return out
}

// Remote reports how many remote avatars are alive.
func (m *Mirror) Remote() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.proxies)
}

// Maze returns the room's maze, nil before the welcome.
func (m *Mirror) Maze() *maze.WallGraph {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maze
}

// RenderMaze places the room's walls on s and returns how many were placed.
func (m *Mirror) RenderMaze(s maze.Surface, policy maze.RenderPolicy) int {
	g := m.Maze()
	if g == nil {
		return 0
	}
	return maze.Render(g, s, policy)
}
