package server

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mazeplay/maze"
	"mazeplay/protocol"
)

// Join errors.
var (
	ErrRoomFull     = errors.New("room is full")
	ErrRoomClosed   = errors.New("room is closed")
	ErrRoomNotFound = errors.New("room not found")
	ErrBadRoomName  = errors.New("invalid room name")
	ErrWelcomeSend  = errors.New("could not deliver welcome")
)

// RoomConfig sizes a room.
type RoomConfig struct {
	MazeSize   int
	MazeSeed   int64 // 0 picks a fresh seed per room
	MaxClients int
	InboxSize  int
}

const defaultInboxSize = 256

// Room is one maze instance. All mutations of its state run on a single
// goroutine, fed through inbox; different rooms run in parallel.
type Room struct {
	ID string

	state   *RoomState
	members map[string]*member
	maze    *maze.WallGraph
	layout  protocol.MazeLayout

	maxClients int
	inbox      chan any
	wake       chan struct{} // signalled when updates holds something
	quit       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
	started    atomic.Bool
	players    atomic.Int32

	// latest unapplied playerUpdate per session, see OnUpdate
	updMu    sync.Mutex
	updates  map[string]protocol.PlayerState
	updOrder []string

	metrics *RoomMetrics
	log     *zap.SugaredLogger

	// onEmpty runs on the room goroutine after the last member leaves.
	onEmpty func(*Room)
}

// NewRoom generates the room's maze and prepares its state. Call Start to
// begin processing.
func NewRoom(id string, cfg RoomConfig) (*Room, error) {
	seed := cfg.MazeSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g, err := maze.Generate(cfg.MazeSize, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", id, err)
	}
	if cfg.MaxClients <= 0 {
		return nil, fmt.Errorf("room %s: max clients must be positive", id)
	}
	inbox := cfg.InboxSize
	if inbox <= 0 {
		inbox = defaultInboxSize
	}
	return &Room{
		ID:         id,
		state:      NewRoomState(),
		members:    make(map[string]*member),
		maze:       g,
		layout:     protocol.LayoutOf(g, seed),
		maxClients: cfg.MaxClients,
		inbox:      make(chan any, inbox),
		wake:       make(chan struct{}, 1),
		updates:    make(map[string]protocol.PlayerState),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		metrics:    &RoomMetrics{},
		log:        Log.With("room", id),
	}, nil
}

// Start launches the room goroutine. Extra calls do nothing.
func (r *Room) Start() {
	if r.started.Swap(true) {
		return
	}
	go r.run()
}

// Stop ends the room goroutine and closes every member connection.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
}

// Done is closed once the room goroutine has exited.
func (r *Room) Done() <-chan struct{} { return r.done }

// Maze returns the room's maze. It is never mutated after NewRoom.
func (r *Room) Maze() *maze.WallGraph { return r.maze }

// Layout returns the maze as sent in welcome messages.
func (r *Room) Layout() protocol.MazeLayout { return r.layout }

// Metrics returns the room counters.
func (r *Room) Metrics() *RoomMetrics { return r.metrics }

// NumPlayers returns the number of joined sessions.
func (r *Room) NumPlayers() int { return int(r.players.Load()) }

// submit hands cmd to the room goroutine.
func (r *Room) submit(ctx context.Context, cmd any) error {
	select {
	case <-r.quit:
		return ErrRoomClosed
	default:
	}
	select {
	case r.inbox <- cmd:
		return nil
	case <-r.quit:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join admits conn as a new session. On success conn has already been
// queued a welcome carrying the session id, the full snapshot and the maze.
func (r *Room) Join(ctx context.Context, conn Conn) (string, error) {
	reply := make(chan joinResult, 1)
	if err := r.submit(ctx, joinCmd{Conn: conn, Reply: reply}); err != nil {
		return "", err
	}
	// Once accepted the join is always answered; waiting on ctx here could
	// leave an orphaned member behind.
	select {
	case res := <-reply:
		return res.SessionID, res.Err
	case <-r.done:
		return "", ErrRoomClosed
	}
}

// Leave removes a session and waits until the removal was applied. Leaving
// twice, or after the room closed, is fine.
func (r *Room) Leave(ctx context.Context, sessionID string) {
	done := make(chan struct{})
	if err := r.submit(ctx, leaveCmd{SessionID: sessionID, Reason: "left", Done: done}); err != nil {
		return
	}
	select {
	case <-done:
	case <-r.done:
	case <-ctx.Done():
	}
}

// Snapshot returns a copy of the room state, for late joiners and the API.
func (r *Room) Snapshot(ctx context.Context) (map[string]protocol.PlayerState, error) {
	reply := make(chan map[string]protocol.PlayerState, 1)
	if err := r.submit(ctx, snapshotCmd{Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-r.done:
		return nil, ErrRoomClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetMaxClients changes the member cap and returns the value in force.
// n <= 0 only reads it.
func (r *Room) SetMaxClients(ctx context.Context, n int) (int, error) {
	reply := make(chan int, 1)
	if err := r.submit(ctx, setMaxClientsCmd{N: n, Reply: reply}); err != nil {
		return 0, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		return 0, ErrRoomClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (r *Room) handle(cmd any) {
	switch c := cmd.(type) {
	case joinCmd:
		id, err := r.join(c.Conn)
		c.Reply <- joinResult{SessionID: id, Err: err}
	case leaveCmd:
		r.removeMember(c.SessionID, c.Reason)
		if c.Done != nil {
			close(c.Done)
		}
	case snapshotCmd:
		c.Reply <- r.state.Snapshot()
	case setMaxClientsCmd:
		if c.N > 0 {
			r.maxClients = c.N
			r.log.Infow("max clients changed", "max", c.N)
		}
		c.Reply <- r.maxClients
	default:
		r.log.Warnw("unknown room command", "type", fmt.Sprintf("%T", cmd))
	}
}

func (r *Room) join(conn Conn) (string, error) {
	if len(r.members) >= r.maxClients {
		r.metrics.IncJoinsRejected()
		r.log.Infow("join rejected", "reason", "full", "players", len(r.members))
		return "", ErrRoomFull
	}

	var (
		id  string
		ev  Event
		err error
	)
	for {
		id = uuid.NewString()
		if _, ev, err = r.state.Join(id); err == nil {
			break
		}
	}

	welcome, err := protocol.Encode(protocol.MsgWelcome, protocol.Welcome{
		SessionID: id,
		Room:      r.ID,
		Players:   r.state.Snapshot(),
		Maze:      r.layout,
	})
	if err == nil {
		err = conn.Send(welcome)
	}
	if err != nil {
		r.state.Leave(id)
		r.metrics.IncJoinsRejected()
		r.log.Warnw("welcome failed", "session", id, "err", err)
		r.checkEmpty()
		return "", fmt.Errorf("%w: %v", ErrWelcomeSend, err)
	}

	r.members[id] = &member{SessionID: id, JoinedAt: time.Now(), Conn: conn}
	r.players.Store(int32(len(r.members)))
	r.metrics.IncJoins()
	r.log.Infow("player joined", "session", id, "players", len(r.members))
	r.broadcast(ev)
	return id, nil
}

func (r *Room) applyUpdate(id string, st protocol.PlayerState) {
	ev, ok := r.state.ApplyUpdate(id, st)
	if !ok {
		r.metrics.IncStaleUpdates()
		r.log.Debugw("update for unknown session ignored", "session", id)
		return
	}
	r.metrics.IncUpdatesApplied()
	r.broadcast(ev)
}

// removeMember is the single cleanup path for leave, disconnect and slow
// consumers.
func (r *Room) removeMember(id, reason string) {
	m, ok := r.members[id]
	if !ok {
		return
	}
	delete(r.members, id)
	r.players.Store(int32(len(r.members)))
	_ = m.Conn.Close()

	ev, ok := r.state.Leave(id)
	r.metrics.IncLeaves()
	r.log.Infow("player left", "session", id, "reason", reason, "players", len(r.members))
	if ok {
		r.broadcast(ev)
	}
	r.checkEmpty()
}

func (r *Room) checkEmpty() {
	if len(r.members) == 0 && r.onEmpty != nil {
		onEmpty := r.onEmpty
		r.onEmpty = nil
		onEmpty(r)
	}
}

// broadcast queues ev to every member. Members whose queue is full are
// detached so the remaining views keep converging.
func (r *Room) broadcast(ev Event) {
	if len(r.members) == 0 {
		return
	}
	b, err := ev.Encode()
	if err != nil {
		r.log.Errorw("encode event", "kind", ev.Kind, "err", err)
		return
	}
	var failed []string
	sent := 0
	for id, m := range r.members {
		if err := m.Conn.Send(b); err != nil {
			failed = append(failed, id)
			continue
		}
		sent++
	}
	r.metrics.AddEventsSent(sent)
	for _, id := range failed {
		r.metrics.IncSlowClientsDropped()
		r.removeMember(id, "send queue full")
	}
}

func (r *Room) closeMembers() {
	for id, m := range r.members {
		_ = m.Conn.Close()
		delete(r.members, id)
	}
	r.players.Store(0)
}
