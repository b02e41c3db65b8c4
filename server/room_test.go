package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mazeplay/anim"
	"mazeplay/protocol"
)

type fakeConn struct {
	sendCh chan []byte

	mu     sync.Mutex
	closed bool
}

func newFakeConn(buf int) *fakeConn {
	return &fakeConn{sendCh: make(chan []byte, buf)}
}

func (f *fakeConn) Send(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrConnClosed
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	select {
	case f.sendCh <- cp:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// next waits for the next envelope of type want, skipping others.
func (f *fakeConn) next(t *testing.T, want string) protocol.Envelope {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case b := <-f.sendCh:
			env, err := protocol.DecodeEnvelope(b)
			if err != nil {
				t.Fatalf("decode envelope: %v", err)
			}
			if env.T == want {
				return env
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func newTestRoom(t *testing.T, maxClients int) *Room {
	t.Helper()
	r, err := NewRoom("test", RoomConfig{MazeSize: 5, MazeSeed: 42, MaxClients: maxClients})
	if err != nil {
		t.Fatalf("new room: %v", err)
	}
	r.Start()
	t.Cleanup(func() {
		r.Stop()
		<-r.Done()
	})
	return r
}

func join(t *testing.T, r *Room, c Conn) string {
	t.Helper()
	id, err := r.Join(context.Background(), c)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	return id
}

func TestRoomWelcomeComesFirst(t *testing.T) {
	r := newTestRoom(t, 4)
	fc := newFakeConn(8)
	id := join(t, r, fc)

	b := <-fc.sendCh
	env, err := protocol.DecodeEnvelope(b)
	if err != nil || env.T != protocol.MsgWelcome {
		t.Fatalf("first message = %q (%v), want welcome", env.T, err)
	}
	w, err := protocol.DecodePayload[protocol.Welcome](env)
	if err != nil {
		t.Fatal(err)
	}
	if w.SessionID != id || w.Room != "test" {
		t.Fatalf("welcome = %+v", w)
	}
	if st, ok := w.Players[id]; !ok || st != protocol.DefaultPlayerState() {
		t.Fatalf("welcome snapshot lacks joiner: %+v", w.Players)
	}
	g, err := w.Maze.WallGraph()
	if err != nil {
		t.Fatalf("welcome maze: %v", err)
	}
	if !g.Equal(r.Maze()) || w.Maze.Seed != 42 {
		t.Fatal("welcome maze differs from room maze")
	}
}

func TestRoomTwoClientsUpdate(t *testing.T) {
	r := newTestRoom(t, 4)
	a, b := newFakeConn(32), newFakeConn(32)
	idA := join(t, r, a)
	a.next(t, protocol.MsgWelcome)

	idB := join(t, r, b)
	w, _ := protocol.DecodePayload[protocol.Welcome](b.next(t, protocol.MsgWelcome))
	if _, ok := w.Players[idA]; !ok || len(w.Players) != 2 {
		t.Fatalf("late joiner snapshot = %+v", w.Players)
	}
	add, _ := protocol.DecodePayload[protocol.PlayerEvent](a.next(t, protocol.MsgPlayerAdd))
	for add.SessionID != idB {
		add, _ = protocol.DecodePayload[protocol.PlayerEvent](a.next(t, protocol.MsgPlayerAdd))
	}

	st := protocol.PlayerState{
		Position:  protocol.Vec3{X: 1, Y: 0, Z: 2},
		Direction: protocol.Quat{W: 1},
		Animation: anim.Walk,
	}
	if !r.OnUpdate(idA, st) {
		t.Fatal("update not queued")
	}
	ch, err := protocol.DecodePayload[protocol.PlayerEvent](b.next(t, protocol.MsgPlayerChange))
	if err != nil {
		t.Fatal(err)
	}
	if ch.SessionID != idA || ch.State == nil || *ch.State != st {
		t.Fatalf("change = %+v", ch)
	}

	snap, err := r.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap[idA] != st {
		t.Fatalf("server state = %+v", snap[idA])
	}

	r.Leave(context.Background(), idA)
	rm, _ := protocol.DecodePayload[protocol.PlayerEvent](b.next(t, protocol.MsgPlayerRemove))
	if rm.SessionID != idA || rm.State != nil {
		t.Fatalf("remove = %+v", rm)
	}
	if !a.isClosed() {
		t.Fatal("leaving conn was not closed")
	}
	if r.NumPlayers() != 1 {
		t.Fatalf("players = %d, want 1", r.NumPlayers())
	}
}

func TestRoomStaleUpdateCounted(t *testing.T) {
	r := newTestRoom(t, 4)
	fc := newFakeConn(16)
	id := join(t, r, fc)
	keep := join(t, r, newFakeConn(16))
	r.Leave(context.Background(), id)

	r.OnUpdate(id, protocol.PlayerState{Animation: anim.Dance})
	snap, err := r.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := snap[id]; ok {
		t.Fatal("stale update recreated the session")
	}
	if _, ok := snap[keep]; !ok {
		t.Fatal("other session disappeared")
	}
	if got := r.Metrics().Snapshot()["stale_updates"]; got != 1 {
		t.Fatalf("stale_updates = %d, want 1", got)
	}
}

func TestRoomFull(t *testing.T) {
	r := newTestRoom(t, 1)
	join(t, r, newFakeConn(8))
	if _, err := r.Join(context.Background(), newFakeConn(8)); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("got %v, want ErrRoomFull", err)
	}
	n, err := r.SetMaxClients(context.Background(), 2)
	if err != nil || n != 2 {
		t.Fatalf("set max = %d, %v", n, err)
	}
	join(t, r, newFakeConn(8))
	if n, _ := r.SetMaxClients(context.Background(), 0); n != 2 {
		t.Fatalf("read max = %d, want 2", n)
	}
}

func TestRoomWelcomeFailureRollsBack(t *testing.T) {
	r := newTestRoom(t, 4)
	bad := newFakeConn(0)
	if _, err := r.Join(context.Background(), bad); !errors.Is(err, ErrWelcomeSend) {
		t.Fatalf("got %v, want ErrWelcomeSend", err)
	}
	snap, _ := r.Snapshot(context.Background())
	if len(snap) != 0 {
		t.Fatalf("failed join left state behind: %+v", snap)
	}
}

func TestRoomSlowConsumerDetached(t *testing.T) {
	r := newTestRoom(t, 4)
	fast := newFakeConn(64)
	idFast := join(t, r, fast)
	// room for welcome and its own add only
	slow := newFakeConn(2)
	idSlow := join(t, r, slow)

	for i := 0; i < 3; i++ {
		r.OnUpdate(idFast, protocol.PlayerState{Position: protocol.Vec3{X: float64(i)}, Animation: anim.Walk})
	}
	for {
		ev, _ := protocol.DecodePayload[protocol.PlayerEvent](fast.next(t, protocol.MsgPlayerRemove))
		if ev.SessionID == idSlow {
			break
		}
	}
	if !slow.isClosed() {
		t.Fatal("slow conn was not closed")
	}
	if got := r.Metrics().Snapshot()["slow_clients_dropped"]; got != 1 {
		t.Fatalf("slow_clients_dropped = %d, want 1", got)
	}
	snap, _ := r.Snapshot(context.Background())
	if _, ok := snap[idSlow]; ok || len(snap) != 1 {
		t.Fatalf("snapshot after detach = %+v", snap)
	}
}

func TestRoomStopClosesMembers(t *testing.T) {
	r, err := NewRoom("stop", RoomConfig{MazeSize: 3, MazeSeed: 1, MaxClients: 2})
	if err != nil {
		t.Fatal(err)
	}
	r.Start()
	fc := newFakeConn(8)
	join(t, r, fc)
	r.Stop()
	r.Stop()
	<-r.Done()
	if !fc.isClosed() {
		t.Fatal("member not closed on stop")
	}
	if _, err := r.Join(context.Background(), newFakeConn(8)); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("join after stop: %v", err)
	}
	if r.OnUpdate("x", protocol.PlayerState{}) {
		t.Fatal("update accepted after stop")
	}
	r.Leave(context.Background(), "x")
}

func TestNewRoomRejectsBadConfig(t *testing.T) {
	if _, err := NewRoom("x", RoomConfig{MazeSize: 0, MaxClients: 1}); err == nil {
		t.Fatal("size 0 accepted")
	}
	if _, err := NewRoom("x", RoomConfig{MazeSize: 2, MaxClients: 0}); err == nil {
		t.Fatal("max clients 0 accepted")
	}
}

func TestRoomLastUpdateWinsUnderBacklog(t *testing.T) {
	r, err := NewRoom("backlog", RoomConfig{MazeSize: 3, MazeSeed: 1, MaxClients: 4, InboxSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	// the room goroutine is not running yet, so nothing drains
	if _, _, err := r.state.Join("a"); err != nil {
		t.Fatal(err)
	}
	walk1 := protocol.PlayerState{Position: protocol.Vec3{X: 0}, Animation: anim.Walk}
	walk2 := protocol.PlayerState{Position: protocol.Vec3{X: 1}, Animation: anim.Walk}
	stop := protocol.PlayerState{Position: protocol.Vec3{X: 2}, Animation: anim.Idle}
	for _, st := range []protocol.PlayerState{walk1, walk2, stop} {
		if !r.OnUpdate("a", st) {
			t.Fatalf("update %+v refused", st)
		}
	}

	r.Start()
	t.Cleanup(func() {
		r.Stop()
		<-r.Done()
	})
	snap, err := r.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap["a"] != stop {
		t.Fatalf("server state = %+v, want the last write %+v", snap["a"], stop)
	}
	m := r.Metrics().Snapshot()
	if m["updates_coalesced"] != 2 || m["updates_applied"] != 1 {
		t.Fatalf("coalesced %d applied %d, want 2 and 1", m["updates_coalesced"], m["updates_applied"])
	}
}
