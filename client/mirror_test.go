package client

import (
	"math/rand"
	"testing"

	"mazeplay/anim"
	"mazeplay/maze"
	"mazeplay/protocol"
)

type fakeClip struct{ playing bool }

func (c *fakeClip) Start(bool) { c.playing = true }
func (c *fakeClip) Stop()      { c.playing = false }

type fakeAvatar struct {
	id       string
	pos      protocol.Vec3
	dir      protocol.Quat
	posSets  int
	clips    map[anim.Tag]*fakeClip
	disposed bool
}

func newFakeAvatar(id string) *fakeAvatar {
	a := &fakeAvatar{id: id, clips: map[anim.Tag]*fakeClip{}}
	for _, t := range anim.Tags() {
		a.clips[t] = &fakeClip{}
	}
	return a
}

func (a *fakeAvatar) SetPosition(p protocol.Vec3)  { a.pos = p; a.posSets++ }
func (a *fakeAvatar) SetDirection(q protocol.Quat) { a.dir = q }
func (a *fakeAvatar) Dispose()                     { a.disposed = true }
func (a *fakeAvatar) Clips() anim.Clips {
	out := anim.Clips{}
	for t, c := range a.clips {
		out[t] = c
	}
	return out
}

func (a *fakeAvatar) playing() []anim.Tag {
	var out []anim.Tag
	for _, t := range anim.Tags() {
		if a.clips[t].playing {
			out = append(out, t)
		}
	}
	return out
}

type avatarSet map[string]*fakeAvatar

func (s avatarSet) factory(id string) Avatar {
	a := newFakeAvatar(id)
	s[id] = a
	return a
}

func envelope(t *testing.T, typ string, payload any) protocol.Envelope {
	t.Helper()
	b, err := protocol.Encode(typ, payload)
	if err != nil {
		t.Fatal(err)
	}
	env, err := protocol.DecodeEnvelope(b)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func testWelcome(t *testing.T, self string, players map[string]protocol.PlayerState) protocol.Welcome {
	t.Helper()
	g, err := maze.Generate(3, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	return protocol.Welcome{SessionID: self, Room: "r", Players: players, Maze: protocol.LayoutOf(g, 1)}
}

func TestMirrorWelcomeSkipsSelf(t *testing.T) {
	avatars := avatarSet{}
	m := NewMirror(avatars.factory)
	walk := protocol.PlayerState{Position: protocol.Vec3{X: 3}, Animation: anim.Walk}
	w := testWelcome(t, "me", map[string]protocol.PlayerState{
		"me":    protocol.DefaultPlayerState(),
		"other": walk,
	})
	if err := m.Apply(envelope(t, protocol.MsgWelcome, w)); err != nil {
		t.Fatal(err)
	}
	if m.Self() != "me" || m.Room() != "r" {
		t.Fatalf("self %q room %q", m.Self(), m.Room())
	}
	if _, ok := avatars["me"]; ok {
		t.Fatal("avatar created for own session")
	}
	if _, ok := m.Get("me"); !ok {
		t.Fatal("own state missing from mirror")
	}
	a := avatars["other"]
	if a == nil || a.pos.X != 3 {
		t.Fatalf("remote avatar = %+v", a)
	}
	if got := a.playing(); len(got) != 1 || got[0] != anim.Walk {
		t.Fatalf("remote playing %v, want [walk]", got)
	}
	if m.Maze() == nil || m.Maze().Size() != 3 {
		t.Fatal("maze not taken from welcome")
	}
}

func TestMirrorEvents(t *testing.T) {
	avatars := avatarSet{}
	m := NewMirror(avatars.factory)
	_ = m.ApplyWelcome(testWelcome(t, "me", map[string]protocol.PlayerState{"me": protocol.DefaultPlayerState()}))

	st := protocol.DefaultPlayerState()
	if err := m.Apply(envelope(t, protocol.MsgPlayerAdd, protocol.PlayerEvent{SessionID: "b", State: &st})); err != nil {
		t.Fatal(err)
	}
	b := avatars["b"]
	if b == nil || m.Remote() != 1 {
		t.Fatal("add did not create an avatar")
	}
	sets := b.posSets

	// direction-only change leaves position and animation alone
	turned := st
	turned.Direction = protocol.Quat{Y: 1}
	_ = m.Apply(envelope(t, protocol.MsgPlayerChange, protocol.PlayerEvent{SessionID: "b", State: &turned}))
	if b.posSets != sets || b.dir.Y != 1 {
		t.Fatalf("position sets %d -> %d, dir %+v", sets, b.posSets, b.dir)
	}

	dancing := turned
	dancing.Animation = anim.Dance
	_ = m.Apply(envelope(t, protocol.MsgPlayerChange, protocol.PlayerEvent{SessionID: "b", State: &dancing}))
	if got := b.playing(); len(got) != 1 || got[0] != anim.Dance {
		t.Fatalf("playing %v, want [dance]", got)
	}

	// own changes update state, never an avatar
	mine := protocol.PlayerState{Position: protocol.Vec3{Z: 9}, Animation: anim.Walk}
	_ = m.Apply(envelope(t, protocol.MsgPlayerChange, protocol.PlayerEvent{SessionID: "me", State: &mine}))
	if got, _ := m.Get("me"); got != mine || m.Remote() != 1 {
		t.Fatalf("own change: %+v, remote %d", got, m.Remote())
	}

	_ = m.Apply(envelope(t, protocol.MsgPlayerRemove, protocol.PlayerEvent{SessionID: "b"}))
	if !b.disposed || len(b.playing()) != 0 || m.Remote() != 0 {
		t.Fatal("remove did not dispose the avatar")
	}
	if _, ok := m.Get("b"); ok {
		t.Fatal("removed session still mirrored")
	}

	if err := m.Apply(envelope(t, protocol.MsgPlayerChange, protocol.PlayerEvent{SessionID: "b"})); err == nil {
		t.Fatal("change without state accepted")
	}
	if err := m.Apply(envelope(t, "something-else", struct{}{})); err != nil {
		t.Fatalf("unknown type: %v", err)
	}
}

func TestMirrorDetach(t *testing.T) {
	avatars := avatarSet{}
	m := NewMirror(avatars.factory)
	_ = m.ApplyWelcome(testWelcome(t, "me", map[string]protocol.PlayerState{
		"me": protocol.DefaultPlayerState(),
		"x":  protocol.DefaultPlayerState(),
		"y":  protocol.DefaultPlayerState(),
	}))
	m.Detach()
	for id, a := range avatars {
		if !a.disposed {
			t.Fatalf("avatar %s not disposed", id)
		}
	}
	if len(m.Players()) != 0 {
		t.Fatal("players left after detach")
	}
}

type countingSurface struct{ n int }

func (s *countingSurface) PlaceWall(maze.WallPlacement) { s.n++ }

func TestMirrorRenderMaze(t *testing.T) {
	m := NewMirror(nil)
	if n := m.RenderMaze(&countingSurface{}, maze.RenderPolicy{}); n != 0 {
		t.Fatalf("rendered %d walls before welcome", n)
	}
	_ = m.ApplyWelcome(testWelcome(t, "me", nil))
	s := &countingSurface{}
	n := m.RenderMaze(s, maze.RenderPolicy{DedupeShared: true})
	if n == 0 || n != s.n {
		t.Fatalf("rendered %d, surface saw %d", n, s.n)
	}
}

func TestMirrorFactoryMayDeclineAvatar(t *testing.T) {
	calls := 0
	m := NewMirror(func(string) Avatar {
		calls++
		return nil
	})
	_ = m.ApplyWelcome(testWelcome(t, "me", map[string]protocol.PlayerState{
		"me":    protocol.DefaultPlayerState(),
		"other": protocol.DefaultPlayerState(),
	}))
	st := protocol.PlayerState{Animation: anim.Walk}
	for _, typ := range []string{protocol.MsgPlayerAdd, protocol.MsgPlayerChange} {
		if err := m.Apply(envelope(t, typ, protocol.PlayerEvent{SessionID: "late", State: &st})); err != nil {
			t.Fatal(err)
		}
	}
	if calls == 0 {
		t.Fatal("factory never asked")
	}
	if m.Remote() != 0 {
		t.Fatalf("remote avatars = %d, want 0", m.Remote())
	}
	if got, ok := m.Get("late"); !ok || got != st {
		t.Fatalf("state without avatar = %+v, %v", got, ok)
	}
	_ = m.Apply(envelope(t, protocol.MsgPlayerRemove, protocol.PlayerEvent{SessionID: "late"}))
	m.Detach()
}
