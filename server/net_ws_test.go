package server

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mazeplay/anim"
	"mazeplay/config"
	"mazeplay/protocol"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.MazeSize = 5
	cfg.MazeSeed = 42
	cfg.PingInterval = time.Second
	cfg.PongWait = 5 * time.Second
	cfg.WriteWait = time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	s := New(cfg)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Close(context.Background())
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// readType reads until a message of type want arrives.
func readType(t *testing.T, ws *websocket.Conn, want string) protocol.Envelope {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, b, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		env, err := protocol.DecodeEnvelope(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.T == want {
			return env
		}
	}
}

func welcome(t *testing.T, ws *websocket.Conn) protocol.Welcome {
	t.Helper()
	w, err := protocol.DecodePayload[protocol.Welcome](readType(t, ws, protocol.MsgWelcome))
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func TestWebsocketTwoClients(t *testing.T) {
	_, ts := newTestServer(t, nil)

	a := dial(t, ts, "?room=demo")
	wa := welcome(t, a)
	b := dial(t, ts, "?room=demo")
	wb := welcome(t, b)

	if wa.Room != "demo" || wb.Room != "demo" || wa.SessionID == wb.SessionID {
		t.Fatalf("welcomes: %+v / %+v", wa, wb)
	}
	if wa.Maze.Seed != 42 || wa.Maze.Size != 5 {
		t.Fatalf("maze layout: size %d seed %d", wa.Maze.Size, wa.Maze.Seed)
	}
	if _, ok := wb.Players[wa.SessionID]; !ok {
		t.Fatal("late joiner does not see the first client")
	}

	// garbage must not cost the sender its connection
	if err := a.WriteMessage(websocket.TextMessage, []byte(`{"t":"playerUpdate","p":{"position":{"x":1}}}`)); err != nil {
		t.Fatal(err)
	}
	if err := a.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatal(err)
	}

	st := protocol.PlayerState{
		Position:  protocol.Vec3{X: 1, Y: 0, Z: 2},
		Direction: protocol.Quat{W: 1},
		Animation: anim.Walk,
	}
	msg, err := protocol.Encode(protocol.MsgPlayerUpdate, st)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatal(err)
	}

	ev, err := protocol.DecodePayload[protocol.PlayerEvent](readType(t, b, protocol.MsgPlayerChange))
	if err != nil {
		t.Fatal(err)
	}
	if ev.SessionID != wa.SessionID || ev.State == nil || *ev.State != st {
		t.Fatalf("change = %+v", ev)
	}

	_ = a.Close()
	ev, err = protocol.DecodePayload[protocol.PlayerEvent](readType(t, b, protocol.MsgPlayerRemove))
	if err != nil {
		t.Fatal(err)
	}
	if ev.SessionID != wa.SessionID {
		t.Fatalf("remove for %q, want %q", ev.SessionID, wa.SessionID)
	}
}

func TestWebsocketMalformedCounted(t *testing.T) {
	s, ts := newTestServer(t, nil)
	a := dial(t, ts, "?room=m")
	welcome(t, a)
	if err := a.WriteMessage(websocket.TextMessage, []byte(`{"t":"playerUpdate","p":{"animation":"fly"}}`)); err != nil {
		t.Fatal(err)
	}
	room, err := s.Rooms().GetRoom("m")
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for room.Metrics().Snapshot()["malformed_rejected"] != 1 {
		if time.Now().After(deadline) {
			t.Fatal("malformed message was not counted")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if room.NumPlayers() != 1 {
		t.Fatalf("players = %d, want 1", room.NumPlayers())
	}
}

func TestWebsocketJoinErrors(t *testing.T) {
	_, ts := newTestServer(t, func(c *config.Config) { c.MaxClientsPerRoom = 1 })

	first := dial(t, ts, "?room=solo")
	welcome(t, first)

	cases := []struct {
		query string
		code  int
	}{
		{"?room=solo", protocol.CodeRoomFull},
		{"?room=missing&create=false", protocol.CodeRoomNotFound},
		{"?room=bad%20name", protocol.CodeBadRequest},
	}
	for _, tc := range cases {
		ws := dial(t, ts, tc.query)
		e, err := protocol.DecodePayload[protocol.Error](readType(t, ws, protocol.MsgError))
		if err != nil {
			t.Fatal(err)
		}
		if e.Code != tc.code {
			t.Fatalf("%s: code %d, want %d", tc.query, e.Code, tc.code)
		}
		_, _, err = ws.ReadMessage()
		var ce *websocket.CloseError
		if !errors.As(err, &ce) || ce.Code != tc.code {
			t.Fatalf("%s: close = %v, want code %d", tc.query, err, tc.code)
		}
	}
}

func TestJoinErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrRoomFull, protocol.CodeRoomFull},
		{ErrRoomNotFound, protocol.CodeRoomNotFound},
		{ErrBadRoomName, protocol.CodeBadRequest},
		{ErrRoomClosed, protocol.CodeRoomClosed},
		{context.Canceled, protocol.CodeRoomClosed},
	}
	for _, tc := range cases {
		if got := joinErrorCode(tc.err); got != tc.want {
			t.Errorf("joinErrorCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestClientConnSendAfterClose(t *testing.T) {
	c := &ClientConn{send: make(chan []byte, 1), done: make(chan struct{})}
	if err := c.Send([]byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := c.Send([]byte("b")); !errors.Is(err, ErrSendBufferFull) {
		t.Fatalf("full queue: %v", err)
	}
	_ = c.Close()
	_ = c.Close()
	if err := c.Send([]byte("c")); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("after close: %v", err)
	}
}
