package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mazeplay/protocol"
)

// Connection errors returned by ClientConn.Send.
var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrConnClosed     = errors.New("connection closed")
)

const maxMessageSize = 64 << 10

// ConnTimings are the keepalive settings of one websocket.
type ConnTimings struct {
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
}

// ClientConn 负责发送（写）数据到客户端的轻量包装：房间通过 Send 入队，写协程负责写出
type ClientConn struct {
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	timings   ConnTimings
}

// NewClientConn wraps ws with a send queue of the given size.
func NewClientConn(ws *websocket.Conn, buffer int, t ConnTimings) *ClientConn {
	return &ClientConn{
		ws:      ws,
		send:    make(chan []byte, buffer),
		done:    make(chan struct{}),
		timings: t,
	}
}

// Send 将要发送的消息压入队列（非阻塞，满则返回 ErrSendBufferFull）
func (c *ClientConn) Send(b []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close asks the write pump to send a close frame and hang up. It is safe to
// call more than once.
func (c *ClientConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *ClientConn) writePump() {
	ticker := time.NewTicker(c.timings.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.timings.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				Log.Debugw("write failed", "remote", c.ws.RemoteAddr().String(), "err", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.timings.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.timings.WriteWait))
			return
		}
	}
}

// flush writes whatever is still queued, so a peer that is being detached
// still receives the events that preceded it.
func (c *ClientConn) flush() {
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.timings.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// readPump 读取客户端的 playerUpdate，校验后交给房间；非法消息丢弃但保留连接
func (c *ClientConn) readPump(room *Room, sessionID string) {
	defer func() {
		room.Leave(context.Background(), sessionID)
		_ = c.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.timings.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.timings.PongWait))
	})

	log := room.log.With("session", sessionID)
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Infow("connection lost", "err", err)
			}
			return
		}
		st, err := decodeUpdate(payload)
		if err != nil {
			room.metrics.IncMalformedRejected()
			log.Debugw("message rejected", "err", err)
			continue
		}
		room.OnUpdate(sessionID, st)
	}
}

func decodeUpdate(payload []byte) (protocol.PlayerState, error) {
	env, err := protocol.DecodeEnvelope(payload)
	if err != nil {
		return protocol.PlayerState{}, err
	}
	if env.T != protocol.MsgPlayerUpdate {
		return protocol.PlayerState{}, protocol.ErrMalformed
	}
	return protocol.DecodePlayerUpdate(env)
}

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(allowedOrigins),
	}
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	for _, a := range allowed {
		if a == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// handleWS WebSocket 接入：/ws?room=maze_play[&create=false]
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("room")
	if name == "" {
		name = s.cfg.DefaultRoom
	}
	create := true
	if v := q.Get("create"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid create parameter", http.StatusBadRequest)
			return
		}
		create = b
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnw("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	conn := NewClientConn(ws, s.cfg.SendBuffer, s.timings)
	room, id, err := s.rooms.JoinOrCreate(r.Context(), name, create, conn)
	if err != nil {
		Log.Infow("join refused", "room", name, "remote", r.RemoteAddr, "err", err)
		s.rejectJoin(ws, err)
		return
	}

	go conn.writePump()
	go conn.readPump(room, id)
}

// rejectJoin sends an error envelope followed by a close frame carrying the
// same code, then drops the socket.
func (s *Server) rejectJoin(ws *websocket.Conn, err error) {
	defer ws.Close()
	code := joinErrorCode(err)
	deadline := time.Now().Add(s.timings.WriteWait)
	if b, encErr := protocol.Encode(protocol.MsgError, protocol.Error{Code: code, Message: err.Error()}); encErr == nil {
		_ = ws.SetWriteDeadline(deadline)
		_ = ws.WriteMessage(websocket.TextMessage, b)
	}
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, err.Error()), deadline)
}

func joinErrorCode(err error) int {
	switch {
	case errors.Is(err, ErrRoomFull):
		return protocol.CodeRoomFull
	case errors.Is(err, ErrRoomNotFound):
		return protocol.CodeRoomNotFound
	case errors.Is(err, ErrBadRoomName):
		return protocol.CodeBadRequest
	default:
		return protocol.CodeRoomClosed
	}
}
