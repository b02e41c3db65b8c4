// Package client joins a maze room over a websocket, mirrors the room state
// and streams the local player's state back at a throttled rate.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mazeplay/anim"
	"mazeplay/protocol"
	"mazeplay/throttle"
)

const (
	writeWait   = 5 * time.Second
	joinTimeout = 10 * time.Second
)

// JoinError is the server's refusal of a join, or an error it sent later.
type JoinError struct {
	Code    int
	Message string
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join refused (%d): %s", e.Code, e.Message)
}

type options struct {
	log       *zap.Logger
	clips     anim.Clips
	avatars   AvatarFactory
	interval  time.Duration
	dialer    *websocket.Dialer
	joinOnly  bool
	throttles []throttle.Option
}

// Option configures Join.
type Option func(*options)

// WithLogger sets the session logger. The default discards.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithClips sets the local player's animation clips.
func WithClips(c anim.Clips) Option { return func(o *options) { o.clips = c } }

// WithAvatars sets the factory for remote players' avatars.
func WithAvatars(f AvatarFactory) Option { return func(o *options) { o.avatars = f } }

// WithInterval overrides throttle.DefaultInterval.
func WithInterval(d time.Duration) Option { return func(o *options) { o.interval = d } }

// WithDialer overrides websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option { return func(o *options) { o.dialer = d } }

// WithThrottleOptions passes options to the send throttle.
func WithThrottleOptions(opts ...throttle.Option) Option {
	return func(o *options) { o.throttles = append(o.throttles, opts...) }
}

// JoinOnly refuses to create the room when it does not exist.
func JoinOnly() Option { return func(o *options) { o.joinOnly = true } }

// Session is one joined client.
type Session struct {
	ws       *websocket.Conn
	mirror   *Mirror
	throttle *throttle.Throttle
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex // guards machine, local and closed
	machine *anim.Machine
	local   protocol.PlayerState
	closed  bool

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// Join dials serverURL (ws://host/ws), joins room and waits for the welcome.
// A refused join returns *JoinError and leaves nothing open.
func Join(ctx context.Context, serverURL, room string, opts ...Option) (*Session, error) {
	o := options{
		log:      zap.NewNop(),
		interval: throttle.DefaultInterval,
		dialer:   websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	q := u.Query()
	if room != "" {
		q.Set("room", room)
	}
	if o.joinOnly {
		q.Set("create", "false")
	}
	u.RawQuery = q.Encode()

	ws, _, err := o.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	w, err := awaitWelcome(ctx, ws)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}

	s := &Session{
		ws:       ws,
		mirror:   NewMirror(o.avatars),
		throttle: throttle.New(o.throttles...),
		interval: o.interval,
		log:      o.log.With(zap.String("room", w.Room), zap.String("session", w.SessionID)),
		machine:  anim.NewMachine(o.clips),
		local:    protocol.DefaultPlayerState(),
		done:     make(chan struct{}),
	}
	if err := s.mirror.ApplyWelcome(w); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("welcome: %w", err)
	}
	s.log.Info("joined", zap.Int("players", len(w.Players)))

	go s.readLoop()
	return s, nil
}

func awaitWelcome(ctx context.Context, ws *websocket.Conn) (protocol.Welcome, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(joinTimeout)
	}
	_ = ws.SetReadDeadline(deadline)
	defer ws.SetReadDeadline(time.Time{})

	_, b, err := ws.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) && ce.Code >= protocol.CodeBadRequest {
			return protocol.Welcome{}, &JoinError{Code: ce.Code, Message: ce.Text}
		}
		return protocol.Welcome{}, fmt.Errorf("waiting for welcome: %w", err)
	}
	env, err := protocol.DecodeEnvelope(b)
	if err != nil {
		return protocol.Welcome{}, err
	}
	switch env.T {
	case protocol.MsgWelcome:
		return protocol.DecodePayload[protocol.Welcome](env)
	case protocol.MsgError:
		e, err := protocol.DecodePayload[protocol.Error](env)
		if err != nil {
			return protocol.Welcome{}, err
		}
		return protocol.Welcome{}, &JoinError{Code: e.Code, Message: e.Message}
	default:
		return protocol.Welcome{}, fmt.Errorf("expected welcome, got %q: %w", env.T, protocol.ErrMalformed)
	}
}

// ID returns the session id assigned by the server.
func (s *Session) ID() string { return s.mirror.Self() }

// Mirror returns the local copy of the room.
func (s *Session) Mirror() *Mirror { return s.mirror }

// Animation returns the local player's current animation.
func (s *Session) Animation() anim.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Current()
}

// Frame is called once per rendered frame. It updates the local animation
// and, while the player moves or the animation just changed, schedules a
// throttled send of the latest state. It never blocks on the network.
func (s *Session) Frame(fc FrameContext) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	tag, changed := s.machine.Update(fc.Intent)
	s.local = protocol.PlayerState{
		Position:  fc.Position,
		Direction: fc.Direction,
		Animation: tag,
	}
	s.mu.Unlock()

	if fc.Intent.Any() || changed {
		s.throttle.Schedule(s.flush, s.interval)
	}
}

// flush sends whatever the local state is when the throttle fires.
func (s *Session) flush() {
	s.mu.Lock()
	st, closed := s.local, s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	if err := s.send(protocol.MsgPlayerUpdate, st); err != nil {
		s.log.Debug("send update", zap.Error(err))
	}
}

func (s *Session) send(t string, payload any) error {
	b, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return s.ws.WriteMessage(websocket.TextMessage, b)
}

func (s *Session) readLoop() {
	for {
		_, b, err := s.ws.ReadMessage()
		if err != nil {
			s.shutdown(err)
			return
		}
		env, err := protocol.DecodeEnvelope(b)
		if err != nil {
			s.log.Warn("bad server message", zap.Error(err))
			continue
		}
		if env.T == protocol.MsgError {
			e, _ := protocol.DecodePayload[protocol.Error](env)
			s.shutdown(&JoinError{Code: e.Code, Message: e.Message})
			return
		}
		if err := s.mirror.Apply(env); err != nil {
			s.log.Warn("apply", zap.String("type", env.T), zap.Error(err))
		}
	}
}

// shutdown is the single cleanup path for Close and transport loss.
func (s *Session) shutdown(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.machine.StopAll()
		s.mu.Unlock()

		s.throttle.Stop()
		s.mirror.Detach()
		_ = s.ws.Close()

		var ce *websocket.CloseError
		if cause != nil && !(errors.As(cause, &ce) && ce.Code == websocket.CloseNormalClosure) {
			s.err = cause
			s.log.Info("session ended", zap.Error(cause))
		}
		close(s.done)
	})
}

// Close leaves the room. It is safe to call more than once.
func (s *Session) Close() error {
	s.writeMu.Lock()
	_ = s.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	s.writeMu.Unlock()
	s.shutdown(nil)
	return nil
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the session ended, nil after a normal close.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}
