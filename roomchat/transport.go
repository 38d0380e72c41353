package roomchat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codevelop/roomchat-go/roomchat/internal"
)

const (
	contentTypeJSON   = "application/json"
	headerClientMsgID = "client-msg-id"
	disconnectTimeout = 3 * time.Second
	frameBuffer       = 64
)

// Transport is one live socket plus the broker session layered on it.
// An instance is single-use: once Disconnect is called, reconnecting requires a new one.
type Transport interface {
	Connect(ctx context.Context, hb HeartBeat) error
	// Subscribe registers the one subscription this transport carries. Frames
	// arrive in broker order; the channel closes when the subscription ends.
	Subscribe(dest string) (<-chan Frame, error)
	// Send publishes body without waiting for any acknowledgement.
	Send(dest string, body []byte) error
	Disconnect() error
	State() SessionState
}

// TransportFactory builds a fresh transport for every room session.
type TransportFactory func() Transport

// StompTransport speaks STOMP over a WebSocket.
type StompTransport struct {
	cfg    Config
	id     string
	logger zerolog.Logger

	mu     sync.Mutex
	state  SessionState
	used   bool
	closed bool
	conn   *internal.Conn
	stomp  *stomp.Conn
	sub    *stomp.Subscription
	done   chan struct{}
}

// NewStompTransport constructs an idle transport.
func NewStompTransport(cfg Config) *StompTransport {
	id := uuid.NewString()
	return &StompTransport{
		cfg:    cfg,
		id:     id,
		logger: defaultLogger().With().Str(FieldSessionID, id).Logger(),
		done:   make(chan struct{}),
	}
}

// SetLogger overrides logger (optional).
func (t *StompTransport) SetLogger(l zerolog.Logger) {
	t.logger = l.With().Str(FieldComponent, "transport").Str(FieldSessionID, t.id).Logger()
}

// ID returns the identifier used in this transport's log lines.
func (t *StompTransport) ID() string { return t.id }

// State returns the current lifecycle state.
func (t *StompTransport) State() SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connect dials the WebSocket and completes the STOMP handshake.
func (t *StompTransport) Connect(ctx context.Context, hb HeartBeat) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return NewError(ErrorSessionClosed, "transport already disconnected")
	}
	if t.used {
		t.mu.Unlock()
		return NewError(ErrorConnection, "transport is single-use")
	}
	t.used = true
	t.setStateLocked(StateConnecting)
	t.mu.Unlock()

	if err := t.cfg.Validate(); err != nil {
		return t.fail(err)
	}

	dialCtx := ctx
	if t.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, t.cfg.HandshakeTimeout)
		defer cancel()
	}

	conn, err := internal.Dial(dialCtx, t.cfg.URL, internal.DialOptions{
		Header:       t.cfg.Header,
		ReadLimit:    t.cfg.ReadLimit,
		WriteTimeout: t.cfg.WriteTimeout,
	})
	if err != nil {
		return t.fail(WrapError(ErrorConnection, "websocket dial failed", err))
	}

	type result struct {
		conn *stomp.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		sc, err := stomp.Connect(conn, t.connectOptions(hb)...)
		ch <- result{conn: sc, err: err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-dialCtx.Done():
		_ = conn.Close()
		<-ch
		res = result{err: dialCtx.Err()}
	}
	if res.err != nil {
		_ = conn.Close()
		return t.fail(WrapError(ErrorConnection, "stomp handshake failed", res.err))
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close()
		return NewError(ErrorSessionClosed, "transport disconnected during handshake")
	}
	t.conn = conn
	t.stomp = res.conn
	t.mu.Unlock()

	t.logger.Debug().Str("subprotocol", conn.Subprotocol()).Msg("stomp session established")
	return nil
}

func (t *StompTransport) connectOptions(hb HeartBeat) []func(*stomp.Conn) error {
	host := t.cfg.Host
	if host == "" {
		host = "/"
	}
	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.Host(host),
	}
	if hb != (HeartBeat{}) {
		opts = append(opts, stomp.ConnOpt.HeartBeat(
			time.Duration(hb.Outgoing)*time.Millisecond,
			time.Duration(hb.Incoming)*time.Millisecond,
		))
	}
	if t.cfg.Token != "" {
		opts = append(opts, stomp.ConnOpt.Header("Authorization", BearerToken(t.cfg.Token)))
	}
	return opts
}

// Subscribe starts delivering frames published to dest.
func (t *StompTransport) Subscribe(dest string) (<-chan Frame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, NewError(ErrorSessionClosed, "transport already disconnected")
	}
	if t.sub != nil {
		return nil, NewError(ErrorAlreadySubscribed, "transport already carries a subscription")
	}
	if t.stomp == nil || t.state != StateConnecting {
		return nil, NewError(ErrorDisconnected, "not connected")
	}

	sub, err := t.stomp.Subscribe(dest, stomp.AckAuto)
	if err != nil {
		return nil, WrapError(ErrorSubscription, "subscribe "+dest, err)
	}
	t.sub = sub
	t.setStateLocked(StateSubscribed)

	frames := make(chan Frame, frameBuffer)
	go t.pump(sub, frames)
	return frames, nil
}

func (t *StompTransport) pump(sub *stomp.Subscription, out chan<- Frame) {
	defer close(out)
	for {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			f := Frame{Body: msg.Body}
			if msg.Err != nil {
				f = Frame{Err: WrapError(ErrorDisconnected, "subscription ended", msg.Err)}
			}
			select {
			case out <- f:
			case <-t.done:
				return
			}
			if f.Err != nil {
				return
			}
		case <-t.done:
			return
		}
	}
}

// Send publishes body to dest. It fails without side effects unless subscribed.
func (t *StompTransport) Send(dest string, body []byte) error {
	t.mu.Lock()
	closed, state, sc := t.closed, t.state, t.stomp
	t.mu.Unlock()

	if closed {
		return NewError(ErrorSessionClosed, "transport already disconnected")
	}
	if state != StateSubscribed || sc == nil {
		return NewError(ErrorNotSubscribed, "send while "+state.String())
	}
	if err := sc.Send(dest, contentTypeJSON, body, stomp.SendOpt.Header(headerClientMsgID, uuid.NewString())); err != nil {
		return WrapError(ErrorDisconnected, "publish to "+dest, err)
	}
	return nil
}

// Disconnect tears down the subscription, the STOMP session and the socket.
// It is safe to call more than once.
func (t *StompTransport) Disconnect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.setStateLocked(StateDisconnecting)
	sub, sc, conn := t.sub, t.stomp, t.conn
	t.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			t.logger.Debug().Err(err).Msg("unsubscribe")
		}
	}
	if sc != nil {
		done := make(chan error, 1)
		go func() { done <- sc.Disconnect() }()
		select {
		case err := <-done:
			if err != nil {
				t.logger.Debug().Err(err).Msg("stomp disconnect")
			}
		case <-time.After(disconnectTimeout):
			t.logger.Warn().Msg("stomp disconnect receipt timed out")
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			t.logger.Debug().Err(err).Msg("websocket close")
		}
	}

	t.mu.Lock()
	t.setStateLocked(StateIdle)
	t.mu.Unlock()
	return nil
}

func (t *StompTransport) fail(err error) error {
	t.mu.Lock()
	if !t.closed {
		t.setStateLocked(StateFailed)
	}
	t.mu.Unlock()
	t.logger.Warn().Err(err).Msg("connect failed")
	return err
}

func (t *StompTransport) setStateLocked(s SessionState) {
	if t.state == s {
		return
	}
	t.logger.Debug().Str("from", t.state.String()).Str(FieldState, s.String()).Msg("transport state")
	t.state = s
}

// BearerToken adds the Bearer scheme unless token already carries it.
func BearerToken(token string) string {
	if strings.HasPrefix(token, "Bearer ") {
		return token
	}
	return "Bearer " + token
}
