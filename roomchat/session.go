package roomchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var errSuperseded = errors.New("room selection superseded")

// Option configures a Session.
type Option func(*Session)

// WithTransportFactory replaces the STOMP transport, mostly for tests.
func WithTransportFactory(f TransportFactory) Option {
	return func(s *Session) { s.newTransport = f }
}

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.logger = l.With().Str(FieldComponent, "session").Logger() }
}

// WithClock sets the time source used by Submit.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session keeps the live view of one chat room: it owns the transport, the
// message log and the pagination cursor of the active room.
//
// All state lives on a single event-loop goroutine. Transport frames, fetch
// results and caller requests are posted to it, so none of them run in parallel.
// Callbacks registered with OnError, OnStateChanged and OnSent run on that loop
// too and must not call back into the Session.
type Session struct {
	cfg          Config
	logger       zerolog.Logger
	history      HistoryFetcher
	newTransport TransportFactory
	now          func() time.Time
	senderID     int64

	ctx     context.Context
	cancel  context.CancelFunc
	cmds    chan func()
	quit    chan struct{}
	stopped chan struct{}
	changes chan struct{}
	once    sync.Once

	switchMu sync.Mutex
	pages    singleflight.Group

	// Owned by the event loop.
	dispatcher   Dispatcher
	closed       bool
	room         RoomID
	gen          uint64
	selection    uint64
	reconnectSel uint64
	roomCtx      context.Context
	roomCancel   context.CancelFunc
	transport    Transport
	state        SessionState
	log          *MessageLog
	cursor       PaginationCursor
	loadingPage  int
	snapshotDone bool
	pending      []Message
	input        string
}

// NewSession constructs a session and starts its event loop. Call SelectRoom to
// open a room and Close to release it.
func NewSession(cfg Config, history HistoryFetcher, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:        cfg,
		logger:     defaultLogger(),
		history:    history,
		now:        time.Now,
		senderID:   cfg.SenderID,
		ctx:        ctx,
		cancel:     cancel,
		cmds:       make(chan func(), 64),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		changes:    make(chan struct{}, 1),
		roomCtx:    ctx,
		roomCancel: func() {},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newTransport == nil {
		s.newTransport = func() Transport {
			t := NewStompTransport(s.cfg)
			t.SetLogger(s.logger)
			return t
		}
	}
	if s.senderID == 0 && cfg.Token != "" {
		id, err := SenderIDFromToken(cfg.Token)
		if err != nil {
			s.logger.Warn().Err(err).Msg("sender id not derivable from token")
		}
		s.senderID = id
	}

	go s.run()
	return s
}

// OnError registers the callback for non-fatal errors.
func (s *Session) OnError(fn func(error)) {
	s.call(func() { s.dispatcher.SetOnError(fn) })
}

// OnStateChanged registers the callback for transport state changes.
func (s *Session) OnStateChanged(fn func(StateEvent)) {
	s.call(func() { s.dispatcher.SetOnStateChanged(fn) })
}

// OnSent registers the callback invoked after a message is handed to the broker.
func (s *Session) OnSent(fn func(Message)) {
	s.call(func() { s.dispatcher.SetOnSent(fn) })
}

// Changes signals, coalesced, that the log, the input or the state changed.
func (s *Session) Changes() <-chan struct{} {
	return s.changes
}

// SenderID returns the id Submit sends as.
func (s *Session) SenderID() int64 { return s.senderID }

// SelectRoom makes room the active room. Any previous transport is fully
// disconnected before the new one connects. The initial snapshot is fetched
// concurrently with the handshake. A connection error is reported and returned;
// the session stays usable and SelectRoom may simply be called again.
func (s *Session) SelectRoom(ctx context.Context, room RoomID) error {
	if room == "" {
		return NewError(ErrorNoRoom, "empty room id")
	}
	s.switchMu.Lock()
	defer s.switchMu.Unlock()
	return s.open(ctx, room, true)
}

// open rebuilds the room session. The caller holds switchMu.
func (s *Session) open(ctx context.Context, room RoomID, selected bool) error {
	var (
		old     Transport
		gen     uint64
		roomCtx context.Context
		closed  bool
	)
	ok := s.call(func() {
		if s.closed {
			closed = true
			return
		}
		old = s.transport
		s.transport = nil
		s.roomCancel()
		s.roomCtx, s.roomCancel = context.WithCancel(s.ctx)

		s.gen++
		if selected {
			s.selection++
		}
		gen, roomCtx = s.gen, s.roomCtx
		s.room = room
		s.log = NewMessageLog(room, s.cfg.Dedupe)
		s.cursor = PaginationCursor{Room: room}
		s.loadingPage = 0
		s.snapshotDone = false
		s.pending = nil
		switch {
		case old != nil:
			s.setState(StateDisconnecting, nil)
		case s.state == StateFailed:
			s.setState(StateIdle, nil)
		}
		s.notify()
	})
	if !ok || closed {
		return NewError(ErrorSessionClosed, "session closed")
	}

	l := s.logger.With().Str(FieldRoomID, string(room)).Uint64("gen", gen).Logger()
	if old != nil {
		if err := old.Disconnect(); err != nil {
			l.Warn().Err(err).Msg("disconnect previous transport")
		}
	}
	s.call(func() {
		if s.gen == gen {
			s.setState(StateIdle, nil)
			s.setState(StateConnecting, nil)
		}
	})

	go s.fetchInitial(roomCtx, gen, room)

	connectCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	t := s.newTransport()
	frames, err := s.connect(connectCtx, t, room)
	if err != nil {
		_ = t.Disconnect()
		s.post(func() { s.connectFailed(gen, room, err) })
		return err
	}

	var stale bool
	s.call(func() {
		if s.closed || s.gen != gen {
			stale = true
			return
		}
		s.transport = t
		s.setState(StateSubscribed, nil)
	})
	if stale {
		_ = t.Disconnect()
		return NewError(ErrorSessionClosed, "session closed during connect")
	}

	l.Info().Msg("room subscribed")
	go s.consume(gen, frames)
	return nil
}

func (s *Session) connect(ctx context.Context, t Transport, room RoomID) (<-chan Frame, error) {
	if err := t.Connect(ctx, s.cfg.HeartBeat); err != nil {
		return nil, asError(ErrorConnection, "connect", err)
	}
	frames, err := t.Subscribe(ChannelPath(room))
	if err != nil {
		return nil, asError(ErrorConnection, "subscribe", err)
	}
	return frames, nil
}

func (s *Session) fetchInitial(ctx context.Context, gen uint64, room RoomID) {
	msgs, err := s.history.FetchInitial(ctx, room)
	s.post(func() { s.applySnapshot(gen, room, msgs, err) })
}

func (s *Session) consume(gen uint64, frames <-chan Frame) {
	for f := range frames {
		if !s.post(func() { s.handleFrame(gen, f) }) {
			return
		}
	}
	s.post(func() { s.subscriptionEnded(gen) })
}

// LoadOlder fetches the next older history page and prepends it. Calls made
// while a page is in flight wait for that page instead of requesting another.
func (s *Session) LoadOlder(ctx context.Context) error {
	var (
		ch  <-chan singleflight.Result
		err error
	)
	ok := s.call(func() {
		switch {
		case s.closed:
			err = NewError(ErrorSessionClosed, "session closed")
			return
		case s.room == "":
			err = NewError(ErrorNoRoom, "no room selected")
			return
		case !s.snapshotDone:
			err = NewError(ErrorNotReady, "initial snapshot not applied yet")
			return
		}
		if s.loadingPage == 0 {
			s.cursor.Page++
			s.loadingPage = s.cursor.Page
		}
		gen, room, page, roomCtx := s.gen, s.room, s.loadingPage, s.roomCtx
		key := fmt.Sprintf("%d/%s/%d", gen, room, page)
		ch = s.pages.DoChan(key, func() (any, error) {
			msgs, err := s.history.FetchPage(roomCtx, room, page)
			s.call(func() { s.applyPage(gen, room, page, msgs, err) })
			return nil, err
		})
	})
	if !ok {
		return NewError(ErrorSessionClosed, "session closed")
	}
	if err != nil {
		return err
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return asError(ErrorFetch, "fetch page", res.Err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendMessage publishes text to the active room as senderID at the given time.
// Line breaks are stripped. Blank text is rejected with ErrorSendValidation and
// nothing is sent. On success the input buffer is cleared.
func (s *Session) SendMessage(ctx context.Context, text string, senderID int64, at time.Time) error {
	if strings.TrimSpace(text) == "" {
		return NewError(ErrorSendValidation, "empty message")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		t    Transport
		room RoomID
		err  error
	)
	ok := s.call(func() {
		switch {
		case s.closed:
			err = NewError(ErrorSessionClosed, "session closed")
		case s.room == "":
			err = NewError(ErrorNoRoom, "no room selected")
		case s.transport == nil || s.state != StateSubscribed:
			err = NewError(ErrorNotSubscribed, "room "+string(s.room)+" is not subscribed")
		default:
			t, room = s.transport, s.room
		}
	})
	if !ok {
		return NewError(ErrorSessionClosed, "session closed")
	}
	if err != nil {
		return err
	}

	payload := SendPayload{
		SenderID:    senderID,
		ChatContent: stripLineBreaks(text),
		SendAt:      At(at),
		ChatRoomID:  room,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return WrapError(ErrorSerialization, "encode message", err)
	}
	if err := t.Send(DestinationPath(room), body); err != nil {
		return err
	}

	s.call(func() {
		if s.room != room {
			return
		}
		s.input = ""
		s.notify()
		s.dispatcher.fireSent(Message{
			SenderID:    payload.SenderID,
			ChatContent: payload.ChatContent,
			SendAt:      payload.SendAt,
			ChatRoomID:  payload.ChatRoomID,
		})
	})
	return nil
}

// Submit sends the current input buffer as SenderID, stamped with the session clock.
func (s *Session) Submit(ctx context.Context) error {
	return s.SendMessage(ctx, s.Input(), s.senderID, s.now())
}

// Input returns the current input buffer.
func (s *Session) Input() string {
	var in string
	s.call(func() { in = s.input })
	return in
}

// SetInput replaces the input buffer.
func (s *Session) SetInput(text string) {
	s.call(func() {
		s.input = text
		s.notify()
	})
}

// Messages returns the active room's log.
func (s *Session) Messages() []Message {
	var out []Message
	s.call(func() {
		if s.log != nil {
			out = s.log.Messages()
		}
	})
	return out
}

// Entries returns the active room's log with date-boundary flags.
func (s *Session) Entries() []Entry {
	var out []Entry
	s.call(func() {
		if s.log != nil {
			out = s.log.Entries()
		}
	})
	return out
}

// Snapshot returns room, state, cursor, log and input in one consistent read.
func (s *Session) Snapshot() Snapshot {
	var snap Snapshot
	s.call(func() {
		snap = Snapshot{Room: s.room, State: s.state, Page: s.cursor.Page, Input: s.input}
		if s.log != nil {
			snap.Entries = s.log.Entries()
		}
	})
	return snap
}

// State returns the state of the active room's transport.
func (s *Session) State() SessionState {
	var st SessionState
	s.call(func() { st = s.state })
	return st
}

// Cursor returns the pagination cursor of the active room.
func (s *Session) Cursor() PaginationCursor {
	var c PaginationCursor
	s.call(func() { c = s.cursor })
	return c
}

// Close disconnects the transport, discards the log and stops the event loop.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.switchMu.Lock()
		defer s.switchMu.Unlock()

		var t Transport
		s.call(func() {
			s.closed = true
			t = s.transport
			s.transport = nil
			s.log = nil
			s.pending = nil
			s.roomCancel()
			s.setState(StateIdle, nil)
		})
		if t != nil {
			if err := t.Disconnect(); err != nil {
				s.logger.Warn().Err(err).Msg("disconnect on close")
			}
		}
		close(s.quit)
		<-s.stopped
	})
	return nil
}

// Event loop handlers. Everything below runs on the loop goroutine.

func (s *Session) applySnapshot(gen uint64, room RoomID, msgs []Message, err error) {
	if s.closed || gen != s.gen || room != s.room {
		s.logger.Debug().Str(FieldRoomID, string(room)).Msg("stale snapshot discarded")
		return
	}
	if err != nil {
		s.report(asError(ErrorFetch, "fetch initial snapshot", err))
		msgs = nil
	}
	s.log.ReplaceMerged(msgs, s.pending)
	s.logger.Debug().Str(FieldRoomID, string(room)).Int(FieldCount, s.log.Len()).Int("buffered", len(s.pending)).Msg("snapshot applied")
	s.pending = nil
	s.snapshotDone = true
	s.cursor.Page = 0
	s.notify()
}

func (s *Session) applyPage(gen uint64, room RoomID, page int, msgs []Message, err error) {
	if s.closed || gen != s.gen || room != s.room {
		s.logger.Debug().Str(FieldRoomID, string(room)).Int(FieldPage, page).Msg("stale page discarded")
		return
	}
	s.loadingPage = 0
	if err != nil {
		if s.cursor.Page == page {
			s.cursor.Page--
		}
		s.report(asError(ErrorFetch, fmt.Sprintf("fetch page %d", page), err))
		return
	}
	n := s.log.Prepend(msgs)
	s.logger.Debug().Str(FieldRoomID, string(room)).Int(FieldPage, page).Int(FieldCount, n).Msg("page prepended")
	s.notify()
}

func (s *Session) handleFrame(gen uint64, f Frame) {
	if s.closed || gen != s.gen {
		return
	}
	if f.Err != nil {
		s.logger.Debug().Err(f.Err).Str(FieldRoomID, string(s.room)).Msg("subscription error frame")
		return
	}
	m, err := DecodeMessage(f.Body)
	if err != nil {
		s.logger.Warn().Err(err).Str(FieldRoomID, string(s.room)).Msg("dropping malformed frame")
		s.report(err)
		return
	}
	if m.ChatRoomID != s.room {
		s.logger.Debug().Str(FieldRoomID, string(m.ChatRoomID)).Msg("dropping message for another room")
		return
	}
	if !s.snapshotDone {
		s.pending = append(s.pending, m)
		return
	}
	if s.log.Append(m) {
		s.notify()
	}
}

// subscriptionEnded keeps the dead transport in place; the next open or Close
// disconnects it before anything else subscribes.
func (s *Session) subscriptionEnded(gen uint64) {
	if s.closed || gen != s.gen || s.transport == nil {
		return
	}
	err := NewError(ErrorDisconnected, "subscription to room "+string(s.room)+" ended")
	s.setState(StateFailed, err)
	s.report(err)
	s.scheduleReconnect(s.room)
}

func (s *Session) connectFailed(gen uint64, room RoomID, err error) {
	if s.closed || gen != s.gen {
		return
	}
	s.setState(StateFailed, err)
	s.report(err)
	s.scheduleReconnect(room)
}

func (s *Session) scheduleReconnect(room RoomID) {
	if !s.cfg.AutoReconnect || s.reconnectSel == s.selection {
		return
	}
	s.reconnectSel = s.selection
	go s.reconnect(s.selection, room)
}

// reconnect reopens room with exponential backoff for as long as the caller
// has not selected another room.
func (s *Session) reconnect(sel uint64, room RoomID) {
	l := s.logger.With().Str(FieldRoomID, string(room)).Logger()
	defer s.post(func() {
		if s.reconnectSel == sel {
			s.reconnectSel = 0
		}
	})

	b := backoff.NewExponentialBackOff()
	if s.cfg.ReconnectInterval > 0 {
		b.InitialInterval = s.cfg.ReconnectInterval
	}
	if s.cfg.MaxReconnectDelay > 0 {
		b.MaxInterval = s.cfg.MaxReconnectDelay
	}

	select {
	case <-time.After(b.InitialInterval):
	case <-s.ctx.Done():
		return
	}

	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		s.switchMu.Lock()
		defer s.switchMu.Unlock()

		current := false
		s.call(func() { current = !s.closed && s.selection == sel })
		if !current {
			return struct{}{}, backoff.Permanent(errSuperseded)
		}
		l.Info().Int(FieldAttempt, attempt).Msg("reconnecting")
		return struct{}{}, s.open(s.ctx, room, false)
	}

	opts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if s.cfg.MaxReconnectTries > 0 {
		opts = append(opts, backoff.WithMaxTries(s.cfg.MaxReconnectTries))
	}
	if _, err := backoff.Retry(s.ctx, op, opts...); err != nil && !errors.Is(err, errSuperseded) {
		l.Warn().Err(err).Int(FieldAttempt, attempt).Msg("giving up reconnect")
	}
}

func (s *Session) setState(st SessionState, err error) {
	if s.state == st {
		return
	}
	ev := StateEvent{Room: s.room, OldState: s.state, NewState: st, Error: err}
	s.state = st
	s.logger.Debug().Str(FieldRoomID, string(s.room)).Str(FieldState, st.String()).Msg("session state")
	s.dispatcher.fireState(ev)
	s.notify()
}

func (s *Session) report(err error) {
	s.logger.Warn().Err(err).Str(FieldRoomID, string(s.room)).Msg("session error")
	s.dispatcher.fireError(err)
}

func (s *Session) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Session) run() {
	defer close(s.stopped)
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case <-s.quit:
			return
		}
	}
}

// post queues fn on the event loop. It reports false once the session is closed.
func (s *Session) post(fn func()) bool {
	select {
	case s.cmds <- fn:
		return true
	case <-s.quit:
		return false
	}
}

// call runs fn on the event loop and waits for it.
func (s *Session) call(fn func()) bool {
	done := make(chan struct{})
	if !s.post(func() { fn(); close(done) }) {
		return false
	}
	select {
	case <-done:
		return true
	case <-s.stopped:
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}

func stripLineBreaks(text string) string {
	return strings.NewReplacer("\r\n", "", "\n", "", "\r", "").Replace(text)
}
