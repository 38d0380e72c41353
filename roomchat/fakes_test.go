package roomchat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type sentFrame struct {
	dest string
	body []byte
}

// fakeBroker hands out fakeTransports and tracks how many are subscribed at once.
type fakeBroker struct {
	mu            sync.Mutex
	transports    []*fakeTransport
	connectErrs   map[int]error
	subscribed    int
	maxSubscribed int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{connectErrs: make(map[int]error)}
}

func (b *fakeBroker) factory() Transport {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := &fakeTransport{
		broker:     b,
		frames:     make(chan Frame, 16),
		connectErr: b.connectErrs[len(b.transports)],
	}
	b.transports = append(b.transports, t)
	return t
}

func (b *fakeBroker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.transports)
}

func (b *fakeBroker) last() *fakeTransport {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.transports) == 0 {
		return nil
	}
	return b.transports[len(b.transports)-1]
}

func (b *fakeBroker) peak() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxSubscribed
}

type fakeTransport struct {
	broker     *fakeBroker
	connectErr error

	mu        sync.Mutex
	state     SessionState
	dest      string
	sent      []sentFrame
	closed    bool
	closeOnce sync.Once
	frames    chan Frame
}

func (t *fakeTransport) Connect(ctx context.Context, hb HeartBeat) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connectErr != nil {
		t.state = StateFailed
		return WrapError(ErrorConnection, "fake handshake", t.connectErr)
	}
	t.state = StateConnecting
	return nil
}

func (t *fakeTransport) Subscribe(dest string) (<-chan Frame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateConnecting {
		return nil, NewError(ErrorDisconnected, "not connected")
	}
	t.state = StateSubscribed
	t.dest = dest

	t.broker.mu.Lock()
	t.broker.subscribed++
	if t.broker.subscribed > t.broker.maxSubscribed {
		t.broker.maxSubscribed = t.broker.subscribed
	}
	t.broker.mu.Unlock()
	return t.frames, nil
}

func (t *fakeTransport) Send(dest string, body []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateSubscribed {
		return NewError(ErrorNotSubscribed, "fake send while "+t.state.String())
	}
	t.sent = append(t.sent, sentFrame{dest: dest, body: body})
	return nil
}

func (t *fakeTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.state == StateSubscribed {
		t.broker.mu.Lock()
		t.broker.subscribed--
		t.broker.mu.Unlock()
	}
	t.state = StateIdle
	t.closeOnce.Do(func() { close(t.frames) })
	return nil
}

func (t *fakeTransport) State() SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// push delivers a raw frame as the broker would.
func (t *fakeTransport) push(body []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.frames <- Frame{Body: body}
}

func (t *fakeTransport) pushMessage(tb testing.TB, m Message) {
	tb.Helper()
	body, err := json.Marshal(m)
	if err != nil {
		tb.Fatalf("marshal: %v", err)
	}
	t.push(body)
}

// drop ends the subscription the way a dead socket does.
func (t *fakeTransport) drop() {
	t.closeOnce.Do(func() { close(t.frames) })
}

func (t *fakeTransport) sentFrames() []sentFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]sentFrame, len(t.sent))
	copy(out, t.sent)
	return out
}

type pageKey struct {
	room RoomID
	page int
}

// fakeHistory serves canned history. Gates, when set, hold a response until closed.
type fakeHistory struct {
	mu           sync.Mutex
	initial      map[RoomID][]Message
	pages        map[pageKey][]Message
	initialGates map[RoomID]chan struct{}
	pageGates    map[RoomID]chan struct{}
	initialErr   error
	pageErr      error
	pageCalls    int
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		initial:      make(map[RoomID][]Message),
		pages:        make(map[pageKey][]Message),
		initialGates: make(map[RoomID]chan struct{}),
		pageGates:    make(map[RoomID]chan struct{}),
	}
}

func (h *fakeHistory) FetchInitial(ctx context.Context, room RoomID) ([]Message, error) {
	h.mu.Lock()
	gate := h.initialGates[room]
	h.mu.Unlock()
	if gate != nil {
		<-gate
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.initialErr != nil {
		return nil, h.initialErr
	}
	return append([]Message(nil), h.initial[room]...), nil
}

func (h *fakeHistory) FetchPage(ctx context.Context, room RoomID, page int) ([]Message, error) {
	h.mu.Lock()
	h.pageCalls++
	gate := h.pageGates[room]
	h.mu.Unlock()
	if gate != nil {
		<-gate
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pageErr != nil {
		return nil, h.pageErr
	}
	return append([]Message(nil), h.pages[pageKey{room, page}]...), nil
}

func (h *fakeHistory) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pageCalls
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.URL = "ws://broker.test/ws"
	cfg.AutoReconnect = false
	return cfg
}

func newTestSession(t *testing.T, cfg Config, h *fakeHistory, b *fakeBroker) *Session {
	t.Helper()
	s := NewSession(cfg, h, WithTransportFactory(b.factory))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func msgAt(room RoomID, sender int64, text string, at time.Time, date string) Message {
	return Message{SenderID: sender, ChatContent: text, SendAt: At(at), ChatRoomID: room, DBSendAt: date}
}

var base = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func minute(n int) time.Time { return base.Add(time.Duration(n) * time.Minute) }

func contents(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ChatContent
	}
	return out
}
