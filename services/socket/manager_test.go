package socket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"partnerdesk/models"

	"github.com/gorilla/websocket"
)

type recorder struct {
	events chan models.Event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan models.Event, 16)}
}

func (r *recorder) Publish(evt models.Event) {
	r.events <- evt
}

func (r *recorder) next(t *testing.T) models.Event {
	t.Helper()
	select {
	case evt := <-r.events:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// manualScheduler records requested delays; the test fires them by hand.
type manualScheduler struct {
	mu      sync.Mutex
	pending []func()
	delays  chan time.Duration
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{delays: make(chan time.Duration, 16)}
}

func (s *manualScheduler) schedule(d time.Duration, fn func()) func() bool {
	s.mu.Lock()
	s.pending = append(s.pending, fn)
	s.mu.Unlock()
	s.delays <- d
	return func() bool { return true }
}

func (s *manualScheduler) nextDelay(t *testing.T) time.Duration {
	t.Helper()
	select {
	case d := <-s.delays:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a scheduled reconnect")
		return 0
	}
}

func (s *manualScheduler) fire() {
	s.mu.Lock()
	fn := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()
	fn()
}

func (s *manualScheduler) assertIdle(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case d := <-s.delays:
		t.Fatalf("unexpected reconnect scheduled after %v", d)
	case <-time.After(wait):
	}
}

type failingDialer struct {
	dials atomic.Int32
}

func (d *failingDialer) DialContext(ctx context.Context, urlStr string, h http.Header) (*websocket.Conn, *http.Response, error) {
	d.dials.Add(1)
	return nil, nil, errors.New("connection refused")
}

// pushServer accepts websocket upgrades carrying token "tok".
type pushServer struct {
	*httptest.Server
	conns chan *websocket.Conn
	urls  chan string
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	ps := &pushServer{conns: make(chan *websocket.Conn, 8), urls: make(chan string, 8)}
	upgrader := websocket.Upgrader{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.urls <- r.URL.String()
		if r.URL.Query().Get("token") != "tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ps.conns <- conn
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *pushServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ps.URL, "http")
}

func (ps *pushServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ps.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client connection")
		return nil
	}
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", m.State(), want)
}

func TestConnectDeliversDecodedEvents(t *testing.T) {
	ps := newPushServer(t)
	rec := newRecorder()
	m := NewManager(Options{BaseURL: ps.wsURL(), Schedule: newManualScheduler().schedule}, rec)
	defer m.Disconnect()

	if err := m.Connect(context.Background(), "/partner", "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := <-ps.urls; got != "/partner?token=tok" {
		t.Fatalf("dialled %q", got)
	}
	server := ps.accept(t)
	waitForState(t, m, StateConnected)

	frames := []string{
		`{"type":"NEW_BOOKING","booking":{"_id":"b2","status":"pending"}}`,
		`{"type":"NEW_BOOKING"`,
		`{"type":"BOOKING_UPDATED","booking":{"_id":"b2","status":"bogus"}}`,
		`{"type":"BOOKING_CANCELLED","bookingId":"b2"}`,
	}
	for _, f := range frames {
		if err := server.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("server write: %v", err)
		}
	}

	if evt, ok := rec.next(t).(models.NewBooking); !ok || evt.Booking.ID != "b2" {
		t.Fatalf("first event = %#v", evt)
	}
	if evt, ok := rec.next(t).(models.BookingCancelled); !ok || evt.BookingID != "b2" {
		t.Fatalf("second event = %#v", evt)
	}
}

func TestConnectWhileConnectedIsNoop(t *testing.T) {
	ps := newPushServer(t)
	m := NewManager(Options{BaseURL: ps.wsURL(), Schedule: newManualScheduler().schedule}, newRecorder())
	defer m.Disconnect()

	if err := m.Connect(context.Background(), "/partner", "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ps.accept(t)
	waitForState(t, m, StateConnected)

	if err := m.Connect(context.Background(), "/partner", "tok"); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	select {
	case <-ps.conns:
		t.Fatal("second Connect opened another connection")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnectWithoutCredentials(t *testing.T) {
	dialer := &failingDialer{}
	sched := newManualScheduler()
	m := NewManager(Options{
		BaseURL:  "ws://unused",
		Tokens:   ChainTokenSource{Sources: []TokenSource{StaticToken("")}},
		Dialer:   dialer,
		Schedule: sched.schedule,
	}, newRecorder())

	if err := m.Connect(context.Background(), "/partner", ""); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("Connect = %v, want ErrNoCredentials", err)
	}
	sched.assertIdle(t, 50*time.Millisecond)
	if dialer.dials.Load() != 0 {
		t.Fatalf("dialled %d times without credentials", dialer.dials.Load())
	}
	if m.State() != StateIdle {
		t.Fatalf("state = %s, want idle", m.State())
	}
}

func TestReconnectBackoffAndExhaustion(t *testing.T) {
	dialer := &failingDialer{}
	sched := newManualScheduler()
	m := NewManager(Options{
		BaseURL:  "ws://backend",
		Dialer:   dialer,
		Policy:   NewReconnectPolicy(time.Second, 5),
		Schedule: sched.schedule,
	}, newRecorder())

	var mu sync.Mutex
	var states []State
	m.OnStateChange(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	if err := m.Connect(context.Background(), "/partner", "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	for attempt := 1; attempt <= 5; attempt++ {
		want := time.Duration(attempt) * time.Second
		if got := sched.nextDelay(t); got != want {
			t.Fatalf("reconnect %d scheduled after %v, want %v", attempt, got, want)
		}
		sched.fire()
	}

	sched.assertIdle(t, 50*time.Millisecond)
	if m.State() != StateExhausted {
		t.Fatalf("state = %s, want exhausted", m.State())
	}
	if got := dialer.dials.Load(); got != 6 {
		t.Fatalf("dials = %d, want 6 (first attempt plus five reconnects)", got)
	}

	mu.Lock()
	last := states[len(states)-1]
	mu.Unlock()
	if last != StateExhausted {
		t.Fatalf("last observed state = %s, want exhausted", last)
	}
}

func TestReconnectAfterDropResetsBackoff(t *testing.T) {
	ps := newPushServer(t)
	sched := newManualScheduler()
	m := NewManager(Options{BaseURL: ps.wsURL(), Schedule: sched.schedule}, newRecorder())
	defer m.Disconnect()

	if err := m.Connect(context.Background(), "/partner", "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	for round := 0; round < 2; round++ {
		server := ps.accept(t)
		waitForState(t, m, StateConnected)
		server.Close()

		if got := sched.nextDelay(t); got != time.Second {
			t.Fatalf("round %d: reconnect after %v, want 1s", round, got)
		}
		waitForState(t, m, StateReconnecting)
		go sched.fire()
	}
	ps.accept(t)
	waitForState(t, m, StateConnected)
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	ps := newPushServer(t)
	sched := newManualScheduler()
	m := NewManager(Options{BaseURL: ps.wsURL(), Schedule: sched.schedule}, newRecorder())

	if err := m.Connect(context.Background(), "/partner", "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ps.accept(t)
	waitForState(t, m, StateConnected)

	m.Disconnect()
	if m.State() != StateDisconnected {
		t.Fatalf("state = %s, want disconnected", m.State())
	}
	sched.assertIdle(t, 100*time.Millisecond)
}

func TestRejectedCredentialsAreNotRetried(t *testing.T) {
	ps := newPushServer(t)
	sched := newManualScheduler()
	m := NewManager(Options{BaseURL: ps.wsURL(), Schedule: sched.schedule}, newRecorder())

	if err := m.Connect(context.Background(), "/partner", "wrong"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitForState(t, m, StateDisconnected)
	sched.assertIdle(t, 50*time.Millisecond)
}

func TestSend(t *testing.T) {
	ps := newPushServer(t)
	m := NewManager(Options{BaseURL: ps.wsURL(), Schedule: newManualScheduler().schedule}, newRecorder())
	defer m.Disconnect()

	if err := m.Send(map[string]string{"type": "PING"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send before connect = %v, want ErrNotConnected", err)
	}

	if err := m.Connect(context.Background(), "/partner", "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server := ps.accept(t)
	waitForState(t, m, StateConnected)

	if err := m.Send(map[string]string{"type": "PING"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	_ = server.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := server.ReadMessage()
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if string(data) != `{"type":"PING"}` {
		t.Fatalf("frame = %s", data)
	}
}

// rotatingToken is a token source whose credential the test can replace.
type rotatingToken struct {
	mu  sync.Mutex
	tok string
}

func (r *rotatingToken) Token(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tok, nil
}

func (r *rotatingToken) set(tok string) {
	r.mu.Lock()
	r.tok = tok
	r.mu.Unlock()
}

func nextURL(t *testing.T, ps *pushServer) string {
	t.Helper()
	select {
	case u := <-ps.urls:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a dial")
		return ""
	}
}

func TestReconnectResolvesTokenAgain(t *testing.T) {
	ps := newPushServer(t)
	sched := newManualScheduler()
	tokens := &rotatingToken{tok: "tok"}
	m := NewManager(Options{BaseURL: ps.wsURL(), Tokens: tokens, Schedule: sched.schedule}, newRecorder())
	defer m.Disconnect()

	if err := m.Connect(context.Background(), "/partner", ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := nextURL(t, ps); got != "/partner?token=tok" {
		t.Fatalf("first dial %q", got)
	}
	server := ps.accept(t)
	waitForState(t, m, StateConnected)

	tokens.set("rotated")
	server.Close()
	sched.nextDelay(t)
	go sched.fire()

	if got := nextURL(t, ps); got != "/partner?token=rotated" {
		t.Fatalf("reconnect dialled %q, want the rotated token", got)
	}
	waitForState(t, m, StateDisconnected)
}

func TestReconnectStopsWhenTokenIsGone(t *testing.T) {
	ps := newPushServer(t)
	sched := newManualScheduler()
	tokens := &rotatingToken{tok: "tok"}
	m := NewManager(Options{BaseURL: ps.wsURL(), Tokens: tokens, Schedule: sched.schedule}, newRecorder())
	defer m.Disconnect()

	if err := m.Connect(context.Background(), "/partner", ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	nextURL(t, ps)
	server := ps.accept(t)
	waitForState(t, m, StateConnected)

	tokens.set("")
	server.Close()
	sched.nextDelay(t)
	go sched.fire()

	waitForState(t, m, StateDisconnected)
	select {
	case u := <-ps.urls:
		t.Fatalf("dialled %q after the token was removed", u)
	case <-time.After(100 * time.Millisecond):
	}
	sched.assertIdle(t, 50*time.Millisecond)
}

func TestExplicitTokenSurvivesReconnect(t *testing.T) {
	ps := newPushServer(t)
	sched := newManualScheduler()
	tokens := &rotatingToken{tok: "rotated"}
	m := NewManager(Options{BaseURL: ps.wsURL(), Tokens: tokens, Schedule: sched.schedule}, newRecorder())
	defer m.Disconnect()

	if err := m.Connect(context.Background(), "/partner", "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	nextURL(t, ps)
	ps.accept(t).Close()
	sched.nextDelay(t)
	go sched.fire()

	if got := nextURL(t, ps); got != "/partner?token=tok" {
		t.Fatalf("reconnect dialled %q, want the explicit token", got)
	}
	ps.accept(t)
	waitForState(t, m, StateConnected)
}

func TestOversizedFrameDropsConnection(t *testing.T) {
	ps := newPushServer(t)
	sched := newManualScheduler()
	rec := newRecorder()
	m := NewManager(Options{BaseURL: ps.wsURL(), Schedule: sched.schedule}, rec)
	defer m.Disconnect()

	if err := m.Connect(context.Background(), "/partner", "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server := ps.accept(t)
	waitForState(t, m, StateConnected)

	big := `{"type":"NEW_BOOKING","booking":{"_id":"huge","status":"pending","title":"` +
		strings.Repeat("x", maxFrameBytes) + `"}}`
	go func() { _ = server.WriteMessage(websocket.TextMessage, []byte(big)) }()

	if got := sched.nextDelay(t); got != time.Second {
		t.Fatalf("reconnect after %v, want 1s", got)
	}
	select {
	case evt := <-rec.events:
		t.Fatalf("oversized frame published %#v", evt)
	default:
	}
}
