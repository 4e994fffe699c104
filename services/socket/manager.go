// Package socket owns the partner push channel: one websocket per process,
// authenticated by token, reconnected with a capped linear backoff.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"partnerdesk/models"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrNoCredentials means no token source had a usable token; no dial was attempted.
	ErrNoCredentials = errors.New("socket: no partner credentials available")
	// ErrNotConnected is returned by Send while the channel is down.
	ErrNotConnected = errors.New("socket: not connected")
)

const (
	writeWait = 10 * time.Second

	// maxFrameBytes bounds one inbound frame; a larger frame drops the
	// connection and goes through the normal reconnect path.
	maxFrameBytes = 1 << 20
)

// State is the externally visible connection state.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDisconnected State = "disconnected"
	// StateExhausted is the permanent-disconnected state reached once the
	// reconnect policy gives up. Only an explicit Connect leaves it.
	StateExhausted State = "exhausted"
)

// Publisher receives every decoded inbound event.
type Publisher interface {
	Publish(models.Event)
}

// Dialer opens the websocket; *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Scheduler runs fn once after d and returns a function that cancels it.
// fn must not be run synchronously by the Scheduler itself.
type Scheduler func(d time.Duration, fn func()) (stop func() bool)

func afterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	BaseURL          string
	Tokens           TokenSource
	Dialer           Dialer
	Policy           backoff.BackOff
	Schedule         Scheduler
	HandshakeTimeout time.Duration
	Logger           *zap.Logger
}

// Manager owns the single push connection.
type Manager struct {
	baseURL          string
	tokens           TokenSource
	dialer           Dialer
	policy           backoff.BackOff
	schedule         Scheduler
	handshakeTimeout time.Duration
	events           Publisher
	logger           *zap.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	opening     bool
	suppressed  bool
	gen         uint64
	attempt     int
	channelPath string
	token       string
	fixedToken  bool
	cancelRetry func() bool
	state       State

	writeMu sync.Mutex

	omu       sync.Mutex
	observers map[string]func(State)
}

func NewManager(opts Options, events Publisher) *Manager {
	m := &Manager{
		baseURL:          strings.TrimRight(opts.BaseURL, "/"),
		tokens:           opts.Tokens,
		dialer:           opts.Dialer,
		policy:           opts.Policy,
		schedule:         opts.Schedule,
		handshakeTimeout: opts.HandshakeTimeout,
		events:           events,
		logger:           opts.Logger,
		state:            StateIdle,
		observers:        make(map[string]func(State)),
	}
	if m.dialer == nil {
		m.dialer = websocket.DefaultDialer
	}
	if m.policy == nil {
		m.policy = NewReconnectPolicy(time.Second, 5)
	}
	if m.schedule == nil {
		m.schedule = afterFunc
	}
	if m.handshakeTimeout <= 0 {
		m.handshakeTimeout = 10 * time.Second
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

// Connect opens the channel at channelPath. It is a no-op while a connection
// is open, opening, or waiting to reconnect. An empty token is resolved from
// the configured sources, again before every reconnect; if none has one,
// ErrNoCredentials is returned and nothing is dialed. The dial itself
// happens in the background.
func (m *Manager) Connect(ctx context.Context, channelPath, token string) error {
	m.mu.Lock()
	if m.conn != nil || m.opening {
		m.mu.Unlock()
		return nil
	}
	m.opening = true
	m.suppressed = false
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	fixed := token != ""
	if !fixed {
		token = m.resolveToken(ctx)
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return nil
	}
	if token == "" {
		m.opening = false
		m.mu.Unlock()
		m.logger.Error("no authentication token found; not connecting")
		return ErrNoCredentials
	}
	m.channelPath = channelPath
	m.token = token
	m.fixedToken = fixed
	m.attempt = 0
	m.policy.Reset()
	changed := m.setStateLocked(StateConnecting)
	m.mu.Unlock()
	m.emit(changed, StateConnecting)

	go m.open(gen)
	return nil
}

func (m *Manager) resolveToken(ctx context.Context) string {
	if m.tokens == nil {
		return ""
	}
	token, err := m.tokens.Token(ctx)
	if err != nil {
		m.logger.Warn("token lookup failed", zap.Error(err))
		return ""
	}
	return token
}

// Disconnect closes the channel and cancels any pending reconnect. Automatic
// reconnection stays off until the next Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.suppressed = true
	m.gen++
	if m.cancelRetry != nil {
		m.cancelRetry()
		m.cancelRetry = nil
	}
	conn := m.conn
	m.conn = nil
	m.opening = false
	changed := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()
	m.emit(changed, StateDisconnected)

	if conn != nil {
		m.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		m.writeMu.Unlock()
		_ = conn.Close()
		m.logger.Info("push channel disconnected")
	}
}

// Send writes v as a JSON text frame.
func (m *Manager) Send(v any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("socket: encode frame: %w", err)
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("socket: write frame: %w", err)
	}
	return nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnStateChange registers fn for every state transition.
func (m *Manager) OnStateChange(fn func(State)) func() {
	id := uuid.New().String()
	m.omu.Lock()
	m.observers[id] = fn
	m.omu.Unlock()
	return func() {
		m.omu.Lock()
		delete(m.observers, id)
		m.omu.Unlock()
	}
}

func (m *Manager) open(gen uint64) {
	m.mu.Lock()
	target, err := m.channelURL(m.channelPath, m.token)
	m.mu.Unlock()
	if err != nil {
		m.logger.Error("invalid push channel url", zap.Error(err))
		m.fail(gen, StateDisconnected)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.handshakeTimeout)
	conn, resp, err := m.dialer.DialContext(ctx, target, nil)
	cancel()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			m.logger.Error("push channel rejected credentials", zap.Int("status", resp.StatusCode))
			m.fail(gen, StateDisconnected)
			return
		}
		m.logger.Warn("push channel dial failed", zap.Error(err))
		m.handleClose(gen)
		return
	}

	m.mu.Lock()
	if m.gen != gen || m.suppressed {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	conn.SetReadLimit(maxFrameBytes)
	m.conn = conn
	m.opening = false
	m.attempt = 0
	m.policy.Reset()
	changed := m.setStateLocked(StateConnected)
	m.mu.Unlock()
	m.emit(changed, StateConnected)
	m.logger.Info("push channel connected")

	m.readLoop(gen, conn)
}

func (m *Manager) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.logger.Warn("push channel read error", zap.Error(err))
			}
			m.handleClose(gen)
			return
		}

		evt, err := models.DecodeEvent(data)
		if err != nil {
			m.logger.Warn("dropping malformed push frame", zap.Error(err), zap.Int("bytes", len(data)))
			continue
		}
		if m.events != nil {
			m.events.Publish(evt)
		}
	}
}

// handleClose runs after a failed dial or a dropped connection.
func (m *Manager) handleClose(gen uint64) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	if m.suppressed {
		m.opening = false
		changed := m.setStateLocked(StateDisconnected)
		m.mu.Unlock()
		m.emit(changed, StateDisconnected)
		return
	}

	delay := m.policy.NextBackOff()
	if delay == backoff.Stop {
		m.opening = false
		changed := m.setStateLocked(StateExhausted)
		attempts := m.attempt
		m.mu.Unlock()
		m.logger.Error("push channel reconnect attempts exhausted", zap.Int("attempts", attempts))
		m.emit(changed, StateExhausted)
		return
	}

	m.attempt++
	attempt := m.attempt
	m.opening = true
	m.cancelRetry = m.schedule(delay, func() { m.reconnect(gen) })
	changed := m.setStateLocked(StateReconnecting)
	m.mu.Unlock()

	m.logger.Info("scheduling push channel reconnect", zap.Int("attempt", attempt), zap.Duration("delay", delay))
	m.emit(changed, StateReconnecting)
}

func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.suppressed {
		m.mu.Unlock()
		return
	}
	m.cancelRetry = nil
	fixed := m.fixedToken
	changed := m.setStateLocked(StateConnecting)
	m.mu.Unlock()
	m.emit(changed, StateConnecting)

	if !fixed {
		ctx, cancel := context.WithTimeout(context.Background(), m.handshakeTimeout)
		token := m.resolveToken(ctx)
		cancel()
		if token == "" {
			m.logger.Error("no authentication token found; not reconnecting")
			m.fail(gen, StateDisconnected)
			return
		}
		m.mu.Lock()
		if m.gen != gen {
			m.mu.Unlock()
			return
		}
		m.token = token
		m.mu.Unlock()
	}

	m.open(gen)
}

// fail ends the current attempt without scheduling a retry.
func (m *Manager) fail(gen uint64, state State) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.opening = false
	m.suppressed = true
	changed := m.setStateLocked(state)
	m.mu.Unlock()
	m.emit(changed, state)
}

func (m *Manager) channelURL(channelPath, token string) (string, error) {
	u, err := url.Parse(m.baseURL + channelPath)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (m *Manager) setStateLocked(s State) bool {
	if m.state == s {
		return false
	}
	m.state = s
	return true
}

func (m *Manager) emit(changed bool, s State) {
	if !changed {
		return
	}
	m.omu.Lock()
	observers := make([]func(State), 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}
	m.omu.Unlock()
	for _, fn := range observers {
		fn(s)
	}
}
